package leads

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	crore = decimal.NewFromInt(10_000_000)
	lakh  = decimal.NewFromInt(100_000)
	grand = decimal.NewFromInt(1_000)
)

// BudgetLabel renders a rupee amount in the short Indian form (Cr, L, K).
// Values that are not numbers are returned trimmed and unchanged.
func BudgetLabel(raw string) string {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return ""
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return raw
	}
	switch {
	case amount.GreaterThanOrEqual(crore):
		return "₹" + amount.Div(crore).Round(2).String() + " Cr"
	case amount.GreaterThanOrEqual(lakh):
		return "₹" + amount.Div(lakh).Round(2).String() + " L"
	case amount.GreaterThanOrEqual(grand):
		return "₹" + amount.Div(grand).Round(2).String() + " K"
	default:
		return "₹" + amount.String()
	}
}
