package services

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/ttacon/libphonenumber"
)

// Mobile is a validated mobile number split for the send-OTP call.
type Mobile struct {
	National    string
	CountryCode string
}

// ParseMobile validates raw locally. Separators are ignored; 7 to 15
// digits are required. Numbers without a leading + are read in region.
func ParseMobile(raw, region string) (Mobile, error) {
	raw = strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	n := digits.Len()
	if n < 7 || n > 15 {
		return Mobile{}, apperrors.Validation("Please enter a valid mobile number")
	}

	input := digits.String()
	if strings.HasPrefix(raw, "+") {
		input = "+" + input
	}
	p, err := libphonenumber.Parse(input, region)
	if err != nil {
		return Mobile{}, apperrors.Validation("Please enter a valid mobile number")
	}
	return Mobile{
		National:    strconv.FormatUint(p.GetNationalNumber(), 10),
		CountryCode: strconv.Itoa(int(p.GetCountryCode())),
	}, nil
}
