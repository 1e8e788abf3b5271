package leads

// PageSize is the fixed number of rows per page.
const PageSize = 10

// windowSlots is the number of consecutive page numbers centered on the
// current page.
const windowSlots = 7

// TotalPages returns the page count for n rows; an empty list has one page.
func TotalPages(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + PageSize - 1) / PageSize
}

// ClampPage keeps page within [1, TotalPages(n)].
func ClampPage(page, n int) int {
	if page < 1 {
		return 1
	}
	if total := TotalPages(n); page > total {
		return total
	}
	return page
}

// Page returns the rows of the 1-based page.
func Page(records []Lead, page int) []Lead {
	page = ClampPage(page, len(records))
	start := (page - 1) * PageSize
	if start >= len(records) {
		return []Lead{}
	}
	end := start + PageSize
	if end > len(records) {
		end = len(records)
	}
	out := make([]Lead, end-start)
	copy(out, records[start:end])
	return out
}

// PageSlot is one navigation control: a page number or an ellipsis.
type PageSlot struct {
	Page     int  `json:"page,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// PageWindow lays out navigation controls: up to seven consecutive pages
// around current, plus the first and last page with ellipses when they are
// not adjacent to that window.
func PageWindow(current, total int) []PageSlot {
	if total < 1 {
		total = 1
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	start := max(1, current-windowSlots/2)
	end := min(total, start+windowSlots-1)
	if end-start+1 < windowSlots {
		start = max(1, end-windowSlots+1)
	}

	slots := make([]PageSlot, 0, windowSlots+4)
	if start > 1 {
		slots = append(slots, PageSlot{Page: 1})
		if start > 2 {
			slots = append(slots, PageSlot{Ellipsis: true})
		}
	}
	for p := start; p <= end; p++ {
		slots = append(slots, PageSlot{Page: p, Current: p == current})
	}
	if end < total {
		if end < total-1 {
			slots = append(slots, PageSlot{Ellipsis: true})
		}
		slots = append(slots, PageSlot{Page: total})
	}
	return slots
}
