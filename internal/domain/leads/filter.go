package leads

import (
	"sort"
	"strings"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
)

// Filters is the set of conjunctive predicates applied to a deduplicated list.
// Zero values mean "inactive".
type Filters struct {
	Search      string `json:"search,omitempty"`
	Role        int    `json:"role,omitempty"`
	State       string `json:"state,omitempty"`
	City        string `json:"city,omitempty"`
	CreatedDate string `json:"createdDate,omitempty"`
	UpdatedDate string `json:"updatedDate,omitempty"`
}

// Active reports whether any predicate is set.
func (f Filters) Active() bool {
	return f != Filters{}
}

// WithState sets the state filter. City options are state scoped, so a
// changed state clears the city.
func (f Filters) WithState(state string) Filters {
	if !strings.EqualFold(strings.TrimSpace(state), f.State) {
		f.City = ""
	}
	f.State = strings.TrimSpace(state)
	return f
}

// WithDates sets the created/updated window, rejecting an updated day that
// precedes the created day. Either value may be empty to clear it.
func (f Filters) WithDates(created, updated string) (Filters, error) {
	created = strings.TrimSpace(created)
	updated = strings.TrimSpace(updated)
	if created != "" && !ValidDay(created) {
		return f, apperrors.Validation("Created date must be in YYYY-MM-DD format")
	}
	if updated != "" && !ValidDay(updated) {
		return f, apperrors.Validation("Updated date must be in YYYY-MM-DD format")
	}
	if created != "" && updated != "" && updated < created {
		return f, apperrors.Validation("Updated date cannot be earlier than created date")
	}
	f.CreatedDate = created
	f.UpdatedDate = updated
	return f, nil
}

// Match reports whether l satisfies every active predicate.
func (f Filters) Match(l Lead) bool {
	return f.matchSearch(l) &&
		f.matchRole(l) &&
		f.matchState(l) &&
		f.matchCity(l) &&
		f.matchDates(l)
}

func (f Filters) matchSearch(l Lead) bool {
	q := strings.ToLower(strings.TrimSpace(f.Search))
	if q == "" {
		return true
	}
	for _, field := range []string{l.Name, l.Phone, l.Email, l.ProjectName, l.Assignment.Name, l.Assignment.Phone} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (f Filters) matchRole(l Lead) bool {
	return f.Role == 0 || l.Assignment.Role == f.Role
}

func (f Filters) matchState(l Lead) bool {
	return f.State == "" || strings.EqualFold(strings.TrimSpace(l.State), f.State)
}

func (f Filters) matchCity(l Lead) bool {
	return f.City == "" || strings.EqualFold(strings.TrimSpace(l.City), strings.TrimSpace(f.City))
}

// matchDates treats CreatedDate and UpdatedDate as one date-window predicate.
// Alone, CreatedDate is an exact-day match. With UpdatedDate it becomes the
// lower bound of both the created day and an updated-day window
// [CreatedDate, UpdatedDate]. UpdatedDate alone has no lower bound to form
// a window with and matches nothing.
func (f Filters) matchDates(l Lead) bool {
	switch {
	case f.CreatedDate == "" && f.UpdatedDate == "":
		return true
	case f.UpdatedDate == "":
		return l.CreatedDay != "" && l.CreatedDay == f.CreatedDate
	case f.CreatedDate == "":
		return false
	default:
		return l.CreatedDay != "" && l.CreatedDay >= f.CreatedDate &&
			l.UpdatedDay != "" && l.UpdatedDay >= f.CreatedDate && l.UpdatedDay <= f.UpdatedDate
	}
}

// Apply returns the records matching f, preserving order.
func Apply(records []Lead, f Filters) []Lead {
	if !f.Active() {
		out := make([]Lead, len(records))
		copy(out, records)
		return out
	}
	out := make([]Lead, 0, len(records))
	for _, rec := range records {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Options are the distinct filter choices derived from a record set.
type Options struct {
	States []string            `json:"states"`
	Cities map[string][]string `json:"cities"`
}

// CitiesFor returns the city options scoped to state (case-insensitive).
func (o Options) CitiesFor(state string) []string {
	for s, cities := range o.Cities {
		if strings.EqualFold(s, state) {
			return cities
		}
	}
	return nil
}

// DeriveOptions collects state and per-state city options from the full,
// unfiltered record set.
func DeriveOptions(records []Lead) Options {
	stateSeen := map[string]string{}
	citySeen := map[string]map[string]string{}
	for _, rec := range records {
		state := strings.TrimSpace(rec.State)
		if state == "" {
			continue
		}
		key := strings.ToLower(state)
		if _, ok := stateSeen[key]; !ok {
			stateSeen[key] = state
			citySeen[key] = map[string]string{}
		}
		city := strings.TrimSpace(rec.City)
		if city != "" {
			if _, ok := citySeen[key][strings.ToLower(city)]; !ok {
				citySeen[key][strings.ToLower(city)] = city
			}
		}
	}

	opts := Options{States: make([]string, 0, len(stateSeen)), Cities: map[string][]string{}}
	for key, state := range stateSeen {
		opts.States = append(opts.States, state)
		cities := make([]string, 0, len(citySeen[key]))
		for _, city := range citySeen[key] {
			cities = append(cities, city)
		}
		sort.Strings(cities)
		opts.Cities[state] = cities
	}
	sort.Strings(opts.States)
	return opts
}
