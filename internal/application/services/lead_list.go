package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/leads"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
)

// ViewKey identifies one list view of a console session.
type ViewKey struct {
	View   leads.View
	Status leads.Status
}

func (k ViewKey) String() string {
	if k.View == leads.ViewStatus {
		return string(k.View) + ":" + strconv.Itoa(int(k.Status))
	}
	return string(k.View)
}

// ParseViewKey validates a view name and its optional status.
func ParseViewKey(view, status string) (ViewKey, error) {
	key := ViewKey{View: leads.View(strings.ToLower(strings.TrimSpace(view)))}
	if !key.View.Valid() {
		return ViewKey{}, apperrors.Validation("Unknown lead view")
	}
	if key.View != leads.ViewStatus {
		return key, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(status))
	if err != nil || !leads.Status(n).Valid() {
		return ViewKey{}, apperrors.Validation("A valid status is required for the status view")
	}
	key.Status = leads.Status(n)
	return key, nil
}

// FilterPatch changes some filters. Nil fields are left alone; any change
// returns the view to page 1.
type FilterPatch struct {
	Search      *string `json:"search"`
	Role        *int    `json:"role"`
	State       *string `json:"state"`
	City        *string `json:"city"`
	CreatedDate *string `json:"createdDate"`
	UpdatedDate *string `json:"updatedDate"`
	Page        *int    `json:"page"`
	Reset       bool    `json:"reset"`
}

// LeadRow is a lead with its display labels.
type LeadRow struct {
	leads.Lead
	StatusLabel string `json:"statusLabel"`
	RoleLabel   string `json:"roleLabel,omitempty"`
	BudgetLabel string `json:"budgetLabel,omitempty"`
}

// ListError describes the last failed fetch of a view.
type ListError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ListSnapshot is the rendered state of a list view.
type ListSnapshot struct {
	View          string           `json:"view"`
	Rows          []LeadRow        `json:"rows"`
	Total         int              `json:"total"`
	FilteredTotal int              `json:"filteredTotal"`
	Page          int              `json:"page"`
	TotalPages    int              `json:"totalPages"`
	Window        []leads.PageSlot `json:"window"`
	Filters       leads.Filters    `json:"filters"`
	States        []string         `json:"states"`
	Cities        []string         `json:"cities"`
	Loading       bool             `json:"loading"`
	Loaded        bool             `json:"loaded"`
	Error         *ListError       `json:"error,omitempty"`
	FetchedAt     *time.Time       `json:"fetchedAt,omitempty"`
}

// ListView holds the deduplicated records of one view with its filters and
// page. Fetches run without the lock; only the latest one is applied.
type ListView struct {
	key         ViewKey
	sessionID   string
	source      leads.Source
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker

	mu        sync.Mutex
	seq       uint64
	records   []leads.Lead
	options   leads.Options
	filters   leads.Filters
	page      int
	loading   bool
	loaded    bool
	lastErr   *apperrors.Error
	fetchedAt time.Time
}

// NewListView creates an empty view.
func NewListView(key ViewKey, sessionID string, source leads.Source, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *ListView {
	return &ListView{
		key:         key,
		sessionID:   sessionID,
		source:      source,
		logger:      logger,
		perfTracker: perfTracker,
		page:        1,
	}
}

// Key returns the view's key.
func (v *ListView) Key() ViewKey { return v.key }

// Refresh fetches the view for identity. On failure the previous records
// stay in place and the error is kept for display. A fetch overtaken by a
// newer one returns without touching the view.
func (v *ListView) Refresh(ctx context.Context, identity session.Identity, credential string) error {
	marker := v.perfTracker.StartOperation("leads:refresh:"+v.key.String(), v.sessionID)
	defer marker.Complete()

	v.mu.Lock()
	v.seq++
	seq := v.seq
	v.loading = true
	v.mu.Unlock()

	start := time.Now()
	records, err := v.source.FetchLeads(ctx, leads.FetchRequest{
		UserID:     identity.ID,
		Credential: credential,
		View:       v.key.View,
		Status:     v.key.Status,
	})

	v.mu.Lock()
	defer v.mu.Unlock()

	if seq != v.seq {
		v.logger.Leads().Debug("Discarding superseded lead fetch", "view", v.key.String(), "sessionId", logging.MaskID(v.sessionID))
		marker.SetError(errSuperseded)
		return errSuperseded
	}
	v.loading = false

	if err != nil {
		v.lastErr = apperrors.From(err)
		v.logger.Leads().Warn("Lead fetch failed",
			"view", v.key.String(),
			"sessionId", logging.MaskID(v.sessionID),
			"code", v.lastErr.Code,
			"kept", len(v.records),
			"duration", time.Since(start))
		marker.SetError(v.lastErr)
		return v.lastErr
	}

	v.records = leads.Dedupe(records)
	v.options = leads.DeriveOptions(v.records)
	v.page = leads.ClampPage(v.page, len(leads.Apply(v.records, v.filters)))
	v.lastErr = nil
	v.loaded = true
	v.fetchedAt = time.Now().UTC()

	v.logger.Leads().Info("Lead view refreshed",
		"view", v.key.String(),
		"sessionId", logging.MaskID(v.sessionID),
		"fetched", len(records),
		"unique", len(v.records),
		"duration", time.Since(start))
	marker.SetSuccess(true)
	return nil
}

// Apply applies patch atomically. A rejected date window leaves every
// filter unchanged.
func (v *ListView) Apply(patch FilterPatch) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	f := v.filters
	if patch.Reset {
		f = leads.Filters{}
	}
	if patch.Search != nil {
		f.Search = strings.TrimSpace(*patch.Search)
	}
	if patch.Role != nil {
		f.Role = *patch.Role
	}
	if patch.State != nil {
		f = f.WithState(*patch.State)
	}
	if patch.City != nil {
		f.City = strings.TrimSpace(*patch.City)
	}
	if patch.CreatedDate != nil || patch.UpdatedDate != nil {
		created, updated := f.CreatedDate, f.UpdatedDate
		if patch.CreatedDate != nil {
			created = *patch.CreatedDate
		}
		if patch.UpdatedDate != nil {
			updated = *patch.UpdatedDate
		}
		var err error
		if f, err = f.WithDates(created, updated); err != nil {
			return err
		}
	}

	if f != v.filters {
		v.filters = f
		v.page = 1
	}
	if patch.Page != nil {
		v.page = leads.ClampPage(*patch.Page, len(leads.Apply(v.records, v.filters)))
	}
	return nil
}

// SetPage moves to page, clamped to the filtered row count.
func (v *ListView) SetPage(page int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.page = leads.ClampPage(page, len(leads.Apply(v.records, v.filters)))
}

// Snapshot renders the current page.
func (v *ListView) Snapshot() ListSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	filtered := leads.Apply(v.records, v.filters)
	page := leads.ClampPage(v.page, len(filtered))
	totalPages := leads.TotalPages(len(filtered))

	rows := make([]LeadRow, 0, leads.PageSize)
	for _, l := range leads.Page(filtered, page) {
		row := LeadRow{Lead: l, StatusLabel: l.Status.String(), BudgetLabel: leads.BudgetLabel(l.Budget)}
		if l.Assignment.Role != 0 {
			row.RoleLabel = session.Role(l.Assignment.Role).String()
		}
		rows = append(rows, row)
	}

	snap := ListSnapshot{
		View:          v.key.String(),
		Rows:          rows,
		Total:         len(v.records),
		FilteredTotal: len(filtered),
		Page:          page,
		TotalPages:    totalPages,
		Window:        leads.PageWindow(page, totalPages),
		Filters:       v.filters,
		States:        v.options.States,
		Cities:        v.options.CitiesFor(v.filters.State),
		Loading:       v.loading,
		Loaded:        v.loaded,
	}
	if snap.States == nil {
		snap.States = []string{}
	}
	if snap.Cities == nil {
		snap.Cities = []string{}
	}
	if v.lastErr != nil {
		snap.Error = &ListError{Code: string(v.lastErr.Code), Message: v.lastErr.Message, Retryable: v.lastErr.Retryable()}
	}
	if !v.fetchedAt.IsZero() {
		at := v.fetchedAt
		snap.FetchedAt = &at
	}
	return snap
}

// Find returns the record with the given lead id or, for enquiries, row id.
func (v *ListView) Find(leadID, rowID int64) (leads.Lead, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, l := range v.records {
		if (leadID > 0 && l.LeadID == leadID) || (leadID == 0 && rowID > 0 && l.RowID == rowID) {
			return l, true
		}
	}
	return leads.Lead{}, false
}

// Clear drops all state and invalidates any fetch in flight.
func (v *ListView) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.seq++
	v.records = nil
	v.options = leads.Options{}
	v.filters = leads.Filters{}
	v.page = 1
	v.loading = false
	v.loaded = false
	v.lastErr = nil
	v.fetchedAt = time.Time{}
}
