package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/application/services"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/leads"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// LeadHandlers serves the lead list views and lead mutations
type LeadHandlers struct {
	leadService *services.LeadService
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewLeadHandlers creates lead handlers with injected dependencies
func NewLeadHandlers(leadService *services.LeadService, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *LeadHandlers {
	return &LeadHandlers{
		leadService: leadService,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// authed collects what every protected lead handler needs.
type authed struct {
	cs         *services.ConsoleSession
	identity   session.Identity
	credential string
}

func (h *LeadHandlers) authed(c *gin.Context) (authed, bool) {
	cs, ok := consoleSession(c)
	if !ok {
		return authed{}, false
	}
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Please sign in to continue"})
		return authed{}, false
	}
	return authed{cs: cs, identity: identity, credential: middleware.GetCredential(c)}, true
}

func (h *LeadHandlers) viewKey(c *gin.Context) (services.ViewKey, bool) {
	key, err := services.ParseViewKey(c.Param("view"), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return services.ViewKey{}, false
	}
	return key, true
}

// GetView handles GET /api/v1/leads/views/:view - the current page of a
// view, fetching it on first use
func (h *LeadHandlers) GetView(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	key, ok := h.viewKey(c)
	if !ok {
		return
	}

	view := a.cs.View(key)
	if snap := view.Snapshot(); !snap.Loaded && !snap.Loading && snap.Error == nil {
		if err := view.Refresh(c.Request.Context(), a.identity, a.credential); err != nil && h.expireOnAuth(c, a.cs, err) {
			return
		}
	}
	if pageStr := c.Query("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			respondError(c, apperrors.Validation("page must be a number"))
			return
		}
		view.SetPage(page)
	}
	c.JSON(http.StatusOK, view.Snapshot())
}

// PostRefreshView handles POST /api/v1/leads/views/:view/refresh. A failed
// fetch keeps the previous rows; the snapshot carries the error.
func (h *LeadHandlers) PostRefreshView(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	key, ok := h.viewKey(c)
	if !ok {
		return
	}

	start := time.Now()
	view := a.cs.View(key)
	err := view.Refresh(c.Request.Context(), a.identity, a.credential)
	if err != nil && h.expireOnAuth(c, a.cs, err) {
		return
	}
	h.logger.Leads().Debug("View refresh requested",
		"sessionId", logging.MaskID(a.cs.ID),
		"view", key.String(),
		"failed", err != nil,
		"duration", time.Since(start))
	c.JSON(http.StatusOK, view.Snapshot())
}

// PatchViewFilters handles PATCH /api/v1/leads/views/:view/filters
func (h *LeadHandlers) PatchViewFilters(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	key, ok := h.viewKey(c)
	if !ok {
		return
	}

	var patch services.FilterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter request", "code": apperrors.CodeInvalidInput})
		return
	}
	view := a.cs.View(key)
	if err := view.Apply(patch); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view.Snapshot())
}

// DeleteView handles DELETE /api/v1/leads/views/:view - drops the view's
// records when the console navigates away
func (h *LeadHandlers) DeleteView(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	key, ok := h.viewKey(c)
	if !ok {
		return
	}
	a.cs.CloseView(key)
	c.Status(http.StatusNoContent)
}

type catalogEntry struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

// GetCatalog handles GET /api/v1/leads/catalog - lead statuses and
// assignable roles with their labels
func (h *LeadHandlers) GetCatalog(c *gin.Context) {
	statuses := make([]catalogEntry, 0, 8)
	for _, s := range leads.Statuses() {
		statuses = append(statuses, catalogEntry{ID: int(s), Label: s.String()})
	}
	roles := make([]catalogEntry, 0, 5)
	for _, r := range session.AssignableRoles() {
		roles = append(roles, catalogEntry{ID: int(r), Label: r.String()})
	}
	c.JSON(http.StatusOK, gin.H{
		"statuses": statuses,
		"roles":    roles,
		"pageSize": leads.PageSize,
	})
}

// GetHistory handles GET /api/v1/leads/:leadId/history
func (h *LeadHandlers) GetHistory(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	leadID, ok := int64Param(c, "leadId")
	if !ok {
		return
	}
	updates, err := h.leadService.History(c.Request.Context(), a.credential, leadID)
	if err != nil {
		respondBackendError(c, a.cs, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leadId": leadID, "updates": updates})
}

// PostCreateLead handles POST /api/v1/leads
func (h *LeadHandlers) PostCreateLead(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	var in leads.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lead request", "code": apperrors.CodeInvalidInput})
		return
	}
	if in.AddedUserID == 0 {
		in.AddedUserID = a.identity.ID
		in.AddedUserType = int(a.identity.Role)
	}

	leadID, err := h.leadService.Create(c.Request.Context(), a.credential, in)
	if err != nil {
		respondBackendError(c, a.cs, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "leadId": leadID})
}

type assignRequest struct {
	View       string            `json:"view" binding:"required"`
	Status     string            `json:"status"`
	LeadID     int64             `json:"leadId"`
	RowID      int64             `json:"rowId"`
	Assignment leads.AssignInput `json:"assignment"`
}

// PostAssignLead handles POST /api/v1/leads/assign. The lead is looked up in
// the named view; enquiries are promoted before they are assigned.
func (h *LeadHandlers) PostAssignLead(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid assignment request", "code": apperrors.CodeInvalidInput})
		return
	}
	key, err := services.ParseViewKey(req.View, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	var lead leads.Lead
	found := false
	if view, ok := a.cs.LookupView(key); ok {
		lead, found = view.Find(req.LeadID, req.RowID)
	}
	if !found {
		respondError(c, apperrors.New(apperrors.KindNotFound, apperrors.CodeNotFound, "Lead not found in this view"))
		return
	}

	env, err := h.leadService.Assign(c.Request.Context(), a.credential, lead, a.identity, req.Assignment)
	if err != nil {
		respondBackendError(c, a.cs, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": env.Message, "leadId": env.LeadID})
}

// PostBooking handles POST /api/v1/leads/:leadId/booking
func (h *LeadHandlers) PostBooking(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	leadID, ok := int64Param(c, "leadId")
	if !ok {
		return
	}
	var in leads.BookingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking request", "code": apperrors.CodeInvalidInput})
		return
	}
	in.LeadID = leadID
	if in.EmployeeID == 0 {
		in.EmployeeID = a.identity.ID
	}

	env, err := h.leadService.MarkBooked(c.Request.Context(), a.credential, in)
	if err != nil {
		respondBackendError(c, a.cs, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": env.Message})
}

// PostStatus handles POST /api/v1/leads/:leadId/status
func (h *LeadHandlers) PostStatus(c *gin.Context) {
	a, ok := h.authed(c)
	if !ok {
		return
	}
	leadID, ok := int64Param(c, "leadId")
	if !ok {
		return
	}
	var in leads.StatusUpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status request", "code": apperrors.CodeInvalidInput})
		return
	}
	in.LeadID = leadID
	in.EmployeeID = a.identity.ID
	in.EmployeeType = int(a.identity.Role)
	in.EmployeeName = a.identity.Name
	in.EmployeePhone = a.identity.Mobile

	env, err := h.leadService.UpdateStatus(c.Request.Context(), a.credential, in)
	if err != nil {
		respondBackendError(c, a.cs, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": env.Message})
}

// expireOnAuth ends the session and answers 401 when the backend no longer
// accepts the credential. It reports whether it wrote the response.
func (h *LeadHandlers) expireOnAuth(c *gin.Context, cs *services.ConsoleSession, err error) bool {
	if !errors.Is(err, apperrors.ErrInvalidCredentials) && !errors.Is(err, apperrors.ErrTokenExpired) {
		return false
	}
	cs.CloseViews()
	respondBackendError(c, cs, err)
	return true
}
