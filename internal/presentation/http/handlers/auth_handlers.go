package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/application/services"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/gin-gonic/gin"
)

// AuthHandlers contains the sign-in, challenge and guard handlers
type AuthHandlers struct {
	otp         *services.OTPController
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewAuthHandlers creates auth handlers with injected dependencies
func NewAuthHandlers(otp *services.OTPController, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *AuthHandlers {
	return &AuthHandlers{
		otp:         otp,
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// sessionView is the JSON shape of a console session's auth state.
type sessionView struct {
	Session           session.Snapshot  `json:"session"`
	Legacy            map[string]string `json:"legacy"`
	ResendAvailableAt *time.Time        `json:"resendAvailableAt,omitempty"`
}

func viewOf(cs *services.ConsoleSession) sessionView {
	snap := cs.Store.Snapshot()
	view := sessionView{Session: snap, Legacy: cs.Store.Record().Legacy()}
	if at := services.NextResendAt(snap.Challenge); !at.IsZero() {
		view.ResendAvailableAt = &at
	}
	return view
}

// PostLogin handles POST /api/v1/auth/login - starts a login and sends the code
func (h *AuthHandlers) PostLogin(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}

	var req struct {
		Mobile  string `json:"mobile" binding:"required"`
		Channel string `json:"channel"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Auth().Debug("Login request JSON binding failed", "sessionId", logging.MaskID(cs.ID), "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a valid mobile number"})
		return
	}

	if err := cs.Store.BeginLogin(c.Request.Context(), req.Mobile, session.Channel(req.Channel)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(cs))
}

// PostOtp handles POST /api/v1/auth/otp - verifies the entered code
func (h *AuthHandlers) PostOtp(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please enter the code you received"})
		return
	}

	if err := cs.Store.SubmitOtp(c.Request.Context(), req.Code); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(cs))
}

// PostResendOtp handles POST /api/v1/auth/otp/resend
func (h *AuthHandlers) PostResendOtp(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}
	if err := h.otp.Resend(c.Request.Context(), cs.Store); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(cs))
}

// PostCancelOtp handles POST /api/v1/auth/otp/cancel
func (h *AuthHandlers) PostCancelOtp(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}
	if err := h.otp.Cancel(c.Request.Context(), cs.Store); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(cs))
}

// PostLogout handles POST /api/v1/auth/logout - clears the session and its views
func (h *AuthHandlers) PostLogout(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}
	cs.CloseViews()
	if err := cs.Store.Logout(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "redirect": services.SignInPath})
}

// GetSession handles GET /api/v1/auth/session
func (h *AuthHandlers) GetSession(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewOf(cs))
}

// PostRefreshProfile handles POST /api/v1/auth/profile/refresh
func (h *AuthHandlers) PostRefreshProfile(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}
	identity, err := cs.Store.RefreshProfile(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": identity})
}

// GetGuard handles GET /api/v1/auth/guard?token=&next= - the route guard
// evaluation for a navigation to next
func (h *AuthHandlers) GetGuard(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}

	start := time.Now()
	marker := h.perfTracker.StartOperation("get_guard_request", cs.ID)
	defer marker.Complete()

	next := c.DefaultQuery("next", "/")
	decision := cs.Bootstrapper.Evaluate(c.Request.Context(), services.BootstrapRequest{
		Token: c.Query(services.TokenParam),
		Path:  next,
	})

	h.logger.Bootstrap().Debug("Guard evaluated",
		"sessionId", logging.MaskID(cs.ID),
		"status", decision.Status,
		"stripToken", decision.StripToken,
		"duration", time.Since(start))
	marker.SetSuccess(decision.Status != services.GuardLoading)
	c.JSON(http.StatusOK, decision)
}

// GetGuardStatus handles GET /api/v1/auth/guard/status
func (h *AuthHandlers) GetGuardStatus(c *gin.Context) {
	cs, ok := consoleSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": cs.Bootstrapper.Status()})
}
