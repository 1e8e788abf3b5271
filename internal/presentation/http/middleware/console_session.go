package middleware

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/application/services"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
)

// ConsoleSessionHeader lets non-browser clients name their console session
// instead of using the cookie.
const ConsoleSessionHeader = "X-Console-Session"

const (
	consoleSessionKey = "consoleSession"
	identityKey       = "identity"
	credentialKey     = "credential"
)

// CookieConfig controls the console session cookie.
type CookieConfig struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// ConsoleSessionMiddleware resolves the console session of the request,
// issuing a new id when the client has none.
func ConsoleSessionMiddleware(registry *services.SessionRegistry, cookie CookieConfig, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		sessionID := c.GetHeader(ConsoleSessionHeader)
		if sessionID == "" {
			sessionID, _ = c.Cookie(cookie.Name)
		}
		issued := false
		if !security.ValidULID(sessionID) {
			sessionID = security.GenerateULID()
			issued = true
		}

		marker := perfTracker.StartOperation("middleware_console_session", sessionID)
		defer marker.Complete()

		cs, err := registry.Open(c.Request.Context(), sessionID)
		if err != nil {
			logger.LogError(logging.ChannelHTTP, "open_console_session", err, sessionID, nil)
			marker.SetError(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "console session unavailable"})
			return
		}

		if issued {
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(cookie.Name, sessionID, int(cookie.MaxAge.Seconds()), "/", "", cookie.Secure, true)
			logger.HTTP().Debug("Issued console session", "sessionId", logging.MaskID(sessionID), "duration", time.Since(start))
		}
		marker.SetSuccess(true)

		c.Set(consoleSessionKey, cs)
		c.Next()
	}
}

// GetConsoleSession retrieves the console session from gin context.
func GetConsoleSession(c *gin.Context) (*services.ConsoleSession, bool) {
	v, exists := c.Get(consoleSessionKey)
	if !exists {
		return nil, false
	}
	cs, ok := v.(*services.ConsoleSession)
	return cs, ok
}

// RequireAuthenticated admits requests whose console session is
// Authenticated with an unexpired credential. An expired credential
// force-expires the session before the 401.
func RequireAuthenticated(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cs, ok := GetConsoleSession(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "console session not found"})
			return
		}

		snap := cs.Store.Snapshot()
		if !snap.Authenticated || snap.Identity == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    "Please sign in to continue",
				"code":     apperrors.CodeInvalidCredentials,
				"redirect": services.SignInPath,
			})
			return
		}
		if security.IsExpired(snap.Credential) {
			cs.Store.ForceExpire(c.Request.Context())
			logger.WithSession(logging.ChannelAuth, cs.ID).Info("Rejected request with expired credential", "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":    apperrors.ErrTokenExpired.Message,
				"code":     apperrors.CodeTokenExpired,
				"redirect": services.SignInPath,
			})
			return
		}

		c.Set(identityKey, *snap.Identity)
		c.Set(credentialKey, snap.Credential)
		c.Next()
	}
}

// GetIdentity returns the confirmed identity set by RequireAuthenticated.
func GetIdentity(c *gin.Context) (session.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return session.Identity{}, false
	}
	identity, ok := v.(session.Identity)
	return identity, ok
}

// GetCredential returns the bearer credential set by RequireAuthenticated.
func GetCredential(c *gin.Context) string {
	return c.GetString(credentialKey)
}
