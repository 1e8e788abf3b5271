package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sync"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/security"
	"golang.org/x/sync/singleflight"
)

const (
	// SignInPath is where rejected evaluations are redirected.
	SignInPath = "/signin"
	// TokenParam is the query parameter carrying a URL credential.
	TokenParam = "token"
)

// GuardStatus is the tri-state outcome of a guard evaluation.
type GuardStatus string

const (
	GuardLoading       GuardStatus = "loading"
	GuardAuthenticated GuardStatus = "authenticated"
	GuardRejected      GuardStatus = "rejected"
)

// BootstrapRequest is a navigation to a protected path, optionally
// carrying a credential in the URL.
type BootstrapRequest struct {
	Token string
	Path  string
}

// Decision tells the caller whether to render, wait or redirect. StripToken
// is set whenever the request carried a token; the caller must drop it
// from the visible URL.
type Decision struct {
	Status     GuardStatus `json:"status"`
	Redirect   string      `json:"redirect,omitempty"`
	StripToken bool        `json:"stripToken"`
	Reason     string      `json:"reason,omitempty"`
}

// Bootstrapper decides whether a console session may enter a protected
// path. A URL credential wins over the persisted one and is resolved at
// most once; evaluations without one wait for any resolution in flight.
type Bootstrapper struct {
	store          *SessionStore
	auth           AuthBackend
	notifier       Notifier
	resolveTimeout time.Duration
	logger         *logging.ChanneledLogger
	perfTracker    *performance.Tracker
	now            func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	processed map[string]bool
	pending   int
	idle      chan struct{}
	status    GuardStatus
}

// NewBootstrapper creates a bootstrapper for store.
func NewBootstrapper(store *SessionStore, auth AuthBackend, notifier Notifier, resolveTimeout time.Duration, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *Bootstrapper {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &Bootstrapper{
		store:          store,
		auth:           auth,
		notifier:       notifier,
		resolveTimeout: resolveTimeout,
		logger:         logger,
		perfTracker:    perfTracker,
		now:            time.Now,
		processed:      make(map[string]bool),
		status:         GuardLoading,
	}
}

// Status reports loading until the first evaluation settles and while a URL
// credential is being resolved. Otherwise it follows the store, so a logout
// or an expiry shows up without another evaluation.
func (b *Bootstrapper) Status() GuardStatus {
	b.mu.Lock()
	status, pending := b.status, b.pending
	b.mu.Unlock()
	if pending > 0 || status == GuardLoading {
		return GuardLoading
	}

	_, credential, ok := b.store.credentials()
	if ok && !security.IsExpiredAt(credential, b.now()) {
		return GuardAuthenticated
	}
	return GuardRejected
}

// Evaluate runs the guard for req.
func (b *Bootstrapper) Evaluate(ctx context.Context, req BootstrapRequest) Decision {
	marker := b.perfTracker.StartOperation("bootstrap:evaluate", b.store.ID())
	defer marker.Complete()

	if req.Token != "" {
		if decision, resolved := b.evaluateToken(ctx, req); resolved {
			marker.AddMetadata("source", "url")
			marker.SetSuccess(decision.Status == GuardAuthenticated)
			return decision
		}
	}

	decision := b.evaluatePersisted(ctx, req.Path)
	decision.StripToken = req.Token != ""
	if decision.StripToken && decision.Status == GuardAuthenticated {
		decision.Redirect = cleanPath(req.Path)
	}
	marker.AddMetadata("source", "persisted")
	marker.SetSuccess(decision.Status == GuardAuthenticated)
	return decision
}

type tokenOutcome struct {
	decision Decision
	skipped  bool
}

// evaluateToken resolves the URL credential once. Concurrent evaluations of
// the same token share one resolution. resolved is false when the token
// was already processed, in which case the persisted path decides.
func (b *Bootstrapper) evaluateToken(ctx context.Context, req BootstrapRequest) (Decision, bool) {
	key := tokenKey(req.Token)

	v, _, _ := b.group.Do(key, func() (any, error) {
		b.mu.Lock()
		if b.processed[key] {
			b.mu.Unlock()
			return tokenOutcome{skipped: true}, nil
		}
		b.processed[key] = true
		b.pending++
		if b.idle == nil {
			b.idle = make(chan struct{})
		}
		b.status = GuardLoading
		b.mu.Unlock()

		decision := b.resolveToken(ctx, req.Token)

		b.mu.Lock()
		b.pending--
		if b.pending == 0 {
			close(b.idle)
			b.idle = nil
		}
		b.status = decision.Status
		b.mu.Unlock()
		return tokenOutcome{decision: decision}, nil
	})

	outcome := v.(tokenOutcome)
	if outcome.skipped {
		return Decision{}, false
	}
	decision := outcome.decision
	decision.StripToken = true
	if decision.Status == GuardAuthenticated {
		decision.Redirect = cleanPath(req.Path)
	}
	return decision, true
}

func (b *Bootstrapper) resolveToken(ctx context.Context, token string) Decision {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.resolveTimeout)
	defer cancel()

	start := time.Now()
	reject := func(err *apperrors.Error) Decision {
		b.logger.Bootstrap().Warn("URL credential rejected",
			"sessionId", logging.MaskID(b.store.ID()),
			"code", err.Code,
			"duration", time.Since(start))
		b.notifier.Notify(b.store.ID(), messaging.Notification{Level: messaging.LevelError, Message: err.Message, Code: string(err.Code)})
		return Decision{Status: GuardRejected, Redirect: SignInPath, Reason: string(err.Code)}
	}

	if security.IsExpiredAt(token, b.now()) {
		return reject(apperrors.ErrTokenExpired)
	}
	userID, err := security.UserIDFromToken(token)
	if err != nil {
		return reject(apperrors.Wrap(apperrors.KindDecode, apperrors.CodeInvalidCredentials, "Invalid sign-in link", err))
	}

	identity, err := b.auth.UserByID(ctx, userID, token)
	if err != nil {
		return reject(apperrors.From(err))
	}
	if !identity.HasCRMAccess() {
		return reject(apperrors.ErrAccessDenied)
	}
	if identity.ID == 0 {
		identity.ID = userID
	}
	if err := b.store.AdoptCredential(ctx, identity, token); err != nil {
		return reject(apperrors.Wrap(apperrors.KindServer, apperrors.CodeServerFailure, "Could not save the session", err))
	}

	b.logger.Bootstrap().Info("URL credential admitted",
		"sessionId", logging.MaskID(b.store.ID()),
		"userId", identity.ID,
		"duration", time.Since(start))
	return Decision{Status: GuardAuthenticated}
}

// evaluatePersisted admits an unexpired persisted credential once no URL
// credential is being resolved.
func (b *Bootstrapper) evaluatePersisted(ctx context.Context, path string) Decision {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()
	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			return Decision{Status: GuardLoading}
		}
	}

	decision := b.persistedDecision(ctx, path)
	b.mu.Lock()
	if b.pending == 0 {
		b.status = decision.Status
	}
	b.mu.Unlock()
	return decision
}

func (b *Bootstrapper) persistedDecision(ctx context.Context, path string) Decision {
	_, credential, ok := b.store.credentials()
	if !ok {
		return Decision{Status: GuardRejected, Redirect: signInRedirect(path)}
	}
	if security.IsExpiredAt(credential, b.now()) {
		b.store.ForceExpire(ctx)
		return Decision{Status: GuardRejected, Redirect: signInRedirect(path), Reason: string(apperrors.CodeTokenExpired)}
	}
	return Decision{Status: GuardAuthenticated}
}

func signInRedirect(path string) string {
	path = cleanPath(path)
	if path == "" || path == "/" {
		return SignInPath
	}
	return SignInPath + "?next=" + url.QueryEscape(path)
}

// cleanPath returns path with the token parameter removed. Absolute URLs
// collapse to the root so redirects stay on this origin.
func cleanPath(path string) string {
	u, err := url.Parse(path)
	if err != nil || u.IsAbs() || u.Host != "" {
		return "/"
	}
	q := u.Query()
	q.Del(TokenParam)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	if u.Path == "" {
		u.Path = "/"
	}
	return u.RequestURI()
}

// tokenKey identifies a token without keeping the credential itself as a map key.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
