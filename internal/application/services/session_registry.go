package services

import (
	"context"
	"sync"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/leads"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
)

// ConsoleSession bundles the per-browser state: the auth state machine, its
// route guard and the open list views.
type ConsoleSession struct {
	ID           string
	Store        *SessionStore
	Bootstrapper *Bootstrapper

	source      leads.Source
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker

	mu       sync.Mutex
	views    map[ViewKey]*ListView
	lastSeen time.Time
}

// View returns the list view for key, creating it on first use.
func (cs *ConsoleSession) View(key ViewKey) *ListView {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	v, ok := cs.views[key]
	if !ok {
		v = NewListView(key, cs.ID, cs.source, cs.logger, cs.perfTracker)
		cs.views[key] = v
	}
	return v
}

// LookupView returns the view for key if it was opened.
func (cs *ConsoleSession) LookupView(key ViewKey) (*ListView, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	v, ok := cs.views[key]
	return v, ok
}

// CloseView clears and forgets the view for key.
func (cs *ConsoleSession) CloseView(key ViewKey) {
	cs.mu.Lock()
	v, ok := cs.views[key]
	delete(cs.views, key)
	cs.mu.Unlock()
	if ok {
		v.Clear()
	}
}

// CloseViews clears every view. Used on logout and teardown.
func (cs *ConsoleSession) CloseViews() {
	cs.mu.Lock()
	views := cs.views
	cs.views = make(map[ViewKey]*ListView)
	cs.mu.Unlock()
	for _, v := range views {
		v.Clear()
	}
}

func (cs *ConsoleSession) touch(now time.Time) {
	cs.mu.Lock()
	cs.lastSeen = now
	cs.mu.Unlock()
}

func (cs *ConsoleSession) idleSince() time.Time {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.lastSeen
}

// RegistryConfig wires the dependencies shared by every console session.
type RegistryConfig struct {
	Storage        session.Storage
	Auth           AuthBackend
	Leads          leads.Source
	OTP            *OTPController
	Notifier       Notifier
	Region         string
	ResolveTimeout time.Duration
	IdleTTL        time.Duration
	RecordTTL      time.Duration
}

// SessionRegistry owns every live console session.
type SessionRegistry struct {
	cfg         RegistryConfig
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*ConsoleSession
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(cfg RegistryConfig, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SessionRegistry {
	if cfg.Notifier == nil {
		cfg.Notifier = discardNotifier{}
	}
	return &SessionRegistry{
		cfg:         cfg,
		logger:      logger,
		perfTracker: perfTracker,
		now:         time.Now,
		sessions:    make(map[string]*ConsoleSession),
	}
}

// Open returns the console session for id, creating and hydrating it when
// it is not live.
func (r *SessionRegistry) Open(ctx context.Context, id string) (*ConsoleSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cs, ok := r.sessions[id]; ok {
		cs.touch(r.now())
		return cs, nil
	}

	store := NewSessionStore(id, r.cfg.Storage, r.cfg.Auth, r.cfg.OTP, r.cfg.Notifier, r.cfg.Region, r.logger, r.perfTracker)
	if err := store.Hydrate(ctx); err != nil {
		r.logger.LogError(logging.ChannelStorage, "hydrate_session", err, id, nil)
		return nil, err
	}
	cs := &ConsoleSession{
		ID:           id,
		Store:        store,
		Bootstrapper: NewBootstrapper(store, r.cfg.Auth, r.cfg.Notifier, r.cfg.ResolveTimeout, r.logger, r.perfTracker),
		source:       r.cfg.Leads,
		logger:       r.logger,
		perfTracker:  r.perfTracker,
		views:        make(map[ViewKey]*ListView),
		lastSeen:     r.now(),
	}
	r.sessions[id] = cs
	r.logger.Auth().Debug("Console session opened", "sessionId", logging.MaskID(id), "state", store.Snapshot().State)
	return cs, nil
}

// Close tears down the live session for id. The persisted record is kept.
func (r *SessionRegistry) Close(_ context.Context, id string) {
	r.mu.Lock()
	cs, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		r.teardown(cs)
	}
}

// closeIfIdle closes id only if it has not been seen since cutoff. The
// check and the removal happen under one lock so a concurrent Open keeps
// the session alive.
func (r *SessionRegistry) closeIfIdle(_ context.Context, id string, cutoff time.Time) bool {
	r.mu.Lock()
	cs, ok := r.sessions[id]
	if !ok || !cs.idleSince().Before(cutoff) {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	r.mu.Unlock()

	r.teardown(cs)
	return true
}

func (r *SessionRegistry) teardown(cs *ConsoleSession) {
	cs.CloseViews()
	if closer, ok := r.cfg.Notifier.(interface{ CloseSession(string) }); ok {
		closer.CloseSession(cs.ID)
	}
	r.logger.Auth().Debug("Console session closed", "sessionId", logging.MaskID(cs.ID))
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ConsoleStats counts live sessions by state and activity.
func (r *SessionRegistry) ConsoleStats() messaging.ConsoleStats {
	r.mu.Lock()
	live := make([]*ConsoleSession, 0, len(r.sessions))
	for _, cs := range r.sessions {
		live = append(live, cs)
	}
	r.mu.Unlock()

	now := r.now()
	stats := messaging.ConsoleStats{Total: len(live)}
	for _, cs := range live {
		switch cs.Store.Snapshot().State {
		case session.StateAuthenticated:
			stats.Authenticated++
		case session.StateAwaitingOtp:
			stats.AwaitingOtp++
		}
		if now.Sub(cs.idleSince()) <= 15*time.Minute {
			stats.Active++
		} else {
			stats.Dormant++
		}
	}
	return stats
}

// EvictIdle closes sessions idle for longer than the configured TTL and
// returns how many were closed.
func (r *SessionRegistry) EvictIdle(ctx context.Context) int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.cfg.IdleTTL)

	evicted := 0
	for _, id := range r.idleSessions(cutoff) {
		if r.closeIfIdle(ctx, id, cutoff) {
			evicted++
		}
	}
	return evicted
}

// idleSessions lists the sessions not seen since cutoff.
func (r *SessionRegistry) idleSessions(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []string
	for id, cs := range r.sessions {
		if cs.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	return idle
}

// recordPurger is implemented by storages that can drop stale records.
type recordPurger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartCleanup evicts idle sessions and purges stale persisted records
// every interval until ctx is done.
func (r *SessionRegistry) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.System().Info("Session cleanup worker started", "interval", interval, "idleTTL", r.cfg.IdleTTL)
	for {
		select {
		case <-ctx.Done():
			r.logger.Shutdown().Info("Session cleanup worker stopping")
			return
		case <-ticker.C:
			r.performCleanup(ctx)
		}
	}
}

func (r *SessionRegistry) performCleanup(ctx context.Context) {
	start := time.Now()
	evicted := r.EvictIdle(ctx)

	var purged int64
	if purger, ok := r.cfg.Storage.(recordPurger); ok && r.cfg.RecordTTL > 0 {
		n, err := purger.PurgeOlderThan(ctx, r.now().Add(-r.cfg.RecordTTL))
		if err != nil {
			r.logger.LogError(logging.ChannelStorage, "purge_records", err, "", nil)
		}
		purged = n
	}

	if evicted > 0 || purged > 0 {
		r.logger.System().Info("Session cleanup finished", "evicted", evicted, "purged", purged, "live", r.Len(), "duration", time.Since(start))
	}
}
