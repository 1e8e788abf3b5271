package services

import (
	"context"
	"testing"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/leads"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
)

func newTestRegistry(h *harness, idleTTL time.Duration) *SessionRegistry {
	return NewSessionRegistry(RegistryConfig{
		Storage:        h.storage,
		Auth:           h.auth,
		Leads:          &fakeSource{},
		OTP:            h.otp,
		Notifier:       h.notifier,
		Region:         "IN",
		ResolveTimeout: time.Second,
		IdleTTL:        idleTTL,
	}, h.logger, h.tracker)
}

func TestSessionRegistry_OpenReturnsSameSession(t *testing.T) {
	h := newHarness(t)
	r := newTestRegistry(h, time.Hour)

	a, err := r.Open(context.Background(), "01HZXA")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	b, err := r.Open(context.Background(), "01HZXA")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if a != b {
		t.Fatal("Open() returned a different session for the same id")
	}
	if a.View(ViewKey{View: leads.ViewAll}) != b.View(ViewKey{View: leads.ViewAll}) {
		t.Error("View() returned a different view for the same key")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestSessionRegistry_OpenHydratesPersistedRecord(t *testing.T) {
	h := newHarness(t)
	h.authenticate(t, mustToken(t, testIdentity.ID, time.Hour))
	r := newTestRegistry(h, time.Hour)

	cs, err := r.Open(context.Background(), h.store.ID())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !cs.Store.Snapshot().Authenticated {
		t.Error("persisted record was not restored")
	}
	if got := r.ConsoleStats(); got.Authenticated != 1 || got.Active != 1 {
		t.Errorf("ConsoleStats() = %+v", got)
	}
}

func TestSessionRegistry_EvictIdle(t *testing.T) {
	h := newHarness(t)
	r := newTestRegistry(h, 30*time.Minute)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if _, err := r.Open(context.Background(), "old"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	now = now.Add(20 * time.Minute)
	if _, err := r.Open(context.Background(), "fresh"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	stats := r.ConsoleStats()
	want := messaging.ConsoleStats{Total: 2, Active: 1, Dormant: 1}
	if stats != want {
		t.Errorf("ConsoleStats() = %+v, want %+v", stats, want)
	}

	now = now.Add(15 * time.Minute)
	if n := r.EvictIdle(context.Background()); n != 1 {
		t.Fatalf("EvictIdle() = %d, want 1", n)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestSessionRegistry_CloseClearsViews(t *testing.T) {
	h := newHarness(t)
	r := newTestRegistry(h, time.Hour)
	cs, err := r.Open(context.Background(), "01HZXB")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	key := ViewKey{View: leads.ViewToday}
	cs.View(key)
	if _, ok := cs.LookupView(key); !ok {
		t.Fatal("LookupView() did not find an opened view")
	}

	r.Close(context.Background(), "01HZXB")
	if _, ok := cs.LookupView(key); ok {
		t.Error("view survived Close()")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestSessionRegistry_EvictionSparesSessionSeenAgain(t *testing.T) {
	h := newHarness(t)
	r := newTestRegistry(h, 30*time.Minute)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if _, err := r.Open(context.Background(), "returning"); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	now = now.Add(45 * time.Minute)
	cutoff := now.Add(-30 * time.Minute)

	idle := r.idleSessions(cutoff)
	if len(idle) != 1 || idle[0] != "returning" {
		t.Fatalf("idleSessions() = %v, want [returning]", idle)
	}

	// The session is used again between the scan and the close.
	cs, err := r.Open(context.Background(), "returning")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if r.closeIfIdle(context.Background(), "returning", cutoff) {
		t.Fatal("closeIfIdle() closed a session that was just used")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	again, err := r.Open(context.Background(), "returning")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if again != cs {
		t.Error("Open() returned a new session, want the live one")
	}
}
