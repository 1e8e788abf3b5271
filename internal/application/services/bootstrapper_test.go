package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
)

func newTestBootstrapper(h *harness) *Bootstrapper {
	h.auth.set(func(f *fakeAuth) {
		f.users[testIdentity.ID] = testIdentity
		f.users[7] = session.Identity{ID: 7, Name: "No Access", Role: session.RoleTelecaller, CRMAccess: 0}
	})
	return NewBootstrapper(h.store, h.auth, h.notifier, time.Second, h.logger, h.tracker)
}

func TestBootstrapper_URLTokenAdmitsAndStrips(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)
	if b.Status() != GuardLoading {
		t.Fatalf("initial Status() = %s, want loading", b.Status())
	}
	token := mustToken(t, testIdentity.ID, time.Hour)

	got := b.Evaluate(context.Background(), BootstrapRequest{Token: token, Path: "/leads?token=" + token + "&page=2"})
	if got.Status != GuardAuthenticated || !got.StripToken {
		t.Fatalf("Evaluate() = %+v", got)
	}
	if got.Redirect != "/leads?page=2" {
		t.Errorf("Redirect = %q, want /leads?page=2", got.Redirect)
	}
	snap := h.store.Snapshot()
	if snap.State != session.StateAuthenticated || snap.Credential != token {
		t.Fatalf("store snapshot = %+v", snap)
	}
	if h.storage.Len() != 1 {
		t.Errorf("stored records = %d, want 1", h.storage.Len())
	}
	if b.Status() != GuardAuthenticated {
		t.Errorf("Status() = %s, want authenticated", b.Status())
	}
}

func TestBootstrapper_TokenProcessedOnce(t *testing.T) {
	tests := []struct {
		name       string
		userID     int64
		wantFirst  GuardStatus
		wantSecond GuardStatus
	}{
		{name: "admitted token", userID: testIdentity.ID, wantFirst: GuardAuthenticated, wantSecond: GuardAuthenticated},
		{name: "rejected token", userID: 7, wantFirst: GuardRejected, wantSecond: GuardRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := newTestBootstrapper(h)
			token := mustToken(t, tt.userID, time.Hour)
			req := BootstrapRequest{Token: token, Path: "/leads"}

			first := b.Evaluate(context.Background(), req)
			second := b.Evaluate(context.Background(), req)
			if first.Status != tt.wantFirst || second.Status != tt.wantSecond {
				t.Fatalf("decisions = %s, %s; want %s, %s", first.Status, second.Status, tt.wantFirst, tt.wantSecond)
			}
			if !second.StripToken {
				t.Error("a repeated token must still be stripped")
			}
			if n := h.auth.userCalls.Load(); n != 1 {
				t.Errorf("user lookups = %d, want 1", n)
			}
		})
	}
}

func TestBootstrapper_RejectsWithoutCRMAccess(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)

	got := b.Evaluate(context.Background(), BootstrapRequest{Token: mustToken(t, 7, time.Hour), Path: "/leads"})
	if got.Status != GuardRejected || got.Redirect != SignInPath {
		t.Fatalf("Evaluate() = %+v", got)
	}
	if got.Reason != string(apperrors.CodeAccessDenied) {
		t.Errorf("Reason = %q, want AccessDenied", got.Reason)
	}
	if h.store.Snapshot().State != session.StateAnonymous || h.storage.Len() != 0 {
		t.Error("a rejected token must not be adopted")
	}
	if n := h.notifier.last(); n.Code != string(apperrors.CodeAccessDenied) {
		t.Errorf("notification = %+v", n)
	}
}

func TestBootstrapper_ExpiredTokenSkipsBackend(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)

	got := b.Evaluate(context.Background(), BootstrapRequest{Token: mustToken(t, testIdentity.ID, -time.Hour), Path: "/leads"})
	if got.Status != GuardRejected || got.Reason != string(apperrors.CodeTokenExpired) {
		t.Fatalf("Evaluate() = %+v", got)
	}
	if n := h.auth.userCalls.Load(); n != 0 {
		t.Errorf("user lookups = %d, want 0", n)
	}
}

func TestBootstrapper_MalformedToken(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)

	got := b.Evaluate(context.Background(), BootstrapRequest{Token: "not.a.jwt", Path: "/"})
	if got.Status != GuardRejected || !got.StripToken {
		t.Fatalf("Evaluate() = %+v", got)
	}
	if h.auth.userCalls.Load() != 0 {
		t.Error("a malformed token must not reach the backend")
	}
}

func TestBootstrapper_FailedTokenKeepsExistingSession(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)
	existing := mustToken(t, testIdentity.ID, time.Hour)
	h.authenticate(t, existing)

	got := b.Evaluate(context.Background(), BootstrapRequest{Token: mustToken(t, 7, time.Hour), Path: "/leads"})
	if got.Status != GuardRejected {
		t.Fatalf("Evaluate() = %+v", got)
	}
	snap := h.store.Snapshot()
	if snap.State != session.StateAuthenticated || snap.Credential != existing {
		t.Errorf("existing session was replaced: %+v", snap)
	}
}

func TestBootstrapper_ConcurrentEvaluationsShareResolution(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)
	release := make(chan struct{})
	h.auth.set(func(f *fakeAuth) {
		f.userHook = func(ctx context.Context, userID int64) (session.Identity, error) {
			<-release
			return testIdentity, nil
		}
	})
	token := mustToken(t, testIdentity.ID, time.Hour)

	var wg sync.WaitGroup
	decisions := make([]Decision, 4)
	for i := range decisions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decisions[i] = b.Evaluate(context.Background(), BootstrapRequest{Token: token, Path: "/leads"})
		}(i)
	}
	waitFor(t, func() bool { return h.auth.userCalls.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, d := range decisions {
		if d.Status != GuardAuthenticated || !d.StripToken {
			t.Errorf("decision %d = %+v", i, d)
		}
	}
	if n := h.auth.userCalls.Load(); n != 1 {
		t.Errorf("user lookups = %d, want 1", n)
	}
}

func TestBootstrapper_PersistedWaitsForURLResolution(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)
	release := make(chan struct{})
	h.auth.set(func(f *fakeAuth) {
		f.userHook = func(ctx context.Context, userID int64) (session.Identity, error) {
			<-release
			return testIdentity, nil
		}
	})

	token := mustToken(t, testIdentity.ID, time.Hour)
	urlDone := make(chan Decision, 1)
	go func() {
		urlDone <- b.Evaluate(context.Background(), BootstrapRequest{Token: token, Path: "/leads"})
	}()
	waitFor(t, func() bool { return h.auth.userCalls.Load() == 1 })
	if b.Status() != GuardLoading {
		t.Fatalf("Status() during resolution = %s, want loading", b.Status())
	}

	persistedDone := make(chan Decision, 1)
	go func() {
		persistedDone <- b.Evaluate(context.Background(), BootstrapRequest{Path: "/leads"})
	}()
	select {
	case d := <-persistedDone:
		t.Fatalf("persisted evaluation decided before the URL credential resolved: %+v", d)
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	if d := <-urlDone; d.Status != GuardAuthenticated {
		t.Fatalf("URL decision = %+v", d)
	}
	if d := <-persistedDone; d.Status != GuardAuthenticated || d.StripToken {
		t.Fatalf("persisted decision = %+v", d)
	}
}

func TestBootstrapper_PersistedWaitHonorsContext(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)
	release := make(chan struct{})
	defer close(release)
	h.auth.set(func(f *fakeAuth) {
		f.userHook = func(ctx context.Context, userID int64) (session.Identity, error) {
			<-release
			return testIdentity, nil
		}
	})

	go b.Evaluate(context.Background(), BootstrapRequest{Token: mustToken(t, testIdentity.ID, time.Hour), Path: "/"})
	waitFor(t, func() bool { return h.auth.userCalls.Load() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if d := b.Evaluate(ctx, BootstrapRequest{Path: "/leads"}); d.Status != GuardLoading {
		t.Fatalf("Evaluate() = %+v, want loading", d)
	}
}

func TestBootstrapper_PersistedCredential(t *testing.T) {
	tests := []struct {
		name         string
		credential   string
		path         string
		wantStatus   GuardStatus
		wantRedirect string
		wantState    session.State
	}{
		{
			name:       "valid credential",
			credential: "valid",
			path:       "/leads",
			wantStatus: GuardAuthenticated,
			wantState:  session.StateAuthenticated,
		},
		{
			name:         "expired credential",
			credential:   "expired",
			path:         "/leads",
			wantStatus:   GuardRejected,
			wantRedirect: "/signin?next=%2Fleads",
			wantState:    session.StateAnonymous,
		},
		{
			name:         "no credential",
			path:         "/leads",
			wantStatus:   GuardRejected,
			wantRedirect: "/signin?next=%2Fleads",
			wantState:    session.StateAnonymous,
		},
		{
			name:         "no credential at root",
			path:         "/",
			wantStatus:   GuardRejected,
			wantRedirect: "/signin",
			wantState:    session.StateAnonymous,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := newTestBootstrapper(h)
			switch tt.credential {
			case "valid":
				h.authenticate(t, mustToken(t, testIdentity.ID, time.Hour))
			case "expired":
				h.authenticate(t, mustToken(t, testIdentity.ID, -time.Minute))
			}

			got := b.Evaluate(context.Background(), BootstrapRequest{Path: tt.path})
			if got.Status != tt.wantStatus || got.Redirect != tt.wantRedirect {
				t.Fatalf("Evaluate() = %+v, want %s %q", got, tt.wantStatus, tt.wantRedirect)
			}
			if state := h.store.Snapshot().State; state != tt.wantState {
				t.Errorf("state = %s, want %s", state, tt.wantState)
			}
			if tt.credential == "expired" && h.store.Snapshot().LastError != string(apperrors.CodeTokenExpired) {
				t.Errorf("lastError = %q, want TokenExpired", h.store.Snapshot().LastError)
			}
		})
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "/leads?token=abc", want: "/leads"},
		{in: "/leads?status=3&token=abc", want: "/leads?status=3"},
		{in: "", want: "/"},
		{in: "https://evil.example/steal", want: "/"},
		{in: "//evil.example/steal", want: "/"},
	}
	for _, tt := range tests {
		if got := cleanPath(tt.in); got != tt.want {
			t.Errorf("cleanPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBootstrapper_StatusFollowsStore(t *testing.T) {
	tests := []struct {
		name   string
		change func(t *testing.T, h *harness)
	}{
		{name: "logout", change: func(t *testing.T, h *harness) {
			if err := h.store.Logout(context.Background()); err != nil {
				t.Fatalf("Logout() error = %v", err)
			}
		}},
		{name: "force expire", change: func(t *testing.T, h *harness) {
			if !h.store.ForceExpire(context.Background()) {
				t.Fatal("ForceExpire() = false, want a transition")
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := newTestBootstrapper(h)
			h.authenticate(t, mustToken(t, testIdentity.ID, time.Hour))

			if got := b.Evaluate(context.Background(), BootstrapRequest{Path: "/leads"}); got.Status != GuardAuthenticated {
				t.Fatalf("Evaluate() = %+v", got)
			}
			if b.Status() != GuardAuthenticated {
				t.Fatalf("Status() = %s, want authenticated", b.Status())
			}

			tt.change(t, h)
			if b.Status() != GuardRejected {
				t.Errorf("Status() after %s = %s, want rejected", tt.name, b.Status())
			}
		})
	}
}

func TestBootstrapper_StatusTracksCredentialExpiry(t *testing.T) {
	h := newHarness(t)
	b := newTestBootstrapper(h)
	h.authenticate(t, mustToken(t, testIdentity.ID, time.Minute))

	if got := b.Evaluate(context.Background(), BootstrapRequest{Path: "/leads"}); got.Status != GuardAuthenticated {
		t.Fatalf("Evaluate() = %+v", got)
	}
	b.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if b.Status() != GuardRejected {
		t.Errorf("Status() with an expired credential = %s, want rejected", b.Status())
	}
}
