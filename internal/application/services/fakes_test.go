package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/leads"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/backend"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/persistence/sessions"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/security"
)

const testSecret = "test-otp-secret"

var testCipher = security.NewOTPCipher(testSecret)

func sealCode(t *testing.T, code string) string {
	t.Helper()
	payload, err := testCipher.Encrypt(code)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	return payload
}

func mustToken(t *testing.T, userID int64, ttl time.Duration) string {
	t.Helper()
	token, err := security.IssueToken(userID, ttl, "signing-key")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

var testIdentity = session.Identity{ID: 42, Name: "Anita Rao", Mobile: "9876543210", Role: session.RoleSalesManager, CRMAccess: 1}

// fakeAuth is a scriptable AuthBackend. Hooks, when set, take precedence
// over the static results and may block.
type fakeAuth struct {
	mu sync.Mutex

	loginResult backend.LoginResult
	loginErr    error
	loginHook   func(ctx context.Context) (backend.LoginResult, error)

	sendPayload string
	sendErr     error
	sendHook    func(ctx context.Context, call int) (string, error)
	sendMobiles []string
	sendCodes   []string

	users    map[int64]session.Identity
	userErr  error
	userHook func(ctx context.Context, userID int64) (session.Identity, error)

	profile    session.Identity
	profileErr error

	loginCalls atomic.Int32
	sendCalls  atomic.Int32
	userCalls  atomic.Int32
}

func (f *fakeAuth) Login(ctx context.Context, mobile string) (backend.LoginResult, error) {
	f.loginCalls.Add(1)
	f.mu.Lock()
	hook, result, err := f.loginHook, f.loginResult, f.loginErr
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx)
	}
	return result, err
}

func (f *fakeAuth) SendOTP(ctx context.Context, mobile, countryCode string, channel session.Channel) (string, error) {
	call := int(f.sendCalls.Add(1))
	f.mu.Lock()
	f.sendMobiles = append(f.sendMobiles, mobile)
	f.sendCodes = append(f.sendCodes, countryCode)
	hook, payload, err := f.sendHook, f.sendPayload, f.sendErr
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, call)
	}
	return payload, err
}

func (f *fakeAuth) UserByID(ctx context.Context, userID int64, credential string) (session.Identity, error) {
	f.userCalls.Add(1)
	f.mu.Lock()
	hook, users, err := f.userHook, f.users, f.userErr
	f.mu.Unlock()
	if hook != nil {
		return hook(ctx, userID)
	}
	if err != nil {
		return session.Identity{}, err
	}
	return users[userID], nil
}

func (f *fakeAuth) EmployeeProfile(ctx context.Context, userID int64, credential string) (session.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile, f.profileErr
}

func (f *fakeAuth) set(fn func(f *fakeAuth)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// recordingNotifier keeps every notification.
type recordingNotifier struct {
	mu    sync.Mutex
	items []messaging.Notification
}

func (r *recordingNotifier) Notify(_ string, n messaging.Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) last() messaging.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return messaging.Notification{}
	}
	return r.items[len(r.items)-1]
}

type harness struct {
	auth     *fakeAuth
	storage  *sessions.MemoryStorage
	notifier *recordingNotifier
	otp      *OTPController
	store    *SessionStore
	logger   *logging.ChanneledLogger
	tracker  *performance.Tracker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		auth: &fakeAuth{
			loginResult: backend.LoginResult{Identity: testIdentity, AccessToken: "pending-token"},
			users:       map[int64]session.Identity{},
		},
		storage:  sessions.NewMemoryStorage(),
		notifier: &recordingNotifier{},
		logger:   logging.NewDiscardLogger(),
		tracker:  performance.NewTracker(nil, nil),
	}
	h.auth.sendPayload = sealCode(t, "4821")
	h.otp = NewOTPController(h.auth, testCipher, time.Second, h.notifier, h.logger, h.tracker)
	h.store = NewSessionStore("01HZXTESTSESSION000000000", h.storage, h.auth, h.otp, h.notifier, "IN", h.logger, h.tracker)
	if err := h.store.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	return h
}

// login drives the store to AwaitingOtp with code "4821" pending.
func (h *harness) login(t *testing.T) {
	t.Helper()
	if err := h.store.BeginLogin(context.Background(), "9876543210", session.ChannelSMS); err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}
}

// authenticate drives the store to Authenticated with credential.
func (h *harness) authenticate(t *testing.T, credential string) {
	t.Helper()
	if err := h.store.AdoptCredential(context.Background(), testIdentity, credential); err != nil {
		t.Fatalf("AdoptCredential() error = %v", err)
	}
}

// fakeSource serves scripted fetch results, optionally blocking per call.
type fakeSource struct {
	mu      sync.Mutex
	calls   int
	results []fetchResult
	gates   map[int]chan struct{}
}

type fetchResult struct {
	records []leads.Lead
	err     error
}

func (f *fakeSource) FetchLeads(ctx context.Context, req leads.FetchRequest) ([]leads.Lead, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	gate := f.gates[call]
	var res fetchResult
	if call < len(f.results) {
		res = f.results[call]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return res.records, res.err
}

// fakeLeadBackend records mutations.
type fakeLeadBackend struct {
	fakeSource
	updates   []leads.Update
	created   []leads.CreateInput
	assigned  []leads.AssignInput
	createErr error
	nextID    int64
}

func (f *fakeLeadBackend) LeadUpdates(ctx context.Context, credential string, leadID int64) ([]leads.Update, error) {
	return f.updates, nil
}

func (f *fakeLeadBackend) CreateLead(ctx context.Context, credential string, in leads.CreateInput) (leads.Envelope, error) {
	if f.createErr != nil {
		return leads.Envelope{}, f.createErr
	}
	f.created = append(f.created, in)
	f.nextID++
	return leads.Envelope{Message: "Lead created", LeadID: f.nextID}, nil
}

func (f *fakeLeadBackend) AssignLead(ctx context.Context, credential string, in leads.AssignInput) (leads.Envelope, error) {
	f.assigned = append(f.assigned, in)
	return leads.Envelope{Status: "success", Message: "Lead assigned"}, nil
}

func (f *fakeLeadBackend) MarkBooked(ctx context.Context, credential string, in leads.BookingInput) (leads.Envelope, error) {
	return leads.Envelope{Status: "success"}, nil
}

func (f *fakeLeadBackend) UpdateStatus(ctx context.Context, credential string, in leads.StatusUpdateInput) (leads.Envelope, error) {
	return leads.Envelope{Status: "success"}, nil
}
