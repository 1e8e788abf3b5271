package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/application/services"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/backend"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/persistence/sessions"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/leaddesk-go/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

const (
	testOTPSecret = "handler-otp-secret"
	testCode      = "4821"
)

// upstream fakes the CRM backend endpoints the console calls.
type upstream struct {
	t          *testing.T
	token      string
	otpPayload string
	revoked    atomic.Bool
	assigned   atomic.Int32
	created    atomic.Int32
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	if u.revoked.Load() && r.Header.Get("Authorization") != "" {
		writeJSON(http.StatusUnauthorized, map[string]any{"message": "token revoked"})
		return
	}

	user := map[string]any{"id": 42, "name": "Anita Rao", "mobile": "9876543210", "user_type": 4, "crm_access": 1}
	switch r.URL.Path {
	case "/meetCRM/v2/auth/authCRMLogin":
		writeJSON(http.StatusOK, map[string]any{"status": "success", "user_details": user, "accessToken": u.token})
	case "/auth/v1/sendBothOtps":
		writeJSON(http.StatusOK, map[string]any{"status": "success", "otp": u.otpPayload})
	case "/meetCRM/v2/auth/authenticate":
		writeJSON(http.StatusOK, map[string]any{"status": "success", "data": user})
	case "/meetCRM/v2/leads/getTodayLeads":
		_, _ = io.WriteString(w, `[
			{"id":1,"lead_id":501,"unique_property_id":"UP1","customer_name":"Asha","status_id":1,"state":"Karnataka","city":"Bengaluru","created_at":"2024-06-03T10:00:00Z"},
			{"id":2,"lead_id":502,"unique_property_id":"UP2","customer_name":"Ravi","status_id":2,"state":"Telangana","city":"Hyderabad","created_at":"2024-06-04T10:00:00Z"}]`)
	case "/meetCRM/v2/leads/getPropertyEnquiries":
		_, _ = io.WriteString(w, `[
			{"id":7,"unique_property_id":"UP1","fullname":"Asha","state_id":"Karnataka","city_id":"Bengaluru","created_date":"2024-06-01"},
			{"id":8,"unique_property_id":"UP9","fullname":"Meena","state_id":"Kerala","city_id":"Kochi","created_date":"2024-06-02"}]`)
	case "/meetCRM/v2/leads/getLeadUpdatesByLeadId":
		_, _ = io.WriteString(w, `{"results":[
			{"update_id":1,"lead_id":501,"status_id":1,"feedback":"called","update_date":"2024-06-03","update_time":"10:00:00"},
			{"update_id":2,"lead_id":501,"status_id":2,"feedback":"visited","update_date":"2024-06-05","update_time":"10:00:00"}]}`)
	case "/meetCRM/v2/leads/createLead":
		u.created.Add(1)
		writeJSON(http.StatusCreated, map[string]any{"message": "Lead created", "lead_id": 900})
	case "/meetCRM/v2/leads/assignLeads":
		u.assigned.Add(1)
		writeJSON(http.StatusOK, map[string]any{"status": "success", "message": "Lead assigned"})
	default:
		u.t.Errorf("unexpected upstream request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

type testEnv struct {
	router    *gin.Engine
	upstream  *upstream
	storage   *sessions.MemoryStorage
	registry  *services.SessionRegistry
	sessionID string
	token     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	token, err := security.IssueToken(42, time.Hour, "signing-key")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	cipher := security.NewOTPCipher(testOTPSecret)
	payload, err := cipher.Encrypt(testCode)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	up := &upstream{t: t, token: token, otpPayload: payload}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	logger := logging.NewDiscardLogger()
	perf := performance.NewTracker(nil, nil)
	client := backend.NewClient(srv.URL, 2*time.Second, logger, perf)
	storage := sessions.NewMemoryStorage()
	broadcaster := messaging.NewSSEBroadcaster(2, logger)
	otp := services.NewOTPController(client, cipher, 2*time.Second, broadcaster, logger, perf)
	registry := services.NewSessionRegistry(services.RegistryConfig{
		Storage:        storage,
		Auth:           client,
		Leads:          client,
		OTP:            otp,
		Notifier:       broadcaster,
		Region:         "IN",
		ResolveTimeout: 2 * time.Second,
	}, logger, perf)

	authHandlers := NewAuthHandlers(otp, logger, perf)
	leadHandlers := NewLeadHandlers(services.NewLeadService(client, logger, perf), logger, perf)
	systemHandlers := NewSystemHandlers(registry, messaging.NewMonitorBroadcaster(registry, perf, time.Minute, logger), logger, perf)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	api := r.Group("/api/v1")
	api.GET("/health", systemHandlers.GetHealth)
	api.GET("/system/perf", systemHandlers.GetPerf)
	api.GET("/system/log-levels", systemHandlers.GetLogLevels)
	api.PUT("/system/log-levels/:channel", systemHandlers.PutLogLevel)

	console := api.Group("")
	console.Use(middleware.ConsoleSessionMiddleware(registry, middleware.CookieConfig{Name: "leaddesk_session", MaxAge: time.Hour}, logger, perf))
	console.POST("/auth/login", authHandlers.PostLogin)
	console.POST("/auth/otp", authHandlers.PostOtp)
	console.POST("/auth/otp/resend", authHandlers.PostResendOtp)
	console.POST("/auth/logout", authHandlers.PostLogout)
	console.GET("/auth/session", authHandlers.GetSession)
	console.GET("/auth/guard", authHandlers.GetGuard)

	leadsAPI := console.Group("/leads")
	leadsAPI.Use(middleware.RequireAuthenticated(logger))
	leadsAPI.GET("/catalog", leadHandlers.GetCatalog)
	leadsAPI.GET("/views/:view", leadHandlers.GetView)
	leadsAPI.POST("/views/:view/refresh", leadHandlers.PostRefreshView)
	leadsAPI.PATCH("/views/:view/filters", leadHandlers.PatchViewFilters)
	leadsAPI.DELETE("/views/:view", leadHandlers.DeleteView)
	leadsAPI.POST("", leadHandlers.PostCreateLead)
	leadsAPI.POST("/assign", leadHandlers.PostAssignLead)
	leadsAPI.GET("/:leadId/history", leadHandlers.GetHistory)

	return &testEnv{
		router:    r,
		upstream:  up,
		storage:   storage,
		registry:  registry,
		sessionID: security.GenerateULID(),
		token:     token,
	}
}

// signIn persists an authenticated record for the env's session.
func (e *testEnv) signIn(t *testing.T) {
	t.Helper()
	identity := session.Identity{ID: 42, Name: "Anita Rao", Mobile: "9876543210", Role: session.RoleSalesManager, CRMAccess: 1}
	credential := e.token
	if err := e.storage.Save(context.Background(), e.sessionID, session.Record{Authenticated: true, Credential: &credential, Identity: &identity}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(middleware.ConsoleSessionHeader, e.sessionID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
}

type sessionBody struct {
	Session struct {
		State         session.State `json:"state"`
		Authenticated bool          `json:"authenticated"`
		LastError     string        `json:"lastError"`
		Challenge     struct {
			Sent bool `json:"sent"`
		} `json:"challenge"`
	} `json:"session"`
	Legacy            map[string]string `json:"legacy"`
	ResendAvailableAt *time.Time        `json:"resendAvailableAt"`
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/login", gin.H{"mobile": "9876543210"})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", w.Code, w.Body.String())
	}
	var body sessionBody
	decodeBody(t, w, &body)
	if body.Session.State != session.StateAwaitingOtp || !body.Session.Challenge.Sent || body.ResendAvailableAt == nil {
		t.Fatalf("after login = %+v", body)
	}
	if strings.Contains(w.Body.String(), env.upstream.otpPayload) {
		t.Errorf("login response leaks the encrypted code: %s", w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/otp", gin.H{"code": "0000"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong code status = %d, want 400", w.Code)
	}
	var errBody struct {
		Code apperrors.Code `json:"code"`
	}
	decodeBody(t, w, &errBody)
	if errBody.Code != apperrors.CodeOtpMismatch {
		t.Errorf("wrong code error = %q, want %q", errBody.Code, apperrors.CodeOtpMismatch)
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/otp", gin.H{"code": testCode})
	if w.Code != http.StatusOK {
		t.Fatalf("otp status = %d, body %s", w.Code, w.Body.String())
	}
	body = sessionBody{}
	decodeBody(t, w, &body)
	if !body.Session.Authenticated || body.Legacy["id"] != "42" || body.Legacy["userType"] != "4" {
		t.Errorf("after otp = %+v", body)
	}
	if strings.Contains(w.Body.String(), env.token) {
		t.Errorf("session response leaks the credential")
	}

	if _, err := env.storage.Load(context.Background(), env.sessionID); err != nil {
		t.Errorf("record not persisted: %v", err)
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d", w.Code)
	}
	if _, err := env.storage.Load(context.Background(), env.sessionID); err == nil {
		t.Errorf("record still persisted after logout")
	}
}

func TestPostLogin_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "missing mobile", body: gin.H{}, want: http.StatusBadRequest},
		{name: "invalid mobile", body: gin.H{"mobile": "12"}, want: http.StatusBadRequest},
		{name: "unknown channel", body: gin.H{"mobile": "9876543210", "channel": "fax"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if w := env.do(t, http.MethodPost, "/api/v1/auth/login", tt.body); w.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestPostOtp_WithoutChallenge(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodPost, "/api/v1/auth/otp", gin.H{"code": testCode}); w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestConsoleSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "leaddesk_session" || !security.ValidULID(cookies[0].Value) || !cookies[0].HttpOnly {
		t.Errorf("cookies = %+v, want one httpOnly ULID session cookie", cookies)
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Errorf("missing %s header", middleware.RequestIDHeader)
	}
}

func TestGuard_URLToken(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/auth/guard?token="+env.token+"&next=/leads", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var decision services.Decision
	decodeBody(t, w, &decision)
	if decision.Status != services.GuardAuthenticated || !decision.StripToken {
		t.Errorf("decision = %+v, want authenticated with stripToken", decision)
	}

	w = env.do(t, http.MethodGet, "/api/v1/auth/guard?next=/leads", nil)
	decision = services.Decision{}
	decodeBody(t, w, &decision)
	if decision.Status != services.GuardAuthenticated {
		t.Errorf("persisted decision = %+v, want authenticated", decision)
	}
}

func TestGuard_NoCredential(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/auth/guard?next=/leads", nil)
	var decision services.Decision
	decodeBody(t, w, &decision)
	if decision.Status != services.GuardRejected || decision.Redirect != "/signin?next=%2Fleads" {
		t.Errorf("decision = %+v", decision)
	}
}

func TestLeadRoutes_RequireAuthentication(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/v1/leads/views/today", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	var body struct {
		Redirect string `json:"redirect"`
	}
	decodeBody(t, w, &body)
	if body.Redirect != services.SignInPath {
		t.Errorf("redirect = %q", body.Redirect)
	}
}

func TestLeadRoutes_ExpiredCredential(t *testing.T) {
	env := newTestEnv(t)
	expired, err := security.IssueToken(42, -time.Minute, "signing-key")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	env.token = expired
	env.signIn(t)

	if w := env.do(t, http.MethodGet, "/api/v1/leads/views/today", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	w := env.do(t, http.MethodGet, "/api/v1/auth/session", nil)
	var body sessionBody
	decodeBody(t, w, &body)
	if body.Session.Authenticated {
		t.Errorf("session still authenticated after expired credential")
	}
}

type viewBody struct {
	Rows []struct {
		LeadID      int64  `json:"leadId"`
		RowID       int64  `json:"rowId"`
		StatusLabel string `json:"statusLabel"`
	} `json:"rows"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	States     []string `json:"states"`
	Loaded     bool     `json:"loaded"`
	Error      *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func TestGetView_FetchesOnFirstUse(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	w := env.do(t, http.MethodGet, "/api/v1/leads/views/all", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body viewBody
	decodeBody(t, w, &body)
	// UP1 appears as both a lead and an enquiry; the promoted lead wins.
	if !body.Loaded || body.Total != 3 || body.TotalPages != 1 {
		t.Fatalf("view = %+v", body)
	}
	if len(body.States) != 3 {
		t.Errorf("states = %v, want 3 distinct", body.States)
	}

	w = env.do(t, http.MethodPatch, "/api/v1/leads/views/all/filters", gin.H{"state": "Kerala"})
	if w.Code != http.StatusOK {
		t.Fatalf("filters status = %d", w.Code)
	}
	body = viewBody{}
	decodeBody(t, w, &body)
	if len(body.Rows) != 1 || body.Rows[0].RowID != 8 {
		t.Errorf("filtered rows = %+v, want row 8", body.Rows)
	}
}

func TestGetView_UnknownView(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)
	if w := env.do(t, http.MethodGet, "/api/v1/leads/views/archived", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/leads/views/status?status=99", nil); w.Code != http.StatusBadRequest {
		t.Errorf("status view with bad status = %d, want 400", w.Code)
	}
}

func TestRefreshView_RevokedCredentialEndsSession(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	if w := env.do(t, http.MethodGet, "/api/v1/leads/views/today", nil); w.Code != http.StatusOK {
		t.Fatalf("initial fetch status = %d", w.Code)
	}

	env.upstream.revoked.Store(true)
	w := env.do(t, http.MethodPost, "/api/v1/leads/views/today/refresh", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh status = %d, want 401", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/auth/session", nil)
	var body sessionBody
	decodeBody(t, w, &body)
	if body.Session.Authenticated {
		t.Errorf("session still authenticated after backend rejected the credential")
	}
}

func TestCreateLead(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	w := env.do(t, http.MethodPost, "/api/v1/leads", gin.H{
		"customer_name":           "Asha",
		"customer_phone_number":   "9876543210",
		"interested_project_name": "Lake View",
		"lead_source_id":          1,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		LeadID int64 `json:"leadId"`
	}
	decodeBody(t, w, &body)
	if body.LeadID != 900 || env.upstream.created.Load() != 1 {
		t.Errorf("leadId = %d, created calls = %d", body.LeadID, env.upstream.created.Load())
	}

	w = env.do(t, http.MethodPost, "/api/v1/leads", gin.H{"customer_name": "Asha"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("incomplete lead status = %d, want 400", w.Code)
	}
	if env.upstream.created.Load() != 1 {
		t.Errorf("incomplete lead reached the backend")
	}
}

func TestAssignLead(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	assignment := gin.H{
		"assigned_user_type":  5,
		"assigned_id":         77,
		"assigned_name":       "Meena",
		"assigned_emp_number": "9222222222",
	}

	w := env.do(t, http.MethodPost, "/api/v1/leads/assign", gin.H{"view": "today", "leadId": 501, "assignment": assignment})
	if w.Code != http.StatusNotFound {
		t.Fatalf("assign before the view is loaded = %d, want 404", w.Code)
	}

	env.do(t, http.MethodGet, "/api/v1/leads/views/today", nil)
	w = env.do(t, http.MethodPost, "/api/v1/leads/assign", gin.H{"view": "today", "leadId": 501, "assignment": assignment})
	if w.Code != http.StatusOK {
		t.Fatalf("assign status = %d, body %s", w.Code, w.Body.String())
	}
	if env.upstream.assigned.Load() != 1 {
		t.Errorf("assign calls = %d, want 1", env.upstream.assigned.Load())
	}
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t)
	env.signIn(t)

	w := env.do(t, http.MethodGet, "/api/v1/leads/501/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Updates []struct {
			Feedback string `json:"feedback"`
		} `json:"updates"`
	}
	decodeBody(t, w, &body)
	if len(body.Updates) != 2 || body.Updates[0].Feedback != "visited" {
		t.Errorf("updates = %+v, want newest first", body.Updates)
	}

	if w := env.do(t, http.MethodGet, "/api/v1/leads/abc/history", nil); w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric lead id status = %d, want 400", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  *apperrors.Error
		want int
	}{
		{apperrors.InvalidState("busy"), http.StatusConflict},
		{apperrors.ErrAccessDenied, http.StatusForbidden},
		{apperrors.BackendRejected("no"), http.StatusBadRequest},
		{apperrors.ErrOtpMismatch, http.StatusBadRequest},
		{apperrors.Validation("bad"), http.StatusBadRequest},
		{apperrors.ErrTokenExpired, http.StatusUnauthorized},
		{apperrors.New(apperrors.KindNotFound, apperrors.CodeNotFound, "gone"), http.StatusNotFound},
		{apperrors.ErrNetworkUnavailable, http.StatusServiceUnavailable},
		{apperrors.New(apperrors.KindServer, apperrors.CodeServerFailure, "boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%s) = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
}

func TestLogLevels(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		channel    string
		body       string
		wantStatus int
	}{
		{name: "known channel", channel: "otp", body: `{"level":"debug"}`, wantStatus: http.StatusOK},
		{name: "unknown channel", channel: "billing", body: `{"level":"debug"}`, wantStatus: http.StatusNotFound},
		{name: "missing level", channel: "otp", body: `{}`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/v1/system/log-levels/"+tt.channel, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("PUT log level = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/log-levels", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	var body struct {
		Levels map[string]string `json:"levels"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode log levels error = %v", err)
	}
	if body.Levels["otp"] != "DEBUG" {
		t.Errorf("otp level = %q, want DEBUG", body.Levels["otp"])
	}
}
