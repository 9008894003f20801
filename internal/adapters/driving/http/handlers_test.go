package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driving"
)

// Mock services for testing

type mockAuthService struct {
	loginFn    func(ctx context.Context, req driving.LoginRequest) (*driving.LoginResponse, error)
	validateFn func(ctx context.Context, token string) (string, error)
}

func (m *mockAuthService) Login(ctx context.Context, req driving.LoginRequest) (*driving.LoginResponse, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAuthService) ValidateToken(ctx context.Context, token string) (string, error) {
	if m.validateFn != nil {
		return m.validateFn(ctx, token)
	}
	if token == "valid-token" {
		return "admin", nil
	}
	return "", domain.ErrUnauthorized
}

type mockConnectorService struct {
	beginFn      func(ctx context.Context) (*driving.AuthorizationStart, error)
	completeFn   func(ctx context.Context, req driving.CallbackRequest) (*domain.ConnectionState, error)
	disconnectFn func(ctx context.Context) (domain.StatusView, error)
	statusFn     func(ctx context.Context) (domain.StatusView, error)
}

func (m *mockConnectorService) BeginAuthorization(ctx context.Context) (*driving.AuthorizationStart, error) {
	if m.beginFn != nil {
		return m.beginFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockConnectorService) CompleteAuthorization(ctx context.Context, req driving.CallbackRequest) (*domain.ConnectionState, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockConnectorService) Disconnect(ctx context.Context) (domain.StatusView, error) {
	if m.disconnectFn != nil {
		return m.disconnectFn(ctx)
	}
	return domain.StatusView{}, nil
}

func (m *mockConnectorService) Status(ctx context.Context) (domain.StatusView, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return domain.StatusView{}, nil
}

func (m *mockConnectorService) RefreshIfNeeded(ctx context.Context) (*domain.ConnectionState, error) {
	return nil, errors.New("not implemented")
}

func (m *mockConnectorService) GetValidAccessToken(ctx context.Context) (string, error) {
	return "", errors.New("not implemented")
}

type mockSettingsService struct {
	getFn    func(ctx context.Context) (*domain.CredentialsSummary, error)
	updateFn func(ctx context.Context, req driving.UpdateProviderSettingsRequest) (*domain.CredentialsSummary, error)
}

func (m *mockSettingsService) GetProviderSettings(ctx context.Context) (*domain.CredentialsSummary, error) {
	if m.getFn != nil {
		return m.getFn(ctx)
	}
	return &domain.CredentialsSummary{}, nil
}

func (m *mockSettingsService) UpdateProviderSettings(ctx context.Context, req driving.UpdateProviderSettingsRequest) (*domain.CredentialsSummary, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, req)
	}
	return nil, errors.New("not implemented")
}

type serverMocks struct {
	auth      *mockAuthService
	connector *mockConnectorService
	settings  *mockSettingsService
}

func newTestServer(cfg Config) (*Server, *serverMocks) {
	mocks := &serverMocks{
		auth:      &mockAuthService{},
		connector: &mockConnectorService{},
		settings:  &mockSettingsService{},
	}
	server := NewServer(cfg, mocks.auth, mocks.connector, mocks.settings, nil, nil)
	return server, mocks
}

func doRequest(server *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		data, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, path, reqBody)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	server, _ := newTestServer(DefaultConfig())

	rec := doRequest(server, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleLogin(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.auth.loginFn = func(ctx context.Context, req driving.LoginRequest) (*driving.LoginResponse, error) {
		if req.Email != "admin@example.com" || req.Password != "pw" {
			return nil, domain.ErrInvalidCredentials
		}
		return &driving.LoginResponse{Token: "issued-token", ExpiresAt: time.Now().Add(time.Hour).Format(time.RFC3339)}, nil
	}

	rec := doRequest(server, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "pw",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp driving.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token != "issued-token" {
		t.Errorf("token = %q, want issued-token", resp.Token)
	}
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.auth.loginFn = func(ctx context.Context, req driving.LoginRequest) (*driving.LoginResponse, error) {
		return nil, domain.ErrInvalidCredentials
	}

	rec := doRequest(server, "POST", "/api/v1/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	server, _ := newTestServer(DefaultConfig())

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/connector/auth-url"},
		{"GET", "/api/v1/connector/status"},
		{"POST", "/api/v1/connector/disconnect"},
		{"GET", "/api/v1/settings/provider"},
		{"PUT", "/api/v1/settings/provider"},
	}
	for _, p := range paths {
		rec := doRequest(server, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: status = %d, want 401", p.method, p.path, rec.Code)
		}
		rec = doRequest(server, p.method, p.path, "bogus", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad token: status = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestHandleAuthURL(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.connector.beginFn = func(ctx context.Context) (*driving.AuthorizationStart, error) {
		return &driving.AuthorizationStart{
			Kind:  driving.StartOK,
			URL:   "https://login.example.com/authorize?state=abc",
			State: "abc",
		}, nil
	}

	rec := doRequest(server, "GET", "/api/v1/connector/auth-url", "valid-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var start driving.AuthorizationStart
	if err := json.Unmarshal(rec.Body.Bytes(), &start); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if start.Kind != driving.StartOK {
		t.Errorf("kind = %q, want ok", start.Kind)
	}
	if start.URL == "" {
		t.Error("url is empty")
	}
}

func TestHandleAuthURL_SetupNeeded(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.connector.beginFn = func(ctx context.Context) (*driving.AuthorizationStart, error) {
		return &driving.AuthorizationStart{
			Kind:    driving.StartSetupNeeded,
			Message: "configure credentials first",
		}, nil
	}

	rec := doRequest(server, "GET", "/api/v1/connector/auth-url", "valid-token", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 when credentials are incomplete", rec.Code)
	}

	var resp SetupNeededResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.SetupNeeded {
		t.Error("setup_needed = false, want true")
	}
	if resp.Message != "configure credentials first" {
		t.Errorf("message = %q, want the remediation guidance", resp.Message)
	}
}

func TestHandleCallback_JSON(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.connector.completeFn = func(ctx context.Context, req driving.CallbackRequest) (*domain.ConnectionState, error) {
		if req.Code != "auth-code" || req.State != "abc" {
			t.Errorf("callback request = %+v, want code/state from query", req)
		}
		return &domain.ConnectionState{
			Status:      domain.StatusConnected,
			TenantID:    "tenant-1",
			TenantName:  "Acme Ltd",
			TenantCount: 1,
		}, nil
	}

	rec := doRequest(server, "GET", "/api/v1/connector/callback?code=auth-code&state=abc", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp CallbackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "connected" || resp.TenantName != "Acme Ltd" {
		t.Errorf("response = %+v, want connected/Acme Ltd", resp)
	}
}

func TestHandleCallback_InvalidState(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.connector.completeFn = func(ctx context.Context, req driving.CallbackRequest) (*domain.ConnectionState, error) {
		return nil, domain.NewFailure(domain.FailureInvalidState, "state token is unknown")
	}

	rec := doRequest(server, "GET", "/api/v1/connector/callback?code=c&state=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Kind != "invalid_state" {
		t.Errorf("kind = %q, want invalid_state", resp.Kind)
	}
}

func TestHandleCallback_ProviderUnreachable(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.connector.completeFn = func(ctx context.Context, req driving.CallbackRequest) (*domain.ConnectionState, error) {
		return nil, domain.NewFailure(domain.FailureProviderUnreachable, "timeout")
	}

	rec := doRequest(server, "GET", "/api/v1/connector/callback?code=c&state=s", "", nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandleCallback_RedirectsToUI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UIRedirectURL = "http://localhost:3000/settings/connector"
	server, mocks := newTestServer(cfg)
	mocks.connector.completeFn = func(ctx context.Context, req driving.CallbackRequest) (*domain.ConnectionState, error) {
		return &domain.ConnectionState{Status: domain.StatusConnected}, nil
	}

	rec := doRequest(server, "GET", "/api/v1/connector/callback?code=c&state=s", "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "http://localhost:3000/settings/connector") {
		t.Errorf("Location = %q, want the UI URL", location)
	}
	if !strings.Contains(location, "connected=true") {
		t.Errorf("Location = %q missing connected=true", location)
	}
}

func TestHandleCallback_RedirectsErrorToUI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UIRedirectURL = "http://localhost:3000/settings/connector"
	server, mocks := newTestServer(cfg)
	mocks.connector.completeFn = func(ctx context.Context, req driving.CallbackRequest) (*domain.ConnectionState, error) {
		return nil, domain.NewFailure(domain.FailureInvalidGrant, "stale code")
	}

	rec := doRequest(server, "GET", "/api/v1/connector/callback?code=c&state=s", "", nil)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Location"), "error=invalid_grant") {
		t.Errorf("Location = %q missing error=invalid_grant", rec.Header().Get("Location"))
	}
}

func TestHandleStatus(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.connector.statusFn = func(ctx context.Context) (domain.StatusView, error) {
		return domain.StatusView{
			IsAuthenticated: true,
			TenantID:        "tenant-1",
			TenantName:      "Acme Ltd",
		}, nil
	}

	rec := doRequest(server, "GET", "/api/v1/connector/status", "valid-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var view domain.StatusView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !view.IsAuthenticated || view.TenantName != "Acme Ltd" {
		t.Errorf("view = %+v, want authenticated Acme Ltd", view)
	}
}

func TestHandleDisconnect(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	called := false
	mocks.connector.disconnectFn = func(ctx context.Context) (domain.StatusView, error) {
		called = true
		return domain.StatusView{IsAuthenticated: false}, nil
	}

	rec := doRequest(server, "POST", "/api/v1/connector/disconnect", "valid-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !called {
		t.Error("disconnect not invoked")
	}
}

func TestHandleUpdateProviderSettings(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.settings.updateFn = func(ctx context.Context, req driving.UpdateProviderSettingsRequest) (*domain.CredentialsSummary, error) {
		return &domain.CredentialsSummary{ClientID: req.ClientID, HasSecret: true}, nil
	}

	rec := doRequest(server, "PUT", "/api/v1/settings/provider", "valid-token", map[string]string{
		"client_id": "client-abc", "client_secret": "secret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var summary domain.CredentialsSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if summary.ClientID != "client-abc" || !summary.HasSecret {
		t.Errorf("summary = %+v, want client-abc with secret", summary)
	}
}

func TestHandleUpdateProviderSettings_Invalid(t *testing.T) {
	server, mocks := newTestServer(DefaultConfig())
	mocks.settings.updateFn = func(ctx context.Context, req driving.UpdateProviderSettingsRequest) (*domain.CredentialsSummary, error) {
		return nil, domain.ErrInvalidInput
	}

	rec := doRequest(server, "PUT", "/api/v1/settings/provider", "valid-token", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
