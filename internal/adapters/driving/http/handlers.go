package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/finvoice-labs/finvoice-core/internal/core/domain"
	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driving"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`

	// Kind carries the failure classification when the error is a
	// classified connector failure.
	Kind string `json:"kind,omitempty" example:"invalid_state"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// CallbackResponse is the JSON answer for a completed authorization when no
// UI redirect is configured.
// @Description Authorization completion result
type CallbackResponse struct {
	Status      string `json:"status" example:"connected"`
	TenantID    string `json:"tenant_id,omitempty"`
	TenantName  string `json:"tenant_name,omitempty"`
	TenantCount int    `json:"tenant_count,omitempty"`
	DemoMode    bool   `json:"demo_mode,omitempty"`
}

// SetupNeededResponse is the 409 answer when authorization cannot start
// because the provider app registration is incomplete.
// @Description Provider credentials must be configured first
type SetupNeededResponse struct {
	Message     string `json:"message" example:"provider credentials are not configured"`
	SetupNeeded bool   `json:"setup_needed" example:"true"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Verifies the backing stores are reachable
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "redis unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Tags         Health
// @Produce      json
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Auth endpoints

// handleLogin godoc
// @Summary      Admin login
// @Description  Authenticate with email and password to receive a JWT token
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      driving.LoginRequest  true  "Login credentials"
// @Success      200      {object}  driving.LoginResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Invalid credentials"
// @Router       /auth/login [post]
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req driving.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.authService.Login(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, domain.ErrUnauthorized):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		default:
			writeError(w, http.StatusInternalServerError, "authentication failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Connector endpoints

// handleAuthURL godoc
// @Summary      Start the provider authorization flow
// @Description  Returns a live authorization URL or a demo short-circuit URL.
// @Description  Answers 409 with setup guidance when credentials are missing.
// @Tags         Connector
// @Produce      json
// @Success      200  {object}  driving.AuthorizationStart
// @Failure      409  {object}  SetupNeededResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /connector/auth-url [get]
// @Security     BearerAuth
func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	start, err := s.connectorService.BeginAuthorization(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start authorization")
		return
	}
	if start.Kind == driving.StartSetupNeeded {
		writeJSON(w, http.StatusConflict, SetupNeededResponse{
			Message:     start.Message,
			SetupNeeded: true,
		})
		return
	}
	writeJSON(w, http.StatusOK, start)
}

// handleCallback godoc
// @Summary      Provider OAuth callback
// @Description  Receives the provider redirect, completes the authorization,
// @Description  and either redirects the browser to the UI or answers JSON.
// @Tags         Connector
// @Produce      json
// @Param        code   query  string  false  "Authorization code"
// @Param        state  query  string  true   "State token"
// @Success      200  {object}  CallbackResponse
// @Failure      400  {object}  ErrorResponse
// @Router       /connector/callback [get]
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	req := driving.CallbackRequest{
		Code:             r.URL.Query().Get("code"),
		State:            r.URL.Query().Get("state"),
		Error:            r.URL.Query().Get("error"),
		ErrorDescription: r.URL.Query().Get("error_description"),
	}

	state, err := s.connectorService.CompleteAuthorization(r.Context(), req)
	if err != nil {
		if s.uiRedirectURL != "" {
			s.redirectToUI(w, r, url.Values{"error": {callbackErrorKind(err)}})
			return
		}
		writeFailure(w, err, "authorization failed")
		return
	}

	if s.uiRedirectURL != "" {
		s.redirectToUI(w, r, url.Values{"connected": {"true"}})
		return
	}
	writeJSON(w, http.StatusOK, CallbackResponse{
		Status:      "connected",
		TenantID:    state.TenantID,
		TenantName:  state.TenantName,
		TenantCount: state.TenantCount,
		DemoMode:    state.DemoMode,
	})
}

// handleStatus godoc
// @Summary      Connection status
// @Tags         Connector
// @Produce      json
// @Success      200  {object}  domain.StatusView
// @Failure      500  {object}  ErrorResponse
// @Router       /connector/status [get]
// @Security     BearerAuth
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.connectorService.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleDisconnect godoc
// @Summary      Disconnect from the provider
// @Description  Idempotent - succeeds even when nothing is connected.
// @Tags         Connector
// @Produce      json
// @Success      200  {object}  domain.StatusView
// @Failure      500  {object}  ErrorResponse
// @Router       /connector/disconnect [post]
// @Security     BearerAuth
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	view, err := s.connectorService.Disconnect(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to disconnect")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Settings endpoints

// handleGetProviderSettings godoc
// @Summary      Get provider app settings
// @Description  Returns the registration summary; the secret never leaves
// @Description  the server.
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  domain.CredentialsSummary
// @Failure      500  {object}  ErrorResponse
// @Router       /settings/provider [get]
// @Security     BearerAuth
func (s *Server) handleGetProviderSettings(w http.ResponseWriter, r *http.Request) {
	summary, err := s.settingsService.GetProviderSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleUpdateProviderSettings godoc
// @Summary      Update provider app settings
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Param        request  body      driving.UpdateProviderSettingsRequest  true  "New credentials"
// @Success      200      {object}  domain.CredentialsSummary
// @Failure      400      {object}  ErrorResponse
// @Router       /settings/provider [put]
// @Security     BearerAuth
func (s *Server) handleUpdateProviderSettings(w http.ResponseWriter, r *http.Request) {
	var req driving.UpdateProviderSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := s.settingsService.UpdateProviderSettings(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// redirectToUI sends the browser back to the configured UI with outcome
// parameters appended.
func (s *Server) redirectToUI(w http.ResponseWriter, r *http.Request, params url.Values) {
	target := s.uiRedirectURL
	if len(params) > 0 {
		sep := "?"
		if u, err := url.Parse(target); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		target += sep + params.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// callbackErrorKind extracts the failure kind for the UI redirect.
func callbackErrorKind(err error) string {
	if failure, ok := domain.AsFailure(err); ok {
		return string(failure.Kind)
	}
	return "internal_error"
}

// writeFailure maps a classified connector failure to an HTTP response.
func writeFailure(w http.ResponseWriter, err error, fallback string) {
	failure, ok := domain.AsFailure(err)
	if !ok {
		writeError(w, http.StatusInternalServerError, fallback)
		return
	}

	status := http.StatusBadRequest
	switch failure.Kind {
	case domain.FailureProviderUnreachable, domain.FailureProviderError:
		status = http.StatusBadGateway
	case domain.FailureNoTenants:
		status = http.StatusConflict
	case domain.FailureTokenRejected, domain.FailureRefreshFailed:
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, ErrorResponse{Error: failure.Message, Kind: string(failure.Kind)})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
