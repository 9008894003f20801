package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finvoice-labs/finvoice-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string

	// UIRedirectURL, when set, is where the OAuth callback sends the
	// browser after completing (with outcome query parameters). Empty
	// means the callback answers with JSON.
	uiRedirectURL string

	// Services
	authService      driving.AuthService
	connectorService driving.ConnectorService
	settingsService  driving.SettingsService

	// Infrastructure
	db          Pinger // PostgreSQL health check
	redisClient Pinger // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host          string
	Port          int
	Version       string
	UIRedirectURL string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	authService driving.AuthService,
	connectorService driving.ConnectorService,
	settingsService driving.SettingsService,
	db Pinger,
	redisClient Pinger, // can be nil
) *Server {
	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		uiRedirectURL:    cfg.UIRedirectURL,
		authService:      authService,
		connectorService: connectorService,
		settingsService:  settingsService,
		db:               db,
		redisClient:      redisClient,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authService)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Auth endpoints (public)
	s.router.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	// Connector endpoints
	s.router.Handle("GET /api/v1/connector/auth-url",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleAuthURL)))
	// Callback is public - receives redirects from the provider
	s.router.HandleFunc("GET /api/v1/connector/callback", s.handleCallback)
	s.router.Handle("GET /api/v1/connector/status",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleStatus)))
	s.router.Handle("POST /api/v1/connector/disconnect",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleDisconnect)))

	// Settings endpoints
	s.router.Handle("GET /api/v1/settings/provider",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetProviderSettings)))
	s.router.Handle("PUT /api/v1/settings/provider",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleUpdateProviderSettings)))
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
