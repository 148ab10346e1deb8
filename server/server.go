package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/existflow/promanage/internal/logger"
)

// Config configures the local backend
type Config struct {
	DatabaseURL string
	JWTSecret   string
	AnonKey     string
	// DevMode returns magic-link tokens in the response instead of mailing them
	DevMode bool
}

// Server is a self-hosted subset of the hosted backend: password and
// magic-link auth under /auth/v1 and the projects and tasks tables under
// /rest/v1 with per-user row checks
type Server struct {
	db      *sql.DB
	dialect dialect
	echo    *echo.Echo
	secret  []byte
	anonKey string
	devMode bool
	now     func() time.Time
}

// New creates a new server
func New(cfg Config) (*Server, error) {
	if cfg.JWTSecret == "" || cfg.AnonKey == "" {
		return nil, errors.New("jwt secret and anon key are required")
	}

	db, d, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:      db,
		dialect: d,
		secret:  []byte(cfg.JWTSecret),
		anonKey: cfg.AnonKey,
		devMode: cfg.DevMode,
		now:     time.Now,
	}

	// Run migrations
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	// Setup Echo
	s.setupEcho()

	return s, nil
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowHeaders:  []string{"apikey", echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept, "Prefer"},
		ExposeHeaders: []string{"Content-Range"},
	}))

	// Health check
	e.GET("/health", s.handleHealth)

	auth := e.Group("/auth/v1", s.requireAPIKey)
	auth.POST("/signup", s.handleSignUp)
	auth.POST("/token", s.handleToken)
	auth.POST("/logout", s.handleLogout)
	auth.GET("/user", s.handleUser)
	auth.POST("/otp", s.handleOTP)
	auth.POST("/verify", s.handleVerify)

	rest := e.Group("/rest/v1", s.requireAPIKey, s.resolveUser)
	rest.GET("/:table", s.handleSelect)
	rest.POST("/:table", s.handleInsert)
	rest.PATCH("/:table", s.handleUpdate)
	rest.DELETE("/:table", s.handleDelete)

	s.echo = e
}

// Close closes the database connection
func (s *Server) Close() error {
	return s.db.Close()
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start starts the server
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.db.PingContext(c.Request().Context()); err != nil {
		logger.Error("Health check failed", logger.F("error", err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
