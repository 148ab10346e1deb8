// Package web serves the browser UI. Every request builds its own app.Root
// over a server-side session named by the promanage_sid cookie, so the
// controllers behave exactly as they do in the terminal
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/dedupe"
	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/session"
)

//go:embed templates/*.html static/*.css
var assetsFS embed.FS

// Config configures the browser UI
type Config struct {
	Addr         string
	CookieSecure bool
	// SessionTTL bounds how long an idle browser session is kept
	SessionTTL time.Duration
}

// Server is the browser UI
type Server struct {
	cfg      Config
	client   *backend.Client
	sessions session.Storage
	dedupe   dedupe.Deduper
	echo     *echo.Echo
}

// New creates the browser UI over the backend client. Sessions and
// idempotency keys live in the given storage and deduper
func New(cfg Config, client *backend.Client, sessions session.Storage, d dedupe.Deduper) (*Server, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * 24 * time.Hour
	}

	tmpl, err := template.New("base").Funcs(templateFuncs).ParseFS(assetsFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		client:   client,
		sessions: sessions,
		dedupe:   d,
	}
	s.setupEcho(tmpl)
	return s, nil
}

type templateRenderer struct {
	tmpl *template.Template
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, _ echo.Context) error {
	return r.tmpl.ExecuteTemplate(w, name, data)
}

func (s *Server) setupEcho(tmpl *template.Template) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = &templateRenderer{tmpl: tmpl}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/static/*", echo.WrapHandler(http.FileServer(http.FS(assetsFS))))

	g := e.Group("", s.withRequest)
	g.GET("/", s.handleIndex)
	g.POST("/login", s.handleLogin)
	g.POST("/signup", s.handleSignUp)
	g.POST("/magic-link", s.handleMagicLink)
	g.POST("/magic-link/verify", s.handleMagicLinkVerify)
	g.POST("/logout", s.handleLogout)

	p := g.Group("/projects", requireAuth)
	p.POST("", s.handleCreateProject)
	p.GET("/:id", s.handleProject)
	p.POST("/:id/tasks", s.handleCreateTask)
	p.POST("/:id/tasks/:taskID/toggle", s.handleToggleTask)
	p.GET("/:id/tasks/:taskID/delete", s.handleConfirmDelete)
	p.POST("/:id/tasks/:taskID/delete", s.handleDeleteTask)

	s.echo = e
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Web UI listening", logger.F("addr", s.cfg.Addr))
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("Web UI shutting down")
	return s.echo.Shutdown(shutdownCtx)
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		req := c.Request()
		res := c.Response()
		logger.Debug("HTTP Request",
			logger.F("method", req.Method),
			logger.F("uri", req.RequestURI),
			logger.F("status", res.Status),
			logger.F("duration", time.Since(start).String()),
			logger.F("request_id", res.Header().Get(echo.HeaderXRequestID)))
		return nil
	}
}
