package web

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/session"
)

const (
	cookieName = "promanage_sid"
	requestKey = "promanage.request"
	flashTTL   = 5 * time.Minute
)

// request is the per-request view state
type request struct {
	sid   string
	auth  *session.Store
	root  *app.Root
	notes *app.Notifications
}

func current(c echo.Context) *request {
	r, _ := c.Get(requestKey).(*request)
	return r
}

// sessionID returns the browser's session id, issuing a cookie for new browsers
func (s *Server) sessionID(c echo.Context) string {
	if ck, err := c.Cookie(cookieName); err == nil {
		if _, err := uuid.Parse(ck.Value); err == nil {
			return ck.Value
		}
	}

	sid := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     cookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return sid
}

// withRequest restores the browser's session and builds the controllers
func (s *Server) withRequest(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sid := s.sessionID(c)
		ctx := c.Request().Context()

		auth := session.NewStore(s.client, s.sessions, session.WithKey(sid), session.WithTTL(s.cfg.SessionTTL))
		notes := &app.Notifications{}
		root := app.NewRoot(auth, backend.NewTables(s.client, auth), notes)
		if err := root.Init(ctx); err != nil {
			logger.Warn("Failed to restore session", logger.F("error", err))
		}
		defer root.Close()

		c.Set(requestKey, &request{sid: sid, auth: auth, root: root, notes: notes})
		return next(c)
	}
}

func requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if current(c).root.State() != app.StateAuthenticated {
			return c.Redirect(http.StatusSeeOther, "/")
		}
		return next(c)
	}
}

func flashKey(sid string) string {
	return sid + "_flash"
}

// redirect stores pending notifications for the next page and redirects
func (s *Server) redirect(c echo.Context, to string) error {
	r := current(c)
	if notes := r.notes.Drain(); len(notes) > 0 {
		data, err := sonic.Marshal(notes)
		if err == nil {
			err = s.sessions.Save(c.Request().Context(), flashKey(r.sid), data, flashTTL)
		}
		if err != nil {
			logger.Warn("Failed to save flash", logger.F("error", err))
		}
	}
	return c.Redirect(http.StatusSeeOther, to)
}

// flash returns the notifications saved by the previous redirect
func (s *Server) flash(ctx context.Context, sid string) []app.Notification {
	data, err := s.sessions.Load(ctx, flashKey(sid))
	if err != nil || data == nil {
		return nil
	}
	_ = s.sessions.Delete(ctx, flashKey(sid))

	var notes []app.Notification
	if err := sonic.Unmarshal(data, &notes); err != nil {
		return nil
	}
	return notes
}

// claim records the form's idempotency key. It reports false for a
// duplicate submission, which must not run again
func (s *Server) claim(c echo.Context) (bool, string) {
	key := c.FormValue("idempotency_key")
	if key == "" || s.dedupe == nil {
		return true, ""
	}
	ok, err := s.dedupe.Add(c.Request().Context(), current(c).sid, key)
	if err != nil {
		logger.Warn("Dedupe unavailable", logger.F("error", err))
		return true, ""
	}
	if !ok {
		logger.Info("Dropped duplicate submission", logger.F("path", c.Path()))
	}
	return ok, key
}

// release forgets a key whose action failed so the form can be resubmitted
func (s *Server) release(c echo.Context, key string) {
	if key == "" {
		return
	}
	if err := s.dedupe.Remove(c.Request().Context(), current(c).sid, key); err != nil {
		logger.Warn("Failed to release idempotency key", logger.F("error", err))
	}
}
