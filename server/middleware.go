package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/existflow/promanage/internal/logger"
)

const userIDKey = "user_id"

// requestLogger logs one line per request through the app logger
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		res := c.Response()
		logger.Info("HTTP Request",
			logger.F("method", req.Method),
			logger.F("uri", req.RequestURI),
			logger.F("status", res.Status),
			logger.F("size", res.Size),
			logger.F("duration", time.Since(start).String()),
			logger.F("request_id", res.Header().Get(echo.HeaderXRequestID)))
		return nil
	}
}

// requireAPIKey rejects requests without the project's anon key
func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get("apikey") != s.anonKey {
			return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		}
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth {
		return ""
	}
	return token
}

// resolveUser sets the caller's user id for row checks. The anon key as
// bearer means an anonymous caller, who sees no rows
func (s *Server) resolveUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" || token == s.anonKey {
			c.Set(userIDKey, "")
			return next(c)
		}

		claims, err := s.parseAccessToken(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return writeRestError(c, newRestError(http.StatusUnauthorized, "PGRST303", "JWT expired"))
			}
			return writeRestError(c, newRestError(http.StatusUnauthorized, "PGRST301", "JWT could not be decoded"))
		}

		c.Set(userIDKey, claims.Subject)
		return next(c)
	}
}

func currentUserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}
