package server

import (
	"database/sql"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/model"
)

const minPasswordLength = 6

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func normalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", false
	}
	return email, true
}

func scanUser(row *sql.Row) (model.User, string, error) {
	var (
		u         model.User
		hash      sql.NullString
		createdAt string
	)
	if err := row.Scan(&u.ID, &u.Email, &hash, &u.Role, &createdAt); err != nil {
		return model.User{}, "", err
	}
	u.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return u, hash.String, nil
}

const userColumns = `id, email, password_hash, role, created_at`

// handleSignUp registers a user and signs them in right away
func (s *Server) handleSignUp(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return writeAuthError(c, http.StatusBadRequest, "bad_json", "invalid request")
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return writeAuthError(c, http.StatusBadRequest, "validation_failed", "Unable to validate email address: invalid format")
	}
	if len(req.Password) < minPasswordLength {
		return writeAuthError(c, http.StatusUnprocessableEntity, "weak_password", "Password should be at least 6 characters.")
	}

	// Hash password
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.Logger().Error("bcrypt error: ", err)
		return writeAuthError(c, http.StatusInternalServerError, "unexpected_failure", "internal error")
	}

	ctx := c.Request().Context()
	user := model.User{ID: uuid.NewString(), Email: email, Role: audience, CreatedAt: s.now().UTC()}
	var sess *model.Session
	err = s.inTx(ctx, func(st store) error {
		var exists int
		err := st.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return errUserExists
		}
		_, err = st.exec(ctx, `
			INSERT INTO users (id, email, password_hash, role, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			user.ID, user.Email, string(hash), user.Role, stamp(user.CreatedAt),
		)
		if err != nil {
			return err
		}
		sess, err = s.issueSession(ctx, st, user)
		return err
	})
	if errors.Is(err, errUserExists) {
		return writeAuthError(c, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
	}
	if err != nil {
		c.Logger().Error("signup error: ", err)
		return writeAuthError(c, http.StatusInternalServerError, "unexpected_failure", "internal error")
	}

	logger.Info("User registered", logger.F("user_id", user.ID))
	return c.JSON(http.StatusOK, sess)
}

var errUserExists = errors.New("user exists")

// handleToken serves the password and refresh_token grants
func (s *Server) handleToken(c echo.Context) error {
	switch c.QueryParam("grant_type") {
	case "password":
		return s.passwordGrant(c)
	case "refresh_token":
		return s.refreshGrant(c)
	}
	return writeAuthError(c, http.StatusBadRequest, "unsupported_grant_type", "unsupported_grant_type")
}

func (s *Server) passwordGrant(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil {
		return writeAuthError(c, http.StatusBadRequest, "bad_json", "invalid request")
	}
	email, _ := normalizeEmail(req.Email)

	ctx := c.Request().Context()
	user, hash, err := scanUser(s.store().queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil || hash == "" {
		return writeAuthError(c, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
	}

	// Check password
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		return writeAuthError(c, http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
	}

	sess, err := s.issueSession(ctx, s.store(), user)
	if err != nil {
		c.Logger().Error("session error: ", err)
		return writeAuthError(c, http.StatusInternalServerError, "unexpected_failure", "internal error")
	}

	logger.Info("User logged in", logger.F("user_id", user.ID))
	return c.JSON(http.StatusOK, sess)
}

var errRefreshInvalid = errors.New("refresh token invalid")

// refreshReuseInterval is how long a rotated refresh token keeps resolving to
// its replacement, so two clients racing on the same token both succeed
const refreshReuseInterval = 10 * time.Second

// refreshGrant rotates a refresh token. The old one stops working once the
// reuse interval has passed
func (s *Server) refreshGrant(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return writeAuthError(c, http.StatusBadRequest, "validation_failed", "refresh_token required")
	}

	ctx := c.Request().Context()
	var sess *model.Session
	err := s.inTx(ctx, func(st store) error {
		var sessionID, userID, expiresAt string
		var rotatedAt, replacedBy sql.NullString
		err := st.queryRow(ctx, `SELECT id, user_id, expires_at, rotated_at, replaced_by FROM sessions WHERE refresh_token = ?`, req.RefreshToken).
			Scan(&sessionID, &userID, &expiresAt, &rotatedAt, &replacedBy)
		if errors.Is(err, sql.ErrNoRows) {
			return errRefreshInvalid
		}
		if err != nil {
			return err
		}

		now := s.now()
		if rotatedAt.Valid {
			at, perr := time.Parse(timeLayout, rotatedAt.String)
			if perr != nil || now.Sub(at) > refreshReuseInterval || !replacedBy.Valid {
				return errRefreshInvalid
			}
			sess, err = s.resumeSession(ctx, st, replacedBy.String)
			return err
		}
		if exp, perr := time.Parse(timeLayout, expiresAt); perr != nil || now.After(exp) {
			return errRefreshInvalid
		}

		user, _, err := scanUser(st.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
		if err != nil {
			return err
		}
		sess, err = s.issueSession(ctx, st, user)
		if err != nil {
			return err
		}
		_, err = st.exec(ctx, `UPDATE sessions SET rotated_at = ?, replaced_by = ? WHERE id = ?`,
			stamp(now), sess.RefreshToken, sessionID)
		return err
	})
	if errors.Is(err, errRefreshInvalid) {
		return writeAuthError(c, http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
	}
	if err != nil {
		c.Logger().Error("refresh error: ", err)
		return writeAuthError(c, http.StatusInternalServerError, "unexpected_failure", "internal error")
	}
	return c.JSON(http.StatusOK, sess)
}

// handleLogout revokes the session the access token was issued for
func (s *Server) handleLogout(c echo.Context) error {
	claims, err := s.parseAccessToken(bearerToken(c))
	if err != nil {
		return writeAuthError(c, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
	}

	if _, err := s.store().exec(c.Request().Context(), `DELETE FROM sessions WHERE id = ?`, claims.SessionID); err != nil {
		c.Logger().Error("logout error: ", err)
		return writeAuthError(c, http.StatusInternalServerError, "unexpected_failure", "internal error")
	}

	logger.Info("User logged out", logger.F("user_id", claims.Subject))
	return c.NoContent(http.StatusNoContent)
}

// handleUser returns the user behind the access token
func (s *Server) handleUser(c echo.Context) error {
	claims, err := s.parseAccessToken(bearerToken(c))
	if err != nil {
		return writeAuthError(c, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
	}

	user, _, err := scanUser(s.store().queryRow(c.Request().Context(), `SELECT `+userColumns+` FROM users WHERE id = ?`, claims.Subject))
	if errors.Is(err, sql.ErrNoRows) {
		return writeAuthError(c, http.StatusNotFound, "user_not_found", "User from sub claim in JWT does not exist")
	}
	if err != nil {
		c.Logger().Error("user lookup error: ", err)
		return writeAuthError(c, http.StatusInternalServerError, "unexpected_failure", "internal error")
	}
	return c.JSON(http.StatusOK, user)
}
