package server

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/model"
)

const magicLinkTTL = 15 * time.Minute

type otpRequest struct {
	Email      string `json:"email"`
	CreateUser *bool  `json:"create_user"`
}

type verifyRequest struct {
	Type  string `json:"type"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// handleOTP creates a single-use sign-in token for passwordless login
func (s *Server) handleOTP(c echo.Context) error {
	var req otpRequest
	if err := c.Bind(&req); err != nil {
		return writeAuthError(c, http.StatusBadRequest, "bad_json", "invalid request")
	}

	email, ok := normalizeEmail(req.Email)
	if !ok {
		return writeAuthError(c, http.StatusBadRequest, "validation_failed", "Unable to validate email address: invalid format")
	}
	createUser := req.CreateUser == nil || *req.CreateUser

	ctx := c.Request().Context()
	now := s.now()
	var token string
	err := s.inTx(ctx, func(st store) error {
		var exists int
		if err := st.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			if !createUser {
				return errNoUser
			}
			_, err := st.exec(ctx, `
				INSERT INTO users (id, email, role, created_at)
				VALUES (?, ?, ?, ?)`,
				uuid.NewString(), email, audience, stamp(now),
			)
			if err != nil {
				return err
			}
		}

		var err error
		token, err = randomToken()
		if err != nil {
			return err
		}
		_, err = st.exec(ctx, `
			INSERT INTO magic_links (id, email, token, expires_at, used, created_at)
			VALUES (?, ?, ?, ?, 0, ?)`,
			uuid.NewString(), email, token, stamp(now.Add(magicLinkTTL)), stamp(now),
		)
		return err
	})
	if errors.Is(err, errNoUser) {
		// Don't reveal if email exists
		return c.JSON(http.StatusOK, map[string]string{})
	}
	if err != nil {
		c.Logger().Error("magic link error: ", err)
		return writeAuthError(c, http.StatusInternalServerError, "unexpected_failure", "internal error")
	}

	logger.Info("Magic link created", logger.F("email", email))

	// Delivery is out of scope; dev mode hands the token back directly
	if s.devMode {
		return c.JSON(http.StatusOK, map[string]string{"token": token})
	}
	return c.JSON(http.StatusOK, map[string]string{})
}

var errNoUser = errors.New("no such user")
var errOTPInvalid = errors.New("otp invalid")

// handleVerify exchanges a magic-link token for a session
func (s *Server) handleVerify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return writeAuthError(c, http.StatusBadRequest, "bad_json", "invalid request")
	}
	if req.Type != "magiclink" && req.Type != "email" {
		return writeAuthError(c, http.StatusBadRequest, "validation_failed", "Verify requires a verification type")
	}
	email, _ := normalizeEmail(req.Email)

	ctx := c.Request().Context()
	var sess *model.Session
	err := s.inTx(ctx, func(st store) error {
		var (
			id, expiresAt string
			used          int
		)
		err := st.queryRow(ctx, `SELECT id, expires_at, used FROM magic_links WHERE token = ? AND email = ?`, req.Token, email).
			Scan(&id, &expiresAt, &used)
		if errors.Is(err, sql.ErrNoRows) {
			return errOTPInvalid
		}
		if err != nil {
			return err
		}
		exp, perr := time.Parse(timeLayout, expiresAt)
		if used != 0 || perr != nil || s.now().After(exp) {
			return errOTPInvalid
		}

		// Mark as used
		if _, err := st.exec(ctx, `UPDATE magic_links SET used = 1 WHERE id = ?`, id); err != nil {
			return err
		}

		user, _, err := scanUser(st.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
		if err != nil {
			return err
		}
		sess, err = s.issueSession(ctx, st, user)
		return err
	})
	if errors.Is(err, errOTPInvalid) {
		return writeAuthError(c, http.StatusForbidden, "otp_expired", "Token has expired or is invalid")
	}
	if err != nil {
		c.Logger().Error("verify error: ", err)
		return writeAuthError(c, http.StatusInternalServerError, "unexpected_failure", "internal error")
	}

	logger.Info("Magic link login", logger.F("user_id", sess.User.ID))
	return c.JSON(http.StatusOK, sess)
}
