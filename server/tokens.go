package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/existflow/promanage/internal/model"
)

const (
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour
	audience        = "authenticated"
)

// accessClaims are the claims of an access token
type accessClaims struct {
	Email     string `json:"email"`
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

func (s *Server) signAccessToken(user model.User, sessionID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(accessTokenTTL)
	claims := accessClaims{
		Email:     user.Email,
		Role:      user.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Audience:  jwt.ClaimStrings{audience},
			Issuer:    "promanage",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return signed, expiresAt, err
}

func (s *Server) parseAccessToken(token string) (*accessClaims, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, errors.New("invalid audience")
	}
	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}
	return claims, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// issueSession stores a refresh token and signs a matching access token
func (s *Server) issueSession(ctx context.Context, st store, user model.User) (*model.Session, error) {
	now := s.now()
	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	sessionID := uuid.NewString()

	_, err = st.exec(ctx, `
		INSERT INTO sessions (id, user_id, refresh_token, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, user.ID, refresh, stamp(now.Add(refreshTokenTTL)), stamp(now),
	)
	if err != nil {
		return nil, err
	}

	access, expiresAt, err := s.signAccessToken(user, sessionID, now)
	if err != nil {
		return nil, err
	}

	return &model.Session{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(accessTokenTTL / time.Second),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: refresh,
		User:         user,
	}, nil
}

// resumeSession signs a fresh access token for the live session holding
// refreshToken
func (s *Server) resumeSession(ctx context.Context, st store, refreshToken string) (*model.Session, error) {
	var sessionID, userID, expiresAt string
	err := st.queryRow(ctx, `SELECT id, user_id, expires_at FROM sessions WHERE refresh_token = ?`, refreshToken).
		Scan(&sessionID, &userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errRefreshInvalid
	}
	if err != nil {
		return nil, err
	}
	now := s.now()
	if exp, perr := time.Parse(timeLayout, expiresAt); perr != nil || now.After(exp) {
		return nil, errRefreshInvalid
	}

	user, _, err := scanUser(st.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID))
	if err != nil {
		return nil, err
	}
	access, accessExpiry, err := s.signAccessToken(user, sessionID, now)
	if err != nil {
		return nil, err
	}

	return &model.Session{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(accessTokenTTL / time.Second),
		ExpiresAt:    accessExpiry.Unix(),
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}
