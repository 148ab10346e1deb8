package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"

	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/model"
)

// Event is a session change delivered to subscribers
type Event string

const (
	SignedIn       Event = "SIGNED_IN"
	SignedOut      Event = "SIGNED_OUT"
	TokenRefreshed Event = "TOKEN_REFRESHED"
)

// Listener receives session changes. session is nil after SignedOut
type Listener func(event Event, session *model.Session)

// AuthClient is the subset of the backend auth API the store drives
type AuthClient interface {
	SignUp(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*model.User, error)
	SendMagicLink(ctx context.Context, email string) (string, error)
	VerifyMagicLink(ctx context.Context, email, token string) (*model.Session, error)
}

// DefaultKey is the storage key used by single-user front ends
const DefaultKey = "default"

// Store owns the signed-in session: it persists tokens, refreshes them when
// they expire and tells subscribers about every change
type Store struct {
	auth    AuthClient
	storage Storage
	key     string
	ttl     time.Duration
	margin  time.Duration

	mu      sync.Mutex
	session *model.Session
	loaded  bool

	refreshMu sync.Mutex

	subsMu sync.Mutex
	subs   map[int]Listener
	nextID int

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Option configures a Store
type Option func(*Store)

// WithKey selects the storage key, e.g. a browser session id
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithTTL bounds how long storage keeps the session
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithRefreshMargin refreshes tokens this long before they expire
func WithRefreshMargin(margin time.Duration) Option {
	return func(s *Store) { s.margin = margin }
}

// NewStore creates a session store
func NewStore(auth AuthClient, storage Storage, opts ...Option) *Store {
	s := &Store{
		auth:    auth,
		storage: storage,
		key:     DefaultKey,
		ttl:     30 * 24 * time.Hour,
		margin:  30 * time.Second,
		subs:    make(map[int]Listener),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange subscribes to session changes. The returned func unsubscribes
func (s *Store) OnChange(fn Listener) func() {
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) emit(event Event, session *model.Session) {
	s.subsMu.Lock()
	listeners := make([]Listener, 0, len(s.subs))
	for _, fn := range s.subs {
		listeners = append(listeners, fn)
	}
	s.subsMu.Unlock()

	logger.Debug("Session event", logger.F("event", string(event)))
	for _, fn := range listeners {
		fn(event, session)
	}
}

// load reads the stored session once. Callers hold s.mu
func (s *Store) load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	data, err := s.storage.Load(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	s.loaded = true
	if data == nil {
		return nil
	}
	var sess model.Session
	if err := sonic.Unmarshal(data, &sess); err != nil {
		logger.Warn("Discarding unreadable session", logger.F("error", err))
		return nil
	}
	s.session = &sess
	return nil
}

// reload drops the cached session and reads storage again. Callers hold s.mu
func (s *Store) reload(ctx context.Context) error {
	s.loaded = false
	s.session = nil
	return s.load(ctx)
}

// persist stores sess, or deletes the stored session when sess is nil. Callers hold s.mu
func (s *Store) persist(ctx context.Context, sess *model.Session) error {
	s.session = sess
	s.loaded = true
	if sess == nil {
		return s.storage.Delete(ctx, s.key)
	}
	fillExpiry(sess)
	data, err := sonic.Marshal(sess)
	if err != nil {
		return err
	}
	return s.storage.Save(ctx, s.key, data, s.ttl)
}

// fillExpiry reads expires_at from the access token when the backend left it out
func fillExpiry(sess *model.Session) {
	if sess.ExpiresAt != 0 || sess.AccessToken == "" {
		return
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(sess.AccessToken, &claims); err != nil {
		return
	}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Unix()
	}
}

// GetSession returns the current session, refreshing the access token when it
// is about to expire. It returns (nil, nil) when nobody is signed in
func (s *Store) GetSession(ctx context.Context) (*model.Session, error) {
	s.mu.Lock()
	if err := s.load(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	sess := s.session
	if sess == nil {
		s.mu.Unlock()
		return nil, nil
	}
	if !sess.IsExpired(s.margin) {
		out := *sess
		s.mu.Unlock()
		return &out, nil
	}
	s.mu.Unlock()

	return s.refresh(ctx, s.margin)
}

// refresh swaps the refresh token for a new pair unless the stored session
// stays valid for window. Only one refresh runs at a time, and each one
// re-reads storage first so a token another caller already rotated is
// never sent again
func (s *Store) refresh(ctx context.Context, window time.Duration) (*model.Session, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.Lock()
	if err := s.reload(ctx); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.session == nil {
		s.mu.Unlock()
		return nil, nil
	}
	if !s.session.IsExpired(window) {
		out := *s.session
		s.mu.Unlock()
		return &out, nil
	}
	refreshToken := s.session.RefreshToken
	s.mu.Unlock()

	next, err := s.auth.RefreshSession(ctx, refreshToken)
	if err != nil {
		var apiErr *backend.APIError
		if !errors.As(err, &apiErr) || apiErr.Status >= 500 {
			return nil, fmt.Errorf("failed to refresh session: %w", err)
		}

		s.mu.Lock()
		if rerr := s.reload(ctx); rerr == nil && s.session != nil && s.session.RefreshToken != refreshToken {
			// rotated by someone sharing the storage while we were waiting
			out := *s.session
			s.mu.Unlock()
			return &out, nil
		}
		logger.Info("Session expired", logger.F("error", err))
		perr := s.persist(ctx, nil)
		s.mu.Unlock()
		if perr != nil {
			logger.Warn("Failed to clear session", logger.F("error", perr))
		}
		s.emit(SignedOut, nil)
		return nil, nil
	}

	s.mu.Lock()
	err = s.persist(ctx, next)
	out := *next
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.emit(TokenRefreshed, &out)
	return &out, nil
}

// AccessToken implements backend.TokenSource. It is empty when signed out
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	sess, err := s.GetSession(ctx)
	if err != nil || sess == nil {
		return "", err
	}
	return sess.AccessToken, nil
}

// GetUser asks the auth service who the current token belongs to. It returns
// (nil, nil) when nobody is signed in
func (s *Store) GetUser(ctx context.Context) (*model.User, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}
	user, err := s.auth.GetUser(ctx, token)
	if errors.Is(err, backend.ErrUnauthorized) {
		return nil, nil
	}
	return user, err
}

func (s *Store) signedIn(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	err := s.persist(ctx, sess)
	out := *sess
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logger.Info("Signed in", logger.F("user_id", out.User.ID))
	s.emit(SignedIn, &out)
	return nil
}

// SignInWithPassword signs in and persists the session
func (s *Store) SignInWithPassword(ctx context.Context, email, password string) error {
	sess, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return err
	}
	return s.signedIn(ctx, sess)
}

// SignUp registers an account. It reports false when the backend wants the
// address confirmed before the first sign-in
func (s *Store) SignUp(ctx context.Context, email, password string) (bool, error) {
	sess, _, err := s.auth.SignUp(ctx, email, password)
	if err != nil {
		return false, err
	}
	if sess == nil {
		return false, nil
	}
	return true, s.signedIn(ctx, sess)
}

// SendMagicLink requests a one-time sign-in token for email
func (s *Store) SendMagicLink(ctx context.Context, email string) (string, error) {
	return s.auth.SendMagicLink(ctx, email)
}

// VerifyMagicLink signs in with an emailed token
func (s *Store) VerifyMagicLink(ctx context.Context, email, token string) error {
	sess, err := s.auth.VerifyMagicLink(ctx, email, token)
	if err != nil {
		return err
	}
	return s.signedIn(ctx, sess)
}

// SignOut revokes the session on the backend and forgets it locally. The
// local session is dropped even when the backend call fails
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	if err := s.load(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	token := ""
	if s.session != nil {
		token = s.session.AccessToken
	}
	perr := s.persist(ctx, nil)
	s.mu.Unlock()

	if token != "" {
		if err := s.auth.SignOut(ctx, token); err != nil && !errors.Is(err, backend.ErrUnauthorized) {
			logger.Warn("Backend sign-out failed", logger.F("error", err))
		}
	}
	s.emit(SignedOut, nil)

	if perr != nil {
		return fmt.Errorf("failed to clear session: %w", perr)
	}
	return nil
}
