package app

import (
	"context"
	"sync"

	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/model"
	"github.com/existflow/promanage/internal/session"
)

// AuthState is the gate's view of the session
type AuthState int

const (
	StateLoading AuthState = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s AuthState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Gate tracks whether a user is signed in. It subscribes to session changes
// on Init and unsubscribes on Close
type Gate struct {
	auth Auth

	mu          sync.Mutex
	state       AuthState
	session     *model.Session
	unsubscribe func()
	listeners   []func(prev, next AuthState)
}

// NewGate creates a gate in the Loading state
func NewGate(auth Auth) *Gate {
	return &Gate{auth: auth, state: StateLoading}
}

// OnStateChange registers fn for every state update (including session
// refreshes that keep the state). Register before Init
func (g *Gate) OnStateChange(fn func(prev, next AuthState)) {
	g.mu.Lock()
	g.listeners = append(g.listeners, fn)
	g.mu.Unlock()
}

// Init subscribes to session changes and retrieves the current session
func (g *Gate) Init(ctx context.Context) error {
	g.mu.Lock()
	if g.unsubscribe == nil {
		g.unsubscribe = g.auth.OnChange(g.handle)
	}
	g.mu.Unlock()

	sess, err := g.auth.GetSession(ctx)
	if err != nil {
		logger.Error("Failed to get session", logger.F("error", err))
		g.set(nil)
		return err
	}
	g.set(sess)
	return nil
}

func (g *Gate) handle(_ session.Event, sess *model.Session) {
	g.set(sess)
}

func (g *Gate) set(sess *model.Session) {
	g.mu.Lock()
	prev := g.state
	g.session = sess
	if sess != nil {
		g.state = StateAuthenticated
	} else {
		g.state = StateUnauthenticated
	}
	next := g.state
	listeners := append([]func(prev, next AuthState){}, g.listeners...)
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
}

// Close unsubscribes from session changes
func (g *Gate) Close() {
	g.mu.Lock()
	unsubscribe := g.unsubscribe
	g.unsubscribe = nil
	g.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// State returns the current state
func (g *Gate) State() AuthState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Session returns the current session, nil unless authenticated
func (g *Gate) Session() *model.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return nil
	}
	s := *g.session
	return &s
}

// SignOut asks the auth service to end the session. The state moves to
// Unauthenticated through the subscription
func (g *Gate) SignOut(ctx context.Context) error {
	return g.auth.SignOut(ctx)
}
