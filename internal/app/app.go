// Package app holds the view controllers shared by the browser UI, the
// terminal UI and the CLI. Controllers call the backend directly, re-fetch
// after every successful mutation and report outcomes through a Notifier
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/existflow/promanage/internal/model"
	"github.com/existflow/promanage/internal/session"
)

var (
	// ErrNotAuthenticated is returned when no user can be resolved for an action
	ErrNotAuthenticated = errors.New("user not authenticated")
	// ErrValidation wraps every ValidationError
	ErrValidation = errors.New("validation failed")
)

// ValidationError is a form field that failed its check before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Store is the data API the controllers need
type Store interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	CreateProject(ctx context.Context, in model.NewProject) (*model.Project, error)
	ListTasks(ctx context.Context, projectID string) ([]model.Task, error)
	CreateTask(ctx context.Context, in model.NewTask) (*model.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, patch model.StatusPatch) error
	DeleteTask(ctx context.Context, id string) error
}

// Auth is the auth client API the controllers need
type Auth interface {
	GetSession(ctx context.Context) (*model.Session, error)
	GetUser(ctx context.Context) (*model.User, error)
	SignOut(ctx context.Context) error
	OnChange(fn session.Listener) func()
}

// UserResolver resolves the user behind the current session
type UserResolver interface {
	GetUser(ctx context.Context) (*model.User, error)
}

// Notifier shows a transient message to the user
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// NotificationKind is success or error
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is one message for the user
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

// Notifications collects notifications until a front end drains them
type Notifications struct {
	mu    sync.Mutex
	items []Notification
}

// Success implements Notifier
func (n *Notifications) Success(msg string) {
	n.push(NotifySuccess, msg)
}

// Error implements Notifier
func (n *Notifications) Error(msg string) {
	n.push(NotifyError, msg)
}

func (n *Notifications) push(kind NotificationKind, msg string) {
	n.mu.Lock()
	n.items = append(n.items, Notification{Kind: kind, Message: msg})
	n.mu.Unlock()
}

// Drain returns and clears the pending notifications
func (n *Notifications) Drain() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.items
	n.items = nil
	return out
}

// Last returns the most recent notification without draining
func (n *Notifications) Last() (Notification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.items) == 0 {
		return Notification{}, false
	}
	return n.items[len(n.items)-1], true
}
