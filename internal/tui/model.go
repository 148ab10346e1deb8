package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/glamour"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/model"
)

// Pane represents which pane is focused
type Pane int

const (
	PaneSidebar Pane = iota
	PaneTaskList
)

// Mode represents the current UI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeAddTask
	ModeAddProject
	ModeConfirmDelete
	ModeHelp
)

// Authenticator signs a user in from the login screen
type Authenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) (bool, error)
}

// Options tweak the terminal UI
type Options struct {
	// ConfirmDelete asks y/n before a task is deleted
	ConfirmDelete bool
	// MarkdownStyle is the glamour style for project descriptions
	MarkdownStyle string
}

// Model is the main TUI model
type Model struct {
	ctx   context.Context
	root  *app.Root
	auth  Authenticator
	notes *app.Notifications
	opts  Options

	// session changes arrive here from the auth subscription
	events chan struct{}

	// UI state
	width      int
	height     int
	pane       Pane
	mode       Mode
	projCursor int
	taskCursor int

	// busy is set while an action's network call is in flight
	busy bool

	// Login form
	login       []textinput.Model
	loginFocus  int
	loginSignUp bool

	// Project and task forms
	inputs []textinput.Model
	focus  int

	pendingDelete model.Task

	markdown *glamour.TermRenderer
	message  string
	isError  bool
}

// NewModel creates a new TUI model over root. Notifications raised by the
// controllers must go to notes
func NewModel(ctx context.Context, root *app.Root, auth Authenticator, notes *app.Notifications, opts Options) Model {
	logger.Info("Initializing TUI model")

	if opts.MarkdownStyle == "" {
		opts.MarkdownStyle = "dark"
	}

	m := Model{
		ctx:    ctx,
		root:   root,
		auth:   auth,
		notes:  notes,
		opts:   opts,
		events: make(chan struct{}, 1), // Buffered to avoid blocking
		pane:   PaneSidebar,
		mode:   ModeNormal,
		login:  newLoginInputs(),
	}

	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(opts.MarkdownStyle),
		glamour.WithWordWrap(60),
	)
	if err != nil {
		logger.Debug("Markdown renderer unavailable", logger.F("error", err))
	} else {
		m.markdown = md
	}

	// Signal a redraw when the session changes
	root.OnChange(func() {
		select {
		case m.events <- struct{}{}:
		default:
		}
	})
	return m
}

func newLoginInputs() []textinput.Model {
	email := textinput.New()
	email.Placeholder = "email"
	email.CharLimit = 256
	email.Width = 40
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 128
	password.Width = 40

	return []textinput.Model{email, password}
}

func newInput(placeholder string, limit int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = limit
	ti.Width = 50
	return ti
}

func (m *Model) projects() []model.Project {
	return m.root.Projects()
}

func (m *Model) tasks() []model.Task {
	if d := m.root.Detail(); d != nil {
		return d.Tasks()
	}
	return nil
}

func (m *Model) currentProject() *model.Project {
	projects := m.projects()
	if m.projCursor < len(projects) {
		return &projects[m.projCursor]
	}
	return nil
}

func (m *Model) currentTask() *model.Task {
	tasks := m.tasks()
	if m.taskCursor < len(tasks) {
		return &tasks[m.taskCursor]
	}
	return nil
}

// clamp keeps the cursors inside the current lists
func (m *Model) clamp() {
	if n := len(m.projects()); m.projCursor >= n {
		m.projCursor = max(n-1, 0)
	}
	if n := len(m.tasks()); m.taskCursor >= n {
		m.taskCursor = max(n-1, 0)
	}
}

// syncCursor moves the sidebar cursor onto the selected project
func (m *Model) syncCursor() {
	id := m.root.Selected()
	for i, p := range m.projects() {
		if p.ID == id {
			m.projCursor = i
			return
		}
	}
}
