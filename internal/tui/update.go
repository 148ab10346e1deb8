package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/logger"
)

// initDoneMsg is sent once the stored session has been checked
type initDoneMsg struct {
	err error
}

// sessionMsg is sent when the session changes (sign in, refresh, sign out)
type sessionMsg struct{}

// actionDoneMsg is sent when an action's network call returns
type actionDoneMsg struct {
	action string
	err    error
}

// Init restores the session and starts listening for session changes
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.restore(), m.waitForSession())
}

func (m Model) restore() tea.Cmd {
	return func() tea.Msg {
		return initDoneMsg{err: m.root.Init(m.ctx)}
	}
}

// waitForSession listens for session change signals
func (m Model) waitForSession() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.events:
			return sessionMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

// run executes fn off the render loop. Further actions are ignored until it
// returns
func (m *Model) run(action string, fn func() error) tea.Cmd {
	m.busy = true
	m.message = ""
	return func() tea.Msg {
		return actionDoneMsg{action: action, err: fn()}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case initDoneMsg:
		if msg.err != nil {
			logger.Warn("Session check failed", logger.F("error", msg.err))
			m.setMessage(msg.err.Error(), true)
		}
		return m, nil

	case sessionMsg:
		if m.root.State() != app.StateAuthenticated {
			m.mode = ModeNormal
			m.pane = PaneSidebar
			m.projCursor, m.taskCursor = 0, 0
			m.login = newLoginInputs()
			m.loginFocus = 0
		}
		m.showNotes()
		m.clamp()
		return m, m.waitForSession()

	case actionDoneMsg:
		m.busy = false
		m.actionDone(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}

		switch m.root.State() {
		case app.StateLoading:
			return m, nil
		case app.StateUnauthenticated:
			return m.updateLogin(msg)
		}

		// Handle mode-specific input
		switch m.mode {
		case ModeAddTask, ModeAddProject:
			return m.updateForm(msg)
		case ModeConfirmDelete:
			return m.updateConfirm(msg)
		case ModeHelp:
			m.mode = ModeNormal
			return m, nil
		}

		// Normal mode key handling
		return m.handleNormalKeys(msg)
	}

	return m, nil
}

func (m *Model) setMessage(msg string, isError bool) {
	m.message = msg
	m.isError = isError
}

// showNotes moves the latest notification into the status bar
func (m *Model) showNotes() bool {
	notes := m.notes.Drain()
	if len(notes) == 0 {
		return false
	}
	last := notes[len(notes)-1]
	m.setMessage(last.Message, last.Kind == app.NotifyError)
	return true
}

// actionDone shows the outcome of an action and settles the view
func (m *Model) actionDone(msg actionDoneMsg) {
	if !m.showNotes() && msg.err != nil {
		m.setMessage(msg.err.Error(), true)
	}

	switch msg.action {
	case "login":
		if msg.err == nil {
			m.login = newLoginInputs()
			m.loginFocus = 0
		}
	case "create-project":
		if msg.err == nil {
			m.mode = ModeNormal
			m.syncCursor()
			m.pane = PaneTaskList
			m.taskCursor = 0
		}
	case "create-task":
		if msg.err == nil {
			m.mode = ModeNormal
			m.taskCursor = 0
		}
	case "select":
		if m.root.Selected() != "" {
			m.pane = PaneTaskList
			m.taskCursor = 0
		}
	}

	if m.root.Detail() == nil && m.pane == PaneTaskList {
		m.pane = PaneSidebar
	}
	m.clamp()
}

// handleNormalKeys handles key presses in normal mode
func (m Model) handleNormalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, keys.Tab):
		if m.pane == PaneSidebar && m.root.Detail() != nil {
			m.pane = PaneTaskList
		} else {
			m.pane = PaneSidebar
		}

	case key.Matches(msg, keys.Left):
		m.pane = PaneSidebar

	case key.Matches(msg, keys.Up):
		m.handleUp()

	case key.Matches(msg, keys.Down):
		m.handleDown()

	case key.Matches(msg, keys.Right):
		if m.pane == PaneSidebar {
			return m, m.selectProject()
		}

	case key.Matches(msg, keys.Enter):
		if m.pane == PaneSidebar {
			return m, m.selectProject()
		}
		return m, m.toggleTask()

	case key.Matches(msg, keys.Done):
		if m.pane == PaneTaskList {
			return m, m.toggleTask()
		}

	case key.Matches(msg, keys.Delete):
		return m.startDelete()

	case key.Matches(msg, keys.NewProject):
		return m.startAddProject()

	case key.Matches(msg, keys.AddTask):
		return m.startAddTask()

	case key.Matches(msg, keys.Help):
		m.mode = ModeHelp

	case key.Matches(msg, keys.Logout):
		return m, m.run("logout", func() error {
			return m.root.SignOut(m.ctx)
		})

	case key.Matches(msg, keys.Refresh):
		return m, m.refresh()
	}

	return m, nil
}

func (m *Model) handleUp() {
	if m.pane == PaneSidebar {
		if m.projCursor > 0 {
			m.projCursor--
		}
	} else if m.taskCursor > 0 {
		m.taskCursor--
	}
}

func (m *Model) handleDown() {
	if m.pane == PaneSidebar {
		if m.projCursor < len(m.projects())-1 {
			m.projCursor++
		}
	} else if m.taskCursor < len(m.tasks())-1 {
		m.taskCursor++
	}
}

func (m *Model) selectProject() tea.Cmd {
	p := m.currentProject()
	if p == nil {
		return nil
	}
	id := p.ID
	return m.run("select", func() error {
		return m.root.Select(m.ctx, id)
	})
}

func (m *Model) toggleTask() tea.Cmd {
	d := m.root.Detail()
	task := m.currentTask()
	if d == nil || task == nil || m.pane != PaneTaskList {
		return nil
	}
	id := task.ID
	return m.run("toggle", func() error {
		return d.ToggleTask(m.ctx, id)
	})
}

func (m *Model) refresh() tea.Cmd {
	selected := m.root.Selected()
	return m.run("refresh", func() error {
		m.root.FetchProjects(m.ctx)
		if selected != "" {
			return m.root.Select(m.ctx, selected)
		}
		return nil
	})
}

func (m Model) startDelete() (tea.Model, tea.Cmd) {
	d := m.root.Detail()
	task := m.currentTask()
	if d == nil || task == nil || m.pane != PaneTaskList {
		return m, nil
	}
	if m.opts.ConfirmDelete {
		m.pendingDelete = *task
		m.mode = ModeConfirmDelete
		return m, nil
	}
	id := task.ID
	return m, m.run("delete", func() error {
		_, err := d.DeleteTask(m.ctx, id, app.AlwaysConfirm)
		return err
	})
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Yes):
		m.mode = ModeNormal
		d := m.root.Detail()
		if d == nil {
			return m, nil
		}
		id := m.pendingDelete.ID
		return m, m.run("delete", func() error {
			_, err := d.DeleteTask(m.ctx, id, app.AlwaysConfirm)
			return err
		})
	case key.Matches(msg, keys.No):
		m.mode = ModeNormal
		m.setMessage("Delete cancelled", false)
	}
	return m, nil
}

func (m Model) startAddProject() (tea.Model, tea.Cmd) {
	form := m.root.List().Form()
	name := newInput("Project name", 120)
	name.SetValue(form.Name)
	desc := newInput("Description (optional, markdown)", 500)
	desc.SetValue(form.Description)

	m.root.List().OpenForm()
	m.inputs = []textinput.Model{name, desc}
	m.focus = 0
	m.inputs[0].Focus()
	m.mode = ModeAddProject
	return m, textinput.Blink
}

func (m Model) startAddTask() (tea.Model, tea.Cmd) {
	d := m.root.Detail()
	if d == nil {
		m.setMessage("Select a project first", true)
		return m, nil
	}

	d.OpenForm()
	in := d.Form().Input
	title := newInput("Task title", 200)
	title.SetValue(in.Title)
	desc := newInput("Description (optional)", 500)
	desc.SetValue(in.Description)
	priority := newInput("low, medium or high", 6)
	priority.SetValue(in.Priority)
	due := newInput("Due date YYYY-MM-DD (optional)", 10)
	due.SetValue(in.DueDate)

	m.inputs = []textinput.Model{title, desc, priority, due}
	m.focus = 0
	m.inputs[0].Focus()
	m.mode = ModeAddTask
	return m, textinput.Blink
}

func (m *Model) focusInput(inputs []textinput.Model, focus *int, delta int) {
	inputs[*focus].Blur()
	*focus = (*focus + delta + len(inputs)) % len(inputs)
	inputs[*focus].Focus()
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		if m.mode == ModeAddProject {
			m.root.List().CancelForm()
		} else if d := m.root.Detail(); d != nil {
			d.CancelForm()
		}
		m.mode = ModeNormal
		return m, nil

	case msg.Type == tea.KeyTab || msg.Type == tea.KeyDown:
		m.focusInput(m.inputs, &m.focus, 1)
		return m, nil

	case msg.Type == tea.KeyShiftTab || msg.Type == tea.KeyUp:
		m.focusInput(m.inputs, &m.focus, -1)
		return m, nil

	case key.Matches(msg, keys.Enter):
		return m, m.submitForm()
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *Model) submitForm() tea.Cmd {
	values := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		values[i] = in.Value()
	}

	if m.mode == ModeAddProject {
		list := m.root.List()
		return m.run("create-project", func() error {
			_, err := list.Create(m.ctx, values[0], values[1])
			return err
		})
	}

	d := m.root.Detail()
	if d == nil {
		m.mode = ModeNormal
		return nil
	}
	input := app.TaskInput{
		Title:       values[0],
		Description: values[1],
		Priority:    strings.TrimSpace(values[2]),
		DueDate:     strings.TrimSpace(values[3]),
	}
	return m.run("create-task", func() error {
		_, err := d.CreateTask(m.ctx, input)
		return err
	})
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Escape):
		return m, tea.Quit

	case key.Matches(msg, keys.SignUp):
		m.loginSignUp = !m.loginSignUp
		return m, nil

	case msg.Type == tea.KeyTab || msg.Type == tea.KeyShiftTab || msg.Type == tea.KeyUp || msg.Type == tea.KeyDown:
		m.focusInput(m.login, &m.loginFocus, 1)
		return m, nil

	case key.Matches(msg, keys.Enter):
		email := strings.TrimSpace(m.login[0].Value())
		password := m.login[1].Value()
		if email == "" || password == "" {
			m.setMessage("Email and password are required", true)
			return m, nil
		}
		if m.loginSignUp {
			return m, m.run("login", func() error {
				confirmed, err := m.auth.SignUp(m.ctx, email, password)
				if err == nil && !confirmed {
					m.notes.Success(fmt.Sprintf("Check %s to confirm your account", email))
				}
				return err
			})
		}
		return m, m.run("login", func() error {
			return m.auth.SignInWithPassword(m.ctx, email, password)
		})
	}

	var cmd tea.Cmd
	m.login[m.loginFocus], cmd = m.login[m.loginFocus].Update(msg)
	return m, cmd
}
