package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all key bindings
type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Left       key.Binding
	Right      key.Binding
	Tab        key.Binding
	Enter      key.Binding
	AddTask    key.Binding
	Done       key.Binding
	Delete     key.Binding
	NewProject key.Binding
	Help       key.Binding
	Quit       key.Binding
	Escape     key.Binding
	Logout     key.Binding
	Refresh    key.Binding
	Yes        key.Binding
	No         key.Binding
	Next       key.Binding
	Prev       key.Binding
	SignUp     key.Binding
}

var keys = keyMap{
	Up:         key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:       key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Left:       key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "projects")),
	Right:      key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "open project")),
	Tab:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
	Enter:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open/toggle")),
	AddTask:    key.NewBinding(key.WithKeys("t", "a"), key.WithHelp("t", "add task")),
	Done:       key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "toggle done")),
	Delete:     key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
	NewProject: key.NewBinding(key.WithKeys("n", "p"), key.WithHelp("n", "new project")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Escape:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	Logout:     key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "sign out")),
	Refresh:    key.NewBinding(key.WithKeys("r", "R"), key.WithHelp("r", "refresh")),
	Yes:        key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "yes")),
	No:         key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("n", "no")),
	Next:       key.NewBinding(key.WithKeys("tab", "down"), key.WithHelp("tab", "next field")),
	Prev:       key.NewBinding(key.WithKeys("shift+tab", "up"), key.WithHelp("shift+tab", "previous field")),
	SignUp:     key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "sign in/sign up")),
}
