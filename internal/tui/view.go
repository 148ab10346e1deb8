package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/model"
)

const (
	dateLayout   = "Jan 2, 2006"
	sidebarWidth = 28
	placeholder  = "Select a project or create a new one to get started"
)

// View renders the UI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.root.State() {
	case app.StateLoading:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, "Loading...")
	case app.StateUnauthenticated:
		return lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.Place(m.width, m.height-2, lipgloss.Center, lipgloss.Center, m.renderLogin()),
			m.renderStatusBar(),
		)
	}

	header := m.renderHeader()
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), m.renderTaskList())

	switch m.mode {
	case ModeAddTask, ModeAddProject:
		body = m.place(m.renderModal())
	case ModeConfirmDelete:
		body = m.place(m.renderConfirm())
	case ModeHelp:
		body = m.renderHelp()
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderStatusBar())
}

func (m Model) bodyHeight() int {
	return max(m.height-3, 1)
}

func (m Model) place(modal string) string {
	return lipgloss.Place(
		m.width, m.bodyHeight(),
		lipgloss.Center, lipgloss.Center,
		modal,
		lipgloss.WithWhitespaceChars(" "),
	)
}

func (m Model) renderHeader() string {
	left := HeaderStyle.Render("ProManage")
	email := ""
	if sess := m.root.Session(); sess != nil {
		email = sess.User.Email
	}
	right := HelpStyle.Render(email + "  L:sign out")
	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderLogin() string {
	title := "Sign in"
	toggle := "ctrl+s: create an account"
	if m.loginSignUp {
		title = "Create account"
		toggle = "ctrl+s: sign in instead"
	}

	content := lipgloss.NewStyle().Bold(true).Foreground(Primary).Render("ProManage") + "\n"
	content += lipgloss.NewStyle().Bold(true).Render(title) + "\n\n"
	content += "Email\n" + m.login[0].View() + "\n\n"
	content += "Password\n" + m.login[1].View() + "\n\n"
	if m.busy {
		content += HelpStyle.Render("Working...") + "\n"
	}
	content += HelpStyle.Render("Enter:submit  Tab:next field  "+toggle+"  Esc:quit")
	return ModalStyle.Width(56).Render(content)
}

func (m Model) renderSidebar() string {
	var s string
	s += lipgloss.NewStyle().Bold(true).Foreground(Primary).Render("Projects") + "\n"
	s += rule(sidebarWidth-4) + "\n\n"

	projects := m.projects()
	if len(projects) == 0 {
		s += HelpStyle.Render("No projects yet") + "\n"
	}

	selected := m.root.Selected()
	for i, p := range projects {
		cursor := "  "
		style := ProjectItemStyle
		if i == m.projCursor && m.pane == PaneSidebar {
			cursor = "❯ "
			style = ProjectItemSelectedStyle
		}
		marker := " "
		if p.ID == selected {
			marker = "●"
		}
		s += style.Render(fmt.Sprintf("%s%s %s", cursor, marker, truncate(p.Name, sidebarWidth-10))) + "\n"
		if desc := firstLine(p.DescriptionText()); desc != "" {
			s += HelpStyle.Render("     "+truncate(desc, sidebarWidth-10)) + "\n"
		}
	}

	s += "\n" + rule(sidebarWidth-4) + "\n"
	s += HelpStyle.Render("n new project")

	return SidebarStyle.Width(sidebarWidth).Height(m.bodyHeight()).Render(s)
}

func (m Model) renderTaskList() string {
	width := max(m.width-sidebarWidth-2, 20)

	d := m.root.Detail()
	if d == nil || d.Project() == nil {
		return TaskListStyle.Width(width).Height(m.bodyHeight()).Render(HelpStyle.Render(placeholder))
	}
	proj := d.Project()
	tasks := d.Tasks()

	var s string
	s += lipgloss.NewStyle().Bold(true).Foreground(Primary).Render(proj.Name) + "\n"
	if desc := proj.DescriptionText(); desc != "" {
		s += m.renderMarkdown(desc)
	}
	s += rule(width-4) + "\n"

	pending := 0
	for _, t := range tasks {
		if !t.IsCompleted() {
			pending++
		}
	}
	s += lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("Tasks (%d pending)", pending)) + "\n\n"

	if len(tasks) == 0 {
		s += HelpStyle.Render("  No tasks. Press 't' to add one.")
	}

	for i, t := range tasks {
		s += m.renderTask(i, t, width) + "\n"
	}

	return TaskListStyle.Width(width).Height(m.bodyHeight()).Render(s)
}

func (m Model) renderTask(i int, t model.Task, width int) string {
	cursor := "  "
	style := TaskItemStyle
	if i == m.taskCursor && m.pane == PaneTaskList {
		cursor = "❯ "
		style = TaskItemSelectedStyle
	}

	icon := "[ ]"
	if t.IsCompleted() {
		icon = "[x]"
		style = TaskDoneStyle
	}

	line := style.Render(cursor+icon) + style.Render(" "+truncate(t.Title, max(width-24, 10))+" ") + FormatPriority(t.Priority)

	var meta []string
	if due, ok := t.Due(); ok {
		meta = append(meta, "Due "+due.Format(dateLayout))
	}
	if t.CompletedAt != nil {
		meta = append(meta, "Completed "+t.CompletedAt.Local().Format(dateLayout))
	}
	if desc := firstLine(t.DescriptionText()); desc != "" {
		line += "\n" + HelpStyle.Render("      "+truncate(desc, max(width-12, 10)))
	}
	if len(meta) > 0 {
		line += "\n" + HelpStyle.Render("      "+strings.Join(meta, "  "))
	}
	return line
}

// renderMarkdown renders a project description, falling back to plain text
func (m Model) renderMarkdown(s string) string {
	if m.markdown == nil {
		return HelpStyle.Render(s) + "\n"
	}
	out, err := m.markdown.Render(s)
	if err != nil {
		return HelpStyle.Render(s) + "\n"
	}
	return strings.Trim(out, "\n") + "\n"
}

func (m Model) renderStatusBar() string {
	help := "n:project  t:task  x:done  d:del  r:refresh  ?:help  q:quit"
	if m.root.State() == app.StateUnauthenticated {
		help = "ctrl+c:quit"
	}
	switch {
	case m.busy:
		help = "Working..."
	case m.message != "" && m.isError:
		help = ErrorStyle.Render(m.message)
	case m.message != "":
		help = SuccessStyle.Render(m.message)
	}
	return StatusBarStyle.Width(m.width).Render(help)
}

func (m Model) renderModal() string {
	var title string
	var labels []string
	if m.mode == ModeAddProject {
		title = "New Project"
		labels = []string{"Name", "Description"}
	} else {
		title = "Add Task"
		if d := m.root.Detail(); d != nil && d.Project() != nil {
			title = fmt.Sprintf("Add Task to: %s", d.Project().Name)
		}
		labels = []string{"Title", "Description", "Priority", "Due Date"}
	}

	content := lipgloss.NewStyle().Bold(true).Render(title) + "\n\n"
	for i, in := range m.inputs {
		if i < len(labels) {
			content += labels[i] + "\n"
		}
		content += in.View() + "\n\n"
	}
	if m.busy {
		content += HelpStyle.Render("Saving...") + "\n"
	}
	content += HelpStyle.Render("Enter:save  Tab:next field  Esc:cancel")

	return ModalStyle.Width(60).Render(content)
}

func (m Model) renderConfirm() string {
	content := lipgloss.NewStyle().Bold(true).Foreground(Failure).Render(app.DeleteTaskPrompt) + "\n\n"
	content += truncate(m.pendingDelete.Title, 50) + "\n\n"
	content += HelpStyle.Render("y:delete  n/Esc:keep")
	return ModalStyle.Width(56).Render(content)
}

func (m Model) renderHelp() string {
	help := `
╭─── Keyboard Shortcuts ───╮
│                          │
│  Navigation              │
│  ──────────              │
│  j/↓    Move down        │
│  k/↑    Move up          │
│  l/→    Open project     │
│  h/←    Back to projects │
│  Tab    Switch pane      │
│                          │
│  Actions                 │
│  ───────                 │
│  n       New project     │
│  t       Add task        │
│  x/Enter Toggle done     │
│  d       Delete task     │
│  r       Refresh         │
│  L       Sign out        │
│                          │
│  Other                   │
│  ─────                   │
│  ?       Toggle help     │
│  q       Quit            │
│                          │
╰──────────────────────────╯

     Press any key to close
`
	return lipgloss.Place(m.width, m.bodyHeight(), lipgloss.Center, lipgloss.Center, help)
}
