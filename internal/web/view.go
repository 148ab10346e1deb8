package web

import (
	"html/template"
	"strings"

	"github.com/google/uuid"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/model"
)

const dateLayout = "Jan 2, 2006"

var templateFuncs = template.FuncMap{
	// idem issues a fresh idempotency key for each rendered form
	"idem": func() string { return uuid.NewString() },
}

type pageVM struct {
	Title string
	Email string
	Notes []app.Notification

	// gate
	Mode       string
	FormEmail  string
	MagicSent  bool
	MagicToken string
	Error      string

	// layout
	Projects    []projectVM
	ProjectForm app.ProjectForm
	Detail      *detailVM
	Confirm     *taskVM
}

type projectVM struct {
	ID          string
	Name        string
	Description string
	Selected    bool
}

type detailVM struct {
	ID          string
	Name        string
	Description string
	Tasks       []taskVM
	Form        app.TaskForm
}

type taskVM struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	Done        bool
	Priority    string
	Due         string
	CompletedAt string
}

func newTaskVM(t model.Task) taskVM {
	vm := taskVM{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.DescriptionText(),
		Done:        t.IsCompleted(),
		Priority:    string(t.Priority),
	}
	if due, ok := t.Due(); ok {
		vm.Due = due.Format(dateLayout)
	}
	if t.CompletedAt != nil {
		vm.CompletedAt = t.CompletedAt.Local().Format(dateLayout)
	}
	return vm
}

// layoutVM snapshots the controllers for the signed-in layout
func layoutVM(r *request, notes []app.Notification) *pageVM {
	vm := &pageVM{Title: "Projects", Notes: notes}
	if sess := r.root.Session(); sess != nil {
		vm.Email = sess.User.Email
	}

	selected := r.root.Selected()
	for _, p := range r.root.Projects() {
		vm.Projects = append(vm.Projects, projectVM{
			ID:          p.ID,
			Name:        p.Name,
			Description: oneLine(p.DescriptionText()),
			Selected:    p.ID == selected,
		})
	}
	vm.ProjectForm = r.root.List().Form()

	if d := r.root.Detail(); d != nil {
		if p := d.Project(); p != nil {
			dv := &detailVM{ID: p.ID, Name: p.Name, Description: p.DescriptionText(), Form: d.Form()}
			for _, t := range d.Tasks() {
				dv.Tasks = append(dv.Tasks, newTaskVM(t))
			}
			vm.Detail = dv
			vm.Title = p.Name
		}
	}
	return vm
}

// oneLine truncates a description for the sidebar
func oneLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 60
	if r := []rune(s); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
