package app

import (
	"context"
	"strings"
	"sync"

	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/model"
)

// ProjectForm is the state of the new-project form
type ProjectForm struct {
	Open        bool
	Name        string
	Description string
}

// ProjectList holds the current user's projects and the new-project form
type ProjectList struct {
	store  Store
	users  UserResolver
	notify Notifier

	// onCreated runs after a successful create; Root re-fetches and selects
	onCreated func(ctx context.Context, p *model.Project)
	onSelect  func(ctx context.Context, id string)

	mu       sync.Mutex
	projects []model.Project
	form     ProjectForm
}

// NewProjectList creates a project list controller
func NewProjectList(store Store, users UserResolver, notify Notifier) *ProjectList {
	return &ProjectList{store: store, users: users, notify: notify}
}

// Refresh re-fetches every project, newest first. Failures are logged and the
// previous list is kept
func (l *ProjectList) Refresh(ctx context.Context) {
	projects, err := l.store.ListProjects(ctx)
	if err != nil {
		logger.Error("Error fetching projects", logger.F("error", err))
		return
	}
	l.mu.Lock()
	l.projects = projects
	l.mu.Unlock()
}

// Projects returns a snapshot of the list
func (l *ProjectList) Projects() []model.Project {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Project(nil), l.projects...)
}

// Find returns the project with id from the current list
func (l *ProjectList) Find(id string) (model.Project, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.projects {
		if p.ID == id {
			return p, true
		}
	}
	return model.Project{}, false
}

func (l *ProjectList) reset() {
	l.mu.Lock()
	l.projects = nil
	l.form = ProjectForm{}
	l.mu.Unlock()
}

// Form returns a snapshot of the form state
func (l *ProjectList) Form() ProjectForm {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.form
}

// OpenForm shows the new-project form
func (l *ProjectList) OpenForm() {
	l.mu.Lock()
	l.form.Open = true
	l.mu.Unlock()
}

// CancelForm hides the form and keeps what was typed
func (l *ProjectList) CancelForm() {
	l.mu.Lock()
	l.form.Open = false
	l.mu.Unlock()
}

// Select tells the parent which project to show
func (l *ProjectList) Select(ctx context.Context, id string) {
	if l.onSelect != nil {
		l.onSelect(ctx, id)
	}
}

// Create validates and inserts a project owned by the current user. On
// failure the form stays open with its values
func (l *ProjectList) Create(ctx context.Context, name, description string) (*model.Project, error) {
	l.mu.Lock()
	l.form = ProjectForm{Open: true, Name: name, Description: description}
	l.mu.Unlock()

	if strings.TrimSpace(name) == "" {
		err := &ValidationError{Field: "name", Message: "Project name is required"}
		l.notify.Error(err.Message)
		return nil, err
	}

	p, err := l.create(ctx, name, description)
	if err != nil {
		logger.Warn("Failed to create project", logger.F("error", err))
		l.notify.Error(err.Error())
		return nil, err
	}

	logger.Info("Project created", logger.F("project_id", p.ID))
	l.notify.Success("Project created successfully!")
	l.mu.Lock()
	l.form = ProjectForm{}
	l.mu.Unlock()

	if l.onCreated != nil {
		l.onCreated(ctx, p)
	}
	return p, nil
}

func (l *ProjectList) create(ctx context.Context, name, description string) (*model.Project, error) {
	user, err := l.users.GetUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotAuthenticated
	}

	return l.store.CreateProject(ctx, model.NewProject{
		Name:        name,
		Description: description,
		UserID:      user.ID,
	})
}
