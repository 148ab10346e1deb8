package backend

import (
	"context"
	"fmt"

	"github.com/existflow/promanage/internal/model"
)

const (
	projectsTable = "projects"
	tasksTable    = "tasks"
)

// Tables is the typed data API over the projects and tasks tables. Row-level
// authorization is the backend's job; the token only identifies the caller
type Tables struct {
	client *Client
	tokens TokenSource
}

// NewTables binds the data API to a token source
func NewTables(client *Client, tokens TokenSource) *Tables {
	return &Tables{client: client, tokens: tokens}
}

func (t *Tables) from(ctx context.Context, table string) (*Query, error) {
	token := ""
	if t.tokens != nil {
		var err error
		token, err = t.tokens.AccessToken(ctx)
		if err != nil {
			return nil, err
		}
	}
	return t.client.From(table).Auth(token), nil
}

// ListProjects returns every visible project, newest first
func (t *Tables) ListProjects(ctx context.Context) ([]model.Project, error) {
	q, err := t.from(ctx, projectsTable)
	if err != nil {
		return nil, err
	}
	var projects []model.Project
	if err := q.Select("*").Order("created_at", false).Execute(ctx, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject returns one project by id
func (t *Tables) GetProject(ctx context.Context, id string) (*model.Project, error) {
	q, err := t.from(ctx, projectsTable)
	if err != nil {
		return nil, err
	}
	var p model.Project
	if err := q.Select("*").Eq("id", id).Single().Execute(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a project and returns the stored row
func (t *Tables) CreateProject(ctx context.Context, in model.NewProject) (*model.Project, error) {
	q, err := t.from(ctx, projectsTable)
	if err != nil {
		return nil, err
	}
	var p model.Project
	if err := q.Insert(in).Execute(ctx, &p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, fmt.Errorf("insert %s: backend returned no row", projectsTable)
	}
	return &p, nil
}

// ListTasks returns the tasks of one project, newest first
func (t *Tables) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	q, err := t.from(ctx, tasksTable)
	if err != nil {
		return nil, err
	}
	var tasks []model.Task
	if err := q.Select("*").Eq("project_id", projectID).Order("created_at", false).Execute(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask inserts a task and returns the stored row
func (t *Tables) CreateTask(ctx context.Context, in model.NewTask) (*model.Task, error) {
	q, err := t.from(ctx, tasksTable)
	if err != nil {
		return nil, err
	}
	var task model.Task
	if err := q.Insert(in).Execute(ctx, &task); err != nil {
		return nil, err
	}
	if task.ID == "" {
		return nil, fmt.Errorf("insert %s: backend returned no row", tasksTable)
	}
	return &task, nil
}

// UpdateTaskStatus writes status and completed_at together
func (t *Tables) UpdateTaskStatus(ctx context.Context, id string, patch model.StatusPatch) error {
	q, err := t.from(ctx, tasksTable)
	if err != nil {
		return err
	}
	return q.Eq("id", id).Update(patch).Execute(ctx, nil)
}

// DeleteTask deletes a task by id
func (t *Tables) DeleteTask(ctx context.Context, id string) error {
	q, err := t.from(ctx, tasksTable)
	if err != nil {
		return err
	}
	return q.Eq("id", id).Delete().Execute(ctx, nil)
}
