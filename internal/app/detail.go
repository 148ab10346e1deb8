package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/existflow/promanage/internal/backend"
	"github.com/existflow/promanage/internal/logger"
	"github.com/existflow/promanage/internal/model"
)

// DeleteTaskPrompt is asked before a task is deleted
const DeleteTaskPrompt = "Are you sure you want to delete this task?"

// ConfirmFunc asks the user a yes/no question
type ConfirmFunc func(ctx context.Context, prompt string) bool

// AlwaysConfirm answers yes, for callers that already asked
func AlwaysConfirm(context.Context, string) bool { return true }

// TaskInput is the raw new-task form
type TaskInput struct {
	Title       string
	Description string
	Priority    string
	DueDate     string
}

// TaskForm is the state of the new-task form
type TaskForm struct {
	Open  bool
	Input TaskInput
}

func emptyTaskForm() TaskForm {
	return TaskForm{Input: TaskInput{Priority: string(model.PriorityMedium)}}
}

// ProjectDetail loads one project and its tasks and runs task actions
type ProjectDetail struct {
	store     Store
	notify    Notifier
	projectID string
	now       func() time.Time

	// onMissing runs when the project itself no longer exists
	onMissing func(ctx context.Context)

	mu      sync.Mutex
	project *model.Project
	tasks   []model.Task
	form    TaskForm
}

// NewProjectDetail creates a detail controller for projectID
func NewProjectDetail(store Store, notify Notifier, projectID string) *ProjectDetail {
	return &ProjectDetail{
		store:     store,
		notify:    notify,
		projectID: projectID,
		now:       time.Now,
		form:      emptyTaskForm(),
	}
}

// ProjectID returns the id this detail was opened for
func (d *ProjectDetail) ProjectID() string {
	return d.projectID
}

// Project returns the loaded project, nil while absent
func (d *ProjectDetail) Project() *model.Project {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.project == nil {
		return nil
	}
	p := *d.project
	return &p
}

// Tasks returns a snapshot of the tasks, newest first
func (d *ProjectDetail) Tasks() []model.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.Task(nil), d.tasks...)
}

// Task returns one task from the current list
func (d *ProjectDetail) Task(id string) (model.Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// Form returns a snapshot of the new-task form
func (d *ProjectDetail) Form() TaskForm {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.form
}

// OpenForm shows the new-task form
func (d *ProjectDetail) OpenForm() {
	d.mu.Lock()
	d.form.Open = true
	d.mu.Unlock()
}

// CancelForm hides the new-task form and keeps its values
func (d *ProjectDetail) CancelForm() {
	d.mu.Lock()
	d.form.Open = false
	d.mu.Unlock()
}

// Load fetches the project, then its tasks. Tasks are not fetched for a
// project that failed to load
func (d *ProjectDetail) Load(ctx context.Context) error {
	if err := d.loadProject(ctx); err != nil {
		return err
	}
	return d.loadTasks(ctx)
}

func (d *ProjectDetail) loadProject(ctx context.Context) error {
	p, err := d.store.GetProject(ctx, d.projectID)
	if err != nil {
		logger.Warn("Failed to load project", logger.F("project_id", d.projectID), logger.F("error", err))
		d.notify.Error(err.Error())
		if errors.Is(err, backend.ErrNotFound) {
			d.dropProject(ctx)
		}
		return err
	}
	d.mu.Lock()
	d.project = p
	d.mu.Unlock()
	return nil
}

func (d *ProjectDetail) dropProject(ctx context.Context) {
	d.mu.Lock()
	d.project = nil
	d.tasks = nil
	d.mu.Unlock()
	if d.onMissing != nil {
		d.onMissing(ctx)
	}
}

// recheckProject runs after a failed task write. A project deleted elsewhere
// takes its tasks with it, so the write fails; the selection is dropped then
func (d *ProjectDetail) recheckProject(ctx context.Context) {
	if _, err := d.store.GetProject(ctx, d.projectID); errors.Is(err, backend.ErrNotFound) {
		d.dropProject(ctx)
	}
}

func (d *ProjectDetail) loadTasks(ctx context.Context) error {
	tasks, err := d.store.ListTasks(ctx, d.projectID)
	if err != nil {
		logger.Warn("Failed to load tasks", logger.F("project_id", d.projectID), logger.F("error", err))
		d.notify.Error(err.Error())
		return err
	}
	d.mu.Lock()
	d.tasks = tasks
	d.mu.Unlock()
	return nil
}

// validate turns the raw form into an insert payload
func (d *ProjectDetail) validate(in TaskInput) (model.NewTask, error) {
	if strings.TrimSpace(in.Title) == "" {
		return model.NewTask{}, &ValidationError{Field: "title", Message: "Task title is required"}
	}
	priority, err := model.ParsePriority(in.Priority)
	if err != nil {
		return model.NewTask{}, &ValidationError{Field: "priority", Message: err.Error()}
	}
	var due *string
	if s := strings.TrimSpace(in.DueDate); s != "" {
		if _, err := time.Parse(model.DateLayout, s); err != nil {
			return model.NewTask{}, &ValidationError{Field: "due_date", Message: fmt.Sprintf("Due date must look like %s", model.DateLayout)}
		}
		due = &s
	}
	return model.NewTask{
		Title:       in.Title,
		Description: in.Description,
		Priority:    priority,
		DueDate:     due,
		ProjectID:   d.projectID,
	}, nil
}

// CreateTask validates and inserts a task, then re-fetches the tasks. On
// failure the form stays open with its values
func (d *ProjectDetail) CreateTask(ctx context.Context, in TaskInput) (*model.Task, error) {
	d.mu.Lock()
	d.form = TaskForm{Open: true, Input: in}
	d.mu.Unlock()

	row, err := d.validate(in)
	if err != nil {
		d.notify.Error(err.Error())
		return nil, err
	}

	task, err := d.store.CreateTask(ctx, row)
	if err != nil {
		logger.Warn("Failed to create task", logger.F("project_id", d.projectID), logger.F("error", err))
		d.notify.Error(err.Error())
		d.recheckProject(ctx)
		return nil, err
	}

	logger.Info("Task created", logger.F("task_id", task.ID), logger.F("project_id", d.projectID))
	d.notify.Success("Task created successfully!")
	d.mu.Lock()
	d.form = emptyTaskForm()
	d.mu.Unlock()
	_ = d.loadTasks(ctx)
	return task, nil
}

// ToggleTask flips a task between completed and todo, then re-fetches
func (d *ProjectDetail) ToggleTask(ctx context.Context, id string) error {
	task, ok := d.Task(id)
	if !ok {
		if err := d.loadTasks(ctx); err != nil {
			return err
		}
		task, ok = d.Task(id)
	}
	if !ok {
		err := fmt.Errorf("task %s: %w", id, backend.ErrNotFound)
		d.notify.Error(err.Error())
		d.recheckProject(ctx)
		return err
	}

	patch := task.ToggleStatus(d.now())
	if err := d.store.UpdateTaskStatus(ctx, id, patch); err != nil {
		logger.Warn("Failed to update task", logger.F("task_id", id), logger.F("error", err))
		d.notify.Error(err.Error())
		d.recheckProject(ctx)
		return err
	}

	logger.Debug("Task status changed", logger.F("task_id", id), logger.F("status", string(patch.Status)))
	_ = d.loadTasks(ctx)
	return nil
}

// DeleteTask deletes a task after confirm agrees, then re-fetches. It reports
// false when the user declined
func (d *ProjectDetail) DeleteTask(ctx context.Context, id string, confirm ConfirmFunc) (bool, error) {
	if confirm != nil && !confirm(ctx, DeleteTaskPrompt) {
		return false, nil
	}

	if err := d.store.DeleteTask(ctx, id); err != nil {
		logger.Warn("Failed to delete task", logger.F("task_id", id), logger.F("error", err))
		d.notify.Error(err.Error())
		d.recheckProject(ctx)
		return false, err
	}

	logger.Info("Task deleted", logger.F("task_id", id))
	d.notify.Success("Task deleted successfully!")
	_ = d.loadTasks(ctx)
	return true, nil
}
