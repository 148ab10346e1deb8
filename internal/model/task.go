package model

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the workflow state of a task
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// Priority levels for tasks
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// DateLayout is the wire format of due dates
const DateLayout = "2006-01-02"

// ParsePriority converts user input to a Priority. Empty input means medium
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("invalid priority %q (want low, medium or high)", s)
}

// Task represents a unit of work inside a project
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *string    `json:"due_date"`
	ProjectID   string     `json:"project_id"`
	AssignedTo  *string    `json:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// IsCompleted reports whether the task is done
func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

// DescriptionText returns the description or an empty string
func (t *Task) DescriptionText() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

// Due parses the due date, if any
func (t *Task) Due() (time.Time, bool) {
	if t.DueDate == nil || *t.DueDate == "" {
		return time.Time{}, false
	}
	// Stores may return a full timestamp for date columns
	raw := *t.DueDate
	if len(raw) > len(DateLayout) {
		raw = raw[:len(DateLayout)]
	}
	d, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// NewTask is the insert payload for a task
type NewTask struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority"`
	DueDate     *string  `json:"due_date"`
	ProjectID   string   `json:"project_id"`
}

// StatusPatch is the update payload written by the completion toggle.
// CompletedAt is always sent so that reverting clears it
type StatusPatch struct {
	Status      TaskStatus `json:"status"`
	CompletedAt *time.Time `json:"completed_at"`
}

// ToggleStatus returns the patch that flips the task between todo and completed.
// Anything not completed (including in_progress) becomes completed
func (t *Task) ToggleStatus(now time.Time) StatusPatch {
	if t.Status == StatusCompleted {
		return StatusPatch{Status: StatusTodo}
	}
	stamp := now.UTC()
	return StatusPatch{Status: StatusCompleted, CompletedAt: &stamp}
}

// Apply copies the patch onto the task
func (p StatusPatch) Apply(t *Task) {
	t.Status = p.Status
	t.CompletedAt = p.CompletedAt
}
