package model

import "time"

// ProjectStatus is the lifecycle state of a project
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// Project is a container for tasks owned by one user
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description *string       `json:"description"`
	CreatedAt   time.Time     `json:"created_at"`
	UserID      string        `json:"user_id"`
	Status      ProjectStatus `json:"status"`
}

// DescriptionText returns the description or an empty string
func (p *Project) DescriptionText() string {
	if p.Description == nil {
		return ""
	}
	return *p.Description
}

// NewProject is the insert payload for a project. Status is left to the store
type NewProject struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
}
