package server

import (
	"context"
	"fmt"
)

type columnKind int

const (
	kindText columnKind = iota
	kindEnum
	kindDate
	kindTimestamp
)

type column struct {
	kind     columnKind
	enum     string
	values   []string
	insert   bool
	update   bool
	required bool
	def      string
}

// table describes one exposed table and its row checks
type table struct {
	name    string
	columns []string
	cols    map[string]column
	// rowFilter limits every read and write to the caller's rows; ? is the user id
	rowFilter string
	// owns reports whether a new row may be inserted by the caller
	owns func(ctx context.Context, st store, userID string, row map[string]interface{}) (bool, error)
}

var projectsTable = &table{
	name:    "projects",
	columns: []string{"id", "name", "description", "created_at", "user_id", "status"},
	cols: map[string]column{
		"id":          {},
		"name":        {insert: true, update: true, required: true},
		"description": {insert: true, update: true},
		"created_at":  {kind: kindTimestamp},
		"user_id":     {insert: true, required: true},
		"status": {kind: kindEnum, enum: "project_status", values: []string{"active", "completed", "archived"},
			insert: true, update: true, required: true, def: "active"},
	},
	rowFilter: "user_id = ?",
	owns: func(_ context.Context, _ store, userID string, row map[string]interface{}) (bool, error) {
		owner, _ := row["user_id"].(string)
		return userID != "" && owner == userID, nil
	},
}

var tasksTable = &table{
	name: "tasks",
	columns: []string{"id", "title", "description", "status", "priority", "due_date", "project_id",
		"assigned_to", "created_at", "completed_at"},
	cols: map[string]column{
		"id":          {},
		"title":       {insert: true, update: true, required: true},
		"description": {insert: true, update: true},
		"status": {kind: kindEnum, enum: "task_status", values: []string{"todo", "in_progress", "completed"},
			insert: true, update: true, required: true, def: "todo"},
		"priority": {kind: kindEnum, enum: "task_priority", values: []string{"low", "medium", "high"},
			insert: true, update: true, required: true, def: "medium"},
		"due_date":     {kind: kindDate, insert: true, update: true},
		"project_id":   {insert: true, required: true},
		"assigned_to":  {insert: true, update: true},
		"created_at":   {kind: kindTimestamp},
		"completed_at": {kind: kindTimestamp, insert: true, update: true},
	},
	rowFilter: "project_id IN (SELECT id FROM projects WHERE user_id = ?)",
	owns: func(ctx context.Context, st store, userID string, row map[string]interface{}) (bool, error) {
		projectID, _ := row["project_id"].(string)
		if userID == "" || projectID == "" {
			return false, nil
		}
		var n int
		err := st.queryRow(ctx, `SELECT COUNT(*) FROM projects WHERE id = ? AND user_id = ?`, projectID, userID).Scan(&n)
		return n > 0, err
	},
}

var tables = map[string]*table{
	projectsTable.name: projectsTable,
	tasksTable.name:    tasksTable,
}

func lookupTable(name string) (*table, *restError) {
	t, ok := tables[name]
	if !ok {
		return nil, newRestError(404, "42P01", fmt.Sprintf(`relation "public.%s" does not exist`, name))
	}
	return t, nil
}
