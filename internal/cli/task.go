package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/existflow/promanage/internal/app"
	"github.com/existflow/promanage/internal/model"
)

func newTaskCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Manage tasks",
		Long:    `Add, list, toggle and delete the tasks of a project.`,
	}

	cmd.AddCommand(newTaskListCmd(a))
	cmd.AddCommand(newTaskAddCmd(a))
	cmd.AddCommand(newTaskToggleCmd(a))
	cmd.AddCommand(newTaskDeleteCmd(a))
	return cmd
}

// openProject resolves ref and loads it into the detail controller
func (c *conn) openProject(cmd *cobra.Command, ref string) (*app.ProjectDetail, error) {
	if ref == "" {
		return nil, fmt.Errorf("--project is required")
	}
	p, err := findProject(c.root.Projects(), ref)
	if err != nil {
		return nil, err
	}
	if err := c.root.Select(cmd.Context(), p.ID); err != nil {
		return nil, err
	}
	return c.root.Detail(), nil
}

// findTask looks for a task by id or id prefix, in one project when ref is
// given and across all projects otherwise
func (c *conn) findTask(cmd *cobra.Command, ref, id string) (*app.ProjectDetail, model.Task, error) {
	projects := c.root.Projects()
	if ref != "" {
		p, err := findProject(projects, ref)
		if err != nil {
			return nil, model.Task{}, err
		}
		projects = []model.Project{p}
	}

	for _, p := range projects {
		if err := c.root.Select(cmd.Context(), p.ID); err != nil {
			return nil, model.Task{}, err
		}
		d := c.root.Detail()
		var matches []model.Task
		for _, t := range d.Tasks() {
			if t.ID == id {
				return d, t, nil
			}
			if strings.HasPrefix(t.ID, id) {
				matches = append(matches, t)
			}
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return d, matches[0], nil
		default:
			return nil, model.Task{}, fmt.Errorf("%q matches %d tasks, use the full id", id, len(matches))
		}
	}
	return nil, model.Task{}, fmt.Errorf("task not found: %s", id)
}

func printTasks(w io.Writer, tasks []model.Task) {
	pending := 0
	for _, t := range tasks {
		if !t.IsCompleted() {
			pending++
		}
	}

	fmt.Fprintf(w, "\nTasks (%d pending)\n", pending)
	fmt.Fprintln(w, strings.Repeat("─", 72))
	if len(tasks) == 0 {
		fmt.Fprintln(w, "  No tasks yet.")
	}
	for _, t := range tasks {
		printTask(w, t)
	}
	fmt.Fprintln(w)
}

func printTask(w io.Writer, t model.Task) {
	icon := "[ ]"
	if t.IsCompleted() {
		icon = "[x]"
	}

	due := ""
	if d, ok := t.Due(); ok {
		due = "Due " + d.Format(dateLayout)
	}

	fmt.Fprintf(w, "  %s  %-8s  %-36s  %-6s  %s\n", icon, shortID(t.ID), truncate(t.Title, 36), t.Priority, due)
	if desc := t.DescriptionText(); desc != "" {
		fmt.Fprintf(w, "               %s\n", truncate(strings.ReplaceAll(desc, "\n", " "), 60))
	}
	if t.CompletedAt != nil {
		fmt.Fprintf(w, "               Completed %s\n", t.CompletedAt.Local().Format(dateLayout))
	}
}

// truncate shortens s to max runes
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
