package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/existflow/promanage/internal/app"
)

func newTaskAddCmd(a *App) *cobra.Command {
	var (
		project string
		in      app.TaskInput
	)
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a new task",
		Long: `Add a new task to a project.

Examples:
  promanage task add "Buy domain" --project website
  promanage task add "Write copy" -P website -p high --due 2024-06-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.signedIn(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			d, err := c.openProject(cmd, project)
			if err != nil {
				return err
			}

			in.Title = strings.Join(args, " ")
			task, err := d.CreateTask(cmd.Context(), in)
			if err != nil {
				c.notes.Drain()
				return err
			}
			if err := c.report(cmd); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Added to [%s]: %q (%s, ID: %s)\n",
				d.Project().Name, task.Title, task.Priority, shortID(task.ID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "P", "", "Project id, id prefix or name")
	cmd.Flags().StringVarP(&in.Priority, "priority", "p", "medium", "Priority: low, medium or high")
	cmd.Flags().StringVarP(&in.Description, "description", "d", "", "Task description")
	cmd.Flags().StringVar(&in.DueDate, "due", "", "Due date (YYYY-MM-DD)")
	return cmd
}
