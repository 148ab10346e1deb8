package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTaskToggleCmd(a *App) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:     "toggle [task-id]",
		Aliases: []string{"done"},
		Short:   "Mark a task completed, or back to todo",
		Long: `Flip a task between completed and todo. The id may be a prefix.

Examples:
  promanage task toggle 3f2a9c1d
  promanage task done 3f2a --project website`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.signedIn(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			d, task, err := c.findTask(cmd, project, args[0])
			if err != nil {
				return err
			}

			if err := d.ToggleTask(cmd.Context(), task.ID); err != nil {
				c.notes.Drain()
				return err
			}

			updated, ok := d.Task(task.ID)
			if ok && updated.IsCompleted() {
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Completed: %q\n", task.Title)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "○ Reopened: %q\n", task.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "P", "", "Only look in this project")
	return cmd
}
