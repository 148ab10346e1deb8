package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/existflow/promanage/internal/app"
)

func newTaskDeleteCmd(a *App) *cobra.Command {
	var (
		project string
		yes     bool
	)
	cmd := &cobra.Command{
		Use:     "delete [task-id]",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Long: `Delete a task by its id or id prefix.

Examples:
  promanage task delete 3f2a9c1d
  promanage task rm 3f2a --yes`,
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

			confirm := app.AlwaysConfirm
			if a.cfg.ConfirmDelete && !yes {
				confirm = func(_ context.Context, prompt string) bool {
					fmt.Fprintf(cmd.OutOrStdout(), "About to delete: %q (ID: %s)\n", task.Title, task.ID)
					return a.confirm(cmd, prompt)
				}
			}

			deleted, err := d.DeleteTask(cmd.Context(), task.ID, confirm)
			if err != nil {
				c.notes.Drain()
				return err
			}
			if !deleted {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Deleted: %q\n", task.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "P", "", "Only look in this project")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}
