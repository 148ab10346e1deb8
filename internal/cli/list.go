package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTaskListCmd(a *App) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the tasks of a project, newest first",
		Long: `List the tasks of a project, newest first.

Examples:
  promanage task list --project website
  promanage task ls -P 3f2a`,
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

			fmt.Fprintf(cmd.OutOrStdout(), "\n📁 %s\n", d.Project().Name)
			printTasks(cmd.OutOrStdout(), d.Tasks())
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "P", "", "Project id, id prefix or name")
	return cmd
}
