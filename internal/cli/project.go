package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/existflow/promanage/internal/model"
)

const dateLayout = "Jan 2, 2006"

func newProjectCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Manage projects",
		Long:    `Create, list, and show projects.`,
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your projects, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProjectList(cmd)
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "new [name]",
		Short: "Create a new project",
		Long: `Create a new project.

Examples:
  promanage project new "Website"
  promanage project new "Website" --description "Relaunch in *June*"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProjectNew(cmd, strings.Join(args, " "), description)
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "Project description")

	show := &cobra.Command{
		Use:   "show [project]",
		Short: "Show a project and its tasks",
		Long: `Show a project and its tasks. The project can be given by id, id prefix or name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProjectShow(cmd, args[0])
		},
	}

	cmd.AddCommand(list, create, show)
	return cmd
}

// findProject matches ref against ids, id prefixes and names
func findProject(projects []model.Project, ref string) (model.Project, error) {
	ref = strings.TrimSpace(ref)
	var matches []model.Project
	for _, p := range projects {
		if p.ID == ref {
			return p, nil
		}
		if strings.HasPrefix(p.ID, ref) || strings.EqualFold(p.Name, ref) {
			matches = append(matches, p)
		}
	}

	switch len(matches) {
	case 0:
		return model.Project{}, fmt.Errorf("project not found: %s", ref)
	case 1:
		return matches[0], nil
	}
	return model.Project{}, fmt.Errorf("%q matches %d projects, use the id", ref, len(matches))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (a *App) runProjectList(cmd *cobra.Command) error {
	c, err := a.signedIn(cmd)
	if err != nil {
		return err
	}
	defer c.close()

	if err := c.report(cmd); err != nil {
		return err
	}

	projects := c.root.Projects()
	out := cmd.OutOrStdout()
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects yet. Create one with: promanage project new \"Name\"")
		return nil
	}

	fmt.Fprintf(out, "%-8s  %-30s  %-10s  %s\n", "ID", "NAME", "STATUS", "CREATED")
	for _, p := range projects {
		fmt.Fprintf(out, "%-8s  %-30s  %-10s  %s\n",
			shortID(p.ID), truncate(p.Name, 30), p.Status, p.CreatedAt.Local().Format(dateLayout))
	}
	return nil
}

func (a *App) runProjectNew(cmd *cobra.Command, name, description string) error {
	c, err := a.signedIn(cmd)
	if err != nil {
		return err
	}
	defer c.close()

	p, err := c.root.List().Create(cmd.Context(), name, description)
	if err != nil {
		c.notes.Drain()
		return err
	}
	if err := c.report(cmd); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "📁 %s (ID: %s)\n", p.Name, p.ID)
	return nil
}

func (a *App) runProjectShow(cmd *cobra.Command, ref string) error {
	c, err := a.signedIn(cmd)
	if err != nil {
		return err
	}
	defer c.close()

	p, err := findProject(c.root.Projects(), ref)
	if err != nil {
		return err
	}
	if err := c.root.Select(cmd.Context(), p.ID); err != nil {
		return err
	}

	d := c.root.Detail()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n📁 %s\n", d.Project().Name)
	if desc := d.Project().DescriptionText(); desc != "" {
		fmt.Fprintln(out, desc)
	}
	fmt.Fprintf(out, "ID: %s  Status: %s  Created: %s\n", p.ID, d.Project().Status, d.Project().CreatedAt.Local().Format(dateLayout))

	printTasks(out, d.Tasks())
	return nil
}
