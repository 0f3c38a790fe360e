package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/grimwire/internal/project"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(newProjectCreateCommand(ctx))
	cmd.AddCommand(newProjectListCommand(ctx))
	cmd.AddCommand(newProjectShowCommand(ctx))
	cmd.AddCommand(newProjectDeleteCommand(ctx))
	return cmd
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "create <recipe>",
		Short: "Start a project from a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.projects.CreateProject(cmd.Context(), args[0], title)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Project title")
	return cmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No projects")
				return nil
			}
			rows := make([][]string, 0, len(projects))
			for _, p := range projects {
				rows = append(rows, []string{
					p.ID, p.Title, p.RecipeID, string(p.Status), slotProgress(a, p), humanize.Time(p.UpdatedAt),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Title", "Recipe", "Status", "Clips", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Show a project's slots and render state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			r, err := a.catalog.Get(p.RecipeID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s [%s]\n", p.Title, p.Status)
			fmt.Fprintf(out, "Recipe:  %s\n", r.ID)
			fmt.Fprintf(out, "Created: %s\n", humanize.Time(p.CreatedAt))
			if p.HasOutput() {
				fmt.Fprintf(out, "Output:  %s\n", p.OutputURL)
			}
			if p.LastError != "" {
				fmt.Fprintf(out, "Error:   %s\n", p.LastError)
			}

			rows := make([][]string, 0, len(r.Slots))
			for _, s := range r.Slots {
				c, ok := p.Clips[s.ID]
				if !ok {
					rows = append(rows, []string{s.ID, "missing", "", ""})
					continue
				}
				rows = append(rows, []string{s.ID, humanize.Time(c.Timestamp), clipSize(c.MediaPath), truncate(c.Transcript, 40)})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Slot", "Recorded", "Size", "Transcript"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			if missing := project.MissingSlots(r, p); len(missing) > 0 {
				fmt.Fprintf(out, "Missing: %s\n", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

func newProjectDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project>",
		Short: "Delete a project and its clip media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.projects.DeleteProject(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func slotProgress(a *app, p *project.Project) string {
	r, err := a.catalog.Get(p.RecipeID)
	if err != nil {
		return fmt.Sprintf("%d/?", len(p.Clips))
	}
	return fmt.Sprintf("%d/%d", len(r.Slots)-len(project.MissingSlots(r, p)), len(r.Slots))
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
