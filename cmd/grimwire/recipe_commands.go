package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRecipeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe",
		Short: "Browse and import recipes",
	}
	cmd.AddCommand(newRecipeListCommand(ctx))
	cmd.AddCommand(newRecipeShowCommand(ctx))
	cmd.AddCommand(newRecipeImportCommand(ctx))
	return cmd
}

func newRecipeListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			recipes := a.catalog.List()
			rows := make([][]string, 0, len(recipes))
			for _, r := range recipes {
				rows = append(rows, []string{r.ID, r.Name, strconv.Itoa(len(r.Slots)), r.AspectRatio()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Slots", "Aspect"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newRecipeShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <recipe>",
		Short: "Show the slots of a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.catalog.Get(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", r.Name, r.ID)
			if r.Description != "" {
				fmt.Fprintln(out, r.Description)
			}
			rows := make([][]string, 0, len(r.Slots))
			for i, s := range r.Slots {
				rows = append(rows, []string{
					strconv.Itoa(i + 1), s.ID, s.Name, s.DurationHint, s.AspectRatio(), yesNo(s.HasSubtitles),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Slot", "Name", "Duration", "Aspect", "Subtitles"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
}

func newRecipeImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Validate a recipe file and add it to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.catalog.Import(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported recipe %s with %d slots\n", r.ID, len(r.Slots))
			return nil
		},
	}
}
