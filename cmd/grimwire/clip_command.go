package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/grimwire/internal/project"
	"github.com/ivlev/grimwire/internal/system"
)

func newClipCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clip",
		Short: "Record clips into project slots",
	}
	cmd.AddCommand(newClipAddCommand(ctx))
	return cmd
}

func newClipAddCommand(ctx *commandContext) *cobra.Command {
	var file string
	var transcript string
	cmd := &cobra.Command{
		Use:   "add <project> <slot>",
		Short: "Store a recording for a slot, replacing the previous one",
		Long: "Store a recording for a slot. Without --file the newest recording " +
			"in the configured input directory is used.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			src := strings.TrimSpace(file)
			if src == "" {
				if src, err = system.FindLatestClip(a.cfg.InputDir); err != nil {
					return err
				}
			}
			p, err := a.projects.AddClip(cmd.Context(), args[0], project.Clip{
				SlotID:     args[1],
				MediaPath:  src,
				Transcript: strings.TrimSpace(transcript),
			})
			if err != nil {
				return err
			}
			stored := p.Clips[args[1]]
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s for slot %s (%s)\n", src, args[1], clipSize(stored.MediaPath))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Recording to store")
	cmd.Flags().StringVar(&transcript, "transcript", "", "Caption text for the clip")
	return cmd
}

func clipSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.Bytes(uint64(info.Size()))
}
