package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/grimwire/internal/system"
	"github.com/ivlev/grimwire/internal/video"
)

func newFormatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "Show output formats and which ones ffmpeg can encode",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			available, err := system.ProbeEncoders(cmd.Context(), cfg.FFmpeg.Binary)
			if err != nil {
				return fmt.Errorf("ffmpeg unavailable: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatsTable(video.Formats(), cfg.Render.Formats, available))
			return nil
		},
	}
}

func formatsTable(formats []video.Format, preference []string, available map[string]bool) string {
	selected := ""
	if f, err := video.SelectFormat(preference, available); err == nil {
		selected = f.Name
	}
	rows := make([][]string, 0, len(formats))
	for _, f := range formats {
		audio, ok := f.Supported(available)
		if !ok {
			audio = "-"
		}
		mark := ""
		if f.Name == selected {
			mark = "*"
		}
		rows = append(rows, []string{mark, f.Name, f.Container, f.VideoCodec, audio, yesNo(ok)})
	}
	return renderTable(
		[]string{"", "Format", "Container", "Video", "Audio", "Available"},
		rows,
		nil,
	)
}
