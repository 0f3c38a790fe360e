package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ivlev/grimwire/internal/engine"
	"github.com/ivlev/grimwire/internal/logging"
	"github.com/ivlev/grimwire/internal/project"
	"github.com/ivlev/grimwire/internal/share"
	"github.com/ivlev/grimwire/internal/storage"
	"github.com/ivlev/grimwire/internal/system"
)

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var qrPath string
	var qrSize int
	cmd := &cobra.Command{
		Use:   "render <project>",
		Short: "Assemble a project's clips into one video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			system.InitResourceLimits(logging.WithComponent(a.logger, "system"))
			orch := a.orchestrator(cmd.Context())

			out := cmd.OutOrStdout()
			orch.Progress = func(p engine.Progress) {
				fmt.Fprintf(out, "  [%d/%d] %s: %d frames\n", p.Index+1, p.Total, p.SlotID, p.Frames)
			}

			var final engine.Update
			for u := range orch.RenderStream(cmd.Context(), args[0]) {
				fmt.Fprintf(out, "%s\n", u.Status)
				final = u
			}
			if final.Status != project.StatusCompleted {
				if final.Err != nil {
					return final.Err
				}
				return fmt.Errorf("render of %s ended in %s", args[0], final.Status)
			}

			if final.Report != nil {
				printReport(out, final.Report)
			}
			fmt.Fprintf(out, "Output: %s\n", outputPath(final.OutputURL))

			if qrPath != "" {
				if err := share.WriteQRCode(final.OutputURL, qrPath, qrSize); err != nil {
					return err
				}
				fmt.Fprintf(out, "QR code: %s\n", qrPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&qrPath, "qr", "", "Write a QR code PNG for the output to this path")
	cmd.Flags().IntVar(&qrSize, "qr-size", share.DefaultSize, "QR code edge in pixels")
	return cmd
}

func printReport(w io.Writer, r *engine.Report) {
	mode := "composed"
	if r.Passthrough {
		mode = "passthrough"
	}
	rows := [][]string{
		{"Format", r.Format},
		{"Mode", mode},
		{"Segments", strconv.Itoa(r.Segments)},
		{"Frames", strconv.Itoa(r.Frames)},
		{"Duration", r.Duration.Round(10 * time.Millisecond).String()},
		{"Input", humanize.Bytes(uint64(r.InputBytes))},
		{"Output", humanize.Bytes(uint64(r.OutputBytes))},
		{"Processing", r.Processing.Round(10 * time.Millisecond).String()},
		{"FPS", fmt.Sprintf("%.1f", r.EffectiveFPS())},
		{"Padded audio", humanize.Comma(r.PaddedAudio) + " samples"},
		{"Canvas buffers", fmt.Sprintf("%d allocated / %d used", r.Pool.Allocs, r.Pool.Gets)},
	}
	fmt.Fprintln(w, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}

// outputPath resolves a stored output reference for display.
func outputPath(ref string) string {
	path, err := storage.PathFromURL(ref)
	if err != nil {
		return ref
	}
	return path
}
