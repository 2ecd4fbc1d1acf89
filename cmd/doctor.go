package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mediacat/internal/mediaerr"
	"mediacat/internal/metadata"
	"mediacat/internal/thumbnail"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the external tools used for videos are installed",
	Long: `Check that ffmpeg and ffprobe can be found on PATH.

Photos are read without any external tools. Videos need ffprobe for
metadata and ffmpeg for preview frames. When either is missing, scans
report the affected videos as failed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkTools(cmd.Context(), os.Stdout, []toolCheck{
			{name: "ffmpeg", tool: thumbnail.NewFFmpeg("", logger)},
			{name: "ffprobe", tool: metadata.NewFFprobe("")},
		})
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type versioner interface {
	Version(ctx context.Context) (string, error)
}

type toolCheck struct {
	name string
	tool versioner
}

// checkTools prints one status line per tool and the install hint when
// any of them is missing.
func checkTools(ctx context.Context, w io.Writer, checks []toolCheck) error {
	missing := 0
	for _, c := range checks {
		version, err := c.tool.Version(ctx)
		switch {
		case err == nil:
			fmt.Fprintf(w, "  ok       %-8s %s\n", c.name, version)
		case mediaerr.KindOf(err) == mediaerr.ToolMissing:
			missing++
			fmt.Fprintf(w, "  missing  %s\n", c.name)
		default:
			return err
		}
	}
	if missing == 0 {
		fmt.Fprintln(w, "\nAll video tools are available.")
		return nil
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, mediaerr.InstallHint())
	return usagef("%d of %d video tools are missing", missing, len(checks))
}
