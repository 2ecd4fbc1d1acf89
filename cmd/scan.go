package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediacat/internal/mediaerr"
	"mediacat/internal/models"
	"mediacat/internal/scan"
	"mediacat/internal/walk"
	"mediacat/internal/workers"
)

var (
	scanNoCommit    bool
	scanWorkers     int
	scanJSON        bool
	scanFileTimeout time.Duration
	scanPHash       bool
	scanForceThumbs bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Scan a folder and add its photos and videos to the catalog",
	Long: `Scan a folder recursively for recognized photos and videos.

For every file the scan will:
1. Extract metadata (capture date, camera, GPS, resolution, duration)
2. Fingerprint the content
3. Generate small and medium preview thumbnails
4. Commit the record to the catalog

Files that fail are reported and skipped. The rest of the scan continues.

Example:
  mediacat scan ~/Pictures
  mediacat scan ./camera --phash --workers 4
  mediacat scan ./camera --no-commit --json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanNoCommit, "no-commit", false, "Scan without writing to the catalog")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Parallel workers (default from settings or CPU count)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the scan result as JSON")
	scanCmd.Flags().DurationVar(&scanFileTimeout, "timeout", 2*time.Minute, "Per-file time limit (0 to disable)")
	scanCmd.Flags().BoolVar(&scanPHash, "phash", false, "Also compute perceptual hashes for similar-image search")
	scanCmd.Flags().BoolVar(&scanForceThumbs, "force-thumbs", false, "Regenerate thumbnails even when cached")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	folder := args[0]

	n := scanWorkers
	if n <= 0 {
		n = cfg.Workers
	}
	if n <= 0 {
		n = workers.ForMixed(0)
	}

	policy := formatPolicy()
	formatsCfg := policy.Config()

	progress := newProgressLine()
	if scanJSON {
		progress.enabled = false
	}

	total := 0
	if progress.enabled {
		counts, err := walk.New(formatsCfg).Count(ctx, folder)
		if err != nil {
			return err
		}
		total = counts.Images + counts.Videos
	}

	if !scanJSON {
		fmt.Printf("Scanning: %s\n", folder)
		fmt.Printf("Workers:  %d\n\n", n)
	}

	s := scan.NewScanner(newGenerator(scanForceThumbs),
		scan.WithWorkers(n),
		scan.WithFileTimeout(scanFileTimeout),
		scan.WithPerceptualHash(scanPHash),
		scan.WithLogger(logger),
		scan.WithProgress(func(p models.Progress) {
			counter := fmt.Sprintf("%d", p.CountSoFar)
			if total > 0 {
				counter = fmt.Sprintf("%d/%d", p.CountSoFar, total)
			}
			progress.Update(fmt.Sprintf("Progress: %s  %s", counter, shortenPath(p.CurrentFile, 50)))
		}),
	)

	result, scanErr := s.Scan(ctx, folder, formatsCfg)
	progress.Clear()
	if result == nil {
		return scanErr
	}
	if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
		return scanErr
	}

	var summary scan.CommitSummary
	if !scanNoCommit && scanErr == nil {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		summary, err = scan.Commit(ctx, store, result)
		if err != nil {
			return err
		}
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*models.ScanResult
			Committed int `json:"committed"`
		}{result, summary.Upserted})
	}

	printScanSummary(os.Stdout, result, summary)
	if scanErr != nil {
		fmt.Println("Scan was cancelled. Nothing was committed.")
		return scanErr
	}
	return nil
}

func printScanSummary(w io.Writer, result *models.ScanResult, summary scan.CommitSummary) {
	var bytes uint64
	for _, item := range result.Items {
		bytes += item.Metadata.FileSize
	}

	fmt.Fprintln(w, "=== Scan Complete ===")
	fmt.Fprintf(w, "Images:    %d\n", result.ImageCount)
	fmt.Fprintf(w, "Videos:    %d\n", result.VideoCount)
	fmt.Fprintf(w, "Size:      %s\n", humanize.Bytes(bytes))
	fmt.Fprintf(w, "Errors:    %d\n", len(result.Errors))
	fmt.Fprintf(w, "Took:      %s\n", result.Duration.Round(time.Millisecond))
	if !scanNoCommit {
		fmt.Fprintf(w, "Committed: %d\n", summary.Upserted)
	}

	if result.Degraded {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Warning: some previews could not be saved. Check free disk space.")
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed files:")
		for i, e := range result.Errors {
			logger.Debug("scan error",
				zap.String("path", e.Path),
				zap.String("kind", e.Kind),
				zap.String("detail", e.Message))
			if i < 10 {
				fmt.Fprintf(w, "  %-40s  %s\n", shortenPath(e.Path, 40), mediaerr.MessageFor(e.Kind))
			}
		}
		if n := len(result.Errors); n > 10 {
			fmt.Fprintf(w, "  ... and %d more (use --log-level debug for all)\n", n-10)
		}
	}

	if summary.Upserted > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Run 'mediacat list' to browse the catalog")
		fmt.Fprintln(w, "Run 'mediacat dups' to look for duplicates")
	}
}
