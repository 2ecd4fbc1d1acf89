package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediacat/internal/cloudsync"
)

var syncIDs []int64

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Back up catalog records to S3 compatible storage",
	Long: `Upload source files to the bucket configured under "sync" in the settings.

Objects are keyed by content checksum, so a file already present in the
bucket is not uploaded again. Failed uploads are retried three times and
picked up again by the next run.

Without --ids every pending or previously failed record is processed.

Example:
  mediacat sync
  mediacat sync --ids 12,14`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Int64SliceVar(&syncIDs, "ids", nil, "Record ids to sync")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if !cfg.Sync.Enabled {
		return usagef("sync is disabled; set sync.enabled and sync.bucket in %s", settingsStore.Path())
	}

	uploader, err := cloudsync.NewS3Uploader(ctx, cfg.Sync)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	syncer := cloudsync.NewSyncer(uploader, store,
		cloudsync.WithExclude(cfg.Sync.ExcludePatterns),
		cloudsync.WithLogger(logger),
	)

	progress := newProgressLine()
	res, err := syncer.Sync(ctx, syncIDs, func(p cloudsync.Progress) {
		progress.Update(fmt.Sprintf("Sync: %d/%d  %-8s %s", p.Done, p.Total, p.Status, shortenPath(p.Path, 50)))
	})
	progress.Clear()

	fmt.Println("=== Sync Complete ===")
	fmt.Printf("Uploaded: %d (%s)\n", res.Uploaded, humanize.Bytes(uint64(res.Bytes)))
	fmt.Printf("Skipped:  %d\n", res.Skipped)
	fmt.Printf("Failed:   %d\n", res.Failed)
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "  [%d] %s: %s\n", e.ID, shortenPath(e.Path, 40), e.Message)
	}
	return err
}
