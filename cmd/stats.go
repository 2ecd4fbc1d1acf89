package cmd

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the catalog, thumbnail cache and recent scans",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Stats(ctx)
	if err != nil {
		return err
	}
	cache, err := newGenerator(false).Stats()
	if err != nil {
		return err
	}

	fmt.Printf("Catalog:    %s\n", store.Path())
	fmt.Printf("  Records:  %d (%d images, %d videos)\n", st.Records, st.Images, st.Videos)
	fmt.Printf("  Size:     %s\n", humanize.Bytes(uint64(st.TotalSize)))
	fmt.Printf("  Tags:     %d\n", st.Tags)
	fmt.Printf("  Sync:     %d pending, %d synced, %d failed\n", st.Pending, st.Synced, st.Failed)
	fmt.Printf("Thumbnails: %s\n", cfg.ThumbnailCachePath)
	fmt.Printf("  Files:    %d (%s)\n", cache.Files, humanize.Bytes(uint64(cache.Bytes)))

	scans, err := store.RecentScans(ctx, 5)
	if err != nil {
		return err
	}
	if len(scans) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Println("Recent scans:")
	for _, s := range scans {
		flag := ""
		if s.Degraded {
			flag = "  (degraded)"
		}
		fmt.Printf("  %-14s  %-40s  %d images, %d videos, %d errors in %s%s\n",
			humanize.Time(s.ScannedAt), shortenPath(s.Folder, 40),
			s.TotalImages, s.TotalVideos, s.TotalErrors, s.Duration.Round(time.Millisecond), flag)
	}
	return nil
}
