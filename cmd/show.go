package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediacat/internal/models"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one catalog record with its tags",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(showCmd)
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, usagef("invalid record id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	rec, err := store.Get(ctx, ids[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return usagef("no record with id %d", ids[0])
	}
	tags, err := store.TagsFor(ctx, rec.ID)
	if err != nil {
		return err
	}

	if showJSON {
		if tags == nil {
			tags = []models.Tag{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*models.ImageRecord
			Tags []models.Tag `json:"tags"`
		}{rec, tags})
	}

	fmt.Printf("Record #%d\n", rec.ID)
	fmt.Printf("  Path:       %s\n", rec.Path)
	fmt.Printf("  Type:       %s\n", rec.MediaType)
	fmt.Printf("  Resolution: %dx%d\n", rec.Width, rec.Height)
	fmt.Printf("  Size:       %s\n", humanize.Bytes(rec.FileSize))
	fmt.Printf("  Checksum:   %s\n", rec.Checksum)
	if rec.CaptureDate != nil {
		fmt.Printf("  Captured:   %s\n", rec.CaptureDate.Format(time.DateTime))
	}
	if cam := cameraName(rec.CameraMake, rec.CameraModel); cam != "" {
		fmt.Printf("  Camera:     %s\n", cam)
	}
	if rec.GPSLatitude != nil && rec.GPSLongitude != nil {
		fmt.Printf("  GPS:        %.6f, %.6f\n", *rec.GPSLatitude, *rec.GPSLongitude)
	}
	if rec.DurationSeconds != nil {
		fmt.Printf("  Duration:   %.1fs\n", *rec.DurationSeconds)
	}
	if rec.VideoCodec != nil {
		fmt.Printf("  Codec:      %s\n", *rec.VideoCodec)
	}
	fmt.Printf("  Thumbnails: %s\n", rec.ThumbnailSmall)
	fmt.Printf("              %s\n", rec.ThumbnailMedium)
	fmt.Printf("  Added:      %s (%s)\n", rec.CreatedAt.Local().Format(time.DateTime), humanize.Time(rec.CreatedAt))
	fmt.Printf("  Sync:       %s", rec.SyncStatus)
	if rec.SyncedAt != nil {
		fmt.Printf(" at %s", rec.SyncedAt.Local().Format(time.DateTime))
	}
	fmt.Println()

	if len(tags) > 0 {
		fmt.Println("  Tags:")
		for _, t := range tags {
			fmt.Printf("    %-20s %.0f%%\n", t.Label, t.Confidence*100)
		}
	}
	return nil
}
