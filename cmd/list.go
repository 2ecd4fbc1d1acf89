package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediacat/internal/models"
)

var (
	listFrom       string
	listTo         string
	listCamera     string
	listType       string
	listTags       []string
	listText       string
	listNear       string
	listRadius     float64
	listSyncStatus string
	listLimit      int
	listOffset     int
	listJSON       bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Query the catalog",
	Long: `List catalog records matching every given filter, newest capture first.

Example:
  mediacat list                                 # First 20 records
  mediacat list --from 2024-06-01 --to 2024-06-30
  mediacat list --camera "iPhone 15" --type image
  mediacat list --tag beach --tag sunset        # Records with both tags
  mediacat list --text paris                    # Path, camera or tag contains
  mediacat list --near 48.8566,2.3522 --radius 5
  mediacat list -n 0 --json                     # Everything as JSON`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVar(&listFrom, "from", "", "Captured on or after (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listTo, "to", "", "Captured on or before (YYYY-MM-DD)")
	listCmd.Flags().StringVar(&listCamera, "camera", "", "Exact camera model")
	listCmd.Flags().StringVar(&listType, "type", "", "Media type: image or video")
	listCmd.Flags().StringSliceVar(&listTags, "tag", nil, "Required tag (repeatable, all must match)")
	listCmd.Flags().StringVar(&listText, "text", "", "Free text matched against path, camera and tags")
	listCmd.Flags().StringVar(&listNear, "near", "", "Center point as lat,lon")
	listCmd.Flags().Float64Var(&listRadius, "radius", 10, "Radius in km around --near")
	listCmd.Flags().StringVar(&listSyncStatus, "sync-status", "", "pending, synced or failed")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "Maximum records to show (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N records (for pagination)")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func buildFilter() (models.ImageFilter, error) {
	var f models.ImageFilter
	var err error

	if f.DateFrom, err = models.ParseDate(listFrom); err != nil {
		return f, usagef("--from: %v", err)
	}
	to, err := models.ParseDate(listTo)
	if err != nil {
		return f, usagef("--to: %v", err)
	}
	f.DateTo = models.EndOfDay(to)

	switch t := models.MediaType(strings.ToLower(listType)); t {
	case "", models.MediaImage, models.MediaVideo:
		f.MediaType = t
	default:
		return f, usagef("--type must be image or video, got %q", listType)
	}

	switch s := models.SyncStatus(strings.ToLower(listSyncStatus)); s {
	case "", models.SyncPending, models.SyncSynced, models.SyncFailed:
		f.SyncStatus = s
	default:
		return f, usagef("--sync-status must be pending, synced or failed, got %q", listSyncStatus)
	}

	if f.Location, err = models.ParseLocation(listNear, listRadius); err != nil {
		return f, usagef("--near: %v", err)
	}
	if listLimit < 0 || listOffset < 0 {
		return f, usagef("--limit and --offset must not be negative")
	}

	f.CameraModel = listCamera
	f.Tags = listTags
	f.Text = listText
	f.Limit = listLimit
	f.Offset = listOffset
	return f, nil
}

func runList(cmd *cobra.Command, args []string) error {
	filter, err := buildFilter()
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.Query(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to query catalog: %w", err)
	}

	if listJSON {
		if recs == nil {
			recs = []*models.ImageRecord{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	if len(recs) == 0 {
		if listOffset > 0 {
			fmt.Printf("No records in range (offset %d).\n", listOffset)
		} else {
			fmt.Println("No matching records.")
			fmt.Println("Run 'mediacat scan <folder>' to add files to the catalog.")
		}
		return nil
	}

	printRecordTable(recs)

	fmt.Printf("Showing records %d-%d\n", listOffset+1, listOffset+len(recs))
	if listLimit > 0 && len(recs) == listLimit {
		fmt.Printf("Next page: mediacat list -n %d --offset %d\n", listLimit, listOffset+len(recs))
	}
	return nil
}

func printRecordTable(recs []*models.ImageRecord) {
	fmt.Printf("%-6s  %-5s  %-16s  %-40s  %-10s  %8s  %s\n", "ID", "Type", "Captured", "Path", "Size", "Res", "Sync")
	fmt.Println(strings.Repeat("-", 105))
	for _, r := range recs {
		captured := "-"
		if r.CaptureDate != nil {
			captured = r.CaptureDate.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-6d  %-5s  %-16s  %-40s  %-10s  %8s  %s\n",
			r.ID, r.MediaType, captured, shortenPath(r.Path, 40),
			humanize.Bytes(r.FileSize), fmt.Sprintf("%dx%d", r.Width, r.Height), r.SyncStatus)
	}
	fmt.Println()
}
