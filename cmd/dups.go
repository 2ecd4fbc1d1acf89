package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediacat/internal/match"
	"mediacat/internal/models"
)

var (
	dupsSimilar   bool
	dupsThreshold int
	dupsJSON      bool
	dupsVerbose   bool
	dupsSummary   bool
	dupsLimit     int
	dupsOffset    int
)

var dupsCmd = &cobra.Command{
	Use:   "dups",
	Short: "List duplicate files in the catalog",
	Long: `Group catalog records that hold the same content.

By default records are grouped by content checksum (exact copies). With
--similar, photos scanned with --phash are grouped by perceptual hash so
resized or recompressed copies are found too.

Each group shows:
- Which record will be kept (highest resolution) marked with ✓
- Which records can be removed marked with ✗

Example:
  mediacat dups                     # Exact duplicates, first 10 groups
  mediacat dups --similar           # Visually similar photos
  mediacat dups -s -n 0             # Summary of every group
  mediacat dups --offset 10         # Groups 11-20`,
	Args: cobra.NoArgs,
	RunE: runDups,
}

func init() {
	dupsCmd.Flags().BoolVar(&dupsSimilar, "similar", false, "Group by perceptual hash instead of checksum")
	dupsCmd.Flags().IntVar(&dupsThreshold, "threshold", match.DefaultThreshold, "Hamming distance threshold for --similar (0-64, lower = stricter)")
	dupsCmd.Flags().BoolVar(&dupsJSON, "json", false, "Output in JSON format")
	dupsCmd.Flags().BoolVarP(&dupsVerbose, "verbose", "v", false, "Show detailed record info")
	dupsCmd.Flags().BoolVarP(&dupsSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	dupsCmd.Flags().IntVarP(&dupsLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	dupsCmd.Flags().IntVar(&dupsOffset, "offset", 0, "Skip first N groups (for pagination)")
	rootCmd.AddCommand(dupsCmd)
}

func runDups(cmd *cobra.Command, args []string) error {
	if dupsThreshold < 0 || dupsThreshold > 64 {
		return usagef("--threshold must be between 0 and 64, got %d", dupsThreshold)
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	recs, err := store.All(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	var m match.Matcher = match.NewExactMatcher()
	if dupsSimilar {
		m = match.NewPerceptualMatcher(dupsThreshold)
	}
	groups := m.FindGroups(recs)

	if dupsJSON {
		if groups == nil {
			groups = []*models.DuplicateGroup{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		if dupsSimilar {
			fmt.Println("Similar-photo search needs perceptual hashes: run 'mediacat scan <folder> --phash'.")
		}
		return nil
	}

	totalDuplicates := 0
	var totalSavings uint64
	for _, group := range groups {
		for _, r := range group.Remove {
			totalDuplicates++
			totalSavings += r.FileSize
		}
	}

	fmt.Printf("Found %d duplicate groups (%d duplicates, %s reclaimable)\n\n",
		len(groups), totalDuplicates, humanize.Bytes(totalSavings))

	totalGroups := len(groups)
	startIdx := min(dupsOffset, len(groups))
	groups = groups[startIdx:]
	if dupsLimit > 0 && dupsLimit < len(groups) {
		groups = groups[:dupsLimit]
	}

	if len(groups) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", dupsOffset, totalGroups)
	} else if dupsSummary {
		printSummaryTable(groups)
	} else {
		for _, group := range groups {
			printGroup(group, dupsVerbose)
		}
	}

	endIdx := startIdx + len(groups)
	if len(groups) > 0 {
		fmt.Printf("Showing groups %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			limitArg := ""
			if dupsLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", dupsLimit)
			}
			fmt.Printf("Next page: mediacat dups%s --offset %d\n", limitArg, endIdx)
		}
	}

	fmt.Println()
	fmt.Println("Run 'mediacat remove <id>... --dry-run' to preview removing the ✗ records")
	return nil
}

func printSummaryTable(groups []*models.DuplicateGroup) {
	fmt.Printf("%-8s  %-8s  %-12s  %s\n", "Group", "Records", "Reclaimable", "Keep (highest resolution)")
	fmt.Println(strings.Repeat("-", 70))

	for _, group := range groups {
		var reclaimable uint64
		for _, r := range group.Remove {
			reclaimable += r.FileSize
		}

		keepName := filepath.Base(group.Keep.Path)
		if len(keepName) > 35 {
			keepName = keepName[:32] + "..."
		}

		fmt.Printf("#%-7d  %-8d  %-12s  %s\n",
			group.ID, len(group.Records), humanize.Bytes(reclaimable), keepName)
	}
	fmt.Println()
}

func printGroup(group *models.DuplicateGroup, verbose bool) {
	fmt.Printf("Group #%d (%d records)\n", group.ID, len(group.Records))
	fmt.Println(strings.Repeat("-", 60))

	for _, r := range group.Records {
		marker := "✗"
		if r == group.Keep {
			marker = "✓"
		}

		if verbose {
			fmt.Printf("  %s [%d] %s\n", marker, r.ID, r.Path)
			fmt.Printf("      Resolution: %dx%d  Size: %s  Modified: %s\n",
				r.Width, r.Height, humanize.Bytes(r.FileSize), r.FileModified.Local().Format("2006-01-02 15:04"))
		} else {
			fmt.Printf("  %s %-6d %-40s  %dx%d  %8s\n",
				marker, r.ID, shortenPath(r.Path, 40), r.Width, r.Height, humanize.Bytes(r.FileSize))
		}
	}
	fmt.Println()
}
