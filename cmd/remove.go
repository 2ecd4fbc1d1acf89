package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mediacat/internal/fileutil"
	"mediacat/internal/models"
)

var (
	removeTrash     bool
	removePermanent bool
	removeDryRun    bool
	removeNoConfirm bool
)

var removeCmd = &cobra.Command{
	Use:   "remove <id>...",
	Short: "Remove records from the catalog",
	Long: `Remove records from the catalog together with their cached thumbnails.

The source files are left alone unless --trash or --permanent is given.
Thumbnails shared with another record (same content) are kept.

Options:
  --dry-run     Preview what would be removed
  --trash       Also move the source files to the trash
  --permanent   Also delete the source files permanently
  --yes         Skip confirmation prompt

Example:
  mediacat remove 12 14 --dry-run
  mediacat remove 12 --trash
  mediacat remove 12 14 --permanent --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	removeCmd.Flags().BoolVar(&removeTrash, "trash", false, "Move source files to trash")
	removeCmd.Flags().BoolVar(&removePermanent, "permanent", false, "Delete source files permanently")
	removeCmd.Flags().BoolVar(&removeDryRun, "dry-run", false, "Preview without removing")
	removeCmd.Flags().BoolVarP(&removeNoConfirm, "yes", "y", false, "Skip confirmation prompt")
	removeCmd.MarkFlagsMutuallyExclusive("trash", "permanent")
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
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
	var targets []*models.ImageRecord
	var totalSize uint64
	for _, id := range ids {
		rec, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Fprintf(os.Stderr, "No record with id %d, skipping\n", id)
			continue
		}
		targets = append(targets, rec)
		totalSize += rec.FileSize
	}
	if len(targets) == 0 {
		fmt.Println("Nothing to remove.")
		return nil
	}

	action := "remove from the catalog"
	switch {
	case removeTrash:
		action = "remove and move to trash"
	case removePermanent:
		action = "remove and permanently delete"
	}

	fmt.Printf("Will %s %d records (%s)\n\n", action, len(targets), humanize.Bytes(totalSize))

	if removeDryRun {
		fmt.Println("Records to be removed:")
		for _, r := range targets {
			fmt.Printf("  [%d] %s\n", r.ID, r.Path)
		}
		fmt.Println()
		fmt.Println("(Dry run - nothing was modified)")
		return nil
	}

	if !removeNoConfirm {
		fmt.Printf("Are you sure you want to %s %d records? [y/N]: ", action, len(targets))
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	thumbs := newGenerator(false)
	var processed, failed int
	for _, r := range targets {
		if err := removeSource(r.Path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to process %s: %v\n", r.Path, err)
			failed++
			continue
		}

		if _, err := store.Delete(ctx, r.ID); err != nil {
			return fmt.Errorf("failed to delete record %d: %w", r.ID, err)
		}
		processed++

		others, err := store.GetByChecksum(ctx, r.Checksum)
		if err != nil {
			return err
		}
		if len(others) == 0 {
			if err := thumbs.Remove(r.Checksum); err != nil {
				logger.Warn("failed to remove thumbnails", zap.String("checksum", r.Checksum), zap.Error(err))
			}
		}
	}

	fmt.Println()
	fmt.Printf("Removed %d records\n", processed)
	if failed > 0 {
		fmt.Printf("Failed: %d records\n", failed)
	}
	return nil
}

// removeSource applies the chosen action to the file on disk. A file
// that is already gone does not block removing its record.
func removeSource(path string) error {
	var err error
	switch {
	case removeTrash:
		var dest string
		dest, err = fileutil.MoveToTrash(path)
		if err == nil {
			logger.Debug("moved to trash", zap.String("path", path), zap.String("dest", dest))
		}
	case removePermanent:
		err = os.Remove(path)
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
