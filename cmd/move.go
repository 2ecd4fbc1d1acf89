package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"mediacat/internal/fileutil"
)

var moveCmd = &cobra.Command{
	Use:   "move <id> <folder>",
	Short: "Move a record's source file and keep the catalog in step",
	Long: `Move the file behind a record into another folder. A numeric suffix is
added if the name is taken. The record keeps its id, tags and sync state.

Example:
  mediacat move 12 ~/Pictures/Archive`,
	Args: cobra.ExactArgs(2),
	RunE: runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args[:1])
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

	dir, err := filepath.Abs(args[1])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	dest, err := fileutil.MoveFile(rec.Path, dir)
	if err != nil {
		return err
	}
	if err := store.UpdatePath(ctx, rec.ID, dest); err != nil {
		return fmt.Errorf("file moved to %s but the catalog could not be updated: %w", dest, err)
	}

	fmt.Printf("Moved %s\n   -> %s\n", rec.Path, dest)
	return nil
}
