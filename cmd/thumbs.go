package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mediacat/internal/scan"
)

var thumbsForce bool

var thumbsCmd = &cobra.Command{
	Use:   "thumbs <file>",
	Short: "Generate preview thumbnails for one file",
	Long: `Generate the small and medium thumbnails for a single file and print
where they were written. Cached thumbnails are reused unless --force is set.

Example:
  mediacat thumbs IMG_0001.jpg
  mediacat thumbs clip.mp4 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runThumbs,
}

func init() {
	thumbsCmd.Flags().BoolVar(&thumbsForce, "force", false, "Regenerate even when cached")
	rootCmd.AddCommand(thumbsCmd)
}

func runThumbs(cmd *cobra.Command, args []string) error {
	file, err := recognizedFile(formatPolicy(), args[0])
	if err != nil {
		return err
	}

	s := scan.NewScanner(newGenerator(thumbsForce), scan.WithLogger(logger))
	item, err := s.ProcessFile(cmd.Context(), file)
	if err != nil {
		return err
	}

	fmt.Printf("Checksum: %s\n", item.Checksum)
	fmt.Printf("Small:    %s\n", item.Thumbnails.Small)
	fmt.Printf("Medium:   %s\n", item.Thumbnails.Medium)
	return nil
}
