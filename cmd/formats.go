package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediacat/internal/formats"
)

var (
	formatsImages []string
	formatsVideos []string
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "Show or change which file extensions are scanned",
	Long: `Manage the whitelist of recognized image and video extensions.
Changes are saved to the settings file.

Example:
  mediacat formats show
  mediacat formats set --images jpg,png,heic
  mediacat formats set --videos mp4,mov
  mediacat formats reset`,
}

var formatsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active whitelist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printFormats(formatPolicy().Config())
		return nil
	},
}

var formatsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the image and/or video whitelist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		images, videos := cmd.Flags().Changed("images"), cmd.Flags().Changed("videos")
		if !images && !videos {
			return usagef("nothing to change, pass --images and/or --videos")
		}

		policy := formatPolicy()
		next := policy.Config()
		if images {
			next.ImageFormats = formatsImages
		}
		if videos {
			next.VideoFormats = formatsVideos
		}
		if err := policy.SetConfig(next); err != nil {
			return err
		}
		printFormats(policy.Config())
		return nil
	},
}

var formatsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore the built-in whitelist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := formatPolicy()
		if err := policy.Reset(); err != nil {
			return err
		}
		printFormats(policy.Config())
		return nil
	},
}

func init() {
	formatsSetCmd.Flags().StringSliceVar(&formatsImages, "images", nil, "Comma separated image extensions")
	formatsSetCmd.Flags().StringSliceVar(&formatsVideos, "videos", nil, "Comma separated video extensions")
	formatsCmd.AddCommand(formatsShowCmd, formatsSetCmd, formatsResetCmd)
	rootCmd.AddCommand(formatsCmd)
}

func printFormats(c formats.Config) {
	fmt.Printf("Images: %s\n", strings.Join(c.ImageFormats, ", "))
	fmt.Printf("Videos: %s\n", strings.Join(c.VideoFormats, ", "))
}
