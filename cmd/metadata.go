package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediacat/internal/formats"
	"mediacat/internal/metadata"
	"mediacat/internal/models"
)

var metadataJSON bool

var metadataCmd = &cobra.Command{
	Use:   "metadata <file>",
	Short: "Print the metadata extracted from one photo or video",
	Long: `Extract and print metadata for a single file without touching the catalog.

Example:
  mediacat metadata IMG_0001.jpg
  mediacat metadata clip.mp4 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMetadata,
}

func init() {
	metadataCmd.Flags().BoolVar(&metadataJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(metadataCmd)
}

// recognizedFile resolves path and classifies it against the whitelist
func recognizedFile(policy *formats.Policy, path string) (models.MediaFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.MediaFile{}, fmt.Errorf("failed to resolve path: %w", err)
	}
	mt, ok := policy.IsRecognized(abs)
	if !ok {
		return models.MediaFile{}, usagef("%s is not a recognized photo or video extension (see 'mediacat formats show')", filepath.Base(abs))
	}
	return models.MediaFile{Path: abs, Type: mt}, nil
}

func runMetadata(cmd *cobra.Command, args []string) error {
	file, err := recognizedFile(formatPolicy(), args[0])
	if err != nil {
		return err
	}

	ex := metadata.NewExtractor(metadata.WithLogger(logger))
	meta, err := ex.Extract(cmd.Context(), file)
	if err != nil {
		return err
	}

	if metadataJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			models.MediaFile
			Metadata models.ImageMetadata `json:"metadata"`
		}{file, meta})
	}

	fmt.Printf("File:        %s\n", file.Path)
	fmt.Printf("Type:        %s\n", file.Type)
	fmt.Printf("Resolution:  %dx%d\n", meta.Width, meta.Height)
	fmt.Printf("Size:        %s\n", humanize.Bytes(meta.FileSize))
	fmt.Printf("Modified:    %s\n", meta.FileModified.Local().Format(time.DateTime))
	if meta.CaptureDate != nil {
		fmt.Printf("Captured:    %s\n", meta.CaptureDate.Format(time.DateTime))
	}
	if meta.CameraMake != nil || meta.CameraModel != nil {
		fmt.Printf("Camera:      %s\n", cameraName(meta.CameraMake, meta.CameraModel))
	}
	if meta.GPS != nil {
		fmt.Printf("GPS:         %.6f, %.6f\n", meta.GPS.Latitude, meta.GPS.Longitude)
	}
	if meta.DurationSeconds != nil {
		fmt.Printf("Duration:    %s\n", (time.Duration(*meta.DurationSeconds * float64(time.Second))).Round(time.Millisecond))
	}
	if meta.VideoCodec != nil {
		fmt.Printf("Codec:       %s\n", *meta.VideoCodec)
	}
	return nil
}

func cameraName(mk, model *string) string {
	switch {
	case mk != nil && model != nil:
		return *mk + " " + *model
	case model != nil:
		return *model
	case mk != nil:
		return *mk
	}
	return ""
}
