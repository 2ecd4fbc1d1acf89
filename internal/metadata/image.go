package metadata

import (
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"mediacat/internal/mediaerr"
	"mediacat/internal/models"
)

// unsupported lists recognized extensions with no pure-Go pixel decoder.
var unsupported = map[string]bool{
	"heic": true,
	"raw":  true,
	"cr2":  true,
	"nef":  true,
	"arw":  true,
	"dng":  true,
}

// IsUnsupportedImage reports whether path is a recognized image format
// that cannot be decoded.
func IsUnsupportedImage(path string) bool {
	return unsupported[strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))]
}

func extractImage(path string, meta *models.ImageMetadata) error {
	f, err := os.Open(path)
	if err != nil {
		return mediaerr.FromIO(path, err)
	}
	defer f.Close()

	orientation := readExif(f, meta)

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return mediaerr.FromIO(path, err)
	}
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		if errors.Is(err, image.ErrFormat) && IsUnsupportedImage(path) {
			return mediaerr.New(mediaerr.UnsupportedFormat, path, err)
		}
		return mediaerr.New(mediaerr.DecodeError, path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return mediaerr.Newf(mediaerr.DecodeError, path, "invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}

	meta.Width, meta.Height = uint32(cfg.Width), uint32(cfg.Height)
	// Orientations 5-8 are rotated by 90 degrees
	if orientation >= 5 && orientation <= 8 {
		meta.Width, meta.Height = meta.Height, meta.Width
	}
	return nil
}

// readExif fills optional fields from EXIF and returns the orientation
// (1 when absent). A file without EXIF is not an error.
func readExif(r io.Reader, meta *models.ImageMetadata) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}

	if dt, err := x.DateTime(); err == nil && !dt.IsZero() {
		meta.CaptureDate = &dt
	}
	if tag, err := x.Get(exif.Make); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraMake = cleanString(s)
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraModel = cleanString(s)
		}
	}
	if lat, lon, err := x.LatLong(); err == nil && validCoords(lat, lon) {
		meta.GPS = &models.GPS{Latitude: lat, Longitude: lon}
	}

	orientation := 1
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			orientation = v
		}
	}
	return orientation
}

func validCoords(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
