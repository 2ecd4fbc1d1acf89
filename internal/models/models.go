package models

import "time"

// MediaType classifies a recognized file
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaFile is a file discovered by the walker
type MediaFile struct {
	Path string    `json:"path"`
	Type MediaType `json:"media_type"`
}

// GPS holds decimal degree coordinates
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ImageMetadata is the structured metadata extracted from a media file.
// Width, Height and FileSize are always set on a successful extraction.
type ImageMetadata struct {
	CaptureDate     *time.Time `json:"capture_date,omitempty"`
	CameraMake      *string    `json:"camera_make,omitempty"`
	CameraModel     *string    `json:"camera_model,omitempty"`
	GPS             *GPS       `json:"gps_coordinates,omitempty"`
	Width           uint32     `json:"width"`
	Height          uint32     `json:"height"`
	FileSize        uint64     `json:"file_size"`
	FileModified    time.Time  `json:"file_modified"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	VideoCodec      *string    `json:"video_codec,omitempty"`
}

// ThumbnailPaths points at the cached derivatives of one media item
type ThumbnailPaths struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
}

// ScanError attributes one failed file to a reason
type ScanError struct {
	Path    string `json:"path"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ProcessedFile is everything the pipeline produced for an accepted file
type ProcessedFile struct {
	File           MediaFile      `json:"file"`
	Metadata       ImageMetadata  `json:"metadata"`
	Checksum       string         `json:"checksum"`
	PerceptualHash uint64         `json:"perceptual_hash,omitempty"`
	Thumbnails     ThumbnailPaths `json:"thumbnails"`
}

// ScanResult holds the outcome of one scan invocation
type ScanResult struct {
	RunID      string          `json:"run_id"`
	Root       string          `json:"root"`
	MediaFiles []MediaFile     `json:"media_files"`
	Items      []ProcessedFile `json:"-"`
	TotalCount int             `json:"total_count"`
	ImageCount int             `json:"image_count"`
	VideoCount int             `json:"video_count"`
	Errors     []ScanError     `json:"errors"`
	Degraded   bool            `json:"degraded"`
	Duration   time.Duration   `json:"duration"`
}

// Progress is emitted after each file completes, in completion order
type Progress struct {
	CountSoFar  int    `json:"count_so_far"`
	CurrentFile string `json:"current_file"`
	ImageCount  int    `json:"image_count"`
	VideoCount  int    `json:"video_count"`
	ErrorCount  int    `json:"error_count"`
}

// SyncStatus tracks cloud backup state of a record
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// ImageRecord is a committed catalog entry
type ImageRecord struct {
	ID              int64      `json:"id"`
	Path            string     `json:"path"`
	MediaType       MediaType  `json:"media_type"`
	ThumbnailSmall  string     `json:"thumbnail_small"`
	ThumbnailMedium string     `json:"thumbnail_medium"`
	Checksum        string     `json:"checksum"`
	PerceptualHash  uint64     `json:"perceptual_hash,omitempty"`
	CaptureDate     *time.Time `json:"capture_date,omitempty"`
	CameraMake      *string    `json:"camera_make,omitempty"`
	CameraModel     *string    `json:"camera_model,omitempty"`
	GPSLatitude     *float64   `json:"gps_latitude,omitempty"`
	GPSLongitude    *float64   `json:"gps_longitude,omitempty"`
	Width           uint32     `json:"width"`
	Height          uint32     `json:"height"`
	FileSize        uint64     `json:"file_size"`
	FileModified    time.Time  `json:"file_modified"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`
	VideoCodec      *string    `json:"video_codec,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	SyncStatus      SyncStatus `json:"sync_status"`
	SyncedAt        *time.Time `json:"synced_at,omitempty"`
}

// NewImageRecord flattens a processed file into a catalog record
func NewImageRecord(p ProcessedFile) ImageRecord {
	m := p.Metadata
	rec := ImageRecord{
		Path:            p.File.Path,
		MediaType:       p.File.Type,
		ThumbnailSmall:  p.Thumbnails.Small,
		ThumbnailMedium: p.Thumbnails.Medium,
		Checksum:        p.Checksum,
		PerceptualHash:  p.PerceptualHash,
		CaptureDate:     m.CaptureDate,
		CameraMake:      m.CameraMake,
		CameraModel:     m.CameraModel,
		Width:           m.Width,
		Height:          m.Height,
		FileSize:        m.FileSize,
		FileModified:    m.FileModified,
		DurationSeconds: m.DurationSeconds,
		VideoCodec:      m.VideoCodec,
		SyncStatus:      SyncPending,
	}
	if m.GPS != nil {
		lat, lon := m.GPS.Latitude, m.GPS.Longitude
		rec.GPSLatitude = &lat
		rec.GPSLongitude = &lon
	}
	return rec
}

// Pixels returns the resolution used to rank duplicates
func (r *ImageRecord) Pixels() uint64 {
	return uint64(r.Width) * uint64(r.Height)
}

// Tag is a classifier label attached to a record
type Tag struct {
	ID         int64     `json:"id"`
	ImageID    int64     `json:"image_id"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Embedding is a feature vector computed for one catalog record by a
// named model. A record holds at most one embedding.
type Embedding struct {
	ImageID      int64     `json:"image_id"`
	Vector       []float64 `json:"vector"`
	ModelVersion string    `json:"model_version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Location restricts a query to a radius around a point
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusKm  float64 `json:"radius_km"`
}

// ImageFilter narrows a catalog query. Zero values mean "no constraint".
type ImageFilter struct {
	DateFrom    *time.Time
	DateTo      *time.Time
	CameraModel string
	MediaType   MediaType
	Tags        []string
	Text        string
	Location    *Location
	SyncStatus  SyncStatus
	Limit       int
	Offset      int
}

// DuplicateGroup represents a group of identical or similar records
type DuplicateGroup struct {
	ID      int            `json:"id"`
	Records []*ImageRecord `json:"records"`
	Keep    *ImageRecord   `json:"keep"`   // Record to keep (highest resolution)
	Remove  []*ImageRecord `json:"remove"` // Records to remove
}
