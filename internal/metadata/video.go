package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"mediacat/internal/mediaerr"
	"mediacat/internal/models"
)

// VideoInfo is the subset of container metadata the catalog keeps.
type VideoInfo struct {
	DurationSeconds float64
	Codec           string
	Width           uint32
	Height          uint32
	CreationTime    *time.Time
}

// VideoProber inspects a video container.
// Implementations return NoVideoStream when the container has no video
// track and DecodeError when the container cannot be read.
type VideoProber interface {
	Probe(ctx context.Context, path string) (*VideoInfo, error)
}

// FFprobe probes videos with the ffprobe binary.
type FFprobe struct {
	binary string
}

// NewFFprobe creates a prober. An empty binary means "ffprobe" on PATH.
func NewFFprobe(binary string) *FFprobe {
	if binary == "" {
		binary = "ffprobe"
	}
	return &FFprobe{binary: binary}
}

// Version reports the first line of "ffprobe -version".
func (p *FFprobe) Version(ctx context.Context) (string, error) {
	bin, err := exec.LookPath(p.binary)
	if err != nil {
		return "", mediaerr.New(mediaerr.ToolMissing, p.binary, err)
	}
	out, err := exec.CommandContext(ctx, bin, "-version").Output()
	if err != nil {
		return "", mediaerr.New(mediaerr.ToolMissing, bin, fmt.Errorf("run ffprobe -version: %w", err))
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Probe runs ffprobe and parses its JSON output
func (p *FFprobe) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	bin, err := exec.LookPath(p.binary)
	if err != nil {
		return nil, mediaerr.New(mediaerr.ToolMissing, path, fmt.Errorf("ffprobe not found: %w", err))
	}

	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, mediaerr.New(mediaerr.DecodeError, path,
			fmt.Errorf("unreadable container: %w %s", err, strings.TrimSpace(stderr.String())))
	}
	return ParseProbe(path, stdout.Bytes())
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

type probeStream struct {
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
	SideDataList []struct {
		Rotation float64 `json:"rotation"`
	} `json:"side_data_list"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// ParseProbe converts ffprobe JSON into VideoInfo.
func ParseProbe(path string, data []byte) (*VideoInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, mediaerr.New(mediaerr.DecodeError, path, fmt.Errorf("parse probe output: %w", err))
	}
	if len(out.Streams) == 0 {
		return nil, mediaerr.New(mediaerr.DecodeError, path, errors.New("container has no streams"))
	}

	var video *probeStream
	for i := range out.Streams {
		s := &out.Streams[i]
		// Cover art in audio files shows up as a single-frame video stream
		if s.CodecType == "video" && s.Disposition.AttachedPic == 0 {
			video = s
			break
		}
	}
	if video == nil {
		return nil, mediaerr.New(mediaerr.NoVideoStream, path, errors.New("no video stream"))
	}
	if video.Width <= 0 || video.Height <= 0 {
		return nil, mediaerr.Newf(mediaerr.DecodeError, path, "video stream has no dimensions")
	}

	info := &VideoInfo{
		Codec:  video.CodecName,
		Width:  uint32(video.Width),
		Height: uint32(video.Height),
	}

	if rot := rotation(video); rot == 90 || rot == 270 {
		info.Width, info.Height = info.Height, info.Width
	}

	dur := parseSeconds(out.Format.Duration)
	if dur <= 0 {
		dur = parseSeconds(video.Duration)
	}
	info.DurationSeconds = dur

	if ct := out.Format.Tags["creation_time"]; ct != "" {
		if t, err := time.Parse(time.RFC3339Nano, ct); err == nil && !t.IsZero() {
			info.CreationTime = &t
		}
	}
	return info, nil
}

func rotation(s *probeStream) int {
	deg := 0.0
	if r, ok := s.Tags["rotate"]; ok {
		if v, err := strconv.ParseFloat(r, 64); err == nil {
			deg = v
		}
	}
	for _, sd := range s.SideDataList {
		if sd.Rotation != 0 {
			deg = sd.Rotation
		}
	}
	d := int(math.Round(deg)) % 360
	if d < 0 {
		d += 360
	}
	return d
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (e *Extractor) extractVideo(ctx context.Context, path string, meta *models.ImageMetadata) error {
	info, err := e.prober.Probe(ctx, path)
	if err != nil {
		if mediaerr.KindOf(err) != mediaerr.Unknown || ctx.Err() != nil {
			return err
		}
		return mediaerr.New(mediaerr.DecodeError, path, err)
	}

	meta.Width, meta.Height = info.Width, info.Height
	dur := info.DurationSeconds
	meta.DurationSeconds = &dur
	meta.VideoCodec = cleanString(info.Codec)
	if info.CreationTime != nil {
		ct := *info.CreationTime
		meta.CaptureDate = &ct
	}
	return nil
}
