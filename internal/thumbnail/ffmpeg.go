package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediacat/internal/mediaerr"
)

// FrameExtractor pulls a single decoded frame out of a video.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string, at time.Duration) (image.Image, error)
}

// FFmpeg extracts frames by piping one PNG frame out of ffmpeg.
type FFmpeg struct {
	binary string
	logger *zap.Logger
}

// NewFFmpeg creates an extractor. An empty binary means "ffmpeg" on PATH.
func NewFFmpeg(binary string, logger *zap.Logger) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpeg{binary: binary, logger: logger}
}

// Version reports the first line of "ffmpeg -version". A binary that is
// not on PATH yields a ToolMissing error.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	return toolVersion(ctx, f.binary)
}

func toolVersion(ctx context.Context, binary string) (string, error) {
	bin, err := exec.LookPath(binary)
	if err != nil {
		return "", mediaerr.New(mediaerr.ToolMissing, binary, err)
	}
	out, err := exec.CommandContext(ctx, bin, "-version").Output()
	if err != nil {
		return "", mediaerr.New(mediaerr.ToolMissing, bin, fmt.Errorf("run %s -version: %w", binary, err))
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// ExtractFrame returns the frame at the given offset. If nothing can be
// decoded at a non-zero offset it falls back to the first frame.
func (f *FFmpeg) ExtractFrame(ctx context.Context, path string, at time.Duration) (image.Image, error) {
	bin, err := exec.LookPath(f.binary)
	if err != nil {
		return nil, mediaerr.New(mediaerr.ToolMissing, path, fmt.Errorf("ffmpeg not found: %w", err))
	}

	out, stderr, err := f.run(ctx, bin, path, at)
	if err == nil && len(out) == 0 && at > 0 {
		f.logger.Debug("no frame at offset, retrying first frame",
			zap.String("path", path), zap.Duration("at", at))
		out, stderr, err = f.run(ctx, bin, path, 0)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyFFmpegError(path, err, stderr)
	}
	if len(out) == 0 {
		return nil, mediaerr.New(mediaerr.FrameDecodeError, path, errors.New("ffmpeg produced no output"))
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, mediaerr.New(mediaerr.FrameDecodeError, path, fmt.Errorf("decode ffmpeg output: %w", err))
	}
	return img, nil
}

func (f *FFmpeg) run(ctx context.Context, bin, path string, at time.Duration) ([]byte, string, error) {
	args := []string{"-v", "error", "-nostdin"}
	if at > 0 {
		args = append(args, "-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64))
	}
	args = append(args,
		"-i", path,
		"-map", "0:v:0",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// classifyFFmpegError maps ffmpeg's stderr to an error kind.
func classifyFFmpegError(path string, err error, stderr string) error {
	msg := strings.ToLower(stderr)
	cause := fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr))
	switch {
	case strings.Contains(msg, "matches no streams"),
		strings.Contains(msg, "does not contain any stream"),
		strings.Contains(msg, "no video stream"):
		return mediaerr.New(mediaerr.NoVideoStream, path, cause)
	case strings.Contains(msg, "decoder") && strings.Contains(msg, "not found"),
		strings.Contains(msg, "unknown decoder"),
		strings.Contains(msg, "unsupported codec"),
		strings.Contains(msg, "no decoder"):
		return mediaerr.New(mediaerr.UnsupportedCodec, path, cause)
	default:
		return mediaerr.New(mediaerr.FrameDecodeError, path, cause)
	}
}
