package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediacat/internal/formats"
	"mediacat/internal/mediaerr"
	"mediacat/internal/models"
	"mediacat/internal/scan"
)

func TestShortenPath(t *testing.T) {
	assert.Equal(t, "/a/b.jpg", shortenPath("/a/b.jpg", 40))

	got := shortenPath("/very/long/directory/structure/holding/photo.jpg", 20)
	assert.LessOrEqual(t, len(got), 20)
	assert.Contains(t, got, "photo.jpg")
	assert.True(t, len(got) > 3 && got[:3] == "...")

	got = shortenPath("/x/an_extremely_long_file_name_for_a_photo.jpg", 12)
	assert.Equal(t, 12, len(got))
	assert.Equal(t, "...photo.jpg", got)
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", "14"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 14}, ids)

	for _, bad := range []string{"0", "-2", "abc"} {
		_, err := parseIDs([]string{bad})
		var ue usageError
		assert.ErrorAs(t, err, &ue, bad)
	}
}

func TestBuildFilter(t *testing.T) {
	reset := func() {
		listFrom, listTo, listCamera, listType, listText, listNear, listSyncStatus = "", "", "", "", "", "", ""
		listTags, listRadius, listLimit, listOffset = nil, 10, 20, 0
	}
	t.Cleanup(reset)

	reset()
	listFrom, listTo = "2024-01-01", "2024-01-31"
	listType, listSyncStatus = "VIDEO", "failed"
	listNear, listRadius = "48.85,2.35", 5
	listTags = []string{"beach"}
	f, err := buildFilter()
	require.NoError(t, err)
	assert.Equal(t, models.MediaVideo, f.MediaType)
	assert.Equal(t, models.SyncFailed, f.SyncStatus)
	assert.Equal(t, 23, f.DateTo.Hour())
	assert.Equal(t, 5.0, f.Location.RadiusKm)
	assert.Equal(t, []string{"beach"}, f.Tags)
	assert.Equal(t, 20, f.Limit)

	tests := []struct {
		name string
		set  func()
	}{
		{"bad date", func() { listFrom = "01/02/2024" }},
		{"bad type", func() { listType = "audio" }},
		{"bad sync", func() { listSyncStatus = "done" }},
		{"bad near", func() { listNear = "north" }},
		{"negative offset", func() { listOffset = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			tt.set()
			_, err := buildFilter()
			var ue usageError
			assert.ErrorAs(t, err, &ue)
		})
	}
}

func TestIsCobraUsage(t *testing.T) {
	assert.True(t, isCobraUsage(errors.New(`unknown command "x" for "mediacat"`)))
	assert.False(t, isCobraUsage(fmt.Errorf("failed to open catalog: %w", errors.New("locked"))))
	assert.False(t, isCobraUsage(mediaerr.Newf(mediaerr.InvalidConfig, "", "empty")))
}

func TestCameraName(t *testing.T) {
	mk, model := "Canon", "EOS R5"
	assert.Equal(t, "Canon EOS R5", cameraName(&mk, &model))
	assert.Equal(t, "EOS R5", cameraName(nil, &model))
	assert.Equal(t, "Canon", cameraName(&mk, nil))
	assert.Equal(t, "", cameraName(nil, nil))
}

func TestPrintScanSummary_UserSentences(t *testing.T) {
	result := &models.ScanResult{
		VideoCount: 1,
		Duration:   1500 * time.Millisecond,
		Errors: []models.ScanError{
			{Path: "/x/c.mp4", Kind: "DecodeError", Message: "metadata: unreadable container: exit status 1 moov atom not found"},
			{Path: "/x/d.mp4", Kind: "ToolMissing", Message: `exec: "ffprobe": executable file not found in $PATH`},
		},
	}

	var buf bytes.Buffer
	printScanSummary(&buf, result, scan.CommitSummary{})
	out := buf.String()

	assert.Contains(t, out, "Errors:    2")
	assert.Contains(t, out, "/x/c.mp4  ")
	assert.Contains(t, out, "The file may be corrupted and could not be read.")
	assert.Contains(t, out, "FFmpeg is not installed")
	assert.NotContains(t, out, "moov atom")
	assert.NotContains(t, out, "executable file not found")
}

func TestPrintScanSummary_TruncatesFailedFiles(t *testing.T) {
	result := &models.ScanResult{}
	for i := range 12 {
		result.Errors = append(result.Errors, models.ScanError{Path: fmt.Sprintf("/x/%d.jpg", i), Kind: "IoError"})
	}

	var buf bytes.Buffer
	printScanSummary(&buf, result, scan.CommitSummary{})
	assert.Contains(t, buf.String(), "... and 2 more")
	assert.NotContains(t, buf.String(), "/x/10.jpg")
}

func TestRecognizedFile(t *testing.T) {
	policy := formats.NewPolicy(formats.DefaultConfig())

	f, err := recognizedFile(policy, "/photos/a.JPG")
	require.NoError(t, err)
	assert.Equal(t, models.MediaImage, f.Type)
	assert.True(t, filepath.IsAbs(f.Path))

	_, err = recognizedFile(policy, "/docs/report.pdf")
	var ue usageError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, err.Error(), "report.pdf is not a recognized photo or video extension")
	assert.Equal(t, mediaerr.Unknown, mediaerr.KindOf(err))
}

type fakeTool struct {
	version string
	err     error
}

func (f fakeTool) Version(context.Context) (string, error) { return f.version, f.err }

func TestCheckTools(t *testing.T) {
	var buf bytes.Buffer
	err := checkTools(context.Background(), &buf, []toolCheck{
		{name: "ffmpeg", tool: fakeTool{version: "ffmpeg version 7.1"}},
		{name: "ffprobe", tool: fakeTool{version: "ffprobe version 7.1"}},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ffmpeg version 7.1")
	assert.Contains(t, buf.String(), "All video tools are available.")

	buf.Reset()
	err = checkTools(context.Background(), &buf, []toolCheck{
		{name: "ffmpeg", tool: fakeTool{version: "ffmpeg version 7.1"}},
		{name: "ffprobe", tool: fakeTool{err: mediaerr.New(mediaerr.ToolMissing, "ffprobe", errors.New("not found"))}},
	})
	var ue usageError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, buf.String(), "missing  ffprobe")
	assert.Contains(t, buf.String(), mediaerr.InstallHint())

	boom := errors.New("boom")
	err = checkTools(context.Background(), &buf, []toolCheck{{name: "ffmpeg", tool: fakeTool{err: boom}}})
	assert.ErrorIs(t, err, boom)
}
