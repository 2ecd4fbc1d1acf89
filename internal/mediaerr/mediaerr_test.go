package mediaerr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsKind(t *testing.T) {
	err := fmt.Errorf("thumbnail: %w", New(NoVideoStream, "/x/a.mp4", errors.New("no streams")))

	assert.True(t, errors.Is(err, NoVideoStream))
	assert.False(t, errors.Is(err, DecodeError))
	assert.Equal(t, NoVideoStream, KindOf(err))
	assert.Contains(t, err.Error(), "/x/a.mp4")
}

func TestKindOf_Unknown(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.Equal(t, Unknown, KindOf(nil))
}

func TestFromIO(t *testing.T) {
	assert.Equal(t, AccessDenied, FromIO("/p", fs.ErrPermission).Kind)
	assert.Equal(t, IoError, FromIO("/p", fs.ErrNotExist).Kind)
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"permission", New(AccessDenied, "/p", fs.ErrPermission), "permissions"},
		{"cache write", New(CacheWriteError, "/c", errors.New("no space left on device")), "disk space"},
		{"decode", New(DecodeError, "/d", errors.New("bad huffman")), "corrupted"},
		{"unsupported", New(UnsupportedFormat, "/r.cr2", nil), "not supported"},
		{"not found", fmt.Errorf("stat: %w", fs.ErrNotExist), "could not be found"},
		{"timeout", context.DeadlineExceeded, "timed out"},
		{"network text", errors.New("dial tcp: connection refused"), "Network"},
		{"generic", errors.New("Some random error"), "unexpected error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := UserMessage(tt.err)
			assert.Contains(t, msg, tt.want)
			assert.True(t, strings.HasSuffix(msg, "."))
			assert.NotContains(t, msg, tt.err.Error())
		})
	}
}

func TestUserMessage_EveryKindHasSentence(t *testing.T) {
	for k := range kindNames {
		if k == Unknown {
			continue
		}
		msg := UserMessage(New(k, "", errors.New("technical detail")))
		assert.NotEmpty(t, msg, k.String())
		assert.Less(t, len(msg), 200)
		assert.NotContains(t, msg, "technical detail")
	}
}

func TestParseKind(t *testing.T) {
	for k, name := range kindNames {
		assert.Equal(t, k, ParseKind(name))
	}
	assert.Equal(t, Unknown, ParseKind("NoSuchKind"))
	assert.Equal(t, Unknown, ParseKind(""))
}

func TestMessageFor(t *testing.T) {
	assert.Equal(t, "The file may be corrupted and could not be read.", MessageFor("DecodeError"))
	assert.Equal(t, UserMessage(New(ToolMissing, "", nil)), MessageFor("ToolMissing"))
	assert.Contains(t, MessageFor("bogus"), "unexpected error")
}

func TestToolMissing(t *testing.T) {
	err := fmt.Errorf("metadata: %w", New(ToolMissing, "/v.mp4", errors.New(`exec: "ffprobe": executable file not found in $PATH`)))

	assert.True(t, errors.Is(err, ToolMissing))
	assert.False(t, errors.Is(err, UnsupportedCodec))
	msg := UserMessage(err)
	assert.Contains(t, msg, "FFmpeg is not installed")
	assert.Contains(t, msg, "mediacat doctor")
	assert.NotContains(t, msg, "codec")
	assert.Contains(t, InstallHint(), "ffmpeg")
}

func TestUserMessage_InvalidConfigCoversExtensions(t *testing.T) {
	msg := UserMessage(Newf(InvalidConfig, "", "extension %q must be lowercase without a dot", ".JPG"))
	assert.Contains(t, msg, "at least one image and one video format")
	assert.Contains(t, msg, "plain extensions")
	assert.NotContains(t, msg, ".JPG")
}
