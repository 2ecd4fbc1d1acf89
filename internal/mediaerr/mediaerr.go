// Package mediaerr defines the error kinds produced by the ingestion
// pipeline and maps them to stable, non-technical messages.
package mediaerr

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strings"
	"syscall"
)

// Kind identifies a class of pipeline failure. A Kind is itself an error
// so callers can match with errors.Is(err, mediaerr.DecodeError).
type Kind int

const (
	Unknown Kind = iota
	IoError
	DecodeError
	FrameDecodeError
	UnsupportedFormat
	UnsupportedCodec
	NoVideoStream
	CacheWriteError
	InvalidConfig
	CycleDetected
	AccessDenied
	RootNotFound
	ToolMissing
)

var kindNames = map[Kind]string{
	Unknown:           "Unknown",
	IoError:           "IoError",
	DecodeError:       "DecodeError",
	FrameDecodeError:  "FrameDecodeError",
	UnsupportedFormat: "UnsupportedFormat",
	UnsupportedCodec:  "UnsupportedCodec",
	NoVideoStream:     "NoVideoStream",
	CacheWriteError:   "CacheWriteError",
	InvalidConfig:     "InvalidConfig",
	CycleDetected:     "CycleDetected",
	AccessDenied:      "AccessDenied",
	RootNotFound:      "RootNotFound",
	ToolMissing:       "ToolMissing",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Error() string { return k.String() }

// Error is a typed pipeline failure for one path.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

// New wraps err with a kind and the path it concerns.
func New(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// Newf is New with a formatted cause.
func Newf(kind Kind, path, format string, args ...any) *Error {
	return &Error{Kind: kind, Path: path, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}

// FromIO classifies a filesystem error as AccessDenied or IoError.
func FromIO(path string, err error) *Error {
	if errors.Is(err, fs.ErrPermission) {
		return New(AccessDenied, path, err)
	}
	if errors.Is(err, syscall.ENOSPC) {
		return New(CacheWriteError, path, err)
	}
	return New(IoError, path, err)
}

var kindMessages = map[Kind]string{
	IoError:           "Unable to read the file. It may have been moved or deleted.",
	DecodeError:       "The file may be corrupted and could not be read.",
	FrameDecodeError:  "The video could not be previewed. The file may be partly corrupted.",
	UnsupportedFormat: "This file format is recognized but not supported yet.",
	UnsupportedCodec:  "This video uses a codec that is not supported on this system.",
	NoVideoStream:     "This file has no video track. It may be an audio file.",
	CacheWriteError:   "Unable to save previews. Check that there is enough disk space available.",
	InvalidConfig:     "The format settings are invalid. Select at least one image and one video format, written as plain extensions like jpg or mp4.",
	CycleDetected:     "A folder link points back to a folder that was already scanned.",
	AccessDenied:      "Unable to access the file or folder. Please check permissions.",
	RootNotFound:      "The selected folder could not be found.",
	ToolMissing:       "FFmpeg is not installed, so videos cannot be read. Run 'mediacat doctor' for install instructions.",
}

// ParseKind returns the Kind named s, or Unknown. It accepts the names
// stored in scan results and the catalog.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return Unknown
}

// MessageFor returns the end-user sentence for a kind name.
func MessageFor(kind string) string {
	if msg, ok := kindMessages[ParseKind(kind)]; ok {
		return msg
	}
	return "An unexpected error occurred. Please try again."
}

// InstallHint returns platform-specific instructions for installing FFmpeg.
func InstallHint() string {
	switch runtime.GOOS {
	case "darwin":
		return "Install FFmpeg with Homebrew: brew install ffmpeg"
	case "windows":
		return "Install FFmpeg with winget (winget install ffmpeg) or download it from https://ffmpeg.org/download.html and add its bin folder to PATH."
	case "linux":
		return "Install FFmpeg with your package manager, for example: sudo apt install ffmpeg (Debian/Ubuntu) or sudo dnf install ffmpeg (Fedora)."
	}
	return "Download FFmpeg from https://ffmpeg.org/download.html and make sure ffmpeg and ffprobe are on PATH."
}

// UserMessage maps an error to a stable sentence suitable for end users.
// Raw error text never appears in the result.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := kindMessages[KindOf(err)]; ok {
		return msg
	}

	switch {
	case errors.Is(err, fs.ErrPermission):
		return kindMessages[AccessDenied]
	case errors.Is(err, fs.ErrNotExist):
		return "The requested file or folder could not be found."
	case errors.Is(err, context.DeadlineExceeded):
		return "The operation took too long and timed out. Please try again."
	case errors.Is(err, context.Canceled):
		return "The operation was cancelled."
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "permission denied"), strings.Contains(s, "access denied"):
		return kindMessages[AccessDenied]
	case strings.Contains(s, "not found"), strings.Contains(s, "no such file"):
		return "The requested file or folder could not be found."
	case strings.Contains(s, "disk"), strings.Contains(s, "space"):
		return "Not enough disk space available."
	case strings.Contains(s, "network"), strings.Contains(s, "connection"), strings.Contains(s, "refused"):
		return "Network connection error. Please check your internet connection."
	case strings.Contains(s, "timeout"), strings.Contains(s, "timed out"):
		return "The operation took too long and timed out. Please try again."
	case strings.Contains(s, "corrupt"), strings.Contains(s, "invalid"):
		return "The file appears to be corrupted or invalid."
	}
	return "An unexpected error occurred. Please try again."
}
