// Package fileutil moves source media out of the way: into a directory or
// into the platform trash.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"mediacat/internal/mediaerr"
)

// MoveFile moves src into destDir and returns the new path. A name that is
// already taken gets a counter suffix (photo_1.jpg).
func MoveFile(src, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", mediaerr.FromIO(destDir, err)
	}

	destName := findUniqueName(filepath.Base(src), func(name string) bool {
		_, err := os.Lstat(filepath.Join(destDir, name))
		return errors.Is(err, os.ErrNotExist)
	})

	dest := filepath.Join(destDir, destName)
	if err := moveAcrossFS(src, dest); err != nil {
		return "", mediaerr.FromIO(src, err)
	}
	return dest, nil
}

// findUniqueName appends a counter until isAvailable accepts the name
func findUniqueName(filename string, isAvailable func(string) bool) string {
	if isAvailable(filename) {
		return filename
	}

	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", name, counter, ext)
		if isAvailable(candidate) {
			return candidate
		}
	}
}

// moveAcrossFS renames, falling back to copy and delete across devices
func moveAcrossFS(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(src, dest); err != nil {
			return err
		}
		return os.Remove(src)
	}
	return err
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	// Keep the capture-time fallback intact
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// MoveToTrash moves src to the platform trash and returns where it went.
// Windows hands the file to the Recycle Bin, so the returned path is empty.
func MoveToTrash(src string) (string, error) {
	switch runtime.GOOS {
	case "windows":
		if err := moveToWindowsTrash(src); err != nil {
			return "", mediaerr.New(mediaerr.IoError, src, err)
		}
		return "", nil
	case "linux":
		return moveToFreedesktopTrash(src, trashHome())
	default:
		return MoveFile(src, trashDir())
	}
}

func trashHome() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "Trash")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mediacat_trash")
	}
	return filepath.Join(home, ".local", "share", "Trash")
}

func trashDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mediacat_trash")
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, ".Trash")
	}
	return filepath.Join(home, "mediacat_trash")
}

// moveToFreedesktopTrash writes the .trashinfo entry desktop file
// managers need to offer "restore"
func moveToFreedesktopTrash(src, trash string) (string, error) {
	filesDir := filepath.Join(trash, "files")
	infoDir := filepath.Join(trash, "info")
	for _, d := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return "", mediaerr.FromIO(d, err)
		}
	}

	absPath, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}

	// The name must be free in both directories
	destName := findUniqueName(filepath.Base(src), func(name string) bool {
		_, err1 := os.Lstat(filepath.Join(filesDir, name))
		_, err2 := os.Lstat(filepath.Join(infoDir, name+".trashinfo"))
		return errors.Is(err1, os.ErrNotExist) && errors.Is(err2, os.ErrNotExist)
	})

	dest := filepath.Join(filesDir, destName)
	infoPath := filepath.Join(infoDir, destName+".trashinfo")

	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		absPath, time.Now().Format("2006-01-02T15:04:05"))
	if err := os.WriteFile(infoPath, []byte(info), 0600); err != nil {
		return "", mediaerr.FromIO(infoPath, err)
	}

	if err := moveAcrossFS(src, dest); err != nil {
		os.Remove(infoPath)
		return "", mediaerr.FromIO(src, err)
	}
	return dest, nil
}
