//go:build !windows

package fileutil

import "errors"

// moveToWindowsTrash is never reached off Windows
func moveToWindowsTrash(string) error {
	return errors.New("recycle bin is only available on windows")
}
