//go:build windows

package localcas

import (
	"fmt"
	"os"
	"syscall"
)

// lockRoot on Windows opens the sentinel file with share mode 0, so a
// second handle to the same file, from this or another process, fails
// until the first is closed, without needing flock.
func lockRoot(root string) (*os.File, error) {
	path := root + "/.lock"

	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("localcas: lock path %s: %w", path, err)
	}
	h, err := syscall.CreateFile(p, syscall.GENERIC_READ|syscall.GENERIC_WRITE, 0, nil, syscall.OPEN_ALWAYS, syscall.FILE_ATTRIBUTE_NORMAL, 0)
	if err != nil {
		return nil, fmt.Errorf("localcas: root %s is locked by another process: %w", root, err)
	}
	return os.NewFile(uintptr(h), path), nil
}

func unlockRoot(f *os.File) error {
	if f == nil {
		return nil
	}
	return f.Close()
}
