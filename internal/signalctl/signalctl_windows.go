//go:build windows

package signalctl

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/windows"
)

// SingletonLock is an exclusive file lock that stops a second foreman
// process from scheduling against the same database, grounded directly on
// the teacher's internal/instance lock_windows.go (windows.CreateFile with
// zero share mode). Spec §9 calls the orchestrator loop "single-writer";
// this is the process-level enforcement of that invariant on Windows.
type SingletonLock struct {
	handle windows.Handle
}

// AcquireSingletonLock creates (or fails to open) an exclusive lock file at
// path. A non-nil error means another foreman process already holds it.
func AcquireSingletonLock(path string) (*SingletonLock, error) {
	pathPtr, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return nil, fmt.Errorf("failed to convert lock path: %w", err)
	}

	handle, err := windows.CreateFile(
		pathPtr,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0, // exclusive: no sharing
		nil,
		windows.CREATE_ALWAYS,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire singleton lock (another foreman instance may be running): %w", err)
	}

	pidBytes := []byte(fmt.Sprintf("%d", os.Getpid()))
	var written uint32
	_ = windows.WriteFile(handle, pidBytes, &written, nil)

	return &SingletonLock{handle: handle}, nil
}

// Release closes the lock handle, allowing another process to acquire it.
func (l *SingletonLock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(l.handle)
	l.handle = 0
	return err
}
