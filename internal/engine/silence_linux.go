//go:build linux

package engine

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// suppressStdStreams points fd 1 and fd 2 at /dev/null and returns a func
// that puts the original descriptors back. Native code writing straight to
// the descriptors is silenced too, not only Go's os.Stdout/os.Stderr.
func suppressStdStreams() (restore func(), err error) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}

	savedOut, err := unix.Dup(unix.Stdout)
	if err != nil {
		devNull.Close()
		return nil, fmt.Errorf("dup stdout: %w", err)
	}
	savedErr, err := unix.Dup(unix.Stderr)
	if err != nil {
		unix.Close(savedOut)
		devNull.Close()
		return nil, fmt.Errorf("dup stderr: %w", err)
	}

	restore = func() {
		_ = unix.Dup3(savedOut, unix.Stdout, 0)
		_ = unix.Dup3(savedErr, unix.Stderr, 0)
		unix.Close(savedOut)
		unix.Close(savedErr)
		devNull.Close()
	}

	if err := unix.Dup3(int(devNull.Fd()), unix.Stdout, 0); err != nil {
		restore()
		return nil, fmt.Errorf("redirect stdout: %w", err)
	}
	if err := unix.Dup3(int(devNull.Fd()), unix.Stderr, 0); err != nil {
		restore()
		return nil, fmt.Errorf("redirect stderr: %w", err)
	}
	return restore, nil
}
