//go:build linux

package charging

import (
	"errors"

	"golang.org/x/sys/unix"
)

// platformDetail renders the errno behind err as "EACCES: permission denied".
func platformDetail(err error) string {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return ""
	}
	name := unix.ErrnoName(errno)
	if name == "" {
		return errno.Error()
	}
	return name + ": " + errno.Error()
}
