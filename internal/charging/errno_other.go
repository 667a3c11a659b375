//go:build !linux

package charging

import (
	"errors"
	"syscall"
)

func platformDetail(err error) string {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return ""
	}
	return errno.Error()
}
