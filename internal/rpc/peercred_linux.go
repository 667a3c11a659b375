//go:build linux

package rpc

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

type peerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

// peerCred reads SO_PEERCRED from a unix socket connection.
func peerCred(conn net.Conn) (peerCredentials, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return peerCredentials{}, fmt.Errorf("not a unix socket")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return peerCredentials{}, err
	}
	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return peerCredentials{}, err
	}
	if credErr != nil {
		return peerCredentials{}, credErr
	}
	return peerCredentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}
