//go:build !linux

package rpc

import (
	"fmt"
	"net"
)

type peerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

func peerCred(conn net.Conn) (peerCredentials, error) {
	return peerCredentials{}, fmt.Errorf("peer credentials unsupported on this platform")
}
