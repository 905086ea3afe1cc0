//go:build windows

package ipc

import (
	"fmt"
	"net"
	"time"
)

// Listen creates a TCP listener on localhost. socketPath is ignored.
func Listen(socketPath string) (net.Listener, error) {
	listener, err := net.Listen("tcp", DefaultTCPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", DefaultTCPAddr, err)
	}
	return listener, nil
}

// Dial connects to the IPC server via TCP
func Dial(socketPath string) (net.Conn, error) {
	return net.DialTimeout("tcp", DefaultTCPAddr, time.Second)
}

// Address returns the address string for logging
func Address(socketPath string) string {
	return DefaultTCPAddr + " (TCP localhost)"
}
