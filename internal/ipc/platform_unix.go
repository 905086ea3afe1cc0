//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"time"
)

// Listen creates a Unix domain socket listener, replacing a stale socket.
func Listen(socketPath string) (net.Listener, error) {
	if err := CleanupSocket(socketPath); err != nil {
		return nil, fmt.Errorf("cleanup socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix: %w", err)
	}

	if err := os.Chmod(socketPath, 0666); err != nil {
		listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return listener, nil
}

// Dial connects to the IPC socket
func Dial(socketPath string) (net.Conn, error) {
	return net.DialTimeout("unix", socketPath, time.Second)
}

// Address returns the address string for logging
func Address(socketPath string) string {
	return socketPath
}
