package ipc

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultSocketDir returns the directory control channel sockets are
// created in when none is configured.
func DefaultSocketDir() string {
	if dir := os.Getenv("ZGPIO_SOCKET_DIR"); dir != "" {
		return dir
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "zgpio")
	}
	return filepath.Join(os.TempDir(), "zgpio")
}

// SocketName returns the file name of control channel minor.
func SocketName(minor int) string {
	return fmt.Sprintf("zgpio%d.sock", minor)
}
