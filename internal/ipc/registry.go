package ipc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tinyrange/zgpio/internal/session"
)

// ErrNoChannel is returned when releasing a channel that was never allocated.
var ErrNoChannel = errors.New("ipc: no such channel")

// Registry publishes sessions as numbered control channels in a directory.
type Registry struct {
	dir string

	mu      sync.Mutex
	servers map[int]*Server
}

// NewRegistry returns a Registry creating sockets in dir.
func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:     dir,
		servers: make(map[int]*Server),
	}
}

// Path returns the socket path of channel minor.
func (r *Registry) Path(minor int) string {
	return filepath.Join(r.dir, SocketName(minor))
}

// Allocate starts a server for s on the lowest free channel number.
func (r *Registry) Allocate(name string, s *session.Session) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return -1, fmt.Errorf("ipc: create socket dir: %w", err)
	}

	minor := 0
	for {
		if _, used := r.servers[minor]; !used {
			break
		}
		minor++
	}

	srv, err := NewServer(r.Path(minor), s)
	if err != nil {
		return -1, err
	}
	r.servers[minor] = srv

	go func() {
		if err := srv.Serve(); err != nil {
			slog.Error("ipc: serve failed", "channel", minor, "err", err)
		}
	}()

	slog.Info("ipc: channel created", "name", name, "channel", minor, "socket", srv.SocketPath())
	return minor, nil
}

// Release stops the server of channel minor and removes its socket.
func (r *Registry) Release(minor int) error {
	r.mu.Lock()
	srv, ok := r.servers[minor]
	delete(r.servers, minor)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrNoChannel, minor)
	}
	slog.Info("ipc: channel removed", "channel", minor)
	return srv.Close()
}

// Channels returns the allocated channel numbers in ascending order.
func (r *Registry) Channels() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, 0, len(r.servers))
	for minor := range r.servers {
		out = append(out, minor)
	}
	sort.Ints(out)
	return out
}

// Close releases every channel.
func (r *Registry) Close() error {
	var first error
	for _, minor := range r.Channels() {
		if err := r.Release(minor); err != nil && first == nil {
			first = err
		}
	}
	return first
}
