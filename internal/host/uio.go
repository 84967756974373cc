//go:build linux

package host

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/tinyrange/zgpio/internal/chipset"
)

// UIO delivers the interrupt of one userspace I/O device. Reading the
// device blocks until an interrupt fires; writing 1 re-enables it.
type UIO struct {
	path string

	mu    sync.Mutex
	lines map[uint32]*uioLine
}

type uioLine struct {
	fd   int
	stop [2]int
	done chan struct{}
}

// NewUIO returns a binder for the UIO device at path, such as /dev/uio0.
func NewUIO(path string) *UIO {
	return &UIO{path: path, lines: make(map[uint32]*uioLine)}
}

// Bind opens the device, enables its interrupt and starts delivering
// interrupts to handler.
func (u *UIO) Bind(irq uint32, name string, handler chipset.IRQHandler) error {
	if handler == nil {
		return fmt.Errorf("host: nil handler for %s", u.path)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.lines[irq]; ok {
		return fmt.Errorf("%w: line %d", chipset.ErrLineBusy, irq)
	}

	fd, err := unix.Open(u.path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("host: open %s: %w", u.path, err)
	}
	line := &uioLine{fd: fd, done: make(chan struct{})}
	if err := unix.Pipe2(line.stop[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return fmt.Errorf("host: stop pipe: %w", err)
	}
	if err := enableIRQ(fd); err != nil {
		line.close()
		return fmt.Errorf("host: enable interrupt on %s: %w", u.path, err)
	}

	u.lines[irq] = line
	go line.run(u.path, name, handler)
	return nil
}

// Unbind stops delivery and closes the device.
func (u *UIO) Unbind(irq uint32) {
	u.mu.Lock()
	line, ok := u.lines[irq]
	delete(u.lines, irq)
	u.mu.Unlock()
	if !ok {
		return
	}

	unix.Write(line.stop[1], []byte{0})
	<-line.done
	line.close()
}

func (l *uioLine) close() {
	unix.Close(l.fd)
	unix.Close(l.stop[0])
	unix.Close(l.stop[1])
}

func (l *uioLine) run(path, name string, handler chipset.IRQHandler) {
	defer close(l.done)

	fds := []unix.PollFd{
		{Fd: int32(l.fd), Events: unix.POLLIN},
		{Fd: int32(l.stop[0]), Events: unix.POLLIN},
	}
	var buf [4]byte
	for {
		if _, err := unix.Poll(fds, -1); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			slog.Error("host: poll failed", "device", path, "err", err)
			return
		}
		if fds[1].Revents != 0 {
			return
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			if fds[0].Revents&(unix.POLLERR|unix.POLLHUP) != 0 {
				slog.Error("host: device closed", "device", path)
				return
			}
			continue
		}

		n, err := unix.Read(l.fd, buf[:])
		if err != nil || n != len(buf) {
			slog.Error("host: read interrupt count", "device", path, "n", n, "err", err)
			return
		}
		count := binary.NativeEndian.Uint32(buf[:])

		if !handler() {
			slog.Debug("host: unhandled interrupt", "device", path, "owner", name, "count", count)
		}
		if err := enableIRQ(l.fd); err != nil {
			slog.Error("host: re-enable interrupt", "device", path, "err", err)
			return
		}
	}
}

func enableIRQ(fd int) error {
	var buf [4]byte
	binary.NativeEndian.PutUint32(buf[:], 1)
	_, err := unix.Write(fd, buf[:])
	return err
}
