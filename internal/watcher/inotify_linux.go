//go:build linux

package watcher

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// inotifyMask selects the notifications mapped onto Created, Modified and
// Deleted. IN_IGNORED and IN_Q_OVERFLOW are always delivered.
const inotifyMask = unix.IN_CREATE | unix.IN_MOVED_TO |
	unix.IN_MODIFY | unix.IN_ATTRIB |
	unix.IN_DELETE | unix.IN_MOVED_FROM |
	unix.IN_ONLYDIR

// inotifyBackend reads raw inotify events. A second eventfd descriptor is
// polled alongside the inotify descriptor so that context cancellation and
// close can interrupt a blocking read.
type inotifyBackend struct {
	fd     int
	wakeFd int
	buf    []byte
	closed atomic.Bool
	// readMu is held for the duration of read so close never frees the
	// descriptors under a poll in progress.
	readMu    sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newInotifyBackend() (backend, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to create eventfd: %w", err)
	}

	return &inotifyBackend{
		fd:     fd,
		wakeFd: wakeFd,
		// Room for a burst of events with maximum-length names.
		buf: make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1)),
	}, nil
}

func (b *inotifyBackend) name() string {
	return BackendInotify
}

// add adds an inotify watch. The kernel returns the existing descriptor for
// an inode that is already watched.
func (b *inotifyBackend) add(path string) (int, error) {
	if b.closed.Load() {
		return 0, errBackendClosed
	}
	wd, err := unix.InotifyAddWatch(b.fd, path, inotifyMask)
	if err != nil {
		return 0, fmt.Errorf("inotify_add_watch %s: %w", path, err)
	}
	return wd, nil
}

func (b *inotifyBackend) read(ctx context.Context) ([]rawEvent, error) {
	b.readMu.Lock()
	defer b.readMu.Unlock()

	stop := context.AfterFunc(ctx, b.wake)
	defer stop()

	for {
		if b.closed.Load() {
			return nil, errBackendClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := unix.Read(b.fd, b.buf)
		switch {
		case err == nil && n >= unix.SizeofInotifyEvent:
			return parseInotify(b.buf[:n]), nil
		case err == nil:
			continue
		case errors.Is(err, unix.EINTR):
			continue
		case !errors.Is(err, unix.EAGAIN):
			return nil, fmt.Errorf("failed to read inotify events: %w", err)
		}

		if err := b.poll(); err != nil {
			return nil, err
		}
	}
}

// poll waits until the inotify descriptor is readable or a wake-up arrives.
func (b *inotifyBackend) poll() error {
	fds := []unix.PollFd{
		{Fd: int32(b.fd), Events: unix.POLLIN},     //nolint:gosec // G115: descriptors fit in int32
		{Fd: int32(b.wakeFd), Events: unix.POLLIN}, //nolint:gosec // G115: descriptors fit in int32
	}
	for {
		_, err := unix.Poll(fds, -1)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll inotify: %w", err)
		}
		break
	}

	if fds[1].Revents&unix.POLLIN != 0 {
		var counter [8]byte
		_, _ = unix.Read(b.wakeFd, counter[:])
	}
	return nil
}

// wake interrupts a poll in progress.
func (b *inotifyBackend) wake() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(b.wakeFd, one[:])
}

func (b *inotifyBackend) close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.wake()

		b.readMu.Lock()
		defer b.readMu.Unlock()

		b.closeErr = errors.Join(unix.Close(b.fd), unix.Close(b.wakeFd))
	})
	return b.closeErr
}

// parseInotify decodes a buffer of raw inotify events.
func parseInotify(buf []byte) []rawEvent {
	var events []rawEvent
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		//nolint:gosec // G103: Legitimate use of unsafe for syscall interface with inotify
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameStart := offset + unix.SizeofInotifyEvent
		offset = nameStart + int(raw.Len)
		if offset > len(buf) {
			break
		}

		name := ""
		if raw.Len > 0 {
			nameBytes := buf[nameStart:offset]
			name = string(nameBytes[:clen(nameBytes)])
		}

		if ev, ok := translateInotify(int(raw.Wd), raw.Mask, name); ok {
			events = append(events, ev)
		}
	}
	return events
}

// translateInotify maps an inotify mask onto a raw event.
func translateInotify(wd int, mask uint32, name string) (rawEvent, bool) {
	ev := rawEvent{
		handle: wd,
		name:   name,
		isDir:  mask&unix.IN_ISDIR != 0,
	}

	switch {
	case mask&unix.IN_Q_OVERFLOW != 0:
		ev.kind = Overflow
	case mask&unix.IN_IGNORED != 0:
		ev.invalidated = true
	case mask&(unix.IN_CREATE|unix.IN_MOVED_TO) != 0:
		ev.kind = Created
	case mask&(unix.IN_MODIFY|unix.IN_ATTRIB) != 0:
		ev.kind = Modified
	case mask&(unix.IN_DELETE|unix.IN_MOVED_FROM) != 0:
		ev.kind = Deleted
	default:
		return rawEvent{}, false
	}
	return ev, true
}

// clen returns the length of a null-terminated byte slice.
func clen(n []byte) int {
	for i := 0; i < len(n); i++ {
		if n[i] == 0 {
			return i
		}
	}
	return len(n)
}
