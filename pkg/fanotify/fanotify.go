// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package fanotify

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/wtalioy/EulerGuard/pkg/mediator"
	"github.com/wtalioy/EulerGuard/pkg/procfs"
)

const (
	initFlags  = unix.FAN_CLASS_CONTENT | unix.FAN_CLOEXEC | unix.FAN_NONBLOCK | unix.FAN_UNLIMITED_QUEUE
	eventFlags = unix.O_RDONLY | unix.O_LARGEFILE | unix.O_CLOEXEC
	markFlags  = unix.FAN_MARK_ADD | unix.FAN_MARK_MOUNT
	permEvents = unix.FAN_OPEN_PERM | unix.FAN_OPEN_EXEC_PERM

	metadataLen     = 24
	eventBufferSize = 64 * 1024
	pollTimeoutMs   = 250
	procSelfFd      = "/proc/self/fd/"
)

// Statistics holds fanotify substrate counters
type Statistics struct {
	Events   uint64 `json:"events"`
	Allowed  uint64 `json:"allowed"`
	Denied   uint64 `json:"denied"`
	Skipped  uint64 `json:"skipped"`
	Failures uint64 `json:"failures"`
}

// Monitor answers fanotify permission events by running the exec and
// file-open hooks.
type Monitor struct {
	fd     int
	med    *mediator.Mediator
	procs  procfs.Reader
	self   int32
	mounts []string
	execs  *execTracker

	events   atomic.Uint64
	allowed  atomic.Uint64
	denied   atomic.Uint64
	skipped  atomic.Uint64
	failures atomic.Uint64
}

// New initializes a fanotify group and marks every mount in mounts.
// Requires CAP_SYS_ADMIN.
func New(med *mediator.Mediator, procs procfs.Reader, mounts []string) (*Monitor, error) {
	if len(mounts) == 0 {
		mounts = []string{"/"}
	}

	fd, err := unix.FanotifyInit(initFlags, eventFlags)
	if err != nil {
		return nil, fmt.Errorf("fanotify init (requires CAP_SYS_ADMIN): %w", err)
	}

	mon := &Monitor{
		fd:     fd,
		med:    med,
		procs:  procs,
		self:   int32(os.Getpid()),
		mounts: mounts,
		execs:  newExecTracker(),
	}

	for _, mount := range mounts {
		if err := unix.FanotifyMark(fd, markFlags, permEvents, unix.AT_FDCWD, mount); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("fanotify mark %s: %w", mount, err)
		}
		log.Debugf("fanotify: marked mount %s", mount)
	}

	log.Infof("✓ fanotify permission events enabled on %d mount(s)", len(mounts))
	return mon, nil
}

// Run reads and answers events until ctx is cancelled.
func (mon *Monitor) Run(ctx context.Context) error {
	log.Info("Starting fanotify event loop")

	buf := make([]byte, eventBufferSize)
	pfd := []unix.PollFd{{Fd: int32(mon.fd), Events: unix.POLLIN}}

	for {
		select {
		case <-ctx.Done():
			log.Info("fanotify event loop stopped")
			return nil
		default:
		}

		n, err := unix.Poll(pfd, pollTimeoutMs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("fanotify poll: %w", err)
		}
		if n <= 0 || pfd[0].Revents&unix.POLLIN == 0 {
			continue
		}

		if err := mon.drain(buf); err != nil {
			return err
		}
	}
}

// drain reads until the queue is empty.
func (mon *Monitor) drain(buf []byte) error {
	for {
		n, err := unix.Read(mon.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				return nil
			}
			return fmt.Errorf("fanotify read: %w", err)
		}
		if n <= 0 {
			return nil
		}
		mon.handleBuffer(buf[:n])
	}
}

func (mon *Monitor) handleBuffer(data []byte) {
	for len(data) >= metadataLen {
		meta, ok := parseMetadata(data)
		if !ok {
			log.Warnf("fanotify: malformed event metadata (%d bytes left)", len(data))
			mon.failures.Add(1)
			return
		}

		if meta.Fd >= 0 {
			allow := mon.handleEvent(meta)
			if err := mon.respond(meta.Fd, allow); err != nil {
				log.WithFields(log.Fields{"err": err, "pid": meta.Pid}).Error("fanotify: response failed")
				mon.failures.Add(1)
			}
			unix.Close(int(meta.Fd))
		}

		data = data[meta.EventLen:]
	}
}

// handleEvent builds the hook inputs from an event fd.
func (mon *Monitor) handleEvent(meta metadata) bool {
	mon.events.Add(1)
	if meta.Pid == mon.self {
		mon.skipped.Add(1)
		mon.allowed.Add(1)
		return true
	}

	path, err := os.Readlink(procSelfFd + strconv.Itoa(int(meta.Fd)))
	if err != nil {
		mon.failures.Add(1)
		mon.allowed.Add(1)
		return true
	}

	file := newFile(path)
	if flags, err := unix.FcntlInt(uintptr(meta.Fd), unix.F_GETFL, 0); err == nil {
		file.flags = uint32(flags)
	}
	var st unix.Stat_t
	if err := unix.Fstat(int(meta.Fd), &st); err == nil {
		file.ino, file.dev, file.hasInode = st.Ino, st.Dev, true
	}

	return mon.Decide(uint32(meta.Pid), meta.Mask, file)
}

// Decide runs the hooks selected by mask and reports whether the access
// is allowed. Either hook denying denies the event. Only the first exec-open
// of an execve runs the exec hook; later ones (interpreters) and the plain
// open half of each are mediated as file opens.
func (mon *Monitor) Decide(pid uint32, mask uint64, file *File) bool {
	var task mediator.Task
	if t, err := mon.procs.Task(pid); err == nil {
		task = t
	} else {
		task = &procfs.Task{Pid: pid}
	}

	allow := true
	open := mask&unix.FAN_OPEN_PERM != 0
	if mask&unix.FAN_OPEN_EXEC_PERM != 0 {
		if mon.execs.inProgress(pid) {
			mon.execs.follow(pid, file)
			open = true
		} else if err := mon.med.Exec(task, file.path); err != nil {
			allow = false
		} else {
			mon.execs.begin(pid, file)
		}
	} else if open {
		mon.execs.opened(pid, file)
	}
	if allow && open {
		if err := mon.med.FileOpen(task, file); err != nil {
			allow = false
		}
	}

	if allow {
		mon.allowed.Add(1)
	} else {
		mon.denied.Add(1)
	}
	return allow
}

func (mon *Monitor) respond(fd int32, allow bool) error {
	resp := uint32(unix.FAN_DENY)
	if allow {
		resp = unix.FAN_ALLOW
	}

	var buf [8]byte
	binary.NativeEndian.PutUint32(buf[0:4], uint32(fd))
	binary.NativeEndian.PutUint32(buf[4:8], resp)
	if _, err := unix.Write(mon.fd, buf[:]); err != nil {
		return fmt.Errorf("writing fanotify response: %w", err)
	}
	return nil
}

// GetStatistics retrieves the substrate counters
func (mon *Monitor) GetStatistics() Statistics {
	return Statistics{
		Events:   mon.events.Load(),
		Allowed:  mon.allowed.Load(),
		Denied:   mon.denied.Load(),
		Skipped:  mon.skipped.Load(),
		Failures: mon.failures.Load(),
	}
}

// Close releases the fanotify group. Pending permission events are
// allowed by the kernel.
func (mon *Monitor) Close() error {
	if err := unix.Close(mon.fd); err != nil {
		return fmt.Errorf("closing fanotify fd: %w", err)
	}
	log.Info("fanotify substrate closed")
	return nil
}
