// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	"github.com/cilium/ebpf/ringbuf"
	"github.com/cilium/ebpf/rlimit"
	log "github.com/sirupsen/logrus"

	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/policy"
)

//go:generate sh -c "test -f ../../bpf/vmlinux.h || bpftool btf dump file /sys/kernel/btf/vmlinux format c > ../../bpf/vmlinux.h"
//go:generate go run github.com/cilium/ebpf/cmd/bpf2go -cc clang -cflags "-O2 -g -Wall" -target bpfel -tags eulerguard_bpf eulerguard ../../bpf/eulerguard.bpf.c -- -I../../bpf

const (
	// DefaultRingBufferSize matches the events map in the object file.
	DefaultRingBufferSize = 256 * 1024

	lsmListPath  = "/sys/kernel/security/lsm"
	readInterval = 250 * time.Millisecond
)

// embeddedSpec loads the object built from bpf/eulerguard.bpf.c into the
// binary. It is nil unless the package is built with -tags eulerguard_bpf
// after go generate.
var embeddedSpec func() (*ebpf.CollectionSpec, error)

// Config selects the object file to load. An empty ObjectPath uses the
// embedded object.
type Config struct {
	ObjectPath     string
	RingBufferSize int
}

// Objects holds the programs and maps of the LSM object file. PidToPpid is
// optional; older objects do not define it.
type Objects struct {
	LsmBprmCheck     *ebpf.Program
	LsmFileOpen      *ebpf.Program
	LsmSocketConnect *ebpf.Program

	Events         *ebpf.Map
	MonitoredPaths *ebpf.Map
	BlockedPorts   *ebpf.Map
	PidToPpid      *ebpf.Map
}

// DataPlane manages the BPF LSM programs and their maps
type DataPlane struct {
	coll     *ebpf.Collection
	objs     Objects
	links    []link.Link
	rbReader *ringbuf.Reader
}

// Statistics holds kernel map occupancy
type Statistics struct {
	MonitoredPaths int `json:"monitored_paths"`
	BlockedPorts   int `json:"blocked_ports"`
	RingBufferSize int `json:"ring_buffer_size"`
}

// New loads the object file, attaches the three LSM programs and opens the
// ring buffer reader
func New(cfg Config) (*DataPlane, error) {
	if err := checkLSM(lsmListPath); err != nil {
		return nil, err
	}

	if err := rlimit.RemoveMemlock(); err != nil {
		return nil, fmt.Errorf("remove memlock rlimit: %w", err)
	}

	spec, source, err := loadSpec(cfg.ObjectPath)
	if err != nil {
		return nil, err
	}

	size := cfg.RingBufferSize
	if size == 0 {
		size = DefaultRingBufferSize
	}
	if ms, ok := spec.Maps["events"]; ok {
		ms.MaxEntries = uint32(size)
	}

	coll, err := ebpf.NewCollection(spec)
	if err != nil {
		return nil, fmt.Errorf("loading eBPF objects: %w", err)
	}

	dp := &DataPlane{coll: coll}
	if err := dp.assign(); err != nil {
		coll.Close()
		return nil, err
	}

	log.Debugf("eBPF objects loaded successfully from %s", source)

	hooks := []struct {
		name string
		prog *ebpf.Program
	}{
		{"bprm_check_security", dp.objs.LsmBprmCheck},
		{"file_open", dp.objs.LsmFileOpen},
		{"socket_connect", dp.objs.LsmSocketConnect},
	}
	for _, h := range hooks {
		l, err := link.AttachLSM(link.LSMOptions{Program: h.prog})
		if err != nil {
			dp.Close()
			return nil, fmt.Errorf("attach LSM hook %s: %w", h.name, err)
		}
		dp.links = append(dp.links, l)
		log.Infof("✓ LSM program attached to %s", h.name)
	}

	dp.rbReader, err = ringbuf.NewReader(dp.objs.Events)
	if err != nil {
		dp.Close()
		return nil, fmt.Errorf("creating ring buffer reader: %w", err)
	}

	return dp, nil
}

// loadSpec reads the collection spec from objectPath, or from the embedded
// object when objectPath is empty.
func loadSpec(objectPath string) (*ebpf.CollectionSpec, string, error) {
	if objectPath == "" {
		if embeddedSpec == nil {
			return nil, "", ErrNoObject
		}
		spec, err := embeddedSpec()
		if err != nil {
			return nil, "", fmt.Errorf("load embedded collection spec: %w", err)
		}
		return spec, "embedded object", nil
	}

	absPath, err := filepath.Abs(objectPath)
	if err != nil {
		return nil, "", fmt.Errorf("resolve bpf path: %w", err)
	}
	spec, err := ebpf.LoadCollectionSpec(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("load collection spec: %w", err)
	}
	return spec, absPath, nil
}

func (dp *DataPlane) assign() error {
	progs := map[string]**ebpf.Program{
		"lsm_bprm_check":     &dp.objs.LsmBprmCheck,
		"lsm_file_open":      &dp.objs.LsmFileOpen,
		"lsm_socket_connect": &dp.objs.LsmSocketConnect,
	}
	for name, dst := range progs {
		p, ok := dp.coll.Programs[name]
		if !ok {
			return fmt.Errorf("object file has no program %q", name)
		}
		*dst = p
	}

	maps := map[string]**ebpf.Map{
		"events":          &dp.objs.Events,
		"monitored_paths": &dp.objs.MonitoredPaths,
		"blocked_ports":   &dp.objs.BlockedPorts,
	}
	for name, dst := range maps {
		m, ok := dp.coll.Maps[name]
		if !ok {
			return fmt.Errorf("object file has no map %q", name)
		}
		*dst = m
	}

	dp.objs.PidToPpid = dp.coll.Maps["pid_to_ppid"]
	return nil
}

// Close cleans up the data plane resources
func (dp *DataPlane) Close() error {
	var errs []error

	if dp.rbReader != nil {
		if err := dp.rbReader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ring buffer reader: %w", err))
		}
	}

	for _, l := range dp.links {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("detaching LSM program: %w", err))
		}
	}
	dp.links = nil

	if dp.coll != nil {
		dp.coll.Close()
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	log.Info("Data plane closed successfully")
	return nil
}

// Read blocks for the next kernel event record. It has the same contract as
// events.Channel.Read, so the audit consumer can drain either.
func (dp *DataPlane) Read(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dp.rbReader.SetDeadline(time.Now().Add(readInterval))
		record, err := dp.rbReader.Read()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, ringbuf.ErrClosed) {
				return nil, events.ErrClosed
			}
			return nil, fmt.Errorf("reading from ring buffer: %w", err)
		}
		return record.RawSample, nil
	}
}

// Parent returns the parent recorded by the exec program, when the object
// file maintains a pid_to_ppid map
func (dp *DataPlane) Parent(pid uint32) (uint32, bool) {
	if dp.objs.PidToPpid == nil {
		return 0, false
	}
	var ppid uint32
	if err := dp.objs.PidToPpid.Lookup(&pid, &ppid); err != nil {
		return 0, false
	}
	return ppid, true
}

// GetStatistics retrieves current kernel map occupancy
func (dp *DataPlane) GetStatistics() Statistics {
	stats := Statistics{}

	count := func(m *ebpf.Map) int {
		if m == nil {
			return 0
		}
		n := 0
		key := make([]byte, m.KeySize())
		value := make([]byte, m.ValueSize())
		iter := m.Iterate()
		for iter.Next(key, value) {
			n++
		}
		if err := iter.Err(); err != nil {
			log.Debugf("Failed to iterate map: %v", err)
		}
		return n
	}

	stats.MonitoredPaths = count(dp.objs.MonitoredPaths)
	stats.BlockedPorts = count(dp.objs.BlockedPorts)
	if dp.objs.Events != nil {
		stats.RingBufferSize = int(dp.objs.Events.MaxEntries())
	}

	return stats
}

// checkLSM verifies that "bpf" is in the active LSM list
func checkLSM(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w (is securityfs mounted?)", path, err)
	}
	lsmList := strings.TrimSpace(string(data))
	for _, name := range strings.Split(lsmList, ",") {
		if name == "bpf" {
			return nil
		}
	}
	return fmt.Errorf("%w: active LSMs %q (add lsm=...,bpf to the kernel command line)", ErrLSMDisabled, lsmList)
}

// Ensure DataPlane mirrors the policy stores
var _ policy.Mirror = (*DataPlane)(nil)
