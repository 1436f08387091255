// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"errors"
	"fmt"

	"github.com/cilium/ebpf"

	"github.com/wtalioy/EulerGuard/pkg/policy"
)

var (
	// ErrLSMDisabled is returned by New when "bpf" is not an active LSM.
	ErrLSMDisabled = errors.New("BPF LSM not active")

	// ErrNoObject is returned by New when no object path is configured and
	// the binary carries no embedded object.
	ErrNoObject = errors.New("no BPF object: set substrate.bpf_object or build with -tags eulerguard_bpf after go generate")
)

// pathKey is the monitored_paths key: the path NUL-padded to 256 bytes.
func pathKey(key string) ([policy.MaxKeyLen]byte, error) {
	var k [policy.MaxKeyLen]byte
	if len(key) == 0 {
		return k, policy.ErrEmptyKey
	}
	if len(key) > policy.MaxKeyLen {
		return k, fmt.Errorf("%w: %d bytes", policy.ErrKeyTooLong, len(key))
	}
	copy(k[:], key)
	return k, nil
}

// PutPath writes a path policy entry into monitored_paths
func (dp *DataPlane) PutPath(key string, a policy.Action) error {
	k, err := pathKey(key)
	if err != nil {
		return err
	}
	v := uint8(a)
	if err := dp.objs.MonitoredPaths.Put(&k, &v); err != nil {
		return fmt.Errorf("updating monitored_paths: %w", err)
	}
	return nil
}

// DeletePath removes a path policy entry from monitored_paths
func (dp *DataPlane) DeletePath(key string) error {
	k, err := pathKey(key)
	if err != nil {
		return err
	}
	if err := dp.objs.MonitoredPaths.Delete(&k); err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
		return fmt.Errorf("deleting from monitored_paths: %w", err)
	}
	return nil
}

// PutPort writes a port policy entry into blocked_ports
func (dp *DataPlane) PutPort(port uint16, a policy.Action) error {
	v := uint8(a)
	if err := dp.objs.BlockedPorts.Put(&port, &v); err != nil {
		return fmt.Errorf("updating blocked_ports: %w", err)
	}
	return nil
}

// DeletePort removes a port policy entry from blocked_ports
func (dp *DataPlane) DeletePort(port uint16) error {
	if err := dp.objs.BlockedPorts.Delete(&port); err != nil && !errors.Is(err, ebpf.ErrKeyNotExist) {
		return fmt.Errorf("deleting from blocked_ports: %w", err)
	}
	return nil
}
