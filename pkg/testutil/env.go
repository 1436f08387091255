// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package testutil

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// IsRoot checks if the current process has root privileges.
// E2E tests require root to mark mounts with fanotify and load eBPF programs.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// HasCapability checks if the process has a specific capability.
func HasCapability(cap int) bool {
	var header unix.CapUserHeader
	var data [2]unix.CapUserData

	header.Version = unix.LINUX_CAPABILITY_VERSION_3
	header.Pid = 0 // Current process

	if err := unix.Capget(&header, &data[0]); err != nil {
		return false
	}

	capMask := uint32(1 << uint(cap%32))
	return (data[cap/32].Effective & capMask) != 0
}

// BPFLSMEnabled reports whether "bpf" is in the active LSM list.
func BPFLSMEnabled() bool {
	data, err := os.ReadFile("/sys/kernel/security/lsm")
	if err != nil {
		return false
	}
	for _, name := range strings.Split(strings.TrimSpace(string(data)), ",") {
		if name == "bpf" {
			return true
		}
	}
	return false
}

// CheckFanotifyRequirements returns a reason the fanotify substrate cannot
// run here, or an empty string.
func CheckFanotifyRequirements() string {
	if !IsRoot() && !HasCapability(unix.CAP_SYS_ADMIN) {
		return "fanotify permission events require root or CAP_SYS_ADMIN"
	}
	return ""
}

// CheckLSMRequirements returns a reason the BPF LSM substrate cannot run
// here, or an empty string.
func CheckLSMRequirements(objectPath string) string {
	if !IsRoot() {
		if !HasCapability(unix.CAP_BPF) && !HasCapability(unix.CAP_SYS_ADMIN) {
			return "BPF LSM tests require CAP_BPF or CAP_SYS_ADMIN capability"
		}
		if !HasCapability(unix.CAP_MAC_ADMIN) && !HasCapability(unix.CAP_SYS_ADMIN) {
			return "BPF LSM tests require CAP_MAC_ADMIN or CAP_SYS_ADMIN capability"
		}
	}
	if !BPFLSMEnabled() {
		return "BPF LSM is not enabled (add lsm=...,bpf to the kernel command line)"
	}
	if objectPath == "" {
		return "no BPF object configured (set EULERGUARD_BPF_OBJECT)"
	}
	if _, err := os.Stat(objectPath); err != nil {
		return "BPF object not found: " + objectPath
	}
	return ""
}
