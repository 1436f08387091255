// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

//go:build eulerguard_bpf

package dataplane

func init() {
	embeddedSpec = loadEulerguard
}
