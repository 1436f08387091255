// Package dataplane loads and attaches the BPF LSM programs that enforce
// policy in the kernel.
//
// The object file provides three LSM programs (lsm_bprm_check,
// lsm_file_open, lsm_socket_connect) and their maps:
//   - events: ring buffer carrying exec, file-open and connect records
//   - monitored_paths: 256-byte NUL-padded path key to action
//   - blocked_ports: u16 destination port to action
//   - pid_to_ppid: optional exec lineage
//
// DataPlane implements policy.Mirror, so attaching it to a
// policy.PolicyManager keeps the kernel maps in step with the userspace
// stores. Read has the same contract as events.Channel.Read and feeds the
// audit consumer.
//
// # Example Usage
//
//	dp, err := dataplane.New(dataplane.Config{ObjectPath: "/usr/lib/eulerguard/main.bpf.o"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dp.Close()
//
//	if err := manager.AddMirror(dp); err != nil {
//	    log.Warn(err)
//	}
//
// # Requirements
//
//   - Linux kernel 5.7+ built with CONFIG_BPF_LSM
//   - "bpf" in the active LSM list (/sys/kernel/security/lsm)
//   - CAP_BPF and CAP_MAC_ADMIN, or root
package dataplane
