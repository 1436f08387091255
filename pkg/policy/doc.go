// Package policy holds the path and port policy stores consulted by the
// mediation hooks, the tiered matcher, and the population interface used by
// configuration tooling.
//
// # Policy Model
//
// Path policy maps a key of at most 256 bytes to an action. Three key
// shapes may coexist in the same store:
//   - full reconstructed path: "/etc/shadow"
//   - two-level parent/filename: "etc/shadow"
//   - bare filename: "shadow"
//
// Port policy maps a destination port to an action. The address family and
// destination address are not part of the key.
//
// Actions:
//   - monitor (1): allow and emit an audit record
//   - block (2): deny and emit an audit record
//
// # Matching
//
// Matcher.Match tries the full path, then parent/filename, then the bare
// filename, and returns the first hit. There is no glob or regex support.
//
// # Example Usage
//
//	paths := policy.NewPathStore(0)
//	ports := policy.NewPortStore(0)
//	pm := policy.NewManager(paths, ports)
//
//	if err := pm.PutPath("/etc/shadow", policy.ActionBlock); err != nil {
//	    log.Fatal(err)
//	}
//	if err := pm.PutPort(443, policy.ActionMonitor); err != nil {
//	    log.Fatal(err)
//	}
//
//	m := policy.NewMatcher(paths, ports)
//	action := m.Match([]byte("/etc/shadow"), []byte("etc/shadow"), []byte("shadow"))
//
// # Thread Safety
//
// PathStore locks per shard and PortStore is lock-free, so lookups from
// many goroutines never contend on a single lock. PolicyManager serializes
// writers so mirrors and storage see mutations in the same order as the
// stores.
package policy
