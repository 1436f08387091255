// Package lineage records the parent of every process that passes the exec
// hook, so that external tooling can rebuild process trees after the fact.
// The hooks only write; nothing in the mediation path reads the cache back.
package lineage
