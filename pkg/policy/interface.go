// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

// Manager interface defines the operations for policy management.
// This interface is useful for testing and dependency injection.
type Manager interface {
	PutPath(key string, a Action) error
	DeletePath(key string) error
	GetPath(key string) (Action, error)
	ListPaths() []PathEntry
	PutPort(port uint16, a Action) error
	DeletePort(port uint16) error
	GetPort(port uint16) (Action, error)
	ListPorts() []PortEntry
	PathCount() int
	PortCount() int
	ReplaceRules(rules []Rule) error
}

// Ensure PolicyManager implements Manager interface
var _ Manager = (*PolicyManager)(nil)
