// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

// Tier identifies which key shape produced a path match.
type Tier uint8

const (
	TierNone Tier = iota
	TierFullPath
	TierParentFile
	TierFilename
)

func (t Tier) String() string {
	switch t {
	case TierFullPath:
		return "full_path"
	case TierParentFile:
		return "parent_file"
	case TierFilename:
		return "filename"
	default:
		return "none"
	}
}

// Matcher runs the read-only lookups the hooks need.
type Matcher struct {
	paths *PathStore
	ports *PortStore
}

// NewMatcher wires a matcher to the two stores.
func NewMatcher(paths *PathStore, ports *PortStore) *Matcher {
	return &Matcher{paths: paths, ports: ports}
}

// Match tries the full path, then "parent/filename", then the bare filename.
// The first hit wins; empty keys are skipped.
func (m *Matcher) Match(fullPath, parentFile, filename []byte) Action {
	a, _ := m.MatchTier(fullPath, parentFile, filename)
	return a
}

// MatchTier is Match plus the tier that hit.
func (m *Matcher) MatchTier(fullPath, parentFile, filename []byte) (Action, Tier) {
	if m == nil || m.paths == nil {
		return ActionNone, TierNone
	}
	if a, ok := m.paths.Lookup(fullPath); ok {
		return a, TierFullPath
	}
	if a, ok := m.paths.Lookup(parentFile); ok {
		return a, TierParentFile
	}
	if a, ok := m.paths.Lookup(filename); ok {
		return a, TierFilename
	}
	return ActionNone, TierNone
}

// MatchPort is a single exact lookup on the destination port.
func (m *Matcher) MatchPort(port uint16) Action {
	if m == nil || m.ports == nil {
		return ActionNone
	}
	a, _ := m.ports.Lookup(port)
	return a
}
