// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"fmt"
	"strings"
)

// Action is the one-byte verdict code shared with the kernel maps.
type Action uint8

const (
	ActionNone    Action = 0
	ActionMonitor Action = 1
	ActionBlock   Action = 2
)

// ParseAction accepts "monitor" or "block" (case-insensitive), plus the
// aliases "alert"/"log" for monitor and "deny" for block.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monitor", "alert", "log":
		return ActionMonitor, nil
	case "block", "deny":
		return ActionBlock, nil
	case "none", "":
		return ActionNone, nil
	default:
		return ActionNone, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionMonitor:
		return "monitor"
	case ActionBlock:
		return "block"
	default:
		return fmt.Sprintf("%d", uint8(a))
	}
}

// Valid reports whether a may be stored. None is the absence of an entry,
// not a storable value.
func (a Action) Valid() bool {
	return a == ActionMonitor || a == ActionBlock
}

// Stronger returns the more restrictive of a and b.
func Stronger(a, b Action) Action {
	if b > a && b.Valid() {
		return b
	}
	return a
}
