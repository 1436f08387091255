// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rule is one entry of a rules file. Path may be any of the three key
// shapes: "/etc/shadow", "etc/shadow" or "shadow".
type Rule struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Path        string `yaml:"path,omitempty" json:"path,omitempty"`
	Port        uint16 `yaml:"port,omitempty" json:"port,omitempty"`
	Action      string `yaml:"action" json:"action"`
}

// RuleSet is the top-level document of a rules file.
type RuleSet struct {
	Rules []Rule `yaml:"rules"`
}

// CompiledRules is a rule set flattened into store entries.
type CompiledRules struct {
	Paths map[string]Action
	Ports map[uint16]Action
}

// LoadRules reads and parses a YAML rules file.
func LoadRules(filePath string) ([]Rule, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var ruleSet RuleSet
	if err := yaml.Unmarshal(data, &ruleSet); err != nil {
		return nil, fmt.Errorf("failed to parse rules YAML: %w", err)
	}

	return ruleSet.Rules, nil
}

// Compile validates rules and flattens them. When several rules target the
// same key the strongest action wins.
func Compile(rules []Rule) (*CompiledRules, error) {
	c := &CompiledRules{
		Paths: make(map[string]Action),
		Ports: make(map[uint16]Action),
	}

	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}

		action, err := ParseAction(r.Action)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		if !action.Valid() {
			return nil, fmt.Errorf("rule %s: %w: action is required", name, ErrInvalidAction)
		}

		switch {
		case r.Path != "" && r.Port != 0:
			return nil, fmt.Errorf("rule %s: path and port are mutually exclusive", name)
		case r.Path != "":
			if err := validateKey(r.Path); err != nil {
				return nil, fmt.Errorf("rule %s: %w", name, err)
			}
			c.Paths[r.Path] = Stronger(c.Paths[r.Path], action)
		case r.Port != 0:
			c.Ports[r.Port] = Stronger(c.Ports[r.Port], action)
		default:
			return nil, fmt.Errorf("rule %s: one of path or port is required", name)
		}
	}

	return c, nil
}
