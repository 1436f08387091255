// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/wtalioy/EulerGuard/pkg/api"
	"github.com/wtalioy/EulerGuard/pkg/audit"
	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/lineage"
	"github.com/wtalioy/EulerGuard/pkg/pathres"
	"github.com/wtalioy/EulerGuard/pkg/policy"
)

// Substrate modes
const (
	SubstrateNone     = "none"
	SubstrateFanotify = "fanotify"
	SubstrateBPF      = "bpf"
)

// Config is the agent configuration file
type Config struct {
	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// RulesFile is the YAML rules file loaded at startup and on SIGHUP
	RulesFile string `yaml:"rules_file"`

	// DatabasePath enables SQLite persistence of API-made policy changes
	DatabasePath string `yaml:"database_path"`

	Mediator  MediatorConfig  `yaml:"mediator"`
	Substrate SubstrateConfig `yaml:"substrate"`
	API       api.Config      `yaml:"api"`
}

// MediatorConfig holds the userspace mediator limits
type MediatorConfig struct {
	PathDepth       int `yaml:"path_depth"`
	ChannelSize     int `yaml:"channel_size"`
	LineageCapacity int `yaml:"lineage_capacity"`
	LineageShards   int `yaml:"lineage_shards"`
	PathCapacity    int `yaml:"path_capacity"`
	PortCapacity    int `yaml:"port_capacity"`
	HistorySize     int `yaml:"history_size"`
}

// SubstrateConfig selects what feeds requests to the mediator
type SubstrateConfig struct {
	Mode string `yaml:"mode"`

	// Mounts marked for fanotify permission events
	Mounts []string `yaml:"mounts"`

	// BPFObject is the compiled LSM object file; empty uses the object
	// embedded at build time
	BPFObject      string `yaml:"bpf_object"`
	RingBufferSize int    `yaml:"ring_buffer_size"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Mediator: MediatorConfig{
			PathDepth:       pathres.DefaultDepth,
			ChannelSize:     events.DefaultChannelSize,
			LineageCapacity: lineage.DefaultCapacity,
			LineageShards:   lineage.DefaultShards,
			PathCapacity:    policy.DefaultCapacity,
			PortCapacity:    policy.DefaultCapacity,
			HistorySize:     audit.DefaultHistorySize,
		},
		Substrate: SubstrateConfig{
			Mode:           SubstrateNone,
			Mounts:         []string{"/"},
			RingBufferSize: events.DefaultChannelSize,
		},
		API: *api.DefaultConfig(),
	}
}

// Load reads a YAML configuration file on top of the defaults. Unknown
// keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("Loaded configuration from %s", path)
	return cfg, nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		add("log_level: %w", err)
	}

	m := c.Mediator
	if m.PathDepth < 1 || m.PathDepth > pathres.MaxDepth {
		add("mediator.path_depth: %d not in [1, %d]", m.PathDepth, pathres.MaxDepth)
	}
	if !powerOfTwo(m.ChannelSize) || m.ChannelSize < events.MinChannelSize {
		add("mediator.channel_size: %d is not a power of two >= %d", m.ChannelSize, events.MinChannelSize)
	}
	if m.LineageCapacity <= 0 {
		add("mediator.lineage_capacity: must be positive")
	}
	if m.LineageShards <= 0 {
		add("mediator.lineage_shards: must be positive")
	}
	if m.PathCapacity <= 0 || m.PortCapacity <= 0 {
		add("mediator: store capacities must be positive")
	}
	if m.HistorySize <= 0 {
		add("mediator.history_size: must be positive")
	}

	s := c.Substrate
	switch s.Mode {
	case SubstrateNone:
	case SubstrateFanotify:
		if len(s.Mounts) == 0 {
			add("substrate.mounts: fanotify needs at least one mount")
		}
		for _, mnt := range s.Mounts {
			if !strings.HasPrefix(mnt, "/") {
				add("substrate.mounts: %q is not absolute", mnt)
			}
		}
	case SubstrateBPF:
		if !powerOfTwo(s.RingBufferSize) {
			add("substrate.ring_buffer_size: %d is not a power of two", s.RingBufferSize)
		}
	default:
		add("substrate.mode: %q is not one of none, fanotify, bpf", s.Mode)
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		add("api.port: %d out of range", c.API.Port)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func powerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
