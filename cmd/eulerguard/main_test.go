// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtalioy/EulerGuard/pkg/config"
	"github.com/wtalioy/EulerGuard/pkg/policy"
)

// newTestCommand binds fresh flags, resetting the globals to their defaults
func newTestCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "eulerguard"}
	bindFlags(cmd.Flags())
	return cmd
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(newTestCommand())
	require.NoError(t, err)
	assert.Equal(t, config.Default().Substrate.Mode, cfg.Substrate.Mode)
	assert.Equal(t, config.Default().API.Port, cfg.API.Port)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eulerguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: warn
substrate:
  mode: fanotify
api:
  port: 9000
`), 0644))

	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("config", path))
	require.NoError(t, cmd.Flags().Set("api-port", "9100"))
	require.NoError(t, cmd.Flags().Set("mount", "/srv"))
	require.NoError(t, cmd.Flags().Set("path-depth", "4"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel, "unset flags keep the file value")
	assert.Equal(t, "warn", cfg.API.LogLevel)
	assert.Equal(t, config.SubstrateFanotify, cfg.Substrate.Mode)
	assert.Equal(t, []string{"/srv"}, cfg.Substrate.Mounts)
	assert.Equal(t, 4, cfg.Mediator.PathDepth)
	assert.Equal(t, 9100, cfg.API.Port)
}

func TestLoadConfig_InvalidOverride(t *testing.T) {
	cmd := newTestCommand()
	require.NoError(t, cmd.Flags().Set("substrate", "ptrace"))

	_, err := loadConfig(cmd)
	assert.ErrorContains(t, err, "substrate.mode")
}

// Rules are applied first; API-made changes persisted in SQLite win.
func TestAgent_LoadPolicies(t *testing.T) {
	dir := t.TempDir()
	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`
rules:
  - name: shadow
    path: /etc/shadow
    action: monitor
  - name: telnet
    port: 23
    action: block
`), 0644))

	cfg := config.Default()
	cfg.RulesFile = rulesPath
	cfg.DatabasePath = filepath.Join(dir, "policies.db")

	enableAPI = false
	a, err := newAgent(cfg)
	require.NoError(t, err)
	defer a.close()

	action, err := a.manager.GetPath("/etc/shadow")
	require.NoError(t, err)
	assert.Equal(t, policy.ActionMonitor, action)

	require.NoError(t, a.manager.PutPath("/etc/shadow", policy.ActionBlock))

	// Reload keeps the persisted override
	require.NoError(t, a.loadPolicies())
	action, err = a.manager.GetPath("/etc/shadow")
	require.NoError(t, err)
	assert.Equal(t, policy.ActionBlock, action)

	action, err = a.manager.GetPort(23)
	require.NoError(t, err)
	assert.Equal(t, policy.ActionBlock, action)
}

func TestAgent_BadRulesFile(t *testing.T) {
	cfg := config.Default()
	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")

	enableAPI = false
	_, err := newAgent(cfg)
	assert.Error(t, err)
}

func TestAgent_WarnsUnenforcedPorts(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		ports    []uint16
		wantWarn bool
	}{
		{"fanotify with ports", config.SubstrateFanotify, []uint16{23}, true},
		{"fanotify without ports", config.SubstrateFanotify, nil, false},
		{"bpf with ports", config.SubstrateBPF, []uint16{23}, false},
		{"none with ports", config.SubstrateNone, []uint16{23}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Substrate.Mode = tt.mode
			a := &agent{cfg: cfg, manager: policy.NewManager(policy.NewPathStore(0), policy.NewPortStore(0))}
			for _, p := range tt.ports {
				require.NoError(t, a.manager.PutPort(p, policy.ActionBlock))
			}

			hook := test.NewGlobal()
			defer hook.Reset()
			require.NoError(t, a.loadPolicies())

			warned := false
			for _, e := range hook.AllEntries() {
				if e.Level == log.WarnLevel && strings.Contains(e.Message, "not enforced") {
					warned = true
				}
			}
			assert.Equal(t, tt.wantWarn, warned)
		})
	}
}
