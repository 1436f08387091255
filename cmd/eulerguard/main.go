// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/wtalioy/EulerGuard/pkg/config"
)

var (
	configPath    string
	logLevel      string
	rulesFile     string
	databasePath  string
	substrate     string
	bpfObject     string
	mounts        []string
	pathDepth     int
	statsInterval int
	enableAPI     bool
	apiHost       string
	apiPort       int
)

var rootCmd = &cobra.Command{
	Use:   "eulerguard",
	Short: "Runtime exec, file and network access mediator",
	Long: `EulerGuard mediates program execution, file opens and outbound connects
against path and port policies, blocking or auditing matching accesses.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runAgent,
}

func init() {
	bindFlags(rootCmd.Flags())
}

func bindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	fs.StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error)")
	fs.StringVarP(&rulesFile, "rules", "r", "", "YAML rules file, reloaded on SIGHUP")
	fs.StringVar(&databasePath, "db", "", "SQLite database for policies set through the API")
	fs.StringVar(&substrate, "substrate", config.SubstrateNone, "Enforcement substrate (none, fanotify, bpf)")
	fs.StringVar(&bpfObject, "bpf-object", "", "Compiled BPF LSM object file")
	fs.StringSliceVar(&mounts, "mount", nil, "Mount to mark for fanotify (repeatable)")
	fs.IntVar(&pathDepth, "path-depth", 0, "Path reconstruction depth")
	fs.IntVarP(&statsInterval, "stats-interval", "s", 30, "Statistics log interval in seconds (0 disables)")
	fs.BoolVarP(&enableAPI, "enable-api", "a", true, "Enable REST API server")
	fs.StringVar(&apiHost, "api-host", "", "API server host")
	fs.IntVar(&apiPort, "api-port", 0, "API server port")
}

// loadConfig reads the config file and applies explicitly set flags on top
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("rules") {
		cfg.RulesFile = rulesFile
	}
	if flags.Changed("db") {
		cfg.DatabasePath = databasePath
	}
	if flags.Changed("substrate") {
		cfg.Substrate.Mode = substrate
	}
	if flags.Changed("bpf-object") {
		cfg.Substrate.BPFObject = bpfObject
	}
	if flags.Changed("mount") {
		cfg.Substrate.Mounts = mounts
	}
	if flags.Changed("path-depth") {
		cfg.Mediator.PathDepth = pathDepth
	}
	if flags.Changed("api-host") {
		cfg.API.Host = apiHost
	}
	if flags.Changed("api-port") {
		cfg.API.Port = apiPort
	}
	cfg.API.LogLevel = cfg.LogLevel

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	log.Infof("Starting EulerGuard (substrate: %s)", cfg.Substrate.Mode)

	a, err := newAgent(cfg)
	if err != nil {
		return err
	}
	return a.run()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
