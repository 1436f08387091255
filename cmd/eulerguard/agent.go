// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wtalioy/EulerGuard/pkg/api"
	"github.com/wtalioy/EulerGuard/pkg/api/models"
	"github.com/wtalioy/EulerGuard/pkg/audit"
	"github.com/wtalioy/EulerGuard/pkg/config"
	"github.com/wtalioy/EulerGuard/pkg/dataplane"
	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/fanotify"
	"github.com/wtalioy/EulerGuard/pkg/lineage"
	"github.com/wtalioy/EulerGuard/pkg/mediator"
	"github.com/wtalioy/EulerGuard/pkg/metrics"
	"github.com/wtalioy/EulerGuard/pkg/policy"
	"github.com/wtalioy/EulerGuard/pkg/procfs"
)

// agent owns every long-lived component
type agent struct {
	cfg *config.Config

	storage  *policy.SQLiteStorage
	manager  *policy.PolicyManager
	channel  *events.Channel
	lineage  *lineage.Cache
	mediator *mediator.Mediator
	consumer *audit.Consumer

	dataPlane *dataplane.DataPlane
	monitor   *fanotify.Monitor
	apiServer *api.Server
}

func newAgent(cfg *config.Config) (*agent, error) {
	a := &agent{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.close()
		}
	}()

	var err error

	paths := policy.NewPathStore(cfg.Mediator.PathCapacity)
	ports := policy.NewPortStore(cfg.Mediator.PortCapacity)

	if cfg.DatabasePath != "" {
		a.storage, err = policy.NewSQLiteStorage(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open policy database: %w", err)
		}
		a.manager = policy.NewManagerWithStorage(paths, ports, a.storage)
	} else {
		a.manager = policy.NewManager(paths, ports)
	}

	if err := a.loadPolicies(); err != nil {
		return nil, err
	}
	log.Info("✓ Policy manager initialized")

	a.channel, err = events.NewChannel(cfg.Mediator.ChannelSize)
	if err != nil {
		return nil, err
	}
	a.lineage, err = lineage.New(cfg.Mediator.LineageCapacity, cfg.Mediator.LineageShards)
	if err != nil {
		return nil, err
	}

	a.mediator = mediator.New(
		mediator.Config{PathDepth: cfg.Mediator.PathDepth},
		policy.NewMatcher(paths, ports),
		a.lineage,
		a.channel,
	)
	log.Infof("✓ Mediator initialized (path depth %d)", a.mediator.Depth())

	var source audit.Source = a.channel
	switch cfg.Substrate.Mode {
	case config.SubstrateFanotify:
		a.monitor, err = fanotify.New(a.mediator, procfs.Reader{}, cfg.Substrate.Mounts)
		if err != nil {
			return nil, fmt.Errorf("failed to create fanotify monitor: %w", err)
		}
		log.Infof("✓ fanotify monitor marked %v", cfg.Substrate.Mounts)

	case config.SubstrateBPF:
		a.dataPlane, err = dataplane.New(dataplane.Config{
			ObjectPath:     cfg.Substrate.BPFObject,
			RingBufferSize: cfg.Substrate.RingBufferSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create data plane: %w", err)
		}
		if err := a.manager.AddMirror(a.dataPlane); err != nil {
			log.Warnf("Some policies could not be mirrored to the kernel: %v", err)
		}
		a.lineage.SetFallback(a.dataPlane.Parent)
		source = a.dataPlane
		log.Info("✓ Data plane initialized")
	}

	a.consumer = audit.NewConsumer(source, cfg.Mediator.HistorySize)

	if enableAPI {
		a.apiServer, err = api.NewAPIServer(&cfg.API, api.Deps{
			Policies: a.manager,
			Mediator: a.mediator,
			Channel:  a.channel,
			Audit:    a.consumer,
			Lineage:  a.lineage,
			Metrics: metrics.NewRegistry(metrics.Sources{
				Mediator: a.mediator,
				Channel:  a.channel,
				Audit:    a.consumer,
				Lineage:  a.lineage,
				Policy:   a.manager,
			}),
			Runtime: models.ConfigResponse{
				Substrate:       cfg.Substrate.Mode,
				LogLevel:        cfg.LogLevel,
				RulesFile:       cfg.RulesFile,
				PathDepth:       a.mediator.Depth(),
				ChannelSize:     cfg.Mediator.ChannelSize,
				LineageCapacity: a.lineage.Capacity(),
				APIHost:         cfg.API.Host,
				APIPort:         cfg.API.Port,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create API server: %w", err)
		}
	}

	ready = true
	return a, nil
}

// loadPolicies applies the rules file with the policies persisted through
// the API overlaid on it, as a single update of the stores
func (a *agent) loadPolicies() error {
	if a.cfg.RulesFile != "" {
		rules, err := policy.LoadRules(a.cfg.RulesFile)
		if err != nil {
			return err
		}
		if err := a.manager.ReplaceRules(rules); err != nil {
			return fmt.Errorf("failed to apply rules: %w", err)
		}
	} else if a.storage != nil {
		if err := a.manager.LoadPersisted(); err != nil {
			log.Warnf("Failed to load persisted policies: %v", err)
		}
	}

	a.warnUnenforcedPorts()
	return nil
}

// warnUnenforcedPorts flags port policies the substrate cannot enforce:
// fanotify has no connect permission event
func (a *agent) warnUnenforcedPorts() {
	if a.cfg.Substrate.Mode != config.SubstrateFanotify {
		return
	}
	if n := a.manager.PortCount(); n > 0 {
		log.Warnf("%d port policies loaded but not enforced: the fanotify substrate does not mediate connect", n)
	}
}

func (a *agent) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorf("%s stopped: %v", name, err)
			}
		}()
	}

	start("audit consumer", a.consumer.Run)
	if a.monitor != nil {
		start("fanotify monitor", a.monitor.Run)
	}

	if a.apiServer != nil {
		if err := a.apiServer.Start(); err != nil {
			cancel()
			wg.Wait()
			a.close()
			return err
		}
		log.Infof("✓ API server started on http://%s", a.apiServer.Addr())
	}

	if statsInterval > 0 {
		start("statistics logger", a.logStatistics)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)

	log.Info("✓ Agent running. Press Ctrl+C to exit")

	for s := range sig {
		if s == syscall.SIGHUP {
			log.Info("Reloading rules...")
			if err := a.loadPolicies(); err != nil {
				log.Errorf("Rule reload failed, keeping current policies: %v", err)
			}
			continue
		}
		break
	}

	log.Info("Shutting down...")
	cancel()
	wg.Wait()
	return a.close()
}

func (a *agent) logStatistics(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		stats := a.mediator.GetStatistics()
		ch := a.channel.Stats()
		log.Info("=== Statistics ===")
		for _, h := range []struct {
			name string
			s    mediator.HookStatistics
		}{
			{"exec", stats.Exec},
			{"file_open", stats.FileOpen},
			{"connect", stats.Connect},
		} {
			log.Infof("  %-10s invocations=%d denied=%d monitored=%d dropped=%d",
				h.name, h.s.Invocations, h.s.Denied, h.s.Monitored, h.s.EventsDropped)
		}
		log.Infof("  Channel:   pending=%d submitted=%d dropped=%d", ch.Pending, ch.Submitted, ch.Dropped)
		log.Infof("  Lineage:   %d/%d", a.lineage.Len(), a.lineage.Capacity())
		if a.dataPlane != nil {
			dp := a.dataPlane.GetStatistics()
			log.Infof("  Kernel:    paths=%d ports=%d", dp.MonitoredPaths, dp.BlockedPorts)
		}
	}
}

// close releases components in reverse order of creation
func (a *agent) close() error {
	var errs []error

	if a.apiServer != nil {
		if err := a.apiServer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping API server: %w", err))
		}
	}
	if a.monitor != nil {
		if err := a.monitor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing fanotify monitor: %w", err))
		}
	}
	if a.dataPlane != nil {
		if err := a.dataPlane.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing data plane: %w", err))
		}
	}
	if a.channel != nil {
		a.channel.Close()
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing policy database: %w", err))
		}
	}

	return errors.Join(errs...)
}
