// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/lineage"
	"github.com/wtalioy/EulerGuard/pkg/mediator"
	"github.com/wtalioy/EulerGuard/pkg/pathres"
	"github.com/wtalioy/EulerGuard/pkg/policy"
	"github.com/wtalioy/EulerGuard/pkg/testutil"
)

var (
	duration      int
	statsInterval int
	workers       int
	pathPolicies  int
	pathDepth     int
	channelSize   int
)

var rootCmd = &cobra.Command{
	Use:   "perf-test",
	Short: "Drive the mediator with synthetic hook traffic",
	Long: `perf-test populates the policy stores with synthetic entries and calls
the exec, file-open and connect hooks from concurrent workers, reporting
throughput, verdict rates and event channel pressure.`,
	RunE:         runPerfTest,
	SilenceUsage: true,
}

func init() {
	fs := rootCmd.Flags()
	fs.IntVarP(&duration, "duration", "d", 30, "Test duration in seconds")
	fs.IntVarP(&statsInterval, "interval", "i", 5, "Statistics reporting interval in seconds")
	fs.IntVarP(&workers, "workers", "w", 4, "Concurrent hook callers")
	fs.IntVar(&pathPolicies, "path-policies", 1000, "Synthetic path policies to load")
	fs.IntVar(&pathDepth, "path-depth", pathres.DefaultDepth, "Path reconstruction depth")
	fs.IntVar(&channelSize, "channel-size", events.DefaultChannelSize, "Event channel size in bytes")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// workload is the mix every worker cycles through
type workload struct {
	files   []string
	bins    []string
	targets [][]byte
}

func newWorkload(pm *policy.PolicyManager, n int) (*workload, error) {
	w := &workload{}
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/srv/data/tenant%03d/secret%04d.db", i%100, i)
		action := policy.ActionMonitor
		if i%4 == 0 {
			action = policy.ActionBlock
		}
		if err := pm.PutPath(path, action); err != nil {
			return nil, fmt.Errorf("failed to add path policy: %w", err)
		}
		w.files = append(w.files, path)
	}
	// Misses walk the whole tiered lookup
	for i := 0; i < n/4+1; i++ {
		w.files = append(w.files, fmt.Sprintf("/var/lib/app/cache/%d/blob.bin", i))
	}

	for _, name := range []string{"id_rsa", "shadow"} {
		if err := pm.PutPath(name, policy.ActionMonitor); err != nil {
			return nil, err
		}
	}
	w.files = append(w.files, "/home/user/.ssh/id_rsa", "/etc/shadow")

	if err := pm.PutPath("/usr/bin/nc", policy.ActionBlock); err != nil {
		return nil, err
	}
	w.bins = []string{"/usr/bin/ls", "/usr/bin/python3", "/usr/bin/nc", "/bin/sh"}

	for _, port := range []uint16{23, 4444, 6667} {
		if err := pm.PutPort(port, policy.ActionBlock); err != nil {
			return nil, err
		}
	}
	w.targets = [][]byte{
		testutil.SockaddrInet4("10.0.0.1", 443),
		testutil.SockaddrInet4("10.0.0.2", 23),
		testutil.SockaddrInet6("2001:db8::1", 4444),
		testutil.SockaddrUnix("/run/app.sock"),
	}
	return w, nil
}

func runPerfTest(cmd *cobra.Command, args []string) error {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	log.Info("=== EulerGuard Mediator Performance Test ===")
	log.Infof("Duration: %d seconds", duration)
	log.Infof("Workers: %d", workers)
	log.Infof("Stats Interval: %d seconds", statsInterval)
	log.Info("============================================")

	paths := policy.NewPathStore(pathPolicies + 16)
	ports := policy.NewPortStore(0)
	pm := policy.NewManager(paths, ports)

	// Store mutations log per entry; keep the load phase quiet.
	log.SetLevel(log.WarnLevel)
	wl, err := newWorkload(pm, pathPolicies)
	log.SetLevel(log.InfoLevel)
	if err != nil {
		return err
	}
	log.Infof("✓ Loaded %d path and %d port policies", pm.PathCount(), pm.PortCount())

	ch, err := events.NewChannel(channelSize)
	if err != nil {
		return err
	}
	defer ch.Close()

	lin, err := lineage.New(lineage.DefaultCapacity, lineage.DefaultShards)
	if err != nil {
		return err
	}

	med := mediator.New(mediator.Config{PathDepth: pathDepth}, policy.NewMatcher(paths, ports), lin, ch)
	log.Infof("✓ Mediator initialized (path depth %d)", med.Depth())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Drain the channel the way the audit consumer would
	var consumed uint64
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if _, err := ch.Read(ctx); err != nil {
				if !errors.Is(err, events.ErrClosed) && ctx.Err() == nil {
					log.Errorf("Channel read failed: %v", err)
				}
				return
			}
			consumed++
		}
	}()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runWorker(ctx, med, wl, id)
		}(i)
	}

	baseline := med.GetStatistics().Total()
	start := time.Now()

	ticker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	timeout := time.After(time.Duration(duration) * time.Second)
	last := baseline

loop:
	for {
		select {
		case <-ticker.C:
			current := med.GetStatistics().Total()
			delta := calculateDelta(current, last)
			log.Info("\n=== Delta Statistics (last interval) ===")
			printStats(delta)
			log.Infof("Hook Rate: %.2f ops/s", float64(delta.Invocations)/float64(statsInterval))
			printChannel(ch.Stats())
			last = current
		case <-timeout:
			log.Info("\n=== Test duration completed ===")
			break loop
		case <-sigChan:
			log.Info("\n=== Test interrupted by user ===")
			break loop
		}
	}

	cancel()
	elapsed := time.Since(start)
	wg.Wait()

	final := med.GetStatistics()
	log.Info("\n=== Per-hook Statistics ===")
	for _, h := range []struct {
		name  string
		stats mediator.HookStatistics
	}{
		{"exec", final.Exec},
		{"file_open", final.FileOpen},
		{"connect", final.Connect},
	} {
		log.Infof("  %-10s invocations=%d denied=%d monitored=%d misses=%d incomplete=%d",
			h.name, h.stats.Invocations, h.stats.Denied, h.stats.Monitored,
			h.stats.LookupMisses, h.stats.IncompleteResolutions)
	}

	total := calculateDelta(final.Total(), baseline)
	log.Info("\n=== Total Test Statistics ===")
	printStats(total)
	printChannel(ch.Stats())
	log.Infof("  Records Consumed:  %d", consumed)

	if total.Invocations == 0 {
		log.Warn("No hooks were invoked during the test")
		return nil
	}

	rate := float64(total.Invocations) / elapsed.Seconds()
	perOp := time.Duration(float64(elapsed) * float64(workers) / float64(total.Invocations))
	log.Infof("Average Hook Rate: %.2f ops/s", rate)
	log.Infof("Average Cost: %v per hook per worker", perOp)
	log.Infof("Deny Rate: %.2f%%", float64(total.Denied)/float64(total.Invocations)*100)
	if emitted := total.EventsEmitted + total.EventsDropped; emitted > 0 {
		log.Infof("Event Drop Rate: %.2f%%", float64(total.EventsDropped)/float64(emitted)*100)
	}

	if perOp < 10*time.Microsecond {
		log.Info("✓ Performance Target: MET (<10μs per hook)")
	} else {
		log.Info("⚠ Performance Target: NOT MET (>=10μs per hook)")
	}

	log.Info("\n=== Test Complete ===")
	return nil
}

func runWorker(ctx context.Context, med *mediator.Mediator, wl *workload, id int) {
	rng := rand.New(rand.NewSource(int64(id)))
	task := testutil.NewFakeTask(uint32(10000+id), 1, fmt.Sprintf("worker-%d", id))

	for i := 0; ; i++ {
		if i%256 == 0 && ctx.Err() != nil {
			return
		}

		// 80% opens, 10% execs, 10% connects
		switch n := rng.Intn(10); {
		case n < 8:
			med.FileOpen(task, testutil.NewFakeFile(wl.files[rng.Intn(len(wl.files))], 0))
		case n == 8:
			med.Exec(task, pathres.NewPathDentry(wl.bins[rng.Intn(len(wl.bins))]))
		default:
			med.Connect(task, wl.targets[rng.Intn(len(wl.targets))])
		}
	}
}

func printStats(stats mediator.HookStatistics) {
	log.Infof("  Invocations:       %d", stats.Invocations)
	log.Infof("  Allowed:           %d", stats.Allowed)
	log.Infof("  Denied:            %d", stats.Denied)
	log.Infof("  Monitored:         %d", stats.Monitored)
	log.Infof("  Lookup Misses:     %d", stats.LookupMisses)
	log.Infof("  Events Emitted:    %d", stats.EventsEmitted)
	log.Infof("  Events Dropped:    %d", stats.EventsDropped)
}

func printChannel(stats events.ChannelStats) {
	log.Infof("  Channel:           pending=%d/%d submitted=%d dropped=%d",
		stats.Pending, stats.Capacity, stats.Submitted, stats.Dropped)
}

func calculateDelta(current, previous mediator.HookStatistics) mediator.HookStatistics {
	return mediator.HookStatistics{
		Invocations:           current.Invocations - previous.Invocations,
		Allowed:               current.Allowed - previous.Allowed,
		Denied:                current.Denied - previous.Denied,
		Monitored:             current.Monitored - previous.Monitored,
		EventsEmitted:         current.EventsEmitted - previous.EventsEmitted,
		EventsDropped:         current.EventsDropped - previous.EventsDropped,
		IncompleteResolutions: current.IncompleteResolutions - previous.IncompleteResolutions,
		LookupMisses:          current.LookupMisses - previous.LookupMisses,
		UnsupportedFamilies:   current.UnsupportedFamilies - previous.UnsupportedFamilies,
	}
}
