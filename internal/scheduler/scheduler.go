// Package scheduler drives periodic and on-demand all-nodes probes and
// updates the directory's best-node selection (component C3).
package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/latchwood/mcaccel/internal/directory"
	"github.com/latchwood/mcaccel/internal/metrics"
	"github.com/latchwood/mcaccel/internal/probe"
)

// maxConcurrentProbes bounds the worker pool used by ProbeAll, mirroring the
// teacher monitor's Concurrency-gated semaphore. All-nodes-at-once is fine up
// to a few dozen nodes; this caps larger directories.
const maxConcurrentProbes = 16

// Config controls the background probe loop.
type Config struct {
	// AutoDetectEnabled turns the background loop on. When false, probes
	// only happen on explicit ProbeAll calls.
	AutoDetectEnabled bool

	// DetectInterval is how often the background loop probes all nodes.
	DetectInterval time.Duration

	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration
}

// Scheduler owns the background probing goroutine.
type Scheduler struct {
	dir *directory.Directory
	cfg Config

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a Scheduler. Call Start to begin the background loop (if
// configured); ProbeAll can be called at any time regardless.
func New(dir *directory.Directory, cfg Config) *Scheduler {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 2 * time.Second
	}
	return &Scheduler{dir: dir, cfg: cfg, stop: make(chan struct{})}
}

// Start launches the background loop. No-op if AutoDetectEnabled is false.
func (s *Scheduler) Start() {
	if !s.cfg.AutoDetectEnabled || s.cfg.DetectInterval <= 0 {
		return
	}
	s.wg.Add(1)
	go s.loop()
}

// Stop signals the background loop to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.DetectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.ProbeAll(!s.dir.IsManual())
		case <-s.stop:
			return
		}
	}
}

// ProbeAll probes every node in the directory with bounded fan-out. If
// autoSwitch is true and a reachable node exists, the best one (lowest
// latency, ties by priority then hostname) is auto-selected. Emits exactly
// one nodes_updated event after the whole batch settles.
func (s *Scheduler) ProbeAll(autoSwitch bool) {
	nodes := s.dir.List()
	if len(nodes) == 0 {
		return
	}

	sem := make(chan struct{}, maxConcurrentProbes)
	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		sem <- struct{}{}
		go func(n directory.Node) {
			defer wg.Done()
			defer func() { <-sem }()
			result := probe.Probe(probe.Target{IP: n.IP, Port: n.Port}, s.cfg.ProbeTimeout)
			metrics.RecordProbeResult(result.Reachable)
			s.dir.ApplyProbeResult(n.Hostname, result.Reachable, result.LatencyMS)
		}(n)
	}
	wg.Wait()

	if autoSwitch {
		if best, ok := bestReachable(s.dir.List()); ok {
			s.dir.AutoSelect(best.Hostname)
		}
	}

	s.dir.PublishNodesUpdated()
	log.Printf("[scheduler] probe batch done: %d nodes, auto_switch=%v", len(nodes), autoSwitch)
}

// bestReachable returns the reachable node with the lowest latency, ties
// broken by priority ascending then hostname lexicographic. nodes is assumed
// already ordered by (priority, hostname) via Directory.List, so a single
// linear scan preserves the tie-break without re-sorting.
func bestReachable(nodes []directory.Node) (directory.Node, bool) {
	var best directory.Node
	found := false
	for _, n := range nodes {
		if !n.Reachable {
			continue
		}
		if !found || n.LatencyMS < best.LatencyMS {
			best = n
			found = true
		}
	}
	return best, found
}
