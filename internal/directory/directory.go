package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/latchwood/mcaccel/internal/metrics"
	"github.com/latchwood/mcaccel/internal/status"
)

// Fetcher performs a bounded-timeout HTTP GET. It is satisfied by
// internal/httpfetch.Client, kept as a narrow interface here so Directory can
// be tested without any real network access.
type Fetcher interface {
	Get(ctx context.Context, url string) (statusCode int, body []byte, err error)
}

// remoteNode mirrors the inbound JSON shape documented in SPEC_FULL.md §6.
type remoteNode struct {
	Hostname    string `json:"hostname"`
	Name        string `json:"name"`
	IP          string `json:"ip"`
	Port        int    `json:"port"`
	Enabled     *bool  `json:"enabled"`
	Group       string `json:"group"`
	Priority    *int   `json:"priority"`
	MOTD        string `json:"motd"`
	OnlineCount int    `json:"online_count"`
}

// Directory holds the set of known nodes and the current selection. All
// mutation goes through a single mutex; every value that escapes to a caller
// or observer is copied first so nothing outside ever sees directory-owned
// memory.
type Directory struct {
	mu sync.Mutex

	nodes map[string]Node

	currentHostname string // "" means no current node
	manual          bool

	bus *status.Bus
}

// New creates an empty Directory. bus may be nil, in which case no events are
// published (useful in tests that don't care about observers).
func New(bus *status.Bus) *Directory {
	return &Directory{
		nodes: make(map[string]Node),
		bus:   bus,
	}
}

// RefreshFromRemote fetches, parses, and merges a remote node list. On
// success the directory is replaced (merge rule applied) and a
// nodes_updated event is published; on failure the directory is left
// untouched and no event fires.
func (d *Directory) RefreshFromRemote(ctx context.Context, fetcher Fetcher, url string) ([]Node, error) {
	code, body, err := fetcher.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("directory: fetch %s: %w", url, err)
	}
	if code < 200 || code >= 300 {
		return nil, fmt.Errorf("directory: fetch %s: unexpected status %d", url, code)
	}

	var remote []remoteNode
	if err := json.Unmarshal(body, &remote); err != nil {
		return nil, fmt.Errorf("directory: parse node list: %w", err)
	}

	fresh := make(map[string]Node, len(remote))
	for _, rn := range remote {
		if rn.Enabled != nil && !*rn.Enabled {
			continue
		}
		hostname := rn.Hostname
		if hostname == "" {
			hostname = rn.Name
		}
		if hostname == "" {
			continue // missing hostname fails this element
		}
		if rn.IP == "" || rn.Port < 1 || rn.Port > 65535 {
			continue // missing/invalid required fields fails this element
		}
		priority := DefaultPriority
		if rn.Priority != nil {
			priority = *rn.Priority
		}
		fresh[hostname] = newUnprobed(hostname, rn.IP, rn.Port, rn.Group, priority, rn.MOTD, rn.OnlineCount)
	}

	d.mu.Lock()
	merged := make(map[string]Node, len(fresh))
	for hostname, incoming := range fresh {
		if existing, ok := d.nodes[hostname]; ok && sameEndpoint(existing, incoming) {
			incoming.LatencyMS = existing.LatencyMS
			incoming.Reachable = existing.Reachable
			incoming.Status = existing.Status
		}
		merged[hostname] = incoming
	}
	d.nodes = merged
	if _, ok := merged[d.currentHostname]; !ok {
		d.currentHostname = ""
	}
	snapshot := d.orderedLocked()
	d.mu.Unlock()

	d.publish(status.EventNodesUpdated, snapshot)
	return snapshot, nil
}

// List returns an independent, deterministically ordered copy of all nodes:
// by Priority ascending, then Hostname lexicographic.
func (d *Directory) List() []Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.orderedLocked()
}

// orderedLocked must be called with d.mu held.
func (d *Directory) orderedLocked() []Node {
	out := make([]Node, 0, len(d.nodes))
	for _, n := range d.nodes {
		out = append(out, n)
	}
	sortByPriorityThenHostname(out)
	return out
}

// GetCurrent resolves the current selection to a Node copy. Returns false if
// there is no current node, or the current hostname no longer names an
// entry in the directory (a stale reference, resolved as "no current
// node").
func (d *Directory) GetCurrent() (Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.currentHostname == "" {
		return Node{}, false
	}
	n, ok := d.nodes[d.currentHostname]
	if !ok {
		return Node{}, false
	}
	return n, true
}

// ManualSelect sets manual mode and selects hostname if it exists. A no-op
// (selection unchanged) if hostname is not in the directory. Returns whether
// the selection was applied.
func (d *Directory) ManualSelect(hostname string) bool {
	d.mu.Lock()
	_, ok := d.nodes[hostname]
	if ok {
		d.manual = true
		d.currentHostname = hostname
	}
	snapshot, changed := d.proxySelectionSnapshotLocked(ok)
	d.mu.Unlock()

	if changed {
		metrics.RecordRotation()
		d.publish(status.EventNodesUpdated, snapshot)
	}
	return ok
}

// ClearManual disables manual mode without changing the current selection.
func (d *Directory) ClearManual() {
	d.mu.Lock()
	d.manual = false
	d.mu.Unlock()
}

// IsManual reports whether manual mode is active.
func (d *Directory) IsManual() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.manual
}

// AutoSelect sets the current node, unless manual mode is active, in which
// case the call is ignored. Returns whether the selection was applied. A
// rotation is recorded only when the current node actually changes. It
// publishes no event itself: the scheduler emits one nodes_updated event
// after the whole probe batch.
func (d *Directory) AutoSelect(hostname string) bool {
	d.mu.Lock()
	if d.manual {
		d.mu.Unlock()
		return false
	}
	_, ok := d.nodes[hostname]
	changed := ok && d.currentHostname != hostname
	if ok {
		d.currentHostname = hostname
	}
	d.mu.Unlock()

	if changed {
		metrics.RecordRotation()
	}
	return ok
}

// proxySelectionSnapshotLocked must be called with d.mu held. It returns the
// ordered node snapshot plus whether the caller should publish it (only when
// the selection actually changed something observable).
func (d *Directory) proxySelectionSnapshotLocked(changed bool) ([]Node, bool) {
	if !changed {
		return nil, false
	}
	return d.orderedLocked(), true
}

// ApplyProbeResult updates a single node's probe-derived fields in place.
// Called by the probe scheduler once per node per batch; never emits an
// event itself — the scheduler emits one nodes_updated event after the
// whole batch settles (§5 ordering guarantee).
func (d *Directory) ApplyProbeResult(hostname string, reachable bool, latencyMS int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.nodes[hostname]
	if !ok {
		return
	}
	n.Reachable = reachable
	if reachable {
		n.LatencyMS = latencyMS
	} else {
		n.LatencyMS = -1
	}
	n.Status = Classify(reachable, latencyMS)
	d.nodes[hostname] = n
}

// PublishNodesUpdated emits a nodes_updated event carrying the current
// ordered snapshot. Used by the scheduler after a probe batch completes.
func (d *Directory) PublishNodesUpdated() {
	d.publish(status.EventNodesUpdated, d.List())
}

func (d *Directory) publish(eventType string, data any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventType, data)
}

func sortByPriorityThenHostname(nodes []Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Priority != nodes[j].Priority {
			return nodes[i].Priority < nodes[j].Priority
		}
		return nodes[i].Hostname < nodes[j].Hostname
	})
}
