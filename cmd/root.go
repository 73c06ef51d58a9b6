// Package cmd implements the mcaccel CLI using Cobra.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/latchwood/mcaccel/internal/api"
	"github.com/latchwood/mcaccel/internal/config"
	"github.com/latchwood/mcaccel/internal/directory"
	"github.com/latchwood/mcaccel/internal/httpfetch"
	"github.com/latchwood/mcaccel/internal/proxy"
	"github.com/latchwood/mcaccel/internal/scheduler"
	"github.com/latchwood/mcaccel/internal/status"
)

// version is injected at build time via ldflags.
var version = "dev"

// -----------------------------------------------------------------------
// Flag variables
// -----------------------------------------------------------------------

var (
	flagListenHost string
	flagListenPort int
	flagAPIPort    string

	flagRemoteNodesAPI string

	flagAutoDetect     bool
	flagDetectInterval string
	flagProbeTimeout   string
)

// -----------------------------------------------------------------------
// Root command
// -----------------------------------------------------------------------

var rootCmd = &cobra.Command{
	Use:   "mcaccel",
	Short: "Client-side TCP accelerator with node probing and automatic failover",
	Long: `mcaccel — a local TCP relay that sits in front of a game client and
picks the fastest reachable backend node from a remote directory.

It listens for raw TCP connections and relays each one to whichever node is
currently selected. Selection is driven by a background probe scheduler that
measures latency and reachability against every known node and switches to
the fastest one automatically — unless a node has been picked manually via
the Control API, in which case the manual choice sticks until cleared.

  • Remote node directory   --remote-nodes-api https://example.test/nodes.json
  • Automatic probing       --auto-detect --detect-interval 30s
  • Manual override         POST /api/nodes/select {"hostname": "..."}

A Gin-based Control API exposes the relay's start/stop/status and the node
directory's refresh/probe/select surface as JSON, plus Prometheus metrics at
/metrics.
`,
	Version:      version,
	SilenceUsage: true,
	RunE:         run,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.Flags()

	// Relay listener
	f.StringVar(&flagListenHost, "listen-host", "127.0.0.1", "Local relay listen host")
	f.IntVar(&flagListenPort, "listen-port", 1080, "Local relay listen port")
	f.StringVar(&flagAPIPort, "api-port", "9090", "Port for the Control API and /metrics server")

	// Node directory
	f.StringVar(&flagRemoteNodesAPI, "remote-nodes-api", "", "URL of the remote node directory JSON endpoint")

	// Probe scheduler
	f.BoolVar(&flagAutoDetect, "auto-detect", true, "Enable the background probe loop and automatic node switching")
	f.StringVar(&flagDetectInterval, "detect-interval", "30s", "Interval between background probe batches")
	f.StringVar(&flagProbeTimeout, "probe-timeout", "2s", "Timeout for a single node probe")
}

// -----------------------------------------------------------------------
// Main run logic
// -----------------------------------------------------------------------

// cliProvider adapts the Cobra flag variables to config.Provider, the same
// way the teacher's rootCmd owns all flag variables and builds component
// Config structs directly from them.
type cliProvider struct{}

func (cliProvider) ListenHost() string      { return flagListenHost }
func (cliProvider) ListenPort() int         { return flagListenPort }
func (cliProvider) RemoteNodesAPI() string  { return flagRemoteNodesAPI }
func (cliProvider) AutoDetectEnabled() bool { return flagAutoDetect }
func (cliProvider) APIAddr() string         { return "127.0.0.1:" + flagAPIPort }

func (cliProvider) DetectInterval() time.Duration {
	d, err := time.ParseDuration(flagDetectInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func (cliProvider) ProbeTimeout() time.Duration {
	d, err := time.ParseDuration(flagProbeTimeout)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

func run(_ *cobra.Command, _ []string) error {
	var cfg config.Provider = cliProvider{}

	if _, err := time.ParseDuration(flagDetectInterval); err != nil {
		return fmt.Errorf("--detect-interval: %w", err)
	}
	if _, err := time.ParseDuration(flagProbeTimeout); err != nil {
		return fmt.Errorf("--probe-timeout: %w", err)
	}

	bus := status.NewBus()
	dir := directory.New(bus)

	if cfg.RemoteNodesAPI() != "" {
		log.Printf("[init] fetching initial node directory from %s", cfg.RemoteNodesAPI())
		fetcher := httpfetch.New(10 * time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		nodes, err := dir.RefreshFromRemote(ctx, fetcher, cfg.RemoteNodesAPI())
		cancel()
		if err != nil {
			log.Printf("[init] initial refresh failed (retry with POST /api/nodes/refresh): %v", err)
		} else {
			log.Printf("[init] loaded %d nodes", len(nodes))
		}
	} else {
		log.Printf("[init] no --remote-nodes-api set; directory starts empty")
	}

	sched := scheduler.New(dir, scheduler.Config{
		AutoDetectEnabled: cfg.AutoDetectEnabled(),
		DetectInterval:    cfg.DetectInterval(),
		ProbeTimeout:      cfg.ProbeTimeout(),
	})
	sched.Start()
	defer sched.Stop()

	listener := proxy.New(proxy.Config{
		ListenHost: cfg.ListenHost(),
		ListenPort: cfg.ListenPort(),
	}, dir, bus)

	apiAddr := cfg.APIAddr()
	apiSrv := api.New(apiAddr, dir, listener, sched)
	go func() {
		log.Printf("[init] Control API listening on http://%s", apiAddr)
		if err := apiSrv.Start(); err != nil {
			log.Printf("[api] server stopped: %v", err)
		}
	}()
	defer apiSrv.Stop()

	if err := listener.Start(); err != nil {
		return fmt.Errorf("start relay listener: %w", err)
	}
	defer listener.Stop()

	printBanner(flagListenHost, flagListenPort, apiAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[init] received %s — shutting down", sig)
	return nil
}

// -----------------------------------------------------------------------
// Startup banner
// -----------------------------------------------------------------------

func printBanner(host string, port int, apiAddr string) {
	listenStr := fmt.Sprintf("%s:%d", host, port)
	fmt.Printf(`
╔══════════════════════════════════════════════════════════════╗
║                        mcaccel %s
╠══════════════════════════════════════════════════════════════╣
║  Relay listen : %s
║  Control API  : http://%s
╠══════════════════════════════════════════════════════════════╣
║  Control API endpoints:
║    POST http://%s/api/proxy/start
║    POST http://%s/api/proxy/stop
║    GET  http://%s/api/proxy/status
║    POST http://%s/api/nodes/refresh
║    POST http://%s/api/nodes/probe
║    GET  http://%s/api/nodes
║    POST http://%s/api/nodes/select
║    POST http://%s/api/nodes/clear-manual
║    GET  http://%s/api/nodes/current
║    GET  http://%s/metrics
╚══════════════════════════════════════════════════════════════╝

`, padRight(version, 44),
		padRight(listenStr, 46),
		padRight(apiAddr, 44),
		apiAddr, apiAddr, apiAddr, apiAddr, apiAddr, apiAddr, apiAddr, apiAddr, apiAddr, apiAddr,
	)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
