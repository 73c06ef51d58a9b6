package scheduler

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/latchwood/mcaccel/internal/directory"
)

type stubFetcher struct {
	body []byte
}

func (s stubFetcher) Get(ctx context.Context, url string) (int, []byte, error) {
	return 200, s.body, nil
}

// startProbeServer runs a stub that answers the probe handshake (reachable)
// or optionally refuses to answer (unreachable, via acceptOnly=true).
func startProbeServer(t *testing.T, acceptOnly bool) (host string, port int, stop func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 256)
				if _, err := c.Read(buf); err != nil {
					return
				}
				if acceptOnly {
					// Hold without replying until the caller's timeout fires.
					time.Sleep(2 * time.Second)
					return
				}
				_, _ = c.Write([]byte{0x01})
			}(conn)
		}
	}()
	h, p, _ := net.SplitHostPort(ln.Addr().String())
	portNum, _ := strconv.Atoi(p)
	return h, portNum, func() { _ = ln.Close() }
}

func seedDirectory(t *testing.T, d *directory.Directory, nodes []map[string]any) {
	t.Helper()
	body, err := json.Marshal(nodes)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := d.RefreshFromRemote(context.Background(), stubFetcher{body: body}, "u"); err != nil {
		t.Fatalf("seed refresh: %v", err)
	}
}

func TestProbeAll_EmptyDirectory_NoOp(t *testing.T) {
	d := directory.New(nil)
	s := New(d, Config{})
	s.ProbeAll(true) // must not panic or hang
	if _, ok := d.GetCurrent(); ok {
		t.Fatal("expected no current node for an empty directory")
	}
}

// TestProbeAll_AutoSwitch follows scenario S4: with auto_switch set and
// manual mode off, a reachable node becomes current and the unreachable one
// is never selected.
func TestProbeAll_AutoSwitch(t *testing.T) {
	fastHost, fastPort, stopFast := startProbeServer(t, false)
	defer stopFast()
	slowHost, slowPort, stopSlow := startProbeServer(t, false)
	defer stopSlow()
	deadHost, deadPort, stopDead := startProbeServer(t, true)
	defer stopDead()

	d := directory.New(nil)
	seedDirectory(t, d, []map[string]any{
		{"hostname": "fast", "ip": fastHost, "port": fastPort},
		{"hostname": "slow", "ip": slowHost, "port": slowPort},
		{"hostname": "dead", "ip": deadHost, "port": deadPort},
	})

	s := New(d, Config{ProbeTimeout: 300 * time.Millisecond})
	s.ProbeAll(true)

	cur, ok := d.GetCurrent()
	if !ok {
		t.Fatal("expected a current node after auto-switch")
	}
	if cur.Hostname == "dead" {
		t.Fatalf("unreachable node should never be selected, got %q", cur.Hostname)
	}
}

// TestProbeAll_ManualSticks reproduces scenario S5: once manual_select has
// been called, further ProbeAll(auto_switch=true) calls must not move the
// selection away from the manually chosen node.
func TestProbeAll_ManualSticks(t *testing.T) {
	aHost, aPort, stopA := startProbeServer(t, false)
	defer stopA()
	bHost, bPort, stopB := startProbeServer(t, false)
	defer stopB()

	d := directory.New(nil)
	seedDirectory(t, d, []map[string]any{
		{"hostname": "A", "ip": aHost, "port": aPort},
		{"hostname": "B", "ip": bHost, "port": bPort},
	})

	s := New(d, Config{ProbeTimeout: 300 * time.Millisecond})
	s.ProbeAll(true)
	d.ManualSelect("A")
	s.ProbeAll(true)

	cur, ok := d.GetCurrent()
	if !ok || cur.Hostname != "A" {
		t.Fatalf("expected manual selection to stick on 'A', got %+v (ok=%v)", cur, ok)
	}
}

func TestScheduler_StartStop_BackgroundLoop(t *testing.T) {
	host, port, stop := startProbeServer(t, false)
	defer stop()

	d := directory.New(nil)
	seedDirectory(t, d, []map[string]any{{"hostname": "A", "ip": host, "port": port}})

	s := New(d, Config{
		AutoDetectEnabled: true,
		DetectInterval:    20 * time.Millisecond,
		ProbeTimeout:      200 * time.Millisecond,
	})
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if n, ok := d.GetCurrent(); ok && n.Reachable {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected background loop to probe and select the node")
}
