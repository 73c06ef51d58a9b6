// Package probe performs a single handshake-based liveness and latency
// measurement against one backend node (component C1).
//
// The handshake mimics a widely deployed game server's status-ping sequence:
// a framed "handshake" packet naming the protocol version, target host/port,
// and next-state, followed by an empty framed packet, after which a real
// listener replies with at least one byte. A bare TCP connect is not
// sufficient evidence of liveness — plenty of black-hole ports accept and
// never speak — so the probe insists on a server-originated response byte.
package probe

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// protocolVersion is the version number advertised in the handshake packet.
// 47 identifies a long-stable, widely supported wire revision of the target
// protocol family and is accepted by essentially every listener worth
// probing.
const protocolVersion = 47

// nextStateStatus requests the server's lightweight status response rather
// than attempting a full login.
const nextStateStatus = 1

// Result is the outcome of a single probe.
type Result struct {
	Reachable bool
	LatencyMS int64 // only meaningful when Reachable
}

// Target names the node to probe. It is intentionally narrower than
// directory.Node so this package has no dependency on the directory package.
type Target struct {
	IP   string
	Port int
}

// Probe dials Target, performs the handshake, and measures round-trip wall
// time. Any network, timeout, or protocol error yields Result{Reachable:
// false}; the probe fails closed — partial writes, resets, and empty reads
// all count as failure.
func Probe(target Target, timeout time.Duration) Result {
	start := time.Now()

	addr := net.JoinHostPort(target.IP, fmt.Sprintf("%d", target.Port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return Result{Reachable: false}
	}
	defer conn.Close()

	deadline := start.Add(timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return Result{Reachable: false}
	}

	handshake := encodeHandshakePacket(target.IP, target.Port)
	if err := writeFramed(conn, handshake); err != nil {
		return Result{Reachable: false}
	}
	if err := writeFramed(conn, []byte{0x00}); err != nil {
		return Result{Reachable: false}
	}

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil || n <= 0 {
		return Result{Reachable: false}
	}

	latencyMS := time.Since(start).Milliseconds()
	if latencyMS < 1 {
		// Sub-millisecond round trips (loopback, synthetic test servers)
		// still count as a successful, strictly-positive measurement.
		latencyMS = 1
	}
	return Result{Reachable: true, LatencyMS: latencyMS}
}

// encodeHandshakePacket builds the payload:
//
//	0x00 ∥ varint(protocolVersion) ∥ varint(len(host)) ∥ host ∥ port_u16_be ∥ varint(nextStateStatus)
func encodeHandshakePacket(host string, port int) []byte {
	var buf []byte
	buf = append(buf, 0x00)
	buf = appendVarint(buf, protocolVersion)
	buf = appendVarint(buf, uint64(len(host)))
	buf = append(buf, []byte(host)...)
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, uint16(port))
	buf = append(buf, portBytes...)
	buf = appendVarint(buf, nextStateStatus)
	return buf
}

// writeFramed writes varint(len(payload)) ∥ payload and fails on any short
// write.
func writeFramed(conn net.Conn, payload []byte) error {
	frame := appendVarint(nil, uint64(len(payload)))
	frame = append(frame, payload...)
	n, err := conn.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("probe: short write (%d/%d bytes)", n, len(frame))
	}
	return nil
}

// appendVarint appends the LEB128-style varint encoding of v to dst: 7 data
// bits per byte, low bits first, MSB set on every byte but the last.
func appendVarint(dst []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			dst = append(dst, b|0x80)
			continue
		}
		dst = append(dst, b)
		return dst
	}
}
