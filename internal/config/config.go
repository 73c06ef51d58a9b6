// Package config defines the typed configuration surface the core consumes
// downward, independent of where the values come from (flags, env, a file).
package config

import "time"

// Provider exposes typed reads for every setting the core needs. cmd/root.go
// builds the concrete Cobra-flag-backed implementation; tests can supply a
// plain struct literal instead.
type Provider interface {
	ListenHost() string
	ListenPort() int
	RemoteNodesAPI() string
	DetectInterval() time.Duration
	AutoDetectEnabled() bool
	ProbeTimeout() time.Duration
	APIAddr() string
}

// Static is the simplest Provider: a plain value holder, useful for tests and
// for any future non-flag configuration source (env vars, a config file).
type Static struct {
	Host              string
	Port              int
	RemoteNodesAPIURL string
	Interval          time.Duration
	AutoDetect        bool
	Timeout           time.Duration
	ControlAPIAddr    string
}

func (s Static) ListenHost() string            { return s.Host }
func (s Static) ListenPort() int               { return s.Port }
func (s Static) RemoteNodesAPI() string        { return s.RemoteNodesAPIURL }
func (s Static) DetectInterval() time.Duration { return s.Interval }
func (s Static) AutoDetectEnabled() bool       { return s.AutoDetect }
func (s Static) ProbeTimeout() time.Duration   { return s.Timeout }
func (s Static) APIAddr() string               { return s.ControlAPIAddr }
