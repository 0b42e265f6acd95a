// SPDX-License-Identifier: Apache-2.0

// Package config resolves the startup and runtime configuration surface
// spec §6 describes: per-magic-key measuring-time ceilings, orchestrator
// round counts, and the shared UDP socket's bind address. Generalized from
// the teacher's pkg/config: static config loaded once via spf13/viper
// (cmd/), runtime config hot-reloadable via the same Loader/FileLoader/
// HttpLoader pattern the teacher uses for its checks runtime config.
package config

import (
	"time"

	"github.com/dt-netlab/pathcast/internal/helper"
)

// DefaultMeasuringSeconds and DemoMeasuringSeconds mirror
// pkg/session.DefaultMeasuringSeconds/DemoMeasuringSeconds; duplicated here
// (rather than imported) so pkg/config never depends on pkg/session.
const (
	DefaultMeasuringSeconds = 3600
	DemoMagicKey            = "DEMO"
	DemoMeasuringSeconds    = 120

	DefaultTracerouteRounds = 3
	DefaultMtuRounds        = 9
)

// MagicKeyConfig is one tenant/authorization handle's measuring-time
// ceiling (spec §6 "per-magic-key maximum measuring-time-seconds").
type MagicKeyConfig struct {
	MaxMeasuringSeconds int `yaml:"maxMeasuringSeconds" mapstructure:"maxMeasuringSeconds"`
}

// RuntimeConfig is the part of the configuration the core consumes that can
// be reloaded: the magic-key table and the traceroute/MTU round counts. It
// does not carry ladder constants or per-round wait times, which are fixed
// constants in pkg/traceroute and pkg/mtu, nor the bind address, which is
// Config.ListenAddr. It is reloadable at runtime via Loader, distinct from the static Config
// cobra/viper parses once at startup.
type RuntimeConfig struct {
	// MagicKeys maps a magic key to its measuring-time ceiling. A key absent
	// from this table falls back to DefaultMeasuringSeconds, or
	// DemoMeasuringSeconds for the literal key "DEMO" (spec §6).
	MagicKeys map[string]MagicKeyConfig `yaml:"magicKeys" mapstructure:"magicKeys"`

	// TracerouteRounds is how many traceroute rounds run per survey session
	// (spec §4.5, default 3).
	TracerouteRounds int `yaml:"tracerouteRounds" mapstructure:"tracerouteRounds"`
	// MtuRounds is how many MTU-orchestrator rounds run per survey session
	// (spec §4.6, default 9 — one per rung of the size ladder).
	MtuRounds int `yaml:"mtuRounds" mapstructure:"mtuRounds"`
}

// Empty reports whether no runtime configuration has been loaded yet,
// mirroring the teacher's runtime.Config.Empty used to skip reconciliation
// before the first successful load.
func (c RuntimeConfig) Empty() bool {
	return len(c.MagicKeys) == 0 && c.TracerouteRounds == 0 && c.MtuRounds == 0
}

// DurationForMagicKey resolves magicKey against the loaded table, falling
// back to the built-in defaults spec §6 names for an unknown or empty key.
func (c RuntimeConfig) DurationForMagicKey(magicKey string) time.Duration {
	if mk, ok := c.MagicKeys[magicKey]; ok && mk.MaxMeasuringSeconds > 0 {
		return time.Duration(mk.MaxMeasuringSeconds) * time.Second
	}
	if magicKey == DemoMagicKey {
		return DemoMeasuringSeconds * time.Second
	}
	return DefaultMeasuringSeconds * time.Second
}

// Config is the static startup configuration, parsed once by cmd/ from
// viper-bound flags and/or a config file.
type Config struct {
	// ListenAddr is the shared UDP socket's bind address (spec §6).
	ListenAddr string `yaml:"listenAddr" mapstructure:"listenAddr"`
	// AdminAddr is the admin/metrics HTTP surface's listen address.
	AdminAddr string `yaml:"adminAddr" mapstructure:"adminAddr"`
	// ICEServers lists STUN/TURN URLs offered to every peer connection.
	ICEServers []string `yaml:"iceServers" mapstructure:"iceServers"`
	// Loader configures how RuntimeConfig is (re)loaded.
	Loader LoaderConfig `yaml:"loader" mapstructure:"loader"`
}

// LoaderConfig is the configuration for the runtime-config loader.
type LoaderConfig struct {
	Type     string           `yaml:"type" mapstructure:"type"`
	Interval time.Duration    `yaml:"interval" mapstructure:"interval"`
	Http     HttpLoaderConfig `yaml:"http" mapstructure:"http"`
	File     FileLoaderConfig `yaml:"file" mapstructure:"file"`
}

// HttpLoaderConfig is the configuration for the http loader.
type HttpLoaderConfig struct {
	Url      string             `yaml:"url" mapstructure:"url"`
	Token    string             `yaml:"token" mapstructure:"token"`
	Timeout  time.Duration      `yaml:"timeout" mapstructure:"timeout"`
	RetryCfg helper.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// FileLoaderConfig is the configuration for the file loader.
type FileLoaderConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}
