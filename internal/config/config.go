// Package config loads the typed Config value spec.md §6 describes as an
// external collaborator of the protocol core: local speaker identity,
// listener address, and the configured neighbor list.
package config

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/elauriault/ubgpd-sub000/internal/nlri"
	"github.com/elauriault/ubgpd-sub000/network"
)

// AddressFamily is the YAML/env representation of an (afi, safi) pair.
type AddressFamily struct {
	AFI  uint16 `koanf:"afi"`
	SAFI uint8  `koanf:"safi"`
}

// AF converts the configured pair into the typed value the core operates on.
func (f AddressFamily) AF() nlri.AF {
	return nlri.AF{AFI: nlri.AFI(f.AFI), SAFI: nlri.SAFI(f.SAFI)}
}

// NeighborConfig is one entry under the top-level "neighbors" list.
type NeighborConfig struct {
	ASN          uint16          `koanf:"asn"`
	IP           string          `koanf:"ip"`
	Port         uint16          `koanf:"port"`
	HoldTime     uint16          `koanf:"hold_time"`
	ConnectRetry uint16          `koanf:"connect_retry"`
	Families     []AddressFamily `koanf:"families"`
}

// Config is the speaker's complete startup configuration (spec.md §6).
type Config struct {
	ASN       uint16           `koanf:"asn"`
	RouterID  string           `koanf:"rid"`
	LocalIP   string           `koanf:"localip"`
	Port      uint16           `koanf:"port"`
	HoldTime  uint16           `koanf:"hold_time"`
	Families  []AddressFamily  `koanf:"families"`
	Neighbors []NeighborConfig `koanf:"neighbors"`

	LogLevel   string `koanf:"log_level"`
	HTTPListen string `koanf:"http_listen"`
}

// envPrefix namespaces the environment-variable overlay, e.g.
// KBGPD_LOCALIP overrides "localip", KBGPD_NEIGHBORS__0__ASN is not
// supported (lists are YAML-only); scalar top-level fields are.
const envPrefix = "KBGPD_"

// Load applies defaults, then overlays path's YAML content (if path is
// non-empty), then environment variables prefixed KBGPD_, then validates
// the result. This is the external loader spec.md §6 names; the protocol
// core never parses configuration itself.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{
		LocalIP:    "127.0.0.1",
		Port:       179,
		HoldTime:   3,
		Families:   []AddressFamily{{AFI: uint16(nlri.AFIIPv4), SAFI: uint8(nlri.SAFIUnicast)}},
		LogLevel:   "info",
		HTTPListen: ":8080",
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if cfg.RouterID == "" {
		// spec.md §9 "Builder/defaults": the core refuses missing required
		// fields, but router-id has a well-known operational fallback --
		// pick the first globally routable IPv4 address on the host, the
		// way the teacher's network.FindBGPIdentifier does.
		if id, err := network.FindBGPIdentifier(); err == nil {
			cfg.RouterID = network.Uint32ToIP(id).String()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces spec.md §6 and §9's "refuses missing required fields at
// startup".
func (c *Config) Validate() error {
	if c.ASN == 0 {
		return fmt.Errorf("config: asn is required")
	}
	if c.RouterID == "" {
		return fmt.Errorf("config: rid is required (and no host address could be auto-detected)")
	}
	if addr, err := netip.ParseAddr(c.RouterID); err != nil || !addr.Is4() {
		return fmt.Errorf("config: rid %q is not a valid IPv4 address", c.RouterID)
	}
	if _, err := netip.ParseAddr(c.LocalIP); err != nil {
		return fmt.Errorf("config: localip %q is not a valid IP address: %w", c.LocalIP, err)
	}
	if len(c.Families) == 0 {
		return fmt.Errorf("config: families must not be empty")
	}
	for _, f := range c.Families {
		if !f.AF().Supported() {
			return fmt.Errorf("config: unsupported address family %s", f.AF())
		}
	}
	seen := map[string]bool{}
	for i, n := range c.Neighbors {
		if n.ASN == 0 {
			return fmt.Errorf("config: neighbors[%d].asn is required", i)
		}
		if _, err := netip.ParseAddr(n.IP); err != nil {
			return fmt.Errorf("config: neighbors[%d].ip %q is invalid: %w", i, n.IP, err)
		}
		if seen[n.IP] {
			return fmt.Errorf("config: neighbors[%d].ip %q is configured more than once", i, n.IP)
		}
		seen[n.IP] = true
		for _, f := range n.Families {
			if !f.AF().Supported() {
				return fmt.Errorf("config: neighbors[%d]: unsupported address family %s", i, f.AF())
			}
		}
	}
	return nil
}
