// Package config loads and renders counterd configuration files.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/counterctl/internal/counter"
	"github.com/danmuck/counterctl/internal/slot"
)

const (
	StoreMemory = "memory"
	StoreFile   = "file"
)

// Config is the counterd file configuration. Durations are Go duration
// strings.
type Config struct {
	NodeID      string        `toml:"node_id"`
	ListenAddr  string        `toml:"listen_addr"`
	HTTPAddr    string        `toml:"http_addr"`
	CORSOrigins []string      `toml:"cors_origins"`
	Store       StoreConfig   `toml:"store"`
	Engine      EngineConfig  `toml:"engine"`
	Session     SessionConfig `toml:"session"`
}

type StoreConfig struct {
	Kind     string `toml:"kind"`
	Dir      string `toml:"dir"`
	SlotSize int    `toml:"slot_size"`
}

type EngineConfig struct {
	OverflowPolicy string `toml:"overflow_policy"`
	StrictDecode   bool   `toml:"strict_decode"`
	AutoAllocate   bool   `toml:"auto_allocate"`
}

type SessionConfig struct {
	ConnectTimeout     string `toml:"connect_timeout"`
	ReadTimeout        string `toml:"read_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	IdleTimeout        string `toml:"idle_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

func DefaultConfig() Config {
	return Config{
		NodeID:      "counterd.local",
		ListenAddr:  "127.0.0.1:7400",
		HTTPAddr:    "127.0.0.1:7401",
		CORSOrigins: []string{"http://localhost:3000"},
		Store: StoreConfig{
			Kind:     StoreMemory,
			Dir:      "local/slots",
			SlotSize: counter.RecordSize,
		},
		Engine: EngineConfig{
			OverflowPolicy: string(counter.PolicyWrap),
			StrictDecode:   false,
			AutoAllocate:   true,
		},
		Session: SessionConfig{
			ConnectTimeout:     "5s",
			ReadTimeout:        "15s",
			WriteTimeout:       "15s",
			IdleTimeout:        "2m",
			MaxConnectAttempts: 3,
		},
	}
}

// Load reads path and applies every defined key on top of DefaultConfig.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load counterd config: %w", err)
	}

	if meta.IsDefined("node_id") {
		cfg.NodeID = strings.TrimSpace(raw.NodeID)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("http_addr") {
		cfg.HTTPAddr = strings.TrimSpace(raw.HTTPAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}

	if meta.IsDefined("store", "kind") {
		cfg.Store.Kind = strings.ToLower(strings.TrimSpace(raw.Store.Kind))
	}
	if meta.IsDefined("store", "dir") {
		cfg.Store.Dir = strings.TrimSpace(raw.Store.Dir)
	}
	if meta.IsDefined("store", "slot_size") {
		cfg.Store.SlotSize = raw.Store.SlotSize
	}

	if meta.IsDefined("engine", "overflow_policy") {
		cfg.Engine.OverflowPolicy = strings.ToLower(strings.TrimSpace(raw.Engine.OverflowPolicy))
	}
	if meta.IsDefined("engine", "strict_decode") {
		cfg.Engine.StrictDecode = raw.Engine.StrictDecode
	}
	if meta.IsDefined("engine", "auto_allocate") {
		cfg.Engine.AutoAllocate = raw.Engine.AutoAllocate
	}

	if meta.IsDefined("session", "connect_timeout") {
		cfg.Session.ConnectTimeout = strings.TrimSpace(raw.Session.ConnectTimeout)
	}
	if meta.IsDefined("session", "read_timeout") {
		cfg.Session.ReadTimeout = strings.TrimSpace(raw.Session.ReadTimeout)
	}
	if meta.IsDefined("session", "write_timeout") {
		cfg.Session.WriteTimeout = strings.TrimSpace(raw.Session.WriteTimeout)
	}
	if meta.IsDefined("session", "idle_timeout") {
		cfg.Session.IdleTimeout = strings.TrimSpace(raw.Session.IdleTimeout)
	}
	if meta.IsDefined("session", "max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.Session.MaxConnectAttempts
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.NodeID) == "" {
		return fmt.Errorf("config missing node_id")
	}
	if strings.TrimSpace(c.ListenAddr) == "" && strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("config needs listen_addr or http_addr")
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreFile:
		if strings.TrimSpace(c.Store.Dir) == "" {
			return fmt.Errorf("store.dir is required for file store")
		}
	default:
		return fmt.Errorf("unknown store.kind: %q", c.Store.Kind)
	}
	if c.Store.SlotSize != 0 && c.Store.SlotSize < counter.RecordSize {
		return fmt.Errorf("%w: store.slot_size=%d", slot.ErrInvalidSize, c.Store.SlotSize)
	}
	if _, err := counter.ParseOverflowPolicy(c.Engine.OverflowPolicy); err != nil {
		return err
	}
	for _, v := range c.Session.durations() {
		if _, err := parseDuration(v.name, v.raw); err != nil {
			return err
		}
	}
	if c.Session.MaxConnectAttempts < 0 {
		return fmt.Errorf("session.max_connect_attempts must not be negative")
	}
	return nil
}

type namedDuration struct {
	name string
	raw  string
}

// durations lists the session durations in file order.
func (s SessionConfig) durations() []namedDuration {
	return []namedDuration{
		{"session.connect_timeout", s.ConnectTimeout},
		{"session.read_timeout", s.ReadTimeout},
		{"session.write_timeout", s.WriteTimeout},
		{"session.idle_timeout", s.IdleTimeout},
	}
}

// parseDuration treats an empty value as unset.
func parseDuration(name, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}
	return d, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
