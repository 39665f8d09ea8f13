package config

import (
	"github.com/danmuck/counterctl/internal/counter"
	"github.com/danmuck/counterctl/internal/host"
	"github.com/danmuck/counterctl/internal/protocol/session"
	"github.com/danmuck/counterctl/internal/server"
	"github.com/danmuck/counterctl/internal/slot"
	"github.com/danmuck/counterctl/internal/transport"
)

// RuntimeConfig builds the host runtime configuration.
func (c Config) RuntimeConfig() (host.Config, error) {
	policy, err := counter.ParseOverflowPolicy(c.Engine.OverflowPolicy)
	if err != nil {
		return host.Config{}, err
	}
	return host.Config{
		NodeID:       c.NodeID,
		AutoAllocate: c.Engine.AutoAllocate,
		Engine: counter.Engine{
			Policy:       policy,
			StrictDecode: c.Engine.StrictDecode,
		},
	}, nil
}

// SessionConfig builds transport timeouts; unset values take session
// defaults.
func (c Config) SessionConfig() (session.Config, error) {
	var out session.Config
	var err error
	if out.ConnectTimeout, err = parseDuration("session.connect_timeout", c.Session.ConnectTimeout); err != nil {
		return session.Config{}, err
	}
	if out.ReadTimeout, err = parseDuration("session.read_timeout", c.Session.ReadTimeout); err != nil {
		return session.Config{}, err
	}
	if out.WriteTimeout, err = parseDuration("session.write_timeout", c.Session.WriteTimeout); err != nil {
		return session.Config{}, err
	}
	if out.IdleTimeout, err = parseDuration("session.idle_timeout", c.Session.IdleTimeout); err != nil {
		return session.Config{}, err
	}
	out.MaxConnectAttempts = c.Session.MaxConnectAttempts
	return out.WithDefaults(), nil
}

func (c Config) TransportConfig() (transport.ServiceConfig, error) {
	sess, err := c.SessionConfig()
	if err != nil {
		return transport.ServiceConfig{}, err
	}
	return transport.ServiceConfig{ListenAddr: c.ListenAddr, Session: sess}, nil
}

func (c Config) HTTPConfig() server.Config {
	return server.Config{Addr: c.HTTPAddr, CORSOrigins: c.CORSOrigins}
}

// OpenStore opens the configured slot store.
func (c Config) OpenStore() (slot.Store, error) {
	if c.Store.Kind == StoreFile {
		fs, err := slot.NewFileStore(c.Store.Dir, c.Store.SlotSize)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
	ms, err := slot.NewMemoryStore(c.Store.SlotSize)
	if err != nil {
		return nil, err
	}
	return ms, nil
}
