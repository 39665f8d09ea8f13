package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/counterctl/internal/counter"
	"github.com/danmuck/counterctl/internal/host"
	"github.com/danmuck/counterctl/internal/slot"
	"github.com/danmuck/counterctl/internal/transport"
	"github.com/rs/zerolog"
)

type result struct {
	SlotID    string
	Operation string
	Previous  uint32
	Counter   uint32
}

func (r result) String() string {
	return fmt.Sprintf("%s %s: %d -> %d", r.SlotID, r.Operation, r.Previous, r.Counter)
}

// backend is either a counterd connection or a local file store.
type backend interface {
	Invoke(ctx context.Context, slotID string, instr []byte) (result, error)
	Get(ctx context.Context, slotID string) (uint32, error)
	Close() error
}

func openBackend(ctx context.Context, opts *options) (backend, error) {
	if dir := strings.TrimSpace(opts.dir); dir != "" {
		local, err := openLocal(dir, opts.policy, opts.logger)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	cfg := transport.DefaultClientConfig()
	cfg.Address = opts.addr
	cfg.Logger = &opts.logger
	c, err := transport.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &remoteBackend{client: c}, nil
}

type remoteBackend struct {
	client *transport.Client
}

func (b *remoteBackend) Invoke(ctx context.Context, slotID string, instr []byte) (result, error) {
	res, err := b.client.Invoke(ctx, slotID, instr)
	if err != nil {
		return result{}, err
	}
	return result{SlotID: res.SlotID, Operation: res.Operation, Previous: res.Previous, Counter: res.Counter}, nil
}

func (b *remoteBackend) Get(ctx context.Context, slotID string) (uint32, error) {
	res, err := b.client.Query(ctx, slotID)
	if err != nil {
		return 0, err
	}
	return res.Counter, nil
}

func (b *remoteBackend) Close() error {
	return b.client.Close()
}

type localBackend struct {
	runtime *host.Runtime
}

func openLocal(dir, policy string, logger zerolog.Logger) (*localBackend, error) {
	p, err := counter.ParseOverflowPolicy(policy)
	if err != nil {
		return nil, err
	}
	store, err := slot.NewFileStore(dir, 0)
	if err != nil {
		return nil, err
	}
	cfg := host.DefaultConfig()
	cfg.NodeID = "counterctl.local"
	cfg.Engine.Policy = p
	rt, err := host.NewRuntime(store, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &localBackend{runtime: rt}, nil
}

func (b *localBackend) Invoke(ctx context.Context, slotID string, instr []byte) (result, error) {
	res, err := b.runtime.Invoke(ctx, slotID, instr)
	if err != nil {
		return result{}, err
	}
	return result{SlotID: res.SlotID, Operation: res.Operation.String(), Previous: res.Previous, Counter: res.Counter}, nil
}

func (b *localBackend) Get(_ context.Context, slotID string) (uint32, error) {
	rec, err := b.runtime.Snapshot(slotID)
	if err != nil {
		return 0, err
	}
	return rec.Counter, nil
}

func (b *localBackend) Close() error {
	return nil
}
