// Package host owns invocation of the counter engine against slot storage.
//
// Ownership boundary:
// - slot selection and optional allocation
// - borrowing slot storage for exactly one engine invocation
// - invocation logging and metrics
//
// The engine itself never sees slot ids and never retains storage.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/counterctl/internal/counter"
	"github.com/danmuck/counterctl/internal/instruction"
	"github.com/danmuck/counterctl/internal/observability"
	"github.com/danmuck/counterctl/internal/slot"
	"github.com/rs/zerolog"
)

// Config selects runtime behavior.
type Config struct {
	NodeID       string
	AutoAllocate bool
	Engine       counter.Engine
}

// DefaultConfig returns wrap-policy defaults with auto allocation enabled.
func DefaultConfig() Config {
	return Config{
		NodeID:       "counterd.local",
		AutoAllocate: true,
		Engine:       counter.NewEngine(),
	}
}

// Result is the committed outcome of one invocation.
type Result struct {
	SlotID    string
	Operation instruction.Operation
	Previous  uint32
	Counter   uint32
}

// Runtime binds a Store to a counter Engine.
type Runtime struct {
	cfg    Config
	store  slot.Store
	logger zerolog.Logger
}

// NewRuntime wires store and engine.
func NewRuntime(store slot.Store, cfg Config, logger zerolog.Logger) (*Runtime, error) {
	if store == nil {
		return nil, errors.New("host: store is nil")
	}
	if cfg.NodeID == "" {
		cfg.NodeID = DefaultConfig().NodeID
	}
	return &Runtime{
		cfg:    cfg,
		store:  store,
		logger: observability.Component(logger, "host"),
	}, nil
}

// NodeID returns the metrics/log identity of this runtime.
func (r *Runtime) NodeID() string {
	return r.cfg.NodeID
}

// Invoke runs one instruction against slotID. The slot buffer is borrowed
// only for the duration of the engine call and is committed only when the
// engine succeeds.
func (r *Runtime) Invoke(ctx context.Context, slotID string, instr []byte) (Result, error) {
	start := time.Now()
	if r.cfg.AutoAllocate {
		if err := r.store.Allocate(slotID); err != nil {
			r.observe(slotID, instr, Result{}, err, start)
			return Result{}, err
		}
	}

	var tr counter.Transition
	err := r.store.Update(ctx, slotID, func(data []byte) error {
		var err error
		tr, err = r.cfg.Engine.Process(instr, data)
		return err
	})
	if err != nil {
		r.observe(slotID, instr, Result{}, err, start)
		return Result{}, err
	}

	res := Result{
		SlotID:    slotID,
		Operation: tr.Operation,
		Previous:  tr.Previous.Counter,
		Counter:   tr.Next.Counter,
	}
	r.observe(slotID, instr, res, nil, start)
	return res, nil
}

// Apply encodes op and invokes it.
func (r *Runtime) Apply(ctx context.Context, slotID string, op instruction.Operation) (Result, error) {
	return r.Invoke(ctx, slotID, instruction.Encode(op))
}

// Allocate creates slotID if missing.
func (r *Runtime) Allocate(slotID string) error {
	if err := r.store.Allocate(slotID); err != nil {
		return err
	}
	r.logger.Debug().Str("slot", slotID).Msg("slot allocated")
	return nil
}

// Snapshot decodes the current record of slotID.
func (r *Runtime) Snapshot(slotID string) (counter.Record, error) {
	data, err := r.store.Read(slotID)
	if err != nil {
		return counter.Record{}, err
	}
	return counter.DecodeRecord(data)
}

// Slots lists known slot ids.
func (r *Runtime) Slots() ([]string, error) {
	return r.store.List()
}

func (r *Runtime) observe(slotID string, instr []byte, res Result, err error, start time.Time) {
	elapsed := time.Since(start)
	opLabel := operationLabel(instr)
	if err != nil {
		observability.RecordInvocation(r.cfg.NodeID, opLabel, Kind(err), elapsed)
		r.logger.Warn().
			Str("slot", slotID).
			Str("operation", opLabel).
			Str("kind", Kind(err)).
			Dur("duration", elapsed).
			Err(err).
			Msg("invocation rejected")
		return
	}
	observability.RecordInvocation(r.cfg.NodeID, opLabel, "ok", elapsed)
	r.logger.Info().
		Str("slot", slotID).
		Str("operation", res.Operation.String()).
		Uint32("previous", res.Previous).
		Uint32("counter", res.Counter).
		Dur("duration", elapsed).
		Msg("invocation applied")
}

// operationLabel names the tag without decoding the payload so rejected
// instructions are still attributed.
func operationLabel(instr []byte) string {
	if len(instr) == 0 {
		return "empty"
	}
	tag := instruction.Tag(instr[0])
	if !tag.Known() {
		return "unknown"
	}
	return tag.String()
}
