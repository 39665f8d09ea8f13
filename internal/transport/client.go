package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/danmuck/counterctl/internal/host"
	"github.com/danmuck/counterctl/internal/instruction"
	"github.com/danmuck/counterctl/internal/protocol/frame"
	"github.com/danmuck/counterctl/internal/protocol/schema"
	"github.com/danmuck/counterctl/internal/protocol/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("transport: address required")
	ErrClientClosed    = errors.New("transport: client closed")
	ErrMessageMismatch = errors.New("transport: response message_id mismatch")
)

// RemoteError is a Failure frame returned by counterd.
type RemoteError struct {
	Code    uint32
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("counterd: code=%d: %s", e.Code, e.Message)
}

// Unwrap exposes the local sentinel for the code so callers can match with
// errors.Is across the wire.
func (e *RemoteError) Unwrap() error {
	return host.ErrorForCode(e.Code)
}

type ClientConfig struct {
	Address string
	Session session.Config
	// Logger defaults to the global zerolog logger when nil.
	Logger *zerolog.Logger
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Address: DefaultServiceConfig().ListenAddr,
		Session: session.DefaultConfig(),
	}
}

// Client holds one connection to counterd. Requests are serialized. A
// request that fails mid-exchange drops the connection and the next request
// dials a fresh one.
type Client struct {
	cfg    ClientConfig
	logger zerolog.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	closed bool

	nextMessageID atomic.Uint64
}

// Dial connects to counterd, retrying with backoff up to
// Session.MaxConnectAttempts.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, ErrAddressRequired
	}
	cfg.Session = cfg.Session.WithDefaults()
	base := log.Logger
	if cfg.Logger != nil {
		base = *cfg.Logger
	}
	c := &Client{
		cfg:    cfg,
		logger: base.With().Str("component", "transport.client").Logger(),
	}
	c.nextMessageID.Store(uint64(time.Now().UnixNano()))
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	var (
		conn    net.Conn
		attempt int
	)
	op := func() error {
		attempt++
		dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
		var err error
		conn, err = dialer.DialContext(ctx, "tcp", c.cfg.Address)
		return err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn().Int("attempt", attempt).Str("addr", c.cfg.Address).Dur("retry_in", next).Err(err).Msg("dial")
	}
	// WithMaxRetries treats zero as unbounded, so a single attempt stops outright.
	var schedule backoff.BackOff = &backoff.StopBackOff{}
	if retries := c.cfg.Session.MaxConnectAttempts - 1; retries > 0 {
		schedule = backoff.WithMaxRetries(session.NewBackOff(c.cfg.Session.Backoff), uint64(retries))
	}
	b := backoff.WithContext(schedule, ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		c.logger.Warn().Int("attempts", attempt).Str("addr", c.cfg.Address).Err(err).Msg("dial failed")
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// dropConn discards a connection whose stream position is no longer known.
func (c *Client) dropConn() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.reader = nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Invoke sends raw instruction bytes for slotID.
func (c *Client) Invoke(ctx context.Context, slotID string, instr []byte) (session.Result, error) {
	id := c.nextMessageID.Add(1)
	raw, err := session.EncodeInvokeFrame(id, session.Invoke{SlotID: slotID, Instruction: instr})
	if err != nil {
		return session.Result{}, err
	}
	return c.roundTrip(ctx, id, raw)
}

// Apply encodes op and invokes it.
func (c *Client) Apply(ctx context.Context, slotID string, op instruction.Operation) (session.Result, error) {
	return c.Invoke(ctx, slotID, instruction.Encode(op))
}

// Query reads the current counter of slotID. Previous equals Counter.
func (c *Client) Query(ctx context.Context, slotID string) (session.Result, error) {
	id := c.nextMessageID.Add(1)
	raw, err := session.EncodeQueryFrame(id, session.Query{SlotID: slotID})
	if err != nil {
		return session.Result{}, err
	}
	return c.roundTrip(ctx, id, raw)
}

func (c *Client) roundTrip(ctx context.Context, id uint64, raw []byte) (session.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return session.Result{}, ErrClientClosed
	}
	if c.conn == nil {
		if err := c.connect(ctx); err != nil {
			return session.Result{}, err
		}
	}

	writeDeadline := time.Now().Add(c.cfg.Session.WriteTimeout)
	readDeadline := time.Now().Add(c.cfg.Session.ReadTimeout)
	if dl, ok := ctx.Deadline(); ok {
		if dl.Before(writeDeadline) {
			writeDeadline = dl
		}
		if dl.Before(readDeadline) {
			readDeadline = dl
		}
	}

	_ = c.conn.SetWriteDeadline(writeDeadline)
	if _, err := c.conn.Write(raw); err != nil {
		c.dropConn()
		return session.Result{}, err
	}
	_ = c.conn.SetReadDeadline(readDeadline)
	fr, err := frame.ReadFrame(c.reader, frame.DefaultLimits())
	if err != nil {
		c.dropConn()
		return session.Result{}, err
	}
	if fr.Header.MessageID != id {
		c.dropConn()
		return session.Result{}, fmt.Errorf("%w: got=%d want=%d", ErrMessageMismatch, fr.Header.MessageID, id)
	}

	switch fr.Header.MessageType {
	case schema.MsgResult:
		return session.DecodeResultFrame(fr)
	case schema.MsgError:
		failure, err := session.DecodeFailureFrame(fr)
		if err != nil {
			return session.Result{}, err
		}
		c.logger.Debug().Uint32("code", failure.Code).Str("message", failure.Message).Msg("remote failure")
		return session.Result{}, &RemoteError{Code: failure.Code, Message: failure.Message}
	default:
		return session.Result{}, fmt.Errorf("transport: unexpected message_type=%d", fr.Header.MessageType)
	}
}
