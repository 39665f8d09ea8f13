// Package transport serves the counter runtime over the framed binary
// protocol and provides the matching client.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/counterctl/internal/host"
	"github.com/danmuck/counterctl/internal/observability"
	"github.com/danmuck/counterctl/internal/protocol/frame"
	"github.com/danmuck/counterctl/internal/protocol/schema"
	"github.com/danmuck/counterctl/internal/protocol/session"
	"github.com/rs/zerolog"
)

// ServiceConfig configures the framed transport endpoint.
type ServiceConfig struct {
	ListenAddr string
	Session    session.Config
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddr: "127.0.0.1:7400",
		Session:    session.DefaultConfig(),
	}
}

// Service accepts framed connections and dispatches requests to a Runtime.
type Service struct {
	cfg     ServiceConfig
	runtime *host.Runtime
	logger  zerolog.Logger

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	closed  bool
	wg      sync.WaitGroup

	clientCount atomic.Int64
}

func NewService(rt *host.Runtime, cfg ServiceConfig, logger zerolog.Logger) (*Service, error) {
	if rt == nil {
		return nil, errors.New("transport: runtime is nil")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultServiceConfig().ListenAddr
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		cfg:     cfg,
		runtime: rt,
		logger:  observability.Component(logger, "transport"),
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// ListenAndServe listens on the configured address and blocks until ctx is
// done.
func (s *Service) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("transport listening")
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. On ctx cancel the listener and all
// tracked connections are closed and Serve returns nil once handlers exit.
// Any other accept error shuts down the same way and is returned.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	stop := make(chan struct{})
	shutdown := make(chan struct{})
	go func() {
		defer close(shutdown)
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = ln.Close()
		s.closeAllConns()
	}()
	defer func() {
		close(stop)
		<-shutdown
		s.wg.Wait()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.trackConn(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Service) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.untrackConn(conn)

	remote := conn.RemoteAddr().String()
	active := s.clientCount.Add(1)
	s.logger.Debug().Str("remote", remote).Int64("active_clients", active).Msg("client connected")
	defer func() {
		remaining := s.clientCount.Add(-1)
		s.logger.Debug().Str("remote", remote).Int64("active_clients", remaining).Msg("client disconnected")
	}()

	reader := bufio.NewReader(conn)
	node := s.runtime.NodeID()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.Session.IdleTimeout))
		fr, err := frame.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			if !isClosed(err) {
				s.logger.Warn().Str("remote", remote).Err(err).Msg("read frame")
			}
			return
		}
		observability.RecordFrame(node, "in", fr.Header.MessageType)

		resp, err := s.dispatch(fr)
		if err != nil {
			s.logger.Warn().Str("remote", remote).Err(err).Msg("encode response")
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Session.WriteTimeout))
		if _, err := conn.Write(resp); err != nil {
			s.logger.Warn().Str("remote", remote).Err(err).Msg("write response")
			return
		}
		observability.RecordFrame(node, "out", responseType(resp))
	}
}

// dispatch answers exactly one request frame. Request decode failures and
// runtime errors become Failure frames so the connection stays usable.
func (s *Service) dispatch(fr frame.Frame) ([]byte, error) {
	id := fr.Header.MessageID
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Session.ReadTimeout)
	defer cancel()

	switch fr.Header.MessageType {
	case schema.MsgInvoke:
		req, err := session.DecodeInvokeFrame(fr)
		if err != nil {
			err = fmt.Errorf("%w: %v", host.ErrMalformedRequest, err)
			return failure(id, host.Code(err), err)
		}
		res, err := s.runtime.Invoke(ctx, req.SlotID, req.Instruction)
		if err != nil {
			return failure(id, host.Code(err), err)
		}
		return session.EncodeResultFrame(id, session.Result{
			SlotID:    res.SlotID,
			Previous:  res.Previous,
			Counter:   res.Counter,
			Operation: res.Operation.String(),
		})
	case schema.MsgQuery:
		req, err := session.DecodeQueryFrame(fr)
		if err != nil {
			err = fmt.Errorf("%w: %v", host.ErrMalformedRequest, err)
			return failure(id, host.Code(err), err)
		}
		rec, err := s.runtime.Snapshot(req.SlotID)
		if err != nil {
			return failure(id, host.Code(err), err)
		}
		return session.EncodeResultFrame(id, session.Result{
			SlotID:   req.SlotID,
			Previous: rec.Counter,
			Counter:  rec.Counter,
		})
	default:
		return failure(id, host.CodeInternal, fmt.Errorf("unsupported message_type=%d", fr.Header.MessageType))
	}
}

func failure(messageID uint64, code uint32, err error) ([]byte, error) {
	return session.EncodeFailureFrame(messageID, session.Failure{Code: code, Message: err.Error()})
}

func responseType(raw []byte) uint32 {
	h, err := frame.DecodeHeader(raw[:frame.FixedHeaderLen])
	if err != nil {
		return 0
	}
	return h.MessageType
}

func isClosed(err error) bool {
	var netErr net.Error
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		(errors.As(err, &netErr) && netErr.Timeout())
}

func (s *Service) trackConn(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Service) untrackConn(conn net.Conn) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	delete(s.conns, conn)
}

func (s *Service) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
}
