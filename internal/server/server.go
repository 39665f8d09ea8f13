// Package server exposes the counter runtime over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/counterctl/internal/counter"
	"github.com/danmuck/counterctl/internal/host"
	"github.com/danmuck/counterctl/internal/instruction"
	"github.com/danmuck/counterctl/internal/observability"
	"github.com/danmuck/counterctl/internal/slot"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const version = "0.1.0"

// maxInstructionBytes bounds raw instruction bodies. Larger bodies are
// refused with 413 before decoding.
const maxInstructionBytes = 1024

type Config struct {
	Addr        string
	CORSOrigins []string
}

// API serves slot reads and instruction invocations.
type API struct {
	cfg      Config
	runtime  *host.Runtime
	logger   zerolog.Logger
	router   *gin.Engine
	appeared time.Time
}

func New(rt *host.Runtime, cfg Config, logger zerolog.Logger) *API {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.Component(logger, "http")))
	r.Use(observability.RequestMetricsMiddleware(rt.NodeID()))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &API{
		cfg:      cfg,
		runtime:  rt,
		logger:   observability.Component(logger, "http"),
		router:   r,
		appeared: time.Now(),
	}
	a.registerRoutes()
	return a
}

func (a *API) Handler() http.Handler {
	return a.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (a *API) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.cfg.Addr).Msg("http listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (a *API) registerRoutes() {
	r := a.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.appeared).String(),
			"service": a.runtime.NodeID(),
			"version": version,
		})
	})
	r.GET("/ready", func(c *gin.Context) {
		_, err := a.runtime.Slots()
		c.JSON(statusOrOK(err), gin.H{
			"ready":   err == nil,
			"uptime":  time.Since(a.appeared).String(),
			"service": a.runtime.NodeID(),
			"version": version,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/slots", a.listSlots)
	r.POST("/slots/:id", a.allocateSlot)
	r.GET("/slots/:id", a.readSlot)
	r.POST("/slots/:id/instructions", a.invokeRaw)
	r.POST("/slots/:id/ops/:op", a.invokeNamed)
}

type slotResponse struct {
	Slot    string `json:"slot"`
	Counter uint32 `json:"counter"`
}

type resultResponse struct {
	Slot      string `json:"slot"`
	Operation string `json:"operation"`
	Previous  uint32 `json:"previous"`
	Counter   uint32 `json:"counter"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	Code  uint32 `json:"code"`
}

func (a *API) listSlots(c *gin.Context) {
	ids, err := a.runtime.Slots()
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": ids})
}

func (a *API) allocateSlot(c *gin.Context) {
	id := c.Param("id")
	if err := a.runtime.Allocate(id); err != nil {
		a.fail(c, err)
		return
	}
	rec, err := a.runtime.Snapshot(id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, slotResponse{Slot: id, Counter: rec.Counter})
}

func (a *API) readSlot(c *gin.Context) {
	id := c.Param("id")
	rec, err := a.runtime.Snapshot(id)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slotResponse{Slot: id, Counter: rec.Counter})
}

func (a *API) invokeRaw(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInstructionBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}
	if len(body) > maxInstructionBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("instruction body exceeds %d bytes", maxInstructionBytes),
			Kind:  "request_too_large",
		})
		return
	}
	a.invoke(c, body)
}

func (a *API) invokeNamed(c *gin.Context) {
	op, err := instruction.Parse(c.Param("op"), c.Query("amount"))
	if err != nil {
		a.fail(c, err)
		return
	}
	a.invoke(c, instruction.Encode(op))
}

func (a *API) invoke(c *gin.Context, instr []byte) {
	res, err := a.runtime.Invoke(c.Request.Context(), c.Param("id"), instr)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resultResponse{
		Slot:      res.SlotID,
		Operation: res.Operation.String(),
		Previous:  res.Previous,
		Counter:   res.Counter,
	})
}

func (a *API) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(StatusFor(err), errorResponse{
		Error: err.Error(),
		Kind:  host.Kind(err),
		Code:  host.Code(err),
	})
}

// StatusFor maps runtime errors onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, slot.ErrSlotNotFound):
		return http.StatusNotFound
	case errors.Is(err, instruction.ErrMalformedInstruction),
		errors.Is(err, host.ErrMalformedRequest),
		errors.Is(err, instruction.ErrUnknownInstructionTag),
		errors.Is(err, counter.ErrArithmeticOverflow),
		errors.Is(err, slot.ErrInvalidSlotID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func statusOrOK(err error) int {
	if err != nil {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
