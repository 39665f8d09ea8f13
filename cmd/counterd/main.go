package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/counterctl/internal/config"
	"github.com/danmuck/counterctl/internal/host"
	"github.com/danmuck/counterctl/internal/observability"
	"github.com/danmuck/counterctl/internal/server"
	"github.com/danmuck/counterctl/internal/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "counterd",
	Short:         "counterd serves counter slots over the framed transport and HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		logger := observability.InitLogger("counterd")
		return run(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to counterd TOML config (defaults apply when empty)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "counterd: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.DefaultConfig(), nil
	}
	return config.Load(path)
}

// run blocks until ctx is done or either listener fails.
func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	store, err := cfg.OpenStore()
	if err != nil {
		return err
	}
	rtCfg, err := cfg.RuntimeConfig()
	if err != nil {
		return err
	}
	rt, err := host.NewRuntime(store, rtCfg, logger)
	if err != nil {
		return err
	}
	logger.Info().
		Str("node", rt.NodeID()).
		Str("store", cfg.Store.Kind).
		Str("overflow_policy", string(rtCfg.Engine.Policy)).
		Msg("counterd starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	running := 0
	if addr := strings.TrimSpace(cfg.ListenAddr); addr != "" {
		tcfg, err := cfg.TransportConfig()
		if err != nil {
			return err
		}
		svc, err := transport.NewService(rt, tcfg, logger)
		if err != nil {
			return err
		}
		running++
		go func() { errCh <- svc.ListenAndServe(ctx) }()
	}
	if addr := strings.TrimSpace(cfg.HTTPAddr); addr != "" {
		api := server.New(rt, cfg.HTTPConfig(), logger)
		running++
		go func() { errCh <- api.ListenAndServe(ctx) }()
	}

	var firstErr error
	for i := 0; i < running; i++ {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
			cancel()
		}
	}
	logger.Info().Msg("counterd stopped")
	return firstErr
}
