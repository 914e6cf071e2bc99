// Command bridge is the printer connectivity core's standalone entry point:
// a discovery mode and a serve mode that opens configured printers and
// optionally starts their proxies. Generalizes the teacher's flag-based
// main.go (a --discover bool flag, --config path) into spf13/cobra
// subcommands, since a non-trivial CLI with a discover+serve split is
// exactly cobra's sweet spot.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/elegoo-bridge/core/config"
	"github.com/elegoo-bridge/core/discovery"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "bridge",
		Short: "Elegoo printer connectivity bridge",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to configuration file")

	root.AddCommand(discoverCmd())
	root.AddCommand(serveCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func discoverCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover printers on the local network and print their identities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			identities, err := discovery.Discover(ctx, timeout)
			if err != nil {
				return fmt.Errorf("discovery: %w", err)
			}

			for _, id := range identities {
				fmt.Println(id.String())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "discovery window")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open every configured printer and serve its proxy, if enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			logger := newLogger(cfg.LogLevel)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fleet, err := openFleet(ctx, cfg)
			if err != nil {
				return err
			}
			defer fleet.Close()

			logger.Info("bridge serving", "devices", len(cfg.Devices), "addr", cfg.ListenAddr())
			<-ctx.Done()
			logger.Info("shutting down")
			return nil
		},
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
