package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"toolbridge/pkg/channels"
	"toolbridge/pkg/config"
	"toolbridge/pkg/gateway"
	"toolbridge/pkg/handler"
	"toolbridge/pkg/invoker"
	"toolbridge/pkg/monitor"

	"github.com/spf13/cobra"
)

// loadSystem reads system.json and configures logging from it.
func loadSystem() *config.SystemConfig {
	sys := config.LoadSystemConfig(systemConfigPath)
	level := sys.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	monitor.SetupSlog(level)
	return sys
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge with the channels configured in system.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys := loadSystem()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store := config.NewStore(toolsConfigPath)
			inv := invoker.New(sys)
			defer inv.Close()

			store.Watch(ctx, nil)

			builder := gateway.NewGatewayBuilder().
				WithMonitor(monitor.NewCLIMonitor()).
				WithHandler(handler.NewBridgeHandler(store, inv, sys))
			if channels.LoadFromConfig(builder, sys.Channels, sys) == 0 {
				return fmt.Errorf("no channels configured in %s", systemConfigPath)
			}

			gw, err := builder.Build()
			if err != nil {
				return fmt.Errorf("failed to build gateway: %w", err)
			}

			if _, err := store.Current(); err != nil {
				slog.Warn("Tools config not loaded yet, requests will fail until it exists", "file", toolsConfigPath, "error", err)
			}

			<-ctx.Done()
			slog.Info("Received shutdown signal. Stopping services...")
			gw.StopAll()
			return nil
		},
	}
}
