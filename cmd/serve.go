package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"portmux/internal/arbiter"
	"portmux/internal/config"
	"portmux/internal/job"
	"portmux/internal/server"
	"portmux/pkg/logging"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portmux service",
	Long: `Starts the background job executor and the HTTP surface: port status,
the interactive console websocket, and job submission. Device profiles,
templates, and macros are loaded from the configuration directories and
reloaded when they change on disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		initLogging(cfg.LogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		manager := config.NewManager(cfg)
		if err := manager.SeedDefaultProfiles(); err != nil {
			logging.Warn("Serve", "Seeding default profiles failed: %v", err)
		}
		if err := manager.LoadAll(); err != nil {
			return err
		}
		if err := manager.Watch(ctx); err != nil {
			logging.Warn("Serve", "Entity watching unavailable: %v", err)
		}

		ports := arbiter.New()
		store := job.NewStore()
		executor := job.NewExecutor(store, ports, manager)
		executor.Start(ctx)

		return server.New(manager, store, executor, ports).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
