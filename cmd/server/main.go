package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agenthands/rsgwm/internal/config"
	"github.com/agenthands/rsgwm/internal/core"
	"github.com/agenthands/rsgwm/internal/core/model"
	"github.com/agenthands/rsgwm/internal/core/store"
	"github.com/agenthands/rsgwm/internal/driver"
	"github.com/agenthands/rsgwm/internal/metrics"
	"github.com/agenthands/rsgwm/internal/mirror"
	"github.com/agenthands/rsgwm/internal/scene"
	"github.com/agenthands/rsgwm/internal/server"
)

var (
	configPath string
	addr       string
	sceneFile  string

	rootCmd = &cobra.Command{
		Use:   "rsg-server",
		Short: "Robot Scene Graph world model server",
		Long: `rsg-server keeps a scene graph of nodes, groups and timestamped
transforms in memory and answers RSG update, query and function block
envelopes over HTTP and WebSocket.`,
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to the TOML config file")
	rootCmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	rootCmd.Flags().StringVar(&sceneFile, "scene", "", "YAML or JSON list of envelopes applied at startup")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if sceneFile != "" {
		cfg.Scene.File = sceneFile
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	hub := server.NewHub(logger, m)

	opts := core.Options{
		Store: store.Options{
			RootID:               model.ID(cfg.WorldModel.RootID),
			Stripes:              cfg.WorldModel.LockStripes,
			MaxHistoryDuration:   cfg.WorldModel.MaxHistoryDuration.Duration,
			AutoMountRemoteRoots: cfg.WorldModel.AutoMountRemoteRoots,
		},
		QueueSize:    cfg.Monitor.QueueSize,
		Sink:         hub,
		Stats:        m,
		MonitorStats: m,
		Logger:       logger,
	}

	var replica *mirror.Mirror
	if cfg.Memgraph.Enabled {
		d, err := driver.NewMemgraphDriver(ctx, cfg.Memgraph.URI, cfg.Memgraph.User, cfg.Memgraph.Password, logger)
		if err != nil {
			return err
		}
		defer d.Close(context.Background())
		replica = mirror.New(d, mirror.Options{
			RootID:    model.ID(cfg.WorldModel.RootID),
			QueueSize: cfg.Memgraph.QueueSize,
			Logger:    logger,
			Stats:     m,
		})
		opts.Observer = replica
	}

	wm := core.NewWorldModel(opts)
	defer wm.Close()

	if cfg.Scene.File != "" {
		envs, err := scene.Load(cfg.Scene.File)
		if err != nil {
			return err
		}
		if err := scene.Apply(ctx, wm, envs, logger); err != nil {
			return err
		}
	}

	srv := server.NewServer(wm, m, hub, server.Options{
		ReplyCacheTTL: cfg.Server.ReplyCacheTTL.Duration,
		PublishQueue:  cfg.Server.PublishQueue,
		Logger:        logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Server.Addr)
	})
	if replica != nil {
		g.Go(func() error {
			return replica.Run(ctx)
		})
	}

	logger.Info("world model ready", "root", wm.Root(), "addr", cfg.Server.Addr, "mirror", replica != nil)
	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
