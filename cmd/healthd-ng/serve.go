package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"healthd-ng/internal/charging"
	"healthd-ng/internal/config"
	"healthd-ng/internal/logging"
	"healthd-ng/internal/rpc"
	"healthd-ng/internal/web"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Bind the charging node and serve the RPC socket (and optional web API)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config (built-in defaults when empty)")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg config.Config) error {
	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, logs)
	if err != nil {
		return err
	}

	about := web.BuildInfo()
	log.WithFields(logrus.Fields{"version": about.Version, "commit": about.Commit}).Info("healthd-ng starting")

	ctl, err := charging.New(charging.Config{Nodes: cfg.Charging.Registry(), Logger: log})
	if err != nil {
		return err
	}
	defer func() {
		if err := ctl.Close(); err != nil {
			log.WithError(err).Warn("release charging node")
		}
	}()

	mode, err := cfg.RPC.Mode()
	if err != nil {
		return err
	}
	srv := rpc.NewServer(ctl, rpc.ServerConfig{Socket: cfg.RPC.Socket, Mode: mode, Logger: log})
	if err := srv.Listen(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	running := 1
	go func() { errCh <- srv.Serve(ctx) }()

	if cfg.Web.Enable {
		status := web.NewStatus()
		status.SetStatic(cfg.RPC.Socket, cfg.Web.Listen)
		running++
		go func() {
			log.WithField("listen", cfg.Web.Listen).Info("web listening")
			errCh <- web.Serve(ctx, cfg.Web.Listen, web.Handler(status, ctl, logs))
		}()
	}

	// The first component to stop takes the rest down with it.
	var firstErr error
	for i := 0; i < running; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
			log.WithError(err).Error("component stopped")
		}
		cancel()
	}
	log.Info("healthd-ng stopping")
	return firstErr
}
