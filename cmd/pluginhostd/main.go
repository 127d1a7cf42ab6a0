package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pluginhost/pluginhostd/internal/config"
	"github.com/pluginhost/pluginhostd/internal/core"
	"github.com/pluginhost/pluginhostd/internal/logger"
	"github.com/pluginhost/pluginhostd/internal/server"
)

func main() {
	configPath := os.Getenv("PLUGINHOSTD_CONFIG_PATH")
	if configPath == "" {
		for _, candidate := range []string{"./pluginhostd.yaml", "/etc/pluginhostd/pluginhostd.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				configPath = candidate
				break
			}
		}
	}

	if err := config.Load(configPath); err != nil {
		logger.Warn("failed to load configuration, using defaults", "path", configPath, "error", err)
	}
	cfg := config.Get()
	logger.Init(cfg.Logging)

	module := core.NewModule(cfg.Plugins.Dir, cfg.Plugins.EnableHotReload, logger.Named("root"))

	srv, hub := server.New(cfg, module)
	module.Controller.SetCallbacks(hub.Callbacks())

	if err := module.Start(); err != nil {
		logger.Error("failed to start plugin host module", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down gracefully")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		module.Shutdown()
		cancel()
	}()

	logger.Info("starting pluginhostd", "addr", srv.Addr, "plugin_dir", cfg.Plugins.Dir)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutdown complete")
}
