// waveroom is the realtime collaboration coordinator for shared
// multi-track audio projects. It serves the WebSocket presence/locking
// protocol and the REST account/project API from a single process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/waveroom/waveroom/internal/api"
	"github.com/waveroom/waveroom/internal/auth"
	"github.com/waveroom/waveroom/internal/collab"
	"github.com/waveroom/waveroom/internal/config"
	"github.com/waveroom/waveroom/internal/logger"
	"github.com/waveroom/waveroom/internal/pidfile"
	"github.com/waveroom/waveroom/internal/pprof"
	"github.com/waveroom/waveroom/internal/securemem"
	"github.com/waveroom/waveroom/internal/store"
	"github.com/waveroom/waveroom/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	var (
		configPath = flag.String("config", "", "path to the JSON config file")
		listenAddr = flag.String("listen", "", "listen address (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error")
		debug      = flag.Bool("debug", false, "log every WebSocket frame")
		pidPath    = flag.String("pidfile", "", "path to a PID file (empty disables)")
		pprofAddr  = flag.String("pprof", "", "serve /debug/pprof on this address (empty disables)")
	)
	flag.Parse()

	defer securemem.Purge()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *dbPath != "" {
		cfg.DatabasePath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	if *pidPath != "" {
		pf := pidfile.New(*pidPath)
		if err := pf.Acquire(); err != nil {
			return err
		}
		defer func() {
			if releaseErr := pf.Release(); releaseErr != nil {
				logger.Warn("release pidfile: %v", releaseErr)
			}
		}()
	}

	if *pprofAddr != "" {
		profiler, err := pprof.Start(*pprofAddr)
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
		logger.Info("pprof listening on %s", profiler.Addr())
	}

	if cfg.TokenSecret == "" {
		return fmt.Errorf("token_secret is not set; generate one and add it to the config file")
	}

	tokens, err := auth.NewTokenService(cfg.TokenSecret, cfg.TokenTTL())
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}
	defer tokens.Close()
	// The secret now lives in protected memory only.
	cfg.TokenSecret = ""

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	coord := collab.New(st, collab.Options{
		SweepInterval:      cfg.SweepInterval(),
		MaxProjectLockHold: cfg.MaxProjectLockHold(),
	})
	go coord.Run()
	defer coord.Stop()

	restAPI := api.New(st, tokens)
	server := web.NewServer(cfg.ListenAddr, cfg.MaxConnections, coord, tokens, st, restAPI, *debug)
	if err := server.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("waveroom listening on %s", server.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reload the log level when the config file changes on disk.
	if *configPath != "" {
		go func() {
			watchErr := config.Watch(ctx, *configPath, func(updated *config.Config) {
				level := logger.ParseLevel(updated.LogLevel)
				logger.Global().SetLevel(level)
				logger.Info("log level set to %s", updated.LogLevel)
			})
			if watchErr != nil && ctx.Err() == nil {
				logger.Warn("config watch stopped: %v", watchErr)
			}
		}()
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Info("received %s, shutting down", received)

	return server.Stop()
}
