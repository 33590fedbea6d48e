package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/api"
	"github.com/ah-its-andy/mediaconv/internal/config"
	"github.com/ah-its-andy/mediaconv/internal/convert"
	"github.com/ah-its-andy/mediaconv/internal/engine"
	"github.com/ah-its-andy/mediaconv/internal/history"
	"github.com/ah-its-andy/mediaconv/internal/store"
	"github.com/ah-its-andy/mediaconv/internal/watcher"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting mediaconvd",
		zap.String("addr", cfg.HTTPAddr()),
		zap.Int64("max_file_size", cfg.MaxFileSize),
		zap.Int("max_conversions", cfg.MaxConversions),
		zap.String("upload_dir", cfg.UploadDir),
		zap.String("converted_dir", cfg.ConvertedDir))

	st, err := store.New(cfg, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	eng := engine.New(cfg.FFmpegPath, cfg.FFProbePath, cfg.MaxConversions, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if info, err := eng.Probe(ctx); err != nil {
		logger.Warn("media engine unavailable at startup", zap.Error(err))
	} else {
		logger.Info("media engine found", zap.String("version", info.Version))
	}

	hist, err := history.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("history init failed", zap.Error(err))
	}
	defer hist.Close()

	converters := convert.NewSet(eng, st, cfg.ConvertTimeout, logger)

	go st.RunCleanup(ctx, cfg.CleanupInterval, cfg.Retention)

	if cfg.WatchDir != "" {
		w, err := watcher.New(cfg.WatchDir, cfg.WatchTargets, converters, hist, logger)
		if err != nil {
			logger.Fatal("watcher init failed", zap.Error(err))
		}
		defer w.Close()
		go w.Start(ctx)
	}

	server := api.NewServer(cfg, st, eng, converters, hist, logger)
	go func() {
		if err := server.Run(); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
