package watcher

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
	"github.com/ah-its-andy/mediaconv/internal/convert"
	"github.com/ah-its-andy/mediaconv/internal/history"
)

// Watcher converts files dropped into a hot folder. Each category has a
// configured default target; anything else in the directory is ignored.
// Conversion errors are logged and recorded, never fatal.
type Watcher struct {
	dir        string
	targets    map[string]string
	converters map[catalog.Category]convert.Converter
	hist       *history.History
	w          *fsnotify.Watcher
	log        *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func New(
	dir string,
	targets map[string]string,
	converters map[catalog.Category]convert.Converter,
	hist *history.History,
	log *zap.Logger,
) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("watcher: create %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watcher: add %s: %w", dir, err)
	}
	return &Watcher{
		dir:        dir,
		targets:    targets,
		converters: converters,
		hist:       hist,
		w:          fw,
		log:        log,
		inFlight:   make(map[string]struct{}),
	}, nil
}

// Start consumes events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	w.log.Info("watching drop folder", zap.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.dispatch(ctx, ev.Name)
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error { return w.w.Close() }

func (w *Watcher) dispatch(ctx context.Context, path string) {
	ext := catalog.ExtOf(path)
	cat, ok := catalog.CategoryFor(ext)
	if !ok {
		return
	}
	target, ok := w.targets[string(cat)]
	if !ok {
		return
	}

	w.mu.Lock()
	if _, busy := w.inFlight[path]; busy {
		w.mu.Unlock()
		return
	}
	w.inFlight[path] = struct{}{}
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.inFlight, path)
			w.mu.Unlock()
		}()
		w.handle(ctx, path, ext, cat, target)
	}()
}

func (w *Watcher) handle(ctx context.Context, path, ext string, cat catalog.Category, target string) {
	if err := waitStable(path, 500*time.Millisecond); err != nil {
		w.log.Warn("dropped file disappeared", zap.String("path", path), zap.Error(err))
		return
	}
	if catalog.Normalize(ext) == target {
		return // already in the target format
	}

	req := convert.Request{
		SourcePath:   path,
		SourceExt:    ext,
		TargetFormat: target,
		Quality:      convert.QualityMedium,
	}
	res, err := w.converters[cat].Convert(ctx, req)

	rec := &history.Record{
		SourceName:   path,
		OutputName:   res.OutputName,
		Category:     string(cat),
		TargetFormat: target,
		Quality:      string(convert.QualityMedium),
		Status:       "failed",
		Error:        res.Error,
		DurationMs:   res.Duration.Milliseconds(),
		InputSize:    res.InputSize,
		OutputSize:   res.OutputSize,
	}
	if err == nil {
		rec.Status = "success"
		w.log.Info("drop folder conversion done",
			zap.String("source", path),
			zap.String("output", res.OutputName))
	} else {
		w.log.Warn("drop folder conversion failed",
			zap.String("source", path),
			zap.Error(err))
	}
	if insertErr := w.hist.Insert(rec); insertErr != nil {
		w.log.Warn("history insert failed", zap.Error(insertErr))
	}
}

// waitStable waits for two consecutive identical sizes separated by delay,
// so half-copied drops are not fed to the engine.
func waitStable(path string, delay time.Duration) error {
	var lastSize int64 = -1
	for i := 0; i < 10; i++ {
		fi, err := os.Stat(path)
		if err != nil {
			return err
		}
		if fi.Size() == lastSize {
			return nil
		}
		lastSize = fi.Size()
		time.Sleep(delay)
	}
	return nil
}
