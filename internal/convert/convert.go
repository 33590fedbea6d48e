package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
	"github.com/ah-its-andy/mediaconv/internal/engine"
)

// ErrUnsupportedFormat means the extension is known to the catalog but is
// not a legal target for the source's category.
var ErrUnsupportedFormat = errors.New("unsupported target format")

// Quality selects a preset row in each converter's parameter table.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// ParseQuality validates a form/CLI quality value. Empty defaults to medium.
func ParseQuality(s string) (Quality, error) {
	switch Quality(s) {
	case "":
		return QualityMedium, nil
	case QualityLow, QualityMedium, QualityHigh:
		return Quality(s), nil
	default:
		return "", fmt.Errorf("invalid quality %q (want low, medium or high)", s)
	}
}

// Request describes one conversion. It is built per incoming request and
// never mutated after construction.
type Request struct {
	SourcePath   string
	SourceExt    string
	TargetFormat string
	Quality      Quality
	Bitrate      string // optional override, e.g. "256k"
	Width        int    // optional, image resize / video scale
	Height       int
}

// Result is what a converter hands back after invoking the engine.
type Result struct {
	Success    bool
	OutputPath string
	OutputName string
	Error      string
	Duration   time.Duration
	InputSize  int64
	OutputSize int64
}

// Runner is the slice of the engine adapter the converters depend on.
// Tests substitute a fake that records invocations.
type Runner interface {
	Run(ctx context.Context, args []string, timeout time.Duration) (engine.Outcome, error)
	ProbeFile(ctx context.Context, path string) (engine.MediaInfo, error)
}

// Paths is the slice of the file store the converters depend on.
type Paths interface {
	AllocateOutputPath(targetFormat string) (string, error)
	MarkBusy(path string)
	Done(path string)
	Discard(path string)
}

// Converter is the per-category conversion policy: which targets are legal
// and how a quality preset maps onto engine flags.
type Converter interface {
	Category() catalog.Category
	SupportedTargets(srcExt string) []string
	Convert(ctx context.Context, req Request) (Result, error)
}

// NewSet builds the three converters keyed by category.
func NewSet(runner Runner, paths Paths, ceiling time.Duration, log *zap.Logger) map[catalog.Category]Converter {
	return map[catalog.Category]Converter{
		catalog.Audio: NewAudio(runner, paths, ceiling, log),
		catalog.Video: NewVideo(runner, paths, ceiling, log),
		catalog.Image: NewImage(runner, paths, ceiling, log),
	}
}

// base carries the pieces every converter shares.
type base struct {
	runner  Runner
	paths   Paths
	ceiling time.Duration
	log     *zap.Logger
}

// execute runs a prepared argument vector against the engine, verifies the
// output, and cleans up partial files on any failure path. The timeout
// scales with the input size (perMB seconds per megabyte) between a 30s
// floor and the configured ceiling.
func (b *base) execute(ctx context.Context, req Request, outPath string, args []string, perMB float64) (Result, error) {
	inputSize := fileSize(req.SourcePath)
	timeout := b.timeoutFor(inputSize, perMB)

	b.paths.MarkBusy(outPath)
	defer b.paths.Done(outPath)

	out, err := b.runner.Run(ctx, args, timeout)
	if err != nil {
		b.paths.Discard(outPath)
		return Result{
			Error:     err.Error(),
			Duration:  out.Duration,
			InputSize: inputSize,
		}, err
	}

	// ffmpeg can exit 0 and still produce nothing under some error
	// conditions, so an empty output is a failure too.
	outputSize := fileSize(outPath)
	if outputSize <= 0 {
		b.paths.Discard(outPath)
		execErr := &engine.ExecError{Code: out.Code, Stderr: "output file missing or empty"}
		return Result{
			Error:     execErr.Error(),
			Duration:  out.Duration,
			InputSize: inputSize,
		}, execErr
	}

	b.log.Info("conversion done",
		zap.String("source", req.SourcePath),
		zap.String("output", outPath),
		zap.String("target", req.TargetFormat),
		zap.Duration("took", out.Duration),
		zap.Int64("input_size", inputSize),
		zap.Int64("output_size", outputSize))
	return Result{
		Success:    true,
		OutputPath: outPath,
		OutputName: filepath.Base(outPath),
		Duration:   out.Duration,
		InputSize:  inputSize,
		OutputSize: outputSize,
	}, nil
}

func (b *base) timeoutFor(size int64, perMB float64) time.Duration {
	t := time.Duration(float64(size) / (1 << 20) * perMB * float64(time.Second))
	if t < 30*time.Second {
		t = 30 * time.Second
	}
	if b.ceiling > 0 && t > b.ceiling {
		t = b.ceiling
	}
	return t
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}
