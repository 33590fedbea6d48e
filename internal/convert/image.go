package convert

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
)

const imageSecPerMB = 0.5

// qscale semantics differ per encoder: for JPEG lower is better (2-31),
// for WebP higher is better (0-100).
var (
	jpegQScale = map[Quality]int{QualityLow: 25, QualityMedium: 15, QualityHigh: 5}
	webpQScale = map[Quality]int{QualityLow: 30, QualityMedium: 60, QualityHigh: 90}
)

// ImageConverter converts between image formats and resizes.
type ImageConverter struct {
	base
}

func NewImage(runner Runner, paths Paths, ceiling time.Duration, log *zap.Logger) *ImageConverter {
	return &ImageConverter{base{runner: runner, paths: paths, ceiling: ceiling, log: log}}
}

func (c *ImageConverter) Category() catalog.Category { return catalog.Image }

func (c *ImageConverter) SupportedTargets(srcExt string) []string {
	if cat, ok := catalog.CategoryFor(srcExt); !ok || cat != catalog.Image {
		return nil
	}
	return catalog.Outputs(catalog.Image)
}

func (c *ImageConverter) Convert(ctx context.Context, req Request) (Result, error) {
	target := catalog.Normalize(req.TargetFormat)
	if !catalog.ValidTarget(catalog.Image, target) {
		return Result{}, fmt.Errorf("%w: %q for image source", ErrUnsupportedFormat, req.TargetFormat)
	}

	outPath, err := c.paths.AllocateOutputPath(target)
	if err != nil {
		return Result{}, err
	}

	args := []string{"-i", req.SourcePath, "-y"}
	switch target {
	case "jpg", "jpeg":
		args = append(args, "-q:v", strconv.Itoa(jpegQScale[req.Quality]))
	case "webp":
		args = append(args, "-quality", strconv.Itoa(webpQScale[req.Quality]))
	}
	// png, gif and bmp take no quality flag.

	if req.Width > 0 || req.Height > 0 {
		width, height := c.resolveDimensions(ctx, req)
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	args = append(args, outPath)

	return c.execute(ctx, req, outPath, args, imageSecPerMB)
}

// resolveDimensions fills in a missing width or height from the source's
// probed dimensions, preserving aspect ratio. If the probe fails, ffmpeg's
// own auto dimension (-1) is the fallback.
func (c *ImageConverter) resolveDimensions(ctx context.Context, req Request) (int, int) {
	if req.Width > 0 && req.Height > 0 {
		return req.Width, req.Height
	}

	info, err := c.runner.ProbeFile(ctx, req.SourcePath)
	if err != nil || info.Width <= 0 || info.Height <= 0 {
		if err != nil {
			c.log.Warn("dimension probe failed", zap.String("source", req.SourcePath), zap.Error(err))
		}
		if req.Width > 0 {
			return req.Width, -1
		}
		return -1, req.Height
	}

	ratio := float64(info.Height) / float64(info.Width)
	if req.Width > 0 {
		return req.Width, int(math.Round(float64(req.Width) * ratio))
	}
	return int(math.Round(float64(req.Height) / ratio)), req.Height
}
