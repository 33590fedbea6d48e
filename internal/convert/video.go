package convert

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
)

// Video re-encoding is the slow path; budget three seconds per megabyte.
const videoSecPerMB = 3.0

var videoCRF = map[Quality]string{
	QualityLow:    "23",
	QualityMedium: "20",
	QualityHigh:   "18",
}

// VideoConverter transcodes video containers and also extracts audio when
// the requested target is an audio extension.
type VideoConverter struct {
	base
}

func NewVideo(runner Runner, paths Paths, ceiling time.Duration, log *zap.Logger) *VideoConverter {
	return &VideoConverter{base{runner: runner, paths: paths, ceiling: ceiling, log: log}}
}

func (c *VideoConverter) Category() catalog.Category { return catalog.Video }

// SupportedTargets for a video source includes the audio outputs: audio
// extraction is a video-converter operation.
func (c *VideoConverter) SupportedTargets(srcExt string) []string {
	if cat, ok := catalog.CategoryFor(srcExt); !ok || cat != catalog.Video {
		return nil
	}
	targets := catalog.Outputs(catalog.Video)
	return append(targets, catalog.Outputs(catalog.Audio)...)
}

func (c *VideoConverter) Convert(ctx context.Context, req Request) (Result, error) {
	target := catalog.Normalize(req.TargetFormat)
	switch {
	case catalog.ValidTarget(catalog.Audio, target):
		return c.extractAudio(ctx, req, target)
	case catalog.ValidTarget(catalog.Video, target):
		return c.transcode(ctx, req, target)
	default:
		return Result{}, fmt.Errorf("%w: %q for video source", ErrUnsupportedFormat, req.TargetFormat)
	}
}

func (c *VideoConverter) transcode(ctx context.Context, req Request, target string) (Result, error) {
	outPath, err := c.paths.AllocateOutputPath(target)
	if err != nil {
		return Result{}, err
	}

	args := []string{"-i", req.SourcePath, "-y"}
	if target == "webm" {
		args = append(args, "-c:v", "libvpx-vp9", "-crf", "30", "-b:v", "0")
	} else {
		args = append(args, "-c:v", "libx264", "-preset", "medium", "-crf", videoCRF[req.Quality])
	}
	if req.Width > 0 || req.Height > 0 {
		args = append(args, "-vf", scaleFilter(req.Width, req.Height))
	}
	args = append(args, "-c:a", "copy", outPath)

	return c.execute(ctx, req, outPath, args, videoSecPerMB)
}

// extractAudio drops the video stream (-vn) and encodes the audio track
// with the audio converter's codec table.
func (c *VideoConverter) extractAudio(ctx context.Context, req Request, target string) (Result, error) {
	outPath, err := c.paths.AllocateOutputPath(target)
	if err != nil {
		return Result{}, err
	}

	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = audioBitrates[req.Quality]
	}

	args := []string{"-i", req.SourcePath, "-vn", "-y"}
	args = append(args, audioCodecArgs(target, bitrate)...)
	args = append(args, outPath)

	return c.execute(ctx, req, outPath, args, videoSecPerMB)
}

// scaleFilter keeps the aspect ratio when only one dimension is given by
// letting ffmpeg derive the other (-2 keeps it divisible by two, which
// libx264 requires).
func scaleFilter(width, height int) string {
	switch {
	case width > 0 && height > 0:
		return "scale=" + strconv.Itoa(width) + ":" + strconv.Itoa(height) +
			":force_original_aspect_ratio=decrease"
	case width > 0:
		return "scale=" + strconv.Itoa(width) + ":-2"
	default:
		return "scale=-2:" + strconv.Itoa(height)
	}
}
