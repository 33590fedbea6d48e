package convert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
)

// Audio conversion runs at roughly a second per megabyte of input.
const audioSecPerMB = 1.0

var audioBitrates = map[Quality]string{
	QualityLow:    "128k",
	QualityMedium: "192k",
	QualityHigh:   "320k",
}

// audioCodecArgs maps a target extension to its encoder flags. Lossless
// targets (wav, flac) take no bitrate.
func audioCodecArgs(target, bitrate string) []string {
	switch target {
	case "mp3":
		return []string{"-c:a", "libmp3lame", "-b:a", bitrate}
	case "wav":
		return []string{"-c:a", "pcm_s16le"}
	case "flac":
		return []string{"-c:a", "flac"}
	case "aac", "m4a":
		return []string{"-c:a", "aac", "-b:a", bitrate}
	case "ogg":
		return []string{"-c:a", "libvorbis", "-b:a", bitrate}
	}
	return nil
}

// AudioConverter transcodes between audio container/codec pairs.
type AudioConverter struct {
	base
}

func NewAudio(runner Runner, paths Paths, ceiling time.Duration, log *zap.Logger) *AudioConverter {
	return &AudioConverter{base{runner: runner, paths: paths, ceiling: ceiling, log: log}}
}

func (c *AudioConverter) Category() catalog.Category { return catalog.Audio }

func (c *AudioConverter) SupportedTargets(srcExt string) []string {
	if cat, ok := catalog.CategoryFor(srcExt); !ok || cat != catalog.Audio {
		return nil
	}
	return catalog.Outputs(catalog.Audio)
}

func (c *AudioConverter) Convert(ctx context.Context, req Request) (Result, error) {
	target := catalog.Normalize(req.TargetFormat)
	if !catalog.ValidTarget(catalog.Audio, target) {
		return Result{}, fmt.Errorf("%w: %q for audio source", ErrUnsupportedFormat, req.TargetFormat)
	}

	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = audioBitrates[req.Quality]
	}

	outPath, err := c.paths.AllocateOutputPath(target)
	if err != nil {
		return Result{}, err
	}

	args := []string{"-i", req.SourcePath, "-y"}
	args = append(args, audioCodecArgs(target, bitrate)...)
	args = append(args, "-ar", "44100", "-ac", "2", outPath)

	return c.execute(ctx, req, outPath, args, audioSecPerMB)
}
