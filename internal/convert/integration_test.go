package convert

import (
	"context"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ah-its-andy/mediaconv/internal/engine"
)

// Runs against the real binaries when they are installed; otherwise the
// stub-runner tests above carry the coverage.
func realEngine(t *testing.T) *engine.Engine {
	t.Helper()
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed, skipping")
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed, skipping")
	}
	return engine.New(ffmpeg, ffprobe, 2, zaptest.NewLogger(t))
}

func TestLosslessRoundTripPreservesDuration(t *testing.T) {
	eng := realEngine(t)
	ctx := context.Background()

	// Synthesize a two-second tone as the source.
	src := filepath.Join(t.TempDir(), "tone.wav")
	_, err := eng.Run(ctx, []string{
		"-f", "lavfi", "-i", "sine=frequency=440:duration=2", "-y", src,
	}, time.Minute)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	audio := NewAudio(eng, newFakePaths(t), time.Minute, log)

	flac, err := audio.Convert(ctx, Request{
		SourcePath: src, SourceExt: "wav",
		TargetFormat: "flac", Quality: QualityHigh,
	})
	require.NoError(t, err)
	require.True(t, flac.Success)

	back, err := audio.Convert(ctx, Request{
		SourcePath: flac.OutputPath, SourceExt: "flac",
		TargetFormat: "wav", Quality: QualityHigh,
	})
	require.NoError(t, err)
	require.True(t, back.Success)

	srcInfo, err := eng.ProbeFile(ctx, src)
	require.NoError(t, err)
	backInfo, err := eng.ProbeFile(ctx, back.OutputPath)
	require.NoError(t, err)

	assert.InDelta(t, 2.0, srcInfo.Duration, 0.1)
	assert.InDelta(t, srcInfo.Duration, backInfo.Duration, 0.1)
	assert.Equal(t, 44100, backInfo.SampleRate)
}
