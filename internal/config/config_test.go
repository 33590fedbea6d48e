package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, int64(500<<20), cfg.MaxFileSize)
	assert.Equal(t, "uploads", cfg.UploadDir)
	assert.Equal(t, "converted", cfg.ConvertedDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 24*time.Hour, cfg.Retention)
	assert.Empty(t, cfg.AllowedExts)
	assert.Equal(t, "mp3", cfg.WatchTargets["audio"])
	assert.Equal(t, "mp4", cfg.WatchTargets["video"])
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MAX_FILE_SIZE", "10MB")
	t.Setenv("ALLOWED_EXTENSIONS", "MP3, wav ,flac")
	t.Setenv("RETENTION", "2h")
	t.Setenv("WATCH_TARGETS", "audio=flac")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, int64(10<<20), cfg.MaxFileSize)
	assert.Equal(t, []string{"mp3", "wav", "flac"}, cfg.AllowedExts)
	assert.Equal(t, 2*time.Hour, cfg.Retention)
	assert.Equal(t, map[string]string{"audio": "flac"}, cfg.WatchTargets)
}

func TestLoadSizeSuffixes(t *testing.T) {
	tests := []struct {
		env  string
		want int64
	}{
		{"1024", 1024},
		{"512KB", 512 << 10},
		{"500MB", 500 << 20},
		{"2GB", 2 << 30},
	}
	for _, tt := range tests {
		t.Setenv("MAX_FILE_SIZE", tt.env)
		cfg, err := Load()
		require.NoError(t, err, "env %q", tt.env)
		assert.Equal(t, tt.want, cfg.MaxFileSize, "env %q", tt.env)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]string{
		"PORT":            "not-a-number",
		"MAX_FILE_SIZE":   "huge",
		"MAX_CONVERSIONS": "0",
		"RETENTION":       "-1h",
		"WATCH_TARGETS":   "audio",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsPortOutOfRange(t *testing.T) {
	t.Setenv("PORT", "70000")
	_, err := Load()
	assert.Error(t, err)
}
