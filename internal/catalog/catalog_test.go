package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryFor(t *testing.T) {
	tests := []struct {
		ext  string
		cat  Category
		want bool
	}{
		{"mp3", Audio, true},
		{".mp3", Audio, true},
		{"FLAC", Audio, true},
		{"mp4", Video, true},
		{"wmv", Video, true},
		{"jpeg", Image, true},
		{"tiff", Image, true},
		{"txt", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		cat, ok := CategoryFor(tt.ext)
		assert.Equal(t, tt.want, ok, "ext %q", tt.ext)
		if tt.want {
			assert.Equal(t, tt.cat, cat, "ext %q", tt.ext)
		}
	}
}

func TestExtOf(t *testing.T) {
	assert.Equal(t, "mp3", ExtOf("song.MP3"))
	assert.Equal(t, "wav", ExtOf("/some/dir/sample.wav"))
	assert.Equal(t, "", ExtOf("noext"))
}

func TestValidTarget(t *testing.T) {
	assert.True(t, ValidTarget(Audio, "flac"))
	assert.True(t, ValidTarget(Video, "webm"))
	assert.True(t, ValidTarget(Image, ".PNG"))

	// wmv and flv are accepted inputs but not produced as outputs
	assert.False(t, ValidTarget(Video, "wmv"))
	assert.False(t, ValidTarget(Video, "flv"))
	assert.False(t, ValidTarget(Image, "tiff"))

	// wrong category
	assert.False(t, ValidTarget(Audio, "mp4"))
	assert.False(t, ValidTarget(Image, "mp3"))
}

func TestSnapshot(t *testing.T) {
	snap := Snapshot()
	require.Len(t, snap, 3)
	for _, name := range []string{"audio", "video", "image"} {
		set, ok := snap[name]
		require.True(t, ok, "missing category %s", name)
		assert.NotEmpty(t, set.Input)
		assert.NotEmpty(t, set.Output)
	}
	assert.Contains(t, snap["audio"].Output, "mp3")
	assert.Contains(t, snap["video"].Input, "wmv")
	assert.NotContains(t, snap["video"].Output, "wmv")
}
