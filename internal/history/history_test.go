package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "db", "history.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestInsertAndList(t *testing.T) {
	h := openTestHistory(t)

	for i, status := range []string{"success", "failed", "success"} {
		require.NoError(t, h.Insert(&Record{
			SourceName:   "in.wav",
			OutputName:   "out.mp3",
			Category:     "audio",
			TargetFormat: "mp3",
			Quality:      "medium",
			Status:       status,
			CreatedAt:    time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	recs, err := h.List(10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	// Newest first.
	assert.Equal(t, "success", recs[0].Status)
	assert.Equal(t, "failed", recs[1].Status)

	recs, err = h.List(2, 0)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = h.List(10, 2)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestListClampsLimit(t *testing.T) {
	h := openTestHistory(t)
	require.NoError(t, h.Insert(&Record{SourceName: "a.mp3", Status: "success", CreatedAt: time.Now()}))

	for _, limit := range []int{0, -5, 9999} {
		recs, err := h.List(limit, 0)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	}
}

func TestStats(t *testing.T) {
	h := openTestHistory(t)

	s, err := h.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{}, s)

	for _, status := range []string{"success", "success", "failed"} {
		require.NoError(t, h.Insert(&Record{SourceName: "x", Status: status, CreatedAt: time.Now()}))
	}

	s, err = h.Stats()
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 3, Success: 2, Failed: 1}, s)
}

func TestFileMD5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	sum, err := FileMD5(path)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", sum)

	_, err = FileMD5(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
