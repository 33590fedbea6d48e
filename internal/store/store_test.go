package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ah-its-andy/mediaconv/internal/config"
)

func newTestStore(t *testing.T, mutate func(*config.Config)) *Store {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		UploadDir:    filepath.Join(root, "uploads"),
		ConvertedDir: filepath.Join(root, "converted"),
		TempDir:      filepath.Join(root, "temp"),
		MaxFileSize:  1 << 20,
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestSaveUpload(t *testing.T) {
	s := newTestStore(t, nil)

	stored, err := s.SaveUpload(strings.NewReader("not really audio"), "sample.MP3")
	require.NoError(t, err)

	assert.Equal(t, "mp3", stored.Ext)
	assert.Equal(t, "sample.MP3", stored.OriginalName)
	assert.True(t, strings.HasSuffix(stored.Name, ".mp3"))
	assert.Equal(t, int64(len("not really audio")), stored.Size)

	data, err := os.ReadFile(stored.Path)
	require.NoError(t, err)
	assert.Equal(t, "not really audio", string(data))
}

func TestSaveUploadRejectsUnknownExtension(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.SaveUpload(strings.NewReader("hello"), "notes.txt")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.Empty(t, dirEntries(t, s.UploadDir()))
}

func TestSaveUploadRejectsMissingExtension(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.SaveUpload(strings.NewReader("hello"), "noext")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestSaveUploadTooLargeLeavesNoPartial(t *testing.T) {
	s := newTestStore(t, func(cfg *config.Config) { cfg.MaxFileSize = 16 })

	_, err := s.SaveUpload(strings.NewReader(strings.Repeat("x", 64)), "big.wav")
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.Empty(t, dirEntries(t, s.UploadDir()), "partial upload left behind")
}

func TestSaveUploadHonorsNarrowedAllowList(t *testing.T) {
	s := newTestStore(t, func(cfg *config.Config) { cfg.AllowedExts = []string{"mp3"} })

	_, err := s.SaveUpload(strings.NewReader("x"), "a.mp3")
	assert.NoError(t, err)

	_, err = s.SaveUpload(strings.NewReader("x"), "b.wav")
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestAllocateOutputPathUniqueUnderConcurrency(t *testing.T) {
	s := newTestStore(t, nil)

	const n = 64
	var (
		mu    sync.Mutex
		paths = make(map[string]struct{}, n)
		wg    sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path, err := s.AllocateOutputPath("mp3")
			assert.NoError(t, err)
			mu.Lock()
			paths[path] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, paths, n, "allocated paths must not collide")
	for path := range paths {
		assert.Equal(t, s.ConvertedDir(), filepath.Dir(path))
	}
}

func TestResolve(t *testing.T) {
	s := newTestStore(t, nil)

	path, err := s.AllocateOutputPath("wav")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("pcm"), 0o644))

	got, err := s.Resolve(filepath.Base(path))
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = s.Resolve("missing.wav")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	for _, name := range []string{"../escape.wav", "a/b.wav", ".hidden", "", "bad name.wav"} {
		_, err = s.Resolve(name)
		assert.ErrorIs(t, err, ErrUnsafeName, "name %q", name)
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t, nil)

	path, err := s.AllocateOutputPath("png")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))

	require.NoError(t, s.Remove(filepath.Base(path)))
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	assert.ErrorIs(t, s.Remove("../../etc/passwd"), ErrUnsafeName)
	assert.True(t, errors.Is(s.Remove("gone.png"), fs.ErrNotExist))
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t, nil)
	old := time.Now().Add(-48 * time.Hour)

	stale := filepath.Join(s.UploadDir(), "stale.mp3")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(stale, old, old))

	busy := filepath.Join(s.ConvertedDir(), "busy.mp4")
	require.NoError(t, os.WriteFile(busy, []byte("x"), 0o644))
	require.NoError(t, os.Chtimes(busy, old, old))
	s.MarkBusy(busy)

	fresh := filepath.Join(s.ConvertedDir(), "fresh.mp4")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	removed, err := s.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(stale)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = os.Stat(busy)
	assert.NoError(t, err, "busy file must survive the sweep")
	_, err = os.Stat(fresh)
	assert.NoError(t, err)

	// Once released, a second sweep picks the busy file up.
	s.Done(busy)
	removed, err = s.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// And sweeping again with nothing to do is fine.
	removed, err = s.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("abc123.mp3"))
	assert.True(t, ValidName("f47ac10b-58cc-0372-8567-0e02b2c3d479.wav"))
	assert.False(t, ValidName("../x.mp3"))
	assert.False(t, ValidName(".dotfile"))
	assert.False(t, ValidName("a..b.mp3"))
	assert.False(t, ValidName("sp ace.mp3"))
	assert.False(t, ValidName(""))
}
