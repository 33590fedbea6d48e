package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ah-its-andy/mediaconv/internal/catalog"
	"github.com/ah-its-andy/mediaconv/internal/config"
)

var (
	// ErrInvalidFormat means the file extension is not in the catalog (or
	// was narrowed out by ALLOWED_EXTENSIONS).
	ErrInvalidFormat = errors.New("file type not allowed")

	// ErrFileTooLarge means the upload exceeded the configured maximum.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUnsafeName means a client-supplied filename failed the safety
	// check that keeps paths inside the sandboxed roots.
	ErrUnsafeName = errors.New("unsafe file name")
)

// Stored file names are generated tokens plus an extension, so anything
// outside this shape is either a traversal attempt or a typo.
var safeName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// StoredFile is a filesystem entry under one of the sandboxed roots,
// referenced by its generated unique name.
type StoredFile struct {
	Name         string
	Path         string
	OriginalName string
	Ext          string
	Size         int64
}

// Store owns the upload, converted and temp directories. It keeps no index
// of files beyond the directory listings; every write target is a freshly
// generated unique name, so concurrent requests cannot collide. The only
// in-memory state is the set of paths currently mid-conversion, which the
// cleanup sweep must not touch.
type Store struct {
	uploadDir    string
	convertedDir string
	tempDir      string
	maxSize      int64
	allowed      map[string]struct{}
	log          *zap.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

func New(cfg *config.Config, log *zap.Logger) (*Store, error) {
	s := &Store{
		uploadDir:    cfg.UploadDir,
		convertedDir: cfg.ConvertedDir,
		tempDir:      cfg.TempDir,
		maxSize:      cfg.MaxFileSize,
		log:          log,
		busy:         make(map[string]struct{}),
	}
	if len(cfg.AllowedExts) > 0 {
		s.allowed = make(map[string]struct{}, len(cfg.AllowedExts))
		for _, ext := range cfg.AllowedExts {
			s.allowed[catalog.Normalize(ext)] = struct{}{}
		}
	}
	for _, dir := range s.Roots() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) Roots() []string {
	return []string{s.uploadDir, s.convertedDir, s.tempDir}
}

func (s *Store) UploadDir() string    { return s.uploadDir }
func (s *Store) ConvertedDir() string { return s.convertedDir }

// ExtAllowed reports whether ext is accepted as an upload.
func (s *Store) ExtAllowed(ext string) bool {
	ext = catalog.Normalize(ext)
	if !catalog.Allowed(ext) {
		return false
	}
	if s.allowed == nil {
		return true
	}
	_, ok := s.allowed[ext]
	return ok
}

// SaveUpload validates the extension and size, then writes the stream to a
// newly generated path under the upload root. A partial file is deleted if
// the write fails or the stream turns out to be over the limit.
func (s *Store) SaveUpload(r io.Reader, originalName string) (StoredFile, error) {
	ext := catalog.ExtOf(originalName)
	if ext == "" || !s.ExtAllowed(ext) {
		return StoredFile{}, fmt.Errorf("%w: %q", ErrInvalidFormat, ext)
	}

	name := uuid.NewString() + "." + ext
	path := filepath.Join(s.uploadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return StoredFile{}, fmt.Errorf("store: create upload: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		s.Discard(path)
		return StoredFile{}, fmt.Errorf("store: write upload: %w", err)
	case closeErr != nil:
		s.Discard(path)
		return StoredFile{}, fmt.Errorf("store: write upload: %w", closeErr)
	case written > s.maxSize:
		s.Discard(path)
		return StoredFile{}, fmt.Errorf("%w: limit %d bytes", ErrFileTooLarge, s.maxSize)
	}

	s.log.Debug("upload stored",
		zap.String("name", name),
		zap.String("original", originalName),
		zap.Int64("size", written))
	return StoredFile{
		Name:         name,
		Path:         path,
		OriginalName: originalName,
		Ext:          ext,
		Size:         written,
	}, nil
}

// AllocateOutputPath generates a unique path under the converted root for
// the engine to write into. It does not create the file.
func (s *Store) AllocateOutputPath(targetFormat string) (string, error) {
	ext := catalog.Normalize(targetFormat)
	if ext == "" || !safeName.MatchString(ext) {
		return "", fmt.Errorf("%w: target %q", ErrInvalidFormat, targetFormat)
	}
	name := uuid.NewString() + "." + ext
	return filepath.Join(s.convertedDir, name), nil
}

// Resolve maps a converted-file name to its on-disk path, rejecting names
// that fail the safety check and names that do not exist.
func (s *Store) Resolve(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	path := filepath.Join(s.convertedDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// ResolveAny looks a name up under the upload root first, then the
// converted root. Used by the info endpoint.
func (s *Store) ResolveAny(name string) (string, error) {
	if !ValidName(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	for _, dir := range []string{s.uploadDir, s.convertedDir} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fs.ErrNotExist
}

// Remove deletes a converted file by name.
func (s *Store) Remove(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return os.Remove(filepath.Join(s.convertedDir, name))
}

// Discard removes a file, ignoring the case where it is already gone.
func (s *Store) Discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("discard failed", zap.String("path", path), zap.Error(err))
	}
}

// ValidName reports whether a client-supplied file name is safe to join
// onto a sandboxed root.
func ValidName(name string) bool {
	return safeName.MatchString(name) && !strings.Contains(name, "..")
}
