/**
 * ObjectStorage: storage for uploaded document bytes,
 * and a local-filesystem reference implementation.
 */

package objectstorage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NameStrategy controls how a stored file is named on disk.
type NameStrategy string

const (
	NameTimestamp NameStrategy = "timestamp"
	NameUUID      NameStrategy = "uuid"
	NameOriginal  NameStrategy = "original"
)

// SaveOptions configures a Save call.
type SaveOptions struct {
	NameStrategy  NameStrategy
	CreateSubdirs bool
}

// SavedObject describes where and how bytes were written.
type SavedObject struct {
	ID       string
	Path     string
	FileName string
	Size     int64
	MimeType string
}

// Health reports storage backend reachability.
type Health struct {
	Healthy bool
	Message string
}

// ObjectStorage is the narrow persistence contract for raw document bytes.
type ObjectStorage interface {
	Save(ctx context.Context, data []byte, fileName string, opts SaveOptions) (SavedObject, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	Health(ctx context.Context) (Health, error)
}

// LocalFilesystemStorage is the reference ObjectStorage implementation,
// laying files out under baseDir using the YYYY/MM/DD/{name}_{epochMillis}.{ext}
// scheme when SaveOptions.CreateSubdirs is set.
type LocalFilesystemStorage struct {
	baseDir string
	now     func() time.Time
}

// NewLocalFilesystemStorage constructs a LocalFilesystemStorage rooted at
// baseDir, creating it if it doesn't already exist.
func NewLocalFilesystemStorage(baseDir string) (*LocalFilesystemStorage, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory %s: %w", baseDir, err)
	}
	return &LocalFilesystemStorage{baseDir: baseDir, now: time.Now}, nil
}

func storedName(fileName string, strategy NameStrategy, now time.Time) string {
	ext := filepath.Ext(fileName)
	stem := strings.TrimSuffix(filepath.Base(fileName), ext)

	switch strategy {
	case NameUUID:
		stem = uuid.NewString()
	case NameOriginal:
		// keep stem as-is
	case NameTimestamp, "":
		stem = now.Format("20060102T150405")
	}

	epochMillis := now.UnixMilli()
	return fmt.Sprintf("%s_%d%s", stem, epochMillis, ext)
}

// Save writes data under the configured naming/subdirectory scheme and
// returns the path and identity of what was written.
func (s *LocalFilesystemStorage) Save(ctx context.Context, data []byte, fileName string, opts SaveOptions) (SavedObject, error) {
	if fileName == "" {
		return SavedObject{}, fmt.Errorf("file name is required")
	}

	strategy := opts.NameStrategy
	if strategy == "" {
		strategy = NameTimestamp
	}

	now := s.now()
	name := storedName(fileName, strategy, now)

	relDir := "."
	if opts.CreateSubdirs {
		relDir = filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"))
	}

	absDir := filepath.Join(s.baseDir, relDir)
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return SavedObject{}, fmt.Errorf("failed to create directory %s: %w", absDir, err)
	}

	relPath := filepath.Join(relDir, name)
	absPath := filepath.Join(s.baseDir, relPath)

	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return SavedObject{}, fmt.Errorf("failed to write object %s: %w", absPath, err)
	}

	return SavedObject{
		ID:       uuid.NewString(),
		Path:     filepath.ToSlash(relPath),
		FileName: name,
		Size:     int64(len(data)),
		MimeType: mimeTypeFor(fileName),
	}, nil
}

func mimeTypeFor(fileName string) string {
	ext := filepath.Ext(fileName)
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func (s *LocalFilesystemStorage) resolve(path string) (string, error) {
	cleaned := filepath.Clean(filepath.Join(s.baseDir, path))
	if !strings.HasPrefix(cleaned, filepath.Clean(s.baseDir)+string(os.PathSeparator)) && cleaned != filepath.Clean(s.baseDir) {
		return "", fmt.Errorf("path escapes storage root: %s", path)
	}
	return cleaned, nil
}

// Get reads back previously saved bytes.
func (s *LocalFilesystemStorage) Get(ctx context.Context, path string) ([]byte, error) {
	absPath, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("object not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read object %s: %w", path, err)
	}
	return data, nil
}

// Delete removes a stored object. A missing object is not an error.
func (s *LocalFilesystemStorage) Delete(ctx context.Context, path string) error {
	absPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object %s: %w", path, err)
	}
	return nil
}

// Exists reports whether an object is present.
func (s *LocalFilesystemStorage) Exists(ctx context.Context, path string) (bool, error) {
	absPath, err := s.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(absPath)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object %s: %w", path, err)
}

// Health verifies the storage root is reachable and writable.
func (s *LocalFilesystemStorage) Health(ctx context.Context) (Health, error) {
	probe := filepath.Join(s.baseDir, ".health-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return Health{Healthy: false, Message: err.Error()}, nil
	}
	defer os.Remove(probe)
	return Health{Healthy: true}, nil
}

var _ ObjectStorage = (*LocalFilesystemStorage)(nil)
