package objectstorage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStorage(t *testing.T) *LocalFilesystemStorage {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLocalFilesystemStorage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC) }
	return s
}

func TestSaveWithSubdirsUsesYearMonthDayScheme(t *testing.T) {
	s := newTestStorage(t)
	obj, err := s.Save(context.Background(), []byte("hello"), "report.pdf", SaveOptions{CreateSubdirs: true, NameStrategy: NameOriginal})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(obj.Path, "2026/03/15/") {
		t.Fatalf("expected YYYY/MM/DD prefix, got %q", obj.Path)
	}
	if !strings.HasPrefix(obj.FileName, "report_") || !strings.HasSuffix(obj.FileName, ".pdf") {
		t.Fatalf("expected original stem with epoch suffix, got %q", obj.FileName)
	}
}

func TestSaveWithUUIDStrategyGeneratesRandomStem(t *testing.T) {
	s := newTestStorage(t)
	obj, err := s.Save(context.Background(), []byte("hello"), "report.pdf", SaveOptions{NameStrategy: NameUUID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.HasPrefix(obj.FileName, "report_") {
		t.Fatalf("expected uuid stem, not original filename, got %q", obj.FileName)
	}
}

func TestGetReturnsSavedBytes(t *testing.T) {
	s := newTestStorage(t)
	obj, err := s.Save(context.Background(), []byte("payload"), "doc.pdf", SaveOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := s.Get(context.Background(), obj.Path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("expected round-tripped bytes, got %q", data)
	}
}

func TestGetFailsForMissingObject(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Get(context.Background(), "nope.pdf"); err == nil {
		t.Fatal("expected an error for a missing object")
	}
}

func TestExistsReflectsSaveAndDelete(t *testing.T) {
	s := newTestStorage(t)
	obj, err := s.Save(context.Background(), []byte("x"), "doc.pdf", SaveOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := s.Exists(context.Background(), obj.Path)
	if err != nil || !ok {
		t.Fatalf("expected object to exist, ok=%v err=%v", ok, err)
	}

	if err := s.Delete(context.Background(), obj.Path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err = s.Exists(context.Background(), obj.Path)
	if err != nil || ok {
		t.Fatalf("expected object to no longer exist, ok=%v err=%v", ok, err)
	}
}

func TestDeleteOfMissingObjectIsNotAnError(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Delete(context.Background(), "nope.pdf"); err != nil {
		t.Fatalf("expected delete of a missing object to be a no-op, got %v", err)
	}
}

func TestResolveRejectsPathEscapingStorageRoot(t *testing.T) {
	s := newTestStorage(t)
	if _, err := s.Get(context.Background(), "../../etc/passwd"); err == nil {
		t.Fatal("expected an error for a path escaping the storage root")
	}
}

func TestHealthReportsHealthyForWritableRoot(t *testing.T) {
	s := newTestStorage(t)
	health, err := s.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !health.Healthy {
		t.Fatalf("expected a writable temp dir to report healthy, got %+v", health)
	}
}

func TestMimeTypeFallsBackToOctetStreamForUnknownExtension(t *testing.T) {
	if got := mimeTypeFor("file.unknownext12345"); got != "application/octet-stream" {
		t.Fatalf("expected fallback mime type, got %q", got)
	}
}

func TestNewLocalFilesystemStorageCreatesBaseDirectoryIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "storage")
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected directory not to exist yet")
	}
	s, err := NewLocalFilesystemStorage(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected base directory to be created, got %v", err)
	}
	_ = s
}
