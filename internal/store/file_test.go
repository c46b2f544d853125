package store_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/torosent/rangefetch/internal/resource"
	"github.com/torosent/rangefetch/internal/store"
)

func newFileStore(t *testing.T) (*store.FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewFileStore(dir, store.DefaultKeyTemplate)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestFileStoreWriteThenExists(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, 3)
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if ok {
		t.Fatal("Exists() = true before write")
	}

	if err := s.Write(ctx, 3, []byte("three")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	ok, err = s.Exists(ctx, 3)
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v after write", ok, err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "book_3.txt"))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(got) != "three" {
		t.Errorf("stored content = %q, want %q", got, "three")
	}
}

func TestFileStoreNeverOverwrites(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	if err := s.Write(ctx, 1, []byte("original")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	err := s.Write(ctx, 1, []byte("replacement"))
	if !errors.Is(err, store.ErrExists) {
		t.Fatalf("second Write() error = %v, want ErrExists", err)
	}

	got, _ := os.ReadFile(filepath.Join(dir, "book_1.txt"))
	if string(got) != "original" {
		t.Errorf("content = %q, want original", got)
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	_ = s.Write(ctx, 1, []byte("a"))
	_ = s.Write(ctx, 1, []byte("b"))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreConcurrentWritesSameKey(t *testing.T) {
	s, _ := newFileStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Write(ctx, 9, []byte("nine"))
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrExists) {
				t.Errorf("Write() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Errorf("successful writes = %d, want 1", success)
	}
}

func TestFileStoreDirectoryLock(t *testing.T) {
	s, dir := newFileStore(t)

	if _, err := store.NewFileStore(dir, store.DefaultKeyTemplate); !errors.Is(err, store.ErrLocked) {
		t.Fatalf("second NewFileStore() error = %v, want ErrLocked", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	again, err := store.NewFileStore(dir, store.DefaultKeyTemplate)
	if err != nil {
		t.Fatalf("NewFileStore() after Close error = %v", err)
	}
	_ = again.Close()
}

func TestFileStoreNestedKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := store.NewFileStore(dir, "books/{id}/pg{id}.txt")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	defer s.Close()

	if err := s.Write(context.Background(), 12, []byte("x")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "books", "12", "pg12.txt")); err != nil {
		t.Errorf("nested file missing: %v", err)
	}
	if !strings.HasSuffix(s.URI(12), "/books/12/pg12.txt") {
		t.Errorf("URI() = %q", s.URI(12))
	}
}

func TestFileStoreRejectsEscapingKeys(t *testing.T) {
	for _, keys := range []string{"../book_{id}.txt", "/tmp/book_{id}.txt", "book.txt"} {
		if _, err := store.NewFileStore(t.TempDir(), resource.Template(keys)); !errors.Is(err, store.ErrInvalidKey) {
			t.Errorf("NewFileStore(%q) error = %v, want ErrInvalidKey", keys, err)
		}
	}
}

func TestFileStoreCancelledContext(t *testing.T) {
	s, _ := newFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Write(ctx, 1, []byte("x")); !errors.Is(err, context.Canceled) {
		t.Fatalf("Write() error = %v, want context.Canceled", err)
	}
	ok, _ := s.Exists(context.Background(), 1)
	if ok {
		t.Error("resource stored despite cancelled context")
	}
}

func TestFileStoreWithoutHardLinks(t *testing.T) {
	s, dir := newFileStore(t)
	ctx := context.Background()

	var linkCalls int
	store.SetLink(s, func(oldname, newname string) error {
		linkCalls++
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: syscall.EPERM}
	})

	if err := s.Write(ctx, 1, []byte("first")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := s.Write(ctx, 2, []byte("second")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if linkCalls != 1 {
		t.Errorf("link attempted %d times, want 1", linkCalls)
	}

	data, err := os.ReadFile(filepath.Join(dir, "book_1.txt"))
	if err != nil || string(data) != "first" {
		t.Fatalf("book_1.txt = %q, %v", data, err)
	}

	err = s.Write(ctx, 1, []byte("replacement"))
	if !errors.Is(err, store.ErrExists) {
		t.Fatalf("overwrite error = %v, want ErrExists", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "book_1.txt"))
	if string(data) != "first" {
		t.Errorf("book_1.txt overwritten: %q", data)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreLinkErrorsStillFail(t *testing.T) {
	s, dir := newFileStore(t)
	store.SetLink(s, func(oldname, newname string) error {
		return &os.LinkError{Op: "link", Old: oldname, New: newname, Err: syscall.EIO}
	})

	if err := s.Write(context.Background(), 1, []byte("x")); err == nil || errors.Is(err, store.ErrExists) {
		t.Fatalf("Write() error = %v, want a publish failure", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "book_1.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("book_1.txt exists after failed publish: %v", err)
	}
}
