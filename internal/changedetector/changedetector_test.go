package changedetector

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store"
)

// fakeStore is a minimal store.Store covering only GetPhotoByPath, the
// single method Check calls.
type fakeStore struct {
	mu     sync.Mutex
	byPath map[string]*photo.Photo
	store.Store
}

func (f *fakeStore) GetPhotoByPath(ctx context.Context, path string) (*photo.Photo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byPath[path], nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{byPath: make(map[string]*photo.Photo)}
}

func TestCheckClassifiesNewAndModified(t *testing.T) {
	dir := t.TempDir()
	oldTime := time.Now().Add(-24 * time.Hour)

	unchangedPath := filepath.Join(dir, "unchanged.jpg")
	modifiedPath := filepath.Join(dir, "modified.jpg")
	newPath := filepath.Join(dir, "new.jpg")

	for _, p := range []string{unchangedPath, modifiedPath, newPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Chtimes(unchangedPath, oldTime, oldTime); err != nil {
		t.Fatal(err)
	}

	s := newFakeStore()
	s.byPath[unchangedPath] = &photo.Photo{Path: unchangedPath, ModifiedAt: oldTime}
	s.byPath[modifiedPath] = &photo.Photo{Path: modifiedPath, ModifiedAt: oldTime}

	d := New(s, map[string]bool{".jpg": true})
	result, err := d.Check(context.Background(), dir)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if len(result.New) != 1 || result.New[0] != newPath {
		t.Errorf("New = %v, want [%s]", result.New, newPath)
	}
	if len(result.Modified) != 1 || result.Modified[0] != modifiedPath {
		t.Errorf("Modified = %v, want [%s]", result.Modified, modifiedPath)
	}
}

func TestCheckIgnoresUnconfiguredExtensions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := New(newFakeStore(), map[string]bool{".jpg": true})
	result, err := d.Check(context.Background(), dir)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(result.New) != 0 || len(result.Modified) != 0 {
		t.Errorf("expected no matches for a non-image file, got %+v", result)
	}
}

func TestCheckIsNonRecursive(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "nested.jpg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	d := New(newFakeStore(), map[string]bool{".jpg": true})
	result, err := d.Check(context.Background(), dir)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(result.New) != 0 {
		t.Errorf("expected nested file to be excluded from a non-recursive check, got %v", result.New)
	}
}
