// Package changedetector diffs a single directory's filesystem state
// against the Store without touching file contents: a cheap precursor
// to a full Scanner pass over a chosen subset.
package changedetector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clepho/clepho/internal/store"
)

// Result is the classification for one directory listing.
type Result struct {
	New      []string
	Modified []string
}

// Detector holds the configuration needed to filter and classify a
// directory listing.
type Detector struct {
	store           store.Store
	imageExtensions map[string]bool
}

func New(s store.Store, imageExtensions map[string]bool) *Detector {
	return &Detector{store: s, imageExtensions: imageExtensions}
}

// Check lists directory non-recursively, filters by the configured
// image extensions, and classifies each remaining entry as NEW (no
// Store row for this path) or MODIFIED (fs-mtime newer than the stored
// mtime). Deletion is intentionally not detected: a path present in
// Store but absent from the listing may simply live on an unmounted
// volume.
func (d *Detector) Check(ctx context.Context, directory string) (Result, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return Result{}, fmt.Errorf("changedetector: read %s: %w", directory, err)
	}

	var result Result
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !d.imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		path := filepath.Join(directory, entry.Name())

		info, err := entry.Info()
		if err != nil {
			continue // entry vanished between ReadDir and Info; skip it
		}

		existing, err := d.store.GetPhotoByPath(ctx, path)
		if err != nil {
			return Result{}, fmt.Errorf("changedetector: lookup %s: %w", path, err)
		}
		switch {
		case existing == nil:
			result.New = append(result.New, path)
		case info.ModTime().After(existing.ModifiedAt):
			result.Modified = append(result.Modified, path)
		}
	}
	return result, nil
}
