// Package trash implements the TrashManager: reversible move-to-trash,
// restore, permanent deletion, and age/size-bounded cleanup.
package trash

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store"
	"github.com/clepho/clepho/internal/storeerr"
)

// Manager owns the on-disk trash tree and the Photo trash-tracking
// fields it moves in and out of.
type Manager struct {
	store        store.Store
	root         string
	maxAgeDays   int
	maxSizeBytes int64
}

func New(s store.Store, root string, maxAgeDays int, maxSizeBytes int64) *Manager {
	return &Manager{store: s, root: root, maxAgeDays: maxAgeDays, maxSizeBytes: maxSizeBytes}
}

// CleanupResult tallies a cleanup pass.
type CleanupResult struct {
	AgedOut   int
	OverLimit int
}

// Trash moves the photo's file into the trash root, prefixed with an
// 8-char random token to avoid filename collisions, and updates its
// Photo row (path, original_path, trashed_at).
func (m *Manager) Trash(ctx context.Context, photoID int64) error {
	p, err := m.store.GetPhotoByID(ctx, photoID)
	if err != nil {
		return fmt.Errorf("trash: lookup %d: %w", photoID, err)
	}
	if p == nil {
		return storeerr.New(storeerr.Conflict, "Trash", fmt.Errorf("photo %d not found", photoID))
	}
	if p.Trashed() {
		return storeerr.New(storeerr.Conflict, "Trash", fmt.Errorf("photo %d is already trashed", photoID))
	}

	token := uuid.New().String()[:8]
	dest := filepath.Join(m.root, token+"_"+filepath.Base(p.Path))

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("trash: create trash root: %w", err)
	}
	if err := moveFile(p.Path, dest); err != nil {
		return fmt.Errorf("trash: move %s: %w", p.Path, err)
	}

	now := time.Now().UTC()
	if err := m.store.UpdateTrashFields(ctx, photoID, dest, p.Path, &now); err != nil {
		return fmt.Errorf("trash: update row: %w", err)
	}
	return nil
}

// Restore moves a trashed photo's file back to its original path and
// clears the trash fields. If original_path already exists on disk,
// restoring would silently overwrite unrelated content, so it fails
// with RestoreConflict instead.
func (m *Manager) Restore(ctx context.Context, photoID int64) error {
	p, err := m.store.GetPhotoByID(ctx, photoID)
	if err != nil {
		return fmt.Errorf("trash: lookup %d: %w", photoID, err)
	}
	if p == nil || !p.Trashed() {
		return storeerr.New(storeerr.Conflict, "Restore", fmt.Errorf("photo %d is not trashed", photoID))
	}
	if _, err := os.Stat(p.OriginalPath); err == nil {
		return storeerr.New(storeerr.RestoreConflict, "Restore", fmt.Errorf("original path %s already exists", p.OriginalPath))
	}

	if err := os.MkdirAll(filepath.Dir(p.OriginalPath), 0o755); err != nil {
		return fmt.Errorf("trash: create parent dirs: %w", err)
	}
	if err := moveFile(p.Path, p.OriginalPath); err != nil {
		return fmt.Errorf("trash: move %s: %w", p.Path, err)
	}

	if err := m.store.UpdateTrashFields(ctx, photoID, p.OriginalPath, "", nil); err != nil {
		return fmt.Errorf("trash: update row: %w", err)
	}
	return nil
}

// Purge permanently deletes a trashed photo's file and row. Deletion
// cascades to embedding, faces, and similarity memberships.
func (m *Manager) Purge(ctx context.Context, photoID int64) error {
	p, err := m.store.GetPhotoByID(ctx, photoID)
	if err != nil {
		return fmt.Errorf("trash: lookup %d: %w", photoID, err)
	}
	if p == nil {
		return storeerr.New(storeerr.Conflict, "Purge", fmt.Errorf("photo %d not found", photoID))
	}
	if err := os.Remove(p.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("trash: remove %s: %w", p.Path, err)
	}
	if err := m.store.DeletePhoto(ctx, photoID); err != nil {
		return fmt.Errorf("trash: delete row: %w", err)
	}
	return nil
}

// Cleanup enumerates trashed photos and purges those older than
// max_age_days; if the remaining trash still exceeds max_size_bytes,
// purges oldest-first until under the limit.
func (m *Manager) Cleanup(ctx context.Context, now time.Time) (CleanupResult, error) {
	trashed, err := m.store.ListTrashed(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("trash: list trashed: %w", err)
	}

	var result CleanupResult
	var remaining []*photo.Photo
	maxAge := time.Duration(m.maxAgeDays) * 24 * time.Hour

	for _, p := range trashed {
		if p.TrashedAt != nil && now.Sub(*p.TrashedAt) >= maxAge {
			if err := m.Purge(ctx, p.ID); err != nil {
				return result, err
			}
			result.AgedOut++
			continue
		}
		remaining = append(remaining, p)
	}

	if m.maxSizeBytes < 0 {
		return result, nil
	}

	var total int64
	for _, p := range remaining {
		total += p.SizeBytes
	}
	// remaining is already trashed_at-ascending from ListTrashed, so
	// the oldest entries are purged first as total shrinks.
	for _, p := range remaining {
		if total <= m.maxSizeBytes {
			break
		}
		if err := m.Purge(ctx, p.ID); err != nil {
			return result, err
		}
		total -= p.SizeBytes
		result.OverLimit++
	}
	return result, nil
}

// moveFile renames src to dst, falling back to copy-then-delete when
// they live on different filesystems (rename across devices fails).
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
