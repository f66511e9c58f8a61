// Package migrate implements the one-shot copy from the embedded
// SQLite store to a networked PostgreSQL store. It runs in
// FK-dependency order and upserts via insert-if-absent so a rerun
// after a partial failure is safe: rows already present on the target
// are left untouched rather than re-copied.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clepho/clepho/internal/store/postgres"
	"github.com/clepho/clepho/internal/store/sqlite"
)

// Result reports how many rows were copied per table, for progress
// reporting by the caller (the `clepho migrate` command).
type Result struct {
	TableCounts map[string]int
}

// Run copies every table from src to dst in an order that respects
// foreign keys, preserving primary keys, then advances dst's SERIAL
// sequences past the copied ids so subsequent inserts on the
// PostgreSQL side don't collide with migrated rows.
func Run(ctx context.Context, src *sqlite.Backend, dst *postgres.Backend) (*Result, error) {
	res := &Result{TableCounts: make(map[string]int)}

	for _, t := range copyOrder {
		n, err := t.copy(ctx, src.DB(), dst.DB())
		if err != nil {
			return res, fmt.Errorf("migrate: table %s: %w", t.name, err)
		}
		res.TableCounts[t.name] = n
		if t.serial != "" {
			if err := bumpSequence(ctx, dst.DB(), t.name, t.serial); err != nil {
				return res, fmt.Errorf("migrate: bump sequence for %s: %w", t.name, err)
			}
		}
	}
	return res, nil
}

// table describes one table's copy: its column list (source order,
// used for both SELECT and INSERT), a conflict key for the
// insert-if-absent upsert, and the serial column to resequence
// afterwards (empty for tables with a composite key and no surrogate
// id).
type table struct {
	name       string
	columns    []string
	conflictOn string
	serial     string
	convert    func(vals []any) []any // per-column type massaging, nil = passthrough
}

var copyOrder = []table{
	{
		name: "photos",
		columns: []string{
			"id", "path", "filename", "directory", "size_bytes", "modified_at", "scanned_at",
			"width", "height", "format", "camera_make", "camera_model", "lens", "focal_length",
			"aperture", "shutter_speed", "iso", "taken_at", "gps_lat", "gps_lng", "raw_exif",
			"md5", "sha256", "phash", "description", "marked_for_deletion", "is_favorite",
			"original_path", "trashed_at",
		},
		conflictOn: "id",
		serial:     "id",
		convert:    convertTimestamps(5, 6, 17, 28),
	},
	{
		name:       "embeddings",
		columns:    []string{"photo_id", "vector", "model_name"},
		conflictOn: "photo_id",
		convert:    convertVector(1),
	},
	{name: "people", columns: []string{"id", "name"}, conflictOn: "id", serial: "id"},
	{
		name: "faces",
		columns: []string{
			"id", "photo_id", "bbox_x", "bbox_y", "bbox_w", "bbox_h", "embedding", "person_id", "confidence",
		},
		conflictOn: "id",
		serial:     "id",
		convert:    convertVector(6),
	},
	{name: "face_clusters", columns: []string{"id"}, conflictOn: "id", serial: "id"},
	{
		name:       "face_cluster_members",
		columns:    []string{"cluster_id", "face_id"},
		conflictOn: "cluster_id, face_id",
	},
	{
		name:       "face_scans",
		columns:    []string{"photo_id", "face_count", "scanned_at"},
		conflictOn: "photo_id",
		convert:    convertTimestamps(2),
	},
	{name: "similarity_groups", columns: []string{"id", "kind"}, conflictOn: "id", serial: "id"},
	{
		name:       "photo_similarity",
		columns:    []string{"group_id", "photo_id"},
		conflictOn: "group_id, photo_id",
	},
	{
		name: "scheduled_tasks",
		columns: []string{
			"id", "kind", "target_path", "photo_ids", "scheduled_at", "hours_start", "hours_end",
			"status", "created_at", "started_at", "completed_at", "error_message",
		},
		conflictOn: "id",
		serial:     "id",
		convert:    convertTimestamps(4, 8, 9, 10),
	},
	{
		name:       "directory_prompts",
		columns:    []string{"directory", "prompt"},
		conflictOn: "directory",
	},
	{name: "user_tags", columns: []string{"id", "name"}, conflictOn: "id", serial: "id"},
	{
		name:       "photo_user_tags",
		columns:    []string{"photo_id", "tag_id"},
		conflictOn: "photo_id, tag_id",
	},
	{
		name:       "albums",
		columns:    []string{"id", "title", "description"},
		conflictOn: "id",
		serial:     "id",
	},
	{
		name:       "album_photos",
		columns:    []string{"album_id", "photo_id", "position"},
		conflictOn: "album_id, photo_id",
	},
	{
		name:       "scans",
		columns:    []string{"id", "target_path", "started_at", "finished_at", "new_count", "updated_count", "failed_count"},
		conflictOn: "id",
		serial:     "id",
		convert:    convertTimestamps(2, 3),
	},
	{
		name:       "llm_queue",
		columns:    []string{"id", "photo_id", "status", "enqueued_at"},
		conflictOn: "id",
		serial:     "id",
		convert:    convertTimestamps(3),
	},
}

func (t table) copy(ctx context.Context, src, dst *sql.DB) (int, error) {
	colList := joinColumns(t.columns)
	rows, err := src.QueryContext(ctx, "SELECT "+colList+" FROM "+t.name)
	if err != nil {
		return 0, fmt.Errorf("select from source: %w", err)
	}
	defer rows.Close()

	placeholders := make([]string, len(t.columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING",
		t.name, colList, joinPlaceholders(placeholders), t.conflictOn,
	)

	n := 0
	for rows.Next() {
		vals := make([]any, len(t.columns))
		ptrs := make([]any, len(t.columns))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return n, fmt.Errorf("scan row: %w", err)
		}
		if t.convert != nil {
			vals = t.convert(vals)
		}
		res, err := dst.ExecContext(ctx, insert, vals...)
		if err != nil {
			return n, fmt.Errorf("insert row: %w", err)
		}
		if affected, err := res.RowsAffected(); err == nil {
			n += int(affected)
		}
	}
	return n, rows.Err()
}

func bumpSequence(ctx context.Context, dst *sql.DB, tableName, serialCol string) error {
	_, err := dst.ExecContext(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s', '%s'), COALESCE((SELECT MAX(%s) FROM %s), 1))`,
		tableName, serialCol, serialCol, tableName,
	))
	return err
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}

func joinPlaceholders(ph []string) string {
	out := ""
	for i, p := range ph {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
