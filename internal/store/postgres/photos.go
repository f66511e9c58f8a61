package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/storeerr"
)

const photoColumns = `
	id, path, filename, directory, size_bytes, modified_at, scanned_at,
	width, height, format, camera_make, camera_model, lens, focal_length,
	aperture, shutter_speed, iso, taken_at, gps_lat, gps_lng, raw_exif,
	md5, sha256, phash, description, marked_for_deletion, is_favorite,
	original_path, trashed_at
`

func scanPhoto(row interface{ Scan(...any) error }) (*photo.Photo, error) {
	var p photo.Photo
	var modifiedAt, scannedAt, takenAt, trashedAt sql.NullTime
	var gpsLat, gpsLng sql.NullFloat64
	var originalPath sql.NullString

	err := row.Scan(
		&p.ID, &p.Path, &p.Filename, &p.Directory, &p.SizeBytes, &modifiedAt, &scannedAt,
		&p.Width, &p.Height, &p.Format, &p.Exif.CameraMake, &p.Exif.CameraModel, &p.Exif.Lens,
		&p.Exif.FocalLength, &p.Exif.Aperture, &p.Exif.ShutterSpeed, &p.Exif.ISO, &takenAt,
		&gpsLat, &gpsLng, &p.RawExif, &p.MD5, &p.SHA256, &p.PHash, &p.Description,
		&p.MarkedForDeletion, &p.IsFavorite, &originalPath, &trashedAt,
	)
	if err != nil {
		return nil, err
	}

	if modifiedAt.Valid {
		p.ModifiedAt = modifiedAt.Time
	}
	if scannedAt.Valid {
		p.ScannedAt = scannedAt.Time
	}
	if takenAt.Valid {
		t := takenAt.Time
		p.Exif.TakenAt = &t
	}
	if gpsLat.Valid {
		v := gpsLat.Float64
		p.Exif.GPSLatitude = &v
	}
	if gpsLng.Valid {
		v := gpsLng.Float64
		p.Exif.GPSLongitude = &v
	}
	if originalPath.Valid {
		p.OriginalPath = originalPath.String
	}
	if trashedAt.Valid {
		t := trashedAt.Time
		p.TrashedAt = &t
	}
	return &p, nil
}

// UpsertPhoto inserts a new row or, when the path already exists,
// updates it in place — the "insert or update by path" operation the
// Scanner uses for both new and modified files.
func (b *Backend) UpsertPhoto(ctx context.Context, p *photo.Photo) (int64, error) {
	if p.Filename == "" {
		p.Filename = filepath.Base(p.Path)
	}
	if p.Directory == "" {
		p.Directory = filepath.Dir(p.Path)
	}

	var id int64
	err := b.db.QueryRowContext(ctx, `
		INSERT INTO photos (
			path, filename, directory, size_bytes, modified_at, scanned_at,
			width, height, format, camera_make, camera_model, lens, focal_length,
			aperture, shutter_speed, iso, taken_at, gps_lat, gps_lng, raw_exif,
			md5, sha256, phash, description, marked_for_deletion, is_favorite,
			original_path, trashed_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
			$20,$21,$22,$23,$24,$25,$26,$27,$28
		)
		ON CONFLICT (path) DO UPDATE SET
			filename = EXCLUDED.filename,
			directory = EXCLUDED.directory,
			size_bytes = EXCLUDED.size_bytes,
			modified_at = EXCLUDED.modified_at,
			scanned_at = EXCLUDED.scanned_at,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			format = EXCLUDED.format,
			camera_make = EXCLUDED.camera_make,
			camera_model = EXCLUDED.camera_model,
			lens = EXCLUDED.lens,
			focal_length = EXCLUDED.focal_length,
			aperture = EXCLUDED.aperture,
			shutter_speed = EXCLUDED.shutter_speed,
			iso = EXCLUDED.iso,
			taken_at = EXCLUDED.taken_at,
			gps_lat = EXCLUDED.gps_lat,
			gps_lng = EXCLUDED.gps_lng,
			raw_exif = EXCLUDED.raw_exif,
			md5 = EXCLUDED.md5,
			sha256 = EXCLUDED.sha256,
			phash = EXCLUDED.phash,
			description = photos.description
		RETURNING id
	`,
		p.Path, p.Filename, p.Directory, p.SizeBytes, p.ModifiedAt, p.ScannedAt,
		p.Width, p.Height, p.Format, p.Exif.CameraMake, p.Exif.CameraModel, p.Exif.Lens,
		p.Exif.FocalLength, p.Exif.Aperture, p.Exif.ShutterSpeed, p.Exif.ISO, p.Exif.TakenAt,
		p.Exif.GPSLatitude, p.Exif.GPSLongitude, p.RawExif, p.MD5, p.SHA256, p.PHash,
		p.Description, p.MarkedForDeletion, p.IsFavorite, nullableString(p.OriginalPath), p.TrashedAt,
	).Scan(&id)
	if err != nil {
		return 0, storeerr.New(conflictOrIO(err), "UpsertPhoto", err)
	}
	return id, nil
}

func (b *Backend) GetPhotoByPath(ctx context.Context, path string) (*photo.Photo, error) {
	row := b.db.QueryRowContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE path = $1", path)
	p, err := scanPhoto(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeerr.New(storeerr.IOTransient, "GetPhotoByPath", err)
	}
	return p, nil
}

func (b *Backend) GetPhotoByID(ctx context.Context, id int64) (*photo.Photo, error) {
	row := b.db.QueryRowContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE id = $1", id)
	p, err := scanPhoto(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeerr.New(storeerr.IOTransient, "GetPhotoByID", err)
	}
	return p, nil
}

func (b *Backend) ListPhotosByDirectory(ctx context.Context, directory string) ([]*photo.Photo, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE directory = $1 ORDER BY filename", directory)
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ListPhotosByDirectory", err)
	}
	defer rows.Close()

	var out []*photo.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "ListPhotosByDirectory", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *Backend) ListTrashed(ctx context.Context) ([]*photo.Photo, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE trashed_at IS NOT NULL ORDER BY trashed_at")
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ListTrashed", err)
	}
	defer rows.Close()

	var out []*photo.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "ListTrashed", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *Backend) UpdateDescription(ctx context.Context, id int64, description string) error {
	_, err := b.db.ExecContext(ctx, "UPDATE photos SET description = $1 WHERE id = $2", description, id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "UpdateDescription", err)
	}
	return nil
}

func (b *Backend) UpdateTrashFields(ctx context.Context, id int64, path, originalPath string, trashedAt *time.Time) error {
	_, err := b.db.ExecContext(ctx,
		"UPDATE photos SET path = $1, original_path = $2, trashed_at = $3 WHERE id = $4",
		path, nullableString(originalPath), trashedAt, id,
	)
	if err != nil {
		return storeerr.New(conflictOrIO(err), "UpdateTrashFields", err)
	}
	return nil
}

func (b *Backend) DeletePhoto(ctx context.Context, id int64) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM photos WHERE id = $1", id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "DeletePhoto", err)
	}
	return nil
}

func (b *Backend) PhotosBySHA256(ctx context.Context, hex string) ([]*photo.Photo, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE sha256 = $1 AND trashed_at IS NULL", hex)
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "PhotosBySHA256", err)
	}
	defer rows.Close()

	var out []*photo.Photo
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "PhotosBySHA256", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (b *Backend) PhotosWithPerceptualHash(ctx context.Context, filter photo.Filter) ([]photo.PerceptualCandidate, error) {
	query := `SELECT id, phash, width, height, size_bytes, path FROM photos WHERE 1=1`
	var args []any
	n := 1
	if filter.WithPHashOnly {
		query += " AND phash != ''"
	}
	if filter.ActiveOnly {
		query += " AND trashed_at IS NULL"
	}
	if filter.Directory != "" {
		query += fmt.Sprintf(" AND directory = $%d", n)
		args = append(args, filter.Directory)
		n++
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "PhotosWithPerceptualHash", err)
	}
	defer rows.Close()

	var out []photo.PerceptualCandidate
	for rows.Next() {
		var c photo.PerceptualCandidate
		if err := rows.Scan(&c.ID, &c.PHash, &c.Width, &c.Height, &c.SizeBytes, &c.Path); err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "PhotosWithPerceptualHash", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (b *Backend) ExactDuplicateGroups(ctx context.Context) (map[string][]int64, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT sha256, id FROM photos
		WHERE trashed_at IS NULL AND sha256 IN (
			SELECT sha256 FROM photos WHERE trashed_at IS NULL AND sha256 != '' GROUP BY sha256 HAVING count(*) > 1
		)
		ORDER BY sha256
	`)
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ExactDuplicateGroups", err)
	}
	defer rows.Close()

	groups := make(map[string][]int64)
	for rows.Next() {
		var sha string
		var id int64
		if err := rows.Scan(&sha, &id); err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "ExactDuplicateGroups", err)
		}
		groups[sha] = append(groups[sha], id)
	}
	return groups, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func conflictOrIO(err error) storeerr.Kind {
	if isUniqueViolation(err) {
		return storeerr.Conflict
	}
	return storeerr.IOTransient
}
