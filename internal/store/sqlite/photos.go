package sqlite

import (
	"context"
	"database/sql"
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
	var modifiedAt, scannedAt, takenAt, trashedAt sql.NullString
	var gpsLat, gpsLng sql.NullFloat64
	var originalPath sql.NullString
	var markedForDeletion, isFavorite int

	err := row.Scan(
		&p.ID, &p.Path, &p.Filename, &p.Directory, &p.SizeBytes, &modifiedAt, &scannedAt,
		&p.Width, &p.Height, &p.Format, &p.Exif.CameraMake, &p.Exif.CameraModel, &p.Exif.Lens,
		&p.Exif.FocalLength, &p.Exif.Aperture, &p.Exif.ShutterSpeed, &p.Exif.ISO, &takenAt,
		&gpsLat, &gpsLng, &p.RawExif, &p.MD5, &p.SHA256, &p.PHash, &p.Description,
		&markedForDeletion, &isFavorite, &originalPath, &trashedAt,
	)
	if err != nil {
		return nil, err
	}

	if modifiedAt.Valid {
		p.ModifiedAt = parseTime(modifiedAt.String)
	}
	if scannedAt.Valid {
		p.ScannedAt = parseTime(scannedAt.String)
	}
	if takenAt.Valid && takenAt.String != "" {
		p.Exif.TakenAt = parseTimePtr(takenAt.String)
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
	if trashedAt.Valid && trashedAt.String != "" {
		p.TrashedAt = parseTimePtr(trashedAt.String)
	}
	p.MarkedForDeletion = markedForDeletion != 0
	p.IsFavorite = isFavorite != 0
	return &p, nil
}

func (b *Backend) UpsertPhoto(ctx context.Context, p *photo.Photo) (int64, error) {
	if p.Filename == "" {
		p.Filename = filepath.Base(p.Path)
	}
	if p.Directory == "" {
		p.Directory = filepath.Dir(p.Path)
	}

	res, err := b.db.ExecContext(ctx, `
		INSERT INTO photos (
			path, filename, directory, size_bytes, modified_at, scanned_at,
			width, height, format, camera_make, camera_model, lens, focal_length,
			aperture, shutter_speed, iso, taken_at, gps_lat, gps_lng, raw_exif,
			md5, sha256, phash, description, marked_for_deletion, is_favorite,
			original_path, trashed_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(path) DO UPDATE SET
			filename=excluded.filename, directory=excluded.directory, size_bytes=excluded.size_bytes,
			modified_at=excluded.modified_at, scanned_at=excluded.scanned_at, width=excluded.width,
			height=excluded.height, format=excluded.format, camera_make=excluded.camera_make,
			camera_model=excluded.camera_model, lens=excluded.lens, focal_length=excluded.focal_length,
			aperture=excluded.aperture, shutter_speed=excluded.shutter_speed, iso=excluded.iso,
			taken_at=excluded.taken_at, gps_lat=excluded.gps_lat, gps_lng=excluded.gps_lng,
			raw_exif=excluded.raw_exif, md5=excluded.md5, sha256=excluded.sha256, phash=excluded.phash
	`,
		p.Path, p.Filename, p.Directory, p.SizeBytes, timeToArg(p.ModifiedAt), timeToArg(p.ScannedAt),
		p.Width, p.Height, p.Format, p.Exif.CameraMake, p.Exif.CameraModel, p.Exif.Lens,
		p.Exif.FocalLength, p.Exif.Aperture, p.Exif.ShutterSpeed, p.Exif.ISO, timePtrToArg(p.Exif.TakenAt),
		p.Exif.GPSLatitude, p.Exif.GPSLongitude, p.RawExif, p.MD5, p.SHA256, p.PHash,
		p.Description, boolToInt(p.MarkedForDeletion), boolToInt(p.IsFavorite),
		nullableString(p.OriginalPath), timePtrToArg(p.TrashedAt),
	)
	if err != nil {
		return 0, storeerr.New(storeerr.Conflict, "UpsertPhoto", err)
	}
	// SQLite does not advance last_insert_rowid() when the statement
	// takes the ON CONFLICT DO UPDATE branch, and with a single sticky
	// connection LastInsertId() would otherwise return whatever the
	// connection's last real INSERT was. Always resolve the id by path.
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return 0, storeerr.New(storeerr.IOTransient, "UpsertPhoto", err)
	}
	existing, err := b.GetPhotoByPath(ctx, p.Path)
	if err != nil || existing == nil {
		return 0, storeerr.New(storeerr.IOTransient, "UpsertPhoto", err)
	}
	return existing.ID, nil
}

func (b *Backend) GetPhotoByPath(ctx context.Context, path string) (*photo.Photo, error) {
	row := b.db.QueryRowContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE path = ?", path)
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
	row := b.db.QueryRowContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE id = ?", id)
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
	rows, err := b.db.QueryContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE directory = ? ORDER BY filename", directory)
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
	_, err := b.db.ExecContext(ctx, "UPDATE photos SET description = ? WHERE id = ?", description, id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "UpdateDescription", err)
	}
	return nil
}

func (b *Backend) UpdateTrashFields(ctx context.Context, id int64, path, originalPath string, trashedAt *time.Time) error {
	_, err := b.db.ExecContext(ctx,
		"UPDATE photos SET path = ?, original_path = ?, trashed_at = ? WHERE id = ?",
		path, nullableString(originalPath), timePtrToArg(trashedAt), id,
	)
	if err != nil {
		return storeerr.New(storeerr.Conflict, "UpdateTrashFields", err)
	}
	return nil
}

func (b *Backend) DeletePhoto(ctx context.Context, id int64) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM photos WHERE id = ?", id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "DeletePhoto", err)
	}
	return nil
}

func (b *Backend) PhotosBySHA256(ctx context.Context, hex string) ([]*photo.Photo, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+photoColumns+" FROM photos WHERE sha256 = ? AND trashed_at IS NULL", hex)
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
	if filter.WithPHashOnly {
		query += " AND phash != ''"
	}
	if filter.ActiveOnly {
		query += " AND trashed_at IS NULL"
	}
	if filter.Directory != "" {
		query += " AND directory = ?"
		args = append(args, filter.Directory)
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

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
