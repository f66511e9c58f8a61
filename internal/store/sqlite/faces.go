package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/storeerr"
)

const faceColumns = "id, photo_id, bbox_x, bbox_y, bbox_w, bbox_h, embedding, person_id, confidence"

func scanFace(row interface{ Scan(...any) error }) (*photo.Face, error) {
	var f photo.Face
	var blob []byte
	var personID sql.NullInt64
	if err := row.Scan(&f.ID, &f.PhotoID, &f.BBoxX, &f.BBoxY, &f.BBoxW, &f.BBoxH, &blob, &personID, &f.Confidence); err != nil {
		return nil, err
	}
	f.Embedding = decodeVector(blob)
	if personID.Valid {
		v := personID.Int64
		f.PersonID = &v
	}
	return &f, nil
}

func (b *Backend) InsertFace(ctx context.Context, f *photo.Face) (int64, error) {
	res, err := b.db.ExecContext(ctx, `
		INSERT INTO faces (photo_id, bbox_x, bbox_y, bbox_w, bbox_h, embedding, person_id, confidence)
		VALUES (?,?,?,?,?,?,?,?)
	`, f.PhotoID, f.BBoxX, f.BBoxY, f.BBoxW, f.BBoxH, encodeVector(f.Embedding), f.PersonID, f.Confidence)
	if err != nil {
		return 0, storeerr.New(storeerr.Conflict, "InsertFace", err)
	}
	return res.LastInsertId()
}

func (b *Backend) GetFacesByPhoto(ctx context.Context, photoID int64) ([]*photo.Face, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+faceColumns+" FROM faces WHERE photo_id = ?", photoID)
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "GetFacesByPhoto", err)
	}
	defer rows.Close()
	return collectFaces(rows)
}

func (b *Backend) GetFacesByPerson(ctx context.Context, personID int64) ([]*photo.Face, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+faceColumns+" FROM faces WHERE person_id = ?", personID)
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "GetFacesByPerson", err)
	}
	defer rows.Close()
	return collectFaces(rows)
}

func (b *Backend) AllFaceEmbeddings(ctx context.Context) ([]*photo.Face, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+faceColumns+" FROM faces")
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "AllFaceEmbeddings", err)
	}
	defer rows.Close()
	return collectFaces(rows)
}

func collectFaces(rows *sql.Rows) ([]*photo.Face, error) {
	var out []*photo.Face
	for rows.Next() {
		f, err := scanFace(rows)
		if err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "collectFaces", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (b *Backend) LinkFaceToPerson(ctx context.Context, faceID int64, personID *int64) error {
	_, err := b.db.ExecContext(ctx, "UPDATE faces SET person_id = ? WHERE id = ?", personID, faceID)
	if err != nil {
		return storeerr.New(storeerr.Conflict, "LinkFaceToPerson", err)
	}
	return nil
}

func (b *Backend) CreatePerson(ctx context.Context, name string) (int64, error) {
	res, err := b.db.ExecContext(ctx, "INSERT INTO people (name) VALUES (?)", name)
	if err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreatePerson", err)
	}
	return res.LastInsertId()
}

func (b *Backend) RenamePerson(ctx context.Context, id int64, name string) error {
	_, err := b.db.ExecContext(ctx, "UPDATE people SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "RenamePerson", err)
	}
	return nil
}

func (b *Backend) DeletePerson(ctx context.Context, id int64) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM people WHERE id = ?", id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "DeletePerson", err)
	}
	return nil
}

func (b *Backend) CreateFaceCluster(ctx context.Context, faceIDs []int64) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreateFaceCluster", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "INSERT INTO face_clusters DEFAULT VALUES")
	if err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreateFaceCluster", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreateFaceCluster", err)
	}
	for _, fid := range faceIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO face_cluster_members (cluster_id, face_id) VALUES (?,?)", id, fid); err != nil {
			return 0, storeerr.New(storeerr.Conflict, "CreateFaceCluster", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreateFaceCluster", err)
	}
	return id, nil
}

func (b *Backend) AddClusterMembers(ctx context.Context, clusterID int64, faceIDs []int64) error {
	for _, fid := range faceIDs {
		if _, err := b.db.ExecContext(ctx,
			"INSERT OR IGNORE INTO face_cluster_members (cluster_id, face_id) VALUES (?,?)", clusterID, fid); err != nil {
			return storeerr.New(storeerr.Conflict, "AddClusterMembers", err)
		}
	}
	return nil
}

func (b *Backend) ListFaceClusters(ctx context.Context) ([]*photo.FaceCluster, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT cluster_id, face_id FROM face_cluster_members ORDER BY cluster_id")
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ListFaceClusters", err)
	}
	defer rows.Close()

	byID := make(map[int64]*photo.FaceCluster)
	var order []int64
	for rows.Next() {
		var clusterID, faceID int64
		if err := rows.Scan(&clusterID, &faceID); err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "ListFaceClusters", err)
		}
		c, ok := byID[clusterID]
		if !ok {
			c = &photo.FaceCluster{ID: clusterID}
			byID[clusterID] = c
			order = append(order, clusterID)
		}
		c.FaceIDs = append(c.FaceIDs, faceID)
	}
	if err := rows.Err(); err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ListFaceClusters", err)
	}

	out := make([]*photo.FaceCluster, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

func (b *Backend) MarkScanned(ctx context.Context, photoID int64, count int) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO face_scans (photo_id, face_count, scanned_at) VALUES (?,?,?)
		ON CONFLICT(photo_id) DO UPDATE SET face_count = excluded.face_count, scanned_at = excluded.scanned_at
	`, photoID, count, timeToArg(time.Now()))
	if err != nil {
		return storeerr.New(storeerr.Conflict, "MarkScanned", err)
	}
	return nil
}

func (b *Backend) IsScanned(ctx context.Context, photoID int64) (bool, error) {
	var exists int
	err := b.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM face_scans WHERE photo_id = ?)", photoID).Scan(&exists)
	if err != nil {
		return false, storeerr.New(storeerr.IOTransient, "IsScanned", err)
	}
	return exists != 0, nil
}
