package postgres

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/storeerr"
)

func scanFace(row interface{ Scan(...any) error }) (*photo.Face, error) {
	var f photo.Face
	var vec pgvector.Vector
	var personID sql.NullInt64
	if err := row.Scan(&f.ID, &f.PhotoID, &f.BBoxX, &f.BBoxY, &f.BBoxW, &f.BBoxH, &vec, &personID, &f.Confidence); err != nil {
		return nil, err
	}
	f.Embedding = vec.Slice()
	if personID.Valid {
		v := personID.Int64
		f.PersonID = &v
	}
	return &f, nil
}

const faceColumns = "id, photo_id, bbox_x, bbox_y, bbox_w, bbox_h, embedding, person_id, confidence"

func (b *Backend) InsertFace(ctx context.Context, f *photo.Face) (int64, error) {
	var id int64
	err := b.db.QueryRowContext(ctx, `
		INSERT INTO faces (photo_id, bbox_x, bbox_y, bbox_w, bbox_h, embedding, person_id, confidence)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id
	`, f.PhotoID, f.BBoxX, f.BBoxY, f.BBoxW, f.BBoxH, pgvector.NewVector(f.Embedding), f.PersonID, f.Confidence).Scan(&id)
	if err != nil {
		return 0, storeerr.New(conflictOrIO(err), "InsertFace", err)
	}
	return id, nil
}

func (b *Backend) GetFacesByPhoto(ctx context.Context, photoID int64) ([]*photo.Face, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+faceColumns+" FROM faces WHERE photo_id = $1", photoID)
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "GetFacesByPhoto", err)
	}
	defer rows.Close()
	return collectFaces(rows)
}

func (b *Backend) GetFacesByPerson(ctx context.Context, personID int64) ([]*photo.Face, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT "+faceColumns+" FROM faces WHERE person_id = $1", personID)
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
	_, err := b.db.ExecContext(ctx, "UPDATE faces SET person_id = $1 WHERE id = $2", personID, faceID)
	if err != nil {
		return storeerr.New(conflictOrIO(err), "LinkFaceToPerson", err)
	}
	return nil
}

func (b *Backend) CreatePerson(ctx context.Context, name string) (int64, error) {
	var id int64
	err := b.db.QueryRowContext(ctx, "INSERT INTO people (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreatePerson", err)
	}
	return id, nil
}

func (b *Backend) RenamePerson(ctx context.Context, id int64, name string) error {
	_, err := b.db.ExecContext(ctx, "UPDATE people SET name = $1 WHERE id = $2", name, id)
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "RenamePerson", err)
	}
	return nil
}

// DeletePerson removes the person; faces.person_id nulls out via
// ON DELETE SET NULL, breaking the Photo <-> Face <-> Person cycle.
func (b *Backend) DeletePerson(ctx context.Context, id int64) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM people WHERE id = $1", id)
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

	var id int64
	if err := tx.QueryRowContext(ctx, "INSERT INTO face_clusters DEFAULT VALUES RETURNING id").Scan(&id); err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreateFaceCluster", err)
	}
	for _, fid := range faceIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO face_cluster_members (cluster_id, face_id) VALUES ($1,$2)", id, fid); err != nil {
			return 0, storeerr.New(conflictOrIO(err), "CreateFaceCluster", err)
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
			"INSERT INTO face_cluster_members (cluster_id, face_id) VALUES ($1,$2) ON CONFLICT DO NOTHING",
			clusterID, fid); err != nil {
			return storeerr.New(conflictOrIO(err), "AddClusterMembers", err)
		}
	}
	return nil
}

func (b *Backend) ListFaceClusters(ctx context.Context) ([]*photo.FaceCluster, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT cluster_id, face_id FROM face_cluster_members ORDER BY cluster_id
	`)
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
		INSERT INTO face_scans (photo_id, face_count, scanned_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (photo_id) DO UPDATE SET face_count = EXCLUDED.face_count, scanned_at = EXCLUDED.scanned_at
	`, photoID, count)
	if err != nil {
		return storeerr.New(conflictOrIO(err), "MarkScanned", err)
	}
	return nil
}

func (b *Backend) IsScanned(ctx context.Context, photoID int64) (bool, error) {
	var exists bool
	err := b.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM face_scans WHERE photo_id = $1)", photoID).Scan(&exists)
	if err != nil {
		return false, storeerr.New(storeerr.IOTransient, "IsScanned", err)
	}
	return exists, nil
}
