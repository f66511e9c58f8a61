package postgres

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/storeerr"
)

func (b *Backend) PutEmbedding(ctx context.Context, e *photo.Embedding) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO embeddings (photo_id, vector, model_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (photo_id) DO UPDATE SET vector = EXCLUDED.vector, model_name = EXCLUDED.model_name
	`, e.PhotoID, pgvector.NewVector(e.Vector), e.ModelName)
	if err != nil {
		return storeerr.New(conflictOrIO(err), "PutEmbedding", err)
	}
	return nil
}

func (b *Backend) GetEmbedding(ctx context.Context, photoID int64) (*photo.Embedding, error) {
	var vec pgvector.Vector
	e := &photo.Embedding{PhotoID: photoID}
	err := b.db.QueryRowContext(ctx,
		"SELECT vector, model_name FROM embeddings WHERE photo_id = $1", photoID,
	).Scan(&vec, &e.ModelName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeerr.New(storeerr.IOTransient, "GetEmbedding", err)
	}
	e.Vector = vec.Slice()
	return e, nil
}

func (b *Backend) IterEmbeddings(ctx context.Context, fn func(*photo.Embedding) error) error {
	rows, err := b.db.QueryContext(ctx, "SELECT photo_id, vector, model_name FROM embeddings ORDER BY photo_id")
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "IterEmbeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e photo.Embedding
		var vec pgvector.Vector
		if err := rows.Scan(&e.PhotoID, &vec, &e.ModelName); err != nil {
			return storeerr.New(storeerr.IOTransient, "IterEmbeddings", err)
		}
		e.Vector = vec.Slice()
		if err := fn(&e); err != nil {
			return err
		}
	}
	return rows.Err()
}
