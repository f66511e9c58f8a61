package sqlite

import (
	"context"
	"database/sql"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/storeerr"
)

func (b *Backend) PutEmbedding(ctx context.Context, e *photo.Embedding) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO embeddings (photo_id, vector, model_name) VALUES (?,?,?)
		ON CONFLICT(photo_id) DO UPDATE SET vector = excluded.vector, model_name = excluded.model_name
	`, e.PhotoID, encodeVector(e.Vector), e.ModelName)
	if err != nil {
		return storeerr.New(storeerr.Conflict, "PutEmbedding", err)
	}
	return nil
}

func (b *Backend) GetEmbedding(ctx context.Context, photoID int64) (*photo.Embedding, error) {
	var blob []byte
	e := &photo.Embedding{PhotoID: photoID}
	err := b.db.QueryRowContext(ctx, "SELECT vector, model_name FROM embeddings WHERE photo_id = ?", photoID).
		Scan(&blob, &e.ModelName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, storeerr.New(storeerr.IOTransient, "GetEmbedding", err)
	}
	e.Vector = decodeVector(blob)
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
		var blob []byte
		if err := rows.Scan(&e.PhotoID, &blob, &e.ModelName); err != nil {
			return storeerr.New(storeerr.IOTransient, "IterEmbeddings", err)
		}
		e.Vector = decodeVector(blob)
		if err := fn(&e); err != nil {
			return err
		}
	}
	return rows.Err()
}
