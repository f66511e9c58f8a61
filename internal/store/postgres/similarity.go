package postgres

import (
	"context"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/storeerr"
)

func (b *Backend) CreateSimilarityGroup(ctx context.Context, kind photo.SimilarityKind, photoIDs []int64) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreateSimilarityGroup", err)
	}
	defer tx.Rollback()

	var id int64
	if err := tx.QueryRowContext(ctx, "INSERT INTO similarity_groups (kind) VALUES ($1) RETURNING id", string(kind)).Scan(&id); err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreateSimilarityGroup", err)
	}
	for _, pid := range photoIDs {
		if _, err := tx.ExecContext(ctx, "INSERT INTO photo_similarity (group_id, photo_id) VALUES ($1,$2)", id, pid); err != nil {
			return 0, storeerr.New(conflictOrIO(err), "CreateSimilarityGroup", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storeerr.New(storeerr.IOTransient, "CreateSimilarityGroup", err)
	}
	return id, nil
}

func (b *Backend) ListSimilarityGroups(ctx context.Context, kind photo.SimilarityKind) ([]*photo.SimilarityGroup, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT sg.id, ps.photo_id
		FROM similarity_groups sg
		JOIN photo_similarity ps ON ps.group_id = sg.id
		WHERE sg.kind = $1
		ORDER BY sg.id
	`, string(kind))
	if err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ListSimilarityGroups", err)
	}
	defer rows.Close()

	byID := make(map[int64]*photo.SimilarityGroup)
	var order []int64
	for rows.Next() {
		var groupID, photoID int64
		if err := rows.Scan(&groupID, &photoID); err != nil {
			return nil, storeerr.New(storeerr.IOTransient, "ListSimilarityGroups", err)
		}
		g, ok := byID[groupID]
		if !ok {
			g = &photo.SimilarityGroup{ID: groupID, Kind: kind}
			byID[groupID] = g
			order = append(order, groupID)
		}
		g.PhotoIDs = append(g.PhotoIDs, photoID)
	}
	if err := rows.Err(); err != nil {
		return nil, storeerr.New(storeerr.IOTransient, "ListSimilarityGroups", err)
	}

	out := make([]*photo.SimilarityGroup, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out, nil
}

// ClearSimilarityGroups deletes every group of the given kind — used
// before a fresh DuplicateEngine pass, since groups are transient and
// safe to regenerate.
func (b *Backend) ClearSimilarityGroups(ctx context.Context, kind photo.SimilarityKind) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM similarity_groups WHERE kind = $1", string(kind))
	if err != nil {
		return storeerr.New(storeerr.IOTransient, "ClearSimilarityGroups", err)
	}
	return nil
}
