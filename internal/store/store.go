// Package store defines the backend-agnostic persistence contract.
// Concrete implementations live in store/sqlite (embedded, single-file)
// and store/postgres (networked, pooled); both satisfy Store with
// identical semantics so callers never branch on which backend is
// active — the dispatch happens once, in Open, which switches on the
// configured backend and constructs the sqlite or postgres Backend
// directly.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/clepho/clepho/internal/config"
	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store/postgres"
	"github.com/clepho/clepho/internal/store/sqlite"
)

// Store is the uniform contract every backend implements. Method names
// mirror the operations enumerated in the data model: Photo CRUD, hash
// queries, embeddings, faces/people/clusters, similarity groups, and the
// scheduled task queue.
type Store interface {
	Close() error

	// Photo CRUD.
	UpsertPhoto(ctx context.Context, p *photo.Photo) (int64, error)
	GetPhotoByPath(ctx context.Context, path string) (*photo.Photo, error)
	GetPhotoByID(ctx context.Context, id int64) (*photo.Photo, error)
	ListPhotosByDirectory(ctx context.Context, directory string) ([]*photo.Photo, error)
	UpdateDescription(ctx context.Context, id int64, description string) error
	UpdateTrashFields(ctx context.Context, id int64, path, originalPath string, trashedAt *time.Time) error
	DeletePhoto(ctx context.Context, id int64) error
	ListTrashed(ctx context.Context) ([]*photo.Photo, error)

	// Hash queries.
	PhotosBySHA256(ctx context.Context, hex string) ([]*photo.Photo, error)
	PhotosWithPerceptualHash(ctx context.Context, filter photo.Filter) ([]photo.PerceptualCandidate, error)
	ExactDuplicateGroups(ctx context.Context) (map[string][]int64, error) // sha256 -> photo ids, count>1 only

	// Embeddings.
	PutEmbedding(ctx context.Context, e *photo.Embedding) error
	GetEmbedding(ctx context.Context, photoID int64) (*photo.Embedding, error)
	IterEmbeddings(ctx context.Context, fn func(*photo.Embedding) error) error

	// Faces / People / Clusters.
	InsertFace(ctx context.Context, f *photo.Face) (int64, error)
	GetFacesByPhoto(ctx context.Context, photoID int64) ([]*photo.Face, error)
	GetFacesByPerson(ctx context.Context, personID int64) ([]*photo.Face, error)
	LinkFaceToPerson(ctx context.Context, faceID int64, personID *int64) error
	CreatePerson(ctx context.Context, name string) (int64, error)
	RenamePerson(ctx context.Context, id int64, name string) error
	DeletePerson(ctx context.Context, id int64) error // nulls person_id on faces
	AllFaceEmbeddings(ctx context.Context) ([]*photo.Face, error)
	CreateFaceCluster(ctx context.Context, faceIDs []int64) (int64, error)
	AddClusterMembers(ctx context.Context, clusterID int64, faceIDs []int64) error
	ListFaceClusters(ctx context.Context) ([]*photo.FaceCluster, error)

	// FaceScan.
	MarkScanned(ctx context.Context, photoID int64, count int) error
	IsScanned(ctx context.Context, photoID int64) (bool, error)

	// Similarity groups.
	CreateSimilarityGroup(ctx context.Context, kind photo.SimilarityKind, photoIDs []int64) (int64, error)
	ListSimilarityGroups(ctx context.Context, kind photo.SimilarityKind) ([]*photo.SimilarityGroup, error)
	ClearSimilarityGroups(ctx context.Context, kind photo.SimilarityKind) error

	// Scheduled tasks.
	CreateTask(ctx context.Context, t *photo.ScheduledTask) (int64, error)
	ClaimDue(ctx context.Context, now time.Time) (*photo.ScheduledTask, error)
	SetTaskStatus(ctx context.Context, id int64, status photo.TaskStatus, errMsg string) error
	ListOverdue(ctx context.Context, now time.Time) ([]*photo.ScheduledTask, error)
	ListPending(ctx context.Context) ([]*photo.ScheduledTask, error)
	ReapStaleRunning(ctx context.Context, staleAfter time.Duration) (int, error)

	// Directory prompts.
	GetDirectoryPrompt(ctx context.Context, directory string) (string, error)
	SetDirectoryPrompt(ctx context.Context, directory, prompt string) error
}

// Open dispatches to the configured backend and returns a ready Store
// with migrations applied. Callers never see the concrete type.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Backend {
	case "sqlite", "":
		return sqlite.Open(ctx, cfg.SQLitePath)
	case "postgresql", "postgres":
		return postgres.Open(ctx, cfg.PostgreSQLURL, cfg.PoolSize)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
