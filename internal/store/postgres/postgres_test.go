//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clepho/clepho/internal/photo"
)

func setupTestBackend(t *testing.T) *Backend {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "clepho",
			"POSTGRES_PASSWORD": "clepho",
			"POSTGRES_DB":       "clepho_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil || container == nil {
		t.Skipf("docker not available, skipping postgres integration test: %v", err)
		return nil
	}
	t.Cleanup(func() { container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	url := fmt.Sprintf("postgres://clepho:clepho@%s:%s/clepho_test?sslmode=disable", host, port.Port())
	b, err := Open(ctx, url, 5)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestPostgresPhotoLifecycle(t *testing.T) {
	b := setupTestBackend(t)
	if b == nil {
		return
	}
	ctx := context.Background()

	id, err := b.UpsertPhoto(ctx, &photo.Photo{Path: "/a/b.jpg", SizeBytes: 10, SHA256: "abc"})
	if err != nil {
		t.Fatalf("UpsertPhoto: %v", err)
	}

	got, err := b.GetPhotoByID(ctx, id)
	if err != nil {
		t.Fatalf("GetPhotoByID: %v", err)
	}
	if got.Filename != "b.jpg" || got.Directory != "/a" {
		t.Errorf("unexpected derived fields: %+v", got)
	}

	if _, err := b.UpsertPhoto(ctx, &photo.Photo{Path: "/a/b.jpg", SizeBytes: 20, SHA256: "def"}); err != nil {
		t.Fatalf("UpsertPhoto (update): %v", err)
	}
	got, err = b.GetPhotoByID(ctx, id)
	if err != nil {
		t.Fatalf("GetPhotoByID after update: %v", err)
	}
	if got.SizeBytes != 20 || got.SHA256 != "def" {
		t.Errorf("expected updated fields, got %+v", got)
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := b.UpdateTrashFields(ctx, id, "/trash/b.jpg", "/a/b.jpg", &now); err != nil {
		t.Fatalf("UpdateTrashFields: %v", err)
	}
	trashed, err := b.ListTrashed(ctx)
	if err != nil {
		t.Fatalf("ListTrashed: %v", err)
	}
	if len(trashed) != 1 || trashed[0].OriginalPath != "/a/b.jpg" {
		t.Errorf("expected 1 trashed photo with original path, got %+v", trashed)
	}

	if err := b.DeletePhoto(ctx, id); err != nil {
		t.Fatalf("DeletePhoto: %v", err)
	}
	if got, err := b.GetPhotoByID(ctx, id); err != nil || got != nil {
		t.Errorf("expected photo gone after delete, got %+v err=%v", got, err)
	}
}

func TestPostgresExactDuplicateGroups(t *testing.T) {
	b := setupTestBackend(t)
	if b == nil {
		return
	}
	ctx := context.Background()

	for i, sha := range []string{"same", "same", "other"} {
		if _, err := b.UpsertPhoto(ctx, &photo.Photo{Path: fmt.Sprintf("/d/%d.jpg", i), SHA256: sha}); err != nil {
			t.Fatalf("UpsertPhoto: %v", err)
		}
	}

	groups, err := b.ExactDuplicateGroups(ctx)
	if err != nil {
		t.Fatalf("ExactDuplicateGroups: %v", err)
	}
	if len(groups["same"]) != 2 {
		t.Errorf("expected 2 photos in 'same' group, got %d", len(groups["same"]))
	}
	if _, ok := groups["other"]; ok {
		t.Error("singleton hash should not group")
	}
}

func TestPostgresFaceAndPersonLifecycle(t *testing.T) {
	b := setupTestBackend(t)
	if b == nil {
		return
	}
	ctx := context.Background()

	photoID, err := b.UpsertPhoto(ctx, &photo.Photo{Path: "/a/face.jpg"})
	if err != nil {
		t.Fatalf("UpsertPhoto: %v", err)
	}

	embedding := make([]float32, 512)
	embedding[0] = 0.25
	faceID, err := b.InsertFace(ctx, &photo.Face{
		PhotoID: photoID, BBoxX: 1, BBoxY: 2, BBoxW: 3, BBoxH: 4,
		Embedding: embedding, Confidence: 0.8,
	})
	if err != nil {
		t.Fatalf("InsertFace: %v", err)
	}

	personID, err := b.CreatePerson(ctx, "Bob")
	if err != nil {
		t.Fatalf("CreatePerson: %v", err)
	}
	if err := b.LinkFaceToPerson(ctx, faceID, &personID); err != nil {
		t.Fatalf("LinkFaceToPerson: %v", err)
	}

	byPerson, err := b.GetFacesByPerson(ctx, personID)
	if err != nil {
		t.Fatalf("GetFacesByPerson: %v", err)
	}
	if len(byPerson) != 1 || len(byPerson[0].Embedding) != 512 {
		t.Fatalf("expected 1 face with 512-dim embedding, got %+v", byPerson)
	}

	clusterID, err := b.CreateFaceCluster(ctx, []int64{faceID})
	if err != nil {
		t.Fatalf("CreateFaceCluster: %v", err)
	}
	clusters, err := b.ListFaceClusters(ctx)
	if err != nil {
		t.Fatalf("ListFaceClusters: %v", err)
	}
	if len(clusters) != 1 || clusters[0].ID != clusterID {
		t.Errorf("expected 1 cluster, got %+v", clusters)
	}
}

func TestPostgresTaskLifecycle(t *testing.T) {
	b := setupTestBackend(t)
	if b == nil {
		return
	}
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	id, err := b.CreateTask(ctx, &photo.ScheduledTask{Kind: photo.TaskScan, TargetPath: "/photos", ScheduledAt: past})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	claimed, err := b.ClaimDue(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("ClaimDue: %v", err)
	}
	if claimed == nil || claimed.ID != id || claimed.Status != photo.TaskRunning {
		t.Fatalf("expected task claimed as running, got %+v", claimed)
	}

	if err := b.SetTaskStatus(ctx, id, photo.TaskCompleted, ""); err != nil {
		t.Fatalf("SetTaskStatus: %v", err)
	}

	if err := b.SetDirectoryPrompt(ctx, "/vacation", "describe like a travel blog"); err != nil {
		t.Fatalf("SetDirectoryPrompt: %v", err)
	}
	prompt, err := b.GetDirectoryPrompt(ctx, "/vacation")
	if err != nil || prompt != "describe like a travel blog" {
		t.Fatalf("got %q, err=%v", prompt, err)
	}
}
