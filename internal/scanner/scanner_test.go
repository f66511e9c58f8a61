package scanner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/clepho/clepho/internal/photo"
)

// memStore is a minimal in-memory store.Store fake covering only what
// the Scanner touches.
type memStore struct {
	mu     sync.Mutex
	byPath map[string]*photo.Photo
	nextID int64
}

func newMemStore() *memStore {
	return &memStore{byPath: make(map[string]*photo.Photo)}
}

func (m *memStore) Close() error { return nil }

func (m *memStore) UpsertPhoto(ctx context.Context, p *photo.Photo) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		m.nextID++
		p.ID = m.nextID
	}
	cp := *p
	m.byPath[p.Path] = &cp
	return p.ID, nil
}

func (m *memStore) GetPhotoByPath(ctx context.Context, path string) (*photo.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byPath[path]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetPhotoByID(ctx context.Context, id int64) (*photo.Photo, error) { return nil, nil }
func (m *memStore) ListPhotosByDirectory(ctx context.Context, directory string) ([]*photo.Photo, error) {
	return nil, nil
}
func (m *memStore) UpdateDescription(ctx context.Context, id int64, description string) error {
	return nil
}
func (m *memStore) UpdateTrashFields(ctx context.Context, id int64, path, originalPath string, trashedAt *time.Time) error {
	return nil
}
func (m *memStore) DeletePhoto(ctx context.Context, id int64) error { return nil }
func (m *memStore) ListTrashed(ctx context.Context) ([]*photo.Photo, error) { return nil, nil }
func (m *memStore) PhotosBySHA256(ctx context.Context, hex string) ([]*photo.Photo, error) {
	return nil, nil
}
func (m *memStore) PhotosWithPerceptualHash(ctx context.Context, filter photo.Filter) ([]photo.PerceptualCandidate, error) {
	return nil, nil
}
func (m *memStore) ExactDuplicateGroups(ctx context.Context) (map[string][]int64, error) {
	return nil, nil
}
func (m *memStore) PutEmbedding(ctx context.Context, e *photo.Embedding) error { return nil }
func (m *memStore) GetEmbedding(ctx context.Context, photoID int64) (*photo.Embedding, error) {
	return nil, nil
}
func (m *memStore) IterEmbeddings(ctx context.Context, fn func(*photo.Embedding) error) error {
	return nil
}
func (m *memStore) InsertFace(ctx context.Context, f *photo.Face) (int64, error) { return 0, nil }
func (m *memStore) GetFacesByPhoto(ctx context.Context, photoID int64) ([]*photo.Face, error) {
	return nil, nil
}
func (m *memStore) GetFacesByPerson(ctx context.Context, personID int64) ([]*photo.Face, error) {
	return nil, nil
}
func (m *memStore) LinkFaceToPerson(ctx context.Context, faceID int64, personID *int64) error {
	return nil
}
func (m *memStore) CreatePerson(ctx context.Context, name string) (int64, error) { return 0, nil }
func (m *memStore) RenamePerson(ctx context.Context, id int64, name string) error { return nil }
func (m *memStore) DeletePerson(ctx context.Context, id int64) error             { return nil }
func (m *memStore) AllFaceEmbeddings(ctx context.Context) ([]*photo.Face, error) { return nil, nil }
func (m *memStore) CreateFaceCluster(ctx context.Context, faceIDs []int64) (int64, error) {
	return 0, nil
}
func (m *memStore) AddClusterMembers(ctx context.Context, clusterID int64, faceIDs []int64) error {
	return nil
}
func (m *memStore) ListFaceClusters(ctx context.Context) ([]*photo.FaceCluster, error) {
	return nil, nil
}
func (m *memStore) MarkScanned(ctx context.Context, photoID int64, count int) error { return nil }
func (m *memStore) IsScanned(ctx context.Context, photoID int64) (bool, error)      { return false, nil }
func (m *memStore) CreateSimilarityGroup(ctx context.Context, kind photo.SimilarityKind, photoIDs []int64) (int64, error) {
	return 0, nil
}
func (m *memStore) ListSimilarityGroups(ctx context.Context, kind photo.SimilarityKind) ([]*photo.SimilarityGroup, error) {
	return nil, nil
}
func (m *memStore) ClearSimilarityGroups(ctx context.Context, kind photo.SimilarityKind) error {
	return nil
}
func (m *memStore) CreateTask(ctx context.Context, t *photo.ScheduledTask) (int64, error) {
	return 0, nil
}
func (m *memStore) ClaimDue(ctx context.Context, now time.Time) (*photo.ScheduledTask, error) {
	return nil, nil
}
func (m *memStore) SetTaskStatus(ctx context.Context, id int64, status photo.TaskStatus, errMsg string) error {
	return nil
}
func (m *memStore) ListOverdue(ctx context.Context, now time.Time) ([]*photo.ScheduledTask, error) {
	return nil, nil
}
func (m *memStore) ListPending(ctx context.Context) ([]*photo.ScheduledTask, error) { return nil, nil }
func (m *memStore) ReapStaleRunning(ctx context.Context, staleAfter time.Duration) (int, error) {
	return 0, nil
}
func (m *memStore) GetDirectoryPrompt(ctx context.Context, directory string) (string, error) {
	return "", nil
}
func (m *memStore) SetDirectoryPrompt(ctx context.Context, directory, prompt string) error {
	return nil
}

func writeJPEG(t *testing.T, path string, w, h int, fill uint8) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{fill, fill, fill, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for e := range ch {
		out = append(out, e)
	}
	return out
}

func TestScanNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 40, 40, 10)
	writeJPEG(t, filepath.Join(dir, "b.jpg"), 40, 40, 200)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := newMemStore()
	sc := New(s, Options{ImageExtensions: map[string]bool{".jpg": true}})

	events := drainEvents(sc.Scan(context.Background(), dir))

	var started, completed *Event
	fileCount := 0
	for i := range events {
		switch events[i].Kind {
		case "started":
			started = &events[i]
		case "completed":
			completed = &events[i]
		case "file":
			fileCount++
		}
	}
	if started == nil || started.Total != 2 {
		t.Fatalf("expected Started(2), got %+v", started)
	}
	if fileCount != 2 {
		t.Fatalf("expected 2 file events, got %d", fileCount)
	}
	if completed == nil || completed.Counts.New != 2 {
		t.Fatalf("expected Completed with 2 new, got %+v", completed)
	}
	if len(s.byPath) != 2 {
		t.Fatalf("expected 2 rows upserted, got %d", len(s.byPath))
	}
}

func TestScanIsNoOpOnUnchangedRescan(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 40, 40, 50)

	s := newMemStore()
	sc := New(s, Options{ImageExtensions: map[string]bool{".jpg": true}})

	drainEvents(sc.Scan(context.Background(), dir))
	second := drainEvents(sc.Scan(context.Background(), dir))

	for _, e := range second {
		if e.Kind == "completed" {
			if e.Counts.New != 0 || e.Counts.Updated != 0 || e.Counts.Unchanged != 1 {
				t.Errorf("expected a no-op rescan, got %+v", e.Counts)
			}
		}
	}
}

func TestScanSkipsDotfilesByDefault(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, ".hidden.jpg"), 20, 20, 5)

	s := newMemStore()
	sc := New(s, Options{ImageExtensions: map[string]bool{".jpg": true}})

	events := drainEvents(sc.Scan(context.Background(), dir))
	for _, e := range events {
		if e.Kind == "started" && e.Total != 0 {
			t.Errorf("expected dotfile to be excluded from discovery, got total=%d", e.Total)
		}
	}
}
