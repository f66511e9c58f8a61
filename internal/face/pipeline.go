package face

import (
	"context"
	"fmt"
	"os"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store"
)

// Pipeline runs a Detector over photos and persists results through
// Store, mirroring the scanner package's read-external-tool,
// write-through-store shape for the face-detection TaskKind.
type Pipeline struct {
	store    store.Store
	detector Detector
	index    *Index
}

func NewPipeline(s store.Store, d Detector, idx *Index) *Pipeline {
	return &Pipeline{store: s, detector: d, index: idx}
}

// RebuildIndex reloads every embedding Store has on file into the
// pipeline's Index, so MatchPerson runs against named faces recorded
// on prior runs rather than only the faces this run detects itself.
func (p *Pipeline) RebuildIndex(ctx context.Context) error {
	faces, err := p.store.AllFaceEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("face: load embeddings for index rebuild: %w", err)
	}
	p.index.Build(faces)
	return nil
}

// RebuildClusters groups every currently-unnamed face into connected
// components by embedding proximity and records each multi-member
// group as a FaceCluster, the "name this group" unit the UI offers up
// once a face-detection pass has run.
func (p *Pipeline) RebuildClusters(ctx context.Context) error {
	faces, err := p.store.AllFaceEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("face: load embeddings for clustering: %w", err)
	}
	for _, cluster := range ClusterUnnamed(faces, personMatchThreshold) {
		if len(cluster) < 2 {
			continue
		}
		ids := make([]int64, len(cluster))
		for i, f := range cluster {
			ids[i] = f.ID
		}
		if _, err := p.store.CreateFaceCluster(ctx, ids); err != nil {
			return fmt.Errorf("face: create cluster: %w", err)
		}
	}
	return nil
}

// ProcessPhoto detects faces in one photo and writes them through
// Store. A detector error still results in a zero-face FaceScan row
// being recorded by the caller (TaskExecutor), so the photo is not
// retried on every future run; ProcessPhoto itself only reports the
// error and count, leaving that bookkeeping to the caller.
func (p *Pipeline) ProcessPhoto(ctx context.Context, ph *photo.Photo) (int, error) {
	data, err := os.ReadFile(ph.Path)
	if err != nil {
		return 0, fmt.Errorf("face: read %s: %w", ph.Path, err)
	}

	detections, err := p.detector.Detect(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("face: detect %s: %w", ph.Path, err)
	}

	for _, d := range detections {
		f := &photo.Face{
			PhotoID:    ph.ID,
			BBoxX:      d.BBoxX,
			BBoxY:      d.BBoxY,
			BBoxW:      d.BBoxW,
			BBoxH:      d.BBoxH,
			Embedding:  d.Embedding,
			Confidence: d.Confidence,
		}
		if personID := p.index.MatchPerson(d.Embedding, personMatchThreshold); personID != nil {
			f.PersonID = personID
		}
		id, err := p.store.InsertFace(ctx, f)
		if err != nil {
			return len(detections), fmt.Errorf("face: insert face for %s: %w", ph.Path, err)
		}
		f.ID = id
		p.index.Add(f)
	}

	return len(detections), nil
}

// personMatchThreshold is the cosine-distance cutoff below which a new
// detection is considered the same person as an existing named face.
// Lower is stricter; 0.3 mirrors common face-embedding cosine-distance
// practice for a same-identity match at this embedding width.
const personMatchThreshold = 0.3
