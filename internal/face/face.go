// Package face wires an external face-detection model into the domain:
// a narrow Detector contract for the per-photo detect call, and an
// HNSW-backed index for nearest-neighbour matching against named
// people and for clustering unnamed faces into FaceCluster groups.
package face

import (
	"context"
	"fmt"
	"sync"

	"github.com/coder/hnsw"

	"github.com/clepho/clepho/internal/facematch"
	"github.com/clepho/clepho/internal/photo"
)

// EmbeddingDims is the fixed width of a face embedding.
const EmbeddingDims = 512

// maxNeighbors is the HNSW graph's M parameter; matched against the
// teacher's constants.HNSWMaxNeighbors so index recall/latency behaves
// the same at comparable face-collection sizes.
const maxNeighbors = 16

// Detection is one face an external detector found in an image.
type Detection struct {
	BBoxX, BBoxY, BBoxW, BBoxH float64
	Embedding                  []float32 // EmbeddingDims-wide
	Confidence                 float64
}

// Detector is the external face-detection model contract: given image
// bytes, return zero or more detections. A detector failure yields
// zero detections and a non-nil error; the caller still marks the
// photo scanned so it is not retried until explicitly forced.
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]Detection, error)
}

// Index is an in-memory HNSW graph over Face embeddings, rebuilt from
// Store at the start of each face-detection run (Pipeline.RebuildIndex)
// and updated incrementally as faces are inserted. Same graph construction as HNSWIndex (M, Ml, cosine
// distance), generalised from a StoredFace-keyed map to the shared
// photo.Face domain type.
type Index struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[int64]
	byID  map[int64]*photo.Face
}

func NewIndex() *Index {
	return &Index{byID: make(map[int64]*photo.Face)}
}

// Build replaces the index contents with faces, discarding any face
// with no embedding (detector failures that still produced a
// zero-face FaceScan never reach here).
func (idx *Index) Build(faces []*photo.Face) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(faces) == 0 {
		idx.graph = nil
		idx.byID = make(map[int64]*photo.Face)
		return
	}

	g := hnsw.NewGraph[int64]()
	g.M = maxNeighbors
	g.Ml = 1.0 / float64(maxNeighbors)
	g.Distance = hnsw.CosineDistance

	idx.byID = make(map[int64]*photo.Face, len(faces))
	for _, f := range faces {
		if len(f.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(f.ID, f.Embedding))
		idx.byID[f.ID] = f
	}
	idx.graph = g
}

// Add inserts a single face into an already-built index.
func (idx *Index) Add(f *photo.Face) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(f.Embedding) == 0 {
		return
	}
	if idx.graph == nil {
		idx.graph = hnsw.NewGraph[int64]()
		idx.graph.M = maxNeighbors
		idx.graph.Ml = 1.0 / float64(maxNeighbors)
		idx.graph.Distance = hnsw.CosineDistance
	}
	idx.graph.Add(hnsw.MakeNode(f.ID, f.Embedding))
	idx.byID[f.ID] = f
}

// Neighbors returns the k nearest faces to query by cosine distance.
func (idx *Index) Neighbors(query []float32, k int) ([]int64, []float32, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.graph == nil {
		return nil, nil, fmt.Errorf("face: index not built")
	}
	nodes := idx.graph.Search(query, k)
	ids := make([]int64, len(nodes))
	distances := make([]float32, len(nodes))
	for i, n := range nodes {
		ids[i] = n.Key
		distances[i] = hnsw.CosineDistance(query, n.Value)
	}
	return ids, distances, nil
}

// MatchPerson finds the closest named face within threshold cosine
// distance and returns its person id, or nil if nothing matches
// closely enough — the "is this a face we've already named" check run
// before falling back to unnamed clustering.
func (idx *Index) MatchPerson(query []float32, threshold float32) *int64 {
	ids, distances, err := idx.Neighbors(query, 5)
	if err != nil {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for i, id := range ids {
		if distances[i] > threshold {
			continue
		}
		if f, ok := idx.byID[id]; ok && f.PersonID != nil {
			return f.PersonID
		}
	}
	return nil
}

// ClusterUnnamed groups faces with no PersonID into connected
// components under threshold cosine distance, the same graph-connectivity
// idea internal/duplicate uses for perceptual hashes, just over a
// continuous embedding space instead of Hamming distance on a discrete
// hash. Singleton faces are still returned as single-member clusters —
// unlike duplicate groups, a lone unnamed face is still worth
// surfacing to the UI for naming.
func ClusterUnnamed(faces []*photo.Face, threshold float32) [][]*photo.Face {
	var unnamed []*photo.Face
	for _, f := range faces {
		if f.PersonID == nil && len(f.Embedding) > 0 {
			unnamed = append(unnamed, f)
		}
	}
	if len(unnamed) == 0 {
		return nil
	}

	adjacency := make([][]int, len(unnamed))
	for i := 0; i < len(unnamed); i++ {
		for j := i + 1; j < len(unnamed); j++ {
			if hnsw.CosineDistance(unnamed[i].Embedding, unnamed[j].Embedding) <= threshold {
				adjacency[i] = append(adjacency[i], j)
				adjacency[j] = append(adjacency[j], i)
			}
		}
	}

	visited := make([]bool, len(unnamed))
	var clusters [][]*photo.Face
	for i := range unnamed {
		if visited[i] {
			continue
		}
		component := bfsComponent(i, adjacency, visited)
		cluster := make([]*photo.Face, len(component))
		for k, idx := range component {
			cluster[k] = unnamed[idx]
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

func bfsComponent(start int, adjacency [][]int, visited []bool) []int {
	queue := []int{start}
	visited[start] = true
	var component []int
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		component = append(component, n)
		for _, neighbor := range adjacency[n] {
			if !visited[neighbor] {
				visited[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}
	return component
}

// SameName reports whether two person names normalize to the same
// identity (case, diacritics, dash/space), so the UI can warn before
// creating what looks like a duplicate Person.
func SameName(a, b string) bool {
	return facematch.NormalizePersonName(a) == facematch.NormalizePersonName(b)
}
