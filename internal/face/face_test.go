package face

import (
	"testing"

	"github.com/clepho/clepho/internal/photo"
)

func vec(vals ...float32) []float32 { return vals }

func TestClusterUnnamedGroupsCloseEmbeddings(t *testing.T) {
	a := &photo.Face{ID: 1, Embedding: vec(1, 0, 0, 0)}
	b := &photo.Face{ID: 2, Embedding: vec(0.99, 0.01, 0, 0)}
	c := &photo.Face{ID: 3, Embedding: vec(0, 1, 0, 0)}

	clusters := ClusterUnnamed([]*photo.Face{a, b, c}, 0.05)
	if len(clusters) != 2 {
		t.Fatalf("got %d clusters, want 2", len(clusters))
	}

	var sizes []int
	for _, cl := range clusters {
		sizes = append(sizes, len(cl))
	}
	foundPair, foundSingle := false, false
	for _, n := range sizes {
		if n == 2 {
			foundPair = true
		}
		if n == 1 {
			foundSingle = true
		}
	}
	if !foundPair || !foundSingle {
		t.Errorf("sizes = %v, want one pair and one singleton", sizes)
	}
}

func TestClusterUnnamedSkipsNamedFaces(t *testing.T) {
	person := int64(7)
	named := &photo.Face{ID: 1, Embedding: vec(1, 0), PersonID: &person}
	unnamed := &photo.Face{ID: 2, Embedding: vec(0, 1)}

	clusters := ClusterUnnamed([]*photo.Face{named, unnamed}, 0.5)
	if len(clusters) != 1 || len(clusters[0]) != 1 || clusters[0][0].ID != unnamed.ID {
		t.Errorf("clusters = %+v, want single unnamed-only cluster", clusters)
	}
}

func TestClusterUnnamedNoFacesReturnsNil(t *testing.T) {
	if got := ClusterUnnamed(nil, 0.1); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestIndexMatchPersonFindsNearestNamedFace(t *testing.T) {
	person := int64(42)
	idx := NewIndex()
	idx.Build([]*photo.Face{
		{ID: 1, Embedding: vec(1, 0, 0), PersonID: &person},
		{ID: 2, Embedding: vec(0, 1, 0)},
	})

	got := idx.MatchPerson(vec(0.98, 0.02, 0), 0.1)
	if got == nil || *got != person {
		t.Errorf("MatchPerson = %v, want %d", got, person)
	}
}

func TestIndexMatchPersonNoneWithinThreshold(t *testing.T) {
	person := int64(42)
	idx := NewIndex()
	idx.Build([]*photo.Face{
		{ID: 1, Embedding: vec(1, 0, 0), PersonID: &person},
	})

	if got := idx.MatchPerson(vec(0, 0, 1), 0.01); got != nil {
		t.Errorf("MatchPerson = %v, want nil", got)
	}
}

func TestIndexBuildEmptyIsSafe(t *testing.T) {
	idx := NewIndex()
	idx.Build(nil)
	if _, _, err := idx.Neighbors(vec(1, 0), 3); err == nil {
		t.Error("expected error querying an unbuilt index")
	}
}

func TestSameNameIgnoresDiacriticsAndCase(t *testing.T) {
	if !SameName("José García", "jose garcia") {
		t.Error("expected diacritic/case-insensitive match")
	}
	if SameName("José García", "Maria Lopez") {
		t.Error("expected distinct names not to match")
	}
}
