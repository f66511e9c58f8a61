package duplicate

import (
	"context"
	"testing"

	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store"
)

type fakeStore struct {
	exact      map[string][]int64
	candidates []photo.PerceptualCandidate
	store.Store
}

func (f *fakeStore) ExactDuplicateGroups(ctx context.Context) (map[string][]int64, error) {
	return f.exact, nil
}

func (f *fakeStore) PhotosWithPerceptualHash(ctx context.Context, filter photo.Filter) ([]photo.PerceptualCandidate, error) {
	if !filter.WithPHashOnly {
		return f.candidates, nil
	}
	var out []photo.PerceptualCandidate
	for _, c := range f.candidates {
		if c.PHash != "" {
			out = append(out, c)
		}
	}
	return out, nil
}

func TestFindGroupsExactPass(t *testing.T) {
	s := &fakeStore{
		exact: map[string][]int64{
			"abc123": {1, 2},
		},
		candidates: []photo.PerceptualCandidate{
			{ID: 1, Path: "/a/IMG_0001.jpg", Width: 100, Height: 100, SizeBytes: 1000},
			{ID: 2, Path: "/a/IMG_0001_copy.jpg", Width: 100, Height: 100, SizeBytes: 1000},
		},
	}
	e := New(s, Weights{})
	groups, err := e.FindGroups(context.Background(), 10)
	if err != nil {
		t.Fatalf("FindGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Kind != photo.SimilarityExact {
		t.Errorf("kind = %s, want exact", g.Kind)
	}
	if len(g.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(g.Members))
	}
	// The camera-named file should outrank the _copy suffix at equal
	// resolution/size.
	if g.Members[0].Photo.ID != 1 {
		t.Errorf("keep candidate = %d, want 1 (camera filename over _copy suffix)", g.Members[0].Photo.ID)
	}
}

func TestFindGroupsPerceptualPass(t *testing.T) {
	// Two hashes 3 bits apart cluster at threshold 5; a third, far hash
	// stays a singleton and is discarded.
	s := &fakeStore{
		exact: map[string][]int64{},
		candidates: []photo.PerceptualCandidate{
			{ID: 1, Path: "/a/one.jpg", PHash: "0000000000000000", Width: 100, Height: 100},
			{ID: 2, Path: "/a/two.jpg", PHash: "0000000000000007", Width: 100, Height: 100},
			{ID: 3, Path: "/a/three.jpg", PHash: "ffffffffffffffff", Width: 100, Height: 100},
		},
	}
	e := New(s, Weights{})
	groups, err := e.FindGroups(context.Background(), 5)
	if err != nil {
		t.Fatalf("FindGroups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected 1 perceptual group (singleton discarded), got %d", len(groups))
	}
	if groups[0].Kind != photo.SimilarityPerceptual {
		t.Errorf("kind = %s, want perceptual", groups[0].Kind)
	}
	if len(groups[0].Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(groups[0].Members))
	}
}

func TestFindGroupsExcludesExactMembersFromPerceptualPass(t *testing.T) {
	s := &fakeStore{
		exact: map[string][]int64{"same": {1, 2}},
		candidates: []photo.PerceptualCandidate{
			{ID: 1, Path: "/a/one.jpg", PHash: "0000000000000000"},
			{ID: 2, Path: "/a/two.jpg", PHash: "0000000000000000"},
		},
	}
	e := New(s, Weights{})
	groups, err := e.FindGroups(context.Background(), 5)
	if err != nil {
		t.Fatalf("FindGroups: %v", err)
	}
	for _, g := range groups {
		if g.Kind == photo.SimilarityPerceptual {
			t.Errorf("exact-group members should be excluded from the perceptual pass, got group %+v", g)
		}
	}
}

func TestAutoSelectAndMarkedPhotoIDs(t *testing.T) {
	s := &fakeStore{
		exact: map[string][]int64{"same": {1, 2, 3}},
		candidates: []photo.PerceptualCandidate{
			{ID: 1, Path: "/a/best.jpg", Width: 200, Height: 200},
			{ID: 2, Path: "/a/worse.jpg", Width: 100, Height: 100},
			{ID: 3, Path: "/a/worst.jpg", Width: 50, Height: 50},
		},
	}
	e := New(s, Weights{})
	if _, err := e.FindGroups(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if err := e.AutoSelect(0); err != nil {
		t.Fatal(err)
	}
	ids := e.MarkedPhotoIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 marked (all but the keep candidate), got %v", ids)
	}
	for _, id := range ids {
		if id == 1 {
			t.Error("the highest-resolution keep candidate should not be marked")
		}
	}
}

func TestClearMarks(t *testing.T) {
	s := &fakeStore{
		exact: map[string][]int64{"same": {1, 2}},
		candidates: []photo.PerceptualCandidate{
			{ID: 1, Path: "/a/one.jpg", Width: 100, Height: 100},
			{ID: 2, Path: "/a/two.jpg", Width: 100, Height: 100},
		},
	}
	e := New(s, Weights{})
	if _, err := e.FindGroups(context.Background(), 5); err != nil {
		t.Fatal(err)
	}
	if err := e.AutoSelect(0); err != nil {
		t.Fatal(err)
	}
	e.ClearMarks()
	if len(e.MarkedPhotoIDs()) != 0 {
		t.Error("ClearMarks should leave no marked photos")
	}
}
