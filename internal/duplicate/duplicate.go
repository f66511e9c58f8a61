// Package duplicate implements the DuplicateEngine: two independent
// passes over the collection (exact SHA-256 equality, perceptual
// Hamming-radius clustering), a quality ranking within each resulting
// group, and the navigation/marking state a UI drives interactively.
package duplicate

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/clepho/clepho/internal/hasher"
	"github.com/clepho/clepho/internal/photo"
	"github.com/clepho/clepho/internal/store"
)

// Weights configures the quality-ranking composite score.
type Weights struct {
	Resolution float64
	SizeBytes  float64
	Name       float64
}

// DefaultWeights lets resolution dominate (1 point per pixel). At equal
// resolution a filename hint (±1000) outweighs any file-size gap below
// 1 GB, since size counts only 1 point per megabyte.
var DefaultWeights = Weights{Resolution: 1.0, SizeBytes: 1e-6, Name: 1000}

// Group is a ranked SimilarityGroup: Members[0] is the highest-scoring
// "keep" candidate, the rest are auto-select candidates for removal.
type Group struct {
	Kind    photo.SimilarityKind
	Members []Member
}

// Member is one photo within a Group, in ranked order.
type Member struct {
	Photo   photo.PerceptualCandidate
	Score   float64
	Marked  bool
}

// Engine runs the two clustering passes and holds the resulting groups
// for interactive navigation.
type Engine struct {
	store   store.Store
	weights Weights

	groups []Group
}

func New(s store.Store, weights Weights) *Engine {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	return &Engine{store: s, weights: weights}
}

// FindGroups runs both passes and replaces the engine's current group
// set. threshold is the Hamming radius (0-64) for the perceptual pass.
func (e *Engine) FindGroups(ctx context.Context, threshold int) ([]Group, error) {
	exactIDs, err := e.exactPass(ctx)
	if err != nil {
		return nil, err
	}
	perceptual, err := e.perceptualPass(ctx, threshold, exactIDs)
	if err != nil {
		return nil, err
	}

	var groups []Group
	groups = append(groups, exactIDs.groups...)
	groups = append(groups, perceptual...)
	e.groups = groups
	return groups, nil
}

type exactResult struct {
	groups     []Group
	inGroupIDs map[int64]bool
}

// exactPass groups active photos by exact SHA-256 equality via the
// store's GROUP BY ... HAVING count>1 query, then fetches each member's
// PerceptualCandidate projection to build ranked groups.
func (e *Engine) exactPass(ctx context.Context) (exactResult, error) {
	bySHA, err := e.store.ExactDuplicateGroups(ctx)
	if err != nil {
		return exactResult{}, fmt.Errorf("duplicate: exact pass: %w", err)
	}

	candidates, err := e.store.PhotosWithPerceptualHash(ctx, photo.Filter{ActiveOnly: true})
	if err != nil {
		return exactResult{}, fmt.Errorf("duplicate: load candidates: %w", err)
	}
	// exact groups don't require a phash, so this omits WithPHashOnly
	// and pulls the full active set, including photos whose pixels
	// never decoded to a hash.
	byIDFromCandidates := make(map[int64]photo.PerceptualCandidate, len(candidates))
	for _, c := range candidates {
		byIDFromCandidates[c.ID] = c
	}

	result := exactResult{inGroupIDs: make(map[int64]bool)}
	shas := make([]string, 0, len(bySHA))
	for sha := range bySHA {
		shas = append(shas, sha)
	}
	sort.Strings(shas)

	for _, sha := range shas {
		ids := bySHA[sha]
		if len(ids) < 2 {
			continue
		}
		members := make([]Member, 0, len(ids))
		for _, id := range ids {
			c, ok := byIDFromCandidates[id]
			if !ok {
				c = photo.PerceptualCandidate{ID: id}
			}
			members = append(members, Member{Photo: c, Score: e.score(c)})
			result.inGroupIDs[id] = true
		}
		rankMembers(members)
		result.groups = append(result.groups, Group{Kind: photo.SimilarityExact, Members: members})
	}
	return result, nil
}

// perceptualPass builds an undirected graph over active photos with a
// perceptual hash, excluding anything already in an exact group,
// connecting two photos with an edge when their Hamming distance is at
// most threshold, and returning one Group per connected component with
// more than one member.
func (e *Engine) perceptualPass(ctx context.Context, threshold int, exact exactResult) ([]Group, error) {
	candidates, err := e.store.PhotosWithPerceptualHash(ctx, photo.Filter{ActiveOnly: true, WithPHashOnly: true})
	if err != nil {
		return nil, fmt.Errorf("duplicate: perceptual pass: %w", err)
	}

	pool := make([]photo.PerceptualCandidate, 0, len(candidates))
	for _, c := range candidates {
		if exact.inGroupIDs[c.ID] {
			continue
		}
		pool = append(pool, c)
	}

	adjacency := make([][]int, len(pool))
	hashes := make([]uint64, len(pool))
	for i, c := range pool {
		hashes[i] = hasher.ParseHashHex(c.PHash)
	}
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			if hasher.Similar(hashes[i], hashes[j], threshold) {
				adjacency[i] = append(adjacency[i], j)
				adjacency[j] = append(adjacency[j], i)
			}
		}
	}

	visited := make([]bool, len(pool))
	var groups []Group
	for i := range pool {
		if visited[i] {
			continue
		}
		component := bfsComponent(i, adjacency, visited)
		if len(component) < 2 {
			continue // singletons are discarded
		}
		members := make([]Member, 0, len(component))
		for _, idx := range component {
			c := pool[idx]
			members = append(members, Member{Photo: c, Score: e.score(c)})
		}
		rankMembers(members)
		groups = append(groups, Group{Kind: photo.SimilarityPerceptual, Members: members})
	}
	return groups, nil
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

var cameraFilename = regexp.MustCompile(`(?i)^(img|dsc)[_-]?\d+`)
var lowQualitySuffix = regexp.MustCompile(`(?i)(_copy|_web|_thumb|\(\d+\))$`)

// score is the composite quality ranking:
// w_res*(width*height) + w_size*size_bytes + w_name*name_bonus.
func (e *Engine) score(c photo.PerceptualCandidate) float64 {
	nameBonus := 0.0
	base := strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
	if cameraFilename.MatchString(base) {
		nameBonus += 1
	}
	if lowQualitySuffix.MatchString(base) {
		nameBonus -= 1
	}

	return e.weights.Resolution*float64(c.Width*c.Height) +
		e.weights.SizeBytes*float64(c.SizeBytes) +
		e.weights.Name*nameBonus
}

// rankMembers sorts highest score first; ties break by ascending path.
func rankMembers(members []Member) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Photo.Path < members[j].Photo.Path
	})
}

// AutoSelect marks every member but the top-ranked "keep" candidate in
// group index gi.
func (e *Engine) AutoSelect(gi int) error {
	if gi < 0 || gi >= len(e.groups) {
		return fmt.Errorf("duplicate: group index %d out of range", gi)
	}
	for i := range e.groups[gi].Members {
		e.groups[gi].Members[i].Marked = i != 0
	}
	return nil
}

// ToggleMark flips the mark on one member.
func (e *Engine) ToggleMark(gi, pi int) error {
	if gi < 0 || gi >= len(e.groups) {
		return fmt.Errorf("duplicate: group index %d out of range", gi)
	}
	if pi < 0 || pi >= len(e.groups[gi].Members) {
		return fmt.Errorf("duplicate: photo index %d out of range", pi)
	}
	e.groups[gi].Members[pi].Marked = !e.groups[gi].Members[pi].Marked
	return nil
}

// ClearMarks unmarks every member of every group.
func (e *Engine) ClearMarks() {
	for gi := range e.groups {
		for pi := range e.groups[gi].Members {
			e.groups[gi].Members[pi].Marked = false
		}
	}
}

// Groups returns the current group set.
func (e *Engine) Groups() []Group {
	return e.groups
}

// MarkedPhotoIDs collects the ids of every currently marked member
// across all groups, for handoff to TrashManager.
func (e *Engine) MarkedPhotoIDs() []int64 {
	var ids []int64
	for _, g := range e.groups {
		for _, m := range g.Members {
			if m.Marked {
				ids = append(ids, m.Photo.ID)
			}
		}
	}
	return ids
}
