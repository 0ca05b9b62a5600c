package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Ridou/Omnii-One-sub008/internal/data/graph"
	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	apperrors "github.com/Ridou/Omnii-One-sub008/internal/pkg/errors"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/openai"
)

func testLogger(t interface{ Fatalf(string, ...any) }) *logger.Logger {
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

type fakeExtractor struct {
	entities []openai.RawEntity
	err      error
	calls    int
}

func (f *fakeExtractor) ExtractEntities(ctx context.Context, text string) ([]openai.RawEntity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entities, nil
}

// fakeEntityRepo serves canned matches per lowercase name and records writes.
type fakeEntityRepo struct {
	mu sync.Mutex

	matchesByName map[string][]graph.EntityMatch
	findErr       error

	createdEntities []types.EnhancedEntity
	createEntityErr error

	existingEdges map[string]bool // "source|target|TYPE"
	existsErr     error

	createdEdges  []graph.GraphEdge
	createEdgeErr error
}

func newFakeEntityRepo() *fakeEntityRepo {
	return &fakeEntityRepo{
		matchesByName: map[string][]graph.EntityMatch{},
		existingEdges: map[string]bool{},
	}
}

func (f *fakeEntityRepo) FindMatches(ctx context.Context, name string, entityType types.EntityType, limit int) ([]graph.EntityMatch, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.matchesByName[lower(name)], nil
}

func (f *fakeEntityRepo) FindAcrossSources(ctx context.Context, name string, sources []types.Source, limit int) ([]graph.EntityMatch, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []graph.EntityMatch
	for _, m := range f.matchesByName[lower(name)] {
		for _, s := range sources {
			if m.Source == s {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEntityRepo) CreateEntity(ctx context.Context, e types.EnhancedEntity) (string, error) {
	if f.createEntityErr != nil {
		return "", f.createEntityErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdEntities = append(f.createdEntities, e)
	return fmt.Sprintf("node-%d", len(f.createdEntities)), nil
}

func (f *fakeEntityRepo) RelationshipExists(ctx context.Context, sourceID, targetID, relType string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existingEdges[sourceID+"|"+targetID+"|"+relType], nil
}

func (f *fakeEntityRepo) CreateRelationship(ctx context.Context, edge graph.GraphEdge) error {
	if f.createEdgeErr != nil {
		return f.createEdgeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createdEdges = append(f.createdEdges, edge)
	return nil
}

// fakeReviewQueueRepo is an in-memory review queue with the same one-way
// transition semantics as the graph-backed repo.
type fakeReviewQueueRepo struct {
	mu     sync.Mutex
	items  map[uuid.UUID]*types.ReviewQueueItem
	addErr error
}

func newFakeReviewQueueRepo() *fakeReviewQueueRepo {
	return &fakeReviewQueueRepo{items: map[uuid.UUID]*types.ReviewQueueItem{}}
}

func (f *fakeReviewQueueRepo) Add(ctx context.Context, item types.ReviewQueueItem) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := item
	f.items[item.ID] = &copied
	return nil
}

func (f *fakeReviewQueueRepo) Get(ctx context.Context, id uuid.UUID) (*types.ReviewQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeReviewQueueRepo) GetPending(ctx context.Context, limit int) ([]types.ReviewQueueItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.ReviewQueueItem
	for _, item := range f.items {
		if item.Status == types.StatusPending {
			out = append(out, *item)
		}
	}
	return out, nil
}

func (f *fakeReviewQueueRepo) Resolve(ctx context.Context, id uuid.UUID, status types.ReviewStatus, reviewedBy, feedback string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if item.Status != types.StatusPending {
		return apperrors.ErrConflict
	}
	item.Status = status
	item.ReviewedBy = reviewedBy
	item.Feedback = feedback
	return nil
}

func (f *fakeReviewQueueRepo) Stats(ctx context.Context) (types.QualityStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats types.QualityStats
	var confSum float64
	for _, item := range f.items {
		stats.Total++
		confSum += item.Entity.Confidence
		switch item.Status {
		case types.StatusPending:
			stats.Pending++
		case types.StatusApproved:
			stats.Approved++
		case types.StatusRejected:
			stats.Rejected++
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = confSum / float64(stats.Total)
	}
	return stats, nil
}

// fakeSuggestionRepo mirrors the graph-backed suggestion store in memory.
type fakeSuggestionRepo struct {
	mu          sync.Mutex
	suggestions map[uuid.UUID]*types.RelationshipSuggestion
	storeErr    error
	markErr     error
}

func newFakeSuggestionRepo() *fakeSuggestionRepo {
	return &fakeSuggestionRepo{suggestions: map[uuid.UUID]*types.RelationshipSuggestion{}}
}

func (f *fakeSuggestionRepo) Store(ctx context.Context, s types.RelationshipSuggestion) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := s
	f.suggestions[s.ID] = &copied
	return nil
}

func (f *fakeSuggestionRepo) Get(ctx context.Context, id uuid.UUID) (*types.RelationshipSuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suggestions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeSuggestionRepo) GetPending(ctx context.Context, limit int, minConfidence float64) ([]types.RelationshipSuggestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.RelationshipSuggestion
	for _, s := range f.suggestions {
		if s.Status == types.StatusPending && s.Confidence >= minConfidence {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSuggestionRepo) MarkStatus(ctx context.Context, id uuid.UUID, status types.ReviewStatus) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.suggestions[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if s.Status != types.StatusPending {
		return apperrors.ErrConflict
	}
	s.Status = status
	return nil
}

func (f *fakeSuggestionRepo) Stats(ctx context.Context) (types.SuggestionStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := types.SuggestionStats{ByPattern: map[string]int{}}
	var confSum float64
	for _, s := range f.suggestions {
		stats.Total++
		confSum += s.Confidence
		stats.ByPattern[s.Pattern]++
		switch s.Status {
		case types.StatusPending:
			stats.Pending++
		case types.StatusApproved:
			stats.Approved++
		case types.StatusRejected:
			stats.Rejected++
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = confSum / float64(stats.Total)
	}
	return stats, nil
}

func lower(s string) string { return strings.ToLower(s) }
