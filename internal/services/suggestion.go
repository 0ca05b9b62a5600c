package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Ridou/Omnii-One-sub008/internal/data/graph"
	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	apperrors "github.com/Ridou/Omnii-One-sub008/internal/pkg/errors"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

// Confidences are rounded to this granularity during ranking; suggestions
// landing in the same bucket are ties, broken by evidence count and recency.
const rankConfidenceTie = 0.1

// SuggestionService ranks, persists, and resolves relationship suggestions.
type SuggestionService interface {
	RankSuggestions(suggestions []types.RelationshipSuggestion) []types.RelationshipSuggestion
	FilterByConfidence(suggestions []types.RelationshipSuggestion, min float64) []types.RelationshipSuggestion
	StoreSuggestion(ctx context.Context, s types.RelationshipSuggestion) error
	GetPendingSuggestions(ctx context.Context, limit int, minConfidence float64) ([]types.RelationshipSuggestion, error)
	// ApproveSuggestion writes the graph edge and marks the suggestion
	// approved. An edge write failure leaves the suggestion pending.
	ApproveSuggestion(ctx context.Context, id uuid.UUID) error
	RejectSuggestion(ctx context.Context, id uuid.UUID) error
	FormatForApproval(s types.RelationshipSuggestion) types.FormattedSuggestion
	GetSuggestionStats(ctx context.Context) (types.SuggestionStats, error)
}

type suggestionService struct {
	log         *logger.Logger
	suggestions graph.SuggestionRepo
	entities    graph.EntityRepo
}

func NewSuggestionService(
	baseLog *logger.Logger,
	suggestions graph.SuggestionRepo,
	entities graph.EntityRepo,
) SuggestionService {
	return &suggestionService{
		log:         baseLog.With("service", "SuggestionService"),
		suggestions: suggestions,
		entities:    entities,
	}
}

// RankSuggestions sorts by bucketed confidence descending, breaking ties
// within a bucket by evidence count, then by recency. Bucketing keeps the
// comparator a strict weak ordering; pairwise near-tie checks are not
// transitive across chains. Stable with respect to input order.
func (s *suggestionService) RankSuggestions(suggestions []types.RelationshipSuggestion) []types.RelationshipSuggestion {
	ranked := make([]types.RelationshipSuggestion, len(suggestions))
	copy(ranked, suggestions)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ab, bb := rankBucket(a.Confidence), rankBucket(b.Confidence); ab != bb {
			return ab > bb
		}
		if len(a.Evidence) != len(b.Evidence) {
			return len(a.Evidence) > len(b.Evidence)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return ranked
}

func rankBucket(confidence float64) int {
	return int(math.Round(confidence / rankConfidenceTie))
}

func (s *suggestionService) FilterByConfidence(suggestions []types.RelationshipSuggestion, min float64) []types.RelationshipSuggestion {
	out := make([]types.RelationshipSuggestion, 0, len(suggestions))
	for _, sg := range suggestions {
		if sg.Confidence >= min {
			out = append(out, sg)
		}
	}
	return out
}

func (s *suggestionService) StoreSuggestion(ctx context.Context, sg types.RelationshipSuggestion) error {
	if s.suggestions == nil {
		return fmt.Errorf("suggestion store not configured")
	}
	if sg.ID == uuid.Nil {
		return fmt.Errorf("store suggestion: %w: missing id", apperrors.ErrInvalidArgument)
	}
	if len(sg.Evidence) == 0 {
		return fmt.Errorf("store suggestion: %w: evidence required", apperrors.ErrInvalidArgument)
	}
	return s.suggestions.Store(ctx, sg)
}

func (s *suggestionService) GetPendingSuggestions(ctx context.Context, limit int, minConfidence float64) ([]types.RelationshipSuggestion, error) {
	if s.suggestions == nil {
		return nil, fmt.Errorf("suggestion store not configured")
	}
	return s.suggestions.GetPending(ctx, limit, minConfidence)
}

func (s *suggestionService) ApproveSuggestion(ctx context.Context, id uuid.UUID) error {
	if s.suggestions == nil || s.entities == nil {
		return fmt.Errorf("suggestion service not configured")
	}
	sg, err := s.suggestions.Get(ctx, id)
	if err != nil {
		return err
	}
	if sg.Status != types.StatusPending {
		return fmt.Errorf("approve suggestion %s: %w", id, apperrors.ErrConflict)
	}
	if strings.HasPrefix(sg.SourceEntity.ID, "pending:") {
		return fmt.Errorf("approve suggestion %s: %w: source entity not yet in graph", id, apperrors.ErrInvalidArgument)
	}

	// Edge first, status second: a failed edge write must leave the
	// suggestion pending so the approval can be retried.
	edge := graph.GraphEdge{
		SourceID:         sg.SourceEntity.ID,
		TargetID:         sg.TargetEntity.ID,
		RelationshipType: sg.RelationshipType,
		Confidence:       sg.Confidence,
		SuggestionID:     sg.ID.String(),
	}
	if err := s.entities.CreateRelationship(ctx, edge); err != nil {
		return fmt.Errorf("approve suggestion %s: create edge: %w", id, err)
	}
	if err := s.suggestions.MarkStatus(ctx, id, types.StatusApproved); err != nil {
		return err
	}
	s.log.Info("suggestion approved",
		"suggestion_id", id,
		"relationship", sg.RelationshipType,
		"confidence", sg.Confidence,
	)
	return nil
}

func (s *suggestionService) RejectSuggestion(ctx context.Context, id uuid.UUID) error {
	if s.suggestions == nil {
		return fmt.Errorf("suggestion store not configured")
	}
	if err := s.suggestions.MarkStatus(ctx, id, types.StatusRejected); err != nil {
		return err
	}
	s.log.Info("suggestion rejected", "suggestion_id", id)
	return nil
}

// FormatForApproval renders a suggestion for a reviewer. Pure presentation.
func (s *suggestionService) FormatForApproval(sg types.RelationshipSuggestion) types.FormattedSuggestion {
	return types.FormattedSuggestion{
		ID:              sg.ID,
		Summary:         fmt.Sprintf("%s %s %s", sg.SourceEntity.Name, humanizeRelationship(sg.RelationshipType), sg.TargetEntity.Name),
		ConfidenceLabel: confidenceLabel(sg.Confidence),
		Confidence:      sg.Confidence,
		Evidence:        sg.Evidence,
	}
}

func (s *suggestionService) GetSuggestionStats(ctx context.Context) (types.SuggestionStats, error) {
	if s.suggestions == nil {
		return types.SuggestionStats{}, fmt.Errorf("suggestion store not configured")
	}
	return s.suggestions.Stats(ctx)
}

func confidenceLabel(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "High"
	case confidence >= 0.6:
		return "Medium"
	default:
		return "Low"
	}
}

// humanizeRelationship turns WORKS_AT into "works at".
func humanizeRelationship(relType string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(relType), "_", " "))
}
