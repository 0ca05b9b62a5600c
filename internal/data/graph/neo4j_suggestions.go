package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	apperrors "github.com/Ridou/Omnii-One-sub008/internal/pkg/errors"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

// SuggestionRepo persists relationship suggestions as graph nodes with the
// same one-way pending -> approved/rejected transition as the review queue.
type SuggestionRepo interface {
	Store(ctx context.Context, s types.RelationshipSuggestion) error
	Get(ctx context.Context, id uuid.UUID) (*types.RelationshipSuggestion, error)
	GetPending(ctx context.Context, limit int, minConfidence float64) ([]types.RelationshipSuggestion, error)
	// MarkStatus transitions a pending suggestion. ErrConflict when already
	// resolved, ErrNotFound when missing.
	MarkStatus(ctx context.Context, id uuid.UUID, status types.ReviewStatus) error
	Stats(ctx context.Context) (types.SuggestionStats, error)
}

type suggestionRepo struct {
	q   Querier
	log *logger.Logger
}

func NewSuggestionRepo(q Querier, baseLog *logger.Logger) SuggestionRepo {
	return &suggestionRepo{q: q, log: baseLog.With("repo", "SuggestionRepo")}
}

const storeSuggestionCypher = `
MERGE (s:Suggestion {id: $id})
SET s.source_id = $source_id,
    s.source_name = $source_name,
    s.source_type = $source_type,
    s.target_id = $target_id,
    s.target_name = $target_name,
    s.target_type = $target_type,
    s.relationship_type = $relationship_type,
    s.confidence = $confidence,
    s.pattern = $pattern,
    s.status = $status,
    s.evidence_json = $evidence_json,
    s.created_at = $created_at
RETURN s.id AS id
`

func (r *suggestionRepo) Store(ctx context.Context, s types.RelationshipSuggestion) error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("suggestion: missing id")
	}
	evidenceJSON, err := json.Marshal(s.Evidence)
	if err != nil {
		return fmt.Errorf("suggestion: encode evidence: %w", err)
	}
	_, qerr := r.q.Write(ctx, storeSuggestionCypher, map[string]any{
		"id":                s.ID.String(),
		"source_id":         s.SourceEntity.ID,
		"source_name":       s.SourceEntity.Name,
		"source_type":       string(s.SourceEntity.Type),
		"target_id":         s.TargetEntity.ID,
		"target_name":       s.TargetEntity.Name,
		"target_type":       string(s.TargetEntity.Type),
		"relationship_type": s.RelationshipType,
		"confidence":        s.Confidence,
		"pattern":           s.Pattern,
		"status":            string(s.Status),
		"evidence_json":     string(evidenceJSON),
		"created_at":        s.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if qerr != nil {
		return queryErr("store_suggestion", qerr)
	}
	return nil
}

const suggestionReturnClause = `
RETURN s.id AS id, s.source_id AS source_id, s.source_name AS source_name,
       s.source_type AS source_type, s.target_id AS target_id,
       s.target_name AS target_name, s.target_type AS target_type,
       s.relationship_type AS relationship_type, s.confidence AS confidence,
       s.pattern AS pattern, s.status AS status, s.evidence_json AS evidence_json,
       s.created_at AS created_at, s.reviewed_at AS reviewed_at
`

func (r *suggestionRepo) Get(ctx context.Context, id uuid.UUID) (*types.RelationshipSuggestion, error) {
	records, err := r.q.Read(ctx, `MATCH (s:Suggestion {id: $id})`+suggestionReturnClause, map[string]any{"id": id.String()})
	if err != nil {
		return nil, queryErr("get_suggestion", err)
	}
	if len(records) == 0 {
		return nil, apperrors.ErrNotFound
	}
	s := decodeSuggestion(records[0])
	return &s, nil
}

func (r *suggestionRepo) GetPending(ctx context.Context, limit int, minConfidence float64) ([]types.RelationshipSuggestion, error) {
	if limit <= 0 {
		limit = 50
	}
	cypher := `MATCH (s:Suggestion {status: 'pending'})
WHERE s.confidence >= $min_confidence` + suggestionReturnClause + `
ORDER BY s.confidence DESC
LIMIT $limit`
	records, err := r.q.Read(ctx, cypher, map[string]any{
		"min_confidence": minConfidence,
		"limit":          int64(limit),
	})
	if err != nil {
		return nil, queryErr("pending_suggestions", err)
	}
	out := make([]types.RelationshipSuggestion, 0, len(records))
	for _, rec := range records {
		out = append(out, decodeSuggestion(rec))
	}
	return out, nil
}

const markSuggestionCypher = `
MATCH (s:Suggestion {id: $id})
WHERE s.status = 'pending'
SET s.status = $status,
    s.reviewed_at = $reviewed_at
RETURN s.id AS id
`

func (r *suggestionRepo) MarkStatus(ctx context.Context, id uuid.UUID, status types.ReviewStatus) error {
	if status != types.StatusApproved && status != types.StatusRejected {
		return fmt.Errorf("mark suggestion: %w: status %q", apperrors.ErrInvalidArgument, status)
	}
	records, err := r.q.Write(ctx, markSuggestionCypher, map[string]any{
		"id":          id.String(),
		"status":      string(status),
		"reviewed_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return queryErr("mark_suggestion", err)
	}
	if len(records) > 0 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.ErrConflict
}

const suggestionStatsCypher = `
MATCH (s:Suggestion)
RETURN s.status AS status, s.pattern AS pattern, count(s) AS count,
       avg(s.confidence) AS avg_confidence
`

func (r *suggestionRepo) Stats(ctx context.Context) (types.SuggestionStats, error) {
	records, err := r.q.Read(ctx, suggestionStatsCypher, nil)
	if err != nil {
		return types.SuggestionStats{}, queryErr("suggestion_stats", err)
	}
	stats := types.SuggestionStats{ByPattern: map[string]int{}}
	var confSum float64
	for _, rec := range records {
		count := recInt(rec, "count")
		stats.Total += count
		confSum += recFloat(rec, "avg_confidence") * float64(count)
		if pattern := recString(rec, "pattern"); pattern != "" {
			stats.ByPattern[pattern] += count
		}
		switch types.ReviewStatus(recString(rec, "status")) {
		case types.StatusPending:
			stats.Pending += count
		case types.StatusApproved:
			stats.Approved += count
		case types.StatusRejected:
			stats.Rejected += count
		}
	}
	if stats.Total > 0 {
		stats.AvgConfidence = confSum / float64(stats.Total)
	}
	return stats, nil
}

func decodeSuggestion(rec map[string]any) types.RelationshipSuggestion {
	s := types.RelationshipSuggestion{
		SourceEntity: types.EntityRef{
			ID:   recString(rec, "source_id"),
			Name: recString(rec, "source_name"),
			Type: types.EntityType(recString(rec, "source_type")),
		},
		TargetEntity: types.EntityRef{
			ID:   recString(rec, "target_id"),
			Name: recString(rec, "target_name"),
			Type: types.EntityType(recString(rec, "target_type")),
		},
		RelationshipType: recString(rec, "relationship_type"),
		Confidence:       recFloat(rec, "confidence"),
		Pattern:          recString(rec, "pattern"),
		Status:           types.ReviewStatus(recString(rec, "status")),
	}
	if id, err := uuid.Parse(recString(rec, "id")); err == nil {
		s.ID = id
	}
	if raw := recString(rec, "evidence_json"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &s.Evidence)
	}
	if ts := recTime(rec, "created_at"); ts != nil {
		s.CreatedAt = *ts
	}
	s.ReviewedAt = recTime(rec, "reviewed_at")
	return s
}
