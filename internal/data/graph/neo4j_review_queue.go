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

// ReviewQueueRepo persists review items as graph nodes. Resolution is a
// conditional one-way transition out of pending.
type ReviewQueueRepo interface {
	Add(ctx context.Context, item types.ReviewQueueItem) error
	Get(ctx context.Context, id uuid.UUID) (*types.ReviewQueueItem, error)
	GetPending(ctx context.Context, limit int) ([]types.ReviewQueueItem, error)
	// Resolve moves a pending item to approved or rejected. Returns
	// ErrConflict when the item exists but already left pending, ErrNotFound
	// when it does not exist.
	Resolve(ctx context.Context, id uuid.UUID, status types.ReviewStatus, reviewedBy, feedback string) error
	Stats(ctx context.Context) (types.QualityStats, error)
}

type reviewQueueRepo struct {
	q   Querier
	log *logger.Logger
}

func NewReviewQueueRepo(q Querier, baseLog *logger.Logger) ReviewQueueRepo {
	return &reviewQueueRepo{q: q, log: baseLog.With("repo", "ReviewQueueRepo")}
}

const addReviewItemCypher = `
CREATE (r:ReviewItem {
  id: $id,
  entity_name: $entity_name,
  entity_type: $entity_type,
  entity_confidence: $entity_confidence,
  entity_json: $entity_json,
  source_content: $source_content,
  source_type: $source_type,
  source_id: $source_id,
  status: $status,
  created_at: $created_at
})
RETURN r.id AS id
`

func (r *reviewQueueRepo) Add(ctx context.Context, item types.ReviewQueueItem) error {
	if item.ID == uuid.Nil {
		return fmt.Errorf("review item: missing id")
	}
	entityJSON, err := json.Marshal(item.Entity)
	if err != nil {
		return fmt.Errorf("review item: encode entity: %w", err)
	}
	_, qerr := r.q.Write(ctx, addReviewItemCypher, map[string]any{
		"id":                item.ID.String(),
		"entity_name":       item.Entity.Name,
		"entity_type":       string(item.Entity.Type),
		"entity_confidence": item.Entity.Confidence,
		"entity_json":       string(entityJSON),
		"source_content":    item.SourceContent,
		"source_type":       string(item.SourceType),
		"source_id":         item.SourceID,
		"status":            string(item.Status),
		"created_at":        item.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if qerr != nil {
		return queryErr("add_review_item", qerr)
	}
	return nil
}

const getReviewItemCypher = `
MATCH (r:ReviewItem {id: $id})
RETURN r.id AS id, r.entity_json AS entity_json, r.source_content AS source_content,
       r.source_type AS source_type, r.source_id AS source_id, r.status AS status,
       r.created_at AS created_at, r.reviewed_at AS reviewed_at,
       r.reviewed_by AS reviewed_by, r.feedback AS feedback
`

func (r *reviewQueueRepo) Get(ctx context.Context, id uuid.UUID) (*types.ReviewQueueItem, error) {
	records, err := r.q.Read(ctx, getReviewItemCypher, map[string]any{"id": id.String()})
	if err != nil {
		return nil, queryErr("get_review_item", err)
	}
	if len(records) == 0 {
		return nil, apperrors.ErrNotFound
	}
	item := decodeReviewItem(records[0])
	return &item, nil
}

const pendingReviewsCypher = `
MATCH (r:ReviewItem {status: 'pending'})
RETURN r.id AS id, r.entity_json AS entity_json, r.source_content AS source_content,
       r.source_type AS source_type, r.source_id AS source_id, r.status AS status,
       r.created_at AS created_at, r.reviewed_at AS reviewed_at,
       r.reviewed_by AS reviewed_by, r.feedback AS feedback
ORDER BY r.created_at ASC
LIMIT $limit
`

func (r *reviewQueueRepo) GetPending(ctx context.Context, limit int) ([]types.ReviewQueueItem, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := r.q.Read(ctx, pendingReviewsCypher, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, queryErr("pending_reviews", err)
	}
	items := make([]types.ReviewQueueItem, 0, len(records))
	for _, rec := range records {
		items = append(items, decodeReviewItem(rec))
	}
	return items, nil
}

const resolveReviewItemCypher = `
MATCH (r:ReviewItem {id: $id})
WHERE r.status = 'pending'
SET r.status = $status,
    r.reviewed_at = $reviewed_at,
    r.reviewed_by = $reviewed_by,
    r.feedback = $feedback
RETURN r.id AS id
`

func (r *reviewQueueRepo) Resolve(ctx context.Context, id uuid.UUID, status types.ReviewStatus, reviewedBy, feedback string) error {
	if status != types.StatusApproved && status != types.StatusRejected {
		return fmt.Errorf("resolve review item: %w: status %q", apperrors.ErrInvalidArgument, status)
	}
	records, err := r.q.Write(ctx, resolveReviewItemCypher, map[string]any{
		"id":          id.String(),
		"status":      string(status),
		"reviewed_at": time.Now().UTC().Format(time.RFC3339Nano),
		"reviewed_by": reviewedBy,
		"feedback":    feedback,
	})
	if err != nil {
		return queryErr("resolve_review_item", err)
	}
	if len(records) > 0 {
		return nil
	}
	// Nothing updated: distinguish missing from already-resolved.
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.ErrConflict
}

const reviewStatsCypher = `
MATCH (r:ReviewItem)
RETURN r.status AS status, count(r) AS count, avg(r.entity_confidence) AS avg_confidence
`

func (r *reviewQueueRepo) Stats(ctx context.Context) (types.QualityStats, error) {
	records, err := r.q.Read(ctx, reviewStatsCypher, nil)
	if err != nil {
		return types.QualityStats{}, queryErr("review_stats", err)
	}
	var stats types.QualityStats
	var confSum float64
	for _, rec := range records {
		count := recInt(rec, "count")
		stats.Total += count
		confSum += recFloat(rec, "avg_confidence") * float64(count)
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

func decodeReviewItem(rec map[string]any) types.ReviewQueueItem {
	item := types.ReviewQueueItem{
		SourceContent: recString(rec, "source_content"),
		SourceType:    types.Source(recString(rec, "source_type")),
		SourceID:      recString(rec, "source_id"),
		Status:        types.ReviewStatus(recString(rec, "status")),
		ReviewedBy:    recString(rec, "reviewed_by"),
		Feedback:      recString(rec, "feedback"),
	}
	if id, err := uuid.Parse(recString(rec, "id")); err == nil {
		item.ID = id
	}
	if raw := recString(rec, "entity_json"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &item.Entity)
	}
	if ts := recTime(rec, "created_at"); ts != nil {
		item.CreatedAt = *ts
	}
	item.ReviewedAt = recTime(rec, "reviewed_at")
	return item
}
