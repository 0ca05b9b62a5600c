package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Ridou/Omnii-One-sub008/internal/data/graph"
	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	apperrors "github.com/Ridou/Omnii-One-sub008/internal/pkg/errors"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

// Source content stored on review items is truncated to cap storage and avoid
// leaking more raw content than a reviewer needs.
const maxReviewContentLength = 500

// Reviewers see entities whose confidence cleared this fraction of the type
// minimum; anything below is rejected outright.
const gateTypeFloorFraction = 0.6

// GateAction is the quality gate's verdict for one entity.
type GateAction string

const (
	GateAccept GateAction = "accept"
	GateReview GateAction = "review"
	GateReject GateAction = "reject"
)

// GateDecision pairs the verdict with a human-readable reason.
type GateDecision struct {
	Entity types.EnhancedEntity `json:"entity"`
	Action GateAction           `json:"action"`
	Reason string               `json:"reason"`
}

// GateBatchResult partitions a batch into the three buckets, preserving input
// order within each bucket.
type GateBatchResult struct {
	Accepted []GateDecision `json:"accepted"`
	Review   []GateDecision `json:"review"`
	Rejected []GateDecision `json:"rejected"`
}

// QualityGateService applies accept/review/reject thresholds and manages the
// review queue lifecycle.
type QualityGateService interface {
	Gate(entity types.EnhancedEntity, cfg types.ExtractionConfig) GateDecision
	GateBatch(entities []types.EnhancedEntity, cfg types.ExtractionConfig) GateBatchResult
	AddToReviewQueue(ctx context.Context, entity types.EnhancedEntity, sourceContent string, sourceType types.Source, sourceID string) (*types.ReviewQueueItem, error)
	GetPendingReviews(ctx context.Context, limit int) ([]types.ReviewQueueItem, error)
	// ApproveReviewItem creates the entity in the graph and resolves the
	// item. Returns the created node id.
	ApproveReviewItem(ctx context.Context, id uuid.UUID, reviewedBy string) (string, error)
	RejectReviewItem(ctx context.Context, id uuid.UUID, reviewedBy, feedback string) error
	GetQualityStats(ctx context.Context) (types.QualityStats, error)
}

type qualityGateService struct {
	log        *logger.Logger
	calibrator *Calibrator
	queue      graph.ReviewQueueRepo
	entities   graph.EntityRepo
}

func NewQualityGateService(
	baseLog *logger.Logger,
	calibrator *Calibrator,
	queue graph.ReviewQueueRepo,
	entities graph.EntityRepo,
) QualityGateService {
	return &qualityGateService{
		log:        baseLog.With("service", "QualityGateService"),
		calibrator: calibrator,
		queue:      queue,
		entities:   entities,
	}
}

// Gate applies the decision order: global floor, type floor, auto-accept,
// review.
func (s *qualityGateService) Gate(entity types.EnhancedEntity, cfg types.ExtractionConfig) GateDecision {
	cfg = cfg.WithDefaults()
	cal := s.calibrator.WithThresholds(cfg.AutoAcceptThreshold, cfg.ReviewThreshold, cfg.MinConfidence)

	decision := GateDecision{Entity: entity}
	typeFloor := cal.TypeThreshold(entity.Type) * gateTypeFloorFraction

	switch {
	case entity.Confidence < cal.RejectFloor():
		decision.Action = GateReject
		decision.Reason = fmt.Sprintf("confidence %.3f below global minimum %.2f", entity.Confidence, cal.RejectFloor())
	case entity.Confidence < typeFloor:
		decision.Action = GateReject
		decision.Reason = fmt.Sprintf("confidence %.3f below %s type floor %.3f", entity.Confidence, entity.Type, typeFloor)
	case cal.ShouldAutoAccept(entity.Confidence, entity.Type):
		decision.Action = GateAccept
		decision.Reason = fmt.Sprintf("confidence %.3f clears auto-accept %.2f and %s minimum", entity.Confidence, cal.AutoAcceptThreshold(), entity.Type)
	default:
		decision.Action = GateReview
		decision.Reason = fmt.Sprintf("confidence %.3f uncertain for %s, routing to review", entity.Confidence, entity.Type)
	}
	return decision
}

func (s *qualityGateService) GateBatch(entities []types.EnhancedEntity, cfg types.ExtractionConfig) GateBatchResult {
	var result GateBatchResult
	for _, e := range entities {
		d := s.Gate(e, cfg)
		switch d.Action {
		case GateAccept:
			result.Accepted = append(result.Accepted, d)
		case GateReview:
			result.Review = append(result.Review, d)
		default:
			result.Rejected = append(result.Rejected, d)
		}
	}
	return result
}

func (s *qualityGateService) AddToReviewQueue(ctx context.Context, entity types.EnhancedEntity, sourceContent string, sourceType types.Source, sourceID string) (*types.ReviewQueueItem, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("review queue not configured")
	}
	if entity.Name == "" {
		return nil, fmt.Errorf("review queue: %w: entity name required", apperrors.ErrInvalidArgument)
	}
	item := types.ReviewQueueItem{
		ID:            uuid.New(),
		Entity:        entity,
		SourceContent: truncate(sourceContent, maxReviewContentLength),
		SourceType:    sourceType,
		SourceID:      sourceID,
		CreatedAt:     time.Now().UTC(),
		Status:        types.StatusPending,
	}
	if err := s.queue.Add(ctx, item); err != nil {
		return nil, fmt.Errorf("add review item: %w", err)
	}
	s.log.Info("entity queued for review", "review_id", item.ID, "entity", entity.Name, "confidence", entity.Confidence)
	return &item, nil
}

func (s *qualityGateService) GetPendingReviews(ctx context.Context, limit int) ([]types.ReviewQueueItem, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("review queue not configured")
	}
	return s.queue.GetPending(ctx, limit)
}

func (s *qualityGateService) ApproveReviewItem(ctx context.Context, id uuid.UUID, reviewedBy string) (string, error) {
	if s.queue == nil || s.entities == nil {
		return "", fmt.Errorf("quality gate not configured")
	}
	item, err := s.queue.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if item.Status != types.StatusPending {
		return "", fmt.Errorf("approve review item %s: %w", id, apperrors.ErrConflict)
	}

	// Create the entity first; the item stays pending if the write fails.
	nodeID, err := s.entities.CreateEntity(ctx, item.Entity)
	if err != nil {
		return "", fmt.Errorf("approve review item %s: create entity: %w", id, err)
	}
	if err := s.queue.Resolve(ctx, id, types.StatusApproved, reviewedBy, ""); err != nil {
		return "", err
	}
	s.log.Info("review item approved", "review_id", id, "node_id", nodeID, "reviewed_by", reviewedBy)
	return nodeID, nil
}

func (s *qualityGateService) RejectReviewItem(ctx context.Context, id uuid.UUID, reviewedBy, feedback string) error {
	if s.queue == nil {
		return fmt.Errorf("review queue not configured")
	}
	if err := s.queue.Resolve(ctx, id, types.StatusRejected, reviewedBy, feedback); err != nil {
		return err
	}
	s.log.Info("review item rejected", "review_id", id, "reviewed_by", reviewedBy)
	return nil
}

func (s *qualityGateService) GetQualityStats(ctx context.Context) (types.QualityStats, error) {
	if s.queue == nil {
		return types.QualityStats{}, fmt.Errorf("review queue not configured")
	}
	return s.queue.Stats(ctx)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
