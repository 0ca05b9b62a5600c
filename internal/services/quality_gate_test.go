package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	apperrors "github.com/Ridou/Omnii-One-sub008/internal/pkg/errors"
)

func newTestGate(t *testing.T, queue *fakeReviewQueueRepo, entities *fakeEntityRepo) QualityGateService {
	t.Helper()
	return NewQualityGateService(testLogger(t), NewCalibrator(DefaultCalibrationConfig()), queue, entities)
}

func entityWith(name string, entityType types.EntityType, confidence float64) types.EnhancedEntity {
	return types.EnhancedEntity{
		Name:       name,
		Type:       entityType,
		Confidence: confidence,
		Source:     types.SourceEmail,
		Quality:    types.QualityMedium,
	}
}

func TestGateDecisionOrder(t *testing.T) {
	gate := newTestGate(t, newFakeReviewQueueRepo(), newFakeEntityRepo())
	cfg := types.ExtractionConfig{Source: types.SourceEmail}

	cases := []struct {
		name   string
		entity types.EnhancedEntity
		want   GateAction
	}{
		{"below global floor", entityWith("x", types.EntityConcept, 0.2), GateReject},
		{"below type floor", entityWith("x", types.EntityDate, 0.5), GateReject}, // 0.5 < 0.9*0.6
		{"auto accept", entityWith("x", types.EntityPerson, 0.9), GateAccept},
		{"uncertain routes to review", entityWith("x", types.EntityPerson, 0.7), GateReview},
		{"high confidence below type minimum", entityWith("x", types.EntityDate, 0.86), GateReview},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := gate.Gate(tc.entity, cfg)
			if d.Action != tc.want {
				t.Fatalf("Gate(%v, %s) = %s (%s), want %s", tc.entity.Confidence, tc.entity.Type, d.Action, d.Reason, tc.want)
			}
			if d.Reason == "" {
				t.Fatalf("decision has no reason")
			}
		})
	}
}

func TestGateBatchPreservesOrderWithinBuckets(t *testing.T) {
	gate := newTestGate(t, newFakeReviewQueueRepo(), newFakeEntityRepo())
	cfg := types.ExtractionConfig{Source: types.SourceEmail}

	batch := []types.EnhancedEntity{
		entityWith("first-accept", types.EntityPerson, 0.95),
		entityWith("first-review", types.EntityPerson, 0.7),
		entityWith("first-reject", types.EntityPerson, 0.1),
		entityWith("second-accept", types.EntityPerson, 0.88),
		entityWith("second-review", types.EntityPerson, 0.65),
		entityWith("second-reject", types.EntityPerson, 0.2),
	}
	res := gate.GateBatch(batch, cfg)

	if len(res.Accepted) != 2 || res.Accepted[0].Entity.Name != "first-accept" || res.Accepted[1].Entity.Name != "second-accept" {
		t.Fatalf("accepted bucket wrong: %+v", res.Accepted)
	}
	if len(res.Review) != 2 || res.Review[0].Entity.Name != "first-review" || res.Review[1].Entity.Name != "second-review" {
		t.Fatalf("review bucket wrong: %+v", res.Review)
	}
	if len(res.Rejected) != 2 || res.Rejected[0].Entity.Name != "first-reject" || res.Rejected[1].Entity.Name != "second-reject" {
		t.Fatalf("rejected bucket wrong: %+v", res.Rejected)
	}
}

func TestAddToReviewQueueTruncatesContent(t *testing.T) {
	queue := newFakeReviewQueueRepo()
	gate := newTestGate(t, queue, newFakeEntityRepo())

	long := strings.Repeat("a", 2*maxReviewContentLength)
	item, err := gate.AddToReviewQueue(context.Background(), entityWith("Ada", types.EntityPerson, 0.7), long, types.SourceEmail, "msg-1")
	if err != nil {
		t.Fatalf("AddToReviewQueue: %v", err)
	}
	if len(item.SourceContent) != maxReviewContentLength {
		t.Fatalf("content length = %d, want %d", len(item.SourceContent), maxReviewContentLength)
	}
	if item.Status != types.StatusPending {
		t.Fatalf("new item status = %s, want pending", item.Status)
	}
	stored, err := queue.Get(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("item not persisted: %v", err)
	}
	if stored.Entity.Name != "Ada" {
		t.Fatalf("stored entity = %s", stored.Entity.Name)
	}
}

func TestApproveReviewItemCreatesEntityThenResolves(t *testing.T) {
	queue := newFakeReviewQueueRepo()
	entities := newFakeEntityRepo()
	gate := newTestGate(t, queue, entities)

	item, err := gate.AddToReviewQueue(context.Background(), entityWith("Ada", types.EntityPerson, 0.7), "content", types.SourceEmail, "msg-1")
	if err != nil {
		t.Fatalf("AddToReviewQueue: %v", err)
	}

	nodeID, err := gate.ApproveReviewItem(context.Background(), item.ID, "reviewer@ops")
	if err != nil {
		t.Fatalf("ApproveReviewItem: %v", err)
	}
	if nodeID == "" {
		t.Fatalf("no node id returned")
	}
	if len(entities.createdEntities) != 1 || entities.createdEntities[0].Name != "Ada" {
		t.Fatalf("entity not created: %+v", entities.createdEntities)
	}
	stored, _ := queue.Get(context.Background(), item.ID)
	if stored.Status != types.StatusApproved {
		t.Fatalf("item status = %s, want approved", stored.Status)
	}

	// Second approval must fail: the item already left pending.
	if _, err := gate.ApproveReviewItem(context.Background(), item.ID, "reviewer@ops"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("double approval error = %v, want ErrConflict", err)
	}
	if len(entities.createdEntities) != 1 {
		t.Fatalf("double approval created a second entity")
	}
}

func TestApproveReviewItemEntityWriteFailureKeepsPending(t *testing.T) {
	queue := newFakeReviewQueueRepo()
	entities := newFakeEntityRepo()
	entities.createEntityErr = errors.New("write refused")
	gate := newTestGate(t, queue, entities)

	item, err := gate.AddToReviewQueue(context.Background(), entityWith("Ada", types.EntityPerson, 0.7), "content", types.SourceEmail, "msg-1")
	if err != nil {
		t.Fatalf("AddToReviewQueue: %v", err)
	}
	if _, err := gate.ApproveReviewItem(context.Background(), item.ID, "reviewer@ops"); err == nil {
		t.Fatalf("entity write failure swallowed")
	}
	stored, _ := queue.Get(context.Background(), item.ID)
	if stored.Status != types.StatusPending {
		t.Fatalf("item status = %s after failed approval, want pending", stored.Status)
	}
}

func TestRejectReviewItemIsTerminal(t *testing.T) {
	queue := newFakeReviewQueueRepo()
	gate := newTestGate(t, queue, newFakeEntityRepo())

	item, err := gate.AddToReviewQueue(context.Background(), entityWith("Ada", types.EntityPerson, 0.7), "content", types.SourceEmail, "msg-1")
	if err != nil {
		t.Fatalf("AddToReviewQueue: %v", err)
	}
	if err := gate.RejectReviewItem(context.Background(), item.ID, "reviewer@ops", "not a real person"); err != nil {
		t.Fatalf("RejectReviewItem: %v", err)
	}
	stored, _ := queue.Get(context.Background(), item.ID)
	if stored.Status != types.StatusRejected || stored.Feedback != "not a real person" {
		t.Fatalf("stored item = %+v", stored)
	}

	if err := gate.RejectReviewItem(context.Background(), item.ID, "reviewer@ops", "again"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("double rejection error = %v, want ErrConflict", err)
	}
	if _, err := gate.ApproveReviewItem(context.Background(), item.ID, "reviewer@ops"); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("approve after reject error = %v, want ErrConflict", err)
	}
}

func TestReviewItemNotFound(t *testing.T) {
	gate := newTestGate(t, newFakeReviewQueueRepo(), newFakeEntityRepo())
	if _, err := gate.ApproveReviewItem(context.Background(), uuid.New(), "reviewer@ops"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("missing item error = %v, want ErrNotFound", err)
	}
}

func TestGetQualityStats(t *testing.T) {
	queue := newFakeReviewQueueRepo()
	entities := newFakeEntityRepo()
	gate := newTestGate(t, queue, entities)
	ctx := context.Background()

	a, _ := gate.AddToReviewQueue(ctx, entityWith("A", types.EntityPerson, 0.8), "c", types.SourceEmail, "1")
	b, _ := gate.AddToReviewQueue(ctx, entityWith("B", types.EntityPerson, 0.6), "c", types.SourceEmail, "2")
	if _, err := gate.ApproveReviewItem(ctx, a.ID, "reviewer"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := gate.RejectReviewItem(ctx, b.ID, "reviewer", "no"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if _, err := gate.AddToReviewQueue(ctx, entityWith("C", types.EntityPerson, 0.7), "c", types.SourceEmail, "3"); err != nil {
		t.Fatalf("add: %v", err)
	}

	stats, err := gate.GetQualityStats(ctx)
	if err != nil {
		t.Fatalf("GetQualityStats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Approved != 1 || stats.Rejected != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if !almostEqual(stats.AvgConfidence, 0.7) {
		t.Fatalf("avg confidence = %v, want 0.7", stats.AvgConfidence)
	}
}
