package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	apperrors "github.com/Ridou/Omnii-One-sub008/internal/pkg/errors"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/neo4jdb"
)

type queryCall struct {
	cypher string
	params map[string]any
}

// fakeQuerier returns canned record batches in call order.
type fakeQuerier struct {
	readResults  [][]neo4jdb.Record
	writeResults [][]neo4jdb.Record
	readErr      error
	writeErr     error

	reads  []queryCall
	writes []queryCall
}

func (f *fakeQuerier) Read(ctx context.Context, cypher string, params map[string]any) ([]neo4jdb.Record, error) {
	f.reads = append(f.reads, queryCall{cypher: cypher, params: params})
	if f.readErr != nil {
		return nil, f.readErr
	}
	if len(f.readResults) == 0 {
		return nil, nil
	}
	out := f.readResults[0]
	f.readResults = f.readResults[1:]
	return out, nil
}

func (f *fakeQuerier) Write(ctx context.Context, cypher string, params map[string]any) ([]neo4jdb.Record, error) {
	f.writes = append(f.writes, queryCall{cypher: cypher, params: params})
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	if len(f.writeResults) == 0 {
		return nil, nil
	}
	out := f.writeResults[0]
	f.writeResults = f.writeResults[1:]
	return out, nil
}

func testLog(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestSafeRelType(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ATTENDED", "ATTENDED", false},
		{"works_at", "WORKS_AT", false},
		{" Knows ", "KNOWS", false},
		{"", "", true},
		{"9LIVES", "", true},
		{"ATTENDED]->(x) DETACH DELETE x //", "", true},
		{"HAS SPACE", "", true},
	}
	for _, tc := range cases {
		got, err := safeRelType(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("safeRelType(%q) accepted", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("safeRelType(%q) = %q, %v, want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestRecTime(t *testing.T) {
	ts := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	if got := recTime(neo4jdb.Record{"t": ts.Format(time.RFC3339Nano)}, "t"); got == nil || !got.Equal(ts) {
		t.Fatalf("rfc3339nano = %v", got)
	}
	if got := recTime(neo4jdb.Record{"t": ts.Format(time.RFC3339)}, "t"); got == nil || !got.Equal(ts) {
		t.Fatalf("rfc3339 = %v", got)
	}
	if got := recTime(neo4jdb.Record{"t": ts}, "t"); got == nil || !got.Equal(ts) {
		t.Fatalf("native time = %v", got)
	}
	if got := recTime(neo4jdb.Record{"t": ""}, "t"); got != nil {
		t.Fatalf("empty string = %v", got)
	}
	if got := recTime(neo4jdb.Record{"t": "not a time"}, "t"); got != nil {
		t.Fatalf("garbage = %v", got)
	}
	if got := recTime(neo4jdb.Record{}, "t"); got != nil {
		t.Fatalf("missing key = %v", got)
	}
}

func TestFindMatchesDecodesRecords(t *testing.T) {
	ts := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	q := &fakeQuerier{readResults: [][]neo4jdb.Record{{
		{
			"id": "node-1", "name": "Grace Hopper", "type": "Person",
			"source": "email", "timestamp": ts.Format(time.RFC3339Nano),
			"connections": int64(7),
		},
		{
			"id": "node-2", "name": "Grace", "type": "Person",
			"source": "contact", "timestamp": "", "connections": int64(2),
		},
	}}}
	repo := NewEntityRepo(q, testLog(t))

	got, err := repo.FindMatches(context.Background(), "Grace Hopper", types.EntityPerson, 5)
	if err != nil {
		t.Fatalf("FindMatches: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("matches = %d, want 2", len(got))
	}
	first := got[0]
	if first.ID != "node-1" || first.Type != types.EntityPerson || first.Source != types.SourceEmail || first.Connections != 7 {
		t.Fatalf("first match = %+v", first)
	}
	if first.Timestamp == nil || !first.Timestamp.Equal(ts) {
		t.Fatalf("first timestamp = %v", first.Timestamp)
	}
	if got[1].Timestamp != nil {
		t.Fatalf("blank timestamp decoded as %v", got[1].Timestamp)
	}
	if q.reads[0].params["limit"] != int64(5) {
		t.Fatalf("limit param = %v", q.reads[0].params["limit"])
	}
}

func TestFindMatchesBlankNameSkipsQuery(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewEntityRepo(q, testLog(t))

	got, err := repo.FindMatches(context.Background(), "   ", types.EntityPerson, 5)
	if err != nil || got != nil {
		t.Fatalf("blank name: %v, %v", got, err)
	}
	if len(q.reads) != 0 {
		t.Fatalf("blank name still queried")
	}
}

func TestFindMatchesWrapsQueryError(t *testing.T) {
	q := &fakeQuerier{readErr: errors.New("connection reset")}
	repo := NewEntityRepo(q, testLog(t))

	_, err := repo.FindMatches(context.Background(), "Grace", types.EntityPerson, 5)
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("error = %v, want QueryError", err)
	}
	if qe.Op != "find_matches" {
		t.Fatalf("op = %s", qe.Op)
	}
}

func TestFindAcrossSourcesFiltersParams(t *testing.T) {
	q := &fakeQuerier{readResults: [][]neo4jdb.Record{{}}}
	repo := NewEntityRepo(q, testLog(t))

	if _, err := repo.FindAcrossSources(context.Background(), "Grace", []types.Source{types.SourceEmail, types.SourceContact}, 0); err != nil {
		t.Fatalf("FindAcrossSources: %v", err)
	}
	params := q.reads[0].params
	srcs, ok := params["sources"].([]string)
	if !ok || len(srcs) != 2 || srcs[0] != "email" {
		t.Fatalf("sources param = %v", params["sources"])
	}
	if params["limit"] != int64(10) {
		t.Fatalf("default limit = %v", params["limit"])
	}
}

func TestCreateEntity(t *testing.T) {
	q := &fakeQuerier{writeResults: [][]neo4jdb.Record{{{"id": "abc"}}}}
	repo := NewEntityRepo(q, testLog(t))

	id, err := repo.CreateEntity(context.Background(), types.EnhancedEntity{
		Name: "Grace Hopper", Type: types.EntityPerson, Source: types.SourceEmail, Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	if id != "abc" {
		t.Fatalf("id = %s", id)
	}

	if _, err := repo.CreateEntity(context.Background(), types.EnhancedEntity{Name: "  "}); err == nil {
		t.Fatalf("blank name accepted")
	}

	empty := &fakeQuerier{}
	repo = NewEntityRepo(empty, testLog(t))
	if _, err := repo.CreateEntity(context.Background(), types.EnhancedEntity{Name: "X"}); err == nil {
		t.Fatalf("zero-row write accepted")
	}
}

func TestRelationshipExists(t *testing.T) {
	q := &fakeQuerier{readResults: [][]neo4jdb.Record{{{"exists": true}}}}
	repo := NewEntityRepo(q, testLog(t))

	exists, err := repo.RelationshipExists(context.Background(), "a", "b", "attended")
	if err != nil || !exists {
		t.Fatalf("RelationshipExists = %v, %v", exists, err)
	}
	if !strings.Contains(q.reads[0].cypher, "[rel:ATTENDED]") {
		t.Fatalf("type not interpolated: %s", q.reads[0].cypher)
	}

	if _, err := repo.RelationshipExists(context.Background(), "a", "b", "BAD TYPE"); err == nil {
		t.Fatalf("invalid relationship type accepted")
	}
}

func TestCreateRelationship(t *testing.T) {
	q := &fakeQuerier{writeResults: [][]neo4jdb.Record{{{"suggestion_id": "s1"}}}}
	repo := NewEntityRepo(q, testLog(t))

	err := repo.CreateRelationship(context.Background(), GraphEdge{
		SourceID: "a", TargetID: "b", RelationshipType: "ATTENDED", Confidence: 0.8, SuggestionID: "s1",
	})
	if err != nil {
		t.Fatalf("CreateRelationship: %v", err)
	}

	// No rows back means MATCH found no nodes.
	missing := &fakeQuerier{}
	repo = NewEntityRepo(missing, testLog(t))
	err = repo.CreateRelationship(context.Background(), GraphEdge{SourceID: "a", TargetID: "b", RelationshipType: "ATTENDED"})
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("missing nodes error = %v", err)
	}

	if err := repo.CreateRelationship(context.Background(), GraphEdge{TargetID: "b", RelationshipType: "ATTENDED"}); err == nil {
		t.Fatalf("missing source id accepted")
	}
}

func reviewItemRecord(id uuid.UUID, status string) neo4jdb.Record {
	return neo4jdb.Record{
		"id":             id.String(),
		"entity_json":    `{"name":"Grace Hopper","type":"Person","confidence":0.7,"source":"email"}`,
		"source_content": "met grace at the review",
		"source_type":    "email",
		"source_id":      "msg-1",
		"status":         status,
		"created_at":     "2026-03-10T09:00:00Z",
	}
}

func TestReviewQueueGetDecodesEntity(t *testing.T) {
	id := uuid.New()
	q := &fakeQuerier{readResults: [][]neo4jdb.Record{{reviewItemRecord(id, "pending")}}}
	repo := NewReviewQueueRepo(q, testLog(t))

	item, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.ID != id || item.Status != types.StatusPending {
		t.Fatalf("item = %+v", item)
	}
	if item.Entity.Name != "Grace Hopper" || item.Entity.Type != types.EntityPerson || item.Entity.Confidence != 0.7 {
		t.Fatalf("decoded entity = %+v", item.Entity)
	}
	if item.CreatedAt.IsZero() {
		t.Fatalf("created_at not decoded")
	}
}

func TestReviewQueueGetNotFound(t *testing.T) {
	q := &fakeQuerier{}
	repo := NewReviewQueueRepo(q, testLog(t))

	if _, err := repo.Get(context.Background(), uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestReviewQueueResolveDistinguishesConflict(t *testing.T) {
	id := uuid.New()

	// Conditional update touched nothing, follow-up read finds the item
	// already approved: conflict.
	q := &fakeQuerier{readResults: [][]neo4jdb.Record{{reviewItemRecord(id, "approved")}}}
	repo := NewReviewQueueRepo(q, testLog(t))
	if err := repo.Resolve(context.Background(), id, types.StatusRejected, "reviewer", ""); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("resolved twice: %v, want ErrConflict", err)
	}

	// Update touched nothing and the follow-up read finds nothing: not found.
	q = &fakeQuerier{}
	repo = NewReviewQueueRepo(q, testLog(t))
	if err := repo.Resolve(context.Background(), id, types.StatusApproved, "reviewer", ""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("missing item: %v, want ErrNotFound", err)
	}

	// A row back means the transition happened.
	q = &fakeQuerier{writeResults: [][]neo4jdb.Record{{{"id": id.String()}}}}
	repo = NewReviewQueueRepo(q, testLog(t))
	if err := repo.Resolve(context.Background(), id, types.StatusApproved, "reviewer", ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

func TestReviewQueueResolveRejectsPendingTarget(t *testing.T) {
	repo := NewReviewQueueRepo(&fakeQuerier{}, testLog(t))
	err := repo.Resolve(context.Background(), uuid.New(), types.StatusPending, "reviewer", "")
	if !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("pending target accepted: %v", err)
	}
}

func TestReviewQueueStatsWeightsAverages(t *testing.T) {
	q := &fakeQuerier{readResults: [][]neo4jdb.Record{{
		{"status": "pending", "count": int64(3), "avg_confidence": 0.7},
		{"status": "approved", "count": int64(1), "avg_confidence": 0.9},
	}}}
	repo := NewReviewQueueRepo(q, testLog(t))

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 4 || stats.Pending != 3 || stats.Approved != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	want := (0.7*3 + 0.9*1) / 4
	if stats.AvgConfidence < want-1e-9 || stats.AvgConfidence > want+1e-9 {
		t.Fatalf("avg = %v, want %v", stats.AvgConfidence, want)
	}
}
