package graph

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

// EntityMatch is a graph node returned by a name-similarity lookup, with its
// relationship count for disambiguation ranking.
type EntityMatch struct {
	ID          string
	Name        string
	Type        types.EntityType
	Source      types.Source
	Timestamp   *time.Time
	Connections int
}

// GraphEdge is the payload for an inferred relationship write. Source is
// tagged "inference" and the suggestion id is kept for traceability.
type GraphEdge struct {
	SourceID         string
	TargetID         string
	RelationshipType string
	Confidence       float64
	SuggestionID     string
}

// EntityRepo is the graph-store surface for entity nodes and edges.
type EntityRepo interface {
	// FindMatches returns nodes whose name equals, contains, or is contained
	// by the candidate name, optionally restricted to one type, ordered by
	// relationship count descending.
	FindMatches(ctx context.Context, name string, entityType types.EntityType, limit int) ([]EntityMatch, error)
	// FindAcrossSources is the cross-source variant: same name similarity,
	// restricted to the given extraction sources.
	FindAcrossSources(ctx context.Context, name string, sources []types.Source, limit int) ([]EntityMatch, error)
	CreateEntity(ctx context.Context, e types.EnhancedEntity) (string, error)
	RelationshipExists(ctx context.Context, sourceID, targetID, relType string) (bool, error)
	CreateRelationship(ctx context.Context, edge GraphEdge) error
}

type entityRepo struct {
	q   Querier
	log *logger.Logger
}

func NewEntityRepo(q Querier, baseLog *logger.Logger) EntityRepo {
	return &entityRepo{q: q, log: baseLog.With("repo", "EntityRepo")}
}

const findMatchesCypher = `
MATCH (e:Entity)
WHERE ($type = '' OR e.type = $type)
  AND (toLower(e.name) = toLower($name)
       OR toLower(e.name) CONTAINS toLower($name)
       OR toLower($name) CONTAINS toLower(e.name))
OPTIONAL MATCH (e)-[r]-()
WITH e, count(r) AS connections
RETURN e.id AS id, e.name AS name, e.type AS type, e.source AS source,
       e.timestamp AS timestamp, connections
ORDER BY connections DESC
LIMIT $limit
`

func (r *entityRepo) FindMatches(ctx context.Context, name string, entityType types.EntityType, limit int) ([]EntityMatch, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 5
	}
	records, err := r.q.Read(ctx, findMatchesCypher, map[string]any{
		"name":  strings.TrimSpace(name),
		"type":  string(entityType),
		"limit": int64(limit),
	})
	if err != nil {
		return nil, queryErr("find_matches", err)
	}
	return collectMatches(records), nil
}

const findAcrossSourcesCypher = `
MATCH (e:Entity)
WHERE e.source IN $sources
  AND (toLower(e.name) = toLower($name)
       OR toLower(e.name) CONTAINS toLower($name)
       OR toLower($name) CONTAINS toLower(e.name))
OPTIONAL MATCH (e)-[r]-()
WITH e, count(r) AS connections
RETURN e.id AS id, e.name AS name, e.type AS type, e.source AS source,
       e.timestamp AS timestamp, connections
ORDER BY connections DESC
LIMIT $limit
`

func (r *entityRepo) FindAcrossSources(ctx context.Context, name string, sources []types.Source, limit int) ([]EntityMatch, error) {
	if strings.TrimSpace(name) == "" || len(sources) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	srcs := make([]string, 0, len(sources))
	for _, s := range sources {
		srcs = append(srcs, string(s))
	}
	records, err := r.q.Read(ctx, findAcrossSourcesCypher, map[string]any{
		"name":    strings.TrimSpace(name),
		"sources": srcs,
		"limit":   int64(limit),
	})
	if err != nil {
		return nil, queryErr("find_across_sources", err)
	}
	return collectMatches(records), nil
}

func collectMatches(records []map[string]any) []EntityMatch {
	matches := make([]EntityMatch, 0, len(records))
	for _, rec := range records {
		matches = append(matches, EntityMatch{
			ID:          recString(rec, "id"),
			Name:        recString(rec, "name"),
			Type:        types.EntityType(recString(rec, "type")),
			Source:      types.Source(recString(rec, "source")),
			Timestamp:   recTime(rec, "timestamp"),
			Connections: recInt(rec, "connections"),
		})
	}
	return matches
}

const createEntityCypher = `
MERGE (e:Entity {id: $id})
SET e.name = $name,
    e.type = $type,
    e.source = $source,
    e.confidence = $confidence,
    e.timestamp = $timestamp,
    e.created_at = $created_at
RETURN e.id AS id
`

func (r *entityRepo) CreateEntity(ctx context.Context, e types.EnhancedEntity) (string, error) {
	if strings.TrimSpace(e.Name) == "" {
		return "", fmt.Errorf("create entity: missing name")
	}
	id := uuid.NewString()
	ts := ""
	if e.Timestamp != nil {
		ts = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	records, err := r.q.Write(ctx, createEntityCypher, map[string]any{
		"id":         id,
		"name":       e.Name,
		"type":       string(e.Type),
		"source":     string(e.Source),
		"confidence": e.Confidence,
		"timestamp":  ts,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", queryErr("create_entity", err)
	}
	if len(records) == 0 {
		return "", queryErr("create_entity", fmt.Errorf("no row returned"))
	}
	return recString(records[0], "id"), nil
}

// relTypePattern restricts relationship types to identifier characters.
// Cypher cannot parameterize relationship types, so the type is interpolated
// after validation.
var relTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

func safeRelType(relType string) (string, error) {
	relType = strings.ToUpper(strings.TrimSpace(relType))
	if !relTypePattern.MatchString(relType) {
		return "", fmt.Errorf("invalid relationship type %q", relType)
	}
	return relType, nil
}

// RelationshipExists is an advisory read-before-write check. It is racy under
// concurrent callers; strict uniqueness needs the store-side constraint (see
// EnsureSchema).
func (r *entityRepo) RelationshipExists(ctx context.Context, sourceID, targetID, relType string) (bool, error) {
	rt, err := safeRelType(relType)
	if err != nil {
		return false, err
	}
	cypher := fmt.Sprintf(`
MATCH (a:Entity {id: $source_id})-[rel:%s]->(b:Entity {id: $target_id})
RETURN count(rel) > 0 AS exists
`, rt)
	records, qerr := r.q.Read(ctx, cypher, map[string]any{
		"source_id": sourceID,
		"target_id": targetID,
	})
	if qerr != nil {
		return false, queryErr("relationship_exists", qerr)
	}
	if len(records) == 0 {
		return false, nil
	}
	return recBool(records[0], "exists"), nil
}

func (r *entityRepo) CreateRelationship(ctx context.Context, edge GraphEdge) error {
	if edge.SourceID == "" || edge.TargetID == "" {
		return fmt.Errorf("create relationship: missing node ids")
	}
	rt, err := safeRelType(edge.RelationshipType)
	if err != nil {
		return err
	}
	cypher := fmt.Sprintf(`
MATCH (a:Entity {id: $source_id})
MATCH (b:Entity {id: $target_id})
MERGE (a)-[rel:%s]->(b)
SET rel.source = 'inference',
    rel.confidence = $confidence,
    rel.suggestion_id = $suggestion_id,
    rel.created_at = $created_at
RETURN rel.suggestion_id AS suggestion_id
`, rt)
	records, qerr := r.q.Write(ctx, cypher, map[string]any{
		"source_id":     edge.SourceID,
		"target_id":     edge.TargetID,
		"confidence":    edge.Confidence,
		"suggestion_id": edge.SuggestionID,
		"created_at":    time.Now().UTC().Format(time.RFC3339Nano),
	})
	if qerr != nil {
		return queryErr("create_relationship", qerr)
	}
	if len(records) == 0 {
		// MATCH found no nodes; the edge was not written.
		return queryErr("create_relationship", fmt.Errorf("source or target node missing"))
	}
	return nil
}
