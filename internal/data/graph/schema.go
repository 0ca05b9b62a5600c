package graph

import (
	"context"

	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

// schemaStatements are best-effort: restricted users may not be allowed to
// create constraints, and the pipeline still works without them. The entity
// uniqueness constraints are what make the advisory existence check in the
// matcher safe under concurrent approvers; without them at-most-one edge per
// (source, target, type) is not guaranteed.
var schemaStatements = []string{
	`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
	`CREATE CONSTRAINT review_item_id_unique IF NOT EXISTS FOR (r:ReviewItem) REQUIRE r.id IS UNIQUE`,
	`CREATE CONSTRAINT suggestion_id_unique IF NOT EXISTS FOR (s:Suggestion) REQUIRE s.id IS UNIQUE`,
	`CREATE INDEX entity_name_idx IF NOT EXISTS FOR (e:Entity) ON (e.name)`,
	`CREATE INDEX entity_type_idx IF NOT EXISTS FOR (e:Entity) ON (e.type)`,
}

// EnsureSchema creates constraints and indexes, logging and continuing on
// failure.
func EnsureSchema(ctx context.Context, q Querier, log *logger.Logger) {
	if q == nil {
		return
	}
	for _, stmt := range schemaStatements {
		if _, err := q.Write(ctx, stmt, nil); err != nil {
			if log != nil {
				log.Warn("graph schema init failed (continuing)", "error", err)
			}
		}
	}
}
