package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Ridou/Omnii-One-sub008/internal/data/graph"
	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	"github.com/Ridou/Omnii-One-sub008/internal/observability"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
)

// Confidence assumed for a plain graph match on the far side of an inference,
// which carries no calibrated score of its own.
const defaultMatchConfidence = 0.8

const crossSourceMatchLimit = 10

// CrossSourceService discovers relationship candidates between freshly
// extracted entities and graph nodes from other sources.
type CrossSourceService interface {
	DiscoverRelationships(ctx context.Context, entities []types.EnhancedEntity, targetSources []types.Source) ([]types.RelationshipSuggestion, error)
	ValidateInference(s types.RelationshipSuggestion) types.ValidationResult
}

type crossSourceService struct {
	log           *logger.Logger
	entities      graph.EntityRepo
	catalog       *PatternCatalog
	minConfidence float64
	maxWorkers    int
}

func NewCrossSourceService(
	baseLog *logger.Logger,
	entities graph.EntityRepo,
	catalog *PatternCatalog,
	minConfidence float64,
	maxWorkers int,
) CrossSourceService {
	if minConfidence <= 0 {
		minConfidence = types.DefaultMinSuggestionConfidence
	}
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &crossSourceService{
		log:           baseLog.With("service", "CrossSourceService"),
		entities:      entities,
		catalog:       catalog,
		minConfidence: minConfidence,
		maxWorkers:    maxWorkers,
	}
}

// DiscoverRelationships fans the per-entity work out on a bounded pool and
// returns all suggestions sorted by confidence descending. Graph lookup
// failures degrade to "no matches" per entity; the batch itself never fails on
// them.
func (s *crossSourceService) DiscoverRelationships(ctx context.Context, entities []types.EnhancedEntity, targetSources []types.Source) ([]types.RelationshipSuggestion, error) {
	if s == nil || s.entities == nil || s.catalog == nil {
		return nil, fmt.Errorf("cross-source service not configured")
	}
	if len(entities) == 0 || len(targetSources) == 0 {
		return nil, nil
	}

	ctx, span := observability.Tracer().Start(ctx, "pipeline.discover_relationships")
	defer span.End()
	span.SetAttributes(attribute.Int("entities", len(entities)))

	perEntity := make([][]types.RelationshipSuggestion, len(entities))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)
	for i, entity := range entities {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			perEntity[i] = s.discoverForEntity(gctx, entity, targetSources)
			return nil
		})
	}
	_ = g.Wait()

	var suggestions []types.RelationshipSuggestion
	for _, batch := range perEntity {
		suggestions = append(suggestions, batch...)
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})

	s.log.Info("cross-source discovery completed",
		"entities", len(entities),
		"suggestions", len(suggestions),
	)
	return suggestions, nil
}

func (s *crossSourceService) discoverForEntity(ctx context.Context, entity types.EnhancedEntity, targetSources []types.Source) []types.RelationshipSuggestion {
	matches, err := s.entities.FindAcrossSources(ctx, entity.Name, targetSources, crossSourceMatchLimit)
	if err != nil {
		return s.matchLookupFallback(entity.Name, err)
	}

	var out []types.RelationshipSuggestion
	for _, match := range matches {
		// Never relate an entity to its own disambiguated node.
		if entity.MatchedNodeID != "" && match.ID == entity.MatchedNodeID {
			continue
		}
		for _, pattern := range s.catalog.BySourcePair(entity.Source, match.Source) {
			if !patternCoversTypes(pattern, entity.Type, match.Type) {
				continue
			}
			suggestion, ok := s.inferRelationship(ctx, entity, match, pattern)
			if !ok {
				continue
			}
			if v := s.ValidateInference(suggestion); !v.Valid {
				s.log.Debug("inference dropped", "pattern", pattern.Type, "reason", v.Reason)
				continue
			}
			out = append(out, suggestion)
		}
	}
	return out
}

// inferRelationship applies one pattern to one (entity, match) pair.
func (s *crossSourceService) inferRelationship(ctx context.Context, entity types.EnhancedEntity, match graph.EntityMatch, pattern types.InferencePattern) (types.RelationshipSuggestion, bool) {
	// At most one inferred edge per ordered pair per type. The check is
	// advisory; the store constraint is the real guarantee.
	if entity.MatchedNodeID != "" {
		exists, err := s.entities.RelationshipExists(ctx, entity.MatchedNodeID, match.ID, pattern.RelationshipType)
		if err != nil {
			s.log.Warn("edge existence check failed, continuing without it", "pattern", pattern.Type, "error", err)
		} else if exists {
			return types.RelationshipSuggestion{}, false
		}
	}

	signals := PatternSignals{
		EntityConfidence1: entity.Confidence,
		EntityConfidence2: defaultMatchConfidence,
	}
	if entity.Timestamp != nil && match.Timestamp != nil {
		proximity := math.Abs(entity.Timestamp.Sub(*match.Timestamp).Hours())
		if pattern.TemporalWindowHours > 0 && proximity > pattern.TemporalWindowHours {
			return types.RelationshipSuggestion{}, false
		}
		signals.TemporalProximityHours = &proximity
	}
	confidence := s.catalog.CalculatePatternConfidence(pattern, signals)

	now := time.Now().UTC()
	sourceID := entity.MatchedNodeID
	if sourceID == "" {
		// Unpersisted entity: carry a provisional ref so approval flows can
		// resolve it by name. The suggestion stays valid only once the
		// entity exists.
		sourceID = "pending:" + entity.Name
	}
	evidence := []types.Evidence{
		{Source: entity.Source, Snippet: fmt.Sprintf("%q extracted from %s", entity.Name, entity.Source), Timestamp: timestampOr(entity.Timestamp, now)},
		{Source: match.Source, Snippet: fmt.Sprintf("%q known in graph from %s", match.Name, match.Source), Timestamp: timestampOr(match.Timestamp, now)},
	}

	return types.RelationshipSuggestion{
		ID:               uuid.New(),
		SourceEntity:     types.EntityRef{ID: sourceID, Name: entity.Name, Type: entity.Type},
		TargetEntity:     types.EntityRef{ID: match.ID, Name: match.Name, Type: match.Type},
		RelationshipType: pattern.RelationshipType,
		Confidence:       confidence,
		Evidence:         evidence,
		Pattern:          pattern.Type,
		Status:           types.StatusPending,
		CreatedAt:        now,
	}, true
}

// ValidateInference enforces the minimum confidence, the two-evidence
// requirement, and the no-self-relationship invariant. Violations are dropped,
// never silently repaired.
func (s *crossSourceService) ValidateInference(sg types.RelationshipSuggestion) types.ValidationResult {
	if sg.SourceEntity.ID == sg.TargetEntity.ID {
		return types.ValidationResult{Valid: false, Reason: "self-relationship"}
	}
	if len(sg.Evidence) < 2 {
		return types.ValidationResult{Valid: false, Reason: fmt.Sprintf("insufficient evidence (%d < 2)", len(sg.Evidence))}
	}
	if sg.Confidence < s.minConfidence {
		return types.ValidationResult{Valid: false, Reason: fmt.Sprintf("confidence %.3f below minimum %.2f", sg.Confidence, s.minConfidence)}
	}
	return types.ValidationResult{Valid: true}
}

// matchLookupFallback is the explicit policy for cross-source lookup failures:
// no matches for this entity, batch continues.
func (s *crossSourceService) matchLookupFallback(name string, err error) []types.RelationshipSuggestion {
	s.log.Warn("cross-source lookup failed, skipping entity", "entity", name, "error", err)
	return nil
}

func patternCoversTypes(p types.InferencePattern, a, b types.EntityType) bool {
	return (p.EntityTypeA == a && p.EntityTypeB == b) || (p.EntityTypeA == b && p.EntityTypeB == a)
}

func timestampOr(ts *time.Time, fallback time.Time) time.Time {
	if ts != nil {
		return *ts
	}
	return fallback
}
