package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	redisclient "github.com/Ridou/Omnii-One-sub008/internal/clients/redis"
	"github.com/Ridou/Omnii-One-sub008/internal/data/graph"
	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
	"github.com/Ridou/Omnii-One-sub008/internal/observability"
	apperrors "github.com/Ridou/Omnii-One-sub008/internal/pkg/errors"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/logger"
	"github.com/Ridou/Omnii-One-sub008/internal/platform/openai"
)

const disambiguationMatchLimit = 5

// ExtractionService wraps the external extractor: it deduplicates raw
// candidates, disambiguates them against the graph, attaches calibrated
// confidence, and partitions the survivors.
type ExtractionService interface {
	ExtractEntities(ctx context.Context, content string, cfg types.ExtractionConfig) (*types.ExtractionResult, error)
}

type extractionService struct {
	log        *logger.Logger
	extractor  openai.EntityExtractor
	entities   graph.EntityRepo
	calibrator *Calibrator
	cache      redisclient.ResultCache
	maxWorkers int
}

// NewExtractionService builds the orchestrator. cache may be nil; maxWorkers
// bounds the concurrent disambiguation lookups (<=0 means 8).
func NewExtractionService(
	baseLog *logger.Logger,
	extractor openai.EntityExtractor,
	entities graph.EntityRepo,
	calibrator *Calibrator,
	cache redisclient.ResultCache,
	maxWorkers int,
) ExtractionService {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	return &extractionService{
		log:        baseLog.With("service", "ExtractionService"),
		extractor:  extractor,
		entities:   entities,
		calibrator: calibrator,
		cache:      cache,
		maxWorkers: maxWorkers,
	}
}

func (s *extractionService) ExtractEntities(ctx context.Context, content string, cfg types.ExtractionConfig) (*types.ExtractionResult, error) {
	if s == nil || s.extractor == nil || s.calibrator == nil {
		return nil, fmt.Errorf("extraction service not configured")
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("extract: %w: empty content", apperrors.ErrInvalidArgument)
	}
	if cfg.Source == "" {
		return nil, fmt.Errorf("extract: %w: source required", apperrors.ErrInvalidArgument)
	}
	cfg = cfg.WithDefaults()

	ctx, span := observability.Tracer().Start(ctx, "pipeline.extract_entities")
	defer span.End()
	span.SetAttributes(attribute.String("source", string(cfg.Source)))

	start := time.Now()
	hash := contentHash(content)
	cacheKey := cacheKeyFor(hash, cfg)

	if s.cache != nil {
		if cached, ok := s.cache.GetExtraction(ctx, cacheKey); ok {
			s.log.Debug("extraction cache hit", "content_hash", hash, "source", cfg.Source)
			return cached, nil
		}
	}

	// Upstream extraction failures are fatal for this call.
	raw, err := s.extractor.ExtractEntities(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("extract: upstream extractor: %w", err)
	}
	candidates := dedupeRaw(raw)

	cal := s.calibrator.WithThresholds(cfg.AutoAcceptThreshold, cfg.ReviewThreshold, cfg.MinConfidence)
	now := time.Now().UTC()
	contentTime := cfg.ContentTimestamp
	if contentTime == nil {
		contentTime = &now
	}

	// Per-candidate work is independent; disambiguation lookups fan out on a
	// bounded pool. On cancellation mid-batch, completed slots are kept and
	// the result is returned truncated.
	enhanced := make([]*types.EnhancedEntity, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)
	for i, candidate := range candidates {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			enhanced[i] = s.enhanceCandidate(gctx, candidate, cfg, cal, contentTime)
			return nil
		})
	}
	_ = g.Wait()

	entities := make([]types.EnhancedEntity, 0, len(enhanced))
	for _, e := range enhanced {
		if e != nil {
			entities = append(entities, *e)
		}
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Confidence > entities[j].Confidence
	})
	if len(entities) > cfg.MaxEntities {
		entities = entities[:cfg.MaxEntities]
	}

	result := &types.ExtractionResult{
		Entities:    entities,
		Source:      cfg.Source,
		ContentHash: hash,
		ExtractedAt: now,
	}
	for _, e := range entities {
		switch {
		case cal.ShouldAutoAccept(e.Confidence, e.Type):
			result.AutoAccepted = append(result.AutoAccepted, e)
		case cal.NeedsReview(e.Confidence, e.Type):
			result.NeedsReview = append(result.NeedsReview, e)
		}
	}
	result.DurationMS = time.Since(start).Milliseconds()

	if s.cache != nil && ctx.Err() == nil {
		s.cache.SetExtraction(ctx, cacheKey, result)
	}

	s.log.Info("extraction completed",
		"source", cfg.Source,
		"content_hash", hash,
		"raw", len(raw),
		"kept", len(entities),
		"auto_accepted", len(result.AutoAccepted),
		"needs_review", len(result.NeedsReview),
		"duration_ms", result.DurationMS,
	)
	return result, nil
}

// enhanceCandidate scores one raw candidate. Returns nil when the candidate is
// excluded by config or rejected by the calibrator.
func (s *extractionService) enhanceCandidate(
	ctx context.Context,
	candidate openai.RawEntity,
	cfg types.ExtractionConfig,
	cal *Calibrator,
	contentTime *time.Time,
) *types.EnhancedEntity {
	entityType := types.NormalizeEntityType(candidate.Type)
	if !cfg.IncludesType(entityType) {
		return nil
	}

	matches, err := s.entities.FindMatches(ctx, candidate.Name, entityType, disambiguationMatchLimit)
	if err != nil {
		matches = s.disambiguationFallback(candidate.Name, err)
	}

	connections := 0
	matchedNodeID := ""
	if len(matches) > 0 {
		// Matches arrive ordered by connection count; the best-connected one
		// is the disambiguation candidate.
		connections = matches[0].Connections
		matchedNodeID = matches[0].ID
	}

	factors := types.ConfidenceFactors{
		BaseConfidence:    candidate.Confidence,
		SourceWeight:      cal.SourceWeight(cfg.Source),
		TemporalBoost:     cal.TemporalBoostAt(cfg.ContentTimestamp, time.Now().UTC()),
		RelationshipBoost: cal.RelationshipBoost(connections),
		AmbiguityPenalty:  cal.AmbiguityPenalty(len(matches)),
	}
	confidence := cal.Calibrate(factors)

	if cal.ShouldReject(confidence, entityType) {
		return nil
	}

	return &types.EnhancedEntity{
		Name:          strings.TrimSpace(candidate.Name),
		Type:          entityType,
		Confidence:    confidence,
		Factors:       factors,
		Quality:       cal.ClassifyQuality(confidence),
		Source:        cfg.Source,
		ExistsInGraph: matchedNodeID != "",
		MatchedNodeID: matchedNodeID,
		Timestamp:     contentTime,
	}
}

// disambiguationFallback is the explicit policy for graph lookup failures:
// treat the candidate as unmatched (zero matches, zero connections) so a flaky
// store degrades results instead of aborting extraction.
func (s *extractionService) disambiguationFallback(name string, err error) []graph.EntityMatch {
	s.log.Warn("disambiguation lookup failed, treating as no match", "entity", name, "error", err)
	return nil
}

// dedupeRaw collapses duplicate (name, type) candidates, keeping the highest
// raw confidence.
func dedupeRaw(raw []openai.RawEntity) []openai.RawEntity {
	seen := make(map[string]int, len(raw))
	out := make([]openai.RawEntity, 0, len(raw))
	for _, c := range raw {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name) + "|" + string(types.NormalizeEntityType(c.Type))
		if idx, ok := seen[key]; ok {
			if c.Confidence > out[idx].Confidence {
				out[idx] = c
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, c)
	}
	return out
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// cacheKeyFor folds the effective per-call configuration into the cache key so
// a result computed under one configuration is never replayed to a caller with
// another. SourceID is left out: it tags provenance, not scoring. cfg must
// already have defaults applied.
func cacheKeyFor(hash string, cfg types.ExtractionConfig) string {
	included := make([]string, 0, len(cfg.IncludeTypes))
	for _, t := range cfg.IncludeTypes {
		included = append(included, string(t))
	}
	sort.Strings(included)
	ts := ""
	if cfg.ContentTimestamp != nil {
		ts = cfg.ContentTimestamp.UTC().Format(time.RFC3339Nano)
	}
	canonical := fmt.Sprintf("%s|%.4f|%.4f|%.4f|%d|%s|%s",
		cfg.Source, cfg.MinConfidence, cfg.AutoAcceptThreshold, cfg.ReviewThreshold,
		cfg.MaxEntities, strings.Join(included, ","), ts)
	sum := sha256.Sum256([]byte(canonical))
	return hash + ":" + string(cfg.Source) + ":" + hex.EncodeToString(sum[:8])
}
