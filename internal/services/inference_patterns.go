package services

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
)

// DefaultInferencePatterns is the shipped catalog of cross-source
// relationship rules. Pairs match in either order.
func DefaultInferencePatterns() []types.InferencePattern {
	return []types.InferencePattern{
		{
			Type:                "meeting_attendance",
			SourceA:             types.SourceCalendar,
			SourceB:             types.SourceEmail,
			EntityTypeA:         types.EntityPerson,
			EntityTypeB:         types.EntityEvent,
			RelationshipType:    "ATTENDED",
			BaseConfidence:      0.75,
			Priority:            10,
			TemporalWindowHours: 48,
		},
		{
			Type:             "employment",
			SourceA:          types.SourceContact,
			SourceB:          types.SourceEmail,
			EntityTypeA:      types.EntityPerson,
			EntityTypeB:      types.EntityOrganization,
			RelationshipType: "WORKS_AT",
			BaseConfidence:   0.7,
			Priority:         9,
		},
		{
			Type:                "project_membership",
			SourceA:             types.SourceTask,
			SourceB:             types.SourceNote,
			EntityTypeA:         types.EntityPerson,
			EntityTypeB:         types.EntityProject,
			RelationshipType:    "CONTRIBUTES_TO",
			BaseConfidence:      0.7,
			Priority:            9,
			TemporalWindowHours: 336,
		},
		{
			Type:                "event_location",
			SourceA:             types.SourceCalendar,
			SourceB:             types.SourceNote,
			EntityTypeA:         types.EntityEvent,
			EntityTypeB:         types.EntityLocation,
			RelationshipType:    "LOCATED_AT",
			BaseConfidence:      0.65,
			Priority:            8,
			TemporalWindowHours: 72,
		},
		{
			Type:                "event_scheduling",
			SourceA:             types.SourceCalendar,
			SourceB:             types.SourceTask,
			EntityTypeA:         types.EntityEvent,
			EntityTypeB:         types.EntityDate,
			RelationshipType:    "SCHEDULED_ON",
			BaseConfidence:      0.8,
			Priority:            7,
			TemporalWindowHours: 24,
		},
		{
			Type:                "acquaintance",
			SourceA:             types.SourceContact,
			SourceB:             types.SourceCalendar,
			EntityTypeA:         types.EntityPerson,
			EntityTypeB:         types.EntityPerson,
			RelationshipType:    "KNOWS",
			BaseConfidence:      0.65,
			Priority:            6,
			TemporalWindowHours: 720,
		},
		{
			Type:                "topic_discussion",
			SourceA:             types.SourceEmail,
			SourceB:             types.SourceNote,
			EntityTypeA:         types.EntityPerson,
			EntityTypeB:         types.EntityConcept,
			RelationshipType:    "DISCUSSED",
			BaseConfidence:      0.6,
			Priority:            6,
			TemporalWindowHours: 168,
		},
		{
			Type:             "project_sponsorship",
			SourceA:          types.SourceFile,
			SourceB:          types.SourceTask,
			EntityTypeA:      types.EntityOrganization,
			EntityTypeB:      types.EntityProject,
			RelationshipType: "SPONSORS",
			BaseConfidence:   0.6,
			Priority:         5,
		},
	}
}

// PatternCatalog is the immutable registry of inference patterns with its
// three lookups, each sorted by descending priority.
type PatternCatalog struct {
	patterns []types.InferencePattern
}

func NewPatternCatalog(patterns []types.InferencePattern) *PatternCatalog {
	sorted := make([]types.InferencePattern, len(patterns))
	copy(sorted, patterns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &PatternCatalog{patterns: sorted}
}

// LoadPatternCatalog reads a YAML override file, falling back to the shipped
// defaults when path is empty.
func LoadPatternCatalog(path string) (*PatternCatalog, error) {
	if path == "" {
		return NewPatternCatalog(DefaultInferencePatterns()), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pattern catalog: read %s: %w", path, err)
	}
	var file struct {
		Patterns []types.InferencePattern `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("pattern catalog: parse %s: %w", path, err)
	}
	if len(file.Patterns) == 0 {
		return nil, fmt.Errorf("pattern catalog: %s defines no patterns", path)
	}
	for _, p := range file.Patterns {
		if p.Type == "" || p.RelationshipType == "" || p.BaseConfidence <= 0 {
			return nil, fmt.Errorf("pattern catalog: invalid pattern %q", p.Type)
		}
	}
	return NewPatternCatalog(file.Patterns), nil
}

// All returns the full catalog in priority order.
func (pc *PatternCatalog) All() []types.InferencePattern {
	out := make([]types.InferencePattern, len(pc.patterns))
	copy(out, pc.patterns)
	return out
}

// ByType returns the pattern with the exact type, if present.
func (pc *PatternCatalog) ByType(patternType string) (types.InferencePattern, bool) {
	for _, p := range pc.patterns {
		if p.Type == patternType {
			return p, true
		}
	}
	return types.InferencePattern{}, false
}

// BySourcePair returns patterns whose source pair matches in either order.
func (pc *PatternCatalog) BySourcePair(a, b types.Source) []types.InferencePattern {
	var out []types.InferencePattern
	for _, p := range pc.patterns {
		if (p.SourceA == a && p.SourceB == b) || (p.SourceA == b && p.SourceB == a) {
			out = append(out, p)
		}
	}
	return out
}

// ByEntityTypePair returns patterns whose entity type pair matches in either
// order.
func (pc *PatternCatalog) ByEntityTypePair(a, b types.EntityType) []types.InferencePattern {
	var out []types.InferencePattern
	for _, p := range pc.patterns {
		if (p.EntityTypeA == a && p.EntityTypeB == b) || (p.EntityTypeA == b && p.EntityTypeB == a) {
			out = append(out, p)
		}
	}
	return out
}

// PatternSignals are the inputs to pattern confidence scoring.
type PatternSignals struct {
	EntityConfidence1 float64
	EntityConfidence2 float64
	// TemporalProximityHours applies only when the pattern defines a window.
	TemporalProximityHours *float64
	// AdditionalEvidence is the count of corroborating observations beyond
	// the two sides themselves.
	AdditionalEvidence int
}

// CalculatePatternConfidence scores a candidate relationship. The result is
// clamped to 1.0 but deliberately not floored: a very low average entity
// confidence drives the score arbitrarily low, and callers reject it against
// their own minimum instead of this function masking it.
func (pc *PatternCatalog) CalculatePatternConfidence(p types.InferencePattern, sig PatternSignals) float64 {
	confidence := p.BaseConfidence * (sig.EntityConfidence1 + sig.EntityConfidence2) / 2

	if p.TemporalWindowHours > 0 && sig.TemporalProximityHours != nil {
		closeness := 1 - *sig.TemporalProximityHours/p.TemporalWindowHours
		if closeness < 0 {
			closeness = 0
		}
		confidence *= 1 + closeness*0.2
	}

	if sig.AdditionalEvidence > 0 {
		count := sig.AdditionalEvidence
		if count > 3 {
			count = 3
		}
		confidence *= 1 + float64(count)*0.1
	}

	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
