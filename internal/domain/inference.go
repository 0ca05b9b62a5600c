package domain

import (
	"time"

	"github.com/google/uuid"
)

// InferencePattern is a static rule describing how a relationship between two
// entity types across two extraction sources can be inferred. Loaded at
// startup, never mutated at runtime. Source and entity type pairs match in
// either order.
type InferencePattern struct {
	Type                string     `json:"type" yaml:"type"`
	SourceA             Source     `json:"source_a" yaml:"source_a"`
	SourceB             Source     `json:"source_b" yaml:"source_b"`
	EntityTypeA         EntityType `json:"entity_type_a" yaml:"entity_type_a"`
	EntityTypeB         EntityType `json:"entity_type_b" yaml:"entity_type_b"`
	RelationshipType    string     `json:"relationship_type" yaml:"relationship_type"`
	BaseConfidence      float64    `json:"base_confidence" yaml:"base_confidence"`
	Priority            int        `json:"priority" yaml:"priority"`
	TemporalWindowHours float64    `json:"temporal_window_hours,omitempty" yaml:"temporal_window_hours,omitempty"`
}

// EntityRef identifies one side of a suggested relationship.
type EntityRef struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// Evidence is one supporting observation behind a suggestion.
type Evidence struct {
	Source    Source    `json:"source"`
	Snippet   string    `json:"snippet"`
	Timestamp time.Time `json:"timestamp"`
}

// RelationshipSuggestion is a candidate graph edge awaiting a decision.
// Terminal and immutable once the status leaves pending.
type RelationshipSuggestion struct {
	ID               uuid.UUID    `json:"id"`
	SourceEntity     EntityRef    `json:"source_entity"`
	TargetEntity     EntityRef    `json:"target_entity"`
	RelationshipType string       `json:"relationship_type"`
	Confidence       float64      `json:"confidence"`
	Evidence         []Evidence   `json:"evidence"`
	Pattern          string       `json:"pattern"`
	Status           ReviewStatus `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`
}

// ValidationResult reports why a suggestion was rejected from ranked output.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// FormattedSuggestion is the human-facing rendering used by approval UIs.
type FormattedSuggestion struct {
	ID              uuid.UUID  `json:"id"`
	Summary         string     `json:"summary"`
	ConfidenceLabel string     `json:"confidence_label"`
	Confidence      float64    `json:"confidence"`
	Evidence        []Evidence `json:"evidence"`
}
