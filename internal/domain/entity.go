package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EntityType is the closed set of entity kinds the pipeline recognizes.
type EntityType string

const (
	EntityPerson       EntityType = "Person"
	EntityOrganization EntityType = "Organization"
	EntityLocation     EntityType = "Location"
	EntityDate         EntityType = "Date"
	EntityEvent        EntityType = "Event"
	EntityConcept      EntityType = "Concept"
	EntityProject      EntityType = "Project"
)

// AllEntityTypes is the default include list for extraction.
func AllEntityTypes() []EntityType {
	return []EntityType{
		EntityPerson,
		EntityOrganization,
		EntityLocation,
		EntityDate,
		EntityEvent,
		EntityConcept,
		EntityProject,
	}
}

// NormalizeEntityType maps an extractor-reported type string onto the closed
// set. Unrecognized strings fall back to Concept; the fallback is lossy on
// purpose so a drifting extractor prompt cannot widen the type set.
func NormalizeEntityType(raw string) EntityType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "person", "people", "human", "individual":
		return EntityPerson
	case "organization", "organisation", "org", "company", "institution":
		return EntityOrganization
	case "location", "place", "city", "address", "venue":
		return EntityLocation
	case "date", "datetime", "time":
		return EntityDate
	case "event", "meeting", "appointment":
		return EntityEvent
	case "project", "initiative":
		return EntityProject
	case "concept", "topic", "idea", "term":
		return EntityConcept
	default:
		return EntityConcept
	}
}

// Source is the origin channel of a text fragment.
type Source string

const (
	SourceCalendar Source = "calendar"
	SourceContact  Source = "contact"
	SourceEmail    Source = "email"
	SourceNote     Source = "note"
	SourceFile     Source = "file"
	SourceTask     Source = "task"
	SourceManual   Source = "manual"
)

// Quality is the bucket derived from calibrated confidence.
type Quality string

const (
	QualityHigh   Quality = "high"
	QualityMedium Quality = "medium"
	QualityLow    Quality = "low"
)

// ConfidenceFactors is the full calibration breakdown, kept on the entity for
// auditability. Pure data owned by the entity that carries it.
type ConfidenceFactors struct {
	BaseConfidence    float64 `json:"base_confidence"`
	SourceWeight      float64 `json:"source_weight"`
	TemporalBoost     float64 `json:"temporal_boost"`
	RelationshipBoost float64 `json:"relationship_boost"`
	AmbiguityPenalty  float64 `json:"ambiguity_penalty"`
}

// EnhancedEntity is a candidate entity that survived extraction. Immutable
// after creation; only its effects (a graph node or a review item) persist.
type EnhancedEntity struct {
	Name          string            `json:"name"`
	Type          EntityType        `json:"type"`
	Confidence    float64           `json:"confidence"`
	Factors       ConfidenceFactors `json:"confidence_factors"`
	Quality       Quality           `json:"quality"`
	Source        Source            `json:"source"`
	ExistsInGraph bool              `json:"exists_in_graph"`
	MatchedNodeID string            `json:"matched_node_id,omitempty"`
	// Timestamp is the content timestamp the entity was extracted under,
	// used for temporal proximity during cross-source inference.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// ExtractionResult is the outcome of one extraction call. Entities is the full
// surviving set sorted by confidence descending; AutoAccepted and NeedsReview
// partition the subset that passed their respective checks.
type ExtractionResult struct {
	Entities     []EnhancedEntity `json:"entities"`
	AutoAccepted []EnhancedEntity `json:"auto_accepted"`
	NeedsReview  []EnhancedEntity `json:"needs_review"`
	Source       Source           `json:"source"`
	ContentHash  string           `json:"content_hash"`
	DurationMS   int64            `json:"duration_ms"`
	ExtractedAt  time.Time        `json:"extracted_at"`
	FromCache    bool             `json:"from_cache,omitempty"`
}

// ReviewStatus is shared by review items and relationship suggestions.
type ReviewStatus string

const (
	StatusPending  ReviewStatus = "pending"
	StatusApproved ReviewStatus = "approved"
	StatusRejected ReviewStatus = "rejected"
)

// ReviewQueueItem holds an entity whose confidence was too uncertain for
// automatic acceptance. Terminal once resolved.
type ReviewQueueItem struct {
	ID            uuid.UUID      `json:"id"`
	Entity        EnhancedEntity `json:"entity"`
	SourceContent string         `json:"source_content"`
	SourceType    Source         `json:"source_type"`
	SourceID      string         `json:"source_id"`
	CreatedAt     time.Time      `json:"created_at"`
	Status        ReviewStatus   `json:"status"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
	ReviewedBy    string         `json:"reviewed_by,omitempty"`
	Feedback      string         `json:"feedback,omitempty"`
}
