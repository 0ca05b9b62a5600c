package domain

import "time"

// ExtractionConfig is the caller-supplied configuration for one extraction
// call. Zero values are filled with the documented defaults; Source is the
// only required field.
type ExtractionConfig struct {
	Source              Source       `json:"source"`
	SourceID            string       `json:"source_id,omitempty"`
	MinConfidence       float64      `json:"min_confidence,omitempty"`
	AutoAcceptThreshold float64      `json:"auto_accept_threshold,omitempty"`
	ReviewThreshold     float64      `json:"review_threshold,omitempty"`
	IncludeTypes        []EntityType `json:"include_types,omitempty"`
	MaxEntities         int          `json:"max_entities,omitempty"`
	// ContentTimestamp drives the temporal boost; "now" when unset.
	ContentTimestamp *time.Time `json:"content_timestamp,omitempty"`
}

const (
	DefaultMinConfidence           = 0.3
	DefaultAutoAcceptThreshold     = 0.85
	DefaultReviewThreshold         = 0.6
	DefaultMaxEntities             = 50
	DefaultMinSuggestionConfidence = 0.5
)

// WithDefaults returns a copy with unset options replaced by defaults.
func (c ExtractionConfig) WithDefaults() ExtractionConfig {
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.AutoAcceptThreshold <= 0 {
		c.AutoAcceptThreshold = DefaultAutoAcceptThreshold
	}
	if c.ReviewThreshold <= 0 {
		c.ReviewThreshold = DefaultReviewThreshold
	}
	if len(c.IncludeTypes) == 0 {
		c.IncludeTypes = AllEntityTypes()
	}
	if c.MaxEntities <= 0 {
		c.MaxEntities = DefaultMaxEntities
	}
	return c
}

// IncludesType reports whether the config admits the given entity type.
func (c ExtractionConfig) IncludesType(t EntityType) bool {
	for _, it := range c.IncludeTypes {
		if it == t {
			return true
		}
	}
	return false
}
