package services

import (
	"time"

	types "github.com/Ridou/Omnii-One-sub008/internal/domain"
)

// CalibrationConfig holds every table the calibrator consults. All of it is
// explicit construction-time configuration; there are no package-level
// registries to mutate.
type CalibrationConfig struct {
	AutoAcceptThreshold float64
	ReviewThreshold     float64
	// RejectFloor is the global minimum below which an entity is always
	// rejected, regardless of type.
	RejectFloor float64

	MaxTemporalBoost     float64
	MaxRelationshipBoost float64

	SourceWeights       map[types.Source]float64
	DefaultSourceWeight float64

	// TypeThresholds is the minimum plausible confidence per entity type.
	// Dates should be unambiguous; concepts are inherently fuzzy.
	TypeThresholds       map[types.EntityType]float64
	DefaultTypeThreshold float64
}

func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{
		AutoAcceptThreshold:  types.DefaultAutoAcceptThreshold,
		ReviewThreshold:      types.DefaultReviewThreshold,
		RejectFloor:          types.DefaultMinConfidence,
		MaxTemporalBoost:     0.15,
		MaxRelationshipBoost: 0.15,
		SourceWeights: map[types.Source]float64{
			types.SourceManual:   1.0,
			types.SourceCalendar: 0.95,
			types.SourceContact:  0.9,
			types.SourceEmail:    0.85,
			types.SourceTask:     0.85,
			types.SourceNote:     0.8,
			types.SourceFile:     0.75,
		},
		DefaultSourceWeight: 0.75,
		TypeThresholds: map[types.EntityType]float64{
			types.EntityDate:         0.9,
			types.EntityPerson:       0.7,
			types.EntityOrganization: 0.7,
			types.EntityLocation:     0.65,
			types.EntityEvent:        0.6,
			types.EntityProject:      0.6,
			types.EntityConcept:      0.5,
		},
		DefaultTypeThreshold: 0.6,
	}
}

// Calibrator combines a raw extractor confidence with source, temporal,
// relationship, and ambiguity signals into one calibrated score. All methods
// are pure; out-of-range inputs are programmer error, not a runtime fault.
type Calibrator struct {
	cfg CalibrationConfig
}

func NewCalibrator(cfg CalibrationConfig) *Calibrator {
	return &Calibrator{cfg: cfg}
}

// Calibrate applies base*sourceWeight + boosts + penalty, clamped to [0,1].
func (c *Calibrator) Calibrate(f types.ConfidenceFactors) float64 {
	calibrated := f.BaseConfidence*f.SourceWeight + f.TemporalBoost + f.RelationshipBoost + f.AmbiguityPenalty
	return clamp01(calibrated)
}

func (c *Calibrator) SourceWeight(source types.Source) float64 {
	if w, ok := c.cfg.SourceWeights[source]; ok {
		return w
	}
	return c.cfg.DefaultSourceWeight
}

// TemporalBoost rewards recency of the content the entity came from.
func (c *Calibrator) TemporalBoost(ageHours float64) float64 {
	max := c.cfg.MaxTemporalBoost
	switch {
	case ageHours < 24:
		return max
	case ageHours < 168: // one week
		return max * 0.75
	case ageHours < 720: // one month
		return max * 0.5
	case ageHours < 2160: // three months
		return max * 0.25
	default:
		return 0
	}
}

// TemporalBoostAt is TemporalBoost with the age computed from a content
// timestamp; a nil timestamp means age zero ("now").
func (c *Calibrator) TemporalBoostAt(contentTime *time.Time, now time.Time) float64 {
	if contentTime == nil {
		return c.TemporalBoost(0)
	}
	age := now.Sub(*contentTime).Hours()
	if age < 0 {
		age = 0
	}
	return c.TemporalBoost(age)
}

// RelationshipBoost rewards how connected the disambiguation candidate is.
func (c *Calibrator) RelationshipBoost(connectionCount int) float64 {
	max := c.cfg.MaxRelationshipBoost
	switch {
	case connectionCount <= 0:
		return 0
	case connectionCount == 1:
		return max * 0.25
	case connectionCount <= 3:
		return max * 0.5
	case connectionCount <= 5:
		return max * 0.75
	default:
		return max
	}
}

// AmbiguityPenalty punishes names that matched many distinct graph nodes.
func (c *Calibrator) AmbiguityPenalty(matchCount int) float64 {
	switch {
	case matchCount <= 1:
		return 0
	case matchCount == 2:
		return -0.1
	case matchCount <= 4:
		return -0.15
	default:
		return -0.2
	}
}

// ClassifyQuality buckets a calibrated confidence against the thresholds.
func (c *Calibrator) ClassifyQuality(confidence float64) types.Quality {
	switch {
	case confidence >= c.cfg.AutoAcceptThreshold:
		return types.QualityHigh
	case confidence >= c.cfg.ReviewThreshold:
		return types.QualityMedium
	default:
		return types.QualityLow
	}
}

// TypeThreshold is the minimum plausible confidence for an entity type.
func (c *Calibrator) TypeThreshold(t types.EntityType) float64 {
	if th, ok := c.cfg.TypeThresholds[t]; ok {
		return th
	}
	return c.cfg.DefaultTypeThreshold
}

// ShouldAutoAccept requires clearing both the global auto-accept threshold and
// the per-type minimum.
func (c *Calibrator) ShouldAutoAccept(confidence float64, t types.EntityType) bool {
	return confidence >= c.cfg.AutoAcceptThreshold && confidence >= c.TypeThreshold(t)
}

// NeedsReview holds when the entity clears its type minimum and the review
// threshold but not auto-accept.
func (c *Calibrator) NeedsReview(confidence float64, t types.EntityType) bool {
	return confidence >= c.TypeThreshold(t) &&
		confidence < c.cfg.AutoAcceptThreshold &&
		confidence >= c.cfg.ReviewThreshold
}

// ShouldReject holds below the global floor or below half the type minimum.
func (c *Calibrator) ShouldReject(confidence float64, t types.EntityType) bool {
	return confidence < c.cfg.RejectFloor || confidence < c.TypeThreshold(t)/2
}

// WithThresholds returns a copy using the caller's per-request thresholds.
// Zero values keep the constructed defaults.
func (c *Calibrator) WithThresholds(autoAccept, review, floor float64) *Calibrator {
	cfg := c.cfg
	if autoAccept > 0 {
		cfg.AutoAcceptThreshold = autoAccept
	}
	if review > 0 {
		cfg.ReviewThreshold = review
	}
	if floor > 0 {
		cfg.RejectFloor = floor
	}
	return &Calibrator{cfg: cfg}
}

func (c *Calibrator) AutoAcceptThreshold() float64 { return c.cfg.AutoAcceptThreshold }
func (c *Calibrator) ReviewThreshold() float64     { return c.cfg.ReviewThreshold }
func (c *Calibrator) RejectFloor() float64         { return c.cfg.RejectFloor }

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
