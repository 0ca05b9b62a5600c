package domain

// QualityStats aggregates the review queue for dashboarding.
type QualityStats struct {
	Total         int     `json:"total"`
	Pending       int     `json:"pending"`
	Approved      int     `json:"approved"`
	Rejected      int     `json:"rejected"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// SuggestionStats aggregates relationship suggestions by status and pattern.
type SuggestionStats struct {
	Total         int            `json:"total"`
	Pending       int            `json:"pending"`
	Approved      int            `json:"approved"`
	Rejected      int            `json:"rejected"`
	AvgConfidence float64        `json:"avg_confidence"`
	ByPattern     map[string]int `json:"by_pattern"`
}
