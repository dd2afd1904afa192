package models

import "time"

// Intake API models
type SubmitContributionRequest struct {
	SubmitterID              string   `json:"submitter_id"`
	ImageRef                 string   `json:"image_ref"`
	ThumbnailRef             string   `json:"thumbnail_ref,omitempty"`
	OriginLocationText       string   `json:"origin_location_text"`
	OriginLocationTranslated string   `json:"origin_location_translated,omitempty"`
	Latitude                 *float64 `json:"latitude,omitempty"`
	Longitude                *float64 `json:"longitude,omitempty"`
	BoardType                string   `json:"board_type"`
	Description              string   `json:"description,omitempty"`
}

type SubmitContributionResponse struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReviewRequest records a human reviewer's disposition on a contribution.
// It drives the same transition API the pipeline uses.
type ReviewRequest struct {
	Status     string `json:"status"` // APPROVED or REJECTED
	ReviewedBy string `json:"reviewed_by"`
	Message    string `json:"message,omitempty"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"` // contribution-submitted, contribution-resolved
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}
