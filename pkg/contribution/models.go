package contribution

import (
	"time"

	"github.com/perundhu/platform/pkg/schedule"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
)

type BoardType string

const (
	BoardGovernment BoardType = "GOVERNMENT"
	BoardPrivate    BoardType = "PRIVATE"
	BoardLocal      BoardType = "LOCAL"
	BoardInterCity  BoardType = "INTER_CITY"
)

func ParseBoardType(s string) (BoardType, bool) {
	switch BoardType(s) {
	case BoardGovernment, BoardPrivate, BoardLocal, BoardInterCity:
		return BoardType(s), true
	}
	return "", false
}

// DuplicateCheckStatus is the contribution-level rollup of per-candidate
// duplicate outcomes.
type DuplicateCheckStatus string

const (
	DuplicateChecked DuplicateCheckStatus = "CHECKED"
	DuplicatesFound  DuplicateCheckStatus = "DUPLICATES_FOUND"
	DuplicateUnique  DuplicateCheckStatus = "UNIQUE"
	DuplicateSkipped DuplicateCheckStatus = "SKIPPED"
)

// Contribution is one user-submitted timing-board image plus its
// processing record. Rows are never deleted; terminal status plus
// validation message is the only failure surface the UI sees.
type Contribution struct {
	ID           string `json:"id" gorm:"primaryKey;column:id"`
	SubmitterID  string `json:"submitter_id" gorm:"column:submitter_id;index"`
	ImageRef     string `json:"image_ref" gorm:"column:image_ref"`
	ThumbnailRef string `json:"thumbnail_ref,omitempty" gorm:"column:thumbnail_ref"`

	OriginLocation           string    `json:"origin_location" gorm:"column:origin_location"`
	OriginLocationTranslated string    `json:"origin_location_translated,omitempty" gorm:"column:origin_location_translated"`
	OriginLatitude           *float64  `json:"origin_latitude,omitempty" gorm:"column:origin_latitude"`
	OriginLongitude          *float64  `json:"origin_longitude,omitempty" gorm:"column:origin_longitude"`
	BoardType                BoardType `json:"board_type" gorm:"column:board_type"`
	Description              string    `json:"description,omitempty" gorm:"column:description"`

	DetectedLanguage  string            `json:"detected_language,omitempty" gorm:"column:detected_language"`
	DetectedLanguages datatypes.JSONMap `json:"detected_languages,omitempty" gorm:"column:detected_languages"`
	OCRTextOriginal   string            `json:"ocr_text_original,omitempty" gorm:"column:ocr_text_original;type:text"`
	OCRTextEnglish    string            `json:"ocr_text_english,omitempty" gorm:"column:ocr_text_english;type:text"`
	OCRConfidence     float64           `json:"ocr_confidence" gorm:"column:ocr_confidence"`

	Status               Status               `json:"status" gorm:"column:status;index"`
	ValidationMessage    string               `json:"validation_message,omitempty" gorm:"column:validation_message"`
	RequiresManualReview bool                 `json:"requires_manual_review" gorm:"column:requires_manual_review"`
	DuplicateCheckStatus DuplicateCheckStatus `json:"duplicate_check_status,omitempty" gorm:"column:duplicate_check_status"`

	MergedRecords  int `json:"merged_records" gorm:"column:merged_records"`
	CreatedRecords int `json:"created_records" gorm:"column:created_records"`
	SkippedRecords int `json:"skipped_records" gorm:"column:skipped_records"`

	SubmittedAt time.Time  `json:"submitted_at" gorm:"column:submitted_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
	ProcessedBy string     `json:"processed_by,omitempty" gorm:"column:processed_by"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at"`

	Candidates []Candidate `json:"candidates,omitempty" gorm:"foreignKey:ContributionID;constraint:OnDelete:CASCADE"`
}

// Candidate is one parsed route/time line-item. Candidates are written
// once during parsing and never mutated; their outcome lives in the
// skip ledger and the parent's counters.
type Candidate struct {
	ID             string `json:"id" gorm:"primaryKey;column:id"`
	ContributionID string `json:"contribution_id" gorm:"column:contribution_id;index"`

	FromLocationName string `json:"from_location_name" gorm:"column:from_location_name"`
	FromLocationID   string `json:"from_location_id,omitempty" gorm:"column:from_location_id"`
	ToLocationName   string `json:"to_location_name" gorm:"column:to_location_name"`
	ToLocationID     string `json:"to_location_id,omitempty" gorm:"column:to_location_id"`

	DepartureTime string              `json:"departure_time" gorm:"column:departure_time"` // canonical HH:MM
	TimingType    schedule.TimingType `json:"timing_type" gorm:"column:timing_type"`
	Confidence    float64             `json:"confidence" gorm:"column:confidence"`
	LineNumber    int                 `json:"line_number" gorm:"column:line_number"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

func (Contribution) TableName() string {
	return "timing_contributions"
}

func (Candidate) TableName() string {
	return "extracted_timing_candidates"
}

// Terminal reports whether the pipeline is done with this contribution.
func (c *Contribution) Terminal() bool {
	return c.Status == StatusApproved || c.Status == StatusRejected
}
