package audit

import (
	"time"

	"github.com/perundhu/platform/pkg/schedule"
)

type SkipReason string

const (
	ReasonDuplicateExact   SkipReason = "DUPLICATE_EXACT"
	ReasonDuplicateSimilar SkipReason = "DUPLICATE_SIMILAR"
	ReasonInvalidTime      SkipReason = "INVALID_TIME"
	ReasonInvalidLocation  SkipReason = "INVALID_LOCATION"
)

func ParseSkipReason(s string) (SkipReason, bool) {
	switch SkipReason(s) {
	case ReasonDuplicateExact, ReasonDuplicateSimilar, ReasonInvalidTime, ReasonInvalidLocation:
		return SkipReason(s), true
	}
	return "", false
}

// SkipRecord is the permanent audit trail explaining why a candidate did
// not produce a new authoritative record. Written once, never updated.
type SkipRecord struct {
	ID             string `json:"id" gorm:"primaryKey;column:id"`
	ContributionID string `json:"contribution_id" gorm:"column:contribution_id;index"`

	FromLocationID   string `json:"from_location_id,omitempty" gorm:"column:from_location_id"`
	FromLocationName string `json:"from_location_name" gorm:"column:from_location_name"`
	ToLocationID     string `json:"to_location_id,omitempty" gorm:"column:to_location_id"`
	ToLocationName   string `json:"to_location_name" gorm:"column:to_location_name"`

	DepartureTime string              `json:"departure_time" gorm:"column:departure_time"`
	TimingType    schedule.TimingType `json:"timing_type" gorm:"column:timing_type"`
	Reason        SkipReason          `json:"reason" gorm:"column:reason;index"`

	ExistingRecordID     string          `json:"existing_record_id,omitempty" gorm:"column:existing_record_id"`
	ExistingRecordSource schedule.Source `json:"existing_record_source,omitempty" gorm:"column:existing_record_source"`

	SkippedAt  time.Time `json:"skipped_at" gorm:"column:skipped_at;index"`
	ResolvedBy string    `json:"resolved_by" gorm:"column:resolved_by"`
	Notes      string    `json:"notes,omitempty" gorm:"column:notes"`
}

func (SkipRecord) TableName() string {
	return "skipped_timing_records"
}
