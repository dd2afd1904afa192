package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type TimingType string

const (
	TimingDeparture TimingType = "DEPARTURE"
	TimingArrival   TimingType = "ARRIVAL"
)

func ParseTimingType(s string) (TimingType, bool) {
	switch TimingType(s) {
	case TimingDeparture, TimingArrival:
		return TimingType(s), true
	}
	return "", false
}

type Source string

const (
	SourceOfficial    Source = "OFFICIAL"
	SourceContributed Source = "CONTRIBUTED"
)

// TimingRecord is a row in the schedule of record. The composite unique
// index is the storage-level backstop for the duplicate-creation race:
// a second writer loses with a constraint violation instead of a
// duplicate row.
type TimingRecord struct {
	ID string `json:"id" gorm:"primaryKey;column:id"`

	FromLocationID   string `json:"from_location_id" gorm:"column:from_location_id;uniqueIndex:idx_route_time"`
	FromLocationName string `json:"from_location_name" gorm:"column:from_location_name"`
	ToLocationID     string `json:"to_location_id" gorm:"column:to_location_id;uniqueIndex:idx_route_time"`
	ToLocationName   string `json:"to_location_name" gorm:"column:to_location_name"`

	DepartureTime string     `json:"departure_time" gorm:"column:departure_time;uniqueIndex:idx_route_time"` // canonical HH:MM
	TimingType    TimingType `json:"timing_type" gorm:"column:timing_type;uniqueIndex:idx_route_time"`
	Source        Source     `json:"source" gorm:"column:source"`

	ContributionID string    `json:"contribution_id,omitempty" gorm:"column:contribution_id;index"`
	Confidence     float64   `json:"confidence" gorm:"column:confidence"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (TimingRecord) TableName() string {
	return "bus_timing_records"
}

// MinuteOf converts a canonical HH:MM clock string into minutes since
// midnight. Schedules are recurring, so there is no date component and
// midnight-crossing times stay literal.
func MinuteOf(clock string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q", clock)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q", clock)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock value %q out of range", clock)
	}
	return hour*60 + minute, nil
}

// Clock formats minutes since midnight as a canonical HH:MM string.
func Clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
