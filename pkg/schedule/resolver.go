package schedule

import "fmt"

type Outcome string

const (
	OutcomeUnique           Outcome = "UNIQUE"
	OutcomeDuplicateExact   Outcome = "DUPLICATE_EXACT"
	OutcomeDuplicateSimilar Outcome = "DUPLICATE_SIMILAR"
	OutcomeInvalidTime      Outcome = "INVALID_TIME"
	OutcomeInvalidLocation  Outcome = "INVALID_LOCATION"
)

// RouteCandidate is the slice of an extracted timing the resolver needs.
type RouteCandidate struct {
	FromLocationID string
	ToLocationID   string
	DepartureTime  string
	TimingType     TimingType
}

// Resolution is the classification of one candidate against the
// authoritative records already on its route.
type Resolution struct {
	Outcome  Outcome
	Existing *TimingRecord
	Note     string
}

// Resolve classifies a candidate against the existing records for its
// route. It is a pure decision function: no storage access, no side
// effects. First match wins, in the order unresolved endpoint, exact
// duplicate, similar duplicate, invalid time, unique.
func Resolve(cand RouteCandidate, existing []TimingRecord, toleranceMinutes int) Resolution {
	if cand.FromLocationID == "" || cand.ToLocationID == "" {
		return Resolution{
			Outcome: OutcomeInvalidLocation,
			Note:    "endpoint did not resolve to a known location",
		}
	}

	for i := range existing {
		rec := &existing[i]
		if rec.FromLocationID == cand.FromLocationID &&
			rec.ToLocationID == cand.ToLocationID &&
			rec.TimingType == cand.TimingType &&
			rec.DepartureTime == cand.DepartureTime {
			return Resolution{Outcome: OutcomeDuplicateExact, Existing: rec}
		}
	}

	candMinute, err := MinuteOf(cand.DepartureTime)
	if err != nil {
		// Parser output is already canonical; this is the cross-check.
		return Resolution{Outcome: OutcomeInvalidTime, Note: err.Error()}
	}

	if toleranceMinutes > 0 {
		for i := range existing {
			rec := &existing[i]
			if rec.FromLocationID != cand.FromLocationID ||
				rec.ToLocationID != cand.ToLocationID ||
				rec.TimingType != cand.TimingType {
				continue
			}
			recMinute, err := MinuteOf(rec.DepartureTime)
			if err != nil {
				continue
			}
			if diff := absInt(candMinute - recMinute); diff <= toleranceMinutes {
				return Resolution{
					Outcome:  OutcomeDuplicateSimilar,
					Existing: rec,
					Note:     fmt.Sprintf("within %d minutes of existing %s", toleranceMinutes, rec.DepartureTime),
				}
			}
		}
	}

	return Resolution{Outcome: OutcomeUnique}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
