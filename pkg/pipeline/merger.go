package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/perundhu/platform/pkg/audit"
	"github.com/perundhu/platform/pkg/common/logger"
	"github.com/perundhu/platform/pkg/contribution"
	"github.com/perundhu/platform/pkg/schedule"
)

// RouteStore is the merge coordinator's view of durable state. Both
// mutations are transactional with the parent contribution's counters:
// a crash can never leave a created record or skip entry without its
// counter increment.
type RouteStore interface {
	FindByRoute(ctx context.Context, fromID, toID string, timingType schedule.TimingType) ([]schedule.TimingRecord, error)
	CreateRecord(ctx context.Context, contributionID string, rec *schedule.TimingRecord) error
	RecordSkip(ctx context.Context, skip *audit.SkipRecord) error
}

// RouteLocker serializes duplicate-check-and-create sequences for the
// same route across contributions.
type RouteLocker interface {
	LockRoute(ctx context.Context, fromID, toID string, timingType schedule.TimingType) (func(), error)
}

const resolverIdentity = "reconciliation-pipeline"

// Merger applies one resolver decision per candidate: create an
// authoritative record, or write a skip entry. It owns all side effects
// the resolver is forbidden to have.
type Merger struct {
	routes           RouteStore
	locker           RouteLocker
	toleranceMinutes int
	now              func() time.Time
}

func NewMerger(routes RouteStore, locker RouteLocker, toleranceMinutes int, now func() time.Time) *Merger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if toleranceMinutes <= 0 {
		toleranceMinutes = 10
	}
	return &Merger{routes: routes, locker: locker, toleranceMinutes: toleranceMinutes, now: now}
}

// Apply resolves and persists the outcome for a single candidate,
// returning the final classification. A uniqueness violation at create
// time is converted into a late-discovered exact duplicate, never
// surfaced as an error.
func (m *Merger) Apply(ctx context.Context, c *contribution.Contribution, cand contribution.Candidate) (schedule.Outcome, error) {
	// Unresolved endpoints skip immediately; no duplicate search is
	// attempted without both location ids.
	if cand.FromLocationID == "" || cand.ToLocationID == "" {
		res := schedule.Resolve(routeCandidate(cand), nil, m.toleranceMinutes)
		if err := m.writeSkip(ctx, c.ID, cand, res); err != nil {
			return "", err
		}
		return res.Outcome, nil
	}

	unlock, err := m.locker.LockRoute(ctx, cand.FromLocationID, cand.ToLocationID, cand.TimingType)
	if err != nil {
		return "", fmt.Errorf("acquiring route lock: %w", err)
	}
	defer unlock()

	existing, err := m.routes.FindByRoute(ctx, cand.FromLocationID, cand.ToLocationID, cand.TimingType)
	if err != nil {
		return "", fmt.Errorf("querying route records: %w", err)
	}

	// Records created earlier in this same contribution are not
	// duplicates of each other: a board listing 06:00 and 06:05 to the
	// same town is two services. Exact in-batch repeats still lose
	// against the unique index below.
	res := schedule.Resolve(routeCandidate(cand), excludeContribution(existing, c.ID), m.toleranceMinutes)
	if res.Outcome != schedule.OutcomeUnique {
		if err := m.writeSkip(ctx, c.ID, cand, res); err != nil {
			return "", err
		}
		return res.Outcome, nil
	}

	rec := &schedule.TimingRecord{
		FromLocationID:   cand.FromLocationID,
		FromLocationName: cand.FromLocationName,
		ToLocationID:     cand.ToLocationID,
		ToLocationName:   cand.ToLocationName,
		DepartureTime:    cand.DepartureTime,
		TimingType:       cand.TimingType,
		Source:           schedule.SourceContributed,
		ContributionID:   c.ID,
		Confidence:       cand.Confidence,
	}

	err = m.routes.CreateRecord(ctx, c.ID, rec)
	if err == nil {
		return schedule.OutcomeUnique, nil
	}
	if !errors.Is(err, schedule.ErrDuplicateRecord) {
		return "", fmt.Errorf("creating timing record: %w", err)
	}

	// Another contribution won the race between our duplicate check and
	// the insert. Re-read the route so the skip entry can point at the
	// record that beat us.
	logger.WithContribution(c.ID).WithFields(map[string]interface{}{
		"from": cand.FromLocationID,
		"to":   cand.ToLocationID,
		"time": cand.DepartureTime,
	}).Info("late duplicate discovered at create time")

	late := schedule.Resolution{Outcome: schedule.OutcomeDuplicateExact, Note: "uniqueness conflict at create time"}
	if refreshed, ferr := m.routes.FindByRoute(ctx, cand.FromLocationID, cand.ToLocationID, cand.TimingType); ferr == nil {
		for i := range refreshed {
			if refreshed[i].DepartureTime == cand.DepartureTime {
				late.Existing = &refreshed[i]
				break
			}
		}
	}
	if err := m.writeSkip(ctx, c.ID, cand, late); err != nil {
		return "", err
	}
	return schedule.OutcomeDuplicateExact, nil
}

func (m *Merger) writeSkip(ctx context.Context, contributionID string, cand contribution.Candidate, res schedule.Resolution) error {
	skip := &audit.SkipRecord{
		ContributionID:   contributionID,
		FromLocationID:   cand.FromLocationID,
		FromLocationName: cand.FromLocationName,
		ToLocationID:     cand.ToLocationID,
		ToLocationName:   cand.ToLocationName,
		DepartureTime:    cand.DepartureTime,
		TimingType:       cand.TimingType,
		Reason:           skipReason(res.Outcome),
		SkippedAt:        m.now(),
		ResolvedBy:       resolverIdentity,
		Notes:            res.Note,
	}
	if res.Existing != nil {
		skip.ExistingRecordID = res.Existing.ID
		skip.ExistingRecordSource = res.Existing.Source
	}
	if err := m.routes.RecordSkip(ctx, skip); err != nil {
		return fmt.Errorf("writing skip record: %w", err)
	}
	return nil
}

func excludeContribution(records []schedule.TimingRecord, contributionID string) []schedule.TimingRecord {
	filtered := make([]schedule.TimingRecord, 0, len(records))
	for _, rec := range records {
		if rec.ContributionID == contributionID {
			continue
		}
		filtered = append(filtered, rec)
	}
	return filtered
}

func routeCandidate(cand contribution.Candidate) schedule.RouteCandidate {
	return schedule.RouteCandidate{
		FromLocationID: cand.FromLocationID,
		ToLocationID:   cand.ToLocationID,
		DepartureTime:  cand.DepartureTime,
		TimingType:     cand.TimingType,
	}
}

func skipReason(outcome schedule.Outcome) audit.SkipReason {
	switch outcome {
	case schedule.OutcomeDuplicateExact:
		return audit.ReasonDuplicateExact
	case schedule.OutcomeDuplicateSimilar:
		return audit.ReasonDuplicateSimilar
	case schedule.OutcomeInvalidTime:
		return audit.ReasonInvalidTime
	default:
		return audit.ReasonInvalidLocation
	}
}
