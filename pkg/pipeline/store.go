package pipeline

import (
	"context"
	"time"

	"github.com/perundhu/platform/pkg/audit"
	"github.com/perundhu/platform/pkg/contribution"
	"github.com/perundhu/platform/pkg/ocr"
	"github.com/perundhu/platform/pkg/schedule"
	"gorm.io/gorm"
)

// Store adapts the gorm repositories to the pipeline interfaces. The
// two merge mutations run inside a transaction so a timing record or
// skip entry always lands together with its counter increment.
type Store struct {
	db       *gorm.DB
	contribs *contribution.Repository
	records  *schedule.Repository
	skips    *audit.Repository
}

func NewStore(db *gorm.DB, contribs *contribution.Repository, records *schedule.Repository, skips *audit.Repository) *Store {
	return &Store{db: db, contribs: contribs, records: records, skips: skips}
}

func (s *Store) Get(ctx context.Context, id string) (*contribution.Contribution, error) {
	return s.contribs.Get(ctx, id)
}

func (s *Store) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	return s.contribs.Claim(ctx, id, at)
}

func (s *Store) SaveOCRResult(ctx context.Context, id string, res *ocr.Result, at time.Time) error {
	langs := make(map[string]interface{}, len(res.Languages))
	for _, lang := range res.Languages {
		langs[lang.Code] = lang.Confidence
	}
	return s.contribs.SaveOCRResult(ctx, id, res.PrimaryLanguage, langs, res.RawText, res.EnglishText, res.OverallConfidence, at)
}

func (s *Store) SaveCandidates(ctx context.Context, candidates []contribution.Candidate) error {
	return s.contribs.SaveCandidates(ctx, candidates)
}

func (s *Store) SetManualReview(ctx context.Context, id, note string, at time.Time) error {
	return s.contribs.SetManualReview(ctx, id, note, at)
}

func (s *Store) Finalize(ctx context.Context, id string, status contribution.Status, summary contribution.DuplicateCheckStatus, message, processedBy string, at time.Time) error {
	return s.contribs.Finalize(ctx, id, status, summary, message, processedBy, at)
}

func (s *Store) FindStuck(ctx context.Context, cutoff time.Time) ([]contribution.Contribution, error) {
	return s.contribs.FindStuck(ctx, cutoff)
}

func (s *Store) ForceReject(ctx context.Context, id, message string, at time.Time) error {
	return s.contribs.ForceReject(ctx, id, message, at)
}

func (s *Store) FindByRoute(ctx context.Context, fromID, toID string, timingType schedule.TimingType) ([]schedule.TimingRecord, error) {
	return s.records.FindByRoute(ctx, fromID, toID, timingType)
}

// CreateRecord inserts the timing record and bumps the contribution's
// created counter in one transaction. A uniqueness violation rolls the
// whole thing back and surfaces as schedule.ErrDuplicateRecord.
func (s *Store) CreateRecord(ctx context.Context, contributionID string, rec *schedule.TimingRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.records.WithTx(tx).Create(ctx, rec); err != nil {
			return err
		}
		return s.contribs.WithTx(tx).IncrementCreated(ctx, contributionID, rec.CreatedAt)
	})
}

// RecordSkip writes the audit entry and bumps the skipped counter in
// one transaction.
func (s *Store) RecordSkip(ctx context.Context, skip *audit.SkipRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.skips.WithTx(tx).Create(ctx, skip); err != nil {
			return err
		}
		return s.contribs.WithTx(tx).IncrementSkipped(ctx, skip.ContributionID, skip.SkippedAt)
	})
}
