package contribution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("contribution not found")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to an open transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&Contribution{}, &Candidate{})
}

func (r *Repository) Create(ctx context.Context, c *Contribution) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repository) Get(ctx context.Context, id string) (*Contribution, error) {
	var c Contribution
	result := r.db.WithContext(ctx).Preload("Candidates").First(&c, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &c, result.Error
}

func (r *Repository) ListBySubmitter(ctx context.Context, submitterID string, limit int) ([]Contribution, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []Contribution
	result := r.db.WithContext(ctx).
		Where("submitter_id = ?", submitterID).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&list)
	return list, result.Error
}

func (r *Repository) ListByStatus(ctx context.Context, status Status, limit int) ([]Contribution, error) {
	if limit <= 0 {
		limit = 50
	}
	var list []Contribution
	result := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("submitted_at DESC").
		Limit(limit).
		Find(&list)
	return list, result.Error
}

// Claim performs the PENDING -> PROCESSING transition. It is the only
// way into PROCESSING; a zero row count means another worker owns the
// contribution (or it is already terminal) and the caller must no-op.
func (r *Repository) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Contribution{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":     StatusProcessing,
			"updated_at": at,
		})
	return result.RowsAffected == 1, result.Error
}

func (r *Repository) SaveOCRResult(ctx context.Context, id string, primaryLang string, langs map[string]interface{}, rawText, englishText string, confidence float64, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Contribution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"detected_language":  primaryLang,
			"detected_languages": langs,
			"ocr_text_original":  rawText,
			"ocr_text_english":   englishText,
			"ocr_confidence":     confidence,
			"updated_at":         at,
		}).Error
}

func (r *Repository) SaveCandidates(ctx context.Context, candidates []Candidate) error {
	if len(candidates) == 0 {
		return nil
	}
	for i := range candidates {
		if candidates[i].ID == "" {
			candidates[i].ID = uuid.New().String()
		}
		if candidates[i].CreatedAt.IsZero() {
			candidates[i].CreatedAt = time.Now().UTC()
		}
	}
	return r.db.WithContext(ctx).Create(&candidates).Error
}

func (r *Repository) SetManualReview(ctx context.Context, id string, note string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Contribution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"requires_manual_review": true,
			"validation_message":     note,
			"updated_at":             at,
		}).Error
}

func (r *Repository) IncrementCreated(ctx context.Context, id string, at time.Time) error {
	return r.increment(ctx, id, "created_records", at)
}

func (r *Repository) IncrementSkipped(ctx context.Context, id string, at time.Time) error {
	return r.increment(ctx, id, "skipped_records", at)
}

func (r *Repository) IncrementMerged(ctx context.Context, id string, at time.Time) error {
	return r.increment(ctx, id, "merged_records", at)
}

func (r *Repository) increment(ctx context.Context, id, column string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Contribution{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			column:       gorm.Expr(column+" + 1"),
			"updated_at": at,
		}).Error
}

// Finalize writes the terminal disposition. The status guard keeps a
// replayed or raced finalization from overwriting an earlier verdict.
func (r *Repository) Finalize(ctx context.Context, id string, status Status, summary DuplicateCheckStatus, message, processedBy string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Contribution{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]interface{}{
			"status":                 status,
			"duplicate_check_status": summary,
			"validation_message":     message,
			"processed_by":           processedBy,
			"processed_at":           at,
			"updated_at":             at,
		}).Error
}

// Override applies a human reviewer's verdict regardless of the current
// terminal state; it shares the transition surface with the pipeline.
func (r *Repository) Override(ctx context.Context, id string, status Status, message, reviewedBy string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&Contribution{}).
		Where("id = ? AND status <> ?", id, StatusPending).
		Updates(map[string]interface{}{
			"status":             status,
			"validation_message": message,
			"processed_by":       reviewedBy,
			"processed_at":       at,
			"updated_at":         at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByStatus returns per-status totals for metrics sampling.
func (r *Repository) CountByStatus(ctx context.Context) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Total  int64
	}
	result := r.db.WithContext(ctx).Model(&Contribution{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	counts := make(map[Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *Repository) CountManualReview(ctx context.Context) (int64, error) {
	var total int64
	result := r.db.WithContext(ctx).Model(&Contribution{}).
		Where("requires_manual_review = ?", true).
		Count(&total)
	return total, result.Error
}

// FindStuck lists contributions that entered PROCESSING before the
// cutoff and never reached a terminal state. Manual-review holds are
// waiting on a human, not on a worker, so the reaper skips them.
func (r *Repository) FindStuck(ctx context.Context, cutoff time.Time) ([]Contribution, error) {
	var list []Contribution
	result := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ? AND requires_manual_review = ?", StatusProcessing, cutoff, false).
		Find(&list)
	return list, result.Error
}

// ForceReject is the timeout escalation path for stuck contributions.
func (r *Repository) ForceReject(ctx context.Context, id, message string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Contribution{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]interface{}{
			"status":             StatusRejected,
			"validation_message": message,
			"processed_by":       "reaper",
			"processed_at":       at,
			"updated_at":         at,
		}).Error
}
