package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

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
	return r.db.AutoMigrate(&SkipRecord{})
}

func (r *Repository) Create(ctx context.Context, rec *SkipRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.SkippedAt.IsZero() {
		rec.SkippedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var total int64
	result := r.db.WithContext(ctx).Model(&SkipRecord{}).Count(&total)
	return total, result.Error
}

func (r *Repository) ListByContribution(ctx context.Context, contributionID string) ([]SkipRecord, error) {
	var records []SkipRecord
	result := r.db.WithContext(ctx).
		Where("contribution_id = ?", contributionID).
		Order("skipped_at ASC").
		Find(&records)
	return records, result.Error
}

func (r *Repository) ListByReason(ctx context.Context, reason SkipReason, limit int) ([]SkipRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []SkipRecord
	result := r.db.WithContext(ctx).
		Where("reason = ?", reason).
		Order("skipped_at DESC").
		Limit(limit).
		Find(&records)
	return records, result.Error
}

func (r *Repository) ListByDateRange(ctx context.Context, from, to time.Time, limit int) ([]SkipRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []SkipRecord
	query := r.db.WithContext(ctx)
	if !from.IsZero() {
		query = query.Where("skipped_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("skipped_at < ?", to)
	}
	result := query.Order("skipped_at DESC").Limit(limit).Find(&records)
	return records, result.Error
}
