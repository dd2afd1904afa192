package schedule

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrDuplicateRecord surfaces the route/time uniqueness constraint. The
// merge coordinator converts it into a late-discovered exact-duplicate
// skip instead of propagating a storage error.
var ErrDuplicateRecord = errors.New("timing record already exists for route and time")

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
	return r.db.AutoMigrate(&TimingRecord{})
}

func (r *Repository) FindByRoute(ctx context.Context, fromID, toID string, timingType TimingType) ([]TimingRecord, error) {
	var records []TimingRecord
	result := r.db.WithContext(ctx).
		Where("from_location_id = ? AND to_location_id = ? AND timing_type = ?", fromID, toID, timingType).
		Order("departure_time ASC").
		Find(&records)
	return records, result.Error
}

func (r *Repository) Create(ctx context.Context, rec *TimingRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	err := r.db.WithContext(ctx).Create(rec).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateRecord
	}
	return err
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var total int64
	result := r.db.WithContext(ctx).Model(&TimingRecord{}).Count(&total)
	return total, result.Error
}

func (r *Repository) Get(ctx context.Context, id string) (*TimingRecord, error) {
	var rec TimingRecord
	result := r.db.WithContext(ctx).First(&rec, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, gorm.ErrRecordNotFound
	}
	return &rec, result.Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// Postgres unique_violation is SQLSTATE 23505; gorm does not always
	// translate it, so fall back to the message.
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
