package contribution

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/perundhu/platform/pkg/common/kafka"
	"github.com/perundhu/platform/pkg/common/logger"
	"github.com/perundhu/platform/pkg/common/models"
)

type Service struct {
	validator *Validator
	repo      *Repository
	producer  *kafka.Producer
	dlq       *kafka.Producer
	now       func() time.Time
}

func NewService(validator *Validator, repo *Repository, producer *kafka.Producer, dlq *kafka.Producer, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		validator: validator,
		repo:      repo,
		producer:  producer,
		dlq:       dlq,
		now:       now,
	}
}

// Submit validates and persists a new contribution in PENDING state and
// hands it to the processing pipeline via the event bus.
func (s *Service) Submit(ctx context.Context, req models.SubmitContributionRequest) (*models.SubmitContributionResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	boardType, _ := ParseBoardType(req.BoardType)
	now := s.now()

	c := &Contribution{
		ID:                       uuid.New().String(),
		SubmitterID:              req.SubmitterID,
		ImageRef:                 req.ImageRef,
		ThumbnailRef:             req.ThumbnailRef,
		OriginLocation:           req.OriginLocationText,
		OriginLocationTranslated: req.OriginLocationTranslated,
		OriginLatitude:           req.Latitude,
		OriginLongitude:          req.Longitude,
		BoardType:                boardType,
		Description:              req.Description,
		Status:                   StatusPending,
		SubmittedAt:              now,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("persisting contribution: %w", err)
	}

	payload := map[string]interface{}{
		"contribution_id": c.ID,
		"submitter_id":    c.SubmitterID,
		"board_type":      string(c.BoardType),
		"submitted_at":    c.SubmittedAt,
	}

	if err := s.producer.PublishEvent(ctx, "contribution-submitted", "contribution-service", payload); err != nil {
		logger.Log.WithError(err).Error("failed to publish contribution event")
		if s.dlq != nil {
			if dlqErr := s.dlq.PublishEvent(ctx, "contribution-dlq", "contribution-service", payload); dlqErr != nil {
				logger.Log.WithError(dlqErr).Error("failed to push contribution event to DLQ")
			}
		}
		// The row stays PENDING and can be requeued manually; surface the
		// publish failure to the caller.
		return nil, fmt.Errorf("publishing event: %w", err)
	}

	return &models.SubmitContributionResponse{
		ID:        c.ID,
		Status:    string(StatusPending),
		Timestamp: now,
	}, nil
}

func (s *Service) Status(ctx context.Context, id string) (*Contribution, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListBySubmitter(ctx context.Context, submitterID string, limit int) ([]Contribution, error) {
	return s.repo.ListBySubmitter(ctx, submitterID, limit)
}

func (s *Service) ListByStatus(ctx context.Context, status Status, limit int) ([]Contribution, error) {
	return s.repo.ListByStatus(ctx, status, limit)
}

// Review applies a human verdict through the same transition surface the
// pipeline uses.
func (s *Service) Review(ctx context.Context, id string, req models.ReviewRequest) (*Contribution, error) {
	status := Status(req.Status)
	if status != StatusApproved && status != StatusRejected {
		return nil, ValidationError{reason: fmt.Errorf("review status must be APPROVED or REJECTED")}
	}
	if req.ReviewedBy == "" {
		return nil, ValidationError{reason: fmt.Errorf("reviewer identity required")}
	}

	if err := s.repo.Override(ctx, id, status, req.Message, req.ReviewedBy, s.now()); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}
