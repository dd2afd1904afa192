package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/perundhu/platform/pkg/common/logger"
	"github.com/perundhu/platform/pkg/contribution"
	"github.com/perundhu/platform/pkg/ocr"
	"github.com/perundhu/platform/pkg/parser"
	"github.com/perundhu/platform/pkg/schedule"
)

// ContributionStore is the processor's view of the contribution table.
// Claim and Finalize carry the status guards; everything between them
// assumes the caller owns the row.
type ContributionStore interface {
	Get(ctx context.Context, id string) (*contribution.Contribution, error)
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	SaveOCRResult(ctx context.Context, id string, res *ocr.Result, at time.Time) error
	SaveCandidates(ctx context.Context, candidates []contribution.Candidate) error
	SetManualReview(ctx context.Context, id, note string, at time.Time) error
	Finalize(ctx context.Context, id string, status contribution.Status, summary contribution.DuplicateCheckStatus, message, processedBy string, at time.Time) error
	FindStuck(ctx context.Context, cutoff time.Time) ([]contribution.Contribution, error)
	ForceReject(ctx context.Context, id, message string, at time.Time) error
}

// TextExtractor is the OCR boundary.
type TextExtractor interface {
	Extract(ctx context.Context, imageRef string) (*ocr.Result, error)
}

// ClaimLocker is the advisory lock over a single contribution, held for
// the duration of one processing pass. The database claim is the real
// gate; this keeps a redelivered event from even reading the row.
type ClaimLocker interface {
	LockContribution(ctx context.Context, id string) (func(), bool, error)
}

// EventPublisher is satisfied by the kafka producer.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, source string, data map[string]interface{}) error
}

// Processor drives one contribution from claim to terminal state.
type Processor struct {
	contribs  ContributionStore
	extractor TextExtractor
	parse     *parser.Parser
	merger    *Merger
	claims    ClaimLocker
	events    EventPublisher
	timeout   time.Duration
	now       func() time.Time
}

func NewProcessor(contribs ContributionStore, extractor TextExtractor, parse *parser.Parser, merger *Merger, claims ClaimLocker, events EventPublisher, timeout time.Duration, now func() time.Time) *Processor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Processor{
		contribs:  contribs,
		extractor: extractor,
		parse:     parse,
		merger:    merger,
		claims:    claims,
		events:    events,
		timeout:   timeout,
		now:       now,
	}
}

// Run processes one contribution under the configured deadline. A pass
// that exceeds the deadline is force-rejected so the row cannot sit in
// PROCESSING forever.
func (p *Processor) Run(ctx context.Context, id string) error {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.Process(runCtx, id)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		logger.WithContribution(id).Warn("processing deadline exceeded, force rejecting")
		if rejErr := p.contribs.ForceReject(ctx, id, "processing timed out", p.now()); rejErr != nil {
			return fmt.Errorf("force rejecting after timeout: %w", rejErr)
		}
		return nil
	}
	return err
}

// Process performs one full reconciliation pass. Redeliveries of
// already-claimed or terminal contributions are silent no-ops.
func (p *Processor) Process(ctx context.Context, id string) error {
	log := logger.WithContribution(id)

	if p.claims != nil {
		unlock, acquired, err := p.claims.LockContribution(ctx, id)
		if err != nil {
			return fmt.Errorf("acquiring contribution lock: %w", err)
		}
		if !acquired {
			log.Debug("contribution locked by another worker, skipping")
			return nil
		}
		defer unlock()
	}

	claimed, err := p.contribs.Claim(ctx, id, p.now())
	if err != nil {
		return fmt.Errorf("claiming contribution: %w", err)
	}
	if !claimed {
		log.Info("contribution not claimable, skipping")
		return nil
	}

	c, err := p.contribs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("loading contribution: %w", err)
	}

	res, err := p.extractor.Extract(ctx, c.ImageRef)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("text extraction failed")
		return p.finalize(ctx, c, contribution.StatusRejected, contribution.DuplicateSkipped,
			fmt.Sprintf("text extraction failed: %v", err))
	}

	if err := p.contribs.SaveOCRResult(ctx, id, res, p.now()); err != nil {
		return fmt.Errorf("saving ocr result: %w", err)
	}

	if strings.TrimSpace(res.EnglishText) == "" && strings.TrimSpace(res.RawText) == "" {
		return p.finalize(ctx, c, contribution.StatusRejected, contribution.DuplicateSkipped,
			"no text recovered from image")
	}

	parsed := p.parse.Parse(parser.Input{
		EnglishText:   res.EnglishText,
		OriginalText:  res.RawText,
		Origin:        c.OriginLocation,
		BoardType:     c.BoardType,
		OCRConfidence: res.OverallConfidence,
	})

	if len(parsed.Candidates) == 0 {
		// Readable text that yields nothing parseable goes to a human
		// instead of the reject pile. The row stays in PROCESSING until
		// a reviewer renders the verdict.
		log.Info("no candidates parsed, holding for manual review")
		return p.contribs.SetManualReview(ctx, id, parsed.ReviewNote, p.now())
	}

	for i := range parsed.Candidates {
		parsed.Candidates[i].ContributionID = id
	}
	if err := p.contribs.SaveCandidates(ctx, parsed.Candidates); err != nil {
		return fmt.Errorf("saving candidates: %w", err)
	}

	if parsed.RequiresManualReview {
		if err := p.contribs.SetManualReview(ctx, id, parsed.ReviewNote, p.now()); err != nil {
			return fmt.Errorf("flagging manual review: %w", err)
		}
	}

	tally := map[schedule.Outcome]int{}
	for _, cand := range parsed.Candidates {
		outcome, err := p.merger.Apply(ctx, c, cand)
		if err != nil {
			return fmt.Errorf("merging candidate %s: %w", cand.ID, err)
		}
		tally[outcome]++
	}

	created := tally[schedule.OutcomeUnique]
	skipped := len(parsed.Candidates) - created
	status := contribution.StatusApproved
	summary := rollup(tally)
	message := fmt.Sprintf("created %d timing records, skipped %d", created, skipped)
	if dups := tally[schedule.OutcomeDuplicateExact] + tally[schedule.OutcomeDuplicateSimilar]; dups > 0 {
		message = fmt.Sprintf("%s (%d duplicates of existing schedule data)", message, dups)
	}

	log.WithFields(map[string]interface{}{
		"created": created,
		"skipped": skipped,
		"summary": string(summary),
	}).Info("contribution reconciled")

	return p.finalize(ctx, c, status, summary, message)
}

func (p *Processor) finalize(ctx context.Context, c *contribution.Contribution, status contribution.Status, summary contribution.DuplicateCheckStatus, message string) error {
	if err := p.contribs.Finalize(ctx, c.ID, status, summary, message, resolverIdentity, p.now()); err != nil {
		return fmt.Errorf("finalizing contribution: %w", err)
	}
	if p.events != nil {
		payload := map[string]interface{}{
			"contribution_id": c.ID,
			"submitter_id":    c.SubmitterID,
			"status":          string(status),
			"message":         message,
		}
		if err := p.events.PublishEvent(ctx, "contribution-resolved", "processor-service", payload); err != nil {
			logger.WithContribution(c.ID).WithError(err).Error("failed to publish resolution event")
		}
	}
	return nil
}

// rollup folds per-candidate outcomes into the contribution-level
// duplicate summary.
func rollup(tally map[schedule.Outcome]int) contribution.DuplicateCheckStatus {
	total := 0
	for _, n := range tally {
		total += n
	}
	switch {
	case total == 0:
		return contribution.DuplicateSkipped
	case tally[schedule.OutcomeDuplicateExact]+tally[schedule.OutcomeDuplicateSimilar] > 0:
		return contribution.DuplicatesFound
	case tally[schedule.OutcomeUnique] == total:
		return contribution.DuplicateUnique
	default:
		return contribution.DuplicateChecked
	}
}

// ReapStuck force-rejects contributions that have been in PROCESSING
// longer than maxAge. It is the recovery path for workers that died
// mid-pass with the claim already taken.
func (p *Processor) ReapStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := p.now().Add(-maxAge)
	stuck, err := p.contribs.FindStuck(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing stuck contributions: %w", err)
	}

	reaped := 0
	for i := range stuck {
		id := stuck[i].ID
		if err := p.contribs.ForceReject(ctx, id, "processing abandoned, exceeded timeout", p.now()); err != nil {
			logger.WithContribution(id).WithError(err).Error("failed to reap stuck contribution")
			continue
		}
		logger.WithContribution(id).Warn("reaped stuck contribution")
		reaped++
	}
	return reaped, nil
}
