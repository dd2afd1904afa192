package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/perundhu/platform/pkg/audit"
	"github.com/perundhu/platform/pkg/common/logger"
	"github.com/perundhu/platform/pkg/contribution"
	"github.com/perundhu/platform/pkg/locations"
	"github.com/perundhu/platform/pkg/ocr"
	"github.com/perundhu/platform/pkg/parser"
	"github.com/perundhu/platform/pkg/schedule"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// memStore is an in-memory stand-in for the gorm store, close enough to
// exercise the claim guard, the counters, and the uniqueness backstop.
type memStore struct {
	mu       sync.Mutex
	contribs map[string]*contribution.Contribution
	records  []schedule.TimingRecord
	skips    []audit.SkipRecord
	nextID   int
}

func newMemStore(contribs ...*contribution.Contribution) *memStore {
	s := &memStore{contribs: map[string]*contribution.Contribution{}}
	for _, c := range contribs {
		s.contribs[c.ID] = c
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id string) (*contribution.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contribs[id]
	if !ok {
		return nil, contribution.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *memStore) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contribs[id]
	if !ok || c.Status != contribution.StatusPending {
		return false, nil
	}
	c.Status = contribution.StatusProcessing
	c.UpdatedAt = at
	return true, nil
}

func (s *memStore) SaveOCRResult(ctx context.Context, id string, res *ocr.Result, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contribs[id]
	c.OCRTextOriginal = res.RawText
	c.OCRTextEnglish = res.EnglishText
	c.OCRConfidence = res.OverallConfidence
	c.DetectedLanguage = res.PrimaryLanguage
	c.UpdatedAt = at
	return nil
}

func (s *memStore) SaveCandidates(ctx context.Context, candidates []contribution.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cand := range candidates {
		c := s.contribs[cand.ContributionID]
		c.Candidates = append(c.Candidates, cand)
	}
	return nil
}

func (s *memStore) SetManualReview(ctx context.Context, id, note string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contribs[id]
	c.RequiresManualReview = true
	c.ValidationMessage = note
	c.UpdatedAt = at
	return nil
}

func (s *memStore) Finalize(ctx context.Context, id string, status contribution.Status, summary contribution.DuplicateCheckStatus, message, processedBy string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contribs[id]
	if c.Status != contribution.StatusProcessing {
		return nil
	}
	c.Status = status
	c.DuplicateCheckStatus = summary
	c.ValidationMessage = message
	c.ProcessedBy = processedBy
	c.ProcessedAt = &at
	c.UpdatedAt = at
	return nil
}

func (s *memStore) FindStuck(ctx context.Context, cutoff time.Time) ([]contribution.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stuck []contribution.Contribution
	for _, c := range s.contribs {
		if c.Status == contribution.StatusProcessing && c.UpdatedAt.Before(cutoff) && !c.RequiresManualReview {
			stuck = append(stuck, *c)
		}
	}
	return stuck, nil
}

func (s *memStore) ForceReject(ctx context.Context, id, message string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contribs[id]
	if c.Status != contribution.StatusProcessing {
		return nil
	}
	c.Status = contribution.StatusRejected
	c.ValidationMessage = message
	c.ProcessedBy = "reaper"
	c.UpdatedAt = at
	return nil
}

func (s *memStore) FindByRoute(ctx context.Context, fromID, toID string, timingType schedule.TimingType) ([]schedule.TimingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schedule.TimingRecord
	for _, rec := range s.records {
		if rec.FromLocationID == fromID && rec.ToLocationID == toID && rec.TimingType == timingType {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) CreateRecord(ctx context.Context, contributionID string, rec *schedule.TimingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.FromLocationID == rec.FromLocationID &&
			existing.ToLocationID == rec.ToLocationID &&
			existing.DepartureTime == rec.DepartureTime &&
			existing.TimingType == rec.TimingType {
			return schedule.ErrDuplicateRecord
		}
	}
	s.nextID++
	rec.ID = fmt.Sprintf("rec-%d", s.nextID)
	rec.CreatedAt = time.Now().UTC()
	s.records = append(s.records, *rec)
	s.contribs[contributionID].CreatedRecords++
	return nil
}

func (s *memStore) RecordSkip(ctx context.Context, skip *audit.SkipRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	skip.ID = fmt.Sprintf("skip-%d", s.nextID)
	s.skips = append(s.skips, *skip)
	s.contribs[skip.ContributionID].SkippedRecords++
	return nil
}

// memLocker is a process-local advisory lock with the same acquire
// semantics as the redis locker.
type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]bool{}}
}

func (l *memLocker) acquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

func (l *memLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}

func (l *memLocker) LockContribution(ctx context.Context, id string) (func(), bool, error) {
	key := "contribution:" + id
	if !l.acquire(key) {
		return nil, false, nil
	}
	return func() { l.release(key) }, true, nil
}

func (l *memLocker) LockRoute(ctx context.Context, fromID, toID string, timingType schedule.TimingType) (func(), error) {
	key := fmt.Sprintf("route:%s:%s:%s", fromID, toID, timingType)
	for !l.acquire(key) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
	return func() { l.release(key) }, nil
}

type fakeExtractor struct {
	result *ocr.Result
	err    error
}

func (f *fakeExtractor) Extract(ctx context.Context, imageRef string) (*ocr.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func pendingContribution(id string) *contribution.Contribution {
	return &contribution.Contribution{
		ID:             id,
		SubmitterID:    "user-1",
		ImageRef:       "https://img.example/" + id + ".jpg",
		OriginLocation: "Chennai",
		BoardType:      contribution.BoardInterCity,
		Status:         contribution.StatusPending,
		SubmittedAt:    time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

func newTestProcessor(store *memStore, extractor TextExtractor) *Processor {
	catalog := locations.DefaultCatalog(0.88)
	locker := newMemLocker()
	merger := NewMerger(store, locker, 10, nil)
	return NewProcessor(store, extractor, parser.New(catalog, 0.4, 0.15), merger, locker, nil, time.Minute, nil)
}

func TestProcessReconcilesBoard(t *testing.T) {
	store := newMemStore(pendingContribution("c-1"))
	store.records = []schedule.TimingRecord{{
		ID:             "rec-official",
		FromLocationID: "loc-chennai",
		ToLocationID:   "loc-vellore",
		DepartureTime:  "06:00",
		TimingType:     schedule.TimingDeparture,
		Source:         schedule.SourceOfficial,
	}}

	extractor := &fakeExtractor{result: &ocr.Result{
		RawText:           "Chennai - Vellore 06:00\nChennai - Bangalore 07:30",
		EnglishText:       "Chennai - Vellore 06:00\nChennai - Bangalore 07:30",
		PrimaryLanguage:   "en",
		OverallConfidence: 0.92,
	}}

	p := newTestProcessor(store, extractor)
	if err := p.Process(context.Background(), "c-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := store.contribs["c-1"]
	if c.Status != contribution.StatusApproved {
		t.Fatalf("expected APPROVED, got %s (%s)", c.Status, c.ValidationMessage)
	}
	if c.DuplicateCheckStatus != contribution.DuplicatesFound {
		t.Fatalf("expected DUPLICATES_FOUND summary, got %s", c.DuplicateCheckStatus)
	}
	if c.CreatedRecords != 1 || c.SkippedRecords != 1 {
		t.Fatalf("expected 1 created and 1 skipped, got %d/%d", c.CreatedRecords, c.SkippedRecords)
	}
	if got := c.CreatedRecords + c.SkippedRecords; got != len(c.Candidates) {
		t.Fatalf("counters %d do not cover %d candidates", got, len(c.Candidates))
	}
	if len(store.records) != 2 {
		t.Fatalf("expected 2 timing records, got %d", len(store.records))
	}
	if len(store.skips) != 1 || store.skips[0].Reason != audit.ReasonDuplicateExact {
		t.Fatalf("expected one exact-duplicate skip, got %+v", store.skips)
	}
	if store.skips[0].ExistingRecordID != "rec-official" {
		t.Fatalf("skip should reference the existing record, got %q", store.skips[0].ExistingRecordID)
	}
}

func TestProcessFreshBoardCreatesAllRecords(t *testing.T) {
	store := newMemStore(pendingContribution("c-1"))
	extractor := &fakeExtractor{result: &ocr.Result{
		RawText:           "Chennai - Vellore 06:00, Chennai - Vellore 06:05, Chennai - Bangalore 08:30",
		EnglishText:       "Chennai - Vellore 06:00, Chennai - Vellore 06:05, Chennai - Bangalore 08:30",
		PrimaryLanguage:   "en",
		OverallConfidence: 0.9,
	}}

	p := newTestProcessor(store, extractor)
	if err := p.Process(context.Background(), "c-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := store.contribs["c-1"]
	if c.Status != contribution.StatusApproved {
		t.Fatalf("expected APPROVED, got %s (%s)", c.Status, c.ValidationMessage)
	}
	if len(c.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(c.Candidates))
	}
	// Nearby times on the same board are distinct services, not
	// near-duplicates of each other.
	if c.CreatedRecords != 3 || c.SkippedRecords != 0 {
		t.Fatalf("expected 3 created and 0 skipped, got %d/%d", c.CreatedRecords, c.SkippedRecords)
	}
	if c.DuplicateCheckStatus != contribution.DuplicateUnique {
		t.Fatalf("expected UNIQUE summary, got %s", c.DuplicateCheckStatus)
	}
	if len(store.records) != 3 {
		t.Fatalf("expected 3 timing records, got %d", len(store.records))
	}
}

func TestProcessRedeliveryIsNoOp(t *testing.T) {
	store := newMemStore(pendingContribution("c-1"))
	extractor := &fakeExtractor{result: &ocr.Result{
		EnglishText:       "Chennai - Vellore 06:00",
		RawText:           "Chennai - Vellore 06:00",
		OverallConfidence: 0.9,
	}}

	p := newTestProcessor(store, extractor)
	if err := p.Process(context.Background(), "c-1"); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	before := *store.contribs["c-1"]
	if err := p.Process(context.Background(), "c-1"); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	after := store.contribs["c-1"]
	if after.CreatedRecords != before.CreatedRecords || after.SkippedRecords != before.SkippedRecords {
		t.Fatalf("redelivery changed counters: %d/%d -> %d/%d",
			before.CreatedRecords, before.SkippedRecords, after.CreatedRecords, after.SkippedRecords)
	}
	if len(store.records) != 1 {
		t.Fatalf("redelivery created records, have %d", len(store.records))
	}
}

func TestProcessConcurrentSameRoute(t *testing.T) {
	first := pendingContribution("c-1")
	second := pendingContribution("c-2")
	store := newMemStore(first, second)

	extractor := &fakeExtractor{result: &ocr.Result{
		EnglishText:       "Chennai - Vellore 06:00",
		RawText:           "Chennai - Vellore 06:00",
		OverallConfidence: 0.9,
	}}

	p := newTestProcessor(store, extractor)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"c-1", "c-2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			errs[i] = p.Process(context.Background(), id)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(store.records) != 1 {
		t.Fatalf("expected exactly one timing record, got %d", len(store.records))
	}
	if len(store.skips) != 1 || store.skips[0].Reason != audit.ReasonDuplicateExact {
		t.Fatalf("expected one exact-duplicate skip, got %+v", store.skips)
	}
	totalCreated := store.contribs["c-1"].CreatedRecords + store.contribs["c-2"].CreatedRecords
	totalSkipped := store.contribs["c-1"].SkippedRecords + store.contribs["c-2"].SkippedRecords
	if totalCreated != 1 || totalSkipped != 1 {
		t.Fatalf("expected 1 created and 1 skipped across workers, got %d/%d", totalCreated, totalSkipped)
	}
}

func TestProcessExtractionFailureRejects(t *testing.T) {
	store := newMemStore(pendingContribution("c-1"))
	extractor := &fakeExtractor{err: &ocr.Failure{Reason: "engine reported failure"}}

	p := newTestProcessor(store, extractor)
	if err := p.Process(context.Background(), "c-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := store.contribs["c-1"]
	if c.Status != contribution.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", c.Status)
	}
	if c.DuplicateCheckStatus != contribution.DuplicateSkipped {
		t.Fatalf("expected SKIPPED summary, got %s", c.DuplicateCheckStatus)
	}
	if len(c.Candidates) != 0 {
		t.Fatalf("no candidates expected after extraction failure")
	}
}

func TestProcessEmptyTextRejects(t *testing.T) {
	store := newMemStore(pendingContribution("c-1"))
	extractor := &fakeExtractor{result: &ocr.Result{OverallConfidence: 0.1}}

	p := newTestProcessor(store, extractor)
	if err := p.Process(context.Background(), "c-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := store.contribs["c-1"].Status; got != contribution.StatusRejected {
		t.Fatalf("expected REJECTED for empty text, got %s", got)
	}
}

func TestProcessUnparseableTextHoldsForReview(t *testing.T) {
	store := newMemStore(pendingContribution("c-1"))
	extractor := &fakeExtractor{result: &ocr.Result{
		EnglishText:       "bus stand notice board cleaning schedule",
		RawText:           "bus stand notice board cleaning schedule",
		OverallConfidence: 0.8,
	}}

	p := newTestProcessor(store, extractor)
	if err := p.Process(context.Background(), "c-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := store.contribs["c-1"]
	if c.Status != contribution.StatusProcessing {
		t.Fatalf("expected hold in PROCESSING, got %s", c.Status)
	}
	if !c.RequiresManualReview {
		t.Fatal("expected manual review flag")
	}
}

func TestReapStuck(t *testing.T) {
	stale := pendingContribution("c-stale")
	stale.Status = contribution.StatusProcessing
	stale.UpdatedAt = time.Now().UTC().Add(-time.Hour)

	held := pendingContribution("c-held")
	held.Status = contribution.StatusProcessing
	held.RequiresManualReview = true
	held.UpdatedAt = time.Now().UTC().Add(-time.Hour)

	fresh := pendingContribution("c-fresh")
	fresh.Status = contribution.StatusProcessing
	fresh.UpdatedAt = time.Now().UTC()

	store := newMemStore(stale, held, fresh)
	p := newTestProcessor(store, &fakeExtractor{})

	reaped, err := p.ReapStuck(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reaped != 1 {
		t.Fatalf("expected 1 reaped, got %d", reaped)
	}
	if store.contribs["c-stale"].Status != contribution.StatusRejected {
		t.Fatalf("stale contribution should be rejected, got %s", store.contribs["c-stale"].Status)
	}
	if store.contribs["c-held"].Status != contribution.StatusProcessing {
		t.Fatal("manual review hold must survive the reaper")
	}
	if store.contribs["c-fresh"].Status != contribution.StatusProcessing {
		t.Fatal("fresh contribution must survive the reaper")
	}
}

func TestProcessLockedContributionSkips(t *testing.T) {
	store := newMemStore(pendingContribution("c-1"))
	locker := newMemLocker()
	locker.acquire("contribution:c-1")

	catalog := locations.DefaultCatalog(0.88)
	merger := NewMerger(store, locker, 10, nil)
	p := NewProcessor(store, &fakeExtractor{err: errors.New("should not be called")},
		parser.New(catalog, 0.4, 0.15), merger, locker, nil, time.Minute, nil)

	if err := p.Process(context.Background(), "c-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.contribs["c-1"].Status; got != contribution.StatusPending {
		t.Fatalf("locked contribution must stay PENDING, got %s", got)
	}
}
