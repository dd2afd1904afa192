package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	contributionsPending    atomic.Int64
	contributionsProcessing atomic.Int64
	contributionsApproved   atomic.Int64
	contributionsRejected   atomic.Int64
	timingRecordsTotal      atomic.Int64
	skippedRecordsTotal     atomic.Int64
	manualReviewBacklog     atomic.Int64
)

// ObserveContributionCounts stores the latest sampled per-status totals.
func ObserveContributionCounts(pending, processing, approved, rejected, manualReview int64) {
	contributionsPending.Store(pending)
	contributionsProcessing.Store(processing)
	contributionsApproved.Store(approved)
	contributionsRejected.Store(rejected)
	manualReviewBacklog.Store(manualReview)
}

// ObserveScheduleCounts stores the latest sampled record and skip totals.
func ObserveScheduleCounts(records, skips int64) {
	timingRecordsTotal.Store(records)
	skippedRecordsTotal.Store(skips)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP perundhu_contributions_pending Number of contributions waiting to be claimed.\n")
	fmt.Fprintf(w, "# TYPE perundhu_contributions_pending gauge\n")
	fmt.Fprintf(w, "perundhu_contributions_pending %d\n", contributionsPending.Load())

	fmt.Fprintf(w, "# HELP perundhu_contributions_processing Number of contributions currently claimed by a worker.\n")
	fmt.Fprintf(w, "# TYPE perundhu_contributions_processing gauge\n")
	fmt.Fprintf(w, "perundhu_contributions_processing %d\n", contributionsProcessing.Load())

	fmt.Fprintf(w, "# HELP perundhu_contributions_approved_total Number of contributions that reached APPROVED.\n")
	fmt.Fprintf(w, "# TYPE perundhu_contributions_approved_total gauge\n")
	fmt.Fprintf(w, "perundhu_contributions_approved_total %d\n", contributionsApproved.Load())

	fmt.Fprintf(w, "# HELP perundhu_contributions_rejected_total Number of contributions that reached REJECTED.\n")
	fmt.Fprintf(w, "# TYPE perundhu_contributions_rejected_total gauge\n")
	fmt.Fprintf(w, "perundhu_contributions_rejected_total %d\n", contributionsRejected.Load())

	fmt.Fprintf(w, "# HELP perundhu_contributions_manual_review Number of contributions flagged for human review.\n")
	fmt.Fprintf(w, "# TYPE perundhu_contributions_manual_review gauge\n")
	fmt.Fprintf(w, "perundhu_contributions_manual_review %d\n", manualReviewBacklog.Load())

	fmt.Fprintf(w, "# HELP perundhu_timing_records_total Number of authoritative timing records.\n")
	fmt.Fprintf(w, "# TYPE perundhu_timing_records_total gauge\n")
	fmt.Fprintf(w, "perundhu_timing_records_total %d\n", timingRecordsTotal.Load())

	fmt.Fprintf(w, "# HELP perundhu_skipped_records_total Number of entries in the skip ledger.\n")
	fmt.Fprintf(w, "# TYPE perundhu_skipped_records_total gauge\n")
	fmt.Fprintf(w, "perundhu_skipped_records_total %d\n", skippedRecordsTotal.Load())
}
