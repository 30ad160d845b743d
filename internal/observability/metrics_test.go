package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSubmissionOutcome(t *testing.T) {
	before := testutil.ToFloat64(SubmissionOutcomes.WithLabelValues("verified", ""))
	pointsBefore := testutil.ToFloat64(PointsAwarded)

	RecordSubmissionOutcome("verified", "", 12)

	if got := testutil.ToFloat64(SubmissionOutcomes.WithLabelValues("verified", "")); got != before+1 {
		t.Fatalf("outcome counter = %v; want %v", got, before+1)
	}
	if got := testutil.ToFloat64(PointsAwarded); got != pointsBefore+12 {
		t.Fatalf("points counter = %v; want %v", got, pointsBefore+12)
	}

	// Rejections carry a code and award nothing.
	rejBefore := testutil.ToFloat64(SubmissionOutcomes.WithLabelValues("rejected", "duplicate_receipt"))
	RecordSubmissionOutcome("rejected", "duplicate_receipt", 0)
	if got := testutil.ToFloat64(SubmissionOutcomes.WithLabelValues("rejected", "duplicate_receipt")); got != rejBefore+1 {
		t.Fatalf("rejection counter = %v; want %v", got, rejBefore+1)
	}
	if got := testutil.ToFloat64(PointsAwarded); got != pointsBefore+12 {
		t.Fatalf("points counter moved on zero-point outcome: %v", got)
	}
}

func TestRecordClaimOutcome(t *testing.T) {
	before := testutil.ToFloat64(ClaimOutcomes.WithLabelValues("confirmed"))
	RecordClaimOutcome("confirmed")
	if got := testutil.ToFloat64(ClaimOutcomes.WithLabelValues("confirmed")); got != before+1 {
		t.Fatalf("claim counter = %v; want %v", got, before+1)
	}
}
