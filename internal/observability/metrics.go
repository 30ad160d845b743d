// Domain-level Prometheus collectors.
//
// The HTTP middleware already measures transport traffic; the collectors here
// count business outcomes so dashboards can track the pipeline itself:
// how many receipts reach each terminal state, why they get rejected, and how
// many claims make it on chain.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	// SubmissionOutcomes counts submissions reaching a terminal state,
	// labeled by state and, for rejections, the rejection code.
	SubmissionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_submission_outcomes_total",
			Help: "Terminal submission outcomes by status and rejection code.",
		},
		[]string{"status", "rejection_code"},
	)

	// PointsAwarded accumulates points granted to verified submissions.
	PointsAwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "receipt_points_awarded_total",
			Help: "Total points awarded across verified submissions.",
		},
	)

	// ClaimOutcomes counts claim state transitions.
	ClaimOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_claim_outcomes_total",
			Help: "Reward claim outcomes by resulting status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(SubmissionOutcomes, PointsAwarded, ClaimOutcomes)
}

// RecordSubmissionOutcome increments the outcome counter for a terminal
// submission. rejectionCode is empty for non-rejected outcomes.
func RecordSubmissionOutcome(status, rejectionCode string, points int) {
	SubmissionOutcomes.WithLabelValues(status, rejectionCode).Inc()
	if points > 0 {
		PointsAwarded.Add(float64(points))
	}
}

// RecordClaimOutcome increments the claim outcome counter.
func RecordClaimOutcome(status string) {
	ClaimOutcomes.WithLabelValues(status).Inc()
}
