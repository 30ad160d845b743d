package extraction

import (
	"context"
	"time"
)

// Mock returns a fixed, well-formed extraction result without any network
// call. Used in environments without a live extraction integration.
type Mock struct{}

// Extract fabricates a deterministic acceptable receipt stamped with the
// current minute, so repeated mock submissions within the same minute
// exercise the duplicate-receipt path end to end.
func (Mock) Extract(_ context.Context, _ string, userRef string) (*Result, error) {
	now := time.Now().UTC().Format("2006-01-02 15:04:05")
	return Parse([]byte(`{
		"data": {
			"isAvailable": "true",
			"timeThreshold": "false",
			"receiptTime": "` + now + `",
			"userId": "` + userRef + `",
			"drinks": [
				{"drinkName": "Mock Cola", "capacity": "500", "amount": "1"},
				{"drinkName": "Mock Water", "capacity": "1000", "amount": "2"}
			]
		}
	}`))
}
