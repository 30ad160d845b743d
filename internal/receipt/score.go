// Package receipt implements the pure functions of the verification
// pipeline: scoring extracted drink items into points, and deriving the
// content fingerprint used for duplicate detection. Both are deterministic
// and side-effect free so they can be unit-tested directly.
package receipt

import (
	"strconv"
	"strings"

	"github.com/rebottle/go-recycle-backend/internal/domain"
)

const (
	// maxScoredItems bounds the number of line items considered per receipt.
	maxScoredItems = 25
	// maxAmountPerItem clamps a single item's quantity.
	maxAmountPerItem = 20
	// maxTotalPoints caps the receipt score to bound runaway extractions.
	maxTotalPoints = 500
)

// CapacityPoints returns the point tier for a container capacity in ml.
// Unknown or non-positive capacities score zero.
func CapacityPoints(capacityML int) int {
	switch {
	case capacityML >= 2000:
		return 15
	case capacityML >= 1000:
		return 10
	case capacityML >= 500:
		return 2
	default:
		return 0
	}
}

// Score computes the point total for a list of extracted drink items.
//
// Per item: capacity parses to a positive integer or scores zero; amount
// parses to a positive integer, defaults to 1, and is clamped to
// [1, maxAmountPerItem]. The item contributes tier points × amount. At most
// maxScoredItems items are considered and the total is capped at
// maxTotalPoints.
func Score(items []domain.DrinkItem) int {
	if len(items) > maxScoredItems {
		items = items[:maxScoredItems]
	}
	total := 0
	for _, it := range items {
		capacity := parsePositiveInt(it.Capacity, 0)
		amount := parsePositiveInt(it.Amount, 1)
		if amount > maxAmountPerItem {
			amount = maxAmountPerItem
		}
		total += CapacityPoints(capacity) * amount
	}
	if total > maxTotalPoints {
		total = maxTotalPoints
	}
	return total
}

// parsePositiveInt parses s as a base-10 integer, returning def when s is
// empty, unparseable, or not positive.
func parsePositiveInt(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
