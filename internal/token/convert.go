// Package token implements the points-to-B3TR conversion. All arithmetic is
// arbitrary-precision integer math; floating point is never used because the
// result is a financial amount.
package token

import (
	"errors"
	"math/big"
)

// ErrInvalidInput is returned for negative points or a non-positive rate.
var ErrInvalidInput = errors.New("invalid conversion input")

// weiPerB3TR is 10^18, the fixed-point scale of the B3TR token.
var weiPerB3TR = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PointsToWei converts available points to a B3TR amount in wei:
// floor(points × 10^18 / pointsPerB3TR).
//
// pointsPerB3TR must be > 0 and points must be >= 0; anything else is
// ErrInvalidInput. The division floors, so convert(1, 3) yields
// 333333333333333333 wei.
func PointsToWei(points int64, pointsPerB3TR int64) (*big.Int, error) {
	if points < 0 || pointsPerB3TR <= 0 {
		return nil, ErrInvalidInput
	}
	wei := new(big.Int).Mul(big.NewInt(points), weiPerB3TR)
	return wei.Quo(wei, big.NewInt(pointsPerB3TR)), nil
}
