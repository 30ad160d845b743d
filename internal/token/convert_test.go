package token

import (
	"errors"
	"math/big"
	"testing"
)

func TestPointsToWei_Zero(t *testing.T) {
	got, err := PointsToWei(0, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("convert(0, 10) = %s, want 0", got)
	}
}

func TestPointsToWei_ExactRate(t *testing.T) {
	// 15 points at 10 points per B3TR = 1.5 B3TR.
	got, err := PointsToWei(15, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("convert(15, 10) = %s, want %s", got, want)
	}
}

func TestPointsToWei_FloorsDivision(t *testing.T) {
	got, err := PointsToWei(1, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := new(big.Int).SetString("333333333333333333", 10)
	if got.Cmp(want) != 0 {
		t.Fatalf("convert(1, 3) = %s, want %s", got, want)
	}
}

func TestPointsToWei_Monotonic(t *testing.T) {
	prev := big.NewInt(-1)
	for p := int64(0); p <= 50; p++ {
		got, err := PointsToWei(p, 7)
		if err != nil {
			t.Fatalf("unexpected error at p=%d: %v", p, err)
		}
		if got.Cmp(prev) < 0 {
			t.Fatalf("conversion decreased at p=%d: %s < %s", p, got, prev)
		}
		prev = got
	}
}

func TestPointsToWei_InvalidInput(t *testing.T) {
	if _, err := PointsToWei(-1, 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative points: expected ErrInvalidInput, got %v", err)
	}
	if _, err := PointsToWei(10, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("zero rate: expected ErrInvalidInput, got %v", err)
	}
	if _, err := PointsToWei(10, -5); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("negative rate: expected ErrInvalidInput, got %v", err)
	}
}
