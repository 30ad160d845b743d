package repo

import (
	"context"
	"errors"
	"testing"
)

func TestActiveRate_NoneConfigured(t *testing.T) {
	db := newTestDB(t)
	if _, err := ActiveRate(context.Background(), db); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSwapActiveRate_AppendOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := SwapActiveRate(ctx, db, 10)
	if err != nil {
		t.Fatalf("first swap: %v", err)
	}
	second, err := SwapActiveRate(ctx, db, 20)
	if err != nil {
		t.Fatalf("second swap: %v", err)
	}

	active, err := ActiveRate(ctx, db)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID != second.ID || active.PointsPerB3TR != 20 {
		t.Fatalf("expected the new rate to be active, got %+v", active)
	}

	// The old row survives untouched apart from the active flag, since
	// claims reference it by id.
	old, err := GetRate(ctx, db, first.ID)
	if err != nil {
		t.Fatalf("get old rate: %v", err)
	}
	if old.Active || old.PointsPerB3TR != 10 {
		t.Fatalf("old rate mutated: %+v", old)
	}
}
