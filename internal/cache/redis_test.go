package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"insightstream/api/internal/casefile"
)

func setupTestCache(t *testing.T) (*CaseCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	c, err := New("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c, s
}

func testCase(id string) *casefile.Case {
	cs := &casefile.Case{
		ID:           id,
		CustomerName: "Jordan Hale",
		Status:       casefile.StatusPendingReview,
		Original: casefile.SectionMap{
			"red_flags": {casefile.NewPlain("Unsigned consent form")},
		},
	}
	cs.EnsureWorkingState()
	return cs
}

func TestSetAndGet(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, testCase("case-1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := c.Get(ctx, "case-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CustomerName != "Jordan Hale" {
		t.Errorf("customer name = %q", got.CustomerName)
	}
	if got.Edited.TotalFindings() != 1 {
		t.Error("cached case lost its working state")
	}
}

func TestGetMiss(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	if _, err := c.Get(context.Background(), "nope"); err != ErrMiss {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, testCase("case-2")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Invalidate(ctx, "case-2"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := c.Get(ctx, "case-2"); err != ErrMiss {
		t.Errorf("entry should be gone, got %v", err)
	}

	// Invalidating an absent key is a no-op.
	if err := c.Invalidate(ctx, "case-2"); err != nil {
		t.Errorf("second invalidate errored: %v", err)
	}
}

func TestEntryExpires(t *testing.T) {
	c, s := setupTestCache(t)
	defer c.Close()
	defer s.Close()

	ctx := context.Background()
	if err := c.Set(ctx, testCase("case-3")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := c.Get(ctx, "case-3"); err != ErrMiss {
		t.Errorf("expected expiry, got %v", err)
	}
}
