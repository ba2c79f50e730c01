package realtime

import (
	"errors"
	"testing"
	"time"
)

type viewAlert struct {
	ID        string
	UpdatedAt time.Time
}

func TestViewCacheAcceptsInitialEmpty(t *testing.T) {
	c := NewViewCache[viewAlert]()
	if err := c.Apply([]viewAlert{}); err != nil {
		t.Fatalf("initial empty snapshot should be accepted: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("len = %d", c.Len())
	}
}

func TestViewCacheRejectsNil(t *testing.T) {
	c := NewViewCache[viewAlert]()
	if err := c.Apply(nil); !errors.Is(err, ErrNilSnapshot) {
		t.Fatalf("err = %v, want ErrNilSnapshot", err)
	}
}

func TestViewCacheRejectsEmptyOverPopulated(t *testing.T) {
	c := NewViewCache[viewAlert]()
	five := make([]viewAlert, 5)
	for i := range five {
		five[i] = viewAlert{ID: string(rune('a' + i))}
	}
	if err := c.Apply(five); err != nil {
		t.Fatal(err)
	}

	if err := c.Apply([]viewAlert{}); !errors.Is(err, ErrStaleSnapshot) {
		t.Fatalf("5 -> 0 should be rejected, got %v", err)
	}
	if c.Len() != 5 {
		t.Errorf("cache should keep the previous view, len = %d", c.Len())
	}
}

func TestViewCacheAllowsGradualShrink(t *testing.T) {
	c := NewViewCache[viewAlert]()
	if err := c.Apply([]viewAlert{{ID: "a"}, {ID: "b"}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply([]viewAlert{{ID: "a"}}); err != nil {
		t.Fatalf("2 -> 1 should be accepted: %v", err)
	}
	// Reaching empty from a single element still trips the guard; the
	// caller resets when the collection is known to be empty.
	if err := c.Apply([]viewAlert{}); !errors.Is(err, ErrStaleSnapshot) {
		t.Fatalf("1 -> 0 rejected as a possible stall, got %v", err)
	}
}

func TestViewCacheResetReArms(t *testing.T) {
	c := NewViewCache[viewAlert]()
	if err := c.Apply([]viewAlert{{ID: "a"}}); err != nil {
		t.Fatal(err)
	}
	c.Reset()
	if err := c.Apply([]viewAlert{}); err != nil {
		t.Fatalf("empty snapshot after reset should be accepted: %v", err)
	}
}

func TestViewCacheStampRejectsOlder(t *testing.T) {
	stamp := func(items []viewAlert) time.Time {
		var max time.Time
		for _, it := range items {
			if it.UpdatedAt.After(max) {
				max = it.UpdatedAt
			}
		}
		return max
	}
	c := NewStampedViewCache(stamp)

	now := time.Now()
	if err := c.Apply([]viewAlert{{ID: "a", UpdatedAt: now}}); err != nil {
		t.Fatal(err)
	}
	if err := c.Apply([]viewAlert{{ID: "a", UpdatedAt: now.Add(-time.Hour)}}); !errors.Is(err, ErrStaleSnapshot) {
		t.Fatalf("older snapshot should be rejected, got %v", err)
	}
	if err := c.Apply([]viewAlert{{ID: "a", UpdatedAt: now.Add(time.Hour)}}); err != nil {
		t.Fatalf("newer snapshot should be accepted: %v", err)
	}
}

func TestViewCacheItemsIsACopy(t *testing.T) {
	c := NewViewCache[viewAlert]()
	if err := c.Apply([]viewAlert{{ID: "a"}}); err != nil {
		t.Fatal(err)
	}
	items := c.Items()
	items[0].ID = "mutated"
	if c.Items()[0].ID != "a" {
		t.Error("mutating the returned slice should not touch the cache")
	}
}
