package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewFake(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}

	got := c.Advance(90 * time.Minute)
	want := start.Add(90 * time.Minute)
	if !got.Equal(want) || !c.Now().Equal(want) {
		t.Fatalf("Advance() = %v, want %v", got, want)
	}

	c.Set(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Set() did not rewind clock: %v", c.Now())
	}
}

func TestFakeNormalisesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	c := NewFake(time.Date(2026, 3, 1, 11, 0, 0, 0, loc))

	if c.Now().Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", c.Now().Location())
	}
	if c.Now().Hour() != 9 {
		t.Fatalf("expected 09:00 UTC, got %v", c.Now())
	}
}

func TestRealIsUTC(t *testing.T) {
	if (Real{}).Now().Location() != time.UTC {
		t.Fatal("Real clock should report UTC")
	}
}
