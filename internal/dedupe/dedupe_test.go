package dedupe

import (
	"testing"
	"time"
)

func TestSeenWithinTTL(t *testing.T) {
	c := New(time.Minute, 100)
	now := time.Now()

	if c.SeenAt("SM123", now) {
		t.Fatal("first sighting should not be a duplicate")
	}
	if !c.SeenAt("SM123", now.Add(time.Second)) {
		t.Fatal("second sighting within TTL should be a duplicate")
	}
}

func TestSeenAfterTTLExpiry(t *testing.T) {
	c := New(time.Minute, 100)
	now := time.Now()

	c.SeenAt("SM123", now)
	if c.SeenAt("SM123", now.Add(2*time.Minute)) {
		t.Fatal("sighting after TTL should not be a duplicate")
	}
}

func TestEmptyKeyNeverDuplicate(t *testing.T) {
	c := New(time.Minute, 100)
	if c.Seen("") || c.Seen("") {
		t.Fatal("empty key must never be treated as duplicate")
	}
	if c.Size() != 0 {
		t.Fatalf("empty keys must not be stored, size=%d", c.Size())
	}
}

func TestMaxSizeEvictsOldest(t *testing.T) {
	c := New(time.Hour, 2)
	now := time.Now()

	c.SeenAt("a", now)
	c.SeenAt("b", now.Add(time.Second))
	c.SeenAt("c", now.Add(2*time.Second))

	if c.Size() != 2 {
		t.Fatalf("expected size 2 after eviction, got %d", c.Size())
	}
	// "a" was the oldest and should be gone: a re-check is not a dup.
	if c.SeenAt("a", now.Add(3*time.Second)) {
		t.Fatal("evicted key should not be a duplicate")
	}
}

func TestKey(t *testing.T) {
	cases := []struct {
		channel, id, want string
	}{
		{"twilio", "SM1", "twilio:SM1"},
		{"", "SM1", "SM1"},
		{"twilio", "", ""},
	}
	for _, tc := range cases {
		if got := Key(tc.channel, tc.id); got != tc.want {
			t.Errorf("Key(%q, %q) = %q, want %q", tc.channel, tc.id, got, tc.want)
		}
	}
}
