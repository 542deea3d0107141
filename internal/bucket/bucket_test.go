package bucket

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Code
		ok   bool
	}{
		{"OA", OA, true},
		{"  trm  ", TRM, true},
		{"inf", INF, true},
		{"Stf", STF, true},
		{"", "", false},
		{"unknown", "", false},
		{"OA|TRM", "", false},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.ok && err != nil {
			t.Errorf("Parse(%q): unexpected error %v", tt.in, err)
			continue
		}
		if !tt.ok {
			if !errors.Is(err, ErrUnknownBucket) {
				t.Errorf("Parse(%q): expected ErrUnknownBucket, got %v", tt.in, err)
			}
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Knee ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != Knee {
		t.Fatalf("expected knee, got %s", c)
	}
	if _, err := ParseCategory("elbow"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestRankedListPosition(t *testing.T) {
	l := RankedList{TRM, OA, INF}
	if l.Position(OA) != 1 {
		t.Errorf("expected OA at 1, got %d", l.Position(OA))
	}
	if l.Position(OVR) != -1 {
		t.Errorf("expected -1 for absent bucket, got %d", l.Position(OVR))
	}
	top, ok := l.Top()
	if !ok || top != TRM {
		t.Errorf("expected top TRM, got %q (%v)", top, ok)
	}
	if _, ok := (RankedList{}).Top(); ok {
		t.Error("expected empty list to have no top")
	}
}
