package bucket

import (
	"errors"
	"fmt"
	"strings"
)

// #region code

// Code identifies a diagnostic bucket.
type Code string

const (
	OA  Code = "OA"  // degenerative
	OVR Code = "OVR" // overuse
	TRM Code = "TRM" // traumatic
	INF Code = "INF" // inflammatory
	STF Code = "STF" // stiffness
)

// All lists every known bucket in canonical order.
var All = []Code{OA, OVR, TRM, INF, STF}

// DefaultOrder is the bucket order used when a weight source omits one.
var DefaultOrder = []Code{OA, OVR, TRM, INF}

var ErrUnknownBucket = errors.New("unknown bucket")

// Parse upper-cases and trims s and returns the matching Code.
func Parse(s string) (Code, error) {
	c := Code(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range All {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBucket, s)
}

func (c Code) String() string { return string(c) }

// #endregion code

// #region category

// Category is a body region with its own weight table.
type Category string

const (
	Knee     Category = "knee"
	Shoulder Category = "shoulder"
	Back     Category = "back"
	Neck     Category = "neck"
	Ankle    Category = "ankle"
)

// Categories lists every supported body region.
var Categories = []Category{Knee, Shoulder, Back, Neck, Ankle}

var ErrUnknownCategory = errors.New("unknown category")

// ParseCategory validates a category identifier.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) String() string { return string(c) }

// #endregion category

// #region ranked-list

// RankedList is an ordering of buckets, each appearing at most once.
type RankedList []Code

// Position returns the 0-based index of c, or -1 when absent.
func (l RankedList) Position(c Code) int {
	for i, b := range l {
		if b == c {
			return i
		}
	}
	return -1
}

// Top returns the first bucket and whether the list is non-empty.
func (l RankedList) Top() (Code, bool) {
	if len(l) == 0 {
		return "", false
	}
	return l[0], true
}

// Strings converts the list for transport.
func (l RankedList) Strings() []string {
	out := make([]string, len(l))
	for i, b := range l {
		out[i] = string(b)
	}
	return out
}

// #endregion ranked-list
