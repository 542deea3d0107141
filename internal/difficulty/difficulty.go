// Package difficulty resolves the allowed exercise-difficulty range from
// capability, pain and the session controller's adjustment.
package difficulty

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
)

// #region scale

type Difficulty string

const (
	Low    Difficulty = "low"
	Medium Difficulty = "medium"
	High   Difficulty = "high"
)

// Scale is the ordered difficulty scale.
var Scale = []Difficulty{Low, Medium, High}

// Set is a contiguous prefix of Scale. The zero value is empty; build one
// with Prefix.
type Set struct {
	ceiling int // index into Scale, -1 when empty
	valid   bool
}

// Prefix returns Scale[:ceiling+1]. The ceiling is clamped to the scale.
func Prefix(ceiling Difficulty) Set {
	return prefixAt(indexOf(ceiling))
}

func prefixAt(i int) Set {
	if i < 0 {
		i = 0
	}
	if i > len(Scale)-1 {
		i = len(Scale) - 1
	}
	return Set{ceiling: i, valid: true}
}

var ErrNotPrefix = errors.New("difficulty set must be a non-empty prefix of low,medium,high")

// ParseSet accepts a list such as ["low","medium"] and rejects gaps.
func ParseSet(levels []string) (Set, error) {
	if len(levels) == 0 || len(levels) > len(Scale) {
		return Set{}, fmt.Errorf("%w: %v", ErrNotPrefix, levels)
	}
	for i, l := range levels {
		if Difficulty(strings.ToLower(strings.TrimSpace(l))) != Scale[i] {
			return Set{}, fmt.Errorf("%w: %v", ErrNotPrefix, levels)
		}
	}
	return prefixAt(len(levels) - 1), nil
}

func indexOf(d Difficulty) int {
	for i, s := range Scale {
		if s == d {
			return i
		}
	}
	return 0
}

// Ceiling is the highest allowed difficulty.
func (s Set) Ceiling() (Difficulty, bool) {
	if !s.valid {
		return "", false
	}
	return Scale[s.ceiling], true
}

func (s Set) Levels() []Difficulty {
	if !s.valid {
		return nil
	}
	return append([]Difficulty(nil), Scale[:s.ceiling+1]...)
}

func (s Set) Contains(d Difficulty) bool {
	if !s.valid {
		return false
	}
	for _, l := range Scale[:s.ceiling+1] {
		if l == d {
			return true
		}
	}
	return false
}

func (s Set) Strings() []string {
	levels := s.Levels()
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}

func (s Set) String() string {
	return "{" + strings.Join(s.Strings(), ",") + "}"
}

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

// UnmarshalJSON accepts a level list; an empty list decodes to the zero Set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var levels []string
	if err := json.Unmarshal(data, &levels); err != nil {
		return err
	}
	if len(levels) == 0 {
		*s = Set{}
		return nil
	}
	parsed, err := ParseSet(levels)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// #endregion scale

// #region capability

// Level is the capability tier derived from the 4-question intake score.
type Level string

const (
	LevelA Level = "A"
	LevelB Level = "B"
	LevelC Level = "C"
	LevelD Level = "D"
)

var ErrInvalidScore = errors.New("capability score must be within 4-16")

// LevelFromScore maps a 4-16 intake score to a tier.
func LevelFromScore(score int) (Level, error) {
	switch {
	case score < 4 || score > 16:
		return "", fmt.Errorf("%w: got %d", ErrInvalidScore, score)
	case score >= 14:
		return LevelA, nil
	case score >= 11:
		return LevelB, nil
	case score >= 8:
		return LevelC, nil
	default:
		return LevelD, nil
	}
}

// BaseSet seeds the allowed range for a tier.
func BaseSet(level Level) Set {
	switch level {
	case LevelA, LevelB:
		return Prefix(High)
	case LevelC:
		return Prefix(Medium)
	default:
		return Prefix(Low)
	}
}

// #endregion capability

// #region resolve

// Pain thresholds on the 0-10 scale.
const (
	SeverePain   = 7
	ModeratePain = 4
)

type Restriction string

const (
	RestrictionNone     Restriction = "none"
	RestrictionModerate Restriction = "pain_moderate"
	RestrictionSevere   Restriction = "pain_severe"
)

// Resolution explains how the final set was reached.
type Resolution struct {
	Set         Set         `json:"allowed"`
	Restriction Restriction `json:"restriction"`
	Shift       int         `json:"shift"`
}

// Resolve applies the pain restriction, then shifts the ceiling by the
// adjustment's difficulty step. Severe pain always yields {low}.
func Resolve(base Set, pain int, adj *assessment.Adjustment) Set {
	return Explain(base, pain, adj).Set
}

func Explain(base Set, pain int, adj *assessment.Adjustment) Resolution {
	if !base.valid {
		base = Prefix(Low)
	}

	// 1. Severe pain short-circuits
	if pain >= SeverePain {
		return Resolution{Set: Prefix(Low), Restriction: RestrictionSevere}
	}

	// 2. Moderate pain drops high
	set := base
	restriction := RestrictionNone
	if pain >= ModeratePain {
		restriction = RestrictionModerate
		if set.ceiling == indexOf(High) {
			set = Prefix(Medium)
		}
	}

	// 3. Session shift
	if adj == nil || adj.Difficulty == 0 {
		return Resolution{Set: set, Restriction: restriction}
	}
	shifted := prefixAt(set.ceiling + adj.Difficulty)
	return Resolution{Set: shifted, Restriction: restriction, Shift: shifted.ceiling - set.ceiling}
}

// #endregion resolve
