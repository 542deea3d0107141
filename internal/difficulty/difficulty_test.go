package difficulty

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
)

func adj(step int) *assessment.Adjustment {
	a := assessment.Adjustment{}.WithDifficulty(step)
	return &a
}

func TestResolve(t *testing.T) {
	full := Prefix(High)

	tests := []struct {
		name string
		base Set
		pain int
		adj  *assessment.Adjustment
		want []Difficulty
	}{
		{"no restriction", full, 2, nil, []Difficulty{Low, Medium, High}},
		{"severe pain ignores adjustment", full, 8, adj(2), []Difficulty{Low}},
		{"severe pain boundary", full, 7, nil, []Difficulty{Low}},
		{"moderate pain drops high", full, 4, nil, []Difficulty{Low, Medium}},
		{"moderate pain on medium base", Prefix(Medium), 5, nil, []Difficulty{Low, Medium}},
		{"step down", full, 2, adj(-1), []Difficulty{Low, Medium}},
		{"pain then step down", full, 5, adj(-1), []Difficulty{Low}},
		{"step up clamps at high", Prefix(Medium), 0, adj(2), []Difficulty{Low, Medium, High}},
		{"step down clamps at low", Prefix(Low), 0, adj(-2), []Difficulty{Low}},
		{"pain then step up", full, 6, adj(1), []Difficulty{Low, Medium, High}},
		{"zero step", Prefix(Medium), 0, adj(0), []Difficulty{Low, Medium}},
		{"zero base treated as low", Set{}, 0, nil, []Difficulty{Low}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.base, tt.pain, tt.adj).Levels())
		})
	}
}

func TestResolve_SessionStepWithoutPain(t *testing.T) {
	// Full capability, no meaningful pain, step -1: ceiling drops from high.
	got := Resolve(Prefix(High), 2, adj(-1))
	assert.Equal(t, []Difficulty{Low, Medium}, got.Levels())
}

func TestExplain(t *testing.T) {
	r := Explain(Prefix(High), 5, adj(-2))
	assert.Equal(t, RestrictionModerate, r.Restriction)
	assert.Equal(t, -1, r.Shift)
	assert.Equal(t, []Difficulty{Low}, r.Set.Levels())

	r = Explain(Prefix(High), 9, adj(1))
	assert.Equal(t, RestrictionSevere, r.Restriction)
	assert.Equal(t, 0, r.Shift)
}

func TestLevelFromScore(t *testing.T) {
	cases := map[int]Level{16: LevelA, 14: LevelA, 13: LevelB, 11: LevelB, 10: LevelC, 8: LevelC, 7: LevelD, 4: LevelD}
	for score, want := range cases {
		got, err := LevelFromScore(score)
		require.NoError(t, err)
		assert.Equal(t, want, got, "score %d", score)
	}
	for _, bad := range []int{3, 17} {
		_, err := LevelFromScore(bad)
		assert.ErrorIs(t, err, ErrInvalidScore)
	}
}

func TestBaseSet(t *testing.T) {
	assert.Equal(t, []Difficulty{Low, Medium, High}, BaseSet(LevelA).Levels())
	assert.Equal(t, []Difficulty{Low, Medium, High}, BaseSet(LevelB).Levels())
	assert.Equal(t, []Difficulty{Low, Medium}, BaseSet(LevelC).Levels())
	assert.Equal(t, []Difficulty{Low}, BaseSet(LevelD).Levels())
}

func TestParseSet(t *testing.T) {
	s, err := ParseSet([]string{"low", " Medium "})
	require.NoError(t, err)
	assert.Equal(t, "{low,medium}", s.String())

	for _, bad := range [][]string{nil, {"medium"}, {"low", "high"}, {"low", "medium", "high", "extreme"}} {
		_, err := ParseSet(bad)
		assert.ErrorIs(t, err, ErrNotPrefix, "%v", bad)
	}
}

func TestSet_ContainsAndJSON(t *testing.T) {
	s := Prefix(Medium)
	assert.True(t, s.Contains(Low))
	assert.False(t, s.Contains(High))
	assert.False(t, Set{}.Contains(Low))

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `["low","medium"]`, string(raw))

	var back Set
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, s, back)
	assert.Error(t, json.Unmarshal([]byte(`["high"]`), &back))
}
