package sanitize

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
)

func TestSanitize(t *testing.T) {
	s := New(DefaultConfig(), nil)

	tests := []struct {
		raw     string
		want    bucket.Code
		branch  Branch
		matched bool
	}{
		{"TRM|OA|OVR", bucket.TRM, BranchMulti, true},
		{"unknown", bucket.OA, BranchSingle, false},
		{"", bucket.OA, BranchEmpty, false},
		{"   ", bucket.OA, BranchEmpty, false},
		{"  trm  ", bucket.TRM, BranchSingle, true},
		{"xx, inf , OA", bucket.INF, BranchMulti, true},
		{"foo|bar", bucket.OA, BranchMulti, false},
		{"stf", bucket.STF, BranchSingle, true},
		// "|" wins over "," when both are present.
		{"OVR,TRM|INF", bucket.INF, BranchMulti, true},
	}
	for _, tt := range tests {
		got := s.Sanitize(tt.raw)
		assert.Equal(t, Outcome{Bucket: tt.want, Branch: tt.branch, Matched: tt.matched}, got, "raw %q", tt.raw)
	}
}

func TestSanitize_RestrictedValidSet(t *testing.T) {
	s := New(Config{Valid: []bucket.Code{bucket.OA, bucket.OVR}, Default: bucket.OVR}, nil)

	assert.Equal(t, bucket.OVR, s.Sanitize("TRM").Bucket)
	assert.Equal(t, bucket.OA, s.Sanitize("TRM|oa").Bucket)
	assert.Equal(t, bucket.OVR, s.Default())
}

func TestSanitize_ZeroConfigUsesDefaults(t *testing.T) {
	s := New(Config{}, nil)
	assert.Equal(t, bucket.OA, s.Default())
	assert.Equal(t, bucket.STF, s.Sanitize("STF").Bucket)
}

func TestSanitize_EmitsCounterPerBranch(t *testing.T) {
	s := New(DefaultConfig(), nil)
	c := metrics.SanitizerBranch.WithLabelValues("empty", "false")
	before := testutil.ToFloat64(c)

	s.Sanitize("")
	s.Sanitize("")

	assert.Equal(t, before+2, testutil.ToFloat64(c))
}

func TestSanitize_LogsFallbackAtWarn(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := New(DefaultConfig(), logging.FromZap(zap.New(core)))

	s.Sanitize("bogus")
	s.Sanitize("OA")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "single", entries[0].ContextMap()["branch"])
		assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	}
}
