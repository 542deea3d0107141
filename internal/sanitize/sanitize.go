// Package sanitize turns untrusted bucket labels into one canonical code.
package sanitize

import (
	"strings"

	"github.com/danielpatrickdp/rehab-triage/internal/bucket"
	"github.com/danielpatrickdp/rehab-triage/internal/logging"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
)

// #region types

// Branch names the input shape that decided the outcome.
type Branch string

const (
	BranchEmpty  Branch = "empty"
	BranchMulti  Branch = "multi"
	BranchSingle Branch = "single"
)

// Outcome is the sanitized bucket plus how it was reached.
// Matched is false when the default bucket was substituted.
type Outcome struct {
	Bucket  bucket.Code `json:"bucket"`
	Branch  Branch      `json:"branch"`
	Matched bool        `json:"matched"`
}

type Config struct {
	Valid   []bucket.Code
	Default bucket.Code
}

func DefaultConfig() Config {
	return Config{
		Valid:   append([]bucket.Code(nil), bucket.All...),
		Default: bucket.OA,
	}
}

// #endregion types

// #region sanitizer

type Sanitizer struct {
	valid map[bucket.Code]bool
	def   bucket.Code
	log   *logging.Logger
}

func New(cfg Config, log *logging.Logger) *Sanitizer {
	if len(cfg.Valid) == 0 {
		cfg.Valid = bucket.All
	}
	if cfg.Default == "" {
		cfg.Default = bucket.OA
	}
	valid := make(map[bucket.Code]bool, len(cfg.Valid))
	for _, c := range cfg.Valid {
		valid[c] = true
	}
	return &Sanitizer{valid: valid, def: cfg.Default, log: logging.OrNop(log)}
}

func (s *Sanitizer) Default() bucket.Code { return s.def }

// Sanitize never fails: anything unusable degrades to the default bucket.
func (s *Sanitizer) Sanitize(raw string) Outcome {
	out := s.classify(raw)
	metrics.SanitizerBranch.WithLabelValues(string(out.Branch), metrics.BoolLabel(out.Matched)).Inc()
	if out.Matched {
		s.log.Debug("bucket label accepted", "raw", raw, "branch", string(out.Branch), "bucket", out.Bucket)
	} else {
		s.log.Warn("bucket label fell back to default", "raw", raw, "branch", string(out.Branch), "bucket", out.Bucket)
	}
	return out
}

func (s *Sanitizer) classify(raw string) Outcome {
	if strings.TrimSpace(raw) == "" {
		return Outcome{Bucket: s.def, Branch: BranchEmpty}
	}

	sep := ""
	switch {
	case strings.Contains(raw, "|"):
		sep = "|"
	case strings.Contains(raw, ","):
		sep = ","
	}
	if sep != "" {
		for _, part := range strings.Split(raw, sep) {
			if c, ok := s.lookup(part); ok {
				return Outcome{Bucket: c, Branch: BranchMulti, Matched: true}
			}
		}
		return Outcome{Bucket: s.def, Branch: BranchMulti}
	}

	if c, ok := s.lookup(raw); ok {
		return Outcome{Bucket: c, Branch: BranchSingle, Matched: true}
	}
	return Outcome{Bucket: s.def, Branch: BranchSingle}
}

func (s *Sanitizer) lookup(candidate string) (bucket.Code, bool) {
	c := bucket.Code(strings.ToUpper(strings.TrimSpace(candidate)))
	return c, s.valid[c]
}

// #endregion sanitizer
