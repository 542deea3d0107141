package eval

// #region eval-config
// EvalConfig holds thresholds for score validation.
type EvalConfig struct {
	PercentTolerance float64 // allowed deviation of the percentage sum from 100
	MinTopMargin     float64 // informational: percentage points between first and second bucket
}

// DefaultEvalConfig returns the validation defaults.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		PercentTolerance: 0.1,
		MinTopMargin:     5.0,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of score validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// Metric returns the named metric.
func (r EvalResult) Metric(name string) (EvalMetric, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return EvalMetric{}, false
}

// #endregion eval-result
