package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	VetoRedFlag    VetoType = "red_flag"
	VetoConstraint VetoType = "constraint_violation"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType `json:"type"`
	Reason string   `json:"reason"`
}

// #endregion veto-signal

// #region gate-config
// GateConfig holds the progression gate settings.
type GateConfig struct {
	SkipOnRedFlag bool // veto exercise planning when intake red flags are present
}

// DefaultGateConfig returns the gate defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		SkipOnRedFlag: true,
	}
}

// #endregion gate-config

// #region gate-decision
// Action values.
const (
	ActionProceed = "proceed"
	ActionSkip    = "skip"
)

// GateDecision is the output of the gate evaluation.
type GateDecision struct {
	Action      string       `json:"action"` // "proceed" | "skip"
	Reason      string       `json:"reason"`
	Vetoed      bool         `json:"vetoed"`
	VetoSignals []VetoSignal `json:"veto_signals,omitempty"` // non-empty if vetoed
	SoftScore   float32      `json:"readiness"`              // 0-1 readiness composite
}

// #endregion gate-decision
