package gate

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/rehab-triage/internal/assessment"
	"github.com/danielpatrickdp/rehab-triage/internal/metrics"
)

// #region input
// Input is everything the gate looks at for one planning request.
type Input struct {
	RedFlags   []string
	Pain       int
	Controller assessment.Result
}

// #endregion input

// #region gate
// Gate decides whether exercise planning may proceed.
type Gate struct {
	config GateConfig
}

// NewGate creates a gate with the given configuration.
func NewGate(config GateConfig) *Gate {
	return &Gate{config: config}
}

// Evaluate checks hard vetoes first, then scores readiness.
func (g *Gate) Evaluate(in Input) GateDecision {
	d := g.evaluate(in)
	metrics.GateDecisions.WithLabelValues(d.Action).Inc()
	return d
}

func (g *Gate) evaluate(in Input) GateDecision {
	var vetoes []VetoSignal

	// --- Hard veto pass ---

	// 1. Red flags from intake
	flags := nonEmpty(in.RedFlags)
	if g.config.SkipOnRedFlag && len(flags) > 0 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoRedFlag,
			Reason: fmt.Sprintf("red flags present: %s", strings.Join(flags, ", ")),
		})
	}

	// 2. Pain outside the NRS scale
	if in.Pain < 0 || in.Pain > 10 {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoConstraint,
			Reason: fmt.Sprintf("pain %d outside 0-10", in.Pain),
		})
	}

	if len(vetoes) > 0 {
		return GateDecision{
			Action:      ActionSkip,
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
			SoftScore:   0,
		}
	}

	// --- Soft scoring ---
	softScore := computeReadiness(in)

	return GateDecision{
		Action:    ActionProceed,
		Reason:    fmt.Sprintf("passed gate: readiness=%.4f", softScore),
		Vetoed:    false,
		SoftScore: softScore,
	}
}

// #endregion gate

// #region helpers
func nonEmpty(flags []string) []string {
	var out []string
	for _, f := range flags {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// computeReadiness produces a 0-1 composite from pain, continuity and
// completion. Logged, never blocking.
func computeReadiness(in Input) float32 {
	var score float32

	// Pain component: lower pain is better (weight 0.5)
	score += 0.5 * (1 - float32(in.Pain)/10)

	// Continuity component (weight 0.3)
	switch in.Controller.Status {
	case assessment.StatusNormal:
		score += 0.3
	case assessment.StatusFreshStart:
		score += 0.2
	case assessment.StatusReset:
		score += 0.1
	}

	// Completion component (weight 0.2), neutral when unknown
	if in.Controller.CompletionRateAvg != nil {
		score += 0.2 * float32(*in.Controller.CompletionRateAvg)
	} else {
		score += 0.1
	}

	return score
}

// #endregion helpers
