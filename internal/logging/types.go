package logging

import "time"

// #region stage
// Stage names the engine component that made a decision.
type Stage string

const (
	StageSanitize   Stage = "sanitize"
	StageDiagnose   Stage = "diagnose"
	StageController Stage = "controller"
	StageResolver   Stage = "resolver"
	StageGate       Stage = "gate"
)

// #endregion stage

// #region decision-entry
// DecisionEntry is a single row in the provenance_log table.
type DecisionEntry struct {
	ID          string // uuid; generated when empty
	RequestID   string
	PatientID   string
	Stage       Stage
	Decision    string // e.g. "normal", "skip", "OA"
	Reason      string
	PayloadJSON string
	CreatedAt   time.Time
}

// #endregion decision-entry
