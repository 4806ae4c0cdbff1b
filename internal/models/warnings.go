package models

import "time"

// WarningKind classifies history problems the engine tolerated.
type WarningKind string

const (
	WarningCycleUnparseable       WarningKind = "cycle_unparseable"
	WarningCycleEndBeforeStart    WarningKind = "cycle_end_before_start"
	WarningCycleOutOfOrder        WarningKind = "cycle_out_of_order"
	WarningCycleOverlap           WarningKind = "cycle_overlap"
	WarningCycleOpenNotLatest     WarningKind = "cycle_open_not_latest"
	WarningSymptomUnparseable     WarningKind = "symptom_unparseable"
	WarningSymptomUnknownCategory WarningKind = "symptom_unknown_category"
	WarningSymptomSeverityRange   WarningKind = "symptom_severity_range"
	WarningProfileOutOfRange      WarningKind = "profile_out_of_range"
)

// ValidationWarning describes an input record that was excluded from calculation.
type ValidationWarning struct {
	Kind    WarningKind `json:"kind"`
	Index   int         `json:"index"`
	Message string      `json:"message"`
}

// FallbackReason explains why an adaptive estimate was discarded.
type FallbackReason string

const (
	FallbackDelegateError        FallbackReason = "delegate_error"
	FallbackDelegateTimeout      FallbackReason = "delegate_timeout"
	FallbackDelegateDisagreement FallbackReason = "delegate_disagreement"
	FallbackDelegateInvalid      FallbackReason = "delegate_invalid"
)

// StrategyFallback records a non-fatal switch from adaptive to rule-based.
type StrategyFallback struct {
	Reason        FallbackReason `json:"reason"`
	DelegateStart time.Time      `json:"delegate_start,omitempty"`
	RuleStart     time.Time      `json:"rule_start"`
	Detail        string         `json:"detail,omitempty"`
}
