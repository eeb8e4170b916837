package models

import "time"

// Tunable parameter names accepted by governance.
const (
	ParamLambda        = "lambda"
	ParamDF            = "df"
	ParamSigmaCapDaily = "sigma_cap_daily"
)

// TuningHistoryEntry is one applied parameter change. The ledger of these
// entries, plus wall-clock time, fully determines governance eligibility.
type TuningHistoryEntry struct {
	Asset     string    `json:"asset"`
	Parameter string    `json:"parameter"`
	OldValue  float64   `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

// GovernancePhase is the derived state of one (asset, parameter) pair.
type GovernancePhase string

const (
	PhaseIneligible GovernancePhase = "ineligible"
	PhaseEligible   GovernancePhase = "eligible"
	PhaseProposed   GovernancePhase = "proposed"
	PhaseObserving  GovernancePhase = "observing"
)

// GovernanceStatus reports the phase of a pair with supporting detail.
type GovernanceStatus struct {
	Asset     string          `json:"asset"`
	Parameter string          `json:"parameter"`
	Phase     GovernancePhase `json:"phase"`
	Reason    string          `json:"reason,omitempty"`
	Until     *time.Time      `json:"until,omitempty"` // end of observation, when observing
}

// TuningSuggestion is a diagnostics-driven hint; it never applies itself.
type TuningSuggestion struct {
	Asset     string  `json:"asset"`
	Parameter string  `json:"parameter"`
	Direction string  `json:"direction"` // "up" or "down"
	Change    float64 `json:"change"`
	Reason    string  `json:"reason"`
	Note      string  `json:"note,omitempty"`
}
