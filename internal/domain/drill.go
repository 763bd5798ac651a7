package domain

// DrillResult is the outcome of a single fault-injection drill.
type DrillResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Details string `json:"details"`
}

// SuiteResult is the persisted outcome of one validation suite run.
// Read-only to consumers; written atomically by the harness.
type SuiteResult struct {
	RunID      string        `json:"run_id"`
	StartedTs  int64         `json:"started_ts"`  // unix ms
	FinishedTs int64         `json:"finished_ts"` // unix ms
	Results    []DrillResult `json:"results"`
	AllPassed  bool          `json:"all_passed"`
}
