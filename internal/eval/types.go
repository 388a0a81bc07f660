package eval

// #region eval-config
// EvalConfig holds the tolerances for post-session validation.
type EvalConfig struct {
	BudgetTolerance float64 // spend may exceed the cap by at most this much
}

// DefaultEvalConfig returns the standard tolerances.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		BudgetTolerance: 1e-9,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-session validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
