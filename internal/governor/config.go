package governor

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/relax"
)

// #region busy-policy
// BusyPolicy decides what a call does while another call holds the session.
type BusyPolicy string

const (
	// BusyQueue waits for the session, honoring the caller's context.
	BusyQueue BusyPolicy = "queue"
	// BusyFail returns ErrSessionBusy immediately.
	BusyFail BusyPolicy = "fail"
)

// #endregion busy-policy

// #region config
// Config holds session policy. Thresholds are the base values at unit
// thermodynamic cost; costs are copied into the session at quote time.
type Config struct {
	GreenThreshold float64 `koanf:"green_threshold"`
	RedThreshold   float64 `koanf:"red_threshold"`
	RevisionRounds int     `koanf:"revision_rounds"`

	GreenCost      float64 `koanf:"green_cost"`
	BridgeCost     float64 `koanf:"bridge_cost"`
	FullBridgeCost float64 `koanf:"full_bridge_cost"`
	MaxLiability   float64 `koanf:"max_liability"` // 0 means uncapped

	MicroMinStruts int  `koanf:"micro_min_struts"`
	FullMinStruts  int  `koanf:"full_min_struts"`
	MaxStruts      int  `koanf:"max_struts"`
	RequireRescore bool `koanf:"require_rescore"`

	ReturnLambda     float64 `koanf:"return_lambda"`
	DriftGain        float64 `koanf:"drift_gain"`
	HysteresisBound  float64 `koanf:"hysteresis_bound"`
	DissonanceWeight float64 `koanf:"dissonance_weight"`

	ResolveTimeout  time.Duration `koanf:"resolve_timeout"`
	AuditorTimeout  time.Duration `koanf:"auditor_timeout"`
	ArtifactTimeout time.Duration `koanf:"artifact_timeout"`

	BusyPolicy BusyPolicy `koanf:"busy_policy"`
}

// DefaultConfig returns the standard session policy.
func DefaultConfig() Config {
	rc := relax.DefaultConfig()
	return Config{
		GreenThreshold: 0.10,
		RedThreshold:   0.30,
		RevisionRounds: 1,

		GreenCost:      1,
		BridgeCost:     3,
		FullBridgeCost: 8,

		MicroMinStruts: 1,
		FullMinStruts:  3,
		MaxStruts:      7,
		RequireRescore: true,

		ReturnLambda:    rc.Lambda,
		DriftGain:       rc.Gain,
		HysteresisBound: rc.HysteresisBound,

		ResolveTimeout:  5 * time.Second,
		AuditorTimeout:  5 * time.Second,
		ArtifactTimeout: 30 * time.Second,

		BusyPolicy: BusyQueue,
	}
}

// Validate rejects inconsistent policy.
func (c Config) Validate() error {
	switch {
	case c.GreenThreshold <= 0 || c.RedThreshold <= 0:
		return fmt.Errorf("thresholds must be positive")
	case c.GreenThreshold > c.RedThreshold:
		return fmt.Errorf("green_threshold %.4f exceeds red_threshold %.4f", c.GreenThreshold, c.RedThreshold)
	case c.RevisionRounds < 0:
		return fmt.Errorf("revision_rounds must be >= 0")
	case c.GreenCost < 0 || c.BridgeCost < 0 || c.FullBridgeCost < 0 || c.MaxLiability < 0:
		return fmt.Errorf("costs must be >= 0")
	case c.MicroMinStruts < 1 || c.FullMinStruts < 1:
		return fmt.Errorf("minimum struts must be >= 1")
	case c.MaxStruts < c.FullMinStruts || c.MaxStruts < c.MicroMinStruts:
		return fmt.Errorf("max_struts %d below a minimum", c.MaxStruts)
	case !(c.ReturnLambda > 0 && c.ReturnLambda <= 1):
		return fmt.Errorf("return_lambda %.4f out of (0, 1]", c.ReturnLambda)
	case c.DriftGain < 0 || c.DriftGain > 1:
		return fmt.Errorf("drift_gain %.4f out of [0, 1]", c.DriftGain)
	case c.HysteresisBound < 0 || c.DissonanceWeight < 0:
		return fmt.Errorf("hysteresis_bound and dissonance_weight must be >= 0")
	case c.ResolveTimeout <= 0 || c.AuditorTimeout <= 0 || c.ArtifactTimeout <= 0:
		return fmt.Errorf("timeouts must be positive")
	}
	switch c.BusyPolicy {
	case BusyQueue, BusyFail:
	default:
		return fmt.Errorf("busy_policy %q: want queue or fail", c.BusyPolicy)
	}
	return nil
}

// redRounds is the revision allowance in Red: one, unless revisions are disabled.
func (c Config) redRounds() int {
	if c.RevisionRounds < 1 {
		return c.RevisionRounds
	}
	return 1
}

// #endregion config
