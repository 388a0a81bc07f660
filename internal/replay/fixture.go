package replay

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/governor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/verifier"
)

// #region fixture-types

// Fixture is a YAML suite of scripted sessions.
type Fixture struct {
	Description string            `yaml:"description"`
	Scenarios   []FixtureScenario `yaml:"scenarios"`
}

// FixtureScenario is one session: handshake terms, policy overrides and the
// candidates submitted in order.
type FixtureScenario struct {
	Name       string             `yaml:"name"`
	Constraint string             `yaml:"constraint"`
	Bid        float64            `yaml:"bid"`
	Cost       float64            `yaml:"cost"`
	Assessment string             `yaml:"assessment"`
	Config     FixtureConfig      `yaml:"config"`
	Steps      []FixtureStep      `yaml:"steps"`
	Expect     FixtureExpectFinal `yaml:"expect"`
}

// FixtureStep submits one candidate. Score and Residual pin the auditor's
// answer for the payload and the artifact restatement.
type FixtureStep struct {
	Sequence    uint64             `yaml:"sequence"`
	Predecessor uint64             `yaml:"predecessor"`
	Payload     string             `yaml:"payload"`
	Score       *float64           `yaml:"score"`
	Residual    *float64           `yaml:"residual"`
	Artifact    *verifier.Artifact `yaml:"artifact"`
	Expect      FixtureExpectStep  `yaml:"expect"`
}

// FixtureExpectStep is the expected decision for a step. Reason matches the
// FIN reason or the rejection reason of a nack.
type FixtureExpectStep struct {
	Action string `yaml:"action"`
	Zone   string `yaml:"zone"`
	Reason string `yaml:"reason"`
}

// FixtureExpectFinal is the expected end state of the session.
type FixtureExpectFinal struct {
	State     string   `yaml:"state"`
	LedgerLen *int     `yaml:"ledger_len"`
	Remaining *float64 `yaml:"remaining"`
}

// FixtureConfig overrides fields of governor.Config; nil keeps the default.
type FixtureConfig struct {
	GreenThreshold   *float64 `yaml:"green_threshold"`
	RedThreshold     *float64 `yaml:"red_threshold"`
	RevisionRounds   *int     `yaml:"revision_rounds"`
	GreenCost        *float64 `yaml:"green_cost"`
	BridgeCost       *float64 `yaml:"bridge_cost"`
	FullBridgeCost   *float64 `yaml:"full_bridge_cost"`
	MaxLiability     *float64 `yaml:"max_liability"`
	RequireRescore   *bool    `yaml:"require_rescore"`
	DissonanceWeight *float64 `yaml:"dissonance_weight"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return f, nil
}

// ParseFixture decodes a YAML fixture. Unknown fields are rejected.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict()); err != nil {
		return nil, err
	}
	for i, sc := range f.Scenarios {
		if sc.Name == "" {
			return nil, fmt.Errorf("scenario %d: missing name", i)
		}
		if len(sc.Steps) == 0 {
			return nil, fmt.Errorf("scenario %s: no steps", sc.Name)
		}
	}
	return &f, nil
}

// Apply overlays the overrides on base.
func (fc FixtureConfig) Apply(base governor.Config) governor.Config {
	if fc.GreenThreshold != nil {
		base.GreenThreshold = *fc.GreenThreshold
	}
	if fc.RedThreshold != nil {
		base.RedThreshold = *fc.RedThreshold
	}
	if fc.RevisionRounds != nil {
		base.RevisionRounds = *fc.RevisionRounds
	}
	if fc.GreenCost != nil {
		base.GreenCost = *fc.GreenCost
	}
	if fc.BridgeCost != nil {
		base.BridgeCost = *fc.BridgeCost
	}
	if fc.FullBridgeCost != nil {
		base.FullBridgeCost = *fc.FullBridgeCost
	}
	if fc.MaxLiability != nil {
		base.MaxLiability = *fc.MaxLiability
	}
	if fc.RequireRescore != nil {
		base.RequireRescore = *fc.RequireRescore
	}
	if fc.DissonanceWeight != nil {
		base.DissonanceWeight = *fc.DissonanceWeight
	}
	return base
}

// #endregion fixture-loader
