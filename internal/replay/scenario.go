// Package replay drives the ledger engine through a scripted scenario on a
// controlled clock and reports the outcome of every step.
package replay

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidOrdering is returned when a step would move the clock backwards.
var ErrInvalidOrdering = errors.New("steps are not in time order")

// ErrInvalidScenario is returned for structurally broken scenarios.
var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario is a scripted sequence of ledger operations.
type Scenario struct {
	Name  string `yaml:"name"`
	Start uint64 `yaml:"start"` // clock value before the first step
	Mint  []Mint `yaml:"mint"`
	Steps []Step `yaml:"steps"`
}

// Mint credits an account before the first step.
type Mint struct {
	Asset  string `yaml:"asset"`
	To     string `yaml:"to"`
	Amount string `yaml:"amount"`
}

// Step is one operation call.
//
// At sets the clock to an absolute time; Advance moves it forward. When both
// are set At is applied first. Expect is OK (or empty) for success, otherwise
// the rejection code the call must return.
type Step struct {
	At      uint64            `yaml:"at,omitempty"`
	Advance uint64            `yaml:"advance,omitempty"`
	Op      string            `yaml:"op"`
	Caller  string            `yaml:"caller,omitempty"`
	Args    map[string]string `yaml:"args,omitempty"`
	Expect  string            `yaml:"expect,omitempty"`
}

// LoadFile reads and validates a scenario file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that every op is known and the clock never goes backwards.
func (sc *Scenario) Validate() error {
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}
	for i, m := range sc.Mint {
		if m.Asset == "" || m.To == "" || m.Amount == "" {
			return fmt.Errorf("%w: mint %d needs asset, to and amount", ErrInvalidScenario, i)
		}
	}

	now := sc.Start
	for i, st := range sc.Steps {
		if _, ok := operations[st.Op]; !ok {
			return fmt.Errorf("%w: step %d: unknown op %q", ErrInvalidScenario, i, st.Op)
		}
		if st.At != 0 {
			if st.At < now {
				return fmt.Errorf("%w: step %d at %d, clock already at %d", ErrInvalidOrdering, i, st.At, now)
			}
			now = st.At
		}
		now += st.Advance
	}
	return nil
}
