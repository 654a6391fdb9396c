package domain

import "fmt"

// PoolState is the lifecycle state of a pool.
type PoolState uint8

// Discriminants match the persisted representation; do not reorder.
const (
	PoolActive PoolState = iota
	PoolPaused
	PoolCompleted
	PoolCancelled
	PoolDisbursed
	PoolClosed
)

var poolStateNames = [...]string{
	PoolActive:    "ACTIVE",
	PoolPaused:    "PAUSED",
	PoolCompleted: "COMPLETED",
	PoolCancelled: "CANCELLED",
	PoolDisbursed: "DISBURSED",
	PoolClosed:    "CLOSED",
}

// String returns the upper-case name of the state.
func (s PoolState) String() string {
	if int(s) < len(poolStateNames) {
		return poolStateNames[s]
	}
	return fmt.Sprintf("PoolState(%d)", uint8(s))
}

// IsValid reports whether s is one of the declared states.
func (s PoolState) IsValid() bool {
	return s <= PoolClosed
}

// ParsePoolState parses the upper-case name produced by String.
func ParsePoolState(name string) (PoolState, error) {
	for i, n := range poolStateNames {
		if n == name {
			return PoolState(i), nil
		}
	}
	return 0, fmt.Errorf("unknown pool state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s PoolState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PoolState) UnmarshalText(text []byte) error {
	parsed, err := ParsePoolState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TransitionPath names the operation asking for a state change.
type TransitionPath uint8

const (
	// ViaStateUpdate is the general update_pool_state operation.
	ViaStateUpdate TransitionPath = iota
	// ViaClose is the admin close_pool operation.
	ViaClose
)

// updatable is every target the general path may set. Closed is never one of them.
var updatable = []PoolState{PoolActive, PoolPaused, PoolCompleted, PoolCancelled, PoolDisbursed}

// poolTransitions lists, per source state, the targets each path may reach.
// Completed and Cancelled are frozen for the general path.
var poolTransitions = map[PoolState]map[TransitionPath][]PoolState{
	PoolActive:    {ViaStateUpdate: updatable},
	PoolPaused:    {ViaStateUpdate: updatable},
	PoolCompleted: {},
	PoolCancelled: {ViaClose: {PoolClosed}},
	PoolDisbursed: {ViaStateUpdate: updatable, ViaClose: {PoolClosed}},
	PoolClosed:    {ViaStateUpdate: updatable},
}

// CanTransition reports whether from -> to is allowed on the given path.
func CanTransition(from, to PoolState, via TransitionPath) bool {
	for _, allowed := range poolTransitions[from][via] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsFrozen reports whether the general update path can never leave s.
func (s PoolState) IsFrozen() bool {
	return len(poolTransitions[s][ViaStateUpdate]) == 0
}
