package checkout

import "fmt"

// State is a step of the checkout state machine.
type State int

const (
	Idle State = iota
	OrderIntentRequested
	IntentCreated
	FallbackIntent
	GatewayOpened
	VerificationRequested
	Confirmed
	VerificationFailed
)

var stateNames = [...]string{
	Idle:                  "Idle",
	OrderIntentRequested:  "OrderIntentRequested",
	IntentCreated:         "IntentCreated",
	FallbackIntent:        "FallbackIntent",
	GatewayOpened:         "GatewayOpened",
	VerificationRequested: "VerificationRequested",
	Confirmed:             "Confirmed",
	VerificationFailed:    "VerificationFailed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsTerminal reports whether the flow has finished and can only be reset.
func (s State) IsTerminal() bool {
	return s == Confirmed || s == VerificationFailed
}

// Accepting reports whether a new checkout may be submitted from s.
func (s State) Accepting() bool {
	return s == Idle || s.IsTerminal()
}
