package workflow

// State is a step of the session lifecycle.
type State int

const (
	Idle State = iota
	AwaitingURL
	Cloning
	Validating
	StagingHelper
	RunningHelper
	Discovering
	AwaitingConfirmation
	Translating
	Publishing
	Done
	// Failed is the terminal state after an unrecoverable error.
	Failed
)

var stateNames = [...]string{
	Idle:                 "idle",
	AwaitingURL:          "awaiting-url",
	Cloning:              "cloning",
	Validating:           "validating",
	StagingHelper:        "staging-helper",
	RunningHelper:        "running-helper",
	Discovering:          "discovering",
	AwaitingConfirmation: "awaiting-confirmation",
	Translating:          "translating",
	Publishing:           "publishing",
	Done:                 "done",
	Failed:               "error",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Busy reports whether a run is executing and no event can be accepted.
func (s State) Busy() bool {
	switch s {
	case Idle, AwaitingConfirmation, Done, Failed:
		return false
	default:
		return true
	}
}
