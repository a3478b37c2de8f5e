package interview

import (
	"encoding/json"
	"fmt"
)

// State is a turn controller state.
type State int

const (
	StateInitializing State = iota
	StateAwaitingOfficerUtterance
	StateAwaitingCandidateResponse
	StateEvaluating
	StateTerminating
	StateTerminated
)

var stateNames = map[State]string{
	StateInitializing:              "initializing",
	StateAwaitingOfficerUtterance:  "awaiting-officer-utterance",
	StateAwaitingCandidateResponse: "awaiting-candidate-response",
	StateEvaluating:                "evaluating",
	StateTerminating:               "terminating",
	StateTerminated:                "terminated",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for k, v := range stateNames {
		if v == name {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", name)
}

// transitions lists the allowed successor states. Terminated has none.
var transitions = map[State][]State{
	StateInitializing:              {StateAwaitingOfficerUtterance, StateTerminating},
	StateAwaitingOfficerUtterance:  {StateAwaitingCandidateResponse, StateTerminating},
	StateAwaitingCandidateResponse: {StateEvaluating, StateTerminating},
	StateEvaluating:                {StateAwaitingOfficerUtterance, StateTerminating},
	StateTerminating:               {StateTerminated},
}

// CanTransition reports whether from -> to is a legal step.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Final reports whether the state is absorbing.
func (s State) Final() bool { return s == StateTerminated }
