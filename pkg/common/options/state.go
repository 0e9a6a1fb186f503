package options

import "fmt"

// State is the desired state of the resources an operation manages.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// ParseState validates a state given on the command line.
func ParseState(s string) (State, error) {
	switch State(s) {
	case StatePresent, StateAbsent:
		return State(s), nil
	default:
		return "", fmt.Errorf("invalid state %q, expected %s or %s", s, StatePresent, StateAbsent)
	}
}

func (s *State) String() string {
	return string(*s)
}

func (s *State) Set(v string) error {
	parsed, err := ParseState(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s *State) Type() string {
	return "state"
}
