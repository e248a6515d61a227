package dispatcher

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy is the policy used to pick an agent for a candidate issue.
type Strategy int

// Strategies.
const (
	RoundRobin Strategy = iota
	Random
	CopilotOnly
	JulesOnly
)

// ErrInvalidStrategy is matched by every InvalidStrategyError.
var ErrInvalidStrategy = errors.New("invalid strategy")

// InvalidStrategyError reports an unrecognized strategy name.
type InvalidStrategyError struct {
	Input string
}

func (e *InvalidStrategyError) Error() string {
	return fmt.Sprintf("invalid strategy: %q", e.Input)
}

// Is makes errors.Is(err, ErrInvalidStrategy) hold.
func (*InvalidStrategyError) Is(target error) bool {
	return target == ErrInvalidStrategy
}

// ParseStrategy parses a strategy name case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "round-robin", "roundrobin":
		return RoundRobin, nil
	case "random":
		return Random, nil
	case "copilot-only", "copilot":
		return CopilotOnly, nil
	case "jules-only", "jules":
		return JulesOnly, nil
	default:
		return 0, &InvalidStrategyError{Input: s}
	}
}

func (s Strategy) String() string {
	switch s {
	case RoundRobin:
		return "round-robin"
	case Random:
		return "random"
	case CopilotOnly:
		return "copilot-only"
	case JulesOnly:
		return "jules-only"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// reason is the human-readable explanation recorded on each assignment.
func (s Strategy) reason() string {
	switch s {
	case RoundRobin:
		return "Round-robin distribution"
	case Random:
		return "Random selection"
	case CopilotOnly:
		return "Copilot-only mode"
	case JulesOnly:
		return "Jules-only mode"
	default:
		return ""
	}
}

// Set implements pflag.Value so a Strategy can be bound directly to a flag.
func (s *Strategy) Set(v string) error {
	parsed, err := ParseStrategy(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Type implements pflag.Value.
func (*Strategy) Type() string { return "strategy" }
