package dispatcher

import "strings"

// Agent is an automated coding agent that can take an issue.
type Agent int

// Agents. Copilot is the primary agent and the only one with a native assignee.
const (
	Copilot Agent = iota
	Jules
)

// Agents lists every agent in selection order.
var Agents = []Agent{Copilot, Jules}

// Label returns the label that routes an issue to the agent.
func (a Agent) Label() string {
	switch a {
	case Copilot:
		return "copilot"
	case Jules:
		return "jules"
	default:
		return ""
	}
}

// Assignee returns the native assignee login, or "" when the agent is driven by labels only.
func (a Agent) Assignee() string {
	if a == Copilot {
		return "Copilot"
	}
	return ""
}

func (a Agent) String() string {
	switch a {
	case Copilot:
		return "Copilot"
	case Jules:
		return "Jules"
	default:
		return "unknown"
	}
}

// isAgentLabel reports whether label already routes an issue to some agent.
func isAgentLabel(label string) bool {
	for _, a := range Agents {
		if strings.EqualFold(label, a.Label()) {
			return true
		}
	}
	return false
}
