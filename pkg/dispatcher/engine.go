// Package dispatcher routes open issues to automated coding agents.
//
// The Engine is pure apart from one atomic round-robin counter, so a single
// instance may be shared by any number of goroutines. Dispatcher wraps an
// Engine with the fetch and write-back steps against a source repository.
package dispatcher

import (
	"math/rand/v2"
	"sync/atomic"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// DefaultHighRiskThreshold is the risk score at which an issue counts as high risk.
const DefaultHighRiskThreshold = 70

// Assignment is the routing verdict for one issue.
type Assignment struct {
	Title     string
	Reason    string
	Issue     int
	Agent     Agent
	RiskScore int
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// CoinFlip returns true for Copilot under the Random strategy. Defaults to a fair coin.
	CoinFlip func() bool
	// HighRiskThreshold is recorded for callers but does not influence selection yet.
	HighRiskThreshold int
}

// Engine selects agents. The zero value is not usable; call NewEngine.
type Engine struct {
	coinFlip          func() bool
	next              atomic.Uint64
	highRiskThreshold int
}

// NewEngine creates an Engine with a fresh round-robin counter.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		coinFlip:          cfg.CoinFlip,
		highRiskThreshold: cfg.HighRiskThreshold,
	}
	if e.coinFlip == nil {
		e.coinFlip = func() bool { return rand.IntN(2) == 0 }
	}
	if e.highRiskThreshold <= 0 {
		e.highRiskThreshold = DefaultHighRiskThreshold
	}
	return e
}

// HighRiskThreshold returns the configured high-risk threshold.
func (e *Engine) HighRiskThreshold() int {
	return e.highRiskThreshold
}

// IsHighRisk reports whether a risk score meets the high-risk threshold.
func (e *Engine) IsHighRisk(risk int) bool {
	return risk >= e.highRiskThreshold
}

// SelectAgent picks an agent. risk is accepted for strategies that may
// branch on it; none of the current ones do.
//
// Under RoundRobin the Nth call over the engine's lifetime picks Copilot when N
// is even and Jules otherwise. Each concurrent caller observes a distinct N.
func (e *Engine) SelectAgent(s Strategy, risk int) Agent {
	_ = risk
	switch s {
	case RoundRobin:
		if (e.next.Add(1)-1)%2 == 0 {
			return Copilot
		}
		return Jules
	case Random:
		if e.coinFlip() {
			return Copilot
		}
		return Jules
	case JulesOnly:
		return Jules
	default:
		return Copilot
	}
}

// Assign scores the issue and picks its agent.
func (e *Engine) Assign(s Strategy, issue *types.Issue) Assignment {
	risk := AnalyzeRisk(issue)
	return Assignment{
		Issue:     issue.Number,
		Title:     issue.Title,
		Agent:     e.SelectAgent(s, risk),
		RiskScore: risk,
		Reason:    s.reason(),
	}
}
