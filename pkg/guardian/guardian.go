// Package guardian decides whether a pull request may be merged automatically.
//
// Evaluate and Assess are pure: they never perform I/O and are safe for concurrent use.
// Runner is the orchestration step that fetches change sets and executes verdicts.
package guardian

import (
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/scoring"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// DefaultThreshold is the minimum confidence for auto-merge.
const DefaultThreshold = 70

// Confidence contributions.
const (
	ciBonus          = 40
	reviewBonus      = 40
	testsBonus       = 10
	singleScopeBonus = 10

	maxConfidence = 100
)

// Guardian maps change sets onto merge decisions. Build one with New.
type Guardian struct {
	threshold int
}

// New returns a Guardian with the given threshold. Out-of-range values are clamped to [0, 100].
func New(threshold int) *Guardian {
	return &Guardian{threshold: clamp(threshold)}
}

// Threshold returns the minimum confidence for auto-merge.
func (g *Guardian) Threshold() int {
	return g.threshold
}

// Assessment is the per-signal breakdown behind a confidence value.
type Assessment struct {
	Confidence     int
	SizePenalty    int
	CIPassed       bool
	ReviewApproved bool
	HasTests       bool
	SingleScope    bool
}

// Assess scores a change set. The blocker is not considered here.
func Assess(cs *types.ChangeSet) Assessment {
	a := Assessment{
		CIPassed:       cs.CIPassed,
		ReviewApproved: cs.ReviewApproved,
		HasTests:       scoring.HasTests(cs.ChangedPaths),
		SingleScope:    scoring.IsSingleScope(cs.ChangedPaths),
		SizePenalty:    scoring.SizePenalty(cs.Additions, cs.Deletions),
	}

	score := 0
	if a.CIPassed {
		score += ciBonus
	}
	if a.ReviewApproved {
		score += reviewBonus
	}
	if a.HasTests {
		score += testsBonus
	}
	if a.SingleScope {
		score += singleScopeBonus
	}
	a.Confidence = clamp(score - a.SizePenalty)
	return a
}

// Missing lists the signals that did not contribute, in scoring order.
func (a Assessment) Missing() []string {
	var missing []string
	if !a.CIPassed {
		missing = append(missing, "CI has not passed")
	}
	if !a.ReviewApproved {
		missing = append(missing, "no approving review")
	}
	if !a.HasTests {
		missing = append(missing, "no test changes")
	}
	if !a.SingleScope {
		missing = append(missing, "changes span multiple top-level directories")
	}
	if a.SizePenalty > 0 {
		missing = append(missing, "large change")
	}
	return missing
}

// Evaluate returns the decision for a change set. A blocker always wins.
func (g *Guardian) Evaluate(cs *types.ChangeSet) Decision {
	if cs.HasBlocker() {
		return Blocked{Reason: cs.Blocker}
	}
	return g.decide(Assess(cs))
}

func (g *Guardian) decide(a Assessment) Decision {
	threshold := clamp(g.threshold)
	if a.Confidence >= threshold {
		return AutoMerge{Confidence: a.Confidence}
	}
	return Escalate{Confidence: a.Confidence, Threshold: threshold}
}

func clamp(n int) int {
	return max(0, min(n, maxConfidence))
}
