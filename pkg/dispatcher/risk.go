package dispatcher

import (
	"strings"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// Risk weights. Label weights stack per label; text weights apply at most once each.
const (
	riskSevereLabel = 30
	riskBugLabel    = 10
	riskSecureText  = 20
	riskChurnText   = 10

	maxRisk = 100
)

var (
	severeLabelWords = []string{"security", "breaking", "critical"}
	secureTextWords  = []string{"auth", "security", "crypto"}
	churnTextWords   = []string{"refactor", "migration"}
)

// AnalyzeRisk scores how sensitive an issue is, from 0 to 100.
func AnalyzeRisk(issue *types.Issue) int {
	risk := 0
	for _, label := range issue.Labels {
		l := strings.ToLower(label)
		if containsAny(l, severeLabelWords) {
			risk += riskSevereLabel
		}
		if strings.Contains(l, "bug") {
			risk += riskBugLabel
		}
	}

	text := strings.ToLower(issue.Title + " " + issue.Body)
	if containsAny(text, secureTextWords) {
		risk += riskSecureText
	}
	if containsAny(text, churnTextWords) {
		risk += riskChurnText
	}
	return min(risk, maxRisk)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
