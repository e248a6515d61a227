package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/dispatcher"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/guardian"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/history"
	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

var (
	colorRed    = lipgloss.Color("#ff5555")
	colorGreen  = lipgloss.Color("#50fa7b")
	colorYellow = lipgloss.Color("#f1fa8c")
	colorBlue   = lipgloss.Color("#8be9fd")
	colorDim    = lipgloss.Color("#6272a4")
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	numberStyle = lipgloss.NewStyle().Foreground(colorBlue).Width(6)
	dimStyle    = lipgloss.NewStyle().Foreground(colorDim)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle   = lipgloss.NewStyle().Foreground(colorYellow)
	errStyle    = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	agentStyle  = lipgloss.NewStyle().Bold(true).Width(8)
)

func kindStyle(k guardian.Kind) lipgloss.Style {
	switch k {
	case guardian.KindAutoMerge:
		return okStyle
	case guardian.KindEscalate:
		return warnStyle
	default:
		return errStyle
	}
}

func renderAssignments(w io.Writer, results []dispatcher.Result, dryRun bool) {
	if len(results) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No issues to dispatch."))
		return
	}

	title := "Assignments"
	if dryRun {
		title += " (dry run)"
	}
	fmt.Fprintln(w, headerStyle.Render(title))
	for _, r := range results {
		status := okStyle.Render("ok")
		switch {
		case r.Err != nil:
			status = errStyle.Render("failed: " + r.Err.Error())
		case !r.Applied:
			status = dimStyle.Render("not applied")
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			numberStyle.Render(fmt.Sprintf("#%d", r.Issue)),
			agentStyle.Render(r.Agent.Label()),
			r.Title,
			dimStyle.Render(fmt.Sprintf("[%s, risk %d]", r.Reason, r.RiskScore)))
		fmt.Fprintf(w, "       %s\n", status)
	}
}

func renderOutcomes(w io.Writer, outcomes []guardian.Outcome) {
	if len(outcomes) == 0 {
		return
	}
	fmt.Fprintln(w, headerStyle.Render("Guardian decisions"))
	for _, out := range outcomes {
		pr := numberStyle.Render(fmt.Sprintf("#%d", out.PR))
		if out.Decision == nil {
			fmt.Fprintf(w, "%s %s\n", pr, errStyle.Render("error: "+errText(out.Err)))
			continue
		}
		line := fmt.Sprintf("%s %s", pr, kindStyle(out.Decision.Kind()).Render(out.Decision.String()))
		if out.Action != "" {
			line += " " + dimStyle.Render("("+out.Action+")")
		}
		fmt.Fprintln(w, line)
		if out.Err != nil {
			fmt.Fprintf(w, "       %s\n", errStyle.Render(out.Err.Error()))
		}
	}
}

// renderLocalDecision prints the verdict and the signal breakdown for a local diff.
func renderLocalDecision(w io.Writer, d guardian.Decision, a guardian.Assessment, cs *types.ChangeSet) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render("Decision:"), kindStyle(d.Kind()).Render(d.String()))
	fmt.Fprintf(w, "%d files, +%d -%d\n", len(cs.ChangedPaths), cs.Additions, cs.Deletions)
	fmt.Fprintf(w, "  %s CI passed\n", check(a.CIPassed))
	fmt.Fprintf(w, "  %s approved\n", check(a.ReviewApproved))
	fmt.Fprintf(w, "  %s tests changed\n", check(a.HasTests))
	fmt.Fprintf(w, "  %s single scope\n", check(a.SingleScope))
	if a.SizePenalty > 0 {
		fmt.Fprintf(w, "  %s size penalty %d\n", warnStyle.Render("-"), a.SizePenalty)
	}
	fmt.Fprintf(w, "Confidence: %d\n", a.Confidence)
}

func renderHistory(w io.Writer, assignments []history.AssignmentRecord, decisions []history.DecisionRecord) {
	fmt.Fprintln(w, headerStyle.Render("Recent assignments"))
	if len(assignments) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none"))
	}
	for _, r := range assignments {
		status := okStyle.Render("applied")
		if r.Error != "" {
			status = errStyle.Render(r.Error)
		} else if !r.Applied {
			status = dimStyle.Render("not applied")
		}
		fmt.Fprintf(w, "%s %s %s %s %s\n",
			dimStyle.Render(r.CreatedAt.Local().Format("2006-01-02 15:04")),
			numberStyle.Render(fmt.Sprintf("#%d", r.Issue)),
			agentStyle.Render(r.Agent),
			r.Title,
			status)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("Recent decisions"))
	if len(decisions) == 0 {
		fmt.Fprintln(w, dimStyle.Render("  none"))
	}
	for _, r := range decisions {
		detail := r.Action
		if r.Confidence >= 0 {
			detail = strings.TrimSpace(fmt.Sprintf("confidence %d %s", r.Confidence, detail))
		}
		if r.Reason != "" {
			detail = r.Reason
		}
		fmt.Fprintf(w, "%s %s %s %s\n",
			dimStyle.Render(r.CreatedAt.Local().Format("2006-01-02 15:04")),
			numberStyle.Render(fmt.Sprintf("#%d", r.PR)),
			kindStyle(guardian.Kind(r.Kind)).Render(r.Kind),
			dimStyle.Render(detail))
	}
}

func check(ok bool) string {
	if ok {
		return okStyle.Render("✓")
	}
	return errStyle.Render("✗")
}

func errText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
