// Package diff turns a local unified diff into a ChangeSet for offline evaluation.
package diff

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"

	"github.com/codeGROOVE-dev/workflow-orchestrator/pkg/types"
)

// Files parses a unified diff into per-file stats, in diff order.
func Files(raw string) ([]types.ChangedFile, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	files := make([]types.ChangedFile, 0, len(parsed))
	for _, f := range parsed {
		cf := types.ChangedFile{Filename: f.NewName, Status: "modified"}
		switch {
		case f.IsNew:
			cf.Status = "added"
		case f.IsDelete:
			cf.Status = "removed"
			cf.Filename = f.OldName
		case f.IsRename:
			cf.Status = "renamed"
		}
		if cf.Filename == "" {
			cf.Filename = f.OldName
		}

		for _, frag := range f.TextFragments {
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					cf.Additions++
				case gitdiff.OpDelete:
					cf.Deletions++
				}
			}
		}
		files = append(files, cf)
	}
	return files, nil
}

// ChangeSet builds a change set from a unified diff. CI, review and blocker
// state are not part of a diff; callers fill them in.
func ChangeSet(raw string) (*types.ChangeSet, error) {
	files, err := Files(raw)
	if err != nil {
		return nil, err
	}
	cs := &types.ChangeSet{ChangedPaths: make([]string, 0, len(files))}
	for _, f := range files {
		cs.ChangedPaths = append(cs.ChangedPaths, f.Filename)
		cs.Additions += f.Additions
		cs.Deletions += f.Deletions
	}
	return cs, nil
}

// Git runs `git diff` in repoDir with the given arguments and returns its output.
func Git(ctx context.Context, repoDir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"diff", "--no-color"}, args...)...)
	cmd.Dir = repoDir
	cmd.Stderr = os.Stderr

	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(out), nil
}
