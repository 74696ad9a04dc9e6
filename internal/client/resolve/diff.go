package resolve

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/zimx/zimx-sync/internal/models"
)

// UnifiedDiff renders the local/remote divergence of a conflict as a unified
// diff, local on the left. This is the presentation handed to whatever UI
// drives the merge decision.
func UnifiedDiff(c models.Conflict) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(c.LocalContent)),
		B:        difflib.SplitLines(string(c.RemoteContent)),
		FromFile: c.Path + " (local)",
		ToFile:   fmt.Sprintf("%s (remote, rev %d)", c.Path, c.RemoteRevision),
		Context:  3,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("failed to build diff: %w", err)
	}
	return text, nil
}
