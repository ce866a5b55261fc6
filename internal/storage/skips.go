package storage

import (
	"context"

	"github.com/rohankatakam/repograph/internal/szz"
)

// RunSkips records SZZ skips against one run
type RunSkips struct {
	ledger *Ledger
	runID  string
}

var _ szz.SkipRecorder = (*RunSkips)(nil)

// SkipRecorder binds the ledger to a run
func (l *Ledger) SkipRecorder(runID string) *RunSkips {
	return &RunSkips{ledger: l, runID: runID}
}

func (r *RunSkips) RecordSkip(ctx context.Context, skip szz.Skip) error {
	return r.ledger.RecordSkip(ctx, SkippedItem{
		RunID:     r.runID,
		Kind:      skip.Kind,
		CommitSHA: skip.Commit,
		Path:      skip.Path,
		Reason:    skip.Reason,
	})
}
