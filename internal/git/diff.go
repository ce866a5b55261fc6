package git

import (
	"context"
)

// ChangedFiles returns the per-file zero-context diff between parent and
// commit, with renames detected so old paths stay valid at parent.
func (r *Repo) ChangedFiles(ctx context.Context, parent, commit string) ([]FilePatch, error) {
	out, err := r.run(ctx, "diff", "-U0", "--no-color", "--no-ext-diff", "-M", parent, commit)
	if err != nil {
		return nil, err
	}
	return ParsePatches(string(out)), nil
}
