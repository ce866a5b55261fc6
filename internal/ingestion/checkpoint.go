package ingestion

import "time"

// Checkpoint marks the last completed run of a repository. A baseline
// without a checkpoint comes from a run that never finished.
type Checkpoint struct {
	RepoURL     string    `json:"repo_url"`
	RunID       string    `json:"run_id"`
	Mode        Mode      `json:"mode"`
	CompletedAt time.Time `json:"completed_at"`
}

func saveCheckpoint(l Layout, cp Checkpoint) error {
	return writeJSON(l.Checkpoint(), cp)
}

// LoadCheckpoint reads the checkpoint, reporting false when none exists
func LoadCheckpoint(l Layout) (Checkpoint, bool, error) {
	var cp Checkpoint
	ok, err := readJSON(l.Checkpoint(), &cp)
	return cp, ok, err
}
