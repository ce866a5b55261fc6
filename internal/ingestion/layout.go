package ingestion

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rohankatakam/repograph/internal/errors"
	"github.com/rohankatakam/repograph/internal/models"
)

// Layout locates one repository's batch files under the data directory:
//
//	<data>/<repo>/<repo>_<entity>.json      baseline
//	<data>/<repo>/new_<repo>_<entity>.json  pending delta
//	<data>/<repo>/<repo>_state.json         checkpoint
type Layout struct {
	dir  string
	repo string
}

// NewLayout returns the layout of repo under dataDir
func NewLayout(dataDir, repo string) Layout {
	return Layout{dir: filepath.Join(dataDir, repo), repo: repo}
}

// Dir returns the repository's data directory
func (l Layout) Dir() string {
	return l.dir
}

func (l Layout) Baseline(kind models.EntityKind) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s_%s.json", l.repo, kind))
}

func (l Layout) Delta(kind models.EntityKind) string {
	return filepath.Join(l.dir, fmt.Sprintf("new_%s_%s.json", l.repo, kind))
}

func (l Layout) Checkpoint() string {
	return filepath.Join(l.dir, l.repo+"_state.json")
}

// PendingDeltas lists entity kinds with a delta file on disk
func (l Layout) PendingDeltas() []models.EntityKind {
	var out []models.EntityKind
	for _, kind := range models.AllEntities {
		if fileExists(l.Delta(kind)) {
			out = append(out, kind)
		}
	}
	return out
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// readJSON decodes path into v. A missing file reports false and no error.
func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, errors.FileSystemErrorf(err, "read %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, errors.FileSystemErrorf(err, "decode %s", path)
	}
	return true, nil
}

// writeJSON replaces path atomically: the data goes to a temp file in the
// same directory which is then renamed over the target.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.FileSystemErrorf(err, "create %s", filepath.Dir(path))
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.FileSystemErrorf(err, "encode %s", path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.FileSystemErrorf(err, "create temp file for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileSystemErrorf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.FileSystemErrorf(err, "rename %s", path)
	}
	return nil
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.FileSystemErrorf(err, "remove %s", path)
	}
	return nil
}
