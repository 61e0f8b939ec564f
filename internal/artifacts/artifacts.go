// Package artifacts reads run artifacts from the shared artifact volume.
//
// Artifact names come from a closed allow-list; anything else, including any
// path-shaped name, is rejected before a single filesystem call is made. On
// read, content is checked against the hash recorded at ingest time so a
// tampered or truncated file is surfaced as an integrity failure rather than
// served as evidence.
package artifacts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashita-ai/kaizen/internal/integrity"
	"github.com/ashita-ai/kaizen/internal/model"
)

var (
	// ErrNotFound means the run has no such artifact recorded or the file
	// is missing from the volume.
	ErrNotFound = errors.New("artifact not found")

	// ErrIntegrity means the file on disk does not match the hash recorded
	// when the run was ingested.
	ErrIntegrity = errors.New("artifact integrity check failed")
)

// Store reads artifacts under a fixed root directory. Artifact paths recorded
// on runs are relative to this root.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Read returns the content of one of the run's artifacts. The name must be on
// the allow-list and recorded on the run; when the run carries a hash for the
// artifact, the content must match it.
func (s *Store) Read(run model.Run, name string) ([]byte, error) {
	if err := model.ValidateArtifactName(name); err != nil {
		return nil, err
	}

	rel, ok := run.Artifacts[name]
	if !ok {
		return nil, fmt.Errorf("run %s has no artifact %s: %w", run.RunID, name, ErrNotFound)
	}

	content, err := os.ReadFile(filepath.Join(s.root, filepath.Clean("/"+rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact %s for run %s: %w", name, run.RunID, ErrNotFound)
		}
		return nil, fmt.Errorf("read artifact %s for run %s: %w", name, run.RunID, err)
	}

	if stored, ok := run.ArtifactHashes[name]; ok {
		if !integrity.VerifyArtifactHash(stored, name, content) {
			return nil, fmt.Errorf("artifact %s for run %s: %w", name, run.RunID, ErrIntegrity)
		}
	}
	return content, nil
}

// HashAll computes integrity hashes for the named artifacts at ingest time.
// Files that are not yet on the volume are skipped; their hashes get recorded
// by a later report once the backend has written them.
func (s *Store) HashAll(paths map[string]string) (map[string]string, error) {
	hashes := make(map[string]string, len(paths))
	for name, rel := range paths {
		if err := model.ValidateArtifactName(name); err != nil {
			return nil, err
		}
		content, err := os.ReadFile(filepath.Join(s.root, filepath.Clean("/"+rel)))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("hash artifact %s: %w", name, err)
		}
		hashes[name] = integrity.ComputeArtifactHash(name, content)
	}
	return hashes, nil
}
