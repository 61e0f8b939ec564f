package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kaizen/internal/integrity"
	"github.com/ashita-ai/kaizen/internal/model"
)

func testRun(t *testing.T, root string, files map[string][]byte) model.Run {
	t.Helper()
	run := model.Run{
		RunID:          "run_1",
		Artifacts:      map[string]string{},
		ArtifactHashes: map[string]string{},
	}
	for name, content := range files {
		rel := filepath.Join("run_1", name)
		require.NoError(t, os.MkdirAll(filepath.Join(root, "run_1"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), content, 0o644))
		run.Artifacts[name] = rel
		run.ArtifactHashes[name] = integrity.ComputeArtifactHash(name, content)
	}
	return run
}

func TestReadVerifiesHash(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	run := testRun(t, root, map[string][]byte{"stdout.log": []byte("all green\n")})

	content, err := store.Read(run, "stdout.log")
	require.NoError(t, err)
	assert.Equal(t, []byte("all green\n"), content)
}

func TestReadRejectsTamperedContent(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	run := testRun(t, root, map[string][]byte{"patch.diff": []byte("--- a\n+++ b\n")})

	require.NoError(t, os.WriteFile(filepath.Join(root, "run_1", "patch.diff"), []byte("evil"), 0o644))

	_, err := store.Read(run, "patch.diff")
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestReadRejectsDisallowedName(t *testing.T) {
	store := NewStore(t.TempDir())
	run := model.Run{RunID: "run_1", Artifacts: map[string]string{}}

	for _, name := range []string{"../etc/passwd", "notes.txt", "stdout.log/../../x"} {
		_, err := store.Read(run, name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestReadUnrecordedArtifact(t *testing.T) {
	store := NewStore(t.TempDir())
	run := model.Run{RunID: "run_1", Artifacts: map[string]string{}}

	_, err := store.Read(run, "stdout.log")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadMissingFile(t *testing.T) {
	store := NewStore(t.TempDir())
	run := model.Run{
		RunID:     "run_1",
		Artifacts: map[string]string{"result.json": "run_1/result.json"},
	}

	_, err := store.Read(run, "result.json")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHashAll(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "run_2"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "run_2", "stderr.log"), []byte("boom"), 0o644))

	hashes, err := store.HashAll(map[string]string{
		"stderr.log":  "run_2/stderr.log",
		"result.json": "run_2/result.json", // not written yet
	})
	require.NoError(t, err)
	assert.Equal(t, integrity.ComputeArtifactHash("stderr.log", []byte("boom")), hashes["stderr.log"])
	_, ok := hashes["result.json"]
	assert.False(t, ok)
}

func TestHashAllRejectsDisallowedName(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.HashAll(map[string]string{"secrets.env": "x"})
	require.Error(t, err)
}
