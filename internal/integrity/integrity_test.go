package integrity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeArtifactHashDeterministic(t *testing.T) {
	a := ComputeArtifactHash("stderr.log", []byte("panic: boom"))
	b := ComputeArtifactHash("stderr.log", []byte("panic: boom"))
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "v1:"))
}

func TestComputeArtifactHashBindsName(t *testing.T) {
	// Same content under a different name must not collide: the hash attests
	// to "this file held these bytes", not just the bytes.
	a := ComputeArtifactHash("stdout.log", []byte("ok"))
	b := ComputeArtifactHash("stderr.log", []byte("ok"))
	assert.NotEqual(t, a, b)
}

func TestComputeArtifactHashNoFieldBleed(t *testing.T) {
	// Length-prefixed encoding: moving a byte across the name/content
	// boundary changes the digest.
	a := ComputeArtifactHash("ab", []byte("c"))
	b := ComputeArtifactHash("a", []byte("bc"))
	assert.NotEqual(t, a, b)
}

func TestVerifyArtifactHash(t *testing.T) {
	content := []byte(`{"passed": false}`)
	h := ComputeArtifactHash("result.json", content)

	assert.True(t, VerifyArtifactHash(h, "result.json", content))
	assert.False(t, VerifyArtifactHash(h, "result.json", []byte(`{"passed": true}`)))
	assert.False(t, VerifyArtifactHash(h, "stdout.log", content))
	assert.False(t, VerifyArtifactHash("v9:"+h[3:], "result.json", content), "unknown version must fail closed")
	assert.False(t, VerifyArtifactHash("", "result.json", content))
}

func TestComputeManifestHash(t *testing.T) {
	hashes := map[string]string{
		"stdout.log": ComputeArtifactHash("stdout.log", []byte("ok")),
		"patch.diff": ComputeArtifactHash("patch.diff", []byte("--- a\n+++ b\n")),
	}
	a := ComputeManifestHash(hashes)
	b := ComputeManifestHash(hashes)
	assert.Equal(t, a, b)
	assert.Empty(t, ComputeManifestHash(nil))
}
