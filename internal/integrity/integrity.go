// Package integrity provides tamper-evident hashing for run artifacts.
// All functions are pure and deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sort"
	"strings"
)

// Hashes carry a version prefix so the encoding can evolve without breaking
// verification of already-recorded runs.
const hashV1Prefix = "v1:"

// ComputeArtifactHash produces a versioned SHA-256 hex digest binding an
// artifact's filename to its content. Each field is encoded with a 4-byte
// big-endian length prefix, so a crafted filename can never collide with
// content bytes.
func ComputeArtifactHash(name string, content []byte) string {
	h := sha256.New()
	writeField(h, []byte(name))
	writeField(h, content)
	return hashV1Prefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyArtifactHash checks a stored hash against recomputed content.
// Unknown version prefixes fail verification rather than being guessed at.
func VerifyArtifactHash(stored, name string, content []byte) bool {
	if !strings.HasPrefix(stored, hashV1Prefix) {
		return false
	}
	return stored == ComputeArtifactHash(name, content)
}

// ComputeManifestHash digests a run's full artifact-hash map into a single
// value. Names are sorted for determinism.
func ComputeManifestHash(hashes map[string]string) string {
	if len(hashes) == 0 {
		return ""
	}
	names := make([]string, 0, len(hashes))
	for name := range hashes {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		writeField(h, []byte(name))
		writeField(h, []byte(hashes[name]))
	}
	return hashV1Prefix + hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, field []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field))) //nolint:gosec // artifact sizes are bounded by request body limits
	w.Write(lenBuf[:])
	w.Write(field)
}
