package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Fingerprint is the deterministic identity of a container configuration: the
// hex-encoded SHA-256 over the project root, the ordered config paths and the
// env-file directory. Two processes with the same inputs derive the same
// fingerprint and therefore share one cached artifact.
//
// Contents of the config files are deliberately not part of the fingerprint:
// content changes are detected by the resource snapshot instead, so an edit
// refreshes the artifact in place rather than leaking a new file per edit.
type Fingerprint string

// String returns the full hex form.
func (f Fingerprint) String() string {
	return string(f)
}

// Short returns a log-friendly prefix of the fingerprint.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// FingerprintInputs carries every component of the cache identity.
//
// ConfigPaths is order-sensitive: the same files in a different order produce
// different override semantics, so they must not share an artifact.
type FingerprintInputs struct {
	ProjectRoot string
	ConfigPaths []string
	EnvFileDir  string
}

// ComputeFingerprint derives the Fingerprint for a set of inputs. Every
// component is length-prefixed before hashing so adjacent fields cannot
// collide by concatenation.
func ComputeFingerprint(in FingerprintInputs) Fingerprint {
	hasher := sha256.New()

	writeField := func(data []byte) {
		length := uint64(len(data))
		lengthBytes := []byte{
			byte(length >> 56),
			byte(length >> 48),
			byte(length >> 40),
			byte(length >> 32),
			byte(length >> 24),
			byte(length >> 16),
			byte(length >> 8),
			byte(length),
		}
		hasher.Write(lengthBytes)
		hasher.Write(data)
	}

	writeField([]byte(in.ProjectRoot))
	writeField([]byte(in.EnvFileDir))
	writeField([]byte(strconv.Itoa(len(in.ConfigPaths))))
	for _, path := range in.ConfigPaths {
		writeField([]byte(path))
	}

	return Fingerprint(hex.EncodeToString(hasher.Sum(nil)))
}
