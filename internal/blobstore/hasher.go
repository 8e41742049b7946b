package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/opencontainers/go-digest"
	"golang.org/x/crypto/blake2b"
)

// AlgorithmBLAKE2b256 is the optional 256-bit BLAKE2b digest algorithm.
// digest.SHA256 is the default.
const AlgorithmBLAKE2b256 = digest.Algorithm("blake2b256")

// ParseAlgorithm validates a configured digest algorithm name.
// Empty input defaults to sha256.
func ParseAlgorithm(raw string) (digest.Algorithm, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "", "sha256":
		return digest.SHA256, nil
	case "blake2b256", "blake2b-256":
		return AlgorithmBLAKE2b256, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm: %s", raw)
	}
}

// newHash returns a fresh hash state for algo. Both supported algorithms
// produce 256-bit digests; anything weaker admits deliberate collisions
// that would cross-link unrelated users' content.
func newHash(algo digest.Algorithm) (hash.Hash, error) {
	switch algo {
	case digest.SHA256:
		return sha256.New(), nil
	case AlgorithmBLAKE2b256:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unsupported digest algorithm: %s", algo)
	}
}

func digestFromSum(algo digest.Algorithm, sum []byte) digest.Digest {
	return digest.NewDigestFromEncoded(algo, hex.EncodeToString(sum))
}
