// internal/fingerprint/fingerprint.go
package fingerprint

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"
	"unicode/utf8"
)

// ErrUnhashable is returned when an input cannot be represented as text.
var ErrUnhashable = errors.New("fingerprint: input is not valid UTF-8 text")

// Algorithm selects the digest used for fingerprints.
type Algorithm string

const (
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// Default is the digest used by Compute. Changing it invalidates every persisted cache.
const Default = SHA256

// Pooled hashers, one pool per algorithm.
var pools = map[Algorithm]*sync.Pool{
	SHA1:   {New: func() interface{} { return sha1.New() }},
	SHA256: {New: func() interface{} { return sha256.New() }},
	SHA384: {New: func() interface{} { return sha512.New384() }},
	SHA512: {New: func() interface{} { return sha512.New() }},
}

// Compute returns the cache key of one step: the lowercase hex SHA-256 of
// specID + testID + step. The parts are concatenated without a separator so keys stay
// compatible with caches written by earlier versions of the tool.
func Compute(specID, testID, step string) (string, error) {
	return ComputeWith(Default, specID, testID, step)
}

// ComputeWith is Compute with an explicit digest.
func ComputeWith(alg Algorithm, specID, testID, step string) (string, error) {
	pool, ok := pools[alg]
	if !ok {
		return "", fmt.Errorf("fingerprint: unsupported algorithm %q", alg)
	}
	for _, part := range [...]string{specID, testID, step} {
		if !utf8.ValidString(part) {
			return "", ErrUnhashable
		}
	}

	h := pool.Get().(hash.Hash)
	defer func() {
		h.Reset()
		pool.Put(h)
	}()

	_, _ = io.WriteString(h, specID)
	_, _ = io.WriteString(h, testID)
	_, _ = io.WriteString(h, step)
	return hex.EncodeToString(h.Sum(nil)), nil
}
