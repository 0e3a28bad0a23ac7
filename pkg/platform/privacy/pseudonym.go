// Package privacy derives stable, non-reversible references for subject
// identifiers so logs, reports and audit events never carry raw PII.
package privacy

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Pseudonymizer computes keyed BLAKE2b-256 digests. The same key must be used
// across a deployment for references to correlate.
type Pseudonymizer struct {
	key []byte
}

// New returns a Pseudonymizer. blake2b accepts keys of at most 64 bytes.
func New(key string) (*Pseudonymizer, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("pseudonym key must be 1-%d bytes, got %d", blake2b.Size, len(key))
	}
	return &Pseudonymizer{key: []byte(key)}, nil
}

// Ref returns "sub_" followed by the first 16 hex chars of the keyed digest of
// the normalized parts. Parts are joined with a unit separator so
// ("ab","c") and ("a","bc") differ.
func (p *Pseudonymizer) Ref(parts ...string) string {
	h, err := blake2b.New256(p.key)
	if err != nil {
		// unreachable: key length is checked in New
		panic(err)
	}
	for i, part := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(strings.ToLower(strings.TrimSpace(part))))
	}
	return "sub_" + hex.EncodeToString(h.Sum(nil))[:16]
}
