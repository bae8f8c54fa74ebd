package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Address is the content address of an entry or an action: 32 hash bytes
// as 64 lowercase hex characters.
type Address string

// String implements fmt.Stringer.
func (a Address) String() string { return string(a) }

// Short returns the first 12 characters, for log lines.
func (a Address) Short() string {
	if len(a) <= 12 {
		return string(a)
	}
	return string(a[:12])
}

// ParseAddress validates s as an address.
func ParseAddress(s string) (Address, error) {
	if len(s) != 64 {
		return "", fmt.Errorf("address must be 64 hex characters, got %d", len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("address has non-hex character %q at %d", c, i)
		}
	}
	return Address(s), nil
}

// Hash domains. The same bytes hashed in different domains give
// unrelated addresses, so an entry can never collide with an action.
const (
	DomainEntry  = "blogchain/entry/v" + FormatVersion
	DomainAction = "blogchain/action/v" + FormatVersion
)

// HashAlgorithm names the digest a store uses for addresses.
type HashAlgorithm string

const (
	// SHA256 computes SHA256(domain || 0x00 || data).
	SHA256 HashAlgorithm = "sha256"

	// BLAKE3 computes a BLAKE3 keyed hash of data. The key is the domain
	// string zero-padded to 32 bytes.
	BLAKE3 HashAlgorithm = "blake3"
)

// Hasher computes addresses. The zero value hashes with SHA256.
type Hasher struct {
	alg HashAlgorithm
}

// NewHasher returns a hasher for alg. An empty alg selects SHA256.
func NewHasher(alg HashAlgorithm) (Hasher, error) {
	switch alg {
	case "", SHA256:
		return Hasher{alg: SHA256}, nil
	case BLAKE3:
		return Hasher{alg: BLAKE3}, nil
	default:
		return Hasher{}, fmt.Errorf("unknown hash algorithm %q", alg)
	}
}

// Algorithm reports the digest in use.
func (h Hasher) Algorithm() HashAlgorithm {
	if h.alg == "" {
		return SHA256
	}
	return h.alg
}

// EntryAddress returns the address of e.
func (h Hasher) EntryAddress(e Entry) (Address, error) {
	data, err := MarshalCanonical(e.canonical())
	if err != nil {
		return "", fmt.Errorf("entry address: %w", err)
	}
	return h.sum(DomainEntry, data), nil
}

// ActionAddress returns the address of a.
func (h Hasher) ActionAddress(a Action) (Address, error) {
	data, err := MarshalCanonical(a.canonical())
	if err != nil {
		return "", fmt.Errorf("action address: %w", err)
	}
	return h.sum(DomainAction, data), nil
}

func (h Hasher) sum(domain string, data []byte) Address {
	switch h.Algorithm() {
	case BLAKE3:
		var key [32]byte
		copy(key[:], domain)
		// NewKeyed only fails on a key that is not 32 bytes.
		hasher, err := blake3.NewKeyed(key[:])
		if err != nil {
			panic("ir: blake3 keyed hash: " + err.Error())
		}
		hasher.Write(data)
		return Address(hex.EncodeToString(hasher.Sum(nil)))
	default:
		d := sha256.New()
		d.Write([]byte(domain))
		d.Write([]byte{0x00})
		d.Write(data)
		return Address(hex.EncodeToString(d.Sum(nil)))
	}
}
