package core

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash is a 32-byte cryptographic digest, used for rawTxIds, block ids and
// state commitments.
type Hash [32]byte

// Hex returns the lowercase hex encoding of h.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == Hash{} }

// addressPrefix and addressLen implement the XMBL address format:
// "xmb" + lowercase-hex(sha256(publicKey)), truncated to 43 characters total.
const (
	addressPrefix = "xmb"
	addressLen    = 43
)

// DeriveAddress computes the deterministic address for a public key: the
// "xmb" prefix followed by the lowercase hex SHA-256 digest of pubKey,
// truncated so the full string is exactly 43 characters.
func DeriveAddress(pubKey []byte) string {
	sum := sha256.Sum256(pubKey)
	full := addressPrefix + hex.EncodeToString(sum[:])
	if len(full) > addressLen {
		full = full[:addressLen]
	}
	return full
}
