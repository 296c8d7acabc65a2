package types

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/oasisprotocol/curve25519-voi/primitives/ed25519"
	"golang.org/x/crypto/blake2b"
)

const (
	PublicKeySize  = ed25519.PublicKeySize
	HashSize       = blake2b.Size256
	SignatureSize  = ed25519.SignatureSize
	PrivateKeySize = ed25519.PrivateKeySize
)

// PublicKey identifies an account and, when it holds weight, a representative.
type PublicKey [PublicKeySize]byte

// Hash is a blake2b-256 digest.
type Hash [HashSize]byte

// Signature is an ed25519 signature.
type Signature [SignatureSize]byte

// PrivateKey signs transactions and votes.
type PrivateKey ed25519.PrivateKey

func (pk PublicKey) IsZero() bool { return pk == PublicKey{} }
func (pk PublicKey) String() string {
	return strings.ToUpper(hex.EncodeToString(pk[:]))
}

// ShortString returns the first 3 bytes in hex, for log lines.
func (pk PublicKey) ShortString() string {
	return strings.ToUpper(hex.EncodeToString(pk[:3]))
}

func (pk PublicKey) Compare(o PublicKey) int { return bytes.Compare(pk[:], o[:]) }

func (h Hash) IsZero() bool { return h == Hash{} }
func (h Hash) String() string {
	return strings.ToUpper(hex.EncodeToString(h[:]))
}

func (h Hash) ShortString() string {
	return strings.ToUpper(hex.EncodeToString(h[:3]))
}

func (s Signature) String() string {
	return strings.ToUpper(hex.EncodeToString(s[:]))
}

// HashFromHex parses a hex-encoded hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	bz, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(bz) != HashSize {
		return h, fmt.Errorf("invalid hash length %d", len(bz))
	}
	copy(h[:], bz)
	return h, nil
}

// PublicKeyFromHex parses a hex-encoded public key.
func PublicKeyFromHex(s string) (PublicKey, error) {
	var pk PublicKey
	bz, err := hex.DecodeString(s)
	if err != nil {
		return pk, err
	}
	if len(bz) != PublicKeySize {
		return pk, fmt.Errorf("invalid public key length %d", len(bz))
	}
	copy(pk[:], bz)
	return pk, nil
}

// Sum256 hashes the concatenation of parts with blake2b-256.
func Sum256(parts ...[]byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(err) // only fails for oversized keys
	}
	for _, p := range parts {
		h.Write(p) //nolint:errcheck // hash writes never fail
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// GenPrivateKey generates a new key using crypto/rand.
func GenPrivateKey() PrivateKey {
	return genPrivateKey(rand.Reader)
}

func genPrivateKey(r io.Reader) PrivateKey {
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		panic(err)
	}
	return PrivateKey(priv)
}

// PrivateKeyFromSeed derives a key from a 32 byte seed.
func PrivateKeyFromSeed(seed []byte) PrivateKey {
	return PrivateKey(ed25519.NewKeyFromSeed(seed))
}

// PublicKey returns the public half of the key.
func (k PrivateKey) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], ed25519.PrivateKey(k).Public().(ed25519.PublicKey))
	return pk
}

// Sign signs msg.
func (k PrivateKey) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(ed25519.PrivateKey(k), msg))
	return sig
}

// Verify reports whether sig is pk's signature over msg.
func (pk PublicKey) Verify(msg []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig[:])
}

// MarshalText encodes the key in hex.
func (pk PublicKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText decodes a hex-encoded key.
func (pk *PublicKey) UnmarshalText(text []byte) error {
	parsed, err := PublicKeyFromHex(string(text))
	if err != nil {
		return err
	}
	*pk = parsed
	return nil
}
