package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	// FinalTimestamp marks a vote its voter will never replace.
	FinalTimestamp uint64 = math.MaxUint64

	// VoteAlgorithmTag identifies the signing scheme (ed25519 over blake2b-256)
	// inside the signed vote payload.
	VoteAlgorithmTag byte = 0x01
)

// Vote is a representative's signed endorsement of a transaction hash.
type Vote struct {
	PublicKey PublicKey
	BlockHash Hash
	// Timestamp is unix milliseconds, or FinalTimestamp.
	Timestamp uint64
	Signature Signature

	// Weight is resolved locally when the vote is received; it is not part of
	// the signed payload.
	Weight Amount
}

// NewVote signs a non-final vote for blockHash at time t.
func NewVote(key PrivateKey, blockHash Hash, t time.Time) *Vote {
	return signVote(key, blockHash, uint64(t.UnixMilli()))
}

// NewFinalVote signs an irrevocable vote for blockHash.
func NewFinalVote(key PrivateKey, blockHash Hash) *Vote {
	return signVote(key, blockHash, FinalTimestamp)
}

func signVote(key PrivateKey, blockHash Hash, ts uint64) *Vote {
	v := &Vote{
		PublicKey: key.PublicKey(),
		BlockHash: blockHash,
		Timestamp: ts,
	}
	payload := v.SignBytes()
	v.Signature = key.Sign(payload[:])
	return v
}

// SignBytes is hash(blockHash, algorithm tag, timestamp).
func (v *Vote) SignBytes() Hash {
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, v.Timestamp)
	return Sum256(v.BlockHash[:], []byte{VoteAlgorithmTag}, ts)
}

// Verify checks the signature against the voter's key.
func (v *Vote) Verify() bool {
	payload := v.SignBytes()
	return v.PublicKey.Verify(payload[:], v.Signature)
}

func (v *Vote) IsFinal() bool { return v.Timestamp == FinalTimestamp }

// NewerThan reports whether v supersedes o from the same voter.
func (v *Vote) NewerThan(o *Vote) bool { return v.Timestamp > o.Timestamp }

// WithWeight returns a copy of the vote carrying w.
func (v *Vote) WithWeight(w Amount) *Vote {
	cp := *v
	cp.Weight = w
	return &cp
}

func (v *Vote) String() string {
	ts := "final"
	if !v.IsFinal() {
		ts = fmt.Sprint(v.Timestamp)
	}
	return fmt.Sprintf("Vote{%v -> %v @%s w=%v}", v.PublicKey.ShortString(), v.BlockHash.ShortString(), ts, v.Weight)
}
