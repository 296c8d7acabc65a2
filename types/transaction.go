package types

import (
	"errors"
	"fmt"
	"time"
)

// Transaction wraps a signed block together with node-local metadata. It is
// treated as immutable once constructed.
type Transaction struct {
	Block     Block
	Signature Signature
	// Work is the proof-of-work nonce supplied by the sender.
	Work uint64
	// ReceivedAt is when this node first ingested the transaction.
	ReceivedAt time.Time
}

// NewTransaction signs block with key.
func NewTransaction(block Block, key PrivateKey, work uint64) *Transaction {
	hash := Sum256(blockSignBytes(block))
	return &Transaction{
		Block:     block,
		Signature: key.Sign(hash[:]),
		Work:      work,
	}
}

// Hash returns the content hash of the block.
func (tx *Transaction) Hash() Hash {
	return Sum256(blockSignBytes(tx.Block))
}

func (tx *Transaction) Header() Header       { return tx.Block.BlockHeader() }
func (tx *Transaction) PublicKey() PublicKey { return tx.Block.BlockHeader().PublicKey }
func (tx *Transaction) Height() uint64       { return tx.Block.BlockHeader().Height }
func (tx *Transaction) Balance() Amount      { return tx.Block.BlockHeader().Balance }
func (tx *Transaction) Type() BlockType      { return tx.Block.Type() }

// Key returns the (account, height) slot the transaction competes for.
func (tx *Transaction) Key() ChainKey {
	h := tx.Block.BlockHeader()
	return ChainKey{PublicKey: h.PublicKey, Height: h.Height}
}

// VerifySignature checks the signature against the block's account key.
func (tx *Transaction) VerifySignature() bool {
	hash := tx.Hash()
	return tx.PublicKey().Verify(hash[:], tx.Signature)
}

// ValidateBasic performs stateless checks.
func (tx *Transaction) ValidateBasic() error {
	if tx.Block == nil {
		return errors.New("transaction has no block")
	}
	h := tx.Header()
	if h.PublicKey.IsZero() {
		return errors.New("missing public key")
	}
	if h.Height == 0 {
		return errors.New("height must be positive")
	}
	switch tx.Block.(type) {
	case *OpenBlock:
		if h.Height != 1 {
			return fmt.Errorf("open block at height %d", h.Height)
		}
	default:
		// only an open block may start a chain
		if h.Height == 1 {
			return fmt.Errorf("%v block at height 1", tx.Type())
		}
	}
	switch blk := tx.Block.(type) {
	case *SendBlock:
		if blk.Amount.IsZero() {
			return errors.New("send of zero amount")
		}
	}
	if !tx.VerifySignature() {
		return errors.New("invalid signature")
	}
	return nil
}

func (tx *Transaction) String() string {
	h := tx.Header()
	return fmt.Sprintf("Tx{%v %v #%d %v}", tx.Type(), h.PublicKey.ShortString(), h.Height, tx.Hash().ShortString())
}

// ChainKey identifies a slot on an account chain.
type ChainKey struct {
	PublicKey PublicKey
	Height    uint64
}

func (k ChainKey) String() string {
	return fmt.Sprintf("%v/%d", k.PublicKey.ShortString(), k.Height)
}

// Account is the head state of an account chain.
type Account struct {
	PublicKey                PublicKey
	Height                   uint64
	Balance                  Amount
	Representative           PublicKey
	LastTransactionHash      Hash
	LastTransactionTimestamp time.Time
}

// ZeroAccount is the state of an account that has never been opened.
func ZeroAccount(pk PublicKey) Account {
	return Account{PublicKey: pk}
}

// IsOpened reports whether the account has at least one block.
func (a Account) IsOpened() bool { return a.Height > 0 }

// Receivable is a send that has not been received yet.
type Receivable struct {
	Hash     Hash
	Receiver PublicKey
	Amount   Amount
}
