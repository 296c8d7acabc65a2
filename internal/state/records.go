package state

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/tendermint/lattice/types"
)

// On-disk records. Field numbers are part of the storage format.

type accountRecord struct {
	PublicKey      types.PublicKey `cbor:"1,keyasint"`
	Height         uint64          `cbor:"2,keyasint"`
	Balance        types.Amount    `cbor:"3,keyasint"`
	Representative types.PublicKey `cbor:"4,keyasint"`
	LastHash       types.Hash      `cbor:"5,keyasint"`
	LastTimestamp  int64           `cbor:"6,keyasint"`
}

type receivableRecord struct {
	Hash     types.Hash      `cbor:"1,keyasint"`
	Receiver types.PublicKey `cbor:"2,keyasint"`
	Amount   types.Amount    `cbor:"3,keyasint"`
}

type transactionRecord struct {
	Type           types.BlockType `cbor:"1,keyasint"`
	PublicKey      types.PublicKey `cbor:"2,keyasint"`
	Height         uint64          `cbor:"3,keyasint"`
	Balance        types.Amount    `cbor:"4,keyasint"`
	Timestamp      int64           `cbor:"5,keyasint"`
	Previous       types.Hash      `cbor:"6,keyasint"`
	Receiver       types.PublicKey `cbor:"7,keyasint"`
	Amount         types.Amount    `cbor:"8,keyasint"`
	SendHash       types.Hash      `cbor:"9,keyasint"`
	Representative types.PublicKey `cbor:"10,keyasint"`
	Signature      types.Signature `cbor:"11,keyasint"`
	Work           uint64          `cbor:"12,keyasint"`
	ReceivedAt     int64           `cbor:"13,keyasint"`
}

type voteRecord struct {
	PublicKey types.PublicKey `cbor:"1,keyasint"`
	BlockHash types.Hash      `cbor:"2,keyasint"`
	Timestamp uint64          `cbor:"3,keyasint"`
	Signature types.Signature `cbor:"4,keyasint"`
	Weight    types.Amount    `cbor:"5,keyasint"`
}

// commitRecord is stored under the commit sequence index so the weight table
// can be rebuilt without re-reading account history.
type commitRecord struct {
	Hash     types.Hash    `cbor:"1,keyasint"`
	Previous accountRecord `cbor:"2,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func marshal(v interface{}) ([]byte, error) { return encMode.Marshal(v) }

func unmarshal(data []byte, v interface{}) error { return cbor.Unmarshal(data, v) }

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func newAccountRecord(a types.Account) accountRecord {
	return accountRecord{
		PublicKey:      a.PublicKey,
		Height:         a.Height,
		Balance:        a.Balance,
		Representative: a.Representative,
		LastHash:       a.LastTransactionHash,
		LastTimestamp:  toMillis(a.LastTransactionTimestamp),
	}
}

func (r accountRecord) account() types.Account {
	return types.Account{
		PublicKey:                r.PublicKey,
		Height:                   r.Height,
		Balance:                  r.Balance,
		Representative:           r.Representative,
		LastTransactionHash:      r.LastHash,
		LastTransactionTimestamp: fromMillis(r.LastTimestamp),
	}
}

func newTransactionRecord(tx *types.Transaction) transactionRecord {
	h := tx.Header()
	rec := transactionRecord{
		Type:       tx.Type(),
		PublicKey:  h.PublicKey,
		Height:     h.Height,
		Balance:    h.Balance,
		Timestamp:  toMillis(h.Timestamp),
		Signature:  tx.Signature,
		Work:       tx.Work,
		ReceivedAt: toMillis(tx.ReceivedAt),
	}
	switch blk := tx.Block.(type) {
	case *types.SendBlock:
		rec.Previous = blk.Previous
		rec.Receiver = blk.Receiver
		rec.Amount = blk.Amount
	case *types.ReceiveBlock:
		rec.Previous = blk.Previous
		rec.SendHash = blk.SendHash
	case *types.OpenBlock:
		rec.SendHash = blk.SendHash
		rec.Representative = blk.Representative
	case *types.ChangeBlock:
		rec.Previous = blk.Previous
		rec.Representative = blk.Representative
	}
	return rec
}

func (r transactionRecord) transaction() (*types.Transaction, error) {
	hdr := types.Header{
		PublicKey: r.PublicKey,
		Height:    r.Height,
		Balance:   r.Balance,
		Timestamp: fromMillis(r.Timestamp),
	}

	var block types.Block
	switch r.Type {
	case types.BlockTypeSend:
		block = &types.SendBlock{Header: hdr, Previous: r.Previous, Receiver: r.Receiver, Amount: r.Amount}
	case types.BlockTypeReceive:
		block = &types.ReceiveBlock{Header: hdr, Previous: r.Previous, SendHash: r.SendHash}
	case types.BlockTypeOpen:
		block = &types.OpenBlock{Header: hdr, SendHash: r.SendHash, Representative: r.Representative}
	case types.BlockTypeChange:
		block = &types.ChangeBlock{Header: hdr, Previous: r.Previous, Representative: r.Representative}
	default:
		return nil, errUnknownBlockType(r.Type)
	}

	return &types.Transaction{
		Block:      block,
		Signature:  r.Signature,
		Work:       r.Work,
		ReceivedAt: fromMillis(r.ReceivedAt),
	}, nil
}

func newVoteRecord(v *types.Vote) voteRecord {
	return voteRecord{
		PublicKey: v.PublicKey,
		BlockHash: v.BlockHash,
		Timestamp: v.Timestamp,
		Signature: v.Signature,
		Weight:    v.Weight,
	}
}

func (r voteRecord) vote() *types.Vote {
	return &types.Vote{
		PublicKey: r.PublicKey,
		BlockHash: r.BlockHash,
		Timestamp: r.Timestamp,
		Signature: r.Signature,
		Weight:    r.Weight,
	}
}
