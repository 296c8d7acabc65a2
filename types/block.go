package types

import (
	"encoding/binary"
	"time"
)

// BlockType enumerates the four block variants of an account chain.
type BlockType uint8

const (
	BlockTypeSend BlockType = iota + 1
	BlockTypeReceive
	BlockTypeOpen
	BlockTypeChange
)

func (t BlockType) String() string {
	switch t {
	case BlockTypeSend:
		return "send"
	case BlockTypeReceive:
		return "receive"
	case BlockTypeOpen:
		return "open"
	case BlockTypeChange:
		return "change"
	default:
		return "unknown"
	}
}

// Header holds the fields shared by every block.
type Header struct {
	PublicKey PublicKey
	Height    uint64
	// Balance is the account balance after the block is applied.
	Balance   Amount
	Timestamp time.Time
}

// Block is one entry of an account chain. The set of implementations is
// closed: *SendBlock, *ReceiveBlock, *OpenBlock and *ChangeBlock.
type Block interface {
	Type() BlockType
	BlockHeader() Header

	// writeSignBytes appends the variant-specific fields in canonical order.
	writeSignBytes(buf []byte) []byte
}

// SendBlock moves Amount from the account to Receiver, creating a receivable.
type SendBlock struct {
	Header
	Previous Hash
	Receiver PublicKey
	Amount   Amount
}

// ReceiveBlock consumes the receivable created by SendHash.
type ReceiveBlock struct {
	Header
	Previous Hash
	SendHash Hash
}

// OpenBlock is the first block of an account. It consumes SendHash and names
// the initial representative.
type OpenBlock struct {
	Header
	SendHash       Hash
	Representative PublicKey
}

// ChangeBlock delegates the account's weight to a new representative.
type ChangeBlock struct {
	Header
	Previous       Hash
	Representative PublicKey
}

var (
	_ Block = (*SendBlock)(nil)
	_ Block = (*ReceiveBlock)(nil)
	_ Block = (*OpenBlock)(nil)
	_ Block = (*ChangeBlock)(nil)
)

func (b *SendBlock) Type() BlockType    { return BlockTypeSend }
func (b *ReceiveBlock) Type() BlockType { return BlockTypeReceive }
func (b *OpenBlock) Type() BlockType    { return BlockTypeOpen }
func (b *ChangeBlock) Type() BlockType  { return BlockTypeChange }

func (b *SendBlock) BlockHeader() Header    { return b.Header }
func (b *ReceiveBlock) BlockHeader() Header { return b.Header }
func (b *OpenBlock) BlockHeader() Header    { return b.Header }
func (b *ChangeBlock) BlockHeader() Header  { return b.Header }

func (b *SendBlock) writeSignBytes(buf []byte) []byte {
	buf = append(buf, b.Previous[:]...)
	buf = append(buf, b.Receiver[:]...)
	return appendAmount(buf, b.Amount)
}

func (b *ReceiveBlock) writeSignBytes(buf []byte) []byte {
	buf = append(buf, b.Previous[:]...)
	return append(buf, b.SendHash[:]...)
}

func (b *OpenBlock) writeSignBytes(buf []byte) []byte {
	buf = append(buf, b.SendHash[:]...)
	return append(buf, b.Representative[:]...)
}

func (b *ChangeBlock) writeSignBytes(buf []byte) []byte {
	buf = append(buf, b.Previous[:]...)
	return append(buf, b.Representative[:]...)
}

// PreviousHash returns the previous block hash, or false for open blocks.
func PreviousHash(b Block) (Hash, bool) {
	switch blk := b.(type) {
	case *SendBlock:
		return blk.Previous, true
	case *ReceiveBlock:
		return blk.Previous, true
	case *ChangeBlock:
		return blk.Previous, true
	default:
		return Hash{}, false
	}
}

// blockSignBytes is the canonical encoding hashed into the transaction hash.
func blockSignBytes(b Block) []byte {
	h := b.BlockHeader()
	buf := make([]byte, 0, 1+PublicKeySize+8+16+8+3*HashSize)
	buf = append(buf, byte(b.Type()))
	buf = append(buf, h.PublicKey[:]...)
	buf = binary.BigEndian.AppendUint64(buf, h.Height)
	buf = appendAmount(buf, h.Balance)
	buf = binary.BigEndian.AppendUint64(buf, uint64(h.Timestamp.UnixMilli()))
	return b.writeSignBytes(buf)
}

func appendAmount(buf []byte, a Amount) []byte {
	bz, _ := a.MarshalBinary()
	return append(buf, bz...)
}
