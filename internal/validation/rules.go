package validation

import (
	"context"

	"github.com/tendermint/lattice/internal/state"
	"github.com/tendermint/lattice/types"
)

// PreviousValidator requires Send, Receive and Change blocks to link to the
// head of an opened account chain.
type PreviousValidator struct{}

func (PreviousValidator) Supports(tx *types.Transaction) bool {
	_, ok := types.PreviousHash(tx.Block)
	return ok
}

func (PreviousValidator) Validate(_ context.Context, account types.Account, tx *types.Transaction) (*types.TransactionViolation, error) {
	previous, _ := types.PreviousHash(tx.Block)
	if !account.IsOpened() {
		return types.NewViolation(types.InvalidPrevious,
			"%v block on unopened account %v", tx.Type(), account.PublicKey), nil
	}
	if previous != account.LastTransactionHash {
		return types.NewViolation(types.InvalidPrevious,
			"previous %v does not match account head %v", previous, account.LastTransactionHash), nil
	}
	return nil, nil
}

// HeightValidator requires every block to sit directly above the account head.
type HeightValidator struct{}

func (HeightValidator) Supports(*types.Transaction) bool { return true }

func (HeightValidator) Validate(_ context.Context, account types.Account, tx *types.Transaction) (*types.TransactionViolation, error) {
	if tx.Height() != account.Height+1 {
		return types.NewViolation(types.InvalidHeight,
			"height %d does not extend account at height %d", tx.Height(), account.Height), nil
	}
	return nil, nil
}

// SendValidator requires the balance to drop by exactly the sent amount.
type SendValidator struct{}

func (SendValidator) Supports(tx *types.Transaction) bool {
	return tx.Type() == types.BlockTypeSend
}

func (SendValidator) Validate(_ context.Context, account types.Account, tx *types.Transaction) (*types.TransactionViolation, error) {
	send := tx.Block.(*types.SendBlock)

	expected, err := tx.Balance().Add(send.Amount)
	if err != nil {
		return types.NewViolation(types.InvalidAmount, "balance %v plus amount %v: %v",
			tx.Balance(), send.Amount, err), nil
	}
	if !expected.Equal(account.Balance) {
		return types.NewViolation(types.InvalidAmount,
			"account balance %v, block balance %v, amount %v", account.Balance, tx.Balance(), send.Amount), nil
	}
	return nil, nil
}

// ReceiveValidator checks Receive and Open blocks against the receivable they
// consume.
type ReceiveValidator struct {
	receivables state.ReceivableRepository
}

func NewReceiveValidator(receivables state.ReceivableRepository) *ReceiveValidator {
	return &ReceiveValidator{receivables: receivables}
}

func (*ReceiveValidator) Supports(tx *types.Transaction) bool {
	t := tx.Type()
	return t == types.BlockTypeReceive || t == types.BlockTypeOpen
}

func (v *ReceiveValidator) Validate(ctx context.Context, account types.Account, tx *types.Transaction) (*types.TransactionViolation, error) {
	var sendHash types.Hash
	switch blk := tx.Block.(type) {
	case *types.ReceiveBlock:
		sendHash = blk.SendHash
	case *types.OpenBlock:
		sendHash = blk.SendHash
	}

	receivable, err := v.receivables.FindByID(ctx, sendHash)
	if err != nil {
		return nil, err
	}
	if receivable == nil {
		return types.NewViolation(types.ReceivableNotFound, "no receivable for %v", sendHash), nil
	}
	if receivable.Receiver != tx.PublicKey() {
		return types.NewViolation(types.InvalidReceiver,
			"receivable %v is for %v", sendHash, receivable.Receiver), nil
	}

	expected, err := tx.Balance().Sub(receivable.Amount)
	if err != nil {
		return types.NewViolation(types.InvalidBalance, "balance %v minus amount %v: %v",
			tx.Balance(), receivable.Amount, err), nil
	}
	if !expected.Equal(account.Balance) {
		return types.NewViolation(types.InvalidBalance,
			"account balance %v, block balance %v, received %v", account.Balance, tx.Balance(), receivable.Amount), nil
	}
	return nil, nil
}

// ChangeValidator requires a new representative and an unchanged balance.
type ChangeValidator struct{}

func (ChangeValidator) Supports(tx *types.Transaction) bool {
	return tx.Type() == types.BlockTypeChange
}

func (ChangeValidator) Validate(_ context.Context, account types.Account, tx *types.Transaction) (*types.TransactionViolation, error) {
	change := tx.Block.(*types.ChangeBlock)

	if change.Representative == account.Representative {
		return types.NewViolation(types.InvalidRepresentative,
			"account already represented by %v", change.Representative), nil
	}
	if !tx.Balance().Equal(account.Balance) {
		return types.NewViolation(types.InvalidBalance,
			"change block balance %v differs from account balance %v", tx.Balance(), account.Balance), nil
	}
	return nil, nil
}
