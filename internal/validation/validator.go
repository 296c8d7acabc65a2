// Package validation checks incoming transactions against the current state of
// the account they extend.
package validation

import (
	"context"

	"github.com/tendermint/lattice/internal/state"
	"github.com/tendermint/lattice/types"
)

// Validator enforces one ledger rule. Validate is only called for
// transactions the validator Supports. A nil violation means the rule holds;
// a non-nil error means the rule could not be evaluated.
type Validator interface {
	Supports(tx *types.Transaction) bool
	Validate(ctx context.Context, account types.Account, tx *types.Transaction) (*types.TransactionViolation, error)
}

// Chain runs validators in order and stops at the first violation.
type Chain struct {
	validators []Validator
}

// NewChain returns a chain running validators in the given order.
func NewChain(validators ...Validator) *Chain {
	return &Chain{validators: validators}
}

// DefaultChain returns the ledger rules in the order the node applies them.
func DefaultChain(receivables state.ReceivableRepository) *Chain {
	return NewChain(
		PreviousValidator{},
		HeightValidator{},
		SendValidator{},
		NewReceiveValidator(receivables),
		ChangeValidator{},
	)
}

// Validate returns the first violation, or nil if tx passes every rule.
func (c *Chain) Validate(ctx context.Context, account types.Account, tx *types.Transaction) (*types.TransactionViolation, error) {
	for _, v := range c.validators {
		if !v.Supports(tx) {
			continue
		}
		violation, err := v.Validate(ctx, account, tx)
		if err != nil || violation != nil {
			return violation, err
		}
	}
	return nil, nil
}
