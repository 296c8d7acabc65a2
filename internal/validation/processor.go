package validation

import (
	"context"
	"fmt"

	"github.com/tendermint/lattice/internal/state"
	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/types"
)

// EventPublisher is the subset of the event bus the processor needs.
type EventPublisher interface {
	Publish(types.Event)
}

// Processor admits received transactions: it loads the account each one
// extends, runs the validator chain and publishes the outcome.
type Processor struct {
	logger   log.Logger
	accounts state.AccountRepository
	chain    *Chain
	bus      EventPublisher
	metrics  *Metrics
}

// NewProcessor returns a processor validating against accounts with chain.
func NewProcessor(
	logger log.Logger,
	accounts state.AccountRepository,
	chain *Chain,
	bus EventPublisher,
	metrics *Metrics,
) *Processor {
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Processor{
		logger:   logger,
		accounts: accounts,
		chain:    chain,
		bus:      bus,
		metrics:  metrics,
	}
}

// Process validates tx and publishes TransactionValidated or
// TransactionRejected. The returned error is reserved for repository
// failures.
func (p *Processor) Process(ctx context.Context, tx *types.Transaction) error {
	if err := tx.ValidateBasic(); err != nil {
		p.reject(tx, types.NewViolation(types.InvalidTransaction, "%v", err))
		return nil
	}

	account, err := p.accounts.GetByPublicKey(ctx, tx.PublicKey())
	if err != nil {
		return fmt.Errorf("loading account %v: %w", tx.PublicKey(), err)
	}

	violation, err := p.chain.Validate(ctx, account, tx)
	if err != nil {
		return fmt.Errorf("validating %v: %w", tx, err)
	}
	if violation != nil {
		p.reject(tx, violation)
		return nil
	}

	p.metrics.Validated.Add(1)
	p.logger.Debug("transaction validated", "tx", tx)
	p.bus.Publish(types.EventTransactionValidatedData{Transaction: tx})
	return nil
}

func (p *Processor) reject(tx *types.Transaction, violation *types.TransactionViolation) {
	p.metrics.Rejected.With("reason", string(violation.Reason)).Add(1)
	p.logger.Debug("transaction rejected", "tx", tx, "reason", violation.Reason, "msg", violation.Message)
	p.bus.Publish(types.EventTransactionRejectedData{
		Transaction: tx,
		Reason:      violation.Reason,
		Message:     violation.Message,
	})
}
