package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendermint/lattice/internal/eventbus"
	"github.com/tendermint/lattice/internal/state"
	"github.com/tendermint/lattice/types"
)

// route drains one subscription. Events of a route are handled in order;
// different routes run concurrently. A handler error stops the node.
type route struct {
	name   string
	sub    *eventbus.Subscription
	handle func(context.Context, types.Event) error
}

func (n *Node) subscribe() error {
	defs := []struct {
		name   string
		handle func(context.Context, types.Event) error
		events []string
	}{
		{"transactions", n.handleTransaction, []string{
			types.EventTransactionReceived,
			types.EventTransactionValidated,
			types.EventTransactionRejected,
		}},
		{"votes", n.handleVote, []string{
			types.EventElectionStarted,
			types.EventVoteCast,
		}},
		{"network", n.handleNetwork, []string{
			types.EventInboundMessage,
			types.EventNodeConnected,
			types.EventNodeDisconnected,
			types.EventNodeBanned,
		}},
		{"ledger", n.handleLedger, []string{
			types.EventTransactionConfirmed,
			types.EventTransactionSaved,
		}},
	}

	for _, d := range defs {
		sub, err := n.eventBus.Subscribe("node/"+d.name, d.events...)
		if err != nil {
			return err
		}
		n.routes = append(n.routes, &route{name: d.name, sub: sub, handle: d.handle})
	}
	return nil
}

func (n *Node) runRoute(ctx context.Context, r *route) error {
	for {
		ev, err := r.sub.Next(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, eventbus.ErrTerminated):
			return nil
		case err != nil:
			return err
		}

		if err := r.handle(ctx, ev); err != nil {
			return fmt.Errorf("%s route, %s: %w", r.name, ev.EventName(), err)
		}
	}
}

func (n *Node) handleTransaction(ctx context.Context, ev types.Event) error {
	switch ev := ev.(type) {
	case types.EventTransactionReceivedData:
		return n.processor.Process(ctx, ev.Transaction)
	case types.EventTransactionValidatedData:
		n.elections.Observe(ctx, ev.Transaction)
	case types.EventTransactionRejectedData:
		n.prioritizer.TransactionRejected(ev.Transaction.Hash())
	}
	return nil
}

func (n *Node) handleVote(ctx context.Context, ev types.Event) error {
	switch ev := ev.(type) {
	case types.EventElectionStartedData:
		n.prioritizer.ElectionStarted(ev.Hash)
	case types.EventVoteCastData:
		n.prioritizer.MarkSeen(ev.Vote)
	}
	return nil
}

func (n *Node) handleNetwork(ctx context.Context, ev types.Event) error {
	switch ev := ev.(type) {
	case types.EventInboundMessageData:
		if !n.peers.Received(ev.Connection, ev.Message) {
			n.logger.Debug("dropping message from unknown connection", "conn", ev.Connection)
			return nil
		}
		switch msg := ev.Message.(type) {
		case types.VoteMessage:
			n.prioritizer.Receive(msg.Vote)
		case types.VoteRequestMessage:
			n.elections.VoteRequest(ctx, ev.Connection, msg.Hashes)
		case types.TransactionMessage:
			n.eventBus.Publish(types.EventTransactionReceivedData{Transaction: msg.Transaction})
		}

	case types.EventNodeConnectedData:
		if !n.peers.Connected(ev) {
			n.logger.Info("refusing banned peer", "address", ev.Address, "conn", ev.Connection)
		}

	case types.EventNodeDisconnectedData:
		n.peers.Disconnected(ev.Connection)

	case types.EventNodeBannedData:
		dropped := n.peers.Ban(ev.Address)
		n.logger.Info("peer banned", "address", ev.Address, "connections", len(dropped))
	}
	return nil
}

func (n *Node) handleLedger(ctx context.Context, ev types.Event) error {
	switch ev := ev.(type) {
	case types.EventTransactionConfirmedData:
		return n.commit(ctx, ev.Transaction, ev.Votes)
	case types.EventTransactionSavedData:
		n.elections.TransactionSaved(ev.Transaction)
	}
	return nil
}

// commit applies a confirmed transaction to the ledger and the weight
// table exactly once.
func (n *Node) commit(ctx context.Context, tx *types.Transaction, votes []*types.Vote) error {
	hash := tx.Hash()
	known, err := n.store.HasTransaction(hash)
	if err != nil {
		return err
	}
	if known {
		n.logger.Debug("ignoring repeated confirmation", "tx", tx)
		return nil
	}

	prev, err := n.store.Commit(ctx, tx)
	switch {
	case errors.Is(err, state.ErrAlreadyCommitted):
		return nil
	case errors.Is(err, state.ErrOutOfOrder), errors.Is(err, state.ErrReceivableMissing):
		// the ledger is behind; filling the gap is left to bootstrapping
		n.logger.Error("confirmed transaction does not apply", "tx", tx, "err", err)
		return nil
	case err != nil:
		return fmt.Errorf("committing %v: %w", tx, err)
	}

	if err := n.store.SaveVotes(ctx, hash, votes); err != nil {
		return fmt.Errorf("saving votes of %v: %w", tx, err)
	}
	if err := n.weighter.Apply(tx, prev); err != nil {
		return fmt.Errorf("applying weight of %v: %w", tx, err)
	}

	n.logger.Info("transaction saved", "tx", tx, "height", tx.Height(), "votes", len(votes))
	n.eventBus.Publish(types.EventTransactionSavedData{Transaction: tx, Previous: prev})
	return nil
}
