// Package p2p is the boundary between the consensus core and the network. It
// tracks connected peers, counts their messages and fans outbound messages
// out to the right connections. Framing and connection management belong to
// a Transport.
package p2p

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/types"
)

// Strategy selects which connections receive a published message.
type Strategy int

const (
	// Everyone sends to every connection.
	Everyone Strategy = iota + 1
	// Voters sends to connections whose peer announced itself as a voter.
	Voters
)

func (s Strategy) String() string {
	switch s {
	case Everyone:
		return "EVERYONE"
	case Voters:
		return "VOTERS"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Publisher sends messages to peers.
type Publisher interface {
	// Publish sends msg to every connection selected by strategy, except
	// those listed in exceptions.
	Publish(ctx context.Context, msg types.Message, strategy Strategy, exceptions ...types.ConnectionID) error
	// SendTo sends msg to a single connection.
	SendTo(ctx context.Context, conn types.ConnectionID, msg types.Message) error
}

// Transport delivers a message over a single connection.
type Transport interface {
	Send(ctx context.Context, conn types.ConnectionID, msg types.Message) error
}

// ErrUnknownConnection is returned when sending to a connection the peer set
// does not know.
var ErrUnknownConnection = errors.New("unknown connection")

// Router implements Publisher on top of a PeerSet and a Transport.
type Router struct {
	logger    log.Logger
	peers     *PeerSet
	transport Transport
	metrics   *Metrics
}

// NewRouter returns a router sending through transport to the connections
// tracked by peers.
func NewRouter(logger log.Logger, peers *PeerSet, transport Transport, metrics *Metrics) *Router {
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &Router{
		logger:    logger,
		peers:     peers,
		transport: transport,
		metrics:   metrics,
	}
}

// Publish implements Publisher. Delivery failures on single connections are
// logged and do not stop the fan-out; the first one is returned.
func (r *Router) Publish(ctx context.Context, msg types.Message, strategy Strategy, exceptions ...types.ConnectionID) error {
	var firstErr error
	for _, conn := range r.peers.Select(strategy, exceptions...) {
		if err := r.send(ctx, conn, msg); err != nil {
			r.logger.Debug("failed to send message", "conn", conn, "type", msg.MessageType(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SendTo implements Publisher.
func (r *Router) SendTo(ctx context.Context, conn types.ConnectionID, msg types.Message) error {
	if !r.peers.Has(conn) {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, conn)
	}
	return r.send(ctx, conn, msg)
}

func (r *Router) send(ctx context.Context, conn types.ConnectionID, msg types.Message) error {
	if err := r.transport.Send(ctx, conn, msg); err != nil {
		return err
	}
	r.metrics.MessagesSent.With("message_type", msg.MessageType()).Add(1)
	return nil
}
