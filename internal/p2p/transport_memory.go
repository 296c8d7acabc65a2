package p2p

import (
	"context"
	"sync"

	"github.com/tendermint/lattice/types"
)

// Envelope is a message addressed to a connection.
type Envelope struct {
	To      types.ConnectionID
	Message types.Message
}

// MemoryTransport is an in-process Transport. Every sent message is handed
// to the delivery function, if any, and kept until Drain is called.
type MemoryTransport struct {
	mtx     sync.Mutex
	sent    []Envelope
	deliver func(Envelope)
}

// NewMemoryTransport returns a transport passing sent messages to deliver,
// which may be nil.
func NewMemoryTransport(deliver func(Envelope)) *MemoryTransport {
	return &MemoryTransport{deliver: deliver}
}

// Send implements Transport.
func (t *MemoryTransport) Send(ctx context.Context, conn types.ConnectionID, msg types.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := Envelope{To: conn, Message: msg}
	t.mtx.Lock()
	t.sent = append(t.sent, env)
	deliver := t.deliver
	t.mtx.Unlock()

	if deliver != nil {
		deliver(env)
	}
	return nil
}

// Drain returns and forgets every message sent so far.
func (t *MemoryTransport) Drain() []Envelope {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	sent := t.sent
	t.sent = nil
	return sent
}

// DiscardTransport drops every message. Nodes without a network stack use
// it; they never have connections to send to.
type DiscardTransport struct{}

// Send implements Transport.
func (DiscardTransport) Send(context.Context, types.ConnectionID, types.Message) error { return nil }
