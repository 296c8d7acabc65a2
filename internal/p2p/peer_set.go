package p2p

import (
	"sort"
	"sync"

	"github.com/tendermint/lattice/types"
)

// ConnectionStats is a point-in-time view of one connection.
type ConnectionStats struct {
	Address   types.NodeAddress
	PublicKey types.PublicKey
	Voter     bool
	// Messages is the number of inbound messages since the connection opened.
	Messages uint64
}

type peerConn struct {
	address   types.NodeAddress
	publicKey types.PublicKey
	voter     bool
	messages  uint64
}

// PeerSet tracks open connections, counts their inbound messages and
// remembers banned addresses.
type PeerSet struct {
	mtx     sync.RWMutex
	conns   map[types.ConnectionID]*peerConn
	banned  map[types.NodeAddress]struct{}
	metrics *Metrics
}

// NewPeerSet returns an empty peer set.
func NewPeerSet(metrics *Metrics) *PeerSet {
	if metrics == nil {
		metrics = NopMetrics()
	}
	return &PeerSet{
		conns:   make(map[types.ConnectionID]*peerConn),
		banned:  make(map[types.NodeAddress]struct{}),
		metrics: metrics,
	}
}

// Connected registers a connection. It returns false, and registers
// nothing, when the address is banned.
func (ps *PeerSet) Connected(ev types.EventNodeConnectedData) bool {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	if _, ok := ps.banned[ev.Address]; ok {
		return false
	}
	ps.conns[ev.Connection] = &peerConn{
		address:   ev.Address,
		publicKey: ev.PublicKey,
		voter:     ev.Voter,
	}
	ps.metrics.Connections.Set(float64(len(ps.conns)))
	return true
}

// Disconnected forgets a connection.
func (ps *PeerSet) Disconnected(conn types.ConnectionID) {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	delete(ps.conns, conn)
	ps.metrics.Connections.Set(float64(len(ps.conns)))
}

// Ban refuses the address from now on and forgets its connections, which
// are returned so the caller can close them.
func (ps *PeerSet) Ban(addr types.NodeAddress) []types.ConnectionID {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	if _, ok := ps.banned[addr]; !ok {
		ps.banned[addr] = struct{}{}
		ps.metrics.BannedAddresses.Add(1)
	}

	var dropped []types.ConnectionID
	for id, c := range ps.conns {
		if c.address == addr {
			dropped = append(dropped, id)
			delete(ps.conns, id)
		}
	}
	ps.metrics.Connections.Set(float64(len(ps.conns)))

	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
	return dropped
}

// IsBanned reports whether addr was banned.
func (ps *PeerSet) IsBanned(addr types.NodeAddress) bool {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()

	_, ok := ps.banned[addr]
	return ok
}

// Has reports whether conn is registered.
func (ps *PeerSet) Has(conn types.ConnectionID) bool {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()

	_, ok := ps.conns[conn]
	return ok
}

// Received counts an inbound message on conn. Messages from unknown
// connections, including those of banned addresses, are refused.
func (ps *PeerSet) Received(conn types.ConnectionID, msg types.Message) bool {
	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	c, ok := ps.conns[conn]
	if !ok {
		return false
	}
	c.messages++
	ps.metrics.MessagesReceived.With("message_type", msg.MessageType()).Add(1)
	return true
}

// Snapshot returns the current stats of every connection.
func (ps *PeerSet) Snapshot() map[types.ConnectionID]ConnectionStats {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()

	snap := make(map[types.ConnectionID]ConnectionStats, len(ps.conns))
	for id, c := range ps.conns {
		snap[id] = ConnectionStats{
			Address:   c.address,
			PublicKey: c.publicKey,
			Voter:     c.voter,
			Messages:  c.messages,
		}
	}
	return snap
}

// Select returns the connections matching strategy, minus exceptions, in a
// stable order.
func (ps *PeerSet) Select(strategy Strategy, exceptions ...types.ConnectionID) []types.ConnectionID {
	skip := make(map[types.ConnectionID]struct{}, len(exceptions))
	for _, id := range exceptions {
		skip[id] = struct{}{}
	}

	ps.mtx.RLock()
	defer ps.mtx.RUnlock()

	var out []types.ConnectionID
	for id, c := range ps.conns {
		if _, ok := skip[id]; ok {
			continue
		}
		if strategy == Voters && !c.voter {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of open connections.
func (ps *PeerSet) Len() int {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()
	return len(ps.conns)
}
