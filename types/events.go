package types

import "fmt"

// Reserved event names, used as log fields and metric labels.
const (
	EventTransactionReceived  = "TransactionReceived"
	EventTransactionValidated = "TransactionValidated"
	EventTransactionRejected  = "TransactionRejected"
	EventTransactionConfirmed = "TransactionConfirmed"
	EventTransactionSaved     = "TransactionSaved"
	EventElectionStarted      = "ElectionStarted"
	EventElectionExpired      = "ElectionExpired"
	EventVoteReceived         = "VoteReceived"
	EventVoteValidated        = "VoteValidated"
	EventVoteRejected         = "VoteRejected"
	EventVoteDropped          = "VoteDropped"
	EventVoteCast             = "VoteCast"
	EventNodeConnected        = "NodeConnected"
	EventNodeDisconnected     = "NodeDisconnected"
	EventNodeBanned           = "NodeBanned"
	EventInboundMessage       = "InboundNetworkMessage"
)

// Event is anything published on the event bus. The set of implementations
// is closed to this package; subscribers switch on the concrete type.
type Event interface {
	EventName() string
	isEvent()
}

// EventTransactionReceivedData carries a transaction that entered the node.
type EventTransactionReceivedData struct {
	Transaction *Transaction
}

// EventTransactionValidatedData carries a transaction that passed every
// ledger rule against the current account state.
type EventTransactionValidatedData struct {
	Transaction *Transaction
}

// EventTransactionRejectedData carries the first rule a transaction broke.
type EventTransactionRejectedData struct {
	Transaction *Transaction
	Reason      TransactionRejectionReason
	Message     string
}

// EventTransactionConfirmedData is published when an election reaches quorum.
type EventTransactionConfirmedData struct {
	Transaction *Transaction
	Votes       []*Vote
}

// EventTransactionSavedData is published once a confirmed transaction has been
// applied to the ledger. Account is the state before the commit.
type EventTransactionSavedData struct {
	Transaction *Transaction
	Previous    Account
}

// EventElectionStartedData is published when the first candidate for a chain
// slot is observed, and when a competing candidate joins it.
type EventElectionStartedData struct {
	Hash Hash
	Key  ChainKey
}

// EventElectionExpiredData is published when an election times out.
type EventElectionExpiredData struct {
	Transaction *Transaction
}

type EventVoteReceivedData struct {
	Vote *Vote
}

type EventVoteValidatedData struct {
	Vote *Vote
}

type EventVoteRejectedData struct {
	Vote   *Vote
	Reason VoteRejectionReason
}

type EventVoteDroppedData struct {
	Vote   *Vote
	Reason VoteDropReason
}

// EventVoteCastData is published for every vote this node signs.
type EventVoteCastData struct {
	Vote *Vote
}

// NodeAddress is a peer's network address (host:port).
type NodeAddress string

// ConnectionID identifies a single socket to a peer.
type ConnectionID string

type EventNodeConnectedData struct {
	Connection ConnectionID
	Address    NodeAddress
	PublicKey  PublicKey
	Voter      bool
}

type EventNodeDisconnectedData struct {
	Connection ConnectionID
}

// EventNodeBannedData asks the transport to drop every connection from
// Address.
type EventNodeBannedData struct {
	Address NodeAddress
}

// EventInboundMessageData wraps a message received from a connection.
type EventInboundMessageData struct {
	Connection ConnectionID
	Message    Message
}

// Message is the payload of a network message. Implementations live in this
// package so events can carry them.
type Message interface {
	MessageType() string
}

// VoteMessage gossips a vote.
type VoteMessage struct {
	Vote *Vote
}

// VoteRequestMessage asks a peer for its votes on Hashes.
type VoteRequestMessage struct {
	Hashes []Hash
}

// TransactionMessage gossips a transaction.
type TransactionMessage struct {
	Transaction *Transaction
}

func (VoteMessage) MessageType() string        { return "vote" }
func (VoteRequestMessage) MessageType() string { return "vote_request" }
func (TransactionMessage) MessageType() string { return "transaction" }

func (EventTransactionReceivedData) EventName() string  { return EventTransactionReceived }
func (EventTransactionValidatedData) EventName() string { return EventTransactionValidated }
func (EventTransactionRejectedData) EventName() string  { return EventTransactionRejected }
func (EventTransactionConfirmedData) EventName() string { return EventTransactionConfirmed }
func (EventTransactionSavedData) EventName() string     { return EventTransactionSaved }
func (EventElectionStartedData) EventName() string      { return EventElectionStarted }
func (EventElectionExpiredData) EventName() string      { return EventElectionExpired }
func (EventVoteReceivedData) EventName() string         { return EventVoteReceived }
func (EventVoteValidatedData) EventName() string        { return EventVoteValidated }
func (EventVoteRejectedData) EventName() string         { return EventVoteRejected }
func (EventVoteDroppedData) EventName() string          { return EventVoteDropped }
func (EventVoteCastData) EventName() string             { return EventVoteCast }
func (EventNodeConnectedData) EventName() string        { return EventNodeConnected }
func (EventNodeDisconnectedData) EventName() string     { return EventNodeDisconnected }
func (EventNodeBannedData) EventName() string           { return EventNodeBanned }
func (EventInboundMessageData) EventName() string       { return EventInboundMessage }

func (EventTransactionReceivedData) isEvent()  {}
func (EventTransactionValidatedData) isEvent() {}
func (EventTransactionRejectedData) isEvent()  {}
func (EventTransactionConfirmedData) isEvent() {}
func (EventTransactionSavedData) isEvent()     {}
func (EventElectionStartedData) isEvent()      {}
func (EventElectionExpiredData) isEvent()      {}
func (EventVoteReceivedData) isEvent()         {}
func (EventVoteValidatedData) isEvent()        {}
func (EventVoteRejectedData) isEvent()         {}
func (EventVoteDroppedData) isEvent()          {}
func (EventVoteCastData) isEvent()             {}
func (EventNodeConnectedData) isEvent()        {}
func (EventNodeDisconnectedData) isEvent()     {}
func (EventNodeBannedData) isEvent()           {}
func (EventInboundMessageData) isEvent()       {}

func (e EventTransactionRejectedData) String() string {
	return fmt.Sprintf("TransactionRejected{%v %s: %s}", e.Transaction, e.Reason, e.Message)
}
