package types

import "fmt"

// TransactionRejectionReason explains why a transaction failed validation.
type TransactionRejectionReason string

const (
	InvalidPrevious       TransactionRejectionReason = "INVALID_PREVIOUS"
	InvalidHeight         TransactionRejectionReason = "INVALID_HEIGHT"
	InvalidAmount         TransactionRejectionReason = "INVALID_AMOUNT"
	InvalidBalance        TransactionRejectionReason = "INVALID_BALANCE"
	InvalidReceiver       TransactionRejectionReason = "INVALID_RECEIVER"
	ReceivableNotFound    TransactionRejectionReason = "RECEIVABLE_NOT_FOUND"
	InvalidRepresentative TransactionRejectionReason = "INVALID_REPRESENTATIVE"
	InvalidTransaction    TransactionRejectionReason = "INVALID_TRANSACTION"
)

// TransactionViolation is the first ledger rule a transaction broke.
type TransactionViolation struct {
	Reason  TransactionRejectionReason
	Message string
}

// NewViolation builds a violation with a formatted message.
func NewViolation(reason TransactionRejectionReason, format string, args ...interface{}) *TransactionViolation {
	return &TransactionViolation{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (v *TransactionViolation) Error() string {
	return fmt.Sprintf("%s: %s", v.Reason, v.Message)
}

// VoteRejectionReason explains why a vote was refused outright.
type VoteRejectionReason string

const (
	InvalidVotingWeight VoteRejectionReason = "INVALID_VOTING_WEIGHT"
	InvalidSignature    VoteRejectionReason = "INVALID_SIGNATURE"
)

// VoteDropReason explains why an otherwise acceptable vote was discarded.
type VoteDropReason string

const (
	NoElection         VoteDropReason = "NO_ELECTION"
	TransactionDropped VoteDropReason = "TRANSACTION_DROPPED"
	Superseded         VoteDropReason = "SUPERSEDED"
	QueueFull          VoteDropReason = "QUEUE_FULL"
)
