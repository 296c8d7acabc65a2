package factory

import (
	"time"

	"github.com/tendermint/lattice/types"
)

// Key returns a deterministic private key for seed.
func Key(seed byte) types.PrivateKey {
	raw := make([]byte, 32)
	raw[0] = seed
	raw[31] = 0x5a
	return types.PrivateKeyFromSeed(raw)
}

// Account builds valid blocks for one account chain, tracking the head state
// each block leaves behind.
type Account struct {
	Key   types.PrivateKey
	State types.Account

	clock time.Time
}

// NewAccount returns an unopened account for seed.
func NewAccount(seed byte) *Account {
	key := Key(seed)
	return &Account{
		Key:   key,
		State: types.ZeroAccount(key.PublicKey()),
		clock: time.UnixMilli(1_600_000_000_000),
	}
}

func (a *Account) PublicKey() types.PublicKey { return a.Key.PublicKey() }

// Genesis opens the account directly with balance, delegating to rep.
func (a *Account) Genesis(balance uint64, rep types.PublicKey) types.Account {
	a.State.Height = 1
	a.State.Balance = types.NewAmount(balance)
	a.State.Representative = rep
	a.State.LastTransactionHash = types.GenesisHash(a.State.PublicKey)
	a.State.LastTransactionTimestamp = a.clock
	return a.State
}

// Clone returns an independent copy, used to build competing blocks.
func (a *Account) Clone() *Account {
	cp := *a
	return &cp
}

func (a *Account) header(balance types.Amount) types.Header {
	a.clock = a.clock.Add(time.Second)
	return types.Header{
		PublicKey: a.PublicKey(),
		Height:    a.State.Height + 1,
		Balance:   balance,
		Timestamp: a.clock,
	}
}

func (a *Account) advance(tx *types.Transaction, rep *types.PublicKey) *types.Transaction {
	a.State.Height = tx.Height()
	a.State.Balance = tx.Balance()
	a.State.LastTransactionHash = tx.Hash()
	a.State.LastTransactionTimestamp = tx.Header().Timestamp
	if rep != nil {
		a.State.Representative = *rep
	}
	return tx
}

// Send transfers amount to receiver.
func (a *Account) Send(receiver types.PublicKey, amount uint64) *types.Transaction {
	balance, err := a.State.Balance.Sub(types.NewAmount(amount))
	if err != nil {
		panic(err)
	}
	tx := types.NewTransaction(&types.SendBlock{
		Header:   a.header(balance),
		Previous: a.State.LastTransactionHash,
		Receiver: receiver,
		Amount:   types.NewAmount(amount),
	}, a.Key, 0)
	return a.advance(tx, nil)
}

// Open consumes send as the first block of the account.
func (a *Account) Open(send *types.Transaction, rep types.PublicKey) *types.Transaction {
	amount := send.Block.(*types.SendBlock).Amount
	tx := types.NewTransaction(&types.OpenBlock{
		Header:         a.header(amount),
		SendHash:       send.Hash(),
		Representative: rep,
	}, a.Key, 0)
	return a.advance(tx, &rep)
}

// Receive consumes send.
func (a *Account) Receive(send *types.Transaction) *types.Transaction {
	balance, err := a.State.Balance.Add(send.Block.(*types.SendBlock).Amount)
	if err != nil {
		panic(err)
	}
	tx := types.NewTransaction(&types.ReceiveBlock{
		Header:   a.header(balance),
		Previous: a.State.LastTransactionHash,
		SendHash: send.Hash(),
	}, a.Key, 0)
	return a.advance(tx, nil)
}

// Change delegates the account to rep.
func (a *Account) Change(rep types.PublicKey) *types.Transaction {
	tx := types.NewTransaction(&types.ChangeBlock{
		Header:         a.header(a.State.Balance),
		Previous:       a.State.LastTransactionHash,
		Representative: rep,
	}, a.Key, 0)
	return a.advance(tx, &rep)
}

// Vote signs a non-final vote from key for tx at t, carrying weight.
func Vote(key types.PrivateKey, tx *types.Transaction, t time.Time, weight uint64) *types.Vote {
	return types.NewVote(key, tx.Hash(), t).WithWeight(types.NewAmount(weight))
}

// FinalVote signs a final vote from key for tx, carrying weight.
func FinalVote(key types.PrivateKey, tx *types.Transaction, weight uint64) *types.Vote {
	return types.NewFinalVote(key, tx.Hash()).WithWeight(types.NewAmount(weight))
}
