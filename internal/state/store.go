package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/tendermint/lattice/types"
)

// key prefixes
const (
	prefixAccount     = int64(1)
	prefixReceivable  = int64(2)
	prefixTransaction = int64(3)
	prefixCommit      = int64(4)
	prefixVote        = int64(5)
	prefixGenesis     = int64(6)
	prefixMeta        = int64(7)
)

var (
	// ErrAlreadyCommitted is returned when a transaction hash is committed twice.
	ErrAlreadyCommitted = errors.New("transaction already committed")
	// ErrOutOfOrder is returned when a commit does not extend the account chain.
	ErrOutOfOrder = errors.New("transaction does not extend account chain")
	// ErrReceivableMissing is returned when a receive or open commit finds no
	// receivable to consume.
	ErrReceivableMissing = errors.New("receivable not found")
	// ErrNotFound is returned by lookups for unknown hashes.
	ErrNotFound = errors.New("not found")
)

func errUnknownBlockType(t types.BlockType) error {
	return fmt.Errorf("unknown block type %d", t)
}

// AccountRepository returns current account state. It never reports a missing
// account as an error: unknown keys yield the zero account.
type AccountRepository interface {
	GetByPublicKey(ctx context.Context, pk types.PublicKey) (types.Account, error)
}

// ReceivableRepository looks up and removes pending sends.
type ReceivableRepository interface {
	// FindByID returns nil, nil when no receivable exists for hash.
	FindByID(ctx context.Context, hash types.Hash) (*types.Receivable, error)
	Delete(ctx context.Context, hash types.Hash) error
}

// Store is the node's ledger: accounts, receivables, confirmed transactions
// and their votes, kept in a single key-value database.
type Store struct {
	db dbm.DB

	// commitMtx serializes Commit; reads are lock free.
	commitMtx sync.Mutex
	seq       uint64
}

// NewStore opens a Store over db, resuming the commit sequence.
func NewStore(db dbm.DB) (*Store, error) {
	s := &Store{db: db}

	bz, err := db.Get(metaKey("seq"))
	if err != nil {
		return nil, err
	}
	if len(bz) > 0 {
		if err := unmarshal(bz, &s.seq); err != nil {
			return nil, fmt.Errorf("decoding commit sequence: %w", err)
		}
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Accounts returns the account repository view of the store.
func (s *Store) Accounts() AccountRepository { return accountView{s} }

// Receivables returns the receivable repository view of the store.
func (s *Store) Receivables() ReceivableRepository { return receivableView{s} }

// Height returns the number of committed transactions.
func (s *Store) Height() uint64 {
	s.commitMtx.Lock()
	defer s.commitMtx.Unlock()
	return s.seq
}

func (s *Store) account(pk types.PublicKey) (types.Account, error) {
	bz, err := s.db.Get(accountKey(pk))
	if err != nil {
		return types.Account{}, err
	}
	if len(bz) == 0 {
		return types.ZeroAccount(pk), nil
	}
	var rec accountRecord
	if err := unmarshal(bz, &rec); err != nil {
		return types.Account{}, fmt.Errorf("decoding account %v: %w", pk, err)
	}
	return rec.account(), nil
}

func (s *Store) receivable(hash types.Hash) (*types.Receivable, error) {
	bz, err := s.db.Get(receivableKey(hash))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, nil
	}
	var rec receivableRecord
	if err := unmarshal(bz, &rec); err != nil {
		return nil, fmt.Errorf("decoding receivable %v: %w", hash, err)
	}
	return &types.Receivable{Hash: rec.Hash, Receiver: rec.Receiver, Amount: rec.Amount}, nil
}

// SaveReceivable stores a pending send outside of a commit. Used by genesis
// tooling and tests.
func (s *Store) SaveReceivable(ctx context.Context, r types.Receivable) error {
	bz, err := marshal(receivableRecord{Hash: r.Hash, Receiver: r.Receiver, Amount: r.Amount})
	if err != nil {
		return err
	}
	return s.db.Set(receivableKey(r.Hash), bz)
}

// HasTransaction reports whether hash was committed.
func (s *Store) HasTransaction(hash types.Hash) (bool, error) {
	return s.db.Has(transactionKey(hash))
}

// Transaction loads a committed transaction.
func (s *Store) Transaction(ctx context.Context, hash types.Hash) (*types.Transaction, error) {
	bz, err := s.db.Get(transactionKey(hash))
	if err != nil {
		return nil, err
	}
	if len(bz) == 0 {
		return nil, ErrNotFound
	}
	var rec transactionRecord
	if err := unmarshal(bz, &rec); err != nil {
		return nil, fmt.Errorf("decoding transaction %v: %w", hash, err)
	}
	return rec.transaction()
}

// SaveVotes persists the votes that confirmed hash.
func (s *Store) SaveVotes(ctx context.Context, hash types.Hash, votes []*types.Vote) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, v := range votes {
		bz, err := marshal(newVoteRecord(v))
		if err != nil {
			return err
		}
		if err := batch.Set(voteKey(hash, v.PublicKey), bz); err != nil {
			return err
		}
	}
	return batch.Write()
}

// Votes loads the persisted votes for hash, ordered by voter key.
func (s *Store) Votes(ctx context.Context, hash types.Hash) ([]*types.Vote, error) {
	iter, err := dbm.IteratePrefix(s.db, votePrefix(hash))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var votes []*types.Vote
	for ; iter.Valid(); iter.Next() {
		var rec voteRecord
		if err := unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding vote: %w", err)
		}
		votes = append(votes, rec.vote())
	}
	return votes, iter.Error()
}

// Genesis opens accounts directly, without receivables. It must run on an
// empty store.
func (s *Store) Genesis(ctx context.Context, accounts []types.Account) error {
	s.commitMtx.Lock()
	defer s.commitMtx.Unlock()

	if s.seq != 0 {
		return errors.New("genesis on a non-empty ledger")
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, acc := range accounts {
		bz, err := marshal(newAccountRecord(acc))
		if err != nil {
			return err
		}
		if err := batch.Set(accountKey(acc.PublicKey), bz); err != nil {
			return err
		}
		if err := batch.Set(genesisKey(acc.PublicKey), bz); err != nil {
			return err
		}
	}
	return batch.WriteSync()
}

// GenesisAccounts returns the accounts created by Genesis.
func (s *Store) GenesisAccounts(ctx context.Context) ([]types.Account, error) {
	iter, err := dbm.IteratePrefix(s.db, prefixToBytes(prefixGenesis))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var accounts []types.Account
	for ; iter.Valid(); iter.Next() {
		var rec accountRecord
		if err := unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding genesis account: %w", err)
		}
		accounts = append(accounts, rec.account())
	}
	return accounts, iter.Error()
}

// Commit applies a validated transaction to the ledger in one batch and
// returns the account state it replaced.
func (s *Store) Commit(ctx context.Context, tx *types.Transaction) (types.Account, error) {
	s.commitMtx.Lock()
	defer s.commitMtx.Unlock()

	hash := tx.Hash()
	if ok, err := s.HasTransaction(hash); err != nil {
		return types.Account{}, err
	} else if ok {
		return types.Account{}, ErrAlreadyCommitted
	}

	prev, err := s.account(tx.PublicKey())
	if err != nil {
		return types.Account{}, err
	}
	if tx.Height() != prev.Height+1 {
		return types.Account{}, fmt.Errorf("%w: height %d on account at %d", ErrOutOfOrder, tx.Height(), prev.Height)
	}
	previous, chained := types.PreviousHash(tx.Block)
	if chained && !prev.IsOpened() {
		return types.Account{}, fmt.Errorf("%w: %v block on unopened account", ErrOutOfOrder, tx.Type())
	}
	if chained && previous != prev.LastTransactionHash {
		return types.Account{}, fmt.Errorf("%w: previous %v, head %v", ErrOutOfOrder, previous, prev.LastTransactionHash)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	next := prev
	next.Height = tx.Height()
	next.Balance = tx.Balance()
	next.LastTransactionHash = hash
	next.LastTransactionTimestamp = tx.Header().Timestamp

	switch blk := tx.Block.(type) {
	case *types.SendBlock:
		bz, err := marshal(receivableRecord{Hash: hash, Receiver: blk.Receiver, Amount: blk.Amount})
		if err != nil {
			return types.Account{}, err
		}
		if err := batch.Set(receivableKey(hash), bz); err != nil {
			return types.Account{}, err
		}
	case *types.ReceiveBlock:
		if err := s.consume(batch, blk.SendHash); err != nil {
			return types.Account{}, err
		}
	case *types.OpenBlock:
		if err := s.consume(batch, blk.SendHash); err != nil {
			return types.Account{}, err
		}
		next.Representative = blk.Representative
	case *types.ChangeBlock:
		next.Representative = blk.Representative
	}

	accBz, err := marshal(newAccountRecord(next))
	if err != nil {
		return types.Account{}, err
	}
	txBz, err := marshal(newTransactionRecord(tx))
	if err != nil {
		return types.Account{}, err
	}
	commitBz, err := marshal(commitRecord{Hash: hash, Previous: newAccountRecord(prev)})
	if err != nil {
		return types.Account{}, err
	}
	seqBz, err := marshal(s.seq + 1)
	if err != nil {
		return types.Account{}, err
	}

	for _, kv := range []struct{ k, v []byte }{
		{accountKey(next.PublicKey), accBz},
		{transactionKey(hash), txBz},
		{commitKey(s.seq + 1), commitBz},
		{metaKey("seq"), seqBz},
	} {
		if err := batch.Set(kv.k, kv.v); err != nil {
			return types.Account{}, err
		}
	}

	if err := batch.WriteSync(); err != nil {
		return types.Account{}, err
	}
	s.seq++

	return prev, nil
}

func (s *Store) consume(batch dbm.Batch, sendHash types.Hash) error {
	ok, err := s.db.Has(receivableKey(sendHash))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %v", ErrReceivableMissing, sendHash)
	}
	return batch.Delete(receivableKey(sendHash))
}

// IterateCommitted calls fn for every committed transaction in commit order,
// together with the account state it replaced.
func (s *Store) IterateCommitted(ctx context.Context, fn func(tx *types.Transaction, prev types.Account) error) error {
	// collect first: fn may read from the store while we iterate
	records, err := s.commitRecords()
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx, err := s.Transaction(ctx, rec.Hash)
		if err != nil {
			return err
		}
		if err := fn(tx, rec.Previous.account()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) commitRecords() ([]commitRecord, error) {
	iter, err := dbm.IteratePrefix(s.db, prefixToBytes(prefixCommit))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []commitRecord
	for ; iter.Valid(); iter.Next() {
		var rec commitRecord
		if err := unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decoding commit record: %w", err)
		}
		records = append(records, rec)
	}
	return records, iter.Error()
}

type accountView struct{ s *Store }

func (v accountView) GetByPublicKey(ctx context.Context, pk types.PublicKey) (types.Account, error) {
	return v.s.account(pk)
}

type receivableView struct{ s *Store }

func (v receivableView) FindByID(ctx context.Context, hash types.Hash) (*types.Receivable, error) {
	return v.s.receivable(hash)
}

func (v receivableView) Delete(ctx context.Context, hash types.Hash) error {
	return v.s.db.Delete(receivableKey(hash))
}

//---------------------------------------------------------------------------
// keys

func prefixToBytes(prefix int64) []byte {
	key, err := orderedcode.Append(nil, prefix)
	if err != nil {
		panic(err)
	}
	return key
}

func accountKey(pk types.PublicKey) []byte {
	key, err := orderedcode.Append(nil, prefixAccount, string(pk[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func genesisKey(pk types.PublicKey) []byte {
	key, err := orderedcode.Append(nil, prefixGenesis, string(pk[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func receivableKey(hash types.Hash) []byte {
	key, err := orderedcode.Append(nil, prefixReceivable, string(hash[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func transactionKey(hash types.Hash) []byte {
	key, err := orderedcode.Append(nil, prefixTransaction, string(hash[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func commitKey(seq uint64) []byte {
	key, err := orderedcode.Append(nil, prefixCommit, seq)
	if err != nil {
		panic(err)
	}
	return key
}

func votePrefix(hash types.Hash) []byte {
	key, err := orderedcode.Append(nil, prefixVote, string(hash[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func voteKey(hash types.Hash, voter types.PublicKey) []byte {
	key, err := orderedcode.Append(nil, prefixVote, string(hash[:]), string(voter[:]))
	if err != nil {
		panic(err)
	}
	return key
}

func metaKey(name string) []byte {
	key, err := orderedcode.Append(nil, prefixMeta, name)
	if err != nil {
		panic(err)
	}
	return key
}
