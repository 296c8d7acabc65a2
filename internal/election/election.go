package election

import (
	"sort"
	"time"

	"github.com/tendermint/lattice/types"
)

// State is the phase of an election.
type State int

const (
	// Observed: the first candidate for the chain slot was seen.
	Observed State = iota + 1
	// Consensed: a competing candidate took the lead.
	Consensed
	// Agreed: the leader gathered quorum and the final vote was cast.
	Agreed
	// Staling: the election is old and its transaction is being rebroadcast.
	Staling
	// Confirmed: final votes reached quorum. Terminal.
	Confirmed
	// Staled: the election timed out. Terminal.
	Staled
)

func (s State) String() string {
	switch s {
	case Observed:
		return "Observed"
	case Consensed:
		return "Consensed"
	case Agreed:
		return "Agreed"
	case Staling:
		return "Staling"
	case Confirmed:
		return "Confirmed"
	case Staled:
		return "Staled"
	default:
		return "Unknown"
	}
}

// election tracks the competing candidates for one (account, height) slot.
type election struct {
	key        types.ChainKey
	candidates map[types.Hash]*types.Transaction
	// votes holds the newest vote of each voter, whichever candidate it
	// backs.
	votes  map[types.PublicKey]*types.Vote
	leader types.Hash
	state  State

	startedAt     time.Time
	lastBroadcast time.Time

	// ownVote is the last vote this node cast; finalCast is set once it
	// was final.
	ownVote   *types.Vote
	finalCast bool
}

func newElection(tx *types.Transaction, now time.Time) *election {
	hash := tx.Hash()
	return &election{
		key:           tx.Key(),
		candidates:    map[types.Hash]*types.Transaction{hash: tx},
		votes:         make(map[types.PublicKey]*types.Vote),
		leader:        hash,
		state:         Observed,
		startedAt:     now,
		lastBroadcast: now,
	}
}

// addVote records v if it is the voter's newest vote in this election.
func (e *election) addVote(v *types.Vote) bool {
	if prev, ok := e.votes[v.PublicKey]; ok && !v.NewerThan(prev) {
		return false
	}
	e.votes[v.PublicKey] = v
	return true
}

// tally returns the total and the final-only weight backing hash.
func (e *election) tally(hash types.Hash) (total, final types.Amount) {
	for _, v := range e.votes {
		if v.BlockHash != hash {
			continue
		}
		// weights are bounded by MaxSupply, sums cannot overflow
		total, _ = total.Add(v.Weight)
		if v.IsFinal() {
			final, _ = final.Add(v.Weight)
		}
	}
	return total, final
}

// heaviest returns the candidate with the most vote weight. The current
// leader keeps its place on ties.
func (e *election) heaviest() types.Hash {
	best := e.leader
	bestWeight, _ := e.tally(best)
	for hash := range e.candidates {
		if hash == best {
			continue
		}
		if w, _ := e.tally(hash); w.GT(bestWeight) {
			best, bestWeight = hash, w
		}
	}
	return best
}

// votesFor returns the votes backing hash ordered by voter.
func (e *election) votesFor(hash types.Hash) []*types.Vote {
	var out []*types.Vote
	for _, v := range e.votes {
		if v.BlockHash == hash {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublicKey.Compare(out[j].PublicKey) < 0 })
	return out
}
