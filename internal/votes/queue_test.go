package votes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lattice/internal/test/factory"
	"github.com/tendermint/lattice/types"
)

var testHash = types.Sum256([]byte("tx"))

func weightedVote(seed byte, weight uint64, ts int64) *types.Vote {
	return types.NewVote(factory.Key(seed), testHash, time.UnixMilli(ts)).WithWeight(types.NewAmount(weight))
}

func TestQueueEvictsLightestWhenFull(t *testing.T) {
	q := NewQueue(2)

	v200 := weightedVote(1, 200, 1000)
	v50 := weightedVote(2, 50, 1000)
	v15 := weightedVote(3, 15, 1000)
	v80 := weightedVote(4, 80, 1000)

	dropped, _ := q.Add(v200)
	require.Nil(t, dropped)
	dropped, _ = q.Add(v50)
	require.Nil(t, dropped)

	// heavier than the lightest queued vote: 50 makes room
	dropped, reason := q.Add(v80)
	assert.Equal(t, v50, dropped)
	assert.Equal(t, types.QueueFull, reason)

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, v200, q.Poll())
	assert.Equal(t, v80, q.Poll())
	assert.Nil(t, q.Poll())

	_, _ = q.Add(v200)
	_, _ = q.Add(v50)

	// lighter votes never displace heavier ones
	dropped, reason = q.Add(v15)
	assert.Equal(t, v15, dropped)
	assert.Equal(t, types.QueueFull, reason)
}

func TestQueueFullShedsIncomingVote(t *testing.T) {
	testCases := []struct {
		name     string
		incoming uint64
	}{
		{"lighter", 1},
		{"equal to lightest", 50},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := NewQueue(2)
			v200 := weightedVote(1, 200, 1000)
			v50 := weightedVote(2, 50, 1000)
			_, _ = q.Add(v200)
			_, _ = q.Add(v50)

			incoming := weightedVote(3, tc.incoming, 1000)
			dropped, reason := q.Add(incoming)
			assert.Equal(t, incoming, dropped)
			assert.Equal(t, types.QueueFull, reason)

			assert.Equal(t, v200, q.Poll())
			assert.Equal(t, v50, q.Poll())
			assert.Nil(t, q.Poll())
		})
	}
}

func TestQueueReplacesOnlyWithNewer(t *testing.T) {
	q := NewQueue(10)

	current := weightedVote(1, 100, 2000)
	dropped, _ := q.Add(current)
	require.Nil(t, dropped)

	older := weightedVote(1, 100, 1000)
	dropped, reason := q.Add(older)
	assert.Equal(t, older, dropped)
	assert.Equal(t, types.Superseded, reason)

	same := weightedVote(1, 100, 2000)
	dropped, reason = q.Add(same)
	assert.Equal(t, same, dropped)
	assert.Equal(t, types.Superseded, reason)

	newer := weightedVote(1, 100, 3000)
	dropped, _ = q.Add(newer)
	assert.Nil(t, dropped)

	assert.Equal(t, 1, q.Len())
	assert.Equal(t, newer, q.Poll())
}

func TestQueueKeysByVoterAndTransaction(t *testing.T) {
	q := NewQueue(10)

	other := types.Sum256([]byte("other tx"))
	a := weightedVote(1, 100, 1000)
	b := types.NewVote(factory.Key(1), other, time.UnixMilli(500)).WithWeight(types.NewAmount(100))

	dropped, _ := q.Add(a)
	require.Nil(t, dropped)
	dropped, _ = q.Add(b)
	require.Nil(t, dropped)
	assert.Equal(t, 2, q.Len())
}

func TestQueueDrainsHeaviestFirst(t *testing.T) {
	q := NewQueue(10)

	weights := []uint64{5, 90, 30, 90, 1, 60}
	for i, w := range weights {
		dropped, _ := q.Add(weightedVote(byte(i+1), w, 1000))
		require.Nil(t, dropped)
	}

	select {
	case <-q.Notify():
	default:
		t.Fatal("expected notification")
	}

	var got []uint64
	var voters []types.PublicKey
	for v := q.Poll(); v != nil; v = q.Poll() {
		got = append(got, v.Weight.Uint64())
		voters = append(voters, v.PublicKey)
	}
	assert.Equal(t, []uint64{90, 90, 60, 30, 5, 1}, got)
	// equal weights leave in insertion order
	assert.Equal(t, factory.Key(2).PublicKey(), voters[0])
	assert.Equal(t, factory.Key(4).PublicKey(), voters[1])
}
