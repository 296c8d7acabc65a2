package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/lattice/libs/log"
	"github.com/tendermint/lattice/types"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewDefault(log.TestingLogger())
	require.NoError(t, bus.Start(ctx))
	defer bus.Stop() //nolint:errcheck // ignore for tests

	all, err := bus.Subscribe("all")
	require.NoError(t, err)
	votes, err := bus.Subscribe("votes", types.EventVoteDropped)
	require.NoError(t, err)

	_, err = bus.Subscribe("votes")
	require.ErrorIs(t, err, ErrAlreadySubscribed)
	require.Equal(t, 2, bus.NumClients())

	bus.Publish(types.EventNodeBannedData{Address: "10.0.0.1:7075"})
	bus.Publish(types.EventVoteDroppedData{Reason: types.NoElection})

	ev, err := all.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, types.EventNodeBanned, ev.EventName())

	ev, err = all.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, types.EventVoteDropped, ev.EventName())

	ev, err = votes.Next(ctx)
	require.NoError(t, err)
	dropped, ok := ev.(types.EventVoteDroppedData)
	require.True(t, ok)
	require.Equal(t, types.NoElection, dropped.Reason)
	require.Zero(t, votes.Len())
}

func TestEventBusPublishDoesNotBlock(t *testing.T) {
	bus := NewDefault(log.TestingLogger())
	sub, err := bus.Subscribe("slow")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10000; i++ {
			bus.Publish(types.EventVoteCastData{})
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	require.Equal(t, 10000, sub.Len())
}

func TestEventBusUnsubscribeTerminates(t *testing.T) {
	defer leaktest.Check(t)()

	bus := NewDefault(log.TestingLogger())
	sub, err := bus.Subscribe("gone")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	bus.Unsubscribe("gone")
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrTerminated)
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Unsubscribe")
	}

	// publishing to nobody is fine
	bus.Publish(types.EventVoteCastData{})
}

func TestSubscriptionNextHonoursContext(t *testing.T) {
	bus := NewDefault(log.TestingLogger())
	sub, err := bus.Subscribe("idle")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = sub.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
