package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaminalder/hotseat-tictactoe/internal/domain"
)

// minimal renderer for tests: encode moves count and status as bytes
func testRenderer(gs GameState) []byte {
	return []byte(fmt.Sprintf("moves=%d status=%s", gs.State.Moves, gs.State.Status))
}

func TestCreateAndGet(t *testing.T) {
	s := NewService(WithRenderer(testRenderer))
	gs, err := s.CreateGame()
	require.NoError(t, err)

	require.NotEmpty(t, gs.ID)
	require.Equal(t, domain.X, gs.State.Turn)
	require.Equal(t, domain.InProgress, gs.State.Status)
	require.False(t, gs.Created.IsZero())
	require.False(t, gs.Updated.IsZero())

	got, ok := s.Get(gs.ID)
	require.True(t, ok)
	require.Equal(t, gs.ID, got.ID)

	_, ok = s.Get("missing")
	require.False(t, ok)
}

func TestUnknownGame(t *testing.T) {
	s := NewService()

	_, err := s.Play("missing", 0)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Reset("missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Subscribe(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.False(t, s.Delete("missing"))
}

func TestPlayAlternatesAndRejects(t *testing.T) {
	s := NewService()
	gs, _ := s.CreateGame()

	st, err := s.Play(gs.ID, 0)
	require.NoError(t, err)
	require.Equal(t, domain.X, st.State.Board[0])
	require.Equal(t, domain.O, st.State.Turn)
	require.Equal(t, 1, st.State.Moves)

	// same cell again: rejected, state returned unchanged
	st, err = s.Play(gs.ID, 0)
	require.ErrorIs(t, err, domain.ErrCellOccupied)
	require.NotNil(t, st)
	require.Equal(t, 1, st.State.Moves)
	require.Equal(t, domain.O, st.State.Turn)

	_, err = s.Play(gs.ID, 9)
	require.ErrorIs(t, err, domain.ErrOutOfRange)
}

func TestGamesAreIndependent(t *testing.T) {
	s := NewService()
	a, _ := s.CreateGame()
	b, _ := s.CreateGame()
	require.NotEqual(t, a.ID, b.ID)

	for _, idx := range []int{0, 3, 1, 4, 2} {
		_, err := s.Play(a.ID, idx)
		require.NoError(t, err)
	}

	ga, _ := s.Get(a.ID)
	gb, _ := s.Get(b.ID)
	require.Equal(t, domain.Won, ga.State.Status)
	require.Equal(t, domain.InProgress, gb.State.Status)
	require.Zero(t, gb.State.Moves)
	require.Equal(t, 2, s.Len())
}

func TestResetRestartsGame(t *testing.T) {
	s := NewService()
	gs, _ := s.CreateGame()
	for _, idx := range []int{0, 3, 1, 4, 2} {
		_, err := s.Play(gs.ID, idx)
		require.NoError(t, err)
	}
	_, err := s.Play(gs.ID, 8)
	require.ErrorIs(t, err, domain.ErrGameOver)

	st, err := s.Reset(gs.ID)
	require.NoError(t, err)
	require.Equal(t, domain.NewEngine().State(), st.State)

	_, err = s.Play(gs.ID, 8)
	require.NoError(t, err)
}

func TestSubscribeAndBroadcast(t *testing.T) {
	s := NewService(WithRenderer(testRenderer))
	gs, _ := s.CreateGame()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*2)
	defer cancel()
	ch, unsub, err := s.Subscribe(ctx, gs.ID)
	require.NoError(t, err)
	defer unsub()

	// Trigger an update: X plays
	_, err = s.Play(gs.ID, 0)
	require.NoError(t, err)

	select {
	case b, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		assert.Equal(t, "moves=1 status=in_progress", string(b))
	case <-ctx.Done():
		t.Fatalf("timed out waiting for broadcast")
	}

	// rejected moves are silent
	_, err = s.Play(gs.ID, 0)
	require.Error(t, err)
	select {
	case b := <-ch:
		t.Fatalf("unexpected broadcast after rejected move: %q", b)
	default:
	}

	// reset broadcasts the fresh board
	_, err = s.Reset(gs.ID)
	require.NoError(t, err)
	select {
	case b := <-ch:
		assert.Equal(t, "moves=0 status=in_progress", string(b))
	case <-ctx.Done():
		t.Fatalf("timed out waiting for reset broadcast")
	}
}

func TestDropSlowSubscriber(t *testing.T) {
	s := NewService(WithRenderer(testRenderer))
	gs, _ := s.CreateGame()

	// Slow subscriber: never read
	ctxSlow, cancelSlow := context.WithCancel(context.Background())
	defer cancelSlow()
	slowCh, _, err := s.Subscribe(ctxSlow, gs.ID)
	require.NoError(t, err)

	// Fast subscriber: will read
	ctxFast, cancelFast := context.WithTimeout(context.Background(), time.Second*2)
	defer cancelFast()
	fastCh, unsubFast, err := s.Subscribe(ctxFast, gs.ID)
	require.NoError(t, err)
	defer unsubFast()

	_, err = s.Play(gs.ID, 0)
	require.NoError(t, err)
	<-fastCh
	_, err = s.Play(gs.ID, 4)
	require.NoError(t, err)
	<-fastCh

	// slow one got the first payload buffered, then was closed
	b, ok := <-slowCh
	require.True(t, ok)
	require.Equal(t, "moves=1 status=in_progress", string(b))
	_, ok = <-slowCh
	require.False(t, ok, "slow subscriber should be closed")
}

func TestUnsubscribeOnContextDone(t *testing.T) {
	s := NewService()
	gs, _ := s.CreateGame()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _, err := s.Subscribe(ctx, gs.ID)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed after cancel")
	}

	// playing after unsubscribe must not panic
	_, err = s.Play(gs.ID, 0)
	require.NoError(t, err)
}

func TestDeleteClosesSubscribers(t *testing.T) {
	s := NewService()
	gs, _ := s.CreateGame()
	ch, unsub, err := s.Subscribe(context.Background(), gs.ID)
	require.NoError(t, err)
	defer unsub()

	require.True(t, s.Delete(gs.ID))

	_, ok := <-ch
	require.False(t, ok)
	_, ok = s.Get(gs.ID)
	require.False(t, ok)
}

func TestSweepEvictsIdleGames(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewService()
	s.now = func() time.Time { return now }

	idle, _ := s.CreateGame()
	now = now.Add(30 * time.Minute)
	active, _ := s.CreateGame()
	now = now.Add(20 * time.Minute)
	_, err := s.Play(active.ID, 4)
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	require.Equal(t, 1, s.Sweep(time.Hour))

	_, ok := s.Get(idle.ID)
	require.False(t, ok)
	_, ok = s.Get(active.ID)
	require.True(t, ok)
}

func TestCreateUsesGeneratedIDs(t *testing.T) {
	orig := newGameID
	t.Cleanup(func() { newGameID = orig })
	newGameID = func() string { return "fixed" }

	s := NewService()
	gs, err := s.CreateGame()
	require.NoError(t, err)
	require.Equal(t, "fixed", gs.ID)

	_, err = s.CreateGame()
	require.Error(t, err)
}

func TestDeliverSkipsOutOfOrderPayloads(t *testing.T) {
	s := NewService(WithRenderer(testRenderer))
	gs, _ := s.CreateGame()
	ch, unsub, err := s.Subscribe(context.Background(), gs.ID)
	require.NoError(t, err)
	defer unsub()

	s.mu.Lock()
	g := s.games[gs.ID]
	_, err = g.engine.Play(0)
	require.NoError(t, err)
	_, err = g.engine.Play(4)
	require.NoError(t, err)
	out := s.takePendingLocked()
	s.mu.Unlock()
	require.Len(t, out, 2)

	// the second move's caller wins the race to deliver
	s.deliver(out[1:])
	s.deliver(out[:1])

	require.Equal(t, "moves=2 status=in_progress", string(<-ch))
	select {
	case b, ok := <-ch:
		t.Fatalf("unexpected delivery %q (open=%v)", b, ok)
	default:
	}
}
