package server

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistry_RegisterIndexesEveryLookup(t *testing.T) {
	r := NewSessionRegistry()

	s := r.Register("ABCD", 0, "player-0", "conn-0")
	assert.NotEmpty(t, s.ID)
	assert.NotEmpty(t, s.Token)
	assert.NotEqual(t, s.ID, s.Token)

	byToken, err := r.ByToken(s.Token)
	require.NoError(t, err)
	assert.Equal(t, s, byToken)

	byConn, ok := r.ByConnection("conn-0")
	require.True(t, ok)
	assert.Equal(t, s, byConn)

	bySeat, ok := r.BySeat("ABCD", 0)
	require.True(t, ok)
	assert.Equal(t, s, bySeat)
	assert.Equal(t, "conn-0", r.ConnectionForSeat("ABCD", 0))
}

func TestSessionRegistry_UnknownToken(t *testing.T) {
	r := NewSessionRegistry()

	_, err := r.ByToken("nope")
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Contains(t, err.Error(), "TOKEN_NOT_FOUND")
}

func TestSessionRegistry_AttachMovesConnection(t *testing.T) {
	r := NewSessionRegistry()
	s := r.Register("ABCD", 1, "player-1", "old-conn")

	previous := r.Attach(s.ID, "new-conn")
	assert.Equal(t, "old-conn", previous)

	_, ok := r.ByConnection("old-conn")
	assert.False(t, ok, "old connection must no longer resolve")

	got, ok := r.ByConnection("new-conn")
	require.True(t, ok)
	assert.Equal(t, s.Token, got.Token)
	assert.Equal(t, 1, got.Seat)
	assert.Equal(t, "new-conn", r.ConnectionForSeat("ABCD", 1))
}

func TestSessionRegistry_DetachKeepsSeatAndToken(t *testing.T) {
	r := NewSessionRegistry()
	s := r.Register("ABCD", 0, "player-0", "conn-0")

	detached, ok := r.Detach("conn-0")
	require.True(t, ok)
	assert.Empty(t, detached.ConnectionID)

	_, ok = r.ByConnection("conn-0")
	assert.False(t, ok)

	byToken, err := r.ByToken(s.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, byToken.Seat)
	assert.Equal(t, "", r.ConnectionForSeat("ABCD", 0))
	assert.Equal(t, 0, r.ConnectedCount("ABCD"))

	_, ok = r.Detach("conn-0")
	assert.False(t, ok)
}

func TestSessionRegistry_RemoveSeatShiftsHigherSeats(t *testing.T) {
	r := NewSessionRegistry()
	s0 := r.Register("ABCD", 0, "p0", "c0")
	s1 := r.Register("ABCD", 1, "p1", "c1")
	s2 := r.Register("ABCD", 2, "p2", "c2")
	other := r.Register("WXYZ", 2, "q2", "d2")

	r.RemoveSeat("ABCD", 1)

	_, err := r.ByToken(s1.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, ok := r.ByConnection("c1")
	assert.False(t, ok)

	got, err := r.ByToken(s2.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Seat, "seat 2's token now points at seat 1")
	assert.Equal(t, "c2", r.ConnectionForSeat("ABCD", 1))
	_, ok = r.BySeat("ABCD", 2)
	assert.False(t, ok)

	got, err = r.ByToken(s0.Token)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Seat)

	got, err = r.ByToken(other.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Seat, "other rooms are untouched")
}

func TestSessionRegistry_RemoveRoom(t *testing.T) {
	r := NewSessionRegistry()
	a := r.Register("ABCD", 0, "p0", "c0")
	r.Register("ABCD", 1, "p1", "c1")
	b := r.Register("WXYZ", 0, "q0", "d0")

	r.RemoveRoom("ABCD")

	_, err := r.ByToken(a.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Empty(t, r.RoomSessions("ABCD"))
	assert.Equal(t, 0, r.ConnectedCount("ABCD"))

	_, err = r.ByToken(b.Token)
	assert.NoError(t, err)
}

func TestSessionRegistry_RestoreWithoutConnection(t *testing.T) {
	r := NewSessionRegistry()

	s := r.Restore(Session{Token: "saved-token", RoomCode: "ABCD", Seat: 3, PlayerID: "p3"})
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 0, r.ConnectedCount("ABCD"))

	got, err := r.ByToken("saved-token")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Seat)

	r.Attach(got.ID, "conn-3")
	assert.Equal(t, 1, r.ConnectedCount("ABCD"))
}

func TestSessionRegistry_ConcurrentRegister(t *testing.T) {
	r := NewSessionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			room := fmt.Sprintf("R%03d", i)
			s := r.Register(room, 0, "p", fmt.Sprintf("conn-%d", i))
			r.Attach(s.ID, fmt.Sprintf("conn-%d-b", i))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		room := fmt.Sprintf("R%03d", i)
		assert.Equal(t, 1, r.ConnectedCount(room))
		assert.Equal(t, fmt.Sprintf("conn-%d-b", i), r.ConnectionForSeat(room, 0))
	}
}
