package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBroadcastReachesOthersNotSelf(t *testing.T) {
	hub := NewMemoryTransport(nil)
	ctx := context.Background()

	a := hub.Channel("room-1")
	b := hub.Channel("room-1")
	other := hub.Channel("room-2")

	var aGot, bGot, otherGot []string
	a.OnBroadcast("ping", func(event string, payload []byte) { aGot = append(aGot, string(payload)) })
	b.OnBroadcast("ping", func(event string, payload []byte) { bGot = append(bGot, string(payload)) })
	other.OnBroadcast("ping", func(event string, payload []byte) { otherGot = append(otherGot, string(payload)) })

	require.NoError(t, a.Subscribe(ctx))
	require.NoError(t, b.Subscribe(ctx))
	require.NoError(t, other.Subscribe(ctx))

	require.NoError(t, a.Broadcast(ctx, "ping", []byte("hello")))

	assert.Empty(t, aGot, "no self delivery")
	assert.Equal(t, []string{"hello"}, bGot)
	assert.Empty(t, otherGot, "rooms are isolated")
}

func TestMemoryCatchAllHandler(t *testing.T) {
	hub := NewMemoryTransport(nil)
	ctx := context.Background()

	a := hub.Channel("room")
	b := hub.Channel("room")

	var events []string
	b.OnBroadcast("", func(event string, payload []byte) { events = append(events, event) })
	require.NoError(t, a.Subscribe(ctx))
	require.NoError(t, b.Subscribe(ctx))

	require.NoError(t, a.Broadcast(ctx, "first", nil))
	require.NoError(t, a.Broadcast(ctx, "second", nil))
	assert.Equal(t, []string{"first", "second"}, events)
}

func TestMemoryPresenceSync(t *testing.T) {
	hub := NewMemoryTransport(nil)
	ctx := context.Background()

	teacher := hub.Channel("session")
	student := hub.Channel("session")

	var rosters [][]PresenceMeta
	teacher.OnPresenceSync(func(members []PresenceMeta) {
		rosters = append(rosters, members)
	})

	require.NoError(t, teacher.Subscribe(ctx))
	require.NoError(t, student.Subscribe(ctx))
	require.NoError(t, teacher.Track(ctx, PresenceMeta{Key: "t", Role: "teacher"}))
	require.NoError(t, student.Track(ctx, PresenceMeta{Key: "s1", Role: "student", Username: "alice"}))

	require.NotEmpty(t, rosters)
	last := rosters[len(rosters)-1]
	assert.Len(t, last, 2)

	// leaving fires another sync without the departed member
	require.NoError(t, student.Close())
	last = rosters[len(rosters)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "teacher", last[0].Role)
}

func TestMemoryBroadcastRequiresSubscribe(t *testing.T) {
	hub := NewMemoryTransport(nil)
	ctx := context.Background()

	c := hub.Channel("room")
	assert.ErrorIs(t, c.Broadcast(ctx, "ping", nil), ErrNotSubscribed)
	assert.ErrorIs(t, c.Track(ctx, PresenceMeta{}), ErrNotSubscribed)

	require.NoError(t, c.Subscribe(ctx))
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Broadcast(ctx, "ping", nil), ErrNotSubscribed)
	assert.ErrorIs(t, c.Subscribe(ctx), ErrChannelClosed)
}

func TestMemoryStatusCallbacks(t *testing.T) {
	hub := NewMemoryTransport(nil)
	ctx := context.Background()

	c := hub.Channel("room")
	var statuses []Status
	c.OnStatus(func(status Status, err error) { statuses = append(statuses, status) })

	require.NoError(t, c.Subscribe(ctx))
	require.NoError(t, c.Close())
	assert.Equal(t, []Status{StatusSubscribed, StatusClosed}, statuses)
}
