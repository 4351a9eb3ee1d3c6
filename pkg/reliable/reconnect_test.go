package reliable

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classboard/classboard/pkg/transport"
)

func TestReconnectorRetriesUntilDialSucceeds(t *testing.T) {
	hub := transport.NewMemoryTransport(nil)
	var dials int32

	dial := func(ctx context.Context) (transport.Channel, error) {
		if atomic.AddInt32(&dials, 1) < 3 {
			return nil, errors.New("transport down")
		}
		ch := hub.Channel("session")
		if err := ch.Subscribe(ctx); err != nil {
			return nil, err
		}
		return ch, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var got transport.Channel
	r := NewReconnector(dial, func(ch transport.Channel) {
		got = ch
		wg.Done()
	}, 5*time.Millisecond, nil)

	r.Trigger(context.Background())
	wg.Wait()

	assert.EqualValues(t, 3, atomic.LoadInt32(&dials))
	require.NotNil(t, got)
	assert.NoError(t, got.Broadcast(context.Background(), "ping", nil))
}

func TestReconnectorSingleInFlightLoop(t *testing.T) {
	var dials int32
	release := make(chan struct{})

	dial := func(ctx context.Context) (transport.Channel, error) {
		atomic.AddInt32(&dials, 1)
		<-release
		return transport.NewMemoryTransport(nil).Channel("s"), nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	r := NewReconnector(dial, func(transport.Channel) { wg.Done() }, time.Millisecond, nil)

	// every status callback fires a trigger; only one loop may run
	r.Trigger(context.Background())
	r.Trigger(context.Background())
	r.Trigger(context.Background())

	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&dials))
}

func TestReconnectorCloseCancelsLoop(t *testing.T) {
	var dials int32
	dial := func(ctx context.Context) (transport.Channel, error) {
		atomic.AddInt32(&dials, 1)
		return nil, errors.New("still down")
	}

	r := NewReconnector(dial, func(transport.Channel) {
		t.Error("onChannel must not fire after Close")
	}, time.Millisecond, nil)
	r.Trigger(context.Background())

	time.Sleep(10 * time.Millisecond)
	r.Close()

	afterClose := atomic.LoadInt32(&dials)
	time.Sleep(20 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&dials)-afterClose, int32(1),
		"at most the already in-flight attempt may complete after Close")

	// a closed reconnector ignores further triggers
	r.Trigger(context.Background())
	time.Sleep(5 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&dials)-afterClose, int32(1))
}
