package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/transit/pkg/packet"
)

func TestLocalTransporterPublishSubscribeBroadcast(t *testing.T) {
	hub := NewLocalHub()

	a := NewLocalTransporter(hub)
	b := NewLocalTransporter(hub)

	var mu sync.Mutex
	var received []packet.Command

	require.NoError(t, a.Init("A", nil))
	require.NoError(t, b.Init("B", func(cmd packet.Command, data []byte) {
		mu.Lock()
		received = append(received, cmd)
		mu.Unlock()
	}))

	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))
	defer a.Disconnect()
	defer b.Disconnect()

	require.NoError(t, b.Subscribe(packet.CmdDiscover, ""))

	require.NoError(t, a.Publish(packet.CmdDiscover, "", []byte(`{}`)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestLocalTransporterTargetedPublishOnlyReachesRecipient(t *testing.T) {
	hub := NewLocalHub()

	a := NewLocalTransporter(hub)
	b := NewLocalTransporter(hub)
	c := NewLocalTransporter(hub)

	var bCount, cCount int
	var mu sync.Mutex

	require.NoError(t, a.Init("A", nil))
	require.NoError(t, b.Init("B", func(packet.Command, []byte) {
		mu.Lock()
		bCount++
		mu.Unlock()
	}))
	require.NoError(t, c.Init("C", func(packet.Command, []byte) {
		mu.Lock()
		cCount++
		mu.Unlock()
	}))

	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))
	require.NoError(t, c.Connect(ctx))
	defer a.Disconnect()
	defer b.Disconnect()
	defer c.Disconnect()

	require.NoError(t, b.Subscribe(packet.CmdRequest, "B"))
	require.NoError(t, c.Subscribe(packet.CmdRequest, "C"))

	require.NoError(t, a.Publish(packet.CmdRequest, "B", []byte(`{}`)))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return bCount == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, cCount)
	mu.Unlock()
}

func TestLocalTransporterPublishBeforeConnectFails(t *testing.T) {
	hub := NewLocalHub()
	a := NewLocalTransporter(hub)
	require.NoError(t, a.Init("A", nil))

	err := a.Publish(packet.CmdPing, "B", []byte(`{}`))
	assert.Error(t, err)
}

func TestLocalTransporterDisconnectStopsDelivery(t *testing.T) {
	hub := NewLocalHub()
	a := NewLocalTransporter(hub)
	b := NewLocalTransporter(hub)

	var count int
	var mu sync.Mutex

	require.NoError(t, a.Init("A", nil))
	require.NoError(t, b.Init("B", func(packet.Command, []byte) {
		mu.Lock()
		count++
		mu.Unlock()
	}))

	ctx := context.Background()
	require.NoError(t, a.Connect(ctx))
	require.NoError(t, b.Connect(ctx))
	require.NoError(t, b.Subscribe(packet.CmdDiscover, ""))

	require.NoError(t, b.Disconnect())
	assert.False(t, b.Connected())

	_ = a.Publish(packet.CmdDiscover, "", []byte(`{}`))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 0, count)
	mu.Unlock()
}
