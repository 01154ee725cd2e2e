package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/highera/swarm/internal/agent"
)

func recvOne(t *testing.T, sub Subscription) *Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe(ctx, SpriteInbox("sprite-1"))
	require.NoError(t, err)

	msg, err := New(KindTask, TaskPayload{WorkID: "work-1", Description: "write a headline"}, "coordinator")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, SpriteInbox("sprite-1"), msg))

	got := recvOne(t, sub)
	assert.Equal(t, KindTask, got.Type)

	var task TaskPayload
	require.NoError(t, got.Decode(&task))
	assert.Equal(t, "work-1", task.WorkID)
	assert.Equal(t, "write a headline", task.Description)
}

func TestPublishWithoutSubscriberDrops(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	msg, err := New(KindPing, nil, "coordinator")
	require.NoError(t, err)
	// No subscriber: not an error, the message is simply lost.
	assert.NoError(t, b.Publish(ctx, SpriteInbox("ghost"), msg))
}

func TestFIFOPerChannel(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe(ctx, TenantHandoffs("acme"))
	require.NoError(t, err)

	for _, id := range []string{"work-1", "work-2", "work-3"} {
		msg, err := New(KindHandoff, HandoffPayload{WorkID: id, ToAgent: agent.Editor}, "sprite-1")
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, TenantHandoffs("acme"), msg))
	}

	for _, want := range []string{"work-1", "work-2", "work-3"} {
		var p HandoffPayload
		require.NoError(t, recvOne(t, sub).Decode(&p))
		assert.Equal(t, want, p.WorkID)
	}
}

func TestSubscribeMultipleChannels(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe(ctx, SpriteInbox("sprite-1"), TenantHandoffs("acme"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sprite:sprite-1:inbox", "tenant:acme:handoffs"}, sub.Channels())

	ping, err := New(KindPing, nil, "coordinator")
	require.NoError(t, err)
	require.NoError(t, b.Publish(ctx, SpriteInbox("sprite-1"), ping))
	require.NoError(t, b.Publish(ctx, TenantHandoffs("acme"), ping))

	assert.Equal(t, KindPing, recvOne(t, sub).Type)
	assert.Equal(t, KindPing, recvOne(t, sub).Type)
}

func TestCloseRemovesSubscription(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe(ctx, SpriteInbox("sprite-1"))
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close(), "close is idempotent")

	_, ok := <-sub.C()
	assert.False(t, ok, "channel closed after Close")

	msg, err := New(KindShutdown, nil, "coordinator")
	require.NoError(t, err)
	assert.NoError(t, b.Publish(ctx, SpriteInbox("sprite-1"), msg))
}

func TestFullBufferDropsNewest(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBus()
	defer b.Close()

	sub, err := b.Subscribe(ctx, ProjectUpdates("proj-1"))
	require.NoError(t, err)

	for i := 0; i < subscriptionBuffer+10; i++ {
		msg, err := New(KindStatusUpdate, StatusUpdatePayload{SpriteID: "sprite-1", Status: "working"}, "sprite-1")
		require.NoError(t, err)
		require.NoError(t, b.Publish(ctx, ProjectUpdates("proj-1"), msg))
	}

	// The buffer holds exactly subscriptionBuffer messages; the overflow
	// was dropped, not queued.
	for i := 0; i < subscriptionBuffer; i++ {
		recvOne(t, sub)
	}
	select {
	case <-sub.C():
		t.Fatal("overflow message should have been dropped")
	case <-time.After(50 * time.Millisecond):
	}
}
