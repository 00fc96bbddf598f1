package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medcenter/portal/internal/platform/websocket"
)

type recordingPublisher struct {
	channel string
	message []byte
	err     error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	p.channel = channel
	p.message, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

type recordingHub struct {
	events []websocket.Event
}

func (h *recordingHub) Broadcast(topic string, event websocket.Event) {
	h.events = append(h.events, event)
}

func newTestBridge(pub publisher, hub Broadcaster) *Bridge {
	return &Bridge{pub: pub, channel: DefaultChannel, local: hub, logger: zerolog.Nop()}
}

func TestBridge_PublishEncodesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	b := newTestBridge(pub, &recordingHub{})

	topic := websocket.SlotTopic("11111111-1111-1111-1111-111111111111", "2026-03-02")
	err := b.Publish(context.Background(), websocket.Event{Type: "slot.occupied", Topic: topic})
	require.NoError(t, err)

	assert.Equal(t, DefaultChannel, pub.channel)
	var got websocket.Event
	require.NoError(t, json.Unmarshal(pub.message, &got))
	assert.Equal(t, topic, got.Topic)
	assert.Equal(t, "slot.occupied", got.Type)
}

func TestBridge_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("connection refused")}
	b := newTestBridge(pub, &recordingHub{})

	err := b.Publish(context.Background(), websocket.Event{Topic: "slots:x:y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestBridge_DeliverForwardsToHub(t *testing.T) {
	hub := &recordingHub{}
	b := newTestBridge(&recordingPublisher{}, hub)

	b.deliver(`{"type":"slot.freed","topic":"slots:a:2026-03-02"}`)
	b.deliver(`not json`)
	b.deliver(`{"type":"slot.freed"}`)

	require.Len(t, hub.events, 1)
	assert.Equal(t, "slot.freed", hub.events[0].Type)
}

func TestConnect_BadURL(t *testing.T) {
	_, err := Connect(context.Background(), "not-a-url://", 1, 0)
	require.Error(t, err)
}
