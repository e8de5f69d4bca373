package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	require.NoError(t, p.Publish(context.Background(), Event{Type: BookingCreated}))
	require.NoError(t, p.Close())
}

func TestEventJSON(t *testing.T) {
	ev := Event{
		Type:       BookingCreated,
		ResourceID: "r1",
		BookingID:  "b1",
		Code:       "EVT-12345",
		Units:      2,
		Amount:     "200",
		Status:     "PENDING",
		OccurredAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}

	body, err := json.Marshal(ev)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "booking.created", got["type"])
	assert.Equal(t, "EVT-12345", got["code"])
	assert.Equal(t, "2026-01-01T10:00:00Z", got["occurred_at"])
}

func TestAMQPPublisher_DeliversToBoundQueue(t *testing.T) {
	url := os.Getenv("TEST_AMQP_URL")
	if url == "" {
		t.Skip("TEST_AMQP_URL not set, skipping RabbitMQ integration test")
	}

	const exchange = "booking.events.test"
	p, err := NewAMQPPublisher(url, exchange)
	if err != nil {
		t.Skipf("skipping RabbitMQ integration test: %v", err)
	}
	defer p.Close()

	conn, err := amqp.Dial(url)
	require.NoError(t, err)
	defer conn.Close()
	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, "booking.*", exchange, false, nil))

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Publish(ctx, Event{Type: BookingConfirmed, BookingID: "b1", Status: "CONFIRMED"}))

	select {
	case d := <-msgs:
		var ev Event
		require.NoError(t, json.Unmarshal(d.Body, &ev))
		assert.Equal(t, "b1", ev.BookingID)
		assert.Equal(t, BookingConfirmed, d.RoutingKey)
	case <-ctx.Done():
		t.Fatal("event was not delivered")
	}
}
