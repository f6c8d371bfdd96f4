package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"restopos/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messageFor(t *testing.T, event models.Event) kafka.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestEventRouter_RoutesByType(t *testing.T) {
	router := NewEventRouter()

	var got []string
	router.On(func(ctx context.Context, event models.Event) error {
		got = append(got, event.EventID)
		return nil
	}, models.EventTypeOrderCreated)

	err := router.HandleMessage(context.Background(), messageFor(t, models.Event{
		EventID:   "e1",
		EventType: models.EventTypeOrderCreated,
	}))
	require.NoError(t, err)

	// Unregistered types are acknowledged without a handler.
	err = router.HandleMessage(context.Background(), messageFor(t, models.Event{
		EventID:   "e2",
		EventType: models.EventTypeItemStatusChange,
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"e1"}, got)
}

func TestEventRouter_HandlerErrorPropagates(t *testing.T) {
	router := NewEventRouter()
	router.On(func(ctx context.Context, event models.Event) error {
		return errors.New("redis down")
	}, models.EventTypeOrderCreated)

	err := router.HandleMessage(context.Background(), messageFor(t, models.Event{
		EventID:   "e1",
		EventType: models.EventTypeOrderCreated,
	}))
	assert.Error(t, err)
}

func TestEventRouter_DropsUndecodable(t *testing.T) {
	router := NewEventRouter()
	err := router.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.NoError(t, err)
}
