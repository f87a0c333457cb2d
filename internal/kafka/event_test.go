package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	payload := []byte(`{
		"id": "5f0c",
		"type": "booking_item_cancelled",
		"booking_id": 900,
		"student_id": 11,
		"mentor_id": 7,
		"status": "CONFIRMED",
		"total_price": 700,
		"items": [{"item_id": 1, "slot_id": 3, "starts_at": "2030-04-04T10:00:00Z", "price": 500, "status": "CANCELLED"}],
		"occurred_at": "2030-04-01T09:00:00Z"
	}`)

	event, err := DecodeEvent(payload)
	require.NoError(t, err)
	assert.Equal(t, EventBookingItemCancelled, event.Type)
	assert.Equal(t, int64(900), event.BookingID)
	assert.Equal(t, int64(700), event.TotalPrice)
	require.Len(t, event.Items, 1)
	assert.Equal(t, "CANCELLED", event.Items[0].Status)
	assert.Equal(t, 10, event.Items[0].StartsAt.Hour())

	_, err = DecodeEvent([]byte("not json"))
	assert.Error(t, err)
}

func TestProducer_CheckConnectionWithoutBrokers(t *testing.T) {
	p := NewProducer(nil, nil)
	assert.Error(t, p.CheckConnection(context.Background()))
	assert.NoError(t, p.Close())
}
