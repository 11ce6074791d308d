package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ratesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannel(endpoint string) *models.Channel {
	return &models.Channel{
		Name:     "booking.com",
		Endpoint: endpoint,
		Credentials: models.ChannelCredentials{
			APIKey:    "key-1",
			APISecret: "secret-1",
			HotelCode: "HTL42",
		},
	}
}

func TestPushRatesSendsHeadersAndBody(t *testing.T) {
	var gotPath string
	var gotPush RatePush
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, "secret-1", r.Header.Get("x-api-secret"))
		assert.Equal(t, "HTL42", r.Header.Get("x-hotel-code"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPush))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(testChannel(srv.URL))
	push := RatePush{
		HotelCode:    "HTL42",
		RoomTypeCode: "DBL",
		Currency:     "USD",
		Prices:       []DatePrice{{Date: "2024-07-01", Price: 120.00}},
	}
	require.NoError(t, a.PushRates(context.Background(), push))
	assert.Equal(t, "/rates", gotPath)
	assert.Equal(t, push, gotPush)
}

func TestAcknowledgeEscapesBookingID(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(testChannel(srv.URL))
	err := a.Acknowledge(context.Background(), BookingAck{OTABookingID: "ab/1", Accepted: true})
	require.NoError(t, err)
	assert.Equal(t, "/bookings/ab%2F1/ack", gotPath)
}

func TestPushErrorIncludesStatusAndDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate plan unknown"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	a := NewHTTPAdapter(testChannel(srv.URL))
	err := a.PushAvailability(context.Background(), AvailabilityPush{RoomTypeCode: "DBL"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 422")
	assert.Contains(t, err.Error(), "rate plan unknown")
}

func TestPushHonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can watch the connection and cancel
		// the request context when the client gives up.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	a := NewHTTPAdapter(testChannel(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := a.PushInventory(ctx, InventoryPush{HotelCode: "HTL42"})
	assert.Error(t, err)
}
