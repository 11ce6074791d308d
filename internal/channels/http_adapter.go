package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ratesync/internal/models"
)

// HTTPAdapter speaks the generic JSON-over-HTTP dialect most channel managers
// expose. Credentials travel as headers, identifiers as path segments.
type HTTPAdapter struct {
	name        string
	baseURL     string
	credentials models.ChannelCredentials
	httpClient  *http.Client
}

// NewHTTPAdapter builds an adapter from a channel row. The client timeout is a
// transport ceiling; per-push deadlines come from the caller's context.
func NewHTTPAdapter(ch *models.Channel) *HTTPAdapter {
	return &HTTPAdapter{
		name:        ch.Name,
		baseURL:     strings.TrimRight(ch.Endpoint, "/"),
		credentials: ch.Credentials,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *HTTPAdapter) Name() string { return a.name }

func (a *HTTPAdapter) PushRates(ctx context.Context, push RatePush) error {
	return a.doPost(ctx, a.baseURL+"/rates", push)
}

func (a *HTTPAdapter) PushAvailability(ctx context.Context, push AvailabilityPush) error {
	return a.doPost(ctx, a.baseURL+"/availability", push)
}

func (a *HTTPAdapter) PushInventory(ctx context.Context, push InventoryPush) error {
	return a.doPost(ctx, a.baseURL+"/inventory", push)
}

func (a *HTTPAdapter) Acknowledge(ctx context.Context, ack BookingAck) error {
	endpoint := fmt.Sprintf("%s/bookings/%s/ack", a.baseURL, url.PathEscape(ack.OTABookingID))
	return a.doPost(ctx, endpoint, ack)
}

func (a *HTTPAdapter) doPost(ctx context.Context, endpoint string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	a.addHeaders(req)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(detail) > 0 {
			return fmt.Errorf("%s: http %d: %s", a.name, resp.StatusCode, strings.TrimSpace(string(detail)))
		}
		return fmt.Errorf("%s: http %d", a.name, resp.StatusCode)
	}
	return nil
}

func (a *HTTPAdapter) addHeaders(req *http.Request) {
	if a.credentials.APIKey != "" {
		req.Header.Set("x-api-key", a.credentials.APIKey)
	}
	if a.credentials.APISecret != "" {
		req.Header.Set("x-api-secret", a.credentials.APISecret)
	}
	if a.credentials.HotelCode != "" {
		req.Header.Set("x-hotel-code", a.credentials.HotelCode)
	}
}
