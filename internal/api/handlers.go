package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ratesync/internal/database"
	"ratesync/internal/export"
	"ratesync/internal/ingest"
	"ratesync/internal/ledger"
	"ratesync/internal/metrics"
	"ratesync/internal/models"
	"ratesync/internal/rates"
	channelsync "ratesync/internal/sync"
)

const dateLayout = "2006-01-02"

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type dashboardMetrics struct {
	TotalBookings int64   `json:"total_bookings"`
	Revenue       float64 `json:"revenue"`
	Commission    float64 `json:"commission"`
	NetRevenue    float64 `json:"net_revenue"`
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("dashboard")

	hotelID := strings.TrimSpace(r.URL.Query().Get("hotel_id"))
	if hotelID == "" {
		writeError(w, http.StatusBadRequest, "hotel_id is required")
		return
	}
	if _, ok := s.db.GetHotel(hotelID); !ok {
		writeError(w, http.StatusNotFound, "unknown hotel")
		return
	}

	ctx := r.Context()
	chs, err := s.db.GetChannels(ctx, hotelID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	recent, err := s.db.GetRecentExternalBookings(ctx, hotelID, 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Aggregate channel performance over the trailing 30 days.
	end := time.Now()
	rows, err := s.db.GetChannelAnalytics(ctx, hotelID, end.AddDate(0, 0, -30), end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var agg dashboardMetrics
	for _, row := range rows {
		agg.TotalBookings += row.Bookings
		agg.Revenue += row.Revenue
		agg.Commission += row.Commission
		agg.NetRevenue += row.NetRevenue
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"channels":        chs,
			"metrics":         agg,
			"recent_bookings": recent,
		},
	})
}

func (s *HTTPServer) handleSyncAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("sync_availability")

	type request struct {
		HotelID   string `json:"hotel_id"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	}
	var body request
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.HotelID == "" {
		writeError(w, http.StatusBadRequest, "hotel_id is required")
		return
	}
	start, end, err := parseRange(body.StartDate, body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	scope := channelsync.Scope{HotelID: body.HotelID, Start: start, End: end}
	results, err := s.orch.SyncAll(r.Context(), models.FeatureAvailability, scope)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": allSucceeded(results),
		"data":    results,
	})
}

type updatePricingRequest struct {
	HotelID     string                 `json:"hotel_id"`
	RoomType    string                 `json:"room_type"`
	BaseRate    float64                `json:"base_rate"`
	Currency    string                 `json:"currency"`
	Adjustments *models.DynamicPricing `json:"adjustments"`
	DateRange   struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
	} `json:"date_range"`
}

type channelPricing struct {
	Channel      string               `json:"channel"`
	ResolvedRate float64              `json:"resolved_rate"`
	Push         models.ChannelResult `json:"push"`
}

func (s *HTTPServer) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("update_pricing")

	var body updatePricingRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.HotelID == "" || body.RoomType == "" {
		writeError(w, http.StatusBadRequest, "hotel_id and room_type are required")
		return
	}
	if body.BaseRate <= 0 {
		writeError(w, http.StatusBadRequest, "base_rate must be positive")
		return
	}
	start, end, err := parseRange(body.DateRange.StartDate, body.DateRange.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	active, err := s.db.GetActiveChannels(ctx, body.HotelID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(active) == 0 {
		writeError(w, http.StatusNotFound, "no active channels for hotel")
		return
	}

	scope := channelsync.Scope{HotelID: body.HotelID, RoomType: body.RoomType, Start: start, End: end}
	now := time.Now()
	data := make([]channelPricing, 0, len(active))
	success := true
	for _, ch := range active {
		cfg, err := s.db.GetRateConfiguration(ctx, body.HotelID, body.RoomType, ch.Name)
		if errors.Is(err, database.ErrNotFound) {
			cfg = &models.RateConfiguration{
				HotelID:  body.HotelID,
				RoomType: body.RoomType,
				Channel:  ch.Name,
				Currency: "USD",
			}
		} else if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		cfg.BaseRate = body.BaseRate
		if body.Currency != "" {
			cfg.Currency = body.Currency
		}
		if body.Adjustments != nil {
			cfg.DynamicPricing = *body.Adjustments
		}
		if err := s.db.SaveRateConfiguration(ctx, cfg); err != nil {
			if errors.Is(err, database.ErrInvalidBounds) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		occupancy, err := s.db.OccupancyPercent(ctx, body.HotelID, start)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		res, err := rates.Resolve(cfg, start, 1, models.RuleContext{
			OccupancyPercent: occupancy,
			AdvanceDays:      start.Sub(now).Hours() / 24,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		push, err := s.orch.SyncChannel(ctx, models.FeaturePrices, scope, ch.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !push.Success {
			success = false
		}

		data = append(data, channelPricing{
			Channel:      ch.Name,
			ResolvedRate: res.Price,
			Push:         push,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": success, "data": data})
}

func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("analytics")

	q := r.URL.Query()
	hotelID := strings.TrimSpace(q.Get("hotel_id"))
	if hotelID == "" {
		writeError(w, http.StatusBadRequest, "hotel_id is required")
		return
	}
	start, end, err := parseRange(q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.db.GetChannelAnalytics(r.Context(), hotelID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if q.Get("format") == "xlsx" {
		filename := fmt.Sprintf("analytics_%s_%s_%s.xlsx",
			hotelID, start.Format(dateLayout), end.Format(dateLayout))
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if err := export.WriteAnalyticsWorkbook(w, hotelID, start, end, rows); err != nil {
			s.logger.Error().Err(err).Str("hotel_id", hotelID).Msg("analytics export failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": rows})
}

func (s *HTTPServer) handleBookingMove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("booking_move")

	rawID := strings.TrimPrefix(r.URL.Path, "/bookings/")
	if rawID == "" || strings.Contains(rawID, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}

	type request struct {
		ResourceID string `json:"resource_id"`
		Start      string `json:"start"`
		End        string `json:"end"`
	}
	var body request
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, end, err := parseRange(body.Start, body.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	booking, err := s.db.GetBooking(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "booking not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	roomID := strings.TrimSpace(body.ResourceID)
	if roomID == "" {
		roomID = booking.RoomID
	}

	err = s.ledger.Move(ctx, id, booking.Version, roomID, start, end)
	switch {
	case ledger.IsConflict(err):
		metrics.IncConflict()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ledger.ErrInvalidStay):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	updated, err := s.db.GetBooking(ctx, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": updated})
}

// handleOTAWebhook accepts inbound booking deliveries from channels. The
// response is always 200 once the delivery was durably recorded; business
// rejections are reported in the body and acknowledged asynchronously.
func (s *HTTPServer) handleOTAWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("ota_webhook")

	rest := strings.TrimPrefix(r.URL.Path, "/webhooks/ota/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "bookings" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	channelID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid channel id")
		return
	}

	var payload ingest.Payload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.ingest.Ingest(r.Context(), channelID, payload)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": res.Accepted || res.Duplicate,
		"data":    res,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, strings.TrimSpace(startStr))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date; expected YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, strings.TrimSpace(endStr))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date; expected YYYY-MM-DD")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date must be after start date")
	}
	return start, end, nil
}

func allSucceeded(results []models.ChannelResult) bool {
	for _, res := range results {
		if !res.Success {
			return false
		}
	}
	return true
}
