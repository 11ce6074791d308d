package export

import (
	"context"
	"fmt"
	"os"
	"time"

	"ratesync/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsMirror appends accepted cross-channel bookings to a shared
// spreadsheet so reception staff see them without touching the admin API.
type SheetsMirror struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsMirror(credentialsFile, spreadsheetID string) (*SheetsMirror, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsMirror{service: srv, spreadsheetID: spreadsheetID}, nil
}

// TestConnection reads the header cell to verify access.
func (s *SheetsMirror) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, "Bookings!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// AppendBooking mirrors one accepted booking.
func (s *SheetsMirror) AppendBooking(ctx context.Context, booking *models.Booking) error {
	row := []interface{}{
		booking.Reference,
		booking.HotelID,
		booking.RoomID,
		booking.GuestName,
		booking.CheckIn.Format("2006-01-02"),
		booking.CheckOut.Format("2006-01-02"),
		booking.Status,
		booking.Source,
		booking.TotalAmount,
		time.Now().Format("2006-01-02 15:04:05"),
	}

	valueRange := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := s.service.Spreadsheets.Values.
		Append(s.spreadsheetID, "Bookings!A:J", valueRange).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append booking row: %v", err)
	}
	return nil
}
