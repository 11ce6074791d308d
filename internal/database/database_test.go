package database

import (
	"path/filepath"
	"testing"

	"ratesync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(zerolog.NewConsoleWriter())
	dbPath := filepath.Join(t.TempDir(), "ratesync.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	db.SetHotels([]models.Hotel{{
		ID:    "h1",
		Name:  "Test Hotel",
		Rooms: []string{"101", "102", "103", "104"},
	}})
	return db
}
