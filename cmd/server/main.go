package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ratesync/internal/api"
	"ratesync/internal/channels"
	"ratesync/internal/config"
	"ratesync/internal/database"
	"ratesync/internal/events"
	"ratesync/internal/export"
	"ratesync/internal/ingest"
	"ratesync/internal/ledger"
	"ratesync/internal/logging"
	"ratesync/internal/loyalty"
	"ratesync/internal/metrics"
	"ratesync/internal/models"
	"ratesync/internal/notify"
	"ratesync/internal/repository"
	channelsync "ratesync/internal/sync"
	"ratesync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	hotels, err := loadHotels(&logger)
	if err != nil {
		return err
	}
	seeds, err := loadChannelSeeds(&logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()
	db.SetHotels(hotels)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seedChannels(ctx, db, seeds); err != nil {
		return err
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting the server anyway. Check your config.")
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}

	bus := events.NewEventBus()
	bookingLedger := ledger.New(db, bus, &logger)

	loyaltyService := loyalty.NewService(db, cfg.Loyalty, nil, &logger)
	loyaltyService.SubscribeTo(bus)

	notifier := initNotifier(cfg, &logger)

	orchestrator := channelsync.NewOrchestrator(db, cfg.Sync, notifier, &logger)

	scheduler := channelsync.NewScheduler(orchestrator, db, 0, &logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	adapters := func(ch *models.Channel) channels.Adapter { return channels.NewHTTPAdapter(ch) }
	ackWorker := worker.NewAckWorker(db, adapters, redisClient, worker.PolicyFromConfig(cfg.Sync.Retry), &logger)
	go ackWorker.Start(ctx)

	ingestService := ingest.NewService(db, bookingLedger, buildDeliveryCache(redisClient, &logger), ackWorker, notifier, &logger)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	initSheetsMirror(ctx, cfg, bus, &logger)

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, db, bookingLedger, orchestrator, ingestService, &logger)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().
		Int("http_port", cfg.API.Port).
		Int("hotels", len(hotels)).
		Int("channels", len(seeds)).
		Msg("server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("server stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "main")

	return cfg, logger, closer, nil
}

func loadHotels(logger *zerolog.Logger) ([]models.Hotel, error) {
	hotelsPath := os.Getenv("HOTELS_PATH")
	if hotelsPath == "" {
		hotelsPath = "configs/hotels.yaml"
	}
	data, err := os.ReadFile(hotelsPath)
	if err != nil {
		logger.Error().Err(err).Str("hotels_path", hotelsPath).Msg("read hotels")
		return nil, err
	}

	var hotelsConfig struct {
		Hotels []models.Hotel `yaml:"hotels"`
	}
	if err := yaml.Unmarshal(data, &hotelsConfig); err != nil {
		logger.Error().Err(err).Str("hotels_path", hotelsPath).Msg("parse hotels")
		return nil, err
	}
	return hotelsConfig.Hotels, nil
}

func loadChannelSeeds(logger *zerolog.Logger) ([]config.ChannelSeed, error) {
	channelsPath := os.Getenv("CHANNELS_PATH")
	if channelsPath == "" {
		channelsPath = "configs/channels.yaml"
	}
	data, err := os.ReadFile(channelsPath)
	if err != nil {
		logger.Error().Err(err).Str("channels_path", channelsPath).Msg("read channels")
		return nil, err
	}

	var channelsConfig struct {
		Channels []config.ChannelSeed `yaml:"channels"`
	}
	if err := yaml.Unmarshal(data, &channelsConfig); err != nil {
		logger.Error().Err(err).Str("channels_path", channelsPath).Msg("parse channels")
		return nil, err
	}
	if err := config.ValidateChannels(channelsConfig.Channels); err != nil {
		return nil, fmt.Errorf("validate channels: %w", err)
	}
	return channelsConfig.Channels, nil
}

func seedChannels(ctx context.Context, db *database.DB, seeds []config.ChannelSeed) error {
	for _, s := range seeds {
		ch := &models.Channel{
			HotelID:  s.HotelID,
			Name:     s.Name,
			Active:   s.Active,
			Endpoint: s.Endpoint,
			Credentials: models.ChannelCredentials{
				APIKey:    s.APIKey,
				APISecret: s.APISecret,
				HotelCode: s.HotelCode,
			},
			Mappings: models.ChannelMappings{
				RoomTypes: s.RoomTypes,
				RatePlans: s.RatePlans,
			},
			Settings: models.SyncSettings{
				InventoryInterval:    s.Inventory,
				PricesInterval:       s.Prices,
				AvailabilityInterval: s.Availability,
			},
			Commission: s.Commission,
		}
		if err := db.UpsertChannel(ctx, ch); err != nil {
			return fmt.Errorf("seed channel %q: %w", s.Name, err)
		}
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// buildDeliveryCache prefers the shared redis dedupe set with an in-memory
// fallback; without redis the memory cache stands alone.
func buildDeliveryCache(redisClient *redis.Client, logger *zerolog.Logger) repository.DeliveryCache {
	memory := repository.NewMemoryDeliveryCache(24 * time.Hour)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisDeliveryCache(redisClient, 24*time.Hour)
	return repository.NewFailoverDeliveryCache(primary, memory, logger)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) notify.Notifier {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.ChatIDs) == 0 {
		return notify.Noop{}
	}
	notifier, err := notify.NewTelegramNotifier(cfg.Telegram, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return notify.Noop{}
	}
	logger.Info().Int("chats", len(cfg.Telegram.ChatIDs)).Msg("telegram notifier enabled")
	return notifier
}

// initSheetsMirror appends every confirmed booking to the shared spreadsheet.
func initSheetsMirror(ctx context.Context, cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Google.CredentialsFile == "" || cfg.Google.SpreadsheetID == "" {
		return
	}

	mirror, err := export.NewSheetsMirror(cfg.Google.CredentialsFile, cfg.Google.SpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without mirror")
		return
	}
	if err := mirror.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without mirror")
		return
	}

	bus.Subscribe(events.EventBookingConfirmed, func(event *events.Event) error {
		var payload events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		booking := &models.Booking{
			ID:          payload.BookingID,
			Reference:   payload.Reference,
			HotelID:     payload.HotelID,
			RoomID:      payload.RoomID,
			GuestID:     payload.GuestID,
			GuestName:   payload.GuestName,
			CheckIn:     payload.CheckIn,
			CheckOut:    payload.CheckOut,
			Status:      payload.Status,
			TotalAmount: payload.TotalAmount,
			Source:      payload.Source,
		}
		if err := mirror.AppendBooking(ctx, booking); err != nil {
			logger.Error().Err(err).Str("reference", booking.Reference).Msg("sheets mirror append failed")
			return err
		}
		return nil
	})
	logger.Info().Msg("google sheets mirror enabled")
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
