package cmd

import (
	"context"
	"log"
	"log/slog"

	"parking-system/config"
	"parking-system/handlers"
	"parking-system/monitoring"
	"parking-system/security"
	"parking-system/services"
	"parking-system/utils"

	_ "parking-system/migrations"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub (optional, device push only)
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	}

	// Initialize services
	capacityService := services.NewCapacityService(redisClient)
	slotService := services.NewSlotService(redisClient)
	ledgerService := services.NewLedgerService(app)
	catalogService := services.NewCatalogService(app)
	profileService := services.NewProfileService(app)
	subscriptionService := services.NewSubscriptionService(ledgerService, pn, cfg.SubscriptionBuffer)

	monitor := monitoring.NewMonitor(redisClient)

	bookingService := services.NewBookingService(
		ledgerService,
		capacityService,
		slotService,
		profileService,
		catalogService,
		subscriptionService,
		monitor,
		cfg.AccessCodeLength,
	)

	reconciler := services.NewReconciler(ledgerService, slotService, capacityService, monitor, cfg.ReconcileInterval)
	rateLimiter := security.NewRateLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitRequests)

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(app, bookingService)
	facilityHandler := handlers.NewFacilityHandler(app, capacityService, catalogService)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	var metricsServer *monitoring.MetricsServer
	if cfg.EnableMetrics {
		metricsServer = monitoring.NewMetricsServer(cfg.MetricsPort)
	}

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		seedFacilityCapacity(app, capacityService)
		reconciler.Start()
		if metricsServer != nil {
			metricsServer.Start()
		}

		api := e.Router.Group("/api/v1")
		api.BindFunc(rateLimiter.Middleware())

		// Booking endpoints
		api.POST("/bookings/private", bookingHandler.RequestPrivate)
		api.POST("/bookings/commercial", bookingHandler.BookCommercial)
		api.GET("/bookings/mine", bookingHandler.Mine)
		api.GET("/bookings/pending", bookingHandler.Pending)
		api.GET("/bookings/{id}", bookingHandler.Get)
		api.POST("/bookings/{id}/approve", bookingHandler.Approve)
		api.POST("/bookings/{id}/reject", bookingHandler.Reject)
		api.POST("/bookings/{id}/cancel", bookingHandler.Cancel)
		api.POST("/bookings/{id}/confirm-cancel", bookingHandler.ConfirmCancel)
		api.POST("/bookings/{id}/start", bookingHandler.Start)
		api.POST("/bookings/{id}/end", bookingHandler.End)
		api.POST("/bookings/{id}/no-show", bookingHandler.NoShow)
		api.POST("/bookings/{id}/rate", bookingHandler.Rate)
		api.POST("/bookings/{id}/verify-code", bookingHandler.VerifyCode)

		// Facility capacity endpoints
		api.GET("/facilities/{id}/capacity", facilityHandler.GetCapacity)
		api.PUT("/facilities/{id}/capacity", facilityHandler.SetCapacity)

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{
				"status":        "healthy",
				"notifications": subscriptionService.PublishState().String(),
			})
		})

		log.Println("Server routes registered")

		setupFacilityHooks(app, capacityService)

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		reconciler.Stop()
		if metricsServer != nil {
			if err := metricsServer.Shutdown(context.Background()); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}
		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// seedFacilityCapacity pushes every facility's configured total into Redis
// on startup so counters exist before the first booking arrives. SetTotal
// preserves whatever is currently occupied.
func seedFacilityCapacity(app *pocketbase.PocketBase, capacityService *services.CapacityService) {
	ctx := context.Background()

	records, err := app.FindAllRecords("facilities")
	if err != nil {
		log.Printf("Error fetching facilities for capacity seed: %v", err)
		return
	}

	for _, record := range records {
		if _, err := capacityService.SetTotal(ctx, record.Id, record.GetInt("total_capacity")); err != nil {
			slog.Error("failed to seed facility capacity", "facility_id", record.Id, "error", err)
		}
	}
	log.Printf("Seeded capacity counters for %d facilities", len(records))
}

// setupFacilityHooks keeps the live capacity counters in lockstep with the
// facility catalog records.
func setupFacilityHooks(app *pocketbase.PocketBase, capacityService *services.CapacityService) {
	app.OnRecordAfterCreateSuccess("facilities").BindFunc(func(e *core.RecordEvent) error {
		if _, err := capacityService.SetTotal(context.Background(), e.Record.Id, e.Record.GetInt("total_capacity")); err != nil {
			// The reconciler will converge the counter; don't fail the write.
			slog.Error("failed to init capacity for new facility", "facility_id", e.Record.Id, "error", err)
		}
		return e.Next()
	})

	app.OnRecordAfterUpdateSuccess("facilities").BindFunc(func(e *core.RecordEvent) error {
		if _, err := capacityService.SetTotal(context.Background(), e.Record.Id, e.Record.GetInt("total_capacity")); err != nil {
			slog.Error("failed to sync capacity for updated facility", "facility_id", e.Record.Id, "error", err)
		}
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess("facilities").BindFunc(func(e *core.RecordEvent) error {
		if err := capacityService.Drop(context.Background(), e.Record.Id); err != nil {
			slog.Error("failed to drop capacity for deleted facility", "facility_id", e.Record.Id, "error", err)
		}
		return e.Next()
	})
}
