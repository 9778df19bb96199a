package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	facilityAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "facility_capacity_available",
			Help: "Currently available capacity units per facility",
		},
		[]string{"facility_id"},
	)

	facilityTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "facility_capacity_total",
			Help: "Configured capacity units per facility",
		},
		[]string{"facility_id"},
	)

	slotHolds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slot_holds_total",
			Help: "Currently held slots by status",
		},
		[]string{"status"},
	)

	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Total booking lifecycle operations",
		},
		[]string{"operation", "booking_type", "status"},
	)

	reconciliationRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliation_repairs_total",
			Help: "Total repairs applied by the reconciler",
		},
		[]string{"kind"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		m.collectCapacityMetrics(ctx)
		m.collectSlotMetrics(ctx)
	}
}

func (m *Monitor) collectCapacityMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "facility:capacity:*").Result()
	for _, key := range keys {
		facilityID := key[len("facility:capacity:"):]
		fields, err := m.redis.HGetAll(ctx, key).Result()
		if err != nil {
			continue
		}
		if total, err := strconv.ParseFloat(fields["total"], 64); err == nil {
			facilityTotal.WithLabelValues(facilityID).Set(total)
		}
		if available, err := strconv.ParseFloat(fields["available"], 64); err == nil {
			facilityAvailable.WithLabelValues(facilityID).Set(available)
		}
	}
}

func (m *Monitor) collectSlotMetrics(ctx context.Context) {
	keys, _ := m.redis.Keys(ctx, "slot:*").Result()

	byStatus := map[string]float64{"reserved": 0, "occupied": 0}
	for _, key := range keys {
		slotStatus, err := m.redis.HGet(ctx, key, "status").Result()
		if err != nil {
			continue
		}
		byStatus[slotStatus]++
	}
	for slotStatus, count := range byStatus {
		slotHolds.WithLabelValues(slotStatus).Set(count)
	}
}

// Track booking lifecycle operations
func (m *Monitor) TrackBookingOperation(operation, bookingType, status string) {
	bookingOperations.WithLabelValues(operation, bookingType, status).Inc()
}

// Track reconciler repairs
func (m *Monitor) TrackReconciliationRepair(kind string) {
	reconciliationRepairs.WithLabelValues(kind).Inc()
}

// MetricsServer exposes the Prometheus scrape endpoint on its own port,
// separate from the application API.
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(port string) *MetricsServer {
	e := echo.New()
	e.GET("/metrics", func(c echo.Context) error {
		promhttp.Handler().ServeHTTP(c.Response(), c.Request())
		return nil
	})

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%s", port),
			Handler: e,
		},
	}
}

func (s *MetricsServer) Start() {
	go func() {
		slog.Info("metrics server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server failed", "error", err)
		}
	}()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
