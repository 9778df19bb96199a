package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"parking-system/internal/status"
	"parking-system/models"
)

type reconcilerLedger interface {
	Get(ctx context.Context, id string) (*models.Booking, error)
	ActiveCountsByFacility(ctx context.Context) (map[string]int, error)
}

type reconcilerSlots interface {
	ListHeld(ctx context.Context) ([]models.SlotState, error)
	ForceRelease(ctx context.Context, listingID, slotID string) error
}

type reconcilerCapacity interface {
	ListFacilityIDs(ctx context.Context) ([]string, error)
	Get(ctx context.Context, facilityID string) (models.FacilityCapacity, error)
	SyncOccupied(ctx context.Context, facilityID string, occupied int) (models.FacilityCapacity, error)
}

type repairTracker interface {
	TrackReconciliationRepair(kind string)
}

// Reconciler periodically re-derives Redis resource state from the booking
// ledger and repairs what a crashed process left behind: slot holds whose
// booking already terminated, and facility counters that drifted from the
// number of capacity-holding bookings.
type Reconciler struct {
	ledger   reconcilerLedger
	slots    reconcilerSlots
	capacity reconcilerCapacity
	tracker  repairTracker
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewReconciler(ledger reconcilerLedger, slots reconcilerSlots, capacity reconcilerCapacity, tracker repairTracker, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		ledger:   ledger,
		slots:    slots,
		capacity: capacity,
		tracker:  tracker,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background loop. One pass runs immediately so a restart
// repairs state before serving traffic for a full interval.
func (r *Reconciler) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.RunOnce(context.Background())
		for {
			select {
			case <-ticker.C:
				r.RunOnce(context.Background())
			case <-r.stopChan:
				return
			}
		}
	}()
	slog.Info("reconciler started", "interval", r.interval)
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
	slog.Info("reconciler stopped")
}

// RunOnce performs a single reconciliation pass and returns the number of
// repairs applied.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	repairs := r.reconcileSlots(ctx)
	repairs += r.reconcileCapacity(ctx)
	if repairs > 0 {
		slog.Info("reconciliation pass applied repairs", "repairs", repairs)
	}
	return repairs
}

func (r *Reconciler) reconcileSlots(ctx context.Context) int {
	held, err := r.slots.ListHeld(ctx)
	if err != nil {
		slog.Error("reconciler could not list held slots", "error", err)
		return 0
	}

	repairs := 0
	for _, state := range held {
		b, err := r.ledger.Get(ctx, state.BookingID)
		switch {
		case errors.Is(err, status.ErrNotFound):
			// Hold points at a booking that no longer exists.
		case err != nil:
			slog.Error("reconciler could not load booking for held slot",
				"booking_id", state.BookingID, "error", err)
			continue
		case !models.IsTerminal(b.Status):
			continue
		}

		if err := r.slots.ForceRelease(ctx, state.ListingID, state.SlotID); err != nil {
			slog.Error("reconciler could not release orphaned slot",
				"listing_id", state.ListingID, "slot_id", state.SlotID, "error", err)
			continue
		}
		slog.Warn("released orphaned slot hold",
			"listing_id", state.ListingID, "slot_id", state.SlotID, "booking_id", state.BookingID)
		r.repaired("orphaned_slot")
		repairs++
	}
	return repairs
}

func (r *Reconciler) reconcileCapacity(ctx context.Context) int {
	counts, err := r.ledger.ActiveCountsByFacility(ctx)
	if err != nil {
		slog.Error("reconciler could not count active bookings", "error", err)
		return 0
	}
	facilityIDs, err := r.capacity.ListFacilityIDs(ctx)
	if err != nil {
		slog.Error("reconciler could not list facilities", "error", err)
		return 0
	}

	repairs := 0
	for _, facilityID := range facilityIDs {
		current, err := r.capacity.Get(ctx, facilityID)
		if err != nil {
			slog.Error("reconciler could not read capacity", "facility_id", facilityID, "error", err)
			continue
		}

		expected := counts[facilityID]
		if current.Occupied() == expected {
			continue
		}

		synced, err := r.capacity.SyncOccupied(ctx, facilityID, expected)
		if err != nil {
			slog.Error("reconciler could not sync capacity", "facility_id", facilityID, "error", err)
			continue
		}
		slog.Warn("repaired capacity drift",
			"facility_id", facilityID,
			"was_occupied", current.Occupied(),
			"ledger_occupied", expected,
			"available", synced.Available)
		r.repaired("capacity_drift")
		repairs++
	}
	return repairs
}

func (r *Reconciler) repaired(kind string) {
	if r.tracker != nil {
		r.tracker.TrackReconciliationRepair(kind)
	}
}
