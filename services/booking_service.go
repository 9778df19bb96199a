package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"parking-system/internal/status"
	"parking-system/models"
	"parking-system/utils"

	"github.com/shopspring/decimal"
)

// Consumer-side contracts over the stores. The orchestrator is handed
// concrete implementations once at process start; nothing reaches stores
// through package globals.

type Ledger interface {
	Create(ctx context.Context, b *models.Booking) (*models.Booking, error)
	Get(ctx context.Context, id string) (*models.Booking, error)
	UpdateStatus(ctx context.Context, id string, expected []models.BookingStatus, next models.BookingStatus, extra map[string]any) (*models.Booking, error)
	SetRating(ctx context.Context, id string, rating int) (*models.Booking, error)
	ByDriver(ctx context.Context, driverID string, limit int) ([]*models.Booking, error)
	PendingForHost(ctx context.Context, hostID string) ([]*models.Booking, error)
}

type CapacityStore interface {
	Reserve(ctx context.Context, facilityID string) error
	Release(ctx context.Context, facilityID string) error
}

type SlotStore interface {
	Reserve(ctx context.Context, listingID, slotID, bookingID string) error
	Occupy(ctx context.Context, listingID, slotID, bookingID string, endTime time.Time) error
	Release(ctx context.Context, listingID, slotID, bookingID string) error
}

type ProfileStore interface {
	Get(ctx context.Context, userID string) (*models.Profile, error)
	IncrementBookingCount(ctx context.Context, userID string) error
	CreditEarnings(ctx context.Context, userID string, amount decimal.Decimal) error
	AddHostRating(ctx context.Context, userID string, rating int) error
}

type Catalog interface {
	GetListing(ctx context.Context, id string) (*models.Listing, error)
	GetFacility(ctx context.Context, id string) (*models.Facility, error)
	SlotBelongsToListing(ctx context.Context, listingID, slotID string) error
}

type Notifier interface {
	NotifyBookingChanged(ctx context.Context, b *models.Booking, event string)
}

type operationTracker interface {
	TrackBookingOperation(operation, bookingType, outcome string)
}

// BookingService drives the booking lifecycle across the ledger, the
// capacity and slot stores, and the profile store, keeping them consistent
// with compensating actions when a step fails mid-sequence.
type BookingService struct {
	ledger   Ledger
	capacity CapacityStore
	slots    SlotStore
	profiles ProfileStore
	catalog  Catalog
	notifier Notifier
	tracker  operationTracker

	accessCodeLength int
}

func NewBookingService(
	ledger Ledger,
	capacity CapacityStore,
	slots SlotStore,
	profiles ProfileStore,
	catalog Catalog,
	notifier Notifier,
	tracker operationTracker,
	accessCodeLength int,
) *BookingService {
	if accessCodeLength <= 0 {
		accessCodeLength = 6
	}
	return &BookingService{
		ledger:           ledger,
		capacity:         capacity,
		slots:            slots,
		profiles:         profiles,
		catalog:          catalog,
		notifier:         notifier,
		tracker:          tracker,
		accessCodeLength: accessCodeLength,
	}
}

type PrivateBookingRequest struct {
	ListingID      string    `json:"listing_id"`
	SlotID         string    `json:"slot_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	Message        string    `json:"message"`
}

type CommercialBookingRequest struct {
	FacilityID     string    `json:"facility_id"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
}

// CreatedBooking carries the one-time plaintext access code alongside the
// persisted booking. The code is never persisted or shown again.
type CreatedBooking struct {
	Booking    *models.Booking `json:"booking"`
	AccessCode string          `json:"access_code"`
}

// RequestPrivateBooking creates a booking against a private listing slot.
// The slot is NOT held while the request awaits host approval; an
// auto-accept listing confirms and reserves immediately.
func (s *BookingService) RequestPrivateBooking(ctx context.Context, driverID string, req PrivateBookingRequest) (*CreatedBooking, error) {
	if driverID == "" {
		return nil, status.ErrNotAuthenticated
	}

	profile, err := s.profiles.Get(ctx, driverID)
	if err != nil {
		return nil, s.fail("request_private", models.BookingTypePrivate, err)
	}
	if !profile.CanDrive {
		return nil, s.fail("request_private", models.BookingTypePrivate,
			fmt.Errorf("user %s cannot book as driver: %w", driverID, status.ErrForbidden))
	}

	listing, err := s.catalog.GetListing(ctx, req.ListingID)
	if err != nil {
		return nil, s.fail("request_private", models.BookingTypePrivate, err)
	}
	if err := s.catalog.SlotBelongsToListing(ctx, req.ListingID, req.SlotID); err != nil {
		return nil, s.fail("request_private", models.BookingTypePrivate, err)
	}

	estimated := models.EstimateCost(listing.HourlyRate, req.ScheduledStart, req.ScheduledEnd)
	code, hash, err := s.newAccessCode()
	if err != nil {
		return nil, s.fail("request_private", models.BookingTypePrivate, err)
	}

	booking := &models.Booking{
		Type:           models.BookingTypePrivate,
		DriverID:       driverID,
		HostID:         listing.HostID,
		ListingID:      req.ListingID,
		SlotID:         req.SlotID,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
		HourlyRate:     listing.HourlyRate,
		EstimatedCost:  estimated,
		TaxAmount:      models.PrivateTax(estimated),
		Status:         models.StatusRequested,
		AccessCodeHash: hash,
		DriverMessage:  req.Message,
	}

	created, err := s.ledger.Create(ctx, booking)
	if err != nil {
		return nil, s.fail("request_private", models.BookingTypePrivate, err)
	}

	event := "booking_requested"
	if listing.AutoAccept {
		created, err = s.confirmPrivate(ctx, created, "")
		if err != nil {
			return nil, s.fail("request_private", models.BookingTypePrivate, err)
		}
		event = "booking_confirmed"
	}

	s.bumpDriverCount(ctx, driverID)
	s.notify(ctx, created, event)
	s.track("request_private", models.BookingTypePrivate, "success")

	return &CreatedBooking{Booking: created, AccessCode: code}, nil
}

// BookCommercialSpot reserves one facility unit and persists the booking as
// an all-or-nothing pair: a failed reserve persists nothing, a failed create
// returns the reserved unit.
func (s *BookingService) BookCommercialSpot(ctx context.Context, driverID string, req CommercialBookingRequest) (*CreatedBooking, error) {
	if driverID == "" {
		return nil, status.ErrNotAuthenticated
	}

	profile, err := s.profiles.Get(ctx, driverID)
	if err != nil {
		return nil, s.fail("book_commercial", models.BookingTypeCommercial, err)
	}
	if !profile.CanDrive {
		return nil, s.fail("book_commercial", models.BookingTypeCommercial,
			fmt.Errorf("user %s cannot book as driver: %w", driverID, status.ErrForbidden))
	}

	facility, err := s.catalog.GetFacility(ctx, req.FacilityID)
	if err != nil {
		return nil, s.fail("book_commercial", models.BookingTypeCommercial, err)
	}

	estimated := models.EstimateCost(facility.HourlyRate, req.ScheduledStart, req.ScheduledEnd)
	code, hash, err := s.newAccessCode()
	if err != nil {
		return nil, s.fail("book_commercial", models.BookingTypeCommercial, err)
	}

	// Reserve first: a NoCapacity failure must abort before anything is
	// persisted, and a failed reserve is never retried blindly.
	if err := s.capacity.Reserve(ctx, req.FacilityID); err != nil {
		return nil, s.fail("book_commercial", models.BookingTypeCommercial, err)
	}

	booking := &models.Booking{
		Type:           models.BookingTypeCommercial,
		DriverID:       driverID,
		HostID:         facility.OwnerID,
		FacilityID:     req.FacilityID,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
		HourlyRate:     facility.HourlyRate,
		EstimatedCost:  estimated,
		Status:         models.StatusConfirmed,
		AccessCodeHash: hash,
	}

	created, err := s.ledger.Create(ctx, booking)
	if err != nil {
		// Compensate the reservation so the pair stays all-or-nothing.
		if relErr := s.capacity.Release(ctx, req.FacilityID); relErr != nil {
			slog.Error("capacity compensation failed after create error",
				"facility_id", req.FacilityID, "create_error", err, "release_error", relErr)
			return nil, s.fail("book_commercial", models.BookingTypeCommercial,
				fmt.Errorf("%w: facility %s holds an unmatched reservation", status.ErrPartialFailure, req.FacilityID))
		}
		return nil, s.fail("book_commercial", models.BookingTypeCommercial, err)
	}

	s.bumpDriverCount(ctx, driverID)
	s.notify(ctx, created, "booking_confirmed")
	s.track("book_commercial", models.BookingTypeCommercial, "success")

	return &CreatedBooking{Booking: created, AccessCode: code}, nil
}

// ApproveBooking confirms a pending private request: the slot is reserved
// first, then the status flips requested -> confirmed. Losing the status
// race (say to a concurrent reject) releases the slot again.
func (s *BookingService) ApproveBooking(ctx context.Context, hostID, bookingID, message string) (*models.Booking, error) {
	b, err := s.gatedGet(ctx, hostID, bookingID, partyHost)
	if err != nil {
		return nil, s.fail("approve", models.BookingTypePrivate, err)
	}
	if b.Type != models.BookingTypePrivate {
		return nil, s.fail("approve", b.Type,
			fmt.Errorf("booking %s is not approval-based: %w", bookingID, status.ErrStaleTransition))
	}

	updated, err := s.confirmPrivate(ctx, b, message)
	if err != nil {
		return nil, s.fail("approve", models.BookingTypePrivate, err)
	}

	s.notify(ctx, updated, "booking_confirmed")
	s.track("approve", models.BookingTypePrivate, "success")
	return updated, nil
}

// confirmPrivate holds the slot and promotes requested -> confirmed,
// undoing the hold when the promotion loses.
func (s *BookingService) confirmPrivate(ctx context.Context, b *models.Booking, hostMessage string) (*models.Booking, error) {
	if b.Status != models.StatusRequested {
		return nil, fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, status.ErrStaleTransition)
	}

	if err := s.slots.Reserve(ctx, b.ListingID, b.SlotID, b.ID); err != nil {
		// An auto-accepted request whose slot is gone has no approval to
		// wait for; close it out instead of leaving a dangling request.
		if _, rejErr := s.ledger.UpdateStatus(ctx, b.ID,
			[]models.BookingStatus{models.StatusRequested},
			models.StatusRejected,
			map[string]any{"rejection_reason": "slot unavailable"},
		); rejErr != nil {
			slog.Error("failed to close booking after slot conflict", "booking_id", b.ID, "error", rejErr)
		}
		return nil, err
	}

	extra := map[string]any{"approved_at": time.Now().UTC()}
	if hostMessage != "" {
		extra["host_message"] = hostMessage
	}

	updated, err := s.ledger.UpdateStatus(ctx, b.ID,
		[]models.BookingStatus{models.StatusRequested},
		models.StatusConfirmed,
		extra,
	)
	if err != nil {
		// Losing to a concurrent confirm means the hold is legitimately
		// owned now; only an unconfirmed loser gives its hold back.
		if current, getErr := s.ledger.Get(ctx, b.ID); getErr == nil && models.HoldsCapacity(current.Status) {
			return nil, err
		}
		if relErr := s.slots.Release(ctx, b.ListingID, b.SlotID, b.ID); relErr != nil {
			slog.Error("slot compensation failed after stale confirm", "booking_id", b.ID, "error", relErr)
			return nil, fmt.Errorf("%w: slot %s/%s holds an unmatched reservation",
				status.ErrPartialFailure, b.ListingID, b.SlotID)
		}
		return nil, err
	}
	return updated, nil
}

// RejectBooking declines a pending private request. The slot was never
// reserved, so no resource changes.
func (s *BookingService) RejectBooking(ctx context.Context, hostID, bookingID, reason string) (*models.Booking, error) {
	b, err := s.gatedGet(ctx, hostID, bookingID, partyHost)
	if err != nil {
		return nil, s.fail("reject", models.BookingTypePrivate, err)
	}

	updated, err := s.ledger.UpdateStatus(ctx, b.ID,
		[]models.BookingStatus{models.StatusRequested},
		models.StatusRejected,
		map[string]any{"rejection_reason": reason},
	)
	if err != nil {
		return nil, s.fail("reject", b.Type, err)
	}

	s.notify(ctx, updated, "booking_rejected")
	s.track("reject", b.Type, "success")
	return updated, nil
}

// CancelBooking is driver-initiated. Private bookings cancel immediately
// and free their slot; commercial bookings only enter cancel_requested and
// keep their capacity unit until the owner confirms.
func (s *BookingService) CancelBooking(ctx context.Context, driverID, bookingID string) (*models.Booking, error) {
	b, err := s.gatedGet(ctx, driverID, bookingID, partyDriver)
	if err != nil {
		return nil, s.fail("cancel", "", err)
	}

	expected := []models.BookingStatus{models.StatusConfirmed, models.StatusActive}

	if b.Type == models.BookingTypeCommercial {
		updated, err := s.ledger.UpdateStatus(ctx, b.ID, expected, models.StatusCancelRequested, nil)
		if err != nil {
			return nil, s.fail("cancel", b.Type, err)
		}
		s.notify(ctx, updated, "booking_cancel_requested")
		s.track("cancel", b.Type, "success")
		return updated, nil
	}

	updated, err := s.ledger.UpdateStatus(ctx, b.ID, expected, models.StatusCancelled, nil)
	if err != nil {
		return nil, s.fail("cancel", b.Type, err)
	}
	if err := s.slots.Release(ctx, b.ListingID, b.SlotID, b.ID); err != nil {
		slog.Error("slot release failed after cancel", "booking_id", b.ID, "error", err)
		return nil, s.fail("cancel", b.Type,
			fmt.Errorf("%w: slot %s/%s still held by cancelled booking", status.ErrPartialFailure, b.ListingID, b.SlotID))
	}

	s.notify(ctx, updated, "booking_cancelled")
	s.track("cancel", b.Type, "success")
	return updated, nil
}

// ConfirmCancellation is the owner's half of the two-phase commercial
// cancel; only now does the capacity unit go back.
func (s *BookingService) ConfirmCancellation(ctx context.Context, ownerID, bookingID string) (*models.Booking, error) {
	b, err := s.gatedGet(ctx, ownerID, bookingID, partyHost)
	if err != nil {
		return nil, s.fail("confirm_cancel", models.BookingTypeCommercial, err)
	}
	if b.Type != models.BookingTypeCommercial {
		return nil, s.fail("confirm_cancel", b.Type,
			fmt.Errorf("booking %s has no pending cancel confirmation: %w", bookingID, status.ErrStaleTransition))
	}

	updated, err := s.ledger.UpdateStatus(ctx, b.ID,
		[]models.BookingStatus{models.StatusCancelRequested},
		models.StatusCancelled,
		nil,
	)
	if err != nil {
		return nil, s.fail("confirm_cancel", b.Type, err)
	}
	if err := s.capacity.Release(ctx, b.FacilityID); err != nil {
		slog.Error("capacity release failed after cancel confirmation", "booking_id", b.ID, "error", err)
		return nil, s.fail("confirm_cancel", b.Type,
			fmt.Errorf("%w: facility %s still holds a cancelled unit", status.ErrPartialFailure, b.FacilityID))
	}

	s.notify(ctx, updated, "booking_cancelled")
	s.track("confirm_cancel", b.Type, "success")
	return updated, nil
}

// StartSession begins the parking session. Private slots flip to occupied
// with the scheduled end as the expected release time.
func (s *BookingService) StartSession(ctx context.Context, driverID, bookingID string) (*models.Booking, error) {
	b, err := s.gatedGet(ctx, driverID, bookingID, partyDriver)
	if err != nil {
		return nil, s.fail("start", "", err)
	}

	updated, err := s.ledger.UpdateStatus(ctx, b.ID,
		[]models.BookingStatus{models.StatusConfirmed},
		models.StatusActive,
		map[string]any{"actual_start": time.Now().UTC()},
	)
	if err != nil {
		return nil, s.fail("start", b.Type, err)
	}

	if b.Type == models.BookingTypePrivate {
		if err := s.slots.Occupy(ctx, b.ListingID, b.SlotID, b.ID, b.ScheduledEnd); err != nil {
			slog.Error("slot occupy failed after session start", "booking_id", b.ID, "error", err)
			return nil, s.fail("start", b.Type,
				fmt.Errorf("%w: slot %s/%s occupancy out of step", status.ErrPartialFailure, b.ListingID, b.SlotID))
		}
	}

	s.notify(ctx, updated, "session_started")
	s.track("start", b.Type, "success")
	return updated, nil
}

// EndSession completes the booking. Either party may end it. The actual
// cost defaults to the estimate unless overridden; the host payout is
// always 85% of the estimate.
func (s *BookingService) EndSession(ctx context.Context, userID, bookingID string, actualCostOverride *decimal.Decimal) (*models.Booking, error) {
	b, err := s.gatedGet(ctx, userID, bookingID, partyEither)
	if err != nil {
		return nil, s.fail("end", "", err)
	}

	actualCost := b.EstimatedCost
	if actualCostOverride != nil {
		actualCost = *actualCostOverride
	}

	updated, err := s.ledger.UpdateStatus(ctx, b.ID,
		[]models.BookingStatus{models.StatusActive},
		models.StatusCompleted,
		map[string]any{
			"actual_end":  time.Now().UTC(),
			"actual_cost": actualCost.InexactFloat64(),
		},
	)
	if err != nil {
		return nil, s.fail("end", b.Type, err)
	}

	switch b.Type {
	case models.BookingTypePrivate:
		if err := s.slots.Release(ctx, b.ListingID, b.SlotID, b.ID); err != nil {
			slog.Error("slot release failed after session end", "booking_id", b.ID, "error", err)
			return nil, s.fail("end", b.Type,
				fmt.Errorf("%w: slot %s/%s still held by completed booking", status.ErrPartialFailure, b.ListingID, b.SlotID))
		}
		payout := models.HostPayout(b.EstimatedCost)
		if err := s.profiles.CreditEarnings(ctx, b.HostID, payout); err != nil {
			slog.Error("host payout credit failed", "booking_id", b.ID, "host_id", b.HostID, "error", err)
		}
	case models.BookingTypeCommercial:
		if err := s.capacity.Release(ctx, b.FacilityID); err != nil {
			slog.Error("capacity release failed after session end", "booking_id", b.ID, "error", err)
			return nil, s.fail("end", b.Type,
				fmt.Errorf("%w: facility %s still holds a completed unit", status.ErrPartialFailure, b.FacilityID))
		}
	}

	s.notify(ctx, updated, "booking_completed")
	s.track("end", b.Type, "success")
	return updated, nil
}

// MarkNoShow closes out a confirmed booking whose driver never arrived and
// returns whatever resource it held. Host/owner only.
func (s *BookingService) MarkNoShow(ctx context.Context, hostID, bookingID string) (*models.Booking, error) {
	b, err := s.gatedGet(ctx, hostID, bookingID, partyHost)
	if err != nil {
		return nil, s.fail("no_show", "", err)
	}

	updated, err := s.ledger.UpdateStatus(ctx, b.ID,
		[]models.BookingStatus{models.StatusConfirmed},
		models.StatusNoShow,
		nil,
	)
	if err != nil {
		return nil, s.fail("no_show", b.Type, err)
	}

	switch b.Type {
	case models.BookingTypePrivate:
		if err := s.slots.Release(ctx, b.ListingID, b.SlotID, b.ID); err != nil {
			slog.Error("slot release failed after no-show", "booking_id", b.ID, "error", err)
			return nil, s.fail("no_show", b.Type,
				fmt.Errorf("%w: slot %s/%s still held by no-show booking", status.ErrPartialFailure, b.ListingID, b.SlotID))
		}
	case models.BookingTypeCommercial:
		if err := s.capacity.Release(ctx, b.FacilityID); err != nil {
			slog.Error("capacity release failed after no-show", "booking_id", b.ID, "error", err)
			return nil, s.fail("no_show", b.Type,
				fmt.Errorf("%w: facility %s still holds a no-show unit", status.ErrPartialFailure, b.FacilityID))
		}
	}

	s.notify(ctx, updated, "booking_no_show")
	s.track("no_show", b.Type, "success")
	return updated, nil
}

// RateBooking records the driver's one-time rating of a completed booking
// and folds it into the host's running average.
func (s *BookingService) RateBooking(ctx context.Context, driverID, bookingID string, rating int) (*models.Booking, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", status.ErrInvalidData)
	}

	b, err := s.gatedGet(ctx, driverID, bookingID, partyDriver)
	if err != nil {
		return nil, s.fail("rate", "", err)
	}

	updated, err := s.ledger.SetRating(ctx, b.ID, rating)
	if err != nil {
		return nil, s.fail("rate", b.Type, err)
	}
	if err := s.profiles.AddHostRating(ctx, b.HostID, rating); err != nil {
		slog.Error("host rating update failed", "booking_id", b.ID, "host_id", b.HostID, "error", err)
	}

	s.track("rate", b.Type, "success")
	return updated, nil
}

// VerifyAccessCode checks a presented 6-digit code against the booking's
// stored hash. Only bookings awaiting or inside their session verify.
func (s *BookingService) VerifyAccessCode(ctx context.Context, bookingID, code string) error {
	b, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status != models.StatusConfirmed && b.Status != models.StatusActive {
		return fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, status.ErrForbidden)
	}
	return utils.CheckAccessCode(b.AccessCodeHash, code)
}

// GetBooking returns a booking to one of its parties.
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID string) (*models.Booking, error) {
	return s.gatedGet(ctx, userID, bookingID, partyEither)
}

func (s *BookingService) DriverBookings(ctx context.Context, driverID string, limit int) ([]*models.Booking, error) {
	if driverID == "" {
		return nil, status.ErrNotAuthenticated
	}
	return s.ledger.ByDriver(ctx, driverID, limit)
}

func (s *BookingService) PendingApprovals(ctx context.Context, hostID string) ([]*models.Booking, error) {
	if hostID == "" {
		return nil, status.ErrNotAuthenticated
	}
	return s.ledger.PendingForHost(ctx, hostID)
}

type party int

const (
	partyDriver party = iota
	partyHost
	partyEither
)

func (s *BookingService) gatedGet(ctx context.Context, userID, bookingID string, who party) (*models.Booking, error) {
	if userID == "" {
		return nil, status.ErrNotAuthenticated
	}
	b, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	allowed := false
	switch who {
	case partyDriver:
		allowed = b.DriverID == userID
	case partyHost:
		allowed = b.HostID == userID
	case partyEither:
		allowed = b.DriverID == userID || b.HostID == userID
	}
	if !allowed {
		return nil, fmt.Errorf("booking %s: %w", bookingID, status.ErrForbidden)
	}
	return b, nil
}

func (s *BookingService) newAccessCode() (code, hash string, err error) {
	code, err = utils.GenerateAccessCode(s.accessCodeLength)
	if err != nil {
		return "", "", fmt.Errorf("generate access code: %w", err)
	}
	hash, err = utils.HashAccessCode(code)
	if err != nil {
		return "", "", err
	}
	return code, hash, nil
}

// bumpDriverCount is a best-effort stat; a failure never undoes a booking.
func (s *BookingService) bumpDriverCount(ctx context.Context, driverID string) {
	if err := s.profiles.IncrementBookingCount(ctx, driverID); err != nil {
		slog.Warn("driver booking count increment failed", "driver_id", driverID, "error", err)
	}
}

func (s *BookingService) notify(ctx context.Context, b *models.Booking, event string) {
	if s.notifier != nil {
		s.notifier.NotifyBookingChanged(ctx, b, event)
	}
}

func (s *BookingService) track(operation string, bookingType models.BookingType, outcome string) {
	if s.tracker != nil {
		s.tracker.TrackBookingOperation(operation, string(bookingType), outcome)
	}
}

func (s *BookingService) fail(operation string, bookingType models.BookingType, err error) error {
	s.track(operation, bookingType, "error")
	return err
}
