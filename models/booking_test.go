package models

import (
	"testing"
	"time"

	"parking-system/internal/status"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func validPrivateBooking() *Booking {
	start := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	return &Booking{
		Type:           BookingTypePrivate,
		DriverID:       "driver-1",
		HostID:         "host-1",
		ListingID:      "lst-1",
		SlotID:         "slot-a",
		ScheduledStart: start,
		ScheduledEnd:   start.Add(2 * time.Hour),
		Status:         StatusRequested,
	}
}

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to BookingStatus }{
		{StatusRequested, StatusConfirmed},
		{StatusRequested, StatusRejected},
		{StatusConfirmed, StatusActive},
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusCancelRequested},
		{StatusConfirmed, StatusNoShow},
		{StatusActive, StatusCompleted},
		{StatusActive, StatusCancelled},
		{StatusActive, StatusCancelRequested},
		{StatusCancelRequested, StatusCancelled},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to BookingStatus }{
		{StatusRequested, StatusActive},
		{StatusRequested, StatusCompleted},
		{StatusConfirmed, StatusRequested},
		{StatusActive, StatusNoShow},
		{StatusCompleted, StatusActive},
		{StatusRejected, StatusConfirmed},
		{StatusCancelled, StatusConfirmed},
		{StatusNoShow, StatusConfirmed},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	all := []BookingStatus{
		StatusRequested, StatusConfirmed, StatusActive, StatusCancelRequested,
		StatusCancelled, StatusCompleted, StatusRejected, StatusNoShow,
	}
	for _, terminal := range []BookingStatus{StatusCompleted, StatusCancelled, StatusRejected, StatusNoShow} {
		assert.True(t, IsTerminal(terminal))
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to), "%s must have no outgoing edge", terminal)
		}
	}
	for _, live := range []BookingStatus{StatusRequested, StatusConfirmed, StatusActive, StatusCancelRequested} {
		assert.False(t, IsTerminal(live))
	}
}

func TestHoldsCapacity(t *testing.T) {
	assert.True(t, HoldsCapacity(StatusConfirmed))
	assert.True(t, HoldsCapacity(StatusActive))
	assert.True(t, HoldsCapacity(StatusCancelRequested))
	assert.False(t, HoldsCapacity(StatusRequested))
	assert.False(t, HoldsCapacity(StatusCompleted))
	assert.False(t, HoldsCapacity(StatusCancelled))
}

func TestBookingValidate_ResourceReference(t *testing.T) {
	b := validPrivateBooking()
	assert.NoError(t, b.Validate())

	b = validPrivateBooking()
	b.FacilityID = "fac-1"
	assert.ErrorIs(t, b.Validate(), status.ErrInvalidData, "private booking may not reference a facility")

	b = validPrivateBooking()
	b.SlotID = ""
	assert.ErrorIs(t, b.Validate(), status.ErrInvalidData)

	commercial := &Booking{
		Type:           BookingTypeCommercial,
		DriverID:       "driver-1",
		HostID:         "owner-1",
		FacilityID:     "fac-1",
		ScheduledStart: time.Now(),
		ScheduledEnd:   time.Now().Add(time.Hour),
		Status:         StatusConfirmed,
	}
	assert.NoError(t, commercial.Validate())

	commercial.ListingID = "lst-1"
	assert.ErrorIs(t, commercial.Validate(), status.ErrInvalidData, "commercial booking may not reference a listing")
}

func TestBookingValidate_Schedule(t *testing.T) {
	b := validPrivateBooking()
	b.ScheduledEnd = b.ScheduledStart
	assert.ErrorIs(t, b.Validate(), status.ErrInvalidData)

	b = validPrivateBooking()
	b.Type = "valet"
	assert.ErrorIs(t, b.Validate(), status.ErrInvalidData)
}

func TestEstimateCost(t *testing.T) {
	start := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)

	cost := EstimateCost(decimal.NewFromInt(100), start, start.Add(5*time.Hour))
	assert.True(t, cost.Equal(decimal.NewFromInt(500)), "got %s", cost)

	// Partial hours bill proportionally.
	cost = EstimateCost(decimal.NewFromInt(100), start, start.Add(90*time.Minute))
	assert.True(t, cost.Equal(decimal.NewFromInt(150)), "got %s", cost)

	cost = EstimateCost(decimal.RequireFromString("33.33"), start, start.Add(time.Hour))
	assert.True(t, cost.Equal(decimal.RequireFromString("33.33")), "got %s", cost)
}

func TestPrivateTaxAndPayout(t *testing.T) {
	estimate := decimal.NewFromInt(1000)

	assert.True(t, PrivateTax(estimate).Equal(decimal.NewFromInt(180)))
	assert.True(t, HostPayout(estimate).Equal(decimal.NewFromInt(850)))

	// Payout is computed from the estimate, never the actual cost.
	assert.True(t, HostPayout(decimal.NewFromInt(500)).Equal(decimal.NewFromInt(425)))
}
