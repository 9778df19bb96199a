package models

import (
	"fmt"
	"time"

	"parking-system/internal/status"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type BookingType string

const (
	BookingTypePrivate    BookingType = "private"
	BookingTypeCommercial BookingType = "commercial"
)

type BookingStatus string

const (
	StatusRequested       BookingStatus = "requested"
	StatusConfirmed       BookingStatus = "confirmed"
	StatusActive          BookingStatus = "active"
	StatusCancelRequested BookingStatus = "cancel_requested"
	StatusCancelled       BookingStatus = "cancelled"
	StatusCompleted       BookingStatus = "completed"
	StatusRejected        BookingStatus = "rejected"
	StatusNoShow          BookingStatus = "no_show"
)

// transitions is the legal status edge table. Terminal statuses have no
// outgoing edges and never appear as a key.
var transitions = map[BookingStatus][]BookingStatus{
	StatusRequested:       {StatusConfirmed, StatusRejected},
	StatusConfirmed:       {StatusActive, StatusCancelled, StatusCancelRequested, StatusNoShow},
	StatusActive:          {StatusCompleted, StatusCancelled, StatusCancelRequested},
	StatusCancelRequested: {StatusCancelled},
}

func CanTransition(from, to BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s BookingStatus) bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected, StatusNoShow:
		return true
	}
	return false
}

// HoldsCapacity reports whether a commercial booking in this status still
// holds its facility unit. A cancel request does not release the unit until
// the owner confirms.
func HoldsCapacity(s BookingStatus) bool {
	switch s {
	case StatusConfirmed, StatusActive, StatusCancelRequested:
		return true
	}
	return false
}

type Booking struct {
	ID       string      `json:"id"`
	Type     BookingType `json:"type"`
	DriverID string      `json:"driver_id"`
	HostID   string      `json:"host_id"`

	// Resource reference: listing+slot for private, facility for commercial.
	ListingID  string `json:"listing_id,omitempty"`
	SlotID     string `json:"slot_id,omitempty"`
	FacilityID string `json:"facility_id,omitempty"`

	RequestedAt    time.Time  `json:"requested_at"`
	ScheduledStart time.Time  `json:"scheduled_start"`
	ScheduledEnd   time.Time  `json:"scheduled_end"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	ActualEnd      *time.Time `json:"actual_end,omitempty"`

	HourlyRate    decimal.Decimal  `json:"hourly_rate"`
	EstimatedCost decimal.Decimal  `json:"estimated_cost"`
	ActualCost    *decimal.Decimal `json:"actual_cost,omitempty"`
	TaxAmount     decimal.Decimal  `json:"tax_amount"`

	Status BookingStatus `json:"status"`

	// AccessCodeHash is the bcrypt hash of the 6-digit on-site code. The
	// plaintext code is returned once at creation and never persisted.
	AccessCodeHash string `json:"-"`

	RejectionReason string     `json:"rejection_reason,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	DriverMessage   string     `json:"driver_message,omitempty"`
	HostMessage     string     `json:"host_message,omitempty"`
	Rating          int        `json:"rating,omitempty"`
}

// Validate enforces the resource-reference invariant: exactly one of
// (listing+slot) or facility is set, matching the booking type.
func (b *Booking) Validate() error {
	switch b.Type {
	case BookingTypePrivate:
		if b.ListingID == "" || b.SlotID == "" || b.FacilityID != "" {
			return fmt.Errorf("%w: private booking requires listing and slot references", status.ErrInvalidData)
		}
	case BookingTypeCommercial:
		if b.FacilityID == "" || b.ListingID != "" || b.SlotID != "" {
			return fmt.Errorf("%w: commercial booking requires a facility reference", status.ErrInvalidData)
		}
	default:
		return fmt.Errorf("%w: unknown booking type %q", status.ErrInvalidData, b.Type)
	}
	if b.DriverID == "" || b.HostID == "" {
		return fmt.Errorf("%w: booking requires driver and host", status.ErrInvalidData)
	}
	if !b.ScheduledEnd.After(b.ScheduledStart) {
		return fmt.Errorf("%w: scheduled end must be after start", status.ErrInvalidData)
	}
	return nil
}

// BookingFromRecord converts a persisted record into a typed booking,
// validating required fields once at the boundary. Malformed records
// surface as ErrInvalidData.
func BookingFromRecord(r *core.Record) (*Booking, error) {
	b := &Booking{
		ID:              r.Id,
		Type:            BookingType(r.GetString("type")),
		DriverID:        r.GetString("driver_id"),
		HostID:          r.GetString("host_id"),
		ListingID:       r.GetString("listing_id"),
		SlotID:          r.GetString("slot_id"),
		FacilityID:      r.GetString("facility_id"),
		RequestedAt:     r.GetDateTime("created").Time(),
		ScheduledStart:  r.GetDateTime("scheduled_start").Time(),
		ScheduledEnd:    r.GetDateTime("scheduled_end").Time(),
		HourlyRate:      decimal.NewFromFloat(r.GetFloat("hourly_rate")),
		EstimatedCost:   decimal.NewFromFloat(r.GetFloat("estimated_cost")),
		TaxAmount:       decimal.NewFromFloat(r.GetFloat("tax_amount")),
		Status:          BookingStatus(r.GetString("status")),
		AccessCodeHash:  r.GetString("access_code_hash"),
		RejectionReason: r.GetString("rejection_reason"),
		DriverMessage:   r.GetString("driver_message"),
		HostMessage:     r.GetString("host_message"),
		Rating:          r.GetInt("rating"),
	}

	if dt := r.GetDateTime("actual_start"); !dt.IsZero() {
		t := dt.Time()
		b.ActualStart = &t
	}
	if dt := r.GetDateTime("actual_end"); !dt.IsZero() {
		t := dt.Time()
		b.ActualEnd = &t
	}
	if dt := r.GetDateTime("approved_at"); !dt.IsZero() {
		t := dt.Time()
		b.ApprovedAt = &t
	}
	if b.Status == StatusCompleted {
		cost := decimal.NewFromFloat(r.GetFloat("actual_cost"))
		b.ActualCost = &cost
	}

	if b.Status == "" {
		return nil, fmt.Errorf("%w: booking %s has no status", status.ErrInvalidData, r.Id)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("booking %s: %w", r.Id, err)
	}
	return b, nil
}

// ApplyToRecord writes the booking fields onto a record for persistence.
// The ledger owns the status column after creation; lifecycle changes go
// through its compare-and-swap update instead.
func (b *Booking) ApplyToRecord(r *core.Record) {
	r.Set("type", string(b.Type))
	r.Set("driver_id", b.DriverID)
	r.Set("host_id", b.HostID)
	r.Set("listing_id", b.ListingID)
	r.Set("slot_id", b.SlotID)
	r.Set("facility_id", b.FacilityID)
	r.Set("scheduled_start", b.ScheduledStart)
	r.Set("scheduled_end", b.ScheduledEnd)
	r.Set("hourly_rate", b.HourlyRate.InexactFloat64())
	r.Set("estimated_cost", b.EstimatedCost.InexactFloat64())
	r.Set("tax_amount", b.TaxAmount.InexactFloat64())
	r.Set("status", string(b.Status))
	r.Set("access_code_hash", b.AccessCodeHash)
	r.Set("rejection_reason", b.RejectionReason)
	r.Set("driver_message", b.DriverMessage)
	r.Set("host_message", b.HostMessage)
	r.Set("rating", b.Rating)
}
