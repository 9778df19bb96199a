package models

import "time"

type SlotStatus string

const (
	SlotFree     SlotStatus = "free"
	SlotReserved SlotStatus = "reserved"
	SlotOccupied SlotStatus = "occupied"
)

// SlotState is the live occupancy of one physical slot. BookingID is
// non-empty iff the slot is reserved or occupied for that booking.
type SlotState struct {
	ListingID string     `json:"listing_id"`
	SlotID    string     `json:"slot_id"`
	Status    SlotStatus `json:"status"`
	BookingID string     `json:"booking_id,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

func (s *SlotState) Held() bool {
	return s.Status == SlotReserved || s.Status == SlotOccupied
}
