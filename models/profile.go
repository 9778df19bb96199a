package models

import (
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// Profile is the slice of a user record the booking core reads and mutates.
// The core does not own this data; it increments stats as lifecycle side
// effects.
type Profile struct {
	ID                string          `json:"id"`
	CanDrive          bool            `json:"can_drive"`
	CanHostPrivate    bool            `json:"can_host_private"`
	CanHostCommercial bool            `json:"can_host_commercial"`
	BookingCount      int             `json:"booking_count"`
	TotalEarnings     decimal.Decimal `json:"total_earnings"`
	HostRating        decimal.Decimal `json:"host_rating"`
	RatingCount       int             `json:"rating_count"`
}

func ProfileFromRecord(r *core.Record) *Profile {
	return &Profile{
		ID:                r.Id,
		CanDrive:          r.GetBool("can_drive"),
		CanHostPrivate:    r.GetBool("can_host_private"),
		CanHostCommercial: r.GetBool("can_host_commercial"),
		BookingCount:      r.GetInt("booking_count"),
		TotalEarnings:     decimal.NewFromFloat(r.GetFloat("total_earnings")),
		HostRating:        decimal.NewFromFloat(r.GetFloat("host_rating")),
		RatingCount:       r.GetInt("rating_count"),
	}
}
