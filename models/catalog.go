package models

import (
	"fmt"

	"parking-system/internal/status"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// Listing is a private host's offering with individually tracked slots.
type Listing struct {
	ID         string          `json:"id"`
	HostID     string          `json:"host_id"`
	Title      string          `json:"title"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	AutoAccept bool            `json:"auto_accept"`
}

func ListingFromRecord(r *core.Record) (*Listing, error) {
	l := &Listing{
		ID:         r.Id,
		HostID:     r.GetString("host_id"),
		Title:      r.GetString("title"),
		HourlyRate: decimal.NewFromFloat(r.GetFloat("hourly_rate")),
		AutoAccept: r.GetBool("auto_accept"),
	}
	if l.HostID == "" {
		return nil, fmt.Errorf("%w: listing %s has no host", status.ErrInvalidData, r.Id)
	}
	return l, nil
}

// Facility is a commercial location modeled by aggregate capacity.
type Facility struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	TotalCapacity int             `json:"total_capacity"`
}

func FacilityFromRecord(r *core.Record) (*Facility, error) {
	f := &Facility{
		ID:            r.Id,
		OwnerID:       r.GetString("owner_id"),
		Name:          r.GetString("name"),
		HourlyRate:    decimal.NewFromFloat(r.GetFloat("hourly_rate")),
		TotalCapacity: r.GetInt("total_capacity"),
	}
	if f.OwnerID == "" {
		return nil, fmt.Errorf("%w: facility %s has no owner", status.ErrInvalidData, r.Id)
	}
	return f, nil
}

// FacilityCapacity is the live counter pair for one facility.
// 0 <= Available <= Total holds at all times.
type FacilityCapacity struct {
	FacilityID string `json:"facility_id"`
	Total      int    `json:"total"`
	Available  int    `json:"available"`
}

func (c FacilityCapacity) Occupied() int {
	return c.Total - c.Available
}
