package services

import (
	"context"
	"fmt"

	"parking-system/internal/status"
	"parking-system/models"

	"github.com/pocketbase/pocketbase/core"
)

// CatalogService is the read path into the listing/facility catalog. The
// booking core consumes the auto-accept flag, rates, and ownership from
// here; live occupancy never lives in these records.
type CatalogService struct {
	app core.App
}

func NewCatalogService(app core.App) *CatalogService {
	return &CatalogService{app: app}
}

func (s *CatalogService) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	record, err := s.app.FindRecordById("listings", id)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", id, status.ErrNotFound)
	}
	return models.ListingFromRecord(record)
}

func (s *CatalogService) GetFacility(ctx context.Context, id string) (*models.Facility, error) {
	record, err := s.app.FindRecordById("facilities", id)
	if err != nil {
		return nil, fmt.Errorf("facility %s: %w", id, status.ErrNotFound)
	}
	return models.FacilityFromRecord(record)
}

// SlotBelongsToListing verifies a slot's catalog identity before the core
// takes a hold on it.
func (s *CatalogService) SlotBelongsToListing(ctx context.Context, listingID, slotID string) error {
	record, err := s.app.FindRecordById("slots", slotID)
	if err != nil {
		return fmt.Errorf("slot %s: %w", slotID, status.ErrNotFound)
	}
	if record.GetString("listing_id") != listingID {
		return fmt.Errorf("slot %s does not belong to listing %s: %w", slotID, listingID, status.ErrNotFound)
	}
	return nil
}
