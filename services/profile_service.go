package services

import (
	"context"
	"fmt"

	"parking-system/internal/status"
	"parking-system/models"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// ProfileService mutates the user stats the booking core maintains as
// lifecycle side effects. Each mutation is a read-modify-write inside a
// database transaction; the core does not own the rest of the user record.
type ProfileService struct {
	app core.App
}

func NewProfileService(app core.App) *ProfileService {
	return &ProfileService{app: app}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	record, err := s.app.FindRecordById("users", userID)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, status.ErrNotFound)
	}
	return models.ProfileFromRecord(record), nil
}

func (s *ProfileService) IncrementBookingCount(ctx context.Context, userID string) error {
	return s.app.RunInTransaction(func(tx core.App) error {
		record, err := tx.FindRecordById("users", userID)
		if err != nil {
			return fmt.Errorf("user %s: %w", userID, status.ErrNotFound)
		}
		record.Set("booking_count", record.GetInt("booking_count")+1)
		if err := tx.Save(record); err != nil {
			return fmt.Errorf("increment booking count for %s: %w", userID, err)
		}
		return nil
	})
}

// CreditEarnings adds a host payout to the user's cumulative earnings.
func (s *ProfileService) CreditEarnings(ctx context.Context, userID string, amount decimal.Decimal) error {
	return s.app.RunInTransaction(func(tx core.App) error {
		record, err := tx.FindRecordById("users", userID)
		if err != nil {
			return fmt.Errorf("user %s: %w", userID, status.ErrNotFound)
		}
		total := decimal.NewFromFloat(record.GetFloat("total_earnings")).Add(amount)
		record.Set("total_earnings", total.InexactFloat64())
		if err := tx.Save(record); err != nil {
			return fmt.Errorf("credit earnings for %s: %w", userID, err)
		}
		return nil
	})
}

// AddHostRating folds one more rating into the host's running average.
func (s *ProfileService) AddHostRating(ctx context.Context, userID string, rating int) error {
	return s.app.RunInTransaction(func(tx core.App) error {
		record, err := tx.FindRecordById("users", userID)
		if err != nil {
			return fmt.Errorf("user %s: %w", userID, status.ErrNotFound)
		}

		count := record.GetInt("rating_count")
		current := decimal.NewFromFloat(record.GetFloat("host_rating"))
		sum := current.Mul(decimal.NewFromInt(int64(count))).Add(decimal.NewFromInt(int64(rating)))
		newCount := count + 1

		record.Set("host_rating", sum.Div(decimal.NewFromInt(int64(newCount))).Round(2).InexactFloat64())
		record.Set("rating_count", newCount)
		if err := tx.Save(record); err != nil {
			return fmt.Errorf("update host rating for %s: %w", userID, err)
		}
		return nil
	})
}
