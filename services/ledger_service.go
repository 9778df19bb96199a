package services

import (
	"context"
	"fmt"

	"parking-system/internal/status"
	"parking-system/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
)

// LedgerService is the authoritative booking record store, backed by the
// "bookings" collection. It persists drafts, serves queries, and performs
// status updates with an expected-prior-status precondition so concurrent
// transition attempts on the same booking serialize instead of silently
// overwriting each other.
type LedgerService struct {
	app core.App
}

func NewLedgerService(app core.App) *LedgerService {
	return &LedgerService{app: app}
}

// Create persists a new booking and returns it with the server-stamped id
// and creation time.
func (l *LedgerService) Create(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	collection, err := l.app.FindCollectionByNameOrId("bookings")
	if err != nil {
		return nil, fmt.Errorf("bookings collection: %w", err)
	}

	record := core.NewRecord(collection)
	b.ApplyToRecord(record)
	if err := l.app.Save(record); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	return models.BookingFromRecord(record)
}

func (l *LedgerService) Get(ctx context.Context, id string) (*models.Booking, error) {
	record, err := l.app.FindRecordById("bookings", id)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", id, status.ErrNotFound)
	}
	return models.BookingFromRecord(record)
}

// UpdateStatus moves a booking to the next status, merging extra fields
// into the record. The whole read-check-write runs in one database
// transaction; a booking whose current status is not in expected fails with
// ErrStaleTransition and leaves the record untouched.
func (l *LedgerService) UpdateStatus(ctx context.Context, id string, expected []models.BookingStatus, next models.BookingStatus, extra map[string]any) (*models.Booking, error) {
	var updated *models.Booking

	err := l.app.RunInTransaction(func(tx core.App) error {
		record, err := tx.FindRecordById("bookings", id)
		if err != nil {
			return fmt.Errorf("booking %s: %w", id, status.ErrNotFound)
		}

		current := models.BookingStatus(record.GetString("status"))
		matched := false
		for _, s := range expected {
			if s == current {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("booking %s is %s, wanted one of %v: %w", id, current, expected, status.ErrStaleTransition)
		}
		if !models.CanTransition(current, next) {
			return fmt.Errorf("booking %s: %s -> %s: %w", id, current, next, status.ErrStaleTransition)
		}

		record.Set("status", string(next))
		for k, v := range extra {
			record.Set(k, v)
		}
		if err := tx.Save(record); err != nil {
			return fmt.Errorf("update booking %s: %w", id, err)
		}

		updated, err = models.BookingFromRecord(record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetRating stores a driver's one-time rating on a completed booking.
func (l *LedgerService) SetRating(ctx context.Context, id string, rating int) (*models.Booking, error) {
	var updated *models.Booking

	err := l.app.RunInTransaction(func(tx core.App) error {
		record, err := tx.FindRecordById("bookings", id)
		if err != nil {
			return fmt.Errorf("booking %s: %w", id, status.ErrNotFound)
		}
		if models.BookingStatus(record.GetString("status")) != models.StatusCompleted {
			return fmt.Errorf("booking %s not completed: %w", id, status.ErrStaleTransition)
		}
		if record.GetInt("rating") != 0 {
			return fmt.Errorf("booking %s: %w", id, status.ErrAlreadyRated)
		}

		record.Set("rating", rating)
		if err := tx.Save(record); err != nil {
			return fmt.Errorf("rate booking %s: %w", id, err)
		}

		updated, err = models.BookingFromRecord(record)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ByDriver lists a driver's bookings, newest request first.
func (l *LedgerService) ByDriver(ctx context.Context, driverID string, limit int) ([]*models.Booking, error) {
	records, err := l.app.FindRecordsByFilter(
		"bookings",
		"driver_id = {:driverId}",
		"-created",
		limit,
		0,
		map[string]any{"driverId": driverID},
	)
	if err != nil {
		return nil, fmt.Errorf("bookings by driver %s: %w", driverID, err)
	}
	return recordsToBookings(records)
}

// PendingForHost lists approval-pending requests against a host's listings,
// newest first.
func (l *LedgerService) PendingForHost(ctx context.Context, hostID string) ([]*models.Booking, error) {
	records, err := l.app.FindRecordsByFilter(
		"bookings",
		"host_id = {:hostId} && status = {:status}",
		"-created",
		0,
		0,
		map[string]any{"hostId": hostID, "status": string(models.StatusRequested)},
	)
	if err != nil {
		return nil, fmt.Errorf("pending bookings for host %s: %w", hostID, err)
	}
	return recordsToBookings(records)
}

// ActiveCountsByFacility counts the bookings currently holding a capacity
// unit per facility. cancel_requested still holds its unit until the owner
// confirms the cancellation.
func (l *LedgerService) ActiveCountsByFacility(ctx context.Context) (map[string]int, error) {
	rows := []struct {
		FacilityID string `db:"facility_id"`
		Count      int    `db:"cnt"`
	}{}

	err := l.app.DB().
		Select("facility_id", "COUNT(*) AS cnt").
		From("bookings").
		Where(dbx.NewExp("facility_id != ''")).
		AndWhere(dbx.In("status",
			string(models.StatusConfirmed),
			string(models.StatusActive),
			string(models.StatusCancelRequested),
		)).
		GroupBy("facility_id").
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("active counts by facility: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.FacilityID] = row.Count
	}
	return counts, nil
}

func recordsToBookings(records []*core.Record) ([]*models.Booking, error) {
	bookings := make([]*models.Booking, 0, len(records))
	for _, record := range records {
		// Corrupt rows surface as a parse failure instead of being
		// silently skipped.
		b, err := models.BookingFromRecord(record)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}
