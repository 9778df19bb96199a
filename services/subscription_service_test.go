package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"parking-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowLedger delays every query so a concurrent Close lands inside the
// notify window between gathering subscribers and delivering snapshots.
type slowLedger struct {
	*fakeLedger
	delay time.Duration
}

func (l *slowLedger) ByDriver(ctx context.Context, driverID string, limit int) ([]*models.Booking, error) {
	time.Sleep(l.delay)
	return l.fakeLedger.ByDriver(ctx, driverID, limit)
}

func (l *slowLedger) PendingForHost(ctx context.Context, hostID string) ([]*models.Booking, error) {
	time.Sleep(l.delay)
	return l.fakeLedger.PendingForHost(ctx, hostID)
}

func receiveSnapshot(t *testing.T, sub *Subscription) []*models.Booking {
	t.Helper()
	select {
	case snapshot := <-sub.C:
		return snapshot
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return nil
	}
}

func TestSubscribeDriverBookings_InitialSnapshot(t *testing.T) {
	ledger := newFakeLedger()
	svc := NewSubscriptionService(ledger, nil, 4)
	ctx := context.Background()

	_, err := ledger.Create(ctx, &models.Booking{
		Type: models.BookingTypePrivate, DriverID: "driver-1", HostID: "host-1",
		ListingID: "lst-1", SlotID: "a",
		ScheduledStart: time.Now(), ScheduledEnd: time.Now().Add(time.Hour),
		Status: models.StatusRequested,
	})
	require.NoError(t, err)

	sub, err := svc.SubscribeDriverBookings(ctx, "driver-1")
	require.NoError(t, err)
	defer sub.Close()

	snapshot := receiveSnapshot(t, sub)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "driver-1", snapshot[0].DriverID)
}

func TestNotifyBookingChanged_RefreshesMatchingSubs(t *testing.T) {
	ledger := newFakeLedger()
	svc := NewSubscriptionService(ledger, nil, 4)
	ctx := context.Background()

	driverSub, err := svc.SubscribeDriverBookings(ctx, "driver-1")
	require.NoError(t, err)
	defer driverSub.Close()
	otherSub, err := svc.SubscribeDriverBookings(ctx, "driver-2")
	require.NoError(t, err)
	defer otherSub.Close()

	assert.Empty(t, receiveSnapshot(t, driverSub))
	assert.Empty(t, receiveSnapshot(t, otherSub))

	created, err := ledger.Create(ctx, &models.Booking{
		Type: models.BookingTypePrivate, DriverID: "driver-1", HostID: "host-1",
		ListingID: "lst-1", SlotID: "a",
		ScheduledStart: time.Now(), ScheduledEnd: time.Now().Add(time.Hour),
		Status: models.StatusRequested,
	})
	require.NoError(t, err)

	svc.NotifyBookingChanged(ctx, created, "booking_requested")

	snapshot := receiveSnapshot(t, driverSub)
	require.Len(t, snapshot, 1)
	assert.Equal(t, created.ID, snapshot[0].ID)

	select {
	case extra := <-otherSub.C:
		t.Fatalf("unrelated subscription received %d bookings", len(extra))
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifyBookingChanged_HostPendingQueue(t *testing.T) {
	ledger := newFakeLedger()
	svc := NewSubscriptionService(ledger, nil, 4)
	ctx := context.Background()

	sub, err := svc.SubscribeHostPending(ctx, "host-1")
	require.NoError(t, err)
	defer sub.Close()
	assert.Empty(t, receiveSnapshot(t, sub))

	created, err := ledger.Create(ctx, &models.Booking{
		Type: models.BookingTypePrivate, DriverID: "driver-1", HostID: "host-1",
		ListingID: "lst-1", SlotID: "a",
		ScheduledStart: time.Now(), ScheduledEnd: time.Now().Add(time.Hour),
		Status: models.StatusRequested,
	})
	require.NoError(t, err)

	svc.NotifyBookingChanged(ctx, created, "booking_requested")
	require.Len(t, receiveSnapshot(t, sub), 1)

	// Once the request is decided it leaves the pending queue.
	rejected, err := ledger.UpdateStatus(ctx, created.ID,
		[]models.BookingStatus{models.StatusRequested},
		models.StatusRejected,
		map[string]any{"rejection_reason": "busy"},
	)
	require.NoError(t, err)

	svc.NotifyBookingChanged(ctx, rejected, "booking_rejected")
	assert.Empty(t, receiveSnapshot(t, sub))
}

func TestSubscription_SlowConsumerDoesNotBlock(t *testing.T) {
	ledger := newFakeLedger()
	svc := NewSubscriptionService(ledger, nil, 1)
	ctx := context.Background()

	sub, err := svc.SubscribeDriverBookings(ctx, "driver-1")
	require.NoError(t, err)
	defer sub.Close()

	b := &models.Booking{ID: "bk-x", DriverID: "driver-1", HostID: "host-1"}

	done := make(chan struct{})
	go func() {
		// The initial snapshot fills the buffer; repeated notifies must
		// drop, not block.
		for i := 0; i < 10; i++ {
			svc.NotifyBookingChanged(ctx, b, "booking_confirmed")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked on a slow consumer")
	}
}

func TestSubscription_ConcurrentCloseAndNotify(t *testing.T) {
	ledger := &slowLedger{fakeLedger: newFakeLedger(), delay: time.Millisecond}
	svc := NewSubscriptionService(ledger, nil, 1)
	ctx := context.Background()
	b := &models.Booking{ID: "bk-x", DriverID: "driver-1", HostID: "host-1"}

	// Close racing a mid-flight notify must never send on the closed channel.
	for i := 0; i < 50; i++ {
		sub, err := svc.SubscribeDriverBookings(ctx, "driver-1")
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			svc.NotifyBookingChanged(ctx, b, "booking_confirmed")
		}()
		go func() {
			defer wg.Done()
			sub.Close()
		}()
		wg.Wait()
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	ledger := newFakeLedger()
	svc := NewSubscriptionService(ledger, nil, 4)

	sub, err := svc.SubscribeDriverBookings(context.Background(), "driver-1")
	require.NoError(t, err)

	sub.Close()
	sub.Close()

	// A closed handle no longer receives refreshes.
	svc.NotifyBookingChanged(context.Background(),
		&models.Booking{ID: "bk-x", DriverID: "driver-1", HostID: "host-1"},
		"booking_confirmed")
}
