package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"parking-system/models"
	"parking-system/utils"

	"github.com/google/uuid"
	pubnub "github.com/pubnub/go"
)

// subscriptionLedger is the query surface the subscription service re-runs
// whenever a booking changes.
type subscriptionLedger interface {
	ByDriver(ctx context.Context, driverID string, limit int) ([]*models.Booking, error)
	PendingForHost(ctx context.Context, hostID string) ([]*models.Booking, error)
}

type subscriptionKind int

const (
	subDriverBookings subscriptionKind = iota
	subHostPending
)

// Subscription is a cancellable handle producing result-set snapshots.
// Delivery is best-effort and at-least-once: each update redelivers the full
// current result set, and slow consumers may miss intermediate snapshots.
type Subscription struct {
	ID string
	C  <-chan []*models.Booking

	kind   subscriptionKind
	userID string
	ch     chan []*models.Booking
	svc    *SubscriptionService
	once   sync.Once
}

// Close stops delivery and releases the handle. Safe to call twice.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.svc.remove(sub.ID)
		close(sub.ch)
	})
}

// SubscriptionService fans booking changes out to in-process snapshot
// subscriptions and, best-effort, to per-user PubNub channels for devices.
type SubscriptionService struct {
	ledger  subscriptionLedger
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
	buffer  int

	mu   sync.RWMutex
	subs map[string]*Subscription
}

func NewSubscriptionService(ledger subscriptionLedger, pn *pubnub.PubNub, buffer int) *SubscriptionService {
	if buffer < 1 {
		buffer = 1
	}
	return &SubscriptionService{
		ledger:  ledger,
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub-publish"),
		buffer:  buffer,
		subs:    make(map[string]*Subscription),
	}
}

// SubscribeDriverBookings streams snapshots of a driver's bookings. The
// current result set is delivered immediately.
func (s *SubscriptionService) SubscribeDriverBookings(ctx context.Context, driverID string) (*Subscription, error) {
	return s.subscribe(ctx, subDriverBookings, driverID)
}

// SubscribeHostPending streams snapshots of a host's approval queue.
func (s *SubscriptionService) SubscribeHostPending(ctx context.Context, hostID string) (*Subscription, error) {
	return s.subscribe(ctx, subHostPending, hostID)
}

func (s *SubscriptionService) subscribe(ctx context.Context, kind subscriptionKind, userID string) (*Subscription, error) {
	snapshot, err := s.query(ctx, kind, userID)
	if err != nil {
		return nil, fmt.Errorf("initial subscription snapshot: %w", err)
	}

	ch := make(chan []*models.Booking, s.buffer)
	sub := &Subscription{
		ID:     uuid.NewString(),
		C:      ch,
		kind:   kind,
		userID: userID,
		ch:     ch,
		svc:    s,
	}

	s.mu.Lock()
	s.subs[sub.ID] = sub
	s.mu.Unlock()

	ch <- snapshot
	return sub, nil
}

func (s *SubscriptionService) remove(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
}

func (s *SubscriptionService) query(ctx context.Context, kind subscriptionKind, userID string) ([]*models.Booking, error) {
	switch kind {
	case subHostPending:
		return s.ledger.PendingForHost(ctx, userID)
	default:
		return s.ledger.ByDriver(ctx, userID, 0)
	}
}

// NotifyBookingChanged refreshes every subscription watching either party of
// the booking and pushes a PubNub event to both user channels.
func (s *SubscriptionService) NotifyBookingChanged(ctx context.Context, b *models.Booking, event string) {
	s.mu.RLock()
	watching := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.userID == b.DriverID || sub.userID == b.HostID {
			watching = append(watching, sub)
		}
	}
	s.mu.RUnlock()

	for _, sub := range watching {
		snapshot, err := s.query(ctx, sub.kind, sub.userID)
		if err != nil {
			slog.Error("subscription refresh failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		s.deliver(sub, snapshot)
	}

	s.publish(ctx, b.DriverID, b, event)
	if b.HostID != b.DriverID {
		s.publish(ctx, b.HostID, b, event)
	}
}

// deliver sends under the read lock after re-checking registration. Close
// removes the handle under the write lock before closing the channel, so a
// send that still sees the handle registered cannot race the close.
func (s *SubscriptionService) deliver(sub *Subscription, snapshot []*models.Booking) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, live := s.subs[sub.ID]; !live {
		return
	}
	// Non-blocking: a slow consumer just gets the next full snapshot.
	select {
	case sub.ch <- snapshot:
	default:
	}
}

func (s *SubscriptionService) publish(ctx context.Context, userID string, b *models.Booking, event string) {
	if s.pubnub == nil {
		return
	}

	channel := fmt.Sprintf("user-%s", userID)
	err := s.breaker.Execute(ctx, func() error {
		_, _, err := s.pubnub.Publish().
			Channel(channel).
			Message(map[string]any{
				"type":       event,
				"booking_id": b.ID,
				"status":     string(b.Status),
			}).
			Execute()
		return err
	})
	if err != nil {
		slog.Error("pubnub publish failed", "channel", channel, "event", event, "error", err)
	}
}

// PublishState reports the notification breaker state for health checks.
func (s *SubscriptionService) PublishState() utils.State {
	return s.breaker.State()
}
