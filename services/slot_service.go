package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"parking-system/internal/status"
	"parking-system/models"

	"github.com/redis/go-redis/v9"
)

// Slot occupancy lives in a Redis hash per slot. A per-listing hold counter
// is maintained inside the same scripts, so the listing's "has pending
// activity" hint is derived from one atomic source instead of being written
// separately and drifting.

const setSlotScript = `
local cur = redis.call('HGET', KEYS[1], 'booking_id')
if cur and cur ~= ARGV[1] then
  return {0, 0}
end
local isnew = 0
if not cur then
  isnew = 1
end
if ARGV[3] == '' then
  redis.call('HSET', KEYS[1], 'status', ARGV[2], 'booking_id', ARGV[1])
  redis.call('HDEL', KEYS[1], 'end_time')
else
  redis.call('HSET', KEYS[1], 'status', ARGV[2], 'booking_id', ARGV[1], 'end_time', ARGV[3])
end
if isnew == 1 then
  redis.call('INCR', KEYS[2])
end
return {1, isnew}
`

const clearSlotScript = `
local cur = redis.call('HGET', KEYS[1], 'booking_id')
if not cur then
  return {1, 0}
end
if ARGV[1] ~= '' and cur ~= ARGV[1] then
  return {0, 0}
end
redis.call('DEL', KEYS[1])
local count = redis.call('DECR', KEYS[2])
if count < 0 then
  redis.call('SET', KEYS[2], 0)
end
return {1, 1}
`

type SlotService struct {
	Redis *redis.Client
}

func NewSlotService(redisClient *redis.Client) *SlotService {
	return &SlotService{Redis: redisClient}
}

func slotKey(listingID, slotID string) string {
	return fmt.Sprintf("slot:%s:%s", listingID, slotID)
}

func listingActiveKey(listingID string) string {
	return fmt.Sprintf("listing:active:%s", listingID)
}

// SetState writes a slot's occupancy in one atomic step. An empty bookingID
// clears the slot; otherwise the slot is held (reserved or occupied) for
// that booking. Setting the same state twice is a no-op; holding for a
// different booking fails with ErrSlotUnavailable.
func (s *SlotService) SetState(ctx context.Context, listingID, slotID string, occupied bool, bookingID string, endTime *time.Time) error {
	if bookingID == "" {
		return s.ForceRelease(ctx, listingID, slotID)
	}

	slotStatus := string(models.SlotReserved)
	if occupied {
		slotStatus = string(models.SlotOccupied)
	}
	end := ""
	if endTime != nil {
		end = strconv.FormatInt(endTime.Unix(), 10)
	}

	res, err := s.Redis.Eval(ctx, setSlotScript,
		[]string{slotKey(listingID, slotID), listingActiveKey(listingID)},
		bookingID, slotStatus, end,
	).Result()
	if err != nil {
		return fmt.Errorf("set slot %s/%s: %w", listingID, slotID, err)
	}

	outcome, _, err := parseCounterReply(res)
	if err != nil {
		return fmt.Errorf("set slot %s/%s: %w", listingID, slotID, err)
	}
	if outcome == 0 {
		return fmt.Errorf("slot %s/%s held by another booking: %w", listingID, slotID, status.ErrSlotUnavailable)
	}
	return nil
}

// Reserve holds a free slot for a booking without marking it occupied.
func (s *SlotService) Reserve(ctx context.Context, listingID, slotID, bookingID string) error {
	return s.SetState(ctx, listingID, slotID, false, bookingID, nil)
}

// Occupy marks a held slot occupied with its expected release time.
func (s *SlotService) Occupy(ctx context.Context, listingID, slotID, bookingID string, endTime time.Time) error {
	return s.SetState(ctx, listingID, slotID, true, bookingID, &endTime)
}

// Release clears the slot iff it is held by the given booking. Releasing an
// already-free slot, or one re-reserved by a newer booking, is a logged
// no-op so the clear happens exactly once per hold.
func (s *SlotService) Release(ctx context.Context, listingID, slotID, bookingID string) error {
	res, err := s.Redis.Eval(ctx, clearSlotScript,
		[]string{slotKey(listingID, slotID), listingActiveKey(listingID)},
		bookingID,
	).Result()
	if err != nil {
		return fmt.Errorf("release slot %s/%s: %w", listingID, slotID, err)
	}

	outcome, _, err := parseCounterReply(res)
	if err != nil {
		return fmt.Errorf("release slot %s/%s: %w", listingID, slotID, err)
	}
	if outcome == 0 {
		slog.Warn("slot release skipped, held by a different booking",
			"listing_id", listingID, "slot_id", slotID, "booking_id", bookingID)
	}
	return nil
}

// ForceRelease clears the slot regardless of holder. Reconciliation only.
func (s *SlotService) ForceRelease(ctx context.Context, listingID, slotID string) error {
	_, err := s.Redis.Eval(ctx, clearSlotScript,
		[]string{slotKey(listingID, slotID), listingActiveKey(listingID)},
		"",
	).Result()
	if err != nil {
		return fmt.Errorf("force release slot %s/%s: %w", listingID, slotID, err)
	}
	return nil
}

func (s *SlotService) Get(ctx context.Context, listingID, slotID string) (*models.SlotState, error) {
	fields, err := s.Redis.HGetAll(ctx, slotKey(listingID, slotID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get slot %s/%s: %w", listingID, slotID, err)
	}

	state := &models.SlotState{
		ListingID: listingID,
		SlotID:    slotID,
		Status:    models.SlotFree,
	}
	if len(fields) == 0 {
		return state, nil
	}

	state.Status = models.SlotStatus(fields["status"])
	state.BookingID = fields["booking_id"]
	if raw := fields["end_time"]; raw != "" {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("slot %s/%s: %w: bad end_time %q", listingID, slotID, status.ErrInvalidData, raw)
		}
		t := time.Unix(unix, 0).UTC()
		state.EndTime = &t
	}
	return state, nil
}

// HasActiveBooking derives the listing activity hint from the hold counter.
func (s *SlotService) HasActiveBooking(ctx context.Context, listingID string) (bool, error) {
	count, err := s.Redis.Get(ctx, listingActiveKey(listingID)).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("listing activity %s: %w", listingID, err)
	}
	return count > 0, nil
}

// ListHeld returns every slot currently reserved or occupied. Used by the
// reconciler to find holds whose booking has already terminated.
func (s *SlotService) ListHeld(ctx context.Context) ([]models.SlotState, error) {
	keys, err := s.Redis.Keys(ctx, "slot:*").Result()
	if err != nil {
		return nil, fmt.Errorf("list held slots: %w", err)
	}

	held := make([]models.SlotState, 0, len(keys))
	for _, key := range keys {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 {
			continue
		}
		state, err := s.Get(ctx, parts[1], parts[2])
		if err != nil {
			slog.Error("skipping unreadable slot state", "key", key, "error", err)
			continue
		}
		if state.Held() {
			held = append(held, *state)
		}
	}
	return held, nil
}
