package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"parking-system/internal/status"
	"parking-system/models"

	"github.com/redis/go-redis/v9"
)

// Capacity counters live in a Redis hash per facility. Every mutation is a
// single Lua script, so concurrent reserve calls racing for the last unit
// serialize inside Redis and at most `total` reservations ever succeed.

const reserveCapacityScript = `
local total = redis.call('HGET', KEYS[1], 'total')
if not total then
  return {-1, 0}
end
local available = tonumber(redis.call('HGET', KEYS[1], 'available') or '0')
if available <= 0 then
  return {0, available}
end
redis.call('HSET', KEYS[1], 'available', available - 1)
return {1, available - 1}
`

const releaseCapacityScript = `
local total = redis.call('HGET', KEYS[1], 'total')
if not total then
  return {-1, 0}
end
total = tonumber(total)
local available = tonumber(redis.call('HGET', KEYS[1], 'available') or '0')
if available >= total then
  return {0, available}
end
redis.call('HSET', KEYS[1], 'available', available + 1)
return {1, available + 1}
`

const setTotalCapacityScript = `
local oldTotal = tonumber(redis.call('HGET', KEYS[1], 'total') or '0')
local oldAvailable = tonumber(redis.call('HGET', KEYS[1], 'available') or '0')
local occupied = oldTotal - oldAvailable
local newTotal = tonumber(ARGV[1])
local newAvailable = newTotal - occupied
if newAvailable < 0 then
  newAvailable = 0
end
redis.call('HSET', KEYS[1], 'total', newTotal, 'available', newAvailable)
return {newTotal, newAvailable}
`

const syncOccupiedScript = `
local total = tonumber(redis.call('HGET', KEYS[1], 'total') or '0')
local occupied = tonumber(ARGV[1])
local available = total - occupied
if available < 0 then
  available = 0
end
redis.call('HSET', KEYS[1], 'available', available)
return {total, available}
`

type CapacityService struct {
	Redis *redis.Client
}

func NewCapacityService(redisClient *redis.Client) *CapacityService {
	return &CapacityService{Redis: redisClient}
}

func capacityKey(facilityID string) string {
	return fmt.Sprintf("facility:capacity:%s", facilityID)
}

// Reserve atomically takes one unit of the facility's capacity. It fails
// with ErrNoCapacity when none remain and never partially applies, so the
// caller must not retry a failure blindly.
func (s *CapacityService) Reserve(ctx context.Context, facilityID string) error {
	res, err := s.Redis.Eval(ctx, reserveCapacityScript, []string{capacityKey(facilityID)}).Result()
	if err != nil {
		return fmt.Errorf("reserve capacity %s: %w", facilityID, err)
	}

	outcome, _, err := parseCounterReply(res)
	if err != nil {
		return fmt.Errorf("reserve capacity %s: %w", facilityID, err)
	}

	switch outcome {
	case -1:
		return fmt.Errorf("facility %s: %w", facilityID, status.ErrNotFound)
	case 0:
		return fmt.Errorf("facility %s: %w", facilityID, status.ErrNoCapacity)
	}
	return nil
}

// Release atomically returns one unit, capped at total. Releasing an
// already-full facility is a no-op, not an error, which makes release safe
// against double delivery.
func (s *CapacityService) Release(ctx context.Context, facilityID string) error {
	res, err := s.Redis.Eval(ctx, releaseCapacityScript, []string{capacityKey(facilityID)}).Result()
	if err != nil {
		return fmt.Errorf("release capacity %s: %w", facilityID, err)
	}

	outcome, _, err := parseCounterReply(res)
	if err != nil {
		return fmt.Errorf("release capacity %s: %w", facilityID, err)
	}

	switch outcome {
	case -1:
		return fmt.Errorf("facility %s: %w", facilityID, status.ErrNotFound)
	case 0:
		slog.Warn("capacity release ignored, facility already at total", "facility_id", facilityID)
	}
	return nil
}

// SetTotal updates the administrative total and recomputes available as
// max(0, newTotal - occupied) in the same script.
func (s *CapacityService) SetTotal(ctx context.Context, facilityID string, total int) (models.FacilityCapacity, error) {
	if total < 0 {
		return models.FacilityCapacity{}, fmt.Errorf("%w: negative capacity total", status.ErrInvalidData)
	}

	res, err := s.Redis.Eval(ctx, setTotalCapacityScript, []string{capacityKey(facilityID)}, total).Result()
	if err != nil {
		return models.FacilityCapacity{}, fmt.Errorf("set capacity total %s: %w", facilityID, err)
	}

	newTotal, available, err := parseCounterReply(res)
	if err != nil {
		return models.FacilityCapacity{}, fmt.Errorf("set capacity total %s: %w", facilityID, err)
	}

	return models.FacilityCapacity{
		FacilityID: facilityID,
		Total:      int(newTotal),
		Available:  int(available),
	}, nil
}

// SyncOccupied force-sets available from an authoritative occupied count.
// Used by the reconciler to repair drift, never by the booking path.
func (s *CapacityService) SyncOccupied(ctx context.Context, facilityID string, occupied int) (models.FacilityCapacity, error) {
	res, err := s.Redis.Eval(ctx, syncOccupiedScript, []string{capacityKey(facilityID)}, occupied).Result()
	if err != nil {
		return models.FacilityCapacity{}, fmt.Errorf("sync capacity %s: %w", facilityID, err)
	}

	total, available, err := parseCounterReply(res)
	if err != nil {
		return models.FacilityCapacity{}, fmt.Errorf("sync capacity %s: %w", facilityID, err)
	}

	return models.FacilityCapacity{
		FacilityID: facilityID,
		Total:      int(total),
		Available:  int(available),
	}, nil
}

func (s *CapacityService) Get(ctx context.Context, facilityID string) (models.FacilityCapacity, error) {
	fields, err := s.Redis.HGetAll(ctx, capacityKey(facilityID)).Result()
	if err != nil {
		return models.FacilityCapacity{}, fmt.Errorf("get capacity %s: %w", facilityID, err)
	}
	if len(fields) == 0 {
		return models.FacilityCapacity{}, fmt.Errorf("facility %s: %w", facilityID, status.ErrNotFound)
	}

	cap := models.FacilityCapacity{FacilityID: facilityID}
	if _, err := fmt.Sscanf(fields["total"], "%d", &cap.Total); err != nil {
		return models.FacilityCapacity{}, fmt.Errorf("facility %s: %w: bad total %q", facilityID, status.ErrInvalidData, fields["total"])
	}
	if _, err := fmt.Sscanf(fields["available"], "%d", &cap.Available); err != nil {
		return models.FacilityCapacity{}, fmt.Errorf("facility %s: %w: bad available %q", facilityID, status.ErrInvalidData, fields["available"])
	}
	return cap, nil
}

// ListFacilityIDs returns every facility with a capacity counter in Redis.
func (s *CapacityService) ListFacilityIDs(ctx context.Context) ([]string, error) {
	keys, err := s.Redis.Keys(ctx, "facility:capacity:*").Result()
	if err != nil {
		return nil, fmt.Errorf("list facility capacity keys: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, "facility:capacity:"))
	}
	return ids, nil
}

// Drop removes a facility's counters (facility deleted from the catalog).
func (s *CapacityService) Drop(ctx context.Context, facilityID string) error {
	return s.Redis.Del(ctx, capacityKey(facilityID)).Err()
}

// parseCounterReply unpacks the {outcome, value} pair every capacity script
// returns.
func parseCounterReply(res any) (int64, int64, error) {
	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected script reply %v", status.ErrInvalidData, res)
	}
	outcome, ok := reply[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unexpected script reply %v", status.ErrInvalidData, res)
	}
	value, ok := reply[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unexpected script reply %v", status.ErrInvalidData, res)
	}
	return outcome, value, nil
}
