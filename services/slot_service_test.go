package services

import (
	"context"
	"strconv"
	"testing"
	"time"

	"parking-system/internal/status"
	"parking-system/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSlotService() (*SlotService, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewSlotService(db), mock
}

func TestSlotService_Reserve_Success(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	mock.ExpectEval(setSlotScript,
		[]string{"slot:lst-1:slot-a", "listing:active:lst-1"},
		"bk-1", "reserved", "",
	).SetVal([]interface{}{int64(1), int64(1)})

	err := service.Reserve(context.Background(), "lst-1", "slot-a", "bk-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_Reserve_HeldByOtherBooking(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	mock.ExpectEval(setSlotScript,
		[]string{"slot:lst-1:slot-a", "listing:active:lst-1"},
		"bk-2", "reserved", "",
	).SetVal([]interface{}{int64(0), int64(0)})

	err := service.Reserve(context.Background(), "lst-1", "slot-a", "bk-2")

	assert.ErrorIs(t, err, status.ErrSlotUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_Occupy_CarriesEndTime(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	end := time.Date(2026, 8, 23, 18, 0, 0, 0, time.UTC)
	mock.ExpectEval(setSlotScript,
		[]string{"slot:lst-1:slot-a", "listing:active:lst-1"},
		"bk-1", "occupied", strconv.FormatInt(end.Unix(), 10),
	).SetVal([]interface{}{int64(1), int64(0)})

	err := service.Occupy(context.Background(), "lst-1", "slot-a", "bk-1", end)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_Release_OwnHold(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	mock.ExpectEval(clearSlotScript,
		[]string{"slot:lst-1:slot-a", "listing:active:lst-1"},
		"bk-1",
	).SetVal([]interface{}{int64(1), int64(1)})

	err := service.Release(context.Background(), "lst-1", "slot-a", "bk-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_Release_OtherHoldIsNoop(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	// A stale release must never clear a newer booking's hold.
	mock.ExpectEval(clearSlotScript,
		[]string{"slot:lst-1:slot-a", "listing:active:lst-1"},
		"bk-old",
	).SetVal([]interface{}{int64(0), int64(0)})

	err := service.Release(context.Background(), "lst-1", "slot-a", "bk-old")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_ForceRelease(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	mock.ExpectEval(clearSlotScript,
		[]string{"slot:lst-1:slot-a", "listing:active:lst-1"},
		"",
	).SetVal([]interface{}{int64(1), int64(1)})

	err := service.ForceRelease(context.Background(), "lst-1", "slot-a")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_Get_FreeSlot(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("slot:lst-1:slot-a").SetVal(map[string]string{})

	state, err := service.Get(context.Background(), "lst-1", "slot-a")

	require.NoError(t, err)
	assert.Equal(t, models.SlotFree, state.Status)
	assert.False(t, state.Held())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_Get_OccupiedSlot(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	end := time.Date(2026, 8, 23, 18, 0, 0, 0, time.UTC)
	mock.ExpectHGetAll("slot:lst-1:slot-a").SetVal(map[string]string{
		"status":     "occupied",
		"booking_id": "bk-1",
		"end_time":   strconv.FormatInt(end.Unix(), 10),
	})

	state, err := service.Get(context.Background(), "lst-1", "slot-a")

	require.NoError(t, err)
	assert.Equal(t, models.SlotOccupied, state.Status)
	assert.Equal(t, "bk-1", state.BookingID)
	require.NotNil(t, state.EndTime)
	assert.True(t, state.EndTime.Equal(end))
	assert.True(t, state.Held())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_HasActiveBooking(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	mock.ExpectGet("listing:active:lst-1").SetVal("2")
	mock.ExpectGet("listing:active:lst-2").RedisNil()

	active, err := service.HasActiveBooking(context.Background(), "lst-1")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = service.HasActiveBooking(context.Background(), "lst-2")
	require.NoError(t, err)
	assert.False(t, active)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotService_ListHeld(t *testing.T) {
	service, mock := setupTestSlotService()
	defer mock.ClearExpect()

	mock.ExpectKeys("slot:*").SetVal([]string{"slot:lst-1:slot-a", "slot:lst-2:slot-b"})
	mock.ExpectHGetAll("slot:lst-1:slot-a").SetVal(map[string]string{
		"status":     "reserved",
		"booking_id": "bk-1",
	})
	mock.ExpectHGetAll("slot:lst-2:slot-b").SetVal(map[string]string{})

	held, err := service.ListHeld(context.Background())

	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "bk-1", held[0].BookingID)
	assert.Equal(t, "lst-1", held[0].ListingID)
	assert.Equal(t, "slot-a", held[0].SlotID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
