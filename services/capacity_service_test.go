package services

import (
	"context"
	"testing"

	"parking-system/internal/status"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCapacityService() (*CapacityService, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewCapacityService(db), mock
}

func TestCapacityService_Reserve_Success(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	mock.ExpectEval(reserveCapacityScript, []string{"facility:capacity:fac-1"}).
		SetVal([]interface{}{int64(1), int64(4)})

	err := service.Reserve(context.Background(), "fac-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_Reserve_NoCapacity(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	mock.ExpectEval(reserveCapacityScript, []string{"facility:capacity:fac-1"}).
		SetVal([]interface{}{int64(0), int64(0)})

	err := service.Reserve(context.Background(), "fac-1")

	assert.ErrorIs(t, err, status.ErrNoCapacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_Reserve_UnknownFacility(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	mock.ExpectEval(reserveCapacityScript, []string{"facility:capacity:ghost"}).
		SetVal([]interface{}{int64(-1), int64(0)})

	err := service.Reserve(context.Background(), "ghost")

	assert.ErrorIs(t, err, status.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_Release_Success(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	mock.ExpectEval(releaseCapacityScript, []string{"facility:capacity:fac-1"}).
		SetVal([]interface{}{int64(1), int64(5)})

	err := service.Release(context.Background(), "fac-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_Release_AtTotalIsNoop(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	// Double delivery of a release must not push available past total.
	mock.ExpectEval(releaseCapacityScript, []string{"facility:capacity:fac-1"}).
		SetVal([]interface{}{int64(0), int64(5)})

	err := service.Release(context.Background(), "fac-1")

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_SetTotal_ShrinkBelowOccupied(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	// 10 total with 7 occupied, shrunk to 5: available floors at 0 and the
	// overage drains as bookings end.
	mock.ExpectEval(setTotalCapacityScript, []string{"facility:capacity:fac-1"}, 5).
		SetVal([]interface{}{int64(5), int64(0)})

	capacity, err := service.SetTotal(context.Background(), "fac-1", 5)

	require.NoError(t, err)
	assert.Equal(t, 5, capacity.Total)
	assert.Equal(t, 0, capacity.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_SetTotal_NegativeRejected(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	_, err := service.SetTotal(context.Background(), "fac-1", -1)

	assert.ErrorIs(t, err, status.ErrInvalidData)
}

func TestCapacityService_SyncOccupied(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	mock.ExpectEval(syncOccupiedScript, []string{"facility:capacity:fac-1"}, 3).
		SetVal([]interface{}{int64(10), int64(7)})

	capacity, err := service.SyncOccupied(context.Background(), "fac-1", 3)

	require.NoError(t, err)
	assert.Equal(t, 10, capacity.Total)
	assert.Equal(t, 7, capacity.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_Get_Success(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("facility:capacity:fac-1").SetVal(map[string]string{
		"total":     "10",
		"available": "4",
	})

	capacity, err := service.Get(context.Background(), "fac-1")

	require.NoError(t, err)
	assert.Equal(t, 10, capacity.Total)
	assert.Equal(t, 4, capacity.Available)
	assert.Equal(t, 6, capacity.Occupied())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_Get_Missing(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	mock.ExpectHGetAll("facility:capacity:ghost").SetVal(map[string]string{})

	_, err := service.Get(context.Background(), "ghost")

	assert.ErrorIs(t, err, status.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCapacityService_ListFacilityIDs(t *testing.T) {
	service, mock := setupTestCapacityService()
	defer mock.ClearExpect()

	mock.ExpectKeys("facility:capacity:*").SetVal([]string{
		"facility:capacity:fac-1",
		"facility:capacity:fac-2",
	})

	ids, err := service.ListFacilityIDs(context.Background())

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fac-1", "fac-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
