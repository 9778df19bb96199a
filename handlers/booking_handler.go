package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"parking-system/internal/status"
	"parking-system/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type BookingHandler struct {
	app            *pocketbase.PocketBase
	bookingService *services.BookingService
}

func NewBookingHandler(app *pocketbase.PocketBase, bookingService *services.BookingService) *BookingHandler {
	return &BookingHandler{
		app:            app,
		bookingService: bookingService,
	}
}

// apiError maps service sentinels onto HTTP responses so every endpoint
// reports conflicts, missing records, and auth failures the same way.
func apiError(err error) error {
	switch {
	case errors.Is(err, status.ErrNotAuthenticated):
		return apis.NewUnauthorizedError("Unauthorized", nil)
	case errors.Is(err, status.ErrForbidden):
		return apis.NewForbiddenError("Forbidden", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.Is(err, status.ErrInvalidData):
		return apis.NewBadRequestError("Invalid request", err)
	case errors.Is(err, status.ErrNoCapacity):
		return apis.NewApiError(http.StatusConflict, "No capacity available", nil)
	case errors.Is(err, status.ErrSlotUnavailable):
		return apis.NewApiError(http.StatusConflict, "Slot is no longer available", nil)
	case errors.Is(err, status.ErrStaleTransition):
		return apis.NewApiError(http.StatusConflict, "Booking state changed, reload and retry", nil)
	case errors.Is(err, status.ErrAlreadyRated):
		return apis.NewApiError(http.StatusConflict, "Booking already rated", nil)
	case errors.Is(err, status.ErrAccessCodeWrong):
		return apis.NewForbiddenError("Wrong access code", nil)
	case errors.Is(err, status.ErrPartialFailure):
		return apis.NewApiError(http.StatusInternalServerError, "Booking partially applied, support has been notified", nil)
	default:
		return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", err)
	}
}

func authID(e *core.RequestEvent) string {
	if e.Auth == nil {
		return ""
	}
	return e.Auth.Id
}

// RequestPrivate - Request a booking on a private listing slot
func (h *BookingHandler) RequestPrivate(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req services.PrivateBookingRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ListingID == "" || req.SlotID == "" {
		return apis.NewBadRequestError("listing_id and slot_id are required", nil)
	}
	if !req.ScheduledEnd.After(req.ScheduledStart) {
		return apis.NewBadRequestError("scheduled_end must be after scheduled_start", nil)
	}

	created, err := h.bookingService.RequestPrivateBooking(e.Request.Context(), e.Auth.Id, req)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, created)
}

// BookCommercial - Book a spot in a commercial facility
func (h *BookingHandler) BookCommercial(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req services.CommercialBookingRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.FacilityID == "" {
		return apis.NewBadRequestError("facility_id is required", nil)
	}
	if !req.ScheduledEnd.After(req.ScheduledStart) {
		return apis.NewBadRequestError("scheduled_end must be after scheduled_start", nil)
	}

	created, err := h.bookingService.BookCommercialSpot(e.Request.Context(), e.Auth.Id, req)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusCreated, created)
}

// Approve - Host approves a pending request
func (h *BookingHandler) Approve(e *core.RequestEvent) error {
	var req struct {
		Message string `json:"message"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	booking, err := h.bookingService.ApproveBooking(e.Request.Context(), authID(e), e.Request.PathValue("id"), req.Message)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// Reject - Host rejects a pending request
func (h *BookingHandler) Reject(e *core.RequestEvent) error {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Reason == "" {
		return apis.NewBadRequestError("reason is required", nil)
	}

	booking, err := h.bookingService.RejectBooking(e.Request.Context(), authID(e), e.Request.PathValue("id"), req.Reason)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// Cancel - Driver cancels a booking
func (h *BookingHandler) Cancel(e *core.RequestEvent) error {
	booking, err := h.bookingService.CancelBooking(e.Request.Context(), authID(e), e.Request.PathValue("id"))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// ConfirmCancel - Facility owner confirms a pending cancellation
func (h *BookingHandler) ConfirmCancel(e *core.RequestEvent) error {
	booking, err := h.bookingService.ConfirmCancellation(e.Request.Context(), authID(e), e.Request.PathValue("id"))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// Start - Driver starts the parking session
func (h *BookingHandler) Start(e *core.RequestEvent) error {
	booking, err := h.bookingService.StartSession(e.Request.Context(), authID(e), e.Request.PathValue("id"))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// End - Either party ends the parking session
func (h *BookingHandler) End(e *core.RequestEvent) error {
	var req struct {
		ActualCost *float64 `json:"actual_cost"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	var override *decimal.Decimal
	if req.ActualCost != nil {
		if *req.ActualCost < 0 {
			return apis.NewBadRequestError("actual_cost must not be negative", nil)
		}
		d := decimal.NewFromFloat(*req.ActualCost)
		override = &d
	}

	booking, err := h.bookingService.EndSession(e.Request.Context(), authID(e), e.Request.PathValue("id"), override)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// NoShow - Host closes out a booking whose driver never arrived
func (h *BookingHandler) NoShow(e *core.RequestEvent) error {
	booking, err := h.bookingService.MarkNoShow(e.Request.Context(), authID(e), e.Request.PathValue("id"))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// Rate - Driver rates a completed booking
func (h *BookingHandler) Rate(e *core.RequestEvent) error {
	var req struct {
		Rating int `json:"rating"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	booking, err := h.bookingService.RateBooking(e.Request.Context(), authID(e), e.Request.PathValue("id"), req.Rating)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// VerifyCode - Check a presented access code at the gate
func (h *BookingHandler) VerifyCode(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Code == "" {
		return apis.NewBadRequestError("code is required", nil)
	}

	if err := h.bookingService.VerifyAccessCode(e.Request.Context(), e.Request.PathValue("id"), req.Code); err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{"valid": true})
}

// Get - Fetch one booking, parties only
func (h *BookingHandler) Get(e *core.RequestEvent) error {
	booking, err := h.bookingService.GetBooking(e.Request.Context(), authID(e), e.Request.PathValue("id"))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, booking)
}

// Mine - List the caller's bookings as driver
func (h *BookingHandler) Mine(e *core.RequestEvent) error {
	limit := 0
	if raw := e.Request.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return apis.NewBadRequestError("limit must be a non-negative integer", nil)
		}
		limit = parsed
	}

	bookings, err := h.bookingService.DriverBookings(e.Request.Context(), authID(e), limit)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, bookings)
}

// Pending - List requests awaiting the caller's approval as host
func (h *BookingHandler) Pending(e *core.RequestEvent) error {
	bookings, err := h.bookingService.PendingApprovals(e.Request.Context(), authID(e))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, bookings)
}
