package handlers

import (
	"net/http"

	"parking-system/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type FacilityHandler struct {
	app             *pocketbase.PocketBase
	capacityService *services.CapacityService
	catalogService  *services.CatalogService
}

func NewFacilityHandler(app *pocketbase.PocketBase, capacityService *services.CapacityService, catalogService *services.CatalogService) *FacilityHandler {
	return &FacilityHandler{
		app:             app,
		capacityService: capacityService,
		catalogService:  catalogService,
	}
}

// GetCapacity - Current live counters for a facility
func (h *FacilityHandler) GetCapacity(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	capacity, err := h.capacityService.Get(e.Request.Context(), e.Request.PathValue("id"))
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, capacity)
}

// SetCapacity - Owner updates a facility's total capacity
func (h *FacilityHandler) SetCapacity(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	facilityID := e.Request.PathValue("id")
	facility, err := h.catalogService.GetFacility(e.Request.Context(), facilityID)
	if err != nil {
		return apiError(err)
	}
	if facility.OwnerID != e.Auth.Id && !e.Auth.IsSuperuser() {
		return apis.NewForbiddenError("Forbidden", nil)
	}

	var req struct {
		Total int `json:"total"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Total < 0 {
		return apis.NewBadRequestError("total must not be negative", nil)
	}

	// The catalog record is the durable source; the live counter follows it.
	record, err := h.app.FindRecordById("facilities", facilityID)
	if err != nil {
		return apis.NewNotFoundError("Not found", nil)
	}
	record.Set("total_capacity", req.Total)
	if err := h.app.Save(record); err != nil {
		return apis.NewBadRequestError("Failed to update facility", err)
	}

	capacity, err := h.capacityService.SetTotal(e.Request.Context(), facilityID, req.Total)
	if err != nil {
		return apiError(err)
	}

	return e.JSON(http.StatusOK, capacity)
}
