package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"merchant-admin/internal/models"
	"merchant-admin/internal/services"
	"merchant-admin/internal/store"
	"merchant-admin/internal/view"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const (
	maxPageSize     = 100
	defaultAuditLen = 50
	maxAuditLen     = 200
)

// MerchantDirectory lists and creates merchants outside the record store.
type MerchantDirectory interface {
	ListMerchants(ctx context.Context, page, size int) (*models.MerchantPage, error)
	CreateMerchant(ctx context.Context, req *models.CreateMerchantRequest) (*models.Merchant, error)
}

type AuditTrail interface {
	ListForMerchant(ctx context.Context, merchantID string, limit, offset int) ([]*models.AuditLog, error)
}

type MerchantHandler struct {
	store     view.Store
	merchants MerchantDirectory
	audit     AuditTrail
	pageSize  int
	logger    zerolog.Logger
}

func NewMerchantHandler(s view.Store, merchants MerchantDirectory, audit AuditTrail, pageSize int, logger zerolog.Logger) *MerchantHandler {
	return &MerchantHandler{
		store:     s,
		merchants: merchants,
		audit:     audit,
		pageSize:  pageSize,
		logger:    logger,
	}
}

func (h *MerchantHandler) ListMerchants(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 0)
	size := queryInt(r, "size", h.pageSize)
	if page < 0 || size <= 0 || size > maxPageSize {
		respondWithError(w, http.StatusBadRequest, "invalid_pagination", "page must be >= 0 and size between 1 and 100")
		return
	}

	result, err := h.merchants.ListMerchants(r.Context(), page, size)
	if err != nil {
		h.logger.Error().Err(err).Int("page", page).Msg("Listing merchants failed")
		respondWithError(w, http.StatusInternalServerError, "list_failed", "Failed to list merchants")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *MerchantHandler) CreateMerchant(w http.ResponseWriter, r *http.Request) {
	var req models.CreateMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	m, err := h.merchants.CreateMerchant(r.Context(), &req)
	if errors.Is(err, models.ErrValidation) {
		respondWithError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Creating merchant failed")
		respondWithError(w, http.StatusInternalServerError, "create_failed", "Failed to create merchant")
		return
	}

	respondWithJSON(w, http.StatusCreated, m)
}

// GetMerchant mounts a detail view for the merchant and returns its model
// once the fetch has settled.
func (h *MerchantHandler) GetMerchant(w http.ResponseWriter, r *http.Request) {
	_, vm := h.mount(r.Context(), mux.Vars(r)["id"])
	if vm.State != view.StateReady {
		respondWithModelState(w, vm)
		return
	}
	respondWithJSON(w, http.StatusOK, vm)
}

func (h *MerchantHandler) UpdateMerchant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch models.MerchantPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if patch.IsEmpty() {
		respondWithError(w, http.StatusBadRequest, "empty_patch", "At least one field must be provided")
		return
	}
	if err := models.Validate(patch); err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	_, vm := h.mount(r.Context(), id)
	if vm.State != view.StateReady {
		respondWithModelState(w, vm)
		return
	}
	if vm.Busy {
		h.respondWithStoreError(w, id, view.ErrFieldDisabled)
		return
	}

	if err := await(r.Context(), h.store.Edit(id, patch)); err != nil {
		h.respondWithStoreError(w, id, err)
		return
	}

	h.respondWithMerchant(w, http.StatusOK, id)
}

func (h *MerchantHandler) DeleteMerchant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	d, vm := h.mount(r.Context(), id)
	if vm.State == view.StateNotFound || vm.State == view.StateLoading {
		respondWithModelState(w, vm)
		return
	}
	if vm.Busy {
		h.respondWithStoreError(w, id, view.ErrFieldDisabled)
		return
	}

	if err := d.Delete(r.Context()); err != nil {
		h.respondWithStoreError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MerchantHandler) AddBid(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.NewBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	d, vm := h.mount(r.Context(), id)
	if vm.State != view.StateReady {
		respondWithModelState(w, vm)
		return
	}
	if vm.Busy {
		h.respondWithStoreError(w, id, view.ErrFieldDisabled)
		return
	}

	var result <-chan error
	editor := view.NewBidListEditor(vm.Merchant.Bids, func(b models.Bid) { result = d.AddBid(b) }, nil)

	bid, err := editor.Add(req)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	if err := await(r.Context(), result); err != nil {
		h.respondWithStoreError(w, id, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, bid)
}

func (h *MerchantHandler) RemoveBid(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]

	d, vm := h.mount(r.Context(), id)
	if vm.State != view.StateReady {
		respondWithModelState(w, vm)
		return
	}
	if vm.Busy {
		h.respondWithStoreError(w, id, view.ErrFieldDisabled)
		return
	}

	var result <-chan error
	editor := view.NewBidListEditor(vm.Merchant.Bids, nil, func(b models.Bid) { result = d.RemoveBid(b) })

	if err := editor.Remove(vars["bidId"]); err != nil {
		respondWithError(w, http.StatusNotFound, "bid_not_found", "Bid not found")
		return
	}
	if err := await(r.Context(), result); err != nil {
		h.respondWithStoreError(w, id, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *MerchantHandler) GetAuditLog(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	limit := queryInt(r, "limit", defaultAuditLen)
	offset := queryInt(r, "offset", 0)
	if limit <= 0 || limit > maxAuditLen || offset < 0 {
		respondWithError(w, http.StatusBadRequest, "invalid_pagination", "limit must be between 1 and 200 and offset >= 0")
		return
	}

	logs, err := h.audit.ListForMerchant(r.Context(), id, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Str("merchant_id", id).Msg("Fetching audit log failed")
		respondWithError(w, http.StatusInternalServerError, "audit_failed", "Failed to fetch audit log")
		return
	}

	respondWithJSON(w, http.StatusOK, logs)
}

// mount routes a fresh detail view to id and waits for its fetch.
func (h *MerchantHandler) mount(ctx context.Context, id string) (*view.Detail, view.DetailModel) {
	d := view.NewDetail(h.store, view.NavigatorFunc(func(string) {}), h.logger)
	if err := await(ctx, d.Route(id)); err != nil && !errors.Is(err, services.ErrMerchantNotFound) {
		h.logger.Debug().Err(err).Str("merchant_id", id).Msg("Merchant fetch did not succeed")
	}
	return d, d.Model()
}

func (h *MerchantHandler) respondWithMerchant(w http.ResponseWriter, code int, id string) {
	vm := view.ProjectDetail(h.store.Snapshot(), id)
	if vm.Merchant == nil {
		respondWithModelState(w, vm)
		return
	}
	respondWithJSON(w, code, vm.Merchant)
}

func (h *MerchantHandler) respondWithStoreError(w http.ResponseWriter, id string, err error) {
	code, errorCode := storeErrorStatus(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("merchant_id", id).Msg("Merchant operation failed")
	}
	respondWithError(w, code, errorCode, err.Error())
}

func respondWithModelState(w http.ResponseWriter, vm view.DetailModel) {
	switch vm.State {
	case view.StateNotFound:
		respondWithError(w, http.StatusNotFound, "merchant_not_found", "Merchant not found")
	case view.StateFailed:
		respondWithError(w, http.StatusBadGateway, "fetch_failed", vm.Error)
	case view.StateLoading:
		respondWithError(w, http.StatusServiceUnavailable, "merchant_loading", "Merchant is still loading")
	default:
		respondWithJSON(w, http.StatusOK, vm)
	}
}

// storeErrorStatus maps a store or view error to an HTTP status and code.
func storeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrMerchantNotFound),
		errors.Is(err, store.ErrNotLoaded),
		errors.Is(err, view.ErrMerchantNotLoaded):
		return http.StatusNotFound, "merchant_not_found"
	case errors.Is(err, view.ErrBidNotFound):
		return http.StatusNotFound, "bid_not_found"
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, view.ErrFieldDisabled):
		return http.StatusConflict, "field_disabled"
	case errors.Is(err, store.ErrClosed):
		return http.StatusServiceUnavailable, "store_closed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "operation_failed"
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return v
}
