package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"merchant-admin/internal/models"
	"merchant-admin/internal/services"
	"merchant-admin/internal/store"
	"merchant-admin/internal/view"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMerchantHandler(t *testing.T) (*MerchantHandler, *memBackend) {
	t.Helper()
	backend := newMemBackend(sampleMerchant())
	s := newTestStore(t, backend)
	return NewMerchantHandler(s, backend, backend, 20, zerolog.Nop()), backend
}

func TestMerchantHandler_GetMerchant(t *testing.T) {
	h, _ := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	h.GetMerchant(rec, newRequest(http.MethodGet, "/api/v1/merchants/m1", nil, map[string]string{"id": "m1"}, "viewer"))

	require.Equal(t, http.StatusOK, rec.Code)

	var vm struct {
		State       string           `json:"state"`
		DisplayName string           `json:"displayName"`
		Merchant    *models.Merchant `json:"merchant"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vm))
	assert.Equal(t, "ready", vm.State)
	assert.Equal(t, "Ada Lovelace", vm.DisplayName)
	require.NotNil(t, vm.Merchant)
	assert.Len(t, vm.Merchant.Bids, 2)
}

func TestMerchantHandler_GetMerchant_NotFound(t *testing.T) {
	h, _ := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	h.GetMerchant(rec, newRequest(http.MethodGet, "/api/v1/merchants/nope", nil, map[string]string{"id": "nope"}, "viewer"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "merchant_not_found")
}

func TestMerchantHandler_UpdateMerchant(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		body   string
		status int
	}{
		{name: "email change", id: "m1", body: `{"email":"ada@engine.io"}`, status: http.StatusOK},
		{name: "premium on", id: "m1", body: `{"hasPremium":true}`, status: http.StatusOK},
		{name: "invalid email", id: "m1", body: `{"email":"not-an-email"}`, status: http.StatusBadRequest},
		{name: "empty patch", id: "m1", body: `{}`, status: http.StatusBadRequest},
		{name: "malformed", id: "m1", body: `{`, status: http.StatusBadRequest},
		{name: "unknown merchant", id: "nope", body: `{"phone":"1"}`, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newMerchantHandler(t)

			rec := httptest.NewRecorder()
			req := newRequest(http.MethodPatch, "/api/v1/merchants/"+tt.id, strings.NewReader(tt.body), map[string]string{"id": tt.id}, "admin")
			h.UpdateMerchant(rec, req)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestMerchantHandler_UpdateMerchant_PersistsPatch(t *testing.T) {
	h, backend := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPatch, "/api/v1/merchants/m1", strings.NewReader(`{"firstname":"Grace","lastname":"Hopper"}`), map[string]string{"id": "m1"}, "admin")
	h.UpdateMerchant(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var m models.Merchant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "Grace", m.Firstname)
	assert.Equal(t, "ada@example.com", m.Email)

	stored, ok := backend.merchant("m1")
	require.True(t, ok)
	assert.Equal(t, "Hopper", stored.Lastname)
	assert.Len(t, stored.Bids, 2)
}

func TestMerchantHandler_AddBid(t *testing.T) {
	h, backend := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/api/v1/merchants/m1/bids", strings.NewReader(`{"carTitle":"Golf","amount":"2500.50"}`), map[string]string{"id": "m1"}, "admin")
	h.AddBid(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var bid models.Bid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bid))
	assert.NotEmpty(t, bid.ID)
	assert.Equal(t, "Golf", bid.CarTitle)

	stored, _ := backend.merchant("m1")
	require.Len(t, stored.Bids, 3)
	assert.Equal(t, []string{"b1", "b2", bid.ID}, []string{stored.Bids[0].ID, stored.Bids[1].ID, stored.Bids[2].ID})
	assert.True(t, stored.Bids[2].Amount.Equal(decimal.RequireFromString("2500.50")))
}

func TestMerchantHandler_AddBid_Invalid(t *testing.T) {
	h, backend := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	req := newRequest(http.MethodPost, "/api/v1/merchants/m1/bids", strings.NewReader(`{"carTitle":"Golf","amount":0}`), map[string]string{"id": "m1"}, "admin")
	h.AddBid(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	stored, _ := backend.merchant("m1")
	assert.Len(t, stored.Bids, 2)
}

func TestMerchantHandler_RemoveBid(t *testing.T) {
	h, backend := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	h.RemoveBid(rec, newRequest(http.MethodDelete, "/api/v1/merchants/m1/bids/b1", nil, map[string]string{"id": "m1", "bidId": "b1"}, "admin"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	stored, _ := backend.merchant("m1")
	require.Len(t, stored.Bids, 1)
	assert.Equal(t, "b2", stored.Bids[0].ID)

	rec = httptest.NewRecorder()
	h.RemoveBid(rec, newRequest(http.MethodDelete, "/api/v1/merchants/m1/bids/b1", nil, map[string]string{"id": "m1", "bidId": "b1"}, "admin"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMerchantHandler_DeleteMerchant(t *testing.T) {
	h, backend := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	h.DeleteMerchant(rec, newRequest(http.MethodDelete, "/api/v1/merchants/m1", nil, map[string]string{"id": "m1"}, "admin"))
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := backend.merchant("m1")
	assert.False(t, ok)

	rec = httptest.NewRecorder()
	h.DeleteMerchant(rec, newRequest(http.MethodDelete, "/api/v1/merchants/m1", nil, map[string]string{"id": "m1"}, "admin"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMerchantHandler_DeleteMerchant_BackendFailure(t *testing.T) {
	h, backend := newMerchantHandler(t)
	backend.deleteErr = errBackendDown

	rec := httptest.NewRecorder()
	h.DeleteMerchant(rec, newRequest(http.MethodDelete, "/api/v1/merchants/m1", nil, map[string]string{"id": "m1"}, "admin"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	_, ok := backend.merchant("m1")
	assert.True(t, ok)
}

func TestMerchantHandler_ListMerchants(t *testing.T) {
	h, _ := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	h.ListMerchants(rec, newRequest(http.MethodGet, "/api/v1/merchants?page=0&size=10", nil, nil, "viewer"))
	require.Equal(t, http.StatusOK, rec.Code)

	var page models.MerchantPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Size)

	for _, q := range []string{"page=-1", "size=0", "size=101", "page=abc"} {
		rec = httptest.NewRecorder()
		h.ListMerchants(rec, newRequest(http.MethodGet, "/api/v1/merchants?"+q, nil, nil, "viewer"))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestMerchantHandler_CreateMerchant(t *testing.T) {
	h, _ := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	h.CreateMerchant(rec, newRequest(http.MethodPost, "/api/v1/merchants", strings.NewReader(`{"firstname":"Grace","email":"grace@example.com"}`), nil, "admin"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.CreateMerchant(rec, newRequest(http.MethodPost, "/api/v1/merchants", strings.NewReader(`{"firstname":"Grace"}`), nil, "admin"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMerchantHandler_GetAuditLog(t *testing.T) {
	h, _ := newMerchantHandler(t)

	rec := httptest.NewRecorder()
	h.GetAuditLog(rec, newRequest(http.MethodGet, "/api/v1/merchants/m1/audit", nil, map[string]string{"id": "m1"}, "viewer"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"entity_id":"m1"`)

	rec = httptest.NewRecorder()
	h.GetAuditLog(rec, newRequest(http.MethodGet, "/api/v1/merchants/m1/audit?limit=500", nil, map[string]string{"id": "m1"}, "viewer"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMerchantHandler_WritesRefusedWhileBusy(t *testing.T) {
	busy := &busyStore{snap: store.NewSnapshot(1, map[string]store.Entry{
		"m1": {Merchant: sampleMerchant(), Status: store.StatusLoaded, Pending: 1},
	})}
	h := NewMerchantHandler(busy, newMemBackend(), newMemBackend(), 20, zerolog.Nop())
	vars := map[string]string{"id": "m1", "bidId": "b1"}

	tests := []struct {
		name   string
		call   func(http.ResponseWriter, *http.Request)
		method string
		body   string
	}{
		{name: "patch", call: h.UpdateMerchant, method: http.MethodPatch, body: `{"phone":"1"}`},
		{name: "add bid", call: h.AddBid, method: http.MethodPost, body: `{"carTitle":"Golf","amount":"10"}`},
		{name: "remove bid", call: h.RemoveBid, method: http.MethodDelete},
		{name: "delete", call: h.DeleteMerchant, method: http.MethodDelete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.call(rec, newRequest(tt.method, "/api/v1/merchants/m1", strings.NewReader(tt.body), vars, "admin"))
			assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), "field_disabled")
		})
	}

	assert.Zero(t, busy.edits)
	assert.Zero(t, busy.deletes)

	rec := httptest.NewRecorder()
	h.GetMerchant(rec, newRequest(http.MethodGet, "/api/v1/merchants/m1", nil, vars, "viewer"))
	assert.Equal(t, http.StatusOK, rec.Code, "reads stay available")
}

func TestStoreErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{err: services.ErrMerchantNotFound, code: http.StatusNotFound},
		{err: fmt.Errorf("wrapped: %w", services.ErrMerchantNotFound), code: http.StatusNotFound},
		{err: store.ErrNotLoaded, code: http.StatusNotFound},
		{err: view.ErrMerchantNotLoaded, code: http.StatusNotFound},
		{err: view.ErrBidNotFound, code: http.StatusNotFound},
		{err: fmt.Errorf("%w: email", models.ErrValidation), code: http.StatusBadRequest},
		{err: view.ErrFieldDisabled, code: http.StatusConflict},
		{err: store.ErrClosed, code: http.StatusServiceUnavailable},
		{err: context.DeadlineExceeded, code: http.StatusGatewayTimeout},
		{err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		code, _ := storeErrorStatus(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
