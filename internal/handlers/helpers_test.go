package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"merchant-admin/internal/metrics"
	"merchant-admin/internal/middleware"
	"merchant-admin/internal/models"
	"merchant-admin/internal/services"
	"merchant-admin/internal/store"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// memBackend is an in-memory merchant backend shared by the handler tests.
type memBackend struct {
	mu        sync.Mutex
	merchants map[string]*models.Merchant
	deleteErr error
}

func newMemBackend(ms ...*models.Merchant) *memBackend {
	b := &memBackend{merchants: make(map[string]*models.Merchant)}
	for _, m := range ms {
		b.merchants[m.ID] = m.Clone()
	}
	return b
}

func (b *memBackend) GetMerchantByID(_ context.Context, id string) (*models.Merchant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.merchants[id]
	if !ok {
		return nil, services.ErrMerchantNotFound
	}
	return m.Clone(), nil
}

func (b *memBackend) UpdateMerchant(_ context.Context, id string, patch models.MerchantPatch) (*models.Merchant, error) {
	if err := models.Validate(patch); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.merchants[id]
	if !ok {
		return nil, services.ErrMerchantNotFound
	}
	patch.Apply(m)
	return m.Clone(), nil
}

func (b *memBackend) DeleteMerchant(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	if _, ok := b.merchants[id]; !ok {
		return services.ErrMerchantNotFound
	}
	delete(b.merchants, id)
	return nil
}

func (b *memBackend) ListMerchants(_ context.Context, page, size int) (*models.MerchantPage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.merchants))
	for id := range b.merchants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := &models.MerchantPage{Merchants: []*models.Merchant{}, Page: page, Size: size, Total: len(ids)}
	for i := page * size; i < len(ids) && i < (page+1)*size; i++ {
		result.Merchants = append(result.Merchants, b.merchants[ids[i]].Clone())
	}
	return result, nil
}

func (b *memBackend) CreateMerchant(_ context.Context, req *models.CreateMerchantRequest) (*models.Merchant, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	m := &models.Merchant{ID: "new", Firstname: req.Firstname, Lastname: req.Lastname, Email: req.Email}
	b.merchants[m.ID] = m
	return m.Clone(), nil
}

func (b *memBackend) ListForMerchant(_ context.Context, merchantID string, limit, offset int) ([]*models.AuditLog, error) {
	return []*models.AuditLog{{ID: 1, EntityType: models.EntityMerchant, EntityID: merchantID, Action: "update"}}, nil
}

func (b *memBackend) merchant(id string) (*models.Merchant, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.merchants[id]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

// memOperators accepts a single admin and a single viewer.
type memOperators struct{}

var testOperators = map[string]*models.Operator{
	"admin@example.com":  {ID: 1, Username: "admin", Email: "admin@example.com", Role: string(models.RoleAdmin)},
	"viewer@example.com": {ID: 2, Username: "viewer", Email: "viewer@example.com", Role: string(models.RoleViewer)},
}

func (memOperators) Register(_ context.Context, req *models.RegisterRequest) (*models.Operator, error) {
	if err := models.Validate(req); err != nil {
		return nil, err
	}
	if _, ok := testOperators[req.Email]; ok {
		return nil, services.ErrOperatorExists
	}
	return &models.Operator{ID: 3, Username: req.Username, Email: req.Email, Role: string(models.RoleViewer)}, nil
}

func (memOperators) Authenticate(_ context.Context, req *models.LoginRequest) (*models.Operator, error) {
	op, ok := testOperators[req.Email]
	if !ok || req.Password != "password123" {
		return nil, services.ErrInvalidCredentials
	}
	return op, nil
}

func (memOperators) GetOperatorByID(_ context.Context, id int) (*models.Operator, error) {
	for _, op := range testOperators {
		if op.ID == id {
			return op, nil
		}
	}
	return nil, services.ErrOperatorNotFound
}

func sampleMerchant() *models.Merchant {
	return &models.Merchant{
		ID:        "m1",
		Firstname: "Ada",
		Lastname:  "Lovelace",
		Email:     "ada@example.com",
		Phone:     "+44 20 0000",
		Bids: []models.Bid{
			{ID: "b1", CarTitle: "Volvo 240", Amount: decimal.NewFromInt(1500)},
			{ID: "b2", CarTitle: "Saab 900", Amount: decimal.NewFromInt(900)},
		},
	}
}

func newTestStore(t *testing.T, backend store.Backend) *store.Store {
	t.Helper()
	s := store.New(backend, 2*time.Second, zerolog.Nop(), metrics.NewNop())
	t.Cleanup(s.Close)
	return s
}

// newRequest builds a request as the router would hand it over: route
// variables set and the operator role in the context.
func newRequest(method, target string, body io.Reader, vars map[string]string, role string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if body != nil && method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	if role != "" {
		ctx := context.WithValue(req.Context(), middleware.OperatorRoleKey, role)
		ctx = context.WithValue(ctx, middleware.OperatorEmailKey, role+"@example.com")
		req = req.WithContext(ctx)
	}
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

var errBackendDown = errors.New("backend unavailable")
