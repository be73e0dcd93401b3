package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-ledger/internal/middleware"
	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

type stubService struct {
	createUserErr error
	changeRoleErr error

	userResp model.User
	userErr  error

	addProductID  uint64
	addProductErr error

	inventoryResp model.Inventory
	inventoryErr  error

	createListingIndex uint64
	createListingErr   error
	updateListingErr   error

	listingResp  model.Listing
	listingErr   error
	listingsResp []model.Listing
	listingsErr  error

	orderResp  model.Order
	orderErr   error
	ordersResp []model.Order
	ordersErr  error

	lastCaller model.Identity
	lastIndex  uint64
}

func (s *stubService) CreateUser(ctx context.Context, caller model.Identity, name string, nationalID uint64, role model.Role) error {
	s.lastCaller = caller
	return s.createUserErr
}

func (s *stubService) ChangeRole(ctx context.Context, caller model.Identity, role model.Role) error {
	s.lastCaller = caller
	return s.changeRoleErr
}

func (s *stubService) GetUser(ctx context.Context, caller model.Identity) (model.User, error) {
	s.lastCaller = caller
	return s.userResp, s.userErr
}

func (s *stubService) AddProduct(ctx context.Context, caller model.Identity, quantity uint64, name string, category model.Category) (uint64, error) {
	s.lastCaller = caller
	return s.addProductID, s.addProductErr
}

func (s *stubService) GetInventory(ctx context.Context, caller model.Identity) (model.Inventory, error) {
	s.lastCaller = caller
	return s.inventoryResp, s.inventoryErr
}

func (s *stubService) CreateListing(ctx context.Context, caller model.Identity, productName, description string, price, initialStock uint64) (uint64, error) {
	s.lastCaller = caller
	return s.createListingIndex, s.createListingErr
}

func (s *stubService) UpdateListingDescription(ctx context.Context, caller model.Identity, index uint64, description string) error {
	s.lastCaller, s.lastIndex = caller, index
	return s.updateListingErr
}

func (s *stubService) UpdateListingPrice(ctx context.Context, caller model.Identity, index uint64, price uint64) error {
	s.lastCaller, s.lastIndex = caller, index
	return s.updateListingErr
}

func (s *stubService) GetListing(ctx context.Context, index uint64) (model.Listing, error) {
	s.lastIndex = index
	return s.listingResp, s.listingErr
}

func (s *stubService) ListListings(ctx context.Context) ([]model.Listing, error) {
	return s.listingsResp, s.listingsErr
}

func (s *stubService) PlaceOrder(ctx context.Context, caller model.Identity, productID, quantity uint64) (model.Order, error) {
	s.lastCaller = caller
	return s.orderResp, s.orderErr
}

func (s *stubService) TransitionOrderState(ctx context.Context, caller model.Identity, index uint64, state model.OrderState) (model.Order, error) {
	s.lastCaller, s.lastIndex = caller, index
	return s.orderResp, s.orderErr
}

func (s *stubService) GetOrder(ctx context.Context, caller model.Identity, index uint64) (model.Order, error) {
	s.lastCaller, s.lastIndex = caller, index
	return s.orderResp, s.orderErr
}

func (s *stubService) ListOrders(ctx context.Context, caller model.Identity) ([]model.Order, error) {
	s.lastCaller = caller
	return s.ordersResp, s.ordersErr
}

func newTestHandler(t *testing.T, svc Service, opts ...Option) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth, opts...)
}

// serve выполняет запрос через полный роутер от имени identity; пустой identity означает анонимный запрос.
func serve(t *testing.T, h *Handler, method, target string, identity model.Identity, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, target, &buf)
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+h.authMiddleware.Sign(identity))
	}

	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: model.ErrNameEmpty, want: http.StatusBadRequest},
		{err: model.ErrNationalIDZero, want: http.StatusBadRequest},
		{err: model.ErrDescriptionEmpty, want: http.StatusBadRequest},
		{err: model.ErrPriceZero, want: http.StatusBadRequest},
		{err: model.ErrUserAlreadyExists, want: http.StatusConflict},
		{err: model.ErrNationalIDConflict, want: http.StatusConflict},
		{err: model.ErrRoleConflict, want: http.StatusConflict},
		{err: model.ErrInsufficientStock, want: http.StatusConflict},
		{err: model.ErrMissingMutualConsent, want: http.StatusConflict},
		{err: model.ErrInvalidTransition, want: http.StatusConflict},
		{err: model.ErrUserNotFound, want: http.StatusNotFound},
		{err: model.ErrBuyerNotFound, want: http.StatusNotFound},
		{err: model.ErrSellerNotFound, want: http.StatusNotFound},
		{err: model.ErrProductNotFound, want: http.StatusNotFound},
		{err: model.ErrOrderNotFound, want: http.StatusNotFound},
		{err: model.ErrListingNotFound, want: http.StatusNotFound},
		{err: model.ErrPermissionDenied, want: http.StatusForbidden},
		{err: model.ErrNoInventory, want: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		code, ok := model.ErrorCode(tt.err)
		require.True(t, ok)
		t.Run(code, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForCode(code))
		})
	}
}

func TestCreateSession(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := serve(t, h, http.MethodPost, "/api/session", "", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Identity)
	assert.Equal(t, h.authMiddleware.Sign(resp.Identity), resp.Token)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, resp.Token, cookies[0].Value)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	routes := []struct {
		method string
		target string
	}{
		{http.MethodPost, "/api/users"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodPut, "/api/users/me/role"},
		{http.MethodPost, "/api/inventory"},
		{http.MethodGet, "/api/inventory"},
		{http.MethodPost, "/api/listings"},
		{http.MethodPut, "/api/listings/0/price"},
		{http.MethodPut, "/api/listings/0/description"},
		{http.MethodPost, "/api/orders"},
		{http.MethodGet, "/api/orders"},
		{http.MethodGet, "/api/orders/0"},
		{http.MethodPut, "/api/orders/0/state"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.target, func(t *testing.T) {
			rec := serve(t, h, rt.method, rt.target, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "created",
			body:       createUserRequest{Name: "Ana", NationalID: 111, Role: model.RoleBuyer},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "unknown role",
			body:       createUserRequest{Name: "Ana", NationalID: 111, Role: "admin"},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidRequest,
		},
		{
			name:       "unknown field",
			body:       map[string]any{"name": "Ana", "password": "x"},
			wantStatus: http.StatusBadRequest,
			wantCode:   codeInvalidRequest,
		},
		{
			name:       "empty name",
			body:       createUserRequest{NationalID: 111, Role: model.RoleBuyer},
			svcErr:     model.ErrNameEmpty,
			wantStatus: http.StatusBadRequest,
			wantCode:   "NameEmpty",
		},
		{
			name:       "national id conflict",
			body:       createUserRequest{Name: "Ana", NationalID: 111, Role: model.RoleBuyer},
			svcErr:     fmt.Errorf("%w: national id 111", model.ErrNationalIDConflict),
			wantStatus: http.StatusConflict,
			wantCode:   "NationalIdConflict",
		},
		{
			name:       "storage failure",
			body:       createUserRequest{Name: "Ana", NationalID: 111, Role: model.RoleBuyer},
			svcErr:     errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "Internal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{createUserErr: tt.svcErr}
			h := newTestHandler(t, svc)

			rec := serve(t, h, http.MethodPost, "/api/users", "ana", tt.body)
			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, rec))
			}
			if tt.wantStatus == http.StatusCreated {
				assert.Equal(t, model.Identity("ana"), svc.lastCaller)
			}
		})
	}
}

func TestGetUser(t *testing.T) {
	svc := &stubService{userResp: model.User{Name: "Ana", NationalID: 111, Identity: "ana", Role: model.RoleBuyer}}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodGet, "/api/users/me", "ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"name":"Ana","national_id":111,"identity":"ana","role":"buyer","ratings":[]}`,
		rec.Body.String(),
	)

	svc.userErr = model.ErrUserNotFound
	rec = serve(t, h, http.MethodGet, "/api/users/me", "leo", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "UserNotFound", errorCode(t, rec))
}

func TestChangeRole(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPut, "/api/users/me/role", "ana", changeRoleRequest{Role: model.RoleSeller})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.changeRoleErr = model.ErrRoleConflict
	rec = serve(t, h, http.MethodPut, "/api/users/me/role", "ana", changeRoleRequest{Role: model.RoleSeller})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "RoleConflict", errorCode(t, rec))
}

func TestAddProduct(t *testing.T) {
	svc := &stubService{addProductID: 3}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPost, "/api/inventory", "leo",
		addProductRequest{Name: "mouse", Category: model.CategoryElectronics, Quantity: 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":3}`, rec.Body.String())

	rec = serve(t, h, http.MethodPost, "/api/inventory", "leo",
		addProductRequest{Name: "mouse", Category: "toys", Quantity: 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.addProductErr = model.ErrPermissionDenied
	rec = serve(t, h, http.MethodPost, "/api/inventory", "ana",
		addProductRequest{Name: "mouse", Category: model.CategoryElectronics, Quantity: 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetInventory(t *testing.T) {
	svc := &stubService{inventoryResp: model.Inventory{}}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodGet, "/api/inventory", "leo", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.inventoryResp = model.Inventory{Products: []model.Product{
		{ID: 0, Name: "mouse", Category: model.CategoryElectronics, Quantity: 7},
	}}
	rec = serve(t, h, http.MethodGet, "/api/inventory", "leo", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":0,"name":"mouse","category":"electronics","quantity":7}]`, rec.Body.String())

	svc.inventoryErr = model.ErrNoInventory
	rec = serve(t, h, http.MethodGet, "/api/inventory", "ana", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListings(t *testing.T) {
	createdAt := time.Date(2025, 7, 18, 0, 0, 0, 0, time.UTC)
	listing := model.Listing{
		Seller:      "leo",
		Product:     model.Product{ID: 0, Name: "mouse", Category: model.CategoryElectronics, Quantity: 10},
		Description: "fast",
		CreatedAt:   createdAt,
		Price:       100,
		Available:   7,
	}
	svc := &stubService{listingResp: listing, createListingIndex: 4}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodGet, "/api/listings", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	svc.listingsResp = []model.Listing{listing}
	rec = serve(t, h, http.MethodGet, "/api/listings", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = serve(t, h, http.MethodGet, "/api/listings/2", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(2), svc.lastIndex)
	assert.JSONEq(t, `{
		"index": 2,
		"seller": "leo",
		"product": {"id":0,"name":"mouse","category":"electronics","quantity":10},
		"description": "fast",
		"created_at": "2025-07-18T00:00:00Z",
		"price": 100,
		"available": 7
	}`, rec.Body.String())

	rec = serve(t, h, http.MethodGet, "/api/listings/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, h, http.MethodPost, "/api/listings", "leo",
		createListingRequest{ProductName: "mouse", Description: "fast", Price: 100, InitialStock: 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"index":4}`, rec.Body.String())

	rec = serve(t, h, http.MethodPut, "/api/listings/4/price", "leo", priceRequest{Price: 120})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, uint64(4), svc.lastIndex)

	svc.updateListingErr = model.ErrDescriptionEmpty
	rec = serve(t, h, http.MethodPut, "/api/listings/4/description", "leo", descriptionRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DescriptionEmpty", errorCode(t, rec))
}

func TestOrders(t *testing.T) {
	order := model.Order{ID: 0, Buyer: "ana", Seller: "leo", ProductID: 0, Quantity: 3, State: model.OrderStatePending}
	svc := &stubService{orderResp: order}
	h := newTestHandler(t, svc)

	rec := serve(t, h, http.MethodPost, "/api/orders", "ana", placeOrderRequest{ProductID: 0, Quantity: 3})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t,
		`{"id":0,"buyer":"ana","seller":"leo","product_id":0,"quantity":3,"state":"pending"}`,
		rec.Body.String(),
	)

	rec = serve(t, h, http.MethodGet, "/api/orders", "ana", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(t, h, http.MethodPut, "/api/orders/0/state", "ana", stateRequest{State: "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc.orderErr = model.ErrMissingMutualConsent
	rec = serve(t, h, http.MethodPut, "/api/orders/0/state", "leo", stateRequest{State: model.OrderStateCancelled})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "MissingMutualConsent", errorCode(t, rec))

	svc.orderErr = model.ErrOrderNotFound
	rec = serve(t, h, http.MethodGet, "/api/orders/9", "ana", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, uint64(9), svc.lastIndex)
}

func TestCallerFromContext(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)

	req := httptest.NewRequest(http.MethodPut, "/api/users/me/role", bytes.NewBufferString(`{"role":"seller"}`))
	rec := httptest.NewRecorder()
	h.ChangeRole(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rctx := chi.NewRouteContext()
	req = httptest.NewRequest(http.MethodPut, "/api/users/me/role", bytes.NewBufferString(`{"role":"seller"}`))
	req = req.WithContext(context.WithValue(middleware.WithIdentity(req.Context(), "ana"), chi.RouteCtxKey, rctx))
	rec = httptest.NewRecorder()
	h.ChangeRole(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, model.Identity("ana"), svc.lastCaller)
}
