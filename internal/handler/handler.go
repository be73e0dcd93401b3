// Package handler содержит HTTP-обработчики API маркетплейса.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-ledger/internal/middleware"
	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateUser(ctx context.Context, caller model.Identity, name string, nationalID uint64, role model.Role) error
	ChangeRole(ctx context.Context, caller model.Identity, role model.Role) error
	GetUser(ctx context.Context, caller model.Identity) (model.User, error)

	AddProduct(ctx context.Context, caller model.Identity, quantity uint64, name string, category model.Category) (uint64, error)
	GetInventory(ctx context.Context, caller model.Identity) (model.Inventory, error)

	CreateListing(ctx context.Context, caller model.Identity, productName, description string, price, initialStock uint64) (uint64, error)
	UpdateListingDescription(ctx context.Context, caller model.Identity, index uint64, description string) error
	UpdateListingPrice(ctx context.Context, caller model.Identity, index uint64, price uint64) error
	GetListing(ctx context.Context, index uint64) (model.Listing, error)
	ListListings(ctx context.Context) ([]model.Listing, error)

	PlaceOrder(ctx context.Context, caller model.Identity, productID, quantity uint64) (model.Order, error)
	TransitionOrderState(ctx context.Context, caller model.Identity, index uint64, state model.OrderState) (model.Order, error)
	GetOrder(ctx context.Context, caller model.Identity, index uint64) (model.Order, error)
	ListOrders(ctx context.Context, caller model.Identity) ([]model.Order, error)
}

// Handler реализует HTTP-обработчики API маркетплейса.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	idempotency    middleware.IdempotencyStore
	rateLimiter    *middleware.RateLimiter
}

// Option настраивает необязательные зависимости обработчика.
type Option func(*Handler)

// WithIdempotency включает проверку Idempotency-Key при оформлении заказа.
func WithIdempotency(store middleware.IdempotencyStore) Option {
	return func(h *Handler) {
		h.idempotency = store
	}
}

// WithRateLimiter включает ограничение частоты запросов.
func WithRateLimiter(rl *middleware.RateLimiter) Option {
	return func(h *Handler) {
		h.rateLimiter = rl
	}
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type errorResponse struct {
	Error string `json:"error"`
}

const codeInvalidRequest = "InvalidRequest"

func statusForCode(code string) int {
	switch code {
	case "NameEmpty", "NationalIdZero", "DescriptionEmpty", "PriceZero":
		return http.StatusBadRequest
	case "UserAlreadyExists", "NationalIdConflict", "RoleConflict",
		"InsufficientStock", "MissingMutualConsent", "InvalidTransition":
		return http.StatusConflict
	case "UserNotFound", "BuyerNotFound", "SellerNotFound",
		"ProductNotFound", "OrderNotFound", "ListingNotFound":
		return http.StatusNotFound
	case "PermissionDenied":
		return http.StatusForbidden
	case "NoInventory":
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", zap.Error(err))
	}
}

func (h *Handler) badRequest(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: codeInvalidRequest})
}

// writeServiceError отображает доменную ошибку в HTTP-статус. Прочие ошибки логируются и дают 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, caller model.Identity, err error) {
	code, ok := model.ErrorCode(err)
	if !ok {
		h.logger.Error(op+" error", zap.Error(err), zap.String("identity", string(caller)))
		h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal"})
		return
	}

	status := statusForCode(code)
	if status == http.StatusInternalServerError {
		h.logger.Error(op+" error", zap.Error(err), zap.String("identity", string(caller)))
	}
	h.writeJSON(w, status, errorResponse{Error: code})
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (model.Identity, bool) {
	id, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return id, ok
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.badRequest(w)
		return false
	}
	return true
}

func (h *Handler) indexParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		h.badRequest(w)
		return 0, false
	}
	return index, true
}

// Health сообщает, что сервис принимает запросы.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
