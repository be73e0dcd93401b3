package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

type placeOrderRequest struct {
	ProductID uint64 `json:"product_id"`
	Quantity  uint64 `json:"quantity"`
}

type orderResponse struct {
	ID        uint64           `json:"id"`
	Buyer     model.Identity   `json:"buyer"`
	Seller    model.Identity   `json:"seller"`
	ProductID uint64           `json:"product_id"`
	Quantity  uint64           `json:"quantity"`
	State     model.OrderState `json:"state"`
}

// PlaceOrder оформляет заказ вызывающего покупателя.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	o, err := h.service.PlaceOrder(r.Context(), caller, req.ProductID, req.Quantity)
	if err != nil {
		h.writeServiceError(w, "place order", caller, err)
		return
	}

	h.logger.Info("order placed", zap.Uint64("orderID", o.ID), zap.String("buyer", string(caller)))
	h.writeJSON(w, http.StatusCreated, orderResponse(o))
}

// ListOrders возвращает заказы, в которых участвует вызывающий пользователь.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), caller)
	if err != nil {
		h.writeServiceError(w, "list orders", caller, err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, orderResponse(o))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ по индексу.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	index, ok := h.indexParam(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), caller, index)
	if err != nil {
		h.writeServiceError(w, "get order", caller, err)
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse(o))
}

type stateRequest struct {
	State model.OrderState `json:"state"`
}

// TransitionOrderState переводит заказ в новое состояние.
func (h *Handler) TransitionOrderState(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	index, ok := h.indexParam(w, r)
	if !ok {
		return
	}

	var req stateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.State.Valid() {
		h.badRequest(w)
		return
	}

	o, err := h.service.TransitionOrderState(r.Context(), caller, index, req.State)
	if err != nil {
		h.writeServiceError(w, "transition order state", caller, err)
		return
	}

	h.writeJSON(w, http.StatusOK, orderResponse(o))
}
