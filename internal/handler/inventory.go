package handler

import (
	"net/http"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

type addProductRequest struct {
	Name     string         `json:"name"`
	Category model.Category `json:"category"`
	Quantity uint64         `json:"quantity"`
}

type productResponse struct {
	ID       uint64         `json:"id"`
	Name     string         `json:"name"`
	Category model.Category `json:"category"`
	Quantity uint64         `json:"quantity"`
}

type idResponse struct {
	ID uint64 `json:"id"`
}

// AddProduct добавляет товар в инвентарь вызывающего продавца.
func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req addProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Category.Valid() {
		h.badRequest(w)
		return
	}

	id, err := h.service.AddProduct(r.Context(), caller, req.Quantity, req.Name, req.Category)
	if err != nil {
		h.writeServiceError(w, "add product", caller, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

// GetInventory возвращает товары вызывающего продавца.
func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	inv, err := h.service.GetInventory(r.Context(), caller)
	if err != nil {
		h.writeServiceError(w, "get inventory", caller, err)
		return
	}

	if len(inv.Products) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]productResponse, 0, len(inv.Products))
	for _, p := range inv.Products {
		resp = append(resp, productResponse(p))
	}

	h.writeJSON(w, http.StatusOK, resp)
}
