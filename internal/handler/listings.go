package handler

import (
	"net/http"
	"time"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

type createListingRequest struct {
	ProductName  string `json:"product_name"`
	Description  string `json:"description"`
	Price        uint64 `json:"price"`
	InitialStock uint64 `json:"initial_stock"`
}

type listingResponse struct {
	Index       uint64          `json:"index"`
	Seller      model.Identity  `json:"seller"`
	Product     productResponse `json:"product"`
	Description string          `json:"description"`
	CreatedAt   string          `json:"created_at"`
	Price       uint64          `json:"price"`
	Available   uint64          `json:"available"`
}

func newListingResponse(index uint64, l model.Listing) listingResponse {
	return listingResponse{
		Index:       index,
		Seller:      l.Seller,
		Product:     productResponse(l.Product),
		Description: l.Description,
		CreatedAt:   l.CreatedAt.Format(time.RFC3339),
		Price:       l.Price,
		Available:   l.Available,
	}
}

type indexResponse struct {
	Index uint64 `json:"index"`
}

// CreateListing публикует товар вызывающего продавца.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req createListingRequest
	if !h.decode(w, r, &req) {
		return
	}

	index, err := h.service.CreateListing(r.Context(), caller, req.ProductName, req.Description, req.Price, req.InitialStock)
	if err != nil {
		h.writeServiceError(w, "create listing", caller, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, indexResponse{Index: index})
}

// ListListings возвращает все объявления.
func (h *Handler) ListListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.service.ListListings(r.Context())
	if err != nil {
		h.writeServiceError(w, "list listings", "", err)
		return
	}

	if len(listings) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]listingResponse, 0, len(listings))
	for i, l := range listings {
		resp = append(resp, newListingResponse(uint64(i), l))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetListing возвращает объявление по индексу.
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	index, ok := h.indexParam(w, r)
	if !ok {
		return
	}

	l, err := h.service.GetListing(r.Context(), index)
	if err != nil {
		h.writeServiceError(w, "get listing", "", err)
		return
	}

	h.writeJSON(w, http.StatusOK, newListingResponse(index, l))
}

type descriptionRequest struct {
	Description string `json:"description"`
}

// UpdateListingDescription меняет описание объявления.
func (h *Handler) UpdateListingDescription(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	index, ok := h.indexParam(w, r)
	if !ok {
		return
	}

	var req descriptionRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.UpdateListingDescription(r.Context(), caller, index, req.Description); err != nil {
		h.writeServiceError(w, "update listing description", caller, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type priceRequest struct {
	Price uint64 `json:"price"`
}

// UpdateListingPrice меняет цену объявления.
func (h *Handler) UpdateListingPrice(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	index, ok := h.indexParam(w, r)
	if !ok {
		return
	}

	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.UpdateListingPrice(r.Context(), caller, index, req.Price); err != nil {
		h.writeServiceError(w, "update listing price", caller, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
