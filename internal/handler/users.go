package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/marketplace-ledger/internal/model"
)

type sessionResponse struct {
	Identity model.Identity `json:"identity"`
	Token    string         `json:"token"`
}

// CreateSession выдаёт новый идентификатор вызывающей стороны и устанавливает cookie.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	identity := model.Identity(uuid.NewString())
	token := h.authMiddleware.SetAuthCookie(w, identity)

	h.writeJSON(w, http.StatusCreated, sessionResponse{Identity: identity, Token: token})
}

type createUserRequest struct {
	Name       string     `json:"name"`
	NationalID uint64     `json:"national_id"`
	Role       model.Role `json:"role"`
}

type userResponse struct {
	Name       string         `json:"name"`
	NationalID uint64         `json:"national_id"`
	Identity   model.Identity `json:"identity"`
	Role       model.Role     `json:"role"`
	Ratings    []uint8        `json:"ratings"`
}

func newUserResponse(u model.User) userResponse {
	ratings := u.Ratings
	if ratings == nil {
		ratings = []uint8{}
	}
	return userResponse{
		Name:       u.Name,
		NationalID: u.NationalID,
		Identity:   u.Identity,
		Role:       u.Role,
		Ratings:    ratings,
	}
}

// CreateUser регистрирует вызывающую сторону как пользователя маркетплейса.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req createUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		h.badRequest(w)
		return
	}

	if err := h.service.CreateUser(r.Context(), caller, req.Name, req.NationalID, req.Role); err != nil {
		h.writeServiceError(w, "create user", caller, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// GetUser возвращает запись вызывающего пользователя.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	u, err := h.service.GetUser(r.Context(), caller)
	if err != nil {
		h.writeServiceError(w, "get user", caller, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newUserResponse(u))
}

type changeRoleRequest struct {
	Role model.Role `json:"role"`
}

// ChangeRole меняет роль вызывающего пользователя.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req changeRoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Role.Valid() {
		h.badRequest(w)
		return
	}

	if err := h.service.ChangeRole(r.Context(), caller, req.Role); err != nil {
		h.writeServiceError(w, "change role", caller, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
