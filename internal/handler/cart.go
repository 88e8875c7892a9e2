package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/webshop-system/internal/middleware"
	"github.com/mmeshcher/webshop-system/internal/model"
	"github.com/mmeshcher/webshop-system/internal/repository"
	"github.com/mmeshcher/webshop-system/internal/service"
)

type addToCartRequest struct {
	Goods int64 `json:"goods"`
}

// AddToCart добавляет товар в корзину текущего пользователя.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Goods == 0 {
		writeError(w, http.StatusUnprocessableEntity, "goods is required")
		return
	}

	line, err := h.service.AddToCart(r.Context(), userID, req.Goods)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "product not found")
			return
		}
		h.internalError(w, "add to cart error", err, zap.Int64("userID", userID), zap.Int64("productID", req.Goods))
		return
	}

	writeJSON(w, http.StatusCreated, line)
}

// GetCart возвращает корзину текущего пользователя.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var checked *bool
	if v := r.URL.Query().Get("is_checked"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid is_checked parameter")
			return
		}
		checked = &parsed
	}

	lines, err := h.service.GetCart(r.Context(), userID, checked)
	if err != nil {
		h.internalError(w, "get cart error", err, zap.Int64("userID", userID))
		return
	}

	if lines == nil {
		lines = []model.CartLine{}
	}
	writeJSON(w, http.StatusOK, lines)
}

// ToggleCartLine переключает признак выбора позиции корзины.
func (h *Handler) ToggleCartLine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid cart line id")
		return
	}

	checked, err := h.service.ToggleCartLine(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCartLineNotFound) {
			writeError(w, http.StatusNotFound, "cart line not found")
			return
		}
		h.internalError(w, "toggle cart line error", err, zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":    "cart line updated",
		"is_checked": checked,
	})
}

type updateNumberRequest struct {
	Number *int `json:"number"`
}

// UpdateCartLineNumber изменяет количество товара в позиции корзины.
func (h *Handler) UpdateCartLineNumber(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid cart line id")
		return
	}

	var req updateNumberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number == nil {
		writeError(w, http.StatusUnprocessableEntity, "number must be an integer and must not be empty")
		return
	}

	removed, err := h.service.UpdateCartLineNumber(r.Context(), id, userID, *req.Number)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCartLineNotFound):
			writeError(w, http.StatusNotFound, "cart line not found")
		case errors.Is(err, service.ErrNumberExceedsStock):
			writeError(w, http.StatusUnprocessableEntity, "number exceeds product stock")
		default:
			h.internalError(w, "update cart line error", err, zap.Int64("userID", userID))
		}
		return
	}

	if removed {
		writeMessage(w, http.StatusOK, "cart line removed")
		return
	}
	writeMessage(w, http.StatusOK, "cart line updated")
}

// DeleteCartLine удаляет позицию корзины текущего пользователя.
func (h *Handler) DeleteCartLine(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid cart line id")
		return
	}

	if err := h.service.DeleteCartLine(r.Context(), id, userID); err != nil {
		if errors.Is(err, repository.ErrCartLineNotFound) {
			writeError(w, http.StatusNotFound, "cart line not found")
			return
		}
		h.internalError(w, "delete cart line error", err, zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
