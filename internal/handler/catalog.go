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
)

// GetProducts возвращает список товаров каталога. Поддерживаются фильтры по
// категории и признаку рекомендации и сортировка по продажам, цене и дате.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	filter := repository.ProductFilter{
		OrderBy: r.URL.Query().Get("ordering"),
	}

	if v := r.URL.Query().Get("group"); v != "" {
		groupID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid group parameter")
			return
		}
		filter.GroupID = &groupID
	}
	if v := r.URL.Query().Get("recommend"); v != "" {
		recommend, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid recommend parameter")
			return
		}
		filter.Recommend = &recommend
	}

	products, err := h.service.GetProducts(r.Context(), filter)
	if err != nil {
		h.internalError(w, "get products error", err)
		return
	}

	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// GetProduct возвращает один товар каталога.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid product id")
		return
	}

	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		h.internalError(w, "get product error", err, zap.Int64("productID", id))
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// GetGroups возвращает категории товаров.
func (h *Handler) GetGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.GetGroups(r.Context())
	if err != nil {
		h.internalError(w, "get groups error", err)
		return
	}

	if groups == nil {
		groups = []model.ProductGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

type collectRequest struct {
	User  int64 `json:"user"`
	Goods int64 `json:"goods"`
}

// CreateCollect добавляет товар в избранное текущего пользователя.
func (h *Handler) CreateCollect(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.User != userID {
		writeError(w, http.StatusForbidden, "no permission to operate on other users")
		return
	}
	if req.Goods == 0 {
		writeError(w, http.StatusUnprocessableEntity, "goods is required")
		return
	}

	collect, err := h.service.CollectProduct(r.Context(), userID, req.Goods)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCollectExists):
			writeError(w, http.StatusUnprocessableEntity, "product already collected")
		case errors.Is(err, repository.ErrProductNotFound):
			writeError(w, http.StatusUnprocessableEntity, "product not found")
		default:
			h.internalError(w, "create collect error", err, zap.Int64("userID", userID))
		}
		return
	}

	writeJSON(w, http.StatusCreated, collect)
}

// GetCollects возвращает избранные товары текущего пользователя.
func (h *Handler) GetCollects(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	collects, err := h.service.GetCollects(r.Context(), userID)
	if err != nil {
		h.internalError(w, "get collects error", err, zap.Int64("userID", userID))
		return
	}

	if collects == nil {
		collects = []model.Collect{}
	}
	writeJSON(w, http.StatusOK, collects)
}

// DeleteCollect удаляет товар из избранного текущего пользователя.
func (h *Handler) DeleteCollect(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid collect id")
		return
	}

	if err := h.service.DeleteCollect(r.Context(), id, userID); err != nil {
		if errors.Is(err, repository.ErrCollectNotFound) {
			writeError(w, http.StatusNotFound, "collect not found")
			return
		}
		h.internalError(w, "delete collect error", err, zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
