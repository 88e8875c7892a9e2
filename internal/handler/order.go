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

type submitOrderRequest struct {
	Addr int64 `json:"addr"`
}

// SubmitOrder оформляет заказ из отмеченных позиций корзины текущего пользователя.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Addr == 0 {
		writeError(w, http.StatusUnprocessableEntity, "addr is required")
		return
	}

	order, err := h.service.SubmitOrder(r.Context(), userID, req.Addr)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAddrNotFound):
			writeError(w, http.StatusUnprocessableEntity, "invalid shipping address")
		case errors.Is(err, repository.ErrEmptyCart):
			writeError(w, http.StatusUnprocessableEntity, "order submission failed, no checked goods")
		case errors.Is(err, repository.ErrInsufficientStock):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, repository.ErrOrderCodeExists):
			writeError(w, http.StatusUnprocessableEntity, "duplicate order code, retry the submission")
		default:
			h.logger.Error("submit order error", zap.Error(err), zap.Int64("userID", userID))
			writeError(w, http.StatusInternalServerError, "service error, order creation failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, order)
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var status *model.OrderStatus
	if v := r.URL.Query().Get("status"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid status parameter")
			return
		}
		s := model.OrderStatus(code)
		status = &s
	}

	orders, err := h.service.GetOrders(r.Context(), userID, status)
	if err != nil {
		h.internalError(w, "get orders error", err, zap.Int64("userID", userID))
		return
	}

	if orders == nil {
		orders = []model.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder возвращает заказ текущего пользователя вместе с позициями.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id, userID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrNotOwner):
			writeError(w, http.StatusForbidden, "no permission to view this order")
		default:
			h.internalError(w, "get order error", err, zap.Int64("orderID", id))
		}
		return
	}

	writeJSON(w, http.StatusOK, order)
}

// CloseOrder закрывает неоплаченный заказ текущего пользователя.
func (h *Handler) CloseOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid order id")
		return
	}

	if err := h.service.CloseOrder(r.Context(), id, userID); err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, service.ErrNotOwner):
			writeError(w, http.StatusForbidden, "no permission to close this order")
		case errors.Is(err, repository.ErrOrderNotCancellable):
			writeError(w, http.StatusUnprocessableEntity, "only unpaid orders can be closed")
		default:
			h.internalError(w, "close order error", err, zap.Int64("orderID", id))
		}
		return
	}

	writeMessage(w, http.StatusOK, "order closed")
}

type commentItem struct {
	Goods   int64  `json:"goods"`
	Content string `json:"content"`
	Rate    int    `json:"rate"`
	Star    int    `json:"star"`
}

type submitCommentsRequest struct {
	Order   int64         `json:"order"`
	Comment []commentItem `json:"comment"`
}

// SubmitComments сохраняет отзывы о товарах заказа и завершает заказ.
func (h *Handler) SubmitComments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req submitCommentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Order == 0 {
		writeError(w, http.StatusUnprocessableEntity, "order is required")
		return
	}
	if len(req.Comment) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "comment must be a non-empty list")
		return
	}

	comments := make([]model.Comment, 0, len(req.Comment))
	for _, item := range req.Comment {
		if item.Goods == 0 {
			writeError(w, http.StatusUnprocessableEntity, "goods is required for every comment")
			return
		}
		comments = append(comments, model.Comment{
			ProductID: item.Goods,
			Content:   item.Content,
			Rate:      item.Rate,
			Star:      item.Star,
		})
	}

	if err := h.service.SubmitComments(r.Context(), userID, req.Order, comments); err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			writeError(w, http.StatusUnprocessableEntity, "invalid order id")
		case errors.Is(err, service.ErrNotOwner):
			writeError(w, http.StatusForbidden, "no permission to comment on this order")
		case errors.Is(err, repository.ErrOrderNotAwaitingComment):
			writeError(w, http.StatusUnprocessableEntity, "order is not awaiting comment")
		case errors.Is(err, repository.ErrProductNotInOrder):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.internalError(w, "submit comments error", err, zap.Int64("orderID", req.Order))
		}
		return
	}

	writeMessage(w, http.StatusCreated, "comments submitted")
}

// GetComments возвращает отзывы по товару или заказу.
func (h *Handler) GetComments(w http.ResponseWriter, r *http.Request) {
	var productID, orderID *int64

	if v := r.URL.Query().Get("goods"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid goods parameter")
			return
		}
		productID = &id
	}
	if v := r.URL.Query().Get("order"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid order parameter")
			return
		}
		orderID = &id
	}

	comments, err := h.service.GetComments(r.Context(), productID, orderID)
	if err != nil {
		h.internalError(w, "get comments error", err)
		return
	}

	if comments == nil {
		comments = []model.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

type createPaymentRequest struct {
	OrderID int64 `json:"orderID"`
}

// CreatePayment возвращает адрес платёжной страницы для заказа.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payURL, err := h.service.CreatePayment(r.Context(), userID, req.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			writeError(w, http.StatusUnprocessableEntity, "invalid order id")
			return
		}
		h.internalError(w, "create payment error", err, zap.Int64("orderID", req.OrderID))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"pay_url": payURL,
		"message": "OK",
	})
}

// GetPayResult опрашивает платёжный шлюз и применяет результат оплаты заказа.
func (h *Handler) GetPayResult(w http.ResponseWriter, r *http.Request) {
	orderCode := r.URL.Query().Get("order_code")
	if orderCode == "" {
		writeError(w, http.StatusUnprocessableEntity, "order_code is required")
		return
	}

	result, err := h.service.PollPayment(r.Context(), orderCode)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrOrderNotFound):
			writeError(w, http.StatusUnprocessableEntity, "invalid order code")
		case errors.Is(err, service.ErrOrderNotAwaitingPayment):
			writeError(w, http.StatusUnprocessableEntity, "order is not awaiting payment")
		default:
			h.internalError(w, "poll payment error", err, zap.String("orderCode", orderCode))
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AlipayCallback принимает уведомление платёжного шлюза об оплате.
// Подпись запроса проверяется до применения результата.
func (h *Handler) AlipayCallback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback payload")
		return
	}

	orderCode := r.PostFormValue("out_trade_no")
	tradeNo := r.PostFormValue("trade_no")
	tradeStatus := r.PostFormValue("trade_status")
	sign := r.PostFormValue("sign")

	if orderCode == "" || tradeStatus == "" {
		writeError(w, http.StatusUnprocessableEntity, "out_trade_no and trade_status are required")
		return
	}

	if !h.verifier.VerifySign(sign, orderCode, tradeNo, tradeStatus) {
		writeError(w, http.StatusForbidden, "invalid signature")
		return
	}

	applied, err := h.service.ApplySettlement(r.Context(), orderCode, tradeStatus, tradeNo)
	if err != nil {
		h.internalError(w, "apply settlement error", err, zap.String("orderCode", orderCode))
		return
	}

	h.logger.Info("alipay callback processed",
		zap.String("orderCode", orderCode),
		zap.String("tradeStatus", tradeStatus),
		zap.Bool("applied", applied),
	)

	// Шлюз ожидает подтверждение приёма уведомления в теле ответа.
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("success"))
}
