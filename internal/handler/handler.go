// Package handler содержит HTTP-обработчики API интернет-магазина.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/webshop-system/internal/alipay"
	"github.com/mmeshcher/webshop-system/internal/middleware"
	"github.com/mmeshcher/webshop-system/internal/model"
	"github.com/mmeshcher/webshop-system/internal/repository"
	"github.com/mmeshcher/webshop-system/internal/service"
	"github.com/mmeshcher/webshop-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, username, password, email string) (*model.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)

	CreateAddr(ctx context.Context, addr *model.Addr) (*model.Addr, error)
	GetAddrs(ctx context.Context, userID int64) ([]model.Addr, error)
	UpdateAddr(ctx context.Context, addr *model.Addr) error
	DeleteAddr(ctx context.Context, id, userID int64) error
	SetDefaultAddr(ctx context.Context, id, userID int64) error

	GetProducts(ctx context.Context, filter repository.ProductFilter) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	GetGroups(ctx context.Context) ([]model.ProductGroup, error)
	CollectProduct(ctx context.Context, userID, productID int64) (*model.Collect, error)
	GetCollects(ctx context.Context, userID int64) ([]model.Collect, error)
	DeleteCollect(ctx context.Context, id, userID int64) error

	AddToCart(ctx context.Context, userID, productID int64) (*model.CartLine, error)
	GetCart(ctx context.Context, userID int64, checked *bool) ([]model.CartLine, error)
	ToggleCartLine(ctx context.Context, id, userID int64) (bool, error)
	UpdateCartLineNumber(ctx context.Context, id, userID int64, number int) (bool, error)
	DeleteCartLine(ctx context.Context, id, userID int64) error

	SubmitOrder(ctx context.Context, userID, addrID int64) (*model.Order, error)
	GetOrders(ctx context.Context, userID int64, status *model.OrderStatus) ([]model.Order, error)
	GetOrder(ctx context.Context, orderID, userID int64) (*model.Order, error)
	CloseOrder(ctx context.Context, orderID, userID int64) error
	SubmitComments(ctx context.Context, userID, orderID int64, comments []model.Comment) error
	GetComments(ctx context.Context, productID, orderID *int64) ([]model.Comment, error)
	CreatePayment(ctx context.Context, userID, orderID int64) (string, error)
	PollPayment(ctx context.Context, orderCode string) (*alipay.TradeResult, error)
	ApplySettlement(ctx context.Context, orderCode, tradeStatus, tradeNo string) (bool, error)
}

// SignVerifier проверяет подпись callback-запросов платёжного шлюза.
type SignVerifier interface {
	VerifySign(sign string, values ...string) bool
}

// Handler реализует HTTP-обработчики API интернет-магазина.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	verifier       SignVerifier
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, verifier SignVerifier) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		verifier:       verifier,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func (h *Handler) internalError(w http.ResponseWriter, msg string, err error, fields ...zap.Field) {
	h.logger.Error(msg, append(fields, zap.Error(err))...)
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

func urlParamID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type registerRequest struct {
	Username             string `json:"username"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Email                string `json:"email"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" || req.Email == "" || req.PasswordConfirmation == "" {
		writeError(w, http.StatusUnprocessableEntity, "all fields are required")
		return
	}
	if req.Password != req.PasswordConfirmation {
		writeError(w, http.StatusUnprocessableEntity, "passwords do not match")
		return
	}
	if !validation.IsValidPassword(req.Password) {
		writeError(w, http.StatusUnprocessableEntity, "password must be 6 to 18 characters long")
		return
	}
	if !validation.IsValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	user, err := h.service.RegisterUser(r.Context(), req.Username, req.Password, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserExists):
			writeError(w, http.StatusUnprocessableEntity, "username already taken")
		case errors.Is(err, repository.ErrEmailExists):
			writeError(w, http.StatusUnprocessableEntity, "email already in use")
		default:
			h.internalError(w, "register user error", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.internalError(w, "login user error", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"mobile":   user.Mobile,
	})
}

// GetUser возвращает данные учётной записи текущего пользователя.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid user id")
		return
	}
	if id != userID {
		writeError(w, http.StatusForbidden, "no permission to view other users")
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.internalError(w, "get user error", err, zap.Int64("userID", id))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"email":    user.Email,
		"mobile":   user.Mobile,
	})
}

type addrRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Province string `json:"province"`
	City     string `json:"city"`
	County   string `json:"county"`
	Address  string `json:"address"`
}

func (req *addrRequest) validate() string {
	if req.Name == "" || req.Phone == "" || req.Province == "" || req.City == "" {
		return "name, phone, province and city are required"
	}
	if !validation.IsValidMobile(req.Phone) {
		return "invalid phone number"
	}
	return ""
}

// CreateAddr добавляет адрес доставки в адресную книгу текущего пользователя.
func (h *Handler) CreateAddr(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	var req addrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	addr, err := h.service.CreateAddr(r.Context(), &model.Addr{
		UserID:   userID,
		Name:     req.Name,
		Phone:    req.Phone,
		Province: req.Province,
		City:     req.City,
		County:   req.County,
		Address:  req.Address,
	})
	if err != nil {
		h.internalError(w, "create addr error", err, zap.Int64("userID", userID))
		return
	}

	writeJSON(w, http.StatusCreated, addr)
}

// GetAddrs возвращает адресную книгу текущего пользователя.
func (h *Handler) GetAddrs(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	addrs, err := h.service.GetAddrs(r.Context(), userID)
	if err != nil {
		h.internalError(w, "get addrs error", err, zap.Int64("userID", userID))
		return
	}

	if addrs == nil {
		addrs = []model.Addr{}
	}
	writeJSON(w, http.StatusOK, addrs)
}

// UpdateAddr изменяет адрес доставки текущего пользователя.
func (h *Handler) UpdateAddr(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid address id")
		return
	}

	var req addrRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusUnprocessableEntity, msg)
		return
	}

	err := h.service.UpdateAddr(r.Context(), &model.Addr{
		ID:       id,
		UserID:   userID,
		Name:     req.Name,
		Phone:    req.Phone,
		Province: req.Province,
		City:     req.City,
		County:   req.County,
		Address:  req.Address,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAddrNotFound) {
			writeError(w, http.StatusNotFound, "address not found")
			return
		}
		h.internalError(w, "update addr error", err, zap.Int64("userID", userID))
		return
	}

	writeMessage(w, http.StatusOK, "address updated")
}

// DeleteAddr удаляет адрес доставки текущего пользователя.
func (h *Handler) DeleteAddr(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid address id")
		return
	}

	if err := h.service.DeleteAddr(r.Context(), id, userID); err != nil {
		if errors.Is(err, repository.ErrAddrNotFound) {
			writeError(w, http.StatusNotFound, "address not found")
			return
		}
		h.internalError(w, "delete addr error", err, zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetDefaultAddr делает адрес текущего пользователя основным.
func (h *Handler) SetDefaultAddr(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		return
	}

	id, ok := urlParamID(r, "id")
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "invalid address id")
		return
	}

	if err := h.service.SetDefaultAddr(r.Context(), id, userID); err != nil {
		if errors.Is(err, repository.ErrAddrNotFound) {
			writeError(w, http.StatusNotFound, "address not found")
			return
		}
		h.internalError(w, "set default addr error", err, zap.Int64("userID", userID))
		return
	}

	writeMessage(w, http.StatusOK, "default address updated")
}
