package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/webshop-system/internal/alipay"
	"github.com/mmeshcher/webshop-system/internal/middleware"
	"github.com/mmeshcher/webshop-system/internal/model"
	"github.com/mmeshcher/webshop-system/internal/repository"
	"github.com/mmeshcher/webshop-system/internal/service"
)

type stubService struct {
	registerUser *model.User
	registerErr  error

	authUser *model.User
	authErr  error

	user    *model.User
	userErr error

	addr     *model.Addr
	addrs    []model.Addr
	addrErr  error

	products   []model.Product
	product    *model.Product
	productErr error
	groups     []model.ProductGroup

	collect    *model.Collect
	collects   []model.Collect
	collectErr error

	cartLine    *model.CartLine
	cart        []model.CartLine
	cartChecked bool
	cartRemoved bool
	cartErr     error

	order      *model.Order
	orders     []model.Order
	orderErr   error
	closeErr   error
	commented  bool
	commentErr error

	comments []model.Comment

	payURL     string
	payErr     error
	pollResult *alipay.TradeResult
	pollErr    error

	settlementApplied bool
	settlementErr     error
	settlementCalls   int
}

func (s *stubService) RegisterUser(ctx context.Context, username, password, email string) (*model.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubService) CreateAddr(ctx context.Context, addr *model.Addr) (*model.Addr, error) {
	return s.addr, s.addrErr
}

func (s *stubService) GetAddrs(ctx context.Context, userID int64) ([]model.Addr, error) {
	return s.addrs, s.addrErr
}

func (s *stubService) UpdateAddr(ctx context.Context, addr *model.Addr) error { return s.addrErr }

func (s *stubService) DeleteAddr(ctx context.Context, id, userID int64) error { return s.addrErr }

func (s *stubService) SetDefaultAddr(ctx context.Context, id, userID int64) error { return s.addrErr }

func (s *stubService) GetProducts(ctx context.Context, filter repository.ProductFilter) ([]model.Product, error) {
	return s.products, s.productErr
}

func (s *stubService) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return s.product, s.productErr
}

func (s *stubService) GetGroups(ctx context.Context) ([]model.ProductGroup, error) {
	return s.groups, nil
}

func (s *stubService) CollectProduct(ctx context.Context, userID, productID int64) (*model.Collect, error) {
	return s.collect, s.collectErr
}

func (s *stubService) GetCollects(ctx context.Context, userID int64) ([]model.Collect, error) {
	return s.collects, s.collectErr
}

func (s *stubService) DeleteCollect(ctx context.Context, id, userID int64) error {
	return s.collectErr
}

func (s *stubService) AddToCart(ctx context.Context, userID, productID int64) (*model.CartLine, error) {
	return s.cartLine, s.cartErr
}

func (s *stubService) GetCart(ctx context.Context, userID int64, checked *bool) ([]model.CartLine, error) {
	return s.cart, s.cartErr
}

func (s *stubService) ToggleCartLine(ctx context.Context, id, userID int64) (bool, error) {
	return s.cartChecked, s.cartErr
}

func (s *stubService) UpdateCartLineNumber(ctx context.Context, id, userID int64, number int) (bool, error) {
	return s.cartRemoved, s.cartErr
}

func (s *stubService) DeleteCartLine(ctx context.Context, id, userID int64) error {
	return s.cartErr
}

func (s *stubService) SubmitOrder(ctx context.Context, userID, addrID int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) GetOrders(ctx context.Context, userID int64, status *model.OrderStatus) ([]model.Order, error) {
	return s.orders, s.orderErr
}

func (s *stubService) GetOrder(ctx context.Context, orderID, userID int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubService) CloseOrder(ctx context.Context, orderID, userID int64) error {
	return s.closeErr
}

func (s *stubService) SubmitComments(ctx context.Context, userID, orderID int64, comments []model.Comment) error {
	s.commented = true
	return s.commentErr
}

func (s *stubService) GetComments(ctx context.Context, productID, orderID *int64) ([]model.Comment, error) {
	return s.comments, nil
}

func (s *stubService) CreatePayment(ctx context.Context, userID, orderID int64) (string, error) {
	return s.payURL, s.payErr
}

func (s *stubService) PollPayment(ctx context.Context, orderCode string) (*alipay.TradeResult, error) {
	return s.pollResult, s.pollErr
}

func (s *stubService) ApplySettlement(ctx context.Context, orderCode, tradeStatus, tradeNo string) (bool, error) {
	s.settlementCalls++
	return s.settlementApplied, s.settlementErr
}

type stubVerifier struct {
	valid bool
}

func (v *stubVerifier) VerifySign(sign string, values ...string) bool {
	return v.valid
}

func newTestHandler(t *testing.T, svc Service, verifier SignVerifier) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth, verifier)
}

// authCookie выпускает валидную cookie аутентификации для тестовых запросов.
func authCookie(h *Handler, userID int64) *http.Cookie {
	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, userID)
	return rec.Result().Cookies()[0]
}

func doRequest(h *Handler, req *http.Request) *http.Response {
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec.Result()
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUser: &model.User{ID: 42, Username: "user", Email: "user@example.com"},
	}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(registerRequest{
		Username:             "user",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
		Email:                "user@example.com",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewReader(body))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
}

func TestRegister_PasswordMismatch(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubVerifier{})

	body, _ := json.Marshal(registerRequest{
		Username:             "user",
		Password:             "secret1",
		PasswordConfirmation: "secret2",
		Email:                "user@example.com",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewReader(body))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	svc := &stubService{registerErr: repository.ErrUserExists}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(registerRequest{
		Username:             "user",
		Password:             "secret1",
		PasswordConfirmation: "secret1",
		Email:                "user@example.com",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/users/register", bytes.NewReader(body))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{authErr: service.ErrInvalidCredentials}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(loginRequest{Username: "user", Password: "wrong"})

	req := httptest.NewRequest(http.MethodPost, "/api/users/login", bytes.NewReader(body))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestSubmitOrder_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{}, &stubVerifier{})

	body, _ := json.Marshal(submitOrderRequest{Addr: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/order/submit", bytes.NewReader(body))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestSubmitOrder_Success(t *testing.T) {
	svc := &stubService{
		order: &model.Order{ID: 1, UserID: 1, OrderCode: "170000000042", Status: model.OrderStatusUnpaid},
	}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(submitOrderRequest{Addr: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/order/submit", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}
}

func TestSubmitOrder_EmptyCart(t *testing.T) {
	svc := &stubService{orderErr: repository.ErrEmptyCart}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(submitOrderRequest{Addr: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/order/submit", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestSubmitOrder_InsufficientStock(t *testing.T) {
	svc := &stubService{orderErr: repository.ErrInsufficientStock}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(submitOrderRequest{Addr: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/order/submit", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestSubmitOrder_InternalError(t *testing.T) {
	svc := &stubService{orderErr: context.DeadlineExceeded}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(submitOrderRequest{Addr: 1})
	req := httptest.NewRequest(http.MethodPost, "/api/order/submit", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
}

func TestCloseOrder_NotCancellable(t *testing.T) {
	svc := &stubService{closeErr: repository.ErrOrderNotCancellable}
	h := newTestHandler(t, svc, &stubVerifier{})

	req := httptest.NewRequest(http.MethodPut, "/api/order/order/5", nil)
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestGetOrder_Forbidden(t *testing.T) {
	svc := &stubService{orderErr: service.ErrNotOwner}
	h := newTestHandler(t, svc, &stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/api/order/order/5", nil)
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
}

func TestSubmitComments_WrongStatus(t *testing.T) {
	svc := &stubService{commentErr: repository.ErrOrderNotAwaitingComment}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(submitCommentsRequest{
		Order:   5,
		Comment: []commentItem{{Goods: 2, Content: "ok", Rate: 1, Star: 5}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/order/comment", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestCreatePayment_ReturnsPayURL(t *testing.T) {
	svc := &stubService{payURL: "http://gateway/gateway/pay?out_trade_no=170000000042"}
	h := newTestHandler(t, svc, &stubVerifier{})

	body, _ := json.Marshal(createPaymentRequest{OrderID: 5})
	req := httptest.NewRequest(http.MethodPost, "/api/order/alipay", bytes.NewReader(body))
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["pay_url"] != svc.payURL {
		t.Fatalf("pay_url = %q, want %q", resp["pay_url"], svc.payURL)
	}
}

func TestGetPayResult_NotAwaitingPayment(t *testing.T) {
	svc := &stubService{pollErr: service.ErrOrderNotAwaitingPayment}
	h := newTestHandler(t, svc, &stubVerifier{})

	req := httptest.NewRequest(http.MethodGet, "/api/order/alipay?order_code=170000000042", nil)
	req.AddCookie(authCookie(h, 1))
	res := doRequest(h, req)

	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnprocessableEntity)
	}
}

func alipayCallbackRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/order/alipay/callback", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAlipayCallback_InvalidSignature(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc, &stubVerifier{valid: false})

	form := url.Values{
		"out_trade_no": {"170000000042"},
		"trade_no":     {"trade-1"},
		"trade_status": {alipay.TradeStatusSuccess},
		"sign":         {"bogus"},
	}
	res := doRequest(h, alipayCallbackRequest(form))

	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
	if svc.settlementCalls != 0 {
		t.Fatalf("settlement must not be applied for an invalid signature")
	}
}

func TestAlipayCallback_AppliesSettlement(t *testing.T) {
	svc := &stubService{settlementApplied: true}
	h := newTestHandler(t, svc, &stubVerifier{valid: true})

	form := url.Values{
		"out_trade_no": {"170000000042"},
		"trade_no":     {"trade-1"},
		"trade_status": {alipay.TradeStatusSuccess},
		"sign":         {"valid"},
	}
	res := doRequest(h, alipayCallbackRequest(form))

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.settlementCalls != 1 {
		t.Fatalf("expected one ApplySettlement call, got %d", svc.settlementCalls)
	}
}
