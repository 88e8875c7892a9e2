// Package alipay предоставляет клиент платёжного шлюза.
package alipay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// Статусы сделки, сообщаемые платёжным шлюзом.
const (
	TradeStatusSuccess      = "TRADE_SUCCESS"
	TradeStatusWaitBuyerPay = "WAIT_BUYER_PAY"
	TradeStatusClosed       = "TRADE_CLOSED"
)

// ErrTradeNotFound возвращается, если шлюз не знает сделку с таким номером заказа.
var ErrTradeNotFound = errors.New("trade not found")

// Client инкапсулирует HTTP-взаимодействие с платёжным шлюзом.
type Client struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
}

// TradeResult описывает результат оплаты по одному заказу.
type TradeResult struct {
	OutTradeNo  string `json:"out_trade_no"`
	TradeNo     string `json:"trade_no"`
	TradeStatus string `json:"trade_status"`
}

// NewClient создаёт клиент платёжного шлюза по указанному адресу.
// Секретный ключ используется для подписи ссылок на оплату и проверки callback-запросов.
func NewClient(baseURL, secret string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 3 * time.Second
	rc.HTTPClient.Timeout = 5 * time.Second
	rc.Logger = nil

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     []byte(secret),
		httpClient: rc.StandardClient(),
	}
}

// PayURL формирует адрес платёжной страницы шлюза для указанного заказа.
// Состояние заказа при этом не изменяется.
func (c *Client) PayURL(orderCode string, amount decimal.Decimal) string {
	base := normalizeBase(c.baseURL)

	params := url.Values{}
	params.Set("out_trade_no", orderCode)
	params.Set("total_amount", amount.StringFixed(2))
	params.Set("sign", c.Sign(orderCode, amount.StringFixed(2)))

	return fmt.Sprintf("%s/gateway/pay?%s", base, params.Encode())
}

// QueryTrade запрашивает у шлюза результат оплаты по номеру заказа.
func (c *Client) QueryTrade(ctx context.Context, orderCode string) (*TradeResult, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("alipay client not configured")
	}

	base := normalizeBase(c.baseURL)
	reqURL := fmt.Sprintf("%s/gateway/trade?out_trade_no=%s", base, url.QueryEscape(orderCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTradeNotFound, orderCode)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var result TradeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

// Sign подписывает параметры платежа ключом шлюза.
func (c *Client) Sign(values ...string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(strings.Join(values, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySign проверяет подпись callback-запроса шлюза.
func (c *Client) VerifySign(sign string, values ...string) bool {
	return hmac.Equal([]byte(sign), []byte(c.Sign(values...)))
}

func normalizeBase(base string) string {
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return "http://" + base
	}
	return base
}
