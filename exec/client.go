package exec

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/tradeengine/execution"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BROKERAGE EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// REST client for the brokerage order gateway. Every request is signed:
//   X-SIGNATURE = hex(HMAC-SHA256(secret, timestamp + method + path + body))
//
// Implements execution.Broker.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds brokerage credentials
type Config struct {
	BaseURL   string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	now        func() time.Time
}

var _ execution.Broker = (*Client)(nil)

// NewClient creates a new execution client
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("broker base url not set")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}

	log.Info().
		Str("url", client.baseURL).
		Bool("signed", cfg.APISecret != "").
		Msg("🚀 Execution client initialized")

	return client, nil
}

// PlaceOrder submits an order and returns the broker order id
func (c *Client) PlaceOrder(ctx context.Context, req execution.OrderRequest) (string, error) {
	resp, err := c.post(ctx, "/orders", req)
	if err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("API error: %s", result.Error)
	}
	if result.OrderID == "" {
		return "", fmt.Errorf("API returned no order id")
	}

	log.Debug().
		Str("order_id", result.OrderID).
		Str("status", result.Status).
		Msg("Order accepted by broker")

	return result.OrderID, nil
}

// OrderStatus fetches the broker's view of an order
func (c *Client) OrderStatus(ctx context.Context, orderID string) (execution.OrderStatus, error) {
	resp, err := c.get(ctx, "/orders/"+orderID)
	if err != nil {
		return execution.OrderStatus{}, err
	}

	var st execution.OrderStatus
	if err := json.Unmarshal(resp, &st); err != nil {
		return execution.OrderStatus{}, fmt.Errorf("parse status: %w", err)
	}
	st.State = execution.OrderState(strings.ToUpper(string(st.State)))
	if st.OrderID == "" {
		st.OrderID = orderID
	}
	return st, nil
}

// CancelOrder cancels an existing order
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.delete(ctx, "/orders/"+orderID)
	return err
}

// Positions returns signed net quantity per instrument
func (c *Client) Positions(ctx context.Context) (map[string]int64, error) {
	resp, err := c.get(ctx, "/positions")
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Instrument string `json:"instrument"`
		Quantity   int64  `json:"quantity"`
	}
	if err := json.Unmarshal(resp, &rows); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Instrument] += r.Quantity
	}
	return out, nil
}

// GetBalance returns available cash
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	resp, err := c.get(ctx, "/balance")
	if err != nil {
		return decimal.Zero, err
	}

	var result struct {
		Balance decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return decimal.Zero, err
	}
	return result.Balance, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, http.MethodPost, path, jsonBody)
}

func (c *Client) delete(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addHeaders(req, body)
	return c.doRequest(req)
}

func (c *Client) addHeaders(req *http.Request, body []byte) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("X-TIMESTAMP", timestamp)

	if c.apiSecret != "" {
		req.Header.Set("X-SIGNATURE", Sign(c.apiSecret, timestamp, req.Method, req.URL.Path, body))
	}
}

func (c *Client) doRequest(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNING
// ═══════════════════════════════════════════════════════════════════════════════

// Sign computes the request signature the gateway expects
func Sign(secret, timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
