package rest

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
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Credentials hold the FTX API key material. Subaccount is optional.
type Credentials struct {
	Key        string
	Secret     string
	Subaccount string
}

type Client struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	log     *zap.Logger
	now     func() time.Time
}

// APIError is a venue rejection: the request reached the exchange and the
// response envelope reported success=false.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ftx rejected request: %s", e.Message)
}

func New(baseURL string, timeout time.Duration, creds Credentials, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
		now: time.Now,
	}
}

func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.sign(req, payload)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("http %d: %w", resp.StatusCode, err)
		}
		return err
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

// sign sets the FTX auth headers: HMAC-SHA256 of ts + method + request path
// (query string included) + body, keyed by the API secret.
func (c *Client) sign(req *http.Request, body []byte) {
	if c.creds.Key == "" {
		return
	}
	ts := strconv.FormatInt(c.now().UnixMilli(), 10)
	mac := hmac.New(sha256.New, []byte(c.creds.Secret))
	io.WriteString(mac, ts)
	io.WriteString(mac, req.Method)
	io.WriteString(mac, req.URL.RequestURI())
	mac.Write(body)
	req.Header.Set("FTX-KEY", c.creds.Key)
	req.Header.Set("FTX-SIGN", hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("FTX-TS", ts)
	if c.creds.Subaccount != "" {
		req.Header.Set("FTX-SUBACCOUNT", url.QueryEscape(c.creds.Subaccount))
	}
}

// SignPayload signs an arbitrary payload with the API secret. The websocket
// login handshake reuses this.
func (c Credentials) SignPayload(payload string) string {
	mac := hmac.New(sha256.New, []byte(c.Secret))
	io.WriteString(mac, payload)
	return hex.EncodeToString(mac.Sum(nil))
}
