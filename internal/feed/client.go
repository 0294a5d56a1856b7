package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

const defaultBaseURL = "https://apiconnect.angelone.in"

// API routes, relative to the base URL.
var routes = map[string]string{
	"login":       "/rest/auth/angelbroking/user/v1/loginByPassword",
	"logout":      "/rest/secure/angelbroking/user/v1/logout",
	"candleData":  "/rest/secure/angelbroking/historical/v1/getCandleData",
	"optionGreek": "/rest/secure/angelbroking/marketData/v1/optionGreek",
}

// Config holds broker credentials for the REST client.
type Config struct {
	APIKey     string
	ClientCode string
	Password   string
	TOTPSecret string

	BaseURL string        // override for tests
	Timeout time.Duration // default 10s
}

// Client is a minimal Angel One SmartAPI REST client covering session
// management, historical candle data and option greeks. Order placement is
// out of scope: this service only reads market data.
type Client struct {
	cfg  Config
	http *http.Client

	mu           sync.RWMutex
	jwtToken     string
	refreshToken string
	feedToken    string
}

// envelope is the common SmartAPI response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// NewClient creates a broker REST client. Login must be called before any
// data request.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Login generates a fresh TOTP code from the configured secret and opens a
// new broker session, storing the jwt/refresh/feed tokens.
func (c *Client) Login(ctx context.Context) error {
	code, err := totp.GenerateCode(c.cfg.TOTPSecret, time.Now())
	if err != nil {
		return fmt.Errorf("feed: totp generation: %w", err)
	}

	body := map[string]string{
		"clientcode": c.cfg.ClientCode,
		"password":   c.cfg.Password,
		"totp":       code,
	}
	var data struct {
		JwtToken     string `json:"jwtToken"`
		RefreshToken string `json:"refreshToken"`
		FeedToken    string `json:"feedToken"`
	}
	if err := c.post(ctx, "login", body, &data); err != nil {
		return fmt.Errorf("feed: login: %w", err)
	}
	if data.JwtToken == "" || data.FeedToken == "" {
		return fmt.Errorf("feed: login returned empty tokens")
	}

	c.mu.Lock()
	c.jwtToken = data.JwtToken
	c.refreshToken = data.RefreshToken
	c.feedToken = data.FeedToken
	c.mu.Unlock()
	return nil
}

// Logout terminates the broker session. Errors are returned but the local
// tokens are cleared regardless.
func (c *Client) Logout(ctx context.Context) error {
	err := c.post(ctx, "logout", map[string]string{"clientcode": c.cfg.ClientCode}, nil)

	c.mu.Lock()
	c.jwtToken = ""
	c.refreshToken = ""
	c.feedToken = ""
	c.mu.Unlock()
	return err
}

// AuthToken returns the jwt token from the current session.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwtToken
}

// FeedToken returns the websocket feed token from the current session.
func (c *Client) FeedToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.feedToken
}

func (c *Client) post(ctx context.Context, route string, body any, out any) error {
	path, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route %q", route)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if !env.Status {
		return fmt.Errorf("api error %s: %s", env.ErrorCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-UserType", "USER")
	req.Header.Set("X-SourceID", "WEB")
	req.Header.Set("X-ClientLocalIP", "127.0.0.1")
	req.Header.Set("X-ClientPublicIP", "127.0.0.1")
	req.Header.Set("X-MACAddress", "00:00:00:00:00:00")
	req.Header.Set("X-PrivateKey", c.cfg.APIKey)

	if tok := c.AuthToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
