package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/amtoaer/bili-sync-sub000/internal/metrics"
)

const (
	defaultAPIBase      = "https://api.bilibili.com"
	defaultPassportBase = "https://passport.bilibili.com"
	defaultWWWBase      = "https://www.bilibili.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

// Credential is the cookie-based login state. Zero value means anonymous.
type Credential struct {
	SessData    string `json:"sessdata"`
	BiliJct     string `json:"bili_jct"`
	Buvid3      string `json:"buvid3"`
	DedeUserID  string `json:"dedeuserid"`
	AcTimeValue string `json:"ac_time_value"`
}

// Empty reports whether no credential is configured.
func (c *Credential) Empty() bool {
	return c == nil || c.SessData == ""
}

func (c *Credential) cookieHeader() string {
	if c.Empty() {
		return ""
	}
	parts := []string{
		"SESSDATA=" + c.SessData,
		"bili_jct=" + c.BiliJct,
		"DedeUserID=" + c.DedeUserID,
	}
	if c.Buvid3 != "" {
		parts = append(parts, "buvid3="+c.Buvid3)
	}
	return strings.Join(parts, "; ")
}

// RateLimit is the user-configured request budget: Limit tokens per Interval.
type RateLimit struct {
	Limit    int           `json:"limit"`
	Interval time.Duration `json:"interval"`
}

// Client is the authenticated, rate-limited upstream client. The credential,
// rate limiter and WBI mixin key are read via atomic snapshot so a config
// reload never blocks in-flight requests.
type Client struct {
	apiBase      string
	passportBase string
	wwwBase      string

	http    *http.Client
	cred    atomic.Pointer[Credential]
	limiter atomic.Pointer[rate.Limiter]
	mixin   atomic.Pointer[string]
}

// Option customizes a Client, mainly for pointing tests at httptest servers.
type Option func(*Client)

// WithBaseURL overrides all three upstream bases at once.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimRight(base, "/")
		c.apiBase = base
		c.passportBase = base
		c.wwwBase = base
	}
}

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a client with the given credential and rate budget.
func New(cred *Credential, rl RateLimit, opts ...Option) *Client {
	c := &Client{
		apiBase:      defaultAPIBase,
		passportBase: defaultPassportBase,
		wwwBase:      defaultWWWBase,
		http:         &http.Client{Timeout: 60 * time.Second},
	}
	if cred == nil {
		cred = &Credential{}
	}
	c.cred.Store(cred)
	c.SetRateLimit(rl)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRateLimit swaps in a fresh token bucket: rl.Limit tokens per
// rl.Interval, bucket initially full.
func (c *Client) SetRateLimit(rl RateLimit) {
	if rl.Limit <= 0 || rl.Interval <= 0 {
		// unlimited
		c.limiter.Store(rate.NewLimiter(rate.Inf, 1))
		return
	}
	per := rate.Limit(float64(rl.Limit) / rl.Interval.Seconds())
	c.limiter.Store(rate.NewLimiter(per, rl.Limit))
}

// SetCredential swaps the active credential.
func (c *Client) SetCredential(cred *Credential) {
	if cred == nil {
		cred = &Credential{}
	}
	c.cred.Store(cred)
}

// Credential returns the current credential snapshot.
func (c *Client) Credential() *Credential {
	return c.cred.Load()
}

func (c *Client) endpoint(p string) string { return c.apiBase + p }
func (c *Client) passport(p string) string { return c.passportBase + p }
func (c *Client) www(p string) string      { return c.wwwBase + p }

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://www.bilibili.com")
	if cookie := c.cred.Load().cookieHeader(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	return req, nil
}

// do issues the request after taking one rate-limiter token. The latency
// histogram measures the HTTP exchange only, not time spent queued on the
// limiter.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Load().Wait(req.Context()); err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RequestDuration.WithLabelValues(endpointGroup(req.URL.Path)).Observe(time.Since(start).Seconds())
	return resp, err
}

// endpointGroup buckets request paths into a handful of labels so the latency
// histogram stays low-cardinality. Anything outside the platform API is a
// media fetch.
func endpointGroup(path string) string {
	switch {
	case strings.HasPrefix(path, "/x/player"):
		return "player"
	case strings.HasPrefix(path, "/x/v2/dm"):
		return "danmaku"
	case strings.HasPrefix(path, "/x/passport-login"):
		return "passport"
	case strings.HasPrefix(path, "/x/"):
		return "api"
	default:
		return "media"
	}
}

type envelope struct {
	Code    *int64          `json:"code"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data"`
	Result  json.RawMessage `json:"result"`
}

// GetJSON issues a GET, validates the JSON envelope, and unmarshals its data
// payload into out. A non-zero envelope code becomes an *APIError; -404 and
// the gateway rejection codes unwrap to their sentinels.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	u := rawURL
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.decode(req, rawURL, out)
}

// GetJSONWBI is GetJSON with WBI query signing under the current mixin key.
func (c *Client) GetJSONWBI(ctx context.Context, rawURL string, query url.Values, out any) error {
	if query == nil {
		query = url.Values{}
	}
	signed := SignWBI(query, c.MixinKey(), time.Now().Unix())
	req, err := c.newRequest(ctx, http.MethodGet, rawURL+"?"+signed, nil)
	if err != nil {
		return err
	}
	return c.decode(req, rawURL, out)
}

// PostForm issues an x-www-form-urlencoded POST and validates the envelope.
// The response is returned raw so callers can read Set-Cookie.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, out any) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", rawURL, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("post %s: read body: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Op: rawURL}
	}
	if err := decodeEnvelope(body, rawURL, out); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) decode(req *http.Request, op string, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Op: op}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("get %s: read body: %w", op, err)
	}
	return decodeEnvelope(body, op, out)
}

func decodeEnvelope(body []byte, op string, out any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: malformed envelope: %w", op, err)
	}
	if env.Code == nil || env.Message == nil {
		return fmt.Errorf("%s: envelope missing code/message", op)
	}
	if *env.Code != 0 {
		return &APIError{Code: *env.Code, Message: *env.Message, Op: op}
	}
	if out == nil {
		return nil
	}
	payload := env.Data
	if len(payload) == 0 || string(payload) == "null" {
		payload = env.Result
	}
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: malformed payload: %w", op, err)
	}
	return nil
}

// GetBytes fetches a raw (non-envelope) resource, e.g. a danmaku protobuf
// segment or the correspond HTML page.
func (c *Client) GetBytes(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	u := rawURL
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Op: rawURL}
	}
	return io.ReadAll(resp.Body)
}

// Stream opens a raw GET whose body the caller streams to disk. The caller
// must close the returned reader.
func (c *Client) Stream(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &StatusError{Status: resp.StatusCode, Op: rawURL}
	}
	return resp.Body, nil
}
