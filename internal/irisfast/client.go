package irisfast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

// StaticHeaders builds the X-User-* identity headers Iris expects, skipping empty values.
func StaticHeaders(userID, userEmail, sessionID string) HeaderProvider {
	h := map[string]string{}
	if userID != "" {
		h["X-User-Id"] = userID
	}
	if userEmail != "" {
		h["X-User-Email"] = userEmail
	}
	if sessionID != "" {
		h["X-Session-Id"] = sessionID
	}
	return func() map[string]string { return h }
}

const (
	replyText  = "text"
	replyImage = "image"
)

// Client talks to the Iris HTTP bridge: chat replies and the /config health read.
type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	timeout time.Duration
	// readAttempts bounds idempotent reads; replies always go out once.
	readAttempts int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient swaps the transport; tests dial an in-memory listener.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

// WithReadAttempts sets how often GetConfig is tried on transport errors and 5xx.
func WithReadAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.readAttempts = n
		}
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
		timeout:      10 * time.Second,
		readAttempts: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetConfig reads the bridge settings; potdctl uses it as a health check.
func (c *Client) GetConfig(ctx context.Context) (*Config, error) {
	var cfg Config
	body, err := c.call(ctx, fasthttp.MethodGet, "/config", nil, c.readAttempts)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// SendMessage posts a text reply.
func (c *Client) SendMessage(ctx context.Context, room, message string) error {
	return c.reply(ctx, replyText, room, message)
}

// SendImage posts a base64 PNG reply.
func (c *Client) SendImage(ctx context.Context, room, imageBase64 string) error {
	return c.reply(ctx, replyImage, room, imageBase64)
}

// reply is sent exactly once so a slow bridge cannot post the same chat line twice.
func (c *Client) reply(ctx context.Context, kind, room, data string) error {
	payload, err := json.Marshal(ReplyRequest{Type: kind, Room: room, Data: data})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}
	_, err = c.call(ctx, fasthttp.MethodPost, "/reply", payload, 1)
	return err
}

func (c *Client) call(ctx context.Context, method, path string, payload []byte, attempts int) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}
	if payload != nil {
		req.SetBody(payload)
	}
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; ; attempt++ {
		retryable, err := c.once(ctx, req, resp)
		if err == nil {
			return append([]byte(nil), resp.Body()...), nil
		}
		if !retryable || attempt >= attempts {
			return nil, err
		}
		if waitErr := wait(ctx, backoffDuration(attempt)); waitErr != nil {
			return nil, err
		}
	}
}

// once performs a single round trip and reports whether a failure is worth repeating.
func (c *Client) once(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) (bool, error) {
	if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
		return true, fmt.Errorf("iris %s: %w", req.URI().Path(), err)
	}
	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		return false, nil
	}
	body := resp.Body()
	if len(body) > 512 {
		body = body[:512]
	}
	return status >= 500 && status != fasthttp.StatusNotImplemented,
		fmt.Errorf("iris %s: status=%d body=%s", req.URI().Path(), status, body)
}

func (c *Client) deadline(ctx context.Context) time.Time {
	own := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(own) {
		return dl
	}
	return own
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoffDuration doubles from 100ms and caps at 3.2s; the WebSocket reconnect loop shares it.
func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}
