// Package client talks to the job-processing backend over HTTP. Every call
// carries the session's bearer token, and any 401 invalidates the session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawldash/internal/errs"
	idgen "github.com/JakeFAU/crawldash/internal/id/uuid"
	"github.com/JakeFAU/crawldash/internal/metrics"
)

const (
	// HeaderRequestID carries the per-request correlation id.
	HeaderRequestID = "X-Request-ID"

	maxErrorBody = 1 << 20
)

// Credentials supplies the bearer token and is told when the backend rejects it.
// *session.Session satisfies it.
type Credentials interface {
	Token() (string, bool)
	Invalidate() bool
}

// Config controls the HTTP client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	UserAgent      string
	// HTTPClient replaces the default transport; Timeout is applied only when it is nil.
	HTTPClient *http.Client
}

// Client is a typed backend client. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	creds     Credentials
	limiter   *limiter
	ids       *idgen.Generator
	userAgent string
	logger    *zap.Logger
}

// New validates cfg and builds a Client.
func New(cfg Config, creds Credentials, logger *zap.Logger) (*Client, error) {
	if creds == nil {
		return nil, errors.New("client: credentials are required")
	}
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("client: base url is required")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: base url must be http or https, got %q", base.Scheme)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "crawldash"
	}
	return &Client{
		base:      base,
		http:      hc,
		creds:     creds,
		limiter:   newLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		ids:       idgen.New(),
		userAgent: ua,
		logger:    logger,
	}, nil
}

// request describes one backend call.
type request struct {
	op     string
	kind   errs.Kind
	method string
	path   string
	query  url.Values
	body   any
	auth   bool
}

type errorBody struct {
	Error string `json:"error"`
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var token string
	if r.auth {
		var ok bool
		token, ok = c.creds.Token()
		if !ok {
			return &errs.Error{Kind: errs.KindAuthentication, Op: r.op, Err: errs.ErrUnauthorized}
		}
	}
	if err := c.limiter.wait(ctx); err != nil {
		return errs.E(r.kind, r.op, err)
	}

	target := c.base.JoinPath(r.path)
	if len(r.query) > 0 {
		target.RawQuery = r.query.Encode()
	}

	var payload io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return errs.E(r.kind, r.op, fmt.Errorf("encode request: %w", err))
		}
		payload = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, target.String(), payload)
	if err != nil {
		return errs.E(r.kind, r.op, fmt.Errorf("build request: %w", err))
	}
	requestID := c.ids.MustID()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(HeaderRequestID, requestID)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveAPIRequest(r.op, 0, time.Since(start))
		c.logger.Debug("backend request failed",
			zap.String("op", r.op),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return errs.E(r.kind, r.op, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close
	metrics.ObserveAPIRequest(r.op, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusUnauthorized {
		cause := errs.ErrUnauthorized
		if msg := readErrorMessage(resp.Body); msg != "" {
			cause = fmt.Errorf("%s: %w", msg, errs.ErrUnauthorized)
		}
		if c.creds.Invalidate() {
			metrics.ObserveSessionInvalidation()
			c.logger.Warn("backend rejected credential; session invalidated",
				zap.String("op", r.op),
				zap.String("request_id", requestID),
			)
		}
		return &errs.Error{Kind: errs.KindAuthentication, Op: r.op, StatusCode: resp.StatusCode, Err: cause}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := readErrorMessage(resp.Body)
		if msg == "" {
			msg = fmt.Sprintf("HTTP %d", resp.StatusCode)
		}
		c.logger.Debug("backend returned error status",
			zap.String("op", r.op),
			zap.String("request_id", requestID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg),
		)
		return &errs.Error{Kind: r.kind, Op: r.op, StatusCode: resp.StatusCode, Err: errors.New(msg)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errs.Error{Kind: r.kind, Op: r.op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var eb errorBody
	if err := json.Unmarshal(data, &eb); err != nil {
		return ""
	}
	return strings.TrimSpace(eb.Error)
}
