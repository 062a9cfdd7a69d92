package webdriver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	contentTypeJSON = "application/json;charset=utf-8"
	// Screenshots come back base64 encoded inside the JSON, so allow plenty.
	maxResponseBytes = 64 << 20
	// RequestIDHeader carries a per command id for correlating logs.
	RequestIDHeader = "X-Request-Id"
)

// Options configures a RequestHandler.
type Options struct {
	// BaseURL is the server root, including any path prefix such as /wd/hub.
	BaseURL   string
	SessionID string
	UserAgent string
	// RateLimit caps commands per second. Zero disables limiting.
	RateLimit float64
	// Client defaults to http.DefaultClient.
	Client *http.Client
	Logger *zap.Logger
}

// RequestHandler is a Transport bound to one server and session.
// It is safe for concurrent use.
type RequestHandler struct {
	baseURL   *url.URL
	sessionID string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// NewRequestHandler validates opts and returns a handler.
func NewRequestHandler(opts Options) (*RequestHandler, error) {
	base, err := url.Parse(strings.TrimSpace(opts.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("webdriver: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("webdriver: base url must be http or https, got %q", opts.BaseURL)
	}
	if opts.RateLimit < 0 {
		return nil, fmt.Errorf("webdriver: rate limit must not be negative")
	}

	h := &RequestHandler{
		baseURL:   base,
		sessionID: opts.SessionID,
		userAgent: opts.UserAgent,
		client:    opts.Client,
		logger:    opts.Logger,
	}
	if h.client == nil {
		h.client = http.DefaultClient
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	h.logger = h.logger.Named("webdriver")
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return h, nil
}

// SessionID returns the session the handler addresses.
func (h *RequestHandler) SessionID() string {
	return h.sessionID
}

// Create POSTs body as JSON to path and decodes the reply.
func (h *RequestHandler) Create(ctx context.Context, path string, body interface{}) (*CommandResult, error) {
	return h.do(ctx, http.MethodPost, path, body)
}

func (h *RequestHandler) do(ctx context.Context, method, path string, body interface{}) (*CommandResult, error) {
	target, err := h.resolve(path)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		if payload, err = wire.Marshal(body); err != nil {
			return nil, fmt.Errorf("webdriver: encoding %s body: %w", path, err)
		}
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("webdriver: rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("webdriver: building request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, requestID)
	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	logger := h.logger.With(
		zap.String("method", method),
		zap.String("path", path),
		zap.String("request_id", requestID),
	)
	start := time.Now()

	resp, err := h.client.Do(req)
	if err != nil {
		logger.Debug("WebDriver request failed", zap.Error(err))
		return nil, fmt.Errorf("webdriver: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("webdriver: reading %s response: %w", path, err)
	}

	result, err := parseResponse(path, resp.StatusCode, raw)
	logger.Debug("WebDriver command completed",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	return result, err
}

// resolve expands the session placeholder and joins path onto the base URL.
func (h *RequestHandler) resolve(path string) (string, error) {
	if strings.Contains(path, SessionPlaceholder) {
		if h.sessionID == "" {
			return "", ErrNoSessionID
		}
		path = strings.ReplaceAll(path, SessionPlaceholder, url.PathEscape(h.sessionID))
	}
	u := *h.baseURL
	u.RawPath = strings.TrimRight(u.EscapedPath(), "/") + "/" + strings.TrimLeft(path, "/")
	unescaped, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return "", fmt.Errorf("webdriver: invalid command path %q: %w", path, err)
	}
	u.Path = unescaped
	return u.String(), nil
}

type errorValue struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
}

// parseResponse turns a raw reply into a result or an *Error. It accepts
// W3C replies, JSONWire replies with a numeric status, and plain text
// error bodies.
func parseResponse(path string, httpStatus int, raw []byte) (*CommandResult, error) {
	var result CommandResult
	if err := wire.Unmarshal(raw, &result); err != nil {
		if httpStatus >= http.StatusBadRequest {
			message := strings.TrimSpace(string(raw))
			return nil, &Error{
				Path:       path,
				HTTPStatus: httpStatus,
				Code:       inferCode(httpStatus, message),
				Message:    message,
			}
		}
		return nil, fmt.Errorf("webdriver: decoding %s response: %w", path, err)
	}

	var ev errorValue
	if isJSONObject(result.Value) {
		// Values of other shapes cannot carry an error.
		_ = wire.Unmarshal(result.Value, &ev)
	}

	switch {
	case ev.Error != "":
		return nil, &Error{
			Path:       path,
			HTTPStatus: httpStatus,
			Code:       ev.Error,
			Message:    ev.Message,
			Stacktrace: ev.Stacktrace,
		}
	case result.Status != nil && *result.Status != 0:
		code := legacyCode(*result.Status)
		if UnknownCommandPattern.MatchString(ev.Message) {
			code = CodeUnknownCommand
		}
		return nil, &Error{
			Path:         path,
			HTTPStatus:   httpStatus,
			Code:         code,
			Message:      ev.Message,
			LegacyStatus: *result.Status,
		}
	case httpStatus >= http.StatusBadRequest:
		return nil, &Error{
			Path:       path,
			HTTPStatus: httpStatus,
			Code:       inferCode(httpStatus, ev.Message),
			Message:    ev.Message,
		}
	}
	return &result, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
