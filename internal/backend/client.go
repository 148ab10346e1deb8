package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/existflow/promanage/internal/logger"
)

const tracerName = "github.com/existflow/promanage/internal/backend"

// TokenSource supplies the access token for data requests. An empty token
// means "anonymous" and the anon key is sent as the bearer instead
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client talks to a Supabase-compatible backend: auth under /auth/v1 and
// data under /rest/v1
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new backend client
func NewClient(baseURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend URL the client was built with
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	header http.Header
	token  string
	body   interface{}
	table  string
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (c *Client) do(ctx context.Context, r request) (*response, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "backend."+r.op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", r.method),
			attribute.String("backend.path", r.path),
		))
	defer span.End()
	if r.table != "" {
		span.SetAttributes(attribute.String("backend.table", r.table))
	}

	resp, err := c.send(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Debug("Backend request failed", logger.F("op", r.op), logger.F("error", err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.status))

	if resp.status >= 400 {
		apiErr := parseAPIError(resp.status, resp.body)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, apiErr.Error())
		logger.Debug("Backend returned error",
			logger.F("op", r.op),
			logger.F("status", resp.status),
			logger.F("error", apiErr.Message))
		return resp, apiErr
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

func (c *Client) send(ctx context.Context, r request) (*response, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		data, err := sonic.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Set("apikey", c.anonKey)
	bearer := r.token
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: data}, nil
}

func decode(data []byte, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
