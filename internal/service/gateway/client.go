package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/z-tavern/client/internal/logging"
	"github.com/zhouzirui/z-tavern/client/internal/metrics"
	"github.com/zhouzirui/z-tavern/client/internal/model/speech"
)

var log = logging.For("gateway")

var (
	// ErrUnexpectedStatus wraps any non-2xx backend response.
	ErrUnexpectedStatus = errors.New("unexpected backend status")
	// ErrBackendFailure wraps a 2xx body that reports "status": "error".
	ErrBackendFailure = errors.New("backend reported failure")
)

// 后端接口路径
const (
	PathHealth  = "/api/health"
	PathProcess = "/api/process"
	PathChat    = "/api/chat"
)

// maxErrorBody bounds how much of a failed response is kept for logging.
const maxErrorBody = 4 << 10

// Client 后端网关，每个操作最多请求一次，不重试。
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds every gateway request; zero leaves requests unbounded.
// The timeout is set on a copy so a shared client (used for audio
// downloads) keeps its own setting.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithMetrics records request outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New 创建网关客户端
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ResolveURL joins a backend-relative path onto the base URL. Absolute http(s)
// URLs and empty strings are returned unchanged.
func (c *Client) ResolveURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// HealthCheck reports whether the backend answers /api/health with 2xx. Every
// failure is folded into false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+PathHealth, nil)
	if err != nil {
		log.WithError(err).Warn("build health request failed")
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveGateway("health", "error", time.Since(start))
		log.WithError(err).Debug("backend offline")
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.metrics.ObserveGateway("health", outcome(ok), time.Since(start))
	return ok
}

// ProcessAudio uploads a recorded payload for transcription and reply.
func (c *Client) ProcessAudio(ctx context.Context, req *speech.ProcessRequest) (*speech.ProcessResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.Payload); err != nil {
		return nil, fmt.Errorf("write audio payload: %w", err)
	}
	if err := writer.WriteField("language", req.Language); err != nil {
		return nil, fmt.Errorf("write language field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	log.WithFields(logrus.Fields{
		"bytes":    len(req.Payload),
		"filename": req.Filename,
		"language": req.Language,
	}).Info("uploading audio")

	var out speech.ProcessResponse
	if err := c.post(ctx, "process", PathProcess, writer.FormDataContentType(), body, &out); err != nil {
		return nil, err
	}
	if out.Failed() {
		return nil, fmt.Errorf("%w: %s", ErrBackendFailure, out.Error)
	}
	return &out, nil
}

// SendText sends a typed message to the chat endpoint.
func (c *Client) SendText(ctx context.Context, message, language string) (*speech.ChatResponse, error) {
	payload, err := json.Marshal(speech.ChatRequest{Message: message, Language: language})
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	var out speech.ChatResponse
	if err := c.post(ctx, "chat", PathChat, "application/json", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	if out.Failed() {
		return nil, fmt.Errorf("%w: %s", ErrBackendFailure, out.Error)
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, endpoint, path, contentType string, body io.Reader, out any) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveGateway(endpoint, "error", time.Since(start))
		log.WithError(err).WithField("endpoint", endpoint).Error("request failed")
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.metrics.ObserveGateway(endpoint, "error", time.Since(start))
		log.WithFields(logrus.Fields{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
			"body":     strings.TrimSpace(string(snippet)),
		}).Error("backend returned error status")
		return fmt.Errorf("%w: HTTP %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.metrics.ObserveGateway(endpoint, "error", time.Since(start))
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}

	c.metrics.ObserveGateway(endpoint, "ok", time.Since(start))
	return nil
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
