package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/infrastructure/resilience"
)

const apiPrefix = "/api/imports"

// Client talks to the import backend. Every call goes through the resilience
// executor; only idempotent reads are retried.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, token string, timeout time.Duration, exec *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if exec == nil {
		exec = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: timeout},
		exec:       exec,
	}
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
}

func jsonRequest(method, path string, payload any) (request, error) {
	r := request{method: method, path: path}
	if payload == nil {
		return r, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("marshal request: %w", err)
	}
	r.body = body
	r.contentType = "application/json"
	return r, nil
}

// multipartRequest buffers the form so a retried attempt can resend it.
func multipartRequest(path string, fields map[string]string, fileField, filename string, content io.Reader) (request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return request{}, fmt.Errorf("write form field %s: %w", k, err)
		}
	}
	part, err := w.CreateFormFile(fileField, filename)
	if err != nil {
		return request{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return request{}, fmt.Errorf("copy form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return request{}, fmt.Errorf("close multipart writer: %w", err)
	}
	return request{
		method:      http.MethodPost,
		path:        path,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}, nil
}

// roundTrip performs one HTTP exchange. out may be nil, *[]byte for a raw
// body, or any JSON target.
func (c *Client) roundTrip(ctx context.Context, operation string, r request, out any) error {
	target := c.baseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newHTTPStatusError(operation, resp)
	}

	switch v := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *[]byte:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read %s response: %w", operation, err)
		}
		*v = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}
}

type callPolicy struct {
	// once disables retries for calls that are unsafe to repeat.
	once bool
	// conflict is the domain kind a 409 maps to, if any.
	conflict error
}

var (
	retried = callPolicy{}
	single  = callPolicy{once: true}
)

func (c *Client) do(ctx context.Context, operation string, policy callPolicy, r request, out any) error {
	run := c.exec.Execute
	if policy.once {
		run = c.exec.ExecuteOnce
	}
	err := run(ctx, operation, func(ctx context.Context) error {
		return c.roundTrip(ctx, operation, r, out)
	}, classifyBackendError)
	if err == nil {
		return nil
	}
	return mapBackendError(operation, err, policy.conflict)
}

func batchPath(batchID string, rest ...string) string {
	parts := append([]string{apiPrefix, "batches", url.PathEscape(batchID)}, rest...)
	return strings.Join(parts, "/")
}
