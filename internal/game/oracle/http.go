package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dungeontalk/dungeontalk/internal/platform/errors"
)

// HTTPClient calls the generation service over JSON REST.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// NewHTTPClient creates a client for the oracle at baseURL. The timeout is
// a hard ceiling on a single generation call.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Generate implements Oracle.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, errors.Wrap(errors.CodeOracleFailure, "encode oracle request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ai-response", bytes.NewReader(payload))
	if err != nil {
		return Response{}, errors.Wrap(errors.CodeOracleFailure, "build oracle request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	started := time.Now()
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, errors.Wrap(errors.CodeOracleFailure, "call oracle", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return Response{}, errors.New(errors.CodeOracleFailure,
			fmt.Sprintf("oracle returned status %d: %s", httpResp.StatusCode, strings.TrimSpace(string(body))))
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, errors.Wrap(errors.CodeOracleFailure, "decode oracle response", err)
	}
	if resp.LatencyMs == 0 {
		resp.LatencyMs = time.Since(started).Milliseconds()
	}
	return resp, nil
}

// Health implements Oracle.
func (c *HTTPClient) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return false
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "healthy"
}
