package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowdeckio/api/internal/app"
	"github.com/flowdeckio/api/pkg/logger"
)

// maxResponseSize caps how much of an engine response is read.
const maxResponseSize = 100 << 20 // 100MB

// Client calls the external graph-execution engine over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates an engine client. The timeout bounds a whole
// execution round-trip, not individual reads.
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: log.With("component", "engine_client"),
	}
}

var _ app.GraphEngine = (*Client)(nil)

// Execute posts the serialized graph to the engine and decodes the
// run result. Engine-reported run failures come back inside the
// result, not as an error; errors mean the engine was unreachable or
// returned garbage.
func (c *Client) Execute(ctx context.Context, req *app.EngineRequest) (*app.EngineResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal engine request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build engine request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Execution-ID", req.ExecutionID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("engine request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read engine response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("engine returned non-OK status",
			"status", resp.StatusCode,
			"execution_id", req.ExecutionID,
			"duration", time.Since(start),
		)
		return nil, fmt.Errorf("engine returned status %d", resp.StatusCode)
	}

	var result app.EngineResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode engine response: %w", err)
	}

	c.logger.Debug("engine execution round-trip",
		"execution_id", req.ExecutionID,
		"success", result.Success,
		"duration", time.Since(start),
	)
	return &result, nil
}
