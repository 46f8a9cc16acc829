package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/hookrelay/hookrelay/internal/errors"
)

// LoggingExecutor logs fired sessions instead of running them. Default
// executor when no agent runner endpoint is configured; useful for dry runs
// and local development.
type LoggingExecutor struct{}

func (LoggingExecutor) Execute(ctx context.Context, req ExecuteRequest) error {
	log.Printf("dispatch: would execute agent=%s maxTurns=%d triggeredBy=%s promptBytes=%d",
		req.AgentAlias, req.MaxTurns, req.TriggeredBy, len(req.Prompt))
	return nil
}

// HTTPExecutor forwards fired sessions to an external agent-runner endpoint
// as a JSON POST. The runner owns execution timeouts; the client timeout
// here only covers handing the session over.
type HTTPExecutor struct {
	url    string
	client *http.Client
}

// NewHTTPExecutor creates an executor posting to the given URL.
func NewHTTPExecutor(url string) *HTTPExecutor {
	return &HTTPExecutor{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, req ExecuteRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.NewDispatchError(errors.CodeExecutionFailed, "failed to serialize execution request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return errors.NewDispatchError(errors.CodeExecutionFailed, "failed to build execution request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return errors.NewDispatchError(errors.CodeExecutionFailed, "agent runner unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.NewDispatchError(errors.CodeExecutionFailed,
			fmt.Sprintf("agent runner returned %d: %s", resp.StatusCode, snippet), nil)
	}
	return nil
}
