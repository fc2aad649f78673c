package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/internal/app"
	"github.com/flowdeckio/api/pkg/logger"
)

func TestClient_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/execute", r.URL.Path)
		require.Equal(t, "exec-1", r.Header.Get("X-Execution-ID"))

		var req app.EngineRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "wf-1", req.WorkflowID)

		_ = json.NewEncoder(w).Encode(app.EngineResult{
			Success: true,
			Output:  map[string]any{"answer": "42"},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, logger.NewNop())
	result, err := client.Execute(context.Background(), &app.EngineRequest{
		ExecutionID: "exec-1",
		WorkflowID:  "wf-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "42", result.Output["answer"])
}

func TestClient_Execute_EngineReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(app.EngineResult{
			Success: false,
			Error:   "block agent failed",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, logger.NewNop())
	result, err := client.Execute(context.Background(), &app.EngineRequest{ExecutionID: "exec-2"})

	// Run failures are data, not transport errors.
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "block agent failed", result.Error)
}

func TestClient_Execute_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, logger.NewNop())
	_, err := client.Execute(context.Background(), &app.EngineRequest{ExecutionID: "exec-3"})
	assert.ErrorContains(t, err, "502")
}

func TestClient_Execute_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Minute, logger.NewNop())
	_, err := client.Execute(context.Background(), &app.EngineRequest{ExecutionID: "exec-4"})
	assert.Error(t, err)
}

func TestClient_Execute_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(srv.URL, time.Minute, logger.NewNop())
	_, err := client.Execute(ctx, &app.EngineRequest{ExecutionID: "exec-5"})
	assert.Error(t, err)
}
