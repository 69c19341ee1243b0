package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// mockServer creates an httptest server that mimics the backend API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: serverURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty BaseURL")
	}
}

func TestGetTaskUnwrapsEnvelope(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /tasks/7": func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-key" {
				writeJSON(w, http.StatusUnauthorized, map[string]any{
					"error": map[string]any{"code": "UNAUTHORIZED", "message": "bad token"},
				})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": Task{ID: 7, ProjectID: 1, Name: "summarize", ProductionVersion: strPtr("1.2")},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	task, err := client.GetTask(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if task.Name != "summarize" {
		t.Errorf("expected name %q, got %q", "summarize", task.Name)
	}
	if task.ProductionVersion == nil || *task.ProductionVersion != "1.2" {
		t.Errorf("expected production version 1.2, got %v", task.ProductionVersion)
	}
}

func TestListTracesWithoutEnvelope(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /traces": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("task_id"); got != "3" {
				t.Errorf("expected task_id=3, got %q", got)
			}
			// Bare array response — some endpoints skip the data envelope.
			writeJSON(w, http.StatusOK, []Trace{
				{ID: 10, Status: TraceSuccess, Provider: "openai", LatencyMS: 412.5},
				{ID: 11, Status: TraceError, Provider: "openai", ErrorMessage: strPtr("timeout")},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	traces, err := client.ListTraces(context.Background(), &TraceOptions{TaskID: 3})
	if err != nil {
		t.Fatalf("ListTraces failed: %v", err)
	}
	if len(traces) != 2 {
		t.Fatalf("expected 2 traces, got %d", len(traces))
	}
	if traces[1].Status != TraceError {
		t.Errorf("expected error status, got %q", traces[1].Status)
	}
}

func TestTraceItemsKeepUnknownFields(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /traces/42": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"id":     42,
				"status": "success",
				"input_messages": []map[string]any{
					{"type": "message", "role": "user", "content": "hi"},
					{"type": "quantum_flux", "wobble": 3},
				},
				"output_items": []map[string]any{},
			}})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	trace, err := client.GetTrace(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetTrace failed: %v", err)
	}
	if len(trace.InputMessages) != 2 {
		t.Fatalf("expected 2 input items, got %d", len(trace.InputMessages))
	}
	if got := trace.InputMessages[1].Type(); got != "quantum_flux" {
		t.Errorf("expected unknown type preserved, got %q", got)
	}
	if _, ok := trace.InputMessages[1]["wobble"]; !ok {
		t.Error("expected unknown field preserved on item")
	}
}

// Test-case create/list round trip: creating a test case and then listing
// must return an item with the same description.
func TestTestCaseCreateListRoundTrip(t *testing.T) {
	var (
		mu     sync.Mutex
		stored []TestCase
		nextID int64 = 1
	)

	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /test-cases": func(w http.ResponseWriter, r *http.Request) {
			var req CreateTestCaseRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error": map[string]any{"code": "BAD_REQUEST", "message": err.Error()},
				})
				return
			}
			mu.Lock()
			tc := TestCase{
				ID:             nextID,
				TaskID:         req.TaskID,
				Description:    req.Description,
				Arguments:      req.Arguments,
				ExpectedOutput: req.ExpectedOutput,
				CreatedAt:      time.Now().UTC(),
			}
			nextID++
			stored = append(stored, tc)
			mu.Unlock()
			writeJSON(w, http.StatusCreated, map[string]any{"data": tc})
		},
		"GET /test-cases": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			defer mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{"data": stored})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	created, err := client.CreateTestCase(context.Background(), CreateTestCaseRequest{
		TaskID:         5,
		Description:    strPtr("Adds two numbers"),
		Arguments:      json.RawMessage(`{"a":1,"b":2}`),
		ExpectedOutput: json.RawMessage(`[3]`),
	})
	if err != nil {
		t.Fatalf("CreateTestCase failed: %v", err)
	}
	if created.ID == 0 {
		t.Error("expected non-zero id")
	}

	listed, err := client.ListTestCases(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListTestCases failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 test case, got %d", len(listed))
	}
	if listed[0].Description == nil || *listed[0].Description != "Adds two numbers" {
		t.Errorf("expected description to round-trip, got %v", listed[0].Description)
	}
}

func TestDeleteNoContent(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"DELETE /test-cases/9": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	if err := client.DeleteTestCase(context.Background(), 9); err != nil {
		t.Fatalf("DeleteTestCase failed: %v", err)
	}
}

func TestErrorEnvelopeParsing(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /tasks/404": func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"error": map[string]any{"code": "NOT_FOUND", "message": "task not found"},
			})
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.GetTask(context.Background(), 404)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}
}

func TestErrorNonEnvelopeBody(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /models": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("slow down"))
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListModels(context.Background())
	if !IsRateLimited(err) {
		t.Fatalf("expected IsRateLimited, got %v", err)
	}
}

func strPtr(s string) *string { return &s }
