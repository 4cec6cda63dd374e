package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAskRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/generate": `{"task_id":"t-1","model":"phi3.5","output":"an answer"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/v1/generate", map[string]any{
		"prompt":        "what is a bloom filter",
		"require_local": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		TaskID string `json:"task_id"`
		Model  string `json:"model"`
		Output string `json:"output"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.Model != "phi3.5" || result.Output != "an answer" {
		t.Errorf("result = %+v", result)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["prompt"] != "what is a bloom filter" {
		t.Errorf("body.prompt = %v", body["prompt"])
	}
	if body["require_local"] != true {
		t.Errorf("body.require_local = %v, want true", body["require_local"])
	}
}

func TestAskCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestIngestRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/documents": `{"id":"doc-123","status":"queued"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/v1/documents", map[string]any{
		"title":    "notes.md",
		"filename": "notes.md",
		"content":  "aGVsbG8gd29ybGQ=",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result["status"] != "queued" {
		t.Errorf("status = %q, want queued", result["status"])
	}
	if result["id"] != "doc-123" {
		t.Errorf("id = %q, want doc-123", result["id"])
	}
}

func TestSearchRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/documents/search": `[{"document_id":"d1","title":"Notes","text":"I prefer Go","score":0.95,"page_number":1}]`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/v1/documents/search", map[string]any{
		"query": "go preferences",
		"limit": 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var results []struct {
		Title string  `json:"title"`
		Text  string  `json:"text"`
		Score float32 `json:"score"`
	}
	if err := decodeJSON(resp, &results); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Text != "I prefer Go" {
		t.Errorf("text = %q", results[0].Text)
	}
	if results[0].Score < 0.9 {
		t.Errorf("score = %f, want > 0.9", results[0].Score)
	}
}

func TestQueueAddRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/queue/tasks": `{"id":"task-9","status":"queued"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/v1/queue/tasks", map[string]any{
		"prompt":   "summarize the report",
		"priority": 5,
		"is_local": true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["id"] != "task-9" {
		t.Errorf("id = %q", result["id"])
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["is_local"] != true {
		t.Errorf("body.is_local = %v, want true", body["is_local"])
	}
	if body["priority"] != float64(5) {
		t.Errorf("body.priority = %v, want 5", body["priority"])
	}
}

func TestModelsPatch(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PATCH /v1/models/phi3.5": `{"status":"updated"}`,
	})

	client := ts.client()
	resp, err := client.patch(ctx, "/v1/models/phi3.5", map[string]any{"enabled": false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if ts.requests[0].Method != "PATCH" {
		t.Errorf("method = %q, want PATCH", ts.requests[0].Method)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["enabled"] != false {
		t.Errorf("body.enabled = %v, want false", body["enabled"])
	}
}

func TestServerErrorSurfaced(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	client := ts.client()
	resp, err := client.get(ctx, "/v1/not-there")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention 404", err.Error())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
