package api

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/glow/internal/embed"
	"github.com/samcharles93/glow/internal/queue"
	"github.com/samcharles93/glow/internal/registry"
	"github.com/samcharles93/glow/internal/repo"
)

type embedCall struct {
	model     string
	sentences []string
	normalize bool
}

type testProvider struct {
	mu     sync.Mutex
	calls  []embedCall
	err    error
	models []string
	loaded []string
}

func (p *testProvider) Embed(ctx context.Context, model string, sentences []string, normalize bool) (*registry.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, embedCall{model, sentences, normalize})
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	if model == "" {
		model = "default"
	}
	out := make([][]float32, len(sentences))
	for i := range sentences {
		out[i] = []float32{float32(i), 0.5, -1}
	}
	return &registry.Result{
		Model:      model,
		Embeddings: out,
		Usage:      embed.Usage{PromptTokens: len(sentences), TotalTokens: len(sentences) + 4},
	}, nil
}

func (p *testProvider) ListModels() ([]string, error) { return p.models, nil }
func (p *testProvider) Loaded() []string              { return p.loaded }

func newTestEcho(p Provider, opts ...Option) *echo.Echo {
	server := NewServer(p, opts...)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ResponseError {
	t.Helper()
	var body struct {
		Error ResponseError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Error
}

func TestEmbeddingsEnvelope(t *testing.T) {
	t.Parallel()

	p := &testProvider{}
	e := newTestEcho(p)
	rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":["a","b"],"model":"m1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Object string `json:"object"`
		Model  string `json:"model"`
		Data   []struct {
			Object    string    `json:"object"`
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Usage EmbeddingUsage `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Object != "list" || resp.Model != "m1" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(resp.Data))
	}
	for i, d := range resp.Data {
		if d.Object != "embedding" || d.Index != i || d.Embedding[0] != float32(i) {
			t.Fatalf("data[%d] = %+v", i, d)
		}
	}
	if resp.Usage != (EmbeddingUsage{PromptTokens: 2, TotalTokens: 6}) {
		t.Fatalf("usage = %+v", resp.Usage)
	}
	if len(p.calls) != 1 || !p.calls[0].normalize {
		t.Fatalf("expected one normalized call, got %+v", p.calls)
	}
}

func TestEmbeddingsStringInputAndNormalizeFlag(t *testing.T) {
	t.Parallel()

	p := &testProvider{}
	e := newTestEcho(p)
	rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":"hello","normalize":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(p.calls))
	}
	call := p.calls[0]
	if call.normalize || len(call.sentences) != 1 || call.sentences[0] != "hello" || call.model != "" {
		t.Fatalf("unexpected call %+v", call)
	}
	if !strings.Contains(rec.Body.String(), `"model":"default"`) {
		t.Fatalf("expected resolved model name: %s", rec.Body.String())
	}
}

func TestEmbeddingsBase64(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testProvider{})
	rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":["x","y"],"encoding_format":"base64"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data []struct {
			Embedding string `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(resp.Data[1].Embedding)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	if len(raw) != 12 {
		t.Fatalf("expected 12 bytes, got %d", len(raw))
	}
	want := []float32{1, 0.5, -1}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		if got != w {
			t.Fatalf("component %d = %v, want %v", i, got, w)
		}
	}
}

func TestEmbeddingsValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		body  string
		param string
	}{
		{"missing input", `{"model":"m"}`, "input"},
		{"empty array", `{"input":[]}`, "input"},
		{"token ids", `{"input":[1,2,3]}`, ""},
		{"object input", `{"input":{"text":"x"}}`, ""},
		{"bad encoding", `{"input":"x","encoding_format":"int8"}`, "encoding_format"},
		{"malformed", `{"input":`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := &testProvider{}
			e := newTestEcho(p)
			rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
			}
			body := decodeError(t, rec)
			if body.Type != "invalid_request_error" || body.Param != tc.param {
				t.Fatalf("unexpected error %+v", body)
			}
			if len(p.calls) != 0 {
				t.Fatalf("provider should not be called")
			}
		})
	}
}

func TestEmbeddingsErrorMapping(t *testing.T) {
	t.Parallel()

	died := &queue.DeliveryError{
		Queue:  "m@main",
		ID:     uuid.New(),
		Reason: queue.ReasonWorkerDied,
		Err:    &embed.ComputeError{Op: "forward", Err: fmt.Errorf("boom")},
	}
	cases := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{"not found", fmt.Errorf("resolve: %w", repo.ErrNotFound), http.StatusNotFound, "not_found_error"},
		{"model required", registry.ErrModelRequired, http.StatusBadRequest, "invalid_request_error"},
		{"tokenization", &embed.TokenizationError{Err: fmt.Errorf("bad")}, http.StatusBadRequest, "invalid_request_error"},
		{"tokenization killed worker", &queue.DeliveryError{Queue: "m", ID: uuid.New(), Reason: queue.ReasonWorkerDied, Err: &embed.TokenizationError{Err: fmt.Errorf("bad")}}, http.StatusBadRequest, "invalid_request_error"},
		{"worker died", died, http.StatusServiceUnavailable, "server_error"},
		{"closed", &queue.DeliveryError{Queue: "m", Reason: queue.ReasonClosed, Err: queue.ErrClosed}, http.StatusServiceUnavailable, "server_error"},
		{"compute", &embed.ComputeError{Op: "forward", Err: fmt.Errorf("nan")}, http.StatusInternalServerError, "server_error"},
		{"deadline", &queue.DeliveryError{Queue: "m", ID: uuid.New(), Reason: queue.ReasonAbandoned, Err: context.DeadlineExceeded}, http.StatusGatewayTimeout, "server_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e := newTestEcho(&testProvider{err: tc.err})
			rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":"x"}`)
			if rec.Code != tc.status {
				t.Fatalf("status: got %d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			if body := decodeError(t, rec); body.Type != tc.errType || body.Message == "" {
				t.Fatalf("unexpected error %+v", body)
			}
		})
	}
}

func TestEmbeddingsRateLimit(t *testing.T) {
	t.Parallel()

	e := newTestEcho(&testProvider{}, WithRateLimit(0.001, 2))
	for i := range 2 {
		rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":"x"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rec.Code)
		}
	}
	rec := doJSON(t, e, http.MethodPost, "/v1/embeddings", `{"input":"x"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d body=%s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After header")
	}

	// Reads are not limited.
	if rec := doJSON(t, e, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: got %d", rec.Code)
	}
}

func TestModelsAndHealth(t *testing.T) {
	t.Parallel()

	p := &testProvider{models: []string{"org/a", "b"}, loaded: []string{"b"}}
	e := newTestEcho(p)

	rec := doJSON(t, e, http.MethodGet, "/v1/models", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("models status: got %d", rec.Code)
	}
	var list ModelList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode models: %v", err)
	}
	if list.Object != "list" || len(list.Data) != 2 {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Data[0].ID != "org/a" || list.Data[0].Loaded || !list.Data[1].Loaded {
		t.Fatalf("unexpected models %+v", list.Data)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/models/b", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"b"`) {
		t.Fatalf("get model: %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, e, http.MethodGet, "/v1/models/zzz", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = doJSON(t, e, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status: got %d", rec.Code)
	}
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || len(health.Loaded) != 1 {
		t.Fatalf("unexpected health %+v", health)
	}
}
