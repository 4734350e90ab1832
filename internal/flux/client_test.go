package flux

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(serverURL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	c.SetRetryPolicy(RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond})
	return c
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{0, time.Second}, // clamped
	}
	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestClient_RetriesExactlyFourAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"boom"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	c := fastClient(t, server.URL)
	_, err := c.Health(context.Background())
	if err == nil {
		t.Fatalf("Health returned nil error, want failure")
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("attempts = %d, want 4 (1 initial + 3 retries)", got)
	}
	if !IsKind(err, KindBackend) {
		t.Fatalf("error kind = %v, want KindBackend: %v", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "/health") || !strings.Contains(err.Error(), server.URL) {
		t.Fatalf("final error not annotated with endpoint and path: %v", err)
	}
}

func TestClient_RetriesClientErrorsToo(t *testing.T) {
	t.Parallel()

	// The policy deliberately retries 4xx responses as well.
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"bad steps"}`, http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	c := fastClient(t, server.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if !IsKind(err, KindValidation) {
		t.Fatalf("error kind = %v, want KindValidation: %v", KindOf(err), err)
	}
	if got := calls.Load(); got != 4 {
		t.Fatalf("attempts = %d, want 4", got)
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/generate":
			http.Error(w, `{"detail":"Model is still loading"}`, http.StatusServiceUnavailable)
		case "/progress/ghost":
			http.Error(w, `{"detail":"Request ID not found"}`, http.StatusNotFound)
		case "/status":
			http.Error(w, `{"detail":"internal"}`, http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	c := fastClient(t, server.URL)
	ctx := context.Background()

	_, err := c.Generate(ctx, GenerateRequest{Prompt: "x"})
	if !IsKind(err, KindModelsLoading) {
		t.Errorf("503 kind = %v, want KindModelsLoading", KindOf(err))
	}

	_, err = c.Progress(ctx, "ghost")
	if !IsKind(err, KindNotFound) {
		t.Errorf("404 kind = %v, want KindNotFound", KindOf(err))
	}

	_, err = c.Status(ctx)
	if !IsKind(err, KindBackend) {
		t.Errorf("500 kind = %v, want KindBackend", KindOf(err))
	}
}

func TestClient_ConnectivityError(t *testing.T) {
	t.Parallel()

	// Reserved port with nothing listening.
	c := fastClient(t, "http://127.0.0.1:1")
	_, err := c.Health(context.Background())
	if !IsKind(err, KindConnectivity) {
		t.Fatalf("error kind = %v, want KindConnectivity: %v", KindOf(err), err)
	}
}

func TestClient_SendsDefaultHeaders(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		_ = json.NewEncoder(w).Encode(HealthInfo{Status: "healthy"})
	}))
	t.Cleanup(server.Close)

	c := fastClient(t, server.URL)
	if _, err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health returned error: %v", err)
	}

	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
	if got := gotHeaders.Get("ngrok-skip-browser-warning"); got != "true" {
		t.Errorf("ngrok-skip-browser-warning = %q, want true", got)
	}
	if ua := gotHeaders.Get("User-Agent"); !strings.HasPrefix(ua, "fluxgen/") {
		t.Errorf("User-Agent = %q, want fluxgen/*", ua)
	}
}

func TestClient_GenerateSuccessFalseIsBackendError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GenerateResponse{Success: false, Error: "GPU out of memory"})
	}))
	t.Cleanup(server.Close)

	c := fastClient(t, server.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if !IsKind(err, KindBackend) {
		t.Fatalf("error kind = %v, want KindBackend: %v", KindOf(err), err)
	}
	if !strings.Contains(err.Error(), "GPU out of memory") {
		t.Fatalf("error = %v, want backend detail preserved", err)
	}
}

func TestClient_GenerateSuccess(t *testing.T) {
	t.Parallel()

	var gotBody GenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(GenerateResponse{
			Success:  true,
			Image:    "data:image/png;base64,AAAA",
			Duration: 12.5,
		})
	}))
	t.Cleanup(server.Close)

	c := fastClient(t, server.URL)
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Prompt:      "a sunset",
		Width:       1024,
		Height:      1024,
		CFGGuidance: 4.0,
		Steps:       30,
		Seed:        7,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if resp.Image == "" || resp.Duration != 12.5 {
		t.Fatalf("Generate payload = %#v, want image and duration 12.5", resp)
	}
	if gotBody.CFGGuidance != 4.0 || gotBody.Steps != 30 || gotBody.Seed != 7 {
		t.Fatalf("request body = %#v, want backend field names populated", gotBody)
	}
}

func TestClient_SetEndpoint(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if c.Endpoint() != "" {
		t.Fatalf("Endpoint = %q, want empty when unconfigured", c.Endpoint())
	}

	_, err = c.Health(context.Background())
	if !IsKind(err, KindEndpoint) {
		t.Fatalf("unconfigured request kind = %v, want KindEndpoint", KindOf(err))
	}

	if err := c.SetEndpoint("  https://abc.ngrok.io/  "); err != nil {
		t.Fatalf("SetEndpoint returned error: %v", err)
	}
	if got := c.Endpoint(); got != "https://abc.ngrok.io" {
		t.Fatalf("Endpoint = %q, want sanitized URL", got)
	}

	err = c.SetEndpoint("not a url")
	if !IsKind(err, KindEndpoint) {
		t.Fatalf("SetEndpoint error kind = %v, want KindEndpoint", KindOf(err))
	}
	if got := c.Endpoint(); got != "https://abc.ngrok.io" {
		t.Fatalf("Endpoint = %q, failed SetEndpoint must not clobber the slot", got)
	}
}

func TestStatusSnapshot_AliasNormalization(t *testing.T) {
	tests := []struct {
		name string
		body string
		want StatusSnapshot
	}{
		{
			"canonical fields",
			`{"status":"ok","model_loaded":true,"progress":100,"message":"Model is ready"}`,
			StatusSnapshot{Status: "ok", ModelLoaded: true, Progress: 100, Message: "Model is ready"},
		},
		{
			"models_loaded alias",
			`{"status":"ok","models_loaded":true,"progress":100,"message":"ready"}`,
			StatusSnapshot{Status: "ok", ModelLoaded: true, Progress: 100, Message: "ready"},
		},
		{
			"missing message falls back to status",
			`{"status":"loading","model_loaded":false,"progress":40}`,
			StatusSnapshot{Status: "loading", ModelLoaded: false, Progress: 40, Message: "loading"},
		},
		{
			"model_loaded wins over alias",
			`{"status":"ok","model_loaded":false,"models_loaded":true}`,
			StatusSnapshot{Status: "ok", ModelLoaded: false, Message: "ok"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got StatusSnapshot
			if err := json.Unmarshal([]byte(tt.body), &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got != tt.want {
				t.Errorf("snapshot = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestModelInfo_DecodesStringsAndObjects(t *testing.T) {
	var payload struct {
		Models []ModelInfo `json:"models"`
	}
	body := `{"models":["black-forest-labs/FLUX.1-schnell",{"id":"flux-krea-pro","name":"FLUX KREA Pro","status":"loaded"}]}`
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(payload.Models) != 2 {
		t.Fatalf("models = %d, want 2", len(payload.Models))
	}
	if payload.Models[0].ID != "black-forest-labs/FLUX.1-schnell" {
		t.Errorf("bare id = %q", payload.Models[0].ID)
	}
	if payload.Models[1].Name != "FLUX KREA Pro" || payload.Models[1].Status != "loaded" {
		t.Errorf("object form = %#v", payload.Models[1])
	}
}

func TestHealthInfo_Healthy(t *testing.T) {
	for _, status := range []string{"healthy", "alive", "ok", "HEALTHY"} {
		if !(HealthInfo{Status: status}).Healthy() {
			t.Errorf("Healthy() = false for %q", status)
		}
	}
	for _, status := range []string{"unhealthy", "", "down"} {
		if (HealthInfo{Status: status}).Healthy() {
			t.Errorf("Healthy() = true for %q", status)
		}
	}
}

func TestUserMessage_DistinguishesClasses(t *testing.T) {
	loading := UserMessage(&Error{Kind: KindModelsLoading, Message: "models are still loading"})
	backend := UserMessage(&Error{Kind: KindBackend, Message: "backend error (500)"})
	network := UserMessage(&Error{Kind: KindConnectivity, Message: "network unreachable"})
	invalid := UserMessage(&Error{Kind: KindValidation, Message: "rejected", Detail: "steps out of range"})

	msgs := map[string]bool{loading: true, backend: true, network: true, invalid: true}
	if len(msgs) != 4 {
		t.Fatalf("user messages not distinct: %q %q %q %q", loading, backend, network, invalid)
	}
	if !strings.Contains(invalid, "steps out of range") {
		t.Errorf("validation message = %q, want backend detail included", invalid)
	}
}
