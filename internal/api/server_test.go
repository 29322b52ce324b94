package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/prophet/internal/api"
	"github.com/seantiz/prophet/internal/backend"
	"github.com/seantiz/prophet/internal/broker"
	"github.com/seantiz/prophet/internal/model"
	"github.com/seantiz/prophet/internal/registry"
	"github.com/seantiz/prophet/internal/router"
	"github.com/seantiz/prophet/internal/worker"
)

// stubBackend trains instantly and predicts a constant.
type stubBackend struct {
	name  string
	value float64
}

func (s *stubBackend) Name() string { return s.name }

func (s *stubBackend) Characteristics() backend.Characteristics {
	return backend.Characteristics{Name: s.name, TrainingSpeed: "fast"}
}

func (s *stubBackend) Train(_ context.Context, _ model.TrainingConfig, report backend.ProgressFunc) ([]byte, model.Metrics, error) {
	if report != nil {
		report(1, 1, "done")
	}
	return []byte("{}"), model.Metrics{TestR2: 0.85}, nil
}

func (s *stubBackend) Predict(_ []byte, _ model.Features) (float64, error) {
	return s.value, nil
}

type testServer struct {
	srv      *httptest.Server
	broker   *broker.Memory
	registry *registry.Registry
	worker   *worker.Worker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	backends := map[string]backend.Backend{
		backend.Linear:    &stubBackend{name: backend.Linear, value: 1.0},
		backend.Forest:    &stubBackend{name: backend.Forest, value: 2.0},
		backend.Attention: &stubBackend{name: backend.Attention, value: 3.0},
	}

	reg, err := registry.Open(":memory:", backend.IDs())
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	t.Cleanup(func() { reg.Close() })

	artifacts, err := registry.NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}

	b := broker.NewMemory(time.Hour)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	predictor := router.New(reg, artifacts, backends)
	w := worker.New(b, backends, reg, artifacts, logger, worker.Config{
		DequeueTimeout: 50 * time.Millisecond,
		ReportInterval: time.Millisecond,
	})

	server := api.NewServer(":0", b, reg, predictor, backends, logger)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &testServer{srv: ts, broker: b, registry: reg, worker: w}
}

// startWorker runs an embedded worker for the duration of the test.
func (ts *testServer) startWorker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ts.worker.Run(ctx)
}

func (ts *testServer) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (ts *testServer) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestBrokerHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/broker/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if _, ok := body["latency_ms"]; !ok {
		t.Error("response has no latency_ms")
	}
}

func TestCreateJobValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		body any
		want string
	}{
		{"missing backend", map[string]any{}, "backend is required"},
		{"unknown backend", map[string]any{"backend": "quantum"}, "unknown backend"},
		{"negative epochs", map[string]any{"backend": "linear", "config": map[string]any{"epochs": -1}}, "epochs"},
		{"zero epochs", map[string]any{"backend": "linear", "config": map[string]any{"epochs": 0}}, "epochs"},
		{"negative learning rate", map[string]any{"backend": "linear", "config": map[string]any{"learning_rate": -0.5}}, "learning_rate"},
		{"zero learning rate", map[string]any{"backend": "linear", "config": map[string]any{"learning_rate": 0}}, "learning_rate"},
		{"zero hidden size", map[string]any{"backend": "linear", "config": map[string]any{"hidden_sizes": []int{64, 0}}}, "hidden_sizes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.post(t, "/jobs", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var body map[string]string
			decodeJSON(t, resp, &body)
			if !strings.Contains(body["error"], tt.want) {
				t.Errorf("error = %q, want mention of %q", body["error"], tt.want)
			}
		})
	}
}

func TestCreateJobAccepted(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/jobs", map[string]any{"backend": "linear"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["job_id"] == "" {
		t.Fatal("no job_id in response")
	}

	// Accepted means queued, not executed: with no worker running the job
	// stays pending with synthesized progress.
	status := ts.get(t, "/jobs/"+body["job_id"])
	var st map[string]any
	decodeJSON(t, status, &st)
	if st["state"] != model.StatePending {
		t.Errorf("state = %v, want pending", st["state"])
	}
	progress, ok := st["progress"].(map[string]any)
	if !ok {
		t.Fatal("pending job has no synthesized progress")
	}
	if progress["percent"].(float64) != 0 {
		t.Errorf("pending percent = %v, want 0", progress["percent"])
	}
}

func TestGetJobNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/jobs/01JUNKJUNKJUNKJUNKJUNKJUNK")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if !strings.Contains(body["error"], "01JUNKJUNKJUNKJUNKJUNKJUNK") {
		t.Errorf("error = %q, want the job id named", body["error"])
	}
}

func TestResultConflictBeforeTerminal(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/jobs", map[string]any{"backend": "forest"})
	var created map[string]string
	decodeJSON(t, resp, &created)

	result := ts.get(t, fmt.Sprintf("/jobs/%s/result", created["job_id"]))
	if result.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", result.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, result, &body)
	if body["state"] != model.StatePending {
		t.Errorf("state = %q, want pending", body["state"])
	}
}

func TestTrainThenPredictScenario(t *testing.T) {
	ts := newTestServer(t)
	ts.startWorker(t)

	// Before training every prediction is refused with the missing backend named.
	resp := ts.post(t, "/predict", map[string]any{"preference": "linear"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("predict before training: status = %d, want 409", resp.StatusCode)
	}
	var conflict map[string]any
	decodeJSON(t, resp, &conflict)
	if !strings.Contains(conflict["error"].(string), "linear") {
		t.Errorf("error = %v, want the backend named", conflict["error"])
	}

	// Train everything through the async pipeline.
	resp = ts.post(t, "/jobs", map[string]any{"backend": "all"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: status = %d, want 202", resp.StatusCode)
	}
	var created map[string]string
	decodeJSON(t, resp, &created)

	deadline := time.Now().Add(10 * time.Second)
	var final map[string]any
	for time.Now().Before(deadline) {
		r := ts.get(t, "/jobs/"+created["job_id"])
		decodeJSON(t, r, &final)
		if model.Terminal(final["state"].(string)) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if final["state"] != model.StateSucceeded {
		t.Fatalf("job state = %v, want succeeded (%v)", final["state"], final)
	}

	// Result endpoint now answers with per-backend metrics.
	r := ts.get(t, fmt.Sprintf("/jobs/%s/result", created["job_id"]))
	if r.StatusCode != http.StatusOK {
		t.Fatalf("result: status = %d, want 200", r.StatusCode)
	}
	var result map[string]any
	decodeJSON(t, r, &result)
	if result["result"] == nil {
		t.Fatal("terminal job has no result")
	}

	// Ensemble prediction over all three trained backends.
	resp = ts.post(t, "/predict", map[string]any{"preference": "ensemble"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("predict: status = %d, want 200", resp.StatusCode)
	}
	var pred map[string]any
	decodeJSON(t, resp, &pred)
	if pred["backend_used"] != "ensemble" {
		t.Errorf("backend_used = %v, want ensemble", pred["backend_used"])
	}
	if pred["prediction"].(float64) != 2.0 {
		t.Errorf("prediction = %v, want mean 2.0", pred["prediction"])
	}
	breakdown, ok := pred["breakdown"].(map[string]any)
	if !ok || len(breakdown) != 3 {
		t.Errorf("breakdown = %v, want all three backends", pred["breakdown"])
	}
}

func TestPredictEnsembleNamesAllMissing(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/predict", map[string]any{"preference": "ensemble"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
	var body map[string]any
	decodeJSON(t, resp, &body)
	missing, ok := body["missing"].([]any)
	if !ok || len(missing) != 3 {
		t.Fatalf("missing = %v, want all three backends", body["missing"])
	}
}

func TestPredictUnknownPreference(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/predict", map[string]any{"preference": "quantum"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestPredictCompare(t *testing.T) {
	ts := newTestServer(t)
	ts.startWorker(t)

	resp := ts.post(t, "/jobs", map[string]any{"backend": "linear"})
	var created map[string]string
	decodeJSON(t, resp, &created)
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		trained, err := ts.registry.IsTrained(context.Background(), backend.Linear)
		if err != nil {
			t.Fatalf("IsTrained: %v", err)
		}
		if trained {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp = ts.post(t, "/predict/compare", map[string]any{"features": map[string]any{"median_income": 5.0}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var cmp map[string]any
	decodeJSON(t, resp, &cmp)
	predictions, ok := cmp["predictions"].(map[string]any)
	if !ok || len(predictions) != 1 {
		t.Fatalf("predictions = %v, want only the trained backend", cmp["predictions"])
	}
	unavailable, ok := cmp["unavailable"].([]any)
	if !ok || len(unavailable) != 2 {
		t.Errorf("unavailable = %v, want the two untrained backends", cmp["unavailable"])
	}
}

func TestListBackends(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.get(t, "/v1/backends")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Backends []struct {
			ID              string `json:"id"`
			Trained         bool   `json:"trained"`
			Characteristics struct {
				Name string `json:"name"`
			} `json:"characteristics"`
		} `json:"backends"`
	}
	decodeJSON(t, resp, &body)
	if len(body.Backends) != 3 {
		t.Fatalf("backends = %d, want 3", len(body.Backends))
	}
	for _, b := range body.Backends {
		if b.Trained {
			t.Errorf("%s reported trained before any training", b.ID)
		}
		if b.Characteristics.Name == "" {
			t.Errorf("%s has no characteristics", b.ID)
		}
	}
}
