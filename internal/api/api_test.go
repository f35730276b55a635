package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/chartscript/internal/metrics"
	"github.com/arijanluiken/chartscript/internal/runner"
	"github.com/arijanluiken/chartscript/internal/script"
	"github.com/arijanluiken/chartscript/internal/settings"
	"github.com/arijanluiken/chartscript/pkg/config"
	"github.com/arijanluiken/chartscript/pkg/database"
)

const trendScript = `indicator("Trend")
length = input.int(2, "Length")
plot(ta.sma(close, length), "Trend")
`

const barsJSON = `[
	{"timestamp":"2024-01-01T00:00:00Z","open":1,"high":2,"low":0,"close":1,"volume":10},
	{"timestamp":"2024-01-01T00:01:00Z","open":2,"high":3,"low":1,"close":2,"volume":10},
	{"timestamp":"2024-01-01T00:02:00Z","open":3,"high":4,"low":2,"close":3,"volume":10}
]`

func setupTestAPI(t *testing.T) *APIActor {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	engine, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	cfg := &config.Config{
		API: config.APIConfig{
			Port:    8080,
			Timeout: 5 * time.Second,
		},
		Script: config.ScriptConfig{Dir: t.TempDir(), MaxBars: 100},
	}
	logger := zerolog.New(nil)

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)

	settingsPID := engine.Spawn(func() actor.Receiver {
		return settings.New(db, logger)
	}, "settings")
	runnerPID := engine.Spawn(func() actor.Receiver {
		return runner.New(cfg, db, m, settingsPID, logger)
	}, "runner")
	t.Cleanup(func() {
		engine.Stop(runnerPID)
		engine.Stop(settingsPID)
	})

	api := New(cfg, db, m, reg, runnerPID, settingsPID, logger)
	api.engine = engine
	api.setupRouter()
	return api
}

func do(t *testing.T, api *APIActor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestWriteJSON(t *testing.T) {
	api := New(&config.Config{}, nil, nil, nil, nil, nil, zerolog.New(nil))

	w := httptest.NewRecorder()
	api.writeJSON(w, map[string]interface{}{"message": "test response", "count": 42})

	if w.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected content type application/json, got %s", w.Header().Get("Content-Type"))
	}

	response := decodeBody(t, w)
	if response["message"] != "test response" {
		t.Errorf("expected message 'test response', got '%v'", response["message"])
	}
	// JSON numbers are parsed as float64
	if response["count"].(float64) != 42 {
		t.Errorf("expected count 42, got %v", response["count"])
	}
}

func TestWriteError(t *testing.T) {
	api := New(&config.Config{}, nil, nil, nil, nil, nil, zerolog.New(nil))

	w := httptest.NewRecorder()
	api.writeError(w, "test error message", http.StatusBadRequest)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
	if response := decodeBody(t, w); response["error"] != "test error message" {
		t.Errorf("expected error 'test error message', got '%v'", response["error"])
	}
}

func TestHealth(t *testing.T) {
	api := setupTestAPI(t)

	w := do(t, api, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if body["schema_version"].(float64) != 1 {
		t.Errorf("expected schema version 1, got %v", body["schema_version"])
	}
}

func TestCompile(t *testing.T) {
	api := setupTestAPI(t)

	t.Run("valid with warnings", func(t *testing.T) {
		w := do(t, api, http.MethodPost, "/api/v1/compile", `{"source":"x = close\nfoo(x)\n"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		body := decodeBody(t, w)
		if body["valid"] != true {
			t.Errorf("expected valid, got %v", body["valid"])
		}
		warnings := body["warnings"].([]interface{})
		if len(warnings) != 1 || warnings[0].(map[string]interface{})["name"] != "foo" {
			t.Errorf("expected warning for foo, got %v", warnings)
		}
	})

	t.Run("syntax error position", func(t *testing.T) {
		w := do(t, api, http.MethodPost, "/api/v1/compile", `{"source":"x = 1\ny = )"}`)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", w.Code)
		}
		e := decodeBody(t, w)["error"].(map[string]interface{})
		if e["kind"] != "syntax_error" || e["line"].(float64) != 2 || e["column"].(float64) != 5 {
			t.Errorf("expected syntax_error at 2:5, got %v", e)
		}
	})

	t.Run("invalid body", func(t *testing.T) {
		if w := do(t, api, http.MethodPost, "/api/v1/compile", `{`); w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}

func TestRun(t *testing.T) {
	api := setupTestAPI(t)

	source, _ := json.Marshal(trendScript)
	w := do(t, api, http.MethodPost, "/api/v1/run", `{"source":`+string(source)+`,"bars":`+barsJSON+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Output script.Output `json:"output"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if body.Output.Title != "Trend" || body.Output.BarCount != 3 {
		t.Errorf("expected Trend over 3 bars, got %q over %d", body.Output.Title, body.Output.BarCount)
	}
	if len(body.Output.Plots) != 1 || body.Output.Plots[0].Values[0] != 2.5 {
		t.Errorf("expected newest sma 2.5, got %+v", body.Output.Plots)
	}

	t.Run("unknown function", func(t *testing.T) {
		w := do(t, api, http.MethodPost, "/api/v1/run", `{"source":"plott(1)","bars":`+barsJSON+`}`)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status 422, got %d", w.Code)
		}
		e := decodeBody(t, w)["error"].(map[string]interface{})
		if e["kind"] != "unknown_function" || e["line"].(float64) != 1 || e["column"].(float64) != 1 {
			t.Errorf("expected unknown_function at 1:1, got %v", e)
		}
		if e["suggestion"] != "plot" {
			t.Errorf("expected suggestion plot, got %v", e["suggestion"])
		}
	})

	t.Run("kline arrays", func(t *testing.T) {
		klines := `[["1704067320000","3","4","2","3","10"],["1704067260000","2","3","1","2","10"],["1704067200000","1","2","0","1","10"]]`
		w := do(t, api, http.MethodPost, "/api/v1/run", `{"source":`+string(source)+`,"bars":`+klines+`}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var body struct {
			Output script.Output `json:"output"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode output: %v", err)
		}
		if body.Output.Plots[0].Values[0] != 2.5 {
			t.Errorf("expected newest sma 2.5, got %v", body.Output.Plots[0].Values[0])
		}
	})

	t.Run("invalid bars", func(t *testing.T) {
		w := do(t, api, http.MethodPost, "/api/v1/run", `{"source":"x = 1","bars":[1]}`)
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("missing source and name", func(t *testing.T) {
		if w := do(t, api, http.MethodPost, "/api/v1/run", `{}`); w.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", w.Code)
		}
	})
}

func TestScriptLifecycle(t *testing.T) {
	api := setupTestAPI(t)
	source, _ := json.Marshal(trendScript)

	if w := do(t, api, http.MethodPut, "/api/v1/scripts/trend", `{"source":`+string(source)+`}`); w.Code != http.StatusOK {
		t.Fatalf("expected save status 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, api, http.MethodPut, "/api/v1/scripts/broken", `{"source":"x = )"}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected broken script to be rejected, got %d", w.Code)
	}

	w := do(t, api, http.MethodGet, "/api/v1/scripts", "")
	if scripts := decodeBody(t, w)["scripts"].([]interface{}); len(scripts) != 1 {
		t.Errorf("expected 1 script, got %d", len(scripts))
	}

	w = do(t, api, http.MethodGet, "/api/v1/scripts/trend", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if do(t, api, http.MethodGet, "/api/v1/scripts/missing", "").Code != http.StatusNotFound {
		t.Error("expected 404 for missing script")
	}

	t.Run("no output before first run", func(t *testing.T) {
		if w := do(t, api, http.MethodGet, "/api/v1/scripts/trend/output", ""); w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("input overrides apply to runs", func(t *testing.T) {
		if w := do(t, api, http.MethodPut, "/api/v1/scripts/trend/inputs", `{"Length":3}`); w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		inputs := decodeBody(t, do(t, api, http.MethodGet, "/api/v1/scripts/trend/inputs", ""))["inputs"].(map[string]interface{})
		if inputs["Length"].(float64) != 3 {
			t.Errorf("expected Length 3, got %v", inputs)
		}

		w := do(t, api, http.MethodPost, "/api/v1/scripts/trend/run", `{"bars":`+barsJSON+`}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var body struct {
			Output script.Output `json:"output"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode output: %v", err)
		}
		// sma(3, 2, 1) over three bars
		if body.Output.Plots[0].Values[0] != 2 {
			t.Errorf("expected newest sma 2, got %v", body.Output.Plots[0].Values[0])
		}
	})

	t.Run("output and run history", func(t *testing.T) {
		if w := do(t, api, http.MethodGet, "/api/v1/scripts/trend/output", ""); w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
		runs := decodeBody(t, do(t, api, http.MethodGet, "/api/v1/scripts/trend/runs?limit=5", ""))["runs"].([]interface{})
		if len(runs) != 1 {
			t.Errorf("expected 1 run, got %d", len(runs))
		}
	})

	t.Run("pushed bars", func(t *testing.T) {
		w := do(t, api, http.MethodPost, "/api/v1/scripts/trend/bars", `{"bars":`+barsJSON+`,"run":true}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if _, ok := decodeBody(t, w)["output"]; !ok {
			t.Error("expected output after push with run")
		}
	})

	if w := do(t, api, http.MethodDelete, "/api/v1/scripts/trend", ""); w.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", w.Code)
	}
	if w := do(t, api, http.MethodDelete, "/api/v1/scripts/trend", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := setupTestAPI(t)
	do(t, api, http.MethodPost, "/api/v1/compile", `{"source":"x = 1"}`)

	w := do(t, api, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "chartscript_compiles_total") {
		t.Error("expected compile counter in metrics output")
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	api := setupTestAPI(t)
	server := httptest.NewServer(api.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?script=trend"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for api.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if api.hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", api.hub.ClientCount())
	}

	api.onOutputPublished(runner.OutputPublishedMsg{Name: "other", Error: "ignored"})
	api.onOutputPublished(runner.OutputPublishedMsg{Name: "trend", Error: "boom"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}

	var event outputEvent
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&event); err != nil {
		t.Fatalf("failed to decode event: %v", err)
	}
	if event.Script != "trend" || event.Error != "boom" {
		t.Errorf("expected trend event with error boom, got %+v", event)
	}
}
