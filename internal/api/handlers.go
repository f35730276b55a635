package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arijanluiken/chartscript/internal/runner"
	"github.com/arijanluiken/chartscript/internal/script"
	"github.com/arijanluiken/chartscript/internal/settings"
	"github.com/arijanluiken/chartscript/pkg/bars"
	"github.com/arijanluiken/chartscript/pkg/database"
)

const maxBodyBytes = 16 << 20

// Request bodies
type (
	compileRequest struct {
		Source string `json:"source"`
	}

	runRequest struct {
		Name   string             `json:"name"`
		Source string             `json:"source"`
		Bars   json.RawMessage    `json:"bars"`
		Inputs map[string]float64 `json:"inputs"`
	}

	saveScriptRequest struct {
		Source string `json:"source"`
	}

	pushBarsRequest struct {
		Bars json.RawMessage `json:"bars"`
		Run  bool            `json:"run"`
	}
)

// scriptError describes a failed compile or run with its source position, if known
type scriptError struct {
	Message    string `json:"message"`
	Kind       string `json:"kind"`
	Line       int    `json:"line,omitempty"`
	Column     int    `json:"column,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

type unknownCall struct {
	Name       string `json:"name"`
	Line       int    `json:"line"`
	Column     int    `json:"column"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Response helpers
func (a *APIActor) writeJSON(w http.ResponseWriter, data interface{}) {
	a.writeJSONStatus(w, http.StatusOK, data)
}

func (a *APIActor) writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func (a *APIActor) writeError(w http.ResponseWriter, message string, code int) {
	a.writeJSONStatus(w, code, map[string]string{"error": message})
}

func (a *APIActor) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.writeError(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

// parseBars decodes an optional bar array; objects and exchange kline arrays are accepted
func (a *APIActor) parseBars(w http.ResponseWriter, raw json.RawMessage) ([]bars.Bar, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, true
	}
	parsed, err := bars.ParseJSON(raw)
	if err != nil {
		a.writeError(w, "Invalid bars: "+err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return parsed, true
}

func describeError(err error) scriptError {
	desc := scriptError{Message: err.Error(), Kind: "error"}

	var syntaxErr *script.SyntaxError
	var unknownErr *script.UnknownFunctionError
	switch {
	case errors.As(err, &syntaxErr):
		desc.Kind = "syntax_error"
	case errors.As(err, &unknownErr):
		desc.Kind = "unknown_function"
		desc.Suggestion = unknownErr.Suggestion
	case errors.Is(err, runner.ErrScriptNotFound):
		desc.Kind = "not_found"
	}

	if pos, ok := script.ErrorPosition(err); ok {
		desc.Line = pos.Line
		desc.Column = pos.Column
	}
	return desc
}

func unknownCalls(errs []*script.UnknownFunctionError) []unknownCall {
	out := make([]unknownCall, 0, len(errs))
	for _, e := range errs {
		out = append(out, unknownCall{Name: e.Name, Line: e.Line, Column: e.Column, Suggestion: e.Suggestion})
	}
	return out
}

// Basic handlers
func (a *APIActor) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":            "ok",
		"timestamp":         time.Now().Format(time.RFC3339),
		"websocket_clients": a.hub.ClientCount(),
	}
	if a.db != nil {
		health["schema_version"] = a.db.Version()
	}
	a.writeJSON(w, health)
}

func (a *APIActor) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if !a.decode(w, r, &req) {
		return
	}

	res, err := a.request(a.runnerPID, runner.CompileMsg{Source: req.Source})
	if err != nil {
		a.writeError(w, "Runner unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	result := res.(runner.CompileResult)

	if result.Err != nil {
		a.writeJSONStatus(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"valid": false,
			"error": describeError(result.Err),
		})
		return
	}

	a.writeJSON(w, map[string]interface{}{
		"valid":      true,
		"statements": len(result.Program.Statements),
		"warnings":   unknownCalls(result.Unknown),
	})
}

func (a *APIActor) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if !a.decode(w, r, &req) {
		return
	}
	if req.Source == "" && req.Name == "" {
		a.writeError(w, "Either source or name is required", http.StatusBadRequest)
		return
	}
	history, ok := a.parseBars(w, req.Bars)
	if !ok {
		return
	}

	a.run(w, runner.RunScriptMsg{Name: req.Name, Source: req.Source, Bars: history, Inputs: req.Inputs})
}

func (a *APIActor) handleRunScript(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}
	history, ok := a.parseBars(w, req.Bars)
	if !ok {
		return
	}

	a.run(w, runner.RunScriptMsg{Name: chi.URLParam(r, "name"), Bars: history, Inputs: req.Inputs})
}

func (a *APIActor) run(w http.ResponseWriter, msg runner.RunScriptMsg) {
	res, err := a.request(a.runnerPID, msg)
	if err != nil {
		a.writeError(w, "Runner unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	result := res.(runner.RunResult)

	if result.Err != nil {
		code := http.StatusUnprocessableEntity
		if errors.Is(result.Err, runner.ErrScriptNotFound) {
			code = http.StatusNotFound
		}
		body := map[string]interface{}{"error": describeError(result.Err)}
		if result.LastGood != nil {
			body["last_good"] = result.LastGood
		}
		a.writeJSONStatus(w, code, body)
		return
	}

	body := map[string]interface{}{"output": result.Output}
	if result.Run != nil {
		body["run_id"] = result.Run.ID
		body["duration_ms"] = result.Run.DurationMS
	}
	a.writeJSON(w, body)
}

func (a *APIActor) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	res, err := a.request(a.runnerPID, runner.GetLogsMsg{Limit: limit})
	if err != nil {
		a.writeError(w, "Runner unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	a.writeJSON(w, map[string]interface{}{"logs": res.(runner.LogsResponseMsg).Logs})
}

// Script handlers
func (a *APIActor) handleListScripts(w http.ResponseWriter, r *http.Request) {
	scripts, err := a.db.ListScripts()
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to list scripts")
		a.writeError(w, "Failed to list scripts", http.StatusInternalServerError)
		return
	}
	if scripts == nil {
		scripts = []database.Script{}
	}
	a.writeJSON(w, map[string]interface{}{"scripts": scripts})
}

func (a *APIActor) handleGetScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s, err := a.db.GetScript(name)
	if errors.Is(err, database.ErrNotFound) {
		a.writeError(w, "Script not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("script", name).Msg("Failed to load script")
		a.writeError(w, "Failed to load script", http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, s)
}

func (a *APIActor) handleSaveScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req saveScriptRequest
	if !a.decode(w, r, &req) {
		return
	}

	res, err := a.request(a.runnerPID, runner.CompileMsg{Source: req.Source})
	if err != nil {
		a.writeError(w, "Runner unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	compiled := res.(runner.CompileResult)
	if compiled.Err != nil {
		a.writeJSONStatus(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error": describeError(compiled.Err),
		})
		return
	}

	if err := a.db.SaveScript(name, req.Source); err != nil {
		a.logger.Error().Err(err).Str("script", name).Msg("Failed to save script")
		a.writeError(w, "Failed to save script", http.StatusInternalServerError)
		return
	}

	a.logger.Info().Str("script", name).Msg("Script saved")
	a.writeJSON(w, map[string]interface{}{
		"name":     name,
		"status":   "saved",
		"warnings": unknownCalls(compiled.Unknown),
	})
}

func (a *APIActor) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	err := a.db.DeleteScript(name)
	if errors.Is(err, database.ErrNotFound) {
		a.writeError(w, "Script not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("script", name).Msg("Failed to delete script")
		a.writeError(w, "Failed to delete script", http.StatusInternalServerError)
		return
	}

	a.logger.Info().Str("script", name).Msg("Script deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *APIActor) handlePushBars(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req pushBarsRequest
	if !a.decode(w, r, &req) {
		return
	}
	history, ok := a.parseBars(w, req.Bars)
	if !ok {
		return
	}
	if len(history) == 0 {
		a.writeError(w, "At least one bar is required", http.StatusBadRequest)
		return
	}

	var resp runner.PushBarResponse
	for _, b := range history {
		res, err := a.request(a.runnerPID, runner.PushBarMsg{Name: name, Bar: b})
		if err != nil {
			a.writeError(w, "Runner unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		resp = res.(runner.PushBarResponse)
	}

	if req.Run {
		a.run(w, runner.RunScriptMsg{Name: name})
		return
	}
	a.writeJSON(w, map[string]interface{}{"script": name, "bars": resp.Count})
}

func (a *APIActor) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	res, err := a.request(a.runnerPID, runner.GetLastOutputMsg{Name: name})
	if err != nil {
		a.writeError(w, "Runner unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	last := res.(runner.LastOutputResponse)
	if !last.Found {
		a.writeError(w, "No output for script", http.StatusNotFound)
		return
	}
	a.writeJSON(w, last.Output)
}

// Input override handlers
func (a *APIActor) handleGetInputs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	res, err := a.request(a.settingsPID, settings.GetInputsMsg{Script: name})
	if err != nil {
		a.writeError(w, "Settings unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	resp := res.(settings.InputsResponse)
	if resp.Err != nil {
		a.writeError(w, resp.Err.Error(), http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, map[string]interface{}{"script": name, "inputs": resp.Values})
}

func (a *APIActor) handleSetInputs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var values map[string]float64
	if !a.decode(w, r, &values) {
		return
	}

	for title, value := range values {
		res, err := a.request(a.settingsPID, settings.SetInputMsg{Script: name, Title: title, Value: value})
		if err != nil {
			a.writeError(w, "Settings unavailable: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if resp := res.(settings.SetInputResponse); resp.Err != nil {
			a.writeError(w, resp.Err.Error(), http.StatusBadRequest)
			return
		}
	}

	a.logger.Info().Str("script", name).Int("count", len(values)).Msg("Input overrides updated")
	a.writeJSON(w, map[string]interface{}{"script": name, "updated": len(values)})
}

func (a *APIActor) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := a.db.RecentRuns(name, limit)
	if err != nil {
		a.logger.Error().Err(err).Str("script", name).Msg("Failed to list runs")
		a.writeError(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	a.writeJSON(w, map[string]interface{}{"script": name, "runs": runs})
}

func (a *APIActor) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	a.hub.Register(conn, r.URL.Query().Get("script"))
}
