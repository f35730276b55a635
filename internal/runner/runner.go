package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/chartscript/internal/metrics"
	"github.com/arijanluiken/chartscript/internal/script"
	"github.com/arijanluiken/chartscript/internal/settings"
	"github.com/arijanluiken/chartscript/pkg/bars"
	"github.com/arijanluiken/chartscript/pkg/config"
	"github.com/arijanluiken/chartscript/pkg/database"
)

// ScriptExt is the file extension of scripts loaded from the script directory
const ScriptExt = ".pine"

const (
	maxCachedPrograms = 128
	maxLogs           = 100
)

// ErrScriptNotFound is returned when a named script is neither stored nor on disk
var ErrScriptNotFound = errors.New("script not found")

// Messages for runner actor communication
type (
	// RunScriptMsg executes a script. Source wins over Name lookup; Bars are ordered
	// oldest to newest and fall back to the bars pushed for Name. Nil Inputs are
	// loaded from the settings actor.
	RunScriptMsg struct {
		Name   string
		Source string
		Bars   []bars.Bar
		Inputs map[string]float64
	}

	PushBarMsg struct {
		Name string
		Bar  bars.Bar
	}

	// OutputPublishedMsg is sent to subscribers after every named run
	OutputPublishedMsg struct {
		Name   string
		Output *script.Output
		Error  string
	}

	CompileMsg       struct{ Source string }
	GetLastOutputMsg struct{ Name string }
	SubscribeMsg     struct{ PID *actor.PID }
	StatusMsg        struct{}
	GetLogsMsg       struct{ Limit int }
)

// Responses from the runner actor
type (
	LastOutputResponse struct {
		Output *script.Output
		Found  bool
	}

	PushBarResponse struct {
		Count   int
		Evicted bool
	}

	LogsResponseMsg struct{ Logs []RunLog }
)

// RunResult answers RunScriptMsg. On failure Err is set and LastGood carries the last
// successful output of the same script, if any.
type RunResult struct {
	Name     string
	Output   *script.Output
	LastGood *script.Output
	Err      error
	Run      *database.Run
}

// CompileResult answers CompileMsg
type CompileResult struct {
	Program *script.Program
	Unknown []*script.UnknownFunctionError
	Err     error
}

// RunLog is one entry of the runner's in-memory run log
type RunLog struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Script    string    `json:"script"`
	Message   string    `json:"message"`
}

// Runner compiles and executes scripts. All runs are serialized through its mailbox.
type Runner struct {
	config      *config.Config
	db          *database.DB
	metrics     *metrics.Metrics
	logger      zerolog.Logger
	settingsPID *actor.PID
	subscribers []*actor.PID

	programs map[string]*script.Program
	lastGood map[string]*script.Output
	history  map[string]*bars.Ring
	logs     []RunLog
}

// New creates a new runner. db and m may be nil.
func New(cfg *config.Config, db *database.DB, m *metrics.Metrics, settingsPID *actor.PID, logger zerolog.Logger) *Runner {
	return &Runner{
		config:      cfg,
		db:          db,
		metrics:     m,
		logger:      logger,
		settingsPID: settingsPID,
		programs:    make(map[string]*script.Program),
		lastGood:    make(map[string]*script.Output),
		history:     make(map[string]*bars.Ring),
		logs:        make([]RunLog, 0),
	}
}

// Receive handles incoming messages
func (r *Runner) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		r.logger.Info().
			Str("script_dir", r.config.Script.Dir).
			Int("max_bars", r.config.Script.MaxBars).
			Msg("Runner actor started")
	case actor.Stopped:
		r.logger.Info().Msg("Runner actor stopped")
	case actor.Initialized:
		r.logger.Debug().Msg("Runner actor initialized")
	case RunScriptMsg:
		r.onRunScript(ctx, msg)
	case CompileMsg:
		ctx.Respond(r.Compile(msg.Source))
	case GetLastOutputMsg:
		out, ok := r.lastGood[msg.Name]
		ctx.Respond(LastOutputResponse{Output: out, Found: ok})
	case PushBarMsg:
		ctx.Respond(r.PushBar(msg.Name, msg.Bar))
	case SubscribeMsg:
		r.subscribers = append(r.subscribers, msg.PID)
	case StatusMsg:
		r.onStatus(ctx)
	case GetLogsMsg:
		r.onGetLogs(ctx, msg)
	default:
		r.logger.Warn().
			Str("message_type", fmt.Sprintf("%T", msg)).
			Msg("Received unknown message")
	}
}

func (r *Runner) onRunScript(ctx *actor.Context, msg RunScriptMsg) {
	if msg.Inputs == nil && msg.Name != "" && r.settingsPID != nil {
		msg.Inputs = r.requestInputs(ctx, msg.Name)
	}

	result := r.Run(msg)
	ctx.Respond(result)

	if msg.Name == "" {
		return
	}
	published := OutputPublishedMsg{Name: msg.Name, Output: result.Output}
	if result.Err != nil {
		published.Error = result.Err.Error()
	}
	for _, pid := range r.subscribers {
		ctx.Send(pid, published)
	}
}

func (r *Runner) requestInputs(ctx *actor.Context, name string) map[string]float64 {
	res, err := ctx.Request(r.settingsPID, settings.GetInputsMsg{Script: name}, 5*time.Second).Result()
	if err != nil {
		r.logger.Error().Err(err).Str("script", name).Msg("Failed to load input overrides")
		return nil
	}
	if resp, ok := res.(settings.InputsResponse); ok && resp.Err == nil {
		return resp.Values
	}
	return nil
}

// Run compiles and executes one script over its bars
func (r *Runner) Run(msg RunScriptMsg) RunResult {
	result := RunResult{Name: msg.Name}
	if msg.Name != "" {
		result.LastGood = r.lastGood[msg.Name]
	}

	source, err := r.resolveSource(msg)
	if err != nil {
		result.Err = err
		return result
	}

	compiled := r.Compile(source)
	if compiled.Err != nil {
		result.Err = compiled.Err
		r.addLog("error", msg.Name, compiled.Err.Error())
		return result
	}

	buf := r.buffer(msg)
	logger := r.logger.With().Str("script", msg.Name).Logger()
	in := script.NewInterpreter(compiled.Program, buf, logger)
	in.SetInputValues(msg.Inputs)

	started := time.Now()
	out, err := in.Execute()
	elapsed := time.Since(started)

	run := &database.Run{
		Script:     msg.Name,
		BarCount:   buf.Count(),
		DurationMS: float64(elapsed.Microseconds()) / 1000,
	}

	status := "ok"
	switch {
	case err != nil:
		status = "error"
		run.Error = err.Error()
		result.Err = err
		r.addLog("error", msg.Name, err.Error())
		r.logger.Warn().Err(err).Str("script", msg.Name).Msg("Script run failed")
	case out.Error != "":
		status = "no_data"
		run.Error = out.Error
		result.Output = out
		r.addLog("warning", msg.Name, out.Error)
	default:
		run.PlotCount = len(out.Plots)
		run.SignalCount = len(out.Signals)
		result.Output = out
		if msg.Name != "" {
			r.lastGood[msg.Name] = out
			result.LastGood = out
		}
		r.addLog("info", msg.Name, fmt.Sprintf("Executed over %d bars: %d plots, %d signals",
			buf.Count(), len(out.Plots), len(out.Signals)))
	}

	if r.metrics != nil {
		r.metrics.ObserveRun(status, buf.Count(), elapsed)
		if out != nil {
			for _, s := range out.Signals {
				r.metrics.SignalsTotal.WithLabelValues(s.Direction.String()).Inc()
			}
		}
	}

	if msg.Name != "" && r.db != nil {
		if err := r.db.RecordRun(run); err != nil {
			r.logger.Error().Err(err).Str("script", msg.Name).Msg("Failed to record run")
		} else {
			result.Run = run
		}
	}

	r.logger.Debug().
		Str("script", msg.Name).
		Str("status", status).
		Int("bars", buf.Count()).
		Dur("elapsed", elapsed).
		Msg("Script run finished")

	return result
}

// Compile parses source, reusing a cached program for identical source
func (r *Runner) Compile(source string) CompileResult {
	key := sourceKey(source)
	if program, ok := r.programs[key]; ok {
		return CompileResult{Program: program, Unknown: script.UnknownCalls(program)}
	}

	program, err := script.Compile(source)
	if err != nil {
		r.countCompile("syntax_error")
		return CompileResult{Err: err}
	}
	r.countCompile("ok")

	if len(r.programs) >= maxCachedPrograms {
		r.programs = make(map[string]*script.Program)
	}
	r.programs[key] = program
	if r.metrics != nil {
		r.metrics.ProgramCacheSize.Set(float64(len(r.programs)))
	}

	return CompileResult{Program: program, Unknown: script.UnknownCalls(program)}
}

func (r *Runner) countCompile(result string) {
	if r.metrics != nil {
		r.metrics.CompilesTotal.WithLabelValues(result).Inc()
	}
}

func sourceKey(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// PushBar appends a bar to the named script's history. A bar with the same timestamp
// as the newest one replaces it.
func (r *Runner) PushBar(name string, b bars.Bar) PushBarResponse {
	ring, ok := r.history[name]
	if !ok {
		ring = bars.NewRing(r.maxBars())
		r.history[name] = ring
	}

	if ring.Count() > 0 && ring.At(0).Timestamp.Equal(b.Timestamp) {
		ring.ReplaceNewest(b)
		return PushBarResponse{Count: ring.Count()}
	}
	evicted := ring.Push(b)
	return PushBarResponse{Count: ring.Count(), Evicted: evicted}
}

// buffer returns the newest max_bars bars of the run
func (r *Runner) buffer(msg RunScriptMsg) bars.Buffer {
	if len(msg.Bars) == 0 {
		if ring, ok := r.history[msg.Name]; ok {
			return ring.Snapshot()
		}
		return bars.Slice{}
	}
	return bars.Newest(bars.FromChronological(msg.Bars), r.maxBars())
}

func (r *Runner) maxBars() int {
	if r.config.Script.MaxBars > 0 {
		return r.config.Script.MaxBars
	}
	return 5000
}

// resolveSource finds the script text: inline source, then the database, then
// <script.dir>/<name>.pine
func (r *Runner) resolveSource(msg RunScriptMsg) (string, error) {
	if msg.Source != "" {
		return msg.Source, nil
	}
	if msg.Name == "" {
		return "", fmt.Errorf("either source or name is required")
	}

	if r.db != nil {
		s, err := r.db.GetScript(msg.Name)
		if err == nil {
			return s.Source, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return "", err
		}
	}

	if r.config.Script.Dir != "" && filepath.Base(msg.Name) == msg.Name {
		data, err := os.ReadFile(filepath.Join(r.config.Script.Dir, msg.Name+ScriptExt))
		if err == nil {
			return string(data), nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrScriptNotFound, msg.Name)
}

func (r *Runner) onStatus(ctx *actor.Context) {
	status := map[string]interface{}{
		"cached_programs":     len(r.programs),
		"scripts_with_output": len(r.lastGood),
		"histories":           len(r.history),
		"subscribers":         len(r.subscribers),
		"timestamp":           time.Now(),
	}

	ctx.Respond(status)
}

func (r *Runner) onGetLogs(ctx *actor.Context, msg GetLogsMsg) {
	ctx.Respond(LogsResponseMsg{Logs: r.Logs(msg.Limit)})
}

// Logs returns up to limit of the most recent log entries, oldest first
func (r *Runner) Logs(limit int) []RunLog {
	if limit <= 0 || limit > len(r.logs) {
		limit = len(r.logs)
	}
	out := make([]RunLog, limit)
	copy(out, r.logs[len(r.logs)-limit:])
	return out
}

// addLog adds a log entry to the runner's log buffer
func (r *Runner) addLog(level, name, message string) {
	r.logs = append(r.logs, RunLog{
		Timestamp: time.Now(),
		Level:     level,
		Script:    name,
		Message:   message,
	})

	if len(r.logs) > maxLogs {
		// Keep the most recent maxLogs entries
		r.logs = r.logs[len(r.logs)-maxLogs:]
	}
}
