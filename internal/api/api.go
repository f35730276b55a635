package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/chartscript/internal/metrics"
	"github.com/arijanluiken/chartscript/internal/runner"
	"github.com/arijanluiken/chartscript/pkg/config"
	"github.com/arijanluiken/chartscript/pkg/database"
)

// Messages for API actor communication
type (
	StartServerMsg struct{}
	StopServerMsg  struct{}
	StatusMsg      struct{}
)

// APIActor provides REST API and WebSocket endpoints
type APIActor struct {
	config      *config.Config
	db          *database.DB
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	logger      zerolog.Logger
	server      *http.Server
	router      chi.Router
	wsUpgrader  websocket.Upgrader
	hub         *Hub
	engine      *actor.Engine
	runnerPID   *actor.PID
	settingsPID *actor.PID
	published   int
}

// New creates a new API actor. Script runs go to runnerPID and input overrides to
// settingsPID. m and gatherer may be nil.
func New(cfg *config.Config, db *database.DB, m *metrics.Metrics, gatherer prometheus.Gatherer,
	runnerPID, settingsPID *actor.PID, logger zerolog.Logger) *APIActor {
	return &APIActor{
		config:      cfg,
		db:          db,
		metrics:     m,
		gatherer:    gatherer,
		logger:      logger,
		hub:         NewHub(m, logger),
		runnerPID:   runnerPID,
		settingsPID: settingsPID,
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow all origins for development
				return true
			},
		},
	}
}

// Receive handles incoming messages
func (a *APIActor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		a.onStarted(ctx)
	case actor.Stopped:
		a.onStopped(ctx)
	case StartServerMsg:
		a.onStartServer(ctx)
	case StopServerMsg:
		a.onStopServer(ctx)
	case StatusMsg:
		a.onStatus(ctx)
	case runner.OutputPublishedMsg:
		a.onOutputPublished(msg)
	default:
		a.logger.Debug().
			Str("message_type", fmt.Sprintf("%T", msg)).
			Msg("Received message")
	}
}

func (a *APIActor) onStarted(ctx *actor.Context) {
	a.logger.Info().Msg("API actor started")

	a.engine = ctx.Engine()
	if a.runnerPID != nil {
		ctx.Send(a.runnerPID, runner.SubscribeMsg{PID: ctx.PID()})
	}

	// Auto-start the server
	ctx.Send(ctx.PID(), StartServerMsg{})
}

func (a *APIActor) onStopped(ctx *actor.Context) {
	a.logger.Info().Msg("API actor stopped")

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.server.Shutdown(shutdownCtx)
	}
}

func (a *APIActor) onStartServer(ctx *actor.Context) {
	a.logger.Info().Int("port", a.config.API.Port).Msg("Starting API server")

	a.setupRouter()

	a.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", a.config.API.Port),
		Handler:     a.router,
		ReadTimeout: a.config.API.Timeout,
	}

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error().Err(err).Msg("API server error")
		}
	}()

	a.logger.Info().Msg("API server started successfully")
}

func (a *APIActor) onStopServer(ctx *actor.Context) {
	if a.server == nil {
		return
	}

	a.logger.Info().Msg("Stopping API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("Error stopping API server")
	} else {
		a.logger.Info().Msg("API server stopped successfully")
	}
	a.server = nil
}

func (a *APIActor) onStatus(ctx *actor.Context) {
	status := map[string]interface{}{
		"server_running":    a.server != nil,
		"port":              a.config.API.Port,
		"timestamp":         time.Now(),
		"websocket_clients": a.hub.ClientCount(),
		"published_outputs": a.published,
	}

	ctx.Respond(status)
}

// outputEvent is the websocket payload for one finished run
type outputEvent struct {
	Type   string      `json:"type"`
	Script string      `json:"script"`
	Output interface{} `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func (a *APIActor) onOutputPublished(msg runner.OutputPublishedMsg) {
	event := outputEvent{Type: "output", Script: msg.Name, Error: msg.Error}
	if msg.Output != nil {
		event.Output = msg.Output
	}

	payload, err := json.Marshal(event)
	if err != nil {
		a.logger.Error().Err(err).Str("script", msg.Name).Msg("Failed to encode output event")
		return
	}

	a.published++
	a.hub.Broadcast(msg.Name, payload)
}

func (a *APIActor) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)

	// CORS for development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

			if r.Method == "OPTIONS" {
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(a.config.API.Timeout))

		// Health check
		r.Get("/health", a.handleHealth)

		r.Post("/compile", a.handleCompile)
		r.Post("/run", a.handleRun)
		r.Get("/logs", a.handleGetLogs)

		// Script routes
		r.Route("/scripts", func(r chi.Router) {
			r.Get("/", a.handleListScripts)
			r.Get("/{name}", a.handleGetScript)
			r.Put("/{name}", a.handleSaveScript)
			r.Delete("/{name}", a.handleDeleteScript)
			r.Post("/{name}/run", a.handleRunScript)
			r.Post("/{name}/bars", a.handlePushBars)
			r.Get("/{name}/output", a.handleGetOutput)
			r.Get("/{name}/inputs", a.handleGetInputs)
			r.Put("/{name}/inputs", a.handleSetInputs)
			r.Get("/{name}/runs", a.handleGetRuns)
		})
	})

	// WebSocket endpoint
	r.HandleFunc("/ws", a.handleWebSocket)

	if a.gatherer != nil {
		r.Handle("/metrics", metrics.Handler(a.gatherer))
	}

	a.router = r
}

// requestLogger logs each request through the actor's zerolog logger
func (a *APIActor) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()

		next.ServeHTTP(ww, r)

		a.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Dur("elapsed", time.Since(started)).
			Msg("HTTP request")
	})
}

// request sends msg to pid and waits for the reply
func (a *APIActor) request(pid *actor.PID, msg interface{}) (interface{}, error) {
	if a.engine == nil || pid == nil {
		return nil, fmt.Errorf("actor system not ready")
	}
	return a.engine.Request(pid, msg, a.requestTimeout()).Result()
}

func (a *APIActor) requestTimeout() time.Duration {
	if a.config.API.Timeout > 0 {
		return a.config.API.Timeout
	}
	return 5 * time.Second
}
