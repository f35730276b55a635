package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/arijanluiken/chartscript/internal/api"
	"github.com/arijanluiken/chartscript/internal/metrics"
	"github.com/arijanluiken/chartscript/internal/runner"
	"github.com/arijanluiken/chartscript/internal/settings"
	"github.com/arijanluiken/chartscript/pkg/config"
	"github.com/arijanluiken/chartscript/pkg/database"
)

// Messages for supervisor actor communication
type (
	StartMessage  struct{}
	StopMessage   struct{}
	StatusMessage struct{}
	ErrorMessage  struct{ Error error }
)

// Supervisor manages all other actors in the system
type Supervisor struct {
	config        *config.Config
	logger        zerolog.Logger
	engine        *actor.Engine
	pid           *actor.PID
	db            *database.DB
	registry      *prometheus.Registry
	metrics       *metrics.Metrics
	settingsActor *actor.PID
	runnerActor   *actor.PID
	apiActor      *actor.PID
}

// New creates a new supervisor actor
func New(cfg *config.Config) *Supervisor {
	return &Supervisor{
		config: cfg,
		logger: log.With().Str("actor", "supervisor").Logger(),
	}
}

// Start initializes and starts the supervisor actor system
func (s *Supervisor) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting supervisor actor system")

	if s.config.Script.Dir != "" {
		if err := os.MkdirAll(s.config.Script.Dir, 0o755); err != nil {
			return fmt.Errorf("failed to create script directory: %w", err)
		}
	}

	// Initialize database
	db, err := database.New(s.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.NewMetrics(s.registry)

	// Create actor engine
	engine, err := actor.NewEngine(actor.NewEngineConfig())
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create actor engine: %w", err)
	}
	s.engine = engine

	// Spawn supervisor actor
	s.pid = engine.Spawn(func() actor.Receiver {
		return s
	}, "supervisor")

	// Send start message to supervisor
	engine.Send(s.pid, StartMessage{})

	s.logger.Info().Msg("Supervisor actor system started successfully")
	return nil
}

// Stop stops the child actors and the supervisor
func (s *Supervisor) Stop() {
	if s.engine == nil {
		return
	}

	s.logger.Info().Msg("Stopping supervisor actor system")
	s.engine.Send(s.pid, StopMessage{})
	s.engine.Stop(s.pid)
}

// Status asks the supervisor actor for a status snapshot
func (s *Supervisor) Status() (map[string]interface{}, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("supervisor not started")
	}

	res, err := s.engine.Request(s.pid, StatusMessage{}, 5*time.Second).Result()
	if err != nil {
		return nil, err
	}
	status, ok := res.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected status response %T", res)
	}
	return status, nil
}

// Receive handles incoming messages
func (s *Supervisor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		s.onStarted(ctx)
	case actor.Stopped:
		s.onStopped(ctx)
	case actor.Initialized:
		s.onInitialized(ctx)
	case StartMessage:
		s.onStart(ctx)
	case StopMessage:
		s.onStop(ctx)
	case StatusMessage:
		s.onStatus(ctx)
	case ErrorMessage:
		s.onError(ctx, msg)
	default:
		s.logger.Warn().
			Str("message_type", fmt.Sprintf("%T", msg)).
			Msg("Received unknown message")
	}
}

func (s *Supervisor) onStarted(ctx *actor.Context) {
	s.logger.Info().Msg("Supervisor actor started")
}

func (s *Supervisor) onStopped(ctx *actor.Context) {
	s.logger.Info().Msg("Supervisor actor stopped")
	if s.db != nil {
		s.db.Close()
	}
}

func (s *Supervisor) onInitialized(ctx *actor.Context) {
	s.logger.Debug().Msg("Supervisor actor initialized")
}

func (s *Supervisor) onStart(ctx *actor.Context) {
	s.logger.Info().Msg("Starting child actors")

	// Input overrides
	s.settingsActor = ctx.SpawnChild(func() actor.Receiver {
		return settings.New(s.db, s.logger.With().Str("actor", "settings").Logger())
	}, "settings")

	// Script runs
	s.runnerActor = ctx.SpawnChild(func() actor.Receiver {
		return runner.New(s.config, s.db, s.metrics, s.settingsActor,
			s.logger.With().Str("actor", "runner").Logger())
	}, "runner")

	// Start API actor
	s.apiActor = ctx.SpawnChild(func() actor.Receiver {
		return api.New(s.config, s.db, s.metrics, s.registry, s.runnerActor, s.settingsActor,
			s.logger.With().Str("actor", "api").Logger())
	}, "api")
}

func (s *Supervisor) onStop(ctx *actor.Context) {
	s.logger.Info().Msg("Stopping child actors")

	// Stop API actor first so no new runs arrive
	if s.apiActor != nil {
		ctx.Engine().Stop(s.apiActor)
		s.apiActor = nil
	}

	if s.runnerActor != nil {
		ctx.Engine().Stop(s.runnerActor)
		s.runnerActor = nil
	}

	if s.settingsActor != nil {
		ctx.Engine().Stop(s.settingsActor)
		s.settingsActor = nil
	}
}

func (s *Supervisor) onStatus(ctx *actor.Context) {
	status := map[string]interface{}{
		"timestamp":            time.Now(),
		"api_actor_alive":      s.apiActor != nil,
		"runner_actor_alive":   s.runnerActor != nil,
		"settings_actor_alive": s.settingsActor != nil,
	}

	s.logger.Info().Interface("status", status).Msg("Supervisor status")
	ctx.Respond(status)
}

func (s *Supervisor) onError(ctx *actor.Context, msg ErrorMessage) {
	s.logger.Error().Err(msg.Error).Msg("Received error from child actor")
}
