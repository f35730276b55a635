package settings

import (
	"fmt"
	"time"

	"github.com/anthdm/hollywood/actor"
	"github.com/rs/zerolog"

	"github.com/arijanluiken/chartscript/pkg/database"
)

// Messages for settings actor communication
type (
	GetInputsMsg struct{ Script string }
	SetInputMsg  struct {
		Script string
		Title  string
		Value  float64
	}
	StatusMsg struct{}

	// InputsResponse answers GetInputsMsg
	InputsResponse struct {
		Script string
		Values map[string]float64
		Err    error
	}

	// SetInputResponse answers SetInputMsg
	SetInputResponse struct {
		Err error
	}
)

// SettingsActor persists input() overrides per script. Values are keyed by input title
// and handed to the interpreter before each run.
type SettingsActor struct {
	db     *database.DB
	logger zerolog.Logger
	sets   int
}

// New creates a new settings actor
func New(db *database.DB, logger zerolog.Logger) *SettingsActor {
	return &SettingsActor{
		db:     db,
		logger: logger,
	}
}

// Receive handles incoming messages
func (s *SettingsActor) Receive(ctx *actor.Context) {
	switch msg := ctx.Message().(type) {
	case actor.Started:
		s.logger.Info().Msg("Settings actor started")
	case actor.Stopped:
		s.logger.Info().Msg("Settings actor stopped")
	case GetInputsMsg:
		ctx.Respond(s.Inputs(msg.Script))
	case SetInputMsg:
		ctx.Respond(s.SetInput(msg))
	case StatusMsg:
		s.onStatus(ctx)
	default:
		s.logger.Debug().
			Str("message_type", fmt.Sprintf("%T", msg)).
			Msg("Received message")
	}
}

func (s *SettingsActor) onStatus(ctx *actor.Context) {
	status := map[string]interface{}{
		"inputs_set": s.sets,
		"timestamp":  time.Now(),
	}

	ctx.Respond(status)
}

// Inputs returns the stored overrides of a script
func (s *SettingsActor) Inputs(script string) InputsResponse {
	values, err := s.db.InputValues(script)
	if err != nil {
		s.logger.Error().Err(err).Str("script", script).Msg("Error querying inputs")
		return InputsResponse{Script: script, Values: map[string]float64{}, Err: err}
	}
	return InputsResponse{Script: script, Values: values}
}

// SetInput stores one override
func (s *SettingsActor) SetInput(msg SetInputMsg) SetInputResponse {
	if msg.Script == "" || msg.Title == "" {
		return SetInputResponse{Err: fmt.Errorf("script and title are required")}
	}

	if err := s.db.SetInputValue(msg.Script, msg.Title, msg.Value); err != nil {
		s.logger.Error().Err(err).
			Str("script", msg.Script).
			Str("title", msg.Title).
			Float64("value", msg.Value).
			Msg("Failed to store input")
		return SetInputResponse{Err: fmt.Errorf("failed to store input: %w", err)}
	}
	s.sets++

	s.logger.Info().
		Str("script", msg.Script).
		Str("title", msg.Title).
		Float64("value", msg.Value).
		Msg("Input stored successfully")

	return SetInputResponse{}
}
