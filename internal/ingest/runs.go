package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"jobmatch-go/internal/config"
	"jobmatch-go/internal/constants"
	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/storage"
	"jobmatch-go/internal/storage/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// runRequest is the broker message dispatching one ingestion run.
type runRequest struct {
	RunID      string            `json:"run_id"`
	SourceName domain.SourceName `json:"source_name"`
}

// RunService creates, dispatches and tracks ingestion runs. With a broker
// configured, StartRun publishes and a consumer executes; without one, the
// run executes in-process. Either way the caller polls by run ID.
type RunService struct {
	store    *storage.MySQL
	mq       storage.MessageQueue
	pipeline *Pipeline
	sources  map[domain.SourceName]JobSource
	cfg      *config.RabbitMQConfig
	logger   zerolog.Logger
}

// NewRunService builds the service. mq may be nil.
func NewRunService(store *storage.MySQL, mq storage.MessageQueue, pipeline *Pipeline, sources map[domain.SourceName]JobSource, cfg *config.RabbitMQConfig, logger zerolog.Logger) *RunService {
	return &RunService{
		store:    store,
		mq:       mq,
		pipeline: pipeline,
		sources:  sources,
		cfg:      cfg,
		logger:   logger.With().Str("component", "run_service").Logger(),
	}
}

// Sources lists the configured connector names.
func (s *RunService) Sources() []domain.SourceName {
	out := make([]domain.SourceName, 0, len(s.sources))
	for name := range s.sources {
		out = append(out, name)
	}
	return out
}

// StartRun registers a run for the source and dispatches it. Returns the
// run ID the caller polls with.
func (s *RunService) StartRun(ctx context.Context, source domain.SourceName) (string, error) {
	if _, ok := s.sources[source]; !ok {
		return "", &domain.InputValidationError{
			Field:  "source_name",
			Reason: fmt.Sprintf("unknown source %q", source),
		}
	}

	runID := uuid.NewString()
	if err := s.store.CreateRun(ctx, runID, source); err != nil {
		return "", err
	}

	if s.mq != nil {
		msg := runRequest{RunID: runID, SourceName: source}
		if err := s.mq.PublishJSON(ctx, s.cfg.IngestExchange, s.cfg.IngestRoutingKey, msg, true); err != nil {
			// The run row stays PENDING; surfacing the error lets the
			// caller retry instead of polling a run nobody will execute.
			return "", fmt.Errorf("dispatch run %s: %w", runID, err)
		}
		return runID, nil
	}

	go func() {
		// Detached from the request context on purpose; a closed HTTP
		// connection must not cancel the run.
		s.Execute(context.Background(), runID, source)
	}()
	return runID, nil
}

// Execute runs the pipeline for a dispatched run and records the outcome.
func (s *RunService) Execute(ctx context.Context, runID string, source domain.SourceName) {
	log := s.logger.With().Str("run_id", runID).Str("source", string(source)).Logger()

	src, ok := s.sources[source]
	if !ok {
		log.Error().Msg("run references unknown source")
		_ = s.store.FinishRun(ctx, runID, constants.RunStatusFailed, constants.StageFailed, nil, "unknown source")
		return
	}
	if err := s.store.MarkRunStarted(ctx, runID); err != nil {
		log.Error().Err(err).Msg("failed to mark run started")
		return
	}

	onStage := func(stage string) {
		if err := s.store.UpdateRunStage(ctx, runID, stage); err != nil {
			log.Warn().Err(err).Str("stage", stage).Msg("failed to record run stage")
		}
	}
	summary, err := s.pipeline.Run(ctx, runID, src, onStage)
	if err != nil {
		log.Error().Err(err).Msg("ingestion run failed")
		_ = s.store.FinishRun(ctx, runID, constants.RunStatusFailed, constants.StageFailed, nil, err.Error())
		return
	}
	if err := s.store.FinishRun(ctx, runID, constants.RunStatusDone, constants.StageDone, summary, ""); err != nil {
		log.Error().Err(err).Msg("failed to record run completion")
	}
}

// GetRun returns the run row for polling.
func (s *RunService) GetRun(ctx context.Context, runID string) (*models.IngestRun, error) {
	return s.store.GetRun(ctx, runID)
}

// StartConsumer declares the broker topology and starts the run consumers.
// No-op without a broker.
func (s *RunService) StartConsumer(ctx context.Context) error {
	if s.mq == nil {
		return nil
	}
	if err := s.mq.EnsureExchange(s.cfg.IngestExchange, "direct", true); err != nil {
		return err
	}
	if err := s.mq.EnsureQueue(s.cfg.IngestQueue, true); err != nil {
		return err
	}
	if err := s.mq.BindQueue(s.cfg.IngestQueue, s.cfg.IngestExchange, s.cfg.IngestRoutingKey); err != nil {
		return err
	}
	return s.mq.Consume(ctx, s.cfg.IngestQueue, s.cfg.PrefetchCount, s.cfg.RunConsumerWorkers,
		func(ctx context.Context, body []byte) error {
			var msg runRequest
			if err := json.Unmarshal(body, &msg); err != nil {
				return fmt.Errorf("decode run request: %w", err)
			}
			s.Execute(ctx, msg.RunID, msg.SourceName)
			return nil
		})
}
