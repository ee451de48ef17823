package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webagents/api/schemas"
	"github.com/xkilldash9x/webagents/internal/config"
	"github.com/xkilldash9x/webagents/internal/llmclient"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Allows replacing the LLM in tests.
var newLLMClient = func(cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	return llmclient.NewRouterFromConfig(cfg, logger)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// newRun starts a run record for agent.
func newRun(agent, goal string) *schemas.AgentRun {
	return &schemas.AgentRun{
		ID:        uuid.NewString(),
		Agent:     agent,
		Goal:      goal,
		StartedAt: time.Now(),
	}
}

// finishRun fills in the outcome of run, attaching result as its details.
func finishRun(run *schemas.AgentRun, status schemas.RunStatus, answer string, score float64, result any) {
	run.Status = status
	run.FinalAnswer = answer
	run.Score = score
	run.FinishedAt = time.Now()
	if data, err := json.Marshal(result); err == nil {
		run.Details = data
	}
}

// saveRun stores run when a database is configured. Failures are logged and
// never fail the command.
func saveRun(ctx context.Context, cfg *config.Config, logger *zap.Logger, run *schemas.AgentRun) {
	if cfg.Database.URL == "" {
		return
	}
	// The run is saved even when ctx was canceled mid-run.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	s, cleanup, err := runStoreProvider.Create(saveCtx, cfg)
	if err != nil {
		logger.Warn("Run store unavailable, result not persisted", zap.Error(err))
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := s.SaveRun(saveCtx, run); err != nil {
		logger.Warn("Failed to persist run", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	logger.Info("Run persisted", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
}

// runStatus maps the error returned by an agent to a final status.
func runStatus(err error, onSuccess schemas.RunStatus) schemas.RunStatus {
	switch {
	case err == nil:
		return onSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return schemas.RunCanceled
	default:
		return schemas.RunFailed
	}
}
