package agent

import (
	"context"
	"fmt"

	"github.com/xaenox/aiva/internal/models"
	"go.uber.org/zap"
)

// AnalysisHandler answers questions about recorded data. Its runner can only
// hold a read-only toolset.
type AnalysisHandler struct {
	runner *Runner
	logger *zap.Logger
}

func NewAnalysisHandler(runner *Runner, logger *zap.Logger) (*AnalysisHandler, error) {
	if !runner.tools.ReadOnly() {
		return nil, fmt.Errorf("%w: analysis handler needs a read-only toolset", models.ErrConfig)
	}
	return &AnalysisHandler{runner: runner, logger: logger}, nil
}

func (h *AnalysisHandler) Handle(ctx context.Context, prompt string, history []models.Message) (*Result, error) {
	run, err := h.runner.Run(ctx, systemPrompt(ctx, analysisPrompt), withPrompt(history, prompt))
	if err != nil {
		return nil, err
	}

	result := &Result{Route: models.RouteAnalysis}
	result.collect(run)

	h.logger.Debug("Analysis finished",
		zap.Int("tool_calls", len(run.Invocations)),
		zap.Bool("structured", result.HasSummary))
	return result, nil
}
