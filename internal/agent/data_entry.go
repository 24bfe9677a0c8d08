package agent

import (
	"context"

	"github.com/xaenox/aiva/internal/models"
	"go.uber.org/zap"
)

// TransactionDetector tells whether a prompt plainly describes a transaction
type TransactionDetector interface {
	LooksLikeTransaction(prompt string) bool
}

// DataEntryHandler records, updates and deletes transactions. A turn that
// ends without any store mutation on a prompt that describes one is retried
// with an amended instruction.
type DataEntryHandler struct {
	runner     *Runner
	detector   TransactionDetector
	maxRetries int
	logger     *zap.Logger
}

func NewDataEntryHandler(runner *Runner, detector TransactionDetector, maxRetries int, logger *zap.Logger) *DataEntryHandler {
	return &DataEntryHandler{
		runner:     runner,
		detector:   detector,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (h *DataEntryHandler) Handle(ctx context.Context, prompt string, history []models.Message) (*Result, error) {
	result := &Result{Route: models.RouteDataEntry}

	run, err := h.runner.Run(ctx, systemPrompt(ctx, dataEntryPrompt), withPrompt(history, prompt))
	if err != nil {
		return nil, err
	}
	result.collect(run)

	if run.MutationAttempted() || !h.detector.LooksLikeTransaction(prompt) {
		return result, nil
	}

	for attempt := 1; attempt <= h.maxRetries; attempt++ {
		h.logger.Info("No transaction recorded, retrying with amended instruction", zap.Int("attempt", attempt))

		msgs := append(run.Messages, models.Message{Role: models.RoleUser, Content: retryInstruction})
		run, err = h.runner.Run(ctx, systemPrompt(ctx, dataEntryPrompt), msgs)
		if err != nil {
			return nil, err
		}
		result.collect(run)
		if run.MutationAttempted() {
			return result, nil
		}
	}

	h.logger.Warn("Oracle answered without recording the transaction")
	result.Degraded = true
	return result, nil
}
