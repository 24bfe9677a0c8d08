// Package agent runs the oracle tool loop for the two routes.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xaenox/aiva/internal/logger"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/oracle"
	"github.com/xaenox/aiva/internal/tools"
	"go.uber.org/zap"
)

// Invocation records one tool call and its outcome
type Invocation struct {
	Call     models.ToolCall
	Mutating bool
	Result   any
	Err      error
}

// Run is the outcome of one pass of the tool loop
type Run struct {
	Messages    []models.Message
	Invocations []Invocation
	FinalText   string
	Exhausted   bool
}

// MutationAttempted reports whether any mutating tool was called, successfully or not
func (r *Run) MutationAttempted() bool {
	for _, inv := range r.Invocations {
		if inv.Mutating {
			return true
		}
	}
	return false
}

type Runner struct {
	oracle   oracle.Oracle
	tools    *tools.Toolset
	timeout  time.Duration
	maxSteps int
	logger   *zap.Logger
}

func NewRunner(o oracle.Oracle, set *tools.Toolset, timeout time.Duration, maxSteps int, logger *zap.Logger) *Runner {
	if maxSteps <= 0 {
		maxSteps = 1
	}
	return &Runner{
		oracle:   o,
		tools:    set,
		timeout:  timeout,
		maxSteps: maxSteps,
		logger:   logger,
	}
}

// Run drives the oracle until it answers without tool calls or the step
// budget runs out. msgs is copied, never modified.
func (r *Runner) Run(ctx context.Context, system string, msgs []models.Message) (*Run, error) {
	run := &Run{Messages: append([]models.Message(nil), msgs...)}
	specs := r.tools.Specs()

	for step := 0; step < r.maxSteps; step++ {
		completion, err := r.complete(ctx, oracle.Request{
			System:   system,
			Messages: run.Messages,
			Tools:    specs,
		})
		if err != nil {
			return nil, err
		}

		run.Messages = append(run.Messages, models.Message{
			Role:      models.RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		if len(completion.ToolCalls) == 0 {
			run.FinalText = completion.Content
			return run, nil
		}

		for _, call := range completion.ToolCalls {
			inv, err := r.invoke(ctx, call)
			if err != nil {
				return nil, err
			}
			run.Invocations = append(run.Invocations, inv)
			run.Messages = append(run.Messages, models.Message{
				Role:       models.RoleTool,
				Content:    toolContent(inv),
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	r.logger.Warn("Tool loop hit the step limit", zap.Int("max_steps", r.maxSteps))
	run.Exhausted = true
	run.FinalText = models.LastContent(run.Messages[len(msgs):])
	return run, nil
}

func (r *Runner) complete(ctx context.Context, req oracle.Request) (*oracle.Completion, error) {
	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	completion, err := r.oracle.Complete(callCtx, req)
	if err != nil {
		if !errors.Is(err, models.ErrOracleUnavailable) {
			err = fmt.Errorf("%w: %v", models.ErrOracleUnavailable, err)
		}
		return nil, err
	}
	if completion == nil {
		return nil, fmt.Errorf("%w: empty completion", models.ErrOracleUnavailable)
	}
	return completion, nil
}

// invoke runs one tool. Only store and context failures are returned as
// errors; everything else goes back to the oracle.
func (r *Runner) invoke(ctx context.Context, call models.ToolCall) (Invocation, error) {
	inv := Invocation{Call: call}

	tool, ok := r.tools.Lookup(call.Name)
	if !ok {
		inv.Err = fmt.Errorf("%w: unknown tool %q", tools.ErrInvalidArguments, call.Name)
		r.logger.Warn("Oracle called a tool outside the toolset", zap.String("tool", call.Name))
		return inv, nil
	}
	inv.Mutating = tool.Mutating()

	result, err := tool.Call(ctx, call.Args)
	switch {
	case err == nil:
		inv.Result = result
		r.logger.Debug("Tool call succeeded", zap.String("tool", call.Name))
	case errors.Is(err, models.ErrStore), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.logger.Error("Tool call failed", zap.String("tool", call.Name), logger.SafeError(err))
		return inv, err
	default:
		inv.Err = err
		r.logger.Info("Tool call rejected", zap.String("tool", call.Name), logger.SafeError(err))
	}
	return inv, nil
}

func toolContent(inv Invocation) string {
	var payload any = inv.Result
	if inv.Err != nil {
		payload = map[string]any{"success": false, "error": inv.Err.Error()}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		data, _ = json.Marshal(map[string]any{"success": false, "error": "unencodable tool result"})
	}
	return string(data)
}
