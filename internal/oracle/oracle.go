// Package oracle talks to the hosted language model. Providers are hidden
// behind Oracle so the handlers only see messages, tools and tool calls.
package oracle

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/pkg/config"
	"go.uber.org/zap"
)

// ToolSpec describes a callable tool to the model
type ToolSpec struct {
	Name        string
	Description string
	Parameters  jsonschema.Definition
}

// Request is one completion call. Messages excludes the system prompt.
type Request struct {
	System   string
	Messages []models.Message
	Tools    []ToolSpec
}

// Completion is the model's reply: final text, tool calls, or both
type Completion struct {
	Content   string
	ToolCalls []models.ToolCall
}

// Oracle is a chat model that may answer with tool calls.
// Every failure it returns wraps models.ErrOracleUnavailable.
type Oracle interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// New builds the oracle for the configured provider
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Oracle, error) {
	switch cfg.Oracle.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIOracle(cfg.OpenAI, logger), nil
	case config.ProviderGemini:
		return NewGeminiOracle(ctx, cfg.Gemini, logger)
	default:
		return nil, fmt.Errorf("%w: unknown oracle provider %q", models.ErrConfig, cfg.Oracle.Provider)
	}
}

func unavailable(provider string, err error) error {
	return fmt.Errorf("%w: %s: %v", models.ErrOracleUnavailable, provider, err)
}

// Func adapts a plain function to Oracle
type Func func(ctx context.Context, req Request) (*Completion, error)

func (f Func) Complete(ctx context.Context, req Request) (*Completion, error) {
	return f(ctx, req)
}
