package oracle

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/pkg/config"
	"go.uber.org/zap"
)

type OpenAIOracle struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewOpenAIOracle(cfg config.OpenAIConfig, logger *zap.Logger) *OpenAIOracle {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAIOracle{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

func (o *OpenAIOracle) Complete(ctx context.Context, req Request) (*Completion, error) {
	request := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(req.System, req.Messages),
		MaxTokens:   o.maxTokens,
		Temperature: float32(o.temperature),
	}
	for _, spec := range req.Tools {
		request.Tools = append(request.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Parameters,
			},
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, request)
	if err != nil {
		o.logger.Error("Failed to get OpenAI response", zap.Error(err))
		return nil, unavailable("openai", err)
	}
	if len(resp.Choices) == 0 {
		return nil, unavailable("openai", errors.New("empty choices"))
	}

	msg := resp.Choices[0].Message
	completion := &Completion{Content: msg.Content}
	for _, call := range msg.ToolCalls {
		args := json.RawMessage(call.Function.Arguments)
		if !json.Valid(args) {
			// Keep malformed arguments as a JSON string so the tool reports them
			args, _ = json.Marshal(call.Function.Arguments)
		}
		completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: args,
		})
	}
	return completion, nil
}

func toOpenAIMessages(system string, msgs []models.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, call := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   call.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      call.Name,
					Arguments: string(call.Args),
				},
			})
		}
		out = append(out, msg)
	}
	return out
}
