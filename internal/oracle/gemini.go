package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

type GeminiOracle struct {
	client      *genai.Client
	model       string
	temperature float64
	logger      *zap.Logger
}

func NewGeminiOracle(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger) (*GeminiOracle, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiOracle{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

func (o *GeminiOracle) Complete(ctx context.Context, req Request) (*Completion, error) {
	temperature := float32(o.temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if len(req.Tools) > 0 {
		tool := &genai.Tool{}
		for _, spec := range req.Tools {
			tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  toGeminiSchema(spec.Parameters),
			})
		}
		cfg.Tools = []*genai.Tool{tool}
	}

	resp, err := o.client.Models.GenerateContent(ctx, o.model, toGeminiContents(req.Messages), cfg)
	if err != nil {
		o.logger.Error("Failed to get Gemini response", zap.Error(err))
		return nil, unavailable("gemini", err)
	}
	completion, err := fromGeminiResponse(resp)
	if err != nil {
		return nil, unavailable("gemini", err)
	}
	return completion, nil
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) (*Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("empty candidates")
	}

	completion := &Completion{}
	for _, part := range resp.Candidates[0].Content.Parts {
		switch {
		case part.FunctionCall != nil:
			id := part.FunctionCall.ID
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				return nil, fmt.Errorf("encode function call args: %w", err)
			}
			if part.FunctionCall.Args == nil {
				args = json.RawMessage(`{}`)
			}
			completion.ToolCalls = append(completion.ToolCalls, models.ToolCall{
				ID:   id,
				Name: part.FunctionCall.Name,
				Args: args,
			})
		case part.Text != "" && !part.Thought:
			completion.Content += part.Text
		}
	}
	return completion, nil
}

// toGeminiContents maps the conversation onto user and model turns.
// Consecutive tool results are folded into one user turn.
func toGeminiContents(msgs []models.Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			continue
		case models.RoleTool:
			part := &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       m.ToolCallID,
				Name:     m.Name,
				Response: toolResponse(m.Content),
			}}
			if n := len(out); n > 0 && out[n-1].Role == "user" && out[n-1].Parts[0].FunctionResponse != nil {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
		case models.RoleAssistant:
			content := &genai.Content{Role: "model"}
			if m.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				var args map[string]any
				if err := json.Unmarshal(call.Args, &args); err != nil {
					args = map[string]any{}
				}
				content.Parts = append(content.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: args,
				}})
			}
			if len(content.Parts) > 0 {
				out = append(out, content)
			}
		default:
			out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return out
}

// toolResponse wraps a tool result; Gemini requires an object
func toolResponse(content string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err == nil && obj != nil {
		return obj
	}
	var v any
	if err := json.Unmarshal([]byte(content), &v); err == nil {
		return map[string]any{"result": v}
	}
	return map[string]any{"result": content}
}

func toGeminiSchema(def jsonschema.Definition) *genai.Schema {
	schema := &genai.Schema{
		Type:        geminiType(def.Type),
		Description: def.Description,
		Enum:        def.Enum,
		Required:    def.Required,
	}
	if len(def.Properties) > 0 {
		schema.Properties = make(map[string]*genai.Schema, len(def.Properties))
		for name, prop := range def.Properties {
			schema.Properties[name] = toGeminiSchema(prop)
		}
	}
	if def.Items != nil {
		schema.Items = toGeminiSchema(*def.Items)
	}
	return schema
}

func geminiType(t jsonschema.DataType) genai.Type {
	switch t {
	case jsonschema.Object:
		return genai.TypeObject
	case jsonschema.Array:
		return genai.TypeArray
	case jsonschema.Number:
		return genai.TypeNumber
	case jsonschema.Integer:
		return genai.TypeInteger
	case jsonschema.Boolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
