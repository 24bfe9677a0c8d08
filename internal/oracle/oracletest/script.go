// Package oracletest provides a scripted oracle for tests.
package oracletest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/oracle"
)

// Step produces one completion
type Step func(req oracle.Request) (*oracle.Completion, error)

// Reply answers with final text and no tool calls
func Reply(text string) Step {
	return func(oracle.Request) (*oracle.Completion, error) {
		return &oracle.Completion{Content: text}, nil
	}
}

// Call asks for one tool call with JSON arguments
func Call(name, args string) Step {
	return Calls(models.ToolCall{Name: name, Args: json.RawMessage(args)})
}

// Calls asks for several tool calls in one turn
func Calls(calls ...models.ToolCall) Step {
	return func(oracle.Request) (*oracle.Completion, error) {
		return &oracle.Completion{ToolCalls: append([]models.ToolCall(nil), calls...)}, nil
	}
}

// Fail makes the oracle unavailable for this step
func Fail(reason string) Step {
	return func(oracle.Request) (*oracle.Completion, error) {
		return nil, fmt.Errorf("%w: %s", models.ErrOracleUnavailable, reason)
	}
}

// Script replays steps in order and records every request
type Script struct {
	mu       sync.Mutex
	steps    []Step
	requests []oracle.Request
	ids      int
}

func New(steps ...Step) *Script {
	return &Script{steps: steps}
}

func (s *Script) Complete(ctx context.Context, req oracle.Request) (*oracle.Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		return nil, fmt.Errorf("%w: script exhausted", models.ErrOracleUnavailable)
	}
	step := s.steps[0]
	s.steps = s.steps[1:]

	completion, err := step(req)
	if err != nil {
		return nil, err
	}
	for i := range completion.ToolCalls {
		if completion.ToolCalls[i].ID == "" {
			s.ids++
			completion.ToolCalls[i].ID = fmt.Sprintf("call_%d", s.ids)
		}
	}
	return completion, nil
}

// Requests returns the requests seen so far
func (s *Script) Requests() []oracle.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]oracle.Request(nil), s.requests...)
}

// Remaining is the number of unused steps
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}
