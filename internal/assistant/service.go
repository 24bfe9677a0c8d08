// Package assistant is the prompt pipeline: classify, route, handle,
// reconcile, and keep the conversation thread.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xaenox/aiva/internal/agent"
	"github.com/xaenox/aiva/internal/classifier"
	"github.com/xaenox/aiva/internal/logger"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/oracle"
	"github.com/xaenox/aiva/internal/reconciler"
	"github.com/xaenox/aiva/internal/storage"
	"github.com/xaenox/aiva/internal/tools"
	"github.com/xaenox/aiva/pkg/config"
	"go.uber.org/zap"
)

const minPromptChars = 3

type Request struct {
	Prompt   string
	ThreadID string
	Context  models.RequestContext
}

type Service struct {
	threads    storage.ThreadStorage
	classifier classifier.Classifier
	handlers   map[models.Route]agent.Handler
	reconciler *reconciler.Reconciler
	locks      *keyedMutex
	logger     *zap.Logger
}

func NewService(threads storage.ThreadStorage, c classifier.Classifier, dataEntry, analysis agent.Handler, logger *zap.Logger) *Service {
	return &Service{
		threads:    threads,
		classifier: c,
		handlers: map[models.Route]agent.Handler{
			models.RouteDataEntry: dataEntry,
			models.RouteAnalysis:  analysis,
		},
		reconciler: reconciler.New(logger),
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// Options tunes Build beyond what the config file holds
type Options struct {
	Clock func() time.Time
}

// Build wires the whole pipeline around a store and an oracle
func Build(cfg *config.Config, store storage.Storage, o oracle.Oracle, logger *zap.Logger, opts Options) (*Service, error) {
	env := tools.Env{
		Store:      store,
		Categories: cfg.Agent.Categories,
		Clock:      opts.Clock,
		Logger:     logger,
	}

	dataEntryTools, err := tools.DataEntryTools(env)
	if err != nil {
		return nil, fmt.Errorf("build data entry tools: %w", err)
	}
	analysisTools, err := tools.AnalysisTools(env)
	if err != nil {
		return nil, fmt.Errorf("build analysis tools: %w", err)
	}

	dataEntry := agent.NewDataEntryHandler(
		agent.NewRunner(o, dataEntryTools, cfg.Oracle.Timeout, cfg.Oracle.MaxSteps, logger.Named("data_entry")),
		classifier.NewKeywordDetector(),
		cfg.Agent.MaxRetries,
		logger.Named("data_entry"),
	)
	analysis, err := agent.NewAnalysisHandler(
		agent.NewRunner(o, analysisTools, cfg.Oracle.Timeout, cfg.Oracle.MaxSteps, logger.Named("analysis")),
		logger.Named("analysis"),
	)
	if err != nil {
		return nil, err
	}

	return NewService(store, classifier.NewOracleClassifier(o, cfg.Oracle.Timeout, logger.Named("classifier")), dataEntry, analysis, logger), nil
}

// ValidatePrompt requires at least three non-space characters
func ValidatePrompt(prompt string) error {
	meaningful := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, prompt)
	if utf8.RuneCountInString(meaningful) < minPromptChars {
		return models.ErrInvalidPrompt
	}
	return nil
}

// Process runs one prompt through the pipeline. Oracle and store failures are
// returned as errors; everything explainable is in the response.
func (s *Service) Process(ctx context.Context, req Request) (*models.Response, error) {
	if err := ValidatePrompt(req.Prompt); err != nil {
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)

	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	unlock := s.locks.Lock(threadID)
	defer unlock()

	start := time.Now()
	log := s.logger.With(zap.String("thread_id", threadID))
	ctx = s.withRequestContext(ctx, req.Context, log)

	history, err := s.threads.LoadThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	qt, err := s.classifier.Classify(ctx, prompt)
	if err != nil {
		return nil, err
	}
	route := models.RouteFor(qt)

	result, err := s.handlers[route].Handle(ctx, prompt, history)
	if err != nil {
		log.Error("Handler failed", zap.String("route", string(route)), logger.SafeError(err))
		return nil, err
	}

	resp := s.reconciler.Reconcile(qt, result)
	resp.ThreadID = threadID

	turn := []models.Message{{Role: models.RoleUser, Content: prompt}}
	if reply := replyText(result, len(history)); reply != "" {
		turn = append(turn, models.Message{Role: models.RoleAssistant, Content: reply})
	}
	if err := s.threads.AppendThread(ctx, threadID, turn...); err != nil {
		return nil, err
	}

	log.Info("Processed prompt",
		zap.String("query_type", string(qt)),
		zap.String("route", string(route)),
		zap.Int("transactions", len(resp.Transactions)),
		zap.Int("dropped", resp.Dropped),
		zap.Bool("degraded", resp.Degraded),
		zap.Duration("duration", time.Since(start)))
	return &resp, nil
}

// ResetThread forgets a conversation
func (s *Service) ResetThread(ctx context.Context, threadID string) error {
	unlock := s.locks.Lock(threadID)
	defer unlock()
	return s.threads.DeleteThread(ctx, threadID)
}

func (s *Service) withRequestContext(ctx context.Context, rc models.RequestContext, log *zap.Logger) context.Context {
	if rc.UserTimezone != "" {
		loc, err := time.LoadLocation(rc.UserTimezone)
		if err != nil {
			log.Warn("Ignoring unknown time zone", zap.String("timezone", rc.UserTimezone))
			rc.UserTimezone = ""
		} else {
			ctx = tools.WithLocation(ctx, loc)
		}
	}
	return agent.WithPreferences(ctx, rc)
}

// replyText is what the assistant said this turn. Messages before offset
// belong to earlier turns and are already stored.
func replyText(result *agent.Result, offset int) string {
	if text := strings.TrimSpace(result.FinalText); text != "" {
		return text
	}
	for i := len(result.Messages) - 1; i >= offset && i >= 0; i-- {
		m := result.Messages[i]
		if m.Role == models.RoleAssistant && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}
