package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/oracle"
	"go.uber.org/zap"
)

const (
	labelDataEntry = "DATA_ENTRY"
	labelAnalysis  = "ANALYSIS"
)

const classifyPrompt = `You route requests for a personal finance assistant.

Classify the user's message into exactly one label:
- DATA_ENTRY: the user reports, adds, changes, removes or looks up individual transactions
  (e.g. "I spent $20 on lunch", "delete transaction 12", "update the Uber ride to 30")
- ANALYSIS: the user asks for totals, summaries, comparisons, trends or listings
  (e.g. "how much did I spend on dining last month?", "show my expenses by category")

Answer with the label only, no punctuation and no explanation.`

// Classifier decides which route handles a prompt
type Classifier interface {
	Classify(ctx context.Context, prompt string) (models.QueryType, error)
}

// OracleClassifier asks the oracle for a single label
type OracleClassifier struct {
	oracle  oracle.Oracle
	timeout time.Duration
	logger  *zap.Logger
}

// NewOracleClassifier bounds every classification call by timeout. Zero means
// the caller's deadline only.
func NewOracleClassifier(o oracle.Oracle, timeout time.Duration, logger *zap.Logger) *OracleClassifier {
	return &OracleClassifier{
		oracle:  o,
		timeout: timeout,
		logger:  logger,
	}
}

// Classify never falls back to a route when the oracle itself fails
func (c *OracleClassifier) Classify(ctx context.Context, prompt string) (models.QueryType, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.oracle.Complete(callCtx, oracle.Request{
		System:   classifyPrompt,
		Messages: []models.Message{{Role: models.RoleUser, Content: prompt}},
	})
	if err == nil && resp == nil {
		err = errors.New("empty completion")
	}
	if err != nil {
		c.logger.Error("Failed to classify prompt", zap.Error(err))
		if !errors.Is(err, models.ErrOracleUnavailable) {
			err = fmt.Errorf("%w: %v", models.ErrOracleUnavailable, err)
		}
		return models.QueryUnknown, err
	}

	label := ParseLabel(resp.Content)
	c.logger.Debug("Classified prompt",
		zap.String("raw", resp.Content),
		zap.String("query_type", string(label)))
	return label, nil
}

// ParseLabel matches the oracle output against the known labels. DATA_ENTRY
// wins when both appear.
func ParseLabel(raw string) models.QueryType {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case strings.Contains(normalized, labelDataEntry):
		return models.QueryDataEntry
	case strings.Contains(normalized, labelAnalysis):
		return models.QueryAnalysis
	default:
		return models.QueryUnknown
	}
}
