// Package reconciler folds whatever a handler produced into the single
// response shape callers receive. Structured data always wins over text.
package reconciler

import (
	"errors"
	"strings"

	"github.com/xaenox/aiva/internal/agent"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/normalizer"
	"github.com/xaenox/aiva/internal/tools"
	"go.uber.org/zap"
)

const noDataMessage = "no data extracted"

// outcome is the shape a handler result resolved to
type outcome interface {
	isOutcome()
}

type structuredTransactions struct {
	records  []models.Transaction
	dropped  int
	fromText bool
}

type structuredSummary struct {
	summary []models.CategorySummary
	text    string
}

type freeText struct {
	text string
}

type empty struct{}

func (structuredTransactions) isOutcome() {}
func (structuredSummary) isOutcome()      {}
func (freeText) isOutcome()               {}
func (empty) isOutcome()                  {}

type Reconciler struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile never fails; explainable problems end up in the error field
func (r *Reconciler) Reconcile(qt models.QueryType, result *agent.Result) models.Response {
	resp := models.Response{
		Transactions: []models.Transaction{},
		QueryType:    string(qt),
	}
	if result == nil {
		resp.SetError(noDataMessage)
		return resp
	}
	resp.Dropped = result.Dropped
	resp.Degraded = result.Degraded

	switch o := r.resolve(result).(type) {
	case structuredTransactions:
		resp.Transactions = o.records
		resp.Dropped += o.dropped
		if o.fromText {
			resp.Degraded = true
		}
	case structuredSummary:
		resp.Analytics = &models.Analytics{
			Format:  models.FormatMarkdown,
			Content: o.text,
			Summary: o.summary,
		}
	case freeText:
		resp.Analytics = &models.Analytics{Format: models.FormatMarkdown, Content: o.text}
	case empty:
		resp.SetError(noDataMessage)
	}

	// a lookup miss the oracle recovered from is not a failure
	if len(resp.Transactions) == 0 && resp.Error == nil && !changedStore(result.Mutations) {
		if err := firstNotFound(result.Problems); err != nil {
			resp.SetError(err.Error())
		}
	}
	return resp
}

// resolve applies the fixed priority order over the possible shapes
func (r *Reconciler) resolve(result *agent.Result) outcome {
	text := finalText(result)

	switch result.Route {
	case models.RouteDataEntry:
		if len(result.Transactions) > 0 {
			return structuredTransactions{records: result.Transactions}
		}
		if batch, ok := r.extractTransactions(text); ok {
			return batch
		}
	case models.RouteAnalysis:
		if result.HasSummary {
			return structuredSummary{summary: result.Summary, text: text}
		}
	}

	if strings.TrimSpace(text) != "" {
		return freeText{text: text}
	}
	return empty{}
}

// extractTransactions looks for a transaction batch embedded in prose
func (r *Reconciler) extractTransactions(text string) (structuredTransactions, bool) {
	candidate, ok := embeddedJSON(text)
	if !ok {
		return structuredTransactions{}, false
	}

	raws, err := normalizer.DecodeBatch([]byte(candidate))
	if err != nil {
		r.logger.Debug("No transaction batch in final message", zap.Error(err))
		return structuredTransactions{}, false
	}

	batch := normalizer.NormalizeBatch(raws)
	for _, f := range batch.Failures {
		r.logger.Warn("Dropped embedded transaction", zap.Int("index", f.Index), zap.Error(f.Err))
	}
	if len(batch.Records) == 0 {
		return structuredTransactions{}, false
	}

	r.logger.Info("Recovered transactions from final message text", zap.Int("count", len(batch.Records)))
	return structuredTransactions{records: batch.Records, dropped: batch.Dropped(), fromText: true}, true
}

// embeddedJSON returns the text between the first '{' and the last '}'
func embeddedJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// finalText is the last thing the assistant said
func finalText(result *agent.Result) string {
	if strings.TrimSpace(result.FinalText) != "" {
		return result.FinalText
	}
	for i := len(result.Messages) - 1; i >= 0; i-- {
		m := result.Messages[i]
		if m.Role == models.RoleAssistant && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}

func firstNotFound(problems []error) error {
	for _, p := range problems {
		if errors.Is(p, models.ErrNotFound) {
			return p
		}
	}
	return nil
}

func changedStore(mutations []*tools.MutationResult) bool {
	for _, m := range mutations {
		if m != nil && m.Affected > 0 {
			return true
		}
	}
	return false
}
