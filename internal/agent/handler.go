package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/tools"
)

// Result is what a handler hands to the reconciler
type Result struct {
	Route        models.Route
	Transactions []models.Transaction
	Summary      []models.CategorySummary
	HasSummary   bool
	FinalText    string
	Messages     []models.Message
	Dropped      int
	Degraded     bool
	Problems     []error
	Mutations    []*tools.MutationResult
}

// Handler processes a prompt on one route
type Handler interface {
	Handle(ctx context.Context, prompt string, history []models.Message) (*Result, error)
}

// collect folds the invocations of a run into r
func (r *Result) collect(run *Run) {
	r.Messages = run.Messages
	r.FinalText = run.FinalText

	for _, inv := range run.Invocations {
		if inv.Err != nil {
			r.Problems = append(r.Problems, inv.Err)
			var invalid *models.ValidationError
			if inv.Mutating && errors.As(inv.Err, &invalid) {
				r.Dropped++
			}
			continue
		}
		switch res := inv.Result.(type) {
		case *tools.MutationResult:
			r.Mutations = append(r.Mutations, res)
			r.Dropped += res.Dropped
			if res.Kind == tools.MutationInsert || res.Kind == tools.MutationUpdate {
				r.Transactions = append(r.Transactions, res.Records...)
			}
		case *tools.SummaryResult:
			r.Summary = res.Summary
			r.HasSummary = true
		}
	}
}

func withPrompt(history []models.Message, prompt string) []models.Message {
	msgs := make([]models.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	return append(msgs, models.Message{Role: models.RoleUser, Content: prompt})
}

type preferencesKey struct{}

// WithPreferences attaches the caller's currency and locale to ctx
func WithPreferences(ctx context.Context, rc models.RequestContext) context.Context {
	return context.WithValue(ctx, preferencesKey{}, rc)
}

// systemPrompt appends the caller's preferences to base
func systemPrompt(ctx context.Context, base string) string {
	rc, ok := ctx.Value(preferencesKey{}).(models.RequestContext)
	if !ok {
		return base
	}
	var notes []string
	if rc.Currency != "" {
		notes = append(notes, fmt.Sprintf("Amounts are in %s unless the user says otherwise.", rc.Currency))
	}
	if rc.Locale != "" {
		notes = append(notes, fmt.Sprintf("Reply in the language of locale %s.", rc.Locale))
	}
	if rc.UserTimezone != "" {
		notes = append(notes, fmt.Sprintf("The user's time zone is %s.", rc.UserTimezone))
	}
	if len(notes) == 0 {
		return base
	}
	return base + "\n\n" + strings.Join(notes, "\n")
}
