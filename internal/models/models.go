package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Action is the kind of financial fact a transaction records
type Action string

const (
	ActionAddExpense    Action = "add_expense"
	ActionRemoveExpense Action = "remove_expense"
	ActionAddIncome     Action = "add_income"
	ActionRemoveIncome  Action = "remove_income"
	ActionUnknown       Action = "unknown"
)

// ParseAction maps free text onto an Action. Anything unrecognised is ActionUnknown.
func ParseAction(s string) Action {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAddExpense, ActionRemoveExpense, ActionAddIncome, ActionRemoveIncome:
		return a
	default:
		return ActionUnknown
	}
}

func (a Action) Known() bool {
	return a != ActionUnknown && ParseAction(string(a)) == a
}

func (a Action) IsExpense() bool {
	return a == ActionAddExpense || a == ActionRemoveExpense
}

func (a Action) IsIncome() bool {
	return a == ActionAddIncome || a == ActionRemoveIncome
}

// Sign is the direction an action contributes to an aggregate
func (a Action) Sign() int {
	switch a {
	case ActionAddExpense, ActionAddIncome:
		return 1
	case ActionRemoveExpense, ActionRemoveIncome:
		return -1
	default:
		return 0
	}
}

// Transaction is a single persisted financial fact
type Transaction struct {
	ID          int64           `json:"id,omitempty"`
	Action      Action          `json:"action"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Date        string          `json:"date"`
	Description string          `json:"description,omitempty"`
}

// TransactionPatch holds the fields of an update. Nil fields are left untouched.
type TransactionPatch struct {
	Action      *Action          `json:"action,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
}

func (p TransactionPatch) Empty() bool {
	return p.Action == nil && p.Amount == nil && p.Category == nil && p.Date == nil && p.Description == nil
}

// Apply returns a copy of t with the patch applied
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Action != nil {
		t.Action = *p.Action
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	return t
}

// DateRange is an inclusive YYYY-MM-DD interval. Empty bounds are open.
type DateRange struct {
	Start string `json:"start_date,omitempty"`
	End   string `json:"end_date,omitempty"`
}

// Contains reports whether the YYYY-MM-DD date falls inside the range.
// ISO dates order lexicographically.
func (r DateRange) Contains(date string) bool {
	if r.Start != "" && date < r.Start {
		return false
	}
	if r.End != "" && date > r.End {
		return false
	}
	return true
}

// SummaryFilter selects the transactions folded into category summaries
type SummaryFilter struct {
	IncludeIncome   bool
	IncludeExpenses bool
	Range           DateRange
}

// Selects reports whether a transaction with the given action and date is aggregated
func (f SummaryFilter) Selects(a Action, date string) bool {
	if !f.Range.Contains(date) {
		return false
	}
	return (f.IncludeExpenses && a.IsExpense()) || (f.IncludeIncome && a.IsIncome())
}

// CategorySummary is a derived per-category aggregate. It is never persisted.
type CategorySummary struct {
	Category         string          `json:"category"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	TransactionCount int             `json:"transaction_count"`
}

// QueryType is the classification of an inbound prompt
type QueryType string

const (
	QueryDataEntry QueryType = "data_entry"
	QueryAnalysis  QueryType = "analysis"
	QueryListing   QueryType = "listing"
	QueryUnknown   QueryType = "unknown"
)

// Route is one of the two handling paths
type Route string

const (
	RouteDataEntry Route = "data_entry"
	RouteAnalysis  Route = "analysis"
)

// RouteFor picks the handler for a classification. Unknown goes to data entry
// so a transaction is never lost to a misrouted analysis.
func RouteFor(q QueryType) Route {
	switch q {
	case QueryAnalysis, QueryListing:
		return RouteAnalysis
	default:
		return RouteDataEntry
	}
}

// RequestContext carries caller preferences for a prompt
type RequestContext struct {
	UserTimezone string `json:"user_timezone,omitempty"`
	Currency     string `json:"currency,omitempty"`
	Locale       string `json:"locale,omitempty"`
}

// Analytics is the analysis part of a response
type Analytics struct {
	Format  string            `json:"format"`
	Content string            `json:"content,omitempty"`
	Summary []CategorySummary `json:"summary,omitempty"`
}

const FormatMarkdown = "markdown"

// Response is the unified result of processing one prompt
type Response struct {
	Transactions []Transaction `json:"transactions"`
	Analytics    *Analytics    `json:"analytics,omitempty"`
	QueryType    string        `json:"query_type"`
	Error        *string       `json:"error,omitempty"`
	ThreadID     string        `json:"thread_id,omitempty"`
	Dropped      int           `json:"dropped,omitempty"`
	Degraded     bool          `json:"degraded,omitempty"`
}

// SetError fills the error field
func (r *Response) SetError(msg string) {
	r.Error = &msg
}
