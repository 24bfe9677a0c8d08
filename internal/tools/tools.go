// Package tools holds the closed set of capabilities the oracle may invoke.
// Each tool is its own type; a toolset is fixed when it is built.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/normalizer"
	"github.com/xaenox/aiva/internal/oracle"
	"github.com/xaenox/aiva/internal/storage"
	"go.uber.org/zap"
)

// ErrInvalidArguments marks tool arguments the oracle got wrong
var ErrInvalidArguments = errors.New("invalid tool arguments")

type Tool interface {
	Spec() oracle.ToolSpec
	Mutating() bool
	Call(ctx context.Context, args json.RawMessage) (any, error)
}

// Env is what the tools act on
type Env struct {
	Store      storage.TransactionStore
	Categories []string
	Clock      func() time.Time
	Logger     *zap.Logger
}

func (e Env) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e Env) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// Toolset is an immutable, name-indexed set of tools
type Toolset struct {
	order  []Tool
	byName map[string]Tool
}

// NewToolset rejects duplicate names
func NewToolset(tools ...Tool) (*Toolset, error) {
	set := &Toolset{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		name := t.Spec().Name
		if _, exists := set.byName[name]; exists {
			return nil, fmt.Errorf("%w: duplicate tool %q", models.ErrConfig, name)
		}
		set.byName[name] = t
		set.order = append(set.order, t)
	}
	return set, nil
}

// NewReadOnlyToolset refuses to include any mutating tool
func NewReadOnlyToolset(tools ...Tool) (*Toolset, error) {
	for _, t := range tools {
		if t.Mutating() {
			return nil, fmt.Errorf("%w: mutating tool %q in read-only toolset", models.ErrConfig, t.Spec().Name)
		}
	}
	return NewToolset(tools...)
}

func (s *Toolset) Specs() []oracle.ToolSpec {
	specs := make([]oracle.ToolSpec, len(s.order))
	for i, t := range s.order {
		specs[i] = t.Spec()
	}
	return specs
}

func (s *Toolset) Lookup(name string) (Tool, bool) {
	t, ok := s.byName[name]
	return t, ok
}

func (s *Toolset) Names() []string {
	names := make([]string, len(s.order))
	for i, t := range s.order {
		names[i] = t.Spec().Name
	}
	return names
}

// ReadOnly reports whether no tool in the set mutates the store
func (s *Toolset) ReadOnly() bool {
	for _, t := range s.order {
		if t.Mutating() {
			return false
		}
	}
	return true
}

// DataEntryTools is the full read/write set for the data entry route
func DataEntryTools(env Env) (*Toolset, error) {
	return NewToolset(
		&CurrentDate{env: env},
		&AvailableCategories{env: env},
		&InsertTransaction{env: env},
		&InsertTransactions{env: env},
		&DeleteTransaction{env: env},
		&UpdateTransaction{env: env},
		&DeleteByDescription{env: env},
		&UpdateByDescription{env: env},
		&TransactionByID{env: env},
		&TransactionsByDescription{env: env},
		&AllTransactions{env: env},
	)
}

// AnalysisTools is the read-only set for the analysis route
func AnalysisTools(env Env) (*Toolset, error) {
	return NewReadOnlyToolset(
		&CurrentDate{env: env},
		&AvailableCategories{env: env},
		&TransactionsByCategory{env: env},
		&TransactionsByDateRange{env: env},
		&GroupByCategory{env: env},
		&TransactionByID{env: env},
		&TransactionsByDescription{env: env},
		&AllTransactions{env: env},
	)
}

type MutationKind string

const (
	MutationInsert MutationKind = "insert"
	MutationUpdate MutationKind = "update"
	MutationDelete MutationKind = "delete"
)

// MutationResult is returned by every mutating tool
type MutationResult struct {
	Kind     MutationKind
	Records  []models.Transaction
	Affected int
	Dropped  int
	Failures []normalizer.Failure
}

func (r *MutationResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Success      bool                 `json:"success"`
		Kind         MutationKind         `json:"kind"`
		Affected     int                  `json:"affected"`
		Transactions []models.Transaction `json:"transactions,omitempty"`
		Dropped      int                  `json:"dropped,omitempty"`
		Errors       []string             `json:"errors,omitempty"`
	}{
		Success:      r.Affected > 0,
		Kind:         r.Kind,
		Affected:     r.Affected,
		Transactions: r.Records,
		Dropped:      r.Dropped,
	}
	for _, f := range r.Failures {
		out.Errors = append(out.Errors, fmt.Sprintf("record %d: %v", f.Index, f.Err))
	}
	return json.Marshal(out)
}

// ListResult is returned by the listing tools
type ListResult struct {
	Count        int                  `json:"count"`
	Transactions []models.Transaction `json:"transactions"`
}

func newListResult(txs []models.Transaction) *ListResult {
	return &ListResult{Count: len(txs), Transactions: txs}
}

// SummaryResult is returned by group_transactions_by_category
type SummaryResult struct {
	Summary []models.CategorySummary `json:"summary"`
}

type locationKey struct{}

// WithLocation sets the user's time zone for get_current_date
func WithLocation(ctx context.Context, loc *time.Location) context.Context {
	return context.WithValue(ctx, locationKey{}, loc)
}

func locationFrom(ctx context.Context) *time.Location {
	if loc, ok := ctx.Value(locationKey{}).(*time.Location); ok && loc != nil {
		return loc
	}
	return time.UTC
}

// decodeArgs reads a JSON object keeping numbers as json.Number
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	args := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return args, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func parseID(v any) (int64, error) {
	var (
		id  int64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		id, err = x.Int64()
	case string:
		id, err = strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	case float64:
		id = int64(x)
		if float64(id) != x {
			err = errors.New("not an integer")
		}
	case nil:
		return 0, fmt.Errorf("%w: transaction_id is required", ErrInvalidArguments)
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: transaction_id %v is not a positive integer", ErrInvalidArguments, v)
	}
	return id, nil
}

func requireString(args map[string]any, key string) (string, error) {
	s, _ := args[key].(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidArguments, key)
	}
	return s, nil
}

func optionalDate(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil || v == "" {
		return "", nil
	}
	return normalizer.ParseDate(v)
}

func optionalBool(args map[string]any, key string, def bool) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// updatesFrom accepts either an "updates" object or flat fields
func updatesFrom(args map[string]any) map[string]any {
	if updates, ok := args["updates"].(map[string]any); ok {
		return updates
	}
	flat := map[string]any{}
	for _, key := range []string{"action", "amount", "category", "date", "description"} {
		if v, ok := args[key]; ok {
			flat[key] = v
		}
	}
	return flat
}

// Shared parameter schemas
var (
	transactionSchema = jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"action": {
				Type:        jsonschema.String,
				Enum:        []string{"add_expense", "remove_expense", "add_income", "remove_income"},
				Description: "add_expense for money spent, add_income for money received, remove_* to reverse one",
			},
			"amount":      {Type: jsonschema.Number, Description: "Positive amount"},
			"category":    {Type: jsonschema.String, Description: "Category label, e.g. groceries"},
			"date":        {Type: jsonschema.String, Description: "Date in YYYY-MM-DD format"},
			"description": {Type: jsonschema.String, Description: "Optional details"},
		},
		Required: []string{"action", "amount", "category", "date"},
	}

	updatesSchema = jsonschema.Definition{
		Type:        jsonschema.Object,
		Description: "Fields to change; omitted fields stay as they are",
		Properties: map[string]jsonschema.Definition{
			"action":      transactionSchema.Properties["action"],
			"amount":      transactionSchema.Properties["amount"],
			"category":    transactionSchema.Properties["category"],
			"date":        transactionSchema.Properties["date"],
			"description": transactionSchema.Properties["description"],
		},
	}

	idSchema = jsonschema.Definition{Type: jsonschema.Integer, Description: "Transaction id"}

	emptySchema = jsonschema.Definition{Type: jsonschema.Object, Properties: map[string]jsonschema.Definition{}}
)
