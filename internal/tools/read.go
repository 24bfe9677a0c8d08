package tools

import (
	"context"
	"encoding/json"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/oracle"
)

// CurrentDate is the authoritative "today" for resolving relative dates
type CurrentDate struct{ env Env }

func (t *CurrentDate) Mutating() bool { return false }

func (t *CurrentDate) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "get_current_date",
		Description: "Get today's date in the user's time zone. Use it to resolve words like today, yesterday or last month.",
		Parameters:  emptySchema,
	}
}

func (t *CurrentDate) Call(ctx context.Context, _ json.RawMessage) (any, error) {
	loc := locationFrom(ctx)
	now := t.env.now().In(loc)
	return map[string]string{
		"date":     now.Format("2006-01-02"),
		"weekday":  now.Weekday().String(),
		"timezone": loc.String(),
	}, nil
}

type AvailableCategories struct{ env Env }

func (t *AvailableCategories) Mutating() bool { return false }

func (t *AvailableCategories) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "get_available_categories",
		Description: "List the suggested transaction categories.",
		Parameters:  emptySchema,
	}
}

func (t *AvailableCategories) Call(context.Context, json.RawMessage) (any, error) {
	categories := make([]string, len(t.env.Categories))
	copy(categories, t.env.Categories)
	return map[string][]string{"categories": categories}, nil
}

type TransactionByID struct{ env Env }

func (t *TransactionByID) Mutating() bool { return false }

func (t *TransactionByID) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "get_transaction_by_id",
		Description: "Fetch one transaction by its id.",
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{"transaction_id": idSchema},
			Required:   []string{"transaction_id"},
		},
	}
}

func (t *TransactionByID) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	id, err := parseID(args["transaction_id"])
	if err != nil {
		return nil, err
	}
	tx, err := t.env.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

type TransactionsByCategory struct{ env Env }

func (t *TransactionsByCategory) Mutating() bool { return false }

func (t *TransactionsByCategory) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "get_transactions_by_category",
		Description: "List transactions in a category, optionally within a date range.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"category":   {Type: jsonschema.String},
				"start_date": {Type: jsonschema.String, Description: "YYYY-MM-DD, inclusive"},
				"end_date":   {Type: jsonschema.String, Description: "YYYY-MM-DD, inclusive"},
			},
			Required: []string{"category"},
		},
	}
}

func (t *TransactionsByCategory) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	category, err := requireString(args, "category")
	if err != nil {
		return nil, err
	}
	rng, err := rangeFrom(args)
	if err != nil {
		return nil, err
	}
	txs, err := t.env.Store.GetByCategory(ctx, category, rng)
	if err != nil {
		return nil, err
	}
	return newListResult(txs), nil
}

type TransactionsByDateRange struct{ env Env }

func (t *TransactionsByDateRange) Mutating() bool { return false }

func (t *TransactionsByDateRange) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "get_transactions_by_date_range",
		Description: "List transactions between two dates, both inclusive.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"start_date": {Type: jsonschema.String, Description: "YYYY-MM-DD"},
				"end_date":   {Type: jsonschema.String, Description: "YYYY-MM-DD"},
			},
			Required: []string{"start_date", "end_date"},
		},
	}
}

func (t *TransactionsByDateRange) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	rng, err := rangeFrom(args)
	if err != nil {
		return nil, err
	}
	if rng.Start == "" || rng.End == "" {
		return nil, &models.ValidationError{Field: "date range", Reason: "start_date and end_date are required"}
	}
	txs, err := t.env.Store.GetByDateRange(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	return newListResult(txs), nil
}

type GroupByCategory struct{ env Env }

func (t *GroupByCategory) Mutating() bool { return false }

func (t *GroupByCategory) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name: "group_transactions_by_category",
		Description: "Total amounts per category. Removals count negatively. " +
			"Both income and expenses are included unless switched off.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"include_income":   {Type: jsonschema.Boolean},
				"include_expenses": {Type: jsonschema.Boolean},
				"start_date":       {Type: jsonschema.String, Description: "YYYY-MM-DD, inclusive"},
				"end_date":         {Type: jsonschema.String, Description: "YYYY-MM-DD, inclusive"},
			},
		},
	}
}

func (t *GroupByCategory) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	rng, err := rangeFrom(args)
	if err != nil {
		return nil, err
	}
	summary, err := t.env.Store.GroupByCategory(ctx, models.SummaryFilter{
		IncludeIncome:   optionalBool(args, "include_income", true),
		IncludeExpenses: optionalBool(args, "include_expenses", true),
		Range:           rng,
	})
	if err != nil {
		return nil, err
	}
	return &SummaryResult{Summary: summary}, nil
}

type TransactionsByDescription struct{ env Env }

func (t *TransactionsByDescription) Mutating() bool { return false }

func (t *TransactionsByDescription) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "get_transactions_by_description",
		Description: "Find transactions whose description contains the text, ignoring case.",
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{"description": {Type: jsonschema.String}},
			Required:   []string{"description"},
		},
	}
}

func (t *TransactionsByDescription) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	text, err := requireString(args, "description")
	if err != nil {
		return nil, err
	}
	txs, err := t.env.Store.GetByDescription(ctx, text)
	if err != nil {
		return nil, err
	}
	return newListResult(txs), nil
}

type AllTransactions struct{ env Env }

func (t *AllTransactions) Mutating() bool { return false }

func (t *AllTransactions) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "get_all_transactions",
		Description: "List every transaction ordered by date.",
		Parameters:  emptySchema,
	}
}

func (t *AllTransactions) Call(ctx context.Context, _ json.RawMessage) (any, error) {
	txs, err := t.env.Store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return newListResult(txs), nil
}

func rangeFrom(args map[string]any) (models.DateRange, error) {
	start, err := optionalDate(args, "start_date")
	if err != nil {
		return models.DateRange{}, err
	}
	end, err := optionalDate(args, "end_date")
	if err != nil {
		return models.DateRange{}, err
	}
	return models.DateRange{Start: start, End: end}, nil
}
