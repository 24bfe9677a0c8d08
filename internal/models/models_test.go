package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseAction(t *testing.T) {
	assert.Equal(t, ActionAddExpense, ParseAction(" Add_Expense "))
	assert.Equal(t, ActionRemoveIncome, ParseAction("remove_income"))
	assert.Equal(t, ActionUnknown, ParseAction("spend"))
	assert.Equal(t, ActionUnknown, ParseAction(""))
	assert.False(t, ActionUnknown.Known())
	assert.True(t, ActionAddIncome.Known())
	assert.False(t, Action("bogus").Known())
}

func TestRouteFor(t *testing.T) {
	assert.Equal(t, RouteDataEntry, RouteFor(QueryDataEntry))
	assert.Equal(t, RouteDataEntry, RouteFor(QueryUnknown))
	assert.Equal(t, RouteAnalysis, RouteFor(QueryAnalysis))
	assert.Equal(t, RouteAnalysis, RouteFor(QueryListing))
}

func TestSummaryFilterSelects(t *testing.T) {
	f := SummaryFilter{IncludeExpenses: true, Range: DateRange{Start: "2025-05-01", End: "2025-05-31"}}

	assert.True(t, f.Selects(ActionAddExpense, "2025-05-01"))
	assert.True(t, f.Selects(ActionRemoveExpense, "2025-05-31"))
	assert.False(t, f.Selects(ActionAddIncome, "2025-05-10"))
	assert.False(t, f.Selects(ActionAddExpense, "2025-06-01"))
	assert.False(t, f.Selects(ActionUnknown, "2025-05-10"))

	none := SummaryFilter{}
	assert.False(t, none.Selects(ActionAddExpense, "2025-05-10"))
}

func TestPatchApply(t *testing.T) {
	amount := decimal.RequireFromString("12.30")
	category := "dining"
	orig := Transaction{ID: 7, Action: ActionAddExpense, Amount: decimal.NewFromInt(5), Category: "food", Date: "2025-01-01"}

	got := TransactionPatch{Amount: &amount, Category: &category}.Apply(orig)

	assert.Equal(t, int64(7), got.ID)
	assert.True(t, amount.Equal(got.Amount))
	assert.Equal(t, "dining", got.Category)
	assert.Equal(t, "2025-01-01", got.Date)
	assert.True(t, TransactionPatch{}.Empty())
}

func TestLastContent(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{Name: "x"}}},
		{Role: RoleTool, Content: `{"success":true}`},
	}
	assert.Equal(t, "answer", LastContent(msgs))
	assert.Equal(t, "", LastContent(nil))
}
