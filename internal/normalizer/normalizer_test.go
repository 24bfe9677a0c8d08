package normalizer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/aiva/internal/models"
)

func requireField(t *testing.T, err error, field string) {
	t.Helper()
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, field, verr.Field)
}

func TestNormalizeValid(t *testing.T) {
	tx, err := Normalize(map[string]any{
		"action":      "add_expense",
		"amount":      json.Number("42.50"),
		"category":    "groceries",
		"date":        "2025-05-11",
		"description": "Weekly shopping",
	})
	require.NoError(t, err)

	assert.Equal(t, models.ActionAddExpense, tx.Action)
	assert.True(t, decimal.RequireFromString("42.50").Equal(tx.Amount))
	assert.Equal(t, "groceries", tx.Category)
	assert.Equal(t, "2025-05-11", tx.Date)
	assert.Equal(t, "Weekly shopping", tx.Description)
}

func TestNormalizeAmountForms(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{json.Number("100"), "100"},
		{"$1,250.00", "1250"},
		{" 19.99 ", "19.99"},
		{0.1 + 0.2, "0.3"},
		{12, "12"},
		{int64(7), "7"},
		{"10.005", "10.01"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		require.NoError(t, err, "%v", tt.in)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "%v -> %s", tt.in, got)
	}
}

func TestNormalizeRejectsNonPositiveAmount(t *testing.T) {
	for _, amount := range []any{json.Number("0"), "-5", -1.0, "0.001", nil, "abc", true} {
		_, err := Normalize(map[string]any{
			"action": "add_expense", "amount": amount, "category": "food", "date": "2025-01-01",
		})
		requireField(t, err, "amount")
	}
}

func TestNormalizeRejectsBadDates(t *testing.T) {
	for _, date := range []any{"2025-13-01", "2025-02-30", "not-a-date", "2025-1-1", "", nil, 20250101} {
		_, err := Normalize(map[string]any{
			"action": "add_expense", "amount": "10", "category": "food", "date": date,
		})
		requireField(t, err, "date")
	}
}

func TestNormalizeLeapDay(t *testing.T) {
	_, err := ParseDate("2024-02-29")
	assert.NoError(t, err)
	_, err = ParseDate("2025-02-29")
	assert.Error(t, err)
}

func TestNormalizeRejectsEmptyCategory(t *testing.T) {
	for _, category := range []any{"", "   ", nil} {
		_, err := Normalize(map[string]any{
			"action": "add_expense", "amount": "10", "category": category, "date": "2025-01-01",
		})
		requireField(t, err, "category")
	}
}

func TestNormalizeUnknownActionIsKept(t *testing.T) {
	tx, err := Normalize(map[string]any{"amount": "10", "category": "food", "date": "2025-01-01"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionUnknown, tx.Action)

	tx, err = Normalize(map[string]any{"action": "splurge", "amount": "10", "category": "food", "date": "2025-01-01"})
	require.NoError(t, err)
	assert.Equal(t, models.ActionUnknown, tx.Action)
}

func TestNormalizeBatchContinuesPastFailures(t *testing.T) {
	res := NormalizeBatch([]map[string]any{
		{"action": "add_expense", "amount": "10", "category": "food", "date": "2025-01-01"},
		{"action": "add_expense", "amount": "10", "category": "food", "date": "2025-02-30"},
		{"action": "add_income", "amount": "-3", "category": "salary", "date": "2025-01-02"},
		{"action": "add_income", "amount": "3000", "category": "salary", "date": "2025-01-31"},
	})

	require.Len(t, res.Records, 2)
	assert.Equal(t, "food", res.Records[0].Category)
	assert.Equal(t, "salary", res.Records[1].Category)
	assert.Equal(t, 2, res.Dropped())
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.Equal(t, 2, res.Failures[1].Index)
}

func TestNormalizePatch(t *testing.T) {
	patch, err := NormalizePatch(map[string]any{"amount": "12.5", "description": " lunch "})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.5").Equal(*patch.Amount))
	assert.Equal(t, "lunch", *patch.Description)
	assert.Nil(t, patch.Category)

	_, err = NormalizePatch(map[string]any{"date": "2025-02-30"})
	requireField(t, err, "date")

	_, err = NormalizePatch(map[string]any{"action": "whatever"})
	requireField(t, err, "action")

	_, err = NormalizePatch(map[string]any{"colour": "blue"})
	requireField(t, err, "updates")
}

func TestDecodeBatch(t *testing.T) {
	raws, err := DecodeBatch([]byte(`{"transactions":[{"action":"add_expense","amount":42.50,"category":"groceries","date":"2025-05-11"}, 3]}`))
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, json.Number("42.50"), raws[0]["amount"])

	raws, err = DecodeBatch([]byte(`{"action":"add_income","amount":"5","category":"gift","date":"2025-05-11"}`))
	require.NoError(t, err)
	assert.Len(t, raws, 1)

	_, err = DecodeBatch([]byte(`{"answer": 42}`))
	assert.Error(t, err)

	_, err = DecodeBatch([]byte(`{"transactions": "none"}`))
	assert.Error(t, err)
}
