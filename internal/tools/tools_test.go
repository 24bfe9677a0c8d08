package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/storage"
)

var fixedNow = time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC)

func newEnv(t *testing.T) (Env, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	return Env{
		Store:      store,
		Categories: []string{"groceries", "transportation", "dining"},
		Clock:      func() time.Time { return fixedNow },
	}, store
}

func call(t *testing.T, tool Tool, args string) (any, error) {
	t.Helper()
	return tool.Call(context.Background(), json.RawMessage(args))
}

func mustInsert(t *testing.T, store *storage.MemoryStorage, action models.Action, amount, category, date, description string) int64 {
	t.Helper()
	id, err := store.Insert(context.Background(), models.Transaction{
		Action:      action,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
		Date:        date,
		Description: description,
	})
	require.NoError(t, err)
	return id
}

func TestAnalysisToolsAreReadOnly(t *testing.T) {
	env, _ := newEnv(t)
	set, err := AnalysisTools(env)
	require.NoError(t, err)
	assert.True(t, set.ReadOnly())

	for _, name := range []string{
		"insert_transaction", "insert_transactions", "delete_transaction", "update_transaction",
		"delete_transactions_by_description", "update_transactions_by_description",
	} {
		_, ok := set.Lookup(name)
		assert.False(t, ok, name)
	}
	for _, spec := range set.Specs() {
		tool, ok := set.Lookup(spec.Name)
		require.True(t, ok)
		assert.False(t, tool.Mutating(), spec.Name)
	}
}

func TestDataEntryToolsContents(t *testing.T) {
	env, _ := newEnv(t)
	set, err := DataEntryTools(env)
	require.NoError(t, err)
	assert.False(t, set.ReadOnly())
	assert.ElementsMatch(t, []string{
		"get_current_date", "get_available_categories",
		"insert_transaction", "insert_transactions", "delete_transaction", "update_transaction",
		"delete_transactions_by_description", "update_transactions_by_description",
		"get_transaction_by_id", "get_transactions_by_description", "get_all_transactions",
	}, set.Names())
}

func TestToolsetConstruction(t *testing.T) {
	env, _ := newEnv(t)

	_, err := NewToolset(&CurrentDate{env: env}, &CurrentDate{env: env})
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = NewReadOnlyToolset(&CurrentDate{env: env}, &InsertTransaction{env: env})
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestCurrentDateUsesLocation(t *testing.T) {
	env, _ := newEnv(t)
	env.Clock = func() time.Time { return time.Date(2025, 5, 12, 2, 0, 0, 0, time.UTC) }
	tool := &CurrentDate{env: env}

	got, err := call(t, tool, `{}`)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-12", got.(map[string]string)["date"])

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	got, err = tool.Call(WithLocation(context.Background(), la), nil)
	require.NoError(t, err)
	assert.Equal(t, "2025-05-11", got.(map[string]string)["date"])
	assert.Equal(t, "America/Los_Angeles", got.(map[string]string)["timezone"])
}

func TestAvailableCategories(t *testing.T) {
	env, _ := newEnv(t)
	got, err := call(t, &AvailableCategories{env: env}, ``)
	require.NoError(t, err)
	assert.Equal(t, env.Categories, got.(map[string][]string)["categories"])
}

func TestInsertTransaction(t *testing.T) {
	env, store := newEnv(t)
	tool := &InsertTransaction{env: env}

	t.Run("nested transaction_data", func(t *testing.T) {
		got, err := call(t, tool, `{"transaction_data": {"action": "add_expense", "amount": 42.50, "category": "groceries", "date": "2025-05-11"}}`)
		require.NoError(t, err)
		res := got.(*MutationResult)
		assert.Equal(t, MutationInsert, res.Kind)
		assert.Equal(t, 1, res.Affected)
		require.Len(t, res.Records, 1)
		assert.NotZero(t, res.Records[0].ID)
		assert.True(t, decimal.RequireFromString("42.5").Equal(res.Records[0].Amount))
	})

	t.Run("flat fields", func(t *testing.T) {
		got, err := call(t, tool, `{"action": "add_income", "amount": "3,000", "category": "salary", "date": "2025-05-01"}`)
		require.NoError(t, err)
		assert.Equal(t, models.ActionAddIncome, got.(*MutationResult).Records[0].Action)
	})

	t.Run("unknown action is refused", func(t *testing.T) {
		before, _ := store.GetAll(context.Background())
		_, err := call(t, tool, `{"transaction_data": {"action": "transfer", "amount": 5, "category": "other", "date": "2025-05-11"}}`)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "action", verr.Field)
		after, _ := store.GetAll(context.Background())
		assert.Len(t, after, len(before))
	})

	t.Run("invalid amount is refused", func(t *testing.T) {
		_, err := call(t, tool, `{"transaction_data": {"action": "add_expense", "amount": -3, "category": "other", "date": "2025-05-11"}}`)
		var verr *models.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "amount", verr.Field)
	})

	t.Run("malformed arguments", func(t *testing.T) {
		_, err := call(t, tool, `"not json object"`)
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})
}

func TestInsertTransactionsDropsInvalid(t *testing.T) {
	env, store := newEnv(t)
	got, err := call(t, &InsertTransactions{env: env}, `{"transactions": [
		{"action": "add_expense", "amount": 42.50, "category": "groceries", "date": "2025-05-11"},
		{"action": "add_expense", "amount": 10, "category": "dining", "date": "2025-02-30"},
		{"action": "add_expense", "amount": 100, "category": "transportation", "date": "2025-05-10", "description": "Uber"},
		"junk"
	]}`)
	require.NoError(t, err)

	res := got.(*MutationResult)
	assert.Equal(t, 2, res.Affected)
	assert.Equal(t, 2, res.Dropped)
	require.Len(t, res.Failures, 2)
	assert.Equal(t, 1, res.Failures[0].Index)
	assert.Equal(t, 3, res.Failures[1].Index)

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"dropped":2`)
	assert.Contains(t, string(raw), `"success":true`)
}

func TestDeleteTransaction(t *testing.T) {
	env, store := newEnv(t)
	tool := &DeleteTransaction{env: env}
	id := mustInsert(t, store, models.ActionAddExpense, "5", "dining", "2025-05-10", "coffee")

	_, err := call(t, tool, `{"transaction_id": 123}`)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := call(t, tool, fmt.Sprintf(`{"transaction_id": "%d"}`, id))
	require.NoError(t, err)
	res := got.(*MutationResult)
	assert.Equal(t, MutationDelete, res.Kind)
	assert.Equal(t, id, res.Records[0].ID)

	_, err = store.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = call(t, tool, `{"transaction_id": -1}`)
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestUpdateTransaction(t *testing.T) {
	env, store := newEnv(t)
	tool := &UpdateTransaction{env: env}
	id := mustInsert(t, store, models.ActionAddExpense, "5", "dining", "2025-05-10", "coffee")

	got, err := call(t, tool, `{"transaction_id": 1, "updates": {"amount": 6.5, "description": "latte"}}`)
	require.NoError(t, err)
	updated := got.(*MutationResult).Records[0]
	assert.Equal(t, id, updated.ID)
	assert.Equal(t, "latte", updated.Description)
	assert.Equal(t, "dining", updated.Category)

	_, err = call(t, tool, `{"transaction_id": 1, "updates": {}}`)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "updates", verr.Field)

	_, err = call(t, tool, `{"transaction_id": 99, "updates": {"amount": 1}}`)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestByDescriptionIsBulk(t *testing.T) {
	env, store := newEnv(t)
	mustInsert(t, store, models.ActionAddExpense, "5", "other", "2025-05-10", "Test one")
	mustInsert(t, store, models.ActionAddExpense, "6", "other", "2025-05-11", "another test")
	mustInsert(t, store, models.ActionAddExpense, "7", "other", "2025-05-11", "keep")

	got, err := call(t, &UpdateByDescription{env: env}, `{"description": "test", "updates": {"category": "misc"}}`)
	require.NoError(t, err)
	res := got.(*MutationResult)
	assert.Equal(t, 2, res.Affected)
	for _, tx := range res.Records {
		assert.Equal(t, "misc", tx.Category)
	}

	got, err = call(t, &DeleteByDescription{env: env}, `{"description": "TEST"}`)
	require.NoError(t, err)
	assert.Equal(t, 2, got.(*MutationResult).Affected)

	all, _ := store.GetAll(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, "keep", all[0].Description)

	_, err = call(t, &DeleteByDescription{env: env}, `{"description": "test"}`)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestReadTools(t *testing.T) {
	env, store := newEnv(t)
	mustInsert(t, store, models.ActionAddExpense, "42.50", "groceries", "2025-05-11", "")
	mustInsert(t, store, models.ActionAddExpense, "100", "transportation", "2025-05-10", "Uber")
	mustInsert(t, store, models.ActionAddExpense, "20", "groceries", "2025-04-02", "")
	mustInsert(t, store, models.ActionAddIncome, "3000", "salary", "2025-05-01", "")

	got, err := call(t, &TransactionsByCategory{env: env}, `{"category": "groceries", "start_date": "2025-05-01"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, got.(*ListResult).Count)

	got, err = call(t, &TransactionsByDateRange{env: env}, `{"start_date": "2025-05-01", "end_date": "2025-05-31"}`)
	require.NoError(t, err)
	assert.Equal(t, 3, got.(*ListResult).Count)

	_, err = call(t, &TransactionsByDateRange{env: env}, `{"start_date": "2025-05-01"}`)
	assert.Error(t, err)

	_, err = call(t, &TransactionsByCategory{env: env}, `{"category": "groceries", "start_date": "2025-13-01"}`)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	got, err = call(t, &GroupByCategory{env: env}, `{"include_income": false, "start_date": "2025-05-01", "end_date": "2025-05-31"}`)
	require.NoError(t, err)
	summary := got.(*SummaryResult).Summary
	require.Len(t, summary, 2)
	assert.Equal(t, "transportation", summary[0].Category)
	assert.True(t, decimal.RequireFromString("42.5").Equal(summary[1].TotalAmount))

	got, err = call(t, &GroupByCategory{env: env}, `{}`)
	require.NoError(t, err)
	assert.Len(t, got.(*SummaryResult).Summary, 3)

	got, err = call(t, &TransactionsByDescription{env: env}, `{"description": "uber"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, got.(*ListResult).Count)

	got, err = call(t, &AllTransactions{env: env}, `{}`)
	require.NoError(t, err)
	assert.Equal(t, 4, got.(*ListResult).Count)

	got, err = call(t, &TransactionByID{env: env}, `{"transaction_id": 2}`)
	require.NoError(t, err)
	assert.Equal(t, "Uber", got.(models.Transaction).Description)
}
