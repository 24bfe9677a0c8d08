package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/aiva/internal/classifier"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/oracle/oracletest"
	"github.com/xaenox/aiva/internal/storage"
	"github.com/xaenox/aiva/internal/tools"
	"go.uber.org/zap"
)

type failingStore struct {
	*storage.MemoryStorage
}

func (failingStore) Insert(context.Context, models.Transaction) (int64, error) {
	return 0, &models.StoreError{Op: "insert", Err: errors.New("disk full")}
}

func testEnv(store storage.TransactionStore) tools.Env {
	return tools.Env{
		Store:      store,
		Categories: []string{"groceries", "transportation"},
		Clock:      func() time.Time { return time.Date(2025, 5, 12, 12, 0, 0, 0, time.UTC) },
	}
}

func newDataEntry(t *testing.T, script *oracletest.Script, store storage.TransactionStore, maxRetries int) *DataEntryHandler {
	t.Helper()
	set, err := tools.DataEntryTools(testEnv(store))
	require.NoError(t, err)
	runner := NewRunner(script, set, time.Second, 8, zap.NewNop())
	return NewDataEntryHandler(runner, classifier.NewKeywordDetector(), maxRetries, zap.NewNop())
}

func newAnalysis(t *testing.T, script *oracletest.Script, store storage.TransactionStore) *AnalysisHandler {
	t.Helper()
	set, err := tools.AnalysisTools(testEnv(store))
	require.NoError(t, err)
	h, err := NewAnalysisHandler(NewRunner(script, set, time.Second, 8, zap.NewNop()), zap.NewNop())
	require.NoError(t, err)
	return h
}

func TestDataEntryRecordsEveryTransaction(t *testing.T) {
	store := storage.NewMemoryStorage()
	script := oracletest.New(
		oracletest.Call("get_current_date", `{}`),
		oracletest.Call("insert_transaction", `{"transaction_data": {"action": "add_expense", "amount": 42.50, "category": "groceries", "date": "2025-05-11"}}`),
		oracletest.Call("insert_transaction", `{"transaction_data": {"action": "add_expense", "amount": 100, "category": "transportation", "date": "2025-05-10", "description": "Uber"}}`),
		oracletest.Reply("Recorded 2 expenses."),
	)

	res, err := newDataEntry(t, script, store, 1).Handle(context.Background(), "I spent $42.50 on groceries yesterday and $100 on Uber the day before", nil)
	require.NoError(t, err)

	assert.Equal(t, models.RouteDataEntry, res.Route)
	assert.False(t, res.Degraded)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, "2025-05-11", res.Transactions[0].Date)
	assert.Equal(t, "2025-05-10", res.Transactions[1].Date)
	assert.Equal(t, "Recorded 2 expenses.", res.FinalText)
	assert.Len(t, res.Mutations, 2)

	all, err := store.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// every request after the first carries the tool results so far
	reqs := script.Requests()
	require.Len(t, reqs, 4)
	last := reqs[3].Messages
	assert.Equal(t, models.RoleTool, last[len(last)-1].Role)
	assert.Equal(t, models.RoleUser, last[0].Role)
}

func TestDataEntryRetriesWhenNothingWasRecorded(t *testing.T) {
	store := storage.NewMemoryStorage()
	script := oracletest.New(
		oracletest.Reply("You spent $5 on coffee."),
		oracletest.Call("insert_transaction", `{"action": "add_expense", "amount": 5, "category": "dining", "date": "2025-05-12"}`),
		oracletest.Reply("Recorded."),
	)

	res, err := newDataEntry(t, script, store, 1).Handle(context.Background(), "spent $5 on coffee", nil)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "Recorded.", res.FinalText)

	reqs := script.Requests()
	require.Len(t, reqs, 3)
	amended := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, models.RoleUser, amended.Role)
	assert.Contains(t, amended.Content, "MUST call insert_transaction")
}

func TestDataEntryDegradesAfterRetry(t *testing.T) {
	script := oracletest.New(
		oracletest.Reply("You spent $5 on coffee."),
		oracletest.Reply("Still just text."),
	)

	res, err := newDataEntry(t, script, storage.NewMemoryStorage(), 1).Handle(context.Background(), "spent $5 on coffee", nil)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, "Still just text.", res.FinalText)
	assert.Zero(t, script.Remaining())
}

func TestDataEntryNoRetryForNonTransactionPrompt(t *testing.T) {
	script := oracletest.New(oracletest.Reply("Hello! Tell me about a purchase."))

	res, err := newDataEntry(t, script, storage.NewMemoryStorage(), 1).Handle(context.Background(), "hello there", nil)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.Len(t, script.Requests(), 1)
}

func TestDataEntryNotFoundIsReportedToOracle(t *testing.T) {
	store := storage.NewMemoryStorage()
	script := oracletest.New(
		oracletest.Call("delete_transaction", `{"transaction_id": 123}`),
		oracletest.Reply("There is no transaction 123."),
	)

	res, err := newDataEntry(t, script, store, 1).Handle(context.Background(), "Delete transaction 123", nil)
	require.NoError(t, err)
	require.Len(t, res.Problems, 1)
	assert.ErrorIs(t, res.Problems[0], models.ErrNotFound)
	assert.Empty(t, res.Transactions)
	assert.False(t, res.Degraded)

	reqs := script.Requests()
	toolMsg := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, models.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, `"success":false`)
}

func TestDataEntryReportsDroppedRecords(t *testing.T) {
	script := oracletest.New(
		oracletest.Call("insert_transactions", `{"transactions": [
			{"action": "add_expense", "amount": 10, "category": "dining", "date": "2025-05-11"},
			{"action": "add_expense", "amount": 0, "category": "dining", "date": "2025-05-11"}
		]}`),
		oracletest.Reply("Recorded 1, skipped 1."),
	)

	res, err := newDataEntry(t, script, storage.NewMemoryStorage(), 1).Handle(context.Background(), "spent 10 and 0 on dining", nil)
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 1)
	assert.Equal(t, 1, res.Dropped)
}

func TestDataEntryCountsRejectedSingleInsert(t *testing.T) {
	script := oracletest.New(
		oracletest.Calls(
			models.ToolCall{ID: "c1", Name: "insert_transaction", Args: json.RawMessage(`{"action": "add_expense", "amount": 8, "category": "dining", "date": "yesterday-ish"}`)},
			models.ToolCall{ID: "c2", Name: "insert_transaction", Args: json.RawMessage(`{"action": "add_expense", "amount": 8, "category": "dining", "date": "2025-05-12"}`)},
		),
		oracletest.Reply("Recorded one of two."),
	)

	res, err := newDataEntry(t, script, storage.NewMemoryStorage(), 1).Handle(context.Background(), "two lunches at $8", nil)
	require.NoError(t, err)
	assert.Len(t, res.Transactions, 1)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Problems, 1)
	var invalid *models.ValidationError
	assert.ErrorAs(t, res.Problems[0], &invalid)
}

func TestStoreFailureAborts(t *testing.T) {
	script := oracletest.New(
		oracletest.Call("insert_transaction", `{"action": "add_expense", "amount": 5, "category": "dining", "date": "2025-05-12"}`),
		oracletest.Reply("unreachable"),
	)

	_, err := newDataEntry(t, script, failingStore{storage.NewMemoryStorage()}, 1).Handle(context.Background(), "spent $5 on coffee", nil)
	assert.ErrorIs(t, err, models.ErrStore)
}

func TestOracleFailureAborts(t *testing.T) {
	script := oracletest.New(oracletest.Fail("timeout"))

	_, err := newDataEntry(t, script, storage.NewMemoryStorage(), 1).Handle(context.Background(), "spent $5 on coffee", nil)
	assert.ErrorIs(t, err, models.ErrOracleUnavailable)
}

func TestRunnerStepLimit(t *testing.T) {
	set, err := tools.AnalysisTools(testEnv(storage.NewMemoryStorage()))
	require.NoError(t, err)
	script := oracletest.New(
		oracletest.Call("get_current_date", `{}`),
		oracletest.Call("get_current_date", `{}`),
		oracletest.Call("get_current_date", `{}`),
	)

	run, err := NewRunner(script, set, time.Second, 2, zap.NewNop()).Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "today?"}})
	require.NoError(t, err)
	assert.True(t, run.Exhausted)
	assert.Empty(t, run.FinalText)
	assert.Len(t, run.Invocations, 2)
	assert.Equal(t, 1, script.Remaining())
}

func TestRunnerUnknownToolIsReported(t *testing.T) {
	set, err := tools.AnalysisTools(testEnv(storage.NewMemoryStorage()))
	require.NoError(t, err)
	script := oracletest.New(
		oracletest.Call("insert_transaction", `{"amount": 5}`),
		oracletest.Reply("I cannot do that here."),
	)

	run, err := NewRunner(script, set, time.Second, 4, zap.NewNop()).Run(context.Background(), "", []models.Message{{Role: models.RoleUser, Content: "add 5"}})
	require.NoError(t, err)
	require.Len(t, run.Invocations, 1)
	assert.ErrorIs(t, run.Invocations[0].Err, tools.ErrInvalidArguments)
	assert.False(t, run.MutationAttempted())
}

func TestAnalysisUsesLastSummary(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedStore(t, store)
	script := oracletest.New(
		oracletest.Call("get_current_date", `{}`),
		oracletest.Call("group_transactions_by_category", `{"include_income": false}`),
		oracletest.Call("group_transactions_by_category", `{"include_income": false, "start_date": "2025-05-11"}`),
		oracletest.Reply("You spent $42.50 on groceries."),
	)

	res, err := newAnalysis(t, script, store).Handle(context.Background(), "How much did I spend since yesterday?", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RouteAnalysis, res.Route)
	assert.True(t, res.HasSummary)
	require.Len(t, res.Summary, 1)
	assert.Equal(t, "groceries", res.Summary[0].Category)
	assert.Empty(t, res.Transactions)

	for _, req := range script.Requests() {
		for _, spec := range req.Tools {
			assert.NotContains(t, spec.Name, "insert")
			assert.NotContains(t, spec.Name, "delete")
			assert.NotContains(t, spec.Name, "update")
		}
	}
}

func TestAnalysisFreeText(t *testing.T) {
	script := oracletest.New(oracletest.Reply("You have no transactions yet."))

	res, err := newAnalysis(t, script, storage.NewMemoryStorage()).Handle(context.Background(), "summarize my spending", nil)
	require.NoError(t, err)
	assert.False(t, res.HasSummary)
	assert.Equal(t, "You have no transactions yet.", res.FinalText)
}

func TestAnalysisHandlerRejectsMutatingRunner(t *testing.T) {
	set, err := tools.DataEntryTools(testEnv(storage.NewMemoryStorage()))
	require.NoError(t, err)
	_, err = NewAnalysisHandler(NewRunner(oracletest.New(), set, time.Second, 4, zap.NewNop()), zap.NewNop())
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestHistoryIsForwarded(t *testing.T) {
	script := oracletest.New(oracletest.Reply("Sure."))
	history := []models.Message{
		{Role: models.RoleUser, Content: "I spent $5 on coffee"},
		{Role: models.RoleAssistant, Content: "Recorded."},
	}

	_, err := newAnalysis(t, script, storage.NewMemoryStorage()).Handle(context.Background(), "and in total?", history)
	require.NoError(t, err)

	msgs := script.Requests()[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, "I spent $5 on coffee", msgs[0].Content)
	assert.Equal(t, "and in total?", msgs[2].Content)
}

func seedStore(t *testing.T, store *storage.MemoryStorage) {
	t.Helper()
	set, err := tools.DataEntryTools(testEnv(store))
	require.NoError(t, err)
	insert, _ := set.Lookup("insert_transactions")
	_, err = insert.Call(context.Background(), []byte(`{"transactions": [
		{"action": "add_expense", "amount": 42.50, "category": "groceries", "date": "2025-05-11"},
		{"action": "add_expense", "amount": 100, "category": "transportation", "date": "2025-05-10"}
	]}`))
	require.NoError(t, err)
}

func TestSystemPromptPreferences(t *testing.T) {
	assert.Equal(t, "base", systemPrompt(context.Background(), "base"))
	assert.Equal(t, "base", systemPrompt(WithPreferences(context.Background(), models.RequestContext{}), "base"))

	ctx := WithPreferences(context.Background(), models.RequestContext{Currency: "EUR", Locale: "pt-PT", UserTimezone: "Europe/Lisbon"})
	got := systemPrompt(ctx, "base")
	assert.True(t, strings.HasPrefix(got, "base\n\n"))
	assert.Contains(t, got, "EUR")
	assert.Contains(t, got, "pt-PT")
	assert.Contains(t, got, "Europe/Lisbon")
}
