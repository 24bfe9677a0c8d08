package storage

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xaenox/aiva/internal/models"
)

// summarize folds transactions into signed per-category totals. Categories
// that differ only in case or surrounding space share a total.
func summarize(txs []models.Transaction, filter models.SummaryFilter) []models.CategorySummary {
	byCategory := make(map[string]*models.CategorySummary)
	for _, tx := range txs {
		if !filter.Selects(tx.Action, tx.Date) {
			continue
		}
		key := categoryKey(tx.Category)
		s, ok := byCategory[key]
		if !ok {
			s = &models.CategorySummary{Category: key, TotalAmount: decimal.Zero}
			byCategory[key] = s
		}
		s.TotalAmount = s.TotalAmount.Add(tx.Amount.Mul(decimal.NewFromInt(int64(tx.Action.Sign()))))
		s.TransactionCount++
	}

	out := make([]models.CategorySummary, 0, len(byCategory))
	for _, s := range byCategory {
		out = append(out, *s)
	}
	sortSummaries(out)
	return out
}

func sortSummaries(out []models.CategorySummary) {
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalAmount.Cmp(out[j].TotalAmount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
}

// selectedActions lists the actions a summary filter aggregates
func selectedActions(filter models.SummaryFilter) []models.Action {
	var actions []models.Action
	if filter.IncludeExpenses {
		actions = append(actions, models.ActionAddExpense, models.ActionRemoveExpense)
	}
	if filter.IncludeIncome {
		actions = append(actions, models.ActionAddIncome, models.ActionRemoveIncome)
	}
	return actions
}

func categoryKey(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func sameCategory(a, b string) bool {
	return categoryKey(a) == categoryKey(b)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func sortByDate(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].Date != txs[j].Date {
			return txs[i].Date < txs[j].Date
		}
		return txs[i].ID < txs[j].ID
	})
}
