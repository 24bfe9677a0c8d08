package bot

import (
	"fmt"
	"strings"

	"github.com/xaenox/aiva/internal/models"
)

var actionLabels = map[models.Action]string{
	models.ActionAddExpense:    "Expense",
	models.ActionRemoveExpense: "Expense refund",
	models.ActionAddIncome:     "Income",
	models.ActionRemoveIncome:  "Income reversal",
}

// escapeMarkdown escapes the characters MarkdownV2 reserves
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func formatTransaction(tx models.Transaction) string {
	label, ok := actionLabels[tx.Action]
	if !ok {
		label = string(tx.Action)
	}
	line := fmt.Sprintf("%s %s · %s · %s", label, tx.Amount.StringFixed(2), tx.Category, tx.Date)
	if tx.Description != "" {
		line += " · " + tx.Description
	}
	if tx.ID != 0 {
		line = fmt.Sprintf("#%d %s", tx.ID, line)
	}
	return "• " + escapeMarkdown(line)
}

// formatResponse renders a pipeline response as a MarkdownV2 chat reply
func formatResponse(resp *models.Response) string {
	var sb strings.Builder

	if resp.Error != nil {
		sb.WriteString("⚠️ " + escapeMarkdown(*resp.Error) + "\n")
	}

	if len(resp.Transactions) > 0 {
		sb.WriteString("*Recorded:*\n")
		for _, tx := range resp.Transactions {
			sb.WriteString(formatTransaction(tx) + "\n")
		}
		if resp.Degraded {
			sb.WriteString("_" + escapeMarkdown("These were read from my reply and may not be saved.") + "_\n")
		}
	}

	if a := resp.Analytics; a != nil {
		if len(a.Summary) > 0 {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString("*Summary:*\n")
			for _, s := range a.Summary {
				line := fmt.Sprintf("%s: %s (%d)", s.Category, s.TotalAmount.StringFixed(2), s.TransactionCount)
				sb.WriteString("• " + escapeMarkdown(line) + "\n")
			}
		}
		if content := strings.TrimSpace(a.Content); content != "" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(escapeMarkdown(content) + "\n")
		}
	}

	if resp.Dropped > 0 {
		sb.WriteString(escapeMarkdown(fmt.Sprintf("(%d entries could not be read)", resp.Dropped)) + "\n")
	}

	if sb.Len() == 0 {
		return escapeMarkdown("I couldn't find anything to record.")
	}
	return strings.TrimRight(sb.String(), "\n")
}
