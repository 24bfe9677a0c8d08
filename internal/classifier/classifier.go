package classifier

import (
	"regexp"
	"strings"
)

var (
	currencyPattern = regexp.MustCompile(`(?i)([$€£¥₹]\s*\d)|(\d[\d,.]*\s*(\$|€|£|usd|eur|gbp|dollars?|euros?|pounds?|bucks))`)
	digitPattern    = regexp.MustCompile(`\d`)
)

// KeywordDetector is a cheap local heuristic for prompts that describe money
// changing hands. It never routes; it only tells the data entry handler that
// a turn without a store mutation is incomplete.
type KeywordDetector struct {
	keywords map[string][]string
}

func NewKeywordDetector() *KeywordDetector {
	return &KeywordDetector{
		keywords: map[string][]string{
			"expense": {"spent", "spend", "paid", "pay", "bought", "buy", "purchase", "cost", "charged", "bill"},
			"income":  {"earned", "earn", "received", "receive", "got paid", "salary", "income", "refund", "sold"},
			"edit":    {"delete", "remove", "update", "change", "correct", "fix"},
		},
	}
}

// LooksLikeTransaction reports whether the prompt plainly describes a transaction
func (d *KeywordDetector) LooksLikeTransaction(prompt string) bool {
	if currencyPattern.MatchString(prompt) {
		return true
	}
	if !digitPattern.MatchString(prompt) {
		return false
	}

	content := strings.ToLower(prompt)
	for _, keywords := range d.keywords {
		for _, keyword := range keywords {
			if strings.Contains(content, keyword) {
				return true
			}
		}
	}
	return false
}
