// Package normalizer turns loosely typed extracted fields into validated
// transactions. Amounts are kept as exact decimals end to end.
package normalizer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xaenox/aiva/internal/models"
)

const dateLayout = "2006-01-02"

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// amountNoise is stripped from textual amounts before parsing
var amountNoise = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "", " ", "")

// Normalize validates a raw extracted record
func Normalize(raw map[string]any) (models.Transaction, error) {
	var tx models.Transaction

	tx.Action = parseActionField(raw["action"])

	amount, err := ParseAmount(raw["amount"])
	if err != nil {
		return models.Transaction{}, err
	}
	tx.Amount = amount

	category, err := ParseCategory(raw["category"])
	if err != nil {
		return models.Transaction{}, err
	}
	tx.Category = category

	date, err := ParseDate(raw["date"])
	if err != nil {
		return models.Transaction{}, err
	}
	tx.Date = date

	tx.Description = parseDescription(raw["description"])

	return tx, nil
}

// NormalizePatch validates only the fields present in raw
func NormalizePatch(raw map[string]any) (models.TransactionPatch, error) {
	var patch models.TransactionPatch

	if v, ok := raw["action"]; ok {
		a := parseActionField(v)
		if !a.Known() {
			return patch, &models.ValidationError{Field: "action", Value: v, Reason: "unknown action"}
		}
		patch.Action = &a
	}
	if v, ok := raw["amount"]; ok {
		amount, err := ParseAmount(v)
		if err != nil {
			return patch, err
		}
		patch.Amount = &amount
	}
	if v, ok := raw["category"]; ok {
		category, err := ParseCategory(v)
		if err != nil {
			return patch, err
		}
		patch.Category = &category
	}
	if v, ok := raw["date"]; ok {
		date, err := ParseDate(v)
		if err != nil {
			return patch, err
		}
		patch.Date = &date
	}
	if v, ok := raw["description"]; ok {
		d := parseDescription(v)
		patch.Description = &d
	}

	if patch.Empty() {
		return patch, &models.ValidationError{Field: "updates", Reason: "no recognised fields to update"}
	}
	return patch, nil
}

// ParseAmount converts v to a positive decimal rounded to cents
func ParseAmount(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)

	switch x := v.(type) {
	case nil:
		return decimal.Zero, &models.ValidationError{Field: "amount", Reason: "missing"}
	case json.Number:
		d, err = decimal.NewFromString(x.String())
	case string:
		d, err = decimal.NewFromString(amountNoise.Replace(strings.TrimSpace(x)))
	case float64:
		d = decimal.NewFromFloat(x)
	case float32:
		d = decimal.NewFromFloat32(x)
	case int:
		d = decimal.NewFromInt(int64(x))
	case int64:
		d = decimal.NewFromInt(x)
	case decimal.Decimal:
		d = x
	default:
		return decimal.Zero, &models.ValidationError{Field: "amount", Value: v, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
	if err != nil {
		return decimal.Zero, &models.ValidationError{Field: "amount", Value: v, Reason: "not a number"}
	}

	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, &models.ValidationError{Field: "amount", Value: v, Reason: "must be greater than zero"}
	}
	return d, nil
}

// ParseDate accepts only YYYY-MM-DD strings naming a real calendar day
func ParseDate(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &models.ValidationError{Field: "date", Value: v, Reason: "must be a YYYY-MM-DD string"}
	}
	s = strings.TrimSpace(s)
	if !datePattern.MatchString(s) {
		return "", &models.ValidationError{Field: "date", Value: s, Reason: "must match YYYY-MM-DD"}
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", &models.ValidationError{Field: "date", Value: s, Reason: "not a calendar date"}
	}
	return s, nil
}

// ParseCategory requires a non-empty label after trimming
func ParseCategory(v any) (string, error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &models.ValidationError{Field: "category", Value: v, Reason: "must not be empty"}
	}
	return s, nil
}

func parseActionField(v any) models.Action {
	s, _ := v.(string)
	return models.ParseAction(s)
}

func parseDescription(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// Failure is a record that was dropped from a batch
type Failure struct {
	Index int
	Err   error
}

// BatchResult holds the records that survived normalization and the ones that did not
type BatchResult struct {
	Records  []models.Transaction
	Failures []Failure
}

func (b BatchResult) Dropped() int { return len(b.Failures) }

// NormalizeBatch normalizes each record independently. A bad record never
// aborts the batch.
func NormalizeBatch(raws []map[string]any) BatchResult {
	var res BatchResult
	for i, raw := range raws {
		tx, err := Normalize(raw)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Index: i, Err: err})
			continue
		}
		res.Records = append(res.Records, tx)
	}
	return res
}

// DecodeBatch reads either {"transactions":[...]} or a single record object.
// Numbers are kept as json.Number.
func DecodeBatch(data []byte) ([]map[string]any, error) {
	var doc map[string]any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	if list, ok := doc["transactions"]; ok {
		items, ok := list.([]any)
		if !ok {
			return nil, fmt.Errorf("transactions must be a list, got %T", list)
		}
		out := make([]map[string]any, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			} else {
				out = append(out, map[string]any{})
			}
		}
		return out, nil
	}

	if _, ok := doc["amount"]; ok {
		return []map[string]any{doc}, nil
	}
	return nil, fmt.Errorf("no transactions in object")
}
