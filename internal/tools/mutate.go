package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xaenox/aiva/internal/models"
	"github.com/xaenox/aiva/internal/normalizer"
	"github.com/xaenox/aiva/internal/oracle"
	"go.uber.org/zap"
)

// normalizeForInsert refuses records whose action is unknown
func normalizeForInsert(raw map[string]any) (models.Transaction, error) {
	tx, err := normalizer.Normalize(raw)
	if err != nil {
		return models.Transaction{}, err
	}
	if !tx.Action.Known() {
		return models.Transaction{}, &models.ValidationError{Field: "action", Value: raw["action"], Reason: "unknown action is never stored"}
	}
	return tx, nil
}

type InsertTransaction struct{ env Env }

func (t *InsertTransaction) Mutating() bool { return true }

func (t *InsertTransaction) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "insert_transaction",
		Description: "Record one transaction. Call it once for every transaction the user mentions.",
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{"transaction_data": transactionSchema},
			Required:   []string{"transaction_data"},
		},
	}
}

func (t *InsertTransaction) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	data, ok := args["transaction_data"].(map[string]any)
	if !ok {
		data = args
	}

	tx, err := normalizeForInsert(data)
	if err != nil {
		return nil, err
	}
	id, err := t.env.Store.Insert(ctx, tx)
	if err != nil {
		return nil, err
	}
	tx.ID = id

	t.env.logger().Info("Inserted transaction",
		zap.Int64("id", id),
		zap.String("action", string(tx.Action)),
		zap.String("category", tx.Category))
	return &MutationResult{Kind: MutationInsert, Records: []models.Transaction{tx}, Affected: 1}, nil
}

type InsertTransactions struct{ env Env }

func (t *InsertTransactions) Mutating() bool { return true }

func (t *InsertTransactions) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "insert_transactions",
		Description: "Record several transactions at once. Invalid records are skipped and reported.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"transactions": {Type: jsonschema.Array, Items: &transactionSchema},
			},
			Required: []string{"transactions"},
		},
	}
}

func (t *InsertTransactions) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	items, ok := args["transactions"].([]any)
	if !ok {
		return nil, fmt.Errorf("%w: transactions must be a list", ErrInvalidArguments)
	}

	result := &MutationResult{Kind: MutationInsert}
	for i, item := range items {
		data, ok := item.(map[string]any)
		if !ok {
			result.Failures = append(result.Failures, normalizer.Failure{
				Index: i,
				Err:   &models.ValidationError{Field: "transaction", Reason: "must be an object"},
			})
			continue
		}
		tx, err := normalizeForInsert(data)
		if err != nil {
			result.Failures = append(result.Failures, normalizer.Failure{Index: i, Err: err})
			continue
		}

		// A store failure stops the batch; earlier inserts stay committed
		id, err := t.env.Store.Insert(ctx, tx)
		if err != nil {
			return nil, err
		}
		tx.ID = id
		result.Records = append(result.Records, tx)
	}
	result.Affected = len(result.Records)
	result.Dropped = len(result.Failures)

	for _, f := range result.Failures {
		t.env.logger().Warn("Dropped transaction from batch", zap.Int("index", f.Index), zap.Error(f.Err))
	}
	return result, nil
}

type DeleteTransaction struct{ env Env }

func (t *DeleteTransaction) Mutating() bool { return true }

func (t *DeleteTransaction) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "delete_transaction",
		Description: "Delete one transaction by id.",
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{"transaction_id": idSchema},
			Required:   []string{"transaction_id"},
		},
	}
}

func (t *DeleteTransaction) Call(ctx context.Context, raw json.RawMessage) (any, error) {
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
	if err := t.env.Store.Delete(ctx, id); err != nil {
		return nil, err
	}

	t.env.logger().Info("Deleted transaction", zap.Int64("id", id))
	return &MutationResult{Kind: MutationDelete, Records: []models.Transaction{tx}, Affected: 1}, nil
}

type UpdateTransaction struct{ env Env }

func (t *UpdateTransaction) Mutating() bool { return true }

func (t *UpdateTransaction) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "update_transaction",
		Description: "Change fields of one transaction by id.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"transaction_id": idSchema,
				"updates":        updatesSchema,
			},
			Required: []string{"transaction_id", "updates"},
		},
	}
}

func (t *UpdateTransaction) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	id, err := parseID(args["transaction_id"])
	if err != nil {
		return nil, err
	}
	patch, err := normalizer.NormalizePatch(updatesFrom(args))
	if err != nil {
		return nil, err
	}

	updated, err := t.env.Store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}

	t.env.logger().Info("Updated transaction", zap.Int64("id", id))
	return &MutationResult{Kind: MutationUpdate, Records: []models.Transaction{updated}, Affected: 1}, nil
}

// DeleteByDescription deletes every transaction matching the text
type DeleteByDescription struct{ env Env }

func (t *DeleteByDescription) Mutating() bool { return true }

func (t *DeleteByDescription) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name: "delete_transactions_by_description",
		Description: "Delete ALL transactions whose description contains the text. " +
			"Look them up first if the user may mean only one.",
		Parameters: jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{"description": {Type: jsonschema.String}},
			Required:   []string{"description"},
		},
	}
}

func (t *DeleteByDescription) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	text, err := requireString(args, "description")
	if err != nil {
		return nil, err
	}

	matches, err := resolveDescription(ctx, t.env, text)
	if err != nil {
		return nil, err
	}

	result := &MutationResult{Kind: MutationDelete}
	for _, tx := range matches {
		if err := t.env.Store.Delete(ctx, tx.ID); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result.Records = append(result.Records, tx)
	}
	result.Affected = len(result.Records)

	t.env.logger().Info("Deleted transactions by description", zap.Int("count", result.Affected))
	return result, nil
}

// UpdateByDescription applies one patch to every transaction matching the text
type UpdateByDescription struct{ env Env }

func (t *UpdateByDescription) Mutating() bool { return true }

func (t *UpdateByDescription) Spec() oracle.ToolSpec {
	return oracle.ToolSpec{
		Name:        "update_transactions_by_description",
		Description: "Apply the same updates to ALL transactions whose description contains the text.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"description": {Type: jsonschema.String},
				"updates":     updatesSchema,
			},
			Required: []string{"description", "updates"},
		},
	}
}

func (t *UpdateByDescription) Call(ctx context.Context, raw json.RawMessage) (any, error) {
	args, err := decodeArgs(raw)
	if err != nil {
		return nil, err
	}
	text, err := requireString(args, "description")
	if err != nil {
		return nil, err
	}
	updates, ok := args["updates"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: updates must be an object", ErrInvalidArguments)
	}
	patch, err := normalizer.NormalizePatch(updates)
	if err != nil {
		return nil, err
	}

	matches, err := resolveDescription(ctx, t.env, text)
	if err != nil {
		return nil, err
	}

	result := &MutationResult{Kind: MutationUpdate}
	for _, tx := range matches {
		updated, err := t.env.Store.Update(ctx, tx.ID, patch)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return nil, err
		}
		result.Records = append(result.Records, updated)
	}
	result.Affected = len(result.Records)

	t.env.logger().Info("Updated transactions by description", zap.Int("count", result.Affected))
	return result, nil
}

func resolveDescription(ctx context.Context, env Env, text string) ([]models.Transaction, error) {
	matches, err := env.Store.GetByDescription(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, models.NotFoundf("no transactions match description %q", text)
	}
	if len(matches) > 1 {
		env.logger().Info("Description matched several transactions", zap.Int("count", len(matches)))
	}
	return matches, nil
}
