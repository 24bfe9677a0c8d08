package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xaenox/aiva/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// dialect captures the differences between the SQL backends
type dialect struct {
	name       string
	migration  string
	amountExpr string
	dateExpr   string
	forUpdate  string
	returning  bool
	sumInSQL   bool
	numbered   bool
}

// SQLStorage implements Storage on database/sql. Every mutation runs in its
// own transaction.
type SQLStorage struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLStorage(db *sql.DB, d dialect, logger *zap.Logger) (*SQLStorage, error) {
	storage := &SQLStorage{db: db, dialect: d, logger: logger}

	// Initialize database schema
	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}
	return storage, nil
}

func (s *SQLStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations/" + s.dialect.migration)
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for dialects that number them
func (s *SQLStorage) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// withTx runs fn in a transaction, committing on success and rolling back on
// any error or panic
func (s *SQLStorage) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &models.StoreError{Op: op, Err: fmt.Errorf("begin: %w", err)}
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("Failed to roll back transaction", zap.String("op", op), zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &models.StoreError{Op: op, Err: fmt.Errorf("commit: %w", err)}
	}
	committed = true
	return nil
}

func (s *SQLStorage) selectColumns() string {
	return fmt.Sprintf("id, action, %s, category, %s, description", s.dialect.amountExpr, s.dialect.dateExpr)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var (
		tx     models.Transaction
		action string
	)
	if err := row.Scan(&tx.ID, &action, &tx.Amount, &tx.Category, &tx.Date, &tx.Description); err != nil {
		return models.Transaction{}, err
	}
	tx.Action = models.Action(action)
	return tx, nil
}

func (s *SQLStorage) Insert(ctx context.Context, t models.Transaction) (int64, error) {
	var id int64
	err := s.withTx(ctx, "insert", func(tx *sql.Tx) error {
		query := `
			INSERT INTO transactions (action, amount, category, date, description)
			VALUES (?, ?, ?, ?, ?)`
		args := []any{string(t.Action), t.Amount.StringFixed(2), t.Category, t.Date, t.Description}

		if s.dialect.returning {
			if err := tx.QueryRowContext(ctx, s.rebind(query+" RETURNING id"), args...).Scan(&id); err != nil {
				return &models.StoreError{Op: "insert", Err: err}
			}
			return nil
		}

		res, err := tx.ExecContext(ctx, s.rebind(query), args...)
		if err != nil {
			return &models.StoreError{Op: "insert", Err: err}
		}
		if id, err = res.LastInsertId(); err != nil {
			return &models.StoreError{Op: "insert", Err: err}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *SQLStorage) GetByID(ctx context.Context, id int64) (models.Transaction, error) {
	query := "SELECT " + s.selectColumns() + " FROM transactions WHERE id = ?"
	t, err := scanTransaction(s.db.QueryRowContext(ctx, s.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Transaction{}, models.NotFoundf("no transaction with id %d", id)
	}
	if err != nil {
		return models.Transaction{}, &models.StoreError{Op: "get by id", Err: err}
	}
	return t, nil
}

func (s *SQLStorage) GetByCategory(ctx context.Context, category string, rng models.DateRange) ([]models.Transaction, error) {
	where, args := rangeClause(rng)
	where = append([]string{"LOWER(TRIM(category)) = LOWER(TRIM(?))"}, where...)
	args = append([]any{strings.TrimSpace(category)}, args...)
	return s.query(ctx, "get by category", where, args)
}

func (s *SQLStorage) GetByDateRange(ctx context.Context, start, end string) ([]models.Transaction, error) {
	where, args := rangeClause(models.DateRange{Start: start, End: end})
	return s.query(ctx, "get by date range", where, args)
}

func (s *SQLStorage) GetByDescription(ctx context.Context, substring string) ([]models.Transaction, error) {
	pattern := "%" + escapeLike(strings.ToLower(substring)) + "%"
	return s.query(ctx, "get by description", []string{`LOWER(description) LIKE ? ESCAPE '\'`}, []any{pattern})
}

func (s *SQLStorage) GetAll(ctx context.Context) ([]models.Transaction, error) {
	return s.query(ctx, "get all", nil, nil)
}

func (s *SQLStorage) query(ctx context.Context, op string, where []string, args []any) ([]models.Transaction, error) {
	query := "SELECT " + s.selectColumns() + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, &models.StoreError{Op: op, Err: err}
	}
	defer rows.Close()

	out := make([]models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, &models.StoreError{Op: op, Err: fmt.Errorf("scan: %w", err)}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Op: op, Err: err}
	}
	return out, nil
}

func (s *SQLStorage) GroupByCategory(ctx context.Context, filter models.SummaryFilter) ([]models.CategorySummary, error) {
	actions := selectedActions(filter)
	if len(actions) == 0 {
		return []models.CategorySummary{}, nil
	}

	where, args := rangeClause(filter.Range)
	placeholders := make([]string, len(actions))
	for i, a := range actions {
		placeholders[i] = "?"
		args = append(args, string(a))
	}
	where = append(where, "action IN ("+strings.Join(placeholders, ", ")+")")

	if !s.dialect.sumInSQL {
		txs, err := s.query(ctx, "group by category", where, args)
		if err != nil {
			return nil, err
		}
		return summarize(txs, filter), nil
	}

	query := `
		SELECT LOWER(TRIM(category)),
		       SUM(CASE WHEN action IN ('remove_expense', 'remove_income') THEN -amount ELSE amount END)::text,
		       COUNT(*)
		FROM transactions
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY LOWER(TRIM(category))`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, &models.StoreError{Op: "group by category", Err: err}
	}
	defer rows.Close()

	out := make([]models.CategorySummary, 0)
	for rows.Next() {
		var summary models.CategorySummary
		var total decimal.Decimal
		if err := rows.Scan(&summary.Category, &total, &summary.TransactionCount); err != nil {
			return nil, &models.StoreError{Op: "group by category", Err: fmt.Errorf("scan: %w", err)}
		}
		summary.TotalAmount = total
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Op: "group by category", Err: err}
	}
	sortSummaries(out)
	return out, nil
}

func (s *SQLStorage) Delete(ctx context.Context, id int64) error {
	return s.withTx(ctx, "delete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind("DELETE FROM transactions WHERE id = ?"), id)
		if err != nil {
			return &models.StoreError{Op: "delete", Err: err}
		}

		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return &models.StoreError{Op: "delete", Err: fmt.Errorf("rows affected: %w", err)}
		}
		if rowsAffected == 0 {
			return models.NotFoundf("no transaction with id %d", id)
		}
		return nil
	})
}

func (s *SQLStorage) Update(ctx context.Context, id int64, patch models.TransactionPatch) (models.Transaction, error) {
	var updated models.Transaction
	err := s.withTx(ctx, "update", func(tx *sql.Tx) error {
		query := "SELECT " + s.selectColumns() + " FROM transactions WHERE id = ?" + s.dialect.forUpdate
		current, err := scanTransaction(tx.QueryRowContext(ctx, s.rebind(query), id))
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf("no transaction with id %d", id)
		}
		if err != nil {
			return &models.StoreError{Op: "update", Err: err}
		}

		updated = patch.Apply(current)
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE transactions
			SET action = ?, amount = ?, category = ?, date = ?, description = ?
			WHERE id = ?`),
			string(updated.Action), updated.Amount.StringFixed(2), updated.Category, updated.Date, updated.Description, id)
		if err != nil {
			return &models.StoreError{Op: "update", Err: err}
		}
		return nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return updated, nil
}

// Thread methods
func (s *SQLStorage) LoadThread(ctx context.Context, threadID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind("SELECT payload FROM thread_messages WHERE thread_id = ? ORDER BY id ASC"), threadID)
	if err != nil {
		return nil, &models.StoreError{Op: "load thread", Err: err}
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, &models.StoreError{Op: "load thread", Err: err}
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(payload), &msg); err != nil {
			s.logger.Warn("Skipping unreadable thread message", zap.String("thread_id", threadID), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &models.StoreError{Op: "load thread", Err: err}
	}
	return msgs, nil
}

func (s *SQLStorage) AppendThread(ctx context.Context, threadID string, msgs ...models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return s.withTx(ctx, "append thread", func(tx *sql.Tx) error {
		for _, msg := range msgs {
			payload, err := json.Marshal(msg)
			if err != nil {
				return &models.StoreError{Op: "append thread", Err: err}
			}
			if _, err := tx.ExecContext(ctx,
				s.rebind("INSERT INTO thread_messages (thread_id, payload) VALUES (?, ?)"),
				threadID, string(payload)); err != nil {
				return &models.StoreError{Op: "append thread", Err: err}
			}
		}
		return nil
	})
}

func (s *SQLStorage) DeleteThread(ctx context.Context, threadID string) error {
	return s.withTx(ctx, "delete thread", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM thread_messages WHERE thread_id = ?"), threadID); err != nil {
			return &models.StoreError{Op: "delete thread", Err: err}
		}
		return nil
	})
}

func (s *SQLStorage) Close() error {
	return s.db.Close()
}

func rangeClause(rng models.DateRange) ([]string, []any) {
	var (
		where []string
		args  []any
	)
	if rng.Start != "" {
		where = append(where, "date >= ?")
		args = append(args, rng.Start)
	}
	if rng.End != "" {
		where = append(where, "date <= ?")
		args = append(args, rng.End)
	}
	return where, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
