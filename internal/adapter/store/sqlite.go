package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"finassist/internal/domain"
)

// Compile-time interface check.
var _ domain.ExpenseStore = (*SQLiteStore)(nil)

// SQLiteStore is a file-backed expense store for local development and
// deployments without a MongoDB instance.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs
// the schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open expense db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate expense db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS expenses (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			date        TEXT NOT NULL,
			amount      REAL NOT NULL,
			category    TEXT,
			description TEXT
		)
	`)
	return err
}

// AddExpense inserts one expense record. Used by seeding scripts and tests;
// the agent's tools are read-only.
func (s *SQLiteStore) AddExpense(ctx context.Context, e domain.Expense) error {
	date := e.Date
	if date == "" {
		date = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO expenses (date, amount, category, description) VALUES (?, ?, ?, ?)",
		date, e.Amount, e.Category, e.Description,
	)
	if err != nil {
		return domain.WrapOp("SQLiteStore.AddExpense", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}
	return nil
}

// RecentExpenses implements domain.ExpenseStore.
func (s *SQLiteStore) RecentExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT date, amount, COALESCE(category, ''), COALESCE(description, '') FROM expenses ORDER BY date DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, domain.WrapOp("SQLiteStore.RecentExpenses", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}
	defer rows.Close()

	var expenses []domain.Expense
	for rows.Next() {
		var e domain.Expense
		if err := rows.Scan(&e.Date, &e.Amount, &e.Category, &e.Description); err != nil {
			return nil, domain.WrapOp("SQLiteStore.RecentExpenses", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapOp("SQLiteStore.RecentExpenses", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}
	return expenses, nil
}

// CategoryDistribution implements domain.ExpenseStore. Uncategorized
// records are excluded, matching the Mongo aggregation.
func (s *SQLiteStore) CategoryDistribution(ctx context.Context) ([]domain.CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, SUM(amount) AS value
		FROM expenses
		WHERE category IS NOT NULL AND category != ''
		GROUP BY category
		ORDER BY value DESC
	`)
	if err != nil {
		return nil, domain.WrapOp("SQLiteStore.CategoryDistribution", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}
	defer rows.Close()

	var totals []domain.CategoryTotal
	for rows.Next() {
		var t domain.CategoryTotal
		if err := rows.Scan(&t.Name, &t.Value); err != nil {
			return nil, domain.WrapOp("SQLiteStore.CategoryDistribution", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapOp("SQLiteStore.CategoryDistribution", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}
	return totals, nil
}

// Ping implements domain.ExpenseStore.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements domain.ExpenseStore.
func (s *SQLiteStore) Close(_ context.Context) error {
	return s.db.Close()
}
