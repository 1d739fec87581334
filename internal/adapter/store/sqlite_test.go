package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "expenses.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func seed(t *testing.T, s *SQLiteStore, expenses ...domain.Expense) {
	t.Helper()
	for _, e := range expenses {
		require.NoError(t, s.AddExpense(context.Background(), e))
	}
}

func TestRecentExpensesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		domain.Expense{Date: "2026-08-01T10:00:00Z", Amount: 10, Category: "Food", Description: "lunch"},
		domain.Expense{Date: "2026-08-03T10:00:00Z", Amount: 30, Category: "Transport", Description: "taxi"},
		domain.Expense{Date: "2026-08-02T10:00:00Z", Amount: 20, Category: "Food", Description: "dinner"},
	)

	expenses, err := s.RecentExpenses(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, expenses, 2)
	assert.Equal(t, "taxi", expenses[0].Description)
	assert.Equal(t, "dinner", expenses[1].Description)
}

func TestRecentExpensesEmpty(t *testing.T) {
	s := newTestStore(t)
	expenses, err := s.RecentExpenses(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestCategoryDistributionGroupsAndSorts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		domain.Expense{Date: "2026-08-01T10:00:00Z", Amount: 100, Category: "Food"},
		domain.Expense{Date: "2026-08-02T10:00:00Z", Amount: 400, Category: "Food"},
		domain.Expense{Date: "2026-08-03T10:00:00Z", Amount: 120, Category: "Transport"},
	)

	totals, err := s.CategoryDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 2)
	assert.Equal(t, domain.CategoryTotal{Name: "Food", Value: 500}, totals[0])
	assert.Equal(t, domain.CategoryTotal{Name: "Transport", Value: 120}, totals[1])
}

func TestCategoryDistributionSkipsUncategorized(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		domain.Expense{Date: "2026-08-01T10:00:00Z", Amount: 50, Category: ""},
		domain.Expense{Date: "2026-08-02T10:00:00Z", Amount: 75, Category: "Bills"},
	)

	totals, err := s.CategoryDistribution(context.Background())
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "Bills", totals[0].Name)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestQueryAfterCloseIsDataSourceError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close(context.Background()))

	_, err := s.RecentExpenses(context.Background(), 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDataSource)
}
