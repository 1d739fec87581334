package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/domain"
)

// fakeStore is a scriptable ExpenseStore.
type fakeStore struct {
	expenses []domain.Expense
	totals   []domain.CategoryTotal
	err      error
	queries  atomic.Int32
}

func (s *fakeStore) RecentExpenses(_ context.Context, limit int) ([]domain.Expense, error) {
	s.queries.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.expenses) {
		return s.expenses[:limit], nil
	}
	return s.expenses, nil
}

func (s *fakeStore) CategoryDistribution(_ context.Context) ([]domain.CategoryTotal, error) {
	s.queries.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.totals, nil
}

func (s *fakeStore) Ping(_ context.Context) error  { return s.err }
func (s *fakeStore) Close(_ context.Context) error { return nil }

// fakeClock is an adjustable clock for cache tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func noCache() *ResultCache {
	return NewResultCache(0, nil)
}

func TestRecentExpensesReturnsJSON(t *testing.T) {
	store := &fakeStore{expenses: []domain.Expense{
		{Date: "2026-08-03T10:00:00Z", Amount: 30, Category: "Transport", Description: "taxi"},
	}}
	tool := NewRecentExpensesTool(store, noCache(), slog.Default(), 5, 100)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{"limit": 1}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var expenses []domain.Expense
	require.NoError(t, json.Unmarshal([]byte(result.Content), &expenses))
	require.Len(t, expenses, 1)
	assert.Equal(t, "taxi", expenses[0].Description)
}

func TestRecentExpensesDefaultLimit(t *testing.T) {
	store := &fakeStore{expenses: make([]domain.Expense, 10)}
	tool := NewRecentExpensesTool(store, noCache(), slog.Default(), 5, 100)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)

	var expenses []domain.Expense
	require.NoError(t, json.Unmarshal([]byte(result.Content), &expenses))
	assert.Len(t, expenses, 5)
}

func TestDataSourceFailureBecomesErrorString(t *testing.T) {
	store := &fakeStore{err: domain.NewDomainError("MongoStore.RecentExpenses", domain.ErrDataSource, "connection refused")}
	tool := NewRecentExpensesTool(store, noCache(), slog.Default(), 5, 100)

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err, "tool boundary must not raise")
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(result.Content, "Error: "), "got %q", result.Content)
}

func TestCategoryDistribution(t *testing.T) {
	store := &fakeStore{totals: []domain.CategoryTotal{
		{Name: "Food", Value: 500},
		{Name: "Transport", Value: 120},
	}}
	tool := NewCategoryDistributionTool(store, noCache(), slog.Default())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var totals []domain.CategoryTotal
	require.NoError(t, json.Unmarshal([]byte(result.Content), &totals))
	assert.Equal(t, store.totals, totals)
}

func TestCacheAvoidsRedundantQueries(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cache := NewResultCache(5*time.Minute, clock.now)
	store := &fakeStore{totals: []domain.CategoryTotal{{Name: "Food", Value: 1}}}
	tool := NewCategoryDistributionTool(store, cache, slog.Default())

	for i := 0; i < 3; i++ {
		_, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), store.queries.Load())

	// After the TTL the next call hits the store again.
	clock.advance(5*time.Minute + time.Second)
	_, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.queries.Load())
}

func TestCacheKeyIncludesLimit(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	cache := NewResultCache(5*time.Minute, clock.now)
	store := &fakeStore{expenses: make([]domain.Expense, 10)}
	tool := NewRecentExpensesTool(store, cache, slog.Default(), 5, 100)

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"limit": 3}`))
	require.NoError(t, err)
	_, err = tool.Execute(context.Background(), json.RawMessage(`{"limit": 7}`))
	require.NoError(t, err)

	assert.Equal(t, int32(2), store.queries.Load(), "different limits are different cache keys")
}

func TestRenderChartReturnsAcknowledgment(t *testing.T) {
	tool := NewRenderChartTool(slog.Default())

	result, err := tool.Execute(context.Background(), json.RawMessage(
		`{"type":"pie","title":"Spending","data":[{"name":"Food","value":500}]}`))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Chart visual generated.", result.Content)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(slog.Default(), false)
	require.NoError(t, r.Register(NewRenderChartTool(slog.Default())))

	got, err := r.Get(domain.ToolRenderChart)
	require.NoError(t, err)
	assert.Equal(t, domain.ToolRenderChart, got.Name())
}

func TestRegistryDuplicateRejected(t *testing.T) {
	r := NewRegistry(slog.Default(), false)
	require.NoError(t, r.Register(NewRenderChartTool(slog.Default())))

	err := r.Register(NewRenderChartTool(slog.Default()))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.CodeInvalidInput, domain.ErrorCodeOf(err))
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry(slog.Default(), false)
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, domain.ErrToolNotFound)
}

func TestRegistrySchemas(t *testing.T) {
	r := NewRegistry(slog.Default(), false)
	require.NoError(t, r.Register(NewRenderChartTool(slog.Default())))
	require.NoError(t, r.Register(NewCategoryDistributionTool(&fakeStore{}, noCache(), slog.Default())))

	schemas := r.Schemas()
	assert.Len(t, schemas, 2)
}

func TestSchemaValidationRejectsBadParams(t *testing.T) {
	r := NewRegistry(slog.Default(), true)
	require.NoError(t, r.Register(NewRecentExpensesTool(&fakeStore{}, noCache(), slog.Default(), 5, 100)))

	got, err := r.Get(NameRecentExpenses)
	require.NoError(t, err)

	result, err := got.Execute(context.Background(), json.RawMessage(`{"limit": "five"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "Error:")
}
