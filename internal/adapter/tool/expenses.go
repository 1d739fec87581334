package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"finassist/internal/domain"
	"finassist/internal/infra/tracer"
)

// Tool names exposed to the model.
const (
	NameRecentExpenses       = "get_recent_expenses"
	NameCategoryDistribution = "get_category_distribution"
)

// RecentExpensesTool returns the user's most recent expense records.
type RecentExpensesTool struct {
	store        domain.ExpenseStore
	cache        *ResultCache
	logger       *slog.Logger
	defaultLimit int
	maxLimit     int
}

// NewRecentExpensesTool creates the tool. Non-positive limits fall back to
// 5 and 100.
func NewRecentExpensesTool(store domain.ExpenseStore, cache *ResultCache, logger *slog.Logger, defaultLimit, maxLimit int) *RecentExpensesTool {
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	if maxLimit <= 0 {
		maxLimit = 100
	}
	return &RecentExpensesTool{
		store:        store,
		cache:        cache,
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
	}
}

func (t *RecentExpensesTool) Name() string { return NameRecentExpenses }

func (t *RecentExpensesTool) Description() string {
	return "Retrieves the user's most recent expenses. Returns a JSON array of {date, amount, category, description}."
}

func (t *RecentExpensesTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"limit": {
					"type": "integer",
					"minimum": 1,
					"description": "Number of expenses to return (default 5)"
				}
			},
			"additionalProperties": false
		}`),
	}
}

type recentExpensesParams struct {
	Limit int `json:"limit"`
}

func (t *RecentExpensesTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_recent_expenses", t.logger, params,
		func(ctx context.Context, span trace.Span, p recentExpensesParams) (any, error) {
			limit := p.Limit
			if limit <= 0 {
				limit = t.defaultLimit
			}
			if limit > t.maxLimit {
				limit = t.maxLimit
			}
			span.SetAttributes(tracer.IntAttr("tool.limit", limit))

			key := fmt.Sprintf("%s:%d", t.Name(), limit)
			if cached, ok := t.cache.Get(key); ok {
				span.SetAttributes(tracer.StringAttr("tool.cache", "hit"))
				return cached, nil
			}

			expenses, err := t.store.RecentExpenses(ctx, limit)
			if err != nil {
				return nil, err
			}
			if expenses == nil {
				expenses = []domain.Expense{}
			}

			data, err := json.MarshalIndent(expenses, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("marshal expenses: %w", err)
			}

			t.cache.Put(key, string(data))
			return string(data), nil
		},
	)
}

// CategoryDistributionTool aggregates total spending per category.
type CategoryDistributionTool struct {
	store  domain.ExpenseStore
	cache  *ResultCache
	logger *slog.Logger
}

// NewCategoryDistributionTool creates the tool.
func NewCategoryDistributionTool(store domain.ExpenseStore, cache *ResultCache, logger *slog.Logger) *CategoryDistributionTool {
	return &CategoryDistributionTool{store: store, cache: cache, logger: logger}
}

func (t *CategoryDistributionTool) Name() string { return NameCategoryDistribution }

func (t *CategoryDistributionTool) Description() string {
	return "Aggregates total spending by category. Returns a JSON array of {name, value} suitable for charting."
}

func (t *CategoryDistributionTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {},
			"additionalProperties": false
		}`),
	}
}

func (t *CategoryDistributionTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_category_distribution", t.logger, params,
		func(ctx context.Context, span trace.Span, _ struct{}) (any, error) {
			if cached, ok := t.cache.Get(t.Name()); ok {
				span.SetAttributes(tracer.StringAttr("tool.cache", "hit"))
				return cached, nil
			}

			totals, err := t.store.CategoryDistribution(ctx)
			if err != nil {
				return nil, err
			}
			if totals == nil {
				totals = []domain.CategoryTotal{}
			}

			data, err := json.MarshalIndent(totals, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("marshal distribution: %w", err)
			}

			t.cache.Put(t.Name(), string(data))
			return string(data), nil
		},
	)
}
