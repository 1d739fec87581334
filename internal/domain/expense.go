package domain

import "context"

// Expense is a single recorded expense as exposed to the agent's tools.
type Expense struct {
	Date        string  `json:"date"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

// CategoryTotal is total spending for one expense category.
type CategoryTotal struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ExpenseStore is the read-side query interface over the expense records.
// Implementations provide best-effort freshness; the core holds no caching
// or consistency obligations beyond what the store gives it.
type ExpenseStore interface {
	// RecentExpenses returns the most recent expenses, newest first.
	RecentExpenses(ctx context.Context, limit int) ([]Expense, error)
	// CategoryDistribution returns total spending grouped by category,
	// omitting records without a category.
	CategoryDistribution(ctx context.Context) ([]CategoryTotal, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close(ctx context.Context) error
}
