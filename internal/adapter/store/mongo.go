package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"finassist/internal/domain"
	"finassist/internal/infra/config"
)

const defaultQueryTimeout = 5 * time.Second

// Compile-time interface check.
var _ domain.ExpenseStore = (*MongoStore)(nil)

// expenseDocument mirrors the expense collection's schema. Older records
// use expense_category and rawText instead of category and description, so
// both spellings are decoded and reconciled.
type expenseDocument struct {
	Date            time.Time `bson:"date,omitempty"`
	Amount          float64   `bson:"amount"`
	Category        string    `bson:"category,omitempty"`
	ExpenseCategory string    `bson:"expense_category,omitempty"`
	Description     string    `bson:"description,omitempty"`
	RawText         string    `bson:"rawText,omitempty"`
}

func (d expenseDocument) toExpense() domain.Expense {
	category := d.Category
	if category == "" {
		category = d.ExpenseCategory
	}
	description := d.Description
	if description == "" {
		description = d.RawText
	}
	date := ""
	if !d.Date.IsZero() {
		date = d.Date.Format(time.RFC3339)
	}
	return domain.Expense{
		Date:        date,
		Amount:      d.Amount,
		Category:    category,
		Description: description,
	}
}

// MongoStore is the MongoDB-backed expense store.
type MongoStore struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
	logger  *slog.Logger
}

// NewMongoStore connects to MongoDB and verifies reachability.
func NewMongoStore(ctx context.Context, cfg config.Store, logger *slog.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client:  client,
		coll:    client.Database(cfg.Database).Collection(cfg.Collection),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// RecentExpenses implements domain.ExpenseStore.
func (s *MongoStore) RecentExpenses(ctx context.Context, limit int) ([]domain.Expense, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, domain.WrapOp("MongoStore.RecentExpenses", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}
	defer cursor.Close(ctx)

	var docs []expenseDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, domain.WrapOp("MongoStore.RecentExpenses", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}

	expenses := make([]domain.Expense, 0, len(docs))
	for _, d := range docs {
		expenses = append(expenses, d.toExpense())
	}
	return expenses, nil
}

// CategoryDistribution implements domain.ExpenseStore. Records without a
// category under either field spelling are dropped from the result.
func (s *MongoStore) CategoryDistribution(ctx context.Context) ([]domain.CategoryTotal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$addFields", Value: bson.D{
			{Key: "resolved_category", Value: bson.D{
				{Key: "$ifNull", Value: bson.A{"$category", "$expense_category"}},
			}},
		}}},
		{{Key: "$match", Value: bson.D{
			{Key: "resolved_category", Value: bson.D{{Key: "$ne", Value: nil}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$resolved_category"},
			{Key: "value", Value: bson.D{{Key: "$sum", Value: "$amount"}}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "name", Value: "$_id"},
			{Key: "value", Value: 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "value", Value: -1}}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, domain.WrapOp("MongoStore.CategoryDistribution", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}
	defer cursor.Close(ctx)

	var totals []domain.CategoryTotal
	if err := cursor.All(ctx, &totals); err != nil {
		return nil, domain.WrapOp("MongoStore.CategoryDistribution", fmt.Errorf("%w: %s", domain.ErrDataSource, err))
	}
	return totals, nil
}

// Ping implements domain.ExpenseStore.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// Close implements domain.ExpenseStore.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
