// Package expensestore persists the transaction-side records: expenses,
// expense categories, trips and per-user settings. The statistics engine
// only reads from it; writes happen through the CRUD surface that is out
// of this repository's scope.
package expensestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/triptally/triptally/pkg/money"
	"github.com/triptally/triptally/pkg/statistics"
)

type SQLExpense struct {
	bun.BaseModel         `bun:"table:expenses"`
	ID                    int64 `bun:",pk,autoincrement"`
	UserID                int64
	Description           string
	Amount                decimal.Decimal `bun:"type:numeric(10,2)"`
	Currency              string
	ExpenseDate           time.Time `bun:"type:date"`
	AmortizationStartDate time.Time `bun:"type:date"`
	AmortizationEndDate   time.Time `bun:"type:date"`
	CategoryID            int64
	TripID                int64 `bun:",nullzero"`
	IsExpense             bool
}

type SQLExpenseCategory struct {
	bun.BaseModel `bun:"table:expense_categories"`
	ID            int64 `bun:",pk,autoincrement"`
	UserID        int64
	Name          string
	ForExpense    bool
}

type SQLTrip struct {
	bun.BaseModel `bun:"table:trips"`
	ID            int64 `bun:",pk,autoincrement"`
	UserID        int64
	Name          string
	StartDate     time.Time `bun:"type:date"`
	EndDate       time.Time `bun:"type:date,nullzero"`
}

type SQLUserSettings struct {
	bun.BaseModel     `bun:"table:user_settings"`
	ID                int64 `bun:",pk,autoincrement"`
	UserID            int64 `bun:",unique"`
	PreferredCurrency string
}

type Store struct {
	db *bun.DB
}

func New(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	models := []interface{}{
		(*SQLExpense)(nil),
		(*SQLExpenseCategory)(nil),
		(*SQLTrip)(nil),
		(*SQLUserSettings)(nil),
	}
	for _, model := range models {
		_, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// ExpensesByUser returns every transaction of a user as statistics input
// records, ordered by expense date.
func (s *Store) ExpensesByUser(ctx context.Context, userID int64) ([]statistics.Expense, error) {
	var rows []SQLExpense

	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("expense_date").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading expenses for user %d: %w", userID, err)
	}

	expenses := make([]statistics.Expense, 0, len(rows))
	for _, row := range rows {
		expenses = append(expenses, statistics.Expense{
			Amount:            row.Amount,
			Currency:          row.Currency,
			ExpenseDate:       money.DateOf(row.ExpenseDate),
			AmortizationStart: money.DateOf(row.AmortizationStartDate),
			AmortizationEnd:   money.DateOf(row.AmortizationEndDate),
			CategoryID:        row.CategoryID,
			TripID:            row.TripID,
			IsExpense:         row.IsExpense,
		})
	}

	return expenses, nil
}

// ExpenseCategoriesByUser returns the user's expense categories (the ones
// flagged for_expense) ordered by name. The statistics aggregator emits a
// bucket for each of them, matched or not.
func (s *Store) ExpenseCategoriesByUser(ctx context.Context, userID int64) ([]statistics.Category, error) {
	var rows []SQLExpenseCategory

	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Where("for_expense = ?", true).
		Order("name").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading categories for user %d: %w", userID, err)
	}

	categories := make([]statistics.Category, 0, len(rows))
	for _, row := range rows {
		categories = append(categories, statistics.Category{ID: row.ID, Name: row.Name})
	}

	return categories, nil
}

// PreferredCurrency returns the user's preferred reporting currency, or
// "" when no preference is set. Callers decide the fallback chain
// (configured default, then USD).
func (s *Store) PreferredCurrency(ctx context.Context, userID int64) (string, error) {
	settings := new(SQLUserSettings)

	err := s.db.NewSelect().
		Model(settings).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("error reading settings for user %d: %w", userID, err)
	}

	return settings.PreferredCurrency, nil
}
