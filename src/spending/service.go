package spending

import (
	"context"
	"fmt"
	"sort"
	"time"

	"budgee-sync/src/categories"
	"budgee-sync/src/logger"
	"budgee-sync/src/models"
	"budgee-sync/src/store"
	"budgee-sync/src/util"
)

type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(st store.Store) *Service {
	return &Service{store: st, now: time.Now}
}

// In returns a copy of the service that reads and writes through st, such as an open transaction.
func (s *Service) In(st store.Store) *Service {
	return &Service{store: st, now: s.now}
}

// SetClock replaces the time source that bounds the month range.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Recalculate recomputes actual spend for months and stores it, keeping each
// row's target and tax-deductible flag. With no months it covers the earliest
// transaction's month through the current month. Other months are not touched.
func (s *Service) Recalculate(ctx context.Context, budgetID string, months []string) ([]models.MonthlySpending, error) {
	log := logger.FromContext(ctx)
	now := s.now()
	if err := util.ValidateMonths(months, now); err != nil {
		return nil, err
	}

	ix, err := s.index(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	txns, err := s.store.ListBudgetTransactions(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list budget transactions: %w", err)
	}
	if len(months) == 0 {
		months = defaultMonths(txns, now)
	}
	months = dedupe(months)

	stored, err := s.stored(ctx, budgetID, months)
	if err != nil {
		return nil, err
	}

	result := Build(budgetID, ix, months, Aggregate(ix, txns, months), stored)
	rows := Rows(result)
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		return tx.UpsertMonthlySpending(ctx, rows)
	})
	if err != nil {
		return nil, fmt.Errorf("store monthly spending: %w", err)
	}
	log.Info().Str("budget_id", budgetID).Int("months", len(months)).Int("transactions", len(txns)).Msg("Recalculated spending")
	return result, nil
}

// List reads stored spending for months without recomputing it. Categories
// with no stored row report zero.
func (s *Service) List(ctx context.Context, budgetID string, months []string) ([]models.MonthlySpending, error) {
	if err := util.ValidateMonths(months, s.now()); err != nil {
		return nil, err
	}
	ix, err := s.index(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	stored, err := s.stored(ctx, budgetID, months)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		seen := make(map[string]struct{})
		for k := range stored {
			if _, ok := seen[k.Month]; !ok {
				seen[k.Month] = struct{}{}
				months = append(months, k.Month)
			}
		}
		sort.Strings(months)
	}
	a := make(Actuals)
	for k, row := range stored {
		a.add(k.Month, k.CategoryID, row.Actual)
	}
	return Build(budgetID, ix, dedupe(months), a, stored), nil
}

func (s *Service) index(ctx context.Context, budgetID string) (*categories.Index, error) {
	cfg, err := s.store.ReadBudgetCategoryConfig(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("read category config: %w", err)
	}
	return categories.NewIndex(cfg.Groups)
}

func (s *Service) stored(ctx context.Context, budgetID string, months []string) (map[Key]models.MonthlyCategorySpend, error) {
	rows, err := s.store.ListMonthlySpending(ctx, budgetID, months)
	if err != nil {
		return nil, fmt.Errorf("list monthly spending: %w", err)
	}
	out := make(map[Key]models.MonthlyCategorySpend, len(rows))
	for _, r := range rows {
		out[Key{Month: r.Month, CategoryID: r.CategoryID}] = r
	}
	return out, nil
}

func defaultMonths(txns []models.BudgetTransaction, now time.Time) []string {
	earliest := now
	for _, t := range txns {
		if t.Date.Before(earliest) {
			earliest = t.Date
		}
	}
	return util.MonthRange(earliest, now)
}

func dedupe(months []string) []string {
	seen := make(map[string]struct{}, len(months))
	out := make([]string, 0, len(months))
	for _, m := range months {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
