package rules

import (
	"context"
	"fmt"

	"budgee-sync/src/categories"
	"budgee-sync/src/logger"
	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

// Load returns the budget's active rules in user-defined order.
func Load(ctx context.Context, st store.RuleStore, budgetID string) ([]models.TransactionRule, error) {
	all, err := st.ListRules(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	order, err := st.RuleOrder(ctx, budgetID)
	if err != nil {
		return nil, fmt.Errorf("read rule order: %w", err)
	}
	return Order(all, order), nil
}

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// List returns all of the budget's rules, inactive ones included, in run order.
func (s *Service) List(ctx context.Context, budgetID string) ([]models.TransactionRule, error) {
	all, err := s.store.ListRules(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	order, err := s.store.RuleOrder(ctx, budgetID)
	if err != nil {
		return nil, err
	}
	return Sort(all, order), nil
}

func (s *Service) Get(ctx context.Context, budgetID, ruleID string) (*models.TransactionRule, error) {
	return s.store.GetRule(ctx, budgetID, ruleID)
}

// Create stores a rule at the end of the budget's order. A rule flagged
// apply-to-history is run over the budget's existing transactions; the number
// of transactions changed is returned.
func (s *Service) Create(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, int, error) {
	if err := Validate(*rule); err != nil {
		return nil, 0, err
	}
	created, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return nil, 0, fmt.Errorf("create rule: %w", err)
	}
	if !created.ApplyToHistory || !created.Active {
		return created, 0, nil
	}
	n, err := s.ApplyToHistory(ctx, created.BudgetID)
	if err != nil {
		return created, 0, err
	}
	return created, n, nil
}

func (s *Service) Update(ctx context.Context, rule *models.TransactionRule) (*models.TransactionRule, int, error) {
	if err := Validate(*rule); err != nil {
		return nil, 0, err
	}
	updated, err := s.store.UpdateRule(ctx, rule)
	if err != nil {
		return nil, 0, err
	}
	if !updated.ApplyToHistory || !updated.Active {
		return updated, 0, nil
	}
	n, err := s.ApplyToHistory(ctx, updated.BudgetID)
	if err != nil {
		return updated, 0, err
	}
	return updated, n, nil
}

func (s *Service) Delete(ctx context.Context, budgetID, ruleID string) error {
	return s.store.DeleteRule(ctx, budgetID, ruleID)
}

// SetOrder replaces the budget's rule order. Every id must name one of the budget's rules.
func (s *Service) SetOrder(ctx context.Context, budgetID string, ruleIDs []string) error {
	all, err := s.store.ListRules(ctx, budgetID)
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(all))
	for _, r := range all {
		known[r.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(ruleIDs))
	for _, id := range ruleIDs {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: rule %s does not belong to budget %s", ErrInvalidRule, id, budgetID)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: rule %s listed twice", ErrInvalidRule, id)
		}
		seen[id] = struct{}{}
	}
	return s.store.SetRuleOrder(ctx, budgetID, ruleIDs)
}

// ApplyToHistory reruns the budget's ordered active rules over all of its
// transactions and persists the rows that changed.
func (s *Service) ApplyToHistory(ctx context.Context, budgetID string) (int, error) {
	log := logger.FromContext(ctx)

	cfg, err := s.store.ReadBudgetCategoryConfig(ctx, budgetID)
	if err != nil {
		return 0, fmt.Errorf("read category config: %w", err)
	}
	ix, err := categories.NewIndex(cfg.Groups)
	if err != nil {
		return 0, err
	}
	ordered, err := Load(ctx, s.store, budgetID)
	if err != nil {
		return 0, err
	}
	if len(ordered) == 0 {
		return 0, nil
	}
	txns, err := s.store.ListBudgetTransactions(ctx, budgetID)
	if err != nil {
		return 0, fmt.Errorf("list budget transactions: %w", err)
	}

	res := Apply(ordered, txns, ix)
	if res.Skipped > 0 {
		log.Warn().Str("budget_id", budgetID).Int("skipped_rules", res.Skipped).Msg("Ignored invalid rules")
	}
	if len(res.Changed) == 0 {
		log.Info().Str("budget_id", budgetID).Msg("No transactions adjusted by rules")
		return 0, nil
	}

	changed := make([]models.BudgetTransaction, 0, len(res.Changed))
	for _, i := range res.Changed {
		changed = append(changed, res.Transactions[i])
	}
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		return tx.UpsertBudgetTransactions(ctx, changed)
	})
	if err != nil {
		return 0, fmt.Errorf("persist rule changes: %w", err)
	}
	log.Info().Str("budget_id", budgetID).Int("adjusted", len(changed)).Msg("Transactions adjusted by rules")
	return len(changed), nil
}
