// Package txsync pulls transaction changes from the aggregator for each
// connection item, categorizes and links them, and persists them before
// advancing the item's cursor.
package txsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"budgee-sync/src/categories"
	"budgee-sync/src/ids"
	"budgee-sync/src/jobs"
	"budgee-sync/src/linker"
	"budgee-sync/src/logger"
	"budgee-sync/src/merger"
	"budgee-sync/src/models"
	"budgee-sync/src/recurring"
	"budgee-sync/src/rules"
	"budgee-sync/src/spending"
	"budgee-sync/src/store"
	"budgee-sync/src/util"
)

const (
	DefaultRetryDelay = 2 * time.Second
	DefaultWorkers    = 4
	// maxPages guards against a provider that never stops reporting has_more.
	maxPages = 1000
)

type Engine struct {
	store      store.Store
	agg        Aggregator
	resolver   *categories.Resolver
	merger     *merger.Merger
	linker     *linker.Linker
	publisher  jobs.Publisher
	spending   *spending.Service
	retryDelay time.Duration
	workers    int

	itemLocks sync.Map
}

type Option func(*Engine)

func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) { e.retryDelay = d }
}

// WithWorkers bounds how many of a team's items sync at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithResolver(r *categories.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

func WithGenerator(g *ids.Generator) Option {
	return func(e *Engine) { e.merger = merger.New(g) }
}

// WithPublisher moves recurrence detection onto the job queue. Without it,
// detection runs inside the sync's own transaction.
func WithPublisher(p jobs.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithSpending recalculates a budget's monthly spending after LinkAccount projects into it.
func WithSpending(svc *spending.Service) Option {
	return func(e *Engine) { e.spending = svc }
}

func New(st store.Store, agg Aggregator, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		agg:        agg,
		resolver:   categories.NewResolver(categories.DefaultMapping()),
		merger:     merger.New(ids.NewGenerator(st)),
		linker:     linker.New(st),
		retryDelay: DefaultRetryDelay,
		workers:    DefaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ItemResult summarizes one connection item's sync.
type ItemResult struct {
	ItemID    string `json:"item_id"`
	Added     int    `json:"added"`
	Modified  int    `json:"modified"`
	Removed   int    `json:"removed"`
	Rewritten int    `json:"rewritten"`
	Skipped   int    `json:"skipped"`
	Projected int    `json:"projected"`
	Dropped   int    `json:"dropped"`
	Pages     int    `json:"pages"`
	Error     string `json:"error,omitempty"`
	Err       error  `json:"-"`
}

// SyncTeam syncs every connection item of a team in parallel. A team without
// items yields an empty result. One item's failure is recorded in its result
// and does not affect the others; the returned error covers only listing items.
func (e *Engine) SyncTeam(ctx context.Context, teamID string) ([]ItemResult, error) {
	log := logger.FromContext(ctx).With().Str("team_id", teamID).Logger()
	items, err := e.store.ItemsForTeam(ctx, teamID)
	if err != nil {
		return nil, fmt.Errorf("list items for team %s: %w", teamID, err)
	}
	results := make([]ItemResult, len(items))
	if len(items) == 0 {
		log.Info().Msg("No connection items to sync")
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			res, err := e.SyncItem(logger.WithContext(ctx, log), item)
			if err != nil {
				res.Err = err
				res.Error = err.Error()
			}
			results[i] = *res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info().Int("items", len(items)).Int("failed", failed).Msg("Team sync finished")
	return results, nil
}

// SyncItemByID loads a connection item and syncs it.
func (e *Engine) SyncItemByID(ctx context.Context, id string) (*ItemResult, error) {
	item, err := e.store.GetItem(ctx, id)
	if err != nil {
		return &ItemResult{ItemID: id}, fmt.Errorf("load item %s: %w", id, err)
	}
	return e.SyncItem(ctx, *item)
}

// SyncItem pages through the item's changes from its stored cursor, persists
// them in one transaction and only then stores the new cursor. Any failure
// leaves the cursor unmoved. The result is never nil.
func (e *Engine) SyncItem(ctx context.Context, item models.PlaidItem) (*ItemResult, error) {
	res := &ItemResult{ItemID: item.ID}
	log := logger.FromContext(ctx).With().Str("item_id", item.ID).Logger()
	ctx = logger.WithContext(ctx, log)

	unlock := e.lockItem(item.ID)
	defer unlock()

	// Re-read under the lock so a concurrent sync's cursor is not replayed.
	if current, err := e.store.GetItem(ctx, item.ID); err == nil {
		item = *current
	} else if !errors.Is(err, store.ErrNotFound) {
		return res, fmt.Errorf("reload item: %w", err)
	}

	pages, cursor, err := e.fetchAll(ctx, item)
	res.Pages = len(pages)
	if err != nil {
		log.Error().Err(err).Msg("Fetching changes failed, cursor unchanged")
		return res, err
	}

	cs := Classify(pages)
	res.Added, res.Modified = cs.Added, cs.Modified
	res.Skipped = len(cs.Skipped)
	for _, s := range cs.Skipped {
		log.Warn().Str("external_id", s.ExternalID).Str("reason", s.Reason).Msg("Skipped invalid event")
	}

	if events := cs.Events(); len(events) > 0 {
		enriched, err := retryOnce(ctx, e.retryDelay, func() ([]models.RawTransaction, error) {
			return e.agg.Enrich(ctx, item.AccessToken, events)
		})
		if err != nil {
			perr := &ProviderError{ItemID: item.ID, Op: "enrich", Err: err}
			log.Error().Err(perr).Msg("Enrichment failed, cursor unchanged")
			return res, perr
		}
		cs.ReplaceEvents(enriched)
	}

	var candidates []recurring.Candidate
	err = e.store.WithTx(ctx, func(tx store.Store) error {
		out, err := e.persist(ctx, tx, cs)
		if err != nil {
			return err
		}
		res.Rewritten = out.rewritten
		res.Removed = out.removed
		res.Projected = out.projected
		res.Dropped = out.dropped
		candidates = out.recurring
		if e.publisher == nil && len(candidates) > 0 {
			return e.detectRecurring(ctx, tx, candidates)
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("Persisting changes failed, cursor unchanged")
		return res, err
	}

	if cursor != item.Cursor {
		if err := e.store.UpdateCursor(ctx, item.ID, cursor); err != nil {
			log.Error().Err(err).Msg("Could not store cursor")
			return res, fmt.Errorf("update cursor: %w", err)
		}
	}

	if e.publisher != nil && len(candidates) > 0 {
		e.publishRecurring(ctx, log, item.ID, candidates)
	}

	log.Info().
		Int("pages", res.Pages).
		Int("added", res.Added).
		Int("modified", res.Modified).
		Int("removed", res.Removed).
		Int("rewritten", res.Rewritten).
		Int("skipped", res.Skipped).
		Int("projected", res.Projected).
		Msg("Item synced")
	return res, nil
}

func (e *Engine) fetchAll(ctx context.Context, item models.PlaidItem) ([]*models.ChangePage, string, error) {
	cursor := item.Cursor
	var pages []*models.ChangePage
	for {
		page, err := retryOnce(ctx, e.retryDelay, func() (*models.ChangePage, error) {
			return e.agg.FetchChanges(ctx, item.AccessToken, cursor)
		})
		if err != nil {
			return pages, item.Cursor, &ProviderError{ItemID: item.ID, Op: "fetch changes", Err: err}
		}
		pages = append(pages, page)
		if page.NextCursor != "" {
			cursor = page.NextCursor
		}
		if !page.HasMore {
			return pages, cursor, nil
		}
		if len(pages) >= maxPages {
			return pages, item.Cursor, &ProviderError{ItemID: item.ID, Op: "fetch changes", Err: fmt.Errorf("more than %d pages", maxPages)}
		}
	}
}

type persisted struct {
	rewritten int
	removed   int
	projected int
	dropped   int
	recurring []recurring.Candidate
}

func (e *Engine) persist(ctx context.Context, tx store.Store, cs ChangeSet) (*persisted, error) {
	log := logger.FromContext(ctx)
	out := &persisted{}

	defaults, err := categories.NewIndex(categories.DefaultGroups())
	if err != nil {
		return nil, err
	}
	events := make(map[string]models.RawTransaction)
	for _, ev := range cs.Events() {
		events[ev.ExternalID] = ev
	}

	upserts := make([]models.Transaction, 0, len(cs.Upserts))
	for _, ev := range cs.Upserts {
		upserts = append(upserts, toTransaction(ev, e.resolver.ResolveOne(defaults, ev.CategoryLabel).Category.ID))
	}
	for _, rw := range cs.Rewrites {
		posted := toTransaction(rw.Posted, e.resolver.ResolveOne(defaults, rw.Posted.CategoryLabel).Category.ID)
		ok, err := tx.RewriteTransactionIdentity(ctx, rw.OldExternalID, posted)
		if err != nil {
			return nil, fmt.Errorf("rewrite %s to %s: %w", rw.OldExternalID, rw.Posted.ExternalID, err)
		}
		if !ok {
			// Nothing stored under the pending id; the posted event stands alone.
			upserts = append(upserts, posted)
			continue
		}
		out.rewritten++
	}

	if _, err := e.merger.MergeTransactions(ctx, tx, upserts); err != nil {
		return nil, err
	}

	if len(cs.Removals) > 0 {
		n, err := tx.DeleteTransactionsByExternalIDs(ctx, cs.Removals)
		if err != nil {
			return nil, fmt.Errorf("delete removed transactions: %w", err)
		}
		out.removed = n
	}

	if len(events) == 0 {
		return out, nil
	}
	externalIDs := make([]string, 0, len(events))
	accountIDs := make([]string, 0, len(events))
	for id, ev := range events {
		externalIDs = append(externalIDs, id)
		accountIDs = append(accountIDs, ev.ExternalAccountID)
	}
	stored, err := tx.FindTransactionsByExternalIDs(ctx, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("reload synced transactions: %w", err)
	}

	links, err := e.linker.Resolve(ctx, accountIDs)
	if err != nil {
		return nil, err
	}
	budgetIndexes, err := loadIndexes(ctx, tx, links.Budgets())
	if err != nil {
		return nil, err
	}
	categorize := func(budgetID string, txn models.Transaction) linker.Assignment {
		label := events[txn.ExternalIDValue()].CategoryLabel
		r := e.resolver.ResolveOne(budgetIndexes[budgetID], label)
		if label != "" && r.Category.ID == budgetIndexes[budgetID].Other().Category.ID {
			log.Debug().Str("budget_id", budgetID).Str("label", label).Msg("Category label fell back to Other")
		}
		return linker.Assignment{GroupID: r.Group.ID, CategoryID: r.Category.ID}
	}

	var projections []models.BudgetTransaction
	for _, txn := range stored {
		projections = append(projections, linker.Project(txn, links[txn.ExternalAccountID], categorize)...)
		ev := events[txn.ExternalIDValue()]
		if ev.Recurring {
			out.recurring = append(out.recurring, recurring.Candidate{
				TransactionID: txn.ID,
				SemanticID:    txn.SemanticID,
				Date:          txn.Date,
				Counterparty:  txn.Counterparty(),
				Amount:        txn.Amount,
				Frequency:     ev.RecurringFrequency,
				CategoryID:    txn.CategoryID,
				Pattern:       ev.RecurringPattern,
			})
		}
	}

	pres, err := e.merger.MergeBudgetTransactions(ctx, tx, projections, applyRules(budgetIndexes))
	if err != nil {
		return nil, err
	}
	out.projected = len(pres.Inserted) + len(pres.Updated)
	out.dropped = pres.Dropped
	if pres.Dropped > 0 {
		log.Warn().Int("dropped", pres.Dropped).Msg("Dropped projections for removed budget links")
	}
	return out, nil
}

func loadIndexes(ctx context.Context, st store.Store, budgetIDs []string) (map[string]*categories.Index, error) {
	out := make(map[string]*categories.Index, len(budgetIDs))
	for _, budgetID := range budgetIDs {
		cfg, err := st.ReadBudgetCategoryConfig(ctx, budgetID)
		if err != nil {
			return nil, fmt.Errorf("read category config for budget %s: %w", budgetID, err)
		}
		ix, err := categories.NewIndex(cfg.Groups)
		if err != nil {
			return nil, fmt.Errorf("budget %s: %w", budgetID, err)
		}
		out[budgetID] = ix
	}
	return out, nil
}

// applyRules runs each budget's ordered rules over its new projections.
func applyRules(indexes map[string]*categories.Index) merger.PrepareFunc {
	return func(ctx context.Context, st store.Store, budgetID string, rows []models.BudgetTransaction) ([]models.BudgetTransaction, error) {
		ordered, err := rules.Load(ctx, st, budgetID)
		if err != nil {
			return nil, err
		}
		if len(ordered) == 0 {
			return rows, nil
		}
		applied := rules.Apply(ordered, rows, indexes[budgetID])
		if applied.Skipped > 0 {
			log := logger.FromContext(ctx)
			log.Warn().Str("budget_id", budgetID).Int("skipped_rules", applied.Skipped).Msg("Ignored invalid rules")
		}
		return applied.Transactions, nil
	}
}

// LinkResult is a new budget link and the projections it made from transactions
// already stored for the account.
type LinkResult struct {
	Link        *models.BudgetAccountLink
	Projections []models.BudgetTransaction
}

// LinkAccount links one of the team's accounts to a budget and projects the
// account's stored transactions into it, so history synced before the link
// shows up without waiting for the provider to report it again. Categories
// come from each transaction's stored category. The link, the projections and
// the spending of the touched months commit together.
func (e *Engine) LinkAccount(ctx context.Context, teamID string, link models.BudgetAccountLink) (*LinkResult, error) {
	log := logger.FromContext(ctx).With().
		Str("budget_id", link.BudgetID).
		Str("account_id", link.ExternalAccountID).
		Logger()
	var out *LinkResult
	err := e.store.WithTx(ctx, func(tx store.Store) error {
		created, err := tx.CreateLink(ctx, teamID, link)
		if err != nil {
			return err
		}
		out = &LinkResult{Link: created}

		stored, err := tx.ListTransactionsByAccount(ctx, created.ExternalAccountID)
		if err != nil {
			return fmt.Errorf("list account transactions: %w", err)
		}
		if len(stored) == 0 {
			return nil
		}
		indexes, err := loadIndexes(ctx, tx, []string{created.BudgetID})
		if err != nil {
			return err
		}
		ix := indexes[created.BudgetID]
		categorize := func(_ string, txn models.Transaction) linker.Assignment {
			r := ix.CategoryOrOther(txn.CategoryID)
			return linker.Assignment{GroupID: r.Group.ID, CategoryID: r.Category.ID}
		}

		links := []models.BudgetAccountLink{*created}
		var projections []models.BudgetTransaction
		for _, txn := range stored {
			projections = append(projections, linker.Project(txn, links, categorize)...)
		}
		res, err := e.merger.MergeBudgetTransactions(ctx, tx, projections, applyRules(indexes))
		if err != nil {
			return err
		}
		out.Projections = append(append(out.Projections, res.Inserted...), res.Updated...)

		if e.spending == nil || len(out.Projections) == 0 {
			return nil
		}
		seen := make(map[string]struct{})
		var months []string
		for _, p := range out.Projections {
			m := util.MonthKey(p.Date)
			if _, ok := seen[m]; !ok {
				seen[m] = struct{}{}
				months = append(months, m)
			}
		}
		if _, err := e.spending.In(tx).Recalculate(ctx, created.BudgetID, months); err != nil {
			return fmt.Errorf("recalculate spending: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Int("projected", len(out.Projections)).Msg("Linked account")
	return out, nil
}

// DetectRecurring folds candidates into stored recurring groups.
func (e *Engine) DetectRecurring(ctx context.Context, candidates []recurring.Candidate) error {
	return e.store.WithTx(ctx, func(tx store.Store) error {
		return e.detectRecurring(ctx, tx, candidates)
	})
}

func (e *Engine) detectRecurring(ctx context.Context, tx store.Store, candidates []recurring.Candidate) error {
	plan, err := recurring.Detect(ctx, tx, candidates)
	if err != nil {
		return err
	}
	if plan.Empty() {
		return nil
	}
	if err := e.merger.ApplyRecurring(ctx, tx, plan); err != nil {
		return err
	}
	log := logger.FromContext(ctx)
	log.Info().Int("upserted", len(plan.Upserts)).Int("deleted", len(plan.Deletes)).Msg("Recurring groups updated")
	return nil
}

func (e *Engine) publishRecurring(ctx context.Context, log zerolog.Logger, itemID string, candidates []recurring.Candidate) {
	payload, err := json.Marshal(candidates)
	if err != nil {
		log.Error().Err(err).Msg("Could not encode recurrence candidates")
		return
	}
	job := &jobs.Job{Type: jobs.JobTypeDetectRecurring, ItemID: itemID, Payload: payload}
	if err := e.publisher.Publish(ctx, job); err != nil {
		log.Warn().Err(err).Msg("Could not queue recurrence detection")
	}
}

// HandleJob runs queued sync and recurrence jobs.
func (e *Engine) HandleJob(ctx context.Context, job *jobs.Job) error {
	switch job.Type {
	case jobs.JobTypeSyncItem:
		_, err := e.SyncItemByID(ctx, job.ItemID)
		return err
	case jobs.JobTypeDetectRecurring:
		var candidates []recurring.Candidate
		if err := json.Unmarshal(job.Payload, &candidates); err != nil {
			return fmt.Errorf("decode recurrence candidates: %w", err)
		}
		return e.DetectRecurring(ctx, candidates)
	default:
		return fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (e *Engine) lockItem(id string) func() {
	v, _ := e.itemLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func toTransaction(ev models.RawTransaction, categoryID string) models.Transaction {
	ext := ev.ExternalID
	return models.Transaction{
		ExternalID:        &ext,
		ExternalAccountID: ev.ExternalAccountID,
		Date:              ev.Date,
		Amount:            ev.Amount,
		Status:            ev.Status(),
		MerchantName:      ev.MerchantName,
		Payee:             ev.Payee,
		Currency:          ev.Currency,
		CategoryID:        categoryID,
		Raw:               ev.Raw,
	}
}
