package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"budgee-sync/src/jobs"
	"budgee-sync/src/models"
	"budgee-sync/src/rules"
	"budgee-sync/src/spending"
	"budgee-sync/src/store/memory"
	"budgee-sync/src/txsync"
)

const secret = "router-test-secret"

type staticAggregator struct {
	page models.ChangePage
}

func (a *staticAggregator) FetchChanges(ctx context.Context, token, cursor string) (*models.ChangePage, error) {
	if cursor == a.page.NextCursor {
		return &models.ChangePage{NextCursor: cursor}, nil
	}
	p := a.page
	return &p, nil
}

func (a *staticAggregator) Enrich(ctx context.Context, token string, txns []models.RawTransaction) ([]models.RawTransaction, error) {
	return txns, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type harness struct {
	t      *testing.T
	router http.Handler
	store  *memory.Store
	item   models.PlaidItem
	token  string
}

func newHarness(t *testing.T, queue *jobs.Queue, jobStore jobs.JobStore) *harness {
	t.Helper()
	st := memory.New()
	item := st.AddItem(models.PlaidItem{TeamID: "team-1", ItemID: "plaid-item-1", AccessToken: "access-1"})
	other := st.AddItem(models.PlaidItem{TeamID: "team-2", ItemID: "plaid-item-2", AccessToken: "access-2"})
	require.NoError(t, st.SaveAccounts(context.Background(), []models.Account{
		{ItemID: item.ID, ExternalAccountID: "acct-1", Name: "Checking"},
		{ItemID: other.ID, ExternalAccountID: "acct-2", Name: "Savings"},
	}))
	st.AddBudget(models.Budget{ID: "b1", TeamID: "team-1", Name: "Household"})
	st.AddBudget(models.Budget{ID: "b2", TeamID: "team-1", Name: "Side business"})
	st.AddBudget(models.Budget{ID: "b3", TeamID: "team-2", Name: "Theirs"})
	st.AddLink(models.BudgetAccountLink{BudgetID: "b1", ExternalAccountID: "acct-1"})

	agg := &staticAggregator{page: models.ChangePage{
		Added: []models.RawTransaction{{
			ExternalID:        "t1",
			ExternalAccountID: "acct-1",
			Date:              time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC),
			Amount:            decimal.RequireFromString("4.50"),
			MerchantName:      "Corner Cafe",
			Currency:          "USD",
			CategoryLabel:     "FOOD_AND_DRINK_COFFEE",
		}},
		NextCursor: "c1",
	}}
	spend := spending.NewService(st)
	engine := txsync.New(st, agg, txsync.WithRetryDelay(time.Millisecond), txsync.WithSpending(spend))

	var publisher jobs.Publisher = queue
	if queue == nil {
		publisher = jobs.NewQueue(1, 1, jobs.NewMemoryStore())
	}
	if jobStore == nil {
		jobStore = jobs.NewMemoryStore()
	}

	token := teamToken(t, "team-1")

	router := NewRouter(Deps{
		Log:            zerolog.Nop(),
		Store:          st,
		Engine:         engine,
		Rules:          rules.NewService(st),
		Spending:       spend,
		Queue:          publisher,
		Jobs:           jobStore,
		JWTSecret:      secret,
		AllowedOrigins: []string{"*"},
	})
	return &harness{t: t, router: router, store: st, item: item, token: token}
}

func teamToken(t *testing.T, teamID string) string {
	t.Helper()
	claims := jwt.MapClaims{"team_id": teamID, "user_id": "user-of-" + teamID}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func (h *harness) do(method, path string, body any) (int, envelope) {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestSyncThenReadAndRecalculate(t *testing.T) {
	h := newHarness(t, nil, nil)

	code, env := h.do(http.MethodPost, "/api/teams/sync", nil)
	require.Equal(t, http.StatusOK, code)
	var synced struct {
		Items []txsync.ItemResult `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &synced))
	require.Len(t, synced.Items, 1)
	require.Equal(t, 1, synced.Items[0].Added)
	require.Empty(t, synced.Items[0].Error)
	require.Equal(t, "c1", h.store.Cursor(h.item.ID))

	code, env = h.do(http.MethodGet, "/api/budgets/b1/transactions", nil)
	require.Equal(t, http.StatusOK, code)
	var txns []models.BudgetTransaction
	require.NoError(t, json.Unmarshal(env.Data, &txns))
	require.Len(t, txns, 1)
	require.Equal(t, "cat_coffee_shops", txns[0].CategoryID)
	require.Equal(t, "grp_dining", txns[0].CategoryGroupID)

	code, env = h.do(http.MethodPost, "/api/budgets/b1/spending/recalculate", map[string]any{"months": []string{"2026-10"}})
	require.Equal(t, http.StatusOK, code)
	var months []models.MonthlySpending
	require.NoError(t, json.Unmarshal(env.Data, &months))
	require.Len(t, months, 1)
	dining := months[0].Group("Dining")
	require.NotNil(t, dining)
	require.True(t, decimal.RequireFromString("4.50").Equal(dining.Actual))
	require.NotNil(t, months[0].Group(models.OtherGroupName))

	code, env = h.do(http.MethodGet, "/api/budgets/b1/spending?months=2026-10", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &months))
	require.True(t, decimal.RequireFromString("4.50").Equal(months[0].Group("Dining").Actual))
}

func TestRecalculateRejectsBadMonth(t *testing.T) {
	h := newHarness(t, nil, nil)
	code, env := h.do(http.MethodPost, "/api/budgets/b1/spending/recalculate", map[string]any{"months": []string{"2026-13"}})
	require.Equal(t, http.StatusBadRequest, code)
	require.False(t, env.Success)
	require.Equal(t, "invalid_month", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/budgets/b1/spending/recalculate", map[string]any{"months": []string{"2300-01"}})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid_month", env.Error.Code)
}

func TestRuleLifecycle(t *testing.T) {
	h := newHarness(t, nil, nil)
	code, _ := h.do(http.MethodPost, "/api/teams/sync", nil)
	require.Equal(t, http.StatusOK, code)

	rule := map[string]any{
		"name": "cafe",
		"conditions": map[string]any{
			"merchant": map[string]any{"enabled": true, "mode": "contains", "value": "cafe"},
		},
		"actions": map[string]any{
			"set_category": map[string]any{"enabled": true, "category_id": "cat_restaurants"},
			"set_note":     map[string]any{"enabled": true, "note": "coffee"},
		},
		"apply_to_history": true,
	}
	code, env := h.do(http.MethodPost, "/api/budgets/b1/rules", rule)
	require.Equal(t, http.StatusCreated, code)
	var created struct {
		Rule    models.TransactionRule `json:"rule"`
		Applied int                    `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, 1, created.Applied)
	require.True(t, created.Rule.Active)

	txns := h.store.AllBudgetTransactions()
	require.Len(t, txns, 1)
	require.Equal(t, "cat_restaurants", txns[0].CategoryID)
	require.Equal(t, "coffee", txns[0].Notes)

	code, env = h.do(http.MethodPut, "/api/budgets/b1/rules/order", map[string]any{"rule_ids": []string{"nope"}})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid_rule", env.Error.Code)

	code, _ = h.do(http.MethodPut, "/api/budgets/b1/rules/order", map[string]any{"rule_ids": []string{created.Rule.ID}})
	require.Equal(t, http.StatusOK, code)

	code, env = h.do(http.MethodGet, "/api/budgets/b1/rules", nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.TransactionRule
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)

	code, _ = h.do(http.MethodDelete, "/api/budgets/b1/rules/"+created.Rule.ID, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = h.do(http.MethodGet, "/api/budgets/b1/rules/"+created.Rule.ID, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "not_found", env.Error.Code)
}

func TestCategoriesAndLinks(t *testing.T) {
	h := newHarness(t, nil, nil)

	code, env := h.do(http.MethodPut, "/api/budgets/b1/categories", map[string]any{
		"groups": []map[string]any{{"id": "grp_other", "name": "Misc", "enabled": true}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "config_error", env.Error.Code)

	code, env = h.do(http.MethodPut, "/api/budgets/b1/categories", map[string]any{
		"groups": []map[string]any{{
			"id": "grp_pets", "name": "Pets", "enabled": true,
			"categories": []map[string]any{{"id": "cat_vet", "name": "Vet"}},
		}},
	})
	require.Equal(t, http.StatusOK, code)
	var cfg models.BudgetCategoryConfig
	require.NoError(t, json.Unmarshal(env.Data, &cfg))
	require.Equal(t, "Pets", cfg.Groups[len(cfg.Groups)-1].Name)

	code, env = h.do(http.MethodPost, "/api/budgets/b2/links", map[string]any{"external_account_id": "acct-1"})
	require.Equal(t, http.StatusCreated, code)
	var linked struct {
		Link      models.BudgetAccountLink `json:"link"`
		Projected int                      `json:"projected"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &linked))
	require.Zero(t, linked.Projected)
	link := linked.Link

	code, env = h.do(http.MethodGet, "/api/budgets/b2/links", nil)
	require.Equal(t, http.StatusOK, code)
	var links []models.BudgetAccountLink
	require.NoError(t, json.Unmarshal(env.Data, &links))
	require.Len(t, links, 1)
	require.Equal(t, link.ID, links[0].ID)

	// The account now fans out to b1 and b2.
	code, _ = h.do(http.MethodPost, "/api/teams/sync", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, h.store.AllBudgetTransactions(), 2)

	code, _ = h.do(http.MethodDelete, "/api/budgets/b2/links/"+link.ID, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, h.store.AllBudgetTransactions(), 1)

	code, _ = h.do(http.MethodDelete, "/api/budgets/b2/links/"+link.ID, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestLinkProjectsSyncedHistory(t *testing.T) {
	h := newHarness(t, nil, nil)
	code, _ := h.do(http.MethodPost, "/api/teams/sync", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, h.store.AllBudgetTransactions(), 1)

	code, env := h.do(http.MethodPost, "/api/budgets/b2/links", map[string]any{"external_account_id": "acct-1"})
	require.Equal(t, http.StatusCreated, code)
	var linked struct {
		Projected int `json:"projected"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &linked))
	require.Equal(t, 1, linked.Projected)

	// A resync with nothing new must not be needed for the history to appear.
	code, env = h.do(http.MethodGet, "/api/budgets/b2/transactions", nil)
	require.Equal(t, http.StatusOK, code)
	var txns []models.BudgetTransaction
	require.NoError(t, json.Unmarshal(env.Data, &txns))
	require.Len(t, txns, 1)
	require.Equal(t, "cat_coffee_shops", txns[0].CategoryID)

	code, env = h.do(http.MethodGet, "/api/budgets/b2/spending?months=2026-10", nil)
	require.Equal(t, http.StatusOK, code)
	var months []models.MonthlySpending
	require.NoError(t, json.Unmarshal(env.Data, &months))
	require.Len(t, months, 1)
	require.True(t, decimal.RequireFromString("4.50").Equal(months[0].Group("Dining").Actual))
}

func TestBudgetsAreTeamScoped(t *testing.T) {
	h := newHarness(t, nil, nil)
	code, _ := h.do(http.MethodPost, "/api/teams/sync", nil)
	require.Equal(t, http.StatusOK, code)

	h.token = teamToken(t, "team-2")
	for _, path := range []string{"/api/budgets/b1", "/api/budgets/b1/transactions", "/api/budgets/b1/links", "/api/budgets/b1/rules"} {
		code, env := h.do(http.MethodGet, path, nil)
		require.Equal(t, http.StatusNotFound, code, path)
		require.Equal(t, "not_found", env.Error.Code, path)
	}
	code, _ = h.do(http.MethodPost, "/api/budgets/b1/links", map[string]any{"external_account_id": "acct-2"})
	require.Equal(t, http.StatusNotFound, code)
	code, _ = h.do(http.MethodDelete, "/api/budgets/b1", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, env := h.do(http.MethodPost, "/api/budgets/b3/links", map[string]any{"external_account_id": "acct-1"})
	require.Equal(t, http.StatusForbidden, code)
	require.Equal(t, "forbidden", env.Error.Code)
	code, _ = h.do(http.MethodPost, "/api/budgets/b3/links", map[string]any{"external_account_id": "acct-2"})
	require.Equal(t, http.StatusCreated, code)

	for _, r := range h.store.AllBudgetTransactions() {
		require.NotEqual(t, "b3", r.BudgetID)
	}
}

func TestBudgetLifecycle(t *testing.T) {
	h := newHarness(t, nil, nil)

	code, env := h.do(http.MethodPost, "/api/budgets", map[string]any{})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "invalid_request", env.Error.Code)

	code, env = h.do(http.MethodPost, "/api/budgets", map[string]any{"name": "Travel"})
	require.Equal(t, http.StatusCreated, code)
	var created models.Budget
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "team-1", created.TeamID)
	require.Equal(t, "user-of-team-1", created.CreatedBy)

	code, env = h.do(http.MethodGet, "/api/budgets", nil)
	require.Equal(t, http.StatusOK, code)
	var list []models.Budget
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 3)

	code, env = h.do(http.MethodPut, "/api/budgets/"+created.ID, map[string]any{"name": "Trips"})
	require.Equal(t, http.StatusOK, code)
	var renamed models.Budget
	require.NoError(t, json.Unmarshal(env.Data, &renamed))
	require.Equal(t, "Trips", renamed.Name)

	code, _ = h.do(http.MethodDelete, "/api/budgets/"+created.ID, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = h.do(http.MethodGet, "/api/budgets/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestItemsAreTeamScoped(t *testing.T) {
	h := newHarness(t, nil, nil)
	other, err := h.store.GetItemByExternalID(context.Background(), "plaid-item-2")
	require.NoError(t, err)

	code, env := h.do(http.MethodPost, "/api/plaid/items/"+other.ID+"/sync", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.False(t, env.Success)

	code, env = h.do(http.MethodGet, "/api/plaid/items", nil)
	require.Equal(t, http.StatusOK, code)
	var items []models.PlaidItem
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	require.Equal(t, h.item.ID, items[0].ID)

	code, _ = h.do(http.MethodPost, "/api/plaid/items/"+h.item.ID+"/sync", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestWebhookQueuesSync(t *testing.T) {
	jobStore := jobs.NewMemoryStore()
	queue := jobs.NewQueue(10, 1, jobStore)
	h := newHarness(t, queue, jobStore)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := txsync.New(h.store, &staticAggregator{page: models.ChangePage{NextCursor: "c9"}}, txsync.WithRetryDelay(time.Millisecond))
	require.NoError(t, queue.Start(ctx, engine.HandleJob))
	defer queue.Stop(context.Background())

	hook := map[string]string{"webhook_type": "TRANSACTIONS", "webhook_code": "SYNC_UPDATES_AVAILABLE", "item_id": "plaid-item-1"}
	code, env := h.do(http.MethodPost, "/api/plaid/webhook", hook)
	require.Equal(t, http.StatusAccepted, code)
	var queued map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &queued))
	require.NotEmpty(t, queued["job_id"])

	require.Eventually(t, func() bool {
		code, env := h.do(http.MethodGet, "/api/jobs/"+queued["job_id"], nil)
		if code != http.StatusOK {
			return false
		}
		var job jobs.Job
		require.NoError(t, json.Unmarshal(env.Data, &job))
		return job.Status == jobs.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, "c9", h.store.Cursor(h.item.ID))

	code, env = h.do(http.MethodPost, "/api/plaid/webhook", map[string]string{"webhook_type": "ITEM", "webhook_code": "ERROR"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &queued))
	require.Equal(t, "ignored", queued["status"])
}

func TestUnauthorized(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.token = "bad"
	code, env := h.do(http.MethodPost, "/api/teams/sync", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "unauthorized", env.Error.Code)
}
