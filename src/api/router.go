package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plaid/plaid-go/v41/plaid"
	"github.com/rs/zerolog"

	"budgee-sync/src/handlers"
	"budgee-sync/src/jobs"
	"budgee-sync/src/middleware"
	"budgee-sync/src/rules"
	"budgee-sync/src/spending"
	"budgee-sync/src/store"
	"budgee-sync/src/txsync"
	"budgee-sync/src/util"
)

type Deps struct {
	Log      zerolog.Logger
	Store    store.Store
	Engine   *txsync.Engine
	Rules    *rules.Service
	Spending *spending.Service
	Queue    jobs.Publisher
	Jobs     jobs.JobStore

	// Plaid may be nil; the link and exchange routes are then not mounted.
	Plaid           *plaid.APIClient
	PlaidWebhookURL string
	// Verifier may be nil, which accepts unsigned webhooks.
	Verifier *util.WebhookVerifier

	JWTSecret      string
	AllowedOrigins []string
	Demo           bool
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger(d.Log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORSMiddleware(d.AllowedOrigins))
	r.Use(middleware.DemoModeMiddleware(d.Demo))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/plaid/webhook", handlers.PlaidWebhook(d.Verifier, d.Store, d.Queue))

		// Protected routes
		r.With(middleware.JWTAuthMiddleware(d.JWTSecret)).Group(func(r chi.Router) {
			// Plaid
			if d.Plaid != nil {
				r.Post("/plaid/create-link-token", handlers.CreateLinkToken(d.Plaid, d.PlaidWebhookURL))
				r.Post("/plaid/exchange-public-token", handlers.ExchangePublicToken(d.Plaid, d.Store))
			}
			r.Get("/plaid/items", handlers.GetPlaidItems(d.Store))
			r.Get("/plaid/items/{item_id}/accounts", handlers.GetAccounts(d.Store))

			// Sync
			r.Post("/teams/sync", handlers.SyncTeam(d.Engine))
			r.Post("/plaid/items/{item_id}/sync", handlers.SyncItem(d.Engine, d.Store))
			r.Get("/jobs/{job_id}", handlers.GetJob(d.Jobs))

			// Budget
			r.Get("/budgets", handlers.GetBudgets(d.Store))
			r.Post("/budgets", handlers.CreateBudget(d.Store))
			r.Route("/budgets/{budget_id}", func(r chi.Router) {
				r.Use(middleware.BudgetOwnerMiddleware(d.Store))
				r.Get("/", handlers.GetBudget())
				r.Put("/", handlers.UpdateBudget(d.Store))
				r.Delete("/", handlers.DeleteBudget(d.Store))

				r.Get("/categories", handlers.GetCategoryConfig(d.Store))
				r.Put("/categories", handlers.UpdateCustomCategories(d.Store))
				r.Get("/transactions", handlers.GetBudgetTransactions(d.Store))

				r.Get("/links", handlers.GetAccountLinks(d.Store))
				r.Post("/links", handlers.CreateAccountLink(d.Engine))
				r.Delete("/links/{link_id}", handlers.DeleteAccountLink(d.Store))

				r.Get("/spending", handlers.GetSpending(d.Spending))
				r.Post("/spending/recalculate", handlers.RecalculateSpending(d.Spending))

				// Transaction Rules
				r.Get("/rules", handlers.GetAllTransactionRules(d.Rules))
				r.Post("/rules", handlers.CreateTransactionRule(d.Rules))
				r.Put("/rules/order", handlers.SetTransactionRuleOrder(d.Rules))
				r.Post("/rules/trigger", handlers.TriggerTransactionRules(d.Rules))
				r.Get("/rules/{rule_id}", handlers.GetTransactionRuleByID(d.Rules))
				r.Put("/rules/{rule_id}", handlers.UpdateTransactionRule(d.Rules))
				r.Delete("/rules/{rule_id}", handlers.DeleteTransactionRule(d.Rules))
			})
		})
	})

	return r
}
