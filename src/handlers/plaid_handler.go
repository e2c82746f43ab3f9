package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/plaid/plaid-go/v41/plaid"

	"budgee-sync/src/logger"
	"budgee-sync/src/middleware"
	"budgee-sync/src/models"
	"budgee-sync/src/store"
)

func CreateLinkToken(plaidClient *plaid.APIClient, webhookURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := middleware.TeamID(r.Context())
		log := logger.FromContext(r.Context()).With().Str("team_id", teamID).Logger()

		user := plaid.LinkTokenCreateRequestUser{
			ClientUserId: teamID,
		}
		request := plaid.NewLinkTokenCreateRequest(
			"Budgee",
			"en",
			[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		)
		request.SetUser(user)
		request.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
		if webhookURL != "" {
			request.SetWebhook(webhookURL)
		}
		resp, _, err := plaidClient.PlaidApi.LinkTokenCreate(r.Context()).LinkTokenCreateRequest(*request).Execute()
		if err != nil {
			log.Error().Err(err).Msg("Plaid link token creation failed")
			middleware.WriteError(w, http.StatusBadGateway, "provider_error", "Failed to create link token")
			return
		}

		middleware.WriteJSON(w, http.StatusCreated, map[string]string{"link_token": resp.GetLinkToken()})
	}
}

// ExchangePublicToken stores the new connection item and its accounts. The first
// sync runs on demand or when Plaid reports updates.
func ExchangePublicToken(plaidClient *plaid.APIClient, st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := middleware.TeamID(r.Context())
		log := logger.FromContext(r.Context()).With().Str("team_id", teamID).Logger()

		var req struct {
			PublicToken string `json:"public_token"`
		}
		if err := decodeJSON(w, r, &req); err != nil || req.PublicToken == "" {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "public_token is required")
			return
		}

		exchangeReq := plaid.NewItemPublicTokenExchangeRequest(req.PublicToken)
		exchangeResp, _, err := plaidClient.PlaidApi.ItemPublicTokenExchange(r.Context()).ItemPublicTokenExchangeRequest(
			*exchangeReq,
		).Execute()
		if err != nil {
			log.Error().Err(err).Msg("Plaid public token exchange failed")
			middleware.WriteError(w, http.StatusBadGateway, "provider_error", "Failed to exchange public token")
			return
		}

		item, err := st.SaveItem(r.Context(), models.PlaidItem{
			TeamID:      teamID,
			ItemID:      exchangeResp.GetItemId(),
			AccessToken: exchangeResp.GetAccessToken(),
		})
		if err != nil {
			writeErr(w, log, "Failed to save plaid item", err)
			return
		}

		accountsReq := plaid.NewAccountsGetRequest(item.AccessToken)
		accountsResp, _, err := plaidClient.PlaidApi.AccountsGet(r.Context()).AccountsGetRequest(*accountsReq).Execute()
		if err != nil {
			log.Error().Err(err).Str("item_id", item.ItemID).Msg("Failed to fetch accounts")
			middleware.WriteError(w, http.StatusBadGateway, "provider_error", "Failed to fetch accounts")
			return
		}
		accounts := make([]models.Account, 0, len(accountsResp.GetAccounts()))
		for _, acc := range accountsResp.GetAccounts() {
			accounts = append(accounts, models.Account{
				ItemID:            item.ID,
				ExternalAccountID: acc.GetAccountId(),
				Name:              acc.GetName(),
				Mask:              acc.GetMask(),
				Type:              string(acc.GetType()),
				Subtype:           string(acc.GetSubtype()),
			})
		}
		if err := st.SaveAccounts(r.Context(), accounts); err != nil {
			writeErr(w, log, "Failed to save accounts", err)
			return
		}

		log.Info().Str("item_id", item.ItemID).Int("accounts", len(accounts)).Msg("Connected plaid item")
		middleware.WriteJSON(w, http.StatusCreated, item)
	}
}

func GetPlaidItems(st store.ItemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := middleware.TeamID(r.Context())
		items, err := st.ItemsForTeam(r.Context(), teamID)
		if err != nil {
			writeErr(w, logger.FromContext(r.Context()), "Failed to retrieve plaid items", err)
			return
		}
		if items == nil {
			items = []models.PlaidItem{}
		}
		middleware.WriteJSON(w, http.StatusOK, items)
	}
}

func GetAccounts(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		item, ok := teamItem(w, r, st, chi.URLParam(r, "item_id"))
		if !ok {
			return
		}
		accounts, err := st.ListAccounts(r.Context(), item.ID)
		if err != nil {
			writeErr(w, log, "Failed to retrieve accounts", err)
			return
		}
		if accounts == nil {
			accounts = []models.Account{}
		}
		middleware.WriteJSON(w, http.StatusOK, accounts)
	}
}

// teamItem loads an item and hides items of other teams behind a 404.
func teamItem(w http.ResponseWriter, r *http.Request, st store.ItemStore, id string) (*models.PlaidItem, bool) {
	item, err := st.GetItem(r.Context(), id)
	if err == nil && item.TeamID != middleware.TeamID(r.Context()) {
		err = store.ErrNotFound
	}
	if err != nil {
		writeErr(w, logger.FromContext(r.Context()), "Plaid item not found", err)
		return nil, false
	}
	return item, true
}
