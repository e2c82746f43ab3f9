package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"budgee-sync/src/jobs"
	"budgee-sync/src/logger"
	"budgee-sync/src/middleware"
	"budgee-sync/src/store"
	"budgee-sync/src/txsync"
	"budgee-sync/src/util"
)

// SyncTeam syncs every connection item of the caller's team and reports per-item results.
// Item failures are reported inside the results, not as a failed request.
func SyncTeam(engine *txsync.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID := middleware.TeamID(r.Context())
		results, err := engine.SyncTeam(r.Context(), teamID)
		if err != nil {
			writeErr(w, logger.FromContext(r.Context()), "Failed to sync team", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]any{"items": results})
	}
}

func SyncItem(engine *txsync.Engine, st store.ItemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		item, ok := teamItem(w, r, st, chi.URLParam(r, "item_id"))
		if !ok {
			return
		}
		res, err := engine.SyncItem(r.Context(), *item)
		if err != nil {
			writeErr(w, logger.FromContext(r.Context()).With().Str("item_id", item.ID).Logger(), "Failed to sync item", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, res)
	}
}

type webhookBody struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
}

// PlaidWebhook queues a sync when Plaid reports new transactions for an item.
// A nil verifier accepts unsigned webhooks. Other webhook codes are acknowledged and ignored.
func PlaidWebhook(verifier *util.WebhookVerifier, st store.ItemStore, queue jobs.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "could not read body")
			return
		}
		if verifier != nil {
			if err := verifier.Verify(r.Context(), body, r.Header); err != nil {
				log.Warn().Err(err).Msg("Rejected plaid webhook")
				middleware.WriteError(w, http.StatusUnauthorized, "invalid_signature", "webhook verification failed")
				return
			}
		}

		var hook webhookBody
		if err := json.Unmarshal(body, &hook); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid webhook body")
			return
		}
		log = log.With().Str("webhook_type", hook.WebhookType).Str("webhook_code", hook.WebhookCode).Str("plaid_item_id", hook.ItemID).Logger()

		if hook.WebhookType != "TRANSACTIONS" || hook.WebhookCode != "SYNC_UPDATES_AVAILABLE" {
			log.Debug().Msg("Ignoring plaid webhook")
			middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		item, err := st.GetItemByExternalID(r.Context(), hook.ItemID)
		if errors.Is(err, store.ErrNotFound) {
			log.Warn().Msg("Webhook for unknown plaid item")
			middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}
		if err != nil {
			writeErr(w, log, "Failed to load plaid item", err)
			return
		}

		job := &jobs.Job{Type: jobs.JobTypeSyncItem, ItemID: item.ID}
		if err := queue.Publish(r.Context(), job); err != nil {
			writeErr(w, log, "Failed to queue sync", err)
			return
		}
		log.Info().Str("job_id", job.ID).Msg("Queued sync from webhook")
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "job_id": job.ID})
	}
}

func GetJob(st jobs.JobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := st.GetJob(r.Context(), chi.URLParam(r, "job_id"))
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			writeErr(w, logger.FromContext(r.Context()), "Failed to load job", err)
			return
		}
		middleware.WriteJSON(w, http.StatusOK, job)
	}
}
