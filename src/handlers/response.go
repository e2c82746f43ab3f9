package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"budgee-sync/src/categories"
	"budgee-sync/src/merger"
	"budgee-sync/src/middleware"
	"budgee-sync/src/rules"
	"budgee-sync/src/store"
	"budgee-sync/src/txsync"
	"budgee-sync/src/util"
)

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

// writeErr maps a domain error onto a status and error code and logs server-side failures.
func writeErr(w http.ResponseWriter, log zerolog.Logger, msg string, err error) {
	var provider *txsync.ProviderError
	var rowCount *merger.RowCountError
	switch {
	case errors.Is(err, util.ErrInvalidMonth):
		middleware.WriteError(w, http.StatusBadRequest, "invalid_month", err.Error())
	case errors.Is(err, rules.ErrInvalidRule):
		middleware.WriteError(w, http.StatusBadRequest, "invalid_rule", err.Error())
	case errors.Is(err, store.ErrAccountNotOwned):
		middleware.WriteError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, store.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "not_found", msg)
	case errors.Is(err, categories.ErrNoDefaultCategory):
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusUnprocessableEntity, "config_error", err.Error())
	case errors.As(err, &provider):
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusBadGateway, "provider_error", err.Error())
	case errors.As(err, &rowCount):
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, "integrity_error", msg)
	default:
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, "internal", msg)
	}
}
