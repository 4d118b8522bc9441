package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/keefcreative/designworks/internal/board"
	"github.com/keefcreative/designworks/internal/cardsync"
	"github.com/keefcreative/designworks/internal/client"
	"github.com/keefcreative/designworks/internal/logger"
	"github.com/keefcreative/designworks/internal/trello"
)

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// apiError is an error that already knows its HTTP status.
type apiError struct {
	status int
	Body   errorBody `json:"error"`
}

func (e *apiError) Error() string { return e.Body.Message }

func newError(status int, code, msg string, details map[string]any) *apiError {
	if code == "" {
		code = defaultCode(status)
	}
	return &apiError{status: status, Body: errorBody{Code: code, Message: msg, Details: details}}
}

// classify maps domain errors to statuses.  Provider failures are 502:
// the attempt is already in the ledger and the sweeper will retry it.
func classify(err error) *apiError {
	var (
		ae *apiError
		nf *cardsync.NotFoundError
		ce *cardsync.ConfigurationError
		pe *trello.ProviderError
		ve validator.ValidationErrors
	)
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.As(err, &nf):
		return newError(http.StatusNotFound, "request_not_found", err.Error(), map[string]any{"request_id": nf.RequestID})
	case errors.Is(err, client.ErrNotFound):
		return newError(http.StatusNotFound, "client_not_found", err.Error(), nil)
	case errors.As(err, &ce):
		var details map[string]any
		if len(ce.Missing) > 0 {
			details = map[string]any{"missing": ce.Missing}
		}
		return newError(http.StatusUnprocessableEntity, "configuration", err.Error(), details)
	case errors.Is(err, board.ErrNoCredentials):
		return newError(http.StatusUnprocessableEntity, "configuration", err.Error(), nil)
	case errors.Is(err, cardsync.ErrAlreadySynced):
		return newError(http.StatusConflict, "already_synced", err.Error(), nil)
	case errors.Is(err, cardsync.ErrClaimed):
		return newError(http.StatusConflict, "sync_in_progress", err.Error(), nil)
	case errors.Is(err, cardsync.ErrNoCard):
		return newError(http.StatusConflict, "no_card", err.Error(), nil)
	case errors.Is(err, cardsync.ErrInvalidInput):
		return newError(http.StatusBadRequest, "", err.Error(), nil)
	case errors.As(err, &ve):
		fields := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, strings.ToLower(fe.Field())+": "+fe.Tag())
		}
		return newError(http.StatusBadRequest, "validation_failed", "request body failed validation", map[string]any{"fields": fields})
	case errors.As(err, &pe):
		details := map[string]any{"op": pe.Op}
		if pe.Status != 0 {
			details["provider_status"] = pe.Status
		}
		return newError(http.StatusBadGateway, "provider_error", err.Error(), details)
	default:
		return newError(http.StatusInternalServerError, "", "internal error", nil)
	}
}

func defaultCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err)
	if ae.status >= 500 {
		logger.FromContext(r.Context()).Errorw("request failed",
			"path", r.URL.Path, "status", ae.status, "err", err)
	}
	writeJSON(w, ae.status, ae)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
