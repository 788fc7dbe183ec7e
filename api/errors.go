package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/warp/rent-engine/collection"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeRequestError reports a malformed or invalid request body as 400,
// listing failed fields when the validator produced them.
func writeRequestError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Fields: fields})
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid request", err)
}

// writeDomainError maps collection errors onto HTTP statuses:
//
//	ErrInvalidArgument    400
//	ErrNotFound           404
//	ErrConflict           409 (current state in the body)
//	ErrPersistenceFailure 503
//	anything else         500
func writeDomainError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var conflict *collection.ConflictError
	switch {
	case errors.Is(err, collection.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, collection.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Conflict",
			Details: err.Error(),
			Current: conflict.Current,
		})
	case errors.Is(err, collection.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, collection.ErrPersistenceFailure):
		log.Warn().Err(err).Msg("persistence failure")
		writeError(w, http.StatusServiceUnavailable, "Storage unavailable, retry later", err)
	default:
		log.Error().Err(err).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
