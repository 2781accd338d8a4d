package api

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeError переводит доменные ошибки в HTTP-коды.
func writeError(w http.ResponseWriter, logger *log.Entry, err error) {
	switch {
	case domain.IsCompareRejection(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Reason: domain.CompareRejectReason(err)})
	case errors.Is(err, domain.ErrCartItemNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrCartQuantityInvalid):
		writeMessage(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrProductIDRequired),
		errors.Is(err, domain.ErrProductNameRequired),
		errors.Is(err, domain.ErrDeviceIDRequired),
		errors.Is(err, domain.ErrSessionTokenRequired),
		errors.Is(err, domain.ErrUserRecordInvalid):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		logger.WithError(err).Error("request failed")
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
