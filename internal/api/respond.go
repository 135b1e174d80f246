package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"ovenbook/internal/access"
	"ovenbook/internal/booking"
)

type errorResponse struct {
	Error string       `json:"error"`
	Code  booking.Code `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps an engine outcome to an HTTP status.
func statusFor(err error) int {
	switch booking.CodeOf(err) {
	case "":
		return http.StatusInternalServerError
	case booking.CodeAuthorization:
		return http.StatusForbidden
	case booking.CodeValidation:
		return http.StatusBadRequest
	case booking.CodeNotFound:
		return http.StatusNotFound
	case booking.CodeTemperatureExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// writeEngineError reports a failed engine call. Infrastructure failures get
// a generic message; the detail goes to the log.
func (s *Server) writeEngineError(w http.ResponseWriter, op string, err error) {
	if booking.IsRejection(err) {
		writeJSON(w, statusFor(err), errorResponse{Error: booking.ReasonOf(err), Code: booking.CodeOf(err)})
		return
	}
	s.logger.Error().Err(err).Str("op", op).Msg("engine call failed")
	writeError(w, http.StatusInternalServerError, booking.GenericFailure)
}

// writeResult serialises a booking mutation as a booking.Result.
func (s *Server) writeResult(w http.ResponseWriter, op string, res booking.Result, err error, okStatus int) {
	if err == nil {
		writeJSON(w, okStatus, res)
		return
	}
	if !booking.IsRejection(err) {
		s.logger.Error().Err(err).Str("op", op).Msg("engine call failed")
	}
	writeJSON(w, statusFor(err), res)
}

func (s *Server) writeAccessError(w http.ResponseWriter, err error) {
	switch {
	case access.IsAccessDenied(err):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, access.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, access.ErrInvalidUser):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, access.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("access call failed")
		writeError(w, http.StatusInternalServerError, booking.GenericFailure)
	}
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func ovenIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ovenID"), 10, 64)
	return id, err == nil && id > 0
}
