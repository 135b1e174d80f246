package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"ovenbook/internal/booking"
	"ovenbook/internal/model"
)

// CancelRequest is the optional body of POST /bookings/{id}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// POST /api/v1/bookings
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeBookingInput(w, r)
	if !ok {
		return
	}
	b, err := s.engine.CreateBooking(r.Context(), actorFrom(r), in)
	s.writeResult(w, "create booking", booking.ResultOf(b, err, "Booking created"), err, http.StatusCreated)
}

// PUT /api/v1/bookings/{bookingID}
func (s *Server) handleEditBooking(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeBookingInput(w, r)
	if !ok {
		return
	}
	b, err := s.engine.EditBooking(r.Context(), actorFrom(r), chi.URLParam(r, "bookingID"), in)
	s.writeResult(w, "edit booking", booking.ResultOf(b, err, "Booking updated"), err, http.StatusOK)
}

// POST /api/v1/bookings/{bookingID}/cancel
func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	b, err := s.engine.CancelBooking(r.Context(), actorFrom(r), chi.URLParam(r, "bookingID"), req.Reason)
	s.writeResult(w, "cancel booking", booking.ResultOf(b, err, "Booking cancelled"), err, http.StatusOK)
}

// POST /api/v1/bookings/{bookingID}/complete
func (s *Server) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.CompleteBooking(r.Context(), actorFrom(r), chi.URLParam(r, "bookingID"))
	s.writeResult(w, "complete booking", booking.ResultOf(b, err, "Booking completed"), err, http.StatusOK)
}

// DELETE /api/v1/bookings/{bookingID}
func (s *Server) handleRemoveBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.RemoveBooking(r.Context(), actorFrom(r), chi.URLParam(r, "bookingID"))
	s.writeResult(w, "remove booking", booking.ResultOf(b, err, "Booking removed"), err, http.StatusOK)
}

// GET /api/v1/bookings/{bookingID}
func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.GetBooking(r.Context(), actorFrom(r), chi.URLParam(r, "bookingID"))
	if err != nil {
		s.writeEngineError(w, "get booking", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/v1/bookings/{bookingID}/events
func (s *Server) handleBookingHistory(w http.ResponseWriter, r *http.Request) {
	evs, err := s.engine.BookingHistory(r.Context(), actorFrom(r), chi.URLParam(r, "bookingID"))
	if err != nil {
		s.writeEngineError(w, "booking history", err)
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

// GET /api/v1/bookings?oven_id=&owner_id=&status=ACTIVE,COMPLETED&from=&to=&include_deleted=&limit=
func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.writeEngineError(w, "list bookings", err)
		return
	}
	list, err := s.engine.ListBookings(r.Context(), actorFrom(r), filter)
	if err != nil {
		s.writeEngineError(w, "list bookings", err)
		return
	}
	if list == nil {
		list = []*model.Booking{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) decodeBookingInput(w http.ResponseWriter, r *http.Request) (booking.BookingInput, bool) {
	var raw booking.RawBookingInput
	if err := decodeJSON(r, &raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return booking.BookingInput{}, false
	}
	in, err := booking.ParseBookingInput(raw)
	if err != nil {
		s.writeResult(w, "parse booking", booking.ResultOf(nil, err, ""), err, http.StatusOK)
		return booking.BookingInput{}, false
	}
	return in, true
}

func parseFilter(r *http.Request) (model.BookingFilter, error) {
	q := r.URL.Query()
	var f model.BookingFilter

	f.OwnerID = q.Get("owner_id")
	if v := q.Get("oven_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, &booking.Rejection{Code: booking.CodeValidation, Reason: "oven_id must be a number"}
		}
		f.OvenID = id
	}
	if v := q.Get("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			st := model.BookingStatus(strings.ToUpper(strings.TrimSpace(part)))
			if !st.Valid() {
				return f, &booking.Rejection{Code: booking.CodeValidation, Reason: "unknown status " + part}
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if v := q.Get("from"); v != "" {
		t, err := booking.ParseInstant("from", v)
		if err != nil {
			return f, err
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := booking.ParseInstant("to", v)
		if err != nil {
			return f, err
		}
		f.To = &t
	}
	f.IncludeDeleted = q.Get("include_deleted") == "true"
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, &booking.Rejection{Code: booking.CodeValidation, Reason: "limit must be a non-negative number"}
		}
		f.Limit = n
	}
	return f, nil
}
