package api

import (
	"bytes"
	"net/http"
	"strconv"

	"ovenbook/internal/audit"
	"ovenbook/internal/model"
)

// DashboardResponse is the landing view: every oven plus the caller's
// active bookings.
type DashboardResponse struct {
	Ovens          []*model.Oven    `json:"ovens"`
	ActiveBookings []*model.Booking `json:"active_bookings"`
	AutoCompleted  int              `json:"auto_completed"`
}

// GET /api/v1/dashboard
// Loading the dashboard is what drives the auto-complete sweep; a failed
// sweep is logged and does not fail the page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var resp DashboardResponse
	if s.sweeper != nil {
		n, err := s.sweeper.Trigger(r.Context())
		if err != nil {
			s.logger.Warn().Err(err).Msg("dashboard sweep failed")
		}
		resp.AutoCompleted = n
	}

	ovens, err := s.ovens.ListOvens(r.Context())
	if err != nil {
		s.writeEngineError(w, "dashboard ovens", err)
		return
	}
	actor := actorFrom(r)
	bookings, err := s.engine.ListBookings(r.Context(), actor, model.BookingFilter{
		OwnerID:  actor.ID,
		Statuses: []model.BookingStatus{model.StatusActive},
	})
	if err != nil {
		s.writeEngineError(w, "dashboard bookings", err)
		return
	}

	resp.Ovens = ovens
	resp.ActiveBookings = bookings
	if resp.ActiveBookings == nil {
		resp.ActiveBookings = []*model.Booking{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not available for this store")
		return
	}
	var buf bytes.Buffer
	if _, err := s.exporter.Export(r.Context(), &buf); err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+audit.Filename(s.clock.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
