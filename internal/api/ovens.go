package api

import (
	"net/http"

	"ovenbook/internal/booking"
)

// MaintenanceResponse reports how many bookings a maintenance flip cancelled.
type MaintenanceResponse struct {
	OvenID        int64 `json:"oven_id"`
	AutoCancelled int   `json:"auto_cancelled"`
}

// GET /api/v1/ovens
func (s *Server) handleListOvens(w http.ResponseWriter, r *http.Request) {
	ovens, err := s.ovens.ListOvens(r.Context())
	if err != nil {
		s.writeEngineError(w, "list ovens", err)
		return
	}
	writeJSON(w, http.StatusOK, ovens)
}

// GET /api/v1/ovens/{ovenID}
func (s *Server) handleGetOven(w http.ResponseWriter, r *http.Request) {
	id, ok := ovenIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid oven id")
		return
	}
	oven, err := s.ovens.GetOven(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, "get oven", err)
		return
	}
	writeJSON(w, http.StatusOK, oven)
}

// POST /api/v1/ovens
func (s *Server) handleCreateOven(w http.ResponseWriter, r *http.Request) {
	var in booking.OvenInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	oven, err := s.engine.CreateOven(r.Context(), actorFrom(r), in)
	if err != nil {
		s.writeEngineError(w, "create oven", err)
		return
	}
	writeJSON(w, http.StatusCreated, oven)
}

// PUT /api/v1/ovens/{ovenID}
func (s *Server) handleUpdateOven(w http.ResponseWriter, r *http.Request) {
	id, ok := ovenIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid oven id")
		return
	}
	var in booking.OvenInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	oven, err := s.engine.UpdateOven(r.Context(), actorFrom(r), id, in)
	if err != nil {
		s.writeEngineError(w, "update oven", err)
		return
	}
	writeJSON(w, http.StatusOK, oven)
}

// DELETE /api/v1/ovens/{ovenID}
func (s *Server) handleDeleteOven(w http.ResponseWriter, r *http.Request) {
	id, ok := ovenIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid oven id")
		return
	}
	if err := s.engine.DeleteOven(r.Context(), actorFrom(r), id); err != nil {
		s.writeEngineError(w, "delete oven", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/ovens/{ovenID}/maintenance
func (s *Server) handleSetMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := ovenIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid oven id")
		return
	}
	n, err := s.engine.SetOvenMaintenance(r.Context(), actorFrom(r), id)
	if err != nil {
		s.writeEngineError(w, "set maintenance", err)
		return
	}
	writeJSON(w, http.StatusOK, MaintenanceResponse{OvenID: id, AutoCancelled: n})
}

// DELETE /api/v1/ovens/{ovenID}/maintenance
func (s *Server) handleClearMaintenance(w http.ResponseWriter, r *http.Request) {
	id, ok := ovenIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid oven id")
		return
	}
	if err := s.engine.ClearOvenMaintenance(r.Context(), actorFrom(r), id); err != nil {
		s.writeEngineError(w, "clear maintenance", err)
		return
	}
	writeJSON(w, http.StatusOK, MaintenanceResponse{OvenID: id})
}
