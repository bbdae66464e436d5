/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/store"
)

type createSlotRequest struct {
	Code     string           `json:"code"`
	Location string           `json:"location"`
	Class    models.SlotClass `json:"class"`
}

type slotStatusRequest struct {
	Status models.SlotStatus `json:"status"`
}

func (a *API) handleSlotsList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SlotFilter{
		Status:   models.SlotStatus(strings.ToUpper(q.Get("status"))),
		Location: q.Get("location"),
		Class:    models.SlotClass(strings.ToUpper(q.Get("class"))),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}
	slots, err := a.engine.ListSlots(r.Context(), filter)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (a *API) handleSlotAvailability(w http.ResponseWriter, r *http.Request) {
	start, err := parseTimeParam(r, "start")
	if err != nil || start.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_start")
		return
	}
	end, err := parseTimeParam(r, "end")
	if err != nil || end.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_end")
		return
	}

	slotID := chi.URLParam(r, "slotID")
	available, err := a.engine.IsSlotAvailable(r.Context(), slotID, start, end)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"slot_id":   slotID,
		"start":     start.UTC(),
		"end":       end.UTC(),
		"available": available,
	})
}

func (a *API) handleSlotsCreate(w http.ResponseWriter, r *http.Request) {
	var req createSlotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.Class == "" {
		req.Class = models.SlotClassGeneral
	}
	slot, err := a.engine.CreateSlot(r.Context(), req.Code, req.Location, models.SlotClass(strings.ToUpper(string(req.Class))))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.publishAuditEvent(r, events.EventAuditSlotCreate, events.Payload{
		"resource_type": "slot",
		"resource_id":   slot.ID,
		"code":          slot.Code,
		"class":         string(slot.Class),
	})
	writeJSON(w, http.StatusCreated, slot)
}

func (a *API) handleSlotStatus(w http.ResponseWriter, r *http.Request) {
	var req slotStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	var maintenance bool
	switch models.SlotStatus(strings.ToUpper(string(req.Status))) {
	case models.SlotMaintenance:
		maintenance = true
	case models.SlotAvailable:
	default:
		// OCCUPIED is driven by confirmed reservations only.
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	slot, err := a.engine.SetSlotMaintenance(r.Context(), chi.URLParam(r, "slotID"), maintenance)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.publishAuditEvent(r, events.EventAuditSlotStatus, events.Payload{
		"resource_type": "slot",
		"resource_id":   slot.ID,
		"status":        string(slot.Status),
	})
	writeJSON(w, http.StatusOK, slot)
}
