/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/integrity"
	"github.com/friendsincode/parkbay/internal/store"
)

func (a *API) handleIntegrityScan(w http.ResponseWriter, r *http.Request) {
	if a.integrity == nil {
		writeError(w, http.StatusServiceUnavailable, "integrity_disabled")
		return
	}
	report, err := a.integrity.Scan(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("integrity scan failed")
		writeError(w, http.StatusInternalServerError, "scan_failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleIntegrityRepair(w http.ResponseWriter, r *http.Request) {
	if a.integrity == nil {
		writeError(w, http.StatusServiceUnavailable, "integrity_disabled")
		return
	}
	var in integrity.RepairInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	in.ResourceID = strings.TrimSpace(in.ResourceID)
	if in.Type == "" || in.ResourceID == "" {
		writeError(w, http.StatusBadRequest, "type_and_resource_id_required")
		return
	}

	result, err := a.integrity.Repair(r.Context(), in)
	switch {
	case err == nil:
	case errors.Is(err, integrity.ErrNotRepairable):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "not_repairable", "message": err.Error()})
		return
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource_not_found")
		return
	default:
		a.logger.Error().Err(err).Str("type", string(in.Type)).Msg("integrity repair failed")
		writeError(w, http.StatusInternalServerError, "repair_failed")
		return
	}

	a.publishAuditEvent(r, events.EventAuditIntegrityRepair, events.Payload{
		"resource_type": string(in.Type),
		"resource_id":   in.ResourceID,
		"changed":       result.Changed,
	})
	writeJSON(w, http.StatusOK, result)
}
