/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strings"

	"github.com/friendsincode/parkbay/internal/audit"
	"github.com/friendsincode/parkbay/internal/auth"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/models"
)

// auditContext returns the request fields recorded with every audit entry.
func (a *API) auditContext(r *http.Request) events.Payload {
	return events.Payload{
		"user_id":    auth.ActorID(r.Context()),
		"ip_address": r.RemoteAddr,
		"user_agent": r.UserAgent(),
	}
}

func (a *API) publishAuditEvent(r *http.Request, eventType events.EventType, data events.Payload) {
	if a.bus == nil {
		return
	}
	payload := a.auditContext(r)
	for k, v := range data {
		payload[k] = v
	}
	a.bus.Publish(eventType, payload)
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_disabled")
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from")
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to")
		return
	}

	filters := audit.QueryFilters{
		UserID: strings.TrimSpace(r.URL.Query().Get("user_id")),
		Action: models.AuditAction(strings.TrimSpace(r.URL.Query().Get("action"))),
		From:   from,
		To:     to,
		Limit:  parseIntParam(r, "limit"),
		Offset: parseIntParam(r, "offset"),
	}
	logs, total, err := a.audit.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("audit query failed")
		writeError(w, http.StatusInternalServerError, "audit_query_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": logs,
		"total":   total,
	})
}
