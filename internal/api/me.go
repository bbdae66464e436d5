/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/parkbay/internal/auth"
	"github.com/friendsincode/parkbay/internal/store"
)

func (a *API) handleOwnerSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.engine.OwnerSummary(r.Context(), auth.ActorID(r.Context()))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleNotificationsList(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread_only") == "true"
	limit := parseIntParam(r, "limit")
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	list, err := a.notifications.ListByOwner(r.Context(), auth.ActorID(r.Context()), unreadOnly, limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list notifications failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": list,
		"limit":         limit,
	})
}

func (a *API) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	err := a.notifications.MarkRead(r.Context(), auth.ActorID(r.Context()), chi.URLParam(r, "notificationID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "notification_not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Msg("mark notification read failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
