/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the booking engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/parkbay/internal/audit"
	"github.com/friendsincode/parkbay/internal/auth"
	"github.com/friendsincode/parkbay/internal/booking"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/integrity"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/store"
	"github.com/friendsincode/parkbay/internal/sweep"
)

// SweepRunner triggers one lifecycle sweep.
type SweepRunner interface {
	RunSweep(ctx context.Context) (sweep.Report, error)
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// LeaderStatus reports whether this instance currently runs the sweep.
type LeaderStatus interface {
	IsLeader() bool
}

// AuditLog queries recorded operator actions.
type AuditLog interface {
	Query(ctx context.Context, filters audit.QueryFilters) ([]models.AuditLog, int64, error)
}

// IntegrityChecker scans and repairs booking data.
type IntegrityChecker interface {
	Scan(ctx context.Context) (*integrity.Report, error)
	Repair(ctx context.Context, input integrity.RepairInput) (integrity.RepairResult, error)
}

// API exposes HTTP handlers.
type API struct {
	engine        *booking.Engine
	notifications *store.NotificationStore
	sweeper       SweepRunner
	health        Pinger
	leader        LeaderStatus
	integrity     IntegrityChecker
	audit         AuditLog
	bus           *events.Bus
	jwtSecret     []byte
	logger        zerolog.Logger
}

// New creates the API router wrapper.
func New(engine *booking.Engine, st *store.Store, sweeper SweepRunner, bus *events.Bus, jwtSecret []byte, logger zerolog.Logger) *API {
	return &API{
		engine:        engine,
		notifications: st.Notifications,
		sweeper:       sweeper,
		health:        st,
		bus:           bus,
		jwtSecret:     jwtSecret,
		logger:        logger.With().Str("component", "api").Logger(),
	}
}

// SetLeaderStatus adds sweep leadership to the health response.
func (a *API) SetLeaderStatus(l LeaderStatus) {
	a.leader = l
}

// SetIntegrity enables the admin integrity endpoints.
func (a *API) SetIntegrity(c IntegrityChecker) {
	a.integrity = c
}

// SetAuditLog enables the admin audit endpoint.
func (a *API) SetAuditLog(l AuditLog) {
	a.audit = l
}

// Routes mounts the booking API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.jwtSecret))

			pr.Route("/bookings", func(r chi.Router) {
				r.Get("/", a.handleBookingsList)
				r.Post("/", a.handleBookingsCreate)
				r.Route("/{bookingID}", func(r chi.Router) {
					r.Get("/", a.handleBookingsGet)
					r.Get("/cancellation", a.handleCancellationStatus)
					r.Post("/cancel", a.handleBookingsCancel)
					r.Post("/reschedule", a.handleBookingsReschedule)
				})
			})

			pr.Post("/payments/{paymentID}/confirm", a.handlePaymentConfirm)

			pr.Route("/slots", func(r chi.Router) {
				r.Get("/", a.handleSlotsList)
				r.Get("/{slotID}/availability", a.handleSlotAvailability)
			})

			pr.Route("/me", func(r chi.Router) {
				r.Get("/summary", a.handleOwnerSummary)
				r.Get("/notifications", a.handleNotificationsList)
				r.Post("/notifications/{notificationID}/read", a.handleNotificationRead)
				r.Get("/events", a.handleEvents)
			})

			pr.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Post("/slots", a.handleSlotsCreate)
				r.Put("/slots/{slotID}/status", a.handleSlotStatus)
				r.Post("/sweep", a.handleSweep)
				r.Get("/revenue", a.handleRevenue)
				r.Get("/integrity", a.handleIntegrityScan)
				r.Post("/integrity/repair", a.handleIntegrityRepair)
				r.Get("/audit", a.handleAuditList)
			})
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.health.Ping(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "database": "unreachable"})
		return
	}
	resp := map[string]any{"status": "ok"}
	if a.leader != nil {
		resp["leader"] = a.leader.IsLeader()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSweep(w http.ResponseWriter, r *http.Request) {
	if a.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "sweeper_disabled")
		return
	}
	report, err := a.sweeper.RunSweep(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("manual sweep failed")
		writeError(w, http.StatusInternalServerError, "sweep_failed")
		return
	}
	a.publishAuditEvent(r, events.EventAuditSweepRun, events.Payload{
		"resource_type": "sweep",
		"activated":     report.Activated,
		"completed":     report.Completed,
		"cancelled":     report.Cancelled,
	})
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleRevenue(w http.ResponseWriter, r *http.Request) {
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
	rev, err := a.engine.Revenue(r.Context(), from, to)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rev)
}

// canAccess reports whether the caller may see or act on an owner's records.
func canAccess(claims *auth.Claims, ownerID string) bool {
	return claims != nil && (claims.UserID == ownerID || claims.IsAdmin())
}

// domainErrors maps engine errors to status and machine code. Order matters:
// the first match wins.
var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{booking.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{booking.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{booking.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
	{booking.ErrReservationNotFound, http.StatusNotFound, "booking_not_found"},
	{booking.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{booking.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
	{booking.ErrPaymentAlreadyCancelled, http.StatusConflict, "payment_already_cancelled"},
	{booking.ErrCancellationWindowExpired, http.StatusConflict, "cancellation_window_expired"},
	{booking.ErrNotCancellable, http.StatusConflict, "not_cancellable"},
	{booking.ErrNotReschedulable, http.StatusConflict, "not_reschedulable"},
	{booking.ErrTransitionConflict, http.StatusServiceUnavailable, "transition_conflict"},
	{booking.ErrBookingFailed, http.StatusInternalServerError, "booking_failed"},
}

func (a *API) writeDomainError(w http.ResponseWriter, err error) {
	for _, de := range domainErrors {
		if errors.Is(err, de.err) {
			// Lost races survive one retry only under contention; callers may try again.
			if de.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "1")
			}
			writeJSON(w, de.status, map[string]string{"error": de.code, "message": err.Error()})
			return
		}
	}
	a.logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal_error")
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func parseIntParam(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// bookingView adds the human reference to a reservation.
type bookingView struct {
	*models.Reservation
	Reference string `json:"reference"`
}

func viewOf(r *models.Reservation) bookingView {
	return bookingView{Reservation: r, Reference: r.Reference()}
}
