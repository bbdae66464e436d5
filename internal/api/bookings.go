/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/parkbay/internal/auth"
	"github.com/friendsincode/parkbay/internal/booking"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/store"
)

type createBookingRequest struct {
	SlotID    string    `json:"slot_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	VehicleID string    `json:"vehicle_id,omitempty"`
}

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type confirmPaymentRequest struct {
	Method models.PaymentMethod `json:"method"`
}

func (a *API) handleBookingsCreate(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.SlotID == "" {
		writeError(w, http.StatusBadRequest, "slot_id_required")
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		writeError(w, http.StatusBadRequest, "window_required")
		return
	}

	res, err := a.engine.CreateBooking(r.Context(), booking.CreateBookingRequest{
		OwnerID:   auth.ActorID(r.Context()),
		SlotID:    req.SlotID,
		Start:     req.StartTime,
		End:       req.EndTime,
		VehicleID: strings.TrimSpace(req.VehicleID),
	})
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(res))
}

func (a *API) handleBookingsList(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	owner := claims.UserID
	if q := r.URL.Query().Get("owner_id"); q != "" && q != owner {
		if !claims.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		owner = q
	}

	opts := store.ListOptions{
		Status: models.ReservationStatus(strings.ToUpper(r.URL.Query().Get("status"))),
		Limit:  parseIntParam(r, "limit"),
		Offset: parseIntParam(r, "offset"),
	}
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 50
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	rows, total, err := a.engine.ListReservationsForOwner(r.Context(), owner, opts)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}

	views := make([]bookingView, 0, len(rows))
	for i := range rows {
		views = append(views, viewOf(&rows[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": views,
		"total":    total,
		"limit":    opts.Limit,
		"offset":   opts.Offset,
	})
}

// loadBooking fetches the path's reservation and enforces ownership. It
// writes the response and returns nil when the caller may not proceed.
func (a *API) loadBooking(w http.ResponseWriter, r *http.Request) *models.Reservation {
	res, err := a.engine.GetReservation(r.Context(), chi.URLParam(r, "bookingID"))
	if err != nil {
		a.writeDomainError(w, err)
		return nil
	}
	claims, _ := auth.ClaimsFromContext(r.Context())
	if !canAccess(claims, res.OwnerID) {
		// Other owners' bookings are indistinguishable from missing ones.
		a.writeDomainError(w, booking.ErrReservationNotFound)
		return nil
	}
	return res
}

func (a *API) handleBookingsGet(w http.ResponseWriter, r *http.Request) {
	res := a.loadBooking(w, r)
	if res == nil {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}

func (a *API) handleCancellationStatus(w http.ResponseWriter, r *http.Request) {
	res := a.loadBooking(w, r)
	if res == nil {
		return
	}
	status, err := a.engine.CancellationStatus(r.Context(), res.ID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *API) handleBookingsCancel(w http.ResponseWriter, r *http.Request) {
	res := a.loadBooking(w, r)
	if res == nil {
		return
	}
	if err := a.engine.CancelBooking(r.Context(), res.ID, auth.ActorID(r.Context())); err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeCurrent(w, r, res.ID)
}

func (a *API) handleBookingsReschedule(w http.ResponseWriter, r *http.Request) {
	res := a.loadBooking(w, r)
	if res == nil {
		return
	}
	var req rescheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		writeError(w, http.StatusBadRequest, "window_required")
		return
	}
	updated, err := a.engine.RescheduleBooking(r.Context(), res.ID, req.StartTime, req.EndTime)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(updated))
}

func (a *API) handlePaymentConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	// The body is optional; an empty one confirms as ONLINE.
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	switch req.Method {
	case "", models.PaymentMethodOnline, models.PaymentMethodCard, models.PaymentMethodCash:
	default:
		writeError(w, http.StatusBadRequest, "invalid_payment_method")
		return
	}

	payment, err := a.engine.GetPayment(r.Context(), chi.URLParam(r, "paymentID"))
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	res, err := a.engine.GetReservation(r.Context(), payment.ReservationID)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	claims, _ := auth.ClaimsFromContext(r.Context())
	if !canAccess(claims, res.OwnerID) && !claims.HasRole(auth.RolePayments) {
		a.writeDomainError(w, booking.ErrPaymentNotFound)
		return
	}

	if err := a.engine.ConfirmPayment(r.Context(), payment.ID, req.Method); err != nil {
		a.writeDomainError(w, err)
		return
	}
	a.writeCurrent(w, r, res.ID)
}

// writeCurrent responds with the reservation as stored after a transition.
func (a *API) writeCurrent(w http.ResponseWriter, r *http.Request, id string) {
	res, err := a.engine.GetReservation(r.Context(), id)
	if err != nil {
		a.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}
