package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/parkbay/internal/audit"
	"github.com/friendsincode/parkbay/internal/auth"
	"github.com/friendsincode/parkbay/internal/booking"
	"github.com/friendsincode/parkbay/internal/clock"
	"github.com/friendsincode/parkbay/internal/db"
	"github.com/friendsincode/parkbay/internal/events"
	"github.com/friendsincode/parkbay/internal/integrity"
	"github.com/friendsincode/parkbay/internal/models"
	"github.com/friendsincode/parkbay/internal/notify"
	"github.com/friendsincode/parkbay/internal/store"
	"github.com/friendsincode/parkbay/internal/sweep"
)

var (
	t0     = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	secret = []byte("test-secret")
)

type fakeSweeper struct {
	calls int
}

func (f *fakeSweeper) RunSweep(context.Context) (sweep.Report, error) {
	f.calls++
	return sweep.Report{StartedAt: t0, Activated: 2}, nil
}

type testServer struct {
	router  chi.Router
	engine  *booking.Engine
	store   *store.Store
	clock   *clock.Fake
	bus     *events.Bus
	sweeper *fakeSweeper
	slot    *models.Slot
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	database, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(database) })
	if err := db.Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	st := store.New(database)
	clk := clock.NewFake(t0)
	bus := events.NewBus()
	gw := notify.NewDispatcher(zerolog.Nop(), notify.NewStoreSink(st.Notifications), notify.NewBusSink(bus))
	eng := booking.New(st, clk, gw, booking.DefaultPolicy(decimal.RequireFromString("5.00"), "USD"), zerolog.Nop())

	slot, err := eng.CreateSlot(context.Background(), "A-01", "north", models.SlotClassGeneral)
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}

	sw := &fakeSweeper{}
	r := chi.NewRouter()
	a := New(eng, st, sw, bus, secret, zerolog.Nop())
	a.SetIntegrity(integrity.NewService(st, clk, zerolog.Nop()))

	auditLog := audit.NewService(database, bus, clk, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	auditLog.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-auditLog.Done()
	})
	a.SetAuditLog(auditLog)
	a.Routes(r)

	return &testServer{router: r, engine: eng, store: st, clock: clk, bus: bus, sweeper: sw, slot: slot}
}

func token(t *testing.T, user string, roles ...string) string {
	t.Helper()
	tok, err := auth.Issue(secret, auth.Claims{UserID: user, Roles: roles}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

type bookingJSON struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	SlotHeld  bool   `json:"slot_held"`
	Payment   *struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
		Status string `json:"status"`
	} `json:"payment"`
}

func (s *testServer) create(t *testing.T, tok string, start, end time.Time) bookingJSON {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/bookings", tok, map[string]any{
		"slot_id":    s.slot.ID,
		"start_time": start,
		"end_time":   end,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create booking: %d %s", rec.Code, rec.Body.String())
	}
	return decode[bookingJSON](t, rec)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRequiresAuthentication(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/bookings", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice")

	created := s.create(t, alice, t0.Add(2*time.Hour), t0.Add(4*time.Hour))
	if created.Status != string(models.ReservationPending) || created.OwnerID != "alice" {
		t.Fatalf("unexpected booking %+v", created)
	}
	if !strings.HasPrefix(created.Reference, "BK-20260301-") {
		t.Fatalf("unexpected reference %q", created.Reference)
	}
	if created.Payment == nil || created.Payment.Amount != "10" {
		t.Fatalf("expected 10.00 payment, got %+v", created.Payment)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/payments/"+created.Payment.ID+"/confirm", alice, map[string]string{"method": "CARD"})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[bookingJSON](t, rec); got.Status != string(models.ReservationConfirmed) {
		t.Fatalf("expected CONFIRMED, got %s", got.Status)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/bookings/"+created.ID+"/cancellation", alice, nil)
	status := decode[booking.CancellationStatus](t, rec)
	if !status.Allowed || status.RemainingMinutes != 60 {
		t.Fatalf("unexpected cancellation status %+v", status)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/bookings/"+created.ID+"/cancel", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}
	cancelled := decode[bookingJSON](t, rec)
	if cancelled.Status != string(models.ReservationCancelled) || cancelled.Payment.Status != string(models.PaymentRefunded) {
		t.Fatalf("expected CANCELLED with refund, got %+v", cancelled)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/me/notifications", alice, nil)
	list := decode[struct {
		Notifications []models.Notification `json:"notifications"`
	}](t, rec)
	if len(list.Notifications) != 2 {
		t.Fatalf("expected confirmed and cancelled notifications, got %d", len(list.Notifications))
	}

	rec = s.do(t, http.MethodPost, "/api/v1/me/notifications/"+list.Notifications[0].ID+"/read", alice, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read: %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/me/notifications?unread_only=true", alice, nil)
	unread := decode[struct {
		Notifications []models.Notification `json:"notifications"`
	}](t, rec)
	if len(unread.Notifications) != 1 {
		t.Fatalf("expected one unread notification, got %d", len(unread.Notifications))
	}

	rec = s.do(t, http.MethodGet, "/api/v1/me/summary", alice, nil)
	summary := decode[booking.OwnerSummary](t, rec)
	if summary.TotalReservations != 1 || summary.ActiveReservations != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestCreateBookingErrors(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice")

	first := s.create(t, alice, t0.Add(2*time.Hour), t0.Add(4*time.Hour))
	if err := s.engine.ConfirmPayment(context.Background(), first.Payment.ID, models.PaymentMethodCard); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing slot", map[string]any{"start_time": t0.Add(time.Hour), "end_time": t0.Add(2 * time.Hour)}, http.StatusBadRequest, "slot_id_required"},
		{"unknown field", map[string]any{"slot_id": s.slot.ID, "colour": "red"}, http.StatusBadRequest, "invalid_json"},
		{"too soon", map[string]any{"slot_id": s.slot.ID, "start_time": t0.Add(time.Minute), "end_time": t0.Add(time.Hour)}, http.StatusBadRequest, "invalid_window"},
		{"too short", map[string]any{"slot_id": s.slot.ID, "start_time": t0.Add(time.Hour), "end_time": t0.Add(80 * time.Minute)}, http.StatusBadRequest, "invalid_window"},
		{"unknown slot", map[string]any{"slot_id": "nope", "start_time": t0.Add(time.Hour), "end_time": t0.Add(2 * time.Hour)}, http.StatusNotFound, "slot_not_found"},
		{"overlap", map[string]any{"slot_id": s.slot.ID, "start_time": t0.Add(3 * time.Hour), "end_time": t0.Add(5 * time.Hour)}, http.StatusConflict, "slot_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/bookings", alice, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d %s", tt.status, rec.Code, rec.Body.String())
			}
			if got := decode[map[string]string](t, rec)["error"]; got != tt.code {
				t.Fatalf("expected error %q, got %q", tt.code, got)
			}
		})
	}
}

func TestBookingsAreOwnerScoped(t *testing.T) {
	s := newTestServer(t)
	alice, bob, admin := token(t, "alice"), token(t, "bob"), token(t, "root", auth.RoleAdmin)

	b := s.create(t, alice, t0.Add(2*time.Hour), t0.Add(3*time.Hour))

	for _, path := range []string{"/api/v1/bookings/" + b.ID, "/api/v1/bookings/" + b.ID + "/cancellation"} {
		if rec := s.do(t, http.MethodGet, path, bob, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 for another owner, got %d", path, rec.Code)
		}
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", bob, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 cancelling another owner's booking, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/payments/"+b.Payment.ID+"/confirm", bob, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 confirming another owner's payment, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/bookings?owner_id=alice", bob, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 listing another owner, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/bookings", bob, nil)
	if got := decode[struct {
		Total int `json:"total"`
	}](t, rec); got.Total != 0 {
		t.Fatalf("expected bob to see no bookings, got %d", got.Total)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/bookings/"+b.ID, admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected admin to read any booking, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/bookings?owner_id=alice", admin, nil)
	if got := decode[struct {
		Total int `json:"total"`
	}](t, rec); got.Total != 1 {
		t.Fatalf("expected admin to list alice's booking, got %d", got.Total)
	}

	processor := token(t, "psp", auth.RolePayments)
	if rec := s.do(t, http.MethodPost, "/api/v1/payments/"+b.Payment.ID+"/confirm", processor, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected payment processor to confirm, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCancelAfterWindowIsConflict(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice")
	b := s.create(t, alice, t0.Add(3*time.Hour), t0.Add(4*time.Hour))

	s.clock.Advance(61 * time.Minute)
	rec := s.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/cancel", alice, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["error"] != "cancellation_window_expired" || !strings.Contains(body["message"], "1 hours 1 minutes ago") {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRescheduleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice")
	b := s.create(t, alice, t0.Add(2*time.Hour), t0.Add(3*time.Hour))

	rec := s.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/reschedule", alice, map[string]any{
		"start_time": t0.Add(5 * time.Hour),
		"end_time":   t0.Add(6 * time.Hour),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected pending booking reschedule to conflict, got %d", rec.Code)
	}

	if err := s.engine.ConfirmPayment(context.Background(), b.Payment.ID, models.PaymentMethodCard); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	rec = s.do(t, http.MethodPost, "/api/v1/bookings/"+b.ID+"/reschedule", alice, map[string]any{
		"start_time": t0.Add(5 * time.Hour),
		"end_time":   t0.Add(7 * time.Hour),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule: %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[bookingJSON](t, rec); got.Payment == nil || got.Payment.Amount != "10" {
		t.Fatalf("expected repriced payment, got %+v", got.Payment)
	}
}

func TestSlotsAndAvailability(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, "alice")

	rec := s.do(t, http.MethodGet, "/api/v1/slots", alice, nil)
	if slots := decode[[]models.Slot](t, rec); len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}

	b := s.create(t, alice, t0.Add(2*time.Hour), t0.Add(3*time.Hour))
	if err := s.engine.ConfirmPayment(context.Background(), b.Payment.ID, models.PaymentMethodCard); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	check := func(start, end time.Time) bool {
		t.Helper()
		path := "/api/v1/slots/" + s.slot.ID + "/availability?start=" + start.Format(time.RFC3339) + "&end=" + end.Format(time.RFC3339)
		rec := s.do(t, http.MethodGet, path, alice, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("availability: %d %s", rec.Code, rec.Body.String())
		}
		return decode[struct {
			Available bool `json:"available"`
		}](t, rec).Available
	}
	if check(t0.Add(150*time.Minute), t0.Add(4*time.Hour)) {
		t.Fatalf("expected overlapping window to be unavailable")
	}
	if !check(t0.Add(3*time.Hour), t0.Add(4*time.Hour)) {
		t.Fatalf("expected adjacent window to be available")
	}

	rec = s.do(t, http.MethodGet, "/api/v1/slots/"+s.slot.ID+"/availability?start=bad", alice, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad start, got %d", rec.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	driver, admin := token(t, "alice"), token(t, "root", auth.RoleAdmin)

	if rec := s.do(t, http.MethodPost, "/api/v1/admin/sweep", driver, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for driver, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/admin/slots", admin, map[string]string{"code": "B-07", "location": "south", "class": "vip"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create slot: %d %s", rec.Code, rec.Body.String())
	}
	slot := decode[models.Slot](t, rec)
	if slot.Class != models.SlotClassVIP || slot.Status != models.SlotAvailable {
		t.Fatalf("unexpected slot %+v", slot)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/admin/slots", admin, map[string]string{"code": "B-07"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected duplicate code to be rejected, got %d", rec.Code)
	}

	tests := []struct {
		status string
		want   int
		slot   models.SlotStatus
	}{
		{"MAINTENANCE", http.StatusOK, models.SlotMaintenance},
		{"OCCUPIED", http.StatusBadRequest, ""},
		{"AVAILABLE", http.StatusOK, models.SlotAvailable},
	}
	for _, tt := range tests {
		rec := s.do(t, http.MethodPut, "/api/v1/admin/slots/"+slot.ID+"/status", admin, map[string]string{"status": tt.status})
		if rec.Code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.status, tt.want, rec.Code)
		}
		if tt.slot != "" && decode[models.Slot](t, rec).Status != tt.slot {
			t.Fatalf("%s: slot status not applied", tt.status)
		}
	}

	rec = s.do(t, http.MethodPost, "/api/v1/admin/sweep", admin, nil)
	if rec.Code != http.StatusOK || s.sweeper.calls != 1 {
		t.Fatalf("expected manual sweep, got %d calls=%d", rec.Code, s.sweeper.calls)
	}
	if got := decode[sweep.Report](t, rec); got.Activated != 2 {
		t.Fatalf("unexpected report %+v", got)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/admin/revenue?from=2026-03-01T00:00:00Z&to=2026-03-02T00:00:00Z", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revenue: %d %s", rec.Code, rec.Body.String())
	}
	if rev := decode[booking.Revenue](t, rec); !rev.Total.Equal(decimal.Zero) || rev.Payments != 0 {
		t.Fatalf("unexpected revenue %+v", rev)
	}
	rec = s.do(t, http.MethodGet, "/api/v1/admin/revenue?from=2026-03-02T00:00:00Z&to=2026-03-01T00:00:00Z", admin, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected inverted range to be rejected, got %d", rec.Code)
	}
}

func TestEventStreamDeliversOwnEventsOnly(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + auth.EventsPath
	alice, _, err := ws.Dial(ctx, wsURL+"?token="+token(t, "alice"), nil)
	if err != nil {
		t.Fatalf("dial alice: %v", err)
	}
	defer alice.Close(ws.StatusNormalClosure, "")

	bobHeader := http.Header{"Authorization": []string{"Bearer " + token(t, "bob")}}
	bob, _, err := ws.Dial(ctx, wsURL, &ws.DialOptions{HTTPHeader: bobHeader})
	if err != nil {
		t.Fatalf("dial bob: %v", err)
	}
	defer bob.Close(ws.StatusNormalClosure, "")

	r, err := s.engine.CreateBooking(ctx, booking.CreateBookingRequest{
		OwnerID: "alice",
		SlotID:  s.slot.ID,
		Start:   t0.Add(2 * time.Hour),
		End:     t0.Add(3 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if err := s.engine.ConfirmPayment(ctx, r.Payment.ID, models.PaymentMethodCard); err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}

	_, data, err := alice.Read(ctx)
	if err != nil {
		t.Fatalf("read alice: %v", err)
	}
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if msg.Type != string(events.EventReservationConfirmed) || msg.Payload["reservation_id"] != r.ID {
		t.Fatalf("unexpected event %s", data)
	}

	quiet, cancelQuiet := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancelQuiet()
	if _, data, err := bob.Read(quiet); err == nil {
		t.Fatalf("bob received another owner's event: %s", data)
	}
}

func TestEventStreamRejectsQueryTokenWithoutUpgrade(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, auth.EventsPath+"?token="+token(t, "alice"), "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAllowedEventTypes(t *testing.T) {
	driver := &auth.Claims{UserID: "alice"}
	admin := &auth.Claims{UserID: "root", Roles: []string{auth.RoleAdmin}}

	if got := allowedEventTypes(driver, []events.EventType{events.EventSweepCompleted}); len(got) != 0 {
		t.Fatalf("driver must not subscribe to sweep reports, got %v", got)
	}
	if got := allowedEventTypes(admin, []events.EventType{events.EventSweepCompleted, events.EventSweepCompleted}); len(got) != 1 {
		t.Fatalf("expected deduplicated sweep subscription, got %v", got)
	}
	if got := allowedEventTypes(driver, nil); len(got) != len(events.OwnerEventTypes) {
		t.Fatalf("expected default owner types, got %v", got)
	}

	payload := events.Payload{"owner_id": "alice"}
	if !visible(driver, events.EventReservationConfirmed, payload) || visible(&auth.Claims{UserID: "bob"}, events.EventReservationConfirmed, payload) {
		t.Fatalf("owner filtering failed")
	}
	if !visible(admin, events.EventSweepCompleted, events.Payload{}) {
		t.Fatalf("admin should see sweep reports")
	}
}

func TestIntegrityRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, "ops", auth.RoleAdmin)

	if rec := s.do(t, http.MethodGet, "/api/v1/admin/integrity", token(t, "alice"), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin scan: expected 403, got %d", rec.Code)
	}

	if err := s.store.Slots.SetStatus(context.Background(), s.slot.ID, models.SlotOccupied, t0); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	rec := s.do(t, http.MethodGet, "/api/v1/admin/integrity", admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan: %d %s", rec.Code, rec.Body.String())
	}
	report := decode[integrity.Report](t, rec)
	if report.ByType[integrity.FindingOrphanOccupiedSlot] != 1 {
		t.Fatalf("expected orphaned slot finding, got %+v", report.ByType)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/admin/integrity/repair", admin, map[string]string{
		"type": string(integrity.FindingOrphanOccupiedSlot), "resource_id": s.slot.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("repair: %d %s", rec.Code, rec.Body.String())
	}
	if res := decode[integrity.RepairResult](t, rec); !res.Changed {
		t.Fatalf("expected repair to change state: %+v", res)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/admin/integrity/repair", admin, map[string]string{
		"type": string(integrity.FindingOverlappingBookings), "resource_id": "x",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("manual finding: expected 409, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/admin/integrity/repair", admin, map[string]string{"type": "orphan_occupied_slot"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing resource: expected 400, got %d", rec.Code)
	}
}

func TestAdminActionsAreAudited(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, "root", auth.RoleAdmin)

	if rec := s.do(t, http.MethodGet, "/api/v1/admin/audit", token(t, "alice"), nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for driver, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/v1/admin/slots", admin, map[string]string{"code": "C-01"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create slot: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPut, "/api/v1/admin/slots/"+s.slot.ID+"/status", admin, map[string]string{"status": "MAINTENANCE"}); rec.Code != http.StatusOK {
		t.Fatalf("slot status: %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/api/v1/admin/sweep", admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("sweep: %d", rec.Code)
	}

	type auditPage struct {
		Entries []models.AuditLog `json:"entries"`
		Total   int64             `json:"total"`
	}
	deadline := time.Now().Add(2 * time.Second)
	var page auditPage
	for {
		rec := s.do(t, http.MethodGet, "/api/v1/admin/audit?user_id=root", admin, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("audit list: %d %s", rec.Code, rec.Body.String())
		}
		page = decode[auditPage](t, rec)
		if page.Total >= 3 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if page.Total != 3 {
		t.Fatalf("expected 3 audit entries, got %d", page.Total)
	}
	seen := map[models.AuditAction]bool{}
	for _, e := range page.Entries {
		seen[e.Action] = true
		if e.UserID != "root" {
			t.Fatalf("expected actor root, got %q", e.UserID)
		}
	}
	for _, action := range []models.AuditAction{models.AuditActionSlotCreate, models.AuditActionSlotStatus, models.AuditActionSweepRun} {
		if !seen[action] {
			t.Fatalf("missing audit action %s in %+v", action, page.Entries)
		}
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/admin/audit?from=yesterday", admin, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected invalid from to be rejected, got %d", rec.Code)
	}
}

func TestWriteDomainErrorStatus(t *testing.T) {
	a := &API{logger: zerolog.Nop()}
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"transition conflict is transient", fmt.Errorf("confirm: %w", booking.ErrTransitionConflict), http.StatusServiceUnavailable, "transition_conflict", "1"},
		{"slot unavailable", booking.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable", ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.writeDomainError(rec, tt.err)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.retryAfter {
				t.Fatalf("Retry-After = %q, want %q", got, tt.retryAfter)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] != tt.code {
				t.Fatalf("error = %q, want %q", body["error"], tt.code)
			}
		})
	}
}
