/*
handlers_test.go - HTTP tests for the collection API

Tests run the full router over an in-memory SQLite store, a recording SMS
sender and a fixed clock (February 1, 2026, 09:00 UTC).
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-engine/collection"
	"github.com/warp/rent-engine/lock"
	"github.com/warp/rent-engine/notify"
	"github.com/warp/rent-engine/store/sqlite"
)

type testServer struct {
	handler *Handler
	router  http.Handler
	sender  *notify.RecordingSender
	clock   *collection.FixedClock
}

func newTestServer(t *testing.T, staff ...notify.Config) *testServer {
	t.Helper()
	var cfg notify.Config
	if len(staff) > 0 {
		cfg = staff[0]
	}
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zerolog.Nop()
	sender := &notify.RecordingSender{}
	clock := &collection.FixedClock{T: time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)}
	h := NewHandler(store, collection.DefaultPolicy(), Options{
		Notifier: notify.NewDispatcher(sender, store, cfg, log),
		Locker:   lock.NewLocal(),
		Clock:    clock,
	}, log)

	return &testServer{handler: h, router: NewRouter(h), sender: sender, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createTenant(t *testing.T, id string, rent int64, method string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/tenants", map[string]any{
		"id":             id,
		"first_name":     "Sarah",
		"last_name":      "Mitchell",
		"phone":          "857-225-7226",
		"address":        "321 Pine St",
		"unit":           "1",
		"rent_amount":    rent,
		"payment_method": method,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *testServer) generate(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/ledger/generate", PeriodRequest{Month: 2, Year: 2026})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) ledgerID(t *testing.T, tenantID string) string {
	t.Helper()
	e, err := s.handler.Store.FindLedgerEntry(context.Background(), collection.TenantID(tenantID), collection.Period{Month: 2, Year: 2026})
	require.NoError(t, err)
	return string(e.ID)
}

func pendingTypes(t *testing.T, s *testServer) []string {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/notifications?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var types []string
	for _, n := range decodeBody[[]NotificationDTO](t, rec) {
		types = append(types, n.Type)
	}
	return types
}

// =============================================================================
// HEALTH & POLICY
// =============================================================================

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody[map[string]string](t, rec)["status"])
}

func TestGetPolicy(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/policy", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"formal_notice":7`)
	assert.Contains(t, body, `"escalation":10`)
	assert.Contains(t, body, `"pay_or_quit_cure_days":7`)
}

// =============================================================================
// TENANTS
// =============================================================================

func TestCreateTenant(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/tenants", map[string]any{
		"first_name":  "Sarah",
		"last_name":   "Mitchell",
		"phone":       "+18572257226",
		"address":     "321 Pine St",
		"rent_amount": "900.00",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[TenantDTO](t, rec)
	assert.NotEmpty(t, created.ID, "id is generated")
	assert.Equal(t, "current", created.Status)
	assert.True(t, created.RentAmount.Equal(decimal.NewFromInt(900)))

	rec = s.do(t, http.MethodGet, "/api/tenants", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]TenantDTO](t, rec), 1)
}

func TestCreateTenant_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"bad phone", map[string]any{
			"first_name": "Sarah", "last_name": "Mitchell", "phone": "12345",
			"address": "321 Pine St", "rent_amount": 900,
		}, "Phone"},
		{"missing name", map[string]any{
			"last_name": "Mitchell", "phone": "+18572257226",
			"address": "321 Pine St", "rent_amount": 900,
		}, "FirstName"},
		{"bad status", map[string]any{
			"first_name": "Sarah", "last_name": "Mitchell", "phone": "+18572257226",
			"address": "321 Pine St", "rent_amount": 900, "status": "evicted",
		}, "Status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/tenants", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeBody[ErrorResponse](t, rec)
			assert.Contains(t, resp.Fields, tt.field)
		})
	}

	rec := s.do(t, http.MethodPost, "/api/tenants", map[string]any{
		"first_name": "Sarah", "last_name": "Mitchell", "phone": "+18572257226",
		"address": "321 Pine St", "rent_amount": 0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "rent must be positive")

	rec = s.do(t, http.MethodPost, "/api/tenants", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewValidator_PhoneTag(t *testing.T) {
	type contact struct {
		Phone string `validate:"phone"`
	}
	var v interface{ Struct(any) error }
	require.NotPanics(t, func() { v = newValidator("US") })

	assert.NoError(t, v.Struct(contact{Phone: "(857) 225-7226"}))
	assert.Error(t, v.Struct(contact{Phone: "12345"}))
}

func TestTenantHistory_NotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/tenants/nobody/history", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordTenantResponse(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/collection/run-day?day=3", nil).Code)

	rec := s.do(t, http.MethodPost, "/api/tenants/t-1/responses", TenantResponseRequest{Response: "Paying Friday"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decodeBody[map[string]int](t, rec)["updated"])

	rec = s.do(t, http.MethodGet, "/api/tenants/t-1/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decodeBody[TenantHistoryDTO](t, rec)
	require.Len(t, hist.Actions, 2)
	assert.True(t, hist.Actions[0].TenantResponded)
	assert.Equal(t, "Paying Friday", hist.Actions[1].Response)

	rec = s.do(t, http.MethodPost, "/api/tenants/t-1/responses", TenantResponseRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestGenerateLedger(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.createTenant(t, "t-2", 950, "direct_deposit")

	rec := s.do(t, http.MethodPost, "/api/ledger/generate", PeriodRequest{Month: 2, Year: 2026})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[GenerateResultDTO](t, rec)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 2, res.Month)
	assert.Equal(t, 2026, res.Year)

	rec = s.do(t, http.MethodPost, "/api/ledger/generate", PeriodRequest{Month: 2, Year: 2026})
	require.Equal(t, http.StatusOK, rec.Code)
	res = decodeBody[GenerateResultDTO](t, rec)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 2, res.Skipped)

	rec = s.do(t, http.MethodPost, "/api/ledger/generate", PeriodRequest{Month: 13, Year: 2026})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerSummary(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.createTenant(t, "t-2", 950, "direct_deposit")
	s.generate(t)

	rec := s.do(t, http.MethodGet, "/api/ledger?month=2&year=2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[SummaryDTO](t, rec)
	assert.Equal(t, 1, sum.Counts["paid"])
	assert.Equal(t, 1, sum.Counts["unpaid"])
	assert.True(t, sum.TotalDue.Equal(decimal.NewFromInt(1850)))
	assert.True(t, sum.TotalCollected.Equal(decimal.NewFromInt(950)))
	assert.Len(t, sum.Entries, 2)

	// Defaults to the clock's period
	rec = s.do(t, http.MethodGet, "/api/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[SummaryDTO](t, rec).Entries, 2)

	rec = s.do(t, http.MethodGet, "/api/ledger?month=feb", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordPayment(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)
	id := s.ledgerID(t, "t-1")

	rec := s.do(t, http.MethodPost, "/api/ledger/"+id+"/payments", map[string]any{"amount": "400", "method": "cash"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[PaymentResultDTO](t, rec)
	assert.Equal(t, "partial", res.Status)
	assert.True(t, res.Remaining.Equal(decimal.NewFromInt(500)))

	rec = s.do(t, http.MethodPost, "/api/ledger/"+id+"/payments", map[string]any{"amount": 500})
	require.Equal(t, http.StatusOK, rec.Code)
	paid := decodeBody[PaymentResultDTO](t, rec)
	assert.Equal(t, "paid", paid.Status)
	assert.True(t, paid.Remaining.IsZero())

	rec = s.do(t, http.MethodPost, "/api/ledger/missing/payments", map[string]any{"amount": 10})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/ledger/"+id+"/payments", map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// COLLECTION
// =============================================================================

func TestRunCollectionDay_FullWaterfall(t *testing.T) {
	// GIVEN: One unpaid $900 tenant
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)

	// WHEN: Day 10 runs
	rec := s.do(t, http.MethodPost, "/api/collection/run-day", RunDayRequest{Day: 10, Month: 2, Year: 2026})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[RunDayResponse](t, rec)

	// THEN: Every step acted once, in order
	require.Len(t, resp.Results, 5)
	want := []string{"reminder_1", "reminder_2", "late_fee_applied", "formal_notice", "escalated"}
	for i, step := range resp.Results {
		assert.Equal(t, want[i], step.Action)
		assert.Equal(t, 1, step.Sent, step.Action)
	}
	assert.Len(t, s.sender.Sent(), 4, "escalation only alerts the owner")

	rec = s.do(t, http.MethodGet, "/api/ledger/delinquent?month=2&year=2026", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	delinquent := decodeBody[[]DelinquentDTO](t, rec)
	require.Len(t, delinquent, 1)
	assert.Equal(t, "late", delinquent[0].Status)
	assert.True(t, delinquent[0].TotalOwed.Equal(decimal.NewFromInt(950)))
	assert.Len(t, delinquent[0].Actions, 5)

	// WHEN: The same day runs again
	rec = s.do(t, http.MethodPost, "/api/collection/run-day", RunDayRequest{Day: 10, Month: 2, Year: 2026})
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Nothing new is sent
	for _, step := range decodeBody[RunDayResponse](t, rec).Results {
		assert.Equal(t, 0, step.Sent)
	}
	assert.Len(t, s.sender.Sent(), 4)
}

func TestRunCollectionDay_QueryAndDefaults(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)

	rec := s.do(t, http.MethodPost, "/api/collection/run-day?day=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[RunDayResponse](t, rec)
	assert.Equal(t, 2, resp.Month)
	assert.Equal(t, 2026, resp.Year)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "reminder_1", resp.Results[0].Action)

	rec = s.do(t, http.MethodPost, "/api/collection/run-day", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "day is required")

	rec = s.do(t, http.MethodPost, "/api/collection/run-day", RunDayRequest{Day: 32})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunCollectionDay_FormalNoticeTextsManager(t *testing.T) {
	// GIVEN: A manager number and no owner number
	s := newTestServer(t, notify.Config{ManagerPhone: "207-441-4000"})
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)

	// WHEN: Day 7 reaches the formal notice
	rec := s.do(t, http.MethodPost, "/api/collection/run-day?day=7", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Four tenant texts plus the manager copy
	sent := s.sender.Sent()
	require.Len(t, sent, 5)
	last := sent[len(sent)-1]
	assert.Equal(t, "+12074414000", last.To)
	assert.Contains(t, last.Body, "Formal notice sent to Sarah Mitchell")
}

func TestApprovePayOrQuit(t *testing.T) {
	// GIVEN: An escalated tenant
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/collection/run-day?day=10", nil).Code)

	assert.Contains(t, pendingTypes(t, s), "approval_needed")

	// WHEN: The owner approves twice
	first := s.do(t, http.MethodPost, "/api/collection/t-1/approve-pay-or-quit", PeriodRequest{Month: 2, Year: 2026})
	second := s.do(t, http.MethodPost, "/api/collection/t-1/approve-pay-or-quit", PeriodRequest{Month: 2, Year: 2026})

	// THEN: One notice and the approval request is closed
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	require.Equal(t, http.StatusOK, second.Code)
	sent := decodeBody[PayOrQuitResponse](t, first)
	assert.True(t, sent.Sent)
	assert.False(t, sent.AlreadySent)
	require.NotNil(t, sent.Delivered)
	assert.True(t, *sent.Delivered)

	repeat := decodeBody[PayOrQuitResponse](t, second)
	assert.True(t, repeat.AlreadySent)
	assert.False(t, repeat.Sent)
	assert.Equal(t, sent.ActionID, repeat.ActionID)
	assert.Nil(t, repeat.Delivered, "delivery is only reported for a fresh notice")

	var raw map[string]any
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &raw))
	assert.Equal(t, true, raw["already_sent"])
	assert.NotContains(t, raw, "delivered")
	assert.Len(t, s.sender.Sent(), 5)

	assert.NotContains(t, pendingTypes(t, s), "approval_needed")

	rec := s.do(t, http.MethodPost, "/api/collection/nobody/approve-pay-or-quit", PeriodRequest{Month: 2, Year: 2026})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApprovePayOrQuit_PaidConflict(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)
	s.do(t, http.MethodPost, "/api/ledger/"+s.ledgerID(t, "t-1")+"/payments", map[string]any{"amount": 900})

	rec := s.do(t, http.MethodPost, "/api/collection/t-1/approve-pay-or-quit", PeriodRequest{Month: 2, Year: 2026})

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "paid", decodeBody[ErrorResponse](t, rec).Current)
}

func TestPaymentPlanLifecycle(t *testing.T) {
	// GIVEN: A late tenant
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/collection/run-day?day=5", nil).Code)

	// WHEN: A plan is requested
	rec := s.do(t, http.MethodPost, "/api/collection/t-1/payment-plan", map[string]any{
		"ledger_id":           s.ledgerID(t, "t-1"),
		"initial_payment":     "350",
		"monthly_installment": "300",
		"num_installments":    2,
	})

	// THEN: Pending for the full balance
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plan := decodeBody[PlanDTO](t, rec)
	assert.Equal(t, "pending", plan.Status)
	assert.True(t, plan.TotalOwed.Equal(decimal.NewFromInt(950)))
	assert.Nil(t, plan.ApprovedAt)

	// Completing before approval conflicts
	rec = s.do(t, http.MethodPost, "/api/payment-plans/"+plan.ID+"/transition", TransitionPlanRequest{Status: "completed"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "pending", decodeBody[ErrorResponse](t, rec).Current)

	rec = s.do(t, http.MethodPost, "/api/payment-plans/"+plan.ID+"/transition", TransitionPlanRequest{Status: "active", Actor: "owner"})
	require.Equal(t, http.StatusOK, rec.Code)
	active := decodeBody[PlanDTO](t, rec)
	assert.Equal(t, "active", active.Status)
	require.NotNil(t, active.ApprovedAt)

	rec = s.do(t, http.MethodPost, "/api/payment-plans/"+plan.ID+"/transition", TransitionPlanRequest{Status: "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pending is not a target")

	rec = s.do(t, http.MethodPost, "/api/payment-plans/missing/transition", TransitionPlanRequest{Status: "active"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreatePaymentPlan_Invalid(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)

	rec := s.do(t, http.MethodPost, "/api/collection/t-1/payment-plan", map[string]any{
		"ledger_id":           s.ledgerID(t, "t-1"),
		"monthly_installment": "0",
		"num_installments":    2,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/collection/t-1/payment-plan", map[string]any{
		"monthly_installment": "300",
		"num_installments":    2,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Fields, "LedgerID")
}

// =============================================================================
// NOTIFICATIONS & DELIVERIES
// =============================================================================

func TestAcknowledgeNotification(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/collection/run-day?day=7", nil).Code)

	rec := s.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[[]NotificationDTO](t, rec)
	require.Len(t, all, 1)

	rec = s.do(t, http.MethodPost, "/api/notifications/"+all[0].ID+"/acknowledge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acknowledged", decodeBody[NotificationDTO](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/notifications/missing/acknowledge", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListDeliveries(t *testing.T) {
	s := newTestServer(t)
	s.createTenant(t, "t-1", 900, "check")
	s.generate(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/collection/run-day?day=3", nil).Code)

	rec := s.do(t, http.MethodGet, "/api/deliveries?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ds := decodeBody[[]DeliveryDTO](t, rec)
	require.Len(t, ds, 2)
	for _, d := range ds {
		assert.Equal(t, "sent", d.Status)
		assert.Equal(t, "+18572257226", d.ToPhone)
		assert.Equal(t, "t-1", d.TenantID)
	}
	assert.True(t, strings.HasPrefix(ds[0].Context, "collection_reminder_"))
}

func TestRequestIDAndCORS(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/tenants", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
