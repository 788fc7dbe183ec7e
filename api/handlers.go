/*
handlers.go - HTTP API handlers for the rent collection engine

PURPOSE:
  Exposes ledger generation, the escalation waterfall, payments and the
  owner approval gate via REST API. Handles HTTP request/response, JSON
  serialization and validation, and delegates to the collection package.

ENDPOINTS:
  Tenants:
    GET    /api/tenants                        List roster
    POST   /api/tenants                        Create or replace tenant
    GET    /api/tenants/{id}/history           Ledger, actions, plans, payments
    POST   /api/tenants/{id}/responses         Record a tenant reply

  Ledger:
    POST   /api/ledger/generate                Generate monthly ledger
    GET    /api/ledger?month&year              Period summary
    GET    /api/ledger/delinquent?month&year   Unpaid, late and partial entries
    POST   /api/ledger/{id}/payments           Record a payment

  Collection:
    POST   /api/collection/run-day             Run the escalation waterfall
    POST   /api/collection/{tenantId}/approve-pay-or-quit
    POST   /api/collection/{tenantId}/payment-plan
    POST   /api/payment-plans/{id}/transition  Approve / complete / default

  Notifications:
    GET    /api/notifications?status
    POST   /api/notifications/{id}/acknowledge
    GET    /api/deliveries                     Outbound message log

ERROR HANDLING:
  See errors.go. Domain errors map to 400/404/409/503, everything else
  to 500.

SECURITY NOTE:
  No authentication. All endpoints are public; run behind a gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/rent-engine/collection"
	"github.com/warp/rent-engine/factory"
	"github.com/warp/rent-engine/notify"
	"github.com/warp/rent-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options are the optional collaborators of a Handler.
type Options struct {
	Notifier collection.Notifier
	Locker   collection.Locker
	Clock    collection.Clock
	// Region is used to validate tenant phone numbers.
	Region string
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Policy    collection.Policy
	Engine    *collection.Engine
	Generator *collection.Generator
	Recorder  *collection.Recorder
	Gate      *collection.Gate
	Reporter  *collection.Reporter
	Clock     collection.Clock
	Log       zerolog.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the collection components over one store.
func NewHandler(store *sqlite.Store, policy collection.Policy, opts Options, log zerolog.Logger) *Handler {
	clock := opts.Clock
	if clock == nil {
		clock = collection.SystemClock{}
	}
	region := opts.Region
	if region == "" {
		region = notify.DefaultRegion
	}

	engine := collection.NewEngine(store, policy, opts.Notifier, log)
	engine.Locker, engine.Clock = opts.Locker, clock
	generator := collection.NewGenerator(store, policy, log)
	generator.Locker, generator.Clock = opts.Locker, clock
	recorder := collection.NewRecorder(store, log)
	recorder.Clock = clock
	gate := collection.NewGate(store, policy, opts.Notifier, log)
	gate.Clock = clock

	return &Handler{
		Store:     store,
		Policy:    policy,
		Engine:    engine,
		Generator: generator,
		Recorder:  recorder,
		Gate:      gate,
		Reporter:  collection.NewReporter(store, log),
		Clock:     clock,
		Log:       log,
		validate:  newValidator(region),
	}
}

func newValidator(region string) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return notify.ValidPhone(fl.Field().String(), region)
	}); err != nil {
		panic(fmt.Sprintf("api: register phone validation: %v", err))
	}
	return v
}

// =============================================================================
// HEALTH & POLICY
// =============================================================================

// Health reports liveness and database reachability.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// GetPolicy returns the active escalation policy.
// GET /api/policy
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.FromPolicy(h.Policy))
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListTenants returns every roster tenant.
// GET /api/tenants
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Store.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tenants", err)
		return
	}
	dtos := make([]TenantDTO, len(tenants))
	for i, t := range tenants {
		dtos[i] = toTenantDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTenant adds or replaces a roster tenant.
// POST /api/tenants
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := h.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	if !req.RentAmount.IsPositive() {
		writeError(w, http.StatusBadRequest, "rent_amount must be positive", nil)
		return
	}

	t := collection.Tenant{
		ID:            collection.TenantID(req.ID),
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		Email:         req.Email,
		Unit:          req.Unit,
		Address:       req.Address,
		RentAmount:    req.RentAmount,
		PaymentMethod: req.PaymentMethod,
		Status:        collection.TenantStatus(req.Status),
		CreatedAt:     h.Clock.Now(),
	}
	if t.ID == "" {
		t.ID = collection.TenantID(uuid.NewString())
	}
	if t.Status == "" {
		t.Status = collection.TenantCurrent
	}

	if err := h.Store.SaveTenant(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save tenant", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantDTO(t))
}

// GetTenantHistory returns everything recorded for a tenant.
// GET /api/tenants/{id}/history
func (h *Handler) GetTenantHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.Reporter.TenantHistory(r.Context(), collection.TenantID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}

	dto := TenantHistoryDTO{
		Tenant:   toTenantDTO(hist.Tenant),
		Ledger:   toLedgerEntryDTOs(hist.Ledger),
		Actions:  toActionDTOs(hist.Actions),
		Plans:    make([]PlanDTO, len(hist.Plans)),
		Payments: make([]PaymentDTO, len(hist.Payments)),
	}
	for i, p := range hist.Plans {
		dto.Plans[i] = toPlanDTO(p)
	}
	for i, p := range hist.Payments {
		dto.Payments[i] = PaymentDTO{
			ID:         string(p.ID),
			LedgerID:   string(p.LedgerID),
			Amount:     p.Amount,
			Method:     p.Method,
			Notes:      p.Notes,
			RecordedAt: p.RecordedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// RecordTenantResponse attaches a reply to the tenant's unanswered actions.
// POST /api/tenants/{id}/responses
func (h *Handler) RecordTenantResponse(w http.ResponseWriter, r *http.Request) {
	var req TenantResponseRequest
	if err := h.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	n, err := h.Reporter.RecordTenantResponse(r.Context(), collection.TenantID(chi.URLParam(r, "id")), req.Response)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GenerateLedger creates the monthly ledger for every active tenant.
// POST /api/ledger/generate
func (h *Handler) GenerateLedger(w http.ResponseWriter, r *http.Request) {
	var req PeriodRequest
	if err := h.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	res, err := h.Generator.GenerateMonthlyLedger(r.Context(), req.Month, req.Year)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toGenerateResultDTO(res))
}

// GetLedgerSummary aggregates one period.
// GET /api/ledger?month=2&year=2026
func (h *Handler) GetLedgerSummary(w http.ResponseWriter, r *http.Request) {
	p, err := h.periodFromQuery(r)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	s, err := h.Reporter.Summary(r.Context(), p.Month, p.Year)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}

	counts := make(map[string]int, len(s.Counts))
	for status, n := range s.Counts {
		counts[string(status)] = n
	}
	writeJSON(w, http.StatusOK, SummaryDTO{
		Month:          p.Month,
		Year:           p.Year,
		Counts:         counts,
		TotalDue:       s.TotalDue,
		TotalCollected: s.TotalCollected,
		Entries:        toLedgerEntryDTOs(s.Entries),
	})
}

// GetDelinquent lists unpaid, late and partial entries with their history.
// GET /api/ledger/delinquent?month=2&year=2026
func (h *Handler) GetDelinquent(w http.ResponseWriter, r *http.Request) {
	p, err := h.periodFromQuery(r)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	entries, err := h.Reporter.Delinquent(r.Context(), p.Month, p.Year)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}

	dtos := make([]DelinquentDTO, len(entries))
	for i, d := range entries {
		dtos[i] = DelinquentDTO{
			LedgerEntryDTO: toLedgerEntryDTO(d.Entry),
			Tenant:         toTenantDTO(d.Tenant),
			Actions:        toActionDTOs(d.Actions),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordPayment applies a payment to a ledger entry.
// POST /api/ledger/{id}/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := h.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	res, err := h.Recorder.RecordPayment(r.Context(), collection.LedgerID(chi.URLParam(r, "id")), req.Amount, req.Method, req.Notes)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResultDTO(res))
}

// =============================================================================
// COLLECTION HANDLERS
// =============================================================================

// RunCollectionDay runs the escalation waterfall for a day. The day may be
// given in the body or as ?day=N.
// POST /api/collection/run-day
func (h *Handler) RunCollectionDay(w http.ResponseWriter, r *http.Request) {
	var req RunDayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if q := r.URL.Query().Get("day"); q != "" && req.Day == 0 {
		req.Day, _ = strconv.Atoi(q)
	}
	now := collection.PeriodOf(h.Clock.Now())
	if req.Month == 0 {
		req.Month = now.Month
	}
	if req.Year == 0 {
		req.Year = now.Year
	}
	if err := h.validate.Struct(req); err != nil {
		writeRequestError(w, err)
		return
	}

	res, err := h.Engine.RunCollectionDay(r.Context(), req.Day, req.Month, req.Year)
	if err != nil {
		if collection.IsRetryable(err) {
			// Partial results: the run can be repeated safely.
			resp := toRunDayResponse(res)
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDayResponse(res))
}

// ApprovePayOrQuit sends the pay-or-quit notice after owner approval.
// POST /api/collection/{tenantId}/approve-pay-or-quit
func (h *Handler) ApprovePayOrQuit(w http.ResponseWriter, r *http.Request) {
	var req PeriodRequest
	if err := h.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	res, err := h.Gate.SendPayOrQuit(r.Context(), collection.TenantID(chi.URLParam(r, "tenantId")), req.Month, req.Year)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayOrQuitResponse(res))
}

// CreatePaymentPlan records a pending plan for owner approval.
// POST /api/collection/{tenantId}/payment-plan
func (h *Handler) CreatePaymentPlan(w http.ResponseWriter, r *http.Request) {
	var req PaymentPlanRequest
	if err := h.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	plan, err := h.Gate.CreatePaymentPlan(r.Context(), collection.PlanRequest{
		TenantID:           collection.TenantID(chi.URLParam(r, "tenantId")),
		LedgerID:           collection.LedgerID(req.LedgerID),
		InitialPayment:     req.InitialPayment,
		MonthlyInstallment: req.MonthlyInstallment,
		NumInstallments:    req.NumInstallments,
		Notes:              req.Notes,
	})
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanDTO(plan))
}

// TransitionPaymentPlan moves a plan along its lifecycle.
// POST /api/payment-plans/{id}/transition
func (h *Handler) TransitionPaymentPlan(w http.ResponseWriter, r *http.Request) {
	var req TransitionPlanRequest
	if err := h.decode(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}
	plan, err := h.Gate.TransitionPaymentPlan(r.Context(), collection.PlanID(chi.URLParam(r, "id")),
		collection.PlanStatus(req.Status), req.Actor)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanDTO(plan))
}

// =============================================================================
// NOTIFICATION HANDLERS
// =============================================================================

// ListNotifications returns notifications, newest first.
// GET /api/notifications?status=pending
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	status := collection.NotificationStatus(r.URL.Query().Get("status"))
	ns, err := h.Reporter.ListNotifications(r.Context(), status)
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	dtos := make([]NotificationDTO, len(ns))
	for i, n := range ns {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AcknowledgeNotification marks a notification handled.
// POST /api/notifications/{id}/acknowledge
func (h *Handler) AcknowledgeNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.Reporter.AcknowledgeNotification(r.Context(), collection.NotificationID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationDTO(n))
}

// ListDeliveries returns the outbound message log.
// GET /api/deliveries?limit=50
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ds, err := h.Store.ListDeliveries(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries", err)
		return
	}
	dtos := make([]DeliveryDTO, len(ds))
	for i, d := range ds {
		dtos[i] = toDeliveryDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", collection.ErrInvalidArgument, err)
	}
	return h.validate.Struct(dst)
}

// periodFromQuery reads ?month&year, defaulting to the current period.
func (h *Handler) periodFromQuery(r *http.Request) (collection.Period, error) {
	p := collection.PeriodOf(h.Clock.Now())
	q := r.URL.Query()
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return collection.Period{}, fmt.Errorf("%w: month %q", collection.ErrInvalidArgument, v)
		}
		p.Month = m
	}
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return collection.Period{}, fmt.Errorf("%w: year %q", collection.ErrInvalidArgument, v)
		}
		p.Year = y
	}
	return p, p.Validate()
}
