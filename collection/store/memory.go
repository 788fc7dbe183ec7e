// Package store provides in-memory collection.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rent-engine/collection"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements collection.TxStore. Uniqueness of ledger entries and
// actions is enforced on insert, like the SQL unique indexes.
type Memory struct {
	mu sync.Mutex
	st *state
	// faults are returned by the named method until cleared.
	faults map[string]error
}

type ledgerKey struct {
	TenantID collection.TenantID
	Period   collection.Period
}

type state struct {
	tenants       map[collection.TenantID]collection.Tenant
	tenantOrder   []collection.TenantID
	ledger        map[collection.LedgerID]collection.LedgerEntry
	ledgerOrder   []collection.LedgerID
	ledgerKeys    map[ledgerKey]collection.LedgerID
	payments      []collection.Payment
	actions       []collection.CollectionAction
	actionKeys    map[string]int
	notifications []collection.Notification
	plans         []collection.PaymentPlan
}

func newState() *state {
	return &state{
		tenants:    make(map[collection.TenantID]collection.Tenant),
		ledger:     make(map[collection.LedgerID]collection.LedgerEntry),
		ledgerKeys: make(map[ledgerKey]collection.LedgerID),
		actionKeys: make(map[string]int),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState(), faults: make(map[string]error)}
}

// Fail makes every call to the named method return err. A nil err clears it.
func (m *Memory) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, method)
		return
	}
	m.faults[method] = err
}

// SaveTenant inserts or replaces a roster tenant.
func (m *Memory) SaveTenant(_ context.Context, t collection.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.tenants[t.ID]; !ok {
		m.st.tenantOrder = append(m.st.tenantOrder, t.ID)
	}
	m.st.tenants[t.ID] = t
	return nil
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(collection.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&view{st: m.st, faults: m.faults}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// locked runs fn against the live state under the store mutex.
func locked[T any](m *Memory, fn func(v *view) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&view{st: m.st, faults: m.faults})
}

func (m *Memory) ActiveTenants(ctx context.Context) ([]collection.Tenant, error) {
	return locked(m, func(v *view) ([]collection.Tenant, error) { return v.ActiveTenants(ctx) })
}

func (m *Memory) GetTenant(ctx context.Context, id collection.TenantID) (collection.Tenant, error) {
	return locked(m, func(v *view) (collection.Tenant, error) { return v.GetTenant(ctx, id) })
}

func (m *Memory) InsertLedgerEntry(ctx context.Context, e collection.LedgerEntry) error {
	_, err := locked(m, func(v *view) (struct{}, error) { return struct{}{}, v.InsertLedgerEntry(ctx, e) })
	return err
}

func (m *Memory) GetLedgerEntry(ctx context.Context, id collection.LedgerID) (collection.LedgerEntry, error) {
	return locked(m, func(v *view) (collection.LedgerEntry, error) { return v.GetLedgerEntry(ctx, id) })
}

func (m *Memory) FindLedgerEntry(ctx context.Context, tenantID collection.TenantID, p collection.Period) (collection.LedgerEntry, error) {
	return locked(m, func(v *view) (collection.LedgerEntry, error) { return v.FindLedgerEntry(ctx, tenantID, p) })
}

func (m *Memory) ListLedgerEntries(ctx context.Context, f collection.LedgerFilter) ([]collection.LedgerEntry, error) {
	return locked(m, func(v *view) ([]collection.LedgerEntry, error) { return v.ListLedgerEntries(ctx, f) })
}

func (m *Memory) ApplyLateFee(ctx context.Context, id collection.LedgerID, fee decimal.Decimal) (bool, error) {
	return locked(m, func(v *view) (bool, error) { return v.ApplyLateFee(ctx, id, fee) })
}

func (m *Memory) UpdatePayment(ctx context.Context, e collection.LedgerEntry) error {
	_, err := locked(m, func(v *view) (struct{}, error) { return struct{}{}, v.UpdatePayment(ctx, e) })
	return err
}

func (m *Memory) InsertPayment(ctx context.Context, p collection.Payment) error {
	_, err := locked(m, func(v *view) (struct{}, error) { return struct{}{}, v.InsertPayment(ctx, p) })
	return err
}

func (m *Memory) ListPayments(ctx context.Context, id collection.LedgerID) ([]collection.Payment, error) {
	return locked(m, func(v *view) ([]collection.Payment, error) { return v.ListPayments(ctx, id) })
}

func (m *Memory) InsertAction(ctx context.Context, a collection.CollectionAction) error {
	_, err := locked(m, func(v *view) (struct{}, error) { return struct{}{}, v.InsertAction(ctx, a) })
	return err
}

func (m *Memory) FindAction(ctx context.Context, tenantID collection.TenantID, t collection.ActionType, p collection.Period) (collection.CollectionAction, error) {
	return locked(m, func(v *view) (collection.CollectionAction, error) { return v.FindAction(ctx, tenantID, t, p) })
}

func (m *Memory) ListActions(ctx context.Context, f collection.ActionFilter) ([]collection.CollectionAction, error) {
	return locked(m, func(v *view) ([]collection.CollectionAction, error) { return v.ListActions(ctx, f) })
}

func (m *Memory) MarkResponded(ctx context.Context, tenantID collection.TenantID, response string) (int, error) {
	return locked(m, func(v *view) (int, error) { return v.MarkResponded(ctx, tenantID, response) })
}

func (m *Memory) InsertNotification(ctx context.Context, n collection.Notification) error {
	_, err := locked(m, func(v *view) (struct{}, error) { return struct{}{}, v.InsertNotification(ctx, n) })
	return err
}

func (m *Memory) GetNotification(ctx context.Context, id collection.NotificationID) (collection.Notification, error) {
	return locked(m, func(v *view) (collection.Notification, error) { return v.GetNotification(ctx, id) })
}

func (m *Memory) ListNotifications(ctx context.Context, status collection.NotificationStatus) ([]collection.Notification, error) {
	return locked(m, func(v *view) ([]collection.Notification, error) { return v.ListNotifications(ctx, status) })
}

func (m *Memory) SetNotificationStatus(ctx context.Context, id collection.NotificationID, status collection.NotificationStatus) error {
	_, err := locked(m, func(v *view) (struct{}, error) { return struct{}{}, v.SetNotificationStatus(ctx, id, status) })
	return err
}

func (m *Memory) AcknowledgePending(ctx context.Context, tenantID collection.TenantID, typ collection.NotificationType) (int, error) {
	return locked(m, func(v *view) (int, error) { return v.AcknowledgePending(ctx, tenantID, typ) })
}

func (m *Memory) InsertPlan(ctx context.Context, p collection.PaymentPlan) error {
	_, err := locked(m, func(v *view) (struct{}, error) { return struct{}{}, v.InsertPlan(ctx, p) })
	return err
}

func (m *Memory) GetPlan(ctx context.Context, id collection.PlanID) (collection.PaymentPlan, error) {
	return locked(m, func(v *view) (collection.PaymentPlan, error) { return v.GetPlan(ctx, id) })
}

func (m *Memory) ListPlans(ctx context.Context, tenantID collection.TenantID, ledgerID collection.LedgerID) ([]collection.PaymentPlan, error) {
	return locked(m, func(v *view) ([]collection.PaymentPlan, error) { return v.ListPlans(ctx, tenantID, ledgerID) })
}

func (m *Memory) UpdatePlanStatus(ctx context.Context, id collection.PlanID, status collection.PlanStatus, approvedBy string, approvedAt *time.Time) error {
	_, err := locked(m, func(v *view) (struct{}, error) {
		return struct{}{}, v.UpdatePlanStatus(ctx, id, status, approvedBy, approvedAt)
	})
	return err
}

// =============================================================================
// VIEW - Unlocked operations on one state, shared by Memory and WithTx
// =============================================================================

type view struct {
	st     *state
	faults map[string]error
}

func (v *view) fault(method string) error { return v.faults[method] }

func (v *view) ActiveTenants(_ context.Context) ([]collection.Tenant, error) {
	if err := v.fault("ActiveTenants"); err != nil {
		return nil, err
	}
	var out []collection.Tenant
	for _, id := range v.st.tenantOrder {
		if t := v.st.tenants[id]; t.Status.IsActive() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (v *view) GetTenant(_ context.Context, id collection.TenantID) (collection.Tenant, error) {
	if err := v.fault("GetTenant"); err != nil {
		return collection.Tenant{}, err
	}
	t, ok := v.st.tenants[id]
	if !ok {
		return collection.Tenant{}, fmt.Errorf("tenant %s: %w", id, collection.ErrNotFound)
	}
	return t, nil
}

func (v *view) InsertLedgerEntry(_ context.Context, e collection.LedgerEntry) error {
	if err := v.fault("InsertLedgerEntry"); err != nil {
		return err
	}
	k := ledgerKey{TenantID: e.TenantID, Period: e.Period}
	if _, exists := v.st.ledgerKeys[k]; exists {
		return fmt.Errorf("tenant %s %s: %w", e.TenantID, e.Period, collection.ErrDuplicateLedgerEntry)
	}
	v.st.ledger[e.ID] = e
	v.st.ledgerOrder = append(v.st.ledgerOrder, e.ID)
	v.st.ledgerKeys[k] = e.ID
	return nil
}

func (v *view) GetLedgerEntry(_ context.Context, id collection.LedgerID) (collection.LedgerEntry, error) {
	if err := v.fault("GetLedgerEntry"); err != nil {
		return collection.LedgerEntry{}, err
	}
	e, ok := v.st.ledger[id]
	if !ok {
		return collection.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", id, collection.ErrNotFound)
	}
	return e, nil
}

func (v *view) FindLedgerEntry(_ context.Context, tenantID collection.TenantID, p collection.Period) (collection.LedgerEntry, error) {
	if err := v.fault("FindLedgerEntry"); err != nil {
		return collection.LedgerEntry{}, err
	}
	id, ok := v.st.ledgerKeys[ledgerKey{TenantID: tenantID, Period: p}]
	if !ok {
		return collection.LedgerEntry{}, fmt.Errorf("ledger entry for tenant %s %s: %w", tenantID, p, collection.ErrNotFound)
	}
	return v.st.ledger[id], nil
}

func (v *view) ListLedgerEntries(_ context.Context, f collection.LedgerFilter) ([]collection.LedgerEntry, error) {
	if err := v.fault("ListLedgerEntries"); err != nil {
		return nil, err
	}
	var out []collection.LedgerEntry
	for _, id := range v.st.ledgerOrder {
		e := v.st.ledger[id]
		if f.Period != nil && e.Period != *f.Period {
			continue
		}
		if f.TenantID != "" && e.TenantID != f.TenantID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, e.Status) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func hasStatus(statuses []collection.LedgerStatus, s collection.LedgerStatus) bool {
	for _, x := range statuses {
		if x == s {
			return true
		}
	}
	return false
}

func (v *view) ApplyLateFee(_ context.Context, id collection.LedgerID, fee decimal.Decimal) (bool, error) {
	if err := v.fault("ApplyLateFee"); err != nil {
		return false, err
	}
	e, ok := v.st.ledger[id]
	if !ok || e.Status != collection.StatusUnpaid || !e.LateFee.IsZero() {
		return false, nil
	}
	e.LateFee = fee
	e.Status = collection.StatusLate
	v.st.ledger[id] = e
	return true, nil
}

func (v *view) UpdatePayment(_ context.Context, e collection.LedgerEntry) error {
	if err := v.fault("UpdatePayment"); err != nil {
		return err
	}
	cur, ok := v.st.ledger[e.ID]
	if !ok {
		return fmt.Errorf("ledger entry %s: %w", e.ID, collection.ErrNotFound)
	}
	cur.AmountPaid = e.AmountPaid
	cur.Status = e.Status
	cur.DatePaid = e.DatePaid
	cur.PaymentMethod = e.PaymentMethod
	cur.Notes = e.Notes
	v.st.ledger[e.ID] = cur
	return nil
}

func (v *view) InsertPayment(_ context.Context, p collection.Payment) error {
	if err := v.fault("InsertPayment"); err != nil {
		return err
	}
	v.st.payments = append(v.st.payments, p)
	return nil
}

func (v *view) ListPayments(_ context.Context, id collection.LedgerID) ([]collection.Payment, error) {
	if err := v.fault("ListPayments"); err != nil {
		return nil, err
	}
	var out []collection.Payment
	for _, p := range v.st.payments {
		if p.LedgerID == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *view) InsertAction(_ context.Context, a collection.CollectionAction) error {
	if err := v.fault("InsertAction"); err != nil {
		return err
	}
	k := a.IdempotencyKey()
	if _, exists := v.st.actionKeys[k]; exists {
		return fmt.Errorf("%s: %w", k, collection.ErrDuplicateAction)
	}
	v.st.actionKeys[k] = len(v.st.actions)
	v.st.actions = append(v.st.actions, a)
	return nil
}

func (v *view) FindAction(_ context.Context, tenantID collection.TenantID, t collection.ActionType, p collection.Period) (collection.CollectionAction, error) {
	if err := v.fault("FindAction"); err != nil {
		return collection.CollectionAction{}, err
	}
	k := collection.IdempotencyKey(tenantID, t, p)
	i, ok := v.st.actionKeys[k]
	if !ok {
		return collection.CollectionAction{}, fmt.Errorf("action %s: %w", k, collection.ErrNotFound)
	}
	return v.st.actions[i], nil
}

func (v *view) ListActions(_ context.Context, f collection.ActionFilter) ([]collection.CollectionAction, error) {
	if err := v.fault("ListActions"); err != nil {
		return nil, err
	}
	var out []collection.CollectionAction
	for _, a := range v.st.actions {
		if f.TenantID != "" && a.TenantID != f.TenantID {
			continue
		}
		if f.Period != nil && a.Period != *f.Period {
			continue
		}
		if f.Type != "" && a.Type != f.Type {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (v *view) MarkResponded(_ context.Context, tenantID collection.TenantID, response string) (int, error) {
	if err := v.fault("MarkResponded"); err != nil {
		return 0, err
	}
	n := 0
	for i, a := range v.st.actions {
		if a.TenantID == tenantID && !a.TenantResponded {
			v.st.actions[i].TenantResponded = true
			v.st.actions[i].Response = response
			n++
		}
	}
	return n, nil
}

func (v *view) InsertNotification(_ context.Context, n collection.Notification) error {
	if err := v.fault("InsertNotification"); err != nil {
		return err
	}
	v.st.notifications = append(v.st.notifications, n)
	return nil
}

func (v *view) GetNotification(_ context.Context, id collection.NotificationID) (collection.Notification, error) {
	if err := v.fault("GetNotification"); err != nil {
		return collection.Notification{}, err
	}
	for _, n := range v.st.notifications {
		if n.ID == id {
			return n, nil
		}
	}
	return collection.Notification{}, fmt.Errorf("notification %s: %w", id, collection.ErrNotFound)
}

func (v *view) ListNotifications(_ context.Context, status collection.NotificationStatus) ([]collection.Notification, error) {
	if err := v.fault("ListNotifications"); err != nil {
		return nil, err
	}
	var out []collection.Notification
	for i := len(v.st.notifications) - 1; i >= 0; i-- {
		n := v.st.notifications[i]
		if status == "" || n.Status == status {
			out = append(out, n)
		}
	}
	return out, nil
}

func (v *view) SetNotificationStatus(_ context.Context, id collection.NotificationID, status collection.NotificationStatus) error {
	if err := v.fault("SetNotificationStatus"); err != nil {
		return err
	}
	for i := range v.st.notifications {
		if v.st.notifications[i].ID == id {
			v.st.notifications[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("notification %s: %w", id, collection.ErrNotFound)
}

func (v *view) AcknowledgePending(_ context.Context, tenantID collection.TenantID, typ collection.NotificationType) (int, error) {
	if err := v.fault("AcknowledgePending"); err != nil {
		return 0, err
	}
	n := 0
	for i, x := range v.st.notifications {
		if x.RelatedTenantID == tenantID && x.Type == typ && x.Status == collection.NotificationPending {
			v.st.notifications[i].Status = collection.NotificationAcknowledged
			n++
		}
	}
	return n, nil
}

func (v *view) InsertPlan(_ context.Context, p collection.PaymentPlan) error {
	if err := v.fault("InsertPlan"); err != nil {
		return err
	}
	v.st.plans = append(v.st.plans, p)
	return nil
}

func (v *view) GetPlan(_ context.Context, id collection.PlanID) (collection.PaymentPlan, error) {
	if err := v.fault("GetPlan"); err != nil {
		return collection.PaymentPlan{}, err
	}
	for _, p := range v.st.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return collection.PaymentPlan{}, fmt.Errorf("payment plan %s: %w", id, collection.ErrNotFound)
}

func (v *view) ListPlans(_ context.Context, tenantID collection.TenantID, ledgerID collection.LedgerID) ([]collection.PaymentPlan, error) {
	if err := v.fault("ListPlans"); err != nil {
		return nil, err
	}
	var out []collection.PaymentPlan
	for i := len(v.st.plans) - 1; i >= 0; i-- {
		p := v.st.plans[i]
		if tenantID != "" && p.TenantID != tenantID {
			continue
		}
		if ledgerID != "" && p.LedgerID != ledgerID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (v *view) UpdatePlanStatus(_ context.Context, id collection.PlanID, status collection.PlanStatus, approvedBy string, approvedAt *time.Time) error {
	if err := v.fault("UpdatePlanStatus"); err != nil {
		return err
	}
	for i := range v.st.plans {
		if v.st.plans[i].ID == id {
			v.st.plans[i].Status = status
			v.st.plans[i].ApprovedBy = approvedBy
			v.st.plans[i].ApprovedAt = approvedAt
			return nil
		}
	}
	return fmt.Errorf("payment plan %s: %w", id, collection.ErrNotFound)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	c.tenantOrder = append(c.tenantOrder, s.tenantOrder...)
	for k, v := range s.ledger {
		c.ledger[k] = v
	}
	c.ledgerOrder = append(c.ledgerOrder, s.ledgerOrder...)
	for k, v := range s.ledgerKeys {
		c.ledgerKeys[k] = v
	}
	c.payments = append(c.payments, s.payments...)
	c.actions = append(c.actions, s.actions...)
	for k, v := range s.actionKeys {
		c.actionKeys[k] = v
	}
	c.notifications = append(c.notifications, s.notifications...)
	c.plans = append(c.plans, s.plans...)
	return c
}

var (
	_ collection.TxStore = (*Memory)(nil)
	_ collection.Store   = (*view)(nil)
)
