/*
store.go - Persistence interfaces for ledger, action log, notifications and plans

PURPOSE:
  Defines the boundary between collection logic and the database. The
  store is treated as an ACID relational store exposing read/insert/update
  primitives; its internals are not part of the engine.

UNIQUENESS CONTRACT:
  - InsertAction fails with ErrDuplicateAction when an action with the same
    (tenant, action type, month, year) exists. Implementations MUST enforce
    this in the storage layer (unique index), not with a read-then-write,
    so that concurrent triggers fail the second insert.
  - InsertLedgerEntry fails with ErrDuplicateLedgerEntry when the tenant
    already has an entry for the period.

NOT FOUND:
  Single-record getters return ErrNotFound (wrapped) for missing rows.

TRANSACTIONS:
  WithTx runs fn against a Store bound to one database transaction.
  If fn returns an error everything is rolled back.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - collection/store/memory.go: In-memory for testing
*/
package collection

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TenantDirectory reads the tenant roster.
type TenantDirectory interface {
	ActiveTenants(ctx context.Context) ([]Tenant, error)
	GetTenant(ctx context.Context, id TenantID) (Tenant, error)
}

// LedgerFilter selects ledger entries. Zero fields don't filter.
type LedgerFilter struct {
	Period   *Period
	TenantID TenantID
	Statuses []LedgerStatus
}

// LedgerStore persists ledger entries and their payments.
type LedgerStore interface {
	InsertLedgerEntry(ctx context.Context, e LedgerEntry) error
	GetLedgerEntry(ctx context.Context, id LedgerID) (LedgerEntry, error)
	FindLedgerEntry(ctx context.Context, tenantID TenantID, period Period) (LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, f LedgerFilter) ([]LedgerEntry, error)

	// ApplyLateFee sets late_fee and status=late only if the entry is still
	// unpaid with no fee. Returns false when the guard didn't match.
	ApplyLateFee(ctx context.Context, id LedgerID, fee decimal.Decimal) (bool, error)

	// UpdatePayment writes amount_paid, status, date_paid, payment_method
	// and notes of e.
	UpdatePayment(ctx context.Context, e LedgerEntry) error
	InsertPayment(ctx context.Context, p Payment) error
	ListPayments(ctx context.Context, ledgerID LedgerID) ([]Payment, error)
}

// ActionFilter selects collection actions. Zero fields don't filter.
type ActionFilter struct {
	TenantID TenantID
	Period   *Period
	Type     ActionType
}

// ActionLog is the append-only collection action log.
type ActionLog interface {
	InsertAction(ctx context.Context, a CollectionAction) error
	FindAction(ctx context.Context, tenantID TenantID, actionType ActionType, period Period) (CollectionAction, error)
	// ListActions returns actions ordered by sent_at.
	ListActions(ctx context.Context, f ActionFilter) ([]CollectionAction, error)
	// MarkResponded back-fills the response on every unanswered action of
	// the tenant and returns how many were updated.
	MarkResponded(ctx context.Context, tenantID TenantID, response string) (int, error)
}

// NotificationStore persists owner/manager notifications.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) error
	GetNotification(ctx context.Context, id NotificationID) (Notification, error)
	// ListNotifications returns newest first. Empty status lists all.
	ListNotifications(ctx context.Context, status NotificationStatus) ([]Notification, error)
	SetNotificationStatus(ctx context.Context, id NotificationID, status NotificationStatus) error
	// AcknowledgePending acknowledges the tenant's pending notifications of
	// the given type and returns how many changed.
	AcknowledgePending(ctx context.Context, tenantID TenantID, typ NotificationType) (int, error)
}

// PlanStore persists payment plans.
type PlanStore interface {
	InsertPlan(ctx context.Context, p PaymentPlan) error
	GetPlan(ctx context.Context, id PlanID) (PaymentPlan, error)
	// ListPlans returns newest first. Empty ids don't filter.
	ListPlans(ctx context.Context, tenantID TenantID, ledgerID LedgerID) ([]PaymentPlan, error)
	UpdatePlanStatus(ctx context.Context, id PlanID, status PlanStatus, approvedBy string, approvedAt *time.Time) error
}

// Store is everything the collection components need.
type Store interface {
	TenantDirectory
	LedgerStore
	ActionLog
	NotificationStore
	PlanStore
}

// TxStore adds transactions to Store.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// hasActivePlan reports whether the ledger entry is covered by an active plan.
func hasActivePlan(ctx context.Context, s PlanStore, ledgerID LedgerID) (bool, error) {
	plans, err := s.ListPlans(ctx, "", ledgerID)
	if err != nil {
		return false, err
	}
	for _, p := range plans {
		if p.Status == PlanActive {
			return true, nil
		}
	}
	return false, nil
}
