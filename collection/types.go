/*
Package collection provides the rent collection and delinquency escalation engine.

PURPOSE:
  Everything that decides what happens to a tenant's rent obligation for a
  billing period lives here: ledger generation, the day-driven escalation
  waterfall, payment recording and the manual approval gate for the
  legally significant final notice.

KEY CONCEPTS IN THIS FILE (types.go):
  - Period: A billing period (month + year)
  - LedgerEntry: One rent obligation per tenant per period
  - CollectionAction: Append-only record of an escalation step taken
  - Notification: Something raised for owner/manager attention
  - PaymentPlan: Recorded intent to resolve a delinquent entry over time

DESIGN PRINCIPLES:
  1. Precision: Money is decimal.Decimal, never float64
  2. Idempotency: (tenant, action type, period) is unique, enforced by the store
  3. Monotonic: amount_paid only grows, late fees are never retracted
  4. Auditability: Every action, payment and delivery attempt is recorded

SEE ALSO:
  - policy.go: Escalation thresholds and fees
  - engine.go: The escalation waterfall
  - store.go: Persistence interfaces
*/
package collection

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type LedgerID string
type ActionID string
type NotificationID string
type PlanID string
type PaymentID string

// =============================================================================
// PERIOD - Billing month
// =============================================================================

// Period identifies a billing period.
type Period struct {
	Month int
	Year  int
}

func NewPeriod(month, year int) (Period, error) {
	p := Period{Month: month, Year: year}
	return p, p.Validate()
}

// PeriodOf returns the billing period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d out of range 1-12", ErrInvalidArgument, p.Month)
	}
	if p.Year < 1970 || p.Year > 9999 {
		return fmt.Errorf("%w: year %d out of range", ErrInvalidArgument, p.Year)
	}
	return nil
}

// Start returns midnight UTC on the first day of the period.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the period.
func (p Period) DaysIn() int {
	return p.Start().AddDate(0, 1, -1).Day()
}

func (p Period) String() string { return fmt.Sprintf("%d/%d", p.Month, p.Year) }

// Key is a sortable representation, e.g. "2026-02".
func (p Period) Key() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// =============================================================================
// TENANT - Roster view owned by tenant/lease management
// =============================================================================

type TenantStatus string

const (
	TenantCurrent TenantStatus = "current"
	TenantNotice  TenantStatus = "notice"
	TenantPast    TenantStatus = "past"
)

// IsActive reports whether the tenant occupies a unit and owes rent.
func (s TenantStatus) IsActive() bool {
	return s == TenantCurrent || s == TenantNotice
}

type Tenant struct {
	ID            TenantID
	FirstName     string
	LastName      string
	Phone         string
	Email         string
	Unit          string
	Address       string
	RentAmount    decimal.Decimal
	PaymentMethod string
	Status        TenantStatus
	CreatedAt     time.Time
}

func (t Tenant) FullName() string { return t.FirstName + " " + t.LastName }

// Location is the address line used in owner-facing messages.
func (t Tenant) Location() string {
	if t.Unit == "" {
		return t.Address
	}
	return fmt.Sprintf("%s Unit %s", t.Address, t.Unit)
}

// =============================================================================
// LEDGER ENTRY - Rent obligation for one tenant and one period
// =============================================================================

type LedgerStatus string

const (
	StatusUnpaid  LedgerStatus = "unpaid"
	StatusLate    LedgerStatus = "late"
	StatusPartial LedgerStatus = "partial"
	StatusPaid    LedgerStatus = "paid"
)

// DelinquentStatuses are the statuses reported by Delinquent.
var DelinquentStatuses = []LedgerStatus{StatusUnpaid, StatusLate, StatusPartial}

type LedgerEntry struct {
	ID            LedgerID
	TenantID      TenantID
	Period        Period
	AmountDue     decimal.Decimal
	AmountPaid    decimal.Decimal
	LateFee       decimal.Decimal
	Status        LedgerStatus
	DatePaid      *time.Time
	PaymentMethod string
	// AutoPaid marks entries created already paid for autopay tenants.
	// No Payment row exists for them.
	AutoPaid  bool
	Notes     string
	CreatedAt time.Time
}

// TotalDue is rent plus any late fee.
func (e LedgerEntry) TotalDue() decimal.Decimal {
	return e.AmountDue.Add(e.LateFee)
}

// TotalOwed is amount_due - amount_paid + late_fee. It can go negative on
// overpayment; callers that display a balance use Remaining.
func (e LedgerEntry) TotalOwed() decimal.Decimal {
	return e.AmountDue.Sub(e.AmountPaid).Add(e.LateFee)
}

// Remaining is TotalOwed floored at zero.
func (e LedgerEntry) Remaining() decimal.Decimal {
	return decimal.Max(decimal.Zero, e.TotalOwed())
}

// StatusAfterPayment is the status implied by the current amounts.
func (e LedgerEntry) StatusAfterPayment() LedgerStatus {
	if e.AmountPaid.GreaterThanOrEqual(e.TotalDue()) {
		return StatusPaid
	}
	return StatusPartial
}

// Payment is the audit row written by RecordPayment.
type Payment struct {
	ID         PaymentID
	LedgerID   LedgerID
	Amount     decimal.Decimal
	Method     string
	Notes      string
	RecordedAt time.Time
}

// =============================================================================
// COLLECTION ACTION - Append-only escalation log
// =============================================================================

type ActionType string

const (
	ActionReminder1    ActionType = "reminder_1"
	ActionReminder2    ActionType = "reminder_2"
	ActionLateFee      ActionType = "late_fee_applied"
	ActionFormalNotice ActionType = "formal_notice"
	ActionEscalated    ActionType = "escalated"
	ActionPayOrQuit    ActionType = "pay_or_quit"
)

// ActionTypes lists every action type in waterfall order.
var ActionTypes = []ActionType{
	ActionReminder1, ActionReminder2, ActionLateFee,
	ActionFormalNotice, ActionEscalated, ActionPayOrQuit,
}

func (a ActionType) Valid() bool {
	for _, t := range ActionTypes {
		if t == a {
			return true
		}
	}
	return false
}

type CollectionAction struct {
	ID              ActionID
	TenantID        TenantID
	LedgerID        LedgerID
	Type            ActionType
	Period          Period
	SentAt          time.Time
	MessageSent     string
	TenantResponded bool
	Response        string
	Notes           string
}

// IdempotencyKey is the uniqueness boundary for actions.
func IdempotencyKey(tenantID TenantID, actionType ActionType, period Period) string {
	return fmt.Sprintf("%s:%s:%s", tenantID, actionType, period.Key())
}

func (a CollectionAction) IdempotencyKey() string {
	return IdempotencyKey(a.TenantID, a.Type, a.Period)
}

// =============================================================================
// NOTIFICATION - Raised for human attention
// =============================================================================

type NotificationType string

const (
	NotifyEmergency      NotificationType = "emergency"
	NotifyApprovalNeeded NotificationType = "approval_needed"
	NotifyInfo           NotificationType = "info"
)

type NotificationStatus string

const (
	NotificationPending      NotificationStatus = "pending"
	NotificationSent         NotificationStatus = "sent"
	NotificationAcknowledged NotificationStatus = "acknowledged"
)

type Recipient string

const RecipientOwner Recipient = "owner"

type Notification struct {
	ID              NotificationID
	Type            NotificationType
	Recipient       Recipient
	Message         string
	Status          NotificationStatus
	RelatedTenantID TenantID
	CreatedAt       time.Time
}

// =============================================================================
// PAYMENT PLAN - Recorded intent only, lifecycle is manual
// =============================================================================

type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanDefaulted PlanStatus = "defaulted"
)

type PaymentPlan struct {
	ID                 PlanID
	TenantID           TenantID
	LedgerID           LedgerID
	TotalOwed          decimal.Decimal
	InitialPayment     decimal.Decimal
	MonthlyInstallment decimal.Decimal
	NumInstallments    int
	Status             PlanStatus
	ApprovedBy         string
	ApprovedAt         *time.Time
	Notes              string
	CreatedAt          time.Time
}
