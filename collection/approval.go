/*
approval.go - Manual approval gate

PURPOSE:
  Two legally or financially significant decisions are never automatic:
  sending the pay-or-quit notice and accepting a payment plan. The engine
  only raises approval_needed notifications; the operations here are
  invoked by the owner.

PAY-OR-QUIT:
  Same claim-then-send idempotency as the engine. An existing action (or a
  concurrent insert that loses on the unique index) returns already_sent,
  never an error, and never sends twice. A paid entry is a conflict.

PAYMENT PLANS:
  pending ──approve──▶ active ──▶ completed
                          └─────▶ defaulted

  Creating a plan records intent only. Nothing here mutates the ledger.
*/
package collection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Gate runs owner-approved operations.
type Gate struct {
	Store    TxStore
	Policy   Policy
	Notifier Notifier
	Clock    Clock
	Log      zerolog.Logger
}

func NewGate(store TxStore, policy Policy, notifier Notifier, log zerolog.Logger) *Gate {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Gate{
		Store:    store,
		Policy:   policy,
		Notifier: notifier,
		Log:      log.With().Str("component", "approval").Logger(),
	}
}

func (g *Gate) now() time.Time { return orSystem(g.Clock).Now() }

// =============================================================================
// PAY-OR-QUIT
// =============================================================================

type PayOrQuitStatus string

const (
	PayOrQuitSent        PayOrQuitStatus = "sent"
	PayOrQuitAlreadySent PayOrQuitStatus = "already_sent"
)

// PayOrQuitResult describes the outcome of SendPayOrQuit.
type PayOrQuitResult struct {
	Status    PayOrQuitStatus
	ActionID  ActionID
	Tenant    string
	TotalOwed decimal.Decimal
	// Delivered reports this call's send. It is always false when the
	// notice had already been sent.
	Delivered bool
}

func (r PayOrQuitResult) AlreadySent() bool { return r.Status == PayOrQuitAlreadySent }

// SendPayOrQuit sends the final notice for the tenant's entry in the period
// at most once.
func (g *Gate) SendPayOrQuit(ctx context.Context, tenantID TenantID, month, year int) (PayOrQuitResult, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return PayOrQuitResult{}, err
	}
	tenant, err := g.Store.GetTenant(ctx, tenantID)
	if err != nil {
		return PayOrQuitResult{}, lookupErr("load tenant", err)
	}
	entry, err := g.Store.FindLedgerEntry(ctx, tenantID, period)
	if err != nil {
		return PayOrQuitResult{}, lookupErr("load ledger entry", err)
	}

	result := PayOrQuitResult{Tenant: tenant.FullName(), TotalOwed: entry.TotalOwed()}

	if existing, err := g.Store.FindAction(ctx, tenantID, ActionPayOrQuit, period); err == nil {
		result.Status = PayOrQuitAlreadySent
		result.ActionID = existing.ID
		return result, nil
	} else if !IsNotFound(err) {
		return PayOrQuitResult{}, persistence("find action", err)
	}

	if entry.Status == StatusPaid {
		return PayOrQuitResult{}, &ConflictError{
			Resource: "ledger entry",
			ID:       string(entry.ID),
			Current:  string(entry.Status),
			Wanted:   string(ActionPayOrQuit),
		}
	}

	act := CollectionAction{
		ID:          ActionID(uuid.NewString()),
		TenantID:    tenantID,
		LedgerID:    entry.ID,
		Type:        ActionPayOrQuit,
		Period:      period,
		SentAt:      g.now(),
		MessageSent: payOrQuitMessage(g.Policy, tenant, entry),
		Notes:       fmt.Sprintf("Pay-or-quit notice (%d-day) sent after owner approval", g.Policy.PayOrQuitCureDays),
	}
	err = g.Store.WithTx(ctx, func(s Store) error {
		if err := s.InsertAction(ctx, act); err != nil {
			return err
		}
		_, err := s.AcknowledgePending(ctx, tenantID, NotifyApprovalNeeded)
		return err
	})
	if errors.Is(err, ErrDuplicateAction) {
		existing, ferr := g.Store.FindAction(ctx, tenantID, ActionPayOrQuit, period)
		if ferr != nil {
			return PayOrQuitResult{}, persistence("find action", ferr)
		}
		result.Status = PayOrQuitAlreadySent
		result.ActionID = existing.ID
		return result, nil
	}
	if err != nil {
		return PayOrQuitResult{}, persistence("log pay-or-quit", err)
	}

	result.Status = PayOrQuitSent
	result.ActionID = act.ID

	mc := MessageContext{TenantID: tenantID, Action: ActionPayOrQuit, Context: "collection_pay_or_quit"}
	res := g.Notifier.SendMessage(ctx, tenant.Phone, act.MessageSent, mc)
	result.Delivered = res.Success
	if !res.Success {
		g.Log.Warn().Err(res.Err).Str("tenant_id", string(tenantID)).Msg("pay-or-quit notice not delivered")
	}

	g.Log.Info().
		Str("tenant_id", string(tenantID)).
		Str("period", period.Key()).
		Str("total_owed", result.TotalOwed.String()).
		Msg("pay-or-quit notice sent")

	return result, nil
}

// =============================================================================
// PAYMENT PLANS
// =============================================================================

// PlanRequest is the input to CreatePaymentPlan.
type PlanRequest struct {
	TenantID           TenantID
	LedgerID           LedgerID
	InitialPayment     decimal.Decimal
	MonthlyInstallment decimal.Decimal
	NumInstallments    int
	Notes              string
}

func (r PlanRequest) validate() error {
	if !r.MonthlyInstallment.IsPositive() {
		return fmt.Errorf("%w: monthly installment must be positive", ErrInvalidArgument)
	}
	if r.NumInstallments <= 0 {
		return fmt.Errorf("%w: number of installments must be positive", ErrInvalidArgument)
	}
	if r.InitialPayment.IsNegative() {
		return fmt.Errorf("%w: initial payment must not be negative", ErrInvalidArgument)
	}
	return nil
}

// CreatePaymentPlan records a pending plan against a ledger entry and asks
// the owner to approve it.
func (g *Gate) CreatePaymentPlan(ctx context.Context, req PlanRequest) (PaymentPlan, error) {
	if err := req.validate(); err != nil {
		return PaymentPlan{}, err
	}
	entry, err := g.Store.GetLedgerEntry(ctx, req.LedgerID)
	if err != nil {
		return PaymentPlan{}, lookupErr("load ledger entry", err)
	}
	tenant, err := g.Store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return PaymentPlan{}, lookupErr("load tenant", err)
	}
	if entry.TenantID != tenant.ID {
		return PaymentPlan{}, fmt.Errorf("%w: ledger entry %s belongs to another tenant", ErrInvalidArgument, entry.ID)
	}

	now := g.now()
	plan := PaymentPlan{
		ID:                 PlanID(uuid.NewString()),
		TenantID:           tenant.ID,
		LedgerID:           entry.ID,
		TotalOwed:          entry.TotalOwed(),
		InitialPayment:     req.InitialPayment,
		MonthlyInstallment: req.MonthlyInstallment,
		NumInstallments:    req.NumInstallments,
		Status:             PlanPending,
		Notes:              req.Notes,
		CreatedAt:          now,
	}
	msg := paymentPlanOwnerMessage(tenant, plan)

	err = g.Store.WithTx(ctx, func(s Store) error {
		if err := s.InsertPlan(ctx, plan); err != nil {
			return err
		}
		return s.InsertNotification(ctx, *newNotification(NotifyApprovalNeeded, RecipientOwner, msg, tenant.ID, now))
	})
	if err != nil {
		return PaymentPlan{}, persistence("create payment plan", err)
	}

	mc := MessageContext{TenantID: tenant.ID, Context: "payment_plan_request"}
	if res := g.Notifier.NotifyOwner(ctx, msg, mc); !res.Success {
		g.Log.Warn().Err(res.Err).Str("plan_id", string(plan.ID)).Msg("owner alert not delivered")
	}

	g.Log.Info().
		Str("plan_id", string(plan.ID)).
		Str("tenant_id", string(tenant.ID)).
		Str("total_owed", plan.TotalOwed.String()).
		Msg("payment plan requested")

	return plan, nil
}

var planTransitions = map[PlanStatus][]PlanStatus{
	PlanPending: {PlanActive},
	PlanActive:  {PlanCompleted, PlanDefaulted},
}

func canTransition(from, to PlanStatus) bool {
	for _, s := range planTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionPaymentPlan moves a plan along its lifecycle. Approving a plan
// records who approved it and when.
func (g *Gate) TransitionPaymentPlan(ctx context.Context, id PlanID, to PlanStatus, actor string) (PaymentPlan, error) {
	var plan PaymentPlan
	err := g.Store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPlan(ctx, id)
		if err != nil {
			return err
		}
		if !canTransition(p.Status, to) {
			return &ConflictError{Resource: "payment plan", ID: string(id), Current: string(p.Status), Wanted: string(to)}
		}
		var approvedAt *time.Time
		approvedBy := p.ApprovedBy
		if to == PlanActive {
			if actor == "" {
				actor = string(RecipientOwner)
			}
			now := g.now()
			approvedAt, approvedBy = &now, actor
		} else {
			approvedAt = p.ApprovedAt
		}
		if err := s.UpdatePlanStatus(ctx, id, to, approvedBy, approvedAt); err != nil {
			return err
		}
		p.Status, p.ApprovedBy, p.ApprovedAt = to, approvedBy, approvedAt
		plan = p
		return nil
	})
	if err != nil {
		if IsClientError(err) {
			return PaymentPlan{}, err
		}
		return PaymentPlan{}, persistence("transition payment plan", err)
	}

	g.Log.Info().Str("plan_id", string(id)).Str("status", string(to)).Msg("payment plan transitioned")
	return plan, nil
}

// lookupErr passes not-found through and marks anything else as a store
// failure.
func lookupErr(op string, err error) error {
	if IsNotFound(err) {
		return err
	}
	return persistence(op, err)
}
