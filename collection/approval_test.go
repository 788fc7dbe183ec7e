package collection_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-engine/collection"
)

// =============================================================================
// PAY-OR-QUIT
// =============================================================================

func TestSendPayOrQuit_SecondCallAlreadySent(t *testing.T) {
	// GIVEN: An escalated tenant
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.generate(t)
	h.runDay(t, 10)

	// WHEN: The owner approves twice
	first, err := h.gate.SendPayOrQuit(h.ctx, "t-1", 2, 2026)
	require.NoError(t, err)
	second, err := h.gate.SendPayOrQuit(h.ctx, "t-1", 2, 2026)
	require.NoError(t, err)

	// THEN: One notice, the second call reports already_sent
	assert.Equal(t, collection.PayOrQuitSent, first.Status)
	assert.True(t, first.Delivered)
	assert.Equal(t, collection.PayOrQuitAlreadySent, second.Status)
	assert.False(t, first.AlreadySent())
	assert.True(t, second.AlreadySent())
	assert.False(t, second.Delivered, "nothing is sent on the repeat call")
	assert.Equal(t, first.ActionID, second.ActionID)

	var notices int
	for _, a := range h.actions(t, "t-1") {
		if a.Type == collection.ActionPayOrQuit {
			notices++
		}
	}
	assert.Equal(t, 1, notices)
	assert.Len(t, h.notifier.tenantMessages(), 5)
}

func TestSendPayOrQuit_AcknowledgesApprovalRequest(t *testing.T) {
	// GIVEN: A pending approval_needed notification from escalation
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.generate(t)
	h.runDay(t, 10)

	// WHEN: The owner approves
	_, err := h.gate.SendPayOrQuit(h.ctx, "t-1", 2, 2026)
	require.NoError(t, err)

	// THEN: Nothing is left waiting for approval
	pending, err := h.store.ListNotifications(h.ctx, collection.NotificationPending)
	require.NoError(t, err)
	for _, n := range pending {
		assert.NotEqual(t, collection.NotifyApprovalNeeded, n.Type)
	}
}

func TestSendPayOrQuit_PaidEntryConflict(t *testing.T) {
	// GIVEN: The tenant paid in full
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.generate(t)
	_, err := h.recorder.RecordPayment(h.ctx, h.entry(t, "t-1").ID, decimal.NewFromInt(900), "check", "")
	require.NoError(t, err)

	// WHEN: Approving a pay-or-quit notice
	_, err = h.gate.SendPayOrQuit(h.ctx, "t-1", 2, 2026)

	// THEN: Conflict carrying the current state, nothing sent
	require.ErrorIs(t, err, collection.ErrConflict)
	var conflict *collection.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "paid", conflict.Current)
	assert.Empty(t, h.notifier.tenantMessages())
}

func TestSendPayOrQuit_NotFound(t *testing.T) {
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")

	_, err := h.gate.SendPayOrQuit(h.ctx, "nobody", 2, 2026)
	assert.ErrorIs(t, err, collection.ErrNotFound, "unknown tenant")

	_, err = h.gate.SendPayOrQuit(h.ctx, "t-1", 2, 2026)
	assert.ErrorIs(t, err, collection.ErrNotFound, "no ledger entry for period")
}

func TestSendPayOrQuit_DeliveryFailureReported(t *testing.T) {
	// GIVEN: A gateway that rejects messages
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.generate(t)
	h.notifier.failTenant = true

	// WHEN: The owner approves
	res, err := h.gate.SendPayOrQuit(h.ctx, "t-1", 2, 2026)

	// THEN: Logged but flagged undelivered
	require.NoError(t, err)
	assert.Equal(t, collection.PayOrQuitSent, res.Status)
	assert.False(t, res.Delivered)
	assert.Len(t, h.actions(t, "t-1"), 1)
}

// =============================================================================
// PAYMENT PLANS
// =============================================================================

func TestCreatePaymentPlan_PendingWithOwnerRequest(t *testing.T) {
	// GIVEN: A late tenant owing $950
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.generate(t)
	h.runDay(t, 5)

	// WHEN: A plan is requested
	plan, err := h.gate.CreatePaymentPlan(h.ctx, collection.PlanRequest{
		TenantID:           "t-1",
		LedgerID:           h.entry(t, "t-1").ID,
		InitialPayment:     decimal.NewFromInt(350),
		MonthlyInstallment: decimal.NewFromInt(300),
		NumInstallments:    2,
		Notes:              "lost shifts in January",
	})
	require.NoError(t, err)

	// THEN: Pending plan for the full balance, owner asked to approve
	assert.Equal(t, collection.PlanPending, plan.Status)
	assert.True(t, plan.TotalOwed.Equal(decimal.NewFromInt(950)))
	assert.Nil(t, plan.ApprovedAt)

	owner := h.notifier.ownerMessages()
	require.Len(t, owner, 1)
	assert.Contains(t, owner[0].Body, "$300/mo x 2")
	assert.Contains(t, owner[0].Body, "lost shifts in January")
	assert.Contains(t, owner[0].Body, string(plan.ID))

	pending, err := h.store.ListNotifications(h.ctx, collection.NotificationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, collection.NotifyApprovalNeeded, pending[0].Type)
}

func TestCreatePaymentPlan_Validation(t *testing.T) {
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.addTenant(t, "t-2", 900, "check")
	h.generate(t)
	ledgerID := h.entry(t, "t-1").ID

	valid := collection.PlanRequest{
		TenantID:           "t-1",
		LedgerID:           ledgerID,
		MonthlyInstallment: decimal.NewFromInt(300),
		NumInstallments:    3,
	}

	tests := []struct {
		name   string
		modify func(r *collection.PlanRequest)
		want   error
	}{
		{"zero installment", func(r *collection.PlanRequest) { r.MonthlyInstallment = decimal.Zero }, collection.ErrInvalidArgument},
		{"no installments", func(r *collection.PlanRequest) { r.NumInstallments = 0 }, collection.ErrInvalidArgument},
		{"negative initial", func(r *collection.PlanRequest) { r.InitialPayment = decimal.NewFromInt(-1) }, collection.ErrInvalidArgument},
		{"other tenant's entry", func(r *collection.PlanRequest) { r.TenantID = "t-2" }, collection.ErrInvalidArgument},
		{"unknown entry", func(r *collection.PlanRequest) { r.LedgerID = "missing" }, collection.ErrNotFound},
		{"unknown tenant", func(r *collection.PlanRequest) { r.TenantID = "nobody" }, collection.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.modify(&req)
			_, err := h.gate.CreatePaymentPlan(h.ctx, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTransitionPaymentPlan_Lifecycle(t *testing.T) {
	// GIVEN: A pending plan
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.generate(t)
	plan, err := h.gate.CreatePaymentPlan(h.ctx, collection.PlanRequest{
		TenantID:           "t-1",
		LedgerID:           h.entry(t, "t-1").ID,
		MonthlyInstallment: decimal.NewFromInt(450),
		NumInstallments:    2,
	})
	require.NoError(t, err)

	// WHEN: Completing before approval
	_, err = h.gate.TransitionPaymentPlan(h.ctx, plan.ID, collection.PlanCompleted, "")

	// THEN: Conflict naming the current status
	var conflict *collection.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "pending", conflict.Current)

	// WHEN: Approved without naming an actor
	active, err := h.gate.TransitionPaymentPlan(h.ctx, plan.ID, collection.PlanActive, "")
	require.NoError(t, err)

	// THEN: Approved by the owner, now
	assert.Equal(t, collection.PlanActive, active.Status)
	assert.Equal(t, "owner", active.ApprovedBy)
	require.NotNil(t, active.ApprovedAt)
	assert.Equal(t, h.clock.Now(), *active.ApprovedAt)

	// WHEN: Defaulted
	defaulted, err := h.gate.TransitionPaymentPlan(h.ctx, plan.ID, collection.PlanDefaulted, "manager")
	require.NoError(t, err)

	// THEN: Terminal, approval kept
	assert.Equal(t, collection.PlanDefaulted, defaulted.Status)
	assert.Equal(t, "owner", defaulted.ApprovedBy)

	_, err = h.gate.TransitionPaymentPlan(h.ctx, plan.ID, collection.PlanActive, "owner")
	assert.ErrorIs(t, err, collection.ErrConflict)
}

func TestTransitionPaymentPlan_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.gate.TransitionPaymentPlan(h.ctx, "missing", collection.PlanActive, "owner")
	assert.ErrorIs(t, err, collection.ErrNotFound)
}

func TestDefaultedPlanResumesEscalation(t *testing.T) {
	// GIVEN: An active plan that later defaults
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.generate(t)
	plan, err := h.gate.CreatePaymentPlan(h.ctx, collection.PlanRequest{
		TenantID:           "t-1",
		LedgerID:           h.entry(t, "t-1").ID,
		MonthlyInstallment: decimal.NewFromInt(450),
		NumInstallments:    2,
	})
	require.NoError(t, err)
	_, err = h.gate.TransitionPaymentPlan(h.ctx, plan.ID, collection.PlanActive, "owner")
	require.NoError(t, err)
	h.runDay(t, 5)
	require.Empty(t, h.actions(t, "t-1"))

	// WHEN: It defaults and the next day runs
	_, err = h.gate.TransitionPaymentPlan(h.ctx, plan.ID, collection.PlanDefaulted, "owner")
	require.NoError(t, err)
	h.runDay(t, 6)

	// THEN: Catch-up resumes the waterfall
	assert.Len(t, h.actions(t, "t-1"), 3)
	assert.True(t, h.entry(t, "t-1").LateFee.Equal(decimal.NewFromInt(50)))
}
