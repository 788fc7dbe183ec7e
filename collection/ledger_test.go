package collection_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-engine/collection"
)

func TestGenerateMonthlyLedger_Idempotent(t *testing.T) {
	// GIVEN: Two active tenants
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.addTenant(t, "t-2", 1000, "cash")

	// WHEN: Generating February twice
	first, err := h.gen.GenerateMonthlyLedger(h.ctx, 2, 2026)
	require.NoError(t, err)
	second, err := h.gen.GenerateMonthlyLedger(h.ctx, 2, 2026)
	require.NoError(t, err)

	// THEN: The second call creates nothing
	assert.Equal(t, 2, first.Created)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)

	entries, err := h.store.ListLedgerEntries(h.ctx, collection.LedgerFilter{Period: &feb2026})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestGenerateMonthlyLedger_NewTenantOnRerun(t *testing.T) {
	// GIVEN: February already generated for one tenant
	h := newHarness(t)
	h.addTenant(t, "t-1", 900, "check")
	h.generate(t)

	// WHEN: A tenant moves in and the ledger is generated again
	h.addTenant(t, "t-2", 950, "check")
	res, err := h.gen.GenerateMonthlyLedger(h.ctx, 2, 2026)
	require.NoError(t, err)

	// THEN: Only the newcomer gets an entry
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Total)
}

func TestGenerateMonthlyLedger_RentFixedAtGeneration(t *testing.T) {
	// GIVEN: An entry generated at $900
	h := newHarness(t)
	tenant := h.addTenant(t, "t-1", 900, "check")
	h.generate(t)

	// WHEN: The rent changes and generation runs again
	tenant.RentAmount = decimal.NewFromInt(1000)
	require.NoError(t, h.store.SaveTenant(h.ctx, tenant))
	h.generate(t)

	// THEN: The existing entry keeps its amount
	assert.True(t, h.entry(t, "t-1").AmountDue.Equal(decimal.NewFromInt(900)))
}

func TestGenerateMonthlyLedger_AutopaySeededPaid(t *testing.T) {
	// GIVEN: A tenant on direct deposit
	h := newHarness(t)
	h.addTenant(t, "t-1", 950, "direct_deposit")

	// WHEN: Generating the ledger
	h.generate(t)

	// THEN: The entry is paid, flagged as auto-paid, with no payment row
	e := h.entry(t, "t-1")
	assert.Equal(t, collection.StatusPaid, e.Status)
	assert.True(t, e.AmountPaid.Equal(e.AmountDue))
	assert.True(t, e.AutoPaid)
	assert.Equal(t, "Auto-paid via direct_deposit", e.Notes)
	require.NotNil(t, e.DatePaid)
	assert.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), *e.DatePaid)

	payments, err := h.store.ListPayments(h.ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestGenerateMonthlyLedger_SkipsInactiveTenants(t *testing.T) {
	// GIVEN: A tenant on notice and one who moved out
	h := newHarness(t)
	notice := h.addTenant(t, "t-notice", 900, "check")
	notice.Status = collection.TenantNotice
	require.NoError(t, h.store.SaveTenant(h.ctx, notice))
	past := h.addTenant(t, "t-past", 900, "check")
	past.Status = collection.TenantPast
	require.NoError(t, h.store.SaveTenant(h.ctx, past))

	// WHEN: Generating
	res, err := h.gen.GenerateMonthlyLedger(h.ctx, 2, 2026)
	require.NoError(t, err)

	// THEN: Only the tenant still in occupancy is billed
	assert.Equal(t, 1, res.Created)
	_, err = h.store.FindLedgerEntry(h.ctx, "t-past", feb2026)
	assert.ErrorIs(t, err, collection.ErrNotFound)
}

func TestGenerateMonthlyLedger_InvalidPeriod(t *testing.T) {
	h := newHarness(t)
	_, err := h.gen.GenerateMonthlyLedger(h.ctx, 13, 2026)
	assert.ErrorIs(t, err, collection.ErrInvalidArgument)
}

func TestGenerateMonthlyLedger_StoreFailure(t *testing.T) {
	// GIVEN: A store that can't list tenants
	h := newHarness(t)
	h.store.Fail("ActiveTenants", errors.New("connection refused"))

	// WHEN: Generating
	_, err := h.gen.GenerateMonthlyLedger(h.ctx, 2, 2026)

	// THEN: A retryable persistence failure
	assert.ErrorIs(t, err, collection.ErrPersistenceFailure)
	assert.True(t, collection.IsRetryable(err))
}
