/*
ledger.go - Monthly ledger generation

PURPOSE:
  Ensures every active tenant has exactly one ledger entry for a period.
  Safe to run any number of times: existing entries are left alone, and a
  duplicate insert from a concurrent generator is counted as skipped.

AUTOPAY:
  Tenants whose payment method is in Policy.AutopayMethods are created
  already paid (amount_paid = amount_due, date_paid = first of the month,
  AutoPaid = true). No Payment row is written for them; the flag is what
  distinguishes seeded entries from recorded payments.
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

// Generator creates ledger entries.
type Generator struct {
	Store  Store
	Policy Policy
	Locker Locker
	Clock  Clock
	Log    zerolog.Logger
}

func NewGenerator(store Store, policy Policy, log zerolog.Logger) *Generator {
	return &Generator{
		Store:  store,
		Policy: policy,
		Log:    log.With().Str("component", "ledger").Logger(),
	}
}

// GenerateResult counts what GenerateMonthlyLedger did.
type GenerateResult struct {
	Created int
	Skipped int
	Total   int
	Period  Period
}

// GenerateMonthlyLedger inserts one entry per active tenant for the period
// unless one exists.
func (g *Generator) GenerateMonthlyLedger(ctx context.Context, month, year int) (GenerateResult, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return GenerateResult{}, err
	}

	release, err := acquire(ctx, g.Locker, "collection:ledger:"+period.Key())
	if err != nil {
		return GenerateResult{}, fmt.Errorf("acquire ledger lock: %w", err)
	}
	defer release()

	tenants, err := g.Store.ActiveTenants(ctx)
	if err != nil {
		return GenerateResult{}, persistence("list active tenants", err)
	}

	result := GenerateResult{Total: len(tenants), Period: period}
	for _, t := range tenants {
		_, err := g.Store.FindLedgerEntry(ctx, t.ID, period)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return result, persistence("find ledger entry", err)
		}

		err = g.Store.InsertLedgerEntry(ctx, g.newEntry(t, period))
		switch {
		case errors.Is(err, ErrDuplicateLedgerEntry):
			result.Skipped++
		case err != nil:
			return result, persistence("insert ledger entry", err)
		default:
			result.Created++
		}
	}

	g.Log.Info().
		Str("period", period.Key()).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("total", result.Total).
		Msg("ledger generated")

	return result, nil
}

func (g *Generator) newEntry(t Tenant, period Period) LedgerEntry {
	e := LedgerEntry{
		ID:            LedgerID(uuid.NewString()),
		TenantID:      t.ID,
		Period:        period,
		AmountDue:     t.RentAmount,
		AmountPaid:    decimal.Zero,
		LateFee:       decimal.Zero,
		Status:        StatusUnpaid,
		PaymentMethod: t.PaymentMethod,
		CreatedAt:     orSystem(g.Clock).Now(),
	}
	if g.Policy.IsAutopay(t.PaymentMethod) {
		paidAt := time.Date(period.Year, time.Month(period.Month), 1, 0, 0, 0, 0, time.UTC)
		e.AmountPaid = t.RentAmount
		e.Status = StatusPaid
		e.DatePaid = &paidAt
		e.AutoPaid = true
		e.Notes = "Auto-paid via " + t.PaymentMethod
	}
	return e
}
