package collection

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DefaultPaymentMethod is recorded when the caller doesn't name one.
const DefaultPaymentMethod = "manual"

// Recorder applies payments to ledger entries.
type Recorder struct {
	Store TxStore
	Clock Clock
	Log   zerolog.Logger
}

func NewRecorder(store TxStore, log zerolog.Logger) *Recorder {
	return &Recorder{Store: store, Log: log.With().Str("component", "payments").Logger()}
}

// PaymentResult is the ledger state after a payment.
type PaymentResult struct {
	LedgerID   LedgerID
	AmountPaid decimal.Decimal
	TotalDue   decimal.Decimal
	Status     LedgerStatus
	Remaining  decimal.Decimal
}

// RecordPayment adds amount to the entry's amount_paid and recomputes its
// status. The late fee is never touched.
func (r *Recorder) RecordPayment(ctx context.Context, ledgerID LedgerID, amount decimal.Decimal, method, notes string) (PaymentResult, error) {
	if !amount.IsPositive() {
		return PaymentResult{}, fmt.Errorf("%w: payment amount must be positive", ErrInvalidArgument)
	}
	if method == "" {
		method = DefaultPaymentMethod
	}
	now := orSystem(r.Clock).Now()

	var updated LedgerEntry
	err := r.Store.WithTx(ctx, func(s Store) error {
		entry, err := s.GetLedgerEntry(ctx, ledgerID)
		if err != nil {
			return err
		}
		entry.AmountPaid = entry.AmountPaid.Add(amount)
		entry.Status = entry.StatusAfterPayment()
		entry.DatePaid = &now
		entry.PaymentMethod = method
		if notes != "" {
			entry.Notes = notes
		}
		if err := s.UpdatePayment(ctx, entry); err != nil {
			return err
		}
		if err := s.InsertPayment(ctx, Payment{
			ID:         PaymentID(uuid.NewString()),
			LedgerID:   entry.ID,
			Amount:     amount,
			Method:     method,
			Notes:      notes,
			RecordedAt: now,
		}); err != nil {
			return err
		}
		updated = entry
		return nil
	})
	if err != nil {
		if IsNotFound(err) {
			return PaymentResult{}, err
		}
		return PaymentResult{}, persistence("record payment", err)
	}

	r.Log.Info().
		Str("ledger_id", string(ledgerID)).
		Str("amount", amount.String()).
		Str("status", string(updated.Status)).
		Msg("payment recorded")

	return PaymentResult{
		LedgerID:   updated.ID,
		AmountPaid: updated.AmountPaid,
		TotalDue:   updated.TotalDue(),
		Status:     updated.Status,
		Remaining:  updated.Remaining(),
	}, nil
}
