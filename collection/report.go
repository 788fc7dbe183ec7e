package collection

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// REPORTER - Read models and inbound tenant/owner signals
// =============================================================================

// Reporter answers questions about the ledger and records tenant responses
// and notification acknowledgements.
type Reporter struct {
	Store Store
	Log   zerolog.Logger
}

func NewReporter(store Store, log zerolog.Logger) *Reporter {
	return &Reporter{Store: store, Log: log.With().Str("component", "reports").Logger()}
}

// DelinquentEntry is one unpaid, late or partial entry with its context.
type DelinquentEntry struct {
	Entry     LedgerEntry
	Tenant    Tenant
	Actions   []CollectionAction
	TotalOwed decimal.Decimal
}

// Delinquent lists entries of the period that are not fully paid.
func (r *Reporter) Delinquent(ctx context.Context, month, year int) ([]DelinquentEntry, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return nil, err
	}
	entries, err := r.Store.ListLedgerEntries(ctx, LedgerFilter{Period: &period, Statuses: DelinquentStatuses})
	if err != nil {
		return nil, persistence("list ledger entries", err)
	}

	out := make([]DelinquentEntry, 0, len(entries))
	for _, e := range entries {
		tenant, err := r.Store.GetTenant(ctx, e.TenantID)
		if err != nil {
			return nil, lookupErr("load tenant", err)
		}
		actions, err := r.Store.ListActions(ctx, ActionFilter{TenantID: e.TenantID, Period: &period})
		if err != nil {
			return nil, persistence("list actions", err)
		}
		out = append(out, DelinquentEntry{Entry: e, Tenant: tenant, Actions: actions, TotalOwed: e.TotalOwed()})
	}
	return out, nil
}

// Summary aggregates one period.
type Summary struct {
	Period         Period
	Entries        []LedgerEntry
	Counts         map[LedgerStatus]int
	TotalDue       decimal.Decimal
	TotalCollected decimal.Decimal
}

func (r *Reporter) Summary(ctx context.Context, month, year int) (Summary, error) {
	period, err := NewPeriod(month, year)
	if err != nil {
		return Summary{}, err
	}
	entries, err := r.Store.ListLedgerEntries(ctx, LedgerFilter{Period: &period})
	if err != nil {
		return Summary{}, persistence("list ledger entries", err)
	}

	s := Summary{
		Period:         period,
		Entries:        entries,
		Counts:         map[LedgerStatus]int{StatusUnpaid: 0, StatusLate: 0, StatusPartial: 0, StatusPaid: 0},
		TotalDue:       decimal.Zero,
		TotalCollected: decimal.Zero,
	}
	for _, e := range entries {
		s.Counts[e.Status]++
		s.TotalDue = s.TotalDue.Add(e.TotalDue())
		s.TotalCollected = s.TotalCollected.Add(e.AmountPaid)
	}
	return s, nil
}

// TenantHistory is everything recorded for one tenant.
type TenantHistory struct {
	Tenant   Tenant
	Ledger   []LedgerEntry
	Actions  []CollectionAction
	Plans    []PaymentPlan
	Payments []Payment
}

func (r *Reporter) TenantHistory(ctx context.Context, tenantID TenantID) (TenantHistory, error) {
	tenant, err := r.Store.GetTenant(ctx, tenantID)
	if err != nil {
		return TenantHistory{}, lookupErr("load tenant", err)
	}
	ledger, err := r.Store.ListLedgerEntries(ctx, LedgerFilter{TenantID: tenantID})
	if err != nil {
		return TenantHistory{}, persistence("list ledger entries", err)
	}
	sort.SliceStable(ledger, func(i, j int) bool {
		return ledger[i].Period.Key() > ledger[j].Period.Key()
	})

	actions, err := r.Store.ListActions(ctx, ActionFilter{TenantID: tenantID})
	if err != nil {
		return TenantHistory{}, persistence("list actions", err)
	}
	plans, err := r.Store.ListPlans(ctx, tenantID, "")
	if err != nil {
		return TenantHistory{}, persistence("list plans", err)
	}

	var payments []Payment
	for _, e := range ledger {
		ps, err := r.Store.ListPayments(ctx, e.ID)
		if err != nil {
			return TenantHistory{}, persistence("list payments", err)
		}
		payments = append(payments, ps...)
	}

	return TenantHistory{Tenant: tenant, Ledger: ledger, Actions: actions, Plans: plans, Payments: payments}, nil
}

// RecordTenantResponse attaches a tenant reply to every action the tenant
// hasn't answered yet and returns how many were updated.
func (r *Reporter) RecordTenantResponse(ctx context.Context, tenantID TenantID, response string) (int, error) {
	if response == "" {
		return 0, fmt.Errorf("%w: response is required", ErrInvalidArgument)
	}
	if _, err := r.Store.GetTenant(ctx, tenantID); err != nil {
		return 0, lookupErr("load tenant", err)
	}
	n, err := r.Store.MarkResponded(ctx, tenantID, response)
	if err != nil {
		return 0, persistence("record tenant response", err)
	}
	r.Log.Info().Str("tenant_id", string(tenantID)).Int("actions", n).Msg("tenant response recorded")
	return n, nil
}

func (r *Reporter) ListNotifications(ctx context.Context, status NotificationStatus) ([]Notification, error) {
	ns, err := r.Store.ListNotifications(ctx, status)
	if err != nil {
		return nil, persistence("list notifications", err)
	}
	return ns, nil
}

// AcknowledgeNotification marks a notification acknowledged. Acknowledging
// twice is not an error.
func (r *Reporter) AcknowledgeNotification(ctx context.Context, id NotificationID) (Notification, error) {
	n, err := r.Store.GetNotification(ctx, id)
	if err != nil {
		return Notification{}, lookupErr("load notification", err)
	}
	if n.Status == NotificationAcknowledged {
		return n, nil
	}
	if err := r.Store.SetNotificationStatus(ctx, id, NotificationAcknowledged); err != nil {
		return Notification{}, persistence("acknowledge notification", err)
	}
	n.Status = NotificationAcknowledged
	return n, nil
}
