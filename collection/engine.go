/*
engine.go - The escalation waterfall

PURPOSE:
  Given a day tick, execute every collection step whose threshold has been
  reached and which has not yet been logged, for every ledger entry of the
  period. Returns per-step counts.

CATCH-UP BY INEQUALITY:
  Every step is gated by day >= threshold, never day == threshold. A run on
  day 12 after being dormant since day 1 executes reminder_1, reminder_2,
  the late fee, the formal notice and the escalation in one pass. Each is
  independently idempotent, so replays and missed days converge.

PER-TENANT FLOW (one step, one entry):

  ┌──────────────┐   exists   ┌──────────┐
  │ FindAction   │──────────▶ │ skip     │
  └──────┬───────┘            └──────────┘
         │ missing
         ▼
  ┌──────────────────────────────────┐  ErrDuplicateAction  ┌──────────┐
  │ WithTx: InsertAction (unique)    │────────────────────▶ │ skip     │
  │         + ApplyLateFee / notif.  │                      └──────────┘
  └──────┬───────────────────────────┘
         │ committed
         ▼
  ┌──────────────┐
  │ deliver      │  failure is counted, never undoes the action
  └──────────────┘

  The insert is the claim. A concurrent trigger loses on the unique index
  and sends nothing. An action means "collection logic decided to act",
  not "message delivered".

FAILURES:
  A store failure aborts that tenant's step only. The run continues for
  other tenants and returns partial counts with an error wrapping
  ErrPersistenceFailure; re-running is safe.

PAYMENT PLANS:
  Entries with an active plan are skipped. Pending plans don't suppress
  escalation.

SEE ALSO:
  - policy.go: Thresholds
  - approval.go: pay_or_quit, which the engine never sends itself
*/
package collection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine runs the escalation waterfall.
type Engine struct {
	Store    TxStore
	Policy   Policy
	Notifier Notifier
	Locker   Locker
	Clock    Clock
	Log      zerolog.Logger
}

func NewEngine(store TxStore, policy Policy, notifier Notifier, log zerolog.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		Store:    store,
		Policy:   policy,
		Notifier: notifier,
		Log:      log.With().Str("component", "escalation").Logger(),
	}
}

// StepResult counts what one step did during a run.
type StepResult struct {
	Action           ActionType
	Threshold        int
	Sent             int
	Considered       int
	Skipped          int
	Failed           int
	DeliveryFailures int
}

// DayResult is the outcome of RunCollectionDay.
type DayResult struct {
	Day    int
	Period Period
	Steps  []StepResult
}

// Step returns the result for one action type, if that step ran.
func (r DayResult) Step(a ActionType) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Action == a {
			return s, true
		}
	}
	return StepResult{}, false
}

// TotalSent sums Sent across steps.
func (r DayResult) TotalSent() int {
	n := 0
	for _, s := range r.Steps {
		n += s.Sent
	}
	return n
}

// RunCollectionDay executes every step with threshold <= day for the
// ledger entries of (month, year).
func (e *Engine) RunCollectionDay(ctx context.Context, day, month, year int) (DayResult, error) {
	tick := Tick{Day: day, Period: Period{Month: month, Year: year}}
	if err := tick.Validate(); err != nil {
		return DayResult{}, err
	}

	release, err := acquire(ctx, e.Locker, "collection:run:"+tick.Period.Key())
	if err != nil {
		return DayResult{}, fmt.Errorf("acquire run lock: %w", err)
	}
	defer release()

	result := DayResult{Day: day, Period: tick.Period}
	var errs []error
	for _, th := range e.Policy.Steps() {
		if day < th.Day {
			break
		}
		sr, err := e.runStep(ctx, th, tick.Period)
		result.Steps = append(result.Steps, sr)
		if err != nil {
			errs = append(errs, err)
		}
	}

	e.Log.Info().
		Int("day", day).
		Str("period", tick.Period.Key()).
		Int("steps", len(result.Steps)).
		Int("sent", result.TotalSent()).
		Int("errors", len(errs)).
		Msg("collection day complete")

	return result, errors.Join(errs...)
}

// =============================================================================
// STEP DEFINITIONS
// =============================================================================

type stepDef struct {
	statuses []LedgerStatus
	eligible func(LedgerEntry) bool
	context  string
	notes    string
	// tenantMessage is empty for steps that don't message the tenant.
	tenantMessage func(Tenant, LedgerEntry) string
	// notification is raised in the same transaction as the action.
	notification func(Tenant, LedgerEntry) *Notification
	// ownerAlert is sent after commit.
	ownerAlert func(Tenant, LedgerEntry) string
	// copyManager also sends ownerAlert to the manager.
	copyManager bool
}

func (e *Engine) step(action ActionType) stepDef {
	p := e.Policy
	unpaid := []LedgerStatus{StatusUnpaid}
	delinquent := []LedgerStatus{StatusUnpaid, StatusLate}

	switch action {
	case ActionReminder1:
		return stepDef{
			statuses: unpaid,
			context:  "collection_reminder_1",
			notes:    "Automated first reminder",
			tenantMessage: func(t Tenant, le LedgerEntry) string {
				return reminder1Message(p, t, le)
			},
		}
	case ActionReminder2:
		return stepDef{
			statuses: unpaid,
			context:  "collection_reminder_2",
			notes:    "Automated second reminder",
			tenantMessage: func(t Tenant, le LedgerEntry) string {
				return reminder2Message(p, t, le)
			},
		}
	case ActionLateFee:
		return stepDef{
			statuses: unpaid,
			eligible: func(le LedgerEntry) bool { return le.LateFee.IsZero() },
			context:  "collection_late_fee",
			notes:    "Late fee applied",
			tenantMessage: func(t Tenant, le LedgerEntry) string {
				return lateFeeMessage(p, t, le)
			},
		}
	case ActionFormalNotice:
		return stepDef{
			statuses: delinquent,
			context:  "collection_formal_notice",
			notes:    "Formal notice sent",
			tenantMessage: func(t Tenant, le LedgerEntry) string {
				return formalNoticeMessage(p, t, le)
			},
			notification: func(t Tenant, le LedgerEntry) *Notification {
				return newNotification(NotifyInfo, RecipientOwner, formalNoticeOwnerMessage(t, le), t.ID, e.now())
			},
			ownerAlert:  formalNoticeOwnerMessage,
			copyManager: true,
		}
	case ActionEscalated:
		return stepDef{
			statuses: delinquent,
			context:  "collection_escalation",
			notes:    "Flagged for pay-or-quit, awaiting owner approval",
			notification: func(t Tenant, le LedgerEntry) *Notification {
				return newNotification(NotifyApprovalNeeded, RecipientOwner, escalationMessage(p, t, le), t.ID, e.now())
			},
			ownerAlert: func(t Tenant, le LedgerEntry) string {
				return escalationMessage(p, t, le)
			},
		}
	}
	panic(fmt.Sprintf("collection: no automatic step for %s", action))
}

// =============================================================================
// STEP EXECUTION
// =============================================================================

type outcome int

const (
	outcomeActed outcome = iota
	outcomeSkipped
	outcomeFailed
)

// errGuardMismatch means the entry changed between listing and acting.
var errGuardMismatch = errors.New("ledger entry no longer eligible")

func (e *Engine) runStep(ctx context.Context, th Threshold, period Period) (StepResult, error) {
	sr := StepResult{Action: th.Action, Threshold: th.Day}
	def := e.step(th.Action)
	log := e.Log.With().Str("action", string(th.Action)).Str("period", period.Key()).Logger()

	entries, err := e.Store.ListLedgerEntries(ctx, LedgerFilter{Period: &period, Statuses: def.statuses})
	if err != nil {
		log.Error().Err(err).Msg("list ledger entries failed")
		return sr, &StepError{Action: th.Action, Err: persistence("list ledger entries", err)}
	}

	var errs []error
	for _, entry := range entries {
		if def.eligible != nil && !def.eligible(entry) {
			continue
		}
		sr.Considered++

		out, deliveryFailures, err := e.actOn(ctx, th.Action, def, entry)
		sr.DeliveryFailures += deliveryFailures
		switch out {
		case outcomeActed:
			sr.Sent++
		case outcomeSkipped:
			sr.Skipped++
		case outcomeFailed:
			sr.Failed++
			log.Error().Err(err).Str("tenant_id", string(entry.TenantID)).Msg("collection step failed for tenant")
			errs = append(errs, &StepError{Action: th.Action, TenantID: entry.TenantID, Err: err})
		}
	}

	log.Info().
		Int("sent", sr.Sent).
		Int("considered", sr.Considered).
		Int("skipped", sr.Skipped).
		Int("failed", sr.Failed).
		Int("delivery_failures", sr.DeliveryFailures).
		Msg("collection step complete")

	return sr, errors.Join(errs...)
}

func (e *Engine) actOn(ctx context.Context, action ActionType, def stepDef, entry LedgerEntry) (outcome, int, error) {
	// Fast path: most entries were handled by an earlier run.
	_, err := e.Store.FindAction(ctx, entry.TenantID, action, entry.Period)
	if err == nil {
		return outcomeSkipped, 0, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return outcomeFailed, 0, persistence("find action", err)
	}

	onPlan, err := hasActivePlan(ctx, e.Store, entry.ID)
	if err != nil {
		return outcomeFailed, 0, persistence("check payment plan", err)
	}
	if onPlan {
		return outcomeSkipped, 0, nil
	}

	tenant, err := e.Store.GetTenant(ctx, entry.TenantID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return outcomeFailed, 0, err
		}
		return outcomeFailed, 0, persistence("load tenant", err)
	}

	act := CollectionAction{
		ID:       ActionID(uuid.NewString()),
		TenantID: entry.TenantID,
		LedgerID: entry.ID,
		Type:     action,
		Period:   entry.Period,
		SentAt:   e.now(),
		Notes:    def.notes,
	}
	if def.tenantMessage != nil {
		act.MessageSent = def.tenantMessage(tenant, entry)
	}
	var notif *Notification
	if def.notification != nil {
		notif = def.notification(tenant, entry)
	}

	err = e.Store.WithTx(ctx, func(s Store) error {
		if err := s.InsertAction(ctx, act); err != nil {
			return err
		}
		if action == ActionLateFee {
			applied, err := s.ApplyLateFee(ctx, entry.ID, e.Policy.LateFeeBase)
			if err != nil {
				return err
			}
			if !applied {
				return errGuardMismatch
			}
		}
		if notif != nil {
			return s.InsertNotification(ctx, *notif)
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrDuplicateAction), errors.Is(err, errGuardMismatch):
		return outcomeSkipped, 0, nil
	case err != nil:
		return outcomeFailed, 0, persistence("log action", err)
	}

	return outcomeActed, e.deliver(ctx, def, tenant, entry, act), nil
}

// deliver sends the tenant message and owner alert for a committed action
// and returns the number of failed deliveries.
func (e *Engine) deliver(ctx context.Context, def stepDef, t Tenant, entry LedgerEntry, act CollectionAction) int {
	mc := MessageContext{TenantID: t.ID, Action: act.Type, Context: def.context}
	failures := 0

	if act.MessageSent != "" {
		if res := e.Notifier.SendMessage(ctx, t.Phone, act.MessageSent, mc); !res.Success {
			failures++
			e.Log.Warn().Err(res.Err).
				Str("tenant_id", string(t.ID)).
				Str("action", string(act.Type)).
				Msg("tenant message not delivered")
		}
	}
	if def.ownerAlert != nil {
		if res := e.Notifier.NotifyOwner(ctx, def.ownerAlert(t, entry), mc); !res.Success {
			failures++
			e.Log.Warn().Err(res.Err).
				Str("tenant_id", string(t.ID)).
				Str("action", string(act.Type)).
				Msg("owner alert not delivered")
		}
		if mn, ok := e.Notifier.(ManagerNotifier); ok && def.copyManager {
			if res := mn.NotifyManager(ctx, def.ownerAlert(t, entry), mc); !res.Success {
				failures++
				e.Log.Warn().Err(res.Err).
					Str("tenant_id", string(t.ID)).
					Str("action", string(act.Type)).
					Msg("manager alert not delivered")
			}
		}
	}
	return failures
}

func (e *Engine) now() time.Time { return orSystem(e.Clock).Now() }

func newNotification(typ NotificationType, to Recipient, msg string, tenantID TenantID, at time.Time) *Notification {
	return &Notification{
		ID:              NotificationID(uuid.NewString()),
		Type:            typ,
		Recipient:       to,
		Message:         msg,
		Status:          NotificationPending,
		RelatedTenantID: tenantID,
		CreatedAt:       at,
	}
}
