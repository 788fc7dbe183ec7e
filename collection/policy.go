/*
policy.go - Escalation policy (thresholds, fees, cure period)

PURPOSE:
  A Policy is pure configuration: on which day of the month each
  collection step becomes due, how large the flat late fee is, and how
  many days the final pay-or-quit notice grants. It is constructed once,
  validated once at startup, and passed by value into every component.
  There is no package-level policy.

THRESHOLDS (default):
  day 1   reminder_1        friendly reminder
  day 3   reminder_2        second reminder, warns of the late fee
  day 5   late_fee_applied  flat fee, status -> late
  day 7   formal_notice     cites the statute, owner is informed
  day 10  escalated         owner approval requested for pay-or-quit

  Thresholds must be strictly increasing. Steps run when day >= threshold,
  so a run on day 12 after a dormant period catches up on all of them.

SEE ALSO:
  - engine.go: Consumes Steps()
  - factory/policy.go: JSON loading
*/
package collection

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Policy configures the escalation waterfall.
type Policy struct {
	Reminder1Day  int
	Reminder2Day  int
	LateFeeDay    int
	Reminder3Day  int
	EscalationDay int

	LateFeeBase       decimal.Decimal
	PayOrQuitCureDays int

	// Cited in the formal notice and the pay-or-quit notice.
	Jurisdiction     string
	StatuteReference string

	// Sign-off appended to tenant messages.
	Signature string

	// Payment methods whose tenants are seeded as paid at generation.
	AutopayMethods []string
}

// DefaultPolicy returns the policy used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Reminder1Day:      1,
		Reminder2Day:      3,
		LateFeeDay:        5,
		Reminder3Day:      7,
		EscalationDay:     10,
		LateFeeBase:       decimal.NewFromInt(50),
		PayOrQuitCureDays: 7,
		Jurisdiction:      "Maine",
		StatuteReference:  "Maine Title 14 §6002",
		Signature:         "Management",
		AutopayMethods:    []string{"direct_deposit", "online"},
	}
}

// Validate checks thresholds are strictly increasing days of month and the
// fee and cure period are sane.
func (p Policy) Validate() error {
	steps := p.Steps()
	prev := 0
	for _, s := range steps {
		if s.Day < 1 || s.Day > 31 {
			return fmt.Errorf("%w: %s day %d out of range 1-31", ErrInvalidArgument, s.Action, s.Day)
		}
		if s.Day <= prev {
			return fmt.Errorf("%w: %s day %d must be after %d", ErrInvalidArgument, s.Action, s.Day, prev)
		}
		prev = s.Day
	}
	if p.LateFeeBase.IsNegative() {
		return fmt.Errorf("%w: late fee must be >= 0", ErrInvalidArgument)
	}
	if p.PayOrQuitCureDays <= 0 {
		return fmt.Errorf("%w: cure period must be positive", ErrInvalidArgument)
	}
	return nil
}

// Threshold pairs an automatic action with the day it becomes due.
type Threshold struct {
	Action ActionType
	Day    int
}

// Steps returns the automatic waterfall in ascending threshold order.
// pay_or_quit is not included: only the approval gate sends it.
func (p Policy) Steps() []Threshold {
	return []Threshold{
		{Action: ActionReminder1, Day: p.Reminder1Day},
		{Action: ActionReminder2, Day: p.Reminder2Day},
		{Action: ActionLateFee, Day: p.LateFeeDay},
		{Action: ActionFormalNotice, Day: p.Reminder3Day},
		{Action: ActionEscalated, Day: p.EscalationDay},
	}
}

// IsAutopay reports whether tenants paying by method are seeded as paid.
func (p Policy) IsAutopay(method string) bool {
	for _, m := range p.AutopayMethods {
		if m == method {
			return true
		}
	}
	return false
}
