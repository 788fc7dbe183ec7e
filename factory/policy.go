/*
Package factory provides JSON to Go escalation policy conversion.

PURPOSE:
  Converts a JSON policy definition into a collection.Policy so thresholds,
  fees and the cure period can be changed without code changes. Missing
  fields keep their DefaultPolicy value; the result is validated once.

JSON SCHEMA:
  {
    "thresholds": {
      "reminder_1": 1,
      "reminder_2": 3,
      "late_fee": 5,
      "formal_notice": 7,
      "escalation": 10
    },
    "late_fee": "50.00",
    "pay_or_quit_cure_days": 7,
    "jurisdiction": "Maine",
    "statute_reference": "Maine Title 14 §6002",
    "signature": "Management",
    "autopay_methods": ["direct_deposit", "online"]
  }

USAGE:
  policy, err := factory.LoadPolicyFile(cfg.PolicyFile)
  if err != nil {
      log.Fatal().Err(err).Msg("invalid policy")
  }
  engine := collection.NewEngine(store, policy, notifier, log)

SEE ALSO:
  - collection/policy.go: Policy type definition
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/rent-engine/collection"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of an escalation policy.
type PolicyJSON struct {
	Thresholds        *ThresholdsJSON  `json:"thresholds,omitempty"`
	LateFee           *decimal.Decimal `json:"late_fee,omitempty"`
	PayOrQuitCureDays *int             `json:"pay_or_quit_cure_days,omitempty"`
	Jurisdiction      string           `json:"jurisdiction,omitempty"`
	StatuteReference  string           `json:"statute_reference,omitempty"`
	Signature         string           `json:"signature,omitempty"`
	AutopayMethods    []string         `json:"autopay_methods,omitempty"`
}

// ThresholdsJSON holds the day of month each step becomes due. Zero keeps
// the default.
type ThresholdsJSON struct {
	Reminder1    int `json:"reminder_1,omitempty"`
	Reminder2    int `json:"reminder_2,omitempty"`
	LateFee      int `json:"late_fee,omitempty"`
	FormalNotice int `json:"formal_notice,omitempty"`
	Escalation   int `json:"escalation,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePolicy parses JSON into a validated Policy.
func ParsePolicy(data []byte) (collection.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return collection.Policy{}, fmt.Errorf("%w: invalid policy JSON: %v", collection.ErrInvalidArgument, err)
	}
	return pj.ToPolicy()
}

// LoadPolicyFile reads a policy file. An empty path yields DefaultPolicy.
func LoadPolicyFile(path string) (collection.Policy, error) {
	if path == "" {
		return collection.DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return collection.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ToPolicy overlays pj onto DefaultPolicy and validates the result.
func (pj PolicyJSON) ToPolicy() (collection.Policy, error) {
	p := collection.DefaultPolicy()

	if t := pj.Thresholds; t != nil {
		overlay(&p.Reminder1Day, t.Reminder1)
		overlay(&p.Reminder2Day, t.Reminder2)
		overlay(&p.LateFeeDay, t.LateFee)
		overlay(&p.Reminder3Day, t.FormalNotice)
		overlay(&p.EscalationDay, t.Escalation)
	}
	if pj.LateFee != nil {
		p.LateFeeBase = *pj.LateFee
	}
	if pj.PayOrQuitCureDays != nil {
		p.PayOrQuitCureDays = *pj.PayOrQuitCureDays
	}
	if pj.Jurisdiction != "" {
		p.Jurisdiction = pj.Jurisdiction
	}
	if pj.StatuteReference != "" {
		p.StatuteReference = pj.StatuteReference
	}
	if pj.Signature != "" {
		p.Signature = pj.Signature
	}
	if pj.AutopayMethods != nil {
		p.AutopayMethods = pj.AutopayMethods
	}

	if err := p.Validate(); err != nil {
		return collection.Policy{}, err
	}
	return p, nil
}

// FromPolicy is the inverse of ToPolicy, used to expose the active policy.
func FromPolicy(p collection.Policy) PolicyJSON {
	fee := p.LateFeeBase
	cure := p.PayOrQuitCureDays
	return PolicyJSON{
		Thresholds: &ThresholdsJSON{
			Reminder1:    p.Reminder1Day,
			Reminder2:    p.Reminder2Day,
			LateFee:      p.LateFeeDay,
			FormalNotice: p.Reminder3Day,
			Escalation:   p.EscalationDay,
		},
		LateFee:           &fee,
		PayOrQuitCureDays: &cure,
		Jurisdiction:      p.Jurisdiction,
		StatuteReference:  p.StatuteReference,
		Signature:         p.Signature,
		AutopayMethods:    p.AutopayMethods,
	}
}

func overlay(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
