package factory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/rent-engine/collection"
)

func TestParsePolicy_OverlaysDefaults(t *testing.T) {
	// GIVEN: A policy that only moves the late fee
	data := []byte(`{
		"thresholds": {"late_fee": 6},
		"late_fee": "75.00",
		"jurisdiction": "New Hampshire"
	}`)

	// WHEN: Parsing
	p, err := ParsePolicy(data)
	require.NoError(t, err)

	// THEN: Named fields change, the rest keep their defaults
	def := collection.DefaultPolicy()
	assert.Equal(t, 6, p.LateFeeDay)
	assert.Equal(t, def.Reminder1Day, p.Reminder1Day)
	assert.Equal(t, def.EscalationDay, p.EscalationDay)
	assert.True(t, p.LateFeeBase.Equal(decimal.NewFromInt(75)))
	assert.Equal(t, "New Hampshire", p.Jurisdiction)
	assert.Equal(t, def.StatuteReference, p.StatuteReference)
	assert.Equal(t, def.PayOrQuitCureDays, p.PayOrQuitCureDays)
}

func TestParsePolicy_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed JSON", `{"thresholds":`},
		{"steps out of order", `{"thresholds": {"reminder_2": 8}}`},
		{"negative fee", `{"late_fee": "-10"}`},
		{"zero cure days", `{"pay_or_quit_cure_days": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tt.data))
			assert.ErrorIs(t, err, collection.ErrInvalidArgument)
		})
	}
}

func TestParsePolicy_AutopayMethods(t *testing.T) {
	p, err := ParsePolicy([]byte(`{"autopay_methods": ["ach"]}`))
	require.NoError(t, err)
	assert.True(t, p.IsAutopay("ach"))
	assert.False(t, p.IsAutopay("direct_deposit"))
}

func TestLoadPolicyFile(t *testing.T) {
	p, err := LoadPolicyFile("")
	require.NoError(t, err)
	assert.Equal(t, collection.DefaultPolicy().Steps(), p.Steps())

	path := filepath.Join(t.TempDir(), "policy.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"thresholds": {"escalation": 12}}`), 0o600))
	p, err = LoadPolicyFile(path)
	require.NoError(t, err)
	assert.Equal(t, 12, p.EscalationDay)

	_, err = LoadPolicyFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFromPolicy_RoundTrip(t *testing.T) {
	orig := collection.DefaultPolicy()
	orig.Reminder2Day = 4
	orig.LateFeeBase = decimal.RequireFromString("62.50")

	back, err := FromPolicy(orig).ToPolicy()
	require.NoError(t, err)

	assert.Equal(t, orig.Steps(), back.Steps())
	assert.True(t, orig.LateFeeBase.Equal(back.LateFeeBase))
	assert.Equal(t, orig.PayOrQuitCureDays, back.PayOrQuitCureDays)
	assert.Equal(t, orig.AutopayMethods, back.AutopayMethods)
}
