package collection

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money formats an amount the way tenant messages show it: whole dollars
// without cents, otherwise two decimals.
func Money(d decimal.Decimal) string {
	if d.IsInteger() {
		return "$" + d.String()
	}
	return "$" + d.StringFixed(2)
}

func reminder1Message(p Policy, t Tenant, e LedgerEntry) string {
	return fmt.Sprintf("Hi %s, this is a friendly reminder that your rent payment of %s for %s is due. "+
		"Please submit payment at your earliest convenience. If you have already paid, please disregard this message. — %s",
		t.FirstName, Money(e.AmountDue), e.Period, p.Signature)
}

func reminder2Message(p Policy, t Tenant, e LedgerEntry) string {
	return fmt.Sprintf("Hi %s, this is a second reminder that your rent of %s for %s remains unpaid. "+
		"The grace period ends on day %d — after that, a %s late fee will apply. Please pay as soon as possible. — %s",
		t.FirstName, Money(e.AmountDue), e.Period, p.LateFeeDay, Money(p.LateFeeBase), p.Signature)
}

func lateFeeMessage(p Policy, t Tenant, e LedgerEntry) string {
	total := e.AmountDue.Add(p.LateFeeBase)
	return fmt.Sprintf("%s, a late fee of %s has been applied to your account. Your total balance is now %s for %s. "+
		"Please contact us if you need to discuss payment options. — %s",
		t.FirstName, Money(p.LateFeeBase), Money(total), e.Period, p.Signature)
}

func formalNoticeMessage(p Policy, t Tenant, e LedgerEntry) string {
	return fmt.Sprintf("FORMAL NOTICE: %s, your rent of %s (including fees) for %s is seriously past due. "+
		"Failure to pay may result in further legal action under %s law (%s). "+
		"Please contact management immediately to resolve this. — %s",
		t.FullName(), Money(e.TotalOwed()), e.Period, p.Jurisdiction, p.StatuteReference, p.Signature)
}

func formalNoticeOwnerMessage(t Tenant, e LedgerEntry) string {
	return fmt.Sprintf("Formal notice sent to %s at %s. Owes %s for %s.",
		t.FullName(), t.Location(), Money(e.TotalOwed()), e.Period)
}

func escalationMessage(p Policy, t Tenant, e LedgerEntry) string {
	return fmt.Sprintf("PAY-OR-QUIT APPROVAL NEEDED: %s at %s owes %s for %s. "+
		"Approve sending %d-day pay-or-quit notice via POST /api/collection/%s/approve-pay-or-quit",
		t.FullName(), t.Location(), Money(e.TotalOwed()), e.Period, p.PayOrQuitCureDays, t.ID)
}

func payOrQuitMessage(p Policy, t Tenant, e LedgerEntry) string {
	return fmt.Sprintf("NOTICE TO PAY RENT OR QUIT — %s, %s: Pursuant to %s, you are hereby given %d days' notice "+
		"to pay the total amount of %s owed for %s, or vacate the premises. "+
		"This notice is a required step before any eviction proceeding may be filed. "+
		"Please contact management immediately. — %s",
		t.FullName(), t.Location(), p.StatuteReference, p.PayOrQuitCureDays, Money(e.TotalOwed()), e.Period, p.Signature)
}

func paymentPlanOwnerMessage(t Tenant, plan PaymentPlan) string {
	notes := plan.Notes
	if notes == "" {
		notes = "None"
	}
	return fmt.Sprintf("Payment plan requested for %s at %s. Total owed: %s. Initial payment: %s, then %s/mo x %d. Plan ID: %s. Notes: %s",
		t.FullName(), t.Location(), Money(plan.TotalOwed), Money(plan.InitialPayment),
		Money(plan.MonthlyInstallment), plan.NumInstallments, plan.ID, notes)
}
