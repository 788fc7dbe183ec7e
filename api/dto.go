/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the collection domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags, checked by decode()
  before the handler runs. The "phone" tag is registered in handlers.go
  and uses libphonenumber. Domain rules (positive amounts, plan shape)
  are still enforced by the collection package.

MONEY:
  decimal.Decimal marshals as a JSON string ("950.00") and accepts either
  a string or a number on input.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/rent-engine/collection"
	"github.com/warp/rent-engine/notify"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateTenantRequest adds or replaces a roster tenant.
type CreateTenantRequest struct {
	ID            string          `json:"id" validate:"omitempty,max=64"`
	FirstName     string          `json:"first_name" validate:"required,max=100"`
	LastName      string          `json:"last_name" validate:"required,max=100"`
	Phone         string          `json:"phone" validate:"required,phone"`
	Email         string          `json:"email" validate:"omitempty,email"`
	Unit          string          `json:"unit" validate:"omitempty,max=20"`
	Address       string          `json:"address" validate:"required,max=200"`
	RentAmount    decimal.Decimal `json:"rent_amount"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,max=50"`
	Status        string          `json:"status" validate:"omitempty,oneof=current notice past"`
}

// PeriodRequest names a billing period.
type PeriodRequest struct {
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=1970,max=9999"`
}

// RunDayRequest triggers the escalation waterfall. Month and year default
// to the current period.
type RunDayRequest struct {
	Day   int `json:"day" validate:"required,min=1,max=31"`
	Month int `json:"month" validate:"omitempty,min=1,max=12"`
	Year  int `json:"year" validate:"omitempty,min=1970,max=9999"`
}

type RecordPaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method" validate:"omitempty,max=50"`
	Notes  string          `json:"notes" validate:"omitempty,max=500"`
}

type PaymentPlanRequest struct {
	LedgerID           string          `json:"ledger_id" validate:"required"`
	InitialPayment     decimal.Decimal `json:"initial_payment"`
	MonthlyInstallment decimal.Decimal `json:"monthly_installment"`
	NumInstallments    int             `json:"num_installments" validate:"required,min=1"`
	Notes              string          `json:"notes" validate:"omitempty,max=500"`
}

type TransitionPlanRequest struct {
	Status string `json:"status" validate:"required,oneof=active completed defaulted"`
	Actor  string `json:"actor" validate:"omitempty,max=100"`
}

type TenantResponseRequest struct {
	Response string `json:"response" validate:"required,max=2000"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type TenantDTO struct {
	ID            string          `json:"id"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Phone         string          `json:"phone"`
	Email         string          `json:"email,omitempty"`
	Unit          string          `json:"unit,omitempty"`
	Address       string          `json:"address,omitempty"`
	RentAmount    decimal.Decimal `json:"rent_amount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Status        string          `json:"status"`
}

func toTenantDTO(t collection.Tenant) TenantDTO {
	return TenantDTO{
		ID:            string(t.ID),
		FirstName:     t.FirstName,
		LastName:      t.LastName,
		Phone:         t.Phone,
		Email:         t.Email,
		Unit:          t.Unit,
		Address:       t.Address,
		RentAmount:    t.RentAmount,
		PaymentMethod: t.PaymentMethod,
		Status:        string(t.Status),
	}
}

type LedgerEntryDTO struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenant_id"`
	Month         int             `json:"month"`
	Year          int             `json:"year"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	LateFee       decimal.Decimal `json:"late_fee"`
	TotalOwed     decimal.Decimal `json:"total_owed"`
	Status        string          `json:"status"`
	DatePaid      *string         `json:"date_paid"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	AutoPaid      bool            `json:"auto_paid"`
	Notes         string          `json:"notes,omitempty"`
}

func toLedgerEntryDTO(e collection.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:            string(e.ID),
		TenantID:      string(e.TenantID),
		Month:         e.Period.Month,
		Year:          e.Period.Year,
		AmountDue:     e.AmountDue,
		AmountPaid:    e.AmountPaid,
		LateFee:       e.LateFee,
		TotalOwed:     e.TotalOwed(),
		Status:        string(e.Status),
		DatePaid:      timePtr(e.DatePaid),
		PaymentMethod: e.PaymentMethod,
		AutoPaid:      e.AutoPaid,
		Notes:         e.Notes,
	}
}

func toLedgerEntryDTOs(es []collection.LedgerEntry) []LedgerEntryDTO {
	out := make([]LedgerEntryDTO, len(es))
	for i, e := range es {
		out[i] = toLedgerEntryDTO(e)
	}
	return out
}

type ActionDTO struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	LedgerID        string `json:"ledger_id,omitempty"`
	ActionType      string `json:"action_type"`
	Month           int    `json:"month"`
	Year            int    `json:"year"`
	SentAt          string `json:"sent_at"`
	MessageSent     string `json:"message_sent,omitempty"`
	TenantResponded bool   `json:"tenant_responded"`
	Response        string `json:"response,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

func toActionDTOs(as []collection.CollectionAction) []ActionDTO {
	out := make([]ActionDTO, len(as))
	for i, a := range as {
		out[i] = ActionDTO{
			ID:              string(a.ID),
			TenantID:        string(a.TenantID),
			LedgerID:        string(a.LedgerID),
			ActionType:      string(a.Type),
			Month:           a.Period.Month,
			Year:            a.Period.Year,
			SentAt:          a.SentAt.Format(time.RFC3339),
			MessageSent:     a.MessageSent,
			TenantResponded: a.TenantResponded,
			Response:        a.Response,
			Notes:           a.Notes,
		}
	}
	return out
}

type NotificationDTO struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Recipient       string `json:"recipient"`
	Message         string `json:"message"`
	Status          string `json:"status"`
	RelatedTenantID string `json:"related_tenant_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func toNotificationDTO(n collection.Notification) NotificationDTO {
	return NotificationDTO{
		ID:              string(n.ID),
		Type:            string(n.Type),
		Recipient:       string(n.Recipient),
		Message:         n.Message,
		Status:          string(n.Status),
		RelatedTenantID: string(n.RelatedTenantID),
		CreatedAt:       n.CreatedAt.Format(time.RFC3339),
	}
}

type PlanDTO struct {
	ID                 string          `json:"id"`
	TenantID           string          `json:"tenant_id"`
	LedgerID           string          `json:"ledger_id"`
	TotalOwed          decimal.Decimal `json:"total_owed"`
	InitialPayment     decimal.Decimal `json:"initial_payment"`
	MonthlyInstallment decimal.Decimal `json:"monthly_installment"`
	NumInstallments    int             `json:"num_installments"`
	Status             string          `json:"status"`
	ApprovedBy         string          `json:"approved_by,omitempty"`
	ApprovedAt         *string         `json:"approved_at"`
	Notes              string          `json:"notes,omitempty"`
}

func toPlanDTO(p collection.PaymentPlan) PlanDTO {
	return PlanDTO{
		ID:                 string(p.ID),
		TenantID:           string(p.TenantID),
		LedgerID:           string(p.LedgerID),
		TotalOwed:          p.TotalOwed,
		InitialPayment:     p.InitialPayment,
		MonthlyInstallment: p.MonthlyInstallment,
		NumInstallments:    p.NumInstallments,
		Status:             string(p.Status),
		ApprovedBy:         p.ApprovedBy,
		ApprovedAt:         timePtr(p.ApprovedAt),
		Notes:              p.Notes,
	}
}

type PaymentDTO struct {
	ID         string          `json:"id"`
	LedgerID   string          `json:"ledger_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Notes      string          `json:"notes,omitempty"`
	RecordedAt string          `json:"recorded_at"`
}

type GenerateResultDTO struct {
	Month   int `json:"month"`
	Year    int `json:"year"`
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

func toGenerateResultDTO(r collection.GenerateResult) GenerateResultDTO {
	return GenerateResultDTO{
		Month:   r.Period.Month,
		Year:    r.Period.Year,
		Created: r.Created,
		Skipped: r.Skipped,
		Total:   r.Total,
	}
}

// PaymentResultDTO is the ledger state after a payment.
type PaymentResultDTO struct {
	LedgerID   string          `json:"ledger_id"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	TotalDue   decimal.Decimal `json:"total_due"`
	Status     string          `json:"status"`
	Remaining  decimal.Decimal `json:"remaining"`
}

func toPaymentResultDTO(r collection.PaymentResult) PaymentResultDTO {
	return PaymentResultDTO{
		LedgerID:   string(r.LedgerID),
		AmountPaid: r.AmountPaid,
		TotalDue:   r.TotalDue,
		Status:     string(r.Status),
		Remaining:  r.Remaining,
	}
}

// PayOrQuitResponse reports either a fresh notice (sent) or the one
// already on file (already_sent). Delivered is only set for a fresh notice.
type PayOrQuitResponse struct {
	Sent        bool            `json:"sent"`
	AlreadySent bool            `json:"already_sent"`
	ActionID    string          `json:"action_id"`
	Tenant      string          `json:"tenant"`
	TotalOwed   decimal.Decimal `json:"total_owed"`
	Delivered   *bool           `json:"delivered,omitempty"`
}

func toPayOrQuitResponse(r collection.PayOrQuitResult) PayOrQuitResponse {
	resp := PayOrQuitResponse{
		Sent:        !r.AlreadySent(),
		AlreadySent: r.AlreadySent(),
		ActionID:    string(r.ActionID),
		Tenant:      r.Tenant,
		TotalOwed:   r.TotalOwed,
	}
	if resp.Sent {
		delivered := r.Delivered
		resp.Delivered = &delivered
	}
	return resp
}

// StepDTO is one waterfall step in a run-day response.
type StepDTO struct {
	Action           string `json:"action"`
	Threshold        int    `json:"threshold"`
	Sent             int    `json:"sent"`
	TotalConsidered  int    `json:"total_considered"`
	Skipped          int    `json:"skipped"`
	Failed           int    `json:"failed"`
	DeliveryFailures int    `json:"delivery_failures"`
}

type RunDayResponse struct {
	Day     int       `json:"day"`
	Month   int       `json:"month"`
	Year    int       `json:"year"`
	Results []StepDTO `json:"results"`
	Error   string    `json:"error,omitempty"`
}

func toRunDayResponse(r collection.DayResult) RunDayResponse {
	resp := RunDayResponse{Day: r.Day, Month: r.Period.Month, Year: r.Period.Year, Results: []StepDTO{}}
	for _, s := range r.Steps {
		resp.Results = append(resp.Results, StepDTO{
			Action:           string(s.Action),
			Threshold:        s.Threshold,
			Sent:             s.Sent,
			TotalConsidered:  s.Considered,
			Skipped:          s.Skipped,
			Failed:           s.Failed,
			DeliveryFailures: s.DeliveryFailures,
		})
	}
	return resp
}

type DelinquentDTO struct {
	LedgerEntryDTO
	Tenant  TenantDTO   `json:"tenant"`
	Actions []ActionDTO `json:"actions"`
}

type SummaryDTO struct {
	Month          int              `json:"month"`
	Year           int              `json:"year"`
	Counts         map[string]int   `json:"counts"`
	TotalDue       decimal.Decimal  `json:"total_due"`
	TotalCollected decimal.Decimal  `json:"total_collected"`
	Entries        []LedgerEntryDTO `json:"entries"`
}

type TenantHistoryDTO struct {
	Tenant   TenantDTO        `json:"tenant"`
	Ledger   []LedgerEntryDTO `json:"ledger"`
	Actions  []ActionDTO      `json:"actions"`
	Plans    []PlanDTO        `json:"payment_plans"`
	Payments []PaymentDTO     `json:"payments"`
}

type DeliveryDTO struct {
	ID         string `json:"id"`
	ToPhone    string `json:"to_phone"`
	Context    string `json:"context,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	Action     string `json:"action_type,omitempty"`
	Status     string `json:"status"`
	ProviderID string `json:"provider_id,omitempty"`
	Error      string `json:"error,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toDeliveryDTO(d notify.Delivery) DeliveryDTO {
	return DeliveryDTO{
		ID:         d.ID,
		ToPhone:    d.ToPhone,
		Context:    d.Context,
		TenantID:   string(d.TenantID),
		Action:     string(d.Action),
		Status:     string(d.Status),
		ProviderID: d.ProviderID,
		Error:      d.Error,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
	}
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Current string            `json:"current_status,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
