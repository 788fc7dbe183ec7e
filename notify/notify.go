/*
Package notify delivers collection messages and keeps a delivery log.

FLOW (one message):
  1. Normalize the phone number to E.164
  2. Write a pending row to the delivery log
  3. Hand the body to the Sender transport
  4. Mark the row sent (with the provider id) or failed (with the error)

  Failures are never retried and never returned as errors: the Dispatcher
  reports them in collection.DeliveryResult. The caller has already
  committed its action, so a failed send must not undo anything.

OWNER / MANAGER:
  With no owner phone configured, NotifyOwner logs the message and returns
  a stub success. Same for the manager.
*/
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/rent-engine/collection"
)

// =============================================================================
// DELIVERY LOG
// =============================================================================

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Delivery is one outbound message attempt.
type Delivery struct {
	ID         string
	ToPhone    string
	Body       string
	Context    string
	TenantID   collection.TenantID
	Action     collection.ActionType
	Status     DeliveryStatus
	ProviderID string
	Error      string
	CreatedAt  time.Time
}

// DeliveryLog records delivery attempts.
type DeliveryLog interface {
	InsertDelivery(ctx context.Context, d Delivery) error
	FinishDelivery(ctx context.Context, id string, status DeliveryStatus, providerID, errMsg string) error
}

// Sender is the transport (SMS gateway). It returns the provider's
// message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (providerID string, err error)
}

// =============================================================================
// DISPATCHER - collection.Notifier implementation
// =============================================================================

type Config struct {
	OwnerPhone   string
	ManagerPhone string

	// DefaultRegion is used to parse numbers without a country code.
	DefaultRegion string
}

// Dispatcher implements collection.Notifier over a Sender and a DeliveryLog.
type Dispatcher struct {
	sender     Sender
	deliveries DeliveryLog
	cfg        Config
	log        zerolog.Logger
	now        func() time.Time
}

func NewDispatcher(sender Sender, deliveries DeliveryLog, cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.DefaultRegion == "" {
		cfg.DefaultRegion = DefaultRegion
	}
	return &Dispatcher{
		sender:     sender,
		deliveries: deliveries,
		cfg:        cfg,
		log:        log.With().Str("component", "notify").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) SendMessage(ctx context.Context, phone, body string, mc collection.MessageContext) collection.DeliveryResult {
	rec := Delivery{
		ID:        uuid.NewString(),
		ToPhone:   phone,
		Body:      body,
		Context:   mc.Context,
		TenantID:  mc.TenantID,
		Action:    mc.Action,
		Status:    DeliveryPending,
		CreatedAt: d.now(),
	}

	to, err := Normalize(phone, d.cfg.DefaultRegion)
	if err != nil {
		rec.Status = DeliveryFailed
		rec.Error = err.Error()
		d.record(ctx, rec)
		return collection.DeliveryResult{Err: fmt.Errorf("%w: %w", collection.ErrDeliveryFailure, err)}
	}
	rec.ToPhone = to
	d.record(ctx, rec)

	providerID, err := d.sender.Send(ctx, to, body)
	if err != nil {
		d.finish(ctx, rec.ID, DeliveryFailed, "", err.Error())
		d.log.Error().Err(err).Str("to", to).Str("context", mc.Context).Msg("message send failed")
		return collection.DeliveryResult{ID: rec.ID, Err: fmt.Errorf("%w: %w", collection.ErrDeliveryFailure, err)}
	}
	d.finish(ctx, rec.ID, DeliverySent, providerID, "")
	d.log.Debug().Str("to", to).Str("context", mc.Context).Str("provider_id", providerID).Msg("message sent")

	return collection.DeliveryResult{Success: true, ID: providerID}
}

func (d *Dispatcher) NotifyOwner(ctx context.Context, message string, mc collection.MessageContext) collection.DeliveryResult {
	return d.notifyStaff(ctx, d.cfg.OwnerPhone, "owner_alert", message, mc)
}

// NotifyManager alerts the property manager.
func (d *Dispatcher) NotifyManager(ctx context.Context, message string, mc collection.MessageContext) collection.DeliveryResult {
	return d.notifyStaff(ctx, d.cfg.ManagerPhone, "manager_alert", message, mc)
}

func (d *Dispatcher) notifyStaff(ctx context.Context, phone, label, message string, mc collection.MessageContext) collection.DeliveryResult {
	if phone == "" {
		d.log.Info().Str("context", label).Str("tenant_id", string(mc.TenantID)).Msg(message)
		return collection.DeliveryResult{Success: true, Stub: true}
	}
	mc.Context = label
	return d.SendMessage(ctx, phone, message, mc)
}

// record and finish log store errors; a broken delivery log must not block
// sending.
func (d *Dispatcher) record(ctx context.Context, rec Delivery) {
	if d.deliveries == nil {
		return
	}
	if err := d.deliveries.InsertDelivery(ctx, rec); err != nil {
		d.log.Warn().Err(err).Str("delivery_id", rec.ID).Msg("delivery log insert failed")
	}
}

func (d *Dispatcher) finish(ctx context.Context, id string, status DeliveryStatus, providerID, errMsg string) {
	if d.deliveries == nil {
		return
	}
	if err := d.deliveries.FinishDelivery(ctx, id, status, providerID, errMsg); err != nil {
		d.log.Warn().Err(err).Str("delivery_id", id).Msg("delivery log update failed")
	}
}

var (
	_ collection.Notifier        = (*Dispatcher)(nil)
	_ collection.ManagerNotifier = (*Dispatcher)(nil)
)
