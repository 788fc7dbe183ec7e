package collection

import "context"

// =============================================================================
// NOTIFIER - Outbound boundary (SMS to tenants, alerts to the owner)
// =============================================================================

// MessageContext tags an outbound message so delivery logs can be
// correlated with the action that produced it.
type MessageContext struct {
	TenantID TenantID
	Action   ActionType
	// Context is a free-form label such as "collection_reminder_1".
	Context string
}

// DeliveryResult is the outcome of one send. Notifiers never return an
// error; failure is Success=false with Err set.
type DeliveryResult struct {
	Success bool
	ID      string
	Stub    bool
	Err     error
}

// Notifier delivers messages. Implementations record failures themselves
// and never retry.
type Notifier interface {
	SendMessage(ctx context.Context, phone, body string, mc MessageContext) DeliveryResult
	// NotifyOwner targets the configured owner channel. With no owner
	// configured it must return a stub success.
	NotifyOwner(ctx context.Context, message string, mc MessageContext) DeliveryResult
}

// ManagerNotifier is implemented by notifiers that can also reach the
// property manager. Formal notices are copied to the manager when the
// notifier supports it.
type ManagerNotifier interface {
	NotifyManager(ctx context.Context, message string, mc MessageContext) DeliveryResult
}

// NopNotifier succeeds without sending anything.
type NopNotifier struct{}

func (NopNotifier) SendMessage(context.Context, string, string, MessageContext) DeliveryResult {
	return DeliveryResult{Success: true, Stub: true}
}

func (NopNotifier) NotifyOwner(context.Context, string, MessageContext) DeliveryResult {
	return DeliveryResult{Success: true, Stub: true}
}

// Locker serializes runs for the same key across triggers. The returned
// release func must be called once the work is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func acquire(ctx context.Context, l Locker, key string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	return l.Acquire(ctx, key)
}
