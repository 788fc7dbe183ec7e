/*
Package sqlite provides a SQLite-backed implementation of the collection
storage interfaces and the delivery log.

INTERFACES IMPLEMENTED:
  collection.TxStore: Ledger, action log, notifications, plans, roster
  notify.DeliveryLog: Outbound message audit trail

KEY TABLES:
  tenants:            Roster (owned by tenant management, mirrored here)
  ledger_entries:     One row per tenant per billing month
  payments:           Audit row per recorded payment
  collection_actions: Append-only escalation log
  notifications:      Owner/manager attention items
  payment_plans:      Recorded plans and their lifecycle
  deliveries:         Every outbound message attempt

UNIQUENESS:
  The idempotency guarantees live in the schema, not in Go:
  - idx_ledger_tenant_period:  UNIQUE(tenant_id, month, year)
  - idx_actions_idempotency:   UNIQUE(tenant_id, action_type, month, year)
  A concurrent trigger that loses the race gets a constraint error, which
  is mapped to collection.ErrDuplicateLedgerEntry / ErrDuplicateAction.

CONCURRENCY:
  The pool is capped at one connection. Every WithTx is serialized and
  ":memory:" databases survive for the lifetime of the Store.

MONEY:
  Stored as decimal strings (TEXT) and scanned straight into
  decimal.Decimal.

USAGE:
  store, err := sqlite.New("./data/rent.db")
  if err != nil {
      log.Fatal().Err(err).Msg("open store")
  }
  defer store.Close()

SEE ALSO:
  - collection/store.go: Interface definitions
  - collection/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/rent-engine/collection"
	"github.com/warp/rent-engine/notify"
)

// Store implements collection.TxStore and notify.DeliveryLog.
type Store struct {
	*queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{queries: &queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		phone TEXT,
		email TEXT,
		unit TEXT,
		address TEXT,
		rent_amount TEXT NOT NULL,
		payment_method TEXT,
		status TEXT NOT NULL DEFAULT 'current',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		amount_due TEXT NOT NULL,
		amount_paid TEXT NOT NULL DEFAULT '0',
		late_fee TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'unpaid',
		date_paid TEXT,
		payment_method TEXT,
		auto_paid INTEGER NOT NULL DEFAULT 0,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	-- One obligation per tenant per month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_tenant_period
		ON ledger_entries(tenant_id, month, year);
	CREATE INDEX IF NOT EXISTS idx_ledger_period_status
		ON ledger_entries(year, month, status);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		ledger_id TEXT NOT NULL REFERENCES ledger_entries(id),
		amount TEXT NOT NULL,
		method TEXT NOT NULL,
		notes TEXT,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_ledger
		ON payments(ledger_id);

	CREATE TABLE IF NOT EXISTS collection_actions (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		ledger_id TEXT REFERENCES ledger_entries(id),
		action_type TEXT NOT NULL,
		month INTEGER NOT NULL,
		year INTEGER NOT NULL,
		sent_at TEXT NOT NULL,
		message_sent TEXT,
		tenant_responded INTEGER NOT NULL DEFAULT 0,
		response TEXT,
		notes TEXT
	);

	-- CRITICAL: each escalation step happens at most once per tenant per month
	CREATE UNIQUE INDEX IF NOT EXISTS idx_actions_idempotency
		ON collection_actions(tenant_id, action_type, month, year);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		recipient TEXT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		related_tenant_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_status
		ON notifications(status);

	CREATE TABLE IF NOT EXISTS payment_plans (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL REFERENCES tenants(id),
		ledger_id TEXT NOT NULL REFERENCES ledger_entries(id),
		total_owed TEXT NOT NULL,
		initial_payment TEXT NOT NULL,
		monthly_installment TEXT NOT NULL,
		num_installments INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		approved_by TEXT,
		approved_at TEXT,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_plans_ledger
		ON payment_plans(ledger_id, status);

	CREATE TABLE IF NOT EXISTS deliveries (
		id TEXT PRIMARY KEY,
		to_phone TEXT,
		body TEXT NOT NULL,
		context TEXT,
		tenant_id TEXT,
		action_type TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		provider_id TEXT,
		error TEXT,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (collection.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store collection.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"deliveries", "payment_plans", "notifications", "collection_actions",
		"payments", "ledger_entries", "tenants",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// QUERIES - Shared by Store and the transaction view
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// TENANTS
// =============================================================================

const tenantColumns = `id, first_name, last_name, phone, email, unit, address,
	rent_amount, payment_method, status, created_at`

// SaveTenant inserts or replaces a roster tenant.
func (q *queries) SaveTenant(ctx context.Context, t collection.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO tenants (`+tenantColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			phone = excluded.phone,
			email = excluded.email,
			unit = excluded.unit,
			address = excluded.address,
			rent_amount = excluded.rent_amount,
			payment_method = excluded.payment_method,
			status = excluded.status
	`,
		t.ID, t.FirstName, t.LastName,
		nullString(t.Phone), nullString(t.Email), nullString(t.Unit), nullString(t.Address),
		t.RentAmount.String(), nullString(t.PaymentMethod), string(t.Status),
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

// ListTenants returns every tenant, active or not, by name.
func (q *queries) ListTenants(ctx context.Context) ([]collection.Tenant, error) {
	return q.queryTenants(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY last_name, first_name`)
}

func (q *queries) ActiveTenants(ctx context.Context) ([]collection.Tenant, error) {
	return q.queryTenants(ctx, `
		SELECT `+tenantColumns+` FROM tenants
		WHERE status IN ('current', 'notice')
		ORDER BY last_name, first_name
	`)
}

func (q *queries) GetTenant(ctx context.Context, id collection.TenantID) (collection.Tenant, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return collection.Tenant{}, fmt.Errorf("tenant %s: %w", id, collection.ErrNotFound)
	}
	return t, err
}

func (q *queries) queryTenants(ctx context.Context, query string, args ...any) ([]collection.Tenant, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collection.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTenant(row scanner) (collection.Tenant, error) {
	var t collection.Tenant
	var phone, email, unit, address, method sql.NullString
	var status, createdAt string
	if err := row.Scan(&t.ID, &t.FirstName, &t.LastName, &phone, &email, &unit, &address,
		&t.RentAmount, &method, &status, &createdAt); err != nil {
		return collection.Tenant{}, err
	}
	t.Phone, t.Email, t.Unit, t.Address = phone.String, email.String, unit.String, address.String
	t.PaymentMethod = method.String
	t.Status = collection.TenantStatus(status)
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

const ledgerColumns = `id, tenant_id, month, year, amount_due, amount_paid, late_fee,
	status, date_paid, payment_method, auto_paid, notes, created_at`

func (q *queries) InsertLedgerEntry(ctx context.Context, e collection.LedgerEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.TenantID, e.Period.Month, e.Period.Year,
		e.AmountDue.String(), e.AmountPaid.String(), e.LateFee.String(),
		string(e.Status), nullTime(e.DatePaid), nullString(e.PaymentMethod),
		e.AutoPaid, nullString(e.Notes), formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("tenant %s %s: %w", e.TenantID, e.Period, collection.ErrDuplicateLedgerEntry)
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (q *queries) GetLedgerEntry(ctx context.Context, id collection.LedgerID) (collection.LedgerEntry, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = ?`, id)
	e, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return collection.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", id, collection.ErrNotFound)
	}
	return e, err
}

func (q *queries) FindLedgerEntry(ctx context.Context, tenantID collection.TenantID, p collection.Period) (collection.LedgerEntry, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE tenant_id = ? AND month = ? AND year = ?
	`, tenantID, p.Month, p.Year)
	e, err := scanLedgerEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return collection.LedgerEntry{}, fmt.Errorf("ledger entry for tenant %s %s: %w", tenantID, p, collection.ErrNotFound)
	}
	return e, err
}

func (q *queries) ListLedgerEntries(ctx context.Context, f collection.LedgerFilter) ([]collection.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE 1 = 1`
	var args []any
	if f.Period != nil {
		query += ` AND month = ? AND year = ?`
		args = append(args, f.Period.Month, f.Period.Year)
	}
	if f.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collection.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ApplyLateFee is a single guarded UPDATE: it only matches an unpaid entry
// without a fee.
func (q *queries) ApplyLateFee(ctx context.Context, id collection.LedgerID, fee decimal.Decimal) (bool, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE ledger_entries SET late_fee = ?, status = 'late'
		WHERE id = ? AND status = 'unpaid' AND CAST(late_fee AS REAL) = 0
	`, fee.String(), id)
	if err != nil {
		return false, fmt.Errorf("failed to apply late fee: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (q *queries) UpdatePayment(ctx context.Context, e collection.LedgerEntry) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE ledger_entries
		SET amount_paid = ?, status = ?, date_paid = ?, payment_method = ?, notes = ?
		WHERE id = ?
	`, e.AmountPaid.String(), string(e.Status), nullTime(e.DatePaid),
		nullString(e.PaymentMethod), nullString(e.Notes), e.ID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger entry %s: %w", e.ID, collection.ErrNotFound)
	}
	return nil
}

func scanLedgerEntry(row scanner) (collection.LedgerEntry, error) {
	var e collection.LedgerEntry
	var status, createdAt string
	var datePaid, method, notes sql.NullString
	if err := row.Scan(&e.ID, &e.TenantID, &e.Period.Month, &e.Period.Year,
		&e.AmountDue, &e.AmountPaid, &e.LateFee, &status, &datePaid, &method,
		&e.AutoPaid, &notes, &createdAt); err != nil {
		return collection.LedgerEntry{}, err
	}
	e.Status = collection.LedgerStatus(status)
	e.DatePaid = parseNullTime(datePaid)
	e.PaymentMethod = method.String
	e.Notes = notes.String
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (q *queries) InsertPayment(ctx context.Context, p collection.Payment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payments (id, ledger_id, amount, method, notes, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.LedgerID, p.Amount.String(), p.Method, nullString(p.Notes), formatTime(p.RecordedAt))
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (q *queries) ListPayments(ctx context.Context, ledgerID collection.LedgerID) ([]collection.Payment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, ledger_id, amount, method, notes, recorded_at
		FROM payments WHERE ledger_id = ?
		ORDER BY recorded_at, rowid
	`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collection.Payment
	for rows.Next() {
		var p collection.Payment
		var notes sql.NullString
		var recordedAt string
		if err := rows.Scan(&p.ID, &p.LedgerID, &p.Amount, &p.Method, &notes, &recordedAt); err != nil {
			return nil, err
		}
		p.Notes = notes.String
		p.RecordedAt = parseTime(recordedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// COLLECTION ACTIONS
// =============================================================================

const actionColumns = `id, tenant_id, ledger_id, action_type, month, year, sent_at,
	message_sent, tenant_responded, response, notes`

func (q *queries) InsertAction(ctx context.Context, a collection.CollectionAction) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO collection_actions (`+actionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.TenantID, nullString(string(a.LedgerID)), string(a.Type),
		a.Period.Month, a.Period.Year, formatTime(a.SentAt),
		nullString(a.MessageSent), a.TenantResponded, nullString(a.Response), nullString(a.Notes),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%s: %w", a.IdempotencyKey(), collection.ErrDuplicateAction)
		}
		return fmt.Errorf("failed to insert action: %w", err)
	}
	return nil
}

func (q *queries) FindAction(ctx context.Context, tenantID collection.TenantID, t collection.ActionType, p collection.Period) (collection.CollectionAction, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+actionColumns+` FROM collection_actions
		WHERE tenant_id = ? AND action_type = ? AND month = ? AND year = ?
	`, tenantID, string(t), p.Month, p.Year)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return collection.CollectionAction{}, fmt.Errorf("action %s: %w",
			collection.IdempotencyKey(tenantID, t, p), collection.ErrNotFound)
	}
	return a, err
}

func (q *queries) ListActions(ctx context.Context, f collection.ActionFilter) ([]collection.CollectionAction, error) {
	query := `SELECT ` + actionColumns + ` FROM collection_actions WHERE 1 = 1`
	var args []any
	if f.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, f.TenantID)
	}
	if f.Period != nil {
		query += ` AND month = ? AND year = ?`
		args = append(args, f.Period.Month, f.Period.Year)
	}
	if f.Type != "" {
		query += ` AND action_type = ?`
		args = append(args, string(f.Type))
	}
	query += ` ORDER BY sent_at, rowid`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collection.CollectionAction
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *queries) MarkResponded(ctx context.Context, tenantID collection.TenantID, response string) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE collection_actions SET tenant_responded = 1, response = ?
		WHERE tenant_id = ? AND tenant_responded = 0
	`, response, tenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to record response: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanAction(row scanner) (collection.CollectionAction, error) {
	var a collection.CollectionAction
	var ledgerID, message, response, notes sql.NullString
	var actionType, sentAt string
	if err := row.Scan(&a.ID, &a.TenantID, &ledgerID, &actionType, &a.Period.Month, &a.Period.Year,
		&sentAt, &message, &a.TenantResponded, &response, &notes); err != nil {
		return collection.CollectionAction{}, err
	}
	a.LedgerID = collection.LedgerID(ledgerID.String)
	a.Type = collection.ActionType(actionType)
	a.SentAt = parseTime(sentAt)
	a.MessageSent = message.String
	a.Response = response.String
	a.Notes = notes.String
	return a, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

const notificationColumns = `id, type, recipient, message, status, related_tenant_id, created_at`

func (q *queries) InsertNotification(ctx context.Context, n collection.Notification) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.ID, string(n.Type), string(n.Recipient), n.Message, string(n.Status),
		nullString(string(n.RelatedTenantID)), formatTime(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (q *queries) GetNotification(ctx context.Context, id collection.NotificationID) (collection.Notification, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return collection.Notification{}, fmt.Errorf("notification %s: %w", id, collection.ErrNotFound)
	}
	return n, err
}

func (q *queries) ListNotifications(ctx context.Context, status collection.NotificationStatus) ([]collection.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collection.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (q *queries) SetNotificationStatus(ctx context.Context, id collection.NotificationID, status collection.NotificationStatus) error {
	res, err := q.db.ExecContext(ctx, `UPDATE notifications SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %s: %w", id, collection.ErrNotFound)
	}
	return nil
}

func (q *queries) AcknowledgePending(ctx context.Context, tenantID collection.TenantID, typ collection.NotificationType) (int, error) {
	res, err := q.db.ExecContext(ctx, `
		UPDATE notifications SET status = 'acknowledged'
		WHERE related_tenant_id = ? AND type = ? AND status = 'pending'
	`, tenantID, string(typ))
	if err != nil {
		return 0, fmt.Errorf("failed to acknowledge notifications: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanNotification(row scanner) (collection.Notification, error) {
	var n collection.Notification
	var typ, recipient, status, createdAt string
	var tenantID sql.NullString
	if err := row.Scan(&n.ID, &typ, &recipient, &n.Message, &status, &tenantID, &createdAt); err != nil {
		return collection.Notification{}, err
	}
	n.Type = collection.NotificationType(typ)
	n.Recipient = collection.Recipient(recipient)
	n.Status = collection.NotificationStatus(status)
	n.RelatedTenantID = collection.TenantID(tenantID.String)
	n.CreatedAt = parseTime(createdAt)
	return n, nil
}

// =============================================================================
// PAYMENT PLANS
// =============================================================================

const planColumns = `id, tenant_id, ledger_id, total_owed, initial_payment, monthly_installment,
	num_installments, status, approved_by, approved_at, notes, created_at`

func (q *queries) InsertPlan(ctx context.Context, p collection.PaymentPlan) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payment_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.TenantID, p.LedgerID, p.TotalOwed.String(), p.InitialPayment.String(),
		p.MonthlyInstallment.String(), p.NumInstallments, string(p.Status),
		nullString(p.ApprovedBy), nullTime(p.ApprovedAt), nullString(p.Notes), formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment plan: %w", err)
	}
	return nil
}

func (q *queries) GetPlan(ctx context.Context, id collection.PlanID) (collection.PaymentPlan, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM payment_plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return collection.PaymentPlan{}, fmt.Errorf("payment plan %s: %w", id, collection.ErrNotFound)
	}
	return p, err
}

func (q *queries) ListPlans(ctx context.Context, tenantID collection.TenantID, ledgerID collection.LedgerID) ([]collection.PaymentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM payment_plans WHERE 1 = 1`
	var args []any
	if tenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, tenantID)
	}
	if ledgerID != "" {
		query += ` AND ledger_id = ?`
		args = append(args, ledgerID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []collection.PaymentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *queries) UpdatePlanStatus(ctx context.Context, id collection.PlanID, status collection.PlanStatus, approvedBy string, approvedAt *time.Time) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE payment_plans SET status = ?, approved_by = ?, approved_at = ? WHERE id = ?
	`, string(status), nullString(approvedBy), nullTime(approvedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update payment plan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("payment plan %s: %w", id, collection.ErrNotFound)
	}
	return nil
}

func scanPlan(row scanner) (collection.PaymentPlan, error) {
	var p collection.PaymentPlan
	var status, createdAt string
	var approvedBy, approvedAt, notes sql.NullString
	if err := row.Scan(&p.ID, &p.TenantID, &p.LedgerID, &p.TotalOwed, &p.InitialPayment,
		&p.MonthlyInstallment, &p.NumInstallments, &status, &approvedBy, &approvedAt,
		&notes, &createdAt); err != nil {
		return collection.PaymentPlan{}, err
	}
	p.Status = collection.PlanStatus(status)
	p.ApprovedBy = approvedBy.String
	p.ApprovedAt = parseNullTime(approvedAt)
	p.Notes = notes.String
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// =============================================================================
// DELIVERIES (notify.DeliveryLog interface)
// =============================================================================

func (q *queries) InsertDelivery(ctx context.Context, d notify.Delivery) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO deliveries (id, to_phone, body, context, tenant_id, action_type, status, provider_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		d.ID, nullString(d.ToPhone), d.Body, nullString(d.Context),
		nullString(string(d.TenantID)), nullString(string(d.Action)), string(d.Status),
		nullString(d.ProviderID), nullString(d.Error), formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}
	return nil
}

func (q *queries) FinishDelivery(ctx context.Context, id string, status notify.DeliveryStatus, providerID, errMsg string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE deliveries SET status = ?, provider_id = ?, error = ? WHERE id = ?
	`, string(status), nullString(providerID), nullString(errMsg), id)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	return nil
}

// ListDeliveries returns the most recent deliveries first.
func (q *queries) ListDeliveries(ctx context.Context, limit int) ([]notify.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, to_phone, body, context, tenant_id, action_type, status, provider_id, error, created_at
		FROM deliveries ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Delivery
	for rows.Next() {
		var d notify.Delivery
		var phone, label, tenantID, action, providerID, errMsg sql.NullString
		var status, createdAt string
		if err := rows.Scan(&d.ID, &phone, &d.Body, &label, &tenantID, &action,
			&status, &providerID, &errMsg, &createdAt); err != nil {
			return nil, err
		}
		d.ToPhone = phone.String
		d.Context = label.String
		d.TenantID = collection.TenantID(tenantID.String)
		d.Action = collection.ActionType(action.String)
		d.Status = notify.DeliveryStatus(status)
		d.ProviderID = providerID.String
		d.Error = errMsg.String
		d.CreatedAt = parseTime(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func placeholders(n int) string {
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

// isUniqueConstraintError reports a UNIQUE or PRIMARY KEY violation.
func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

var (
	_ collection.TxStore = (*Store)(nil)
	_ collection.Store   = (*queries)(nil)
	_ notify.DeliveryLog = (*Store)(nil)
)
