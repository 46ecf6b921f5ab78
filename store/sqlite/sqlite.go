/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces using SQLite. In production, the
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store / ledger.TxStore: Append-only transaction ledger
  ledger.AuditLog:               Who-did-what trail
  loan.ApplicationStore:         Loan applications + number sequences
  loan.MemberStore:              Member records
  loan.ProductStore:             Versioned product configs (JSON)
  loan.RepaymentStore:           Repayments + penalty assessments
  teller.FloatStore:             Daily teller floats
  teller.ShortageStore:          Reconciliation shortages
  teller.HandoverStore:          Shift handover handshakes
  teller.CredentialStore:        Staff credentials for manager verification

APPEND-ONLY ENFORCEMENT:
  The ledger side of the Store enforces append-only semantics:
  - No UPDATE statements on the transactions table
  - No DELETE statements on the transactions table
  - Corrections via reversal transactions only
  Record tables (applications, floats, ...) are upserted; cash movement
  never lives there.

KEY TABLES:
  transactions:         Immutable ledger of all cash movement
  loan_products:        Versioned product configs stored as JSON
  members:              Member records (shares balance, standing)
  loan_applications:    Application lifecycle + disbursement snapshot
  repayments:           Immutable repayment records with allocation split
  penalty_assessments:  Late-payment penalties, one per installment
  floats:               One teller float per staff per day
  shortages:            Reconciliation deficits awaiting resolution
  handovers:            Teller-to-teller cash handshakes
  staff_credentials:    Bcrypt hashes for manager re-verification
  counters:             Monotonic sequences for human-readable numbers
  audit_log:            Actor/action trail, separate from the ledger

INDEXES:
  - idx_transactions_account_date: balance replay (hot path)
  - idx_transactions_reference:    reference lookups
  - UNIQUE(idempotency_key):       exactly-once posting
  - UNIQUE(staff_id, date):        one float per teller per day
  - UNIQUE(loan_id, installment_no): one penalty per installment

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead. Internal
  unlocked helpers carry the real SQL so WithTx can reuse them without
  re-acquiring the mutex.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

USAGE:
  store, err := sqlite.New("./data/sacco.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  led := ledger.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Ledger interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/sqlite/loan.go: Loan record persistence
  - store/sqlite/teller.go: Teller record persistence
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mkopo/sacco-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time interface checks.
var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.TxStore  = (*Store)(nil)
	_ ledger.AuditLog = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// hand out a second one.
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		account_kind TEXT NOT NULL,
		account_domain TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		currency TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_by_type TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_date
		ON transactions(account_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL AND reference_id != '';

	-- Loan products (versioned JSON config)
	CREATE TABLE IF NOT EXISTS loan_products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Members
	CREATE TABLE IF NOT EXISTS members (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		branch_id TEXT,
		status TEXT NOT NULL,
		shares_balance TEXT NOT NULL,
		currency TEXT NOT NULL,
		good_standing INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	-- Loan applications
	CREATE TABLE IF NOT EXISTS loan_applications (
		id TEXT PRIMARY KEY,
		application_number TEXT NOT NULL UNIQUE,
		member_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		term INTEGER NOT NULL,
		purpose TEXT,
		purpose_details TEXT,
		disbursement_method TEXT NOT NULL,
		mpesa_phone TEXT,
		bank_account TEXT,
		guarantor_ids_json TEXT,
		collateral_json TEXT,
		extra_charges_json TEXT,
		status TEXT NOT NULL,
		rejection_reason TEXT,
		review_comments TEXT,
		interest_rate TEXT,
		total_interest TEXT,
		periodic_payment TEXT,
		total_repayment TEXT,
		processing_fee TEXT,
		insurance_fee TEXT,
		amount_disbursed TEXT,
		amount_repaid TEXT,
		outstanding_balance TEXT,
		interest_deducted_upfront INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		approved_at TEXT,
		disbursed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_member
		ON loan_applications(member_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON loan_applications(status);

	-- Repayments (immutable)
	CREATE TABLE IF NOT EXISTS repayments (
		id TEXT PRIMARY KEY,
		repayment_number TEXT NOT NULL UNIQUE,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		principal_amount TEXT NOT NULL,
		interest_amount TEXT NOT NULL,
		penalty_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		payment_method TEXT,
		reference TEXT,
		payment_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_repayments_loan
		ON repayments(loan_id, payment_date);

	-- Penalty assessments (at most one per installment)
	CREATE TABLE IF NOT EXISTS penalty_assessments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		installment_no INTEGER NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		assessed_at TEXT NOT NULL,
		UNIQUE(loan_id, installment_no)
	);

	-- Teller floats (one per staff per day)
	CREATE TABLE IF NOT EXISTS floats (
		id TEXT PRIMARY KEY,
		staff_id TEXT NOT NULL,
		branch_id TEXT NOT NULL,
		date TEXT NOT NULL,
		opening_balance TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		physical_count TEXT,
		variance TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		reconciled_at TEXT,
		UNIQUE(staff_id, date)
	);

	CREATE INDEX IF NOT EXISTS idx_floats_branch
		ON floats(branch_id, date);

	-- Shortages
	CREATE TABLE IF NOT EXISTS shortages (
		id TEXT PRIMARY KEY,
		teller_float_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		approved_by TEXT,
		resolved_by TEXT,
		created_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_shortages_status
		ON shortages(status);

	-- Handovers
	CREATE TABLE IF NOT EXISTS handovers (
		id TEXT PRIMARY KEY,
		from_float_id TEXT NOT NULL,
		to_float_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		initiated_by TEXT,
		settled_by TEXT,
		created_at TEXT NOT NULL,
		settled_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_handovers_from
		ON handovers(from_float_id);
	CREATE INDEX IF NOT EXISTS idx_handovers_to
		ON handovers(to_float_id);

	-- Staff credentials (manager verification)
	CREATE TABLE IF NOT EXISTS staff_credentials (
		staff_id TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL
	);

	-- Monotonic counters for human-readable numbers
	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	-- Audit log (separate from the ledger)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts INTEGER NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		account_id TEXT,
		reference TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_account
		ON audit_log(account_id, ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data. For tests and demos only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"transactions", "loan_products", "members", "loan_applications",
		"repayments", "penalty_assessments", "floats", "shortages",
		"handovers", "staff_credentials", "counters", "audit_log",
	}
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+t); err != nil {
			return fmt.Errorf("failed to reset %s: %w", t, err)
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONS (ledger.Store interface)
// =============================================================================

// execer is the subset of *sql.DB and *sql.Tx the write path needs.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// querier is the subset of *sql.DB and *sql.Tx the read path needs.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendTx(ctx, s.db, tx)
}

func (s *Store) appendTx(ctx context.Context, db execer, tx ledger.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions
		(id, account_id, account_kind, account_domain, effective_at, delta_value, currency,
		 entry_type, reference_id, reason, idempotency_key, metadata_json,
		 created_by, created_by_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		string(tx.ID),
		string(tx.AccountID),
		tx.AccountKind.KindID(),
		tx.AccountKind.KindDomain(),
		tx.EffectiveAt.UTC().Format(time.RFC3339),
		tx.Delta.Value.String(),
		string(tx.Delta.Currency),
		string(tx.Type),
		tx.ReferenceID,
		tx.Reason,
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		tx.CreatedBy,
		tx.CreatedByType,
		createdAt.Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		if isBusyError(err) {
			return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return ledger.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	for _, tx := range txs {
		if err := s.appendTx(ctx, sqlTx, tx); err != nil {
			return err
		}
	}

	return sqlTx.Commit()
}

// Load returns all transactions for an account, ordered by effective time.
func (s *Store) Load(ctx context.Context, accountID ledger.AccountID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadTx(ctx, s.db, accountID)
}

func (s *Store) loadTx(ctx context.Context, db querier, accountID ledger.AccountID) ([]ledger.Transaction, error) {
	query := transactionColumns + `
		FROM transactions
		WHERE account_id = ?
		ORDER BY effective_at ASC, created_at ASC
	`
	return queryTransactions(ctx, db, query, string(accountID))
}

// LoadByReference returns all transactions linked to a reference ID.
func (s *Store) LoadByReference(ctx context.Context, referenceID string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loadByReferenceTx(ctx, s.db, referenceID)
}

func (s *Store) loadByReferenceTx(ctx context.Context, db querier, referenceID string) ([]ledger.Transaction, error) {
	query := transactionColumns + `
		FROM transactions
		WHERE reference_id = ?
		ORDER BY effective_at ASC, created_at ASC
	`
	return queryTransactions(ctx, db, query, referenceID)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.existsTx(ctx, s.db, idempotencyKey)
}

func (s *Store) existsTx(ctx context.Context, db querier, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

const transactionColumns = `
	SELECT id, account_id, account_kind, account_domain, effective_at, delta_value,
	       currency, entry_type, reference_id, reason, idempotency_key, metadata_json,
	       created_by, created_by_type, created_at
`

func queryTransactions(ctx context.Context, db querier, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []ledger.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (ledger.Transaction, error) {
	var (
		tx             ledger.Transaction
		id             string
		accountID      string
		kindID         string
		kindDomain     string
		effectiveAt    string
		deltaValue     string
		currency       string
		entryType      string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdByType  sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&id, &accountID, &kindID, &kindDomain, &effectiveAt, &deltaValue,
		&currency, &entryType, &referenceID, &reason, &idempotencyKey, &metadataJSON,
		&createdBy, &createdByType, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.ID = ledger.TransactionID(id)
	tx.AccountID = ledger.AccountID(accountID)
	tx.AccountKind = ledger.RawKind{ID: kindID, Domain: kindDomain}
	tx.EffectiveAt, _ = time.Parse(time.RFC3339, effectiveAt)
	tx.Delta = parseAmount(deltaValue, currency)
	tx.Type = ledger.EntryType(entryType)
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String
	tx.CreatedByType = createdByType.String
	tx.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}

	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes through the parent's unlocked helpers; WithTx already
// holds the mutex.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) Append(ctx context.Context, tx ledger.Transaction) error {
	return ts.parent.appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) AppendBatch(ctx context.Context, txs []ledger.Transaction) error {
	for _, tx := range txs {
		if err := ts.parent.appendTx(ctx, ts.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, accountID ledger.AccountID) ([]ledger.Transaction, error) {
	return ts.parent.loadTx(ctx, ts.tx, accountID)
}

func (ts *txStore) LoadByReference(ctx context.Context, referenceID string) ([]ledger.Transaction, error) {
	return ts.parent.loadByReferenceTx(ctx, ts.tx, referenceID)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return ts.parent.existsTx(ctx, ts.tx, idempotencyKey)
}

// =============================================================================
// AUDIT LOG (ledger.AuditLog interface)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, _ := json.Marshal(entry.Payload)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, account_id, reference, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, entry.Timestamp, entry.ActorID, string(entry.Action),
		string(entry.AccountID), entry.Reference, string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, ts, actor_id, action, account_id, reference, payload_json
		FROM audit_log WHERE 1=1
	`
	var args []any
	if filter.AccountID != nil {
		query += " AND account_id = ?"
		args = append(args, string(*filter.AccountID))
	}
	if filter.ActorID != nil {
		query += " AND actor_id = ?"
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		query += " AND action IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY ts ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		var (
			e           ledger.AuditEntry
			actorID     sql.NullString
			action      string
			accountID   sql.NullString
			reference   sql.NullString
			payloadJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &actorID, &action, &accountID, &reference, &payloadJSON); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.ActorID = actorID.String
		e.Action = ledger.AuditAction(action)
		e.AccountID = ledger.AccountID(accountID.String)
		e.Reference = reference.String
		if payloadJSON.Valid && payloadJSON.String != "" {
			json.Unmarshal([]byte(payloadJSON.String), &e.Payload)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// =============================================================================
// COUNTERS
// =============================================================================

// nextCounter atomically increments and returns the named counter.
func (s *Store) nextCounter(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %w", name, err)
	}
	return value, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func scanTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseAmount(value, currency string) ledger.Amount {
	return ledger.Amount{
		Value:    ledger.MustParseDecimal(value),
		Currency: ledger.Currency(currency),
	}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusyError matches SQLite's lock contention errors (SQLITE_BUSY,
// SQLITE_LOCKED), which clear on retry.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
