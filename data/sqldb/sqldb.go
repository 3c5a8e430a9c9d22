// Package sqldb holds the sql implementation shared by the sqlite3 and
// postgresql backends. The postgres placeholder syntax is used throughout;
// go-sqlite3 accepts numbered params as well.
package sqldb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ShovonSheikh/temp-box/tempbox"
)

var _ tempbox.Database = &SQLDatabase{}

// SQLDatabase implements the database interface for sqldb
type SQLDatabase struct {
	*sqlx.DB
	limits tempbox.Limits
}

// New returns a new sql backed db or panics
func New(dbType string, dbURL string, limits tempbox.Limits) *SQLDatabase {
	s := &SQLDatabase{
		DB:     sqlx.MustOpen(dbType, dbURL),
		limits: limits.WithDefaults(),
	}
	s.CreateTables()
	return s
}

// Start implements tempbox.Database Start()
func (s *SQLDatabase) Start() error {
	return s.Ping()
}

// CreateTables creates the database tables or panics
func (s *SQLDatabase) CreateTables() {
	s.MustExec(`create table if not exists account (
		id uuid not null unique,
		address text not null unique,
		password text,
		token text,
		created_at timestamp,
		expires_at timestamp,
		deleted bool default false,
		deleted_at timestamp,
		last_accessed_at timestamp,
		message_count integer default 0,
		cleanup_attempts integer default 0,
		primary key (id)
	);

	create table if not exists audit_log (
		id uuid not null unique,
		account_id uuid,
		action text not null,
		at timestamp,
		detail text,
		primary key (id)
	);

	create table if not exists cleanup_log (
		id uuid not null unique,
		account_id uuid,
		at timestamp,
		reason text,
		success bool,
		error text,
		primary key (id)
	);

	create table if not exists cleanup_stats (
		id integer not null unique,
		total_accounts integer,
		expired_accounts integer,
		deleted_accounts integer,
		failed_accounts integer,
		last_run_at timestamp,
		primary key (id)
	);`)
}

// SaveAccount stores or replaces the given account record
func (s *SQLDatabase) SaveAccount(a tempbox.Account) error {
	_, err := s.NamedExec(
		`INSERT INTO account (id, address, password, token, created_at, expires_at, deleted, deleted_at, last_accessed_at, message_count, cleanup_attempts)
		VALUES (:id, :address, :password, :token, :created_at, :expires_at, :deleted, :deleted_at, :last_accessed_at, :message_count, :cleanup_attempts)
		ON CONFLICT (id) DO UPDATE SET
			address = :address,
			password = :password,
			token = :token,
			created_at = :created_at,
			expires_at = :expires_at,
			deleted = :deleted,
			deleted_at = :deleted_at,
			last_accessed_at = :last_accessed_at,
			message_count = :message_count,
			cleanup_attempts = :cleanup_attempts`,
		map[string]interface{}{
			"id":               a.ID,
			"address":          a.Address,
			"password":         a.Password,
			"token":            a.Token,
			"created_at":       a.CreatedAt,
			"expires_at":       a.ExpiresAt,
			"deleted":          a.Deleted,
			"deleted_at":       a.DeletedAt,
			"last_accessed_at": a.LastAccessedAt,
			"message_count":    a.MessageCount,
			"cleanup_attempts": a.CleanupAttempts,
		},
	)
	return err
}

const accountColumns = "id, address, password, token, created_at, expires_at, deleted, deleted_at, last_accessed_at, message_count, cleanup_attempts"

// GetAccountByID gets an account by id
func (s *SQLDatabase) GetAccountByID(id string) (tempbox.Account, error) {
	var a tempbox.Account
	err := s.Get(&a, "SELECT "+accountColumns+" FROM account WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return a, tempbox.ErrAccountDoesntExist
	}
	return a, err
}

// GetAccountByAddress gets an account by address
func (s *SQLDatabase) GetAccountByAddress(address string) (tempbox.Account, error) {
	var a tempbox.Account
	err := s.Get(&a, "SELECT "+accountColumns+" FROM account WHERE address = $1", address)
	if err == sql.ErrNoRows {
		return a, tempbox.ErrAccountDoesntExist
	}
	return a, err
}

// ListAccounts returns all locally known accounts
func (s *SQLDatabase) ListAccounts() ([]tempbox.Account, error) {
	accounts := []tempbox.Account{}
	err := s.Select(&accounts, "SELECT "+accountColumns+" FROM account ORDER BY created_at ASC")
	return accounts, err
}

// ListCleanupCandidates returns not-deleted accounts past expiry or past the
// retention cutoff
func (s *SQLDatabase) ListCleanupCandidates(expiredBefore time.Time, createdBefore time.Time) ([]tempbox.Account, error) {
	accounts := []tempbox.Account{}
	err := s.Select(&accounts,
		"SELECT "+accountColumns+" FROM account WHERE deleted = false AND (expires_at <= $1 OR created_at <= $2) ORDER BY created_at ASC",
		expiredBefore, createdBefore,
	)
	return accounts, err
}

// MarkAccountDeleted flags the account as deleted
func (s *SQLDatabase) MarkAccountDeleted(id string, at time.Time) error {
	res, err := s.Exec("UPDATE account SET deleted = true, deleted_at = $1 WHERE id = $2", at, id)
	if err != nil {
		return err
	}
	return s.expectOneRow(res)
}

// RecordAccountAccess bumps the last accessed time and message count
func (s *SQLDatabase) RecordAccountAccess(id string, at time.Time, messageCount int) error {
	res, err := s.Exec("UPDATE account SET last_accessed_at = $1, message_count = $2 WHERE id = $3", at, messageCount, id)
	if err != nil {
		return err
	}
	return s.expectOneRow(res)
}

// IncrementCleanupAttempts bumps the account's cleanup attempt counter
func (s *SQLDatabase) IncrementCleanupAttempts(id string) error {
	res, err := s.Exec("UPDATE account SET cleanup_attempts = cleanup_attempts + 1 WHERE id = $1", id)
	if err != nil {
		return err
	}
	return s.expectOneRow(res)
}

func (s *SQLDatabase) expectOneRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return tempbox.ErrAccountDoesntExist
	}
	return nil
}

// SaveAuditEntry appends to the audit log and trims it back to the cap
func (s *SQLDatabase) SaveAuditEntry(e tempbox.AuditEntry) error {
	_, err := s.NamedExec(
		"INSERT INTO audit_log (id, account_id, action, at, detail) VALUES (:id, :account_id, :action, :at, :detail)",
		map[string]interface{}{
			"id":         e.ID,
			"account_id": e.AccountID,
			"action":     e.Action,
			"at":         e.At,
			"detail":     e.Detail,
		},
	)
	if err != nil {
		return err
	}
	return s.trimLog("audit_log", s.limits.MaxAuditEntries)
}

// trimLog deletes the oldest rows over the cap
func (s *SQLDatabase) trimLog(table string, max int) error {
	var count int
	err := s.Get(&count, "SELECT COUNT(*) FROM "+table)
	if err != nil {
		return err
	}
	overflow := count - max
	if overflow <= 0 {
		return nil
	}
	_, err = s.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE id IN (SELECT id FROM %s ORDER BY at ASC LIMIT $1)", table, table),
		overflow,
	)
	return err
}

// ListAuditEntries returns the audit log oldest first
func (s *SQLDatabase) ListAuditEntries() ([]tempbox.AuditEntry, error) {
	entries := []tempbox.AuditEntry{}
	err := s.Select(&entries, "SELECT id, account_id, action, at, detail FROM audit_log ORDER BY at ASC")
	return entries, err
}

// ListAuditEntriesByAccount returns the audit entries for one account, oldest first
func (s *SQLDatabase) ListAuditEntriesByAccount(accountID string) ([]tempbox.AuditEntry, error) {
	entries := []tempbox.AuditEntry{}
	err := s.Select(&entries, "SELECT id, account_id, action, at, detail FROM audit_log WHERE account_id = $1 ORDER BY at ASC", accountID)
	return entries, err
}

// SaveCleanupEntry appends to the cleanup log and trims it back to the cap
func (s *SQLDatabase) SaveCleanupEntry(e tempbox.CleanupEntry) error {
	_, err := s.NamedExec(
		"INSERT INTO cleanup_log (id, account_id, at, reason, success, error) VALUES (:id, :account_id, :at, :reason, :success, :error)",
		map[string]interface{}{
			"id":         uuid.Must(uuid.NewRandom()).String(),
			"account_id": e.AccountID,
			"at":         e.At,
			"reason":     e.Reason,
			"success":    e.Success,
			"error":      e.Error,
		},
	)
	if err != nil {
		return err
	}
	return s.trimLog("cleanup_log", s.limits.MaxCleanupEntries)
}

// ListCleanupEntries returns the cleanup log oldest first
func (s *SQLDatabase) ListCleanupEntries() ([]tempbox.CleanupEntry, error) {
	entries := []tempbox.CleanupEntry{}
	err := s.Select(&entries, "SELECT account_id, at, reason, success, error FROM cleanup_log ORDER BY at ASC")
	return entries, err
}

// SaveCleanupStats replaces the single stats row
func (s *SQLDatabase) SaveCleanupStats(stats tempbox.CleanupStats) error {
	_, err := s.NamedExec(
		`INSERT INTO cleanup_stats (id, total_accounts, expired_accounts, deleted_accounts, failed_accounts, last_run_at)
		VALUES (1, :total_accounts, :expired_accounts, :deleted_accounts, :failed_accounts, :last_run_at)
		ON CONFLICT (id) DO UPDATE SET
			total_accounts = :total_accounts,
			expired_accounts = :expired_accounts,
			deleted_accounts = :deleted_accounts,
			failed_accounts = :failed_accounts,
			last_run_at = :last_run_at`,
		map[string]interface{}{
			"total_accounts":   stats.TotalAccounts,
			"expired_accounts": stats.ExpiredAccounts,
			"deleted_accounts": stats.DeletedAccounts,
			"failed_accounts":  stats.FailedAccounts,
			"last_run_at":      stats.LastRunAt,
		},
	)
	return err
}

// GetCleanupStats returns the latest stats snapshot
func (s *SQLDatabase) GetCleanupStats() (tempbox.CleanupStats, error) {
	var stats tempbox.CleanupStats
	err := s.Get(&stats, "SELECT total_accounts, expired_accounts, deleted_accounts, failed_accounts, last_run_at FROM cleanup_stats WHERE id = 1")
	if err == sql.ErrNoRows {
		return tempbox.CleanupStats{}, nil
	}
	return stats, err
}

// PruneAccounts drops local records created before the cutoff
func (s *SQLDatabase) PruneAccounts(olderThan time.Time) (int, error) {
	res, err := s.Exec("DELETE FROM account WHERE created_at < $1", olderThan)
	if err != nil {
		return -1, fmt.Errorf("SQLDatabase.PruneAccounts failed with err=%v", err)
	}
	count, err := res.RowsAffected()
	return int(count), err
}

// Reset drops all rows from every table
func (s *SQLDatabase) Reset() error {
	for _, table := range []string{"account", "audit_log", "cleanup_log", "cleanup_stats"} {
		if _, err := s.Exec("DELETE FROM " + table); err != nil {
			return err
		}
	}
	return nil
}
