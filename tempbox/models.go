package tempbox

import "time"

// AuditAction tags an audit entry with the lifecycle event it records
type AuditAction string

// Lifecycle events recorded in the audit log
const (
	AuditCreated          AuditAction = "CREATED"
	AuditAccessed         AuditAction = "ACCESSED"
	AuditExpired          AuditAction = "EXPIRED"
	AuditDeleted          AuditAction = "DELETED"
	AuditCleanupAttempted AuditAction = "CLEANUP_ATTEMPTED"
	AuditCleanupFailed    AuditAction = "CLEANUP_FAILED"
)

// Cleanup reasons recorded against cleanup entries
const (
	ReasonExpired   = "expired"
	ReasonRetention = "retention"
	ReasonManual    = "manual"
)

// Account contains everything we keep locally about a remote disposable account
type Account struct {
	ID              string    `dynamodbav:"id" json:"id" db:"id"`
	Address         string    `dynamodbav:"address" json:"address" db:"address"`
	Password        string    `dynamodbav:"password" json:"-" db:"password"`
	Token           string    `dynamodbav:"token" json:"-" db:"token"`
	CreatedAt       time.Time `dynamodbav:"created_at,unixtime" json:"created_at" db:"created_at"`
	ExpiresAt       time.Time `dynamodbav:"expires_at,unixtime" json:"expires_at" db:"expires_at"`
	Deleted         bool      `dynamodbav:"deleted" json:"deleted" db:"deleted"`
	DeletedAt       time.Time `dynamodbav:"deleted_at,unixtime" json:"deleted_at,omitempty" db:"deleted_at"`
	LastAccessedAt  time.Time `dynamodbav:"last_accessed_at,unixtime" json:"last_accessed_at" db:"last_accessed_at"`
	MessageCount    int       `dynamodbav:"message_count" json:"message_count" db:"message_count"`
	CleanupAttempts int       `dynamodbav:"cleanup_attempts" json:"-" db:"cleanup_attempts"`
}

// Expired reports whether the account's expiry has passed at the given instant
func (a Account) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

// Remaining returns how long until the account expires. It never returns a
// negative duration.
func (a Account) Remaining(now time.Time) time.Duration {
	if a.Expired(now) {
		return 0
	}
	return a.ExpiresAt.Sub(now)
}

// AuditEntry is an immutable record of a lifecycle event for an account
type AuditEntry struct {
	ID        string      `dynamodbav:"id" json:"id" db:"id"`
	AccountID string      `dynamodbav:"account_id" json:"account_id" db:"account_id"`
	Action    AuditAction `dynamodbav:"action" json:"action" db:"action"`
	At        time.Time   `dynamodbav:"at,unixtime" json:"at" db:"at"`
	Detail    string      `dynamodbav:"detail" json:"detail,omitempty" db:"detail"`
}

// CleanupEntry records a single remote deletion attempt made by the sweeper.
// It is kept separate from the audit log: the audit log answers "what happened
// to this account", the cleanup log answers "what did the sweeper do and why".
type CleanupEntry struct {
	AccountID string    `dynamodbav:"account_id" json:"account_id" db:"account_id"`
	At        time.Time `dynamodbav:"at,unixtime" json:"at" db:"at"`
	Reason    string    `dynamodbav:"reason" json:"reason" db:"reason"`
	Success   bool      `dynamodbav:"success" json:"success" db:"success"`
	Error     string    `dynamodbav:"error" json:"error,omitempty" db:"error"`
}

// CleanupStats is a point-in-time snapshot of account totals. It is recomputed
// after every sweep rather than maintained incrementally.
type CleanupStats struct {
	TotalAccounts   int       `dynamodbav:"total_accounts" json:"total_accounts" db:"total_accounts"`
	ExpiredAccounts int       `dynamodbav:"expired_accounts" json:"expired_accounts" db:"expired_accounts"`
	DeletedAccounts int       `dynamodbav:"deleted_accounts" json:"deleted_accounts" db:"deleted_accounts"`
	FailedAccounts  int       `dynamodbav:"failed_accounts" json:"failed_accounts" db:"failed_accounts"`
	LastRunAt       time.Time `dynamodbav:"last_run_at,unixtime" json:"last_run_at" db:"last_run_at"`
}

// ComputeStats derives a stats snapshot from a full account listing
func ComputeStats(accounts []Account, now time.Time) CleanupStats {
	stats := CleanupStats{LastRunAt: now}
	for _, a := range accounts {
		stats.TotalAccounts++
		if a.Deleted {
			stats.DeletedAccounts++
			continue
		}
		if a.Expired(now) {
			stats.ExpiredAccounts++
		}
		if a.CleanupAttempts > 0 {
			stats.FailedAccounts++
		}
	}
	return stats
}
