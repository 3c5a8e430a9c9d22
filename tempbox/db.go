package tempbox

import (
	"errors"
	"time"
)

// ErrAccountDoesntExist is returned by account getters when no record matches
var ErrAccountDoesntExist = errors.New("account doesn't exist")

// Limits bounds the size of the persisted log collections. Zero values fall
// back to the defaults below.
type Limits struct {
	MaxAuditEntries   int
	MaxCleanupEntries int
}

// Default log collection caps
const (
	DefaultMaxAuditEntries   = 500
	DefaultMaxCleanupEntries = 200
)

// WithDefaults fills in zero fields with the default caps
func (l Limits) WithDefaults() Limits {
	if l.MaxAuditEntries <= 0 {
		l.MaxAuditEntries = DefaultMaxAuditEntries
	}
	if l.MaxCleanupEntries <= 0 {
		l.MaxCleanupEntries = DefaultMaxCleanupEntries
	}
	return l
}

// Database lists methods needed to implement a local account store
type Database interface {
	// Start is where you should do schema creation and launch goroutines for background operations
	Start() error
	SaveAccount(account Account) error
	GetAccountByID(id string) (Account, error)
	GetAccountByAddress(address string) (Account, error)
	ListAccounts() ([]Account, error)
	// ListCleanupCandidates returns accounts that are not marked deleted and
	// are either past their expiry or older than the retention window.
	ListCleanupCandidates(expiredBefore time.Time, createdBefore time.Time) ([]Account, error)
	MarkAccountDeleted(id string, at time.Time) error
	// RecordAccountAccess bumps the last accessed time and message count
	RecordAccountAccess(id string, at time.Time, messageCount int) error
	IncrementCleanupAttempts(id string) error
	SaveAuditEntry(entry AuditEntry) error
	ListAuditEntries() ([]AuditEntry, error)
	ListAuditEntriesByAccount(accountID string) ([]AuditEntry, error)
	SaveCleanupEntry(entry CleanupEntry) error
	ListCleanupEntries() ([]CleanupEntry, error)
	SaveCleanupStats(stats CleanupStats) error
	GetCleanupStats() (CleanupStats, error)
	// PruneAccounts hard deletes local records created before the cutoff,
	// regardless of remote state. Returns the number of records removed.
	PruneAccounts(olderThan time.Time) (int, error)
	// Reset drops all local state. Reads that hit corrupt data should log,
	// reset the affected collection and carry on rather than fail.
	Reset() error
}
