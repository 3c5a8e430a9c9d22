// Package inmemory implements the account store in process memory. It is the
// default backend and the reference implementation for the shared test suite.
package inmemory

import (
	"sort"
	"sync"
	"time"

	"github.com/ShovonSheikh/temp-box/tempbox"
)

var _ tempbox.Database = &InMemory{}

// InMemory implements an in memory database
type InMemory struct {
	m        sync.RWMutex
	limits   tempbox.Limits
	accounts map[string]tempbox.Account
	audit    []tempbox.AuditEntry
	cleanup  []tempbox.CleanupEntry
	stats    tempbox.CleanupStats
}

// New returns a new in memory db to use
func New(limits tempbox.Limits) *InMemory {
	return &InMemory{
		limits:   limits.WithDefaults(),
		accounts: make(map[string]tempbox.Account),
	}
}

// Start implements tempbox.Database Start()
func (im *InMemory) Start() error {
	return nil
}

// SaveAccount stores or replaces the given account record
func (im *InMemory) SaveAccount(account tempbox.Account) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.accounts[account.ID] = account
	return nil
}

// GetAccountByID gets an account by the given id
func (im *InMemory) GetAccountByID(id string) (tempbox.Account, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	a, ok := im.accounts[id]
	if !ok {
		return tempbox.Account{}, tempbox.ErrAccountDoesntExist
	}

	return a, nil
}

// GetAccountByAddress gets an account by the given address
func (im *InMemory) GetAccountByAddress(address string) (tempbox.Account, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	for _, a := range im.accounts {
		if a.Address == address {
			return a, nil
		}
	}

	return tempbox.Account{}, tempbox.ErrAccountDoesntExist
}

// ListAccounts returns all locally known accounts
func (im *InMemory) ListAccounts() ([]tempbox.Account, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	accounts := make([]tempbox.Account, 0, len(im.accounts))
	for _, a := range im.accounts {
		accounts = append(accounts, a)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})

	return accounts, nil
}

// ListCleanupCandidates returns not-deleted accounts past expiry or past the
// retention cutoff
func (im *InMemory) ListCleanupCandidates(expiredBefore time.Time, createdBefore time.Time) ([]tempbox.Account, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	var candidates []tempbox.Account
	for _, a := range im.accounts {
		if a.Deleted {
			continue
		}
		if !a.ExpiresAt.After(expiredBefore) || !a.CreatedAt.After(createdBefore) {
			candidates = append(candidates, a)
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	return candidates, nil
}

// MarkAccountDeleted flags the account as deleted. Deleted accounts are never
// un-deleted.
func (im *InMemory) MarkAccountDeleted(id string, at time.Time) error {
	im.m.Lock()
	defer im.m.Unlock()

	a, ok := im.accounts[id]
	if !ok {
		return tempbox.ErrAccountDoesntExist
	}

	a.Deleted = true
	a.DeletedAt = at
	im.accounts[id] = a
	return nil
}

// RecordAccountAccess bumps the last accessed time and message count
func (im *InMemory) RecordAccountAccess(id string, at time.Time, messageCount int) error {
	im.m.Lock()
	defer im.m.Unlock()

	a, ok := im.accounts[id]
	if !ok {
		return tempbox.ErrAccountDoesntExist
	}

	a.LastAccessedAt = at
	a.MessageCount = messageCount
	im.accounts[id] = a
	return nil
}

// IncrementCleanupAttempts bumps the account's cleanup attempt counter
func (im *InMemory) IncrementCleanupAttempts(id string) error {
	im.m.Lock()
	defer im.m.Unlock()

	a, ok := im.accounts[id]
	if !ok {
		return tempbox.ErrAccountDoesntExist
	}

	a.CleanupAttempts++
	im.accounts[id] = a
	return nil
}

// SaveAuditEntry appends to the audit log, evicting the oldest entries once
// the cap is hit
func (im *InMemory) SaveAuditEntry(entry tempbox.AuditEntry) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.audit = append(im.audit, entry)
	if overflow := len(im.audit) - im.limits.MaxAuditEntries; overflow > 0 {
		im.audit = im.audit[overflow:]
	}
	return nil
}

// ListAuditEntries returns the audit log oldest first
func (im *InMemory) ListAuditEntries() ([]tempbox.AuditEntry, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	entries := make([]tempbox.AuditEntry, len(im.audit))
	copy(entries, im.audit)
	return entries, nil
}

// ListAuditEntriesByAccount returns the audit entries for one account, oldest first
func (im *InMemory) ListAuditEntriesByAccount(accountID string) ([]tempbox.AuditEntry, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	var entries []tempbox.AuditEntry
	for _, e := range im.audit {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// SaveCleanupEntry appends to the cleanup log, evicting the oldest entries
// once the cap is hit
func (im *InMemory) SaveCleanupEntry(entry tempbox.CleanupEntry) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.cleanup = append(im.cleanup, entry)
	if overflow := len(im.cleanup) - im.limits.MaxCleanupEntries; overflow > 0 {
		im.cleanup = im.cleanup[overflow:]
	}
	return nil
}

// ListCleanupEntries returns the cleanup log oldest first
func (im *InMemory) ListCleanupEntries() ([]tempbox.CleanupEntry, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	entries := make([]tempbox.CleanupEntry, len(im.cleanup))
	copy(entries, im.cleanup)
	return entries, nil
}

// SaveCleanupStats replaces the stats snapshot
func (im *InMemory) SaveCleanupStats(stats tempbox.CleanupStats) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.stats = stats
	return nil
}

// GetCleanupStats returns the latest stats snapshot
func (im *InMemory) GetCleanupStats() (tempbox.CleanupStats, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	return im.stats, nil
}

// PruneAccounts drops local records created before the cutoff
func (im *InMemory) PruneAccounts(olderThan time.Time) (int, error) {
	im.m.Lock()
	defer im.m.Unlock()

	pruned := 0
	for id, a := range im.accounts {
		if a.CreatedAt.Before(olderThan) {
			delete(im.accounts, id)
			pruned++
		}
	}
	return pruned, nil
}

// Reset drops all local state
func (im *InMemory) Reset() error {
	im.m.Lock()
	defer im.m.Unlock()

	im.accounts = make(map[string]tempbox.Account)
	im.audit = nil
	im.cleanup = nil
	im.stats = tempbox.CleanupStats{}
	return nil
}
