// Package jsonfile implements the account store as a single JSON document on
// disk. Writes go through a temp file and rename so a crash mid-write never
// leaves a half-written store behind. Timestamps serialize as RFC 3339 and
// survive the round trip unchanged.
package jsonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ShovonSheikh/temp-box/tempbox"
)

var _ tempbox.Database = &JSONFile{}

// store is the on disk document
type store struct {
	Accounts []persistedAccount     `json:"accounts"`
	Audit    []tempbox.AuditEntry   `json:"audit_log"`
	Cleanup  []tempbox.CleanupEntry `json:"cleanup_log"`
	Stats    tempbox.CleanupStats   `json:"cleanup_stats"`
}

// persistedAccount carries the credentials the public json tags hide
type persistedAccount struct {
	tempbox.Account
	Password string `json:"password"`
	Token    string `json:"token"`
}

// JSONFile implements a file backed database
type JSONFile struct {
	m        sync.RWMutex
	path     string
	limits   tempbox.Limits
	log      *zap.Logger
	accounts map[string]tempbox.Account
	audit    []tempbox.AuditEntry
	cleanup  []tempbox.CleanupEntry
	stats    tempbox.CleanupStats
}

// New returns a file backed db rooted at the given path
func New(path string, limits tempbox.Limits, log *zap.Logger) *JSONFile {
	if log == nil {
		log = zap.NewNop()
	}
	return &JSONFile{
		path:     path,
		limits:   limits.WithDefaults(),
		log:      log,
		accounts: make(map[string]tempbox.Account),
	}
}

// Start loads the store from disk. A missing file means a fresh store. A file
// that fails to parse is moved aside and the store starts empty rather than
// refusing to boot.
func (j *JSONFile) Start() error {
	j.m.Lock()
	defer j.m.Unlock()

	raw, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "JSONFile.Start: failed to read store")
	}

	var s store
	if err := json.Unmarshal(raw, &s); err != nil {
		quarantine := j.path + ".corrupt"
		j.log.Warn("store file is corrupt, starting empty",
			zap.String("path", j.path),
			zap.String("moved_to", quarantine),
			zap.Error(err),
		)
		if renameErr := os.Rename(j.path, quarantine); renameErr != nil {
			return errors.Wrap(renameErr, "JSONFile.Start: failed to move corrupt store aside")
		}
		return nil
	}

	for _, pa := range s.Accounts {
		a := pa.Account
		a.Password = pa.Password
		a.Token = pa.Token
		if a.ID == "" {
			j.log.Warn("dropping stored account with no id", zap.String("address", a.Address))
			continue
		}
		j.accounts[a.ID] = a
	}
	j.audit = s.Audit
	j.cleanup = s.Cleanup
	j.stats = s.Stats

	return nil
}

// persist writes the whole store atomically. Callers must hold the write lock.
func (j *JSONFile) persist() error {
	accounts := make([]persistedAccount, 0, len(j.accounts))
	for _, a := range j.accounts {
		accounts = append(accounts, persistedAccount{Account: a, Password: a.Password, Token: a.Token})
	}
	sort.Slice(accounts, func(i, k int) bool {
		return accounts[i].CreatedAt.Before(accounts[k].CreatedAt)
	})

	s := store{
		Accounts: accounts,
		Audit:    j.audit,
		Cleanup:  j.cleanup,
		Stats:    j.stats,
	}

	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "JSONFile.persist: failed to marshal store")
	}

	dir := filepath.Dir(j.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(j.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "JSONFile.persist: failed to create temp file")
	}

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "JSONFile.persist: failed to write temp file")
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "JSONFile.persist: failed to close temp file")
	}

	if err := os.Rename(tmp.Name(), j.path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "JSONFile.persist: failed to replace store")
	}

	return nil
}

// SaveAccount stores or replaces the given account record
func (j *JSONFile) SaveAccount(account tempbox.Account) error {
	j.m.Lock()
	defer j.m.Unlock()

	j.accounts[account.ID] = account
	return j.persist()
}

// GetAccountByID gets an account by the given id
func (j *JSONFile) GetAccountByID(id string) (tempbox.Account, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	a, ok := j.accounts[id]
	if !ok {
		return tempbox.Account{}, tempbox.ErrAccountDoesntExist
	}
	return a, nil
}

// GetAccountByAddress gets an account by the given address
func (j *JSONFile) GetAccountByAddress(address string) (tempbox.Account, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	for _, a := range j.accounts {
		if a.Address == address {
			return a, nil
		}
	}
	return tempbox.Account{}, tempbox.ErrAccountDoesntExist
}

// ListAccounts returns all locally known accounts
func (j *JSONFile) ListAccounts() ([]tempbox.Account, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	accounts := make([]tempbox.Account, 0, len(j.accounts))
	for _, a := range j.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, k int) bool {
		return accounts[i].CreatedAt.Before(accounts[k].CreatedAt)
	})
	return accounts, nil
}

// ListCleanupCandidates returns not-deleted accounts past expiry or past the
// retention cutoff
func (j *JSONFile) ListCleanupCandidates(expiredBefore time.Time, createdBefore time.Time) ([]tempbox.Account, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	var candidates []tempbox.Account
	for _, a := range j.accounts {
		if a.Deleted {
			continue
		}
		if !a.ExpiresAt.After(expiredBefore) || !a.CreatedAt.After(createdBefore) {
			candidates = append(candidates, a)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].CreatedAt.Before(candidates[k].CreatedAt)
	})
	return candidates, nil
}

// MarkAccountDeleted flags the account as deleted
func (j *JSONFile) MarkAccountDeleted(id string, at time.Time) error {
	j.m.Lock()
	defer j.m.Unlock()

	a, ok := j.accounts[id]
	if !ok {
		return tempbox.ErrAccountDoesntExist
	}
	a.Deleted = true
	a.DeletedAt = at
	j.accounts[id] = a
	return j.persist()
}

// RecordAccountAccess bumps the last accessed time and message count
func (j *JSONFile) RecordAccountAccess(id string, at time.Time, messageCount int) error {
	j.m.Lock()
	defer j.m.Unlock()

	a, ok := j.accounts[id]
	if !ok {
		return tempbox.ErrAccountDoesntExist
	}
	a.LastAccessedAt = at
	a.MessageCount = messageCount
	j.accounts[id] = a
	return j.persist()
}

// IncrementCleanupAttempts bumps the account's cleanup attempt counter
func (j *JSONFile) IncrementCleanupAttempts(id string) error {
	j.m.Lock()
	defer j.m.Unlock()

	a, ok := j.accounts[id]
	if !ok {
		return tempbox.ErrAccountDoesntExist
	}
	a.CleanupAttempts++
	j.accounts[id] = a
	return j.persist()
}

// SaveAuditEntry appends to the audit log, evicting the oldest entries once
// the cap is hit
func (j *JSONFile) SaveAuditEntry(entry tempbox.AuditEntry) error {
	j.m.Lock()
	defer j.m.Unlock()

	j.audit = append(j.audit, entry)
	if overflow := len(j.audit) - j.limits.MaxAuditEntries; overflow > 0 {
		j.audit = j.audit[overflow:]
	}
	return j.persist()
}

// ListAuditEntries returns the audit log oldest first
func (j *JSONFile) ListAuditEntries() ([]tempbox.AuditEntry, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	entries := make([]tempbox.AuditEntry, len(j.audit))
	copy(entries, j.audit)
	return entries, nil
}

// ListAuditEntriesByAccount returns the audit entries for one account, oldest first
func (j *JSONFile) ListAuditEntriesByAccount(accountID string) ([]tempbox.AuditEntry, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	var entries []tempbox.AuditEntry
	for _, e := range j.audit {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// SaveCleanupEntry appends to the cleanup log, evicting the oldest entries
// once the cap is hit
func (j *JSONFile) SaveCleanupEntry(entry tempbox.CleanupEntry) error {
	j.m.Lock()
	defer j.m.Unlock()

	j.cleanup = append(j.cleanup, entry)
	if overflow := len(j.cleanup) - j.limits.MaxCleanupEntries; overflow > 0 {
		j.cleanup = j.cleanup[overflow:]
	}
	return j.persist()
}

// ListCleanupEntries returns the cleanup log oldest first
func (j *JSONFile) ListCleanupEntries() ([]tempbox.CleanupEntry, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	entries := make([]tempbox.CleanupEntry, len(j.cleanup))
	copy(entries, j.cleanup)
	return entries, nil
}

// SaveCleanupStats replaces the stats snapshot
func (j *JSONFile) SaveCleanupStats(stats tempbox.CleanupStats) error {
	j.m.Lock()
	defer j.m.Unlock()

	j.stats = stats
	return j.persist()
}

// GetCleanupStats returns the latest stats snapshot
func (j *JSONFile) GetCleanupStats() (tempbox.CleanupStats, error) {
	j.m.RLock()
	defer j.m.RUnlock()

	return j.stats, nil
}

// PruneAccounts drops local records created before the cutoff
func (j *JSONFile) PruneAccounts(olderThan time.Time) (int, error) {
	j.m.Lock()
	defer j.m.Unlock()

	pruned := 0
	for id, a := range j.accounts {
		if a.CreatedAt.Before(olderThan) {
			delete(j.accounts, id)
			pruned++
		}
	}
	if pruned == 0 {
		return 0, nil
	}
	return pruned, j.persist()
}

// Reset drops all local state and the backing file
func (j *JSONFile) Reset() error {
	j.m.Lock()
	defer j.m.Unlock()

	j.accounts = make(map[string]tempbox.Account)
	j.audit = nil
	j.cleanup = nil
	j.stats = tempbox.CleanupStats{}

	err := os.Remove(j.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "JSONFile.Reset: failed to remove store")
	}
	return nil
}

// Path returns the location of the backing file
func (j *JSONFile) Path() string {
	return j.path
}

func (j *JSONFile) String() string {
	return fmt.Sprintf("JSONFile(%s)", j.path)
}
