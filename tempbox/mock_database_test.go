package tempbox

import (
	"time"

	mock "github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) SaveAccount(account Account) error {
	args := m.Called(account)
	return args.Error(0)
}

func (m *MockDatabase) GetAccountByID(id string) (Account, error) {
	args := m.Called(id)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockDatabase) GetAccountByAddress(address string) (Account, error) {
	args := m.Called(address)
	return args.Get(0).(Account), args.Error(1)
}

func (m *MockDatabase) ListAccounts() ([]Account, error) {
	args := m.Called()
	return args.Get(0).([]Account), args.Error(1)
}

func (m *MockDatabase) ListCleanupCandidates(expiredBefore time.Time, createdBefore time.Time) ([]Account, error) {
	args := m.Called(expiredBefore, createdBefore)
	return args.Get(0).([]Account), args.Error(1)
}

func (m *MockDatabase) MarkAccountDeleted(id string, at time.Time) error {
	args := m.Called(id, at)
	return args.Error(0)
}

func (m *MockDatabase) RecordAccountAccess(id string, at time.Time, messageCount int) error {
	args := m.Called(id, at, messageCount)
	return args.Error(0)
}

func (m *MockDatabase) IncrementCleanupAttempts(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockDatabase) SaveAuditEntry(entry AuditEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockDatabase) ListAuditEntries() ([]AuditEntry, error) {
	args := m.Called()
	return args.Get(0).([]AuditEntry), args.Error(1)
}

func (m *MockDatabase) ListAuditEntriesByAccount(accountID string) ([]AuditEntry, error) {
	args := m.Called(accountID)
	return args.Get(0).([]AuditEntry), args.Error(1)
}

func (m *MockDatabase) SaveCleanupEntry(entry CleanupEntry) error {
	args := m.Called(entry)
	return args.Error(0)
}

func (m *MockDatabase) ListCleanupEntries() ([]CleanupEntry, error) {
	args := m.Called()
	return args.Get(0).([]CleanupEntry), args.Error(1)
}

func (m *MockDatabase) SaveCleanupStats(stats CleanupStats) error {
	args := m.Called(stats)
	return args.Error(0)
}

func (m *MockDatabase) GetCleanupStats() (CleanupStats, error) {
	args := m.Called()
	return args.Get(0).(CleanupStats), args.Error(1)
}

func (m *MockDatabase) PruneAccounts(olderThan time.Time) (int, error) {
	args := m.Called(olderThan)
	return args.Int(0), args.Error(1)
}

func (m *MockDatabase) Reset() error {
	args := m.Called()
	return args.Error(0)
}
