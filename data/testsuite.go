package data

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ShovonSheikh/temp-box/tempbox"
)

// TestFunction is the signature for a testing function
type TestFunction = func(t *testing.T, db tempbox.Database)

// TestingFuncs contain the suite of funcs that a db implementation should be tested against
var TestingFuncs = []TestFunction{
	TestSaveAccount,
	TestGetAccountByID,
	TestGetAccountByAddress,
	TestListAccounts,
	TestListCleanupCandidates,
	TestMarkAccountDeleted,
	TestRecordAccountAccess,
	TestIncrementCleanupAttempts,
	TestAuditLog,
	TestAuditLogCap,
	TestCleanupLog,
	TestCleanupLogCap,
	TestCleanupStats,
	TestPruneAccounts,
	TestReset,
}

func testAccount(address string) tempbox.Account {
	now := time.Now().Truncate(time.Second)
	return tempbox.Account{
		ID:             uuid.Must(uuid.NewRandom()).String(),
		Address:        address,
		Password:       "hunter22",
		Token:          "token123",
		CreatedAt:      now,
		ExpiresAt:      now.Add(10 * time.Minute),
		LastAccessedAt: now,
	}
}

// assertAccountEqual compares two accounts. Timestamps are compared with one
// second of tolerance because dynamodb unixtime marshalling truncates to
// seconds.
func assertAccountEqual(t *testing.T, db tempbox.Database, expected, actual tempbox.Account) {
	t.Helper()

	assert.WithinDuration(t, expected.CreatedAt, actual.CreatedAt, time.Second, "%v: created at mismatch", reflect.TypeOf(db))
	assert.WithinDuration(t, expected.ExpiresAt, actual.ExpiresAt, time.Second, "%v: expires at mismatch", reflect.TypeOf(db))
	assert.WithinDuration(t, expected.LastAccessedAt, actual.LastAccessedAt, time.Second, "%v: last accessed at mismatch", reflect.TypeOf(db))
	assert.WithinDuration(t, expected.DeletedAt, actual.DeletedAt, time.Second, "%v: deleted at mismatch", reflect.TypeOf(db))

	expected.CreatedAt = actual.CreatedAt
	expected.ExpiresAt = actual.ExpiresAt
	expected.LastAccessedAt = actual.LastAccessedAt
	expected.DeletedAt = actual.DeletedAt
	assert.Equal(t, expected, actual, "%v: account mismatch", reflect.TypeOf(db))
}

// TestSaveAccount verifies that SaveAccount works
func TestSaveAccount(t *testing.T, db tempbox.Database) {
	a := testAccount("test.1@example.com")

	err := db.SaveAccount(a)
	if err != nil {
		t.Errorf("%v - TestSaveAccount: failed to save: %v", reflect.TypeOf(db), err)
	}

	ra, err := db.GetAccountByID(a.ID)
	if err != nil {
		t.Errorf("%v - TestSaveAccount: failed to get account back: %v", reflect.TypeOf(db), err)
	}

	assertAccountEqual(t, db, a, ra)

	// saving the same id again replaces the record
	a.Token = "rotated"
	err = db.SaveAccount(a)
	if err != nil {
		t.Errorf("%v - TestSaveAccount: failed to re-save: %v", reflect.TypeOf(db), err)
	}

	ra, err = db.GetAccountByID(a.ID)
	if err != nil {
		t.Errorf("%v - TestSaveAccount: failed to get account back after re-save: %v", reflect.TypeOf(db), err)
	}

	if ra.Token != "rotated" {
		t.Errorf("%v - TestSaveAccount: re-save did not replace. Expected %v, got %v", reflect.TypeOf(db), "rotated", ra.Token)
	}
}

// TestGetAccountByID verifies that GetAccountByID works
func TestGetAccountByID(t *testing.T, db tempbox.Database) {
	a := testAccount("test.2@example.com")

	err := db.SaveAccount(a)
	if err != nil {
		t.Errorf("%v - TestGetAccountByID: failed to save: %v", reflect.TypeOf(db), err)
	}

	ra, err := db.GetAccountByID(a.ID)
	if err != nil {
		t.Errorf("%v - TestGetAccountByID: failed to get account back: %v", reflect.TypeOf(db), err)
	}

	assertAccountEqual(t, db, a, ra)

	_, err = db.GetAccountByID(uuid.Must(uuid.NewRandom()).String())
	if err != tempbox.ErrAccountDoesntExist {
		t.Errorf("%v - TestGetAccountByID: error not expected for missing id. Expected %v, got %v", reflect.TypeOf(db), tempbox.ErrAccountDoesntExist, err)
	}
}

// TestGetAccountByAddress verifies that GetAccountByAddress works
func TestGetAccountByAddress(t *testing.T, db tempbox.Database) {
	a := testAccount("test.3@example.com")

	err := db.SaveAccount(a)
	if err != nil {
		t.Errorf("%v - TestGetAccountByAddress: failed to save: %v", reflect.TypeOf(db), err)
	}

	ra, err := db.GetAccountByAddress(a.Address)
	if err != nil {
		t.Errorf("%v - TestGetAccountByAddress: failed to get account back: %v", reflect.TypeOf(db), err)
	}

	assertAccountEqual(t, db, a, ra)

	_, err = db.GetAccountByAddress("doesntexist@example.com")
	if err != tempbox.ErrAccountDoesntExist {
		t.Errorf("%v - TestGetAccountByAddress: error not expected for missing address. Expected %v, got %v", reflect.TypeOf(db), tempbox.ErrAccountDoesntExist, err)
	}
}

// TestListAccounts verifies that ListAccounts returns everything saved so far
func TestListAccounts(t *testing.T, db tempbox.Database) {
	err := db.Reset()
	if err != nil {
		t.Fatalf("%v - TestListAccounts: failed to reset: %v", reflect.TypeOf(db), err)
	}

	for i := 0; i < 3; i++ {
		a := testAccount(fmt.Sprintf("test.list.%v@example.com", i))
		a.CreatedAt = a.CreatedAt.Add(time.Duration(i) * time.Minute)
		if err := db.SaveAccount(a); err != nil {
			t.Fatalf("%v - TestListAccounts: failed to save: %v", reflect.TypeOf(db), err)
		}
	}

	accounts, err := db.ListAccounts()
	if err != nil {
		t.Errorf("%v - TestListAccounts: failed to list: %v", reflect.TypeOf(db), err)
	}

	if len(accounts) != 3 {
		t.Errorf("%v - TestListAccounts: wrong count. Expected %v, got %v", reflect.TypeOf(db), 3, len(accounts))
	}
}

// TestListCleanupCandidates verifies expiry and retention cutoffs
func TestListCleanupCandidates(t *testing.T, db tempbox.Database) {
	err := db.Reset()
	if err != nil {
		t.Fatalf("%v - TestListCleanupCandidates: failed to reset: %v", reflect.TypeOf(db), err)
	}

	now := time.Now().Truncate(time.Second)

	expired := testAccount("test.expired@example.com")
	expired.CreatedAt = now.Add(-time.Hour)
	expired.ExpiresAt = now.Add(-5 * time.Minute)

	stale := testAccount("test.stale@example.com")
	stale.CreatedAt = now.Add(-10 * 24 * time.Hour)
	stale.ExpiresAt = now.Add(10 * time.Minute)

	live := testAccount("test.live@example.com")
	live.CreatedAt = now
	live.ExpiresAt = now.Add(10 * time.Minute)

	gone := testAccount("test.gone@example.com")
	gone.CreatedAt = now.Add(-time.Hour)
	gone.ExpiresAt = now.Add(-5 * time.Minute)
	gone.Deleted = true
	gone.DeletedAt = now.Add(-time.Minute)

	for _, a := range []tempbox.Account{expired, stale, live, gone} {
		if err := db.SaveAccount(a); err != nil {
			t.Fatalf("%v - TestListCleanupCandidates: failed to save: %v", reflect.TypeOf(db), err)
		}
	}

	candidates, err := db.ListCleanupCandidates(now, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Errorf("%v - TestListCleanupCandidates: failed to list: %v", reflect.TypeOf(db), err)
	}

	var ids []string
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}

	assert.ElementsMatch(t, []string{expired.ID, stale.ID}, ids, "%v - TestListCleanupCandidates: wrong candidate set", reflect.TypeOf(db))
}

// TestMarkAccountDeleted verifies that MarkAccountDeleted works
func TestMarkAccountDeleted(t *testing.T, db tempbox.Database) {
	a := testAccount("test.4@example.com")

	err := db.SaveAccount(a)
	if err != nil {
		t.Fatalf("%v - TestMarkAccountDeleted: failed to save: %v", reflect.TypeOf(db), err)
	}

	at := time.Now().Truncate(time.Second)
	err = db.MarkAccountDeleted(a.ID, at)
	if err != nil {
		t.Errorf("%v - TestMarkAccountDeleted: failed to mark deleted: %v", reflect.TypeOf(db), err)
	}

	ra, err := db.GetAccountByID(a.ID)
	if err != nil {
		t.Errorf("%v - TestMarkAccountDeleted: failed to get account back: %v", reflect.TypeOf(db), err)
	}

	if !ra.Deleted {
		t.Errorf("%v - TestMarkAccountDeleted: account not flagged deleted", reflect.TypeOf(db))
	}

	assert.WithinDuration(t, at, ra.DeletedAt, time.Second, "%v - TestMarkAccountDeleted: deleted at mismatch", reflect.TypeOf(db))

	err = db.MarkAccountDeleted(uuid.Must(uuid.NewRandom()).String(), at)
	if err != tempbox.ErrAccountDoesntExist {
		t.Errorf("%v - TestMarkAccountDeleted: error not expected for missing id. Expected %v, got %v", reflect.TypeOf(db), tempbox.ErrAccountDoesntExist, err)
	}
}

// TestRecordAccountAccess verifies that RecordAccountAccess works
func TestRecordAccountAccess(t *testing.T, db tempbox.Database) {
	a := testAccount("test.5@example.com")

	err := db.SaveAccount(a)
	if err != nil {
		t.Fatalf("%v - TestRecordAccountAccess: failed to save: %v", reflect.TypeOf(db), err)
	}

	at := time.Now().Add(time.Minute).Truncate(time.Second)
	err = db.RecordAccountAccess(a.ID, at, 7)
	if err != nil {
		t.Errorf("%v - TestRecordAccountAccess: failed to record access: %v", reflect.TypeOf(db), err)
	}

	ra, err := db.GetAccountByID(a.ID)
	if err != nil {
		t.Errorf("%v - TestRecordAccountAccess: failed to get account back: %v", reflect.TypeOf(db), err)
	}

	if ra.MessageCount != 7 {
		t.Errorf("%v - TestRecordAccountAccess: message count not updated. Expected %v, got %v", reflect.TypeOf(db), 7, ra.MessageCount)
	}

	assert.WithinDuration(t, at, ra.LastAccessedAt, time.Second, "%v - TestRecordAccountAccess: last accessed at mismatch", reflect.TypeOf(db))
}

// TestIncrementCleanupAttempts verifies that IncrementCleanupAttempts works
func TestIncrementCleanupAttempts(t *testing.T, db tempbox.Database) {
	a := testAccount("test.6@example.com")

	err := db.SaveAccount(a)
	if err != nil {
		t.Fatalf("%v - TestIncrementCleanupAttempts: failed to save: %v", reflect.TypeOf(db), err)
	}

	for i := 0; i < 2; i++ {
		if err := db.IncrementCleanupAttempts(a.ID); err != nil {
			t.Errorf("%v - TestIncrementCleanupAttempts: failed to increment: %v", reflect.TypeOf(db), err)
		}
	}

	ra, err := db.GetAccountByID(a.ID)
	if err != nil {
		t.Errorf("%v - TestIncrementCleanupAttempts: failed to get account back: %v", reflect.TypeOf(db), err)
	}

	if ra.CleanupAttempts != 2 {
		t.Errorf("%v - TestIncrementCleanupAttempts: wrong attempt count. Expected %v, got %v", reflect.TypeOf(db), 2, ra.CleanupAttempts)
	}
}

// TestAuditLog verifies that audit entries round trip and are filterable by account
func TestAuditLog(t *testing.T, db tempbox.Database) {
	err := db.Reset()
	if err != nil {
		t.Fatalf("%v - TestAuditLog: failed to reset: %v", reflect.TypeOf(db), err)
	}

	accountID := uuid.Must(uuid.NewRandom()).String()
	otherID := uuid.Must(uuid.NewRandom()).String()
	now := time.Now().Truncate(time.Second)

	entries := []tempbox.AuditEntry{
		{ID: uuid.Must(uuid.NewRandom()).String(), AccountID: accountID, Action: tempbox.AuditCreated, At: now, Detail: "test.7@example.com"},
		{ID: uuid.Must(uuid.NewRandom()).String(), AccountID: otherID, Action: tempbox.AuditCreated, At: now.Add(time.Second), Detail: "test.8@example.com"},
		{ID: uuid.Must(uuid.NewRandom()).String(), AccountID: accountID, Action: tempbox.AuditAccessed, At: now.Add(2 * time.Second)},
	}

	for _, e := range entries {
		if err := db.SaveAuditEntry(e); err != nil {
			t.Fatalf("%v - TestAuditLog: failed to save entry: %v", reflect.TypeOf(db), err)
		}
	}

	all, err := db.ListAuditEntries()
	if err != nil {
		t.Errorf("%v - TestAuditLog: failed to list: %v", reflect.TypeOf(db), err)
	}

	if len(all) != 3 {
		t.Fatalf("%v - TestAuditLog: wrong count. Expected %v, got %v", reflect.TypeOf(db), 3, len(all))
	}

	if all[0].Action != tempbox.AuditCreated || all[2].Action != tempbox.AuditAccessed {
		t.Errorf("%v - TestAuditLog: not ordered oldest first: %v", reflect.TypeOf(db), all)
	}

	byAccount, err := db.ListAuditEntriesByAccount(accountID)
	if err != nil {
		t.Errorf("%v - TestAuditLog: failed to list by account: %v", reflect.TypeOf(db), err)
	}

	if len(byAccount) != 2 {
		t.Errorf("%v - TestAuditLog: wrong filtered count. Expected %v, got %v", reflect.TypeOf(db), 2, len(byAccount))
	}
}

// TestAuditLogCap verifies the oldest audit entries are evicted past the cap
func TestAuditLogCap(t *testing.T, db tempbox.Database) {
	err := db.Reset()
	if err != nil {
		t.Fatalf("%v - TestAuditLogCap: failed to reset: %v", reflect.TypeOf(db), err)
	}

	limits := tempbox.Limits{}.WithDefaults()
	accountID := uuid.Must(uuid.NewRandom()).String()
	now := time.Now().Truncate(time.Second)

	for i := 0; i < limits.MaxAuditEntries+5; i++ {
		e := tempbox.AuditEntry{
			ID:        uuid.Must(uuid.NewRandom()).String(),
			AccountID: accountID,
			Action:    tempbox.AuditAccessed,
			At:        now.Add(time.Duration(i) * time.Second),
			Detail:    fmt.Sprintf("entry %v", i),
		}
		if err := db.SaveAuditEntry(e); err != nil {
			t.Fatalf("%v - TestAuditLogCap: failed to save entry %v: %v", reflect.TypeOf(db), i, err)
		}
	}

	all, err := db.ListAuditEntries()
	if err != nil {
		t.Errorf("%v - TestAuditLogCap: failed to list: %v", reflect.TypeOf(db), err)
	}

	if len(all) != limits.MaxAuditEntries {
		t.Fatalf("%v - TestAuditLogCap: wrong count. Expected %v, got %v", reflect.TypeOf(db), limits.MaxAuditEntries, len(all))
	}

	// entry 0..4 should have been evicted
	if all[0].Detail != "entry 5" {
		t.Errorf("%v - TestAuditLogCap: oldest entries not evicted. Got %v first", reflect.TypeOf(db), all[0].Detail)
	}
}

// TestCleanupLog verifies that cleanup entries round trip
func TestCleanupLog(t *testing.T, db tempbox.Database) {
	err := db.Reset()
	if err != nil {
		t.Fatalf("%v - TestCleanupLog: failed to reset: %v", reflect.TypeOf(db), err)
	}

	now := time.Now().Truncate(time.Second)

	entries := []tempbox.CleanupEntry{
		{AccountID: uuid.Must(uuid.NewRandom()).String(), At: now, Reason: tempbox.ReasonExpired, Success: true},
		{AccountID: uuid.Must(uuid.NewRandom()).String(), At: now.Add(time.Second), Reason: tempbox.ReasonRetention, Success: false, Error: "remote delete: 503"},
	}

	for _, e := range entries {
		if err := db.SaveCleanupEntry(e); err != nil {
			t.Fatalf("%v - TestCleanupLog: failed to save entry: %v", reflect.TypeOf(db), err)
		}
	}

	all, err := db.ListCleanupEntries()
	if err != nil {
		t.Errorf("%v - TestCleanupLog: failed to list: %v", reflect.TypeOf(db), err)
	}

	if len(all) != 2 {
		t.Fatalf("%v - TestCleanupLog: wrong count. Expected %v, got %v", reflect.TypeOf(db), 2, len(all))
	}

	if !all[0].Success || all[1].Success {
		t.Errorf("%v - TestCleanupLog: not ordered oldest first: %v", reflect.TypeOf(db), all)
	}

	if all[1].Error != "remote delete: 503" {
		t.Errorf("%v - TestCleanupLog: error text lost. Got %q", reflect.TypeOf(db), all[1].Error)
	}
}

// TestCleanupLogCap verifies the oldest cleanup entries are evicted past the cap
func TestCleanupLogCap(t *testing.T, db tempbox.Database) {
	err := db.Reset()
	if err != nil {
		t.Fatalf("%v - TestCleanupLogCap: failed to reset: %v", reflect.TypeOf(db), err)
	}

	limits := tempbox.Limits{}.WithDefaults()
	now := time.Now().Truncate(time.Second)

	for i := 0; i < limits.MaxCleanupEntries+3; i++ {
		e := tempbox.CleanupEntry{
			AccountID: uuid.Must(uuid.NewRandom()).String(),
			At:        now.Add(time.Duration(i) * time.Second),
			Reason:    tempbox.ReasonExpired,
			Success:   true,
			Error:     fmt.Sprintf("entry %v", i),
		}
		if err := db.SaveCleanupEntry(e); err != nil {
			t.Fatalf("%v - TestCleanupLogCap: failed to save entry %v: %v", reflect.TypeOf(db), i, err)
		}
	}

	all, err := db.ListCleanupEntries()
	if err != nil {
		t.Errorf("%v - TestCleanupLogCap: failed to list: %v", reflect.TypeOf(db), err)
	}

	if len(all) != limits.MaxCleanupEntries {
		t.Fatalf("%v - TestCleanupLogCap: wrong count. Expected %v, got %v", reflect.TypeOf(db), limits.MaxCleanupEntries, len(all))
	}

	if all[0].Error != "entry 3" {
		t.Errorf("%v - TestCleanupLogCap: oldest entries not evicted. Got %v first", reflect.TypeOf(db), all[0].Error)
	}
}

// TestCleanupStats verifies the stats snapshot round trips and is replaced on save
func TestCleanupStats(t *testing.T, db tempbox.Database) {
	now := time.Now().Truncate(time.Second)

	stats := tempbox.CleanupStats{
		TotalAccounts:   10,
		ExpiredAccounts: 3,
		DeletedAccounts: 5,
		FailedAccounts:  1,
		LastRunAt:       now,
	}

	err := db.SaveCleanupStats(stats)
	if err != nil {
		t.Errorf("%v - TestCleanupStats: failed to save: %v", reflect.TypeOf(db), err)
	}

	ret, err := db.GetCleanupStats()
	if err != nil {
		t.Errorf("%v - TestCleanupStats: failed to get stats back: %v", reflect.TypeOf(db), err)
	}

	assert.WithinDuration(t, stats.LastRunAt, ret.LastRunAt, time.Second, "%v - TestCleanupStats: last run at mismatch", reflect.TypeOf(db))
	stats.LastRunAt = ret.LastRunAt
	assert.Equal(t, stats, ret, "%v - TestCleanupStats: stats mismatch", reflect.TypeOf(db))

	stats.DeletedAccounts = 6
	err = db.SaveCleanupStats(stats)
	if err != nil {
		t.Errorf("%v - TestCleanupStats: failed to re-save: %v", reflect.TypeOf(db), err)
	}

	ret, err = db.GetCleanupStats()
	if err != nil {
		t.Errorf("%v - TestCleanupStats: failed to get stats back after re-save: %v", reflect.TypeOf(db), err)
	}

	if ret.DeletedAccounts != 6 {
		t.Errorf("%v - TestCleanupStats: snapshot not replaced. Expected %v, got %v", reflect.TypeOf(db), 6, ret.DeletedAccounts)
	}
}

// TestPruneAccounts verifies that PruneAccounts drops old records and reports the count
func TestPruneAccounts(t *testing.T, db tempbox.Database) {
	err := db.Reset()
	if err != nil {
		t.Fatalf("%v - TestPruneAccounts: failed to reset: %v", reflect.TypeOf(db), err)
	}

	now := time.Now().Truncate(time.Second)

	old := testAccount("test.old@example.com")
	old.CreatedAt = now.Add(-40 * 24 * time.Hour)

	recent := testAccount("test.recent@example.com")
	recent.CreatedAt = now

	for _, a := range []tempbox.Account{old, recent} {
		if err := db.SaveAccount(a); err != nil {
			t.Fatalf("%v - TestPruneAccounts: failed to save: %v", reflect.TypeOf(db), err)
		}
	}

	pruned, err := db.PruneAccounts(now.Add(-30 * 24 * time.Hour))
	if err != nil {
		t.Errorf("%v - TestPruneAccounts: failed to prune: %v", reflect.TypeOf(db), err)
	}

	if pruned != 1 {
		t.Errorf("%v - TestPruneAccounts: wrong pruned count. Expected %v, got %v", reflect.TypeOf(db), 1, pruned)
	}

	_, err = db.GetAccountByID(old.ID)
	if err != tempbox.ErrAccountDoesntExist {
		t.Errorf("%v - TestPruneAccounts: pruned account still present", reflect.TypeOf(db))
	}

	_, err = db.GetAccountByID(recent.ID)
	if err != nil {
		t.Errorf("%v - TestPruneAccounts: recent account lost: %v", reflect.TypeOf(db), err)
	}
}

// TestReset verifies that Reset drops everything
func TestReset(t *testing.T, db tempbox.Database) {
	a := testAccount("test.reset@example.com")
	if err := db.SaveAccount(a); err != nil {
		t.Fatalf("%v - TestReset: failed to save: %v", reflect.TypeOf(db), err)
	}

	e := tempbox.AuditEntry{ID: uuid.Must(uuid.NewRandom()).String(), AccountID: a.ID, Action: tempbox.AuditCreated, At: time.Now()}
	if err := db.SaveAuditEntry(e); err != nil {
		t.Fatalf("%v - TestReset: failed to save audit entry: %v", reflect.TypeOf(db), err)
	}

	err := db.Reset()
	if err != nil {
		t.Errorf("%v - TestReset: failed to reset: %v", reflect.TypeOf(db), err)
	}

	accounts, err := db.ListAccounts()
	if err != nil {
		t.Errorf("%v - TestReset: failed to list accounts: %v", reflect.TypeOf(db), err)
	}

	if len(accounts) != 0 {
		t.Errorf("%v - TestReset: accounts survived reset", reflect.TypeOf(db))
	}

	audit, err := db.ListAuditEntries()
	if err != nil {
		t.Errorf("%v - TestReset: failed to list audit entries: %v", reflect.TypeOf(db), err)
	}

	if len(audit) != 0 {
		t.Errorf("%v - TestReset: audit entries survived reset", reflect.TypeOf(db))
	}

	stats, err := db.GetCleanupStats()
	if err != nil {
		t.Errorf("%v - TestReset: failed to get stats: %v", reflect.TypeOf(db), err)
	}

	if stats.TotalAccounts != 0 {
		t.Errorf("%v - TestReset: stats survived reset", reflect.TypeOf(db))
	}
}
