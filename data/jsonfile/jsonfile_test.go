package jsonfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShovonSheikh/temp-box/data"
	"github.com/ShovonSheikh/temp-box/tempbox"
)

func TestJSONFileDB(t *testing.T) {
	db := New(filepath.Join(t.TempDir(), "store.json"), tempbox.Limits{}, nil)
	require.NoError(t, db.Start())

	// iterate over the testing suite and call the function
	for _, f := range data.TestingFuncs {
		f(t, db)
	}
}

func TestJSONFile_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	a := tempbox.Account{
		ID:        "abc-123",
		Address:   "pi.day@example.com",
		Password:  "hunter22",
		Token:     "bearer123",
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	}

	db := New(path, tempbox.Limits{}, nil)
	require.NoError(t, db.Start())
	require.NoError(t, db.SaveAccount(a))
	require.NoError(t, db.SaveAuditEntry(tempbox.AuditEntry{
		ID:        "audit-1",
		AccountID: a.ID,
		Action:    tempbox.AuditCreated,
		At:        created,
	}))

	// fresh instance over the same file
	db2 := New(path, tempbox.Limits{}, nil)
	require.NoError(t, db2.Start())

	ra, err := db2.GetAccountByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.Address, ra.Address)
	assert.Equal(t, a.Password, ra.Password, "credentials must survive restart")
	assert.Equal(t, a.Token, ra.Token)
	assert.True(t, a.CreatedAt.Equal(ra.CreatedAt), "created at must round trip exactly")
	assert.True(t, a.ExpiresAt.Equal(ra.ExpiresAt), "expires at must round trip exactly")

	audit, err := db2.ListAuditEntries()
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, tempbox.AuditCreated, audit[0].Action)
}

func TestJSONFile_TimestampsAreRFC3339(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	db := New(path, tempbox.Limits{}, nil)
	require.NoError(t, db.Start())
	require.NoError(t, db.SaveAccount(tempbox.Account{
		ID:        "abc-123",
		Address:   "pi.day@example.com",
		CreatedAt: created,
		ExpiresAt: created.Add(10 * time.Minute),
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Accounts []struct {
			CreatedAt string `json:"created_at"`
		} `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Accounts, 1)
	assert.Equal(t, "2026-03-14T09:26:53Z", doc.Accounts[0].CreatedAt)
}

func TestJSONFile_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	db := New(path, tempbox.Limits{}, nil)
	require.NoError(t, db.Start(), "a corrupt store must not prevent startup")

	accounts, err := db.ListAccounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	// the broken file is kept for inspection
	_, err = os.Stat(path + ".corrupt")
	assert.NoError(t, err)

	// and the store is usable again
	require.NoError(t, db.SaveAccount(tempbox.Account{ID: "new", Address: "new@example.com", CreatedAt: time.Now()}))
	ra, err := db.GetAccountByID("new")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", ra.Address)
}

func TestJSONFile_MissingFileIsFreshStore(t *testing.T) {
	db := New(filepath.Join(t.TempDir(), "does-not-exist.json"), tempbox.Limits{}, nil)
	require.NoError(t, db.Start())

	accounts, err := db.ListAccounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}
