package sqlite3

import (
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ShovonSheikh/temp-box/data"
	"github.com/ShovonSheikh/temp-box/tempbox"
)

func TestSQLite3(t *testing.T) {
	db := GetSQLite3DB("test.sqlite3", tempbox.Limits{})

	// iterate over the testing suite and call the function
	for _, f := range data.TestingFuncs {
		f(t, db)
	}

	testPrune(t, db)

	// remove test database
	err := os.Remove("test.sqlite3")
	if err != nil {
		t.Fatalf("SQLite3: failed to delete test database file")
	}
}

func testPrune(t *testing.T, db *SQLite3) {
	db.MustExec("DELETE FROM account")

	old := tempbox.Account{
		ID:        uuid.Must(uuid.NewRandom()).String(),
		Address:   "old@example.com",
		CreatedAt: time.Now().Add(-40 * 24 * time.Hour),
		ExpiresAt: time.Now().Add(-40 * 24 * time.Hour).Add(10 * time.Minute),
	}
	err := db.SaveAccount(old)
	assert.NoError(t, err)

	recent := tempbox.Account{
		ID:        uuid.Must(uuid.NewRandom()).String(),
		Address:   "recent@example.com",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}
	err = db.SaveAccount(recent)
	assert.NoError(t, err)

	count, err := db.PruneAccounts(time.Now().Add(-30 * 24 * time.Hour))
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = db.GetAccountByID(old.ID)
	assert.Equal(t, tempbox.ErrAccountDoesntExist, err)
}
