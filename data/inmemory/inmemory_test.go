package inmemory

import (
	"testing"
	"time"

	"github.com/ShovonSheikh/temp-box/data"
	"github.com/ShovonSheikh/temp-box/tempbox"
)

func TestInMemoryDB(t *testing.T) {
	db := New(tempbox.Limits{})

	// iterate over the testing suite and call the function
	for _, f := range data.TestingFuncs {
		f(t, db)
	}
}

func TestInMemory_SmallCaps(t *testing.T) {
	db := New(tempbox.Limits{MaxAuditEntries: 2, MaxCleanupEntries: 2})

	now := time.Now()
	for i := 0; i < 4; i++ {
		entry := tempbox.AuditEntry{
			ID:        string(rune('a' + i)),
			AccountID: "acc",
			Action:    tempbox.AuditAccessed,
			At:        now.Add(time.Duration(i) * time.Second),
		}
		if err := db.SaveAuditEntry(entry); err != nil {
			t.Fatalf("TestInMemory_SmallCaps: failed to save audit entry: %v", err)
		}
	}

	entries, err := db.ListAuditEntries()
	if err != nil {
		t.Fatalf("TestInMemory_SmallCaps: failed to list audit entries: %v", err)
	}

	if len(entries) != 2 {
		t.Errorf("TestInMemory_SmallCaps: wrong audit count. Expected 2, got %v", len(entries))
	}

	if entries[0].ID != "c" || entries[1].ID != "d" {
		t.Errorf("TestInMemory_SmallCaps: wrong survivors: %v", entries)
	}
}
