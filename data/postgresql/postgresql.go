package postgresql

import (
	"github.com/ShovonSheikh/temp-box/data/sqldb"
	"github.com/ShovonSheikh/temp-box/tempbox"

	_ "github.com/lib/pq" // import lib pq here rather than main
)

// PostgreSQL implements the database interface for postgres
type PostgreSQL struct {
	*sqldb.SQLDatabase
}

// GetPostgreSQLDB returns a new postgres db or panics
func GetPostgreSQLDB(dbURL string, limits tempbox.Limits) *PostgreSQL {
	return &PostgreSQL{sqldb.New("postgres", dbURL, limits)}
}
