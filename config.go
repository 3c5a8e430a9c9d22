package main

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/ShovonSheikh/temp-box/data/dynamodb"
	"github.com/ShovonSheikh/temp-box/data/inmemory"
	"github.com/ShovonSheikh/temp-box/data/jsonfile"
	"github.com/ShovonSheikh/temp-box/data/postgresql"
	"github.com/ShovonSheikh/temp-box/data/sqlite3"
	"github.com/ShovonSheikh/temp-box/logging"
	"github.com/ShovonSheikh/temp-box/tempbox"
)

const (
	inMemory   = "memory"
	jsonFile   = "json"
	sqLite3    = "sqlite3"
	postgreSQL = "postgres"
	dynamoDB   = "dynamo"
)

type config struct {
	Key      string `env:"KEY,required"`
	AdminKey string `env:"ADMIN_KEY"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	Developing bool   `env:"DEVELOPING" envDefault:"false"`

	ProviderURL string `env:"PROVIDER_URL" envDefault:"https://api.mail.tm"`

	DBType            string `env:"DB_TYPE" envDefault:"memory"`
	DatabaseURL       string `env:"DATABASE_URL"`
	SQLitePath        string `env:"SQLITE_PATH" envDefault:"tempbox.sqlite3"`
	JSONPath          string `env:"JSON_PATH" envDefault:"tempbox.json"`
	DynamoTable       string `env:"DYNAMO_TABLE" envDefault:"accounts"`
	DynamoJournal     string `env:"DYNAMO_JOURNAL_TABLE" envDefault:"journal"`
	MaxAuditEntries   int    `env:"MAX_AUDIT_ENTRIES" envDefault:"500"`
	MaxCleanupEntries int    `env:"MAX_CLEANUP_ENTRIES" envDefault:"200"`

	InboxTTL           time.Duration `env:"INBOX_TTL" envDefault:"10m"`
	EmptyPollInterval  time.Duration `env:"EMPTY_POLL_INTERVAL" envDefault:"5s"`
	ActivePollInterval time.Duration `env:"ACTIVE_POLL_INTERVAL" envDefault:"15s"`

	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	CleanupBatchSize  int           `env:"CLEANUP_BATCH_SIZE" envDefault:"5"`
	CleanupBatchPause time.Duration `env:"CLEANUP_BATCH_PAUSE" envDefault:"2s"`
	CleanupRetries    int           `env:"CLEANUP_RETRIES" envDefault:"3"`
	MaxRetention      time.Duration `env:"MAX_RETENTION" envDefault:"168h"`
	PruneAfter        time.Duration `env:"PRUNE_AFTER" envDefault:"720h"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile    string `env:"LOG_FILE"`
	LogMaxSize int    `env:"LOG_MAX_SIZE_MB" envDefault:"50"`
}

func mustParseConfig() config {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse config from env: %v", err)
	}
	return cfg
}

func (c config) serverConfig() tempbox.Config {
	return tempbox.Config{
		Key:        c.Key,
		AdminKey:   c.AdminKey,
		Developing: c.Developing,
		Lifecycle: tempbox.LifecycleConfig{
			TTL:                c.InboxTTL,
			EmptyPollInterval:  c.EmptyPollInterval,
			ActivePollInterval: c.ActivePollInterval,
		},
		Cleaner: tempbox.CleanerConfig{
			Interval:     c.CleanupInterval,
			BatchSize:    c.CleanupBatchSize,
			BatchPause:   c.CleanupBatchPause,
			MaxAttempts:  c.CleanupRetries,
			MaxRetention: c.MaxRetention,
			PruneAfter:   c.PruneAfter,
		},
	}
}

func (c config) loggingConfig() logging.Config {
	return logging.Config{
		Level:       c.LogLevel,
		Development: c.Developing,
		LogFile:     c.LogFile,
		MaxSizeMB:   c.LogMaxSize,
		MaxBackups:  3,
		MaxAgeDays:  28,
	}
}

func (c config) mustBuildDatabase(logger *zap.Logger) tempbox.Database {
	limits := tempbox.Limits{
		MaxAuditEntries:   c.MaxAuditEntries,
		MaxCleanupEntries: c.MaxCleanupEntries,
	}

	switch c.DBType {
	case inMemory:
		return inmemory.New(limits)
	case jsonFile:
		return jsonfile.New(c.JSONPath, limits, logger.Named("jsonfile"))
	case sqLite3:
		return sqlite3.GetSQLite3DB(c.SQLitePath, limits)
	case postgreSQL:
		if c.DatabaseURL == "" {
			log.Fatal("DATABASE_URL cannot be empty when DB_TYPE=postgres")
		}
		return postgresql.GetPostgreSQLDB(c.DatabaseURL, limits)
	case dynamoDB:
		return dynamodb.GetNewDynamoDB(c.DynamoTable, c.DynamoJournal, limits)
	default:
		log.Fatalf("Unknown DB_TYPE %q", c.DBType)
		return nil
	}
}
