package dynamodb

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/google/uuid"

	"github.com/ShovonSheikh/temp-box/tempbox"
)

var _ tempbox.Database = &DynamoDB{}

// journal partition keys. Accounts get their own table; the audit log, cleanup
// log and stats snapshot share a journal table partitioned by log name with a
// time ordered sort key.
const (
	journalAudit   = "audit"
	journalCleanup = "cleanup"
	journalStats   = "stats"
	statsSortKey   = "snapshot"
)

// DynamoDB implements the db interface
type DynamoDB struct {
	dynDB             *dynamodb.DynamoDB
	accountsTableName string
	journalTableName  string
	addressIndexName  string
	limits            tempbox.Limits
}

// GetNewDynamoDB gets a new dynamodb database or panics
func GetNewDynamoDB(accountsTable string, journalTable string, limits tempbox.Limits) *DynamoDB {
	awsSession := session.Must(session.NewSession())
	dynDB := dynamodb.New(awsSession)

	return &DynamoDB{
		dynDB:             dynDB,
		accountsTableName: accountsTable,
		journalTableName:  journalTable,
		addressIndexName:  "address-index",
		limits:            limits.WithDefaults(),
	}
}

// Start implements tempbox.Database Start()
func (d *DynamoDB) Start() error {
	return nil
}

// SaveAccount saves a given account to dynamodb
func (d *DynamoDB) SaveAccount(a tempbox.Account) error {
	attributeValues, err := dynamodbattribute.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to marshal account to attribute value: %w", err)
	}

	_, err = d.dynDB.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(d.accountsTableName),
		Item:      attributeValues,
	})
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to put account to dynamodb: %w", err)
	}

	return nil
}

// GetAccountByID gets an account by the given account id
func (d *DynamoDB) GetAccountByID(id string) (tempbox.Account, error) {
	o, err := d.dynDB.GetItem(&dynamodb.GetItemInput{
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
		TableName: aws.String(d.accountsTableName),
	})
	if err != nil {
		return tempbox.Account{}, fmt.Errorf("DynamoDB - failed to get account: %w", err)
	}

	if len(o.Item) == 0 {
		return tempbox.Account{}, tempbox.ErrAccountDoesntExist
	}

	var account tempbox.Account
	err = dynamodbattribute.UnmarshalMap(o.Item, &account)
	if err != nil {
		return tempbox.Account{}, fmt.Errorf("DynamoDB - failed to unmarshal account: %w", err)
	}

	return account, nil
}

type secondaryIndexAccount struct {
	ID      string `dynamodbav:"id"`
	Address string `dynamodbav:"address"`
}

func (d *DynamoDB) queryAddressIndex(address string) ([]secondaryIndexAccount, error) {
	queryInput := &dynamodb.QueryInput{
		KeyConditionExpression: aws.String("address = :a"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":a": {
				S: aws.String(address),
			},
		},
		IndexName: aws.String(d.addressIndexName),
		TableName: aws.String(d.accountsTableName),
	}

	res, err := d.dynDB.Query(queryInput)
	if err != nil {
		return nil, fmt.Errorf("failed to query address index: %w", err)
	}

	var results []secondaryIndexAccount
	err = dynamodbattribute.UnmarshalListOfMaps(res.Items, &results)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal address index query: %w", err)
	}

	return results, nil
}

// GetAccountByAddress gets an account by the given address
func (d *DynamoDB) GetAccountByAddress(address string) (tempbox.Account, error) {
	res, err := d.queryAddressIndex(address)
	if err != nil {
		return tempbox.Account{}, fmt.Errorf("DynamoDB - failed to get account by address: %w", err)
	}
	if len(res) == 0 {
		return tempbox.Account{}, tempbox.ErrAccountDoesntExist
	}

	return d.GetAccountByID(res[0].ID)
}

func (d *DynamoDB) scanAccounts() ([]tempbox.Account, error) {
	var accounts []tempbox.Account
	err := d.dynDB.ScanPages(&dynamodb.ScanInput{
		TableName: aws.String(d.accountsTableName),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		var batch []tempbox.Account
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return false
		}
		accounts = append(accounts, batch...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("DynamoDB - failed to scan accounts: %w", err)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})

	return accounts, nil
}

// ListAccounts returns all locally known accounts
func (d *DynamoDB) ListAccounts() ([]tempbox.Account, error) {
	return d.scanAccounts()
}

// ListCleanupCandidates returns not-deleted accounts past expiry or past the
// retention cutoff
func (d *DynamoDB) ListCleanupCandidates(expiredBefore time.Time, createdBefore time.Time) ([]tempbox.Account, error) {
	accounts, err := d.scanAccounts()
	if err != nil {
		return nil, err
	}

	var candidates []tempbox.Account
	for _, a := range accounts {
		if a.Deleted {
			continue
		}
		if !a.ExpiresAt.After(expiredBefore) || !a.CreatedAt.After(createdBefore) {
			candidates = append(candidates, a)
		}
	}
	return candidates, nil
}

// MarkAccountDeleted flags the account as deleted
func (d *DynamoDB) MarkAccountDeleted(id string, at time.Time) error {
	u := &dynamodb.UpdateItemInput{
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]*string{
			"#D":  aws.String("deleted"),
			"#DA": aws.String("deleted_at"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":d": {
				BOOL: aws.Bool(true),
			},
			":da": {
				N: aws.String(fmt.Sprintf("%d", at.Unix())),
			},
		},
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
		TableName:        aws.String(d.accountsTableName),
		UpdateExpression: aws.String("SET #D = :d, #DA = :da"),
	}

	_, err := d.dynDB.UpdateItem(u)
	if err != nil {
		if strings.Contains(err.Error(), dynamodb.ErrCodeConditionalCheckFailedException) {
			return tempbox.ErrAccountDoesntExist
		}
		return fmt.Errorf("DynamoDB - failed to mark account deleted: %w", err)
	}

	return nil
}

// RecordAccountAccess bumps the last accessed time and message count
func (d *DynamoDB) RecordAccountAccess(id string, at time.Time, messageCount int) error {
	u := &dynamodb.UpdateItemInput{
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]*string{
			"#LA": aws.String("last_accessed_at"),
			"#MC": aws.String("message_count"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":la": {
				N: aws.String(fmt.Sprintf("%d", at.Unix())),
			},
			":mc": {
				N: aws.String(fmt.Sprintf("%d", messageCount)),
			},
		},
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
		TableName:        aws.String(d.accountsTableName),
		UpdateExpression: aws.String("SET #LA = :la, #MC = :mc"),
	}

	_, err := d.dynDB.UpdateItem(u)
	if err != nil {
		if strings.Contains(err.Error(), dynamodb.ErrCodeConditionalCheckFailedException) {
			return tempbox.ErrAccountDoesntExist
		}
		return fmt.Errorf("DynamoDB - failed to record account access: %w", err)
	}

	return nil
}

// IncrementCleanupAttempts bumps the account's cleanup attempt counter
func (d *DynamoDB) IncrementCleanupAttempts(id string) error {
	u := &dynamodb.UpdateItemInput{
		ConditionExpression: aws.String("attribute_exists(id)"),
		ExpressionAttributeNames: map[string]*string{
			"#CA": aws.String("cleanup_attempts"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":one": {
				N: aws.String("1"),
			},
			":zero": {
				N: aws.String("0"),
			},
		},
		Key: map[string]*dynamodb.AttributeValue{
			"id": {
				S: aws.String(id),
			},
		},
		TableName:        aws.String(d.accountsTableName),
		UpdateExpression: aws.String("SET #CA = if_not_exists(#CA, :zero) + :one"),
	}

	_, err := d.dynDB.UpdateItem(u)
	if err != nil {
		if strings.Contains(err.Error(), dynamodb.ErrCodeConditionalCheckFailedException) {
			return tempbox.ErrAccountDoesntExist
		}
		return fmt.Errorf("DynamoDB - failed to increment cleanup attempts: %w", err)
	}

	return nil
}

// journalItem wraps a serialized log entry. The sort key orders entries by
// time with a uuid suffix to keep keys unique within one second.
type journalItem struct {
	Log  string `dynamodbav:"log"`
	Sort string `dynamodbav:"sk"`
}

func journalSortKey(at time.Time) string {
	return fmt.Sprintf("%020d#%s", at.Unix(), uuid.Must(uuid.NewRandom()).String())
}

func (d *DynamoDB) putJournalItem(log string, sk string, entry interface{}) error {
	attributeValues, err := dynamodbattribute.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to marshal journal entry: %w", err)
	}
	attributeValues["log"] = &dynamodb.AttributeValue{S: aws.String(log)}
	attributeValues["sk"] = &dynamodb.AttributeValue{S: aws.String(sk)}

	_, err = d.dynDB.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(d.journalTableName),
		Item:      attributeValues,
	})
	if err != nil {
		return fmt.Errorf("DynamoDB - failed to put journal entry: %w", err)
	}

	return nil
}

func (d *DynamoDB) queryJournal(log string) ([]map[string]*dynamodb.AttributeValue, error) {
	var items []map[string]*dynamodb.AttributeValue
	err := d.dynDB.QueryPages(&dynamodb.QueryInput{
		KeyConditionExpression: aws.String("#L = :l"),
		ExpressionAttributeNames: map[string]*string{
			"#L": aws.String("log"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":l": {
				S: aws.String(log),
			},
		},
		ScanIndexForward: aws.Bool(true),
		TableName:        aws.String(d.journalTableName),
	}, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		items = append(items, page.Items...)
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("DynamoDB - failed to query journal: %w", err)
	}
	return items, nil
}

// trimJournal deletes the oldest entries over the cap
func (d *DynamoDB) trimJournal(log string, max int) error {
	items, err := d.queryJournal(log)
	if err != nil {
		return err
	}

	overflow := len(items) - max
	for i := 0; i < overflow; i++ {
		var ji journalItem
		if err := dynamodbattribute.UnmarshalMap(items[i], &ji); err != nil {
			return fmt.Errorf("DynamoDB - failed to unmarshal journal key: %w", err)
		}
		_, err := d.dynDB.DeleteItem(&dynamodb.DeleteItemInput{
			Key: map[string]*dynamodb.AttributeValue{
				"log": {S: aws.String(ji.Log)},
				"sk":  {S: aws.String(ji.Sort)},
			},
			TableName: aws.String(d.journalTableName),
		})
		if err != nil {
			return fmt.Errorf("DynamoDB - failed to trim journal: %w", err)
		}
	}

	return nil
}

// SaveAuditEntry appends to the audit log and trims it back to the cap
func (d *DynamoDB) SaveAuditEntry(e tempbox.AuditEntry) error {
	if err := d.putJournalItem(journalAudit, journalSortKey(e.At), e); err != nil {
		return err
	}
	return d.trimJournal(journalAudit, d.limits.MaxAuditEntries)
}

// ListAuditEntries returns the audit log oldest first
func (d *DynamoDB) ListAuditEntries() ([]tempbox.AuditEntry, error) {
	items, err := d.queryJournal(journalAudit)
	if err != nil {
		return nil, err
	}

	entries := []tempbox.AuditEntry{}
	err = dynamodbattribute.UnmarshalListOfMaps(items, &entries)
	if err != nil {
		return nil, fmt.Errorf("DynamoDB - failed to unmarshal audit entries: %w", err)
	}
	return entries, nil
}

// ListAuditEntriesByAccount returns the audit entries for one account, oldest first
func (d *DynamoDB) ListAuditEntriesByAccount(accountID string) ([]tempbox.AuditEntry, error) {
	all, err := d.ListAuditEntries()
	if err != nil {
		return nil, err
	}

	var entries []tempbox.AuditEntry
	for _, e := range all {
		if e.AccountID == accountID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// SaveCleanupEntry appends to the cleanup log and trims it back to the cap
func (d *DynamoDB) SaveCleanupEntry(e tempbox.CleanupEntry) error {
	if err := d.putJournalItem(journalCleanup, journalSortKey(e.At), e); err != nil {
		return err
	}
	return d.trimJournal(journalCleanup, d.limits.MaxCleanupEntries)
}

// ListCleanupEntries returns the cleanup log oldest first
func (d *DynamoDB) ListCleanupEntries() ([]tempbox.CleanupEntry, error) {
	items, err := d.queryJournal(journalCleanup)
	if err != nil {
		return nil, err
	}

	entries := []tempbox.CleanupEntry{}
	err = dynamodbattribute.UnmarshalListOfMaps(items, &entries)
	if err != nil {
		return nil, fmt.Errorf("DynamoDB - failed to unmarshal cleanup entries: %w", err)
	}
	return entries, nil
}

// SaveCleanupStats replaces the stats snapshot
func (d *DynamoDB) SaveCleanupStats(stats tempbox.CleanupStats) error {
	return d.putJournalItem(journalStats, statsSortKey, stats)
}

// GetCleanupStats returns the latest stats snapshot
func (d *DynamoDB) GetCleanupStats() (tempbox.CleanupStats, error) {
	o, err := d.dynDB.GetItem(&dynamodb.GetItemInput{
		Key: map[string]*dynamodb.AttributeValue{
			"log": {S: aws.String(journalStats)},
			"sk":  {S: aws.String(statsSortKey)},
		},
		TableName: aws.String(d.journalTableName),
	})
	if err != nil {
		return tempbox.CleanupStats{}, fmt.Errorf("DynamoDB - failed to get stats: %w", err)
	}

	if len(o.Item) == 0 {
		return tempbox.CleanupStats{}, nil
	}

	var stats tempbox.CleanupStats
	err = dynamodbattribute.UnmarshalMap(o.Item, &stats)
	if err != nil {
		return tempbox.CleanupStats{}, fmt.Errorf("DynamoDB - failed to unmarshal stats: %w", err)
	}
	return stats, nil
}

// PruneAccounts drops local records created before the cutoff
func (d *DynamoDB) PruneAccounts(olderThan time.Time) (int, error) {
	accounts, err := d.scanAccounts()
	if err != nil {
		return -1, err
	}

	pruned := 0
	for _, a := range accounts {
		if !a.CreatedAt.Before(olderThan) {
			continue
		}
		_, err := d.dynDB.DeleteItem(&dynamodb.DeleteItemInput{
			Key: map[string]*dynamodb.AttributeValue{
				"id": {S: aws.String(a.ID)},
			},
			TableName: aws.String(d.accountsTableName),
		})
		if err != nil {
			return pruned, fmt.Errorf("DynamoDB - failed to prune account: %w", err)
		}
		pruned++
	}

	return pruned, nil
}

// Reset drops all items from both tables
func (d *DynamoDB) Reset() error {
	accounts, err := d.scanAccounts()
	if err != nil {
		return err
	}
	for _, a := range accounts {
		_, err := d.dynDB.DeleteItem(&dynamodb.DeleteItemInput{
			Key: map[string]*dynamodb.AttributeValue{
				"id": {S: aws.String(a.ID)},
			},
			TableName: aws.String(d.accountsTableName),
		})
		if err != nil {
			return fmt.Errorf("DynamoDB - failed to reset accounts: %w", err)
		}
	}

	for _, log := range []string{journalAudit, journalCleanup, journalStats} {
		items, err := d.queryJournal(log)
		if err != nil {
			return err
		}
		for _, item := range items {
			var ji journalItem
			if err := dynamodbattribute.UnmarshalMap(item, &ji); err != nil {
				return fmt.Errorf("DynamoDB - failed to unmarshal journal key: %w", err)
			}
			_, err := d.dynDB.DeleteItem(&dynamodb.DeleteItemInput{
				Key: map[string]*dynamodb.AttributeValue{
					"log": {S: aws.String(ji.Log)},
					"sk":  {S: aws.String(ji.Sort)},
				},
				TableName: aws.String(d.journalTableName),
			})
			if err != nil {
				return fmt.Errorf("DynamoDB - failed to reset journal: %w", err)
			}
		}
	}

	return nil
}

// createDatabase creates the tables for testing
func (d *DynamoDB) createDatabase() error {
	accounts := &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("id"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("address"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("id"),
				KeyType:       aws.String("HASH"),
			},
		},
		GlobalSecondaryIndexes: []*dynamodb.GlobalSecondaryIndex{
			{
				IndexName: aws.String(d.addressIndexName),
				KeySchema: []*dynamodb.KeySchemaElement{
					{
						AttributeName: aws.String("address"),
						KeyType:       aws.String("HASH"),
					},
				},
				Projection: &dynamodb.Projection{
					ProjectionType: aws.String(dynamodb.ProjectionTypeKeysOnly),
				},
				ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
					ReadCapacityUnits:  aws.Int64(5),
					WriteCapacityUnits: aws.Int64(5),
				},
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
		TableName: aws.String(d.accountsTableName),
	}

	journal := &dynamodb.CreateTableInput{
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("log"),
				AttributeType: aws.String("S"),
			},
			{
				AttributeName: aws.String("sk"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("log"),
				KeyType:       aws.String("HASH"),
			},
			{
				AttributeName: aws.String("sk"),
				KeyType:       aws.String("RANGE"),
			},
		},
		ProvisionedThroughput: &dynamodb.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(5),
			WriteCapacityUnits: aws.Int64(5),
		},
		TableName: aws.String(d.journalTableName),
	}

	for _, input := range []*dynamodb.CreateTableInput{accounts, journal} {
		_, err := d.dynDB.CreateTable(input)
		if err != nil {
			if !strings.Contains(err.Error(), dynamodb.ErrCodeResourceInUseException) {
				return err
			}
		}
	}

	return nil
}
