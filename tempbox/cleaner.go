package tempbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShovonSheikh/temp-box/mailtm"
	"github.com/ShovonSheikh/temp-box/metrics"
)

// ErrSweepRunning is returned by Sweep when another sweep is already in
// flight. The concurrent trigger is a no-op.
var ErrSweepRunning = errors.New("a cleanup sweep is already running")

// CleanerConfig bundles the sweeper's knobs
type CleanerConfig struct {
	// Interval is how often scheduled sweeps run
	Interval time.Duration
	// StartupDelay is how long after startup the first sweep runs
	StartupDelay time.Duration
	// BatchSize bounds how many accounts one batch deletes concurrently
	BatchSize int
	// BatchPause is the rest between batches, bounding request rate
	BatchPause time.Duration
	// MaxAttempts is how many remote delete tries one account gets per sweep
	MaxAttempts int
	// RetryBackoff is the base delay between attempts, doubled each time
	RetryBackoff time.Duration
	// MaxRetention evicts accounts this much older than now even if their
	// expiry never triggered
	MaxRetention time.Duration
	// PruneAfter hard deletes local records older than this
	PruneAfter time.Duration
}

// DefaultCleanerConfig returns the config used when fields are left zero
func DefaultCleanerConfig() CleanerConfig {
	return CleanerConfig{
		Interval:     time.Hour,
		StartupDelay: 30 * time.Second,
		BatchSize:    5,
		BatchPause:   2 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: time.Second,
		MaxRetention: 7 * 24 * time.Hour,
		PruneAfter:   30 * 24 * time.Hour,
	}
}

func (c CleanerConfig) withDefaults() CleanerConfig {
	def := DefaultCleanerConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.StartupDelay <= 0 {
		c.StartupDelay = def.StartupDelay
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = def.BatchPause
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.MaxRetention <= 0 {
		c.MaxRetention = def.MaxRetention
	}
	if c.PruneAfter <= 0 {
		c.PruneAfter = def.PruneAfter
	}
	return c
}

// SweepResult summarises one sweep
type SweepResult struct {
	Candidates int `json:"candidates"`
	Deleted    int `json:"deleted"`
	Failed     int `json:"failed"`
	Pruned     int `json:"pruned"`
}

// Cleaner periodically sweeps locally known accounts for ones past expiry and
// deletes them from the provider, independent of whether anyone is viewing
// that inbox.
type Cleaner struct {
	db       Database
	provider Provider
	log      *zap.Logger
	cfg      CleanerConfig

	// clock is swapped out in tests
	clock func() time.Time

	mu      sync.Mutex
	running bool
}

// NewCleaner returns a sweeper. Run starts the schedule; Sweep can also be
// called directly.
func NewCleaner(db Database, provider Provider, log *zap.Logger, cfg CleanerConfig) *Cleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cleaner{
		db:       db,
		provider: provider,
		log:      log,
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
	}
}

// SetClock replaces the time source. Only for tests.
func (c *Cleaner) SetClock(clock func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// Running reports whether a sweep is currently executing
func (c *Cleaner) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Run executes sweeps on a schedule until ctx is cancelled: once shortly
// after startup, then every configured interval.
func (c *Cleaner) Run(ctx context.Context) {
	startup := time.NewTimer(c.cfg.StartupDelay)
	defer startup.Stop()

	select {
	case <-ctx.Done():
		return
	case <-startup.C:
		c.sweepAndLog(ctx)
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepAndLog(ctx)
		}
	}
}

func (c *Cleaner) sweepAndLog(ctx context.Context) {
	res, err := c.Sweep(ctx)
	if err != nil {
		if !errors.Is(err, ErrSweepRunning) {
			c.log.Error("cleanup sweep failed", zap.Error(err))
		}
		return
	}
	c.log.Info("cleanup sweep finished",
		zap.Int("candidates", res.Candidates),
		zap.Int("deleted", res.Deleted),
		zap.Int("failed", res.Failed),
		zap.Int("pruned", res.Pruned))
}

// Sweep scans for cleanup candidates and attempts remote deletion in batches.
// A second concurrent call returns ErrSweepRunning without doing anything.
// Per-account failures never fail the sweep; the account stays eligible for
// the next one.
func (c *Cleaner) Sweep(ctx context.Context) (SweepResult, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return SweepResult{}, ErrSweepRunning
	}
	c.running = true
	now := c.clock()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	metrics.CleanupRuns.Inc()
	started := time.Now()
	defer func() {
		metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	candidates, err := c.db.ListCleanupCandidates(now, now.Add(-c.cfg.MaxRetention))
	if err != nil {
		return SweepResult{}, fmt.Errorf("sweep: failed to list candidates: %w", err)
	}

	res := SweepResult{Candidates: len(candidates)}

	for start := 0; start < len(candidates); start += c.cfg.BatchSize {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		end := start + c.cfg.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		// fire the batch's deletions concurrently and collect the results
		outcomes := make([]error, len(batch))
		var wg sync.WaitGroup
		for i, account := range batch {
			wg.Add(1)
			go func(i int, account Account) {
				defer wg.Done()
				outcomes[i] = c.cleanupAccount(ctx, account, now)
			}(i, account)
		}
		wg.Wait()

		for _, err := range outcomes {
			if err != nil {
				res.Failed++
			} else {
				res.Deleted++
			}
		}

		if end < len(candidates) {
			if err := sleepCtx(ctx, c.cfg.BatchPause); err != nil {
				return res, err
			}
		}
	}

	pruned, err := c.db.PruneAccounts(now.Add(-c.cfg.PruneAfter))
	if err != nil {
		c.log.Warn("failed to prune stale local records", zap.Error(err))
	}
	res.Pruned = pruned

	if _, err := c.RefreshStats(ctx); err != nil {
		c.log.Warn("failed to refresh cleanup stats", zap.Error(err))
	}

	return res, nil
}

// cleanupAccount makes one sweep's worth of deletion attempts for a single
// account: bounded retries with exponential backoff, then bookkeeping either
// way.
func (c *Cleaner) cleanupAccount(ctx context.Context, account Account, now time.Time) error {
	reason := ReasonExpired
	if !account.Expired(now) {
		reason = ReasonRetention
	}

	c.auditEntry(account.ID, AuditCleanupAttempted, reason)

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.cfg.RetryBackoff<<uint(attempt-1)); err != nil {
				return err
			}
		}

		lastErr = c.deleteRemote(ctx, account)
		if lastErr == nil || mailtm.IsAccountGone(lastErr) {
			lastErr = nil
			break
		}
	}

	if lastErr != nil {
		metrics.CleanupResults.WithLabelValues("failed").Inc()
		if err := c.db.IncrementCleanupAttempts(account.ID); err != nil {
			c.log.Warn("failed to bump cleanup attempts", zap.String("account_id", account.ID), zap.Error(err))
		}
		c.auditEntry(account.ID, AuditCleanupFailed, lastErr.Error())
		c.cleanupEntry(account.ID, reason, false, lastErr)
		c.log.Warn("cleanup failed, account stays eligible",
			zap.String("account_id", account.ID),
			zap.Int("previous_attempts", account.CleanupAttempts),
			zap.Error(lastErr))
		return lastErr
	}

	if err := c.db.MarkAccountDeleted(account.ID, c.clockNow()); err != nil {
		c.log.Warn("failed to mark account deleted", zap.String("account_id", account.ID), zap.Error(err))
	}
	metrics.CleanupResults.WithLabelValues("deleted").Inc()
	metrics.ActiveAccounts.Dec()
	c.auditEntry(account.ID, AuditDeleted, "deleted by cleanup sweep")
	c.cleanupEntry(account.ID, reason, true, nil)
	return nil
}

// deleteRemote deletes the account on the provider, re-authenticating with
// the stored credentials when the persisted bearer token no longer works
func (c *Cleaner) deleteRemote(ctx context.Context, account Account) error {
	err := c.provider.DeleteAccount(ctx, account.Token, account.ID)
	if err == nil || mailtm.IsNotFound(err) {
		return err
	}

	if !mailtm.IsUnauthorized(err) {
		return err
	}

	bearer, err := c.provider.Token(ctx, account.Address, account.Password)
	if err != nil {
		return fmt.Errorf("re-auth failed: %w", err)
	}

	return c.provider.DeleteAccount(ctx, bearer, account.ID)
}

// RefreshStats recomputes the aggregate stats snapshot and persists it
func (c *Cleaner) RefreshStats(ctx context.Context) (CleanupStats, error) {
	accounts, err := c.db.ListAccounts()
	if err != nil {
		return CleanupStats{}, fmt.Errorf("refresh stats: failed to list accounts: %w", err)
	}

	stats := ComputeStats(accounts, c.clockNow())
	if err := c.db.SaveCleanupStats(stats); err != nil {
		return CleanupStats{}, fmt.Errorf("refresh stats: failed to persist: %w", err)
	}

	live := 0
	for _, a := range accounts {
		if !a.Deleted && !a.Expired(stats.LastRunAt) {
			live++
		}
	}
	metrics.ActiveAccounts.Set(float64(live))

	return stats, nil
}

func (c *Cleaner) clockNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock()
}

func (c *Cleaner) auditEntry(accountID string, action AuditAction, detail string) {
	entry := AuditEntry{
		ID:        newID(),
		AccountID: accountID,
		Action:    action,
		At:        c.clockNow(),
		Detail:    detail,
	}
	if err := c.db.SaveAuditEntry(entry); err != nil {
		c.log.Warn("failed to save audit entry", zap.String("account_id", accountID), zap.Error(err))
	}
}

func (c *Cleaner) cleanupEntry(accountID, reason string, success bool, cause error) {
	entry := CleanupEntry{
		AccountID: accountID,
		At:        c.clockNow(),
		Reason:    reason,
		Success:   success,
	}
	if cause != nil {
		entry.Error = cause.Error()
	}
	if err := c.db.SaveCleanupEntry(entry); err != nil {
		c.log.Warn("failed to save cleanup entry", zap.String("account_id", accountID), zap.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
