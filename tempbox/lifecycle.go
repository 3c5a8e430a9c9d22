package tempbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ShovonSheikh/temp-box/credgen"
	"github.com/ShovonSheikh/temp-box/mailtm"
	"github.com/ShovonSheikh/temp-box/metrics"
)

// State is where an inbox is in its lifecycle
type State int

// Lifecycle states. An inbox moves Anonymous -> Creating -> Active and ends
// up back at Anonymous via Expired or Deleted.
const (
	StateAnonymous State = iota
	StateCreating
	StateActive
	StateExpired
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateCreating:
		return "creating"
	case StateActive:
		return "active"
	case StateExpired:
		return "expired"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ErrNoDomains is returned by Create when the provider offers no usable domain
var ErrNoDomains = errors.New("no domains available to create an inbox")

// ErrNotActive is returned by inbox operations when there is no live inbox
var ErrNotActive = errors.New("inbox is not active")

// ErrPollFailed is surfaced once message polling has exhausted its retries
var ErrPollFailed = errors.New("message polling failed after retries")

// LifecycleConfig bundles the knobs for a single inbox's state machine
type LifecycleConfig struct {
	// TTL is how long a fresh inbox lives
	TTL time.Duration
	// EmptyPollInterval is the message poll interval while the inbox is empty
	EmptyPollInterval time.Duration
	// ActivePollInterval is the poll interval once messages exist
	ActivePollInterval time.Duration
	// CountdownTick is how often the expiry watch re-checks the clock
	CountdownTick time.Duration
	// PollRetries is how many retries a failed poll gets before the error is surfaced
	PollRetries int
	// PollBackoff is the base delay between poll retries, doubled each attempt
	// and capped at PollBackoffCap
	PollBackoff    time.Duration
	PollBackoffCap time.Duration
}

// DefaultLifecycleConfig returns the config used when fields are left zero
func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		TTL:                10 * time.Minute,
		EmptyPollInterval:  5 * time.Second,
		ActivePollInterval: 15 * time.Second,
		CountdownTick:      time.Second,
		PollRetries:        3,
		PollBackoff:        2 * time.Second,
		PollBackoffCap:     30 * time.Second,
	}
}

func (c LifecycleConfig) withDefaults() LifecycleConfig {
	def := DefaultLifecycleConfig()
	if c.TTL <= 0 {
		c.TTL = def.TTL
	}
	if c.EmptyPollInterval <= 0 {
		c.EmptyPollInterval = def.EmptyPollInterval
	}
	if c.ActivePollInterval <= 0 {
		c.ActivePollInterval = def.ActivePollInterval
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = def.CountdownTick
	}
	if c.PollRetries <= 0 {
		c.PollRetries = def.PollRetries
	}
	if c.PollBackoff <= 0 {
		c.PollBackoff = def.PollBackoff
	}
	if c.PollBackoffCap <= 0 {
		c.PollBackoffCap = def.PollBackoffCap
	}
	return c
}

// Lifecycle owns the state machine for one inbox and keeps it in sync with
// the remote provider. All methods are safe for concurrent use.
type Lifecycle struct {
	provider Provider
	db       Database
	gen      *credgen.Generator
	log      *zap.Logger
	cfg      LifecycleConfig

	// clock is swapped out in tests
	clock func() time.Time

	// onReset is called once the inbox has been torn down, with the account
	// id that was released
	onReset func(accountID string)

	mu       sync.Mutex
	state    State
	account  Account
	messages []mailtm.Message
	fetched  bool
	lastErr  error
	cancel   context.CancelFunc
}

// NewLifecycle returns an inbox state machine in the anonymous state
func NewLifecycle(provider Provider, db Database, gen *credgen.Generator, log *zap.Logger, cfg LifecycleConfig) *Lifecycle {
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{
		provider: provider,
		db:       db,
		gen:      gen,
		log:      log,
		cfg:      cfg.withDefaults(),
		clock:    time.Now,
		state:    StateAnonymous,
	}
}

// SetClock replaces the time source. Only for tests.
func (l *Lifecycle) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

// OnReset registers a callback invoked after the inbox returns to anonymous
func (l *Lifecycle) OnReset(fn func(accountID string)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReset = fn
}

// State returns the current lifecycle state
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Account returns a copy of the current account record
func (l *Lifecycle) Account() Account {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account
}

// Remaining returns the time left before expiry
func (l *Lifecycle) Remaining() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.account.Remaining(l.clock())
}

// Err returns the last surfaced polling error, if any
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Create provisions a new remote account: pick a domain, generate
// credentials, register, fetch a token and the canonical record, then persist
// and start the expiry watch and message poll loops. On any failure the inbox
// is left anonymous and nothing is persisted.
func (l *Lifecycle) Create(ctx context.Context) (Account, error) {
	l.mu.Lock()
	if l.state != StateAnonymous {
		l.mu.Unlock()
		return Account{}, fmt.Errorf("create inbox: already %v", l.state)
	}
	l.state = StateCreating
	l.mu.Unlock()

	account, err := l.create(ctx)
	if err != nil {
		l.mu.Lock()
		l.state = StateAnonymous
		l.mu.Unlock()
		return Account{}, err
	}

	watchCtx, cancel := context.WithCancel(context.Background())

	l.mu.Lock()
	l.state = StateActive
	l.account = account
	l.messages = nil
	l.fetched = false
	l.lastErr = nil
	l.cancel = cancel
	l.mu.Unlock()

	go l.watch(watchCtx)
	go l.pollLoop(watchCtx)

	metrics.AccountsCreated.Inc()
	metrics.ActiveAccounts.Inc()

	return account, nil
}

func (l *Lifecycle) create(ctx context.Context) (Account, error) {
	domains, err := l.provider.Domains(ctx)
	if err != nil {
		return Account{}, fmt.Errorf("create inbox: failed to list domains: %w", err)
	}

	domain, err := l.gen.PickDomain(domains)
	if err != nil {
		return Account{}, ErrNoDomains
	}

	address := l.gen.LocalPart() + "@" + domain
	password := l.gen.Password()

	remote, err := l.provider.CreateAccount(ctx, address, password)
	if err != nil {
		return Account{}, fmt.Errorf("create inbox: failed to create remote account: %w", err)
	}

	bearer, err := l.provider.Token(ctx, address, password)
	if err != nil {
		return Account{}, fmt.Errorf("create inbox: failed to get token: %w", err)
	}

	canonical, err := l.provider.GetAccount(ctx, bearer)
	if err != nil {
		return Account{}, fmt.Errorf("create inbox: failed to fetch account: %w", err)
	}

	now := l.now()
	account := Account{
		ID:             canonical.ID,
		Address:        canonical.Address,
		Password:       password,
		Token:          bearer,
		CreatedAt:      now,
		ExpiresAt:      now.Add(l.cfg.TTL),
		LastAccessedAt: now,
	}

	if remote.ID != "" && remote.ID != canonical.ID {
		l.log.Warn("created account id differs from canonical record",
			zap.String("created", remote.ID), zap.String("canonical", canonical.ID))
	}

	if err := l.db.SaveAccount(account); err != nil {
		return Account{}, fmt.Errorf("create inbox: failed to persist account: %w", err)
	}
	l.audit(account.ID, AuditCreated, "address "+account.Address)

	l.log.Info("created inbox",
		zap.String("account_id", account.ID),
		zap.String("address", account.Address),
		zap.Time("expires_at", account.ExpiresAt))

	return account, nil
}

// Messages returns the cached message list, fetching it first if no poll has
// completed yet. Access is recorded in the audit log.
func (l *Lifecycle) Messages(ctx context.Context) ([]mailtm.Message, error) {
	l.mu.Lock()
	if l.state != StateActive {
		l.mu.Unlock()
		return nil, ErrNotActive
	}
	fetched := l.fetched
	l.mu.Unlock()

	if !fetched {
		if err := l.Refresh(ctx); err != nil {
			return nil, err
		}
	}

	l.mu.Lock()
	accountID := l.account.ID
	msgs := make([]mailtm.Message, len(l.messages))
	copy(msgs, l.messages)
	l.mu.Unlock()

	if accountID != "" {
		l.audit(accountID, AuditAccessed, "")
	}
	return msgs, nil
}

// Refresh polls the provider for the message list, retrying transient
// failures a bounded number of times with capped exponential backoff.
func (l *Lifecycle) Refresh(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateActive {
		l.mu.Unlock()
		return ErrNotActive
	}
	account := l.account
	l.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= l.cfg.PollRetries; attempt++ {
		if attempt > 0 {
			if err := l.sleep(ctx, l.pollDelay(attempt-1)); err != nil {
				return err
			}
		}

		msgs, err := l.provider.Messages(ctx, account.Token)
		if err == nil {
			l.storeMessages(msgs)
			return nil
		}

		if mailtm.IsAccountGone(err) {
			l.log.Info("account gone on provider, resetting inbox",
				zap.String("account_id", account.ID))
			l.reset(AuditDeleted, "account no longer exists on provider")
			return err
		}

		lastErr = err
	}

	metrics.PollFailures.Inc()
	l.mu.Lock()
	l.lastErr = fmt.Errorf("%w: %v", ErrPollFailed, lastErr)
	err := l.lastErr
	l.mu.Unlock()
	return err
}

func (l *Lifecycle) storeMessages(msgs []mailtm.Message) {
	metrics.MessagesFetched.Add(float64(len(msgs)))

	l.mu.Lock()
	l.messages = msgs
	l.fetched = true
	l.lastErr = nil
	account := l.account
	now := l.clock()
	l.mu.Unlock()

	if account.ID == "" {
		return
	}
	if err := l.db.RecordAccountAccess(account.ID, now, len(msgs)); err != nil {
		l.log.Warn("failed to record account access", zap.String("account_id", account.ID), zap.Error(err))
	}
}

// Message fetches a single message with its bodies and rewrites links in the
// HTML parts so they open externally
func (l *Lifecycle) Message(ctx context.Context, id string) (mailtm.Message, error) {
	l.mu.Lock()
	if l.state != StateActive {
		l.mu.Unlock()
		return mailtm.Message{}, ErrNotActive
	}
	account := l.account
	l.mu.Unlock()

	msg, err := l.provider.Message(ctx, account.Token, id)
	if err != nil {
		return mailtm.Message{}, fmt.Errorf("get message: %w", err)
	}

	for i, html := range msg.HTML {
		rewritten, err := rewriteMessageHTML(html)
		if err != nil {
			l.log.Warn("failed to rewrite message html", zap.String("message_id", id), zap.Error(err))
			continue
		}
		msg.HTML[i] = rewritten
	}

	return msg, nil
}

// DeleteMessage deletes one message and invalidates the cached list
func (l *Lifecycle) DeleteMessage(ctx context.Context, id string) error {
	l.mu.Lock()
	if l.state != StateActive {
		l.mu.Unlock()
		return ErrNotActive
	}
	account := l.account
	l.mu.Unlock()

	if err := l.provider.DeleteMessage(ctx, account.Token, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	l.mu.Lock()
	l.fetched = false
	l.messages = nil
	l.mu.Unlock()
	return nil
}

// Extend pushes the expiry out by d. This is the only sanctioned mutation of
// an inbox's expiry time.
func (l *Lifecycle) Extend(ctx context.Context, d time.Duration) (Account, error) {
	l.mu.Lock()
	if l.state != StateActive {
		l.mu.Unlock()
		return Account{}, ErrNotActive
	}
	l.account.ExpiresAt = l.account.ExpiresAt.Add(d)
	account := l.account
	l.mu.Unlock()

	if err := l.db.SaveAccount(account); err != nil {
		return Account{}, fmt.Errorf("extend inbox: failed to persist: %w", err)
	}
	return account, nil
}

// Delete is the user initiated teardown. The remote delete is attempted and
// logged, but local state is cleared regardless of the outcome.
func (l *Lifecycle) Delete(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateActive && l.state != StateExpired {
		l.mu.Unlock()
		return ErrNotActive
	}
	account := l.account
	l.mu.Unlock()

	err := l.provider.DeleteAccount(ctx, account.Token, account.ID)
	if err != nil && !mailtm.IsAccountGone(err) {
		l.log.Warn("remote delete failed, clearing local state anyway",
			zap.String("account_id", account.ID), zap.Error(err))
	} else {
		err = nil
	}

	l.markDeleted(account.ID, err)
	l.reset(AuditDeleted, "user requested deletion")
	return nil
}

// expire runs the same best-effort cleanup path as Delete when the countdown
// reaches zero
func (l *Lifecycle) expire() {
	l.mu.Lock()
	if l.state != StateActive {
		l.mu.Unlock()
		return
	}
	l.state = StateExpired
	account := l.account
	l.mu.Unlock()

	l.log.Info("inbox expired", zap.String("account_id", account.ID), zap.String("address", account.Address))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := l.provider.DeleteAccount(ctx, account.Token, account.ID)
	if err != nil && !mailtm.IsAccountGone(err) {
		// the cleaner will retry this account on its next sweep
		l.log.Warn("remote delete on expiry failed",
			zap.String("account_id", account.ID), zap.Error(err))
	} else {
		l.markDeleted(account.ID, nil)
	}

	l.reset(AuditExpired, "ttl reached zero")
}

func (l *Lifecycle) markDeleted(accountID string, remoteErr error) {
	if remoteErr != nil {
		return
	}
	if err := l.db.MarkAccountDeleted(accountID, l.now()); err != nil {
		l.log.Warn("failed to mark account deleted", zap.String("account_id", accountID), zap.Error(err))
	}
	metrics.ActiveAccounts.Dec()
}

// reset clears all in-memory inbox state and returns to anonymous
func (l *Lifecycle) reset(action AuditAction, detail string) {
	l.mu.Lock()
	cancel := l.cancel
	accountID := l.account.ID
	onReset := l.onReset
	l.cancel = nil
	l.account = Account{}
	l.messages = nil
	l.fetched = false
	l.state = StateAnonymous
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if accountID != "" {
		l.audit(accountID, action, detail)
	}
	if onReset != nil && accountID != "" {
		onReset(accountID)
	}
}

// watch is the countdown loop: re-check the clock every tick and trigger
// expiry once the ttl passes
func (l *Lifecycle) watch(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			expired := l.state == StateActive && l.account.Expired(l.clock())
			l.mu.Unlock()

			if expired {
				l.expire()
				return
			}
		}
	}
}

// pollLoop refreshes the message list on an adaptive interval: aggressive
// while the inbox is empty, relaxed once mail has arrived
func (l *Lifecycle) pollLoop(ctx context.Context) {
	for {
		l.mu.Lock()
		interval := l.cfg.EmptyPollInterval
		if len(l.messages) > 0 {
			interval = l.cfg.ActivePollInterval
		}
		active := l.state == StateActive
		l.mu.Unlock()

		if !active {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if l.State() != StateActive {
			return
		}

		if err := l.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Debug("background poll failed", zap.Error(err))
		}
	}
}

func (l *Lifecycle) pollDelay(attempt int) time.Duration {
	delay := l.cfg.PollBackoff << uint(attempt)
	if delay > l.cfg.PollBackoffCap {
		delay = l.cfg.PollBackoffCap
	}
	return delay
}

func (l *Lifecycle) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Lifecycle) now() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock()
}

func (l *Lifecycle) audit(accountID string, action AuditAction, detail string) {
	entry := AuditEntry{
		ID:        newID(),
		AccountID: accountID,
		Action:    action,
		At:        l.now(),
		Detail:    detail,
	}
	if err := l.db.SaveAuditEntry(entry); err != nil {
		l.log.Warn("failed to save audit entry",
			zap.String("account_id", accountID), zap.String("action", string(action)), zap.Error(err))
	}
}
