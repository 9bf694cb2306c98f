// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/quotawatch/quotawatch/internal/domain/model"
	"github.com/quotawatch/quotawatch/internal/domain/port/driven"
	"github.com/quotawatch/quotawatch/internal/telemetry"
	"github.com/quotawatch/quotawatch/internal/vault"
)

// ErrCheckInFlight is returned by TriggerCheck when a check for the
// credential is already executing. The caller should surface a
// conflict rather than queue a duplicate.
var ErrCheckInFlight = errors.New("check already in flight for credential")

// ErrCredentialNotFound is returned by TriggerCheck for an unknown
// credential ID.
var ErrCredentialNotFound = errors.New("credential not found")

// errQueueFull is returned internally when the task queue is at
// capacity; the credential is picked up again on the next sweep.
var errQueueFull = errors.New("check queue full")

// CheckConfig tunes the scheduler and worker pool.
type CheckConfig struct {
	// Interval between periodic sweeps over active credentials.
	Interval time.Duration
	// Workers is the fixed worker pool size, independent of
	// credential count.
	Workers int
	// QueueSize bounds the task queue.
	QueueSize int
	// MaxRetries is the number of retries after the initial attempt
	// for transient failures.
	MaxRetries int
	// BackoffInitial and BackoffMax bound the exponential retry delay.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// ProviderSpacing is the minimum gap between dispatches to the
	// same provider.
	ProviderSpacing time.Duration
	// CheckTimeout bounds each individual provider call. A task may
	// consume several timeout-bounded attempts across its retries.
	CheckTimeout time.Duration
	// ShutdownGrace is how long in-flight calls may run after the
	// scheduler context is canceled before being abandoned.
	ShutdownGrace time.Duration
}

func (c *CheckConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 30 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 10 * time.Minute
	}
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
}

// checkTask is one credential check cycle moving through the
// Pending -> Running -> terminal state machine. The task, not the
// attempt, owns the in-flight marker: it stays held across retries so
// a sweep can never double-dispatch a credential mid-backoff.
type checkTask struct {
	credentialID int64
	providerSlug string
	manual       bool

	state    model.CheckState
	attempts int
	backoff  *backoff.ExponentialBackOff

	// lastErr is the transient failure that scheduled the pending
	// retry, kept so a dropped retry can still be recorded.
	lastErr error
}

// CheckService decides when each active credential is checked and
// executes checks with bounded concurrency, per-credential isolation,
// and classified retry. It is constructed once at startup with all
// dependencies injected.
type CheckService struct {
	credentials driven.CredentialStore
	providers   driven.ProviderStore
	history     driven.HistoryStore
	registry    driven.AdapterRegistry
	vault       *vault.Vault
	notifier    *NotifyService
	metrics     *telemetry.Metrics
	cfg         CheckConfig
	logger      *slog.Logger

	queue chan *checkTask

	mu sync.Mutex
	// inFlight enforces at-most-one concurrent check per credential.
	inFlight map[int64]struct{}
	// nextDispatch is the per-provider rate-limit clock: the earliest
	// time the next call to that provider may start.
	nextDispatch map[string]time.Time
	stopped      bool

	// callCtx outlives the scheduler context by ShutdownGrace so
	// in-flight provider calls can finish during shutdown.
	callCtx    context.Context
	cancelCall context.CancelFunc

	wg sync.WaitGroup
}

// NewCheckService creates a CheckService. notifier and metrics may be
// nil; zero config fields take defaults.
func NewCheckService(
	credentials driven.CredentialStore,
	providers driven.ProviderStore,
	history driven.HistoryStore,
	registry driven.AdapterRegistry,
	v *vault.Vault,
	notifier *NotifyService,
	metrics *telemetry.Metrics,
	cfg CheckConfig,
) *CheckService {
	cfg.applyDefaults()

	callCtx, cancelCall := context.WithCancel(context.Background())
	return &CheckService{
		credentials:  credentials,
		providers:    providers,
		history:      history,
		registry:     registry,
		vault:        v,
		notifier:     notifier,
		metrics:      metrics,
		cfg:          cfg,
		logger:       slog.Default(),
		queue:        make(chan *checkTask, cfg.QueueSize),
		inFlight:     make(map[int64]struct{}),
		nextDispatch: make(map[string]time.Time),
		callCtx:      callCtx,
		cancelCall:   cancelCall,
	}
}

// Start runs the worker pool and the periodic sweep. It runs an
// immediate sweep, then sweeps on the configured interval, and blocks
// until ctx is canceled and shutdown completes.
func (s *CheckService) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// shutdown stops accepting tasks, lets in-flight calls finish up to
// the grace deadline, then abandons them. Queued-but-unstarted tasks
// are dropped without side effects.
func (s *CheckService) shutdown() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("shutdown grace exceeded, abandoning in-flight checks")
		s.cancelCall()
		<-done
	}
	s.cancelCall()
	s.logger.Info("check service stopped")
}

// sweep enumerates active credentials and enqueues one task each,
// skipping credentials flagged needs-attention (those stay suppressed
// until edited or manually checked) and credentials already in flight.
func (s *CheckService) sweep(ctx context.Context) {
	start := time.Now()

	creds, err := s.credentials.ListActive(ctx)
	if err != nil {
		s.logger.Error("sweep failed to list credentials", "error", err)
		return
	}

	var enqueued, skipped int
	for _, cred := range creds {
		if ctx.Err() != nil {
			return
		}
		if cred.NeedsAttention {
			skipped++
			continue
		}

		prov, err := s.providers.GetByID(ctx, cred.ProviderID)
		if err != nil || prov == nil {
			s.logger.Error("sweep failed to resolve provider", "credential_id", cred.ID, "provider_id", cred.ProviderID, "error", err)
			continue
		}

		if err := s.enqueueNew(cred.ID, prov.Slug, false); err != nil {
			if !errors.Is(err, ErrCheckInFlight) {
				s.logger.Warn("sweep enqueue failed", "credential_id", cred.ID, "error", err)
			}
			skipped++
			continue
		}
		enqueued++
	}

	s.logger.Info("sweep complete",
		"credentials", len(creds),
		"enqueued", enqueued,
		"skipped", skipped,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// TriggerCheck requests an immediate check for the credential,
// bypassing the periodic tick and any needs-attention suppression.
// Returns ErrCheckInFlight when a check is already running,
// ErrCredentialNotFound for an unknown ID, and
// UnsupportedProviderError before any adapter call when the
// credential's provider has no adapter.
func (s *CheckService) TriggerCheck(ctx context.Context, credentialID int64) error {
	cred, err := s.credentials.GetByID(ctx, credentialID)
	if err != nil {
		return fmt.Errorf("load credential %d: %w", credentialID, err)
	}
	if cred == nil {
		return ErrCredentialNotFound
	}

	prov, err := s.providers.GetByID(ctx, cred.ProviderID)
	if err != nil {
		return fmt.Errorf("load provider %d: %w", cred.ProviderID, err)
	}
	if prov == nil {
		return &model.UnsupportedProviderError{Slug: fmt.Sprintf("provider#%d", cred.ProviderID)}
	}
	if _, err := s.registry.Resolve(prov.Slug); err != nil {
		return err
	}

	if err := s.enqueueNew(cred.ID, prov.Slug, true); err != nil {
		return err
	}
	s.logger.Info("manual check accepted", "credential_id", credentialID)
	return nil
}

// TestCredential performs a single adapter call with the given
// plaintext secret and metadata. Nothing is persisted: no history, no
// in-flight marker, no notification state.
func (s *CheckService) TestCredential(ctx context.Context, secret, providerSlug string, metadata map[string]string) (model.BalanceResult, error) {
	adapter, err := s.registry.Resolve(providerSlug)
	if err != nil {
		return model.BalanceResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	return adapter.FetchBalance(callCtx, secret, metadata)
}

// enqueueNew admits a fresh task, claiming the credential's in-flight
// marker. Admission and the marker update are atomic.
func (s *CheckService) enqueueNew(credentialID int64, providerSlug string, manual bool) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.New("check service stopped")
	}
	if _, busy := s.inFlight[credentialID]; busy {
		s.mu.Unlock()
		return ErrCheckInFlight
	}
	s.inFlight[credentialID] = struct{}{}
	s.mu.Unlock()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.BackoffInitial
	b.MaxInterval = s.cfg.BackoffMax
	b.MaxElapsedTime = 0 // the retry count, not elapsed time, bounds the task
	b.Reset()

	task := &checkTask{
		credentialID: credentialID,
		providerSlug: providerSlug,
		manual:       manual,
		state:        model.CheckStatePending,
		backoff:      b,
	}

	select {
	case s.queue <- task:
		s.metrics.CheckStarted()
		return nil
	default:
		s.release(credentialID)
		return errQueueFull
	}
}

// requeue puts a retrying task back on the queue. The in-flight
// marker is already held.
func (s *CheckService) requeue(task *checkTask) {
	s.mu.Lock()
	stopped := s.stopped
	s.mu.Unlock()
	if stopped {
		s.finish(task)
		return
	}

	select {
	case s.queue <- task:
	default:
		// The cycle still terminates with a recorded failure; a
		// silent drop would leave no trace in history or telemetry.
		s.completeFailure(task, fmt.Errorf("check queue full, retry dropped: %w", task.lastErr))
	}
}

// release frees the credential's in-flight marker.
func (s *CheckService) release(credentialID int64) {
	s.mu.Lock()
	delete(s.inFlight, credentialID)
	s.mu.Unlock()
}

// finish releases the task's marker and closes out its metrics.
func (s *CheckService) finish(task *checkTask) {
	s.release(task.credentialID)
	s.metrics.CheckFinished()
}

// reserveDispatch claims the next dispatch slot for the provider and
// returns how long the caller must wait before starting the call.
// Claiming and reading the clock are atomic relative to other tasks.
func (s *CheckService) reserveDispatch(providerSlug string) time.Duration {
	if s.cfg.ProviderSpacing <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	next := s.nextDispatch[providerSlug]
	if next.Before(now) {
		next = now
	}
	s.nextDispatch[providerSlug] = next.Add(s.cfg.ProviderSpacing)
	return next.Sub(now)
}

func (s *CheckService) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-s.queue:
			s.runTask(ctx, task)
		}
	}
}

// runTask executes one attempt of the task's state machine. Transient
// failures re-enter Pending via a timer-scheduled re-enqueue -- never
// a blocking sleep-and-retry loop -- until the retry budget runs out.
func (s *CheckService) runTask(ctx context.Context, task *checkTask) {
	// Per-provider spacing, enforced at dispatch time.
	if wait := s.reserveDispatch(task.providerSlug); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.finish(task)
			return
		}
	}

	task.state = model.CheckStateRunning
	task.attempts++

	err := s.attempt(task)
	if err == nil {
		task.state = model.CheckStateSucceeded
		s.metrics.CheckCompleted(task.providerSlug, string(task.state))
		s.finish(task)
		return
	}

	if model.IsTransient(err) && task.attempts <= s.cfg.MaxRetries {
		task.state = model.CheckStateFailedTransient

		delay := task.backoff.NextBackOff()
		if hint := model.RetryAfterHint(err); hint > delay {
			delay = hint
		}
		s.logger.Warn("check failed, retrying",
			"credential_id", task.credentialID,
			"provider", task.providerSlug,
			"attempt", task.attempts,
			"retry_in", delay.Round(time.Millisecond),
			"error", err,
		)

		task.state = model.CheckStatePending
		task.lastErr = err
		time.AfterFunc(delay, func() { s.requeue(task) })
		return
	}

	s.completeFailure(task, err)
}

// attempt performs a single provider call: decrypt, fetch, persist,
// notify. The plaintext secret exists only inside this function.
func (s *CheckService) attempt(task *checkTask) error {
	ctx := s.callCtx

	cred, err := s.credentials.GetByID(ctx, task.credentialID)
	if err != nil {
		return &model.NetworkError{Provider: task.providerSlug, Cause: fmt.Errorf("load credential: %w", err)}
	}
	if cred == nil {
		// Deleted while queued; nothing to record.
		return nil
	}

	adapter, err := s.registry.Resolve(task.providerSlug)
	if err != nil {
		return err
	}

	secret, err := s.vault.Decrypt(cred.EncryptedSecret)
	if err != nil {
		// Vault failures are permanent for this check and must stay
		// distinguishable from provider errors; the error text is
		// recorded, never the ciphertext or any key material.
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	start := time.Now()
	result, err := adapter.FetchBalance(callCtx, secret, cred.Metadata)
	s.metrics.CheckDuration(task.providerSlug, time.Since(start).Seconds())
	if err != nil {
		return err
	}

	observedAt := time.Now().UTC()
	obs := &model.BalanceObservation{
		CredentialID: cred.ID,
		Balance:      result.Balance,
		IsEstimate:   result.IsEstimate,
		ObservedAt:   observedAt,
	}
	if err := s.history.Append(ctx, obs); err != nil {
		return &model.NetworkError{Provider: task.providerSlug, Cause: fmt.Errorf("append observation: %w", err)}
	}
	if err := s.credentials.RecordCheckSuccess(ctx, cred.ID, result.Balance, observedAt); err != nil {
		s.logger.Error("record check success failed", "credential_id", cred.ID, "error", err)
	}

	s.logger.Info("balance checked",
		"credential_id", cred.ID,
		"provider", task.providerSlug,
		"balance", result.Balance,
		"is_estimate", result.IsEstimate,
	)

	if s.notifier != nil {
		s.notifier.HandleObservation(ctx, *cred, *obs)
	}
	return nil
}

// completeFailure terminates the task as FailedPermanent: a failure
// event is recorded (never a fabricated balance), and user-correctable
// causes flag the credential so automatic checks stop until it is
// edited or manually re-checked.
func (s *CheckService) completeFailure(task *checkTask, cause error) {
	task.state = model.CheckStateFailedPermanent
	ctx := s.callCtx
	now := time.Now().UTC()
	needsAttention := model.IsUserCorrectable(cause)

	obs := &model.BalanceObservation{
		CredentialID: task.credentialID,
		CheckError:   cause.Error(),
		ObservedAt:   now,
	}
	if err := s.history.Append(ctx, obs); err != nil {
		s.logger.Error("append failure event failed", "credential_id", task.credentialID, "error", err)
	}
	if err := s.credentials.RecordCheckFailure(ctx, task.credentialID, cause.Error(), needsAttention, now); err != nil {
		s.logger.Error("record check failure failed", "credential_id", task.credentialID, "error", err)
	}

	s.logger.Error("check failed permanently",
		"credential_id", task.credentialID,
		"provider", task.providerSlug,
		"attempts", task.attempts,
		"needs_attention", needsAttention,
		"error", cause,
	)

	s.metrics.CheckCompleted(task.providerSlug, string(task.state))
	s.finish(task)
}
