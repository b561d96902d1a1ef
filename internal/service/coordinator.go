// Package service provides the business logic layer: the refresh
// coordinator that owns the account snapshot lifecycle and the read
// surface over it.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/oejp/kraken-bridge/internal/domain"
	"github.com/oejp/kraken-bridge/internal/infra/observability"
	"github.com/oejp/kraken-bridge/internal/localtime"
	"github.com/oejp/kraken-bridge/internal/port"
)

var coordTracer = otel.Tracer("service/coordinator")

// Defaults for the refresh cycle.
const (
	DefaultRefreshInterval = 30 * time.Minute
	DefaultRefreshTimeout  = 30 * time.Second
)

// CoordinatorConfig tunes the refresh cycle. Zero values fall back to the
// defaults above.
type CoordinatorConfig struct {
	Interval time.Duration
	Timeout  time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Coordinator periodically fetches the account snapshot and retains the
// last successful one. Readers never observe a partially updated snapshot:
// the pointer is swapped whole under the lock, and a failed refresh leaves
// the previous snapshot in place.
type Coordinator struct {
	fetcher  port.AccountFetcher
	metrics  *observability.Metrics
	logger   *zap.Logger
	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	group singleflight.Group

	mu            sync.RWMutex
	accountNumber string
	snap          *domain.AccountSnapshot
	snapAt        time.Time
	lastAttemptAt time.Time
	lastErr       error
}

// NewCoordinator wires a coordinator; the account number is resolved later
// by ResolveAccount during startup.
func NewCoordinator(fetcher port.AccountFetcher, metrics *observability.Metrics, logger *zap.Logger, cfg CoordinatorConfig) *Coordinator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRefreshInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRefreshTimeout
	}
	if cfg.Now == nil {
		cfg.Now = localtime.Now
	}
	return &Coordinator{
		fetcher:  fetcher,
		metrics:  metrics,
		logger:   logger,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
	}
}

// ResolveAccount authenticates and resolves the account number the
// coordinator will refresh. Startup must abort if this fails: without an
// account number no refresh can ever succeed.
func (c *Coordinator) ResolveAccount(ctx context.Context) error {
	ctx, span := coordTracer.Start(ctx, "Coordinator.ResolveAccount")
	defer span.End()

	number, err := c.fetcher.GetAccountNumber(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.accountNumber = number
	c.mu.Unlock()

	span.SetAttributes(attribute.String("account.number", number))
	c.logger.Info("account resolved", zap.String("account_number", number))
	return nil
}

// Run performs an eager first refresh and then refreshes on every interval
// tick until ctx is cancelled. The first refresh is best-effort: readers
// report the snapshot as unavailable until one succeeds.
func (c *Coordinator) Run(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("initial refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.logger.Warn("scheduled refresh failed", zap.Error(err))
			}
		}
	}
}

// Refresh fetches a fresh snapshot. Concurrent callers (the ticker and the
// manual refresh endpoint) are coalesced into a single upstream fetch.
func (c *Coordinator) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *Coordinator) refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := coordTracer.Start(ctx, "Coordinator.Refresh")
	defer span.End()

	cycleID := uuid.NewString()
	span.SetAttributes(attribute.String("refresh.cycle_id", cycleID))
	log := c.logger.With(zap.String("cycle_id", cycleID))

	c.mu.RLock()
	number := c.accountNumber
	c.mu.RUnlock()
	if number == "" {
		return &domain.ErrDataFetch{Operation: "refresh", Err: errors.New("account number not resolved")}
	}

	now := c.now()
	start := localtime.StartOfPreviousMonth(now)

	began := time.Now()
	snap, err := c.fetcher.GetAccountData(ctx, number, start, now)
	took := time.Since(began)
	c.metrics.RecordRefresh(took, err)

	c.mu.Lock()
	c.lastAttemptAt = now
	c.lastErr = err
	if err == nil {
		c.snap = snap
		c.snapAt = now
	}
	c.mu.Unlock()

	if err != nil {
		c.metrics.IncrRefreshFailure(failureReason(err))
		log.Warn("refresh failed",
			zap.Duration("took", took),
			zap.String("reason", failureReason(err)),
			zap.Error(err))
		return err
	}

	log.Info("refresh succeeded",
		zap.Duration("took", took),
		zap.Time("window_start", start))
	return nil
}

// failureReason maps a refresh error onto a stable metrics label.
func failureReason(err error) string {
	var authErr *domain.ErrAuth
	var fetchErr *domain.ErrDataFetch
	var netErr *domain.ErrNetwork
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &netErr):
		return "network"
	case errors.As(err, &fetchErr):
		return "fetch"
	}
	return "other"
}

// Snapshot returns the last successful snapshot and when it was taken.
// ok is false until the first refresh succeeds.
func (c *Coordinator) Snapshot() (*domain.AccountSnapshot, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		return nil, time.Time{}, false
	}
	return c.snap, c.snapAt, true
}

// AccountNumber returns the resolved account number, empty before resolution.
func (c *Coordinator) AccountNumber() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountNumber
}

// Status is the coordinator's health summary, served on the account endpoint.
type Status struct {
	AccountNumber string                      `json:"account_number"`
	SnapshotAt    *time.Time                  `json:"snapshot_at,omitempty"`
	LastAttemptAt *time.Time                  `json:"last_attempt_at,omitempty"`
	LastError     string                      `json:"last_error,omitempty"`
	Refresh       *observability.RefreshStats `json:"refresh"`
}

// Status reports the current refresh health.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{
		AccountNumber: c.accountNumber,
		Refresh:       c.metrics.GetRefreshStats(),
	}
	if !c.snapAt.IsZero() {
		t := c.snapAt
		st.SnapshotAt = &t
	}
	if !c.lastAttemptAt.IsZero() {
		t := c.lastAttemptAt
		st.LastAttemptAt = &t
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}
