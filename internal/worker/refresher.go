package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	applog "carteira/internal/log"
	"carteira/internal/session"
)

// Refreshable is anything that can refetch its state from the backend.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

// SessionSource reports who is signed in.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// Refresher periodically refetches the ledger mirror so drift caused by other
// sessions does not live longer than one schedule period.
type Refresher struct {
	target  Refreshable
	sess    SessionSource
	cron    *cron.Cron
	timeout time.Duration
	logger  *applog.Logger
}

// NewRefresher parses spec (standard 5-field cron or descriptors like "@every 5m").
func NewRefresher(target Refreshable, sess SessionSource, spec string, logger *applog.Logger) (*Refresher, error) {
	if logger == nil {
		logger = applog.Discard()
	}
	r := &Refresher{
		target:  target,
		sess:    sess,
		timeout: 30 * time.Second,
		logger:  logger.WithComponent(applog.ComponentWorker),
	}
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.cron.AddFunc(spec, r.run); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", spec, err)
	}
	return r, nil
}

func (r *Refresher) Start() {
	r.logger.Info("Periodic refresh started")
	r.cron.Start()
}

// Stop prevents new runs and waits for a running one, or for ctx.
func (r *Refresher) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("Periodic refresh stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.RunOnce(ctx)
}

// RunOnce refreshes now unless nobody is signed in. It reports whether a
// refresh was attempted.
func (r *Refresher) RunOnce(ctx context.Context) bool {
	snap := r.sess.Snapshot()
	if !snap.Authenticated() {
		r.logger.DebugContext(ctx, "Skipping refresh, no active session",
			applog.FieldState, snap.State.String())
		return false
	}

	start := time.Now()
	if err := r.target.Refresh(ctx); err != nil {
		r.logger.Err(ctx, "Scheduled refresh failed", err,
			applog.FieldOperation, applog.OpRefresh,
			applog.FieldOwnerID, snap.OwnerID())
		return true
	}
	r.logger.DebugContext(ctx, "Scheduled refresh completed",
		applog.FieldOwnerID, snap.OwnerID(),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return true
}
