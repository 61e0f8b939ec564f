// Package health tracks the reachability of the execution backend.
//
// A single poller probes the backend's health endpoint on an interval and
// records the last observed status. Handlers read the snapshot instead of
// probing inline, so a down backend never slows the health endpoint down and
// dashboards can tell "no data" apart from "backend down".
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Status is the last observed backend state. Checking means no probe has
// completed yet.
type Status string

const (
	StatusChecking     Status = "checking"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Prober is the probe the checker runs, typically backend.Client.Health.
type Prober interface {
	Health(ctx context.Context) error
}

// Checker polls a Prober and keeps the latest result.
type Checker struct {
	prober   Prober
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	status    Status
	checkedAt time.Time
}

// NewChecker creates a Checker. The first probe runs when Run is called;
// until then the status is checking.
func NewChecker(prober Prober, interval time.Duration, logger *slog.Logger) *Checker {
	return &Checker{
		prober:   prober,
		interval: interval,
		logger:   logger,
		status:   StatusChecking,
	}
}

// Run probes immediately, then on every interval tick until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	c.probe(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probe(ctx)
		}
	}
}

func (c *Checker) probe(ctx context.Context) {
	err := c.prober.Health(ctx)

	c.mu.Lock()
	prev := c.status
	if err != nil {
		c.status = StatusDisconnected
	} else {
		c.status = StatusConnected
	}
	c.checkedAt = time.Now().UTC()
	cur := c.status
	c.mu.Unlock()

	if cur != prev {
		if err != nil {
			c.logger.Warn("backend unreachable", "error", err)
		} else {
			c.logger.Info("backend reachable")
		}
	}
}

// Snapshot returns the last observed status and when it was observed.
// CheckedAt is zero until the first probe completes.
func (c *Checker) Snapshot() (Status, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status, c.checkedAt
}
