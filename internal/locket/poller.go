// Package locket watches whether a user's locket device is connected.
package locket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sdgteacher/sdgchat/internal/backend"
)

// DefaultInterval is the poll interval used when none is given.
const DefaultInterval = 5 * time.Second

// StatusSource reports locket connectivity.
type StatusSource interface {
	LocketStatus(ctx context.Context, username string) (backend.LocketStatus, error)
}

// Poller polls a user's locket status while their session is authenticated
// and reports transitions.
type Poller struct {
	source   StatusSource
	username string
	poll     time.Duration
	logger   *slog.Logger

	// OnChange, if set, is called with the new status after each transition,
	// including the first successful poll.
	OnChange func(connected bool)

	mu      sync.Mutex
	known   bool
	current bool
}

// NewPoller creates a Poller for username.
// If interval is <= 0, it defaults to DefaultInterval.
func NewPoller(source StatusSource, username string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		username: username,
		poll:     interval,
		logger:   slog.Default().With("username", username),
	}
}

// Connected returns the last observed status and whether any poll has
// succeeded yet.
func (p *Poller) Connected() (connected, known bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.known
}

// Run polls until ctx is cancelled. Poll errors are logged and polling continues.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("locket poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce fetches the status once. changed reports whether it differs from
// the previous known status.
func (p *Poller) PollOnce(ctx context.Context) (changed bool, err error) {
	st, err := p.source.LocketStatus(ctx, p.username)
	if err != nil {
		return false, fmt.Errorf("polling locket for %s: %w", p.username, err)
	}

	p.mu.Lock()
	changed = !p.known || p.current != st.Connected
	p.known = true
	p.current = st.Connected
	cb := p.OnChange
	p.mu.Unlock()

	if changed {
		p.logger.Info("locket status changed", "connected", st.Connected)
		if cb != nil {
			cb(st.Connected)
		}
	}
	return changed, nil
}
