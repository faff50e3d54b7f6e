// Package lifecycle keeps a long-lived caller's admin session alive: it refreshes
// ahead of expiry, warns before expiry, tracks idle time and mirrors session
// state across clients sharing a Broadcast (e.g. browser tabs).
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"taskplanner-admin/internal/auth"

	"github.com/google/uuid"
)

// Reasons passed to OnExpired and carried by SessionInvalidated.
const (
	ReasonExpired        = "expired"
	ReasonSessionExpired = "session_expired"
	ReasonLogout         = "logout"
)

type Config struct {
	// RefreshLead is how long before expiry the refresh runs.
	RefreshLead time.Duration
	// WarningThreshold is how long before expiry OnWarning fires.
	WarningThreshold time.Duration
	// IdleThreshold is how long without activity before OnIdle fires. Zero disables idle tracking.
	IdleThreshold time.Duration
	// ActivitySignals lists the signal names that reset the idle timer.
	ActivitySignals []string
	// RetryDelay spaces out refresh retries after a transient failure.
	RetryDelay time.Duration
	// RefreshTimeout bounds a single Refresh call.
	RefreshTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		RefreshLead:      time.Minute,
		WarningThreshold: 2 * time.Minute,
		IdleThreshold:    30 * time.Minute,
		ActivitySignals:  []string{"mousedown", "keydown", "scroll", "touchstart", "request"},
		RetryDelay:       10 * time.Second,
		RefreshTimeout:   15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RefreshLead <= 0 {
		c.RefreshLead = d.RefreshLead
	}
	if c.WarningThreshold <= 0 {
		c.WarningThreshold = d.WarningThreshold
	}
	if c.IdleThreshold < 0 {
		c.IdleThreshold = 0
	}
	if c.ActivitySignals == nil {
		c.ActivitySignals = d.ActivitySignals
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.RefreshTimeout <= 0 {
		c.RefreshTimeout = d.RefreshTimeout
	}
	return c
}

// Callbacks are invoked without the client lock held. All are optional.
type Callbacks struct {
	// Refresh obtains a new access-token expiry. Errors matching auth.ErrSessionExpired
	// or auth.ErrInvalidToken end the session; any other error is retried.
	Refresh   func(ctx context.Context) (time.Time, error)
	OnWarning func(remaining time.Duration)
	OnExpired func(reason string)
	OnIdle    func(idleFor time.Duration)
}

type Option func(*Client)

func WithClock(c Clock) Option { return func(cl *Client) { cl.clock = c } }

func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.log = l } }

// WithID fixes the broadcast identity; it defaults to a random uuid.
func WithID(id string) Option { return func(cl *Client) { cl.id = id } }

// Client schedules work for one session. It is safe for concurrent use.
type Client struct {
	id    string
	cfg   Config
	cb    Callbacks
	clock Clock
	bus   *Broadcast
	log   *slog.Logger

	mu         sync.Mutex
	running    bool
	refreshing bool
	warned     bool
	expiresAt  time.Time
	signals    map[string]struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	unsub      func()

	refreshSlot *slot
	warningSlot *slot
	expirySlot  *slot
	idleSlot    *slot
}

// New builds a client. bus may be nil for a single, unsynchronized client.
func New(bus *Broadcast, cfg Config, cb Callbacks, opts ...Option) *Client {
	c := &Client{
		id:    uuid.NewString(),
		cfg:   cfg.withDefaults(),
		cb:    cb,
		clock: RealClock,
		bus:   bus,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	c.signals = make(map[string]struct{}, len(c.cfg.ActivitySignals))
	for _, s := range c.cfg.ActivitySignals {
		c.signals[s] = struct{}{}
	}
	c.refreshSlot = newSlot(c.clock)
	c.warningSlot = newSlot(c.clock)
	c.expirySlot = newSlot(c.clock)
	c.idleSlot = newSlot(c.clock)
	return c
}

func (c *Client) ID() string { return c.id }

// Start begins tracking a session that expires at expiresAt.
func (c *Client) Start(expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		c.ctx, c.cancel = context.WithCancel(context.Background())
		if c.bus != nil {
			c.unsub = c.bus.Subscribe(c.id, c.handle)
		}
	}
	c.running = true
	c.expiresAt = expiresAt
	c.scheduleLocked()
	c.resetIdleLocked()
}

// UpdateExpiry adopts expiresAt if it is newer than the current expiry and
// reschedules refresh, warning and expiry around it. It reports whether it was adopted.
func (c *Client) UpdateExpiry(expiresAt time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adoptLocked(expiresAt)
}

func (c *Client) adoptLocked(expiresAt time.Time) bool {
	if !c.running || !expiresAt.After(c.expiresAt) {
		return false
	}
	c.expiresAt = expiresAt
	c.scheduleLocked()
	return true
}

// Activity resets the idle timer when signal is one of the configured activity signals.
func (c *Client) Activity(signal string) {
	if _, ok := c.signals[signal]; !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.resetIdleLocked()
	}
}

// Logout stops this client and force-expires every peer.
func (c *Client) Logout(reason string) {
	if reason == "" {
		reason = ReasonLogout
	}
	c.mu.Lock()
	wasRunning := c.running
	c.stopLocked()
	c.mu.Unlock()

	if wasRunning && c.bus != nil {
		c.bus.Publish(c.id, SessionInvalidated{Reason: reason})
	}
}

// Stop cancels all pending work without notifying peers.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Client) ExpiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt
}

func (c *Client) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Client) stopLocked() {
	if !c.running {
		return
	}
	c.running = false
	c.refreshSlot.cancel()
	c.warningSlot.cancel()
	c.expirySlot.cancel()
	c.idleSlot.cancel()
	if c.cancel != nil {
		c.cancel()
	}
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

func (c *Client) scheduleLocked() {
	now := c.clock.Now()
	c.warned = false
	c.refreshSlot.schedule(c.expiresAt.Sub(now)-c.cfg.RefreshLead, c.doRefresh)
	c.warningSlot.schedule(c.expiresAt.Sub(now)-c.cfg.WarningThreshold, c.doWarn)
	c.expirySlot.schedule(c.expiresAt.Sub(now), func() { c.expire(ReasonExpired, false) })
}

func (c *Client) resetIdleLocked() {
	if c.cfg.IdleThreshold <= 0 {
		return
	}
	c.idleSlot.schedule(c.cfg.IdleThreshold, c.doIdle)
}

func (c *Client) doRefresh() {
	c.mu.Lock()
	if !c.running || c.refreshing || c.cb.Refresh == nil {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	if c.expiresAt.Sub(now) > c.cfg.RefreshLead {
		// A peer's SessionRefreshed landed first and rescheduled this slot.
		c.mu.Unlock()
		return
	}
	if c.bus != nil && !c.bus.claimRefresh(c.id) {
		// A peer is refreshing; look again later in case its call fails.
		if c.expiresAt.Sub(now) > c.cfg.RetryDelay {
			c.refreshSlot.schedule(c.cfg.RetryDelay, c.doRefresh)
		}
		c.mu.Unlock()
		return
	}
	c.refreshing = true
	started := c.expiresAt
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RefreshTimeout)
	c.mu.Unlock()

	if c.bus != nil {
		// Released after the outcome is published so peers never see a gap.
		defer c.bus.releaseRefresh(c.id)
	}
	newExpiry, err := c.cb.Refresh(ctx)
	cancel()

	c.mu.Lock()
	c.refreshing = false
	if !c.running {
		c.mu.Unlock()
		return
	}
	switch {
	case err == nil:
		adopted := c.adoptLocked(newExpiry)
		c.mu.Unlock()
		if adopted && c.bus != nil {
			c.bus.Publish(c.id, SessionRefreshed{ExpiresAt: newExpiry})
		}
	case c.expiresAt.After(started):
		// A peer refreshed while this call was in flight.
		c.mu.Unlock()
	case errors.Is(err, auth.ErrSessionExpired) || errors.Is(err, auth.ErrInvalidToken):
		c.mu.Unlock()
		c.log.Info("session refresh rejected", "err", err)
		c.expire(ReasonSessionExpired, true)
	default:
		remaining := c.expiresAt.Sub(c.clock.Now())
		if remaining > c.cfg.RetryDelay {
			c.refreshSlot.schedule(c.cfg.RetryDelay, c.doRefresh)
		}
		c.mu.Unlock()
		c.log.Warn("session refresh failed, will retry", "err", err, "remaining", remaining)
	}
}

func (c *Client) doWarn() {
	c.mu.Lock()
	if !c.running || c.warned {
		c.mu.Unlock()
		return
	}
	c.warned = true
	remaining := c.expiresAt.Sub(c.clock.Now())
	c.mu.Unlock()

	if c.cb.OnWarning != nil {
		c.cb.OnWarning(remaining)
	}
}

// doIdle only reports; idleness never ends the session by itself.
func (c *Client) doIdle() {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if running && c.cb.OnIdle != nil {
		c.cb.OnIdle(c.cfg.IdleThreshold)
	}
}

func (c *Client) expire(reason string, notifyPeers bool) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.mu.Unlock()

	if notifyPeers && c.bus != nil {
		c.bus.Publish(c.id, SessionInvalidated{Reason: reason})
	}
	if c.cb.OnExpired != nil {
		c.cb.OnExpired(reason)
	}
}

func (c *Client) handle(m Message) {
	switch msg := m.(type) {
	case SessionRefreshed:
		c.UpdateExpiry(msg.ExpiresAt)
	case SessionInvalidated:
		c.expire(msg.Reason, false)
	}
}
