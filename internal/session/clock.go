package session

import (
	"sync"
	"time"
)

// Ticker is the part of time.Ticker the clock needs; tests drive it by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// CountdownClock counts down from the server's remaining-time snapshot. It
// never polls the server. A nil seed means the quiz is untimed and the clock
// never expires.
type CountdownClock struct {
	interval  time.Duration
	newTicker TickerFactory
	onTick    func(remaining int)
	onExpire  func()

	mu        sync.Mutex
	enabled   bool
	remaining int
	started   bool
	expired   bool
	stopOnce  sync.Once
	stop      chan struct{}
}

func NewCountdownClock(seed *int, interval time.Duration, newTicker TickerFactory, onTick func(int), onExpire func()) *CountdownClock {
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	if interval <= 0 {
		interval = time.Second
	}
	c := &CountdownClock{
		interval:  interval,
		newTicker: newTicker,
		onTick:    onTick,
		onExpire:  onExpire,
		stop:      make(chan struct{}),
	}
	if seed != nil {
		c.enabled = true
		c.remaining = *seed
		if c.remaining < 0 {
			c.remaining = 0
		}
	}
	return c
}

// Start begins ticking. A clock seeded with zero expires right away.
func (c *CountdownClock) Start() {
	c.mu.Lock()
	if !c.enabled || c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	if c.remaining == 0 {
		c.expired = true
		c.mu.Unlock()
		c.fireExpire()
		return
	}
	c.mu.Unlock()

	ticker := c.newTicker(c.interval)
	go c.run(ticker)
}

func (c *CountdownClock) run(ticker Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C():
		}

		c.mu.Lock()
		select {
		case <-c.stop:
			c.mu.Unlock()
			return
		default:
		}
		c.remaining--
		remaining := c.remaining
		if remaining == 0 {
			c.expired = true
		}
		c.mu.Unlock()

		if c.onTick != nil {
			c.onTick(remaining)
		}
		if remaining == 0 {
			c.fireExpire()
			return
		}
	}
}

func (c *CountdownClock) fireExpire() {
	if c.onExpire != nil {
		c.onExpire()
	}
}

// Stop halts ticking. Safe to call more than once.
func (c *CountdownClock) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// Remaining returns the seconds left; ok is false for an untimed quiz.
func (c *CountdownClock) Remaining() (seconds int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining, c.enabled
}

func (c *CountdownClock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}
