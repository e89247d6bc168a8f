package node

import (
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer drives the reconnection loop. The router resets it after
// servicing each tick, so a slow tick handler never causes ticks to pile up.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{}      //sends a signal to listening process
	resetCh      chan time.Duration //receives instruction to reset the timer
	stopCh       chan struct{}      //receives instruction to stop the timer
	shutdownCh   chan struct{}      //receives instruction to exit Run loop
	set          bool
}

func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
		resetCh:      make(chan time.Duration),
		stopCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
	}
}

// NewReconnectTimer returns a ControlTimer backed by plain time.After delays.
func NewReconnectTimer() *ControlTimer {
	fixedTimeout := func(d time.Duration) <-chan time.Time {
		if d == 0 {
			return nil
		}
		return time.After(d)
	}
	return NewControlTimer(fixedTimeout)
}

func (c *ControlTimer) Run(init time.Duration) {

	setTimer := func(t time.Duration) <-chan time.Time {
		c.set = true
		return c.timerFactory(t)
	}

	timer := setTimer(init)
	for {
		select {
		case <-timer:
			select {
			case c.tickCh <- struct{}{}:
				c.set = false
			case <-c.shutdownCh:
				return
			}
		case t := <-c.resetCh:
			timer = setTimer(t)
		case <-c.stopCh:
			timer = nil
			c.set = false
		case <-c.shutdownCh:
			c.set = false
			return
		}
	}
}

func (c *ControlTimer) Shutdown() {
	close(c.shutdownCh)
}
