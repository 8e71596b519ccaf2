package sprite

import (
	"context"
	"sync"
	"time"
)

// A Host calls back once per display refresh.
type Host interface {
	// RequestFrame arranges for cb to be called once, before the next
	// refresh, with the time since the host started.
	RequestFrame(cb func(now time.Duration))
}

// TickerHost refreshes on a fixed-rate ticker. Callbacks requested during
// a refresh run on the following one.
type TickerHost struct {
	interval time.Duration

	mu      sync.Mutex
	pending []func(time.Duration)
	start   time.Time
}

// NewTickerHost creates a TickerHost refreshing frameRate times a second.
func NewTickerHost(frameRate float64) *TickerHost {
	h := new(TickerHost)
	h.interval = time.Duration(float64(time.Second) / frameRate)
	h.start = time.Now()
	return h
}

// RequestFrame queues cb for the next refresh. Safe from any goroutine.
func (h *TickerHost) RequestFrame(cb func(now time.Duration)) {
	h.mu.Lock()
	h.pending = append(h.pending, cb)
	h.mu.Unlock()
}

// Run refreshes until ctx is done. All callbacks run on this goroutine.
func (h *TickerHost) Run(ctx context.Context) {
	refreshTimer := time.NewTicker(h.interval)
	defer refreshTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-refreshTimer.C:
			h.refresh(t.Sub(h.start))
		}
	}
}

func (h *TickerHost) refresh(now time.Duration) {
	h.mu.Lock()
	callbacks := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, cb := range callbacks {
		cb(now)
	}
}
