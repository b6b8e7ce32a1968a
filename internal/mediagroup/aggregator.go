// Package mediagroup batches the items of a photo album into a single
// delivery. Telegram sends each album photo as its own update with a shared
// group identifier and no end marker, so the only way to know the album is
// complete is to wait out a quiet window after the last arrival.
package mediagroup

import (
	"sync"
	"time"
)

const defaultWindow = 500 * time.Millisecond

// Photo is one downloaded album item.
type Photo struct {
	Data      []byte
	MediaType string
}

// FlushFunc receives a completed album. Caption is the first non-empty
// caption seen across the album's items.
type FlushFunc func(key string, caption string, photos []Photo)

type buffer struct {
	caption string
	photos  []Photo
	timer   *time.Timer

	// gen counts arrivals. A timer that fires after losing a Stop race to
	// a newer Add carries a stale gen and must not flush.
	gen int
}

// Aggregator buffers album items by group key and flushes each group exactly
// once, after no new item has arrived for the window duration. Every arrival
// resets the group's timer.
type Aggregator struct {
	window time.Duration
	flush  FlushFunc

	mu      sync.Mutex
	buffers map[string]*buffer
	stopped bool
}

func New(window time.Duration, flush FlushFunc) *Aggregator {
	if window <= 0 {
		window = defaultWindow
	}
	return &Aggregator{
		window:  window,
		flush:   flush,
		buffers: make(map[string]*buffer),
	}
}

// Add buffers one album item under key.
func (a *Aggregator) Add(key, caption string, photo Photo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	buf, ok := a.buffers[key]
	if !ok {
		buf = &buffer{}
		a.buffers[key] = buf
	}

	buf.photos = append(buf.photos, photo)
	if buf.caption == "" {
		buf.caption = caption
	}
	buf.gen++
	gen := buf.gen

	if buf.timer != nil {
		buf.timer.Stop()
	}
	buf.timer = time.AfterFunc(a.window, func() {
		a.flushKey(key, gen)
	})
}

// Pending returns the number of groups awaiting flush.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffers)
}

func (a *Aggregator) flushKey(key string, gen int) {
	a.mu.Lock()
	buf, ok := a.buffers[key]
	if !ok || a.stopped || buf.gen != gen {
		a.mu.Unlock()
		return
	}
	delete(a.buffers, key)
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
	caption := buf.caption
	photos := buf.photos
	a.mu.Unlock()

	if len(photos) > 0 && a.flush != nil {
		a.flush(key, caption, photos)
	}
}

// Stop cancels all pending timers and drops buffered items.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	for key, buf := range a.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(a.buffers, key)
	}
}
