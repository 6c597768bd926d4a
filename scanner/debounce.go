package scanner

import (
	"sync"
	"time"
)

// DefaultDebounceWindow suppresses the repeat decodes a camera produces
// while a code stays in frame.
const DefaultDebounceWindow = 2 * time.Second

// Debouncer drops a payload seen again within Window of its previous
// sighting. Every sighting restarts the window, so a code held in front
// of the camera submits once no matter how long it stays there.
type Debouncer struct {
	Window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{Window: window, seen: make(map[string]time.Time), now: time.Now}
}

// Allow reports whether payload should be submitted.
func (d *Debouncer) Allow(payload string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	last, ok := d.seen[payload]
	d.seen[payload] = now
	d.prune(now)
	return !ok || now.Sub(last) >= d.Window
}

// Touch restarts the window of a payload already seen. Unknown payloads
// are left alone so they still submit on their first sighting.
func (d *Debouncer) Touch(payload string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[payload]; ok {
		d.seen[payload] = d.now()
	}
}

// Reset forgets every payload.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]time.Time)
}

func (d *Debouncer) prune(now time.Time) {
	if len(d.seen) < 64 {
		return
	}
	for payload, at := range d.seen {
		if now.Sub(at) >= d.Window {
			delete(d.seen, payload)
		}
	}
}
