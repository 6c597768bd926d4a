package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"checkin-backend/apperror"
)

const (
	DefaultDrainInterval = 15 * time.Second
	DefaultProbeInterval = 5 * time.Second
)

// Drainer replays the offline queue in the background. While online it
// drains on every tick; while offline it probes the coordinator's
// health endpoint and drains as soon as the probe succeeds.
type Drainer struct {
	sc            *SessionContext
	DrainInterval time.Duration
	ProbeInterval time.Duration

	// OnReport, when set, receives every drain pass that did something.
	OnReport func(DrainReport)
	// OnStatus, when set, is called on every online/offline transition.
	// Calls are serialized and must not re-enter SetOnline or Hold.
	OnStatus func(online bool)

	// statusMu orders transitions so OnStatus sees them alternate.
	statusMu sync.Mutex
	online   atomic.Bool
	held     atomic.Bool
	wake     chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewDrainer(sc *SessionContext) *Drainer {
	return &Drainer{
		sc:            sc,
		DrainInterval: DefaultDrainInterval,
		ProbeInterval: DefaultProbeInterval,
		wake:          make(chan struct{}, 1),
	}
}

// Online reports the current connectivity belief.
func (d *Drainer) Online() bool {
	return !d.held.Load() && d.online.Load()
}

// SetOnline records a connectivity signal. Going from offline to online
// triggers an immediate drain.
func (d *Drainer) SetOnline(online bool) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	before := d.Online()
	d.online.Store(online)
	d.transition(before)
}

// Hold forces offline mode until released, whatever the probes say.
func (d *Drainer) Hold(held bool) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	before := d.Online()
	d.held.Store(held)
	d.transition(before)
}

// Held reports whether the operator forced offline mode.
func (d *Drainer) Held() bool {
	return d.held.Load()
}

func (d *Drainer) transition(before bool) {
	after := d.Online()
	if before == after {
		return
	}
	if after {
		d.Trigger()
	}
	if d.OnStatus != nil {
		d.OnStatus(after)
	}
}

// Trigger asks for a drain pass without waiting for the next tick.
func (d *Drainer) Trigger() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Start runs the drainer until ctx is done or Stop is called. Calling
// Start on a running drainer does nothing.
func (d *Drainer) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, d.cancel = context.WithCancel(ctx)
	d.done = make(chan struct{})
	go d.run(ctx, d.done)
}

// Stop ends the background loop and waits for an in-flight pass.
func (d *Drainer) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Drainer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	drainTicker := time.NewTicker(d.DrainInterval)
	defer drainTicker.Stop()
	probeTicker := time.NewTicker(d.ProbeInterval)
	defer probeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
			if d.Online() {
				d.drainOnce(ctx)
			}
		case <-drainTicker.C:
			if d.Online() {
				d.drainOnce(ctx)
			}
		case <-probeTicker.C:
			if !d.Online() && !d.Held() {
				d.probe(ctx)
			}
		}
	}
}

func (d *Drainer) probe(ctx context.Context) {
	if err := d.sc.API.Health(ctx); err != nil {
		return
	}
	d.SetOnline(true)
}

func (d *Drainer) drainOnce(ctx context.Context) {
	report, err := d.sc.Queue.Drain(ctx, d.sc)
	if err != nil {
		if ctx.Err() == nil {
			d.sc.Log.Error("drain failed", "error", err)
		}
		return
	}
	if apperror.Is(report.Stopped, apperror.KindTransient) {
		d.SetOnline(false)
	}
	if d.OnReport != nil && (report.Synced+report.Conflicts+report.Failed > 0 || report.Stopped != nil) {
		d.OnReport(report)
	}
}
