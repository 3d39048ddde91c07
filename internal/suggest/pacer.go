package suggest

import (
	"math/rand/v2"
	"sync"
	"time"
)

const (
	widenFactor      = 1.5
	blockWidenFactor = 2.0
	decayStep        = 0.25

	uncappedMaxMultiplier = 10
)

// Window is a fixed-size ring of recent query outcomes with an O(1) failure ratio.
// It is not safe for concurrent use; Pacer serializes access.
type Window struct {
	outcomes []bool
	next     int
	filled   int
	failures int
}

// NewWindow creates a window over the last size outcomes (minimum 1).
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{outcomes: make([]bool, size)}
}

// Record pushes an outcome, evicting the oldest once full.
func (w *Window) Record(failed bool) {
	if w.filled == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.filled++
	}
	w.outcomes[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

// Ratio is failures over recorded outcomes; 0 when empty.
func (w *Window) Ratio() float64 {
	if w.filled == 0 {
		return 0
	}
	return float64(w.failures) / float64(w.filled)
}

// Len returns how many outcomes are held.
func (w *Window) Len() int {
	return w.filled
}

// Pacer produces the jittered pre-attempt delay and, when dynamic, stretches it
// while the recent failure ratio is above threshold.
type Pacer struct {
	mu         sync.Mutex
	min, max   time.Duration
	ceiling    time.Duration
	dynamic    bool
	threshold  float64
	window     *Window
	multiplier float64
	maxMult    float64
	rnd        func() float64
}

// NewPacer builds a pacer. ceiling caps any single delay; zero means no cap.
func NewPacer(minDelay, maxDelay, ceiling time.Duration, dynamic bool, windowSize int, threshold float64) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	maxMult := float64(uncappedMaxMultiplier)
	if ceiling > 0 && maxDelay > 0 {
		maxMult = max(1, float64(ceiling)/float64(maxDelay))
	}
	return &Pacer{
		min:        minDelay,
		max:        maxDelay,
		ceiling:    ceiling,
		dynamic:    dynamic,
		threshold:  threshold,
		window:     NewWindow(windowSize),
		multiplier: 1,
		maxMult:    maxMult,
		rnd:        rand.Float64,
	}
}

// Delay draws uniformly from [min, max] scaled by the current multiplier.
// Scaling both ends widens the jitter range as well as lengthening the base.
func (p *Pacer) Delay() time.Duration {
	p.mu.Lock()
	lo := float64(p.min) * p.multiplier
	hi := float64(p.max) * p.multiplier
	r := p.rnd()
	p.mu.Unlock()

	d := time.Duration(lo + (hi-lo)*r)
	if p.ceiling > 0 && d > p.ceiling {
		d = p.ceiling
	}
	return d
}

// Backoff grows base exponentially for retry n (n >= 1), capped at the ceiling.
func (p *Pacer) Backoff(base time.Duration, retry int) time.Duration {
	d := base
	for i := 1; i < retry+1 && i < 32; i++ {
		d *= 2
		if p.ceiling > 0 && d >= p.ceiling {
			return p.ceiling
		}
	}
	return d
}

// Record feeds a finished query into the window and adapts the multiplier.
// block marks failures that carried a throttling status.
func (p *Pacer) Record(failed, block bool) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.window.Record(failed)
	if !p.dynamic {
		return p.multiplier
	}

	switch {
	case failed && p.window.Ratio() > p.threshold:
		factor := widenFactor
		if block {
			factor = blockWidenFactor
		}
		p.multiplier *= factor
		if p.multiplier > p.maxMult {
			p.multiplier = p.maxMult
		}
	case !failed && p.window.Ratio() <= p.threshold:
		p.multiplier -= decayStep
		if p.multiplier < 1 {
			p.multiplier = 1
		}
	}
	return p.multiplier
}

// Multiplier returns the current stretch factor (1 = baseline).
func (p *Pacer) Multiplier() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.multiplier
}

// FailureRatio returns the window's current failure ratio.
func (p *Pacer) FailureRatio() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window.Ratio()
}
