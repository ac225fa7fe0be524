// Package pool bounds the number of sandboxed processes running at once.
package pool

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	appErr "github.com/Majnu04/doflow-sub001/pkg/errors"
)

// Class identifies who is asking for a slot.
type Class string

const (
	ClassRun    Class = "run"
	ClassSubmit Class = "submit"
)

const defaultMaxQueueWait = 2 * time.Second

// Config controls pool size and waiting behavior.
type Config struct {
	Size         int
	MaxQueueWait time.Duration
	// ReservedForSubmit slots can only be taken by ClassSubmit.
	ReservedForSubmit int
}

// Metrics receives pool observations.
type Metrics interface {
	ObserveSlotWait(class string, wait time.Duration, acquired bool)
	SetSlotsInUse(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveSlotWait(string, time.Duration, bool) {}

func (noopMetrics) SetSlotsInUse(int) {}

// Pool is a counting semaphore split into a shared part and a submit-only reserve.
type Pool struct {
	shared       chan struct{}
	reserved     chan struct{}
	maxQueueWait time.Duration
	inUse        atomic.Int64
	metrics      Metrics
}

// New creates a pool. A zero size means runtime.NumCPU().
func New(cfg Config, metrics Metrics) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = runtime.NumCPU()
	}
	reserved := cfg.ReservedForSubmit
	if reserved < 0 {
		reserved = 0
	}
	// keep at least one shared slot so Run is never locked out entirely
	if reserved >= size {
		reserved = size - 1
	}
	wait := cfg.MaxQueueWait
	if wait <= 0 {
		wait = defaultMaxQueueWait
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Pool{
		shared:       make(chan struct{}, size-reserved),
		reserved:     make(chan struct{}, reserved),
		maxQueueWait: wait,
		metrics:      metrics,
	}
}

// Size returns the total number of slots.
func (p *Pool) Size() int {
	return cap(p.shared) + cap(p.reserved)
}

// InUse returns the number of slots currently held.
func (p *Pool) InUse() int {
	return int(p.inUse.Load())
}

// Lease is one held slot. Release is safe to call more than once.
type Lease struct {
	pool *Pool
	ch   chan struct{}
	once sync.Once
}

// Release frees the slot.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		<-l.ch
		l.pool.metrics.SetSlotsInUse(int(l.pool.inUse.Add(-1)))
	})
}

// Acquire waits for a free slot. It fails with JudgeQueueFull after MaxQueueWait, or with
// the context error when ctx ends first.
func (p *Pool) Acquire(ctx context.Context, class Class) (*Lease, error) {
	start := time.Now()
	ch, err := p.acquire(ctx, class)
	p.metrics.ObserveSlotWait(string(class), time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	p.metrics.SetSlotsInUse(int(p.inUse.Add(1)))
	return &Lease{pool: p, ch: ch}, nil
}

func (p *Pool) acquire(ctx context.Context, class Class) (chan struct{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// prefer the reserve for submits so shared slots stay available for runs
	reserve := p.reserved
	if class != ClassSubmit || cap(reserve) == 0 {
		reserve = nil
	}
	if reserve != nil {
		select {
		case reserve <- struct{}{}:
			return reserve, nil
		default:
		}
	}

	timer := time.NewTimer(p.maxQueueWait)
	defer timer.Stop()
	select {
	case p.shared <- struct{}{}:
		return p.shared, nil
	case reserve <- struct{}{}:
		return reserve, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, appErr.New(appErr.JudgeQueueFull).WithMessage("worker pool is full")
	}
}
