package host

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a cooperative worker pool with a soft parallelism target.
//
// The limit is on parallel work, not goroutines: the pool allows more
// goroutines than the target (see goroutineToParallelismRatio) because some
// are expected to be waiting, and a worker that announces it is asleep
// temporarily raises the limit for the others.
type Pool struct {
	// maxParallelism is the soft target. 0 disables parallelism, negative
	// means unlimited.
	maxParallelism int

	mu      sync.Mutex
	cond    sync.Cond // signaled whenever running decreases
	running int

	// extra is temporarily increased while workers sleep.
	extra atomic.Int32
}

// Workers that block on other workers inflate the goroutine count, so the
// hard cap sits above the parallelism target.
const goroutineToParallelismRatio = 2

func newPool() *Pool {
	p := &Pool{maxParallelism: runtime.NumCPU()}
	p.cond.L = &p.mu
	return p
}

// MaxParallelism returns the soft parallelism target.
func (p *Pool) MaxParallelism() int { return p.maxParallelism }

// SetMaxParallelism changes the target. Only call it before workers start
// running; changing it mid-flight is undefined.
func (p *Pool) SetMaxParallelism(n int) { p.maxParallelism = n }

// IsEnabled reports whether parallelism is enabled at all.
func (p *Pool) IsEnabled() bool { return p.maxParallelism != 0 }

func (p *Pool) lockedIsFull() bool {
	if p.maxParallelism == 0 {
		return true
	}
	if p.maxParallelism < 0 {
		return false
	}
	return p.running >= goroutineToParallelismRatio*p.maxParallelism+int(p.extra.Load())
}

func (p *Pool) lockedStart(task func()) {
	p.running++
	go func() {
		task()
		p.mu.Lock()
		p.running--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}

// WaitToStart blocks until a worker is available, then runs task on it.
// With parallelism disabled the task runs inline, which can deadlock callers
// that rely on concurrency; avoid it in that configuration.
func (p *Pool) WaitToStart(task func()) {
	if p.maxParallelism < 0 {
		go task()
		return
	}
	if p.maxParallelism == 0 {
		task()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.lockedStart(task)
}

// StartIfAvailable runs task on a worker goroutine if one is free and
// reports whether it did. The caller synchronizes task completion itself.
func (p *Pool) StartIfAvailable(task func()) bool {
	if p.maxParallelism < 0 {
		go task()
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lockedIsFull() {
		return false
	}
	p.lockedStart(task)
	return true
}

// WorkerIsAsleep tells the pool the calling worker went to sleep waiting on
// other workers, temporarily raising the limit. Pair with WorkerRestarted.
func (p *Pool) WorkerIsAsleep() { p.extra.Add(1) }

// WorkerRestarted undoes WorkerIsAsleep.
func (p *Pool) WorkerRestarted() { p.extra.Add(-1) }

// Parallelize runs fn(i) for every i in [0, n), fanning out across available
// workers, and returns once all calls finished. Indices not picked up by a
// free worker run inline on the caller.
func (p *Pool) Parallelize(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if !p.IsEnabled() || n == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		if !p.StartIfAvailable(func() { fn(i); wg.Done() }) {
			fn(i)
			wg.Done()
		}
	}
	p.WorkerIsAsleep()
	wg.Wait()
	p.WorkerRestarted()
}
