package monitor

import (
	"sync"
	"time"
)

// fetchJob is one unit of work for the pool: refresh a single news query.
// A stop job tells the receiving worker to exit.
type fetchJob struct {
	queryID int64
	run     func()
	stop    bool
}

type workerMeta struct {
	ch        chan fetchJob
	lastUsed  time.Time
	enqueued  bool // is in the idle queue
	discarded bool // is targeted as delete
}

// fetchPool is a bounded worker pool with idle expiry. It grows on demand
// up to max and shrinks back to min when workers sit idle past expiry.
type fetchPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*workerMeta
	metadata map[chan fetchJob]*workerMeta
	min      int
	max      int
	running  int
	expiry   time.Duration
	stopped  bool
	done     chan struct{}
}

const defaultWorkerIdle = 30 * time.Second

func newFetchPool(minWorkers, maxWorkers int, idle time.Duration) *fetchPool {
	if minWorkers < 0 {
		minWorkers = 0
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	p := &fetchPool{
		metadata: make(map[chan fetchJob]*workerMeta),
		min:      minWorkers,
		max:      maxWorkers,
		expiry:   idle,
		done:     make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	go p.purgeStaleWorkers()
	return p
}

// submit hands the job to an idle worker, spawning one when allowed and
// blocking when the pool is saturated.
func (p *fetchPool) submit(job fetchJob) {
	ch := p.acquire()
	ch <- job
}

// acquire gets an idle worker channel, or spawns a new one. A freshly
// spawned worker is handed to the caller directly; it only enters the idle
// queue once it finishes a job.
func (p *fetchPool) acquire() chan fetchJob {
	p.mu.Lock()
	for {
		if meta := p.popIdleLocked(); meta != nil {
			p.mu.Unlock()
			return meta.ch
		}
		if p.running < p.max {
			ch := make(chan fetchJob)
			p.metadata[ch] = &workerMeta{ch: ch}
			p.running++
			p.mu.Unlock()
			go p.runWorker(ch)
			return ch
		}
		p.cond.Wait()
	}
}

func (p *fetchPool) runWorker(ch chan fetchJob) {
	for job := range ch {
		if job.stop {
			p.retire(ch)
			return
		}
		if job.run != nil {
			job.run()
		}
		if !p.release(ch) {
			return
		}
	}
}

// release returns a worker to the idle queue and reports whether the worker
// should keep running. After shutdown the worker is retired instead.
func (p *fetchPool) release(ch chan fetchJob) bool {
	p.mu.Lock()
	meta, ok := p.metadata[ch]
	if !ok || meta.discarded {
		p.mu.Unlock()
		return false
	}
	if p.stopped {
		delete(p.metadata, ch)
		meta.discarded = true
		if p.running > 0 {
			p.running--
		}
		p.mu.Unlock()
		return false
	}
	if meta.enqueued {
		p.mu.Unlock()
		return true
	}
	meta.enqueued = true
	meta.lastUsed = time.Now()
	p.idle = append(p.idle, meta)
	p.mu.Unlock()
	p.cond.Signal()
	return true
}

// retire deletes a worker.
func (p *fetchPool) retire(ch chan fetchJob) {
	p.mu.Lock()
	if meta, ok := p.metadata[ch]; ok {
		delete(p.metadata, ch)
		meta.discarded = true
		if p.running > 0 {
			p.running--
		}
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *fetchPool) popIdleLocked() *workerMeta {
	for len(p.idle) > 0 {
		meta := p.idle[0]
		p.idle = p.idle[1:]
		if meta.discarded {
			continue
		}
		meta.enqueued = false
		return meta
	}
	return nil
}

// purgeStaleWorkers retires idle workers past expiry, keeping min alive.
func (p *fetchPool) purgeStaleWorkers() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.shutdownExpired()
		case <-p.done:
			return
		}
	}
}

func (p *fetchPool) shutdownExpired() {
	var stale []*workerMeta
	now := time.Now()

	p.mu.Lock()
	if len(p.idle) == 0 || p.running <= p.min {
		p.mu.Unlock()
		return
	}
	remaining := p.idle[:0]
	for _, meta := range p.idle {
		if meta.discarded {
			continue
		}
		if now.Sub(meta.lastUsed) >= p.expiry && p.running-len(stale) > p.min {
			meta.discarded = true
			meta.enqueued = false
			stale = append(stale, meta)
			continue
		}
		remaining = append(remaining, meta)
	}
	p.idle = remaining
	p.mu.Unlock()

	for _, meta := range stale {
		meta.ch <- fetchJob{stop: true}
	}
}

// shutdown stops the purge loop and retires every idle worker. Busy workers
// retire themselves when their current job finishes and release sees the
// stopped flag.
func (p *fetchPool) shutdown() {
	close(p.done)
	p.mu.Lock()
	p.stopped = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, meta := range idle {
		if !meta.discarded {
			meta.ch <- fetchJob{stop: true}
		}
	}
	p.cond.Broadcast()
}
