package crawler

import "sync"

// task is one unit of crawl work. Attempt counts prior transient failures.
type task struct {
	url     string
	attempt int
}

// Frontier is the FIFO crawl queue. It remembers every URL ever pushed so a
// page is enqueued at most once per run, and counts tasks handed out but not
// yet finished so workers can tell an empty queue from a finished crawl.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []task
	seen     map[string]struct{}
	inFlight int
	closed   bool
}

func NewFrontier() *Frontier {
	f := &Frontier{seen: make(map[string]struct{})}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Push enqueues url unless it was seen before or the frontier is closed.
func (f *Frontier) Push(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, ok := f.seen[url]; ok {
		return false
	}
	f.seen[url] = struct{}{}
	f.queue = append(f.queue, task{url: url})
	f.cond.Signal()
	return true
}

// Retry puts t back at the tail with its attempt count bumped. It must be
// called before Done for the failed task so the crawl does not look finished
// in between.
func (f *Frontier) Retry(t task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	t.attempt++
	f.queue = append(f.queue, t)
	f.cond.Signal()
	return true
}

// Pop blocks until a task is available. It returns false once the frontier
// is closed or drained: the queue is empty and nothing is in flight.
func (f *Frontier) Pop() (task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.queue) == 0 && f.inFlight > 0 && !f.closed {
		f.cond.Wait()
	}
	if f.closed || len(f.queue) == 0 {
		f.cond.Broadcast()
		return task{}, false
	}
	t := f.queue[0]
	f.queue[0] = task{}
	f.queue = f.queue[1:]
	f.inFlight++
	return t, true
}

// Done marks a popped task finished.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if f.inFlight == 0 && len(f.queue) == 0 {
		f.cond.Broadcast()
	}
}

// Close wakes every waiter; subsequent Pops return false.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *Frontier) Seen(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.seen[url]
	return ok
}
