package scheduler

import "sync"

// frontier hands out batches of page ids. Each id is handed out once,
// however many times it was added.
type frontier struct {
	mu        sync.Mutex
	queue     []int
	seen      map[int]bool
	batchSize int
}

func newFrontier(pageIDs []int, batchSize int) *frontier {
	f := &frontier{
		seen:      make(map[int]bool, len(pageIDs)),
		batchSize: batchSize,
	}
	f.add(pageIDs)
	return f
}

func (f *frontier) add(pageIDs []int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range pageIDs {
		if f.seen[id] {
			continue
		}
		f.seen[id] = true
		f.queue = append(f.queue, id)
	}
}

// next returns the next batch, or false once the queue is drained.
func (f *frontier) next() ([]int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return nil, false
	}
	n := min(f.batchSize, len(f.queue))
	batch := f.queue[:n:n]
	f.queue = f.queue[n:]
	return batch, true
}

func (f *frontier) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}
