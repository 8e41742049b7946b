package server

import "sync"

// digestLocks serializes the commit step of uploads and deletes per content
// digest. Unrelated digests proceed in parallel; a single global lock would
// needlessly serialize every upload.
type digestLocks struct {
	mu    sync.Mutex
	locks map[string]*digestLock
}

type digestLock struct {
	mu      sync.Mutex
	waiters int
}

func newDigestLocks() *digestLocks {
	return &digestLocks{locks: make(map[string]*digestLock)}
}

// lock acquires the per-digest mutex and returns its unlock function.
// Lock entries are reclaimed once the last waiter releases, so the table
// stays proportional to in-flight commits.
func (d *digestLocks) lock(dgst string) func() {
	d.mu.Lock()
	l := d.locks[dgst]
	if l == nil {
		l = &digestLock{}
		d.locks[dgst] = l
	}
	l.waiters++
	d.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		d.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(d.locks, dgst)
		}
		d.mu.Unlock()
	}
}
