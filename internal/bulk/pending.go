package bulk

import (
	"container/heap"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/fineprint/pkg/models"
)

// pending is a heap of queue entries ordered by priority desc, then enqueue
// time asc. seq breaks ties between identical timestamps.
type pending struct {
	entries []pendingEntry
	next    uint64
}

type pendingEntry struct {
	models.QueueEntry
	seq uint64
}

func (p *pending) Len() int { return len(p.entries) }

func (p *pending) Less(i, j int) bool {
	a, b := p.entries[i], p.entries[j]
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.seq < b.seq
}

func (p *pending) Swap(i, j int) { p.entries[i], p.entries[j] = p.entries[j], p.entries[i] }

func (p *pending) Push(x any) { p.entries = append(p.entries, x.(pendingEntry)) }

func (p *pending) Pop() any {
	old := p.entries
	n := len(old)
	e := old[n-1]
	p.entries = old[:n-1]
	return e
}

func (p *pending) push(e models.QueueEntry) {
	p.next++
	heap.Push(p, pendingEntry{QueueEntry: e, seq: p.next})
}

func (p *pending) pop() (models.QueueEntry, bool) {
	if p.Len() == 0 {
		return models.QueueEntry{}, false
	}
	return heap.Pop(p).(pendingEntry).QueueEntry, true
}

// remove drops the entry for jobID and reports whether it was present.
func (p *pending) remove(jobID uuid.UUID) bool {
	for i, e := range p.entries {
		if e.JobID == jobID {
			heap.Remove(p, i)
			return true
		}
	}
	return false
}

func (p *pending) contains(jobID uuid.UUID) bool {
	for _, e := range p.entries {
		if e.JobID == jobID {
			return true
		}
	}
	return false
}

// snapshot returns the entries in dispatch order.
func (p *pending) snapshot() []models.QueueEntry {
	cp := &pending{entries: append([]pendingEntry(nil), p.entries...)}
	out := make([]models.QueueEntry, 0, cp.Len())
	for cp.Len() > 0 {
		out = append(out, heap.Pop(cp).(pendingEntry).QueueEntry)
	}
	return out
}
