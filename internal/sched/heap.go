package sched

import (
	"time"

	"github.com/spec-kit/helpdesk-engine/internal/domain"
)

// timerEntry mirrors a pending intent inside the in-memory heap.
// Entries are removed lazily: cancellation flips the intent's state in
// the store, and stale entries are skipped when they surface.
type timerEntry struct {
	fireAt   time.Time
	intentID string
	ticketID string
	kind     domain.TimerKind
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].fireAt.Equal(h[j].fireAt) {
		return h[i].intentID < h[j].intentID
	}
	return h[i].fireAt.Before(h[j].fireAt)
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
