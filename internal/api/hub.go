package api

import (
	gosync "sync"
)

// streamHub fans committed server sequence numbers out to the team's SSE
// subscribers. Sends never block: a subscriber whose buffer is full misses
// the notification and catches up on its next pull.
type streamHub struct {
	mu   gosync.RWMutex
	subs map[string]map[*subscriber]struct{} // teamID -> subscribers
}

type subscriber struct {
	ch chan int64
}

func newStreamHub() *streamHub {
	return &streamHub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a subscriber for a team's notifications. The returned
// cancel func must be called when the connection ends.
func (h *streamHub) Subscribe(teamID string) (<-chan int64, func()) {
	sub := &subscriber{ch: make(chan int64, 16)}

	h.mu.Lock()
	if h.subs[teamID] == nil {
		h.subs[teamID] = make(map[*subscriber]struct{})
	}
	h.subs[teamID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[teamID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, teamID)
			}
		}
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Notify delivers serverSeq to every live subscriber of the team.
func (h *streamHub) Notify(teamID string, serverSeq int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[teamID] {
		select {
		case sub.ch <- serverSeq:
		default:
		}
	}
}

// SubscriberCount reports the number of live subscribers across all teams.
func (h *streamHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.subs {
		n += len(set)
	}
	return n
}
