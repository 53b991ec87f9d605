package progress

import (
	"sync"
	"time"
)

// Stages reported while an export runs.
const (
	StageAuthenticated = "authenticated"
	StagePage          = "page"
	StageRendered      = "rendered"
	StageCompleted     = "completed"
	StageFailed        = "failed"
)

const subscriberBuffer = 32

// Event is one progress notification of an export.
type Event struct {
	ExportID  string    `json:"export_id"`
	Stage     string    `json:"stage"`
	Page      int       `json:"page,omitempty"`
	PageCount int       `json:"page_count,omitempty"`
	Rows      int       `json:"rows,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// Terminal reports whether no further events follow.
func (e Event) Terminal() bool {
	return e.Stage == StageCompleted || e.Stage == StageFailed
}

// Hub fans export events out to the subscribers of each export id.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers interest in exportID. The returned cancel func must be called once the
// caller stops reading.
func (h *Hub) Subscribe(exportID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subscribers[exportID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subscribers[exportID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if set, ok := h.subscribers[exportID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subscribers, exportID)
				}
			}
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber of ev.ExportID without blocking; slow subscribers
// lose events.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[ev.ExportID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers for exportID.
func (h *Hub) Subscribers(exportID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[exportID])
}
