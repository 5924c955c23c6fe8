package stream

import (
	"context"
	"sync"
	"time"
)

// Location is the map point of a protected area.
type Location struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// SponsorshipEvent announces a fulfilled sponsorship on the live map.
// It never carries buyer identity.
type SponsorshipEvent struct {
	AreaSlug  string    `json:"area_slug"`
	Location  Location  `json:"location"`
	Hectares  int       `json:"hectares"`
	Recurring bool      `json:"recurring"`
	Timestamp time.Time `json:"timestamp"`
}

const defaultHistory = 50

// Stream fan-outs sponsorship events to all active subscribers (SSE clients)
// and remembers the last few so a freshly opened map is not empty.
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]chan SponsorshipEvent
	next    int
	history []SponsorshipEvent
	keep    int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{
		subs: make(map[int]chan SponsorshipEvent),
		keep: defaultHistory,
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan SponsorshipEvent {
	ch := make(chan SponsorshipEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers. Slow subscribers miss events
// rather than block fulfillment.
func (s *Stream) Publish(evt SponsorshipEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.history = append(s.history, evt)
	if len(s.history) > s.keep {
		s.history = s.history[len(s.history)-s.keep:]
	}
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Recent returns up to the last n events, oldest first.
func (s *Stream) Recent(n int) []SponsorshipEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	out := make([]SponsorshipEvent, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// Subscribers reports the number of connected subscribers.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
