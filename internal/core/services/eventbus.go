package services

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/manthysbr/firewerk/internal/core/domain"
)

type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypeArtifact EventType = "artifact"
	EventTypeLog      EventType = "log"
)

type Event struct {
	JobID     domain.JobID `json:"job_id"`
	Type      EventType    `json:"type"`
	Data      string       `json:"data"` // JSON payload or raw text
	Timestamp int64        `json:"timestamp"`
}

// NewEvent marshals payload into an event stamped with the current time.
// Strings are carried as-is.
func NewEvent(jobID domain.JobID, typ EventType, payload any) Event {
	data, ok := payload.(string)
	if !ok {
		raw, err := json.Marshal(payload)
		if err != nil {
			raw = []byte(`{}`)
		}
		data = string(raw)
	}
	return Event{JobID: jobID, Type: typ, Data: data, Timestamp: time.Now().UnixMilli()}
}

type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[domain.JobID][]chan Event
	global []chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[domain.JobID][]chan Event),
	}
}

// Subscribe returns a channel that receives events for a specific job
func (b *EventBus) Subscribe(jobID domain.JobID) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.subs[jobID] = append(b.subs[jobID], ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subs[jobID]
			for i, sub := range subscribers {
				if sub == ch {
					close(ch)
					b.subs[jobID] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
		})
	}
	return ch, unsub
}

// SubscribeGlobal returns a channel that receives the events of every job.
func (b *EventBus) SubscribeGlobal() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100)
	b.global = append(b.global, ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.global {
				if sub == ch {
					close(ch)
					b.global = append(b.global[:i], b.global[i+1:]...)
					break
				}
			}
		})
	}
	return ch, unsub
}

// Publish sends an event to all subscribers of the job and to global
// subscribers. Slow subscribers lose events instead of blocking the job.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[e.JobID] {
		b.send(ch, e)
	}
	for _, ch := range b.global {
		b.send(ch, e)
	}
}

func (b *EventBus) send(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		b.logger.Warn("event bus channel full, dropping event", "job_id", e.JobID, "type", e.Type)
	}
}
