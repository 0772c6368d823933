package eventbus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/logger"
)

// Publisher defines the interface for publishing events.
// This interface enables testing with mock implementations.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

// Ensure EventBus implements Publisher
var _ Publisher = (*EventBus)(nil)

// EventBus fans events out to in-memory subscribers. Events are not
// persisted; consumers that need history keep their own.
type EventBus struct {
	subscribers map[domain.EventType][]chan domain.Event
	mu          sync.RWMutex
	stopChan    chan struct{}
	wg          sync.WaitGroup
	nextID      atomic.Int64
	dropped     atomic.Int64
}

func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[domain.EventType][]chan domain.Event),
		stopChan:    make(chan struct{}),
	}
}

func (eb *EventBus) Publish(event domain.Event) error {
	if event.EventType == "" {
		return fmt.Errorf("cannot publish event with empty event type")
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.ID == 0 {
		event.ID = eb.nextID.Add(1)
	}

	logger.Debugf("EventBus: Publishing event %s (ID: %d, AggregateID: %s)", event.EventType, event.ID, event.AggregateID)

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if subscribers, ok := eb.subscribers[event.EventType]; ok {
		for _, ch := range subscribers {
			select {
			case ch <- event:
			default:
				// Non-blocking, drop if buffer full to prevent blocking the publisher
				eb.dropped.Add(1)
				logger.Warnf("EventBus: Dropped event %s for slow subscriber (total dropped: %d)", event.EventType, eb.dropped.Load())
			}
		}
	}

	return nil
}

func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	ch := make(chan domain.Event, 100)

	eb.mu.Lock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	eb.mu.Unlock()

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return // Channel closed
				}
				handler(event)
			case <-eb.stopChan:
				return // Shutdown signal received
			}
		}
	}()
}

// Dropped reports how many events were discarded because a subscriber's
// buffer was full.
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}

// Shutdown stops all subscriber goroutines and waits for them to finish
func (eb *EventBus) Shutdown() {
	close(eb.stopChan)
	eb.wg.Wait()
	logger.Infof("EventBus shutdown complete")
}
