// Package testutil provides test utilities including mocks, fixtures, and test database helpers.
package testutil

import (
	"sync"
	"time"

	"github.com/mescon/chronarr/internal/clock"
	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/eventbus"
)

// =============================================================================
// MockClock - Testable time abstraction
// =============================================================================

// MockClock implements clock.Clock for testing, providing deterministic control
// over time-dependent operations like boundary-aligned timers.
type MockClock struct {
	mu           sync.Mutex
	now          time.Time
	pendingFuncs []pendingFunc
	scheduleErr  error
}

type pendingFunc struct {
	executeAt time.Time
	fn        func()
	stopped   bool
}

// MockTimer implements clock.Timer for testing.
type MockTimer struct {
	clock *MockClock
	index int
}

// Compile-time assertion that MockClock implements clock.Clock
var _ clock.Clock = (*MockClock)(nil)

// NewMockClock creates a new MockClock with the current time as initial value.
func NewMockClock() *MockClock {
	return &MockClock{
		now: time.Now(),
	}
}

// NewMockClockAt creates a new MockClock with a specific initial time.
func NewMockClockAt(t time.Time) *MockClock {
	return &MockClock{
		now: t,
	}
}

// Now returns the mock's current time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow sets the mock's current time without triggering pending functions.
func (m *MockClock) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// AfterFunc schedules f to be called after duration d.
// Returns a Timer that can be used to cancel the call.
func (m *MockClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addPendingLocked(m.now.Add(d), f)
}

// ScheduleAt schedules f to be called at the absolute instant at. A zero
// instant returns clock.ErrZeroInstant like the real implementation, and
// SetScheduleError can inject arbitrary arm failures.
func (m *MockClock) ScheduleAt(at time.Time, f func()) (clock.Timer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scheduleErr != nil {
		return nil, m.scheduleErr
	}
	if at.IsZero() {
		return nil, clock.ErrZeroInstant
	}
	return m.addPendingLocked(at, f), nil
}

func (m *MockClock) addPendingLocked(executeAt time.Time, f func()) clock.Timer {
	index := len(m.pendingFuncs)
	m.pendingFuncs = append(m.pendingFuncs, pendingFunc{
		executeAt: executeAt,
		fn:        f,
		stopped:   false,
	})
	return &MockTimer{clock: m, index: index}
}

// SetScheduleError makes subsequent ScheduleAt calls fail with err.
// Pass nil to restore normal scheduling.
func (m *MockClock) SetScheduleError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduleErr = err
}

// Advance moves time forward by the given duration and executes any functions
// whose scheduled time has passed. Returns the number of functions executed.
func (m *MockClock) Advance(d time.Duration) int {
	m.mu.Lock()
	newTime := m.now.Add(d)
	m.now = newTime

	// Collect functions to execute (those that haven't been stopped and are due)
	var toExecute []func()
	for i := range m.pendingFuncs {
		pf := &m.pendingFuncs[i]
		if !pf.stopped && !pf.executeAt.After(newTime) {
			toExecute = append(toExecute, pf.fn)
			pf.stopped = true // Mark as executed
		}
	}
	m.mu.Unlock()

	// Execute outside the lock to avoid deadlocks
	for _, fn := range toExecute {
		fn()
	}
	return len(toExecute)
}

// AdvanceTo moves time forward to the given instant and executes due functions.
func (m *MockClock) AdvanceTo(t time.Time) int {
	m.mu.Lock()
	d := t.Sub(m.now)
	m.mu.Unlock()
	if d < 0 {
		d = 0
	}
	return m.Advance(d)
}

// FireAll immediately executes all pending scheduled functions, regardless of
// their scheduled time. Useful for testing without worrying about delays.
func (m *MockClock) FireAll() int {
	m.mu.Lock()
	var toExecute []func()
	for i := range m.pendingFuncs {
		pf := &m.pendingFuncs[i]
		if !pf.stopped {
			toExecute = append(toExecute, pf.fn)
			pf.stopped = true
		}
	}
	m.mu.Unlock()

	for _, fn := range toExecute {
		fn()
	}
	return len(toExecute)
}

// PendingCount returns the number of scheduled functions that haven't been
// executed or stopped.
func (m *MockClock) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, pf := range m.pendingFuncs {
		if !pf.stopped {
			count++
		}
	}
	return count
}

// PendingTimes returns the target instants of all scheduled functions that
// haven't been executed or stopped, in scheduling order.
func (m *MockClock) PendingTimes() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	var times []time.Time
	for _, pf := range m.pendingFuncs {
		if !pf.stopped {
			times = append(times, pf.executeAt)
		}
	}
	return times
}

// Reset clears all pending scheduled functions and resets time to now.
func (m *MockClock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingFuncs = nil
	m.scheduleErr = nil
	m.now = time.Now()
}

// Stop prevents the timer from firing. Returns true if the timer was stopped,
// false if it had already fired or been stopped.
func (t *MockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.index < len(t.clock.pendingFuncs) && !t.clock.pendingFuncs[t.index].stopped {
		t.clock.pendingFuncs[t.index].stopped = true
		return true
	}
	return false
}

// =============================================================================
// MockEventBus - Synchronous in-memory bus for deterministic tests
// =============================================================================

// MockEventBus provides a simple in-memory event bus for testing.
// It captures all published events and allows synchronous subscription.
// Implements eventbus.Publisher interface.
type MockEventBus struct {
	mu              sync.Mutex
	PublishedEvents []domain.Event
	Subscribers     map[domain.EventType][]func(domain.Event)
}

// Compile-time assertion that MockEventBus implements eventbus.Publisher
var _ eventbus.Publisher = (*MockEventBus)(nil)

// NewMockEventBus creates a new mock event bus.
func NewMockEventBus() *MockEventBus {
	return &MockEventBus{
		Subscribers: make(map[domain.EventType][]func(domain.Event)),
	}
}

// Publish stores the event and notifies subscribers synchronously.
func (m *MockEventBus) Publish(event domain.Event) error {
	m.mu.Lock()
	m.PublishedEvents = append(m.PublishedEvents, event)
	subscribers := m.Subscribers[event.EventType]
	m.mu.Unlock()

	// Notify subscribers synchronously for deterministic testing
	for _, handler := range subscribers {
		handler(event)
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (m *MockEventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscribers[eventType] = append(m.Subscribers[eventType], handler)
}

// GetEvents returns all published events of a given type.
func (m *MockEventBus) GetEvents(eventType domain.EventType) []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Event
	for _, e := range m.PublishedEvents {
		if e.EventType == eventType {
			result = append(result, e)
		}
	}
	return result
}

// GetAllEvents returns all published events.
func (m *MockEventBus) GetAllEvents() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]domain.Event, len(m.PublishedEvents))
	copy(result, m.PublishedEvents)
	return result
}

// Reset clears all published events and subscribers.
func (m *MockEventBus) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = nil
	m.Subscribers = make(map[domain.EventType][]func(domain.Event))
}

// EventCount returns the number of events of a given type.
func (m *MockEventBus) EventCount(eventType domain.EventType) int {
	return len(m.GetEvents(eventType))
}

// LastEvent returns the most recently published event, or nil if none.
func (m *MockEventBus) LastEvent() *domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PublishedEvents) == 0 {
		return nil
	}
	return &m.PublishedEvents[len(m.PublishedEvents)-1]
}

// =============================================================================
// MockSchedulerService - Mock for services.Scheduler
// =============================================================================

// MockCall records a method call for verification in tests.
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockSchedulerService implements services.Scheduler for testing.
type MockSchedulerService struct {
	StartFunc          func()
	StopFunc           func()
	LoadSchedulesFunc  func() error
	AddScheduleFunc    func(name, cronExpr string, kinds []string, notify bool) (int64, error)
	UpdateScheduleFunc func(id int64, name, cronExpr string, kinds []string, notify, enabled bool) error
	DeleteScheduleFunc func(id int64) error

	mu    sync.Mutex
	Calls []MockCall
}

func (m *MockSchedulerService) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// CallCount returns the number of times a method was called.
func (m *MockSchedulerService) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, call := range m.Calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

// ResetCalls clears the call history.
func (m *MockSchedulerService) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

func (m *MockSchedulerService) Start() {
	m.recordCall("Start")
	if m.StartFunc != nil {
		m.StartFunc()
	}
}

func (m *MockSchedulerService) Stop() {
	m.recordCall("Stop")
	if m.StopFunc != nil {
		m.StopFunc()
	}
}

func (m *MockSchedulerService) LoadSchedules() error {
	m.recordCall("LoadSchedules")
	if m.LoadSchedulesFunc != nil {
		return m.LoadSchedulesFunc()
	}
	return nil
}

func (m *MockSchedulerService) AddSchedule(name, cronExpr string, kinds []string, notify bool) (int64, error) {
	m.recordCall("AddSchedule", name, cronExpr, kinds, notify)
	if m.AddScheduleFunc != nil {
		return m.AddScheduleFunc(name, cronExpr, kinds, notify)
	}
	return 1, nil // Return default ID
}

func (m *MockSchedulerService) UpdateSchedule(id int64, name, cronExpr string, kinds []string, notify, enabled bool) error {
	m.recordCall("UpdateSchedule", id, name, cronExpr, kinds, notify, enabled)
	if m.UpdateScheduleFunc != nil {
		return m.UpdateScheduleFunc(id, name, cronExpr, kinds, notify, enabled)
	}
	return nil
}

func (m *MockSchedulerService) DeleteSchedule(id int64) error {
	m.recordCall("DeleteSchedule", id)
	if m.DeleteScheduleFunc != nil {
		return m.DeleteScheduleFunc(id)
	}
	return nil
}
