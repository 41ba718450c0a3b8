package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a pipeline lifecycle notification.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	RunID     string                 `json:"run_id,omitempty"`
	Stage     string                 `json:"stage,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event types. Stage events are "stage." plus the stage status.
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunFailed       = "run.failed"
	EventTypeStageStarted    = "stage.started"
	EventTypeStageCompleted  = "stage.completed"
	EventTypeStageFailed     = "stage.failed"
	EventTypeStageSkipped    = "stage.skipped"
	EventTypePolicyViolation = "policy.violation"
)

// Event levels, lowest first.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

var levelRank = map[string]int{
	EventLevelInfo:    0,
	EventLevelWarning: 1,
	EventLevelError:   2,
}

var (
	// ErrPublisherStopped is returned by Publish after Shutdown.
	ErrPublisherStopped = errors.New("event publisher stopped")
	// ErrEventDropped is returned when the async buffer is full.
	ErrEventDropped = errors.New("event buffer full, event dropped")
)

// EventSubscriber handles one event.
type EventSubscriber func(event Event)

// EventFilter reports whether a subscriber wants an event.
type EventFilter func(event Event) bool

type subscription struct {
	handle EventSubscriber
	accept EventFilter
}

// EventPublisher fans events out to subscribers, either inline or from a
// background goroutine when EventsConfig.EnableAsync is set.
type EventPublisher struct {
	async bool
	queue chan Event

	mu   sync.RWMutex
	subs []subscription

	stop     chan struct{}
	stopOnce sync.Once
	drained  chan struct{}
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	ep := &EventPublisher{
		async:   cfg.EnableAsync,
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
	}

	if ep.async {
		ep.queue = make(chan Event, cfg.BufferSize)
		go ep.pump()
	} else {
		close(ep.drained)
	}
	return ep
}

// Publish fills in the ID, timestamp and level when missing and hands the
// event to subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	if !ep.async {
		ep.deliver(event)
		return nil
	}

	select {
	case <-ep.stop:
		return ErrPublisherStopped
	default:
	}

	select {
	case ep.queue <- event:
		return nil
	default:
		return ErrEventDropped
	}
}

// PublishRunStarted announces a new run of scenario.
func (ep *EventPublisher) PublishRunStarted(runID, scenario string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s started for %s", runID, scenario),
		Data:    map[string]interface{}{"scenario": scenario},
	})
}

// PublishRunCompleted announces a successful run.
func (ep *EventPublisher) PublishRunCompleted(runID string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		RunID:   runID,
		Message: fmt.Sprintf("Run %s completed in %s", runID, duration.Round(time.Millisecond)),
		Data:    map[string]interface{}{"duration_ms": duration.Milliseconds()},
	})
}

// PublishRunFailed announces a failed run.
func (ep *EventPublisher) PublishRunFailed(runID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunFailed,
		RunID:   runID,
		Level:   EventLevelError,
		Message: fmt.Sprintf("Run %s failed: %s", runID, reason),
	})
}

// PublishStage publishes a stage lifecycle event. status is one of
// started, completed, failed or skipped.
func (ep *EventPublisher) PublishStage(runID, stage, status, message string) error {
	level := EventLevelInfo
	if status == "failed" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    "stage." + status,
		RunID:   runID,
		Stage:   stage,
		Level:   level,
		Message: message,
	})
}

// PublishPolicyViolation publishes one lint finding. Error severities are
// raised to the error level, everything else is a warning.
func (ep *EventPublisher) PublishPolicyViolation(runID, rule, severity, message string) error {
	level := EventLevelWarning
	if severity == "error" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		RunID:   runID,
		Stage:   "lint",
		Level:   level,
		Message: message,
		Data:    map[string]interface{}{"rule": rule, "severity": severity},
	})
}

// Subscribe registers handle for the events accepted by filter. A nil
// filter accepts everything.
func (ep *EventPublisher) Subscribe(handle EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subs = append(ep.subs, subscription{handle: handle, accept: filter})
}

// pump delivers queued events until Shutdown, then flushes the queue.
func (ep *EventPublisher) pump() {
	defer close(ep.drained)

	for {
		select {
		case event := <-ep.queue:
			ep.deliver(event)
		case <-ep.stop:
			for {
				select {
				case event := <-ep.queue:
					ep.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, s := range ep.subs {
		if s.accept == nil || s.accept(event) {
			s.handle(event)
		}
	}
}

// Shutdown stops accepting events and waits for buffered ones to be
// delivered, or for ctx to expire.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	ep.stopOnce.Do(func() { close(ep.stop) })

	select {
	case <-ep.drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown: %w", ctx.Err())
	}
}

// FilterByLevel accepts events at minLevel or above.
func FilterByLevel(minLevel string) EventFilter {
	floor := levelRank[minLevel]
	return func(event Event) bool {
		return levelRank[event.Level] >= floor
	}
}

// FilterByType accepts events of the given types.
func FilterByType(types ...string) EventFilter {
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	return func(event Event) bool {
		return wanted[event.Type]
	}
}

// FilterByRunID accepts events of one run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}
