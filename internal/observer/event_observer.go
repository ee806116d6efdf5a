package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SearchEvent describes one step in the life of a search
type SearchEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SearchID       string                 `json:"search_id"`
	CandidateID    string                 `json:"candidate_id,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of search event
type EventType string

const (
	// SearchStarted when a query image has been received
	SearchStarted EventType = "search_started"
	// SearchCompleted when ranked matches are ready
	SearchCompleted EventType = "search_completed"
	// SearchFailed when the search could not produce a result
	SearchFailed EventType = "search_failed"
	// CandidateFailed when one stored image could not be scored
	CandidateFailed EventType = "candidate_failed"
	// SearchSuperseded when a newer search from the same session replaced this one
	SearchSuperseded EventType = "search_superseded"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event SearchEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event SearchEvent)
}

// LoggingObserver logs search events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles search events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event SearchEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"search_id":       event.SearchID,
		"processing_time": event.ProcessingTime,
	}
	if event.CandidateID != "" {
		fields["candidate_id"] = event.CandidateID
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case SearchStarted:
		entry.Info("Image search started")
	case SearchCompleted:
		entry.Info("Image search completed")
	case SearchFailed:
		entry.Error("Image search failed")
	case CandidateFailed:
		entry.Warn("Candidate image scored as zero")
	case SearchSuperseded:
		entry.Info("Image search superseded")
	default:
		entry.Info("Search event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from search events
type MetricsObserver struct {
	mu                  sync.RWMutex
	totalSearches       int64
	completedSearches   int64
	failedSearches      int64
	supersededSearches  int64
	candidateFailures   int64
	totalProcessingTime time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles search events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event SearchEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case SearchStarted:
		o.totalSearches++
	case SearchCompleted:
		o.completedSearches++
		o.totalProcessingTime += event.ProcessingTime
	case SearchFailed:
		o.failedSearches++
	case SearchSuperseded:
		o.supersededSearches++
	case CandidateFailed:
		o.candidateFailures++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.completedSearches > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.completedSearches)
	}

	return map[string]interface{}{
		"total_searches":        o.totalSearches,
		"completed_searches":    o.completedSearches,
		"failed_searches":       o.failedSearches,
		"superseded_searches":   o.supersededSearches,
		"candidate_failures":    o.candidateFailures,
		"avg_processing_time":   avgProcessingTime.String(),
		"avg_processing_millis": avgProcessingTime.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers notifies all observers of an event. Observers run on their
// own goroutines so a slow one never holds up a search.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event SearchEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	// the request context may be gone by the time an observer runs
	ctx = context.WithoutCancel(ctx)
	for _, observer := range observers {
		go func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}
