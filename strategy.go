package eventsource

import (
	"log/slog"
	"sync"
	"time"
)

// SnapshotStrategy decides whether the Repository should snapshot an
// aggregate after a save. eventsSinceSnapshot is the number of events
// appended since the last snapshot (or since the aggregate was created).
type SnapshotStrategy interface {
	ShouldSnapshot(aggregateID string, eventsSinceSnapshot int) bool
}

// EventCountSnapshotStrategy snapshots every threshold events.
type EventCountSnapshotStrategy struct {
	threshold int
}

// NewEventCountSnapshotStrategy creates a strategy that snapshots once
// threshold or more events have accumulated. Thresholds below 1 are coerced
// to 1.
func NewEventCountSnapshotStrategy(threshold int) *EventCountSnapshotStrategy {
	if threshold < 1 {
		threshold = 1
	}
	return &EventCountSnapshotStrategy{threshold: threshold}
}

func (s *EventCountSnapshotStrategy) ShouldSnapshot(aggregateID string, eventsSinceSnapshot int) bool {
	return eventsSinceSnapshot >= s.threshold
}

// TimeBasedSnapshotStrategy snapshots when a fixed interval has elapsed
// since the last snapshot it approved for the aggregate. It tracks its own
// per-aggregate timestamps, independent of any SnapshotStore.
type TimeBasedSnapshotStrategy struct {
	mu           sync.Mutex
	interval     time.Duration
	lastSnapshot map[string]time.Time
	clock        func() time.Time
}

// NewTimeBasedSnapshotStrategy creates a strategy that approves the first
// save it sees for an aggregate, then at most one per interval.
func NewTimeBasedSnapshotStrategy(interval time.Duration) *TimeBasedSnapshotStrategy {
	return &TimeBasedSnapshotStrategy{
		interval:     interval,
		lastSnapshot: make(map[string]time.Time),
		clock:        time.Now,
	}
}

func (s *TimeBasedSnapshotStrategy) ShouldSnapshot(aggregateID string, eventsSinceSnapshot int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowTime := s.clock()
	last, ok := s.lastSnapshot[aggregateID]
	if ok && nowTime.Sub(last) < s.interval {
		return false
	}
	s.lastSnapshot[aggregateID] = nowTime
	return true
}

// CompositeSnapshotStrategy combines strategies with OR semantics: it
// returns true when any child returns true. A panicking child is recovered
// and logged without blocking the evaluation of the others.
type CompositeSnapshotStrategy struct {
	log        *slog.Logger
	strategies []SnapshotStrategy
}

// NewCompositeSnapshotStrategy creates an OR-combination of strategies.
// A nil logger falls back to slog.Default().
func NewCompositeSnapshotStrategy(log *slog.Logger, strategies ...SnapshotStrategy) *CompositeSnapshotStrategy {
	if log == nil {
		log = slog.Default()
	}
	return &CompositeSnapshotStrategy{log: log, strategies: strategies}
}

func (s *CompositeSnapshotStrategy) ShouldSnapshot(aggregateID string, eventsSinceSnapshot int) bool {
	should := false
	for _, strategy := range s.strategies {
		// Every child gets evaluated, even after one says yes: the
		// time-based strategy records its timestamps as a side effect.
		if s.evaluate(strategy, aggregateID, eventsSinceSnapshot) {
			should = true
		}
	}
	return should
}

func (s *CompositeSnapshotStrategy) evaluate(strategy SnapshotStrategy, aggregateID string, eventsSinceSnapshot int) (should bool) {
	defer func() {
		if r := recover(); r != nil {
			should = false
			s.log.Error("snapshot strategy panicked",
				slog.String("aggregate_id", aggregateID),
				slog.Any("panic", r),
			)
		}
	}()
	return strategy.ShouldSnapshot(aggregateID, eventsSinceSnapshot)
}

var (
	_ SnapshotStrategy = (*EventCountSnapshotStrategy)(nil)
	_ SnapshotStrategy = (*TimeBasedSnapshotStrategy)(nil)
	_ SnapshotStrategy = (*CompositeSnapshotStrategy)(nil)
)
