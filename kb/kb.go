// Package kb parses map-objects responses and keeps the points of interest
// they describe in an in-memory, thread-safe store.
package kb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/geoscan/internal/observability"
	"github.com/signalsfoundry/geoscan/model"
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventPointUpserted EventType = iota
	EventPointExpired
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type  EventType
	Point model.PointOfInterest
}

// Store holds the points of interest seen so far, keyed by ID.
type Store struct {
	mu      sync.RWMutex
	points  map[string]*model.PointOfInterest
	subs    map[int]func(Event)
	nextSub int

	metrics *observability.ScanCollector
}

// NewStore constructs an empty store. metrics may be nil.
func NewStore(metrics *observability.ScanCollector) *Store {
	return &Store{
		points:  make(map[string]*model.PointOfInterest),
		subs:    make(map[int]func(Event)),
		metrics: metrics,
	}
}

// Parse extracts every point of interest from a map-objects response and
// upserts them. The response is applied all-or-nothing: if a required key is
// missing the store is left untouched and the error wraps
// model.ErrMissingField.
func (s *Store) Parse(_ context.Context, resp *structpb.Struct) error {
	points, err := ParseMapObjects(resp)
	if err != nil {
		return err
	}
	s.Upsert(points...)
	return nil
}

// Upsert inserts or replaces points and notifies subscribers.
func (s *Store) Upsert(points ...model.PointOfInterest) {
	if len(points) == 0 {
		return
	}
	s.mu.Lock()
	for i := range points {
		p := points[i]
		s.points[p.ID] = &p
	}
	size := len(s.points)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.metrics.SetPointsOfInterest(size)

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, p := range points {
		for _, sub := range subs {
			sub(Event{Type: EventPointUpserted, Point: p})
		}
	}
}

// PruneExpired removes points whose disappearance time has passed and
// returns how many were dropped.
func (s *Store) PruneExpired(now time.Time) int {
	s.mu.Lock()
	var expired []model.PointOfInterest
	for id, p := range s.points {
		if p.Expired(now) {
			expired = append(expired, *p)
			delete(s.points, id)
		}
	}
	size := len(s.points)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.metrics.SetPointsOfInterest(size)
	for _, p := range expired {
		for _, sub := range subs {
			sub(Event{Type: EventPointExpired, Point: p})
		}
	}
	return len(expired)
}

// Get returns the point with the given ID.
func (s *Store) Get(id string) (model.PointOfInterest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.points[id]
	if !ok {
		return model.PointOfInterest{}, false
	}
	return *p, true
}

// List returns a snapshot of all points ordered by ID.
func (s *Store) List() []model.PointOfInterest {
	s.mu.RLock()
	res := make([]model.PointOfInterest, 0, len(s.points))
	for _, p := range s.points {
		res = append(res, *p)
	}
	s.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Len returns the number of stored points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Subscribe registers a callback for store events. It returns an unsubscribe function.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) subscribersLocked() []func(Event) {
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	return subs
}

func missing(path string) error {
	return fmt.Errorf("%w: %s", model.ErrMissingField, path)
}
