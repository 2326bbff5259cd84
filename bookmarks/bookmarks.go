package bookmarks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/signalsfoundry/globe-navigator/model"
)

var (
	ErrNotFound = errors.New("bookmark not found")
	ErrExists   = errors.New("bookmark already exists")
)

// EventType indicates what kind of change happened in the store.
type EventType int

const (
	EventAdded EventType = iota
	EventUpdated
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is emitted to subscribers when a bookmark changes.
type Event struct {
	Type      EventType
	Name      string
	Viewpoint model.Viewpoint
}

// Bookmark is a named viewpoint.
type Bookmark struct {
	Name      string
	Viewpoint model.Viewpoint
}

// Store is an in-memory, thread-safe set of named viewpoints.
type Store struct {
	mu sync.RWMutex

	entries map[string]model.Viewpoint
	order   []string

	subs   map[int]func(Event)
	nextID int
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]model.Viewpoint),
		subs:    make(map[int]func(Event)),
	}
}

// Add stores a new bookmark. It returns ErrExists if the name is taken.
func (s *Store) Add(name string, vp model.Viewpoint) error {
	if name == "" {
		return fmt.Errorf("add bookmark: empty name")
	}
	s.mu.Lock()
	if _, ok := s.entries[name]; ok {
		s.mu.Unlock()
		return fmt.Errorf("add %q: %w", name, ErrExists)
	}
	s.entries[name] = vp
	s.order = append(s.order, name)
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, Event{Type: EventAdded, Name: name, Viewpoint: vp})
	return nil
}

// Put adds or replaces a bookmark.
func (s *Store) Put(name string, vp model.Viewpoint) error {
	if name == "" {
		return fmt.Errorf("put bookmark: empty name")
	}
	s.mu.Lock()
	typ := EventUpdated
	if _, ok := s.entries[name]; !ok {
		typ = EventAdded
		s.order = append(s.order, name)
	}
	s.entries[name] = vp
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, Event{Type: typ, Name: name, Viewpoint: vp})
	return nil
}

// Get returns the viewpoint stored under name.
func (s *Store) Get(name string) (model.Viewpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vp, ok := s.entries[name]
	if !ok {
		return model.Viewpoint{}, fmt.Errorf("get %q: %w", name, ErrNotFound)
	}
	return vp, nil
}

// Remove deletes a bookmark.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	vp, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("remove %q: %w", name, ErrNotFound)
	}
	delete(s.entries, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	subs := s.subscribers()
	s.mu.Unlock()

	notify(subs, Event{Type: EventRemoved, Name: name, Viewpoint: vp})
	return nil
}

// List returns the bookmarks in insertion order.
func (s *Store) List() []Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]Bookmark, 0, len(s.order))
	for _, n := range s.order {
		res = append(res, Bookmark{Name: n, Viewpoint: s.entries[n]})
	}
	return res
}

// Names returns the bookmark names sorted alphabetically.
func (s *Store) Names() []string {
	s.mu.RLock()
	names := append([]string(nil), s.order...)
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Path builds a fly path visiting the named bookmarks in order, allotting
// each leg the given duration.
func (s *Store) Path(names []string, leg time.Duration) ([]model.PathPoint, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("build path: no bookmarks given")
	}
	if leg < 0 {
		return nil, fmt.Errorf("build path: negative leg duration %v", leg)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := make([]model.PathPoint, 0, len(names))
	for _, n := range names {
		vp, ok := s.entries[n]
		if !ok {
			return nil, fmt.Errorf("build path through %q: %w", n, ErrNotFound)
		}
		path = append(path, model.PathPoint{Viewpoint: vp, Duration: leg})
	}
	return path, nil
}

// Subscribe registers a callback for store events. It returns an
// unsubscribe function that is safe to call more than once.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
		})
	}
}

// subscribers copies the callbacks so they run outside the lock.
func (s *Store) subscribers() []func(Event) {
	subs := make([]func(Event), 0, len(s.subs))
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		subs = append(subs, s.subs[id])
	}
	return subs
}

func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}
