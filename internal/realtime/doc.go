// Package realtime mirrors in-progress session state to a shared document
// per review, so a second device grading the same review sees near-live
// updates. Everything here is best-effort: the locally persisted snapshot
// stays authoritative regardless of sync health.
package realtime

import (
	"sync"

	"reviewdeck/internal/session"
)

// Doc is the sync variant of a session snapshot: the full state tagged
// with the writing client's identity and a write timestamp.
type Doc struct {
	session.State
	ClientID  string `json:"clientId"`
	Timestamp int64  `json:"timestamp"`
}

// Event is delivered to subscribers on every document change. Deleted
// signals the document disappearing (the review was finalized somewhere).
type Event struct {
	ReviewID int64
	Doc      Doc
	Deleted  bool
}

// DocStore is the shared real-time document collection, one document per
// review id. Last full write wins.
type DocStore interface {
	Get(reviewID int64) (Doc, bool, error)
	Set(reviewID int64, doc Doc) error
	Delete(reviewID int64) error
	// Subscribe registers fn for every change to the review's document and
	// returns a cancel function. fn may be invoked from any goroutine.
	Subscribe(reviewID int64, fn func(Event)) (func(), error)
}

// MemoryStore is an in-process DocStore with channel-free synchronous
// fanout. It stands in for an external real-time document service behind
// the same interface.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[int64]Doc
	subs    map[int64]map[int]func(Event)
	nextSub int
}

// NewMemoryStore creates an empty document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[int64]Doc),
		subs: make(map[int64]map[int]func(Event)),
	}
}

// Get returns the document for a review.
func (s *MemoryStore) Get(reviewID int64) (Doc, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[reviewID]
	return doc, ok, nil
}

// Set overwrites the document and notifies subscribers.
func (s *MemoryStore) Set(reviewID int64, doc Doc) error {
	s.mu.Lock()
	s.docs[reviewID] = doc
	fns := s.subscribersLocked(reviewID)
	s.mu.Unlock()

	ev := Event{ReviewID: reviewID, Doc: doc}
	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

// Delete removes the document and notifies subscribers with a deletion
// event. Deleting a missing document is a no-op.
func (s *MemoryStore) Delete(reviewID int64) error {
	s.mu.Lock()
	_, existed := s.docs[reviewID]
	delete(s.docs, reviewID)
	fns := s.subscribersLocked(reviewID)
	s.mu.Unlock()

	if !existed {
		return nil
	}
	ev := Event{ReviewID: reviewID, Deleted: true}
	for _, fn := range fns {
		fn(ev)
	}
	return nil
}

// Subscribe registers a change listener for one review's document.
func (s *MemoryStore) Subscribe(reviewID int64, fn func(Event)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs[reviewID] == nil {
		s.subs[reviewID] = make(map[int]func(Event))
	}
	id := s.nextSub
	s.nextSub++
	s.subs[reviewID][id] = fn

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[reviewID], id)
	}
	return cancel, nil
}

// subscribersLocked snapshots the listener list so callbacks run without
// holding the store lock.
func (s *MemoryStore) subscribersLocked(reviewID int64) []func(Event) {
	fns := make([]func(Event), 0, len(s.subs[reviewID]))
	for _, fn := range s.subs[reviewID] {
		fns = append(fns, fn)
	}
	return fns
}
