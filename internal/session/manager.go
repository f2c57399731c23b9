package session

import (
	"errors"
	"sync"

	"reviewdeck/internal/model"
)

// ErrReviewFinished rejects opening a session for an already-finalized review.
var ErrReviewFinished = errors.New("review is already finalized")

// ReviewSource is the slice of the relational store the manager reads from.
type ReviewSource interface {
	GetReview(id int64) (model.Review, error)
	ListQuestionsByModule(moduleID int) ([]model.Question, error)
	SetReviewStatus(id int64, status model.ReviewStatus) error
}

// MirrorFactory builds the cross-device mirror for a freshly opened
// machine. A nil factory disables sync entirely.
type MirrorFactory func(reviewID int64, m *Machine) Mirror

// Manager owns at most one live machine per review id.
type Manager struct {
	mu       sync.Mutex
	machines map[int64]*Machine

	reviews   ReviewSource
	snapshots *Snapshots
	finalizer *Finalizer
	newMirror MirrorFactory
}

// NewManager builds a session manager.
func NewManager(reviews ReviewSource, snaps *Snapshots, fin *Finalizer, newMirror MirrorFactory) *Manager {
	return &Manager{
		machines:  make(map[int64]*Machine),
		reviews:   reviews,
		snapshots: snaps,
		finalizer: fin,
		newMirror: newMirror,
	}
}

// Open returns the live machine for a review, hydrating it from the
// persisted snapshot (or a fresh default) if none is live yet. Opening a
// pending review moves it to ongoing.
func (mgr *Manager) Open(reviewID int64) (*Machine, error) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if m, ok := mgr.machines[reviewID]; ok {
		return m, nil
	}

	review, err := mgr.reviews.GetReview(reviewID)
	if err != nil {
		return nil, err
	}
	if review.Status == model.ReviewCompleted || review.Status == model.ReviewFailed {
		return nil, ErrReviewFinished
	}

	questions, err := mgr.reviews.ListQuestionsByModule(review.ModuleID)
	if err != nil {
		return nil, err
	}

	st, _ := mgr.snapshots.Load(reviewID, len(questions))
	m := New(reviewID, questions, st, mgr.snapshots, mgr.finalizer)
	m.SetOnDone(mgr.remove)
	if mgr.newMirror != nil {
		m.SetMirror(mgr.newMirror(reviewID, m))
	}

	if review.Status == model.ReviewPending {
		if err := mgr.reviews.SetReviewStatus(reviewID, model.ReviewOngoing); err != nil {
			m.Abort()
			return nil, err
		}
	}

	m.Start()
	mgr.machines[reviewID] = m
	return m, nil
}

// Get returns the live machine for a review, if any.
func (mgr *Manager) Get(reviewID int64) (*Machine, bool) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	m, ok := mgr.machines[reviewID]
	return m, ok
}

// Release abandons the live session without finalizing. The snapshot stays,
// so the session resumes where it left off.
func (mgr *Manager) Release(reviewID int64) {
	mgr.mu.Lock()
	m, ok := mgr.machines[reviewID]
	if ok {
		delete(mgr.machines, reviewID)
	}
	mgr.mu.Unlock()
	if ok {
		m.Abort()
	}
}

// Shutdown abandons every live session.
func (mgr *Manager) Shutdown() {
	mgr.mu.Lock()
	machines := make([]*Machine, 0, len(mgr.machines))
	for id, m := range mgr.machines {
		machines = append(machines, m)
		delete(mgr.machines, id)
	}
	mgr.mu.Unlock()
	for _, m := range machines {
		m.Abort()
	}
}

func (mgr *Manager) remove(reviewID int64) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	delete(mgr.machines, reviewID)
}
