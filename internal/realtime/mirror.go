package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"reviewdeck/internal/session"
)

const (
	// defaultDebounce coalesces rapid local mutations (slider drags, typing,
	// timer ticks) into one shared write.
	defaultDebounce = 800 * time.Millisecond
	// defaultSuppression is the re-entrancy guard after applying a remote
	// update, breaking the remote write -> local apply -> push loop.
	defaultSuppression = time.Second
)

// Target is the local session the mirror reconciles into.
type Target interface {
	ApplyRemote(st session.State)
	FinalizedElsewhere()
}

// Mirror keeps one review's shared document loosely in step with the local
// session. Writes are debounced and tagged with a per-mirror client id;
// remote changes from other clients are applied field-by-field. All store
// failures are logged and swallowed.
type Mirror struct {
	store    DocStore
	target   Target
	reviewID int64
	clientID string

	debounce    time.Duration
	suppression time.Duration

	mu            sync.Mutex
	latest        session.State
	dirty         bool
	pending       *time.Timer
	suppressUntil time.Time
	stopped       bool

	cancelSub func()
}

// NewMirror subscribes to the review's shared document and returns the
// mirror. Stop must be called when the session ends.
func NewMirror(store DocStore, reviewID int64, target Target) *Mirror {
	m := &Mirror{
		store:       store,
		target:      target,
		reviewID:    reviewID,
		clientID:    uuid.NewString(),
		debounce:    defaultDebounce,
		suppression: defaultSuppression,
	}
	cancel, err := store.Subscribe(reviewID, m.onEvent)
	if err != nil {
		slog.Warn("sync subscribe failed", "review_id", reviewID, "error", err)
		cancel = func() {}
	}
	m.cancelSub = cancel
	return m
}

// Push schedules a debounced write of the full state to the shared
// document. Each call supersedes any pending one, so only the latest state
// within the debounce window is sent.
func (m *Mirror) Push(st session.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	if time.Now().Before(m.suppressUntil) {
		// Just applied a remote update; pushing now would echo it back.
		return
	}
	m.latest = st
	m.dirty = true
	if m.pending != nil {
		m.pending.Stop()
	}
	m.pending = time.AfterFunc(m.debounce, m.flush)
}

func (m *Mirror) flush() {
	m.mu.Lock()
	if m.stopped || !m.dirty {
		m.mu.Unlock()
		return
	}
	doc := Doc{
		State:     m.latest,
		ClientID:  m.clientID,
		Timestamp: time.Now().UnixMilli(),
	}
	m.dirty = false
	m.mu.Unlock()

	if err := m.store.Set(m.reviewID, doc); err != nil {
		slog.Warn("sync write failed", "review_id", m.reviewID, "error", err)
	}
}

func (m *Mirror) onEvent(ev Event) {
	if ev.Deleted {
		m.mu.Lock()
		stopped := m.stopped
		m.mu.Unlock()
		if !stopped {
			m.target.FinalizedElsewhere()
		}
		return
	}
	if ev.Doc.ClientID == m.clientID {
		return
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.dirty {
		// A local edit is still in flight; our own write will land after
		// this one and win. Applying the older remote state here would
		// clobber the edit.
		m.mu.Unlock()
		return
	}
	m.suppressUntil = time.Now().Add(m.suppression)
	m.mu.Unlock()

	m.target.ApplyRemote(ev.Doc.State)
}

// Stop tears down the subscription and any pending write. Safe to call
// more than once and from within event delivery.
func (m *Mirror) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.pending != nil {
		m.pending.Stop()
	}
	cancel := m.cancelSub
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Discard deletes the shared document for this review.
func (m *Mirror) Discard() error {
	return m.store.Delete(m.reviewID)
}
