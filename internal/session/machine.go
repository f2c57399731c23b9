package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"reviewdeck/internal/model"
)

// Phase is the grading session phase. Phases are explicit so illegal
// combinations (e.g. report shown while questions remain unmarked) are
// unrepresentable.
type Phase string

const (
	// PhaseBrowsing: question-by-question judgement capture.
	PhaseBrowsing Phase = "browsing"
	// PhaseAwaitingPracticalLink: all questions marked, practical link still blank.
	PhaseAwaitingPracticalLink Phase = "awaiting-practical-link"
	// PhaseCommentary: collecting qualitative notes before the report.
	PhaseCommentary Phase = "commentary"
	// PhaseReportReady: verdict computed, session terminal until closed.
	PhaseReportReady Phase = "report-ready"
	// PhaseClosed: session destroyed.
	PhaseClosed Phase = "closed"
)

// Remote seconds within this drift are ignored so two timers ticking a
// fraction apart do not fight over the counter.
const secondsTolerance = 3

var (
	// ErrMissingPracticalLink rejects submission until a practical
	// submission reference is provided.
	ErrMissingPracticalLink = errors.New("practical submission link is required")
	// ErrWrongPhase rejects an operation not valid in the current phase.
	ErrWrongPhase = errors.New("operation not allowed in current session phase")
	// ErrSessionClosed rejects any operation on a destroyed session.
	ErrSessionClosed = errors.New("grading session is closed")
	// ErrUnknownQuestion rejects a judgement for a question outside the module.
	ErrUnknownQuestion = errors.New("question does not belong to this module")
)

// UnmarkedQuestionError rejects submission while a question has no
// judgement; Index is the cursor position the session was relocated to.
type UnmarkedQuestionError struct {
	Index int
}

func (e *UnmarkedQuestionError) Error() string {
	return fmt.Sprintf("question %d must be marked before submitting", e.Index+1)
}

// Mirror mirrors session state to a shared document for other devices.
// Implementations are best-effort; every method must be safe to call after
// Stop.
type Mirror interface {
	// Push schedules a mirror write of the given state.
	Push(st State)
	// Stop tears down the subscription and any pending write.
	Stop()
	// Discard deletes the shared document.
	Discard() error
}

// View is a consistent read of a machine for rendering.
type View struct {
	ReviewID           int64    `json:"reviewId"`
	Phase              Phase    `json:"phase"`
	State              State    `json:"state"`
	Score              Score    `json:"score"`
	QuestionCount      int      `json:"questionCount"`
	LinkError          bool     `json:"linkError"`
	Celebrate          bool     `json:"celebrate"`
	Output             []string `json:"output"`
	FinalizedElsewhere bool     `json:"finalizedElsewhere"`
}

// Machine drives one grading session. Every entry point (HTTP, timer
// tick, remote apply) serializes on one mutex, so the cursor stays in
// range and elapsed seconds never decrease while running.
type Machine struct {
	reviewID  int64
	questions []model.Question

	mu         sync.Mutex
	state      State
	phase      Phase
	linkError  bool
	celebrate  bool
	output     []string
	remoteDone bool

	snapshots *Snapshots
	finalizer *Finalizer
	mirror    Mirror
	onDone    func(reviewID int64)

	stopTick chan struct{}
	tickOnce sync.Once
}

// New builds a machine over a module's questions and an initial state
// (freshly defaulted or hydrated from a snapshot).
func New(reviewID int64, questions []model.Question, st State, snaps *Snapshots, fin *Finalizer) *Machine {
	st.normalize(len(questions))
	return &Machine{
		reviewID:  reviewID,
		questions: questions,
		state:     st,
		phase:     PhaseBrowsing,
		output:    []string{"System: Ready for execution..."},
		snapshots: snaps,
		finalizer: fin,
		stopTick:  make(chan struct{}),
	}
}

// SetMirror attaches the cross-device mirror. Must be called before Start.
func (m *Machine) SetMirror(mir Mirror) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mirror = mir
}

// SetOnDone registers a callback invoked once when the session ends for any
// reason other than explicit abandonment.
func (m *Machine) SetOnDone(fn func(reviewID int64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDone = fn
}

// Start launches the one-second elapsed-time tick. The tick is gated by the
// pause flag and stops when the session ends.
func (m *Machine) Start() {
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-m.stopTick:
				return
			case <-t.C:
				m.Tick()
			}
		}
	}()
}

// Tick advances elapsed time by one second unless paused.
func (m *Machine) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed || m.state.IsPaused {
		return
	}
	m.state.Seconds++
	m.changedLocked()
}

func (m *Machine) stopTimer() {
	m.tickOnce.Do(func() { close(m.stopTick) })
}

// changedLocked persists the snapshot and schedules a mirror push.
// Caller holds m.mu.
func (m *Machine) changedLocked() {
	snap := m.state.Clone()
	m.snapshots.Save(m.reviewID, snap)
	if m.mirror != nil {
		m.mirror.Push(snap)
	}
}

// browsingLocked reports whether question navigation and judgement capture
// are currently allowed. AwaitingPracticalLink is a flagged variant of
// Browsing: any browsing action drops back to it.
func (m *Machine) browsingLocked() bool {
	return m.phase == PhaseBrowsing || m.phase == PhaseAwaitingPracticalLink
}

// Mark records the proctor's judgement for a question, replacing any prior
// judgement for the same question, and advances the cursor unless it is on
// the last question. (The visual advance delay of the console is a client
// concern.)
func (m *Machine) Mark(questionID int64, j model.Judgement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	if !m.browsingLocked() {
		return ErrWrongPhase
	}
	if !j.Valid() {
		return fmt.Errorf("invalid judgement %q", j)
	}
	found := false
	for _, q := range m.questions {
		if q.ID == questionID {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownQuestion
	}

	kept := m.state.Results[:0]
	for _, r := range m.state.Results {
		if r.QuestionID != questionID {
			kept = append(kept, r)
		}
	}
	m.state.Results = append(kept, QuestionResult{
		QuestionID: questionID,
		Status:     j,
		Score:      j.Points(),
	})

	if m.state.CurrentIndex < len(m.questions)-1 {
		m.state.CurrentIndex++
	}
	m.phase = PhaseBrowsing
	m.changedLocked()
	return nil
}

// Navigate moves the cursor by delta, clamped into [0, N-1]. Out-of-range
// deltas clamp rather than fail.
func (m *Machine) Navigate(delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	if !m.browsingLocked() {
		return ErrWrongPhase
	}
	idx := m.state.CurrentIndex + delta
	if idx < 0 {
		idx = 0
	}
	if last := len(m.questions) - 1; last >= 0 && idx > last {
		idx = last
	}
	if len(m.questions) == 0 {
		idx = 0
	}
	m.state.CurrentIndex = idx
	m.phase = PhaseBrowsing
	m.changedLocked()
	return nil
}

// TogglePause flips the pause flag. While paused the elapsed-seconds
// counter is frozen.
func (m *Machine) TogglePause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	m.state.IsPaused = !m.state.IsPaused
	m.changedLocked()
	return nil
}

// SetPracticalMark sets the practical mark, 0-10, fractional allowed.
func (m *Machine) SetPracticalMark(mark float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	if mark < 0 || mark > 10 {
		return fmt.Errorf("practical mark %v out of range [0,10]", mark)
	}
	m.state.PracticalMark = mark
	m.changedLocked()
	return nil
}

// SetPracticalLink records the practical submission reference. A non-blank
// link clears the persistent link error flag.
func (m *Machine) SetPracticalLink(link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	m.state.PracticalLink = link
	if strings.TrimSpace(link) != "" {
		m.linkError = false
	}
	m.changedLocked()
	return nil
}

// SetNotes records the observational notes.
func (m *Machine) SetNotes(notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	m.state.Notes = notes
	m.changedLocked()
	return nil
}

// SetLanguage switches the editor language and resets the code buffer to
// that language's template.
func (m *Machine) SetLanguage(language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	if language != LanguageC && language != LanguageJava {
		return fmt.Errorf("unsupported language %q", language)
	}
	m.state.Language = language
	m.state.Code = CodeTemplate(language)
	m.changedLocked()
	return nil
}

// SetCode replaces the editor buffer.
func (m *Machine) SetCode(code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	m.state.Code = code
	m.changedLocked()
	return nil
}

// Submit attempts the transition toward the commentary phase. Guard 1:
// every question needs a judgement; on failure the cursor relocates to the
// first unmarked question. Guard 2: the practical link must be non-blank;
// on failure the session parks in AwaitingPracticalLink with a persistent
// link error flag. Both failures are recoverable and lose no state.
func (m *Machine) Submit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return ErrSessionClosed
	}
	if !m.browsingLocked() {
		return ErrWrongPhase
	}

	for i, q := range m.questions {
		if _, ok := m.state.Result(q.ID); !ok {
			m.state.CurrentIndex = i
			m.phase = PhaseBrowsing
			m.changedLocked()
			return &UnmarkedQuestionError{Index: i}
		}
	}

	if strings.TrimSpace(m.state.PracticalLink) == "" {
		m.phase = PhaseAwaitingPracticalLink
		m.linkError = true
		m.changedLocked()
		return ErrMissingPracticalLink
	}

	m.linkError = false
	m.phase = PhaseCommentary
	m.changedLocked()
	return nil
}

// Reopen returns from the commentary phase to browsing without losing
// anything (the "back to session" action).
func (m *Machine) Reopen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseCommentary {
		return ErrWrongPhase
	}
	m.phase = PhaseBrowsing
	return nil
}

// FinalizeReport computes the final verdict and enters ReportReady. A
// passing verdict sets the celebrate flag (the success signal).
func (m *Machine) FinalizeReport() (Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return Score{}, ErrSessionClosed
	}
	if m.phase != PhaseCommentary {
		return Score{}, ErrWrongPhase
	}
	score := Compute(m.state, len(m.questions))
	m.celebrate = score.Passed
	m.phase = PhaseReportReady
	m.changedLocked()
	return score, nil
}

// Close commits the final report and destroys the session. On commit
// failure nothing is cleared so the close can be retried without loss.
func (m *Machine) Close(ctx context.Context) (model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return model.Review{}, ErrSessionClosed
	}
	if m.phase != PhaseReportReady {
		return model.Review{}, ErrWrongPhase
	}

	review, err := m.finalizer.Commit(ctx, m.reviewID, m.buildReportLocked())
	if err != nil {
		return model.Review{}, err
	}

	m.phase = PhaseClosed
	m.stopTimer()
	if m.mirror != nil {
		m.mirror.Stop()
		if err := m.mirror.Discard(); err != nil {
			slog.Warn("shared doc discard failed", "review_id", m.reviewID, "error", err)
		}
	}
	if m.onDone != nil {
		go m.onDone(m.reviewID)
	}
	return review, nil
}

func (m *Machine) buildReportLocked() model.FinalReport {
	score := Compute(m.state, len(m.questions))
	status := model.ReviewFailed
	if score.Passed {
		status = model.ReviewCompleted
	}
	return model.FinalReport{
		Status: status,
		Scores: model.ScoreBreakdown{
			Theoretical:    score.TheoreticalRaw,
			MaxTheoretical: score.TheoreticalMax,
			Practical:      m.state.PracticalMark,
			Total:          score.Composite,
		},
		Notes: m.state.Notes,
		SessionData: map[string]any{
			"results":       m.state.Clone().Results,
			"currentIndex":  m.state.CurrentIndex,
			"seconds":       m.state.Seconds,
			"code":          m.state.Code,
			"language":      m.state.Language,
			"practicalLink": m.state.PracticalLink,
		},
	}
}

// Abort tears down the live session but keeps the snapshot, so the session
// can resume later on any device.
func (m *Machine) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return
	}
	m.phase = PhaseClosed
	m.stopTimer()
	if m.mirror != nil {
		m.mirror.Stop()
	}
}

// FinalizedElsewhere handles the shared document disappearing underneath a
// live session: another device already finalized this review, so the local
// transient state is destroyed without re-finalizing.
func (m *Machine) FinalizedElsewhere() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return
	}
	slog.Info("review finalized on another device", "review_id", m.reviewID)
	m.remoteDone = true
	m.phase = PhaseClosed
	m.stopTimer()
	m.snapshots.Clear(m.reviewID)
	if m.mirror != nil {
		m.mirror.Stop()
	}
	if m.onDone != nil {
		go m.onDone(m.reviewID)
	}
}

// ApplyRemote reconciles a mirrored state from another device into the
// local state, field by field: only differing fields are applied, and the
// seconds counter moves only when the drift exceeds the tolerance.
func (m *Machine) ApplyRemote(remote State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return
	}

	remote.normalize(len(m.questions))
	changed := false

	if remote.CurrentIndex != m.state.CurrentIndex {
		m.state.CurrentIndex = remote.CurrentIndex
		changed = true
	}
	if !equalResults(remote.Results, m.state.Results) {
		m.state.Results = make([]QuestionResult, len(remote.Results))
		copy(m.state.Results, remote.Results)
		changed = true
	}
	if remote.PracticalMark != m.state.PracticalMark {
		m.state.PracticalMark = remote.PracticalMark
		changed = true
	}
	if remote.PracticalLink != m.state.PracticalLink {
		m.state.PracticalLink = remote.PracticalLink
		changed = true
	}
	if remote.Notes != m.state.Notes {
		m.state.Notes = remote.Notes
		changed = true
	}
	if remote.Language != m.state.Language {
		m.state.Language = remote.Language
		changed = true
	}
	if remote.Code != m.state.Code {
		m.state.Code = remote.Code
		changed = true
	}
	if remote.IsPaused != m.state.IsPaused {
		m.state.IsPaused = remote.IsPaused
		changed = true
	}
	if diff := remote.Seconds - m.state.Seconds; diff > secondsTolerance || diff < -secondsTolerance {
		m.state.Seconds = remote.Seconds
		changed = true
	}

	if changed {
		// Persist locally but do not push back; the mirror's suppression
		// window breaks the remote write -> local apply -> push loop.
		m.snapshots.Save(m.reviewID, m.state.Clone())
	}
}

func equalResults(a, b []QuestionResult) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RunCode appends a simulated compile-and-run transcript for the practical
// panel. No code is actually executed.
func (m *Machine) RunCode() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return nil, ErrSessionClosed
	}
	now := time.Now().Format("15:04:05")
	m.output = append(m.output,
		fmt.Sprintf("[%s] Compiling %s...", now, m.state.Language),
		fmt.Sprintf("[%s] Execution Successful.", now),
		"> Program output: Hello World",
	)
	if len(m.output) > 12 {
		m.output = m.output[len(m.output)-12:]
	}
	out := make([]string, len(m.output))
	copy(out, m.output)
	return out, nil
}

// View returns a consistent read of the machine. The score is recomputed on
// every call.
func (m *Machine) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.output))
	copy(out, m.output)
	return View{
		ReviewID:           m.reviewID,
		Phase:              m.phase,
		State:              m.state.Clone(),
		Score:              Compute(m.state, len(m.questions)),
		QuestionCount:      len(m.questions),
		LinkError:          m.linkError,
		Celebrate:          m.celebrate,
		Output:             out,
		FinalizedElsewhere: m.remoteDone,
	}
}

// Questions returns the module's questions in cursor order.
func (m *Machine) Questions() []model.Question {
	qs := make([]model.Question, len(m.questions))
	copy(qs, m.questions)
	return qs
}
