package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"reviewdeck/internal/model"
)

// memKV is an in-memory snapshot store for tests.
type memKV struct {
	mu   sync.Mutex
	data map[int64]string
}

func newMemKV() *memKV { return &memKV{data: make(map[int64]string)} }

func (kv *memKV) GetSnapshot(reviewID int64) (string, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.data[reviewID], nil
}

func (kv *memKV) SetSnapshot(reviewID int64, data string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[reviewID] = data
	return nil
}

func (kv *memKV) DeleteSnapshot(reviewID int64) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, reviewID)
	return nil
}

// fakeSink records finalized reports and can be told to fail.
type fakeSink struct {
	mu      sync.Mutex
	reports map[int64]model.FinalReport
	fail    error
}

func newFakeSink() *fakeSink { return &fakeSink{reports: make(map[int64]model.FinalReport)} }

func (f *fakeSink) FinalizeReview(id int64, rep model.FinalReport) (model.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return model.Review{}, f.fail
	}
	f.reports[id] = rep
	return model.Review{ID: id, Status: rep.Status, Scores: &rep.Scores, Notes: rep.Notes}, nil
}

func testQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{ID: int64(i + 1), ModuleID: 1, Text: "Q"}
	}
	return qs
}

func newTestMachine(t *testing.T, n int) (*Machine, *memKV, *fakeSink) {
	t.Helper()
	kv := newMemKV()
	snaps := NewSnapshots(kv)
	sink := newFakeSink()
	m := New(1, testQuestions(n), DefaultState(), snaps, NewFinalizer(sink, snaps))
	return m, kv, sink
}

func markAll(t *testing.T, m *Machine, j model.Judgement) {
	t.Helper()
	for _, q := range m.Questions() {
		if err := m.Mark(q.ID, j); err != nil {
			t.Fatalf("Mark(%d): %v", q.ID, err)
		}
	}
}

func TestMarkAdvancesAndUpserts(t *testing.T) {
	m, _, _ := newTestMachine(t, 3)

	if err := m.Mark(1, model.JudgementWrong); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	v := m.View()
	if v.State.CurrentIndex != 1 {
		t.Errorf("expected cursor 1 after marking, got %d", v.State.CurrentIndex)
	}
	if len(v.State.Results) != 1 || v.State.Results[0].Score != 0 {
		t.Errorf("unexpected results %+v", v.State.Results)
	}

	// Re-judging the same question replaces the old result.
	if err := m.Navigate(-1); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := m.Mark(1, model.JudgementAnswered); err != nil {
		t.Fatalf("Mark again: %v", err)
	}
	v = m.View()
	if len(v.State.Results) != 1 {
		t.Fatalf("expected 1 result after re-mark, got %d", len(v.State.Results))
	}
	r, ok := v.State.Result(1)
	if !ok || r.Status != model.JudgementAnswered || r.Score != 10 {
		t.Errorf("unexpected re-marked result %+v", r)
	}
}

func TestMarkLastQuestionStaysPut(t *testing.T) {
	m, _, _ := newTestMachine(t, 2)
	markAll(t, m, model.JudgementAnswered)

	v := m.View()
	if v.State.CurrentIndex != 1 {
		t.Errorf("expected cursor pinned to last question, got %d", v.State.CurrentIndex)
	}
}

func TestMarkUnknownQuestion(t *testing.T) {
	m, _, _ := newTestMachine(t, 2)
	if err := m.Mark(99, model.JudgementAnswered); !errors.Is(err, ErrUnknownQuestion) {
		t.Errorf("expected ErrUnknownQuestion, got %v", err)
	}
}

func TestNavigateClamps(t *testing.T) {
	m, _, _ := newTestMachine(t, 3)

	tests := []struct {
		name  string
		delta int
		want  int
	}{
		{"back from zero", -1, 0},
		{"forward", 2, 2},
		{"past the end", 5, 2},
		{"way back", -10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := m.Navigate(tt.delta); err != nil {
				t.Fatalf("Navigate(%d): %v", tt.delta, err)
			}
			if got := m.View().State.CurrentIndex; got != tt.want {
				t.Errorf("cursor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTickAndPause(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)

	m.Tick()
	m.Tick()
	if got := m.View().State.Seconds; got != 2 {
		t.Fatalf("seconds = %d, want 2", got)
	}

	if err := m.TogglePause(); err != nil {
		t.Fatalf("TogglePause: %v", err)
	}
	m.Tick()
	m.Tick()
	if got := m.View().State.Seconds; got != 2 {
		t.Errorf("seconds advanced while paused: %d", got)
	}

	if err := m.TogglePause(); err != nil {
		t.Fatalf("TogglePause resume: %v", err)
	}
	m.Tick()
	if got := m.View().State.Seconds; got != 3 {
		t.Errorf("seconds = %d after resume, want 3", got)
	}
}

func TestSubmitRelocatesToFirstUnmarked(t *testing.T) {
	m, _, _ := newTestMachine(t, 3)

	// Mark questions 1 and 3, leaving 2 unmarked.
	if err := m.Mark(1, model.JudgementAnswered); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if err := m.Navigate(1); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := m.Mark(3, model.JudgementAnswered); err != nil {
		t.Fatalf("Mark: %v", err)
	}

	err := m.Submit()
	var unmarked *UnmarkedQuestionError
	if !errors.As(err, &unmarked) {
		t.Fatalf("expected UnmarkedQuestionError, got %v", err)
	}
	if unmarked.Index != 1 {
		t.Errorf("expected first unmarked index 1, got %d", unmarked.Index)
	}
	v := m.View()
	if v.State.CurrentIndex != 1 {
		t.Errorf("expected cursor relocated to 1, got %d", v.State.CurrentIndex)
	}
	if v.Phase != PhaseBrowsing {
		t.Errorf("expected phase browsing, got %q", v.Phase)
	}
	// Nothing was lost.
	if len(v.State.Results) != 2 {
		t.Errorf("expected 2 results preserved, got %d", len(v.State.Results))
	}
}

func TestSubmitRequiresPracticalLink(t *testing.T) {
	m, _, _ := newTestMachine(t, 2)
	markAll(t, m, model.JudgementAnswered)

	if err := m.Submit(); !errors.Is(err, ErrMissingPracticalLink) {
		t.Fatalf("expected ErrMissingPracticalLink, got %v", err)
	}
	v := m.View()
	if v.Phase != PhaseAwaitingPracticalLink {
		t.Errorf("expected phase awaiting-practical-link, got %q", v.Phase)
	}
	if !v.LinkError {
		t.Error("expected persistent link error flag")
	}

	// A blank-ish link does not clear the flag.
	if err := m.SetPracticalLink("   "); err != nil {
		t.Fatalf("SetPracticalLink: %v", err)
	}
	if !m.View().LinkError {
		t.Error("whitespace link should not clear the link error")
	}

	// A real link clears the flag and submit now succeeds.
	if err := m.SetPracticalLink("https://git.example.com/student/module-1"); err != nil {
		t.Fatalf("SetPracticalLink: %v", err)
	}
	if m.View().LinkError {
		t.Error("expected link error cleared")
	}
	if err := m.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := m.View().Phase; got != PhaseCommentary {
		t.Errorf("expected phase commentary, got %q", got)
	}
}

func TestReopenFromCommentary(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)
	markAll(t, m, model.JudgementAnswered)
	if err := m.SetPracticalLink("link"); err != nil {
		t.Fatalf("SetPracticalLink: %v", err)
	}
	if err := m.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := m.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	v := m.View()
	if v.Phase != PhaseBrowsing {
		t.Errorf("expected phase browsing, got %q", v.Phase)
	}
	if len(v.State.Results) != 1 {
		t.Errorf("expected results preserved through reopen, got %d", len(v.State.Results))
	}

	// Reopen outside commentary is rejected.
	if err := m.Reopen(); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("expected ErrWrongPhase, got %v", err)
	}
}

func TestFinalizeAndClose(t *testing.T) {
	m, kv, sink := newTestMachine(t, 2)
	markAll(t, m, model.JudgementAnswered)
	if err := m.SetPracticalMark(9); err != nil {
		t.Fatalf("SetPracticalMark: %v", err)
	}
	if err := m.SetPracticalLink("link"); err != nil {
		t.Fatalf("SetPracticalLink: %v", err)
	}
	if err := m.SetNotes("Confident throughout."); err != nil {
		t.Fatalf("SetNotes: %v", err)
	}
	if err := m.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	score, err := m.FinalizeReport()
	if err != nil {
		t.Fatalf("FinalizeReport: %v", err)
	}
	// 20/20 -> 70, practical 9 -> 27.
	if score.Composite != 97 {
		t.Errorf("composite = %v, want 97", score.Composite)
	}
	if !score.Passed {
		t.Error("expected passing score")
	}
	if !m.View().Celebrate {
		t.Error("expected celebrate flag on a pass")
	}

	done := make(chan int64, 1)
	m.SetOnDone(func(id int64) { done <- id })

	review, err := m.Close(context.Background())
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if review.Status != model.ReviewCompleted {
		t.Errorf("expected completed, got %q", review.Status)
	}
	rep := sink.reports[1]
	if rep.Scores.Total != 97 {
		t.Errorf("persisted total = %v, want 97", rep.Scores.Total)
	}
	if rep.Notes != "Confident throughout." {
		t.Errorf("persisted notes %q", rep.Notes)
	}
	if rep.SessionData["practicalLink"] != "link" {
		t.Errorf("expected session data audit blob, got %v", rep.SessionData)
	}

	// Snapshot is gone and the machine is dead.
	if data, _ := kv.GetSnapshot(1); data != "" {
		t.Errorf("expected snapshot cleared, got %q", data)
	}
	if err := m.Mark(1, model.JudgementWrong); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if id := <-done; id != 1 {
		t.Errorf("onDone id = %d, want 1", id)
	}
}

func TestFailingVerdict(t *testing.T) {
	m, _, sink := newTestMachine(t, 2)
	markAll(t, m, model.JudgementWrong)
	if err := m.SetPracticalLink("link"); err != nil {
		t.Fatalf("SetPracticalLink: %v", err)
	}
	if err := m.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	score, err := m.FinalizeReport()
	if err != nil {
		t.Fatalf("FinalizeReport: %v", err)
	}
	if score.Passed {
		t.Error("expected failing score")
	}
	if m.View().Celebrate {
		t.Error("celebrate must stay off on a fail")
	}
	if _, err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.reports[1].Status != model.ReviewFailed {
		t.Errorf("expected failed status, got %q", sink.reports[1].Status)
	}
}

func TestCloseRetriesAfterCommitFailure(t *testing.T) {
	m, kv, sink := newTestMachine(t, 1)
	markAll(t, m, model.JudgementAnswered)
	if err := m.SetPracticalLink("link"); err != nil {
		t.Fatalf("SetPracticalLink: %v", err)
	}
	if err := m.Submit(); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := m.FinalizeReport(); err != nil {
		t.Fatalf("FinalizeReport: %v", err)
	}

	sink.fail = errors.New("disk full")
	if _, err := m.Close(context.Background()); err == nil {
		t.Fatal("expected Close to fail")
	}
	// Nothing cleared: the snapshot survives and the session stays open.
	if data, _ := kv.GetSnapshot(1); data == "" {
		t.Error("snapshot must survive a failed commit")
	}
	if m.View().Phase != PhaseReportReady {
		t.Errorf("expected phase report-ready, got %q", m.View().Phase)
	}

	sink.fail = nil
	if _, err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close retry: %v", err)
	}
}

func TestSetLanguageResetsCode(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)
	if err := m.SetCode("int main() { return 1; }"); err != nil {
		t.Fatalf("SetCode: %v", err)
	}
	if err := m.SetLanguage(LanguageJava); err != nil {
		t.Fatalf("SetLanguage: %v", err)
	}
	v := m.View()
	if v.State.Language != LanguageJava {
		t.Errorf("expected java, got %q", v.State.Language)
	}
	if v.State.Code != CodeTemplate(LanguageJava) {
		t.Errorf("expected java template, got %q", v.State.Code)
	}
	if err := m.SetLanguage("python"); err == nil {
		t.Error("expected error for unsupported language")
	}
}

func TestSetPracticalMarkRange(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)
	if err := m.SetPracticalMark(7.5); err != nil {
		t.Fatalf("SetPracticalMark: %v", err)
	}
	if err := m.SetPracticalMark(-1); err == nil {
		t.Error("expected error for negative mark")
	}
	if err := m.SetPracticalMark(10.5); err == nil {
		t.Error("expected error for mark above 10")
	}
	if got := m.View().State.PracticalMark; got != 7.5 {
		t.Errorf("mark = %v, want 7.5 (invalid writes must not stick)", got)
	}
}

func TestApplyRemote(t *testing.T) {
	m, _, _ := newTestMachine(t, 3)
	m.Tick()
	m.Tick()

	remote := DefaultState()
	remote.CurrentIndex = 2
	remote.PracticalMark = 9
	remote.Notes = "from the other device"
	remote.Seconds = 3 // within tolerance of local 2
	m.ApplyRemote(remote)

	v := m.View()
	if v.State.CurrentIndex != 2 {
		t.Errorf("cursor = %d, want 2", v.State.CurrentIndex)
	}
	if v.State.PracticalMark != 9 {
		t.Errorf("mark = %v, want 9", v.State.PracticalMark)
	}
	if v.State.Notes != "from the other device" {
		t.Errorf("notes = %q", v.State.Notes)
	}
	if v.State.Seconds != 2 {
		t.Errorf("seconds = %d, small drift must be ignored", v.State.Seconds)
	}

	// Large drift is applied.
	remote.Seconds = 120
	m.ApplyRemote(remote)
	if got := m.View().State.Seconds; got != 120 {
		t.Errorf("seconds = %d, want 120", got)
	}
}

func TestFinalizedElsewhere(t *testing.T) {
	m, kv, _ := newTestMachine(t, 1)
	markAll(t, m, model.JudgementAnswered)

	done := make(chan int64, 1)
	m.SetOnDone(func(id int64) { done <- id })

	m.FinalizedElsewhere()
	if data, _ := kv.GetSnapshot(1); data != "" {
		t.Errorf("expected snapshot cleared, got %q", data)
	}
	v := m.View()
	if v.Phase != PhaseClosed {
		t.Errorf("expected closed, got %q", v.Phase)
	}
	if !v.FinalizedElsewhere {
		t.Error("expected finalized-elsewhere flag")
	}
	if _, err := m.Close(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
	if id := <-done; id != 1 {
		t.Errorf("onDone id = %d, want 1", id)
	}
}

func TestAbortKeepsSnapshot(t *testing.T) {
	m, kv, _ := newTestMachine(t, 2)
	markAll(t, m, model.JudgementAnswered)

	m.Abort()
	if data, _ := kv.GetSnapshot(1); data == "" {
		t.Error("abort must keep the snapshot for resumption")
	}
	if err := m.Mark(1, model.JudgementWrong); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestRunCodeTranscript(t *testing.T) {
	m, _, _ := newTestMachine(t, 1)
	out, err := m.RunCode()
	if err != nil {
		t.Fatalf("RunCode: %v", err)
	}
	if len(out) < 3 {
		t.Fatalf("expected a transcript, got %v", out)
	}
	// Repeated runs stay capped.
	for i := 0; i < 10; i++ {
		out, _ = m.RunCode()
	}
	if len(out) > 12 {
		t.Errorf("transcript grew unbounded: %d lines", len(out))
	}
}
