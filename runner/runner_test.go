package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/model"
	"github.com/mbolis/lead-scorer/scoring"
)

type memForms map[string]model.Form

func (m memForms) ActiveFormBySubdomain(ctx context.Context, subdomain string) (model.Form, error) {
	f, ok := m[subdomain]
	if !ok || !f.IsActive {
		return model.Form{}, errs.NotFoundf("mem.active_form", "form unavailable")
	}
	return f, nil
}

type failingForms struct{}

func (failingForms) ActiveFormBySubdomain(ctx context.Context, subdomain string) (model.Form, error) {
	return model.Form{}, errs.Wrap(errs.Store, errors.New("connection refused"), "mem.active_form")
}

type memRecorder struct {
	subs []model.Submission
	err  error
}

func (m *memRecorder) RecordSubmission(ctx context.Context, sub *model.Submission) error {
	if m.err != nil {
		return m.err
	}
	sub.ID = int64(len(m.subs) + 1)
	sub.CreatedAt = time.Now()
	m.subs = append(m.subs, *sub)
	return nil
}

// threshold 60; Q1 {A:30, B:10}; Q2 {C:40, D:0}
func leadForm() model.Form {
	return model.Form{
		ID:             1,
		Subdomain:      "acme",
		ScoreThreshold: 60,
		RedirectGood:   "https://acme.test/good",
		RedirectBad:    "https://acme.test/bad",
		IsActive:       true,
		Questions: []model.Question{
			// stored out of order on purpose
			{ID: 20, QuestionText: "Timeline?", OrderIndex: 1, AnswerOptions: []model.AnswerOption{
				{ID: 201, OptionText: "C", Points: 40},
				{ID: 202, OptionText: "D", Points: 0},
			}},
			{ID: 10, QuestionText: "Budget?", OrderIndex: 0, AnswerOptions: []model.AnswerOption{
				{ID: 101, OptionText: "A", Points: 30},
				{ID: 102, OptionText: "B", Points: 10},
			}},
		},
	}
}

func forms() memForms {
	inactive := leadForm()
	inactive.Subdomain = "sleepy"
	inactive.IsActive = false

	empty := leadForm()
	empty.Subdomain = "blank"
	empty.Questions = nil

	return memForms{"acme": leadForm(), "sleepy": inactive, "blank": empty}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		subdomain string
		want      Status
	}{
		{"acme", Active},
		{"unknown-subdomain", NotFound},
		{"sleepy", NotFound},
		{"blank", Empty},
	}

	for _, tt := range tests {
		s, err := Load(context.Background(), forms(), tt.subdomain, nil)
		if err != nil {
			t.Fatalf("Load(%q) error = %v", tt.subdomain, err)
		}
		if s.Status() != tt.want {
			t.Errorf("Load(%q) status = %v, want %v", tt.subdomain, s.Status(), tt.want)
		}
		if _, ok := s.RedirectURL(); ok {
			t.Errorf("Load(%q): no redirect expected before submission", tt.subdomain)
		}
	}

	_, err := Load(context.Background(), failingForms{}, "acme", nil)
	if !errs.Is(err, errs.Store) {
		t.Errorf("expected Store error, got %v", err)
	}
}

func TestLoadSortsQuestions(t *testing.T) {
	s, _ := Load(context.Background(), forms(), "acme", nil)
	q, err := s.Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if q.ID != 10 {
		t.Errorf("expected first question 10, got %d", q.ID)
	}
}

func walk(t *testing.T, s *Session, rec Recorder, choices ...int64) {
	t.Helper()
	for _, c := range choices {
		if err := s.Select(c); err != nil {
			t.Fatalf("Select(%d) error = %v", c, err)
		}
		if err := s.Advance(context.Background(), rec); err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
	}
}

func TestRunQualified(t *testing.T) {
	rec := &memRecorder{}
	utm := map[string]string{"utm_source": "ads"}
	s, _ := Load(context.Background(), forms(), "acme", utm)

	walk(t, s, rec, 101, 201)

	if s.Status() != Terminal {
		t.Fatalf("expected Terminal, got %v", s.Status())
	}
	res, _ := s.Result()
	if res.TotalScore != 70 || res.Outcome != scoring.Qualified {
		t.Errorf("got score %d outcome %v", res.TotalScore, res.Outcome)
	}
	if url, _ := s.RedirectURL(); url != "https://acme.test/good" {
		t.Errorf("redirect = %q", url)
	}

	if len(rec.subs) != 1 {
		t.Fatalf("expected 1 recorded submission, got %d", len(rec.subs))
	}
	sub := rec.subs[0]
	if sub.FormID != 1 || sub.CalculatedScore != 70 || sub.UTMParams["utm_source"] != "ads" {
		t.Errorf("recorded %+v", sub)
	}
	if keys := sub.SubmittedData.Len(); keys != 2 {
		t.Errorf("expected 2 answers recorded, got %d", keys)
	}
	if first := sub.SubmittedData.Oldest(); first.Key != "Budget?" || first.Value != "A" {
		t.Errorf("first answer = %s: %s", first.Key, first.Value)
	}
}

func TestRunUnqualified(t *testing.T) {
	rec := &memRecorder{}
	s, _ := Load(context.Background(), forms(), "acme", nil)

	walk(t, s, rec, 102, 202)

	res, _ := s.Result()
	if res.TotalScore != 10 || res.Outcome != scoring.Unqualified {
		t.Errorf("got score %d outcome %v", res.TotalScore, res.Outcome)
	}
	if url, _ := s.RedirectURL(); url != "https://acme.test/bad" {
		t.Errorf("redirect = %q", url)
	}
	if rec.subs[0].UTMParams == nil {
		t.Error("utm params should default to an empty map")
	}
}

func TestAdvanceNeedsAnswer(t *testing.T) {
	s, _ := Load(context.Background(), forms(), "acme", nil)
	if s.CanAdvance() {
		t.Fatal("CanAdvance() should be false before selecting")
	}
	if err := s.Advance(context.Background(), &memRecorder{}); !errs.Is(err, errs.Validation) {
		t.Errorf("expected Validation error, got %v", err)
	}
	if s.Index() != 0 {
		t.Errorf("index moved to %d", s.Index())
	}
}

func TestSelectRejectsForeignOption(t *testing.T) {
	s, _ := Load(context.Background(), forms(), "acme", nil)
	// 201 belongs to the second question
	if err := s.Select(201); !errs.Is(err, errs.Validation) {
		t.Errorf("expected Validation error, got %v", err)
	}
	if s.CanAdvance() {
		t.Error("a rejected selection must not count as an answer")
	}
}

func TestBackKeepsAnswers(t *testing.T) {
	rec := &memRecorder{}
	s, _ := Load(context.Background(), forms(), "acme", nil)

	if err := s.Back(); !errs.Is(err, errs.Validation) {
		t.Errorf("Back() on first question: expected Validation, got %v", err)
	}

	walk(t, s, rec, 101)
	if err := s.Back(); err != nil {
		t.Fatalf("Back() error = %v", err)
	}
	if id, ok := s.Answer(); !ok || id != 101 {
		t.Errorf("answer after Back() = %d, %v", id, ok)
	}

	// change the first answer, then finish
	walk(t, s, rec, 102, 201)
	res, _ := s.Result()
	if res.TotalScore != 50 {
		t.Errorf("expected 50, got %d", res.TotalScore)
	}
}

func TestRecordFailureKeepsSessionActive(t *testing.T) {
	rec := &memRecorder{err: errs.Wrap(errs.Store, errors.New("disk full"), "mem.insert")}
	s, _ := Load(context.Background(), forms(), "acme", nil)

	walk(t, s, rec, 101)
	s.Select(201)
	if err := s.Advance(context.Background(), rec); !errs.Is(err, errs.Store) {
		t.Fatalf("expected Store error, got %v", err)
	}
	if s.Status() != Active || !s.IsLast() {
		t.Errorf("session should stay on the last question, got %v at %d", s.Status(), s.Index())
	}
	if _, ok := s.RedirectURL(); ok {
		t.Error("no redirect before the submission is recorded")
	}

	rec.err = nil
	if err := s.Advance(context.Background(), rec); err != nil {
		t.Fatalf("retry Advance() error = %v", err)
	}
	if s.Status() != Terminal || len(rec.subs) != 1 {
		t.Errorf("retry: status %v, %d submissions", s.Status(), len(rec.subs))
	}
}

func TestTerminalSessionsRejectInput(t *testing.T) {
	rec := &memRecorder{}
	s, _ := Load(context.Background(), forms(), "acme", nil)
	walk(t, s, rec, 101, 201)

	if err := s.Select(101); !errs.Is(err, errs.Conflict) {
		t.Errorf("Select() after submit: expected Conflict, got %v", err)
	}
	if err := s.Advance(context.Background(), rec); !errs.Is(err, errs.Conflict) {
		t.Errorf("Advance() after submit: expected Conflict, got %v", err)
	}
	if len(rec.subs) != 1 {
		t.Errorf("expected a single submission, got %d", len(rec.subs))
	}

	nf, _ := Load(context.Background(), forms(), "nope", nil)
	if _, err := nf.Current(); !errs.Is(err, errs.NotFound) {
		t.Errorf("Current() on NotFound: got %v", err)
	}
}

func TestSubmit(t *testing.T) {
	rec := &memRecorder{}

	sub, res, form, err := Submit(context.Background(), forms(), rec, "acme", scoring.Answers{10: 101}, nil)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.TotalScore != 30 || res.Outcome != scoring.Unqualified {
		t.Errorf("got %d %v", res.TotalScore, res.Outcome)
	}
	if sub.ID == 0 || form.ID != 1 {
		t.Errorf("sub %d form %d", sub.ID, form.ID)
	}

	_, _, _, err = Submit(context.Background(), forms(), rec, "sleepy", scoring.Answers{}, nil)
	if !errs.Is(err, errs.NotFound) {
		t.Errorf("expected NotFound, got %v", err)
	}
	if len(rec.subs) != 1 {
		t.Errorf("expected 1 submission, got %d", len(rec.subs))
	}
}

func TestCaptureUTM(t *testing.T) {
	got := CaptureUTM("utm_source=google&utm_campaign=spring&utm_source=bing&ref=x")
	if len(got) != 2 || got["utm_source"] != "google" || got["utm_campaign"] != "spring" {
		t.Errorf("CaptureUTM() = %v", got)
	}

	if got := CaptureUTM("utm_source=%zz"); len(got) != 0 {
		t.Errorf("malformed query should yield an empty map, got %v", got)
	}
	if got := CaptureUTM(""); got == nil || len(got) != 0 {
		t.Errorf("empty query = %v", got)
	}
}

func TestRegistry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(time.Minute)
	r.now = func() time.Time { return now }

	s, _ := Load(context.Background(), forms(), "acme", nil)
	id := r.Add(s)

	err := r.With(id, func(s *Session) error { return s.Select(101) })
	if err != nil {
		t.Fatalf("With() error = %v", err)
	}
	if err := r.With("missing", func(*Session) error { return nil }); !errs.Is(err, errs.NotFound) {
		t.Errorf("unknown id: expected NotFound, got %v", err)
	}

	now = now.Add(30 * time.Second)
	if n := r.Sweep(); n != 0 {
		t.Errorf("swept %d fresh sessions", n)
	}

	now = now.Add(2 * time.Minute)
	if err := r.With(id, func(*Session) error { return nil }); !errs.Is(err, errs.NotFound) {
		t.Errorf("expired session: expected NotFound, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("expired session should be forgotten, %d left", r.Len())
	}

	r.Add(s)
	now = now.Add(2 * time.Minute)
	if n := r.Sweep(); n != 1 {
		t.Errorf("expected 1 swept session, got %d", n)
	}
}
