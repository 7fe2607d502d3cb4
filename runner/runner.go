// Package runner walks a respondent through a published form one question at
// a time and records the scored result.
//
// A Session starts in Loading and ends in one of three terminal states:
// NotFound when no active form matches the subdomain, Empty when the form has
// no questions, or Terminal once its submission has been recorded. Nothing
// is stored before submission, so an abandoned session leaves no trace.
package runner

import (
	"context"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/model"
	"github.com/mbolis/lead-scorer/scoring"
)

type Status int

const (
	Loading Status = iota
	Active
	Submitting
	Terminal
	NotFound
	Empty
)

func (s Status) String() string {
	switch s {
	case Loading:
		return "loading"
	case Active:
		return "active"
	case Submitting:
		return "submitting"
	case Terminal:
		return "terminal"
	case NotFound:
		return "not_found"
	case Empty:
		return "empty"
	}
	return "unknown"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Done reports whether no further transition is possible.
func (s Status) Done() bool {
	return s == Terminal || s == NotFound || s == Empty
}

// FormLoader resolves the active form published under a subdomain.
type FormLoader interface {
	ActiveFormBySubdomain(ctx context.Context, subdomain string) (model.Form, error)
}

// Recorder durably stores a submission, assigning its id and creation time.
type Recorder interface {
	RecordSubmission(ctx context.Context, sub *model.Submission) error
}

type Session struct {
	form    model.Form
	index   int
	answers scoring.Answers
	status  Status
	utm     map[string]string

	result     scoring.Result
	submission model.Submission
}

// Load resolves subdomain and prepares a session over the resulting form.
// An unresolvable subdomain is not an error: the returned session is in the
// NotFound state. Only store failures are returned as errors.
func Load(ctx context.Context, loader FormLoader, subdomain string, utm map[string]string) (*Session, error) {
	if utm == nil {
		utm = map[string]string{}
	}
	s := &Session{
		answers: scoring.Answers{},
		status:  Loading,
		utm:     utm,
	}

	form, err := loader.ActiveFormBySubdomain(ctx, subdomain)
	switch {
	case errs.Is(err, errs.NotFound):
		s.status = NotFound
		return s, nil
	case err != nil:
		return nil, err
	}

	form.SortQuestions()
	s.form = form
	if len(form.Questions) == 0 {
		s.status = Empty
	} else {
		s.status = Active
	}
	return s, nil
}

func (s *Session) Status() Status { return s.status }

func (s *Session) Form() model.Form { return s.form }

func (s *Session) Index() int { return s.index }

// Total is the number of questions in the form.
func (s *Session) Total() int { return len(s.form.Questions) }

// Current returns the question being asked.
func (s *Session) Current() (model.Question, error) {
	if s.status != Active {
		return model.Question{}, s.notActive("runner.current")
	}
	return s.form.Questions[s.index], nil
}

// Answer returns the option selected for the current question, if any.
func (s *Session) Answer() (int64, bool) {
	if s.status != Active {
		return 0, false
	}
	id, ok := s.answers[s.form.Questions[s.index].ID]
	return id, ok
}

// Select records optionID as the answer to the current question, replacing
// any earlier choice.
func (s *Session) Select(optionID int64) error {
	q, err := s.Current()
	if err != nil {
		return err
	}
	if _, ok := q.Option(optionID); !ok {
		return errs.Validationf("runner.select", "option %d does not belong to question %d", optionID, q.ID)
	}
	s.answers[q.ID] = optionID
	return nil
}

// CanAdvance reports whether the current question has been answered.
func (s *Session) CanAdvance() bool {
	_, ok := s.Answer()
	return ok
}

// IsLast reports whether the current question is the last one.
func (s *Session) IsLast() bool {
	return s.status == Active && s.index == len(s.form.Questions)-1
}

// Advance moves to the next question, or submits when the current one is
// the last. The submission is recorded before the session turns Terminal;
// if recording fails the session stays Active with its answers intact.
func (s *Session) Advance(ctx context.Context, rec Recorder) error {
	if s.status != Active {
		return s.notActive("runner.advance")
	}
	if !s.CanAdvance() {
		return errs.Validationf("runner.advance", "the current question has no answer")
	}

	if !s.IsLast() {
		s.index++
		return nil
	}
	return s.submit(ctx, rec)
}

// Back returns to the previous question, keeping every recorded answer.
func (s *Session) Back() error {
	if s.status != Active {
		return s.notActive("runner.back")
	}
	if s.index == 0 {
		return errs.Validationf("runner.back", "already at the first question")
	}
	s.index--
	return nil
}

func (s *Session) submit(ctx context.Context, rec Recorder) error {
	s.status = Submitting

	result := scoring.Score(s.form, s.answers)
	sub := model.Submission{
		FormID:          s.form.ID,
		CalculatedScore: result.TotalScore,
		SubmittedData:   result.SubmittedData,
		UTMParams:       s.utm,
	}
	if err := rec.RecordSubmission(ctx, &sub); err != nil {
		s.status = Active
		return err
	}

	s.result = result
	s.submission = sub
	s.status = Terminal
	return nil
}

// Result returns the scored result once the session is Terminal.
func (s *Session) Result() (scoring.Result, bool) {
	return s.result, s.status == Terminal
}

func (s *Session) Submission() (model.Submission, bool) {
	return s.submission, s.status == Terminal
}

// RedirectURL is where the respondent goes after a Terminal session.
func (s *Session) RedirectURL() (string, bool) {
	if s.status != Terminal {
		return "", false
	}
	return scoring.RedirectURL(s.form, s.result.Outcome), true
}

func (s *Session) notActive(code string) error {
	switch s.status {
	case NotFound:
		return errs.NotFoundf(code, "form unavailable")
	case Empty:
		return errs.New(errs.Conflict, code, "form has no questions")
	}
	return errs.New(errs.Conflict, code, "session is %s", s.status)
}

// Submit scores a complete answer set in one step and records it. It is the
// non-interactive path for clients that walk the questions themselves.
func Submit(ctx context.Context, loader FormLoader, rec Recorder, subdomain string, answers scoring.Answers, utm map[string]string) (model.Submission, scoring.Result, model.Form, error) {
	form, err := loader.ActiveFormBySubdomain(ctx, subdomain)
	if err != nil {
		return model.Submission{}, scoring.Result{}, model.Form{}, err
	}
	form.SortQuestions()
	if utm == nil {
		utm = map[string]string{}
	}

	result := scoring.Score(form, answers)
	sub := model.Submission{
		FormID:          form.ID,
		CalculatedScore: result.TotalScore,
		SubmittedData:   result.SubmittedData,
		UTMParams:       utm,
	}
	if err := rec.RecordSubmission(ctx, &sub); err != nil {
		return model.Submission{}, scoring.Result{}, model.Form{}, err
	}
	return sub, result, form, nil
}
