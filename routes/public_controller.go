package routes

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/lead-scorer/app"
	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/httpx"
	"github.com/mbolis/lead-scorer/log"
	"github.com/mbolis/lead-scorer/model"
	"github.com/mbolis/lead-scorer/runner"
	"github.com/mbolis/lead-scorer/scoring"
)

// Respondents never see points or redirect targets before submitting.
type publicOption struct {
	ID         int64  `json:"id"`
	OptionText string `json:"option_text"`
}

type publicQuestion struct {
	ID            int64              `json:"id"`
	QuestionText  string             `json:"question_text"`
	QuestionType  model.QuestionType `json:"question_type"`
	AnswerOptions []publicOption     `json:"answer_options"`
}

type publicForm struct {
	ClientName string           `json:"client_name"`
	Subdomain  string           `json:"subdomain"`
	Questions  []publicQuestion `json:"questions"`
}

func toPublicQuestion(q model.Question) publicQuestion {
	pq := publicQuestion{
		ID:            q.ID,
		QuestionText:  q.QuestionText,
		QuestionType:  q.QuestionType,
		AnswerOptions: make([]publicOption, 0, len(q.AnswerOptions)),
	}
	for _, o := range q.AnswerOptions {
		pq.AnswerOptions = append(pq.AnswerOptions, publicOption{ID: o.ID, OptionText: o.OptionText})
	}
	return pq
}

func toPublicForm(f model.Form) publicForm {
	pf := publicForm{
		ClientName: f.ClientName,
		Subdomain:  f.Subdomain,
		Questions:  make([]publicQuestion, 0, len(f.Questions)),
	}
	for _, q := range f.Questions {
		pf.Questions = append(pf.Questions, toPublicQuestion(q))
	}
	return pf
}

func PublicGetForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		form, err := app.ActiveFormBySubdomain(r.Context(), chi.URLParam(r, "subdomain"))
		if err != nil {
			httpx.Error(w, r, "db.get_public_form", err)
			return
		}
		form.SortQuestions()
		render.JSON(w, r, toPublicForm(form))
	}
}

// PublicFormPage serves the respondent page, or a plain "form unavailable"
// when no active form is published under the subdomain.
func PublicFormPage(app app.App) http.HandlerFunc {
	page := filepath.Join(app.PublicDir, "form.html")
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := app.ActiveFormBySubdomain(r.Context(), chi.URLParam(r, "subdomain"))
		if errs.Is(err, errs.NotFound) {
			httpx.LogStatusMsg(w, http.StatusNotFound, log.DebugLevel, "page.form", "form unavailable")
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_public_form", err)
			return
		}
		http.ServeFile(w, r, page)
	}
}

type sessionView struct {
	ID          string           `json:"id,omitempty"`
	Status      runner.Status    `json:"status"`
	ClientName  string           `json:"client_name,omitempty"`
	Index       int              `json:"index"`
	Total       int              `json:"total"`
	Question    *publicQuestion  `json:"question,omitempty"`
	Answer      *int64           `json:"answer,omitempty"`
	CanAdvance  bool             `json:"can_advance"`
	IsLast      bool             `json:"is_last"`
	Outcome     *scoring.Outcome `json:"outcome,omitempty"`
	RedirectURL string           `json:"redirect_url,omitempty"`
}

func viewSession(id string, s *runner.Session) sessionView {
	v := sessionView{
		ID:         id,
		Status:     s.Status(),
		ClientName: s.Form().ClientName,
		Index:      s.Index(),
		Total:      s.Total(),
		CanAdvance: s.CanAdvance(),
		IsLast:     s.IsLast(),
	}
	if q, err := s.Current(); err == nil {
		pq := toPublicQuestion(q)
		v.Question = &pq
	}
	if a, ok := s.Answer(); ok {
		v.Answer = &a
	}
	if res, ok := s.Result(); ok {
		v.Outcome = &res.Outcome
	}
	if url, ok := s.RedirectURL(); ok {
		v.RedirectURL = url
	}
	return v
}

// StartSession loads the form and opens a respondent session over it. The
// utm_* parameters of the request are kept for the submission.
func StartSession(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subdomain := chi.URLParam(r, "subdomain")
		utm := runner.CaptureUTM(r.URL.RawQuery)

		s, err := runner.Load(r.Context(), app.Store, subdomain, utm)
		if err != nil {
			httpx.Error(w, r, "runner.load", err)
			return
		}

		switch s.Status() {
		case runner.NotFound:
			httpx.Error(w, r, "runner.load", errs.NotFoundf("runner.load", "form unavailable"))
			return
		case runner.Empty:
			render.JSON(w, r, viewSession("", s))
			return
		}

		id := app.Sessions.Add(s)
		log.Debugf("runner: session %s started on %s", id, subdomain)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, viewSession(id, s))
	}
}

// withSession runs step on the session named in the URL and answers with its
// resulting state.
func withSession(app app.App, code string, step func(r *http.Request, s *runner.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var view sessionView
		err := app.Sessions.With(id, func(s *runner.Session) error {
			if err := step(r, s); err != nil {
				return err
			}
			view = viewSession(id, s)
			return nil
		})
		if err != nil {
			httpx.Error(w, r, code, err)
			return
		}
		render.JSON(w, r, view)
	}
}

func GetSession(app app.App) http.HandlerFunc {
	return withSession(app, "runner.get", func(r *http.Request, s *runner.Session) error {
		return nil
	})
}

func SelectAnswer(app app.App) http.HandlerFunc {
	return withSession(app, "runner.select", func(r *http.Request, s *runner.Session) error {
		var body struct {
			OptionID int64 `json:"option_id"`
		}
		if err := decodeBody(r, &body); err != nil {
			return err
		}
		return s.Select(body.OptionID)
	})
}

// AdvanceSession moves to the next question, or submits on the last one.
func AdvanceSession(app app.App) http.HandlerFunc {
	return withSession(app, "runner.advance", func(r *http.Request, s *runner.Session) error {
		err := s.Advance(r.Context(), app.Recorder)
		if err == nil && s.Status() == runner.Terminal {
			sub, _ := s.Submission()
			log.Infof("submission %d recorded for form %d (score %d)", sub.ID, sub.FormID, sub.CalculatedScore)
		}
		return err
	})
}

func BackSession(app app.App) http.HandlerFunc {
	return withSession(app, "runner.back", func(r *http.Request, s *runner.Session) error {
		return s.Back()
	})
}

type submitRequest struct {
	Answers   scoring.Answers   `json:"answers"`
	UTMParams map[string]string `json:"utm_params"`
}

type submitResponse struct {
	SubmissionID int64           `json:"submission_id"`
	Outcome      scoring.Outcome `json:"outcome"`
	RedirectURL  string          `json:"redirect_url"`
}

// PublicSubmitForm scores and records a complete answer set in one request.
// UTM parameters come from the body, or from the query string if the body
// has none.
func PublicSubmitForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req submitRequest
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		utm := runner.FilterUTM(req.UTMParams)
		if len(utm) == 0 {
			utm = runner.CaptureUTM(r.URL.RawQuery)
		}

		sub, res, form, err := runner.Submit(r.Context(), app.Store, app.Recorder, chi.URLParam(r, "subdomain"), req.Answers, utm)
		if err != nil {
			httpx.Error(w, r, "runner.submit", err)
			return
		}

		log.Infof("submission %d recorded for form %d (score %d)", sub.ID, sub.FormID, sub.CalculatedScore)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, submitResponse{
			SubmissionID: sub.ID,
			Outcome:      res.Outcome,
			RedirectURL:  scoring.RedirectURL(form, res.Outcome),
		})
	}
}
