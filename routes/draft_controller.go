package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/lead-scorer/app"
	"github.com/mbolis/lead-scorer/draft"
	"github.com/mbolis/lead-scorer/httpx"
	"github.com/mbolis/lead-scorer/log"
)

type draftResponse struct {
	Token string       `json:"token"`
	ID    *draft.ID    `json:"id,omitempty"`
	Draft *draft.Draft `json:"draft"`
}

type fieldUpdate struct {
	Field draft.Field `json:"field"`
	Value any         `json:"value"`
}

// OpenDraft starts editing a blank form, or the stored form named by
// "form_id" in the body.
func OpenDraft(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}

		var body struct {
			FormID int64 `json:"form_id"`
		}
		err := render.DecodeJSON(r.Body, &body)
		if err != nil && !errors.Is(err, io.EOF) {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		d := draft.New()
		if body.FormID != 0 {
			form, err := app.Form(r.Context(), owner, body.FormID)
			if err != nil {
				httpx.Error(w, r, "db.get_form", err)
				return
			}
			d = draft.FromForm(form)
		}

		token := app.Drafts.Open(owner, d)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, draftResponse{Token: token, Draft: d.Clone()})
	}
}

// withDraft runs edit on the draft named in the URL and answers with the
// resulting draft, or with the edit's error.
func withDraft(app app.App, code string, status int, edit func(r *http.Request, d *draft.Draft) (*draft.ID, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}
		token := chi.URLParam(r, "token")

		var resp draftResponse
		err := app.Drafts.With(owner, token, func(d *draft.Draft) error {
			id, err := edit(r, d)
			if err != nil {
				return err
			}
			resp = draftResponse{Token: token, ID: id, Draft: d.Clone()}
			return nil
		})
		if err != nil {
			httpx.Error(w, r, code, err)
			return
		}

		render.Status(r, status)
		render.JSON(w, r, resp)
	}
}

func GetDraft(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.get", http.StatusOK, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		return nil, nil
	})
}

func UpdateDraft(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.set_field", http.StatusOK, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		var u fieldUpdate
		if err := decodeBody(r, &u); err != nil {
			return nil, err
		}
		return nil, d.SetField(u.Field, u.Value)
	})
}

// SaveDraft writes the draft to the store. A failed save leaves the draft as
// it was, ready to be fixed and saved again.
func SaveDraft(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.save", http.StatusOK, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		owner, _ := ownerOf(r)
		err := d.Save(r.Context(), app.Store, owner)
		if err == nil {
			log.Infof("form %d (%s) saved by %s", d.FormID, d.Subdomain, owner)
		}
		return nil, err
	})
}

func DiscardDraft(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}

		err := app.Drafts.Discard(owner, chi.URLParam(r, "token"))
		if err != nil {
			httpx.Error(w, r, "draft.discard", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AddQuestion(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.add_question", http.StatusCreated, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		id := d.AddQuestion()
		return &id, nil
	})
}

func UpdateQuestion(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.update_question", http.StatusOK, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		qid, err := urlID(r, "question")
		if err != nil {
			return nil, err
		}
		var u fieldUpdate
		if err := decodeBody(r, &u); err != nil {
			return nil, err
		}
		return nil, d.UpdateQuestion(qid, u.Field, u.Value)
	})
}

func DeleteQuestion(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.delete_question", http.StatusOK, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		qid, err := urlID(r, "question")
		if err != nil {
			return nil, err
		}
		return nil, d.DeleteQuestion(qid)
	})
}

func AddOption(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.add_option", http.StatusCreated, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		qid, err := urlID(r, "question")
		if err != nil {
			return nil, err
		}
		id, err := d.AddOption(qid)
		if err != nil {
			return nil, err
		}
		return &id, nil
	})
}

func UpdateOption(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.update_option", http.StatusOK, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		qid, err := urlID(r, "question")
		if err != nil {
			return nil, err
		}
		oid, err := urlID(r, "option")
		if err != nil {
			return nil, err
		}
		var u fieldUpdate
		if err := decodeBody(r, &u); err != nil {
			return nil, err
		}
		return nil, d.UpdateOption(qid, oid, u.Field, u.Value)
	})
}

func DeleteOption(app app.App) http.HandlerFunc {
	return withDraft(app, "draft.delete_option", http.StatusOK, func(r *http.Request, d *draft.Draft) (*draft.ID, error) {
		qid, err := urlID(r, "question")
		if err != nil {
			return nil, err
		}
		oid, err := urlID(r, "option")
		if err != nil {
			return nil, err
		}
		return nil, d.DeleteOption(qid, oid)
	})
}
