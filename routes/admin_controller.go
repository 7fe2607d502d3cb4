package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/lead-scorer/app"
	"github.com/mbolis/lead-scorer/dashboard"
	"github.com/mbolis/lead-scorer/draft"
	"github.com/mbolis/lead-scorer/httpx"
	"github.com/mbolis/lead-scorer/log"
)

func formID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
		return 0, false
	}
	return id, true
}

type dashboardResponse struct {
	dashboard.View
	Errors []string `json:"errors,omitempty"`
}

// GetDashboard answers with the owner's dashboard. Failed reads are listed
// in "errors"; their part shows the last values read, or null.
func GetDashboard(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}

		view, failed, err := app.Dashboard.Load(r.Context(), owner)
		if err != nil {
			log.Errorf("db.get_dashboard: %s", err)
		}
		resp := dashboardResponse{View: view}
		for _, part := range failed {
			switch part {
			case dashboard.PartKPIs:
				resp.Errors = append(resp.Errors, "could not load the counters")
			case dashboard.PartForms:
				resp.Errors = append(resp.Errors, "could not load the forms")
			}
		}
		render.JSON(w, r, resp)
	}
}

func ListForms(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}

		forms, err := app.FormSummaries(r.Context(), owner)
		if err != nil {
			httpx.Error(w, r, "db.get_forms", err)
			return
		}
		render.JSON(w, r, forms)
	}
}

func GetFormById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}
		id, ok := formID(w, r)
		if !ok {
			return
		}

		form, err := app.Form(r.Context(), owner, id)
		if err != nil {
			httpx.Error(w, r, "db.get_form", err)
			return
		}
		render.JSON(w, r, form)
	}
}

// CreateForm stores a whole form tree in one request.
func CreateForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}

		d := draft.New()
		err := render.DecodeJSON(r.Body, d)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		d.FormID = 0

		err = d.Save(r.Context(), app.Store, owner)
		if err != nil {
			httpx.Error(w, r, "draft.save", err)
			return
		}

		log.Infof("form %d (%s) created by %s", d.FormID, d.Subdomain, owner)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, d)
	}
}

// ReplaceForm overwrites a form and its whole question tree.
func ReplaceForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}
		id, ok := formID(w, r)
		if !ok {
			return
		}

		d := draft.New()
		err := render.DecodeJSON(r.Body, d)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		d.FormID = id

		err = d.Save(r.Context(), app.Store, owner)
		if err != nil {
			httpx.Error(w, r, "draft.save", err)
			return
		}
		render.JSON(w, r, d)
	}
}

func DeleteForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}
		id, ok := formID(w, r)
		if !ok {
			return
		}

		err := app.Store.DeleteForm(r.Context(), owner, id)
		if err != nil {
			httpx.Error(w, r, "db.delete_form", err)
			return
		}

		log.Infof("form %d deleted by %s", id, owner)
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetFormSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := owner(w, r)
		if !ok {
			return
		}
		id, ok := formID(w, r)
		if !ok {
			return
		}

		submissions, err := app.Submissions(r.Context(), owner, id)
		if err != nil {
			httpx.Error(w, r, "db.get_submissions", err)
			return
		}
		render.JSON(w, r, submissions)
	}
}
