package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/lead-scorer/draft"
	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/routes/middlewares"
)

func decodeBody(r *http.Request, v any) error {
	err := render.DecodeJSON(r.Body, v)
	if err != nil {
		return &errs.Error{Kind: errs.Validation, Code: "request.parse_body", Msg: "malformed request body", Err: err}
	}
	return nil
}

func urlID(r *http.Request, param string) (draft.ID, error) {
	id, err := draft.ParseID(chi.URLParam(r, param))
	if err != nil {
		return draft.ID{}, &errs.Error{Kind: errs.NotFound, Code: "request.get_url_param." + param, Msg: param + " not found", Err: err}
	}
	return id, nil
}

func ownerOf(r *http.Request) (string, bool) {
	session, ok := middlewares.SessionFrom(r.Context())
	return session.Owner, ok
}
