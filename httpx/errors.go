package httpx

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/log"
)

// Will log an error, and send an HTTP response with status 500 and default text
func LogInternalError(w http.ResponseWriter, code string, err error) {
	log.Errorf("%s: %s", code, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// Will log an error code at the given level, and send
// an HTTP response with status and default text
func LogStatus(w http.ResponseWriter, status int, level log.Level, code string) {
	log.Log(level, code)
	http.Error(w, http.StatusText(status), status)
}

// Will log an error code and message at the given level,
// and send an HTTP response with the given status and formatted message
func LogStatusMsg(w http.ResponseWriter, status int, level log.Level, code string, msg string, args ...any) {
	errMsg := fmt.Sprintf(msg, args...)
	log.Log(level, code+":", errMsg)
	http.Error(w, errMsg, status)
}

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Kind    string   `json:"kind"`
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// StatusOf maps an error kind to its HTTP status.
func StatusOf(kind errs.Kind) int {
	switch kind {
	case errs.NotFound:
		return http.StatusNotFound
	case errs.Validation:
		return http.StatusUnprocessableEntity
	case errs.Conflict:
		return http.StatusConflict
	case errs.Auth:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Error logs err under code and answers with its classified status and a
// JSON ErrorResponse. Store and unknown failures are logged at ERROR and
// their cause is never sent to the client.
func Error(w http.ResponseWriter, r *http.Request, code string, err error) {
	kind := errs.KindOf(err)
	status := StatusOf(kind)

	if status == http.StatusInternalServerError {
		log.Errorf("%s: %+v", code, err)
	} else {
		log.Debugf("%s: %s", code, err)
	}

	resp := ErrorResponse{
		Kind:  kind.String(),
		Error: errs.Message(err),
	}
	if kind == errs.Validation {
		resp.Details = details(err)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}

func details(err error) []string {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return nil
	}
	out := make([]string, len(merr.Errors))
	for i, e := range merr.Errors {
		out[i] = e.Error()
	}
	return out
}
