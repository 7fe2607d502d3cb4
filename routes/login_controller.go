package routes

import (
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-chi/render"

	"github.com/mbolis/lead-scorer/app"
	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/httpx"
	"github.com/mbolis/lead-scorer/log"
	"github.com/mbolis/lead-scorer/routes/middlewares"
)

var reRefresh = regexp.MustCompile(`(?i)^refresh\s+(.*)`)

// Login exchanges HTTP basic credentials for a token pair, returned in the
// body and set as cookies for the page routes.
func Login(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "login.basic_auth")
			return
		}

		body := url.Values{
			"grant_type": {"password"},
			"username":   {user},
			"password":   {pass},
		}.Encode()
		r.Body = io.NopCloser(strings.NewReader(body))
		r.Header.Set("content-type", "application/x-www-form-urlencoded")
		r.Header.Set("content-length", strconv.Itoa(len(body)))
		r.Form, r.PostForm = nil, nil

		resp := httpx.NewResponseBuffer()
		app.UserCredentials(resp, r)
		if resp.Status() == http.StatusOK {
			var tokens middlewares.Tokens
			if err := resp.Decode(&tokens); err == nil {
				middlewares.SetTokenCookies(w, tokens)
			}
			log.Infof("login: %s signed in", user)
		} else {
			log.Debugf("login: %s refused (%d)", user, resp.Status())
		}
		resp.Flush(w)
	}
}

// Refresh takes the refresh token from an "Authorization: Refresh <token>"
// header, or from the refresh cookie.
func Refresh(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var token string
		if match := reRefresh.FindStringSubmatch(r.Header.Get("authorization")); len(match) > 0 {
			token = match[1]
		} else if c, err := r.Cookie("refresh_token"); err == nil {
			token = c.Value
		}
		if token == "" {
			httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "refresh.token")
			return
		}

		tokens, status := middlewares.RefreshTokens(app.BearerServer, token)
		if status != http.StatusOK {
			httpx.LogStatus(w, status, log.DebugLevel, "refresh.bearer_server")
			return
		}

		middlewares.SetTokenCookies(w, tokens)
		render.JSON(w, r, tokens)
	}
}

// Logout revokes every refresh token of the caller and clears the cookies.
func Logout(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := middlewares.SessionFrom(r.Context())
		if !ok {
			httpx.Error(w, r, "logout.session", errs.New(errs.Auth, "logout", "no session"))
			return
		}

		err := app.RevokeTokens(r.Context(), session.Owner)
		if err != nil {
			httpx.Error(w, r, "db.revoke_tokens", err)
			return
		}

		middlewares.ClearTokenCookies(w)
		log.Infof("logout: %s signed out", session.Owner)
		w.WriteHeader(http.StatusNoContent)
	}
}

func CurrentSession(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := middlewares.SessionFrom(r.Context())
		if !ok {
			httpx.Error(w, r, "session", errs.New(errs.Auth, "session", "no session"))
			return
		}
		render.JSON(w, r, session)
	}
}

// owner returns the authenticated owner, answering 401 when there is none.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	session, ok := middlewares.SessionFrom(r.Context())
	if !ok {
		httpx.Error(w, r, "auth.session", errs.New(errs.Auth, "auth.session", "no session"))
		return "", false
	}
	return session.Owner, true
}
