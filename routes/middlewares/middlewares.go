package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"

	"github.com/mbolis/lead-scorer/httpx"
	"github.com/mbolis/lead-scorer/log"
)

// Session is the authenticated owner of a request.
type Session struct {
	Owner string `json:"owner"`
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the session Owner put in ctx, if any.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok && s.Owner != ""
}

// Owner checks the bearer token, requires the owner role, and puts the
// caller's Session in the request context. Without an Authorization header
// the access token cookie is used.
func Owner(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(bearerFromCookie, oauth.Authorize(secret, nil), owner).Handler(next)
	}
}

func bearerFromCookie(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") == "" {
			if c, err := r.Cookie(accessCookie); err == nil && c.Value != "" {
				r.Header.Set("authorization", "Bearer "+c.Value)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := r.Context().Value(oauth.ClaimsContext).(map[string]string)
		credential, _ := r.Context().Value(oauth.CredentialContext).(string)

		isOwner := false
		if rolesClaim, ok := claims["roles"]; ok {
			for _, role := range strings.Split(rolesClaim, ",") {
				if role == httpx.OwnerRole {
					isOwner = true
					break
				}
			}
		}

		if !isOwner || credential == "" {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "auth.owner_role")
			return
		}

		ctx := WithSession(r.Context(), Session{Owner: credential})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
	refreshMaxAge = 60 * 60 * 24 * 365
)

// CookieAuth lets page requests authenticate with token cookies. An expired
// access token is renewed from the refresh cookie; with neither the client is
// sent to the login page, which will bring it back to the page it asked for.
func CookieAuth(bearerServer *oauth.BearerServer) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				h.ServeHTTP(w, r)
				return
			}

			token, err := r.Cookie(accessCookie)
			if err != nil && !errors.Is(err, http.ErrNoCookie) {
				httpx.LogInternalError(w, "auth.cookie.access", err)
				return
			}
			if err == nil {
				r.Header.Set("authorization", "Bearer "+token.Value)
				buf := httpx.NewResponseBuffer()
				h.ServeHTTP(buf, r)
				if buf.Status() != http.StatusUnauthorized {
					buf.Flush(w)
					return
				}
			}

			loginLocation := "/login?goto=" + url.QueryEscape(r.RequestURI)

			refreshToken, err := r.Cookie(refreshCookie)
			if err != nil {
				if !errors.Is(err, http.ErrNoCookie) {
					httpx.LogInternalError(w, "auth.cookie.refresh", err)
					return
				}
				http.Redirect(w, r, loginLocation, http.StatusTemporaryRedirect)
				return
			}

			tokens, status := RefreshTokens(bearerServer, refreshToken.Value)
			if status == http.StatusUnauthorized {
				http.SetCookie(w, &http.Cookie{
					Path:     "/",
					Name:     refreshCookie,
					Value:    "",
					MaxAge:   -1,
					SameSite: http.SameSiteLaxMode,
				})
				http.Redirect(w, r, loginLocation, http.StatusTemporaryRedirect)
				return
			}
			if status != http.StatusOK {
				httpx.LogStatus(w, status, log.WarnLevel, "auth.cookie.refresh")
				return
			}

			SetTokenCookies(w, tokens)
			r.Header.Set("authorization", "Bearer "+tokens.AccessToken)
			h.ServeHTTP(w, r)
		})
	}
}

// Tokens is the part of a bearer server token response the cookies need.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshTokens exchanges a refresh token for a fresh token pair. The
// returned status is the one the bearer server answered with.
func RefreshTokens(bearerServer *oauth.BearerServer, refreshToken string) (Tokens, int) {
	body := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}.Encode()

	req, err := http.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if err != nil {
		log.Errorf("auth.refresh.new_request: %s", err)
		return Tokens{}, http.StatusInternalServerError
	}
	req.Header.Set("content-type", "application/x-www-form-urlencoded")
	req.Header.Set("content-length", strconv.Itoa(len(body)))

	resp := httpx.NewResponseBuffer()
	bearerServer.UserCredentials(resp, req)
	if resp.Status() != http.StatusOK {
		return Tokens{}, resp.Status()
	}

	var tokens Tokens
	if err := resp.Decode(&tokens); err != nil || tokens.AccessToken == "" {
		log.Errorf("auth.refresh.decode: %v", err)
		return Tokens{}, http.StatusInternalServerError
	}
	return tokens, http.StatusOK
}

func SetTokenCookies(w http.ResponseWriter, tokens Tokens) {
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     accessCookie,
		Value:    tokens.AccessToken,
		MaxAge:   tokens.ExpiresIn,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Path:     "/",
		Name:     refreshCookie,
		Value:    tokens.RefreshToken,
		MaxAge:   refreshMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Path:   "/",
			Name:   name,
			Value:  "",
			MaxAge: -1,
		})
	}
}
