package routes

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/lead-scorer/app"
	"github.com/mbolis/lead-scorer/httpx"
	"github.com/mbolis/lead-scorer/log"
	"github.com/mbolis/lead-scorer/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(
		middleware.RealIP,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.Logger, NoColor: true}),
		middleware.Recoverer,
	)

	root.Mount("/api", apiRouter(app))

	root.Get("/login", servePage(app.PublicDir, "login.html"))
	root.Get("/form/{subdomain}", PublicFormPage(app))

	root.Group(func(r chi.Router) {
		r.Use(middlewares.CookieAuth(app.BearerServer), middlewares.Owner(app.TokenSecret))

		r.Get("/dashboard", servePage(app.PrivateDir, "dashboard.html"))
		r.Get("/forms/new", servePage(app.PrivateDir, "editor.html"))
		r.Get(`/forms/edit/{id:^\d+$}`, servePage(app.PrivateDir, "editor.html"))
	})

	root.Handle("/static/*", http.StripPrefix("/static", http.FileServer(http.Dir(filepath.Join(app.PublicDir, "static")))))
	root.NotFound(NotFound)

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	api.Group(func(r chi.Router) {
		r.Use(middlewares.Owner(app.TokenSecret))
		r.Post("/logout", Logout(app))
		r.Get("/session", CurrentSession(app))
	})

	api.Route("/public", func(r chi.Router) {
		r.Get("/forms/{subdomain}", PublicGetForm(app))
		r.With(app.Limiter.Handler).Post("/forms/{subdomain}/sessions", StartSession(app))
		r.With(app.Limiter.Handler).Post("/forms/{subdomain}/submissions", PublicSubmitForm(app))

		r.Get("/sessions/{id}", GetSession(app))
		r.Put("/sessions/{id}/answer", SelectAnswer(app))
		r.With(app.Limiter.Handler).Post("/sessions/{id}/advance", AdvanceSession(app))
		r.Post("/sessions/{id}/back", BackSession(app))
	})

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Owner(app.TokenSecret))

		r.Get("/dashboard", GetDashboard(app))

		// CRUD form
		r.Post("/forms", CreateForm(app))
		r.Get("/forms", ListForms(app))
		r.Get(`/forms/{id:^\d+$}`, GetFormById(app))
		r.Put(`/forms/{id:^\d+$}`, ReplaceForm(app))
		r.Delete(`/forms/{id:^\d+$}`, DeleteForm(app))

		r.Get(`/forms/{id:^\d+$}/submissions`, GetFormSubmissions(app))

		// draft workspace
		r.Post("/drafts", OpenDraft(app))
		r.Route("/drafts/{token}", func(r chi.Router) {
			r.Get("/", GetDraft(app))
			r.Patch("/", UpdateDraft(app))
			r.Delete("/", DiscardDraft(app))
			r.Post("/save", SaveDraft(app))

			r.Post("/questions", AddQuestion(app))
			r.Patch("/questions/{question}", UpdateQuestion(app))
			r.Delete("/questions/{question}", DeleteQuestion(app))

			r.Post("/questions/{question}/options", AddOption(app))
			r.Patch("/questions/{question}/options/{option}", UpdateOption(app))
			r.Delete("/questions/{question}/options/{option}", DeleteOption(app))
		})
	})

	api.NotFound(NotFound)
	return api
}

func servePage(dir, name string) http.HandlerFunc {
	path := filepath.Join(dir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}

func NotFound(w http.ResponseWriter, r *http.Request) {
	httpx.LogStatus(w, http.StatusNotFound, log.DebugLevel, "route.not_found")
}
