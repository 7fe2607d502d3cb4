package app

import (
	"github.com/go-chi/oauth"

	"github.com/mbolis/lead-scorer/config"
	"github.com/mbolis/lead-scorer/dashboard"
	"github.com/mbolis/lead-scorer/database"
	"github.com/mbolis/lead-scorer/draft"
	"github.com/mbolis/lead-scorer/forwarder"
	"github.com/mbolis/lead-scorer/httpx"
	"github.com/mbolis/lead-scorer/routes/middlewares"
	"github.com/mbolis/lead-scorer/runner"
)

// App carries every long-lived dependency the route handlers share.
type App struct {
	*database.Store
	*oauth.BearerServer
	config.Config

	Sessions  *runner.Registry
	Drafts    *draft.Workspace
	Dashboard *dashboard.Board
	Recorder  *forwarder.Recorder
	Limiter   *middlewares.RateLimiter
}

// New assembles an App around store. A nil queue records submissions
// without forwarding them.
func New(cfg config.Config, store *database.Store, queue *forwarder.Queue) App {
	return App{
		Store:        store,
		BearerServer: httpx.NewBearerServer(store, cfg.TokenSecret, cfg.TokenTTL),
		Config:       cfg,
		Sessions:     runner.NewRegistry(cfg.SessionTTL),
		Drafts:       draft.NewWorkspace(),
		Dashboard:    dashboard.NewBoard(store),
		Recorder:     forwarder.NewRecorder(store, queue),
		Limiter:      middlewares.NewRateLimiter(cfg.SubmitRate, burst(cfg.SubmitRate)),
	}
}

func burst(perSecond float64) int {
	b := int(perSecond * 5)
	if b < 5 {
		b = 5
	}
	return b
}
