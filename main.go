package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/lead-scorer/app"
	"github.com/mbolis/lead-scorer/config"
	"github.com/mbolis/lead-scorer/database"
	"github.com/mbolis/lead-scorer/forwarder"
	"github.com/mbolis/lead-scorer/log"
	"github.com/mbolis/lead-scorer/routes"
)

const (
	forwardTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
	sweepInterval   = time.Minute
	draftMaxIdle    = 24 * time.Hour
	limiterMaxIdle  = time.Hour
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	db, err := database.Open(cfg.DBUrl)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()
	store := database.NewStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AdminUser != "" {
		err = bootstrapOwner(ctx, store, cfg.AdminUser, cfg.AdminPassword)
		if err != nil {
			log.Fatal("main.admin:", err)
		}
	}

	queue, err := forwardQueue(ctx, cfg, store)
	if err != nil {
		log.Fatal("main.forwarder:", err)
	}

	app := app.New(cfg, store, queue)
	go app.Sessions.Janitor(ctx, sweepInterval)
	go app.Drafts.Janitor(ctx, sweepInterval, draftMaxIdle)
	go app.Limiter.Janitor(ctx, sweepInterval, limiterMaxIdle)

	handler := routes.Wire(app)

	err = runServer(ctx, cfg, handler)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}

	if queue != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := queue.Close(drainCtx); err != nil {
			log.Warnf("main.forwarder.drain: %s", err)
		}
	}
	log.Info("bye")
}

func bootstrapOwner(ctx context.Context, store *database.Store, user, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	err = store.PutUser(ctx, user, hash)
	if err != nil {
		return err
	}
	log.Infof("owner account %s ready", user)
	return nil
}

// forwardQueue returns nil when no spreadsheet credentials are configured.
func forwardQueue(ctx context.Context, cfg config.Config, store *database.Store) (*forwarder.Queue, error) {
	if cfg.GoogleCredentials == "" {
		log.Info("spreadsheet forwarding disabled")
		return nil, nil
	}

	appender, err := forwarder.NewSheetsAppender(ctx, cfg.GoogleCredentials)
	if err != nil {
		return nil, err
	}
	fwd := forwarder.New(store, appender, cfg.SheetRange, cfg.SheetTimezone)
	return forwarder.NewQueue(fwd, cfg.ForwardQueue, forwardTimeout), nil
}

func runServer(ctx context.Context, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("main.server.shutdown: %s", err)
		}
	}()

	log.Info("Listening on " + cfg.Url())
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// in-flight requests finish before the queue is drained
		<-stopped
	}
	return err
}
