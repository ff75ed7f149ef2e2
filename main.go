package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	jsonlog "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"shipyard_report/editor"
	"shipyard_report/kv"
	"shipyard_report/metrics"
	"shipyard_report/store"
)

type app struct {
	cfg        *Config
	backend    store.Backend
	cache      kv.Store
	sessions   *sessions.CookieStore
	workspaces *editor.Registry
}

func newApp(cfg *Config, backend store.Backend, cache kv.Store) *app {
	return &app{
		cfg:      cfg,
		backend:  backend,
		cache:    cache,
		sessions: newSessionStore(cfg.SessionSecret),
		workspaces: editor.NewRegistry(backend, cache, editor.Options{
			AutosaveEnabled: cfg.AutosaveEnabled,
			AutosaveDelay:   cfg.AutosaveDelay,
			ShiftHours:      cfg.StandardShiftHours,
		}, cfg.SessionIdle),
	}
}

func (a *app) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)

	r.HandleFunc("/login", a.loginHandler).Methods("POST")
	r.HandleFunc("/logout", a.logoutHandler).Methods("POST")
	r.HandleFunc("/api/check-auth", a.checkAuthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/operators", a.requireAuth(a.operatorsHandler)).Methods("GET")
	api.HandleFunc("/workspace", a.requireAuth(a.loadWorkspaceHandler)).Methods("GET")
	api.HandleFunc("/workspace", a.requireAuth(a.updateHeaderHandler)).Methods("PATCH")
	api.HandleFunc("/workspace", a.requireAuth(a.closeWorkspaceHandler)).Methods("DELETE")
	api.HandleFunc("/workspace/current", a.requireAuth(a.currentWorkspaceHandler)).Methods("GET")
	api.HandleFunc("/workspace/save", a.requireAuth(a.saveHandler)).Methods("POST")
	api.HandleFunc("/workspace/rows", a.requireAuth(a.addRowHandler)).Methods("POST")
	api.HandleFunc("/workspace/rows/{index}", a.requireAuth(a.removeRowHandler)).Methods("DELETE")
	api.HandleFunc("/workspace/rows/{index}", a.requireAuth(a.updateCellHandler)).Methods("PATCH")
	api.HandleFunc("/workspace/rows/{index}/operators", a.requireAuth(a.addOperatorHandler)).Methods("POST")
	api.HandleFunc("/workspace/rows/{index}/operators/toggle", a.requireAuth(a.toggleOperatorHandler)).Methods("POST")
	api.HandleFunc("/workspace/rows/{index}/operators/{operatorId}", a.requireAuth(a.removeOperatorHandler)).Methods("DELETE")
	api.HandleFunc("/workspace/rows/{index}/lines/{line}/hours", a.requireAuth(a.setHoursHandler)).Methods("PUT")
	api.HandleFunc("/workspace/rows/{index}/legacy-hours", a.requireAuth(a.setLegacyHoursHandler)).Methods("PUT")
	api.HandleFunc("/inbox/returned", a.requireAuth(a.returnedInboxHandler)).Methods("GET")
	api.HandleFunc("/roster", a.requireAuth(a.rosterHandler)).Methods("GET")
	return r
}

func setupLogging(cfg *Config) {
	if cfg.LogFormat == "json" {
		log.SetHandler(jsonlog.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("invalid LOG_LEVEL=%q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// openBackend connects to PostgreSQL when a database URL is configured and
// falls back to a seeded in-memory backend otherwise.
func openBackend(ctx context.Context, cfg *Config) (store.Backend, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory backend")
		mem, err := seedMemory(cfg.DevPassword)
		return mem, nil, err
	}

	log.Info("connecting to database")
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(cfg.DBMaxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := store.InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.NewPostgres(db), db, nil
}

func seedMemory(password string) (*store.Memory, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	mem := store.NewMemory()
	for _, u := range []store.User{
		{Username: "foreman", FullName: "Site Foreman", Role: editor.RoleForeman},
		{Username: "office", FullName: "Site Office", Role: editor.RoleOffice},
		{Username: "admin", FullName: "Administrator", Role: editor.RoleAdmin},
	} {
		u.PasswordHash = string(hash)
		mem.AddUser(u)
	}
	for _, name := range [][2]string{{"Mario", "Rossi"}, {"Luca", "Bruno"}, {"Anna", "Verdi"}} {
		mem.AddOperator(store.OperatorRecord{
			FirstName: sql.NullString{String: name[0], Valid: true},
			LastName:  sql.NullString{String: name[1], Valid: true},
		})
	}
	return mem, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn("no .env file found, using environment")
	}
	cfg := LoadConfig()
	setupLogging(cfg)
	metrics.Register(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, db, err := openBackend(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("open backend")
	}
	if db != nil {
		defer db.Close()
	}

	cache := kv.NewMemory()
	unsubscribe := cache.Subscribe(editor.RosterTopic, func(key string) {
		log.WithField("key", key).Debug("roster updated")
	})
	defer unsubscribe()

	a := newApp(cfg, backend, cache)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
	a.workspaces.CloseAll()
}
