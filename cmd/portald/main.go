package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	api "github.com/mind-engage/testportal/internal/api/http"
	"github.com/mind-engage/testportal/internal/attempt"
	"github.com/mind-engage/testportal/internal/auth"
	"github.com/mind-engage/testportal/internal/config"
	"github.com/mind-engage/testportal/internal/db"
	"github.com/mind-engage/testportal/internal/monitor"
	"github.com/mind-engage/testportal/internal/store"
)

func main() {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()
	st := store.NewSQLStore(dbh)

	// --- Auth ---
	adminHash, err := cfg.ResolveAdminHash()
	if err != nil {
		log.Fatalf("admin credentials: %v", err)
	}
	if adminHash == "" {
		log.Printf("warning: no admin password configured, admin login disabled")
	}
	authSvc := auth.NewAuthService(cfg.AuthSecret, cfg.SessionTTL)
	policy := auth.NewLoginPolicy(st, cfg.AdminUser, adminHash)

	// --- Attempts & monitor ---
	submit := &attempt.Service{Catalog: st, Students: st, Recorder: attempt.NewRecorder(st)}
	var hub *monitor.Hub
	if cfg.EnableMonitor {
		hub = monitor.NewHub()
		go hub.Run(ctx)
		submit.Events = hub
	}

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(timeoutExceptUpgrade(30 * time.Second))

	api.Mount(r, api.Deps{
		Store:  st,
		Auth:   authSvc,
		Policy: policy,
		Submit: submit,
		Hub:    hub,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s (mode=%s, db=%s, monitor=%t)", cfg.HTTPAddr, cfg.Mode, driver, cfg.EnableMonitor)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// timeoutExceptUpgrade applies middleware.Timeout to plain requests only.
// Websocket upgrades outlive any request deadline.
func timeoutExceptUpgrade(d time.Duration) func(http.Handler) http.Handler {
	timeout := middleware.Timeout(d)
	return func(next http.Handler) http.Handler {
		limited := timeout(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if websocket.IsWebSocketUpgrade(r) {
				next.ServeHTTP(w, r)
				return
			}
			limited.ServeHTTP(w, r)
		})
	}
}
