// Package statserver serves a read-only JSON API over the stats database,
// adapted from the teacher's server package (App wraps *sql.DB, exposes a
// Handler()) but pointed at pass-statistics queries instead of CPG queries.
package statserver

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// App holds server dependencies.
type App struct {
	db *DB
}

// NewApp creates an App over an already-open stats database.
func NewApp(db *sql.DB) *App {
	return &App{db: NewDB(db)}
}

// Handler returns the HTTP handler: a router with recovery, real-IP, and
// permissive CORS (a dashboard on another port may call this API), routing
// /api/runs, /api/runs/{id}/summary, and /api/passes.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", a.handleListRuns)
		r.Get("/runs/{id}/summary", a.handleRunSummary)
		r.Get("/passes", a.handlePassAverages)
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
