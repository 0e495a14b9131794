package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	CORSOrigins []string
	// RateLimit is requests per minute per client address; zero disables it.
	RateLimit int
	StaticDir string
}

// Routes mounts the JSON API under /api, a liveness probe and, when
// configured, the static front end.
func (h *Handler) Routes(opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.logger))

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(newIPLimiter(opts.RateLimit).middleware)
		}

		r.Post("/auth/signup", h.Signup)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Get("/auth/me", h.Me)
			r.Get("/conversations", h.ListConversations)
			r.Get("/conversations/{id}", h.GetConversation)
			r.Delete("/conversations/{id}", h.DeleteConversation)
			r.Post("/chat/stream", h.ChatStream)
			r.Post("/upload", h.Upload)
		})
	})

	if opts.StaticDir != "" {
		r.Handle("/*", spaHandler(opts.StaticDir))
	}
	return r
}

// spaHandler serves files from dir and falls back to index.html for
// unknown paths.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if info, err := os.Stat(path); err != nil || info.IsDir() && r.URL.Path != "/" {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}
