package server

import (
	"context"
	"net/http"
	"time"

	"example.com/socialfeed/internal/auth"
	"example.com/socialfeed/internal/engage"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/middleware"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/token"
	"github.com/gorilla/mux"
)

type Server struct {
	store    store.StoreInterface
	accounts *auth.Service
	engine   *engage.Engine
	tokens   middleware.Verifier
}

var logg = logger.New()

// New wires the account flow and the engagement engine on top of st.
// Engine options (publisher, clock) are passed through.
func New(st store.StoreInterface, tokens *token.Service, bcryptCost int, opts ...engage.Option) *Server {
	return &Server{
		store:    st,
		accounts: auth.NewService(st, tokens, bcryptCost),
		engine:   engage.New(st, st, opts...),
		tokens:   tokens,
	}
}

// Routes builds the HTTP handler. Everything under /api except
// registration and login requires the x-auth-token header.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.AccessLog)

	protect := middleware.TokenAuth(s.tokens)

	r.HandleFunc("/", s.rootHandler).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Public endpoints
	api.HandleFunc("/users", s.registerHandler).Methods(http.MethodPost)
	api.HandleFunc("/auth", s.loginHandler).Methods(http.MethodPost)

	// Protected endpoints
	api.Handle("/auth", protect(http.HandlerFunc(s.currentUserHandler))).Methods(http.MethodGet)
	api.Handle("/activity", protect(http.HandlerFunc(s.activityHandler))).Methods(http.MethodGet)

	api.Handle("/post/like/{id}", protect(http.HandlerFunc(s.toggleLikeHandler))).Methods(http.MethodGet)
	api.Handle("/post/comment/{id}", protect(http.HandlerFunc(s.addCommentHandler))).Methods(http.MethodPost)
	api.Handle("/post/comment/{id}/{comment_id}", protect(http.HandlerFunc(s.deleteCommentHandler))).Methods(http.MethodDelete)

	api.Handle("/post", protect(http.HandlerFunc(s.createPostHandler))).Methods(http.MethodPost)
	api.Handle("/post", protect(http.HandlerFunc(s.listPostsHandler))).Methods(http.MethodGet)
	api.Handle("/post/{id}", protect(http.HandlerFunc(s.getPostHandler))).Methods(http.MethodGet)
	api.Handle("/post/{id}", protect(http.HandlerFunc(s.deletePostHandler))).Methods(http.MethodDelete)

	return r
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully. TLS is used when both certFile and keyFile are set.
func Run(ctx context.Context, handler http.Handler, addr, certFile, keyFile string) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
