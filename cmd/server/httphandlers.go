package server

import (
	"io"
	"net/http"
	"strconv"

	"example.com/socialfeed/internal/apperr"
	"example.com/socialfeed/internal/auth"
	"example.com/socialfeed/internal/middleware"
	"github.com/gorilla/mux"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// --- HTTP Handlers ---

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "API is running...")
}

// registerHandler creates an account.
// Expects JSON body: {"name": "...", "email": "...", "password": "..."}
// Returns JSON response: {"token": "..."}
func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var body auth.RegisterInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, "http/users", err)
		return
	}

	tok, err := s.accounts.Register(r.Context(), body)
	if err != nil {
		writeError(w, "http/users", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

// loginHandler exchanges credentials for a token.
// Expects JSON body: {"email": "...", "password": "..."}
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var body auth.LoginInput
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, "http/auth", err)
		return
	}

	tok, err := s.accounts.Login(r.Context(), body)
	if err != nil {
		writeError(w, "http/auth", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": tok})
}

func (s *Server) currentUserHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	u, err := s.accounts.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, "http/auth", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// createPostHandler stores a post authored by the caller.
// Expects JSON body: {"text": "post content"}
func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, "http/post", err)
		return
	}

	post, err := s.engine.CreatePost(r.Context(), userID, body.Text)
	if err != nil {
		writeError(w, "http/post", err)
		return
	}

	logg.Info("http/post", "Post created by user_id="+userID)
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := s.engine.ListPosts(r.Context())
	if err != nil {
		writeError(w, "http/post", err)
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := s.engine.GetPost(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "http/post", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	postID := mux.Vars(r)["id"]
	if err := s.engine.DeletePost(r.Context(), userID, postID); err != nil {
		writeError(w, "http/post", err)
		return
	}

	logg.Info("http/post", "Post "+postID+" removed by user_id="+userID)
	writeJSON(w, http.StatusOK, map[string]string{"msg": "Post removed"})
}

// toggleLikeHandler flips the caller's like on a post and returns the
// resulting likes. Repeating the request undoes it.
func (s *Server) toggleLikeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	likes, err := s.engine.ToggleLike(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, "http/like", err)
		return
	}
	writeJSON(w, http.StatusOK, likes)
}

// addCommentHandler expects JSON body: {"text": "comment"}
func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, "http/comment", err)
		return
	}

	comments, err := s.engine.AddComment(r.Context(), userID, mux.Vars(r)["id"], body.Text)
	if err != nil {
		writeError(w, "http/comment", err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	comments, err := s.engine.DeleteComment(r.Context(), userID, vars["id"], vars["comment_id"])
	if err != nil {
		writeError(w, "http/comment", err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

// activityHandler returns likes and comments other users left on the
// caller's posts. Query parameters: ?limit=20
func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	limit := defaultActivityLimit
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = min(l, maxActivityLimit)
	}

	items, err := s.store.GetActivity(r.Context(), userID, limit)
	if err != nil {
		writeError(w, "http/activity", apperr.Internal(err))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		logg.Info("http", "Unauthorized request to "+r.URL.Path)
		writeError(w, "http", apperr.Unauthenticated("No token, authorization denied"))
	}
	return userID, ok
}
