// Package engage implements posts and the engagement state machine:
// toggle-like, add-comment and delete-comment, each gated on ownership
// where required.
//
// Every mutation reads the post, changes it in memory and writes it back
// conditioned on the version it read. A lost race re-reads and re-applies
// the mutation, so concurrent toggles by the same user never merge into a
// duplicate like.
package engage

import (
	"context"
	"errors"
	"strings"
	"time"

	"example.com/socialfeed/internal/apperr"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
	"example.com/socialfeed/internal/store"
	"github.com/google/uuid"
)

const defaultMaxAttempts = 5

const (
	msgPostNotFound    = "Post not found"
	msgCommentNotFound = "Comment does not exist"
	msgNotAuthorized   = "User not authorized"
)

var logg = logger.New()

// Publisher receives an event after each committed write.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

type Engine struct {
	posts       store.PostStore
	users       store.UserStore
	events      Publisher
	now         func() time.Time
	newID       func() string
	maxAttempts int
}

type Option func(*Engine)

// WithPublisher sends engagement events to p. Without it events are dropped.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithMaxAttempts bounds the read-modify-write retries on version conflicts.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

func New(posts store.PostStore, users store.UserStore, opts ...Option) *Engine {
	e := &Engine{
		posts:       posts,
		users:       users,
		now:         time.Now,
		newID:       uuid.NewString,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreatePost stores a new post by userID with the author's current name and
// avatar copied into it.
func (e *Engine) CreatePost(ctx context.Context, userID, text string) (models.Post, error) {
	if err := requireText(text); err != nil {
		return models.Post{}, err
	}
	author, err := e.author(ctx, userID)
	if err != nil {
		return models.Post{}, err
	}

	p := models.Post{
		ID:       e.newID(),
		AuthorID: userID,
		Name:     author.Name,
		Avatar:   author.Avatar,
		Text:     text,
		Likes:    []models.Like{},
		Comments: []models.Comment{},
		Created:  e.now().UTC(),
	}
	if err := e.posts.AddPost(ctx, p); err != nil {
		return models.Post{}, apperr.Internal(err)
	}

	e.publish(ctx, models.EventPostCreated, p, author, "")
	return p, nil
}

// ListPosts returns all posts, newest first.
func (e *Engine) ListPosts(ctx context.Context) ([]models.Post, error) {
	posts, err := e.posts.ListPosts(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return posts, nil
}

func (e *Engine) GetPost(ctx context.Context, postID string) (models.Post, error) {
	p, err := e.posts.GetPost(ctx, postID)
	if err != nil {
		return models.Post{}, postErr(err)
	}
	return p, nil
}

// DeletePost removes the post. Only its author may do so.
func (e *Engine) DeletePost(ctx context.Context, userID, postID string) error {
	p, err := e.posts.GetPost(ctx, postID)
	if err != nil {
		return postErr(err)
	}
	if p.AuthorID != userID {
		return apperr.Forbidden(msgNotAuthorized)
	}
	if err := e.posts.DeletePost(ctx, postID); err != nil {
		return postErr(err)
	}

	e.publish(ctx, models.EventPostDeleted, p, models.User{ID: userID, Name: p.Name}, "")
	return nil
}

// ToggleLike removes userID's like if present, otherwise adds it at the
// front. Calling it twice restores the original state, so callers must not
// blindly retry it.
func (e *Engine) ToggleLike(ctx context.Context, userID, postID string) ([]models.Like, error) {
	var liked bool
	p, err := e.mutate(ctx, postID, func(p *models.Post) error {
		p.Likes, liked = toggleLike(p.Likes, userID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	kind := models.EventPostUnliked
	if liked {
		kind = models.EventPostLiked
	}
	e.publish(ctx, kind, p, e.actor(ctx, userID), "")
	return p.Likes, nil
}

// AddComment puts a new comment at the front of the post's comments. Any
// authenticated user may comment on any post.
func (e *Engine) AddComment(ctx context.Context, userID, postID, text string) ([]models.Comment, error) {
	if err := requireText(text); err != nil {
		return nil, err
	}
	author, err := e.author(ctx, userID)
	if err != nil {
		return nil, err
	}

	c := models.Comment{
		ID:      e.newID(),
		UserID:  userID,
		Name:    author.Name,
		Avatar:  author.Avatar,
		Text:    text,
		Created: e.now().UTC(),
	}
	p, err := e.mutate(ctx, postID, func(p *models.Post) error {
		p.Comments = append([]models.Comment{c}, p.Comments...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, models.EventCommentAdded, p, author, c.ID)
	return p.Comments, nil
}

// DeleteComment removes a comment by id. Only the comment's author may
// remove it; the post's author has no extra right here.
func (e *Engine) DeleteComment(ctx context.Context, userID, postID, commentID string) ([]models.Comment, error) {
	p, err := e.mutate(ctx, postID, func(p *models.Post) error {
		idx := findComment(p.Comments, commentID)
		if idx < 0 {
			return apperr.NotFound(msgCommentNotFound)
		}
		if p.Comments[idx].UserID != userID {
			return apperr.Forbidden(msgNotAuthorized)
		}
		p.Comments = removeComment(p.Comments, commentID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(ctx, models.EventCommentRemoved, p, e.actor(ctx, userID), commentID)
	return p.Comments, nil
}

// mutate runs one read-modify-write cycle per attempt until the
// version-checked replace succeeds. fn sees a fresh copy on every attempt.
func (e *Engine) mutate(ctx context.Context, postID string, fn func(*models.Post) error) (models.Post, error) {
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		p, err := e.posts.GetPost(ctx, postID)
		if err != nil {
			return models.Post{}, postErr(err)
		}
		if err := fn(&p); err != nil {
			return models.Post{}, err
		}

		err = e.posts.ReplacePost(ctx, p)
		if err == nil {
			p.Version++
			return p, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return models.Post{}, postErr(err)
		}
		if err := ctx.Err(); err != nil {
			return models.Post{}, apperr.Internal(err)
		}
		logg.Warn("engage", "Version conflict on post, retrying")
	}
	return models.Post{}, apperr.Conflict("Post was modified concurrently, try again")
}

func (e *Engine) author(ctx context.Context, userID string) (models.User, error) {
	u, err := e.users.GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}
	return u, nil
}

// actor is a best-effort lookup for event payloads only.
func (e *Engine) actor(ctx context.Context, userID string) models.User {
	u, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return models.User{ID: userID}
	}
	return u
}

func (e *Engine) publish(ctx context.Context, kind models.EventKind, p models.Post, actor models.User, commentID string) {
	if e.events == nil {
		return
	}
	ev := models.Event{
		Kind:      kind,
		PostID:    p.ID,
		OwnerID:   p.AuthorID,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		CommentID: commentID,
		Created:   e.now().UTC(),
	}
	// The write is already committed; a lost event only costs an activity entry.
	if err := e.events.Publish(ctx, ev); err != nil {
		logg.Error("engage", "Failed to publish "+string(kind)+" event", err)
	}
}

func postErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msgPostNotFound)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal(err)
}

func requireText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Validation(apperr.FieldError{Param: "text", Msg: "Text is required"})
	}
	return nil
}
