package store

import (
	"context"
	"errors"
	"fmt"

	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/logger"
	"example.com/socialfeed/internal/models"
)

var logg = logger.New()

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrVersionConflict = errors.New("document version conflict")
)

// UserStore holds credential records.
type UserStore interface {
	// CreateUser fails with ErrDuplicateEmail when the email is taken.
	CreateUser(ctx context.Context, u models.User) error
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByID(ctx context.Context, id string) (models.User, error)
}

// PostStore holds post documents with embedded likes and comments.
type PostStore interface {
	AddPost(ctx context.Context, p models.Post) error
	GetPost(ctx context.Context, id string) (models.Post, error)
	// ListPosts returns every post, newest first.
	ListPosts(ctx context.Context) ([]models.Post, error)
	// ReplacePost writes p only if the stored version still equals p.Version,
	// and stores it as p.Version+1. Fails with ErrVersionConflict otherwise.
	ReplacePost(ctx context.Context, p models.Post) error
	DeletePost(ctx context.Context, id string) error
}

// ActivityStore holds per-user activity lists written by the worker.
type ActivityStore interface {
	AddActivity(ctx context.Context, a models.Activity) error
	// GetActivity returns the newest entries for userID, at most limit.
	GetActivity(ctx context.Context, userID string, limit int) ([]models.Activity, error)
}

type StoreInterface interface {
	UserStore
	PostStore
	ActivityStore
	Close()
}

// New opens the store selected by cfg.StoreDriver.
func New(ctx context.Context, cfg *config.Config) (StoreInterface, error) {
	switch cfg.StoreDriver {
	case "cassandra", "":
		return NewCassandra(cfg)
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "memory":
		logg.Info("store", "Using in-memory store, data is lost on restart")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// normalizePost makes sure embedded lists encode as [] instead of null.
func normalizePost(p *models.Post) {
	if p.Likes == nil {
		p.Likes = []models.Like{}
	}
	if p.Comments == nil {
		p.Comments = []models.Comment{}
	}
}

var (
	_ StoreInterface = (*Store)(nil)
	_ StoreInterface = (*PostgresStore)(nil)
	_ StoreInterface = (*MemoryStore)(nil)
	_ StoreInterface = (*MockStoreFail)(nil)
)
