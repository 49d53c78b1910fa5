package models

import "time"

// User is a registered account. The password hash never leaves the server.
type User struct {
	ID           string    `json:"_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Avatar       string    `json:"avatar"`
	Created      time.Time `json:"date"`
}

// Like marks that a user likes a post. At most one per (post, user).
type Like struct {
	UserID string `json:"user"`
}

// Comment is immutable once created; it can only be removed.
type Comment struct {
	ID      string    `json:"_id"`
	UserID  string    `json:"user"`
	Name    string    `json:"name"`
	Avatar  string    `json:"avatar"`
	Text    string    `json:"text"`
	Created time.Time `json:"date"`
}

// Post is stored as a single document with its likes and comments embedded.
// Name and Avatar are copied from the author at creation time.
type Post struct {
	ID       string    `json:"_id"`
	AuthorID string    `json:"user"`
	Name     string    `json:"name"`
	Avatar   string    `json:"avatar"`
	Text     string    `json:"text"`
	Likes    []Like    `json:"likes"`
	Comments []Comment `json:"comment"`
	Created  time.Time `json:"date"`

	// Version is bumped on every replace and guards read-modify-write cycles.
	Version int `json:"-"`
}

// EventKind names an engagement event published after a committed write.
type EventKind string

const (
	EventPostCreated    EventKind = "post_created"
	EventPostDeleted    EventKind = "post_deleted"
	EventPostLiked      EventKind = "post_liked"
	EventPostUnliked    EventKind = "post_unliked"
	EventCommentAdded   EventKind = "comment_added"
	EventCommentRemoved EventKind = "comment_removed"
)

// Event is the Kafka message value for engagement events.
type Event struct {
	Kind      EventKind `json:"kind"`
	PostID    string    `json:"post"`
	OwnerID   string    `json:"post_owner"`
	ActorID   string    `json:"actor"`
	ActorName string    `json:"actor_name"`
	CommentID string    `json:"comment,omitempty"`
	Created   time.Time `json:"date"`
}

// Activity is an entry in a post owner's activity list.
type Activity struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"user"`
	Kind      EventKind `json:"kind"`
	ActorID   string    `json:"actor"`
	ActorName string    `json:"actor_name"`
	PostID    string    `json:"post"`
	CommentID string    `json:"comment,omitempty"`
	Created   time.Time `json:"date"`
}
