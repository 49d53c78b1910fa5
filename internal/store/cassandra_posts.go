package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/socialfeed/internal/models"
	"github.com/gocql/gocql"
)

// timelineBucket is the single partition of posts_timeline. Every post is
// listed there so one clustered read returns them newest first.
const timelineBucket = "all"

const postColumns = `post_id, author_id, name, avatar, body, likes, comments, created_at, version`

// postRow mirrors a posts row; likes and comments are JSON text columns so
// the post is replaced as one document.
type postRow struct {
	ID       string
	AuthorID string
	Name     string
	Avatar   string
	Body     string
	Likes    string
	Comments string
	Created  time.Time
	Version  int
}

func (r *postRow) dest() []interface{} {
	return []interface{}{&r.ID, &r.AuthorID, &r.Name, &r.Avatar, &r.Body, &r.Likes, &r.Comments, &r.Created, &r.Version}
}

func (r *postRow) toPost() (models.Post, error) {
	p := models.Post{
		ID:       r.ID,
		AuthorID: r.AuthorID,
		Name:     r.Name,
		Avatar:   r.Avatar,
		Text:     r.Body,
		Created:  r.Created,
		Version:  r.Version,
	}
	if r.Likes != "" {
		if err := json.Unmarshal([]byte(r.Likes), &p.Likes); err != nil {
			return models.Post{}, fmt.Errorf("decode likes of post %s: %w", r.ID, err)
		}
	}
	if r.Comments != "" {
		if err := json.Unmarshal([]byte(r.Comments), &p.Comments); err != nil {
			return models.Post{}, fmt.Errorf("decode comments of post %s: %w", r.ID, err)
		}
	}
	normalizePost(&p)
	return p, nil
}

func encodeEngagement(p models.Post) (string, string, error) {
	normalizePost(&p)
	likes, err := json.Marshal(p.Likes)
	if err != nil {
		return "", "", err
	}
	comments, err := json.Marshal(p.Comments)
	if err != nil {
		return "", "", err
	}
	return string(likes), string(comments), nil
}

// --- Post operations ---

func (s *Store) AddPost(ctx context.Context, p models.Post) error {
	likes, comments, err := encodeEngagement(p)
	if err != nil {
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`
		INSERT INTO posts (post_id, author_id, name, avatar, body, likes, comments, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AuthorID, p.Name, p.Avatar, p.Text, likes, comments, p.Created, p.Version,
	)
	batch.Query(`INSERT INTO posts_timeline (bucket, created_at, post_id) VALUES (?, ?, ?)`,
		timelineBucket, p.Created, p.ID,
	)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}

	logg.Info("store", "Post added to posts table (post content anonymized)")
	return nil
}

func (s *Store) GetPost(ctx context.Context, id string) (models.Post, error) {
	var row postRow
	err := s.Session.Query(`SELECT `+postColumns+` FROM posts WHERE post_id = ?`, id).
		WithContext(ctx).Scan(row.dest()...)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.Post{}, ErrNotFound
		}
		logg.Error("store", "Failed to query post", err)
		return models.Post{}, err
	}
	return row.toPost()
}

// ListPosts reads the timeline newest first and loads each post document.
// Posts deleted between the two reads are skipped.
func (s *Store) ListPosts(ctx context.Context) ([]models.Post, error) {
	iter := s.Session.Query(
		`SELECT post_id FROM posts_timeline WHERE bucket = ?`,
		timelineBucket,
	).WithContext(ctx).Iter()

	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to read post timeline", err)
		return nil, err
	}

	res := make([]models.Post, 0, len(ids))
	for _, pid := range ids {
		p, err := s.GetPost(ctx, pid)
		if err == ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

// ReplacePost rewrites the engagement columns with a lightweight
// transaction on version.
func (s *Store) ReplacePost(ctx context.Context, p models.Post) error {
	likes, comments, err := encodeEngagement(p)
	if err != nil {
		return err
	}

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		UPDATE posts SET likes = ?, comments = ?, version = ?
		WHERE post_id = ? IF version = ?`,
		likes, comments, p.Version+1, p.ID, p.Version,
	).WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to replace post", err)
		return err
	}
	if applied {
		return nil
	}

	// Not applied: either the row is gone or someone else bumped the version.
	if _, err := s.GetPost(ctx, p.ID); err != nil {
		return err
	}
	return ErrVersionConflict
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	p, err := s.GetPost(ctx, id)
	if err != nil {
		return err
	}

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`DELETE FROM posts WHERE post_id = ? IF EXISTS`, id).
		WithContext(ctx).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to delete post", err)
		return err
	}
	if !applied {
		return ErrNotFound
	}

	if err := s.Session.Query(
		`DELETE FROM posts_timeline WHERE bucket = ? AND created_at = ? AND post_id = ?`,
		timelineBucket, p.Created, id,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to remove post from timeline", err)
		return err
	}

	logg.Info("store", "Post deleted")
	return nil
}
