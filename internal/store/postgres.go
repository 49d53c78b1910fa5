package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// PostgresStore keeps posts as JSONB documents next to a version column
// used for conditional replaces.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	if err := postgresSchema(cfg).up(); err != nil {
		return nil, err
	}

	pcfg, err := pgxpool.ParseConfig(cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.PostgresMaxConns > 0 {
		pcfg.MaxConns = int32(cfg.PostgresMaxConns)
	}
	pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logg.Info("store", "Connected to Postgres (dsn anonymized)")
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
	logg.Info("store", "Postgres pool closed")
}

// --- User operations ---

func (s *PostgresStore) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, u.Avatar, u.Created,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateEmail
	}
	if err != nil {
		logg.Error("store", "Failed to create user", err)
		return err
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, `WHERE email = $1`, strings.ToLower(email))
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) getUser(ctx context.Context, where string, arg string) (models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, password_hash, avatar, created_at FROM users `+where, arg,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Avatar, &u.Created)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to query user", err)
		return models.User{}, err
	}
	return u, nil
}

// --- Post operations ---

func (s *PostgresStore) AddPost(ctx context.Context, p models.Post) error {
	normalizePost(&p)
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO posts (id, author_id, doc, created_at, version)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.AuthorID, doc, p.Created, p.Version,
	)
	if err != nil {
		logg.Error("store", "Failed to add post", err)
		return err
	}
	return nil
}

func (s *PostgresStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	var doc []byte
	var version int
	err := s.pool.QueryRow(ctx, `SELECT doc, version FROM posts WHERE id = $1`, id).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to query post", err)
		return models.Post{}, err
	}
	return decodePostDoc(doc, version)
}

func (s *PostgresStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc, version FROM posts ORDER BY created_at DESC, id`)
	if err != nil {
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}
	defer rows.Close()

	res := []models.Post{}
	for rows.Next() {
		var doc []byte
		var version int
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, err
		}
		p, err := decodePostDoc(doc, version)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *PostgresStore) ReplacePost(ctx context.Context, p models.Post) error {
	normalizePost(&p)
	doc, err := json.Marshal(p)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE posts SET doc = $1, version = version + 1 WHERE id = $2 AND version = $3`,
		doc, p.ID, p.Version,
	)
	if err != nil {
		logg.Error("store", "Failed to replace post", err)
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetPost(ctx, p.ID); err != nil {
		return err
	}
	return ErrVersionConflict
}

func (s *PostgresStore) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		logg.Error("store", "Failed to delete post", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func decodePostDoc(doc []byte, version int) (models.Post, error) {
	var p models.Post
	if err := json.Unmarshal(doc, &p); err != nil {
		return models.Post{}, fmt.Errorf("decode post document: %w", err)
	}
	p.Version = version
	normalizePost(&p)
	return p, nil
}

// --- Activity operations ---

func (s *PostgresStore) AddActivity(ctx context.Context, a models.Activity) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity (id, user_id, kind, actor_id, actor_name, post_id, comment_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.UserID, string(a.Kind), a.ActorID, a.ActorName, a.PostID, a.CommentID, a.Created,
	)
	if err != nil {
		logg.Error("store", "Failed to add activity", err)
	}
	return err
}

func (s *PostgresStore) GetActivity(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, actor_id, actor_name, post_id, comment_id, created_at
		FROM activity WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		logg.Error("store", "Failed to retrieve activity", err)
		return nil, err
	}
	defer rows.Close()

	res := []models.Activity{}
	for rows.Next() {
		a := models.Activity{UserID: userID}
		var kind string
		if err := rows.Scan(&a.ID, &kind, &a.ActorID, &a.ActorName, &a.PostID, &a.CommentID, &a.Created); err != nil {
			return nil, err
		}
		a.Kind = models.EventKind(kind)
		res = append(res, a)
	}
	return res, rows.Err()
}
