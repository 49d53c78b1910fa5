package store

import (
	"context"
	"strings"

	"example.com/socialfeed/internal/models"
	"github.com/gocql/gocql"
)

// --- User operations ---

// userWriter is the sequence of writes behind CreateUser.
type userWriter interface {
	claimEmail(ctx context.Context, email, userID string) (bool, error)
	insertUser(ctx context.Context, u models.User) error
	releaseEmail(ctx context.Context, email, userID string) error
}

// CreateUser claims the email in users_by_email with a CAS insert, then
// writes the full record. The claim makes duplicate registrations lose
// even when they race.
func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	return createUser(ctx, s, u)
}

// createUser gives the claim back when the record cannot be written, so a
// failed registration does not lock the email.
func createUser(ctx context.Context, w userWriter, u models.User) error {
	u.Email = strings.ToLower(u.Email)

	applied, err := w.claimEmail(ctx, u.Email, u.ID)
	if err != nil {
		logg.Error("store", "Failed to claim email", err)
		return err
	}
	if !applied {
		return ErrDuplicateEmail
	}

	if err := w.insertUser(ctx, u); err != nil {
		logg.Error("store", "Failed to create user in main table", err)
		if rerr := w.releaseEmail(context.WithoutCancel(ctx), u.Email, u.ID); rerr != nil {
			logg.Error("store", "Failed to release email claim for user_id="+u.ID, rerr)
		}
		return err
	}

	logg.Info("store", "User created successfully (email anonymized)")
	return nil
}

func (s *Store) claimEmail(ctx context.Context, email, userID string) (bool, error) {
	return s.Session.Query(`
		INSERT INTO users_by_email (email, user_id)
		VALUES (?, ?) IF NOT EXISTS`,
		email, userID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
}

func (s *Store) insertUser(ctx context.Context, u models.User) error {
	return s.Session.Query(`
		INSERT INTO users (user_id, name, email, password_hash, avatar, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Avatar, u.Created,
	).WithContext(ctx).Exec()
}

// releaseEmail only deletes a claim still owned by userID.
func (s *Store) releaseEmail(ctx context.Context, email, userID string) error {
	_, err := s.Session.Query(`
		DELETE FROM users_by_email WHERE email = ? IF user_id = ?`,
		email, userID,
	).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	return err
}

// GetUserByEmail resolves the email index, then loads the user record.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	var id string
	err := s.Session.Query(
		`SELECT user_id FROM users_by_email WHERE email = ?`,
		strings.ToLower(email),
	).WithContext(ctx).Scan(&id)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user by email", err)
		return models.User{}, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	var u models.User
	err := s.Session.Query(`
		SELECT user_id, name, email, password_hash, avatar, created_at
		FROM users WHERE user_id = ?`,
		id,
	).WithContext(ctx).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Avatar, &u.Created)
	if err != nil {
		if err == gocql.ErrNotFound {
			return models.User{}, ErrNotFound
		}
		logg.Error("store", "Failed to query user by id", err)
		return models.User{}, err
	}
	return u, nil
}

// --- Activity operations ---

func (s *Store) AddActivity(ctx context.Context, a models.Activity) error {
	if err := s.Session.Query(`
		INSERT INTO activity_by_user (user_id, created_at, activity_id, kind, actor_id, actor_name, post_id, comment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Created, a.ID, string(a.Kind), a.ActorID, a.ActorName, a.PostID, a.CommentID,
	).WithContext(ctx).Exec(); err != nil {
		logg.Error("store", "Failed to add activity", err)
		return err
	}
	return nil
}

func (s *Store) GetActivity(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	iter := s.Session.Query(`
		SELECT activity_id, kind, actor_id, actor_name, post_id, comment_id, created_at
		FROM activity_by_user WHERE user_id = ? LIMIT ?`,
		userID, limit,
	).WithContext(ctx).Iter()

	res := []models.Activity{}
	var a models.Activity
	var kind string
	for iter.Scan(&a.ID, &kind, &a.ActorID, &a.ActorName, &a.PostID, &a.CommentID, &a.Created) {
		a.UserID = userID
		a.Kind = models.EventKind(kind)
		res = append(res, a)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to retrieve activity", err)
		return nil, err
	}
	return res, nil
}
