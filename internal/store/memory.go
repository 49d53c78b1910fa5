package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"example.com/socialfeed/internal/models"
)

// MemoryStore keeps everything in process memory. It backs tests and the
// "memory" store driver. Reads return deep copies so callers can mutate
// what they get without touching stored state.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	byEmail  map[string]string
	posts    map[string]models.Post
	activity map[string][]models.Activity
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]models.User),
		byEmail:  make(map[string]string),
		posts:    make(map[string]models.Post),
		activity: make(map[string][]models.Activity),
	}
}

func (m *MemoryStore) Close() {}

// --- Users ---

func (m *MemoryStore) CreateUser(ctx context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, ok := m.byEmail[email]; ok {
		return ErrDuplicateEmail
	}
	u.Email = email
	m.users[u.ID] = u
	m.byEmail[email] = u.ID
	return nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return m.users[id], nil
}

func (m *MemoryStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

// --- Posts ---

func (m *MemoryStore) AddPost(ctx context.Context, p models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.posts[p.ID] = clonePost(p)
	return nil
}

func (m *MemoryStore) GetPost(ctx context.Context, id string) (models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.posts[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return clonePost(p), nil
}

func (m *MemoryStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]models.Post, 0, len(m.posts))
	for _, p := range m.posts {
		res = append(res, clonePost(p))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Created.Equal(res[j].Created) {
			return res[i].ID < res[j].ID
		}
		return res[i].Created.After(res[j].Created)
	})
	return res, nil
}

func (m *MemoryStore) ReplacePost(ctx context.Context, p models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.posts[p.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != p.Version {
		return ErrVersionConflict
	}
	p.Version++
	m.posts[p.ID] = clonePost(p)
	return nil
}

func (m *MemoryStore) DeletePost(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.posts[id]; !ok {
		return ErrNotFound
	}
	delete(m.posts, id)
	return nil
}

// --- Activity ---

func (m *MemoryStore) AddActivity(ctx context.Context, a models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.activity[a.UserID] = append(m.activity[a.UserID], a)
	return nil
}

// GetActivity returns the newest entries first.
func (m *MemoryStore) GetActivity(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.activity[userID]
	res := make([]models.Activity, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		res = append(res, all[i])
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Created.After(res[j].Created) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func clonePost(p models.Post) models.Post {
	p.Likes = append([]models.Like{}, p.Likes...)
	p.Comments = append([]models.Comment{}, p.Comments...)
	return p
}
