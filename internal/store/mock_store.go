package store

import (
	"context"
	"errors"

	"example.com/socialfeed/internal/models"
)

// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(ctx context.Context, u models.User) error {
	return errors.New("mock store create user failed")
}

func (m *MockStoreFail) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return models.User{}, errors.New("mock store get user by email failed")
}

func (m *MockStoreFail) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return models.User{}, errors.New("mock store get user by id failed")
}

func (m *MockStoreFail) AddPost(ctx context.Context, p models.Post) error {
	return errors.New("mock store add post failed")
}

func (m *MockStoreFail) GetPost(ctx context.Context, id string) (models.Post, error) {
	return models.Post{}, errors.New("mock store get post failed")
}

func (m *MockStoreFail) ListPosts(ctx context.Context) ([]models.Post, error) {
	return nil, errors.New("mock store list posts failed")
}

func (m *MockStoreFail) ReplacePost(ctx context.Context, p models.Post) error {
	return errors.New("mock store replace post failed")
}

func (m *MockStoreFail) DeletePost(ctx context.Context, id string) error {
	return errors.New("mock store delete post failed")
}

func (m *MockStoreFail) AddActivity(ctx context.Context, a models.Activity) error {
	return errors.New("mock store add activity failed")
}

func (m *MockStoreFail) GetActivity(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	return nil, errors.New("mock store get activity failed")
}
