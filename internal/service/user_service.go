package service

import (
	"context"

	"quiz-api/internal/domain"
)

type UserService struct {
	repo domain.UserRepository
}

func NewUserService(repo domain.UserRepository) *UserService { return &UserService{repo: repo} }

func (s *UserService) Create(ctx context.Context, name string) (*domain.User, error) {
	return s.repo.Create(ctx, name)
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.Get(ctx, id)
}

func (s *UserService) Update(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	if p.Empty() {
		return s.repo.Get(ctx, id)
	}
	return s.repo.Update(ctx, id, p)
}

func (s *UserService) Delete(ctx context.Context, id string) (*domain.User, error) {
	return s.repo.Delete(ctx, id)
}
