package repo

import (
	"context"

	"quiz-api/internal/core/docstore"
	"quiz-api/internal/domain"
)

type UserRepo struct {
	store  docstore.Store
	runner *docstore.Runner
}

var _ domain.UserRepository = (*UserRepo)(nil)

func NewUserRepo(runner *docstore.Runner) *UserRepo {
	return &UserRepo{store: runner.Store(), runner: runner}
}

// Create 新用户的 quizIds 总是从空集合开始
func (r *UserRepo) Create(ctx context.Context, name string) (*domain.User, error) {
	doc, err := r.store.Create(ctx, domain.UsersCollection, docstore.Fields{
		"name":    name,
		"quizIds": []string{},
	})
	if err != nil {
		return nil, StoreErr("user", "", err)
	}
	return DecodeUser(doc)
}

func (r *UserRepo) Get(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.store.Get(ctx, UserRef(id))
	if err != nil {
		return nil, StoreErr("user", id, err)
	}
	return DecodeUser(doc)
}

func (r *UserRepo) Update(ctx context.Context, id string, p domain.UserPatch) (*domain.User, error) {
	var out *domain.User
	err := r.runner.Run(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(UserRef(id))
		if err != nil {
			return err
		}
		u, err := DecodeUser(doc)
		if err != nil {
			return err
		}
		if p.Name != nil {
			if err := tx.Update(doc.Ref, docstore.Fields{"name": *p.Name}); err != nil {
				return err
			}
			u.Name = *p.Name
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, StoreErr("user", id, err)
	}
	return out, nil
}

// Delete 不级联清理 quiz 的 userCount
func (r *UserRepo) Delete(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.runner.Run(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(UserRef(id))
		if err != nil {
			return err
		}
		if out, err = DecodeUser(doc); err != nil {
			return err
		}
		return tx.Delete(doc.Ref)
	})
	if err != nil {
		return nil, StoreErr("user", id, err)
	}
	return out, nil
}
