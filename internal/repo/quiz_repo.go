package repo

import (
	"context"

	"quiz-api/internal/core/docstore"
	"quiz-api/internal/domain"
)

type QuizRepo struct {
	store  docstore.Store
	runner *docstore.Runner
}

var _ domain.QuizRepository = (*QuizRepo)(nil)

func NewQuizRepo(runner *docstore.Runner) *QuizRepo {
	return &QuizRepo{store: runner.Store(), runner: runner}
}

func (r *QuizRepo) Create(ctx context.Context, in domain.NewQuiz) (*domain.Quiz, error) {
	f := docstore.Fields{
		"name":      in.Name,
		"active":    in.Active,
		"userCount": 0,
		"createdOn": docstore.ServerTimestamp,
	}
	if in.Description != nil {
		f["description"] = *in.Description
	}
	doc, err := r.store.Create(ctx, domain.QuizzesCollection, f)
	if err != nil {
		return nil, StoreErr("quiz", "", err)
	}
	return DecodeQuiz(doc)
}

func (r *QuizRepo) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	doc, err := r.store.Get(ctx, QuizRef(id))
	if err != nil {
		return nil, StoreErr("quiz", id, err)
	}
	return DecodeQuiz(doc)
}

func (r *QuizRepo) ListLatest(ctx context.Context, limit int) ([]domain.Quiz, error) {
	docs, err := r.store.List(ctx, docstore.Query{Collection: domain.QuizzesCollection, Desc: true, Limit: limit})
	if err != nil {
		return nil, StoreErr("quiz", "", err)
	}
	out := make([]domain.Quiz, 0, len(docs))
	for _, d := range docs {
		q, err := DecodeQuiz(d)
		if err != nil {
			return nil, StoreErr("quiz", d.Ref.ID, err)
		}
		out = append(out, *q)
	}
	return out, nil
}

// Update 只写白名单字段，userCount / createdOn 不受影响
func (r *QuizRepo) Update(ctx context.Context, id string, p domain.QuizPatch) (*domain.Quiz, error) {
	var out *domain.Quiz
	err := r.runner.Run(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(QuizRef(id))
		if err != nil {
			return err
		}
		q, err := DecodeQuiz(doc)
		if err != nil {
			return err
		}
		f := docstore.Fields{}
		if p.Name != nil {
			f["name"], q.Name = *p.Name, *p.Name
		}
		if p.Description != nil {
			d := *p.Description
			f["description"], q.Description = d, &d
		}
		if p.Active != nil {
			f["active"], q.Active = *p.Active, *p.Active
		}
		if len(f) > 0 {
			if err := tx.Update(doc.Ref, f); err != nil {
				return err
			}
		}
		out = q
		return nil
	})
	if err != nil {
		return nil, StoreErr("quiz", id, err)
	}
	return out, nil
}

func (r *QuizRepo) Delete(ctx context.Context, id string) (*domain.Quiz, error) {
	var out *domain.Quiz
	err := r.runner.Run(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(QuizRef(id))
		if err != nil {
			return err
		}
		if out, err = DecodeQuiz(doc); err != nil {
			return err
		}
		return tx.Delete(doc.Ref)
	})
	if err != nil {
		return nil, StoreErr("quiz", id, err)
	}
	return out, nil
}
