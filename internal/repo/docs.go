package repo

import (
	"errors"

	"quiz-api/internal/apperr"
	"quiz-api/internal/core/docstore"
	"quiz-api/internal/domain"
)

func UserRef(id string) docstore.Ref {
	return docstore.Ref{Collection: domain.UsersCollection, ID: id}
}

func QuizRef(id string) docstore.Ref {
	return docstore.Ref{Collection: domain.QuizzesCollection, ID: id}
}

func DecodeUser(doc *docstore.Document) (*domain.User, error) {
	var u domain.User
	if err := doc.DataTo(&u); err != nil {
		return nil, err
	}
	u.ID = doc.Ref.ID
	if u.QuizIDs == nil {
		u.QuizIDs = []string{}
	}
	return &u, nil
}

func DecodeQuiz(doc *docstore.Document) (*domain.Quiz, error) {
	var q domain.Quiz
	if err := doc.DataTo(&q); err != nil {
		return nil, err
	}
	q.ID = doc.Ref.ID
	return &q, nil
}

// StoreErr 把存储层错误映射成 apperr；已经是 apperr 的原样返回
func StoreErr(entity, id string, err error) error {
	var ae *apperr.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ae):
		return err
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, docstore.ErrInvalidRef):
		return apperr.NotFound(entity, id)
	case errors.Is(err, docstore.ErrConflict):
		return apperr.Conflict("concurrent update, please retry", err)
	default:
		return apperr.Internal("", err)
	}
}
