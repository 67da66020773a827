package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"quiz-api/internal/apperr"
	"quiz-api/internal/core/docstore"
	"quiz-api/internal/core/metrics"
	"quiz-api/internal/domain"
	"quiz-api/internal/repo"
)

type EnrollmentService struct {
	runner  *docstore.Runner
	quizzes *QuizService
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewEnrollmentService(runner *docstore.Runner, quizzes *QuizService, m *metrics.Metrics, log *zap.Logger) *EnrollmentService {
	return &EnrollmentService{runner: runner, quizzes: quizzes, metrics: m, log: log}
}

// Enroll 在一个事务里把 quizID 加入用户的 quizIds 并把 userCount 加一。
// 已经是成员时不写任何文档。返回提交后的两个文档。
func (s *EnrollmentService) Enroll(ctx context.Context, userID, quizID string) (*domain.User, *domain.Quiz, error) {
	// 客户端断开也要让事务跑完
	ctx = context.WithoutCancel(ctx)

	var (
		user    *domain.User
		quiz    *domain.Quiz
		changed bool
	)
	err := s.runner.Run(ctx, func(ctx context.Context, tx docstore.Tx) error {
		changed = false
		udoc, err := tx.Get(repo.UserRef(userID))
		if err != nil {
			return notFoundAs(err, "user", userID)
		}
		qdoc, err := tx.Get(repo.QuizRef(quizID))
		if err != nil {
			return notFoundAs(err, "quiz", quizID)
		}
		if user, err = repo.DecodeUser(udoc); err != nil {
			return err
		}
		if quiz, err = repo.DecodeQuiz(qdoc); err != nil {
			return err
		}
		if user.HasQuiz(quizID) {
			return nil
		}

		quizIDs := append(append([]string{}, user.QuizIDs...), quizID)
		count := quiz.UserCount + 1
		if err := tx.Update(udoc.Ref, docstore.Fields{"quizIds": quizIDs}); err != nil {
			return err
		}
		if err := tx.Update(qdoc.Ref, docstore.Fields{"userCount": count}); err != nil {
			return err
		}
		user.QuizIDs, quiz.UserCount, changed = quizIDs, count, true
		return nil
	})

	switch {
	case err == nil && changed:
		s.metrics.Enrollment(metrics.OutcomeEnrolled)
		s.quizzes.InvalidateList(ctx)
		s.log.Info("user enrolled", zap.String("user", userID), zap.String("quiz", quizID), zap.Int("userCount", quiz.UserCount))
		return user, quiz, nil
	case err == nil:
		s.metrics.Enrollment(metrics.OutcomeAlreadyMember)
		return user, quiz, nil
	case apperr.Is(err, apperr.KindNotFound):
		s.metrics.Enrollment(metrics.OutcomeNotFound)
		return nil, nil, err
	case errors.Is(err, docstore.ErrConflict):
		s.metrics.Enrollment(metrics.OutcomeConflict)
		return nil, nil, apperr.Conflict("enrollment could not be committed, please retry", err)
	default:
		s.metrics.Enrollment(metrics.OutcomeError)
		return nil, nil, repo.StoreErr("enrollment", userID, err)
	}
}

func notFoundAs(err error, entity, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}
