package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quiz-api/internal/core/cache"
	"quiz-api/internal/domain"
)

const (
	quizCacheNS    = "quizzes"
	quizListPrefix = "quizzes:latest:"
)

type QuizService struct {
	repo  domain.QuizRepository
	cache *cache.Cache
	ttl   time.Duration
	log   *zap.Logger
}

// NewQuizService c 可以为 nil（不缓存）
func NewQuizService(repo domain.QuizRepository, c *cache.Cache, ttl time.Duration, log *zap.Logger) *QuizService {
	return &QuizService{repo: repo, cache: c, ttl: ttl, log: log}
}

func (s *QuizService) Create(ctx context.Context, in domain.NewQuiz) (*domain.Quiz, error) {
	q, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	s.InvalidateList(ctx)
	return q, nil
}

func (s *QuizService) Get(ctx context.Context, id string) (*domain.Quiz, error) {
	return s.repo.Get(ctx, id)
}

// ListLatest 最新的 limit 个 quiz，走 redis 读穿缓存。
// key 形如 quizzes:latest:<代数>:<limit>，失效后旧代数的写入不会被读到
func (s *QuizService) ListLatest(ctx context.Context, limit int) ([]domain.Quiz, error) {
	load := func(ctx context.Context) ([]domain.Quiz, error) {
		return s.repo.ListLatest(ctx, limit)
	}
	gen, err := s.cache.Generation(ctx, quizCacheNS)
	if err != nil {
		s.log.Warn("read quiz list generation", zap.Error(err))
		return load(ctx)
	}
	key := fmt.Sprintf("%s%d:%d", quizListPrefix, gen, limit)
	return cache.GetOrLoadJSON(s.cache, ctx, key, s.ttl, load)
}

func (s *QuizService) Update(ctx context.Context, id string, p domain.QuizPatch) (*domain.Quiz, error) {
	if p.Empty() {
		return s.repo.Get(ctx, id)
	}
	q, err := s.repo.Update(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.InvalidateList(ctx)
	return q, nil
}

func (s *QuizService) Delete(ctx context.Context, id string) (*domain.Quiz, error) {
	q, err := s.repo.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	s.InvalidateList(ctx)
	return q, nil
}

// InvalidateList 先换代数再清掉旧 key；失败只记日志，列表最多过期 ttl
func (s *QuizService) InvalidateList(ctx context.Context) {
	if err := s.cache.Bump(ctx, quizCacheNS); err != nil {
		s.log.Warn("bump quiz list generation", zap.Error(err))
	}
	if err := s.cache.InvalidatePrefix(ctx, quizListPrefix); err != nil {
		s.log.Warn("invalidate quiz list cache", zap.Error(err))
	}
}
