package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quiz-api/internal/apperr"
	"quiz-api/internal/core/cache"
	"quiz-api/internal/core/database"
	"quiz-api/internal/core/docstore"
	"quiz-api/internal/core/metrics"
	"quiz-api/internal/domain"
	"quiz-api/internal/repo"
)

type fixture struct {
	store   docstore.Store
	cache   *cache.Cache
	users   *UserService
	quizzes *QuizService
	enroll  *EnrollmentService
	metrics *metrics.Metrics
	mr      *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, docstore.NewMemory())
}

// newFixtureOn 用生产默认的重试策略（5 次）
func newFixtureOn(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	runner := docstore.NewRunner(store, docstore.DefaultRetryPolicy(), docstore.WithAttemptCounter(m.TxAttempts))

	mr := miniredis.RunT(t)
	c := cache.New(mr.Addr(), "", 0, nil)
	t.Cleanup(func() { _ = c.Close() })

	log := zap.NewNop()
	quizzes := NewQuizService(repo.NewQuizRepo(runner), c, time.Minute, log)
	return &fixture{
		store:   store,
		cache:   c,
		users:   NewUserService(repo.NewUserRepo(runner)),
		quizzes: quizzes,
		enroll:  NewEnrollmentService(runner, quizzes, m, log),
		metrics: m,
		mr:      mr,
	}
}

// sqliteStore 文件库 + WAL + 多连接，和 configs 里的 sqlite 驱动一致，并发事务会真正抢锁
func sqliteStore(t *testing.T) docstore.Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "quiz.db") +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := database.NewGorm(database.Opts{
		Driver:       "sqlite",
		DSN:          dsn,
		MaxOpenConns: 8,
		MaxIdleConns: 8,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	s := docstore.NewGorm(db)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// eachStore 对两个驱动各跑一遍
func eachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Run("memory", func(t *testing.T) { fn(t, newFixture(t)) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newFixtureOn(t, sqliteStore(t))) })
}

func (f *fixture) seed(t *testing.T) (*domain.User, *domain.Quiz) {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.Create(ctx, "Bob")
	require.NoError(t, err)
	q, err := f.quizzes.Create(ctx, domain.NewQuiz{Name: "Go"})
	require.NoError(t, err)
	return u, q
}

func (f *fixture) reload(t *testing.T, userID, quizID string) (*domain.User, *domain.Quiz) {
	t.Helper()
	ctx := context.Background()
	u, err := f.users.Get(ctx, userID)
	require.NoError(t, err)
	q, err := f.quizzes.Get(ctx, quizID)
	require.NoError(t, err)
	return u, q
}

func count(ids []string, id string) int {
	n := 0
	for _, v := range ids {
		if v == id {
			n++
		}
	}
	return n
}

func TestEnrollIsIdempotent(t *testing.T) {
	f := newFixture(t)
	u, q := f.seed(t)
	ctx := context.Background()

	u1, q1, err := f.enroll.Enroll(ctx, u.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{q.ID}, u1.QuizIDs)
	assert.Equal(t, 1, q1.UserCount)

	u2, q2, err := f.enroll.Enroll(ctx, u.ID, q.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{q.ID}, u2.QuizIDs)
	assert.Equal(t, 1, q2.UserCount)

	su, sq := f.reload(t, u.ID, q.ID)
	assert.Equal(t, []string{q.ID}, su.QuizIDs)
	assert.Equal(t, 1, sq.UserCount)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Enrollments.WithLabelValues(metrics.OutcomeEnrolled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Enrollments.WithLabelValues(metrics.OutcomeAlreadyMember)))
}

func TestEnrollSamePairConcurrentlyCountsOnce(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		u, q := f.seed(t)

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := f.enroll.Enroll(context.Background(), u.ID, q.ID)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		su, sq := f.reload(t, u.ID, q.ID)
		assert.Equal(t, 1, count(su.QuizIDs, q.ID))
		assert.Equal(t, 1, sq.UserCount)
		assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Enrollments.WithLabelValues(metrics.OutcomeEnrolled)))
		assert.Equal(t, float64(n-1), testutil.ToFloat64(f.metrics.Enrollments.WithLabelValues(metrics.OutcomeAlreadyMember)))
	})
}

func TestEnrollDifferentQuizzesConcurrentlyCompose(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		u, err := f.users.Create(ctx, "Bob")
		require.NoError(t, err)

		var quizIDs []string
		for _, name := range []string{"q1", "q2", "q3", "q4"} {
			q, err := f.quizzes.Create(ctx, domain.NewQuiz{Name: name})
			require.NoError(t, err)
			quizIDs = append(quizIDs, q.ID)
		}

		var wg sync.WaitGroup
		for _, qid := range quizIDs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := f.enroll.Enroll(context.Background(), u.ID, qid)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := f.users.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, quizIDs, got.QuizIDs)
		for _, qid := range quizIDs {
			q, err := f.quizzes.Get(ctx, qid)
			require.NoError(t, err)
			assert.Equal(t, 1, q.UserCount)
		}
	})
}

func TestEnrollManyUsersIntoOneQuiz(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q, err := f.quizzes.Create(ctx, domain.NewQuiz{Name: "popular"})
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for range n {
		u, err := f.users.Create(ctx, "u")
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.enroll.Enroll(context.Background(), u.ID, q.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := f.quizzes.Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.UserCount)
}

func TestEnrollMissingUserLeavesQuizUnchanged(t *testing.T) {
	f := newFixture(t)
	_, q := f.seed(t)
	ctx := context.Background()
	before, err := f.store.Get(ctx, repo.QuizRef(q.ID))
	require.NoError(t, err)

	_, _, err = f.enroll.Enroll(ctx, "missing-user", q.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Contains(t, err.Error(), "user")

	after, err := f.store.Get(ctx, repo.QuizRef(q.ID))
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Enrollments.WithLabelValues(metrics.OutcomeNotFound)))
}

func TestEnrollMissingQuiz(t *testing.T) {
	f := newFixture(t)
	u, _ := f.seed(t)

	_, _, err := f.enroll.Enroll(context.Background(), u.ID, "missing-quiz")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.EqualError(t, err, `quiz "missing-quiz" not found`)

	got, err := f.users.Get(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.QuizIDs)
}

func TestEnrollSurvivesCanceledContext(t *testing.T) {
	f := newFixture(t)
	u, q := f.seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.enroll.Enroll(ctx, u.ID, q.ID)
	require.NoError(t, err)
	_, sq := f.reload(t, u.ID, q.ID)
	assert.Equal(t, 1, sq.UserCount)
}

type alwaysConflict struct{ docstore.Store }

func (alwaysConflict) RunTransaction(context.Context, docstore.TxFunc) error {
	return docstore.ErrConflict
}

func TestEnrollConflictExhaustion(t *testing.T) {
	m := metrics.New(nil)
	runner := docstore.NewRunner(alwaysConflict{docstore.NewMemory()}, docstore.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	svc := NewEnrollmentService(runner, NewQuizService(nil, nil, 0, zap.NewNop()), m, zap.NewNop())

	_, _, err := svc.Enroll(context.Background(), "u", "q")
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.ErrorIs(t, err, docstore.ErrConflict)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Enrollments.WithLabelValues(metrics.OutcomeConflict)))
}

func TestEnrollInvalidatesQuizListCache(t *testing.T) {
	f := newFixture(t)
	u, q := f.seed(t)
	ctx := context.Background()

	list, err := f.quizzes.ListLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 0, list[0].UserCount)
	assert.True(t, f.mr.Exists("quizzes:latest:0:10"))

	_, _, err = f.enroll.Enroll(ctx, u.ID, q.ID)
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("quizzes:latest:0:10"))

	list, err = f.quizzes.ListLatest(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, list[0].UserCount)
}

func TestCounterIsNotWritableThroughUpdate(t *testing.T) {
	f := newFixture(t)
	u, q := f.seed(t)
	ctx := context.Background()
	_, _, err := f.enroll.Enroll(ctx, u.ID, q.ID)
	require.NoError(t, err)

	name := "renamed"
	upd, err := f.quizzes.Update(ctx, q.ID, domain.QuizPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, 1, upd.UserCount)

	same, err := f.quizzes.Update(ctx, q.ID, domain.QuizPatch{})
	require.NoError(t, err)
	assert.Equal(t, "renamed", same.Name)
}

func TestQuizServiceCreateInvalidatesList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.quizzes.ListLatest(ctx, 5)
	require.NoError(t, err)
	assert.True(t, f.mr.Exists("quizzes:latest:0:5"))

	_, err = f.quizzes.Create(ctx, domain.NewQuiz{Name: "new"})
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("quizzes:latest:0:5"))

	list, err := f.quizzes.ListLatest(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.True(t, f.mr.Exists("quizzes:latest:1:5"))
}

// gatedQuizRepo 第一次 ListLatest 读完数据后停住，等测试放行再返回
type gatedQuizRepo struct {
	domain.QuizRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedQuizRepo) ListLatest(ctx context.Context, limit int) ([]domain.Quiz, error) {
	list, err := r.QuizRepository.ListLatest(ctx, limit)
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	return list, err
}

func TestListLoadedBeforeEnrollDoesNotOutliveInvalidation(t *testing.T) {
	f := newFixture(t)
	u, q := f.seed(t)
	ctx := context.Background()

	runner := docstore.NewRunner(f.store, docstore.DefaultRetryPolicy())
	gated := &gatedQuizRepo{
		QuizRepository: repo.NewQuizRepo(runner),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	slow := NewQuizService(gated, f.cache, time.Minute, zap.NewNop())

	done := make(chan []domain.Quiz)
	go func() {
		list, err := slow.ListLatest(ctx, 10)
		assert.NoError(t, err)
		done <- list
	}()
	<-gated.entered

	_, _, err := f.enroll.Enroll(ctx, u.ID, q.ID)
	require.NoError(t, err)
	close(gated.release)

	stale := <-done
	require.Len(t, stale, 1)
	assert.Equal(t, 0, stale[0].UserCount)

	list, err := f.quizzes.ListLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UserCount)
}
