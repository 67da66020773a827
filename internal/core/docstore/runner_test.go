package docstore

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// conflictStore 每次提交都报冲突
type conflictStore struct {
	Store
	calls int
}

func (s *conflictStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	s.calls++
	return ErrConflict
}

func TestRunnerGivesUpAfterMaxAttempts(t *testing.T) {
	s := &conflictStore{Store: NewMemory()}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "attempts"}, []string{"result"})
	r := NewRunner(s, RetryPolicy{MaxAttempts: 4}, WithAttemptCounter(attempts))

	err := r.Run(context.Background(), func(ctx context.Context, tx Tx) error { return nil })
	require.ErrorIs(t, err, ErrConflict)
	require.Contains(t, err.Error(), "4 attempts")
	require.Equal(t, 4, s.calls)
	require.InDelta(t, 4, testutil.ToFloat64(attempts.WithLabelValues("conflict")), 0)
}

func TestRunnerDoesNotRetryOtherErrors(t *testing.T) {
	s := NewMemory()
	r := NewRunner(s, RetryPolicy{MaxAttempts: 5})
	boom := errors.New("boom")
	calls := 0
	err := r.Run(context.Background(), func(ctx context.Context, tx Tx) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRunnerRetriesUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	doc, err := s.Create(ctx, "quizzes", Fields{"userCount": 0})
	require.NoError(t, err)
	r := NewRunner(s, RetryPolicy{MaxAttempts: 3})

	calls := 0
	err = r.Run(ctx, func(ctx context.Context, tx Tx) error {
		calls++
		if _, err := tx.Get(doc.Ref); err != nil {
			return err
		}
		if calls == 1 {
			// 第一次尝试期间有人改了文档
			require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, other Tx) error {
				return other.Update(doc.Ref, Fields{"userCount": 10})
			}))
		}
		return tx.Update(doc.Ref, Fields{"touched": true})
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	got, err := s.Get(ctx, doc.Ref)
	require.NoError(t, err)
	require.EqualValues(t, 10, got.Data()["userCount"])
	require.Equal(t, true, got.Data()["touched"])
}
