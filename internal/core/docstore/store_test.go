package docstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite 两个驱动共用的行为测试；最后一个子测试是并发写同一文档
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		doc, err := s.Create(ctx, "users", Fields{"name": "Bob", "quizIds": []string{}})
		require.NoError(t, err)
		require.NotEmpty(t, doc.Ref.ID)
		require.EqualValues(t, 1, doc.Version)

		got, err := s.Get(ctx, doc.Ref)
		require.NoError(t, err)
		var out struct {
			Name    string   `json:"name"`
			QuizIDs []string `json:"quizIds"`
		}
		require.NoError(t, got.DataTo(&out))
		assert.Equal(t, "Bob", out.Name)
		assert.Empty(t, out.QuizIDs)
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, Ref{Collection: "users", ID: "nope"})
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("server timestamp resolves to commit time", func(t *testing.T) {
		s := newStore(t)
		before := time.Now().UTC().Add(-time.Second)
		doc, err := s.Create(ctx, "quizzes", Fields{"name": "Q", "createdOn": ServerTimestamp})
		require.NoError(t, err)
		var out struct {
			CreatedOn time.Time `json:"createdOn"`
		}
		require.NoError(t, doc.DataTo(&out))
		assert.True(t, out.CreatedOn.After(before))
	})

	t.Run("transaction update merges fields and bumps version", func(t *testing.T) {
		s := newStore(t)
		doc, err := s.Create(ctx, "quizzes", Fields{"name": "Q", "userCount": 0})
		require.NoError(t, err)

		err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			cur, err := tx.Get(doc.Ref)
			if err != nil {
				return err
			}
			var q struct {
				UserCount int `json:"userCount"`
			}
			if err := cur.DataTo(&q); err != nil {
				return err
			}
			return tx.Update(doc.Ref, Fields{"userCount": q.UserCount + 1})
		})
		require.NoError(t, err)

		got, err := s.Get(ctx, doc.Ref)
		require.NoError(t, err)
		assert.EqualValues(t, 2, got.Version)
		assert.Equal(t, "Q", got.Data()["name"])
		assert.EqualValues(t, 1, got.Data()["userCount"])
	})

	t.Run("failed transaction writes nothing", func(t *testing.T) {
		s := newStore(t)
		a, err := s.Create(ctx, "users", Fields{"name": "a"})
		require.NoError(t, err)
		boom := errors.New("boom")

		err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.Get(a.Ref); err != nil {
				return err
			}
			if err := tx.Update(a.Ref, Fields{"name": "changed"}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := s.Get(ctx, a.Ref)
		require.NoError(t, err)
		assert.Equal(t, "a", got.Data()["name"])
		assert.EqualValues(t, 1, got.Version)
	})

	t.Run("update of missing document fails the whole commit", func(t *testing.T) {
		s := newStore(t)
		a, err := s.Create(ctx, "users", Fields{"name": "a"})
		require.NoError(t, err)

		err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Update(a.Ref, Fields{"name": "b"}); err != nil {
				return err
			}
			return tx.Update(Ref{Collection: "users", ID: "ghost"}, Fields{"name": "x"})
		})
		require.ErrorIs(t, err, ErrNotFound)

		got, err := s.Get(ctx, a.Ref)
		require.NoError(t, err)
		assert.Equal(t, "a", got.Data()["name"])
	})

	t.Run("read after write is rejected", func(t *testing.T) {
		s := newStore(t)
		a, err := s.Create(ctx, "users", Fields{"name": "a"})
		require.NoError(t, err)
		err = s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.Update(a.Ref, Fields{"name": "b"}); err != nil {
				return err
			}
			_, err := tx.Get(a.Ref)
			return err
		})
		require.ErrorIs(t, err, ErrReadAfterWrite)
	})

	t.Run("set and delete", func(t *testing.T) {
		s := newStore(t)
		ref := Ref{Collection: "users", ID: "fixed-id"}
		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			return tx.Set(ref, Fields{"name": "set"})
		}))
		got, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "set", got.Data()["name"])

		require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.Get(ref); err != nil {
				return err
			}
			return tx.Delete(ref)
		}))
		_, err = s.Get(ctx, ref)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list newest first with limit", func(t *testing.T) {
		s := newStore(t)
		var names []string
		for _, n := range []string{"q1", "q2", "q3"} {
			_, err := s.Create(ctx, "quizzes", Fields{"name": n})
			require.NoError(t, err)
			names = append(names, n)
			time.Sleep(2 * time.Millisecond)
		}
		_, err := s.Create(ctx, "users", Fields{"name": "not a quiz"})
		require.NoError(t, err)

		docs, err := s.List(ctx, Query{Collection: "quizzes", Desc: true, Limit: 2})
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "q3", docs[0].Data()["name"])
		assert.Equal(t, "q2", docs[1].Data()["name"])
	})

	t.Run("concurrent increments through the runner all land", func(t *testing.T) {
		s := newStore(t)
		doc, err := s.Create(ctx, "quizzes", Fields{"userCount": 0})
		require.NoError(t, err)
		r := NewRunner(s, DefaultRetryPolicy())

		// 每次冲突都意味着别人提交了一次，n 个并发最多输 n-1 次，不超过默认的 5 次尝试
		const n = 4
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- r.Run(ctx, increment(doc.Ref))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Get(ctx, doc.Ref)
		require.NoError(t, err)
		assert.EqualValues(t, n, got.Data()["userCount"])
		assert.EqualValues(t, n+1, got.Version)
	})
}

func increment(ref Ref) TxFunc {
	return func(ctx context.Context, tx Tx) error {
		cur, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var q struct {
			UserCount int `json:"userCount"`
		}
		if err := cur.DataTo(&q); err != nil {
			return err
		}
		return tx.Update(ref, Fields{"userCount": q.UserCount + 1})
	}
}
