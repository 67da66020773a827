package domain

import (
	"context"
	"slices"
)

const UsersCollection = "users"

type User struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	QuizIDs []string `json:"quizIds"` // 集合语义，只由入群事务追加
}

func (u *User) HasQuiz(quizID string) bool { return slices.Contains(u.QuizIDs, quizID) }

// UserPatch 为 nil 的字段不更新
type UserPatch struct {
	Name *string `json:"name"`
}

func (p UserPatch) Empty() bool { return p.Name == nil }

type UserRepository interface {
	Create(ctx context.Context, name string) (*User, error)
	Get(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, id string, p UserPatch) (*User, error)
	Delete(ctx context.Context, id string) (*User, error)
}
