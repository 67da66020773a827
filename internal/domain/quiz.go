package domain

import (
	"context"
	"time"
)

const QuizzesCollection = "quizzes"

type Quiz struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Active      bool      `json:"active"`
	UserCount   int       `json:"userCount"` // 只读，由入群事务维护
	CreatedOn   time.Time `json:"createdOn"`
}

type NewQuiz struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Active      bool    `json:"active"`
}

type QuizPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

func (p QuizPatch) Empty() bool { return p.Name == nil && p.Description == nil && p.Active == nil }

type QuizRepository interface {
	Create(ctx context.Context, in NewQuiz) (*Quiz, error)
	Get(ctx context.Context, id string) (*Quiz, error)
	// ListLatest 按 createdOn 倒序
	ListLatest(ctx context.Context, limit int) ([]Quiz, error)
	Update(ctx context.Context, id string, p QuizPatch) (*Quiz, error)
	Delete(ctx context.Context, id string) (*Quiz, error)
}
