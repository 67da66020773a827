// Package response 错误响应体的唯一形状
package response

import "quiz-api/internal/apperr"

type ErrorBody struct {
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

// Error 只有 withStack 为真（development / test）才带调用栈
func Error(err error, withStack bool) ErrorBody {
	body := ErrorBody{Error: err.Error()}
	if withStack {
		body.Stack = apperr.Stack(err)
	}
	return body
}
