// Package apperr 定义对外可见的错误分类，每一类都带 HTTP 状态码
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	pkgerrors "github.com/pkg/errors"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindBadRequest
	KindNotFound
	KindConflict
	KindTooLarge
	KindTooManyRequests
	KindUnavailable
	KindTimeout
)

var kindStatus = map[Kind]int{
	KindInternal:        http.StatusInternalServerError,
	KindValidation:      http.StatusUnprocessableEntity,
	KindBadRequest:      http.StatusBadRequest,
	KindNotFound:        http.StatusNotFound,
	KindConflict:        http.StatusConflict,
	KindTooLarge:        http.StatusRequestEntityTooLarge,
	KindTooManyRequests: http.StatusTooManyRequests,
	KindUnavailable:     http.StatusServiceUnavailable,
	KindTimeout:         http.StatusGatewayTimeout,
}

// Status 未登记的 Kind 一律按 500 处理
func (k Kind) Status() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (k Kind) String() string { return http.StatusText(k.Status()) }

type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// Error 统一错误对象；Msg 为空时回落到 Err
type Error struct {
	Kind  Kind
	Msg   string
	Err   error
	stack pkgerrors.StackTrace
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int { return e.Kind.Status() }

func (e *Error) StackTrace() pkgerrors.StackTrace { return e.stack }

// Format 支持 %+v 打印调用栈
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprint(s, e.Error())
			if e.Err != nil && e.Msg != "" {
				_, _ = fmt.Fprintf(s, ": %v", e.Err)
			}
			e.stack.Format(s, verb)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// skip 为需要从栈顶丢弃的帧数（newError 自身 + 导出构造函数）
func newError(kind Kind, msg string, err error, skip int) *Error {
	st := pkgerrors.New(msg).(stackTracer).StackTrace()
	if len(st) > skip {
		st = st[skip:]
	}
	return &Error{Kind: kind, Msg: msg, Err: err, stack: st}
}

func New(kind Kind, msg string) *Error { return newError(kind, msg, nil, 2) }

func Wrap(kind Kind, msg string, err error) *Error { return newError(kind, msg, err, 2) }

func BadRequest(msg string) *Error { return newError(KindBadRequest, msg, nil, 2) }

// NotFound 消息里带上实体名和 id，例如 user "abc" not found
func NotFound(entity, id string) *Error {
	return newError(KindNotFound, fmt.Sprintf("%s %q not found", entity, id), nil, 2)
}

func Conflict(msg string, err error) *Error { return newError(KindConflict, msg, err, 2) }
func Internal(msg string, err error) *Error { return newError(KindInternal, msg, err, 2) }

// Recovered 把 panic 值转成 500；在 defer 里调用时栈上保留了 panic 现场
func Recovered(rec any) *Error {
	var cause error
	switch v := rec.(type) {
	case error:
		cause = v
	default:
		cause = fmt.Errorf("panic: %v", v)
	}
	return newError(KindInternal, cause.Error(), cause, 2)
}

// From 把任意 error 归一成 *Error；未知错误视为 500，消息保留原文
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return newError(KindInternal, "", err, 2)
}

func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func StatusOf(err error) int { return KindOf(err).Status() }

func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// Stack 返回 "消息 + 调用栈" 的文本；没有栈信息时退化为 %+v
func Stack(err error) string {
	if err == nil {
		return ""
	}
	var st stackTracer
	if errors.As(err, &st) && len(st.StackTrace()) > 0 {
		return fmt.Sprintf("%s%+v", err.Error(), st.StackTrace())
	}
	return fmt.Sprintf("%+v", err)
}
