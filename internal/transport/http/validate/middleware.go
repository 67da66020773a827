package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"quiz-api/internal/apperr"
)

type Property string

const (
	PropBody   Property = "body"
	PropParams Property = "params"
	PropQuery  Property = "query"
)

func ctxKey(p Property) string { return "validated." + string(p) }

type Validator struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Validator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Validator{log: log}
}

func (v *Validator) Body(s Schema, opts ...Options) gin.HandlerFunc {
	return v.Middleware(PropBody, s, opts...)
}

func (v *Validator) Params(s Schema, opts ...Options) gin.HandlerFunc {
	return v.Middleware(PropParams, s, opts...)
}

func (v *Validator) Query(s Schema, opts ...Options) gin.HandlerFunc {
	return v.Middleware(PropQuery, s, opts...)
}

// Middleware 校验通过后把清洗结果写回请求，下游只看到白名单字段
func (v *Validator) Middleware(prop Property, s Schema, opts ...Options) gin.HandlerFunc {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}
	return func(c *gin.Context) {
		payload, errs, err := read(c, prop)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		var out map[string]any
		if errs == nil {
			out, errs = s.Validate(payload, opt)
		}
		if len(errs) > 0 {
			body := gin.H{"validationErrors": gin.H{string(prop): errs}}
			v.log.Debug("validation failed",
				zap.String("method", c.Request.Method),
				zap.String("url", c.Request.URL.String()),
				zap.Any("errors", body),
			)
			c.AbortWithStatusJSON(apperr.KindValidation.Status(), body)
			return
		}
		c.Set(ctxKey(prop), out)
		write(c, prop, out)
		c.Next()
	}
}

func read(c *gin.Context, prop Property) (map[string]any, Errors, error) {
	switch prop {
	case PropParams:
		m := make(map[string]any, len(c.Params))
		for _, p := range c.Params {
			m[p.Key] = p.Value
		}
		return m, nil, nil
	case PropQuery:
		m := map[string]any{}
		for k, vs := range c.Request.URL.Query() {
			if len(vs) == 1 {
				m[k] = vs[0]
				continue
			}
			items := make([]any, 0, len(vs))
			for _, s := range vs {
				items = append(items, s)
			}
			m[k] = items
		}
		return m, nil, nil
	}

	if c.Request.Body == nil {
		return map[string]any{}, nil, nil
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, nil, apperr.New(apperr.KindTooLarge, "request body too large")
		}
		return nil, nil, apperr.BadRequest("cannot read request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return nil, Errors{{Path: []string{}, Message: `"value" must be of type object`, Type: "object.base", Label: "value"}}, nil
	}
	return m, nil, nil
}

func write(c *gin.Context, prop Property, out map[string]any) {
	switch prop {
	case PropBody:
		b, _ := json.Marshal(out)
		c.Request.Body = io.NopCloser(bytes.NewReader(b))
		c.Request.ContentLength = int64(len(b))
	case PropParams:
		params := make(gin.Params, 0, len(out))
		for _, p := range c.Params {
			if v, ok := out[p.Key]; ok {
				params = append(params, gin.Param{Key: p.Key, Value: cast.ToString(v)})
			}
		}
		c.Params = params
	case PropQuery:
		q := url.Values{}
		for k, v := range out {
			if isSlice(v) {
				q[k] = cast.ToStringSlice(v)
				continue
			}
			q.Set(k, cast.ToString(v))
		}
		c.Request.URL.RawQuery = q.Encode()
	}
}

func isSlice(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	}
	return false
}

// Sanitized 取出中间件写入的清洗结果；未经校验时返回 nil
func Sanitized(c *gin.Context, prop Property) map[string]any {
	v, ok := c.Get(ctxKey(prop))
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

// Bind 把清洗结果解码进 dst（结构体字段用 json tag）
func Bind(c *gin.Context, prop Property, dst any) error {
	m := Sanitized(c, prop)
	if m == nil {
		return apperr.Internal("request "+string(prop)+" was not validated", nil)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return apperr.Internal("encode sanitized "+string(prop), err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return apperr.BadRequest("malformed " + string(prop))
	}
	return nil
}
