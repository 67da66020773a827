// Package validate 声明式字段校验：按 Schema 清洗、转换请求数据，一次性收集全部字段错误
package validate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

type Type int

const (
	String Type = iota
	Bool
	Int
	Number
	Strings
)

// Field 单个字段的规则
type Field struct {
	Type     Type
	Label    string // 为空时用字段名
	Required bool
	NotBlank bool     // 纯空白字符串视为空
	Min      *float64 // 字符串长度或数值下限
	Max      *float64
	Default  any    // 缺省时填入，不参与校验
	Tag      string // 额外的 validator tag，如 "alphanum" / "email"
}

// Limit 便于写 Min: validate.Limit(1)
func Limit(n float64) *float64 { return &n }

type Schema map[string]Field

// FieldError 对外的错误描述，字段名与 message 格式兼容 Joi
type FieldError struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
	Type    string   `json:"type"`
	Key     string   `json:"key,omitempty"`
	Label   string   `json:"label,omitempty"`
}

type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, strings.Join(fe.Path, ".")+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Options 未知字段默认剔除；Strict 拒绝，AllowUnknown 原样保留
type Options struct {
	Strict       bool
	AllowUnknown bool
}

var tags = validator.New()

// Validate 返回清洗后的数据；errs 非空时 out 不可用
func (s Schema) Validate(payload map[string]any, opts Options) (map[string]any, Errors) {
	out := make(map[string]any, len(s))
	var errs Errors

	for _, key := range sortedKeys(s) {
		f := s[key]
		raw, present := payload[key]
		if !present {
			switch {
			case f.Default != nil:
				out[key] = f.Default
			case f.Required:
				errs = append(errs, newFieldError(key, f.label(key), "any.required", "is required"))
			}
			continue
		}
		v, fe := f.check(key, raw)
		if fe != nil {
			errs = append(errs, *fe)
			continue
		}
		out[key] = v
	}

	unknown := make([]string, 0)
	for key := range payload {
		if _, ok := s[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		switch {
		case opts.AllowUnknown:
			out[key] = payload[key]
		case opts.Strict:
			errs = append(errs, newFieldError(key, key, "object.unknown", "is not allowed"))
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func (f Field) label(key string) string {
	if f.Label != "" {
		return f.Label
	}
	return key
}

func (f Field) check(key string, raw any) (any, *FieldError) {
	label := f.label(key)
	fail := func(typ, msg string) (any, *FieldError) {
		fe := newFieldError(key, label, typ, msg)
		return nil, &fe
	}

	switch f.Type {
	case String:
		s, ok := raw.(string)
		if !ok {
			return fail("string.base", "must be a string")
		}
		if s == "" || (f.NotBlank && strings.TrimSpace(s) == "") {
			return fail("string.empty", "is not allowed to be empty")
		}
		switch f.outOfRange(float64(utf8.RuneCountInString(s))) {
		case "min":
			return fail("string.min", fmt.Sprintf("length must be at least %s characters long", num(*f.Min)))
		case "max":
			return fail("string.max", fmt.Sprintf("length must be less than or equal to %s characters long", num(*f.Max)))
		}
		if f.Tag != "" && tags.Var(s, f.Tag) != nil {
			return fail("any.invalid", fmt.Sprintf("failed validation %q", f.Tag))
		}
		return s, nil

	case Bool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			if b, err := cast.ToBoolE(strings.ToLower(v)); err == nil {
				return b, nil
			}
		}
		return fail("boolean.base", "must be a boolean")

	case Int, Number:
		var x float64
		switch v := raw.(type) {
		case bool, nil:
			return fail("number.base", "must be a number")
		case string:
			var err error
			if x, err = cast.ToFloat64E(strings.TrimSpace(v)); err != nil || strings.TrimSpace(v) == "" {
				return fail("number.base", "must be a number")
			}
		default:
			var err error
			if x, err = cast.ToFloat64E(v); err != nil {
				return fail("number.base", "must be a number")
			}
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fail("number.base", "must be a number")
		}
		if f.Type == Int && x != math.Trunc(x) {
			return fail("number.integer", "must be an integer")
		}
		// float64 转 int 越界时结果未定义
		if f.Type == Int && (x < math.MinInt || x >= math.MaxInt) {
			return fail("number.unsafe", "must be a safe number")
		}
		switch f.outOfRange(x) {
		case "min":
			return fail("number.min", "must be greater than or equal to "+num(*f.Min))
		case "max":
			return fail("number.max", "must be less than or equal to "+num(*f.Max))
		}
		if f.Type == Int {
			return int(x), nil
		}
		return x, nil

	case Strings:
		var items []any
		switch v := raw.(type) {
		case []any:
			items = v
		case []string:
			for _, s := range v {
				items = append(items, s)
			}
		default:
			return fail("array.base", "must be an array")
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			s, ok := it.(string)
			if !ok {
				return fail("string.base", "must be an array of strings")
			}
			if f.Tag != "" && tags.Var(s, f.Tag) != nil {
				return fail("any.invalid", fmt.Sprintf("failed validation %q", f.Tag))
			}
			out = append(out, s)
		}
		switch f.outOfRange(float64(len(out))) {
		case "min":
			return fail("array.min", fmt.Sprintf("must contain at least %s items", num(*f.Min)))
		case "max":
			return fail("array.max", fmt.Sprintf("must contain less than or equal to %s items", num(*f.Max)))
		}
		return out, nil
	}
	return fail("any.unknown", "has an unsupported type")
}

// outOfRange Min/Max 交给 validator 的 gte/lte 判断，返回越过的一端（"min" / "max"），
// 字符串和数组传入的是长度
func (f Field) outOfRange(n float64) string {
	if f.Min != nil && tags.Var(n, "gte="+num(*f.Min)) != nil {
		return "min"
	}
	if f.Max != nil && tags.Var(n, "lte="+num(*f.Max)) != nil {
		return "max"
	}
	return ""
}

// newFieldError message 先按 Joi 的 `"label" ...` 拼出，再去掉和路径重复的引号部分
func newFieldError(key, label, typ, msg string) FieldError {
	full := fmt.Sprintf("%q %s", label, msg)
	cleaned := strings.TrimSpace(strings.Replace(full, `"`+key+`"`, "", 1))
	return FieldError{Path: []string{key}, Message: cleaned, Type: typ, Key: key, Label: label}
}

func num(f float64) string { return cast.ToString(f) }

func sortedKeys(s Schema) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
