package ez

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"go-gin-todo-auth/internal/domain"
	mdw "go-gin-todo-auth/internal/transport/http/middleware"
	resp "go-gin-todo-auth/internal/transport/http/response"
)

type EZ struct {
	g *gin.RouterGroup
	l *zap.Logger
}

func New(g *gin.RouterGroup, l *zap.Logger) EZ { return EZ{g: g, l: l} }

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param / c.Query 取
)

// AErr 统一错误对象，Code 即 HTTP 状态
type AErr struct {
	Code int
	Msg  string
	Data any
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

// Invalid 逐条列出校验失败原因
func Invalid(code int, items []string) *AErr {
	return &AErr{Code: code, Msg: resp.CodeMsgMap[resp.CodeUnprocessable], Data: gin.H{"errors": items}}
}

// FromError 把领域错误映射成 HTTP 错误；未识别的一律 500
func FromError(err error) *AErr {
	var ae *AErr
	if errors.As(err, &ae) {
		return ae
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return Invalid(resp.CodeUnprocessable, ve.Errors)
	}
	code := 0
	switch {
	case errors.Is(err, domain.ErrUnauthenticated), errors.Is(err, domain.ErrInvalidCredentials):
		code = resp.CodeUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		code = resp.CodeForbidden
	case errors.Is(err, domain.ErrNotFound):
		code = resp.CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		code = resp.CodeConflict
	case errors.Is(err, domain.ErrInvalidToken), errors.Is(err, domain.ErrTokenExpired),
		errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAmbiguous):
		code = resp.CodeBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return &AErr{Code: resp.CodeTimeout, Msg: "timeout", Err: err}
	default:
		return &AErr{Code: resp.CodeServerError, Err: err}
	}
	return &AErr{Code: code, Msg: err.Error(), Err: err}
}

// Fail 写错误响应；5xx 只返回通用文案，原始错误进日志
func Fail(c *gin.Context, l *zap.Logger, err error) {
	ae := FromError(err)
	msg := ae.Msg
	if ae.Code >= 500 {
		l.Error("request failed",
			zap.String("rid", mdw.RequestIDFrom(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		if ae.Code == resp.CodeServerError {
			msg = ""
		}
	}
	if ae.Code == resp.CodeUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(resp.Status(ae.Code), resp.ErrorWithData(ae.Code, msg, ae.Data))
}

// BindError 绑定失败：请求体过大 413，字段校验 400 并逐条列出
func BindError(err error) *AErr {
	if mdw.IsBodyTooLarge(err) {
		return &AErr{Code: resp.CodeTooLarge, Msg: "request body too large"}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		items := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			items = append(items, fieldMessage(fe))
		}
		return Invalid(resp.CodeBadRequest, items)
	}
	var se *json.SyntaxError
	var te *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return Invalid(resp.CodeBadRequest, []string{"request body is required"})
	case errors.As(err, &se):
		return Invalid(resp.CodeBadRequest, []string{"request body is not valid JSON"})
	case errors.As(err, &te):
		return Invalid(resp.CodeBadRequest, []string{fmt.Sprintf("%s: must be %s", te.Field, te.Type)})
	}
	return Invalid(resp.CodeBadRequest, []string{err.Error()})
}

func fieldMessage(fe validator.FieldError) string {
	name := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + ": field required"
	case "email":
		return name + ": value is not a valid email address"
	case "min":
		return fmt.Sprintf("%s: must be at least %s", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s: must be at most %s", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s]", name, fe.Param())
	}
	return fmt.Sprintf("%s: failed on '%s'", name, fe.Tag())
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StatusCoder 出参实现后可按结果决定 HTTP 状态
type StatusCoder interface{ HTTPStatus() int }

// Action 非 CRUD 的单个接口：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string // "GET" | "POST" | "PUT" | "PATCH" | "DELETE"
	Path    string // 例："/auth/login"、"/todos/:id"
	Binder  Binder
	Status  int // 成功时的 HTTP 状态，默认 200；204 不写 body
	Handler func(c *gin.Context, in *I) (O, error)
}

// RegisterAction 在当前 EZ 下注册动作接口
func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	status := a.Status
	if status == 0 {
		status = http.StatusOK
	}
	h := func(c *gin.Context) {
		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		default:
		}
		if bindErr != nil {
			Fail(c, e.l, BindError(bindErr))
			return
		}

		out, err := a.Handler(c, &in)
		if err != nil {
			Fail(c, e.l, err)
			return
		}
		st := status
		if sc, ok := any(out).(StatusCoder); ok && sc.HTTPStatus() != 0 {
			st = sc.HTTPStatus()
		}
		if st == http.StatusNoContent {
			c.Status(st)
			return
		}
		c.JSON(st, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}
