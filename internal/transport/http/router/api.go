package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"quiz-api/internal/apperr"
	"quiz-api/internal/core/cache"
	"quiz-api/internal/core/config"
	"quiz-api/internal/core/docstore"
	"quiz-api/internal/core/metrics"
	"quiz-api/internal/core/server"
	"quiz-api/internal/repo"
	"quiz-api/internal/service"
	"quiz-api/internal/transport/http/handler"
	mdw "quiz-api/internal/transport/http/middleware"
	"quiz-api/internal/transport/http/validate"
)

// Deps 进程级依赖，由 main 或测试显式构造
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Store    docstore.Store
	Cache    *cache.Cache // 可为 nil
	Registry *prometheus.Registry
}

func NewAPIEngine(d Deps) *gin.Engine {
	cfg := d.Config
	var reg prometheus.Registerer
	if d.Registry != nil {
		reg = d.Registry
	}
	m := metrics.New(reg)

	r := server.NewRouter(d.Log, mdw.RequestIDFrom)

	limit := mdw.RateLimit
	if cfg.Limits.PerIP {
		limit = mdw.RateLimitPerIP
	}

	// 中间件：ErrorChannel 在 Recovery 和各限流之外，统一写错误响应
	r.Use(
		mdw.RequestID(),
		mdw.Metrics(m),
		mdw.ErrorChannel(d.Log, cfg.IsDev()),
		mdw.Recovery(),
		limit(rate.Limit(cfg.Limits.RPS), cfg.Limits.Burst),
		mdw.ConcurrencyLimit(cfg.Limits.MaxConcurrent),
		mdw.MaxBodyBytes(cfg.Limits.MaxBodyBytes),
		mdw.Timeout(time.Duration(cfg.Limits.TimeoutSec)*time.Second),
	)

	runner := docstore.NewRunner(d.Store, docstore.RetryPolicy{
		MaxAttempts: cfg.Tx.MaxAttempts,
		BaseDelay:   cfg.Tx.BaseDelay(),
		MaxDelay:    cfg.Tx.MaxDelay(),
	}, docstore.WithAttemptCounter(m.TxAttempts))

	users := service.NewUserService(repo.NewUserRepo(runner))
	quizzes := service.NewQuizService(repo.NewQuizRepo(runner), d.Cache,
		time.Duration(cfg.Redis.QuizListTTLSec)*time.Second, d.Log)
	enroll := service.NewEnrollmentService(runner, quizzes, m, d.Log)

	v := validate.New(d.Log)

	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "alive") })
	r.GET("/health", mdw.Handle(d.Log, func(c *gin.Context) error {
		if err := d.Store.Ping(c.Request.Context()); err != nil {
			return apperr.Wrap(apperr.KindUnavailable, "store unavailable", err)
		}
		if err := d.Cache.Ping(c.Request.Context()); err != nil {
			d.Log.Warn("cache ping failed", zap.Error(err))
		}
		c.JSON(http.StatusOK, gin.H{"ok": 1})
		return nil
	}))
	if d.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}
	r.NoRoute(mdw.Handle(d.Log, func(c *gin.Context) error {
		return apperr.New(apperr.KindNotFound, "route not found")
	}))

	MountAll(&r.RouterGroup,
		handler.NewEnrollmentHandler(enroll, v, d.Log),
		handler.NewUserHandler(users, v, d.Log),
		handler.NewQuizHandler(quizzes, v, d.Log),
	)
	return r
}
