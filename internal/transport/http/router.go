package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries the handlers and edge settings for NewRouter.
type RouterConfig struct {
	Quizzes     *QuizHandler
	WS          *WSHandler
	Verifier    TokenVerifier
	CORSOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics     http.Handler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger())
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 || (len(cfg.CORSOrigins) == 1 && cfg.CORSOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	api := r.Group("/api", requireUser(cfg.Verifier))
	{
		api.GET("/quizzes", cfg.Quizzes.ListQuizzes)
		api.POST("/quizzes", cfg.Quizzes.CreateQuiz)
		api.PUT("/quizzes/:slug/status", cfg.Quizzes.SetStatus)
		api.DELETE("/quizzes/:slug", cfg.Quizzes.DeleteQuiz)

		api.GET("/quiz/:slug", cfg.Quizzes.GetQuiz)
		api.POST("/quiz/:slug", cfg.Quizzes.PostAttempt)

		api.GET("/analysis/:slug", cfg.Quizzes.Analysis)
		api.GET("/analysis/:slug/export", cfg.Quizzes.ExportAnalysis)
	}

	if cfg.WS != nil {
		r.GET("/ws/quiz/:slug", requireUser(cfg.Verifier), cfg.WS.ServeWS)
	}
	return r
}
