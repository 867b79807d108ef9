package router

import (
	"net/http"
	"time"

	"github.com/4uJustDev/medical-calculator-haq/internal/config"
	"github.com/4uJustDev/medical-calculator-haq/internal/handlers"
	"github.com/4uJustDev/medical-calculator-haq/internal/models"
	"github.com/4uJustDev/medical-calculator-haq/internal/quiz"
	"github.com/4uJustDev/medical-calculator-haq/internal/repository"
	"github.com/4uJustDev/medical-calculator-haq/internal/services"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).Round(time.Second).String()+".")
}

// Setup builds the gin engine. store is either the database-backed store or
// a DiscardStore when local storage could not be opened.
func Setup(log *zap.Logger, cfg *config.Config, catalog *models.Catalog, store repository.SubmissionStore) *gin.Engine {
	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	sessionStore := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions("haq_session", sessionStore))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "same-origin",
		IsDevelopment:      !cfg.IsProduction(),
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
	})

	router.Use(NonceMiddleware())
	router.Use(CSRFProtection())

	// Report settings are read per export so config reloads apply.
	reportConfig := func() config.ReportConfig { return config.Get().Report }

	history := services.NewHistoryService(log, store, catalog, reportConfig)
	quizHandler := handlers.NewQuizHandler(log, catalog, store, quiz.NewIDSource(), cfg.Quiz.RequirePatientInfo)
	historyHandler := handlers.NewHistoryHandler(log, history, catalog)

	limit := cfg.Server.RateLimit
	if limit <= 0 {
		limit = 30
	}
	limiter := ratelimit.RateLimiter(ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: uint(limit),
	}), &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/", quizHandler.Show)
	router.GET("/health", handlers.Health(history))
	router.GET("/catalog", quizHandler.Catalog)

	quizRoutes := router.Group("/quiz")
	{
		quizRoutes.GET("", quizHandler.Show)
		quizRoutes.POST("/start", quizHandler.Start)
		quizRoutes.POST("/answer", quizHandler.Answer)
		quizRoutes.POST("/next", quizHandler.Next)
		quizRoutes.POST("/prev", quizHandler.Prev)
		quizRoutes.POST("/submit", limiter, quizHandler.Submit)
		quizRoutes.POST("/reset", quizHandler.Reset)
		quizRoutes.POST("/patient", quizHandler.ChangePatient)
	}

	historyRoutes := router.Group("/history")
	{
		historyRoutes.GET("", historyHandler.List)
		historyRoutes.GET("/chart", historyHandler.Chart)
		historyRoutes.GET("/:id/export", limiter, historyHandler.Export)
		historyRoutes.POST("/:id/delete", limiter, historyHandler.Delete)
		historyRoutes.DELETE("/:id", limiter, historyHandler.Delete)
	}

	return router
}
