// Package app wires the HTTP surface together
package app

import (
	"fmt"
	"strings"
	"time"

	"grcadmin/account-api/app/emailchange"
	"grcadmin/account-api/app/root"
	"grcadmin/account-api/app/user"
	"grcadmin/account-api/config"
	"grcadmin/account-api/db"
	"grcadmin/account-api/internal"
	changecore "grcadmin/account-api/internal/emailchange"
	"grcadmin/account-api/internal/service"
	"grcadmin/account-api/pkg/middleware"
	"grcadmin/account-api/pkg/security"

	cache "github.com/chenyahui/gin-cache"
	"github.com/chenyahui/gin-cache/persist"
	ginzap "github.com/gin-contrib/zap"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

var store = persist.NewMemoryStore(time.Minute)

func NewRouter() (*gin.Engine, error) {
	makeLogger()

	d := &internal.Deps{}

	router := gin.New()

	database, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}
	d.DB = database

	origins := strings.Split(viper.GetString("host.cors"), ",")

	router.Use(
		cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "TurnstileToken"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
		gin.Recovery(),
		middleware.NewRequestIDMiddleware(),
		ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
			TimeFormat: "15:04:05.000",
			UTC:        true,
			Skipper: func(c *gin.Context) bool {
				return c.Request.Method == "HEAD"
			},
			Context: func(c *gin.Context) []zapcore.Field {
				fields := []zapcore.Field{}

				if v := c.GetString("requestID"); v != "" {
					fields = append(fields, zap.String("request_id", v))
				}

				if v := c.GetString("accountID"); v != "" {
					fields = append(fields, zap.String("accountID", v))
				}

				return fields
			},
		}),
	)

	router.HandleMethodNotAllowed = true
	router.RedirectFixedPath = true

	d.Argon = security.New()
	d.Mailer = service.NewGomailSender()
	d.Codes = &changecore.MailCodeChannel{
		DB:             database,
		Mailer:         d.Mailer,
		CodeLength:     viper.GetInt("email_change.code_length"),
		CodeTTL:        time.Minute * time.Duration(viper.GetInt("email_change.code_ttl_minutes")),
		MaxAttempts:    viper.GetInt("email_change.max_attempts"),
		ResendCooldown: time.Second * time.Duration(viper.GetInt("email_change.resend_cooldown_seconds")),
		MaxResends:     viper.GetInt("email_change.max_resends"),
	}
	d.EmailChange = changecore.NewService(
		database,
		d.Codes,
		time.Hour*time.Duration(viper.GetInt("email_change.validity_hours")),
	)

	rateLimit := viper.GetInt("security.rate_limit")

	jwt := middleware.NewJWTMiddleware(database)
	turnstile := middleware.NewTurnstileMiddleware()
	rateLimiter := middleware.RateLimiterMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: rateLimit,
		Burst:             rateLimit * 2,
		CleanupInterval:   time.Second,
	})

	m := router.Group("/api", rateLimiter)
	{
		// HEAD /api/heartbeat 		-> Used to check if the server is alive
		m.HEAD("/heartbeat", cacheFor(5), root.Heartbeat)

		// GET /api/validate		-> Validates a JWT token
		m.GET("/validate", jwt, root.Validate)
	}

	u := m.Group("/users", middleware.BodySizeLimiter(1<<20))
	{
		// GET /api/users		-> Returns the basic info of a user
		u.GET("", jwt, func(c *gin.Context) { user.UserFetch(c, d) })

		// POST /api/users 		-> Registers a new user
		u.POST("", turnstile, func(c *gin.Context) { user.UserRegister(c, d) })

		// POST /api/users/login 	-> Logs in a user and returns a JWT token
		u.POST("/login", func(c *gin.Context) { user.UserLogin(c, d) })

		// POST /api/users/verify	-> Verifies a new user
		u.POST("/verify", func(c *gin.Context) { user.UserVerify(c, d) })
	}

	e := m.Group("/email-change", jwt, middleware.BodySizeLimiter(1<<20))
	{
		// POST /api/email-change/request	-> Opens a new email change request
		e.POST("/request", func(c *gin.Context) { emailchange.ChangeRequest(c, d) })

		// POST /api/email-change/verify-old	-> Verifies the code sent to the current address
		e.POST("/verify-old", func(c *gin.Context) { emailchange.VerifyOld(c, d) })

		// POST /api/email-change/verify-new	-> Verifies the code sent to the new address
		e.POST("/verify-new", func(c *gin.Context) { emailchange.VerifyNew(c, d) })

		// POST /api/email-change/complete	-> Swaps the account email and closes the request
		e.POST("/complete", func(c *gin.Context) { emailchange.Complete(c, d) })

		// POST /api/email-change/cancel	-> Abandons the active request
		e.POST("/cancel", func(c *gin.Context) { emailchange.Cancel(c, d) })

		// POST /api/email-change/resend	-> Redelivers the pending verification code
		e.POST("/resend", func(c *gin.Context) { emailchange.Resend(c, d) })

		// GET /api/email-change/status		-> Reports the active request for resume
		e.GET("/status", func(c *gin.Context) { emailchange.Status(c, d) })
	}

	// Keep stored statuses honest and the codes table small. Expiry itself
	// never depends on this sweep.
	if !config.SweepDisabled() {
		service.RequestCleanup(time.Hour, database)
	}

	return router, nil
}

func makeLogger() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + t.Format("15:04:05.000") + reset)
	}
	cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
		pae.AppendString(gray + ec.TrimmedPath() + reset)
	}

	cfg.DisableStacktrace = true

	if lvl, err := zapcore.ParseLevel(viper.GetString("app.log_level")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}

	log, _ := cfg.Build()
	zap.ReplaceGlobals(log)
}

func cacheFor(sec int) gin.HandlerFunc {
	return cache.CacheByRequestURI(store, time.Second*time.Duration(sec))
}
